package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/parley-im/parley-go/chat"
	"github.com/parley-im/parley-go/client"
	"github.com/parley-im/parley-go/metrics"
)

// printObserver writes every client event to the terminal.
type printObserver struct {
	client.BaseObserver
}

func (printObserver) OnConnected(elapsed time.Duration) {
	fmt.Printf("* connected in %s\n", elapsed.Round(time.Millisecond))
}

func (printObserver) OnNetBroken(reason string) {
	fmt.Printf("* connection lost: %s (reconnecting)\n", reason)
}

func (printObserver) OnTokenExpired(reason string) {
	fmt.Printf("* session expired: %s\n", reason)
}

func (printObserver) OnKickoffByOtherClient(reason string) {
	fmt.Printf("* kicked: %s\n", reason)
}

func (printObserver) OnNewMessage(topicID string, req *chat.Request) bool {
	text := ""
	if req.Content != nil {
		text = req.Content.Text
		if req.Content.Type != chat.ContentTypeText {
			text = fmt.Sprintf("[%s] %s", req.Content.Type, text)
		}
	}
	fmt.Printf("%s %s: %s\n", topicID, req.Attendee, text)
	return true
}

func (printObserver) OnTopicTyping(topicID, _ string) {
	fmt.Printf("%s: typing...\n", topicID)
}

func (printObserver) OnTopicRead(topicID string, req *chat.Request) {
	fmt.Printf("%s: read by %s up to seq %d\n", topicID, req.Attendee, req.Seq)
}

func (printObserver) OnConversationRemoved(topicID string) {
	fmt.Printf("%s: conversation removed\n", topicID)
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Connect and print incoming events until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		info, err := resolveAuth(ctx, p)
		if err != nil {
			return err
		}
		cl, err := newClient(p, info)
		if err != nil {
			return err
		}
		defer cl.Close()
		cl.SetObserver(printObserver{})

		if addr, _ := cmd.Flags().GetString("metrics"); addr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler(cl.MetricsTracker()))
			go func() {
				if err := http.ListenAndServe(addr, mux); err != nil {
					slog.Error("Metrics endpoint stopped", "addr", addr, "error", err)
				}
			}()
		}

		if err := cl.Connect(ctx); err != nil {
			return err
		}
		if err := cl.SyncConversations(ctx, client.SyncConversationsOption{SyncLogs: true}); err != nil {
			slog.Warn("Initial sync failed", "error", err)
		}

		c := make(chan os.Signal, 1)
		signal.Notify(c, terminationSignals...)
		<-c
		cl.Shutdown()
		return nil
	},
}

func init() {
	listenCmd.Flags().String("metrics", "", "serve Prometheus metrics on this address while listening")
}
