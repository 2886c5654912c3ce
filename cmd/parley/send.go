package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/parley-im/parley-go/chat"
	"github.com/parley-im/parley-go/client"
)

var sendCmd = &cobra.Command{
	Use:   "send <topic> <text>",
	Short: "Send one text message and wait for the server ack",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
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

		if err := cl.Connect(ctx); err != nil {
			return err
		}

		done := make(chan error, 1)
		chatID, err := cl.DoSendText(ctx, args[0], args[1], &client.SendOptions{
			OnAck:  func(*chat.Request) { done <- nil },
			OnFail: func(reason string) { done <- errors.New(reason) },
		})
		if err != nil {
			return err
		}

		select {
		case err := <-done:
			if err != nil {
				return errors.Wrap(err, "send rejected")
			}
		case <-time.After(15 * time.Second):
			return errors.New("timed out waiting for the server ack")
		case <-ctx.Done():
			return ctx.Err()
		}

		if log, err := cl.GetChatLog(ctx, args[0], chatID); err == nil {
			fmt.Printf("Delivered %s as seq %d\n", chatID, log.Seq)
		} else {
			fmt.Printf("Delivered %s\n", chatID)
		}
		cl.Shutdown()
		return nil
	},
}
