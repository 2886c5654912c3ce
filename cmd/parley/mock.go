package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/parley-im/parley-go/internal/mockserver"
)

var mockserverCmd = &cobra.Command{
	Use:   "mockserver",
	Short: "Run an in-memory server for development",
	Long: `Run an in-memory Parley server with the full REST and websocket surface.
Nothing is persisted; every restart begins empty. Seed accounts with
--account, then point the other commands (or an SDK client) at its URL.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}
		addr, _ := cmd.Flags().GetString("listen")
		accounts, _ := cmd.Flags().GetStringSlice("account")

		srv := mockserver.New(p.Secret)
		for _, spec := range accounts {
			userID, password, ok := strings.Cut(spec, ":")
			if !ok || userID == "" || password == "" {
				return errors.Errorf("bad --account %q, want user:password", spec)
			}
			if err := srv.AddAccount(userID, password, userID); err != nil {
				return err
			}
		}

		if err := srv.Start(addr); err != nil {
			return err
		}
		fmt.Printf("Mock server listening on %s\n", srv.URL())
		for _, spec := range accounts {
			userID, _, _ := strings.Cut(spec, ":")
			fmt.Printf("  account: %s\n", userID)
		}

		c := make(chan os.Signal, 1)
		signal.Notify(c, terminationSignals...)
		<-c
		return srv.Close()
	},
}

func init() {
	mockserverCmd.Flags().String("listen", "127.0.0.1:8780", "bind address")
	mockserverCmd.Flags().StringSlice("account", []string{"guest:guest"}, "seed account as user:password, repeatable")
}
