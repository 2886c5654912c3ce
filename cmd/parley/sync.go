package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parley-im/parley-go/client"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull the conversation list and fresh history into the local store",
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

		if err := cl.SyncConversations(ctx, client.SyncConversationsOption{SyncLogs: true}); err != nil {
			return err
		}

		page, err := cl.GetConversations(ctx, 0, 50)
		if err != nil {
			return err
		}
		for _, conv := range page.Items {
			name := conv.Name
			if name == "" {
				name = conv.TopicID
			}
			preview := ""
			if conv.LastMessage != nil {
				preview = conv.LastMessage.Text
			}
			fmt.Printf("%-28s unread %-4d %s\n", name, conv.Unread, preview)
		}
		if len(page.Items) == 0 {
			fmt.Println("No conversations yet.")
		}
		return nil
	},
}
