package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/parley-im/parley-go/chat"
	"github.com/parley-im/parley-go/client"
	"github.com/parley-im/parley-go/services"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and save the session for later commands",
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}
		if p.UserID == "" {
			return errors.New("--user is required")
		}
		ctx := cmd.Context()

		signup, _ := cmd.Flags().GetBool("signup")
		var info *chat.AuthInfo
		switch {
		case signup:
			if p.Password == "" {
				return errors.New("signup needs PARLEY_PASSWORD")
			}
			info, err = services.Signup(ctx, p.Endpoint, p.UserID, p.Password)
		case p.Token != "":
			info, err = services.LoginWithToken(ctx, p.Endpoint, p.UserID, p.Token)
		case p.Password != "":
			info, err = services.Login(ctx, p.Endpoint, p.UserID, p.Password)
		default:
			return errors.New("set PARLEY_PASSWORD or PARLEY_TOKEN to sign in")
		}
		if err != nil {
			return err
		}

		if err := client.SaveAuthInfo(ctx, p.Data, info); err != nil {
			return errors.Wrap(err, "signed in, but saving the session failed")
		}
		name := info.Name
		if name == "" {
			name = info.UserID
		}
		fmt.Printf("Signed in to %s as %s\n", p.Endpoint, name)
		return nil
	},
}

func init() {
	loginCmd.Flags().Bool("signup", false, "create the account first")
}
