package main

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/parley-im/parley-go/chat"
	"github.com/parley-im/parley-go/client"
	"github.com/parley-im/parley-go/internal/profile"
	"github.com/parley-im/parley-go/services"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: `Command-line companion for the Parley chat SDK: sign in, send messages, follow topics live, and run a local mock server.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Pick up .env from the current directory; absence is fine.
		_ = godotenv.Load()
		return nil
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("endpoint", "http://127.0.0.1:8780")
	viper.SetDefault("db-name", "parley")

	rootCmd.PersistentFlags().String("mode", "dev", `mode of the CLI, can be "prod" or "dev"`)
	rootCmd.PersistentFlags().String("endpoint", "http://127.0.0.1:8780", "base URL of the parley server")
	rootCmd.PersistentFlags().String("user", "", "account to act as")
	rootCmd.PersistentFlags().String("data", "", "data directory for the local store")
	rootCmd.PersistentFlags().String("db-name", "parley", "database file name inside the data directory")

	for _, name := range []string{"mode", "endpoint", "user", "data", "db-name"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("parley")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	rootCmd.AddCommand(loginCmd, sendCmd, listenCmd, syncCmd, mockserverCmd, versionCmd)
}

// loadProfile merges flags and environment, validates the result and wires
// the default slog handler for the chosen mode.
func loadProfile() (*profile.Profile, error) {
	p := &profile.Profile{
		Mode:     viper.GetString("mode"),
		Endpoint: viper.GetString("endpoint"),
		UserID:   viper.GetString("user"),
		Data:     viper.GetString("data"),
		DBName:   viper.GetString("db-name"),
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var handler slog.Handler
	if p.IsDev() {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))
	return p, nil
}

// resolveAuth finds a session for the profile: explicit token, saved
// credential, then password login, in that order.
func resolveAuth(ctx context.Context, p *profile.Profile) (*chat.AuthInfo, error) {
	if p.UserID == "" {
		return nil, errors.New("--user is required")
	}
	if p.Token != "" {
		return services.LoginWithToken(ctx, p.Endpoint, p.UserID, p.Token)
	}
	if info, err := client.LoadAuthInfo(ctx, p.Data, p.Endpoint, p.UserID); err == nil && !services.IsTokenExpired(info.Token) {
		return info, nil
	}
	if p.Password != "" {
		return services.Login(ctx, p.Endpoint, p.UserID, p.Password)
	}
	return nil, errors.New("no usable session: run `parley login` or set PARLEY_TOKEN or PARLEY_PASSWORD")
}

func newClient(p *profile.Profile, info *chat.AuthInfo) (*client.Client, error) {
	return client.NewClient(info, client.Options{RootPath: p.Data, DBName: p.DBName})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
