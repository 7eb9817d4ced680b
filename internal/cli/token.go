package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sat20-labs/walletd/internal/auth"
	"github.com/sat20-labs/walletd/internal/config"
)

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <context>",
		Short: "Issue a bearer token for a context (content, popup, webview)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := resolveConfigPath(cmd, nil, "walletd.json")
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("error: %w", err)
			}

			token, err := auth.New(cfg.Server.JWTSecret, 0).IssueToken(args[0])
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Println(token)
			return nil
		},
	}
}
