package cli

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sat20-labs/walletd/internal/config"
)

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [config-file]",
		Short: "Write a starter config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(cmd, args, "walletd.json")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			secret := make([]byte, 32)
			if _, err := rand.Read(secret); err != nil {
				return fmt.Errorf("generate secret: %w", err)
			}

			cfg := config.Config{
				Server: config.ServerConfig{
					Addr:      "127.0.0.1:18332",
					JWTSecret: hex.EncodeToString(secret),
				},
				Engine: config.EngineConfig{
					Command: "wallet-engine",
					Network: "testnet",
				},
			}
			cfg.ApplyDefaults()

			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
				return fmt.Errorf("write config: %w", err)
			}

			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}
