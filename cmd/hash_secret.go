package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/support-router/internal/auth"
	"github.com/spec-kit/support-router/internal/config"
)

var hashSecretCmd = &cobra.Command{
	Use:   "hash-secret <secret>",
	Short: "Print the bcrypt hash of a client secret for AUTH_CLIENT_SECRET_HASH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		hash, err := auth.HashSecret(args[0], cfg.Auth.BcryptCost)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}
