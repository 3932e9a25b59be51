package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmynk/quozen/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for a user",
	Long: `Signs a JWT with QUOZEN_JWT_SECRET for local development and scripts.

Example:
  quozen token --id u-alice --email alice@example.com --name Alice`,
	RunE: runToken,
}

func init() {
	addIdentityFlags(tokenCmd)
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	if err := cfg.RequireAuth(); err != nil {
		return err
	}
	token, err := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL).Generate(identity())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
