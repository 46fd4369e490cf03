// Package main mints agent console tokens signed with the server's JWT secret.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/support-desk/internal/config"
	"github.com/capitalize-ai/support-desk/internal/middleware"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		subject string
		secret  string
		ttl     time.Duration
		scopes  []string
	)

	cmd := &cobra.Command{
		Use:   "agent-token",
		Short: "Issue a JWT for the agent console",
		Long: `agent-token signs an HS256 token accepted by the agent REST and WebSocket routes.

The secret defaults to JWT_SECRET from the environment or .env file.

Examples:
  agent-token --subject dana
  agent-token --subject dana --ttl 1h --secret "$JWT_SECRET"`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			if secret == "" {
				secret = config.Load().JWTSecret
			}

			token, err := middleware.IssueToken(secret, subject, scopes, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Operator identity stored in the sub claim")
	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (defaults to JWT_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", 8*time.Hour, "Token lifetime")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{middleware.ScopeAgent}, "Scopes to grant")
	return cmd
}
