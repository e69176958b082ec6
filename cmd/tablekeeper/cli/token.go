package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/faucetdb/tablekeeper/internal/model"
	"github.com/faucetdb/tablekeeper/internal/service"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		scopes  []string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		Long: `Issue an HS256 token signed with auth.jwt_secret. The read scope covers
targets, features, suggestions and plans; the run scope is also needed for
POST .../run.`,
		Example: `  tablekeeper token --subject dashboard
  tablekeeper token --subject cron --scope read,run --ttl 720h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(subject) == "" {
				return fmt.Errorf("%w: --subject is required", model.ErrValidation)
			}
			for _, s := range scopes {
				if s != service.ScopeRead && s != service.ScopeRun {
					return fmt.Errorf("%w: unknown scope %q", model.ErrValidation, s)
				}
			}
			if !cmd.Flags().Changed("ttl") {
				ttl = cfg.JWTExpiry()
			}

			tok, err := service.NewAuthService(cfg.Auth.JWTSecret).IssueJWT(subject, scopes, ttl)
			if err != nil {
				return fmt.Errorf("issue token (is auth.jwt_secret set?): %w", err)
			}
			fmt.Println(tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "token subject, used for run rate limiting")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{service.ScopeRead}, "scopes: read, run")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (default: auth.jwt_expiry)")

	return cmd
}
