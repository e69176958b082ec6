package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/faucetdb/tablekeeper/internal/config"
	"github.com/faucetdb/tablekeeper/internal/connector"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage tablekeeper configuration",
		Long:  "Initialize a default configuration file or display the current effective configuration.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default " + config.DefaultFileName + " configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultFileName
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				}
			}
			if err := config.WriteDefaultConfig(path); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Printf("Created %s\n", path)
			fmt.Println("Edit the target DSN, export TABLEKEEPER_DB_PASSWORD, then run 'tablekeeper suggest'.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")

	return cmd
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current effective configuration",
		Long:  "Print the configuration after defaults, environment and flags are applied. DSN passwords and the JWT secret are masked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path := viper.ConfigFileUsed(); path != "" {
				fmt.Fprintf(os.Stderr, "# config file: %s\n", path)
			} else {
				fmt.Fprintln(os.Stderr, "# config file: (none found, using defaults)")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			for i := range cfg.Targets {
				cfg.Targets[i].DSN = connector.RedactDSN(cfg.Targets[i].DSN)
			}
			cfg.Tracking.DSN = connector.RedactDSN(cfg.Tracking.DSN)
			if cfg.Auth.JWTSecret != "" {
				cfg.Auth.JWTSecret = "****"
			}

			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}
