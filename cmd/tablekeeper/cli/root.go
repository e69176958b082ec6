package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	targetName string
	dataDir    string
	jsonOutput bool
	verbose    bool
	appVersion string // set in Execute, reported by serve, mcp and openapi
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tablekeeper",
		Short: "Keep MySQL and MariaDB tables checked, optimized and analyzed",
		Long: `tablekeeper tracks the tables of MySQL and MariaDB schemas, decides which ones
need CHECK, REPAIR, OPTIMIZE, ANALYZE, histogram updates, compression or a
fulltext rebuild, and renders or runs the matching statements.

Plans are dry runs: 'tablekeeper plan' prints the statements without touching
the server. 'tablekeeper run' executes only the actions whose auto-run flag is on.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./tablekeeper.yaml)")
	cmd.PersistentFlags().StringVar(&targetName, "target", "", "target name from the config file (default: the first target)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for the SQLite tracking store (default: ~/.tablekeeper)")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON even on a terminal")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	viper.BindPFlag("tracking.data_dir", cmd.PersistentFlags().Lookup("data-dir"))

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newSuggestCmd())
	cmd.AddCommand(newPlanCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newSettingsCmd())
	cmd.AddCommand(newFeaturesCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newOpenAPICmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("tablekeeper")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.tablekeeper")
	}

	viper.SetEnvPrefix("TABLEKEEPER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}
