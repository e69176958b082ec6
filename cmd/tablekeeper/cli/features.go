package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newFeaturesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "features",
		Short: "Show what the target server supports",
		Long: `Connect to the target, detect its version, privileges and options, and print
the resulting feature matrix together with the global settings in effect.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(true)
			if err != nil {
				return err
			}
			defer e.Close()

			m, err := e.maintainer(context.Background())
			if err != nil {
				return err
			}
			fm, settings := m.Features(), m.Settings()

			if wantJSON() {
				return printJSON(os.Stdout, map[string]interface{}{
					"target":   e.target.Name,
					"features": fm,
					"settings": settings,
				})
			}

			fmt.Printf("Target:  %s\n", e.target.Name)
			fmt.Printf("Server:  %s (%s)\n\n", fm.Version, fm.Version.Raw)

			tw := newTable(os.Stdout)
			fmt.Fprintln(tw, "FEATURE\tAVAILABLE")
			for _, row := range []struct {
				name string
				on   bool
			}{
				{"persistent statistics", fm.SupportsPersistentStatistics},
				{"persistent statistics cover ANALYZE", fm.PersistentStatsCoverAnalyze},
				{"column histograms", fm.SupportsColumnHistograms},
				{"automatic histogram update", fm.SupportsAutoHistogramUpdate},
				{"innodb_file_per_table", fm.FilePerTable},
				{"page compression", fm.SupportsPageCompression},
				{"SET GLOBAL", fm.CanSetGlobalVariables},
				{"FLUSH TABLES", fm.CanFlush},
				{"FLUSH OPTIMIZER_COSTS", fm.CanFlushOptimizerCosts},
			} {
				fmt.Fprintf(tw, "%s\t%s\n", row.name, mark(row.on))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			fmt.Println()
			tw = newTable(os.Stdout)
			fmt.Fprintln(tw, "SETTING\tVALUE")
			fmt.Fprintf(tw, "prefer_compressed\t%t\n", settings.PreferCompressed)
			fmt.Fprintf(tw, "prefer_extended\t%t\n", settings.PreferExtended)
			fmt.Fprintf(tw, "compress_auto_run\t%t\n", settings.CompressAutoRun)
			fmt.Fprintf(tw, "repair_auto_run\t%t\n", settings.RepairAutoRun)
			fmt.Fprintf(tw, "use_flush\t%t\n", settings.UseFlush)
			if mt := settings.Maintenance; mt.Configured() {
				fmt.Fprintf(tw, "maintenance flag\t%s.%s %s=%q (%s)\n", mt.Schema, mt.Table, mt.SettingColumn, mt.SettingName, mt.ValueColumn)
			} else {
				fmt.Fprintln(tw, "maintenance flag\t-")
			}
			return tw.Flush()
		},
	}
}
