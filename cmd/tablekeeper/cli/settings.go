package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/faucetdb/tablekeeper/internal/model"
	"github.com/faucetdb/tablekeeper/internal/tracking"
)

// settingsFlags are shared by the per-table settings subcommands.
type settingsFlags struct {
	schema string
	tables []string
}

func newSettingsCmd() *cobra.Command {
	f := &settingsFlags{}

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show and change maintenance policy",
		Long: `Show and change the per-table policy (suggest and auto-run flags, delays,
thresholds, histogram options) and the global settings kept in the tracking
store. Per-table changes apply to --table, or to every tracked table of the
schema when no table is given. Tables are tracked after their first
'tablekeeper suggest'.`,
	}

	cmd.PersistentFlags().StringVarP(&f.schema, "schema", "s", "", "schema (default: the target's schema)")
	cmd.PersistentFlags().StringSliceVarP(&f.tables, "table", "t", nil, "restrict to these tables (repeatable)")

	cmd.AddCommand(newSettingsShowCmd(f))
	cmd.AddCommand(newSettingsActionCmd(f, "suggest", "Enable or disable suggestions of an action",
		"analyze, check, compress, optimize", (*tracking.Store).SetSuggest))
	cmd.AddCommand(newSettingsActionCmd(f, "autorun", "Enable or disable automatic execution of an action",
		"analyze, check, fulltext_rebuild, optimize", (*tracking.Store).SetAutoRun))
	cmd.AddCommand(newSettingsDaysCmd(f))
	cmd.AddCommand(newSettingsFineTuneCmd(f))
	cmd.AddCommand(newSettingsThresholdCmd(f))
	cmd.AddCommand(newSettingsBucketsCmd(f))
	cmd.AddCommand(newSettingsGlobalCmd())
	cmd.AddCommand(newSettingsMaintenanceCmd())
	cmd.AddCommand(newSettingsColumnsCmd(f, "include", "Columns that always get a histogram"))
	cmd.AddCommand(newSettingsColumnsCmd(f, "exclude", "Columns that never get a histogram"))

	return cmd
}

// withStore opens the tracking store and resolves the schema for fn.
func withStore(f *settingsFlags, fn func(ctx context.Context, store *tracking.Store, schema string) error) error {
	e, err := openEnv(false)
	if err != nil {
		return err
	}
	defer e.Close()

	schema := f.schema
	if schema == "" {
		schema = e.target.Schema
	}
	return fn(context.Background(), e.store, schema)
}

func reportUpdated(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Println("No tracked tables matched. Run 'tablekeeper suggest' first.")
		return nil
	}
	fmt.Printf("Updated %d table(s).\n", n)
	return nil
}

// ---------- settings show ----------

func newSettingsShowCmd(f *settingsFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show global settings and the tracked tables' policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(f, func(ctx context.Context, store *tracking.Store, schema string) error {
				global, err := store.ListSettings(ctx)
				if err != nil {
					return err
				}
				var records []model.TableRecord
				if schema != "" {
					if records, err = store.Tables(ctx, schema, f.tables); err != nil {
						return err
					}
				}

				if wantJSON() {
					return printJSON(os.Stdout, map[string]interface{}{
						"settings": global,
						"tables":   records,
					})
				}

				tw := newTable(os.Stdout)
				fmt.Fprintln(tw, "SETTING\tVALUE\tDESCRIPTION")
				for _, s := range global {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Setting, s.Value, s.Description)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				if len(records) == 0 {
					return nil
				}

				fmt.Println()
				tw = newTable(os.Stdout)
				fmt.Fprintln(tw, "TABLE\tCHECK\tANALYZE\tOPTIMIZE\tFULLTEXT\tDAYS(C/A/O)\tFRAG%\tROWS Δ\tHISTOGRAM\tBUCKETS")
				for _, r := range records {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d/%d/%d\t%s\t%d\t%s\t%d\n",
						r.Table,
						policy(r.CheckSuggest, r.CheckAutoRun),
						policy(r.AnalyzeSuggest, r.AnalyzeAutoRun),
						policy(r.OptimizeSuggest, r.OptimizeAutoRun),
						policy(true, r.FulltextRebuildAutoRun),
						r.CheckDaysDelay, r.AnalyzeDaysDelay, r.OptimizeDaysDelay,
						r.ThresholdFragmentation.StringFixed(2), r.ThresholdRowsDelta,
						mark(r.AnalyzeHistogram), r.AnalyzeHistogramBuckets)
				}
				return tw.Flush()
			})
		},
	}
}

// policy renders suggest/auto-run as "off", "suggest" or "auto".
func policy(suggest, autoRun bool) string {
	switch {
	case !suggest:
		return "off"
	case autoRun:
		return "auto"
	default:
		return "suggest"
	}
}

// ---------- settings suggest|autorun ----------

type actionSetter func(*tracking.Store, context.Context, model.Action, bool, string, []string) (int64, error)

func newSettingsActionCmd(f *settingsFlags, use, short, actions string, set actionSetter) *cobra.Command {
	return &cobra.Command{
		Use:     use + " <action> <on|off>",
		Short:   short,
		Long:    short + ". Actions: " + actions + ".",
		Example: "  tablekeeper settings " + use + " check on --schema app --table orders",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := model.ParseAction(args[0])
			if err != nil {
				return err
			}
			on, err := parseOnOff(args[1])
			if err != nil {
				return err
			}
			return withStore(f, func(ctx context.Context, store *tracking.Store, schema string) error {
				return reportUpdated(set(store, ctx, action, on, schema, f.tables))
			})
		},
	}
}

// ---------- settings days ----------

func newSettingsDaysCmd(f *settingsFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "days <action> <days>",
		Short: "Set the minimum days between runs of analyze, check or optimize",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := model.ParseAction(args[0])
			if err != nil {
				return err
			}
			days, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("%w: days must be a number: %v", model.ErrValidation, err)
			}
			return withStore(f, func(ctx context.Context, store *tracking.Store, schema string) error {
				return reportUpdated(store.SetDays(ctx, action, days, schema, f.tables))
			})
		},
	}
}

// ---------- settings finetune ----------

func newSettingsFineTuneCmd(f *settingsFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "finetune <option> <on|off>",
		Short: "Toggle a per-table option",
		Long:  "Toggle a per-table option: use_checksum, exact_rows, only_if_changed, analyze_histogram, analyze_histogram_auto.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseOnOff(args[1])
			if err != nil {
				return err
			}
			return withStore(f, func(ctx context.Context, store *tracking.Store, schema string) error {
				return reportUpdated(store.SetTableFineTune(ctx, args[0], on, schema, f.tables))
			})
		},
	}
}

// ---------- settings threshold ----------

func newSettingsThresholdCmd(f *settingsFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "threshold <fragmentation|rows_delta> <value>",
		Short: "Set the optimize fragmentation percentage or the changed-rows delta",
		Example: `  tablekeeper settings threshold fragmentation 12.5 --schema app
  tablekeeper settings threshold rows_delta 50000 --schema app --table events`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(f, func(ctx context.Context, store *tracking.Store, schema string) error {
				switch args[0] {
				case "fragmentation":
					pct, err := decimal.NewFromString(args[1])
					if err != nil {
						return fmt.Errorf("%w: fragmentation must be a number: %v", model.ErrValidation, err)
					}
					return reportUpdated(store.SetThresholdFragmentation(ctx, pct, schema, f.tables))
				case "rows_delta":
					n, err := strconv.ParseInt(args[1], 10, 64)
					if err != nil {
						return fmt.Errorf("%w: rows_delta must be an integer: %v", model.ErrValidation, err)
					}
					return reportUpdated(store.SetThresholdRowsDelta(ctx, n, schema, f.tables))
				default:
					return fmt.Errorf("%w: unknown threshold %q", model.ErrValidation, args[0])
				}
			})
		},
	}
}

// ---------- settings buckets ----------

func newSettingsBucketsCmd(f *settingsFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "buckets <n>",
		Short: "Set the histogram bucket count (1 to 1024)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("%w: buckets must be a number: %v", model.ErrValidation, err)
			}
			return withStore(f, func(ctx context.Context, store *tracking.Store, schema string) error {
				return reportUpdated(store.SetBuckets(ctx, n, schema, f.tables))
			})
		},
	}
}

// ---------- settings global ----------

func newSettingsGlobalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "global <option> <on|off>",
		Short: "Toggle a global option",
		Long:  "Toggle a global option: prefer_compressed, prefer_extended, compress_auto_run, repair_auto_run, use_flush.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseOnOff(args[1])
			if err != nil {
				return err
			}
			return withStore(&settingsFlags{}, func(ctx context.Context, store *tracking.Store, _ string) error {
				if err := store.SetGlobalFineTune(ctx, args[0], on); err != nil {
					return err
				}
				fmt.Printf("%s = %t\n", args[0], on)
				return nil
			})
		},
	}
}

// ---------- settings maintenance ----------

func newSettingsMaintenanceCmd() *cobra.Command {
	var target model.MaintenanceTarget

	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Set the application flag switched on during runs",
		Long: `Name the row that puts the application into maintenance mode. During a run
tablekeeper executes

  UPDATE <schema>.<table> SET <value-column> = 1 WHERE <setting-column> = '<setting-name>'

before the first action and sets it back to 0 afterwards.`,
		Example: "  tablekeeper settings maintenance --maint-schema site --maint-table config --setting-column name --setting-name maintenance --value-column value",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(&settingsFlags{}, func(ctx context.Context, store *tracking.Store, _ string) error {
				if err := store.SetMaintenance(ctx, target); err != nil {
					return err
				}
				fmt.Println("Maintenance target updated.")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&target.Schema, "maint-schema", "", "schema of the flag table")
	cmd.Flags().StringVar(&target.Table, "maint-table", "", "flag table")
	cmd.Flags().StringVar(&target.SettingColumn, "setting-column", "", "column holding the setting name")
	cmd.Flags().StringVar(&target.SettingName, "setting-name", "", "setting name of the maintenance flag")
	cmd.Flags().StringVar(&target.ValueColumn, "value-column", "", "column holding the flag value")

	return cmd
}

// ---------- settings include|exclude ----------

func newSettingsColumnsCmd(f *settingsFlags, use, short string) *cobra.Command {
	add, remove, list := (*tracking.Store).AddIncludeColumn, (*tracking.Store).RemoveIncludeColumn, (*tracking.Store).IncludeColumns
	if use == "exclude" {
		add, remove, list = (*tracking.Store).AddExcludeColumn, (*tracking.Store).RemoveExcludeColumn, (*tracking.Store).ExcludeColumns
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
	}

	oneTable := func() (string, error) {
		if len(f.tables) != 1 {
			return "", fmt.Errorf("%w: exactly one --table is required", model.ErrValidation)
		}
		return f.tables[0], nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <column>...",
		Short: "Add columns to the " + use + " list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := oneTable()
			if err != nil {
				return err
			}
			return withStore(f, func(ctx context.Context, store *tracking.Store, schema string) error {
				return add(store, ctx, schema, table, args...)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove <column>...",
		Short: "Remove columns from the " + use + " list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := oneTable()
			if err != nil {
				return err
			}
			return withStore(f, func(ctx context.Context, store *tracking.Store, schema string) error {
				return remove(store, ctx, schema, table, args...)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the " + use + " columns of a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := oneTable()
			if err != nil {
				return err
			}
			return withStore(f, func(ctx context.Context, store *tracking.Store, schema string) error {
				cols, err := list(store, ctx, schema, table)
				if err != nil {
					return err
				}
				if wantJSON() {
					if cols == nil {
						cols = []string{}
					}
					return printJSON(os.Stdout, cols)
				}
				for _, c := range cols {
					fmt.Println(c)
				}
				return nil
			})
		},
	})

	return cmd
}
