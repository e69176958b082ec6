package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/faucetdb/tablekeeper/internal/model"
)

func newRunCmd() *cobra.Command {
	var tables []string

	cmd := &cobra.Command{
		Use:   "run [schema]",
		Short: "Execute the auto-run maintenance actions",
		Long: `Execute every suggested action whose auto-run flag is on, one table at a time
from the smallest up. Actions without auto-run are reported as skipped.

A failed action does not stop the run. The command exits non-zero when any
action failed. Ctrl-C stops after the statement in flight and still switches
maintenance mode off.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), args, tables)
		},
	}

	cmd.Flags().StringSliceVarP(&tables, "table", "t", nil, "restrict to these tables (repeatable)")

	return cmd
}

func runRun(ctx context.Context, args, tables []string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := openEnv(true)
	if err != nil {
		return err
	}
	defer e.Close()

	schema, err := e.schema(args)
	if err != nil {
		return err
	}
	m, err := e.maintainer(ctx)
	if err != nil {
		return err
	}
	res, err := m.AutoProcess(ctx, schema, tables)
	if err != nil {
		return err
	}

	if wantJSON() {
		if err := printJSON(os.Stdout, res); err != nil {
			return err
		}
	} else if err := printRunResult(res); err != nil {
		return err
	}

	if n := res.Failures(); n > 0 {
		return fmt.Errorf("%d action(s) failed in run %s", n, res.RunID)
	}
	return nil
}

func printRunResult(res *model.RunResult) error {
	fmt.Printf("Run %s on %s (%s)\n\n", res.RunID, res.Schema, res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))

	names := make([]string, 0, len(res.Tables))
	for name := range res.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := newTable(os.Stdout)
	fmt.Fprintln(tw, "TABLE\tACTION\tSTATUS\tERROR")
	for _, name := range names {
		for _, a := range model.ActionOrder {
			r, ok := res.Tables[name][a]
			if !ok {
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, a, r.Status, r.Error)
		}
	}
	g := res.General
	for _, step := range []struct {
		name string
		r    model.ActionResult
	}{
		{"maintenance_start", g.MaintenanceStart},
		{"fulltext_reset", g.FulltextReset},
		{"flush", g.Flush},
		{"maintenance_end", g.MaintenanceEnd},
	} {
		fmt.Fprintf(tw, "(general)\t%s\t%s\t%s\n", step.name, step.r.Status, step.r.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(g.Timings) > 0 {
		fmt.Println()
		tw = newTable(os.Stdout)
		fmt.Fprintln(tw, "DURATION\tSTATEMENT")
		for _, t := range g.Timings {
			fmt.Fprintf(tw, "%s\t%s\n", t.Duration, t.Statement)
		}
		return tw.Flush()
	}
	return nil
}
