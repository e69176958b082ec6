package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/faucetdb/tablekeeper/internal/model"
)

func newSuggestCmd() *cobra.Command {
	var tables []string

	cmd := &cobra.Command{
		Use:   "suggest [schema]",
		Short: "Refresh diagnostics and list pending maintenance",
		Long: `Refresh the tracked state of a schema from the server and list every table
with at least one pending action, smallest tables first.`,
		Example: `  tablekeeper suggest app
  tablekeeper suggest app --table orders --table order_items
  tablekeeper suggest --target replica --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuggest(cmd.Context(), args, tables)
		},
	}

	cmd.Flags().StringSliceVarP(&tables, "table", "t", nil, "restrict to these tables (repeatable)")

	return cmd
}

func runSuggest(ctx context.Context, args, tables []string) error {
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
	suggestions, err := m.Suggest(ctx, schema, tables)
	if err != nil {
		return err
	}

	if wantJSON() {
		if suggestions == nil {
			suggestions = []model.Suggestion{}
		}
		return printJSON(os.Stdout, suggestions)
	}

	if len(suggestions) == 0 {
		fmt.Printf("Nothing to do in %s.\n", schema)
		return nil
	}
	tw := newTable(os.Stdout)
	fmt.Fprintln(tw, "TABLE\tENGINE\tSIZE\tREPAIR\tCHECK\tCOMPRESS\tOPTIMIZE\tANALYZE\tHISTOGRAM\tFULLTEXT")
	for _, s := range suggestions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Table, s.Engine, s.TotalLength,
			mark(s.Repair), mark(s.Check), mark(s.Compress), mark(s.Optimize),
			mark(s.Analyze), mark(s.AnalyzeHistogram), mark(s.FulltextRebuild))
	}
	return tw.Flush()
}
