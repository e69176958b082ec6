package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newPlanCmd() *cobra.Command {
	var (
		tables    []string
		integrate bool
		flatten   bool
	)

	cmd := &cobra.Command{
		Use:     "plan [schema]",
		Aliases: []string{"commands"},
		Short:   "Print the statements a run would execute",
		Long: `Render the maintenance statements for every suggested action, whether or not
its auto-run flag is on. Nothing is executed on the server.

With --flatten the output is one script: maintenance mode on, every table's
statements, fulltext reset, flush, maintenance mode off. With --integrate
the bookkeeping UPDATEs for the tracking tables are included, for use when
the tracking store lives on the target server.`,
		Example: `  tablekeeper plan app
  tablekeeper plan app --flatten > maintenance.sql
  tablekeeper commands app --table orders --integrate --flatten`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd.Context(), args, tables, integrate, flatten)
		},
	}

	cmd.Flags().StringSliceVarP(&tables, "table", "t", nil, "restrict to these tables (repeatable)")
	cmd.Flags().BoolVar(&integrate, "integrate", false, "include tracking-store UPDATE statements")
	cmd.Flags().BoolVar(&flatten, "flatten", false, "print a single ordered script")

	return cmd
}

func runPlan(ctx context.Context, args, tables []string, integrate, flatten bool) error {
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
	plan, err := m.GetCommands(ctx, schema, tables, integrate, flatten)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(os.Stdout, plan)
	}

	// SQL is the natural text form, on a terminal or not.
	if flatten {
		for _, stmt := range plan.Flat {
			fmt.Println(stmt)
		}
		return nil
	}
	for _, table := range plan.Order {
		fmt.Printf("-- %s.%s\n", schema, table)
		for _, stmt := range plan.Tables[table] {
			fmt.Println(stmt)
		}
		fmt.Println()
	}
	if len(plan.Order) == 0 {
		fmt.Printf("-- nothing to do in %s\n", schema)
	}
	return nil
}
