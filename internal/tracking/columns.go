package tracking

import (
	"context"
	"fmt"

	"github.com/faucetdb/tablekeeper/internal/ident"
)

// columnRow is one row of columns_include or columns_exclude.
type columnRow struct {
	Schema string `db:"schema"`
	Table  string `db:"table"`
	Column string `db:"column"`
}

// AddIncludeColumn adds columns to the histogram include set of a table.
func (s *Store) AddIncludeColumn(ctx context.Context, schema, table string, columns ...string) error {
	return s.addColumns(ctx, "columns_include", schema, table, columns)
}

// RemoveIncludeColumn removes columns from the include set.
func (s *Store) RemoveIncludeColumn(ctx context.Context, schema, table string, columns ...string) error {
	return s.removeColumns(ctx, "columns_include", schema, table, columns)
}

// AddExcludeColumn adds columns to the histogram exclude set of a table.
func (s *Store) AddExcludeColumn(ctx context.Context, schema, table string, columns ...string) error {
	return s.addColumns(ctx, "columns_exclude", schema, table, columns)
}

// RemoveExcludeColumn removes columns from the exclude set.
func (s *Store) RemoveExcludeColumn(ctx context.Context, schema, table string, columns ...string) error {
	return s.removeColumns(ctx, "columns_exclude", schema, table, columns)
}

// IncludeColumns returns the include set of a table.
func (s *Store) IncludeColumns(ctx context.Context, schema, table string) ([]string, error) {
	return s.listColumns(ctx, "columns_include", schema, table)
}

// ExcludeColumns returns the exclude set of a table.
func (s *Store) ExcludeColumns(ctx context.Context, schema, table string) ([]string, error) {
	return s.listColumns(ctx, "columns_exclude", schema, table)
}

func validateColumnTarget(schema, table string, columns []string) error {
	if err := ident.ValidateTarget(schema, []string{table}); err != nil {
		return err
	}
	if len(columns) == 0 {
		return fmt.Errorf("no columns given")
	}
	return ident.ValidateColumns(columns)
}

func (s *Store) addColumns(ctx context.Context, name, schema, table string, columns []string) error {
	if err := validateColumnTarget(schema, table, columns); err != nil {
		return err
	}
	q := s.insertIgnore() + " " + s.table(name) + " (`schema`, `table`, `column`) VALUES (:schema, :table, :column)"
	for _, c := range columns {
		row := columnRow{Schema: schema, Table: table, Column: c}
		if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
			return fmt.Errorf("add to %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) removeColumns(ctx context.Context, name, schema, table string, columns []string) error {
	if err := validateColumnTarget(schema, table, columns); err != nil {
		return err
	}
	q, args, err := s.in("DELETE FROM "+s.table(name)+" WHERE `schema` = ? AND `table` = ? AND `column` IN (?)", schema, table, columns)
	if err != nil {
		return fmt.Errorf("remove from %s: %w", name, err)
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("remove from %s: %w", name, err)
	}
	return nil
}

func (s *Store) listColumns(ctx context.Context, name, schema, table string) ([]string, error) {
	var cols []string
	q := "SELECT `column` FROM " + s.table(name) + " WHERE `schema` = ? AND `table` = ? ORDER BY `column`"
	if err := s.db.SelectContext(ctx, &cols, q, schema, table); err != nil {
		return nil, fmt.Errorf("list %s: %w", name, err)
	}
	return cols, nil
}
