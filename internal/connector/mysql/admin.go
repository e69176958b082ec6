package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/faucetdb/tablekeeper/internal/ident"
	"github.com/faucetdb/tablekeeper/internal/model"
)

// CountRows runs an exact SELECT COUNT(*).
func (c *MySQLConnector) CountRows(ctx context.Context, schema, table string) (int64, error) {
	var n int64
	query := "SELECT COUNT(*) FROM " + ident.QuoteTable(schema, table)
	if err := c.db.GetContext(ctx, &n, query); err != nil {
		return 0, fmt.Errorf("count rows: %w", tableErr(ident.QuoteTable(schema, table), err))
	}
	return n, nil
}

// Checksum runs CHECKSUM TABLE ... EXTENDED. The server reports NULL for
// tables it cannot checksum.
func (c *MySQLConnector) Checksum(ctx context.Context, schema, table string) (*int64, error) {
	var (
		name string
		sum  sql.NullInt64
	)
	query := "CHECKSUM TABLE " + ident.QuoteTable(schema, table) + " EXTENDED"
	if err := c.db.QueryRowxContext(ctx, query).Scan(&name, &sum); err != nil {
		return nil, fmt.Errorf("checksum: %w", tableErr(ident.QuoteTable(schema, table), err))
	}
	if !sum.Valid {
		return nil, nil
	}
	return &sum.Int64, nil
}

// Admin runs a CHECK/REPAIR/ANALYZE/OPTIMIZE TABLE statement and returns
// every result row.
func (c *MySQLConnector) Admin(ctx context.Context, stmt string) ([]model.AdminMessage, error) {
	started := time.Now()
	defer c.timings.Record(stmt, started)

	var rows []model.AdminMessage
	if err := c.db.SelectContext(ctx, &rows, statement(stmt)); err != nil {
		return nil, &model.CommandError{Statement: stmt, Err: err}
	}
	return rows, nil
}

// Exec runs a statement that returns no rows.
func (c *MySQLConnector) Exec(ctx context.Context, stmt string) error {
	started := time.Now()
	defer c.timings.Record(stmt, started)

	if _, err := c.db.ExecContext(ctx, statement(stmt)); err != nil {
		return &model.CommandError{Statement: stmt, Err: err}
	}
	return nil
}

// Lock takes a named advisory lock with GET_LOCK. The lock lives on a
// dedicated connection that is kept out of the pool until Unlock.
func (c *MySQLConnector) Lock(ctx context.Context, name string, timeout time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, held := c.locks[name]; held {
		return false, nil
	}

	conn, err := c.db.Connx(ctx)
	if err != nil {
		return false, fmt.Errorf("lock %q: %w", name, err)
	}

	var got sql.NullInt64
	if err := conn.GetContext(ctx, &got, "SELECT GET_LOCK(?, ?)", name, int(timeout.Seconds())); err != nil {
		conn.Close()
		return false, fmt.Errorf("lock %q: %w", name, err)
	}
	if !got.Valid || got.Int64 != 1 {
		conn.Close()
		return false, nil
	}

	c.locks[name] = conn
	return true, nil
}

// Unlock releases a lock taken by Lock and returns its connection.
func (c *MySQLConnector) Unlock(ctx context.Context, name string) error {
	c.mu.Lock()
	conn, ok := c.locks[name]
	delete(c.locks, name)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	defer conn.Close()

	var released sql.NullInt64
	if err := conn.GetContext(ctx, &released, "SELECT RELEASE_LOCK(?)", name); err != nil {
		return fmt.Errorf("unlock %q: %w", name, err)
	}
	return nil
}
