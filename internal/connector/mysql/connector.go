package mysql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/faucetdb/tablekeeper/internal/connector"
	"github.com/faucetdb/tablekeeper/internal/model"
)

// erNoSuchTable is the server error raised for a table dropped between
// catalog listing and the statement that touches it.
const erNoSuchTable = 1146

// MySQLConnector implements connector.Connector for MySQL and MariaDB
// servers.
type MySQLConnector struct {
	db      *sqlx.DB
	timings connector.TimingLog

	mu           sync.Mutex
	locks        map[string]*sqlx.Conn
	hasTemporary *bool
}

// New creates a new MySQLConnector with default settings.
func New() connector.Connector {
	return &MySQLConnector{locks: make(map[string]*sqlx.Conn)}
}

// Connect establishes a connection to the target server using the provided
// configuration and applies the pool settings.
func (c *MySQLConnector) Connect(cfg connector.ConnectionConfig) error {
	db, err := sqlx.Connect("mysql", connector.SanitizeDSN("mysql", cfg.DSN))
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	c.db = db
	return nil
}

// Disconnect releases any held advisory locks and closes the pool.
func (c *MySQLConnector) Disconnect() error {
	c.mu.Lock()
	for name, conn := range c.locks {
		conn.Close()
		delete(c.locks, name)
	}
	c.mu.Unlock()

	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping verifies the database connection is alive.
func (c *MySQLConnector) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// DB returns the underlying sqlx.DB connection pool.
func (c *MySQLConnector) DB() *sqlx.DB {
	return c.db
}

// DriverName returns the driver identifier for MySQL.
func (c *MySQLConnector) DriverName() string { return "mysql" }

// Timings returns the execution log of administrative statements.
func (c *MySQLConnector) Timings() []model.Timing { return c.timings.Entries() }

// ResetTimings discards the execution log.
func (c *MySQLConnector) ResetTimings() { c.timings.Reset() }

// statement strips the trailing terminator the planner renders so the text
// can be sent as a single COM_QUERY.
func statement(stmt string) string {
	return strings.TrimSuffix(strings.TrimSpace(stmt), ";")
}

// tableErr maps "no such table" to connector.ErrTableNotFound.
func tableErr(ref string, err error) error {
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) && myErr.Number == erNoSuchTable {
		return fmt.Errorf("%s: %w", ref, connector.ErrTableNotFound)
	}
	return err
}
