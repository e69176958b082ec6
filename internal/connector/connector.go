package connector

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/faucetdb/tablekeeper/internal/model"
)

// ErrTableNotFound is returned by TableStatus when the table is not a base
// table of the schema.
var ErrTableNotFound = errors.New("table not found")

// ConnectionConfig holds database connection parameters.
type ConnectionConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Connector is the query-execution port to one target server. Catalog
// methods read information_schema; Admin and Exec run maintenance
// statements and record their timings.
type Connector interface {
	// Connection management
	Connect(cfg ConnectionConfig) error
	Disconnect() error
	Ping(ctx context.Context) error
	DB() *sqlx.DB

	// Server facts
	ServerVersion(ctx context.Context) (string, error)
	GlobalVariables(ctx context.Context, names []string) (map[string]string, error)
	Privileges(ctx context.Context) ([]string, error)

	// Catalog
	TableStatuses(ctx context.Context, schema string, tables []string) ([]model.TableStatus, error)
	TableStatus(ctx context.Context, schema, table string) (*model.TableStatus, error)
	SchemaColumns(ctx context.Context, schema string) ([]model.ColumnRef, error)
	Columns(ctx context.Context, schema, table string) ([]model.Column, error)
	IndexedColumns(ctx context.Context, schema, table string) ([]string, error)
	FulltextIndexes(ctx context.Context, schema, table string) ([]model.Index, error)
	AutoHistogramColumns(ctx context.Context, schema, table string) ([]string, error)
	PersistentTableStats(ctx context.Context, schema string) ([]model.PersistentStats, error)

	// Statements
	CountRows(ctx context.Context, schema, table string) (int64, error)
	Checksum(ctx context.Context, schema, table string) (*int64, error)
	Admin(ctx context.Context, stmt string) ([]model.AdminMessage, error)
	Exec(ctx context.Context, stmt string) error

	// Advisory locking
	Lock(ctx context.Context, name string, timeout time.Duration) (bool, error)
	Unlock(ctx context.Context, name string) error

	// Metadata
	Timings() []model.Timing
	ResetTimings()
	DriverName() string
}

// SanitizeDSN normalizes a MySQL DSN so that go-sql-driver/mysql can parse
// it. Drivers other than mysql and mariadb are returned unchanged.
func SanitizeDSN(driver, dsn string) string {
	switch driver {
	case "mysql", "mariadb":
		return sanitizeMySQLDSN(dsn)
	default:
		return dsn
	}
}

// mysqlBareHostPort matches "user:pass@host:port/db" (no tcp() wrapper, no ()
// wrapper). We look for the last "@" followed by what looks like host:port/db.
var mysqlBareHostPort = regexp.MustCompile(`^(.+)@([^(@]+:\d+)(/.*)?$`)

// sanitizeMySQLDSN normalizes a MySQL DSN. The driver requires the format:
//
//	user:pass@tcp(host:port)/dbname
//
// Common mistakes from users:
//
//	user:pass@host:port/db          → missing tcp() wrapper
//	user:pass@(host:port)/db        → missing "tcp" before parens
//	user:pass@tcp(host:port)/db     → already correct
//
// parseTime is forced on because tracking dates are compared as time.Time.
func sanitizeMySQLDSN(dsn string) string {
	if cfg, err := mysqldriver.ParseDSN(dsn); err == nil && (cfg.Net == "tcp" || cfg.Net == "unix") {
		return withParseTime(cfg)
	}

	// Pattern: user:pass@(host:port)/db, missing the "tcp" keyword.
	if idx := strings.LastIndex(dsn, "@("); idx >= 0 {
		fixed := dsn[:idx] + "@tcp" + dsn[idx+1:]
		if cfg, err := mysqldriver.ParseDSN(fixed); err == nil {
			return withParseTime(cfg)
		}
	}

	// Pattern: user:pass@host:port/db, no parens at all.
	if m := mysqlBareHostPort.FindStringSubmatch(dsn); m != nil {
		fixed := m[1] + "@tcp(" + m[2] + ")" + m[3]
		if cfg, err := mysqldriver.ParseDSN(fixed); err == nil {
			return withParseTime(cfg)
		}
	}

	// Nothing worked; let the connect call give a clear error.
	return dsn
}

func withParseTime(cfg *mysqldriver.Config) string {
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// RedactDSN hides the password of a MySQL DSN for logging.
func RedactDSN(dsn string) string {
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return "<unparseable dsn>"
	}
	if cfg.Passwd != "" {
		cfg.Passwd = "xxxxx"
	}
	return cfg.FormatDSN()
}
