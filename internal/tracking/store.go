// Package tracking persists per-table maintenance state, global settings and
// the histogram column overrides. The store runs on a local SQLite file by
// default, or in a schema on a MySQL server.
package tracking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/faucetdb/tablekeeper/internal/connector"
	"github.com/faucetdb/tablekeeper/internal/ident"
)

// ErrNotFound is returned when a requested row does not exist in the store.
var ErrNotFound = errors.New("not found")

// Dialect selects the SQL flavour of the tracking database.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

// DefaultPrefix is prepended to every tracking table name.
const DefaultPrefix = "maintainer__"

// Options configures Open.
type Options struct {
	Dialect Dialect
	// DataDir holds tablekeeper.db for the sqlite dialect. Empty means an
	// in-memory database.
	DataDir string
	// DSN is the MySQL DSN for the mysql dialect.
	DSN    string
	Prefix string
}

// Store manages tablekeeper's tracking state.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
	prefix  string
}

// NewStore opens a sqlite store. Pass empty string for in-memory.
func NewStore(dataDir string) (*Store, error) {
	return Open(Options{Dialect: DialectSQLite, DataDir: dataDir, Prefix: DefaultPrefix})
}

// Open connects to the tracking database and applies migrations.
func Open(opts Options) (*Store, error) {
	if opts.Dialect == "" {
		opts.Dialect = DialectSQLite
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if err := ident.ValidatePrefix(opts.Prefix); err != nil {
		return nil, err
	}

	var (
		db  *sqlx.DB
		err error
	)
	switch opts.Dialect {
	case DialectSQLite:
		var dsn string
		if opts.DataDir == "" {
			dsn = ":memory:?_journal_mode=WAL"
		} else {
			if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
			dsn = filepath.Join(opts.DataDir, "tablekeeper.db") + "?_journal_mode=WAL&_busy_timeout=5000"
		}
		db, err = sqlx.Connect("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open tracking database: %w", err)
		}
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
	case DialectMySQL:
		if opts.DSN == "" {
			return nil, errors.New("tracking: mysql dialect requires a dsn")
		}
		db, err = sqlx.Connect("mysql", connector.SanitizeDSN("mysql", opts.DSN))
		if err != nil {
			return nil, fmt.Errorf("open tracking database: %w", err)
		}
	default:
		return nil, fmt.Errorf("tracking: unsupported dialect %q", opts.Dialect)
	}

	s := &Store{db: db, dialect: opts.Dialect, prefix: opts.Prefix}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracking database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dialect reports the SQL flavour of the store.
func (s *Store) Dialect() Dialect { return s.dialect }

// Prefix reports the table-name prefix.
func (s *Store) Prefix() string { return s.prefix }

// table returns the quoted name of a tracking table.
func (s *Store) table(name string) string {
	return ident.Quote(s.prefix + name)
}

// insertIgnore is the dialect's INSERT that skips duplicate keys.
func (s *Store) insertIgnore() string {
	if s.dialect == DialectMySQL {
		return "INSERT IGNORE INTO"
	}
	return "INSERT OR IGNORE INTO"
}

// in expands a query with slice arguments and rebinds it for the driver.
func (s *Store) in(query string, args ...interface{}) (string, []interface{}, error) {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return s.db.Rebind(q), a, nil
}

// tableFilter renders the `schema` = ? [AND `table` IN (?)] predicate.
func tableFilter(schema string, tables []string) (string, []interface{}) {
	if len(tables) == 0 {
		return "`schema` = ?", []interface{}{schema}
	}
	return "`schema` = ? AND `table` IN (?)", []interface{}{schema, tables}
}

func notFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isDuplicateColumn(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column")
}
