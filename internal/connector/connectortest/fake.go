// Package connectortest provides an in-memory connector.Connector for tests.
package connectortest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/faucetdb/tablekeeper/internal/connector"
	"github.com/faucetdb/tablekeeper/internal/model"
)

// Fake is a scripted Connector. Catalog maps are keyed by schema, or by
// "schema.table" for per-table data. Errors keyed by method name make that
// method fail. Every executed statement is appended to Executed.
type Fake struct {
	mu sync.Mutex

	Version   string
	Variables map[string]string
	Grants    []string

	Tables        map[string][]model.TableStatus
	SchemaCols    map[string][]model.ColumnRef
	Cols          map[string][]model.Column
	Indexed       map[string][]string
	Fulltext      map[string][]model.Index
	AutoHistogram map[string][]string
	Stats         map[string][]model.PersistentStats
	RowCounts     map[string]int64
	Checksums     map[string]int64

	// AdminResults scripts the result rows of a statement. Statements not
	// listed return a single OK row.
	AdminResults map[string][]model.AdminMessage
	// StatementErrors makes the statement fail outright.
	StatementErrors map[string]error
	// Errors makes the named method fail.
	Errors map[string]error

	Executed []string
	Counted  []string
	Summed   []string
	Locks    map[string]bool

	Config       connector.ConnectionConfig
	Connected    bool
	Disconnected bool

	timings connector.TimingLog
}

// New returns a Fake reporting the given server version.
func New(version string) *Fake {
	return &Fake{
		Version:         version,
		Variables:       map[string]string{},
		Tables:          map[string][]model.TableStatus{},
		SchemaCols:      map[string][]model.ColumnRef{},
		Cols:            map[string][]model.Column{},
		Indexed:         map[string][]string{},
		Fulltext:        map[string][]model.Index{},
		AutoHistogram:   map[string][]string{},
		Stats:           map[string][]model.PersistentStats{},
		RowCounts:       map[string]int64{},
		Checksums:       map[string]int64{},
		AdminResults:    map[string][]model.AdminMessage{},
		StatementErrors: map[string]error{},
		Errors:          map[string]error{},
		Locks:           map[string]bool{},
	}
}

// Key builds the per-table map key.
func Key(schema, table string) string { return schema + "." + table }

// AddTable registers a live table.
func (f *Fake) AddTable(st model.TableStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Tables[st.Schema] = append(f.Tables[st.Schema], st)
}

// Statements returns a copy of the executed statements.
func (f *Fake) Statements() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Executed...)
}

func (f *Fake) fail(method string) error {
	if err, ok := f.Errors[method]; ok {
		return err
	}
	return nil
}

func (f *Fake) Connect(cfg connector.ConnectionConfig) error {
	if cfg.DSN == "fail" {
		return errors.New("fake connect failure")
	}
	f.Config = cfg
	f.Connected = true
	return nil
}

func (f *Fake) Disconnect() error {
	f.Connected = false
	f.Disconnected = true
	return nil
}

func (f *Fake) Ping(_ context.Context) error { return f.fail("Ping") }
func (f *Fake) DB() *sqlx.DB                 { return nil }
func (f *Fake) DriverName() string           { return "fake" }
func (f *Fake) Timings() []model.Timing      { return f.timings.Entries() }
func (f *Fake) ResetTimings()                { f.timings.Reset() }

func (f *Fake) ServerVersion(_ context.Context) (string, error) {
	if err := f.fail("ServerVersion"); err != nil {
		return "", err
	}
	return f.Version, nil
}

func (f *Fake) GlobalVariables(_ context.Context, names []string) (map[string]string, error) {
	if err := f.fail("GlobalVariables"); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, n := range names {
		if v, ok := f.Variables[n]; ok {
			out[n] = v
		}
	}
	return out, nil
}

func (f *Fake) Privileges(_ context.Context) ([]string, error) {
	if err := f.fail("Privileges"); err != nil {
		return nil, err
	}
	return f.Grants, nil
}

func (f *Fake) TableStatuses(_ context.Context, schema string, tables []string) ([]model.TableStatus, error) {
	if err := f.fail("TableStatuses"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[string]bool, len(tables))
	for _, t := range tables {
		want[t] = true
	}
	var out []model.TableStatus
	for _, st := range f.Tables[schema] {
		if len(want) == 0 || want[st.Table] {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Table < out[j].Table })
	return out, nil
}

func (f *Fake) TableStatus(ctx context.Context, schema, table string) (*model.TableStatus, error) {
	list, err := f.TableStatuses(ctx, schema, []string{table})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%s: %w", Key(schema, table), connector.ErrTableNotFound)
	}
	return &list[0], nil
}

func (f *Fake) SchemaColumns(_ context.Context, schema string) ([]model.ColumnRef, error) {
	if err := f.fail("SchemaColumns"); err != nil {
		return nil, err
	}
	if refs, ok := f.SchemaCols[schema]; ok {
		return refs, nil
	}
	var out []model.ColumnRef
	for key, cols := range f.Cols {
		if !strings.HasPrefix(key, schema+".") {
			continue
		}
		for _, c := range cols {
			out = append(out, model.ColumnRef{Table: strings.TrimPrefix(key, schema+"."), Column: c.Name})
		}
	}
	return out, nil
}

func (f *Fake) Columns(_ context.Context, schema, table string) ([]model.Column, error) {
	if err := f.fail("Columns"); err != nil {
		return nil, err
	}
	return f.Cols[Key(schema, table)], nil
}

func (f *Fake) IndexedColumns(_ context.Context, schema, table string) ([]string, error) {
	if err := f.fail("IndexedColumns"); err != nil {
		return nil, err
	}
	return f.Indexed[Key(schema, table)], nil
}

func (f *Fake) FulltextIndexes(_ context.Context, schema, table string) ([]model.Index, error) {
	if err := f.fail("FulltextIndexes"); err != nil {
		return nil, err
	}
	return f.Fulltext[Key(schema, table)], nil
}

func (f *Fake) AutoHistogramColumns(_ context.Context, schema, table string) ([]string, error) {
	if err := f.fail("AutoHistogramColumns"); err != nil {
		return nil, err
	}
	return f.AutoHistogram[Key(schema, table)], nil
}

func (f *Fake) PersistentTableStats(_ context.Context, schema string) ([]model.PersistentStats, error) {
	if err := f.fail("PersistentTableStats"); err != nil {
		return nil, err
	}
	return f.Stats[schema], nil
}

func (f *Fake) CountRows(_ context.Context, schema, table string) (int64, error) {
	if err := f.fail("CountRows"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Counted = append(f.Counted, Key(schema, table))
	return f.RowCounts[Key(schema, table)], nil
}

func (f *Fake) Checksum(_ context.Context, schema, table string) (*int64, error) {
	if err := f.fail("Checksum"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Summed = append(f.Summed, Key(schema, table))
	v, ok := f.Checksums[Key(schema, table)]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (f *Fake) Admin(_ context.Context, stmt string) ([]model.AdminMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	started := time.Now()
	f.Executed = append(f.Executed, stmt)
	defer f.timings.Record(stmt, started)
	if err, ok := f.StatementErrors[stmt]; ok {
		return nil, err
	}
	if rows, ok := f.AdminResults[stmt]; ok {
		return rows, nil
	}
	return []model.AdminMessage{{Op: "status", MsgType: "status", MsgText: "OK"}}, nil
}

func (f *Fake) Exec(_ context.Context, stmt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	started := time.Now()
	f.Executed = append(f.Executed, stmt)
	defer f.timings.Record(stmt, started)
	return f.StatementErrors[stmt]
}

func (f *Fake) Lock(_ context.Context, name string, _ time.Duration) (bool, error) {
	if err := f.fail("Lock"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Locks[name] {
		return false, nil
	}
	f.Locks[name] = true
	return true, nil
}

func (f *Fake) Unlock(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Locks, name)
	return nil
}

var _ connector.Connector = (*Fake)(nil)
