// Package diagnostics refreshes the tracking store from the live catalog of
// a schema before suggestions are computed.
package diagnostics

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/faucetdb/tablekeeper/internal/connector"
	"github.com/faucetdb/tablekeeper/internal/model"
	"github.com/faucetdb/tablekeeper/internal/tracking"
)

// Refresh steps, in execution order.
const (
	StepReconcile       = "reconcile"
	StepUpsert          = "upsert"
	StepPersistentStats = "persistent_stats"
	StepExactRows       = "exact_rows"
	StepChecksums       = "checksums"
)

// StepResult is the outcome of one refresh step. Errors lists per-table
// failures of steps that continue past them.
type StepResult struct {
	Step    string        `json:"step"`
	Outcome model.Outcome `json:"outcome"`
	Error   string        `json:"error,omitempty"`
	Tables  int           `json:"tables"`
}

// Report collects the step outcomes of one Refresh call.
type Report struct {
	Schema string       `json:"schema"`
	Steps  []StepResult `json:"steps"`
}

// OK reports whether every step succeeded.
func (r Report) OK() bool {
	for _, s := range r.Steps {
		if !s.Outcome.OK() {
			return false
		}
	}
	return true
}

// Step returns the result of the named step.
func (r Report) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Step == name {
			return s, true
		}
	}
	return StepResult{}, false
}

// Refresher brings tracking rows in line with information_schema.
type Refresher struct {
	conn   connector.Connector
	store  *tracking.Store
	logger *slog.Logger
	clock  func() time.Time
}

// NewRefresher returns a Refresher. A nil clock means time.Now.
func NewRefresher(conn connector.Connector, store *tracking.Store, logger *slog.Logger, clock func() time.Time) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Refresher{
		conn:   conn,
		store:  store,
		logger: logger.With("component", "diagnostics"),
		clock:  clock,
	}
}

// Refresh runs every step against schema, restricted to tables when given.
// A failing step is logged and recorded; later steps still run.
func (r *Refresher) Refresh(ctx context.Context, schema string, tables []string) Report {
	report := Report{Schema: schema}
	now := r.clock()

	record := func(step string, n int, sev model.Severity, err error) {
		res := StepResult{Step: step, Tables: n}
		if err != nil {
			res.Outcome = model.Outcome{Severity: sev, Err: err}
			res.Error = err.Error()
			level := slog.LevelWarn
			if sev == model.SeverityIgnored {
				level = slog.LevelDebug
			}
			r.logger.Log(ctx, level, "refresh step failed", "step", step, "schema", schema, "error", err)
		}
		report.Steps = append(report.Steps, res)
	}

	n, err := r.reconcile(ctx, schema)
	record(StepReconcile, n, model.SeverityRecoverable, err)

	statuses, err := r.upsert(ctx, schema, tables, now)
	record(StepUpsert, len(statuses), model.SeverityRecoverable, err)

	n, err = r.persistentStats(ctx, schema)
	record(StepPersistentStats, n, model.SeverityIgnored, err)

	n, err = r.exactRows(ctx, schema, tables, now)
	record(StepExactRows, n, model.SeverityRecoverable, err)

	engineChecksums := make(map[string]int64, len(statuses))
	for _, st := range statuses {
		if st.Checksum != nil {
			engineChecksums[st.Table] = *st.Checksum
		}
	}
	n, err = r.checksums(ctx, schema, tables, engineChecksums, now)
	record(StepChecksums, n, model.SeverityIgnored, err)

	return report
}

// reconcile drops tracking and column-override rows of tables and columns
// that no longer exist.
func (r *Refresher) reconcile(ctx context.Context, schema string) (int, error) {
	live, err := r.conn.TableStatuses(ctx, schema, nil)
	if err != nil {
		return 0, err
	}
	names := make([]string, len(live))
	for i, st := range live {
		names[i] = st.Table
	}
	dropped, err := r.store.DeleteMissingTables(ctx, schema, names)
	if err != nil {
		return 0, err
	}

	cols, err := r.conn.SchemaColumns(ctx, schema)
	if err != nil {
		return int(dropped), err
	}
	gone, err := r.store.DeleteMissingColumns(ctx, schema, cols)
	if err != nil {
		return int(dropped), err
	}
	if dropped > 0 || gone > 0 {
		r.logger.Info("dropped stale tracking rows", "schema", schema, "tables", dropped, "columns", gone)
	}
	return int(dropped), nil
}

func (r *Refresher) upsert(ctx context.Context, schema string, tables []string, now time.Time) ([]model.TableStatus, error) {
	statuses, err := r.conn.TableStatuses(ctx, schema, tables)
	if err != nil {
		return nil, err
	}
	if err := r.store.UpsertObserved(ctx, statuses, now); err != nil {
		return statuses, err
	}
	return statuses, nil
}

func (r *Refresher) persistentStats(ctx context.Context, schema string) (int, error) {
	stats, err := r.conn.PersistentTableStats(ctx, schema)
	if err != nil {
		return 0, err
	}
	return r.store.ApplyPersistentStats(ctx, schema, stats)
}

// exactRows replaces estimated row counts with SELECT COUNT(*) at most once
// a day per table, smallest tables first. A failing table does not stop the
// others; the first error is returned.
func (r *Refresher) exactRows(ctx context.Context, schema string, tables []string, now time.Time) (int, error) {
	recs, err := r.store.Tables(ctx, schema, tables)
	if err != nil {
		return 0, err
	}

	var due []model.TableRecord
	for _, rec := range recs {
		if rec.OnlyIfChanged && rec.ExactRows && rec.ThresholdRowsDelta > 0 && !model.SameDay(rec.RowsDate, now) {
			due = append(due, rec)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].DataLengthCurrent < due[j].DataLengthCurrent })

	var firstErr error
	counted := 0
	for _, rec := range due {
		if err := ctx.Err(); err != nil {
			return counted, err
		}
		rows, err := r.conn.CountRows(ctx, schema, rec.Table)
		if err == nil {
			err = r.store.SetExactRows(ctx, schema, rec.Table, rows, now)
		}
		if err != nil {
			r.logger.Warn("exact row count failed", "step", StepExactRows, "schema", schema, "table", rec.Table, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		counted++
	}
	return counted, firstErr
}

// checksums stores a table checksum at most once a day per table, reusing
// the engine-maintained value when the catalog reported one.
func (r *Refresher) checksums(ctx context.Context, schema string, tables []string, engine map[string]int64, now time.Time) (int, error) {
	recs, err := r.store.Tables(ctx, schema, tables)
	if err != nil {
		return 0, err
	}

	var due []model.TableRecord
	for _, rec := range recs {
		if rec.OnlyIfChanged && rec.UseChecksum && rec.RowsCurrent > 0 && !model.SameDay(rec.ChecksumDate, now) {
			due = append(due, rec)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].RowsCurrent < due[j].RowsCurrent })

	var firstErr error
	stored := 0
	for _, rec := range due {
		if err := ctx.Err(); err != nil {
			return stored, err
		}
		var sum *int64
		if v, ok := engine[rec.Table]; ok {
			sum = &v
		} else {
			sum, err = r.conn.Checksum(ctx, schema, rec.Table)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
		}
		if sum == nil {
			continue
		}
		if err := r.store.SetChecksum(ctx, schema, rec.Table, *sum, now); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		stored++
	}
	return stored, firstErr
}
