package diagnostics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faucetdb/tablekeeper/internal/connector/connectortest"
	"github.com/faucetdb/tablekeeper/internal/model"
	"github.com/faucetdb/tablekeeper/internal/tracking"
)

func int64p(v int64) *int64 { return &v }

type harness struct {
	fake  *connectortest.Fake
	store *tracking.Store
	now   time.Time
	r     *Refresher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := tracking.NewStore("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := &harness{
		fake:  connectortest.New("8.0.36"),
		store: store,
		now:   time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC),
	}
	h.r = NewRefresher(h.fake, store, nil, func() time.Time { return h.now })
	return h
}

func (h *harness) addTable(name string, engine model.Engine, rows, data int64) {
	h.fake.AddTable(model.TableStatus{
		Schema:     "shop",
		Table:      name,
		Engine:     engine,
		RowFormat:  "Dynamic",
		Rows:       int64p(rows),
		DataLength: data,
	})
}

func TestRefreshTracksLiveTables(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addTable("orders", model.EngineInnoDB, 10, 100)
	h.addTable("items", model.EngineMyISAM, 20, 50)

	report := h.r.Refresh(ctx, "shop", nil)
	require.True(t, report.OK(), "%+v", report)
	assert.Len(t, report.Steps, 5)

	recs, err := h.store.Tables(ctx, "shop", nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "items", recs[0].Table)

	// Drop a table and one of its override columns.
	require.NoError(t, h.store.AddIncludeColumn(ctx, "shop", "orders", "status"))
	require.NoError(t, h.store.AddExcludeColumn(ctx, "shop", "items", "legacy"))
	h.fake.Tables["shop"] = h.fake.Tables["shop"][1:]
	h.fake.SchemaCols["shop"] = []model.ColumnRef{{Table: "items", Column: "sku"}}

	report = h.r.Refresh(ctx, "shop", nil)
	require.True(t, report.OK(), "%+v", report)

	_, err = h.store.Table(ctx, "shop", "orders")
	assert.ErrorIs(t, err, tracking.ErrNotFound)
	excl, err := h.store.ExcludeColumns(ctx, "shop", "items")
	require.NoError(t, err)
	assert.Empty(t, excl)
}

func TestExactRowCountRunsOncePerDay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addTable("big", model.EngineInnoDB, 1000, 900)
	h.addTable("small", model.EngineInnoDB, 10, 100)
	h.addTable("plain", model.EngineInnoDB, 10, 100)
	h.fake.RowCounts[connectortest.Key("shop", "big")] = 1234
	h.fake.RowCounts[connectortest.Key("shop", "small")] = 11

	h.r.Refresh(ctx, "shop", nil)
	_, err := h.store.SetTableFineTune(ctx, "exact_rows", true, "shop", []string{"big", "small"})
	require.NoError(t, err)

	report := h.r.Refresh(ctx, "shop", nil)
	step, ok := report.Step(StepExactRows)
	require.True(t, ok)
	assert.Equal(t, 2, step.Tables)
	assert.Equal(t, []string{"shop.small", "shop.big"}, h.fake.Counted, "smallest data length first")

	rec, err := h.store.Table(ctx, "shop", "big")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), rec.RowsCurrent)

	h.now = h.now.Add(3 * time.Hour)
	h.r.Refresh(ctx, "shop", nil)
	assert.Len(t, h.fake.Counted, 2, "no second count on the same day")
	rec, err = h.store.Table(ctx, "shop", "big")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), rec.RowsCurrent, "estimate must not replace today's exact count")

	h.now = h.now.Add(24 * time.Hour)
	h.r.Refresh(ctx, "shop", nil)
	assert.Len(t, h.fake.Counted, 4)
}

func TestExactRowCountFailureIsRecoverable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addTable("t", model.EngineInnoDB, 5, 5)
	h.r.Refresh(ctx, "shop", nil)
	_, err := h.store.SetTableFineTune(ctx, "exact_rows", true, "shop", nil)
	require.NoError(t, err)

	h.fake.Errors["CountRows"] = errors.New("lock wait timeout")
	report := h.r.Refresh(ctx, "shop", nil)

	step, _ := report.Step(StepExactRows)
	assert.Equal(t, model.SeverityRecoverable, step.Outcome.Severity)
	checksums, _ := report.Step(StepChecksums)
	assert.True(t, checksums.Outcome.OK(), "later steps still run")
}

func TestChecksumsReuseEngineValue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fake.AddTable(model.TableStatus{
		Schema: "shop", Table: "live", Engine: model.EngineMyISAM, Rows: int64p(3), Checksum: int64p(777),
	})
	h.addTable("computed", model.EngineInnoDB, 2, 10)
	h.addTable("empty", model.EngineInnoDB, 0, 10)
	h.fake.Checksums[connectortest.Key("shop", "computed")] = 555

	h.r.Refresh(ctx, "shop", nil)
	_, err := h.store.SetTableFineTune(ctx, "use_checksum", true, "shop", nil)
	require.NoError(t, err)
	h.r.Refresh(ctx, "shop", nil)

	assert.Equal(t, []string{"shop.computed"}, h.fake.Summed)

	live, err := h.store.Table(ctx, "shop", "live")
	require.NoError(t, err)
	require.NotNil(t, live.ChecksumCurrent)
	assert.Equal(t, int64(777), *live.ChecksumCurrent)

	computed, err := h.store.Table(ctx, "shop", "computed")
	require.NoError(t, err)
	require.NotNil(t, computed.ChecksumCurrent)
	assert.Equal(t, int64(555), *computed.ChecksumCurrent)

	empty, err := h.store.Table(ctx, "shop", "empty")
	require.NoError(t, err)
	assert.Nil(t, empty.ChecksumCurrent, "tables without rows are not checksummed")
}

func TestStepFailuresDoNotAbortRefresh(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addTable("t", model.EngineInnoDB, 5, 5)
	h.fake.Errors["PersistentTableStats"] = errors.New("SELECT command denied")
	h.fake.Errors["SchemaColumns"] = errors.New("boom")

	report := h.r.Refresh(ctx, "shop", nil)
	assert.False(t, report.OK())

	stats, _ := report.Step(StepPersistentStats)
	assert.Equal(t, model.SeverityIgnored, stats.Outcome.Severity)
	reconcile, _ := report.Step(StepReconcile)
	assert.Equal(t, model.SeverityRecoverable, reconcile.Outcome.Severity)
	upsert, _ := report.Step(StepUpsert)
	assert.True(t, upsert.Outcome.OK())

	_, err := h.store.Table(ctx, "shop", "t")
	assert.NoError(t, err)
}
