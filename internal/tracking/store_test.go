package tracking

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/faucetdb/tablekeeper/internal/model"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore("") // in-memory
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func int64p(v int64) *int64 { return &v }

func timep(t time.Time) *time.Time { return &t }

func status(table string, engine model.Engine, data, index, free int64) model.TableStatus {
	return model.TableStatus{
		Schema:      "app",
		Table:       table,
		Engine:      engine,
		RowFormat:   "Dynamic",
		Rows:        int64p(100),
		DataLength:  data,
		IndexLength: index,
		DataFree:    free,
		CreateTime:  timep(testNow.Add(-48 * time.Hour)),
	}
}

func seed(t *testing.T, s *Store, statuses ...model.TableStatus) {
	t.Helper()
	if err := s.UpsertObserved(context.Background(), statuses, testNow); err != nil {
		t.Fatalf("UpsertObserved: %v", err)
	}
}

func mustTable(t *testing.T, s *Store, table string) *model.TableRecord {
	t.Helper()
	rec, err := s.Table(context.Background(), "app", table)
	if err != nil {
		t.Fatalf("Table(%s): %v", table, err)
	}
	return rec
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	v, err := s.Version(ctx)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v != SchemaVersion {
		t.Errorf("version = %q, want %q", v, SchemaVersion)
	}

	entries, err := s.ListSettings(ctx)
	if err != nil {
		t.Fatalf("ListSettings: %v", err)
	}
	if len(entries) != len(settingRows) {
		t.Errorf("got %d settings, want %d", len(entries), len(settingRows))
	}
}

func TestOpenRejectsBadPrefix(t *testing.T) {
	_, err := Open(Options{Prefix: "bad prefix;"})
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestUpsertObservedAppliesDefaults(t *testing.T) {
	s := newTestStore(t)
	st := status("users", model.EngineInnoDB, 1000, 200, 50)
	st.UpdateTime = timep(testNow.Add(-time.Hour))
	seed(t, s, st)

	rec := mustTable(t, s, "users")
	if rec.Engine != model.EngineInnoDB {
		t.Errorf("engine = %q", rec.Engine)
	}
	if rec.RowsCurrent != 100 {
		t.Errorf("rows_current = %d, want 100", rec.RowsCurrent)
	}
	if !rec.OnlyIfChanged || !rec.CheckSuggest || rec.CheckAutoRun || !rec.AnalyzeAutoRun {
		t.Errorf("default policy not applied: %+v", rec)
	}
	if rec.ThresholdRowsDelta != model.DefaultThresholdRowsDelta {
		t.Errorf("threshold_rows_delta = %d", rec.ThresholdRowsDelta)
	}
	if !rec.ThresholdFragmentation.Equal(model.DefaultThresholdFragmentation) {
		t.Errorf("threshold_fragmentation = %s", rec.ThresholdFragmentation)
	}
	if rec.UpdateTime == nil || !rec.UpdateTime.Equal(*st.UpdateTime) {
		t.Errorf("update_time = %v, want %v", rec.UpdateTime, st.UpdateTime)
	}
}

func TestUpsertObservedKeepsPolicy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, status("orders", model.EngineInnoDB, 1000, 0, 0))

	if _, err := s.SetAutoRun(ctx, model.ActionCheck, true, "app", []string{"orders"}); err != nil {
		t.Fatalf("SetAutoRun: %v", err)
	}

	st := status("orders", model.EngineInnoDB, 5000, 10, 0)
	st.Rows = int64p(900)
	seed(t, s, st)

	rec := mustTable(t, s, "orders")
	if !rec.CheckAutoRun {
		t.Error("check_auto_run was reset by refresh")
	}
	if rec.DataLengthCurrent != 5000 || rec.RowsCurrent != 900 {
		t.Errorf("observed state not refreshed: data=%d rows=%d", rec.DataLengthCurrent, rec.RowsCurrent)
	}
}

func TestUpsertObservedCheckDateNeverMovesBack(t *testing.T) {
	s := newTestStore(t)
	later := testNow.Add(-time.Hour)
	earlier := testNow.Add(-72 * time.Hour)

	st := status("logs", model.EngineMyISAM, 10, 0, 0)
	st.CheckTime = timep(later)
	seed(t, s, st)

	st.CheckTime = timep(earlier)
	seed(t, s, st)
	if rec := mustTable(t, s, "logs"); rec.CheckDate == nil || !rec.CheckDate.Equal(later) {
		t.Errorf("check_date = %v, want %v", rec.CheckDate, later)
	}

	st.CheckTime = nil
	seed(t, s, st)
	if rec := mustTable(t, s, "logs"); rec.CheckDate == nil {
		t.Error("check_date cleared by a NULL catalog value")
	}
}

func TestUpsertObservedKeepsExactCountOfToday(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, status("big", model.EngineInnoDB, 10, 0, 0))

	if _, err := s.SetTableFineTune(ctx, "exact_rows", true, "app", []string{"big"}); err != nil {
		t.Fatalf("SetTableFineTune: %v", err)
	}
	if err := s.SetExactRows(ctx, "app", "big", 12345, testNow); err != nil {
		t.Fatalf("SetExactRows: %v", err)
	}

	seed(t, s, status("big", model.EngineInnoDB, 10, 0, 0))
	if rec := mustTable(t, s, "big"); rec.RowsCurrent != 12345 {
		t.Errorf("rows_current = %d, want exact count 12345", rec.RowsCurrent)
	}

	if err := s.UpsertObserved(ctx, []model.TableStatus{status("big", model.EngineInnoDB, 10, 0, 0)}, testNow.Add(24*time.Hour)); err != nil {
		t.Fatalf("UpsertObserved: %v", err)
	}
	if rec := mustTable(t, s, "big"); rec.RowsCurrent != 100 {
		t.Errorf("rows_current = %d, want estimate 100 on a later day", rec.RowsCurrent)
	}
}

func TestSetExactRowsUnknownTable(t *testing.T) {
	s := newTestStore(t)
	err := s.SetExactRows(context.Background(), "app", "ghost", 1, testNow)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteMissingTables(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s,
		status("a", model.EngineInnoDB, 1, 0, 0),
		status("b", model.EngineInnoDB, 1, 0, 0),
		status("c", model.EngineInnoDB, 1, 0, 0),
	)
	if err := s.AddIncludeColumn(ctx, "app", "c", "email"); err != nil {
		t.Fatalf("AddIncludeColumn: %v", err)
	}

	n, err := s.DeleteMissingTables(ctx, "app", []string{"a", "b"})
	if err != nil {
		t.Fatalf("DeleteMissingTables: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}
	if _, err := s.Table(ctx, "app", "c"); !errors.Is(err, ErrNotFound) {
		t.Errorf("table c still tracked: %v", err)
	}
	cols, err := s.IncludeColumns(ctx, "app", "c")
	if err != nil {
		t.Fatalf("IncludeColumns: %v", err)
	}
	if len(cols) != 0 {
		t.Errorf("include columns of a dropped table survived: %v", cols)
	}

	n, err = s.DeleteMissingTables(ctx, "app", nil)
	if err != nil {
		t.Fatalf("DeleteMissingTables(empty): %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2 when the schema is empty", n)
	}
}

func TestDeleteMissingColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.AddIncludeColumn(ctx, "app", "users", "email", "name"); err != nil {
		t.Fatalf("AddIncludeColumn: %v", err)
	}
	if err := s.AddExcludeColumn(ctx, "app", "users", "bio"); err != nil {
		t.Fatalf("AddExcludeColumn: %v", err)
	}

	live := []model.ColumnRef{{Table: "users", Column: "email"}}
	n, err := s.DeleteMissingColumns(ctx, "app", live)
	if err != nil {
		t.Fatalf("DeleteMissingColumns: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}
	inc, _ := s.IncludeColumns(ctx, "app", "users")
	if len(inc) != 1 || inc[0] != "email" {
		t.Errorf("include = %v, want [email]", inc)
	}
}

func TestIncludeExcludeColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddExcludeColumn(ctx, "app", "users", "b", "a", "a"); err != nil {
		t.Fatalf("AddExcludeColumn: %v", err)
	}
	got, err := s.ExcludeColumns(ctx, "app", "users")
	if err != nil {
		t.Fatalf("ExcludeColumns: %v", err)
	}
	if strings.Join(got, ",") != "a,b" {
		t.Errorf("exclude = %v, want [a b]", got)
	}

	if err := s.RemoveExcludeColumn(ctx, "app", "users", "a"); err != nil {
		t.Fatalf("RemoveExcludeColumn: %v", err)
	}
	got, _ = s.ExcludeColumns(ctx, "app", "users")
	if strings.Join(got, ",") != "b" {
		t.Errorf("exclude = %v, want [b]", got)
	}

	if err := s.AddIncludeColumn(ctx, "app", "users", "bad name"); !errors.Is(err, model.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
	if err := s.AddIncludeColumn(ctx, "mysql", "user", "host"); !errors.Is(err, model.ErrValidation) {
		t.Errorf("system schema accepted: %v", err)
	}
}

func TestApplyPersistentStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fresh := status("fresh", model.EngineInnoDB, 1, 0, 0)
	fresh.UpdateTime = timep(testNow)
	stale := status("stale", model.EngineInnoDB, 1, 0, 0)
	stale.UpdateTime = timep(testNow.Add(-10 * time.Hour))
	seed(t, s, fresh, stale)

	stats := []model.PersistentStats{
		{Table: "fresh", Rows: 7, LastUpdate: testNow.Add(-time.Hour)},
		{Table: "stale", Rows: 8, LastUpdate: testNow.Add(-time.Hour)},
		{Table: "unknown", Rows: 9, LastUpdate: testNow},
	}
	n, err := s.ApplyPersistentStats(ctx, "app", stats)
	if err != nil {
		t.Fatalf("ApplyPersistentStats: %v", err)
	}
	if n != 1 {
		t.Errorf("applied %d, want 1", n)
	}
	if rec := mustTable(t, s, "fresh"); rec.RowsCurrent != 100 {
		t.Errorf("fresh rows = %d, want untouched 100", rec.RowsCurrent)
	}
	if rec := mustTable(t, s, "stale"); rec.RowsCurrent != 8 {
		t.Errorf("stale rows = %d, want 8", rec.RowsCurrent)
	}
}

func TestSaveSuggestions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s,
		status("large", model.EngineInnoDB, 9000, 0, 0),
		status("small", model.EngineInnoDB, 10, 0, 0),
		status("idle", model.EngineInnoDB, 500, 0, 0),
	)

	u := SuggestionUpdate{
		Schema: "app",
		Flags: map[model.Action][]string{
			model.ActionOptimize: {"large"},
			model.ActionCheck:    {"small", "large"},
		},
		Evaluated: []string{"large", "small", "idle"},
		Fulltext:  &model.Fingerprints{InnoDB: "abc", MyISAM: "def"},
		At:        testNow,
	}
	if err := s.SaveSuggestions(ctx, u); err != nil {
		t.Fatalf("SaveSuggestions: %v", err)
	}

	got, err := s.Suggestions(ctx, "app", nil)
	if err != nil {
		t.Fatalf("Suggestions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d suggestions, want 2", len(got))
	}
	if got[0].Table != "small" || got[1].Table != "large" {
		t.Errorf("order = %s, %s; want small, large", got[0].Table, got[1].Table)
	}
	if !got[1].Optimize || !got[1].Check || got[0].Optimize {
		t.Errorf("flags not stored: %+v", got)
	}
	if got[1].TotalLength != 9000 {
		t.Errorf("total_length = %d", got[1].TotalLength)
	}

	for _, name := range []string{"large", "small", "idle"} {
		if rec := mustTable(t, s, name); rec.Analyzed == nil {
			t.Errorf("%s: analyzed not stamped", name)
		}
	}

	settings, err := s.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if settings.Fulltext.InnoDB != "abc" || settings.Fulltext.MyISAM != "def" {
		t.Errorf("fulltext baseline = %+v", settings.Fulltext)
	}
}

func TestTableMutatorsClamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, status("t1", model.EngineInnoDB, 1, 0, 0), status("t2", model.EngineInnoDB, 1, 0, 0))

	tests := []struct {
		name  string
		apply func() (int64, error)
		check func(*model.TableRecord) bool
	}{
		{
			name:  "fragmentation above 100 resets to default",
			apply: func() (int64, error) { return s.SetThresholdFragmentation(ctx, decimal.NewFromInt(150), "app", nil) },
			check: func(r *model.TableRecord) bool { return r.ThresholdFragmentation.Equal(decimal.NewFromInt(10)) },
		},
		{
			name:  "negative fragmentation becomes zero",
			apply: func() (int64, error) { return s.SetThresholdFragmentation(ctx, decimal.NewFromInt(-5), "app", nil) },
			check: func(r *model.TableRecord) bool { return r.ThresholdFragmentation.IsZero() },
		},
		{
			name:  "fragmentation keeps two decimals",
			apply: func() (int64, error) { return s.SetThresholdFragmentation(ctx, decimal.New(12345, -3), "app", nil) },
			check: func(r *model.TableRecord) bool { return r.ThresholdFragmentation.Equal(decimal.New(1235, -2)) },
		},
		{
			name:  "negative rows delta becomes zero",
			apply: func() (int64, error) { return s.SetThresholdRowsDelta(ctx, -3, "app", nil) },
			check: func(r *model.TableRecord) bool { return r.ThresholdRowsDelta == 0 },
		},
		{
			name:  "buckets capped at 1024",
			apply: func() (int64, error) { return s.SetBuckets(ctx, 5000, "app", nil) },
			check: func(r *model.TableRecord) bool { return r.AnalyzeHistogramBuckets == 1024 },
		},
		{
			name:  "buckets raised to 1",
			apply: func() (int64, error) { return s.SetBuckets(ctx, 0, "app", nil) },
			check: func(r *model.TableRecord) bool { return r.AnalyzeHistogramBuckets == 1 },
		},
		{
			name:  "days raised to 1",
			apply: func() (int64, error) { return s.SetDays(ctx, model.ActionOptimize, -2, "app", nil) },
			check: func(r *model.TableRecord) bool { return r.OptimizeDaysDelay == 1 },
		},
		{
			name:  "suggest off",
			apply: func() (int64, error) { return s.SetSuggest(ctx, model.ActionCompress, false, "app", nil) },
			check: func(r *model.TableRecord) bool { return !r.CompressSuggest },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := tt.apply()
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			if n != 2 {
				t.Errorf("affected %d rows, want 2", n)
			}
			for _, name := range []string{"t1", "t2"} {
				if rec := mustTable(t, s, name); !tt.check(rec) {
					t.Errorf("%s: unexpected record %+v", name, rec)
				}
			}
		})
	}
}

func TestTableMutatorsScopeToTables(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, status("t1", model.EngineInnoDB, 1, 0, 0), status("t2", model.EngineInnoDB, 1, 0, 0))

	n, err := s.SetAutoRun(ctx, model.ActionFulltextRebuild, true, "app", []string{"t2"})
	if err != nil {
		t.Fatalf("SetAutoRun: %v", err)
	}
	if n != 1 {
		t.Errorf("affected %d, want 1", n)
	}
	if mustTable(t, s, "t1").FulltextRebuildAutoRun {
		t.Error("t1 changed")
	}
	if !mustTable(t, s, "t2").FulltextRebuildAutoRun {
		t.Error("t2 not changed")
	}
}

func TestTableMutatorsRejectUnsupported(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() error
	}{
		{"suggest repair", func() error { _, err := s.SetSuggest(ctx, model.ActionRepair, true, "app", nil); return err }},
		{"auto run compress", func() error { _, err := s.SetAutoRun(ctx, model.ActionCompress, true, "app", nil); return err }},
		{"days fulltext", func() error { _, err := s.SetDays(ctx, model.ActionFulltextRebuild, 3, "app", nil); return err }},
		{"unknown option", func() error { _, err := s.SetTableFineTune(ctx, "turbo", true, "app", nil); return err }},
		{"bad table", func() error { _, err := s.SetBuckets(ctx, 3, "app", []string{"x;y"}); return err }},
		{"unknown global", func() error { return s.SetGlobalFineTune(ctx, "version", true) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, model.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestGlobalSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetGlobalFineTune(ctx, model.SettingUseFlush, true); err != nil {
		t.Fatalf("SetGlobalFineTune: %v", err)
	}
	target := model.MaintenanceTarget{
		Schema:        "app",
		Table:         "settings",
		SettingColumn: "name",
		SettingName:   "maintenance",
		ValueColumn:   "value",
	}
	if err := s.SetMaintenance(ctx, target); err != nil {
		t.Fatalf("SetMaintenance: %v", err)
	}

	got, err := s.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if !got.UseFlush || got.PreferExtended {
		t.Errorf("flags = %+v", got)
	}
	if got.Maintenance != target || !got.Maintenance.Configured() {
		t.Errorf("maintenance = %+v, want %+v", got.Maintenance, target)
	}

	if err := s.SetMaintenance(ctx, model.MaintenanceTarget{Schema: "app", Table: "drop table"}); !errors.Is(err, model.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}

	if err := s.SetMaintenance(ctx, model.MaintenanceTarget{}); err != nil {
		t.Fatalf("clear maintenance: %v", err)
	}
	got, _ = s.LoadSettings(ctx)
	if got.Maintenance.Configured() {
		t.Error("maintenance still configured after clearing")
	}
}

func TestApplyIntegration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, status("t", model.EngineInnoDB, 1000, 100, 400))
	ref := model.TableRef{Schema: "app", Table: "t"}

	if err := s.SetChecksum(ctx, "app", "t", 42, testNow); err != nil {
		t.Fatalf("SetChecksum: %v", err)
	}
	err := s.SaveSuggestions(ctx, SuggestionUpdate{
		Schema: "app",
		Flags:  map[model.Action][]string{model.ActionCheck: {"t"}, model.ActionOptimize: {"t"}},
		At:     testNow,
	})
	if err != nil {
		t.Fatalf("SaveSuggestions: %v", err)
	}

	if err := s.ApplyIntegration(ctx, model.Integration{Kind: model.IntegrateCheck, Target: ref}, testNow); err != nil {
		t.Fatalf("integrate check: %v", err)
	}
	rec := mustTable(t, s, "t")
	if rec.Check {
		t.Error("check flag not cleared")
	}
	if rec.CheckRows == nil || *rec.CheckRows != 100 {
		t.Errorf("check_rows = %v, want 100", rec.CheckRows)
	}
	if rec.CheckChecksum == nil || *rec.CheckChecksum != 42 {
		t.Errorf("check_checksum = %v, want 42", rec.CheckChecksum)
	}
	if !model.SameDay(rec.CheckDate, testNow) {
		t.Errorf("check_date = %v", rec.CheckDate)
	}

	if err := s.ApplyIntegration(ctx, model.Integration{Kind: model.IntegrateOptimizeBefore, Target: ref}, testNow); err != nil {
		t.Fatalf("integrate optimize before: %v", err)
	}
	after := model.Integration{
		Kind:   model.IntegrateOptimizeAfter,
		Target: ref,
		Sizes:  &model.Sizes{DataLength: 600, IndexLength: 90, DataFree: 0},
	}
	if err := s.ApplyIntegration(ctx, after, testNow); err != nil {
		t.Fatalf("integrate optimize after: %v", err)
	}
	rec = mustTable(t, s, "t")
	if rec.Optimize {
		t.Error("optimize flag not cleared")
	}
	if rec.DataLengthBefore == nil || *rec.DataLengthBefore != 1000 || *rec.DataFreeBefore != 400 {
		t.Errorf("before snapshot = %v/%v", rec.DataLengthBefore, rec.DataFreeBefore)
	}
	if rec.DataLengthAfter == nil || *rec.DataLengthAfter != 600 || rec.DataLengthCurrent != 600 || rec.DataFreeCurrent != 0 {
		t.Errorf("after snapshot = %v, current = %d", rec.DataLengthAfter, rec.DataLengthCurrent)
	}

	compress := model.Integration{Kind: model.IntegrateCompress, Target: ref, RowFormat: "Compressed"}
	if err := s.ApplyIntegration(ctx, compress, testNow); err != nil {
		t.Fatalf("integrate compress: %v", err)
	}
	if rec := mustTable(t, s, "t"); rec.RowFormat != "Compressed" || rec.CompressDate == nil {
		t.Errorf("compress not recorded: %+v", rec)
	}

	ghost := model.Integration{Kind: model.IntegrateRepair, Target: model.TableRef{Schema: "app", Table: "ghost"}}
	if err := s.ApplyIntegration(ctx, ghost, testNow); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := s.ApplyIntegration(ctx, model.Integration{Kind: "bogus", Target: ref}, testNow); !errors.Is(err, model.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestIntegrationSQL(t *testing.T) {
	s := newTestStore(t)
	ref := model.TableRef{Schema: "app", Table: "t"}

	tests := []struct {
		name string
		in   model.Integration
		want string
	}{
		{
			name: "check",
			in:   model.Integration{Kind: model.IntegrateCheck, Target: ref},
			want: "UPDATE `maintainer__tables` SET `check_date` = CURRENT_TIMESTAMP, `check_rows` = `rows_current`, " +
				"`check_checksum` = `checksum_current`, `check` = 0 WHERE `schema` = 'app' AND `table` = 't';",
		},
		{
			name: "repair needed",
			in:   model.Integration{Kind: model.IntegrateRepairNeeded, Target: ref},
			want: "UPDATE `maintainer__tables` SET `repair` = 1 WHERE `schema` = 'app' AND `table` = 't';",
		},
		{
			name: "optimize before copies current sizes",
			in:   model.Integration{Kind: model.IntegrateOptimizeBefore, Target: ref},
			want: "UPDATE `maintainer__tables` SET `data_length_before` = `data_length_current`, " +
				"`index_length_before` = `index_length_current`, `data_free_before` = `data_free_current` " +
				"WHERE `schema` = 'app' AND `table` = 't';",
		},
		{
			name: "compress",
			in:   model.Integration{Kind: model.IntegrateCompress, Target: ref, RowFormat: "Compressed"},
			want: "UPDATE `maintainer__tables` SET `row_format` = 'Compressed', `page_compressed` = 0, " +
				"`compress_date` = CURRENT_TIMESTAMP, `compress` = 0 WHERE `schema` = 'app' AND `table` = 't';",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.IntegrationSQL(tt.in)
			if err != nil {
				t.Fatalf("IntegrationSQL: %v", err)
			}
			if got != tt.want {
				t.Errorf("got  %s\nwant %s", got, tt.want)
			}
		})
	}

	mysqlStore := &Store{dialect: DialectMySQL, prefix: DefaultPrefix}
	got, err := mysqlStore.IntegrationSQL(model.Integration{Kind: model.IntegrateOptimizeAfter, Target: ref})
	if err != nil {
		t.Fatalf("IntegrationSQL: %v", err)
	}
	if !strings.Contains(got, "`data_free_after` = (SELECT `DATA_FREE` FROM information_schema.TABLES WHERE TABLE_SCHEMA = 'app' AND TABLE_NAME = 't')") {
		t.Errorf("mysql dialect did not read live sizes: %s", got)
	}

	if _, err := s.IntegrationSQL(model.Integration{Kind: model.IntegrateCheck, Target: model.TableRef{Schema: "app", Table: "a`b"}}); !errors.Is(err, model.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}
