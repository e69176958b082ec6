package suggest

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/faucetdb/tablekeeper/internal/model"
)

var now = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	t := now.AddDate(0, 0, -n)
	return &t
}

func i64(v int64) *int64 { return &v }

func record(engine model.Engine, mutate func(*model.TableRecord)) *model.TableRecord {
	rec := model.NewTableRecord("app", "t")
	rec.Engine = engine
	rec.RowFormat = "Dynamic"
	if mutate != nil {
		mutate(&rec)
	}
	return &rec
}

var innodbFPT = model.FeatureMatrix{FilePerTable: true}

func TestRepairSuppressesEverySuggestion(t *testing.T) {
	for _, engine := range []model.Engine{model.EngineInnoDB, model.EngineMyISAM, model.EngineAria} {
		rec := record(engine, func(r *model.TableRecord) {
			r.Repair = true
			r.RowFormat = "Fixed"
			r.HasFulltext = true
			r.DataLengthCurrent = 100
			r.DataFreeCurrent = 900
		})
		fm := model.FeatureMatrix{FilePerTable: true, SupportsPageCompression: true}

		if CheckDue(rec, now) {
			t.Errorf("%s: check suggested on a table awaiting repair", engine)
		}
		if OptimizeDue(rec, fm, now) {
			t.Errorf("%s: optimize suggested on a table awaiting repair", engine)
		}
		if AnalyzeDue(rec, now) {
			t.Errorf("%s: analyze suggested on a table awaiting repair", engine)
		}
		if CompressDue(rec, fm, model.Settings{}) {
			t.Errorf("%s: compress suggested on a table awaiting repair", engine)
		}
		if FulltextDue(rec, true, true) {
			t.Errorf("%s: fulltext rebuild suggested on a table awaiting repair", engine)
		}
	}
}

func TestCheckDue(t *testing.T) {
	tests := []struct {
		name   string
		engine model.Engine
		mutate func(*model.TableRecord)
		want   bool
	}{
		{"never checked", model.EngineInnoDB, nil, true},
		{"unsupported engine", model.EngineMroonga, nil, false},
		{"suggestions disabled", model.EngineInnoDB, func(r *model.TableRecord) { r.CheckSuggest = false }, false},
		{"already flagged", model.EngineInnoDB, func(r *model.TableRecord) { r.Check = true }, false},
		{"delay not elapsed", model.EngineInnoDB, func(r *model.TableRecord) {
			r.CheckDate = daysAgo(5)
			r.OnlyIfChanged = false
		}, false},
		{"unchanged since check", model.EngineInnoDB, func(r *model.TableRecord) {
			r.CheckDate = daysAgo(40)
			r.CheckRows = i64(100)
			r.RowsCurrent = 150
		}, false},
		{"only_if_changed off ignores change detection", model.EngineInnoDB, func(r *model.TableRecord) {
			r.CheckDate = daysAgo(40)
			r.CheckRows = i64(100)
			r.RowsCurrent = 100
			r.OnlyIfChanged = false
		}, true},
		{"rows delta reaches threshold", model.EngineMyISAM, func(r *model.TableRecord) {
			r.CheckDate = daysAgo(40)
			r.CheckRows = i64(100)
			r.RowsCurrent = 10100
		}, true},
		{"checksum differs", model.EngineAria, func(r *model.TableRecord) {
			r.CheckDate = daysAgo(40)
			r.CheckRows = i64(100)
			r.RowsCurrent = 100
			r.CheckChecksum = i64(1)
			r.ChecksumCurrent = i64(2)
		}, true},
		{"no snapshot rows, updated after check", model.EngineInnoDB, func(r *model.TableRecord) {
			r.CheckDate = daysAgo(40)
			r.UpdateTime = daysAgo(2)
		}, true},
		{"no snapshot rows, updated same day as check", model.EngineInnoDB, func(r *model.TableRecord) {
			r.CheckDate = daysAgo(40)
			r.UpdateTime = daysAgo(40)
		}, false},
		{"no snapshot rows, unknown update time", model.EngineCSV, func(r *model.TableRecord) {
			r.CheckDate = daysAgo(40)
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckDue(record(tt.engine, tt.mutate), now); got != tt.want {
				t.Errorf("CheckDue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOptimizeDue(t *testing.T) {
	fragmented := func(r *model.TableRecord) {
		r.DataLengthCurrent = 850
		r.DataFreeCurrent = 150
	}
	tests := []struct {
		name   string
		engine model.Engine
		fm     model.FeatureMatrix
		mutate func(*model.TableRecord)
		want   bool
	}{
		{"myisam over threshold", model.EngineMyISAM, model.FeatureMatrix{}, fragmented, true},
		{"innodb without file per table", model.EngineInnoDB, model.FeatureMatrix{}, fragmented, false},
		{"innodb with file per table", model.EngineInnoDB, innodbFPT, fragmented, true},
		{"csv unsupported", model.EngineCSV, innodbFPT, fragmented, false},
		{"empty table", model.EngineMyISAM, model.FeatureMatrix{}, nil, false},
		{"below threshold", model.EngineAria, model.FeatureMatrix{}, func(r *model.TableRecord) {
			r.DataLengthCurrent = 950
			r.DataFreeCurrent = 50
		}, false},
		{"custom threshold", model.EngineAria, model.FeatureMatrix{}, func(r *model.TableRecord) {
			r.DataLengthCurrent = 950
			r.DataFreeCurrent = 50
			r.ThresholdFragmentation = decimal.NewFromInt(5)
		}, true},
		{"recently optimized", model.EngineMyISAM, model.FeatureMatrix{}, func(r *model.TableRecord) {
			fragmented(r)
			r.OptimizeDate = daysAgo(1)
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OptimizeDue(record(tt.engine, tt.mutate), tt.fm, now); got != tt.want {
				t.Errorf("OptimizeDue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAnalyzeDue(t *testing.T) {
	tests := []struct {
		name   string
		engine model.Engine
		mutate func(*model.TableRecord)
		want   bool
	}{
		{"never analyzed", model.EngineInnoDB, nil, true},
		{"innodb pending optimize", model.EngineInnoDB, func(r *model.TableRecord) { r.Optimize = true }, false},
		{"myisam pending optimize", model.EngineMyISAM, func(r *model.TableRecord) { r.Optimize = true }, true},
		{"archive unsupported", model.EngineArchive, nil, false},
		{"small delta", model.EngineInnoDB, func(r *model.TableRecord) {
			r.AnalyzeDate = daysAgo(20)
			r.AnalyzeRows = i64(5)
			r.RowsCurrent = 6
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AnalyzeDue(record(tt.engine, tt.mutate), now); got != tt.want {
				t.Errorf("AnalyzeDue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompressDue(t *testing.T) {
	format := func(f string) func(*model.TableRecord) {
		return func(r *model.TableRecord) { r.RowFormat = f }
	}
	tests := []struct {
		name     string
		engine   model.Engine
		fm       model.FeatureMatrix
		settings model.Settings
		mutate   func(*model.TableRecord)
		want     bool
	}{
		{"innodb shared tablespace compact", model.EngineInnoDB, model.FeatureMatrix{}, model.Settings{}, format("Compact"), true},
		{"innodb shared tablespace dynamic", model.EngineInnoDB, model.FeatureMatrix{}, model.Settings{}, format("Dynamic"), false},
		{"innodb page compression available", model.EngineInnoDB, model.FeatureMatrix{FilePerTable: true, SupportsPageCompression: true}, model.Settings{}, format("Dynamic"), true},
		{"innodb already page compressed", model.EngineInnoDB, model.FeatureMatrix{FilePerTable: true, SupportsPageCompression: true}, model.Settings{}, func(r *model.TableRecord) { r.PageCompressed = true }, false},
		{"innodb prefer compressed", model.EngineInnoDB, innodbFPT, model.Settings{PreferCompressed: true}, format("Dynamic"), true},
		{"innodb prefer compressed, done", model.EngineInnoDB, innodbFPT, model.Settings{PreferCompressed: true}, format("Compressed"), false},
		{"innodb dynamic is enough", model.EngineInnoDB, innodbFPT, model.Settings{}, format("Dynamic"), false},
		{"innodb compact", model.EngineInnoDB, innodbFPT, model.Settings{}, format("Compact"), true},
		{"myisam fixed", model.EngineMyISAM, model.FeatureMatrix{}, model.Settings{}, format("Fixed"), true},
		{"myisam dynamic", model.EngineMyISAM, model.FeatureMatrix{}, model.Settings{}, format("Dynamic"), false},
		{"aria", model.EngineAria, model.FeatureMatrix{}, model.Settings{}, format("Page"), false},
		{"disabled", model.EngineMyISAM, model.FeatureMatrix{}, model.Settings{}, func(r *model.TableRecord) {
			r.RowFormat = "Fixed"
			r.CompressSuggest = false
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompressDue(record(tt.engine, tt.mutate), tt.fm, tt.settings); got != tt.want {
				t.Errorf("CompressDue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFulltextDue(t *testing.T) {
	withIndex := func(r *model.TableRecord) { r.HasFulltext = true }
	tests := []struct {
		name           string
		engine         model.Engine
		mutate         func(*model.TableRecord)
		innodb, myisam bool
		want           bool
	}{
		{"innodb changed", model.EngineInnoDB, withIndex, true, false, true},
		{"innodb other engine changed", model.EngineInnoDB, withIndex, false, true, false},
		{"myisam changed", model.EngineMyISAM, withIndex, false, true, true},
		{"no fulltext index", model.EngineInnoDB, nil, true, true, false},
		{"aria never flagged", model.EngineAria, withIndex, true, true, false},
		{"already pending", model.EngineInnoDB, func(r *model.TableRecord) {
			r.HasFulltext = true
			r.FulltextRebuild = true
		}, true, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FulltextDue(record(tt.engine, tt.mutate), tt.innodb, tt.myisam); got != tt.want {
				t.Errorf("FulltextDue = %v, want %v", got, tt.want)
			}
		})
	}
}
