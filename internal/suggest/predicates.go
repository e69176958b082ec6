package suggest

import (
	"strings"
	"time"

	"github.com/faucetdb/tablekeeper/internal/model"
)

const (
	rowFormatDynamic    = "DYNAMIC"
	rowFormatCompressed = "COMPRESSED"
)

// delayElapsed reports whether at least days calendar days have passed since
// last. A table never processed is always due.
func delayElapsed(last *time.Time, days int, now time.Time) bool {
	since := model.DaysSince(last, now)
	return since == nil || *since >= days
}

// changedSince decides whether a table changed after a snapshot of its rows
// and checksum taken on snapshotDate. Tables with only_if_changed=0 always
// count as changed.
func changedSince(rec *model.TableRecord, rowsDelta, snapshotChecksum *int64, snapshotDate *time.Time) bool {
	if !rec.OnlyIfChanged {
		return true
	}
	if rec.ChecksumCurrent != nil && snapshotChecksum != nil && *rec.ChecksumCurrent != *snapshotChecksum {
		return true
	}
	if rowsDelta == nil {
		if rec.UpdateTime == nil || snapshotDate == nil {
			return true
		}
		return dayAfter(*rec.UpdateTime, *snapshotDate)
	}
	return *rowsDelta >= rec.ThresholdRowsDelta
}

// dayAfter compares calendar dates, ignoring the time of day.
func dayAfter(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC).After(time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC))
}

// CheckDue reports whether CHECK TABLE should be suggested.
func CheckDue(rec *model.TableRecord, now time.Time) bool {
	return !rec.Repair && !rec.Check &&
		rec.Engine.SupportsCheck() &&
		rec.CheckSuggest &&
		delayElapsed(rec.CheckDate, rec.CheckDaysDelay, now) &&
		changedSince(rec, rec.CheckRowsDelta(), rec.CheckChecksum, rec.CheckDate)
}

// OptimizeDue reports whether OPTIMIZE TABLE should be suggested. InnoDB
// tables qualify only with file-per-table tablespaces.
func OptimizeDue(rec *model.TableRecord, fm model.FeatureMatrix, now time.Time) bool {
	if rec.Repair || rec.Optimize || !rec.OptimizeSuggest {
		return false
	}
	if !rec.Engine.In(model.EngineArchive, model.EngineAria, model.EngineMyISAM) &&
		!(rec.Engine == model.EngineInnoDB && fm.FilePerTable) {
		return false
	}
	if !delayElapsed(rec.OptimizeDate, rec.OptimizeDaysDelay, now) {
		return false
	}
	frag := rec.Fragmentation()
	return frag != nil && frag.GreaterThanOrEqual(rec.ThresholdFragmentation)
}

// AnalyzeDue reports whether ANALYZE TABLE should be suggested. OPTIMIZE
// already analyzes InnoDB tables, so it must be evaluated first.
func AnalyzeDue(rec *model.TableRecord, now time.Time) bool {
	return !rec.Repair && !rec.Analyze &&
		rec.Engine.SupportsAnalyze() &&
		rec.AnalyzeSuggest &&
		!(rec.Engine == model.EngineInnoDB && rec.Optimize) &&
		delayElapsed(rec.AnalyzeDate, rec.AnalyzeDaysDelay, now) &&
		changedSince(rec, rec.AnalyzeRowsDelta(), rec.AnalyzeChecksum, rec.AnalyzeDate)
}

// CompressDue reports whether a row format or page compression change
// should be suggested.
func CompressDue(rec *model.TableRecord, fm model.FeatureMatrix, settings model.Settings) bool {
	if rec.Repair || rec.Compress || !rec.CompressSuggest || rec.PageCompressed {
		return false
	}
	format := strings.ToUpper(rec.RowFormat)
	switch rec.Engine {
	case model.EngineInnoDB:
		if !fm.FilePerTable {
			return format != rowFormatDynamic
		}
		if fm.SupportsPageCompression {
			return true
		}
		if settings.PreferCompressed {
			return format != rowFormatCompressed
		}
		return format != rowFormatCompressed && format != rowFormatDynamic
	case model.EngineMyISAM:
		return format != rowFormatDynamic
	}
	return false
}

// FulltextDue reports whether fulltext indexes should be rebuilt because
// the engine's fulltext configuration changed.
func FulltextDue(rec *model.TableRecord, innodbChanged, myisamChanged bool) bool {
	if rec.Repair || rec.FulltextRebuild || !rec.HasFulltext {
		return false
	}
	switch rec.Engine {
	case model.EngineInnoDB:
		return innodbChanged
	case model.EngineMyISAM:
		return myisamChanged
	}
	return false
}
