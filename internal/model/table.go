package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Defaults applied to a TableRecord when a table is first observed.
const (
	DefaultThresholdRowsDelta = 10000
	DefaultAnalyzeDaysDelay   = 14
	DefaultCheckDaysDelay     = 30
	DefaultOptimizeDaysDelay  = 30
	DefaultHistogramBuckets   = 100
	MaxHistogramBuckets       = 1024
)

// DefaultThresholdFragmentation is the fragmentation percentage at which
// OPTIMIZE becomes due.
var DefaultThresholdFragmentation = decimal.NewFromInt(10)

var hundred = decimal.NewFromInt(100)

// TableRecord is the tracking-store row for one (schema, table).
type TableRecord struct {
	Schema   string     `db:"schema" json:"schema"`
	Table    string     `db:"table" json:"table"`
	Analyzed *time.Time `db:"analyzed" json:"analyzed,omitempty"`

	// Observed state.
	Engine             Engine     `db:"engine" json:"engine"`
	RowFormat          string     `db:"row_format" json:"row_format"`
	HasFulltext        bool       `db:"has_fulltext" json:"has_fulltext"`
	PageCompressed     bool       `db:"page_compressed" json:"page_compressed"`
	RowsCurrent        int64      `db:"rows_current" json:"rows_current"`
	RowsDate           *time.Time `db:"rows_date" json:"rows_date,omitempty"`
	UpdateTime         *time.Time `db:"update_time" json:"update_time,omitempty"`
	ChecksumCurrent    *int64     `db:"checksum_current" json:"checksum_current,omitempty"`
	ChecksumDate       *time.Time `db:"checksum_date" json:"checksum_date,omitempty"`
	DataLengthCurrent  int64      `db:"data_length_current" json:"data_length_current"`
	IndexLengthCurrent int64      `db:"index_length_current" json:"index_length_current"`
	DataFreeCurrent    int64      `db:"data_free_current" json:"data_free_current"`
	DataLengthBefore   *int64     `db:"data_length_before" json:"data_length_before,omitempty"`
	IndexLengthBefore  *int64     `db:"index_length_before" json:"index_length_before,omitempty"`
	DataFreeBefore     *int64     `db:"data_free_before" json:"data_free_before,omitempty"`
	DataLengthAfter    *int64     `db:"data_length_after" json:"data_length_after,omitempty"`
	IndexLengthAfter   *int64     `db:"index_length_after" json:"index_length_after,omitempty"`
	DataFreeAfter      *int64     `db:"data_free_after" json:"data_free_after,omitempty"`

	// Fine tuning.
	UseChecksum            bool            `db:"use_checksum" json:"use_checksum"`
	ExactRows              bool            `db:"exact_rows" json:"exact_rows"`
	OnlyIfChanged          bool            `db:"only_if_changed" json:"only_if_changed"`
	ThresholdRowsDelta     int64           `db:"threshold_rows_delta" json:"threshold_rows_delta"`
	ThresholdFragmentation decimal.Decimal `db:"threshold_fragmentation" json:"threshold_fragmentation"`

	Check          bool       `db:"check" json:"check"`
	CheckSuggest   bool       `db:"check_suggest" json:"check_suggest"`
	CheckAutoRun   bool       `db:"check_auto_run" json:"check_auto_run"`
	CheckDaysDelay int        `db:"check_days_delay" json:"check_days_delay"`
	CheckDate      *time.Time `db:"check_date" json:"check_date,omitempty"`
	CheckRows      *int64     `db:"check_rows" json:"check_rows,omitempty"`
	CheckChecksum  *int64     `db:"check_checksum" json:"check_checksum,omitempty"`

	Analyze                 bool       `db:"analyze" json:"analyze"`
	AnalyzeSuggest          bool       `db:"analyze_suggest" json:"analyze_suggest"`
	AnalyzeAutoRun          bool       `db:"analyze_auto_run" json:"analyze_auto_run"`
	AnalyzeDaysDelay        int        `db:"analyze_days_delay" json:"analyze_days_delay"`
	AnalyzeDate             *time.Time `db:"analyze_date" json:"analyze_date,omitempty"`
	AnalyzeRows             *int64     `db:"analyze_rows" json:"analyze_rows,omitempty"`
	AnalyzeChecksum         *int64     `db:"analyze_checksum" json:"analyze_checksum,omitempty"`
	AnalyzeHistogram        bool       `db:"analyze_histogram" json:"analyze_histogram"`
	AnalyzeHistogramAuto    bool       `db:"analyze_histogram_auto" json:"analyze_histogram_auto"`
	AnalyzeHistogramBuckets int        `db:"analyze_histogram_buckets" json:"analyze_histogram_buckets"`

	Optimize          bool       `db:"optimize" json:"optimize"`
	OptimizeSuggest   bool       `db:"optimize_suggest" json:"optimize_suggest"`
	OptimizeAutoRun   bool       `db:"optimize_auto_run" json:"optimize_auto_run"`
	OptimizeDaysDelay int        `db:"optimize_days_delay" json:"optimize_days_delay"`
	OptimizeDate      *time.Time `db:"optimize_date" json:"optimize_date,omitempty"`

	Compress        bool       `db:"compress" json:"compress"`
	CompressSuggest bool       `db:"compress_suggest" json:"compress_suggest"`
	CompressDate    *time.Time `db:"compress_date" json:"compress_date,omitempty"`

	FulltextRebuild        bool       `db:"fulltext_rebuild" json:"fulltext_rebuild"`
	FulltextRebuildAutoRun bool       `db:"fulltext_rebuild_auto_run" json:"fulltext_rebuild_auto_run"`
	FulltextRebuildDate    *time.Time `db:"fulltext_rebuild_date" json:"fulltext_rebuild_date,omitempty"`

	Repair     bool       `db:"repair" json:"repair"`
	RepairDate *time.Time `db:"repair_date" json:"repair_date,omitempty"`
}

// NewTableRecord returns a record for a newly observed table with default
// policy applied.
func NewTableRecord(schema, table string) TableRecord {
	return TableRecord{
		Schema:                  schema,
		Table:                   table,
		Engine:                  EngineOther,
		OnlyIfChanged:           true,
		ThresholdRowsDelta:      DefaultThresholdRowsDelta,
		ThresholdFragmentation:  DefaultThresholdFragmentation,
		CheckSuggest:            true,
		CheckDaysDelay:          DefaultCheckDaysDelay,
		AnalyzeSuggest:          true,
		AnalyzeAutoRun:          true,
		AnalyzeDaysDelay:        DefaultAnalyzeDaysDelay,
		AnalyzeHistogramBuckets: DefaultHistogramBuckets,
		OptimizeSuggest:         true,
		OptimizeAutoRun:         true,
		OptimizeDaysDelay:       DefaultOptimizeDaysDelay,
		CompressSuggest:         true,
	}
}

// Ref returns the table's identity.
func (r *TableRecord) Ref() TableRef {
	return TableRef{Schema: r.Schema, Table: r.Table}
}

// TotalLength is data + index + free bytes.
func (r *TableRecord) TotalLength() int64 {
	return r.DataLengthCurrent + r.IndexLengthCurrent + r.DataFreeCurrent
}

// Fragmentation returns free / total * 100 rounded to two places, or nil
// when the table occupies no space.
func (r *TableRecord) Fragmentation() *decimal.Decimal {
	total := r.TotalLength()
	if total == 0 {
		return nil
	}
	f := decimal.NewFromInt(r.DataFreeCurrent).Mul(hundred).Div(decimal.NewFromInt(total)).Round(2)
	return &f
}

// CheckRowsDelta is |rows_current - check_rows|, nil when never checked.
func (r *TableRecord) CheckRowsDelta() *int64 { return rowsDelta(r.RowsCurrent, r.CheckRows) }

// AnalyzeRowsDelta is |rows_current - analyze_rows|, nil when never analyzed.
func (r *TableRecord) AnalyzeRowsDelta() *int64 { return rowsDelta(r.RowsCurrent, r.AnalyzeRows) }

func rowsDelta(current int64, snapshot *int64) *int64 {
	if snapshot == nil {
		return nil
	}
	d := current - *snapshot
	if d < 0 {
		d = -d
	}
	return &d
}

// DaysSince returns the number of calendar days between last and now, in
// now's location. It returns nil when last is nil.
func DaysSince(last *time.Time, now time.Time) *int {
	if last == nil {
		return nil
	}
	d := daysBetween(*last, now)
	return &d
}

func daysBetween(from, to time.Time) int {
	loc := to.Location()
	a := from.In(loc)
	fy, fm, fd := a.Date()
	ty, tm, td := to.Date()
	start := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	end := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}

// SameDay reports whether t falls on the same calendar day as now.
func SameDay(t *time.Time, now time.Time) bool {
	return t != nil && daysBetween(*t, now) == 0
}

// Suggestion is the projection of a TableRecord returned by a suggestion
// pass: pending flags plus the policy that gates automatic execution.
type Suggestion struct {
	Schema                 string `json:"schema" db:"schema"`
	Table                  string `json:"table" db:"table"`
	Engine                 Engine `json:"engine" db:"engine"`
	TotalLength            int64  `json:"total_length" db:"total_length"`
	Check                  bool   `json:"check" db:"check"`
	CheckAutoRun           bool   `json:"check_auto_run" db:"check_auto_run"`
	Repair                 bool   `json:"repair" db:"repair"`
	Compress               bool   `json:"compress" db:"compress"`
	Analyze                bool   `json:"analyze" db:"analyze"`
	AnalyzeAutoRun         bool   `json:"analyze_auto_run" db:"analyze_auto_run"`
	Optimize               bool   `json:"optimize" db:"optimize"`
	OptimizeAutoRun        bool   `json:"optimize_auto_run" db:"optimize_auto_run"`
	FulltextRebuild        bool   `json:"fulltext_rebuild" db:"fulltext_rebuild"`
	FulltextRebuildAutoRun bool   `json:"fulltext_rebuild_auto_run" db:"fulltext_rebuild_auto_run"`
	AnalyzeHistogram       bool   `json:"analyze_histogram" db:"analyze_histogram"`
}

// Ref returns the table's identity.
func (s Suggestion) Ref() TableRef {
	return TableRef{Schema: s.Schema, Table: s.Table}
}
