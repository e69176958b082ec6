// Package planner turns maintenance actions into typed commands and renders
// them as SQL. Render is the only place statement text is assembled.
package planner

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/faucetdb/tablekeeper/internal/ident"
	"github.com/faucetdb/tablekeeper/internal/model"
)

// Kind is the statement family of a Command.
type Kind string

const (
	KindCheck          Kind = "CHECK"
	KindRepair         Kind = "REPAIR"
	KindAnalyze        Kind = "ANALYZE"
	KindHistogram      Kind = "HISTOGRAM"
	KindOptimize       Kind = "OPTIMIZE"
	KindAlterRowFormat Kind = "ALTER_ROW_FORMAT"
	KindRebuildIndex   Kind = "REBUILD_INDEX"
	KindSetGlobal      Kind = "SET_GLOBAL"
	KindFlush          Kind = "FLUSH"
	KindMaintenance    Kind = "MAINTENANCE"
	KindIntegrate      Kind = "INTEGRATE"
)

// Administrative reports whether the statement returns a Table/Op/Msg_type/
// Msg_text result set that must be classified.
func (k Kind) Administrative() bool {
	switch k {
	case KindCheck, KindRepair, KindAnalyze, KindHistogram, KindOptimize:
		return true
	}
	return false
}

// Histogram update modes. The empty mode renders no suffix.
const (
	HistogramAuto   = "AUTO"
	HistogramManual = "MANUAL"
)

// Options carries the kind-specific parameters of a Command.
type Options struct {
	// CHECK uses EXTENDED instead of MEDIUM; REPAIR appends EXTENDED.
	Extended bool `json:"extended,omitempty"`

	// ALTER_ROW_FORMAT
	RowFormat      string `json:"row_format,omitempty"`
	PageCompressed bool   `json:"page_compressed,omitempty"`

	// HISTOGRAM
	Columns    []string `json:"columns,omitempty"`
	Buckets    int      `json:"buckets,omitempty"`
	UpdateMode string   `json:"update_mode,omitempty"`
	Persistent bool     `json:"persistent,omitempty"`

	// REBUILD_INDEX
	Index *model.Index `json:"index,omitempty"`

	// SET_GLOBAL
	Variable string `json:"variable,omitempty"`
	Value    string `json:"value,omitempty"`

	// FLUSH
	Local        bool     `json:"local,omitempty"`
	FlushTargets []string `json:"flush_targets,omitempty"`

	// MAINTENANCE
	Activate    bool                    `json:"activate,omitempty"`
	Maintenance model.MaintenanceTarget `json:"maintenance,omitempty"`
}

// Command is one planned statement. Severity says how a failure affects the
// rest of the action; Always marks restore steps that run even after a fatal
// failure earlier in the same action.
type Command struct {
	Kind        Kind               `json:"kind"`
	Target      model.TableRef     `json:"target"`
	Options     Options            `json:"options"`
	Severity    model.Severity     `json:"severity"`
	Always      bool               `json:"always,omitempty"`
	Integration *model.Integration `json:"integration,omitempty"`
}

var (
	variableRegex = regexp.MustCompile(`^[a-z_]{1,64}$`)
	valueRegex    = regexp.MustCompile(`^(\d+|DEFAULT)$`)
	flushRegex    = regexp.MustCompile(`^[A-Z_ ]{1,32}$`)
	formatRegex   = regexp.MustCompile(`^(DYNAMIC|COMPRESSED)$`)
)

func (c Command) table() (string, error) {
	if err := ident.ValidateTarget(c.Target.Schema, []string{c.Target.Table}); err != nil {
		return "", err
	}
	return ident.QuoteTable(c.Target.Schema, c.Target.Table), nil
}

// renderStatement renders every kind except INTEGRATE.
func renderStatement(c Command) (string, error) {
	switch c.Kind {
	case KindCheck:
		t, err := c.table()
		if err != nil {
			return "", err
		}
		mode := "MEDIUM"
		if c.Options.Extended {
			mode = "EXTENDED"
		}
		return "CHECK TABLE " + t + " " + mode + ";", nil

	case KindRepair:
		t, err := c.table()
		if err != nil {
			return "", err
		}
		if c.Options.Extended {
			return "REPAIR TABLE " + t + " EXTENDED;", nil
		}
		return "REPAIR TABLE " + t + ";", nil

	case KindAnalyze:
		t, err := c.table()
		if err != nil {
			return "", err
		}
		return "ANALYZE TABLE " + t + ";", nil

	case KindOptimize:
		t, err := c.table()
		if err != nil {
			return "", err
		}
		return "OPTIMIZE TABLE " + t + ";", nil

	case KindHistogram:
		return renderHistogram(c)

	case KindAlterRowFormat:
		t, err := c.table()
		if err != nil {
			return "", err
		}
		if !formatRegex.MatchString(c.Options.RowFormat) {
			return "", fmt.Errorf("%w: unsupported row format %q", model.ErrValidation, c.Options.RowFormat)
		}
		stmt := "ALTER TABLE " + t + " ROW_FORMAT=" + c.Options.RowFormat
		if c.Options.PageCompressed {
			stmt += " PAGE_COMPRESSED=1"
		}
		return stmt + ";", nil

	case KindRebuildIndex:
		t, err := c.table()
		if err != nil {
			return "", err
		}
		idx := c.Options.Index
		if idx == nil || len(idx.Columns) == 0 {
			return "", fmt.Errorf("%w: index rebuild without columns", model.ErrValidation)
		}
		if err := ident.Validate("index", idx.Name); err != nil {
			return "", err
		}
		if err := ident.ValidateColumns(idx.Columns); err != nil {
			return "", err
		}
		name := ident.Quote(idx.Name)
		return "ALTER TABLE " + t + " DROP INDEX " + name + ", ADD FULLTEXT INDEX " + name + " (" + ident.QuoteList(idx.Columns) + ");", nil

	case KindSetGlobal:
		if !variableRegex.MatchString(c.Options.Variable) || !valueRegex.MatchString(c.Options.Value) {
			return "", fmt.Errorf("%w: invalid global assignment %s=%s", model.ErrValidation, c.Options.Variable, c.Options.Value)
		}
		return "SET @@GLOBAL." + c.Options.Variable + "=" + c.Options.Value + ";", nil

	case KindFlush:
		if len(c.Options.FlushTargets) == 0 {
			return "", fmt.Errorf("%w: nothing to flush", model.ErrValidation)
		}
		for _, f := range c.Options.FlushTargets {
			if !flushRegex.MatchString(f) {
				return "", fmt.Errorf("%w: invalid flush target %q", model.ErrValidation, f)
			}
		}
		stmt := "FLUSH "
		if c.Options.Local {
			stmt += "LOCAL "
		}
		return stmt + strings.Join(c.Options.FlushTargets, ", ") + ";", nil

	case KindMaintenance:
		m := c.Options.Maintenance
		for _, v := range []string{m.Schema, m.Table, m.SettingColumn, m.SettingName, m.ValueColumn} {
			if err := ident.Validate("maintenance parameter", v); err != nil {
				return "", err
			}
		}
		value := "0"
		if c.Options.Activate {
			value = "1"
		}
		return "UPDATE " + ident.QuoteTable(m.Schema, m.Table) + " SET " + ident.Quote(m.ValueColumn) + " = " + value +
			" WHERE " + ident.Quote(m.SettingColumn) + " = " + ident.QuoteString(m.SettingName) + ";", nil
	}
	return "", fmt.Errorf("%w: cannot render %s command", model.ErrValidation, c.Kind)
}

func renderHistogram(c Command) (string, error) {
	t, err := c.table()
	if err != nil {
		return "", err
	}
	if len(c.Options.Columns) == 0 {
		return "", fmt.Errorf("%w: histogram without columns", model.ErrValidation)
	}
	if err := ident.ValidateColumns(c.Options.Columns); err != nil {
		return "", err
	}
	cols := ident.QuoteList(c.Options.Columns)
	if c.Options.Persistent {
		return "ANALYZE TABLE " + t + " PERSISTENT FOR COLUMNS (" + cols + ") INDEXES ();", nil
	}

	stmt := "ANALYZE TABLE " + t + " UPDATE HISTOGRAM ON " + cols + " WITH " + strconv.Itoa(c.Options.Buckets) + " BUCKETS"
	switch c.Options.UpdateMode {
	case "":
	case HistogramAuto, HistogramManual:
		stmt += " " + c.Options.UpdateMode + " UPDATE"
	default:
		return "", fmt.Errorf("%w: unknown histogram update mode %q", model.ErrValidation, c.Options.UpdateMode)
	}
	return stmt + ";", nil
}
