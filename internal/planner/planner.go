package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/faucetdb/tablekeeper/internal/ident"
	"github.com/faucetdb/tablekeeper/internal/model"
	"github.com/faucetdb/tablekeeper/internal/tracking"
)

// Catalog is the live view of the target server the planner needs.
// connector.Connector satisfies it.
type Catalog interface {
	TableStatus(ctx context.Context, schema, table string) (*model.TableStatus, error)
	Columns(ctx context.Context, schema, table string) ([]model.Column, error)
	IndexedColumns(ctx context.Context, schema, table string) ([]string, error)
	FulltextIndexes(ctx context.Context, schema, table string) ([]model.Index, error)
	AutoHistogramColumns(ctx context.Context, schema, table string) ([]string, error)
}

// Overrides is the tracking-store view the planner needs: per-table
// histogram policy, column overrides and integration rendering.
// tracking.Store satisfies it.
type Overrides interface {
	Table(ctx context.Context, schema, table string) (*model.TableRecord, error)
	IncludeColumns(ctx context.Context, schema, table string) ([]string, error)
	ExcludeColumns(ctx context.Context, schema, table string) ([]string, error)
	IntegrationSQL(in model.Integration) (string, error)
}

// Fulltext optimization variables.
const (
	varFulltextOnly    = "innodb_optimize_fulltext_only"
	varFulltextWords   = "innodb_ft_num_word_optimize"
	fulltextWordsBatch = "10000"
)

// Planner builds command sequences for one target session.
type Planner struct {
	Features  model.FeatureMatrix
	Settings  model.Settings
	Catalog   Catalog
	Overrides Overrides
	Rebuilder IndexRebuilder
}

// New returns a Planner using DefaultRebuilder.
func New(features model.FeatureMatrix, settings model.Settings, catalog Catalog, overrides Overrides) *Planner {
	return &Planner{
		Features:  features,
		Settings:  settings,
		Catalog:   catalog,
		Overrides: overrides,
		Rebuilder: DefaultRebuilder{},
	}
}

// Render returns the statement text of c.
func (p *Planner) Render(c Command) (string, error) {
	if c.Kind == KindIntegrate {
		if c.Integration == nil {
			return "", fmt.Errorf("%w: integrate command without integration", model.ErrValidation)
		}
		return p.Overrides.IntegrationSQL(*c.Integration)
	}
	return renderStatement(c)
}

// RenderAll renders a command list in order.
func (p *Planner) RenderAll(cmds []Command) ([]string, error) {
	out := make([]string, 0, len(cmds))
	for _, c := range cmds {
		s, err := p.Render(c)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// details validates the target and reads its live catalog entry.
func (p *Planner) details(ctx context.Context, t model.TableRef) (*model.TableStatus, error) {
	if err := ident.ValidateTarget(t.Schema, []string{t.Table}); err != nil {
		return nil, err
	}
	st, err := p.Catalog.TableStatus(ctx, t.Schema, t.Table)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", t, err)
	}
	return st, nil
}

func unsupported(t model.TableRef, engine model.Engine, what string) error {
	return fmt.Errorf("%w: table %s with engine %s does not support %s", model.ErrValidation, t, engine, what)
}

func statement(kind Kind, t model.TableRef, opts Options) Command {
	return Command{Kind: kind, Target: t, Options: opts, Severity: model.SeverityFatal}
}

func integrate(kind model.IntegrationKind, t model.TableRef) Command {
	return Command{
		Kind:        KindIntegrate,
		Target:      t,
		Severity:    model.SeverityFatal,
		Integration: &model.Integration{Kind: kind, Target: t},
	}
}

func setGlobal(variable, value string) Command {
	return Command{
		Kind:     KindSetGlobal,
		Options:  Options{Variable: variable, Value: value},
		Severity: model.SeverityFatal,
	}
}

// Repair plans REPAIR TABLE for engines that support it.
func (p *Planner) Repair(ctx context.Context, t model.TableRef, withIntegration, extended bool) ([]Command, error) {
	st, err := p.details(ctx, t)
	if err != nil {
		return nil, err
	}
	if !st.Engine.SupportsRepair() {
		return nil, unsupported(t, st.Engine, "REPAIR")
	}
	cmds := []Command{statement(KindRepair, t, Options{Extended: extended || p.Settings.PreferExtended})}
	if withIntegration {
		cmds = append(cmds, integrate(model.IntegrateRepair, t))
	}
	return cmds, nil
}

// Check plans CHECK TABLE, MEDIUM unless extended checks are requested.
func (p *Planner) Check(ctx context.Context, t model.TableRef, withIntegration, extended bool) ([]Command, error) {
	st, err := p.details(ctx, t)
	if err != nil {
		return nil, err
	}
	if !st.Engine.SupportsCheck() {
		return nil, unsupported(t, st.Engine, "CHECK")
	}
	cmds := []Command{statement(KindCheck, t, Options{Extended: extended || p.Settings.PreferExtended})}
	if withIntegration {
		cmds = append(cmds, integrate(model.IntegrateCheck, t))
	}
	return cmds, nil
}

// Compress plans a row format or page compression change.
func (p *Planner) Compress(ctx context.Context, t model.TableRef, withIntegration bool) ([]Command, error) {
	st, err := p.details(ctx, t)
	if err != nil {
		return nil, err
	}

	var (
		opts      Options
		newFormat string
	)
	switch st.Engine {
	case model.EngineMyISAM:
		if strings.EqualFold(st.RowFormat, "Dynamic") {
			return nil, fmt.Errorf("%w: MyISAM table %s already uses Dynamic row format", model.ErrValidation, t)
		}
		opts, newFormat = Options{RowFormat: "DYNAMIC"}, "Dynamic"
	case model.EngineInnoDB:
		switch {
		case st.PageCompressed:
			return nil, fmt.Errorf("%w: InnoDB table %s already uses page compression", model.ErrValidation, t)
		case p.Features.SupportsPageCompression:
			opts, newFormat = Options{RowFormat: "DYNAMIC", PageCompressed: true}, "Dynamic"
		case p.Features.FilePerTable && p.Settings.PreferCompressed:
			if strings.EqualFold(st.RowFormat, "Compressed") {
				return nil, fmt.Errorf("%w: InnoDB table %s already uses Compressed row format", model.ErrValidation, t)
			}
			opts, newFormat = Options{RowFormat: "COMPRESSED"}, "Compressed"
		case strings.EqualFold(st.RowFormat, "Dynamic") || strings.EqualFold(st.RowFormat, "Compressed"):
			return nil, fmt.Errorf("%w: InnoDB table %s already uses %s row format", model.ErrValidation, t, st.RowFormat)
		default:
			opts, newFormat = Options{RowFormat: "DYNAMIC"}, "Dynamic"
		}
	default:
		return nil, unsupported(t, st.Engine, "compression")
	}

	cmds := []Command{statement(KindAlterRowFormat, t, opts)}
	if withIntegration {
		in := integrate(model.IntegrateCompress, t)
		in.Integration.RowFormat = newFormat
		in.Integration.PageCompressed = opts.PageCompressed
		cmds = append(cmds, in)
	}
	return cmds, nil
}

// Analyze plans ANALYZE TABLE.
func (p *Planner) Analyze(ctx context.Context, t model.TableRef, withIntegration bool) ([]Command, error) {
	st, err := p.details(ctx, t)
	if err != nil {
		return nil, err
	}
	if !st.Engine.SupportsAnalyze() {
		return nil, unsupported(t, st.Engine, "ANALYZE")
	}
	cmds := []Command{statement(KindAnalyze, t, Options{})}
	if withIntegration {
		cmds = append(cmds, integrate(model.IntegrateAnalyze, t))
	}
	return cmds, nil
}

// Histogram plans column statistics collection. It returns no commands when
// the server cannot collect them, or when they would duplicate a plain
// ANALYZE and noSkip is false, or when no column qualifies.
func (p *Planner) Histogram(ctx context.Context, t model.TableRef, withIntegration, noSkip bool) ([]Command, error) {
	st, err := p.details(ctx, t)
	if err != nil {
		return nil, err
	}
	if !st.Engine.SupportsAnalyze() {
		return nil, unsupported(t, st.Engine, "ANALYZE")
	}
	if !p.Features.HistogramCapable(noSkip) {
		return nil, nil
	}

	buckets, auto := model.DefaultHistogramBuckets, false
	rec, err := p.Overrides.Table(ctx, t.Schema, t.Table)
	switch {
	case err == nil:
		if rec.AnalyzeHistogramBuckets > 0 {
			buckets = rec.AnalyzeHistogramBuckets
		}
		auto = rec.AnalyzeHistogramAuto
	case !errors.Is(err, tracking.ErrNotFound):
		return nil, err
	}

	cols, err := p.Catalog.Columns(ctx, t.Schema, t.Table)
	if err != nil {
		return nil, err
	}
	indexed, err := p.Catalog.IndexedColumns(ctx, t.Schema, t.Table)
	if err != nil {
		return nil, err
	}
	include, err := p.Overrides.IncludeColumns(ctx, t.Schema, t.Table)
	if err != nil {
		return nil, err
	}
	exclude, err := p.Overrides.ExcludeColumns(ctx, t.Schema, t.Table)
	if err != nil {
		return nil, err
	}
	var autoUpdated []string
	if p.Features.SupportsAutoHistogramUpdate && auto && !noSkip {
		if autoUpdated, err = p.Catalog.AutoHistogramColumns(ctx, t.Schema, t.Table); err != nil {
			return nil, err
		}
	}

	selected := SelectHistogramColumns(cols, indexed, include, exclude, autoUpdated)
	if len(selected) == 0 {
		return nil, nil
	}
	if err := ident.ValidateColumns(selected); err != nil {
		return nil, err
	}

	opts := Options{Columns: selected, Buckets: buckets}
	switch {
	case !p.Features.SupportsColumnHistograms:
		opts.Persistent = true
	case p.Features.SupportsAutoHistogramUpdate && auto:
		opts.UpdateMode = HistogramAuto
	case p.Features.SupportsAutoHistogramUpdate:
		opts.UpdateMode = HistogramManual
	}

	cmds := []Command{statement(KindHistogram, t, opts)}
	if withIntegration {
		cmds = append(cmds, integrate(model.IntegrateHistogram, t))
	}
	return cmds, nil
}

// Optimize plans OPTIMIZE TABLE with size snapshots around it. InnoDB tables
// with fulltext indexes get a second pass limited to the fulltext indexes
// when global variables may be changed, and InnoDB histograms are rebuilt
// since the table rebuild discards them.
func (p *Planner) Optimize(ctx context.Context, t model.TableRef, withIntegration, noSkip bool) ([]Command, error) {
	st, err := p.details(ctx, t)
	if err != nil {
		return nil, err
	}
	if !st.Engine.SupportsOptimize() {
		return nil, unsupported(t, st.Engine, "OPTIMIZE")
	}
	innodb := st.Engine == model.EngineInnoDB

	var cmds []Command
	if withIntegration {
		cmds = append(cmds, integrate(model.IntegrateOptimizeBefore, t))
	}
	cmds = append(cmds, statement(KindOptimize, t, Options{}))

	if p.Features.CanSetGlobalVariables && st.HasFulltext && innodb {
		words := setGlobal(varFulltextWords, fulltextWordsBatch)
		words.Severity = model.SeverityIgnored
		restoreOnly := setGlobal(varFulltextOnly, "0")
		restoreOnly.Always = true
		restoreWords := setGlobal(varFulltextWords, "DEFAULT")
		restoreWords.Always = true
		restoreWords.Severity = model.SeverityIgnored

		cmds = append(cmds,
			setGlobal(varFulltextOnly, "1"),
			words,
			statement(KindOptimize, t, Options{}),
			restoreOnly,
			restoreWords,
		)
	}

	if withIntegration {
		cmds = append(cmds, integrate(model.IntegrateOptimizeAfter, t))
		if innodb {
			cmds = append(cmds, integrate(model.IntegrateAnalyze, t))
		}
	}

	if innodb && (p.Features.SupportsColumnHistograms || (p.Features.SupportsPersistentStatistics && !p.Features.PersistentStatsCoverAnalyze && !noSkip)) {
		rec, err := p.Overrides.Table(ctx, t.Schema, t.Table)
		if err != nil && !errors.Is(err, tracking.ErrNotFound) {
			return nil, err
		}
		if rec != nil && rec.AnalyzeHistogram {
			hist, err := p.Histogram(ctx, t, withIntegration, noSkip)
			if err != nil {
				return nil, err
			}
			cmds = append(cmds, hist...)
		}
	}
	return cmds, nil
}

// FulltextRebuild plans dropping and re-adding every fulltext index.
func (p *Planner) FulltextRebuild(ctx context.Context, t model.TableRef, withIntegration bool) ([]Command, error) {
	st, err := p.details(ctx, t)
	if err != nil {
		return nil, err
	}
	if !st.Engine.SupportsFulltextRebuild() {
		return nil, unsupported(t, st.Engine, "FULLTEXT rebuild")
	}
	indexes, err := p.Catalog.FulltextIndexes(ctx, t.Schema, t.Table)
	if err != nil {
		return nil, err
	}

	var cmds []Command
	for _, idx := range indexes {
		c, err := p.Rebuilder.RebuildIndex(t, idx)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, c)
	}
	if withIntegration {
		cmds = append(cmds, integrate(model.IntegrateFulltextRebuild, t))
	}
	return cmds, nil
}

// Flush plans the statistics flush permitted by the current grants, if any.
func (p *Planner) Flush() []Command {
	switch {
	case p.Features.IsMariaDB && p.Features.CanFlush:
		return []Command{{
			Kind: KindFlush,
			Options: Options{
				Local:        true,
				FlushTargets: []string{"HOSTS", "QUERY CACHE", "TABLE_STATISTICS", "INDEX_STATISTICS", "USER_STATISTICS"},
			},
			Severity: model.SeverityRecoverable,
		}}
	case !p.Features.IsMariaDB && p.Features.CanFlushOptimizerCosts:
		return []Command{{
			Kind:     KindFlush,
			Options:  Options{FlushTargets: []string{"OPTIMIZER_COSTS"}},
			Severity: model.SeverityRecoverable,
		}}
	}
	return nil
}

// FulltextReset restores the fulltext optimization variables in case a
// previous run stopped between changing and restoring them.
func (p *Planner) FulltextReset() []Command {
	if !p.Features.CanSetGlobalVariables {
		return nil
	}
	only := setGlobal(varFulltextOnly, "0")
	only.Severity = model.SeverityRecoverable
	words := setGlobal(varFulltextWords, "DEFAULT")
	words.Severity = model.SeverityIgnored
	return []Command{only, words}
}

// Maintenance plans switching the application's maintenance flag. An
// unconfigured target plans nothing.
func (p *Planner) Maintenance(activate bool) ([]Command, error) {
	m := p.Settings.Maintenance
	if !m.Configured() {
		return nil, nil
	}
	for _, v := range []string{m.Schema, m.Table, m.SettingColumn, m.SettingName, m.ValueColumn} {
		if err := ident.Validate("maintenance parameter", v); err != nil {
			return nil, err
		}
	}
	return []Command{{
		Kind:     KindMaintenance,
		Target:   model.TableRef{Schema: m.Schema, Table: m.Table},
		Options:  Options{Activate: activate, Maintenance: m},
		Severity: model.SeverityFatal,
	}}, nil
}
