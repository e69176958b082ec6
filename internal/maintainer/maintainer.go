// Package maintainer ties capability detection, diagnostics, suggestions and
// command planning together into the three public operations: Suggest,
// GetCommands and AutoProcess.
package maintainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/faucetdb/tablekeeper/internal/capability"
	"github.com/faucetdb/tablekeeper/internal/connector"
	"github.com/faucetdb/tablekeeper/internal/diagnostics"
	"github.com/faucetdb/tablekeeper/internal/ident"
	"github.com/faucetdb/tablekeeper/internal/model"
	"github.com/faucetdb/tablekeeper/internal/planner"
	"github.com/faucetdb/tablekeeper/internal/suggest"
	"github.com/faucetdb/tablekeeper/internal/tracking"
)

// LockConfig controls the per-schema advisory lock taken by AutoProcess.
type LockConfig struct {
	Enabled bool
	Timeout time.Duration
}

// Maintainer runs maintenance for one target server session. It is not safe
// for concurrent use; runs against the same schema are serialized by the
// advisory lock instead.
type Maintainer struct {
	conn     connector.Connector
	store    *tracking.Store
	features model.FeatureMatrix
	settings model.Settings
	logger   *slog.Logger
	clock    func() time.Time
	lock     LockConfig

	refresher *diagnostics.Refresher
	suggester *suggest.Engine
	planner   *planner.Planner
}

// New returns a Maintainer for an already detected feature matrix and loaded
// settings. A nil clock means time.Now. Locking is enabled with no wait.
func New(conn connector.Connector, store *tracking.Store, features model.FeatureMatrix, settings model.Settings, logger *slog.Logger, clock func() time.Time) *Maintainer {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Maintainer{
		conn:      conn,
		store:     store,
		features:  features,
		settings:  settings,
		logger:    logger.With("component", "maintainer"),
		clock:     clock,
		lock:      LockConfig{Enabled: true},
		refresher: diagnostics.NewRefresher(conn, store, logger, clock),
		suggester: suggest.NewEngine(store, features, capability.NewDetector(conn, logger), logger, clock),
		planner:   planner.New(features, settings, conn, store),
	}
}

// Load detects the feature matrix of conn, loads the global settings from
// store and returns a Maintainer for them.
func Load(ctx context.Context, conn connector.Connector, store *tracking.Store, logger *slog.Logger, clock func() time.Time) (*Maintainer, error) {
	features, err := capability.NewDetector(conn, logger).Detect(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := store.LoadSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return New(conn, store, features, settings, logger, clock), nil
}

// ReloadSettings re-reads the global settings from the tracking store.
func (m *Maintainer) ReloadSettings(ctx context.Context) error {
	settings, err := m.store.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	m.settings = settings
	m.planner.Settings = settings
	return nil
}

// SetLock replaces the advisory lock configuration.
func (m *Maintainer) SetLock(cfg LockConfig) { m.lock = cfg }

// Features returns the session's feature matrix.
func (m *Maintainer) Features() model.FeatureMatrix { return m.features }

// Settings returns the session's global settings.
func (m *Maintainer) Settings() model.Settings { return m.settings }

// Planner returns the session's command planner.
func (m *Maintainer) Planner() *planner.Planner { return m.planner }

// LockName is the advisory lock name guarding runs on schema.
func LockName(schema string) string { return "tablekeeper:" + schema }

// Suggest refreshes diagnostics for the selected tables and returns every
// table with a pending action, smallest first.
func (m *Maintainer) Suggest(ctx context.Context, schema string, tables []string) ([]model.Suggestion, error) {
	if err := ident.ValidateTarget(schema, tables); err != nil {
		return nil, err
	}
	report := m.refresher.Refresh(ctx, schema, tables)
	if !report.OK() {
		m.logger.Warn("diagnostics incomplete", "schema", schema, "steps", len(report.Steps))
	}
	return m.suggester.Suggest(ctx, schema, tables)
}

// selectActions lists the flagged actions of a suggestion in execution
// order. Plan and execute mode both start from this list.
func selectActions(s model.Suggestion) []model.Action {
	var out []model.Action
	for _, a := range model.ActionOrder {
		var flagged bool
		switch a {
		case model.ActionRepair:
			flagged = s.Repair
		case model.ActionCheck:
			flagged = s.Check
		case model.ActionCompress:
			flagged = s.Compress
		case model.ActionOptimize:
			flagged = s.Optimize
		case model.ActionHistogram:
			flagged = s.Analyze && s.AnalyzeHistogram
		case model.ActionAnalyze:
			flagged = s.Analyze
		case model.ActionFulltextRebuild:
			flagged = s.FulltextRebuild
		}
		if flagged {
			out = append(out, a)
		}
	}
	return out
}

// autoRun reports whether execute mode may run a flagged action.
func (m *Maintainer) autoRun(s model.Suggestion, a model.Action) bool {
	switch a {
	case model.ActionRepair:
		return m.settings.RepairAutoRun
	case model.ActionCheck:
		return s.CheckAutoRun
	case model.ActionCompress:
		return m.settings.CompressAutoRun
	case model.ActionOptimize:
		return s.OptimizeAutoRun
	case model.ActionHistogram, model.ActionAnalyze:
		return s.AnalyzeAutoRun
	case model.ActionFulltextRebuild:
		return s.FulltextRebuildAutoRun
	}
	return false
}

// plan returns the command sequence of one action on one table.
func (m *Maintainer) plan(ctx context.Context, t model.TableRef, a model.Action, integrate bool) ([]planner.Command, error) {
	switch a {
	case model.ActionRepair:
		return m.planner.Repair(ctx, t, integrate, false)
	case model.ActionCheck:
		return m.planner.Check(ctx, t, integrate, false)
	case model.ActionCompress:
		return m.planner.Compress(ctx, t, integrate)
	case model.ActionOptimize:
		return m.planner.Optimize(ctx, t, integrate, false)
	case model.ActionHistogram:
		return m.planner.Histogram(ctx, t, integrate, false)
	case model.ActionAnalyze:
		return m.planner.Analyze(ctx, t, integrate)
	case model.ActionFulltextRebuild:
		return m.planner.FulltextRebuild(ctx, t, integrate)
	}
	return nil, fmt.Errorf("%w: unknown action %q", model.ErrValidation, a)
}

// GetCommands computes suggestions and renders the statements that would
// run for them, ignoring auto-run flags. Flatten returns one list wrapped
// in the maintenance, fulltext reset and flush statements.
func (m *Maintainer) GetCommands(ctx context.Context, schema string, tables []string, integrate, flatten bool) (*model.Plan, error) {
	suggestions, err := m.Suggest(ctx, schema, tables)
	if err != nil {
		return nil, err
	}

	plan := &model.Plan{Schema: schema, Tables: make(map[string][]string)}
	var all []string
	for _, s := range suggestions {
		for _, a := range selectActions(s) {
			cmds, err := m.plan(ctx, s.Ref(), a, integrate)
			if errors.Is(err, model.ErrValidation) {
				m.logger.Warn("action not planned", "table", s.Ref().String(), "action", a, "error", err)
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("plan %s on %s: %w", a, s.Ref(), err)
			}
			stmts, err := m.planner.RenderAll(cmds)
			if err != nil {
				return nil, fmt.Errorf("render %s on %s: %w", a, s.Ref(), err)
			}
			if len(stmts) == 0 {
				continue
			}
			if _, seen := plan.Tables[s.Table]; !seen {
				plan.Order = append(plan.Order, s.Table)
			}
			plan.Tables[s.Table] = append(plan.Tables[s.Table], stmts...)
			all = append(all, stmts...)
		}
	}

	if !flatten {
		return plan, nil
	}

	var flush []string
	if m.settings.UseFlush {
		if flush, err = m.planner.RenderAll(m.planner.Flush()); err != nil {
			return nil, err
		}
	}
	plan.Tables, plan.Order = nil, nil
	if len(all) == 0 {
		plan.Flat = append([]string{}, flush...)
		return plan, nil
	}

	on, err := m.renderMaintenance(true)
	if err != nil {
		return nil, err
	}
	off, err := m.renderMaintenance(false)
	if err != nil {
		return nil, err
	}
	reset, err := m.planner.RenderAll(m.planner.FulltextReset())
	if err != nil {
		return nil, err
	}
	flat := append([]string{}, on...)
	flat = append(flat, all...)
	flat = append(flat, reset...)
	flat = append(flat, flush...)
	plan.Flat = append(flat, off...)
	return plan, nil
}

func (m *Maintainer) renderMaintenance(activate bool) ([]string, error) {
	cmds, err := m.planner.Maintenance(activate)
	if err != nil {
		return nil, err
	}
	return m.planner.RenderAll(cmds)
}
