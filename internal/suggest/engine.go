// Package suggest decides which maintenance actions are due for each
// tracked table and persists the resulting flags.
package suggest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/faucetdb/tablekeeper/internal/model"
	"github.com/faucetdb/tablekeeper/internal/tracking"
)

// FingerprintSource reports the current fulltext configuration hashes.
type FingerprintSource interface {
	Fingerprints(ctx context.Context) (model.Fingerprints, error)
}

// Engine evaluates suggestion predicates over tracking rows.
type Engine struct {
	store    *tracking.Store
	features model.FeatureMatrix
	prints   FingerprintSource
	logger   *slog.Logger
	clock    func() time.Time
}

// NewEngine returns an Engine. A nil clock means time.Now.
func NewEngine(store *tracking.Store, features model.FeatureMatrix, prints FingerprintSource, logger *slog.Logger, clock func() time.Time) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		store:    store,
		features: features,
		prints:   prints,
		logger:   logger.With("component", "suggest"),
		clock:    clock,
	}
}

// Suggest flags due actions on the selected tables and returns every table
// with at least one pending action, smallest first.
func (e *Engine) Suggest(ctx context.Context, schema string, tables []string) ([]model.Suggestion, error) {
	now := e.clock()

	recs, err := e.store.Tables(ctx, schema, tables)
	if err != nil {
		return nil, err
	}
	settings, err := e.store.LoadSettings(ctx)
	if err != nil {
		return nil, err
	}
	current, err := e.prints.Fingerprints(ctx)
	if err != nil {
		return nil, fmt.Errorf("fulltext fingerprints: %w", err)
	}

	// An empty baseline is adopted as-is so the first run never rebuilds.
	baseline := settings.Fulltext
	if baseline.InnoDB == "" {
		baseline.InnoDB = current.InnoDB
	}
	if baseline.MyISAM == "" {
		baseline.MyISAM = current.MyISAM
	}
	innodbChanged := baseline.InnoDB != current.InnoDB
	myisamChanged := baseline.MyISAM != current.MyISAM
	if innodbChanged || myisamChanged {
		e.logger.Info("fulltext configuration changed", "schema", schema, "innodb", innodbChanged, "myisam", myisamChanged)
	}

	update := tracking.SuggestionUpdate{
		Schema:   schema,
		Flags:    make(map[model.Action][]string),
		Fulltext: &current,
		At:       now,
	}
	flag := func(rec *model.TableRecord, action model.Action, set *bool) {
		*set = true
		update.Flags[action] = append(update.Flags[action], rec.Table)
	}

	for i := range recs {
		rec := &recs[i]
		update.Evaluated = append(update.Evaluated, rec.Table)

		if CheckDue(rec, now) {
			flag(rec, model.ActionCheck, &rec.Check)
		}
		if OptimizeDue(rec, e.features, now) {
			flag(rec, model.ActionOptimize, &rec.Optimize)
		}
		if AnalyzeDue(rec, now) {
			flag(rec, model.ActionAnalyze, &rec.Analyze)
		}
		if CompressDue(rec, e.features, settings) {
			flag(rec, model.ActionCompress, &rec.Compress)
		}
		if FulltextDue(rec, innodbChanged, myisamChanged) {
			flag(rec, model.ActionFulltextRebuild, &rec.FulltextRebuild)
		}
	}

	if err := e.store.SaveSuggestions(ctx, update); err != nil {
		return nil, err
	}
	e.logger.Debug("suggestions evaluated", "schema", schema, "tables", len(recs),
		"check", len(update.Flags[model.ActionCheck]),
		"optimize", len(update.Flags[model.ActionOptimize]),
		"analyze", len(update.Flags[model.ActionAnalyze]),
		"compress", len(update.Flags[model.ActionCompress]),
		"fulltext_rebuild", len(update.Flags[model.ActionFulltextRebuild]))

	return e.store.Suggestions(ctx, schema, tables)
}
