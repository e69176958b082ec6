package maintainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/google/uuid"

	"github.com/faucetdb/tablekeeper/internal/ident"
	"github.com/faucetdb/tablekeeper/internal/model"
	"github.com/faucetdb/tablekeeper/internal/planner"
)

// timedStatement selects the timings reported with a run.
var timedStatement = regexp.MustCompile(`(?i)^(OPTIMIZE|CHECK|ANALYZE|REPAIR|ALTER|FLUSH)`)

// AutoProcess executes every suggested action whose auto-run policy allows
// it, one table at a time in size order. Action failures are recorded in the
// result and do not stop the run; only a failed lock, suggestion pass or
// maintenance-mode switch aborts it.
func (m *Maintainer) AutoProcess(ctx context.Context, schema string, tables []string) (res *model.RunResult, err error) {
	if err := ident.ValidateTarget(schema, tables); err != nil {
		return nil, err
	}

	runID := uuid.Must(uuid.NewV7()).String()
	res = model.NewRunResult(runID, schema, m.clock())
	logger := m.logger.With("run_id", runID, "schema", schema)
	if m.lock.Enabled {
		name := LockName(schema)
		got, err := m.conn.Lock(ctx, name, m.lock.Timeout)
		if err != nil {
			return res, fmt.Errorf("acquire run lock: %w", err)
		}
		if !got {
			return res, fmt.Errorf("%w: %s", model.ErrLocked, schema)
		}
		defer func() {
			if err := m.conn.Unlock(context.WithoutCancel(ctx), name); err != nil {
				logger.Warn("release run lock", "error", err)
			}
		}()
	}

	suggestions, err := m.Suggest(ctx, schema, tables)
	if err != nil {
		return res, err
	}
	if len(suggestions) == 0 {
		res.FinishedAt = m.clock()
		logger.Info("nothing to maintain")
		return res, nil
	}
	logger.Info("run started", "tables", len(suggestions))

	m.conn.ResetTimings()
	defer func() {
		res.General.MaintenanceEnd = m.switchMaintenance(context.WithoutCancel(ctx), logger, false)
		res.General.Timings = filterTimings(m.conn.Timings())
		m.conn.ResetTimings()
		res.FinishedAt = m.clock()
		logger.Info("run finished", "failures", res.Failures())
	}()

	res.General.MaintenanceStart = m.switchMaintenance(ctx, logger, true)
	if res.General.MaintenanceStart.Status == model.StatusFailed {
		return res, fmt.Errorf("maintenance mode on: %s", res.General.MaintenanceStart.Error)
	}

	for _, s := range suggestions {
		for _, a := range selectActions(s) {
			if !m.autoRun(s, a) {
				res.Set(s.Table, a, model.Skipped())
				continue
			}
			if err := ctx.Err(); err != nil {
				return res, err
			}
			cell := m.runAction(ctx, logger, s, a)
			if cell.Status == model.StatusFailed {
				logger.Warn("action failed", "table", s.Table, "action", a, "error", cell.Error)
			}
			res.Set(s.Table, a, cell)
		}
	}

	if cmds := m.planner.FulltextReset(); len(cmds) > 0 {
		res.General.FulltextReset = model.FromOutcome(m.execute(ctx, logger, cmds))
	}
	if m.settings.UseFlush {
		if cmds := m.planner.Flush(); len(cmds) > 0 {
			res.General.Flush = model.FromOutcome(m.execute(ctx, logger, cmds))
		}
	}
	return res, nil
}

func (m *Maintainer) switchMaintenance(ctx context.Context, logger *slog.Logger, activate bool) model.ActionResult {
	cmds, err := m.planner.Maintenance(activate)
	if err != nil {
		return model.Failed(err)
	}
	if len(cmds) == 0 {
		return model.Skipped()
	}
	return model.FromOutcome(m.execute(ctx, logger, cmds))
}

func filterTimings(all []model.Timing) []model.Timing {
	out := []model.Timing{}
	for _, t := range all {
		if timedStatement.MatchString(t.Statement) {
			out = append(out, t)
		}
	}
	return out
}

// runAction plans and executes one action with integrations enabled.
func (m *Maintainer) runAction(ctx context.Context, logger *slog.Logger, s model.Suggestion, a model.Action) model.ActionResult {
	cmds, err := m.plan(ctx, s.Ref(), a, true)
	if err != nil {
		return model.Failed(err)
	}
	if a == model.ActionCheck {
		return m.runCheck(ctx, logger, s, cmds)
	}
	return model.FromOutcome(m.execute(ctx, logger, cmds))
}

// runCheck runs CHECK TABLE. A table reported broken is flagged for repair
// and, when repair_auto_run is set, repaired before the check is recorded.
func (m *Maintainer) runCheck(ctx context.Context, logger *slog.Logger, s model.Suggestion, cmds []planner.Command) model.ActionResult {
	if len(cmds) == 0 {
		return model.Skipped()
	}
	out := m.executeOne(ctx, cmds[0])
	if out.OK() {
		return model.FromOutcome(m.execute(ctx, logger, cmds[1:]))
	}

	var cerr *model.CommandError
	if !errors.As(out.Err, &cerr) || len(cerr.Messages) == 0 || !s.Engine.SupportsRepair() {
		return model.Failed(out.Err)
	}

	flag := model.Integration{Kind: model.IntegrateRepairNeeded, Target: s.Ref()}
	if err := m.store.ApplyIntegration(ctx, flag, m.clock()); err != nil {
		logger.Warn("flag table for repair", "table", s.Table, "error", err)
	}

	if m.settings.RepairAutoRun {
		repair, err := m.planner.Repair(ctx, s.Ref(), true, false)
		if err != nil {
			return model.Failed(err)
		}
		logger.Info("repairing table after failed check", "table", s.Table, "messages", cerr.Messages)
		if ro := m.execute(ctx, logger, repair); !ro.OK() {
			return model.Failed(ro.Err)
		}
		return model.FromOutcome(m.execute(ctx, logger, cmds[1:]))
	}
	return model.Failed(fmt.Errorf("Failed to CHECK %s.%s with following error: %s", s.Schema, s.Table, cerr.Detail()))
}

// execute runs commands in order. After a fatal failure only commands
// marked Always still run. The returned outcome is the first fatal failure,
// else the first recoverable one; ignored failures are only logged.
func (m *Maintainer) execute(ctx context.Context, logger *slog.Logger, cmds []planner.Command) model.Outcome {
	var fatal, recoverable model.Outcome
	for _, c := range cmds {
		if fatal.Err != nil && !c.Always {
			continue
		}
		if fatal.Err == nil {
			if err := ctx.Err(); err != nil {
				fatal = model.Outcome{Severity: model.SeverityFatal, Err: err}
				continue
			}
		}
		out := m.executeOne(ctx, c)
		if out.OK() {
			continue
		}
		switch out.Severity {
		case model.SeverityIgnored:
			logger.Debug("statement failed", "kind", c.Kind, "error", out.Err)
		case model.SeverityRecoverable:
			logger.Warn("statement failed", "kind", c.Kind, "error", out.Err)
			if recoverable.Err == nil {
				recoverable = out
			}
		default:
			if fatal.Err == nil {
				fatal = out
			}
		}
	}
	if fatal.Err != nil {
		return fatal
	}
	return recoverable
}

// executeOne runs a single command. Integrations are applied to the
// tracking store; everything else is rendered and sent to the target.
func (m *Maintainer) executeOne(ctx context.Context, c planner.Command) model.Outcome {
	sev := c.Severity
	if sev == "" {
		sev = model.SeverityFatal
	}

	if c.Kind == planner.KindIntegrate {
		if c.Integration == nil {
			return model.Outcome{Severity: model.SeverityFatal, Err: fmt.Errorf("%w: integrate command without integration", model.ErrValidation)}
		}
		in := *c.Integration
		if in.SnapshotsSizes() {
			if st, err := m.conn.TableStatus(ctx, in.Target.Schema, in.Target.Table); err == nil {
				in.Sizes = &model.Sizes{DataLength: st.DataLength, IndexLength: st.IndexLength, DataFree: st.DataFree}
			} else {
				m.logger.Debug("size snapshot unavailable", "table", in.Target.String(), "error", err)
			}
		}
		if err := m.store.ApplyIntegration(ctx, in, m.clock()); err != nil {
			return model.Outcome{Severity: sev, Err: fmt.Errorf("integrate %s: %w", in.Kind, err)}
		}
		return model.Outcome{}
	}

	stmt, err := m.planner.Render(c)
	if err != nil {
		return model.Outcome{Severity: model.SeverityFatal, Err: err}
	}

	if c.Kind.Administrative() {
		rows, err := m.conn.Admin(ctx, stmt)
		if err != nil {
			return model.Outcome{Severity: sev, Err: &model.CommandError{Statement: stmt, Err: err}}
		}
		out := planner.Classify(rows)
		if !out.OK() {
			var cerr *model.CommandError
			if errors.As(out.Err, &cerr) {
				cerr.Statement = stmt
			}
			out.Severity = sev
		}
		return out
	}

	if err := m.conn.Exec(ctx, stmt); err != nil {
		return model.Outcome{Severity: sev, Err: &model.CommandError{Statement: stmt, Err: err}}
	}
	return model.Outcome{}
}
