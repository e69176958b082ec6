package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/faucetdb/tablekeeper/internal/maintainer"
	"github.com/faucetdb/tablekeeper/internal/model"
)

// Sessions resolves a target name to its Maintainer. service.Sessions
// satisfies it.
type Sessions interface {
	Targets() []string
	With(ctx context.Context, target string, fn func(*maintainer.Maintainer) error) error
}

// MaintenanceHandler serves the maintenance endpoints under /api/v1.
type MaintenanceHandler struct {
	sessions Sessions
}

// NewMaintenanceHandler creates a MaintenanceHandler.
func NewMaintenanceHandler(sessions Sessions) *MaintenanceHandler {
	return &MaintenanceHandler{sessions: sessions}
}

// ListTargets handles GET /api/v1/targets.
func (h *MaintenanceHandler) ListTargets(w http.ResponseWriter, r *http.Request) {
	targets := h.sessions.Targets()
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: targets,
		Meta:     &model.ResponseMeta{Count: len(targets)},
	})
}

// Features handles GET /api/v1/{target}/features.
func (h *MaintenanceHandler) Features(w http.ResponseWriter, r *http.Request) {
	var out struct {
		Features model.FeatureMatrix `json:"features"`
		Settings model.Settings      `json:"settings"`
	}
	err := h.sessions.With(r.Context(), chi.URLParam(r, "target"), func(m *maintainer.Maintainer) error {
		out.Features = m.Features()
		out.Settings = m.Settings()
		return nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Suggestions handles GET /api/v1/{target}/{schema}/suggestions.
func (h *MaintenanceHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var out []model.Suggestion
	err := h.sessions.With(r.Context(), chi.URLParam(r, "target"), func(m *maintainer.Maintainer) error {
		var err error
		out, err = m.Suggest(r.Context(), chi.URLParam(r, "schema"), queryTables(r))
		return err
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if out == nil {
		out = []model.Suggestion{}
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: out,
		Meta: &model.ResponseMeta{
			Count:  len(out),
			TookMs: float64(time.Since(start).Microseconds()) / 1000.0,
		},
	})
}

// Commands handles GET /api/v1/{target}/{schema}/commands.
func (h *MaintenanceHandler) Commands(w http.ResponseWriter, r *http.Request) {
	var plan *model.Plan
	err := h.sessions.With(r.Context(), chi.URLParam(r, "target"), func(m *maintainer.Maintainer) error {
		var err error
		plan, err = m.GetCommands(r.Context(), chi.URLParam(r, "schema"), queryTables(r),
			queryBool(r, "integrate"), queryBool(r, "flatten"))
		return err
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// Run handles POST /api/v1/{target}/{schema}/run. A run that started returns
// 200 with its result tree even when some actions failed.
func (h *MaintenanceHandler) Run(w http.ResponseWriter, r *http.Request) {
	var res *model.RunResult
	err := h.sessions.With(r.Context(), chi.URLParam(r, "target"), func(m *maintainer.Maintainer) error {
		var err error
		res, err = m.AutoProcess(r.Context(), chi.URLParam(r, "schema"), queryTables(r))
		return err
	})
	if err != nil {
		ctx := map[string]interface{}{}
		if res != nil {
			ctx["result"] = res
		}
		writeError(w, classifyError(err), err.Error(), ctx)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
