package model

import "time"

// Status is the recorded state of one action cell in a run.
type Status string

const (
	StatusSkipped Status = "skipped"
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
)

// ActionResult is one cell of the results tree.
type ActionResult struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Skipped, Succeeded and Failed build ActionResults.
func Skipped() ActionResult { return ActionResult{Status: StatusSkipped} }

func Succeeded() ActionResult { return ActionResult{Status: StatusOK} }

func Failed(err error) ActionResult {
	return ActionResult{Status: StatusFailed, Error: err.Error()}
}

// FromOutcome converts an Outcome into a result cell.
func FromOutcome(o Outcome) ActionResult {
	if o.OK() {
		return Succeeded()
	}
	return Failed(o.Err)
}

// GeneralResult holds the run-wide steps that are not tied to one table.
type GeneralResult struct {
	MaintenanceStart ActionResult `json:"maintenance_start"`
	FulltextReset    ActionResult `json:"fulltext_reset"`
	Flush            ActionResult `json:"flush"`
	MaintenanceEnd   ActionResult `json:"maintenance_end"`
	Timings          []Timing     `json:"timings"`
}

// RunResult is the nested result of an execute-mode run, keyed by table and
// action. General collects maintenance-mode transitions, flush and timings.
type RunResult struct {
	RunID      string                             `json:"run_id"`
	Schema     string                             `json:"schema"`
	StartedAt  time.Time                          `json:"started_at"`
	FinishedAt time.Time                          `json:"finished_at"`
	Tables     map[string]map[Action]ActionResult `json:"tables"`
	General    GeneralResult                      `json:"maintainer_general"`
}

// NewRunResult returns an empty result with every general step skipped.
func NewRunResult(runID, schema string, started time.Time) *RunResult {
	return &RunResult{
		RunID:     runID,
		Schema:    schema,
		StartedAt: started,
		Tables:    make(map[string]map[Action]ActionResult),
		General: GeneralResult{
			MaintenanceStart: Skipped(),
			FulltextReset:    Skipped(),
			Flush:            Skipped(),
			MaintenanceEnd:   Skipped(),
		},
	}
}

// Set records the result of one action for one table.
func (r *RunResult) Set(table string, action Action, res ActionResult) {
	cells, ok := r.Tables[table]
	if !ok {
		cells = make(map[Action]ActionResult, len(ActionOrder))
		r.Tables[table] = cells
	}
	cells[action] = res
}

// Failures counts failed cells across all tables.
func (r *RunResult) Failures() int {
	n := 0
	for _, cells := range r.Tables {
		for _, c := range cells {
			if c.Status == StatusFailed {
				n++
			}
		}
	}
	return n
}

// Plan is the output of plan mode. Tables holds, per table, the rendered
// statements of every flagged action in execution order. Flat is set when a
// single bracketed list was requested.
type Plan struct {
	Schema string              `json:"schema"`
	Tables map[string][]string `json:"tables,omitempty"`
	Order  []string            `json:"order,omitempty"`
	Flat   []string            `json:"flat,omitempty"`
}
