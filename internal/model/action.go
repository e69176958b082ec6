package model

import "fmt"

// Action is a maintenance action kind.
type Action string

const (
	ActionRepair          Action = "repair"
	ActionCheck           Action = "check"
	ActionCompress        Action = "compress"
	ActionOptimize        Action = "optimize"
	ActionHistogram       Action = "analyze_histogram"
	ActionAnalyze         Action = "analyze"
	ActionFulltextRebuild Action = "fulltext_rebuild"
)

// ActionOrder is the order actions run in for a single table. Repair comes
// first and optimize precedes analyze because it may subsume it.
var ActionOrder = []Action{
	ActionRepair,
	ActionCheck,
	ActionCompress,
	ActionOptimize,
	ActionHistogram,
	ActionAnalyze,
	ActionFulltextRebuild,
}

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	for _, a := range ActionOrder {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrValidation, s)
}

// Severity says how the orchestrator treats a failure.
type Severity string

const (
	SeverityFatal       Severity = "fatal"
	SeverityRecoverable Severity = "recoverable"
	SeverityIgnored     Severity = "ignored"
)

// Outcome is the result of one step. A nil Err means the step succeeded.
type Outcome struct {
	Severity Severity `json:"severity,omitempty"`
	Err      error    `json:"-"`
}

// OK reports whether the step succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

func (o Outcome) Error() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
