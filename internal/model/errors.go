package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed identifiers, unsupported action/engine
	// combinations and unusable configuration. It is raised before any
	// statement runs.
	ErrValidation = errors.New("validation failed")

	// ErrCapability marks a failed capability query. Downstream decisions
	// would be unsound without it, so it aborts the run.
	ErrCapability = errors.New("capability detection failed")

	// ErrLocked is returned when another run holds the schema's advisory lock.
	ErrLocked = errors.New("run already in progress for schema")
)

// CommandError reports an administrative statement whose result rows were
// not all on the benign whitelist, or which failed outright.
type CommandError struct {
	Statement string
	Messages  []string
	Err       error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Statement, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Statement, strings.Join(e.Messages, "; "))
}

func (e *CommandError) Unwrap() error { return e.Err }

// Detail returns the server-side failure text without the statement.
func (e *CommandError) Detail() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return strings.Join(e.Messages, "; ")
}
