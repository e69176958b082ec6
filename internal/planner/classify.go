package planner

import (
	"regexp"

	"github.com/faucetdb/tablekeeper/internal/model"
)

// cleanResult matches the Msg_text values that mean an administrative
// statement completed without problems.
var cleanResult = regexp.MustCompile(`(?i)^(OK|Table is already up to date|Table does not support optimize, doing recreate \+ analyze instead|Engine-independent statistics collected|Histogram statistics created.*)$`)

// Classify inspects the result rows of CHECK, REPAIR, ANALYZE or OPTIMIZE.
// The outcome is clean only when every row is on the whitelist; otherwise
// it carries a *model.CommandError listing the other messages verbatim.
func Classify(rows []model.AdminMessage) model.Outcome {
	var bad []string
	for _, r := range rows {
		if !cleanResult.MatchString(r.MsgText) {
			bad = append(bad, r.MsgText)
		}
	}
	if len(bad) == 0 {
		return model.Outcome{}
	}
	return model.Outcome{
		Severity: model.SeverityFatal,
		Err:      &model.CommandError{Messages: bad},
	}
}
