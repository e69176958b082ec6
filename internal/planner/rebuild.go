package planner

import (
	"fmt"

	"github.com/faucetdb/tablekeeper/internal/model"
)

// IndexRebuilder produces the command that rebuilds one fulltext index.
type IndexRebuilder interface {
	RebuildIndex(t model.TableRef, idx model.Index) (Command, error)
}

// DefaultRebuilder drops the index and adds it back with the same columns
// in a single ALTER TABLE.
type DefaultRebuilder struct{}

func (DefaultRebuilder) RebuildIndex(t model.TableRef, idx model.Index) (Command, error) {
	if len(idx.Columns) == 0 {
		return Command{}, fmt.Errorf("%w: index %s on %s has no columns", model.ErrValidation, idx.Name, t)
	}
	idx.Columns = append([]string(nil), idx.Columns...)
	return Command{
		Kind:     KindRebuildIndex,
		Target:   t,
		Options:  Options{Index: &idx},
		Severity: model.SeverityFatal,
	}, nil
}
