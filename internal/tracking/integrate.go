package tracking

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/faucetdb/tablekeeper/internal/ident"
	"github.com/faucetdb/tablekeeper/internal/model"
)

// columnValue copies another column of the same row.
type columnValue string

// nowValue is the integration timestamp.
type nowValue struct{}

// catalogValue reads a size column of the live table from
// information_schema. It is only rendered in plan text for the mysql
// dialect, where the tracking tables share the target server.
type catalogValue string

type assignment struct {
	column string
	value  interface{}
}

// sizeAssignments snapshots data, index and free length into the columns
// with the given suffix.
func sizeAssignments(suffix string, sizes *model.Sizes) []assignment {
	if sizes != nil {
		return []assignment{
			{"data_length_" + suffix, sizes.DataLength},
			{"index_length_" + suffix, sizes.IndexLength},
			{"data_free_" + suffix, sizes.DataFree},
		}
	}
	return []assignment{
		{"data_length_" + suffix, catalogValue("DATA_LENGTH")},
		{"index_length_" + suffix, catalogValue("INDEX_LENGTH")},
		{"data_free_" + suffix, catalogValue("DATA_FREE")},
	}
}

func integrationAssignments(in model.Integration) ([]assignment, error) {
	switch in.Kind {
	case model.IntegrateCheck:
		return []assignment{
			{"check_date", nowValue{}},
			{"check_rows", columnValue("rows_current")},
			{"check_checksum", columnValue("checksum_current")},
			{"check", false},
		}, nil
	case model.IntegrateRepair:
		return []assignment{
			{"repair_date", nowValue{}},
			{"repair", false},
		}, nil
	case model.IntegrateRepairNeeded:
		return []assignment{{"repair", true}}, nil
	case model.IntegrateAnalyze:
		return []assignment{
			{"analyze_date", nowValue{}},
			{"analyze_rows", columnValue("rows_current")},
			{"analyze_checksum", columnValue("checksum_current")},
			{"analyze", false},
		}, nil
	case model.IntegrateHistogram:
		return []assignment{
			{"analyze_date", nowValue{}},
			{"analyze_rows", columnValue("rows_current")},
			{"analyze_checksum", columnValue("checksum_current")},
		}, nil
	case model.IntegrateOptimizeBefore:
		return sizeAssignments("before", in.Sizes), nil
	case model.IntegrateOptimizeAfter:
		as := sizeAssignments("after", in.Sizes)
		if in.Sizes != nil {
			as = append(as, sizeAssignments("current", in.Sizes)...)
		}
		return append(as,
			assignment{"optimize_date", nowValue{}},
			assignment{"optimize", false},
		), nil
	case model.IntegrateCompress:
		return []assignment{
			{"row_format", in.RowFormat},
			{"page_compressed", in.PageCompressed},
			{"compress_date", nowValue{}},
			{"compress", false},
		}, nil
	case model.IntegrateFulltextRebuild:
		return []assignment{
			{"fulltext_rebuild_date", nowValue{}},
			{"fulltext_rebuild", false},
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown integration %q", model.ErrValidation, in.Kind)
}

// ApplyIntegration records a completed command sequence on the tracking row
// of its table.
func (s *Store) ApplyIntegration(ctx context.Context, in model.Integration, now time.Time) error {
	as, err := integrationAssignments(in)
	if err != nil {
		return err
	}

	sets := make([]string, 0, len(as))
	args := make([]interface{}, 0, len(as)+2)
	for _, a := range as {
		switch v := a.value.(type) {
		case columnValue:
			sets = append(sets, ident.Quote(a.column)+" = "+ident.Quote(string(v)))
		case nowValue:
			sets = append(sets, ident.Quote(a.column)+" = ?")
			args = append(args, now)
		case catalogValue:
			// No live sizes were captured: keep the last observed ones.
			sets = append(sets, ident.Quote(a.column)+" = "+ident.Quote(currentColumn(a.column)))
		default:
			sets = append(sets, ident.Quote(a.column)+" = ?")
			args = append(args, v)
		}
	}
	args = append(args, in.Target.Schema, in.Target.Table)

	q := "UPDATE " + s.table("tables") + " SET " + strings.Join(sets, ", ") + " WHERE `schema` = ? AND `table` = ?"
	return s.execOne(ctx, "integrate "+string(in.Kind), s.db.Rebind(q), args...)
}

// IntegrationSQL renders an integration as a standalone statement for plan
// output. Timestamps render as CURRENT_TIMESTAMP.
func (s *Store) IntegrationSQL(in model.Integration) (string, error) {
	if err := ident.ValidateTarget(in.Target.Schema, []string{in.Target.Table}); err != nil {
		return "", err
	}
	as, err := integrationAssignments(in)
	if err != nil {
		return "", err
	}

	sets := make([]string, 0, len(as))
	for _, a := range as {
		sets = append(sets, ident.Quote(a.column)+" = "+s.literal(in.Target, a))
	}
	return "UPDATE " + s.table("tables") + " SET " + strings.Join(sets, ", ") +
		" WHERE `schema` = " + ident.QuoteString(in.Target.Schema) +
		" AND `table` = " + ident.QuoteString(in.Target.Table) + ";", nil
}

func (s *Store) literal(target model.TableRef, a assignment) string {
	switch v := a.value.(type) {
	case columnValue:
		return ident.Quote(string(v))
	case nowValue:
		return "CURRENT_TIMESTAMP"
	case catalogValue:
		if s.dialect == DialectMySQL {
			return "(SELECT `" + string(v) + "` FROM information_schema.TABLES WHERE TABLE_SCHEMA = " +
				ident.QuoteString(target.Schema) + " AND TABLE_NAME = " + ident.QuoteString(target.Table) + ")"
		}
		return ident.Quote(currentColumn(a.column))
	case bool:
		if v {
			return "1"
		}
		return "0"
	case int64:
		return strconv.FormatInt(v, 10)
	case string:
		return ident.QuoteString(v)
	}
	return "NULL"
}

// currentColumn maps a *_before or *_after snapshot column to its *_current
// counterpart.
func currentColumn(col string) string {
	col = strings.TrimSuffix(col, "_before")
	col = strings.TrimSuffix(col, "_after")
	return col + "_current"
}
