package tracking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/faucetdb/tablekeeper/internal/model"
)

// columnNames returns the tables-table columns, quoted or as named params.
func columnNames(named bool) string {
	parts := make([]string, len(tableColumns))
	for i, c := range tableColumns {
		if named {
			parts[i] = ":" + c.name
		} else {
			parts[i] = "`" + c.name + "`"
		}
	}
	return strings.Join(parts, ", ")
}

// observedColumns are rewritten on every refresh of an existing row.
var observedColumns = []string{
	"engine", "row_format", "has_fulltext", "page_compressed", "rows_current",
	"update_time", "data_length_current", "index_length_current", "data_free_current",
	"check_date",
}

const totalLength = "(`data_length_current` + `index_length_current` + `data_free_current`)"

// Table returns one tracked table.
func (s *Store) Table(ctx context.Context, schema, table string) (*model.TableRecord, error) {
	var rec model.TableRecord
	q := "SELECT * FROM " + s.table("tables") + " WHERE `schema` = ? AND `table` = ?"
	if err := s.db.GetContext(ctx, &rec, q, schema, table); err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get table: %w", err)
	}
	return &rec, nil
}

// Tables lists tracked tables of a schema, optionally filtered, ordered by
// total size ascending.
func (s *Store) Tables(ctx context.Context, schema string, tables []string) ([]model.TableRecord, error) {
	where, args := tableFilter(schema, tables)
	q, args, err := s.in("SELECT * FROM "+s.table("tables")+" WHERE "+where+" ORDER BY "+totalLength+", `table`", args...)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	var recs []model.TableRecord
	if err := s.db.SelectContext(ctx, &recs, q, args...); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return recs, nil
}

// UpsertObserved records live catalog state. New tables get the default
// policy. Existing rows keep their policy and snapshots; check_date keeps
// the later of the stored and reported values and rows_current is not
// replaced by an estimate on a day an exact count was taken.
func (s *Store) UpsertObserved(ctx context.Context, statuses []model.TableStatus, now time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert tables: %w", err)
	}
	defer tx.Rollback()

	get := "SELECT * FROM " + s.table("tables") + " WHERE `schema` = ? AND `table` = ?"
	insert := "INSERT INTO " + s.table("tables") + " (" + columnNames(false) + ") VALUES (" + columnNames(true) + ")"

	sets := make([]string, len(observedColumns))
	for i, c := range observedColumns {
		sets[i] = "`" + c + "` = :" + c
	}
	update := "UPDATE " + s.table("tables") + " SET " + strings.Join(sets, ", ") +
		" WHERE `schema` = :schema AND `table` = :table"

	for _, st := range statuses {
		var rec model.TableRecord
		err := tx.GetContext(ctx, &rec, get, st.Schema, st.Table)
		switch {
		case notFound(err):
			rec = model.NewTableRecord(st.Schema, st.Table)
			applyObserved(&rec, st, now)
			if _, err := tx.NamedExecContext(ctx, insert, &rec); err != nil {
				return fmt.Errorf("insert table %s: %w", st.Table, err)
			}
		case err != nil:
			return fmt.Errorf("read table %s: %w", st.Table, err)
		default:
			applyObserved(&rec, st, now)
			if _, err := tx.NamedExecContext(ctx, update, &rec); err != nil {
				return fmt.Errorf("update table %s: %w", st.Table, err)
			}
		}
	}
	return tx.Commit()
}

func applyObserved(rec *model.TableRecord, st model.TableStatus, now time.Time) {
	rec.Engine = st.Engine
	rec.RowFormat = st.RowFormat
	rec.HasFulltext = st.HasFulltext
	rec.PageCompressed = st.PageCompressed
	rec.DataLengthCurrent = st.DataLength
	rec.IndexLengthCurrent = st.IndexLength
	rec.DataFreeCurrent = st.DataFree

	if st.Rows != nil && !(rec.ExactRows && model.SameDay(rec.RowsDate, now)) {
		rec.RowsCurrent = *st.Rows
	}
	if lm := st.LastModified(); lm != nil {
		rec.UpdateTime = lm
	}
	if st.CheckTime != nil && (rec.CheckDate == nil || st.CheckTime.After(*rec.CheckDate)) {
		rec.CheckDate = st.CheckTime
	}
}

// DeleteMissingTables removes tracking, include and exclude rows of tables
// that are no longer in live.
func (s *Store) DeleteMissingTables(ctx context.Context, schema string, live []string) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("delete missing tables: %w", err)
	}
	defer tx.Rollback()

	var deleted int64
	for _, name := range []string{"tables", "columns_include", "columns_exclude"} {
		q := "DELETE FROM " + s.table(name) + " WHERE `schema` = ?"
		args := []interface{}{schema}
		if len(live) > 0 {
			q += " AND `table` NOT IN (?)"
			args = append(args, live)
		}
		q, args, err := s.in(q, args...)
		if err != nil {
			return 0, fmt.Errorf("delete missing tables: %w", err)
		}
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("delete missing from %s: %w", name, err)
		}
		if name == "tables" {
			deleted, _ = res.RowsAffected()
		}
	}
	return deleted, tx.Commit()
}

// DeleteMissingColumns removes include and exclude rows whose column no
// longer exists in the schema.
func (s *Store) DeleteMissingColumns(ctx context.Context, schema string, live []model.ColumnRef) (int64, error) {
	exists := make(map[model.ColumnRef]bool, len(live))
	for _, c := range live {
		exists[c] = true
	}

	var deleted int64
	for _, name := range []string{"columns_include", "columns_exclude"} {
		var rows []columnRow
		q := "SELECT `schema`, `table`, `column` FROM " + s.table(name) + " WHERE `schema` = ?"
		if err := s.db.SelectContext(ctx, &rows, q, schema); err != nil {
			return deleted, fmt.Errorf("list %s: %w", name, err)
		}
		del := "DELETE FROM " + s.table(name) + " WHERE `schema` = ? AND `table` = ? AND `column` = ?"
		for _, r := range rows {
			if exists[model.ColumnRef{Table: r.Table, Column: r.Column}] {
				continue
			}
			if _, err := s.db.ExecContext(ctx, del, r.Schema, r.Table, r.Column); err != nil {
				return deleted, fmt.Errorf("delete from %s: %w", name, err)
			}
			deleted++
		}
	}
	return deleted, nil
}

// ApplyPersistentStats copies row counts from mysql.innodb_table_stats for
// tables whose stored update time is unknown or not newer than the stats.
func (s *Store) ApplyPersistentStats(ctx context.Context, schema string, stats []model.PersistentStats) (int, error) {
	byTable := make(map[string]model.PersistentStats, len(stats))
	for _, st := range stats {
		byTable[st.Table] = st
	}

	recs, err := s.Tables(ctx, schema, nil)
	if err != nil {
		return 0, err
	}

	q := "UPDATE " + s.table("tables") + " SET `rows_current` = ?, `update_time` = ? WHERE `schema` = ? AND `table` = ?"
	applied := 0
	for _, rec := range recs {
		st, ok := byTable[rec.Table]
		if !ok {
			continue
		}
		if rec.UpdateTime != nil && rec.UpdateTime.After(st.LastUpdate) {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, st.Rows, st.LastUpdate, schema, rec.Table); err != nil {
			return applied, fmt.Errorf("apply persistent stats to %s: %w", rec.Table, err)
		}
		applied++
	}
	return applied, nil
}

// SetExactRows stores an exact row count and stamps rows_date.
func (s *Store) SetExactRows(ctx context.Context, schema, table string, rows int64, now time.Time) error {
	q := "UPDATE " + s.table("tables") + " SET `rows_current` = ?, `rows_date` = ? WHERE `schema` = ? AND `table` = ?"
	return s.execOne(ctx, "set exact rows", q, rows, now, schema, table)
}

// SetChecksum stores a table checksum and stamps checksum_date.
func (s *Store) SetChecksum(ctx context.Context, schema, table string, checksum int64, now time.Time) error {
	q := "UPDATE " + s.table("tables") + " SET `checksum_current` = ?, `checksum_date` = ? WHERE `schema` = ? AND `table` = ?"
	return s.execOne(ctx, "set checksum", q, checksum, now, schema, table)
}

func (s *Store) execOne(ctx context.Context, op, q string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SuggestionUpdate is the outcome of one suggestion pass, persisted
// atomically by SaveSuggestions.
type SuggestionUpdate struct {
	Schema string
	// Flags lists, per action, the tables newly suggested for it.
	Flags map[model.Action][]string
	// Evaluated lists every table the pass looked at.
	Evaluated []string
	// Fulltext becomes the new fingerprint baseline when set.
	Fulltext *model.Fingerprints
	At       time.Time
}

var flagColumns = map[model.Action]string{
	model.ActionCheck:           "check",
	model.ActionOptimize:        "optimize",
	model.ActionAnalyze:         "analyze",
	model.ActionCompress:        "compress",
	model.ActionFulltextRebuild: "fulltext_rebuild",
	model.ActionRepair:          "repair",
}

const pendingSum = "(`check` + `repair` + `compress` + `analyze` + `optimize` + `fulltext_rebuild`)"

// SaveSuggestions sets suggestion flags with one UPDATE per action, stamps
// analyzed on every evaluated table without a pending action, and stores
// the fulltext baseline, all in one transaction.
func (s *Store) SaveSuggestions(ctx context.Context, u SuggestionUpdate) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save suggestions: %w", err)
	}
	defer tx.Rollback()

	for _, action := range model.ActionOrder {
		tables := u.Flags[action]
		col, ok := flagColumns[action]
		if !ok || len(tables) == 0 {
			continue
		}
		q, args, err := s.in("UPDATE "+s.table("tables")+" SET `"+col+"` = 1, `analyzed` = ? WHERE `schema` = ? AND `table` IN (?)",
			u.At, u.Schema, tables)
		if err != nil {
			return fmt.Errorf("suggest %s: %w", action, err)
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("suggest %s: %w", action, err)
		}
	}

	if len(u.Evaluated) > 0 {
		q, args, err := s.in("UPDATE "+s.table("tables")+" SET `analyzed` = ? WHERE `schema` = ? AND `table` IN (?) AND "+pendingSum+" = 0",
			u.At, u.Schema, u.Evaluated)
		if err != nil {
			return fmt.Errorf("stamp analyzed: %w", err)
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("stamp analyzed: %w", err)
		}
	}

	if u.Fulltext != nil {
		upd := "UPDATE " + s.table("settings") + " SET `value` = ? WHERE `setting` = ?"
		if _, err := tx.ExecContext(ctx, upd, u.Fulltext.InnoDB, model.SettingInnoDBFulltext); err != nil {
			return fmt.Errorf("store innodb fulltext baseline: %w", err)
		}
		if _, err := tx.ExecContext(ctx, upd, u.Fulltext.MyISAM, model.SettingMyISAMFulltext); err != nil {
			return fmt.Errorf("store myisam fulltext baseline: %w", err)
		}
	}

	return tx.Commit()
}

// Suggestions returns the tables with at least one pending action ordered
// by total size ascending.
func (s *Store) Suggestions(ctx context.Context, schema string, tables []string) ([]model.Suggestion, error) {
	where, args := tableFilter(schema, tables)
	q := "SELECT `schema`, `table`, `engine`, " + totalLength + " AS `total_length`, " +
		"`check`, `check_auto_run`, `repair`, `compress`, `analyze`, `analyze_auto_run`, " +
		"`optimize`, `optimize_auto_run`, `fulltext_rebuild`, `fulltext_rebuild_auto_run`, `analyze_histogram` " +
		"FROM " + s.table("tables") + " WHERE " + where + " AND " + pendingSum + " > 0 " +
		"ORDER BY " + totalLength + ", `table`"
	q, args, err := s.in(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	var out []model.Suggestion
	if err := s.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	return out, nil
}
