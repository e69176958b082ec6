package tracking

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/faucetdb/tablekeeper/internal/ident"
	"github.com/faucetdb/tablekeeper/internal/model"
)

type settingRow struct {
	Setting     string         `db:"setting"`
	Value       sql.NullString `db:"value"`
	Description sql.NullString `db:"description"`
}

// SettingEntry is one row of the settings table as shown to users.
type SettingEntry struct {
	Setting     string `json:"setting"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

// Setting returns a raw setting value. A NULL value is returned as "".
func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	var v sql.NullString
	q := "SELECT `value` FROM " + s.table("settings") + " WHERE `setting` = ?"
	if err := s.db.GetContext(ctx, &v, q, key); err != nil {
		if notFound(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return v.String, nil
}

// SetSetting writes a raw setting value, creating the row when needed. An
// empty value is stored as NULL.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	var v interface{}
	if value != "" {
		v = value
	}
	ins := s.insertIgnore() + " " + s.table("settings") + " (`setting`, `value`, `description`) VALUES (?, NULL, '')"
	if _, err := s.db.ExecContext(ctx, ins, key); err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	upd := "UPDATE " + s.table("settings") + " SET `value` = ? WHERE `setting` = ?"
	if _, err := s.db.ExecContext(ctx, upd, v, key); err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// ListSettings returns every settings row ordered by name.
func (s *Store) ListSettings(ctx context.Context) ([]SettingEntry, error) {
	var rows []settingRow
	q := "SELECT `setting`, `value`, `description` FROM " + s.table("settings") + " ORDER BY `setting`"
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	out := make([]SettingEntry, len(rows))
	for i, r := range rows {
		out[i] = SettingEntry{Setting: r.Setting, Value: r.Value.String, Description: r.Description.String}
	}
	return out, nil
}

// LoadSettings reads the global policy.
func (s *Store) LoadSettings(ctx context.Context) (model.Settings, error) {
	var rows []settingRow
	q := "SELECT `setting`, `value`, `description` FROM " + s.table("settings")
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return model.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	values := make(map[string]string, len(rows))
	for _, r := range rows {
		values[r.Setting] = r.Value.String
	}

	return model.Settings{
		PreferCompressed: truthy(values[model.SettingPreferCompressed]),
		PreferExtended:   truthy(values[model.SettingPreferExtended]),
		CompressAutoRun:  truthy(values[model.SettingCompressAutoRun]),
		RepairAutoRun:    truthy(values[model.SettingRepairAutoRun]),
		UseFlush:         truthy(values[model.SettingUseFlush]),
		Maintenance: model.MaintenanceTarget{
			Schema:        values[model.SettingMaintenanceSchema],
			Table:         values[model.SettingMaintenanceTable],
			SettingColumn: values[model.SettingMaintenanceSetting],
			SettingName:   values[model.SettingMaintenanceName],
			ValueColumn:   values[model.SettingMaintenanceValue],
		},
		Fulltext: model.Fingerprints{
			InnoDB: values[model.SettingInnoDBFulltext],
			MyISAM: values[model.SettingMyISAMFulltext],
		},
	}, nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

func boolValue(on bool) string {
	if on {
		return "1"
	}
	return "0"
}

// ---------------------------------------------------------------------------
// Per-table policy mutators
// ---------------------------------------------------------------------------

var (
	suggestActions = []model.Action{model.ActionAnalyze, model.ActionCheck, model.ActionCompress, model.ActionOptimize}
	autoRunActions = []model.Action{model.ActionAnalyze, model.ActionCheck, model.ActionFulltextRebuild, model.ActionOptimize}
	daysActions    = []model.Action{model.ActionAnalyze, model.ActionCheck, model.ActionOptimize}

	// TableFineTuneOptions are the per-table boolean options.
	TableFineTuneOptions = []string{"use_checksum", "exact_rows", "only_if_changed", "analyze_histogram", "analyze_histogram_auto"}
)

func allowedAction(action model.Action, allowed []model.Action, what string) error {
	for _, a := range allowed {
		if a == action {
			return nil
		}
	}
	return fmt.Errorf("%w: unsupported action %q for %s", model.ErrValidation, action, what)
}

// updateTables sets one column on the selected tables of a schema. No
// tables means every tracked table of the schema.
func (s *Store) updateTables(ctx context.Context, column string, value interface{}, schema string, tables []string) (int64, error) {
	if err := ident.ValidateTarget(schema, tables); err != nil {
		return 0, err
	}
	where, args := tableFilter(schema, tables)
	q, args, err := s.in("UPDATE "+s.table("tables")+" SET `"+column+"` = ? WHERE "+where, append([]interface{}{value}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", column, err)
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", column, err)
	}
	return res.RowsAffected()
}

// SetSuggest enables or disables suggestions of an action.
func (s *Store) SetSuggest(ctx context.Context, action model.Action, on bool, schema string, tables []string) (int64, error) {
	if err := allowedAction(action, suggestActions, "suggest"); err != nil {
		return 0, err
	}
	return s.updateTables(ctx, string(action)+"_suggest", on, schema, tables)
}

// SetAutoRun enables or disables automatic execution of an action.
func (s *Store) SetAutoRun(ctx context.Context, action model.Action, on bool, schema string, tables []string) (int64, error) {
	if err := allowedAction(action, autoRunActions, "auto run"); err != nil {
		return 0, err
	}
	return s.updateTables(ctx, string(action)+"_auto_run", on, schema, tables)
}

// SetDays sets the delay between runs of an action. Values below 1 are
// raised to 1.
func (s *Store) SetDays(ctx context.Context, action model.Action, days int, schema string, tables []string) (int64, error) {
	if err := allowedAction(action, daysActions, "days delay"); err != nil {
		return 0, err
	}
	if days < 1 {
		days = 1
	}
	return s.updateTables(ctx, string(action)+"_days_delay", days, schema, tables)
}

// SetTableFineTune toggles one of TableFineTuneOptions.
func (s *Store) SetTableFineTune(ctx context.Context, option string, on bool, schema string, tables []string) (int64, error) {
	for _, o := range TableFineTuneOptions {
		if o == option {
			return s.updateTables(ctx, option, on, schema, tables)
		}
	}
	return 0, fmt.Errorf("%w: unsupported table option %q", model.ErrValidation, option)
}

// SetThresholdFragmentation sets the OPTIMIZE threshold. Negative values
// become 0 and values over 100 fall back to the default.
func (s *Store) SetThresholdFragmentation(ctx context.Context, pct decimal.Decimal, schema string, tables []string) (int64, error) {
	if pct.IsNegative() {
		pct = decimal.Zero
	}
	if pct.GreaterThan(decimal.NewFromInt(100)) {
		pct = model.DefaultThresholdFragmentation
	}
	return s.updateTables(ctx, "threshold_fragmentation", pct.Round(2), schema, tables)
}

// SetThresholdRowsDelta sets the row delta that counts as a change.
// Negative values become 0.
func (s *Store) SetThresholdRowsDelta(ctx context.Context, n int64, schema string, tables []string) (int64, error) {
	if n < 0 {
		n = 0
	}
	return s.updateTables(ctx, "threshold_rows_delta", n, schema, tables)
}

// SetBuckets sets the histogram bucket count, clamped to 1..1024.
func (s *Store) SetBuckets(ctx context.Context, n int, schema string, tables []string) (int64, error) {
	if n < 1 {
		n = 1
	}
	if n > model.MaxHistogramBuckets {
		n = model.MaxHistogramBuckets
	}
	return s.updateTables(ctx, "analyze_histogram_buckets", n, schema, tables)
}

// ---------------------------------------------------------------------------
// Global policy mutators
// ---------------------------------------------------------------------------

// SetGlobalFineTune toggles one of model.GlobalFineTuneOptions.
func (s *Store) SetGlobalFineTune(ctx context.Context, option string, on bool) error {
	for _, o := range model.GlobalFineTuneOptions {
		if o == option {
			return s.SetSetting(ctx, option, boolValue(on))
		}
	}
	return fmt.Errorf("%w: unsupported setting %q", model.ErrValidation, option)
}

// SetMaintenance stores the maintenance-mode target. Empty fields clear the
// corresponding setting; set fields must be valid identifiers.
func (s *Store) SetMaintenance(ctx context.Context, target model.MaintenanceTarget) error {
	fields := []struct {
		key, value string
	}{
		{model.SettingMaintenanceSchema, target.Schema},
		{model.SettingMaintenanceTable, target.Table},
		{model.SettingMaintenanceSetting, target.SettingColumn},
		{model.SettingMaintenanceName, target.SettingName},
		{model.SettingMaintenanceValue, target.ValueColumn},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := ident.Validate("maintenance "+f.key, f.value); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set maintenance: %w", err)
	}
	defer tx.Rollback()

	upd := "UPDATE " + s.table("settings") + " SET `value` = ? WHERE `setting` = ?"
	for _, f := range fields {
		var v interface{}
		if f.value != "" {
			v = f.value
		}
		if _, err := tx.ExecContext(ctx, upd, v, f.key); err != nil {
			return fmt.Errorf("set %s: %w", f.key, err)
		}
	}
	return tx.Commit()
}
