package tracking

import (
	"context"
	"fmt"
	"strings"

	"github.com/faucetdb/tablekeeper/internal/model"
)

// SchemaVersion is the tracking schema version recorded in the settings table.
const SchemaVersion = "1.0.0"

// column kinds mapped to dialect types by columnType.
const (
	kindName     = "name"
	kindShort    = "short"
	kindFlag     = "flag"
	kindDays     = "days"
	kindCount    = "count"
	kindOptCount = "optcount"
	kindDate     = "date"
	kindPercent  = "percent"
)

type columnDef struct {
	name string
	kind string
	dflt string
}

// tableColumns lists the columns of the tables table in storage order. The
// defaults mirror model.NewTableRecord.
var tableColumns = []columnDef{
	{"schema", kindName, ""},
	{"table", kindName, ""},
	{"analyzed", kindDate, ""},
	{"engine", kindShort, "'Other'"},
	{"row_format", kindShort, "''"},
	{"has_fulltext", kindFlag, "0"},
	{"page_compressed", kindFlag, "0"},
	{"rows_current", kindCount, "0"},
	{"rows_date", kindDate, ""},
	{"update_time", kindDate, ""},
	{"checksum_current", kindOptCount, ""},
	{"checksum_date", kindDate, ""},
	{"data_length_current", kindCount, "0"},
	{"index_length_current", kindCount, "0"},
	{"data_free_current", kindCount, "0"},
	{"data_length_before", kindOptCount, ""},
	{"index_length_before", kindOptCount, ""},
	{"data_free_before", kindOptCount, ""},
	{"data_length_after", kindOptCount, ""},
	{"index_length_after", kindOptCount, ""},
	{"data_free_after", kindOptCount, ""},
	{"use_checksum", kindFlag, "0"},
	{"exact_rows", kindFlag, "0"},
	{"only_if_changed", kindFlag, "1"},
	{"threshold_rows_delta", kindCount, "10000"},
	{"threshold_fragmentation", kindPercent, "10.00"},
	{"check", kindFlag, "0"},
	{"check_suggest", kindFlag, "1"},
	{"check_auto_run", kindFlag, "0"},
	{"check_days_delay", kindDays, "30"},
	{"check_date", kindDate, ""},
	{"check_rows", kindOptCount, ""},
	{"check_checksum", kindOptCount, ""},
	{"analyze", kindFlag, "0"},
	{"analyze_suggest", kindFlag, "1"},
	{"analyze_auto_run", kindFlag, "1"},
	{"analyze_days_delay", kindDays, "14"},
	{"analyze_date", kindDate, ""},
	{"analyze_rows", kindOptCount, ""},
	{"analyze_checksum", kindOptCount, ""},
	{"analyze_histogram", kindFlag, "0"},
	{"analyze_histogram_auto", kindFlag, "0"},
	{"analyze_histogram_buckets", kindDays, "100"},
	{"optimize", kindFlag, "0"},
	{"optimize_suggest", kindFlag, "1"},
	{"optimize_auto_run", kindFlag, "1"},
	{"optimize_days_delay", kindDays, "30"},
	{"optimize_date", kindDate, ""},
	{"compress", kindFlag, "0"},
	{"compress_suggest", kindFlag, "1"},
	{"compress_date", kindDate, ""},
	{"fulltext_rebuild", kindFlag, "0"},
	{"fulltext_rebuild_auto_run", kindFlag, "0"},
	{"fulltext_rebuild_date", kindDate, ""},
	{"repair", kindFlag, "0"},
	{"repair_date", kindDate, ""},
}

// settingRows are seeded on first migration.
var settingRows = []struct {
	setting     string
	value       *string
	description string
}{
	{model.SettingMaintenanceTable, nil, "Table name to use to enable database maintenance for the service"},
	{model.SettingMaintenanceSchema, nil, "Schema name to use to enable database maintenance for the service"},
	{model.SettingMaintenanceSetting, nil, "Setting's column name to use to enable database maintenance for the service"},
	{model.SettingMaintenanceName, nil, "Setting's name to use to enable database maintenance for the service"},
	{model.SettingMaintenanceValue, nil, "Value's column name to use to enable database maintenance for the service"},
	{model.SettingPreferCompressed, strPtr("0"), "Suggest COMPRESSED row format over DYNAMIC when both are available"},
	{model.SettingPreferExtended, strPtr("0"), "Use EXTENDED with CHECK and REPAIR"},
	{model.SettingCompressAutoRun, strPtr("0"), "Apply compression automatically"},
	{model.SettingRepairAutoRun, strPtr("0"), "Run REPAIR automatically when CHECK detects an issue"},
	{model.SettingUseFlush, strPtr("0"), "Use FLUSH statements at the end of processing when permitted"},
	{model.SettingMyISAMFulltext, nil, "MyISAM FULLTEXT settings fingerprint, used to track changes of server settings"},
	{model.SettingInnoDBFulltext, nil, "InnoDB FULLTEXT settings fingerprint, used to track changes of server settings"},
	{model.SettingVersion, strPtr(SchemaVersion), "Version of the tracking schema"},
}

func strPtr(s string) *string { return &s }

func (s *Store) columnType(c columnDef) string {
	mysql := s.dialect == DialectMySQL
	var typ string
	switch c.kind {
	case kindName:
		typ = "TEXT NOT NULL"
		if mysql {
			typ = "VARCHAR(64) NOT NULL"
		}
	case kindShort:
		typ = "TEXT NOT NULL"
		if mysql {
			typ = "VARCHAR(64) NOT NULL"
		}
	case kindFlag:
		typ = "INTEGER NOT NULL"
		if mysql {
			typ = "TINYINT(1) UNSIGNED NOT NULL"
		}
	case kindDays:
		typ = "INTEGER NOT NULL"
		if mysql {
			typ = "SMALLINT UNSIGNED NOT NULL"
		}
	case kindCount:
		typ = "INTEGER NOT NULL"
		if mysql {
			typ = "BIGINT UNSIGNED NOT NULL"
		}
	case kindOptCount:
		typ = "INTEGER NULL"
		if mysql {
			typ = "BIGINT NULL"
		}
	case kindDate:
		typ = "DATETIME NULL"
	case kindPercent:
		typ = "NUMERIC NOT NULL"
		if mysql {
			typ = "DECIMAL(5,2) UNSIGNED NOT NULL"
		}
	}
	if c.dflt != "" {
		typ += " DEFAULT " + c.dflt
	}
	return "`" + c.name + "` " + typ
}

func (s *Store) tableOptions() string {
	if s.dialect == DialectMySQL {
		return " ENGINE = InnoDB DEFAULT CHARSET = utf8mb4"
	}
	return ""
}

func (s *Store) createTables() string {
	defs := make([]string, 0, len(tableColumns)+1)
	for _, c := range tableColumns {
		defs = append(defs, s.columnType(c))
	}
	defs = append(defs, "PRIMARY KEY (`schema`, `table`)")
	return "CREATE TABLE IF NOT EXISTS " + s.table("tables") + " (\n\t\t\t" +
		strings.Join(defs, ",\n\t\t\t") + "\n\t\t)" + s.tableOptions()
}

func (s *Store) createColumnList(name string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			%s,
			%s,
			%s,
			PRIMARY KEY (`+"`schema`, `table`, `column`"+`)
		)%s`,
		s.table(name),
		s.columnType(columnDef{"schema", kindName, ""}),
		s.columnType(columnDef{"table", kindName, ""}),
		s.columnType(columnDef{"column", kindName, ""}),
		s.tableOptions())
}

func (s *Store) createSettings() string {
	key, value, desc := "TEXT NOT NULL", "TEXT NULL", "TEXT NULL"
	if s.dialect == DialectMySQL {
		key, value, desc = "VARCHAR(32) NOT NULL", "VARCHAR(64) NULL", "VARCHAR(255) NULL"
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t\t\t`setting` %s PRIMARY KEY,\n\t\t\t`value` %s,\n\t\t\t`description` %s\n\t\t)%s",
		s.table("settings"), key, value, desc, s.tableOptions())
}

// Migrate creates the tracking tables and seeds the settings rows. It is
// idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	migrations := []string{
		s.createSettings(),
		s.createTables(),
		s.createColumnList("columns_include"),
		s.createColumnList("columns_exclude"),
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			// ALTER TABLE ADD COLUMN fails if the column already exists;
			// treat "duplicate column" as a no-op for idempotent migrations.
			if isDuplicateColumn(err) {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	seed := s.insertIgnore() + " " + s.table("settings") + " (`setting`, `value`, `description`) VALUES (?, ?, ?)"
	for _, row := range settingRows {
		if _, err := s.db.ExecContext(ctx, seed, row.setting, row.value, row.description); err != nil {
			return fmt.Errorf("seed setting %s: %w", row.setting, err)
		}
	}
	return nil
}

// Version returns the recorded tracking schema version.
func (s *Store) Version(ctx context.Context) (string, error) {
	return s.Setting(ctx, model.SettingVersion)
}
