package model

import "strings"

// Global setting keys as stored in the tracking store.
const (
	SettingVersion            = "version"
	SettingPreferCompressed   = "prefer_compressed"
	SettingPreferExtended     = "prefer_extended"
	SettingCompressAutoRun    = "compress_auto_run"
	SettingRepairAutoRun      = "repair_auto_run"
	SettingUseFlush           = "use_flush"
	SettingInnoDBFulltext     = "innodb_fulltext"
	SettingMyISAMFulltext     = "myisam_fulltext"
	SettingMaintenanceSchema  = "maintenance_schema_name"
	SettingMaintenanceTable   = "maintenance_table_name"
	SettingMaintenanceSetting = "maintenance_setting_column"
	SettingMaintenanceName    = "maintenance_setting_name"
	SettingMaintenanceValue   = "maintenance_value_column"
)

// GlobalFineTuneOptions are the boolean global settings callers may toggle.
var GlobalFineTuneOptions = []string{
	SettingPreferCompressed,
	SettingPreferExtended,
	SettingCompressAutoRun,
	SettingRepairAutoRun,
	SettingUseFlush,
}

// Settings is the global policy as stored in the tracking store.
type Settings struct {
	PreferCompressed bool              `json:"prefer_compressed"`
	PreferExtended   bool              `json:"prefer_extended"`
	CompressAutoRun  bool              `json:"compress_auto_run"`
	RepairAutoRun    bool              `json:"repair_auto_run"`
	UseFlush         bool              `json:"use_flush"`
	Maintenance      MaintenanceTarget `json:"maintenance"`
	Fulltext         Fingerprints      `json:"fulltext"`
}

// MaintenanceTarget is the external location of the maintenance-mode flag:
//
//	UPDATE `Schema`.`Table` SET `ValueColumn` = 1 WHERE `SettingColumn` = 'SettingName'
type MaintenanceTarget struct {
	Schema        string `json:"schema"`
	Table         string `json:"table"`
	SettingColumn string `json:"setting_column"`
	SettingName   string `json:"setting_name"`
	ValueColumn   string `json:"value_column"`
}

// Configured reports whether every part of the target is set.
func (m MaintenanceTarget) Configured() bool {
	for _, v := range []string{m.Schema, m.Table, m.SettingColumn, m.SettingName, m.ValueColumn} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}
