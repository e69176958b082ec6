package model

import "fmt"

// Vendor is the server family.
type Vendor string

const (
	VendorMySQL   Vendor = "mysql"
	VendorMariaDB Vendor = "mariadb"
)

// Version is a parsed server version.
type Version struct {
	Vendor Vendor `json:"vendor"`
	Major  int    `json:"major"`
	Minor  int    `json:"minor"`
	Patch  int    `json:"patch"`
	Raw    string `json:"raw"`
}

// AtLeast reports whether v >= major.minor.patch.
func (v Version) AtLeast(major, minor, patch int) bool {
	if v.Major != major {
		return v.Major > major
	}
	if v.Minor != minor {
		return v.Minor > minor
	}
	return v.Patch >= patch
}

func (v Version) String() string {
	return fmt.Sprintf("%s %d.%d.%d", v.Vendor, v.Major, v.Minor, v.Patch)
}

// FeatureMatrix is the set of target-server behaviors available for one
// session. It is computed once and passed by value; it is never persisted.
type FeatureMatrix struct {
	Version Version `json:"version"`

	IsMariaDB                    bool `json:"is_mariadb"`
	SupportsPersistentStatistics bool `json:"supports_persistent_statistics"`
	PersistentStatsCoverAnalyze  bool `json:"persistent_stats_cover_analyze"`
	SupportsColumnHistograms     bool `json:"supports_column_histograms"`
	SupportsAutoHistogramUpdate  bool `json:"supports_auto_histogram_update"`
	FilePerTable                 bool `json:"file_per_table"`
	SupportsPageCompression      bool `json:"supports_page_compression"`
	CanSetGlobalVariables        bool `json:"can_set_global_variables"`
	CanFlush                     bool `json:"can_flush"`
	CanFlushOptimizerCosts       bool `json:"can_flush_optimizer_costs"`
}

// HistogramCapable reports whether some form of column statistics beyond a
// plain ANALYZE can be collected. With noSkip, persistent statistics count
// even when the server already gathers them during ANALYZE.
func (f FeatureMatrix) HistogramCapable(noSkip bool) bool {
	if f.SupportsColumnHistograms {
		return true
	}
	return f.SupportsPersistentStatistics && (!f.PersistentStatsCoverAnalyze || noSkip)
}

// Fingerprints are hashes of the server's fulltext tuning variables.
type Fingerprints struct {
	InnoDB string `json:"innodb"`
	MyISAM string `json:"myisam"`
}
