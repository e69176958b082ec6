// Package capability builds the FeatureMatrix of a target server from its
// version string, global variables and the grants of the current user.
package capability

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/OneOfOne/xxhash"

	"github.com/faucetdb/tablekeeper/internal/connector"
	"github.com/faucetdb/tablekeeper/internal/model"
)

// Variables read for the feature matrix.
const (
	varUseStatTables  = "use_stat_tables"
	varFilePerTable   = "innodb_file_per_table"
	replicationPrefix = "5.5.5-"
	statModeNever     = "never"
	statComplementary = "complementary"
	statPreferably    = "preferably"
)

// Fulltext tuning variables hashed into the per-engine fingerprints.
var (
	InnoDBFulltextVariables = []string{
		"innodb_ft_min_token_size",
		"innodb_ft_max_token_size",
		"innodb_ft_server_stopword_table",
		"innodb_ft_user_stopword_table",
		"innodb_ft_enable_stopword",
		"ngram_token_size",
	}
	MyISAMFulltextVariables = []string{
		"ft_min_word_len",
		"ft_max_word_len",
		"ft_stopword_file",
	}
)

var versionRegex = regexp.MustCompile(`^(\d+)\.(\d+)(?:\.(\d+))?`)

// Detector queries a target server once per session.
type Detector struct {
	conn   connector.Connector
	logger *slog.Logger
}

// NewDetector returns a Detector reading through conn.
func NewDetector(conn connector.Connector, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{conn: conn, logger: logger.With("component", "capability")}
}

// Detect builds the feature matrix. Any failed query is wrapped in
// model.ErrCapability.
func (d *Detector) Detect(ctx context.Context) (model.FeatureMatrix, error) {
	var fm model.FeatureMatrix

	raw, err := d.conn.ServerVersion(ctx)
	if err != nil {
		return fm, fmt.Errorf("%w: %v", model.ErrCapability, err)
	}
	version, err := ParseVersion(raw)
	if err != nil {
		return fm, fmt.Errorf("%w: %v", model.ErrCapability, err)
	}

	vars, err := d.conn.GlobalVariables(ctx, []string{varUseStatTables, varFilePerTable})
	if err != nil {
		return fm, fmt.Errorf("%w: %v", model.ErrCapability, err)
	}

	privs, err := d.conn.Privileges(ctx)
	if err != nil {
		return fm, fmt.Errorf("%w: %v", model.ErrCapability, err)
	}

	fm = Evaluate(version, vars, privs)
	d.logger.Debug("capabilities detected",
		"version", fm.Version.String(),
		"persistent_statistics", fm.SupportsPersistentStatistics,
		"histograms", fm.SupportsColumnHistograms,
		"file_per_table", fm.FilePerTable,
		"set_global", fm.CanSetGlobalVariables,
	)
	return fm, nil
}

// Evaluate applies the capability policy to already fetched server facts.
func Evaluate(version model.Version, vars map[string]string, privileges []string) model.FeatureMatrix {
	fm := model.FeatureMatrix{
		Version:   version,
		IsMariaDB: version.Vendor == model.VendorMariaDB,
	}

	if mode, ok := vars[varUseStatTables]; ok && !strings.EqualFold(mode, statModeNever) {
		fm.SupportsPersistentStatistics = true
		fm.PersistentStatsCoverAnalyze = strings.EqualFold(mode, statComplementary) ||
			strings.EqualFold(mode, statPreferably)
	} else {
		// Without persistent statistics there is nothing for a histogram
		// pass to add over ANALYZE.
		fm.PersistentStatsCoverAnalyze = true
	}

	fm.SupportsColumnHistograms = !fm.IsMariaDB && version.AtLeast(8, 0, 0)
	fm.SupportsAutoHistogramUpdate = fm.SupportsColumnHistograms && version.AtLeast(8, 4, 0)
	fm.FilePerTable = strings.EqualFold(vars[varFilePerTable], "ON")
	fm.SupportsPageCompression = fm.IsMariaDB && version.AtLeast(10, 6, 0)

	granted := make(map[string]bool, len(privileges))
	for _, p := range privileges {
		granted[strings.ToUpper(strings.TrimSpace(p))] = true
	}
	fm.CanSetGlobalVariables = granted["SUPER"] || granted["SYSTEM_VARIABLES_ADMIN"]
	fm.CanFlush = granted["RELOAD"]
	fm.CanFlushOptimizerCosts = !fm.IsMariaDB && version.AtLeast(8, 0, 0) &&
		(granted["RELOAD"] || granted["FLUSH_OPTIMIZER_COSTS"])

	return fm
}

// ParseVersion classifies a VERSION() string.
func ParseVersion(raw string) (model.Version, error) {
	v := model.Version{Vendor: model.VendorMySQL, Raw: raw}
	s := strings.TrimPrefix(strings.TrimSpace(raw), replicationPrefix)
	if strings.Contains(strings.ToLower(raw), "mariadb") {
		v.Vendor = model.VendorMariaDB
	}

	m := versionRegex.FindStringSubmatch(s)
	if m == nil {
		return v, fmt.Errorf("unrecognised server version %q", raw)
	}
	v.Major, _ = strconv.Atoi(m[1])
	v.Minor, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		v.Patch, _ = strconv.Atoi(m[3])
	}
	return v, nil
}

// Fingerprints hashes the current fulltext tuning variables of each engine
// family.
func (d *Detector) Fingerprints(ctx context.Context) (model.Fingerprints, error) {
	names := append(append([]string{}, InnoDBFulltextVariables...), MyISAMFulltextVariables...)
	vars, err := d.conn.GlobalVariables(ctx, names)
	if err != nil {
		return model.Fingerprints{}, fmt.Errorf("%w: fulltext variables: %v", model.ErrCapability, err)
	}
	return model.Fingerprints{
		InnoDB: Fingerprint(InnoDBFulltextVariables, vars),
		MyISAM: Fingerprint(MyISAMFulltextVariables, vars),
	}, nil
}

// Fingerprint returns the hex xxhash64 of the sorted name=value pairs of
// names. Variables missing from vars hash as empty values.
func Fingerprint(names []string, vars map[string]string) string {
	pairs := make([]string, len(names))
	for i, n := range names {
		pairs[i] = n + "=" + vars[n]
	}
	sort.Strings(pairs)

	h := xxhash.New64()
	h.Write([]byte(strings.Join(pairs, "\n")))
	return strconv.FormatUint(h.Sum64(), 16)
}
