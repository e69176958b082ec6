package capability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faucetdb/tablekeeper/internal/connector/connectortest"
	"github.com/faucetdb/tablekeeper/internal/model"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		raw    string
		vendor model.Vendor
		major  int
		minor  int
		patch  int
	}{
		{"8.0.36", model.VendorMySQL, 8, 0, 36},
		{"8.4.0-commercial", model.VendorMySQL, 8, 4, 0},
		{"10.6.16-MariaDB-1:10.6.16+maria~ubu2204", model.VendorMariaDB, 10, 6, 16},
		{"5.5.5-10.11.6-MariaDB", model.VendorMariaDB, 10, 11, 6},
		{"5.7.44-log", model.VendorMySQL, 5, 7, 44},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			v, err := ParseVersion(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.vendor, v.Vendor)
			assert.Equal(t, []int{tt.major, tt.minor, tt.patch}, []int{v.Major, v.Minor, v.Patch})
			assert.Equal(t, tt.raw, v.Raw)
		})
	}

	_, err := ParseVersion("garbage")
	assert.Error(t, err)
}

func TestDetectMySQL84(t *testing.T) {
	f := connectortest.New("8.4.2")
	f.Variables["innodb_file_per_table"] = "ON"
	f.Grants = []string{"SELECT", "SYSTEM_VARIABLES_ADMIN", "FLUSH_OPTIMIZER_COSTS"}

	fm, err := NewDetector(f, nil).Detect(context.Background())
	require.NoError(t, err)

	assert.False(t, fm.IsMariaDB)
	assert.True(t, fm.SupportsColumnHistograms)
	assert.True(t, fm.SupportsAutoHistogramUpdate)
	assert.True(t, fm.FilePerTable)
	assert.False(t, fm.SupportsPageCompression)
	assert.False(t, fm.SupportsPersistentStatistics, "use_stat_tables is absent on MySQL")
	assert.True(t, fm.PersistentStatsCoverAnalyze)
	assert.True(t, fm.CanSetGlobalVariables)
	assert.False(t, fm.CanFlush)
	assert.True(t, fm.CanFlushOptimizerCosts)
}

func TestDetectMariaDB(t *testing.T) {
	tests := []struct {
		name         string
		mode         string
		persistent   bool
		coverAnalyze bool
	}{
		{"never", "NEVER", false, true},
		{"complementary", "COMPLEMENTARY", true, true},
		{"preferably", "preferably_for_queries", true, false},
		{"preferably exact", "PREFERABLY", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := connectortest.New("10.6.16-MariaDB")
			f.Variables["use_stat_tables"] = tt.mode
			f.Variables["innodb_file_per_table"] = "OFF"
			f.Grants = []string{"SUPER", "RELOAD"}

			fm, err := NewDetector(f, nil).Detect(context.Background())
			require.NoError(t, err)

			assert.True(t, fm.IsMariaDB)
			assert.Equal(t, tt.persistent, fm.SupportsPersistentStatistics)
			assert.Equal(t, tt.coverAnalyze, fm.PersistentStatsCoverAnalyze)
			assert.False(t, fm.SupportsColumnHistograms)
			assert.True(t, fm.SupportsPageCompression)
			assert.False(t, fm.FilePerTable)
			assert.True(t, fm.CanSetGlobalVariables)
			assert.True(t, fm.CanFlush)
			assert.False(t, fm.CanFlushOptimizerCosts)
		})
	}
}

func TestDetectOldMariaDBHasNoPageCompression(t *testing.T) {
	f := connectortest.New("10.5.9-MariaDB")
	fm, err := NewDetector(f, nil).Detect(context.Background())
	require.NoError(t, err)
	assert.False(t, fm.SupportsPageCompression)
	assert.False(t, fm.CanSetGlobalVariables)
}

func TestDetectPropagatesFailures(t *testing.T) {
	for _, method := range []string{"ServerVersion", "GlobalVariables", "Privileges"} {
		t.Run(method, func(t *testing.T) {
			f := connectortest.New("8.0.36")
			f.Errors[method] = errors.New("connection reset")

			_, err := NewDetector(f, nil).Detect(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrCapability)
		})
	}
}

func TestFingerprints(t *testing.T) {
	f := connectortest.New("8.0.36")
	f.Variables["innodb_ft_min_token_size"] = "3"
	f.Variables["ft_min_word_len"] = "4"

	d := NewDetector(f, nil)
	first, err := d.Fingerprints(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, first.InnoDB)
	assert.NotEqual(t, first.InnoDB, first.MyISAM)

	again, err := d.Fingerprints(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, again, "fingerprints must be stable")

	f.Variables["innodb_ft_min_token_size"] = "2"
	changed, err := d.Fingerprints(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.InnoDB, changed.InnoDB)
	assert.Equal(t, first.MyISAM, changed.MyISAM)
}

func TestFingerprintIgnoresNameOrder(t *testing.T) {
	vars := map[string]string{"a": "1", "b": "2"}
	assert.Equal(t, Fingerprint([]string{"a", "b"}, vars), Fingerprint([]string{"b", "a"}, vars))
}
