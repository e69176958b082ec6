package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/faucetdb/tablekeeper/internal/config"
	"github.com/faucetdb/tablekeeper/internal/connector"
	"github.com/faucetdb/tablekeeper/internal/connector/mysql"
	"github.com/faucetdb/tablekeeper/internal/maintainer"
	"github.com/faucetdb/tablekeeper/internal/model"
	"github.com/faucetdb/tablekeeper/internal/tracking"
)

// defaultDataDir returns ~/.tablekeeper.
func defaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tablekeeper")
}

// loadConfig reads the config file found by viper, or the defaults when
// there is none, and applies environment and flag overrides.
func loadConfig() (*config.YAMLConfig, error) {
	cfg := config.DefaultYAMLConfig()
	if path := viper.ConfigFileUsed(); path != "" {
		loaded, err := config.LoadYAMLConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	override := func(key string, dst *string) {
		if v := os.ExpandEnv(viper.GetString(key)); v != "" {
			*dst = v
		}
	}
	override("tracking.data_dir", &cfg.Tracking.DataDir)
	override("tracking.dsn", &cfg.Tracking.DSN)
	override("auth.jwt_secret", &cfg.Auth.JWTSecret)
	override("logging.level", &cfg.Logging.Level)
	override("logging.format", &cfg.Logging.Format)

	if cfg.Tracking.Dialect == string(tracking.DialectSQLite) && cfg.Tracking.DataDir == "" {
		cfg.Tracking.DataDir = defaultDataDir()
	}
	return cfg, nil
}

// newLogger builds the slog logger described by the logging section. Logs
// always go to stderr so stdout stays parseable.
func newLogger(cfg *config.YAMLConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Logging.Format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// openStore opens the tracking store configured in the tracking section.
func openStore(cfg *config.YAMLConfig) (*tracking.Store, error) {
	store, err := tracking.Open(tracking.Options{
		Dialect: tracking.Dialect(cfg.Tracking.Dialect),
		DataDir: cfg.Tracking.DataDir,
		DSN:     cfg.Tracking.DSN,
		Prefix:  cfg.Tracking.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("open tracking store: %w", err)
	}
	return store, nil
}

// newRegistry creates a connector registry with the MySQL driver registered
// under both flavor names.
func newRegistry() *connector.Registry {
	registry := connector.NewRegistry()
	registry.RegisterDriver("mysql", mysql.New)
	registry.RegisterDriver("mariadb", mysql.New)
	return registry
}

// connectAll connects every configured target, logging the ones that fail.
func connectAll(cfg *config.YAMLConfig, registry *connector.Registry, logger *slog.Logger) {
	for _, t := range cfg.TargetConfigs() {
		if err := registry.Connect(t.Name, config.ConnectionConfig(t)); err != nil {
			logger.Error("failed to connect target", "target", t.Name, "error", err)
			continue
		}
		logger.Info("connected target", "target", t.Name, "dsn", connector.RedactDSN(t.DSN))
	}
}

// env is the state shared by the commands that work on one target.
type env struct {
	cfg      *config.YAMLConfig
	logger   *slog.Logger
	store    *tracking.Store
	registry *connector.Registry
	target   model.TargetConfig
}

// openEnv loads the config and opens the tracking store. With connect set it
// also connects the selected target.
func openEnv(connect bool) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, logger: newLogger(cfg)}

	if len(cfg.Targets) > 0 || connect {
		if targetName == "" && len(cfg.Targets) > 0 {
			targetName = cfg.Targets[0].Name
		}
		if e.target, err = cfg.Target(targetName); err != nil {
			return nil, err
		}
	}

	if e.store, err = openStore(cfg); err != nil {
		return nil, err
	}

	if connect {
		e.registry = newRegistry()
		if err := e.registry.Connect(e.target.Name, config.ConnectionConfig(e.target)); err != nil {
			e.store.Close()
			return nil, fmt.Errorf("connect target %s: %w", e.target.Name, err)
		}
	}
	return e, nil
}

func (e *env) Close() {
	if e.registry != nil {
		e.registry.CloseAll()
	}
	if e.store != nil {
		e.store.Close()
	}
}

// maintainer detects the target's features and loads the global settings.
func (e *env) maintainer(ctx context.Context) (*maintainer.Maintainer, error) {
	conn, err := e.registry.Get(e.target.Name)
	if err != nil {
		return nil, err
	}
	m, err := maintainer.Load(ctx, conn, e.store, e.logger.With("target", e.target.Name), nil)
	if err != nil {
		return nil, err
	}
	m.SetLock(maintainer.LockConfig{Enabled: e.cfg.Run.Lock, Timeout: e.cfg.LockTimeout()})
	return m, nil
}

// schema returns the schema from the first positional argument, falling
// back to the target's default schema.
func (e *env) schema(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if e.target.Schema != "" {
		return e.target.Schema, nil
	}
	return "", fmt.Errorf("%w: no schema given and target %q has no default schema", model.ErrValidation, e.target.Name)
}

// wantJSON reports whether output should be JSON: on request, or whenever
// stdout is not a terminal.
func wantJSON() bool {
	return jsonOutput || !term.IsTerminal(int(os.Stdout.Fd()))
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// parseOnOff accepts on/off, true/false, yes/no and 1/0.
func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: expected on or off, got %q", model.ErrValidation, s)
}

func mark(b bool) string {
	if b {
		return "x"
	}
	return "-"
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
