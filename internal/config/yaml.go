// Package config loads the tablekeeper configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/faucetdb/tablekeeper/internal/connector"
	"github.com/faucetdb/tablekeeper/internal/ident"
	"github.com/faucetdb/tablekeeper/internal/model"
)

// DefaultFileName is looked up in the working directory when no --config
// flag is given.
const DefaultFileName = "tablekeeper.yaml"

// YAMLConfig represents the top-level tablekeeper configuration file.
type YAMLConfig struct {
	Targets  []TargetYAML   `yaml:"targets"`
	Tracking TrackingConfig `yaml:"tracking"`
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	MCP      MCPConfig      `yaml:"mcp"`
	Run      RunConfig      `yaml:"run"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// TargetYAML defines one MySQL or MariaDB server to maintain.
type TargetYAML struct {
	Name   string          `yaml:"name"`
	DSN    string          `yaml:"dsn"`
	Schema string          `yaml:"schema,omitempty"`
	Pool   *PoolYAMLConfig `yaml:"pool,omitempty"`
}

// PoolYAMLConfig controls the connection pool of a target.
type PoolYAMLConfig struct {
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime string `yaml:"conn_max_idle_time"`
}

// TrackingConfig selects where per-table maintenance state is kept.
type TrackingConfig struct {
	Dialect string `yaml:"dialect"`
	DataDir string `yaml:"data_dir,omitempty"`
	DSN     string `yaml:"dsn,omitempty"`
	Prefix  string `yaml:"prefix"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string     `yaml:"host"`
	Port            int        `yaml:"port"`
	ShutdownTimeout string     `yaml:"shutdown_timeout"`
	RateLimit       int        `yaml:"rate_limit"`
	CORS            CORSConfig `yaml:"cors"`
	TLS             TLSConfig  `yaml:"tls"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
}

// TLSConfig controls TLS termination at the server level.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// AuthConfig controls bearer-token authentication of the HTTP API. An
// empty secret disables authentication.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	JWTExpiry string `yaml:"jwt_expiry"`
}

// MCPConfig controls the MCP (Model Context Protocol) server.
type MCPConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Transport  string `yaml:"transport"`
	AllowRun   bool   `yaml:"allow_run"`
	HTTPPrefix string `yaml:"http_prefix"`
}

// RunConfig controls execute-mode runs.
type RunConfig struct {
	Lock        bool   `yaml:"lock"`
	LockTimeout string `yaml:"lock_timeout"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadYAMLConfig reads and parses a YAML configuration file on top of the
// defaults. Environment variables referenced as ${VAR_NAME} in the file are
// expanded before parsing.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return ParseYAMLConfig(data)
}

// ParseYAMLConfig parses configuration bytes on top of the defaults.
func ParseYAMLConfig(data []byte) (*YAMLConfig, error) {
	// Expand environment variables: ${VAR_NAME}
	content := os.ExpandEnv(string(data))

	cfg := DefaultYAMLConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Tracking: TrackingConfig{
			Dialect: "sqlite",
			Prefix:  "maintainer__",
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ShutdownTimeout: "30s",
			RateLimit:       60,
			CORS: CORSConfig{
				Origins: []string{"*"},
				Methods: []string{"GET", "POST"},
			},
		},
		Auth: AuthConfig{
			JWTExpiry: "24h",
		},
		MCP: MCPConfig{
			Enabled:    true,
			Transport:  "stdio",
			HTTPPrefix: "/mcp",
		},
		Run: RunConfig{
			Lock:        true,
			LockTimeout: "0s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks names, dialects and durations.
func (c *YAMLConfig) Validate() error {
	seen := make(map[string]bool, len(c.Targets))
	for i, t := range c.Targets {
		if t.Name == "" {
			return fmt.Errorf("%w: target %d has no name", model.ErrValidation, i)
		}
		if seen[t.Name] {
			return fmt.Errorf("%w: duplicate target %q", model.ErrValidation, t.Name)
		}
		seen[t.Name] = true
		if t.DSN == "" {
			return fmt.Errorf("%w: target %q has no dsn", model.ErrValidation, t.Name)
		}
		if t.Schema != "" {
			if err := ident.ValidateSchema(t.Schema); err != nil {
				return fmt.Errorf("target %q: %w", t.Name, err)
			}
		}
	}

	switch c.Tracking.Dialect {
	case "", "sqlite":
	case "mysql":
		if c.Tracking.DSN == "" {
			return fmt.Errorf("%w: tracking dialect mysql requires a dsn", model.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown tracking dialect %q", model.ErrValidation, c.Tracking.Dialect)
	}
	if err := ident.ValidatePrefix(c.Tracking.Prefix); err != nil {
		return err
	}

	for name, v := range map[string]string{
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"auth.jwt_expiry":         c.Auth.JWTExpiry,
		"run.lock_timeout":        c.Run.LockTimeout,
	} {
		if _, err := parseDuration(v); err != nil {
			return fmt.Errorf("%w: %s: %v", model.ErrValidation, name, err)
		}
	}

	switch strings.ToLower(c.MCP.Transport) {
	case "", "stdio", "http":
	default:
		return fmt.Errorf("%w: unknown mcp transport %q", model.ErrValidation, c.MCP.Transport)
	}
	return nil
}

// Target returns the named target, or the only target when name is empty.
func (c *YAMLConfig) Target(name string) (model.TargetConfig, error) {
	if name == "" {
		if len(c.Targets) != 1 {
			return model.TargetConfig{}, fmt.Errorf("%w: %d targets configured, choose one with --target", model.ErrValidation, len(c.Targets))
		}
		return c.Targets[0].toModel(), nil
	}
	for _, t := range c.Targets {
		if t.Name == name {
			return t.toModel(), nil
		}
	}
	return model.TargetConfig{}, fmt.Errorf("%w: unknown target %q", model.ErrValidation, name)
}

// TargetConfigs returns every configured target.
func (c *YAMLConfig) TargetConfigs() []model.TargetConfig {
	out := make([]model.TargetConfig, 0, len(c.Targets))
	for _, t := range c.Targets {
		out = append(out, t.toModel())
	}
	return out
}

func (t TargetYAML) toModel() model.TargetConfig {
	pool := model.DefaultPoolConfig()
	if t.Pool != nil {
		if t.Pool.MaxOpenConns > 0 {
			pool.MaxOpenConns = t.Pool.MaxOpenConns
		}
		if t.Pool.MaxIdleConns > 0 {
			pool.MaxIdleConns = t.Pool.MaxIdleConns
		}
		if d, err := parseDuration(t.Pool.ConnMaxLifetime); err == nil && d > 0 {
			pool.ConnMaxLifetime = d
		}
		if d, err := parseDuration(t.Pool.ConnMaxIdleTime); err == nil && d > 0 {
			pool.ConnMaxIdleTime = d
		}
	}
	return model.TargetConfig{
		Name:   t.Name,
		DSN:    connector.SanitizeDSN("mysql", t.DSN),
		Schema: t.Schema,
		Pool:   pool,
	}
}

// ConnectionConfig converts a target into connector parameters.
func ConnectionConfig(t model.TargetConfig) connector.ConnectionConfig {
	return connector.ConnectionConfig{
		Driver:          "mysql",
		DSN:             t.DSN,
		MaxOpenConns:    t.Pool.MaxOpenConns,
		MaxIdleConns:    t.Pool.MaxIdleConns,
		ConnMaxLifetime: t.Pool.ConnMaxLifetime,
		ConnMaxIdleTime: t.Pool.ConnMaxIdleTime,
	}
}

// LockTimeout returns run.lock_timeout, zero when unset.
func (c *YAMLConfig) LockTimeout() time.Duration {
	d, _ := parseDuration(c.Run.LockTimeout)
	return d
}

// JWTExpiry returns auth.jwt_expiry, 24h when unset.
func (c *YAMLConfig) JWTExpiry() time.Duration {
	d, err := parseDuration(c.Auth.JWTExpiry)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// ShutdownTimeout returns server.shutdown_timeout, 30s when unset.
func (c *YAMLConfig) ShutdownTimeout() time.Duration {
	d, err := parseDuration(c.Server.ShutdownTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

func parseDuration(s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// WriteDefaultConfig writes the default configuration, with an example
// target, to a YAML file.
func WriteDefaultConfig(path string) error {
	cfg := DefaultYAMLConfig()
	cfg.Targets = []TargetYAML{{
		Name:   "primary",
		DSN:    "maint:${TABLEKEEPER_DB_PASSWORD}@tcp(127.0.0.1:3306)/",
		Schema: "app",
	}}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
