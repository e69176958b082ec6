package model

import "time"

// TargetConfig describes one MySQL or MariaDB server that tablekeeper maintains.
// Targets are addressed by name from the CLI, the HTTP API and MCP tools.
type TargetConfig struct {
	Name   string     `json:"name" yaml:"name"`
	DSN    string     `json:"-" yaml:"dsn"`
	Schema string     `json:"schema,omitempty" yaml:"schema"` // default schema when none is given
	Pool   PoolConfig `json:"pool" yaml:"pool"`
}

// PoolConfig controls the database connection pool behavior for a target.
type PoolConfig struct {
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

// DefaultPoolConfig returns pool defaults suited to a sequential maintenance
// run: one working connection, one for the advisory lock, one spare.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}
