// Package config defines the settings of one entry under surfin.adapter.database.
package config

import (
	"fmt"

	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/configbinder"
)

// PoolConfig holds database/sql pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes" mapstructure:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Type     string     `yaml:"type" mapstructure:"type"`         // "postgres", "mysql" or "sqlite"
	Host     string     `yaml:"host" mapstructure:"host"`         // ignored for sqlite
	Port     int        `yaml:"port" mapstructure:"port"`         // ignored for sqlite
	Database string     `yaml:"database" mapstructure:"database"` // database name, or file path for sqlite
	User     string     `yaml:"user" mapstructure:"user"`
	Password string     `yaml:"password" mapstructure:"password"`
	Schema   string     `yaml:"schema,omitempty" mapstructure:"schema"` // PostgreSQL search_path
	Sslmode  string     `yaml:"sslmode" mapstructure:"sslmode"`
	Pool     PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// Decode converts a raw YAML section into a DatabaseConfig.
func Decode(raw interface{}) (DatabaseConfig, error) {
	var cfg DatabaseConfig
	if err := configbinder.Bind(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("decode database config: %w", err)
	}
	if cfg.Type == "" {
		return cfg, fmt.Errorf("database config has no type")
	}
	return cfg, nil
}
