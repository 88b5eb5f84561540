// Package config holds the runtime configuration tree and its loader.
//
// The YAML document has two top-level keys: "surfin" for the batch runtime itself and
// "application" for settings owned by the job being run. Adapter sections
// (surfin.adapter.database.<name>, surfin.adapter.storage.<name>) stay as raw maps
// here and are decoded by the adapter that owns them.
package config

import (
	"fmt"
	"time"
)

// EmbeddedConfig is the raw application.yaml compiled into the binary.
type EmbeddedConfig []byte

// RetryConfig bounds how often a chunk transaction is retried after a transient failure.
type RetryConfig struct {
	MaxAttempts     int      `yaml:"max_attempts"`     // total attempts per chunk, 1 disables retry
	IntervalMillis  int      `yaml:"interval_millis"`  // wait before the first retry, doubled on each further one
	RetryableErrors []string `yaml:"retryable_errors"` // registered error names or message fragments
}

// BatchConfig holds defaults for the step engine and launcher.
type BatchConfig struct {
	JobName                string      `yaml:"job_name"`                 // job launched by the binary
	ChunkSize              int         `yaml:"chunk_size"`               // items per chunk transaction
	PollingIntervalSeconds int         `yaml:"polling_interval_seconds"` // how often the launcher polls job status
	Retry                  RetryConfig `yaml:"retry"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // DEBUG, INFO, WARN, ERROR or FATAL
}

// SystemConfig holds process-wide settings.
type SystemConfig struct {
	// Timezone is the IANA zone used to interpret naive timestamps and derive calendar fields.
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// Location resolves Timezone, treating an empty value as UTC.
func (s SystemConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// OTLPConfig describes an OpenTelemetry collector endpoint.
type OTLPConfig struct {
	Endpoint              string            `yaml:"endpoint"`                // host:port for grpc, URL for http/protobuf
	Protocol              string            `yaml:"protocol"`                // "grpc" or "http/protobuf"
	Headers               map[string]string `yaml:"headers"`                 // extra request headers, e.g. auth tokens
	ExportIntervalSeconds int               `yaml:"export_interval_seconds"` // metric push interval
}

// PrometheusConfig configures the Prometheus recorder.
type PrometheusConfig struct {
	Namespace      string `yaml:"namespace"`
	PushGatewayURL string `yaml:"push_gateway_url"` // when set, metrics are pushed at job end
}

// MetricsConfig selects the metric recorder implementation.
type MetricsConfig struct {
	// Exporter is one of "none", "prometheus" or "otlp".
	Exporter   string           `yaml:"exporter"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	OTLP       OTLPConfig       `yaml:"otlp"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled     bool       `yaml:"enabled"`
	ServiceName string     `yaml:"service_name"`
	OTLP        OTLPConfig `yaml:"otlp"`
}

// InfrastructureConfig wires runtime services to adapters and exporters.
type InfrastructureConfig struct {
	// JobRepositoryDBRef names the database connection holding batch metadata.
	// When empty, execution metadata is kept in memory.
	JobRepositoryDBRef string        `yaml:"job_repository_db_ref"`
	Metrics            MetricsConfig `yaml:"metrics"`
	Tracing            TracingConfig `yaml:"tracing"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// MaskedParameterKeys lists job parameter keys whose values are masked in logs.
	MaskedParameterKeys []string `yaml:"masked_parameter_keys"`
}

// AdapterConfigs holds raw adapter sections keyed by connection name.
type AdapterConfigs struct {
	Database map[string]interface{} `yaml:"database"`
	Storage  map[string]interface{} `yaml:"storage"`
}

// SurfinConfig is everything under the "surfin" key.
type SurfinConfig struct {
	Batch          BatchConfig          `yaml:"batch"`
	System         SystemConfig         `yaml:"system"`
	Infrastructure InfrastructureConfig `yaml:"infrastructure"`
	Security       SecurityConfig       `yaml:"security"`
	Adapter        AdapterConfigs       `yaml:"adapter"`
}

// Config is the root of the configuration tree.
type Config struct {
	Surfin SurfinConfig `yaml:"surfin"`
	// Application is the job-specific section, decoded by the application with mapstructure.
	Application map[string]interface{} `yaml:"application"`
	// EmbeddedConfig keeps the source document for diagnostics.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Surfin: SurfinConfig{
			Batch: BatchConfig{
				ChunkSize:              1000,
				PollingIntervalSeconds: 2,
				Retry:                  RetryConfig{MaxAttempts: 3, IntervalMillis: 200},
			},
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO"},
			},
			Infrastructure: InfrastructureConfig{
				Metrics: MetricsConfig{
					Exporter:   "none",
					Prometheus: PrometheusConfig{Namespace: "surfin"},
					OTLP:       OTLPConfig{Protocol: "grpc", ExportIntervalSeconds: 15},
				},
				Tracing: TracingConfig{
					ServiceName: "taxiemissions",
					OTLP:        OTLPConfig{Protocol: "grpc"},
				},
			},
			Security: SecurityConfig{
				MaskedParameterKeys: []string{"password", "api_key", "secret", "credentials_file"},
			},
			Adapter: AdapterConfigs{
				Database: map[string]interface{}{},
				Storage:  map[string]interface{}{},
			},
		},
		Application: map[string]interface{}{},
	}
}

// IsMaskedParameter reports whether a job parameter value must not be logged.
func (c *Config) IsMaskedParameter(key string) bool {
	for _, k := range c.Surfin.Security.MaskedParameterKeys {
		if k == key {
			return true
		}
	}
	return false
}
