package config

import "go.uber.org/fx"

// NewLoggingConfigProvider exposes the logging section on its own.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.Surfin.System.Logging
}

// NewBatchConfigProvider exposes the batch section on its own.
func NewBatchConfigProvider(cfg *Config) *BatchConfig {
	return &cfg.Surfin.Batch
}

// NewInfrastructureConfigProvider exposes the infrastructure section on its own.
func NewInfrastructureConfigProvider(cfg *Config) *InfrastructureConfig {
	return &cfg.Surfin.Infrastructure
}

// Module provides sub-sections of *Config. *Config itself is supplied by the application.
var Module = fx.Options(
	fx.Provide(NewLoggingConfigProvider),
	fx.Provide(NewBatchConfigProvider),
	fx.Provide(NewInfrastructureConfigProvider),
)
