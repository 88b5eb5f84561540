// Package config binds the "application.trips" section of application.yaml.
package config

import (
	"fmt"
	"strings"

	"go.uber.org/fx"

	"github.com/tigerroll/taxiemissions/internal/domain/trip"
	"github.com/tigerroll/taxiemissions/pkg/batch/component/step/writer"
	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/configbinder"
)

// TripsConfig drives every step of the taxi emissions job.
type TripsConfig struct {
	// WorkloadDBRef names the connection holding the trips and vehicle_emissions tables.
	WorkloadDBRef string `mapstructure:"workload_db_ref"`
	// MaxParallel bounds how many variant flows run at once. Zero runs all of them.
	MaxParallel  int                `mapstructure:"max_parallel"`
	Variants     []trip.Variant     `mapstructure:"variants"`
	Cleaning     CleaningConfig     `mapstructure:"cleaning"`
	Verification VerificationConfig `mapstructure:"verification"`
	Export       ExportConfig       `mapstructure:"export"`
	Emissions    EmissionsConfig    `mapstructure:"emissions"`
	Analysis     AnalysisConfig     `mapstructure:"analysis"`
}

// CleaningConfig enables the cleaning step and bounds the trips it keeps.
type CleaningConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	trip.CleaningRules `mapstructure:",squash"`
}

type VerificationConfig struct {
	// FailOnViolation fails the job when cleaning verification finds a violation.
	FailOnViolation bool `mapstructure:"fail_on_violation"`
}

// ExportConfig controls the Parquet export of transformed trips.
type ExportConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	StorageRef      string `mapstructure:"storage_ref"`
	Bucket          string `mapstructure:"bucket"`
	BaseDir         string `mapstructure:"base_dir"`
	CompressionType string `mapstructure:"compression_type"`
	MaxRowsPerFile  int    `mapstructure:"max_rows_per_file"`
}

// ParquetWriterConfig returns the writer settings for variant, whose files go under BaseDir/<variant>.
func (e ExportConfig) ParquetWriterConfig(variant string) writer.ParquetWriterConfig {
	return writer.ParquetWriterConfig{
		StorageRef:      e.StorageRef,
		Bucket:          e.Bucket,
		OutputBaseDir:   strings.TrimSuffix(e.BaseDir, "/") + "/" + variant,
		CompressionType: e.CompressionType,
		MaxRowsPerFile:  e.MaxRowsPerFile,
	}
}

type EmissionsConfig struct {
	// SeedFile replaces the embedded vehicle_emissions.csv when set.
	SeedFile string `mapstructure:"seed_file"`
}

type AnalysisConfig struct {
	// ReportObject is the object name of the JSON report, uploaded when export is enabled.
	ReportObject string `mapstructure:"report_object"`
}

// DefaultTripsConfig returns the settings used for keys absent from application.yaml.
func DefaultTripsConfig() TripsConfig {
	return TripsConfig{
		WorkloadDBRef: "workload",
		Variants:      trip.DefaultVariants(),
		Cleaning:      CleaningConfig{Enabled: true, CleaningRules: trip.DefaultCleaningRules()},
		Export: ExportConfig{
			StorageRef:      "exports",
			BaseDir:         "trips_transformed",
			CompressionType: "SNAPPY",
			MaxRowsPerFile:  100000,
		},
		Analysis: AnalysisConfig{ReportObject: "reports/emissions_analysis.json"},
	}
}

// Validate completes variants from their built-in defaults and checks the result.
func (c *TripsConfig) Validate() error {
	if c.WorkloadDBRef == "" {
		return fmt.Errorf("trips.workload_db_ref is required")
	}
	if len(c.Variants) == 0 {
		return fmt.Errorf("trips.variants: at least one variant is required")
	}
	names := make(map[string]struct{}, len(c.Variants))
	targets := make(map[string]string, len(c.Variants))
	for i := range c.Variants {
		v := c.Variants[i].WithDefaults()
		if err := v.Validate(); err != nil {
			return fmt.Errorf("trips.variants[%d]: %w", i, err)
		}
		if _, dup := names[v.Name]; dup {
			return fmt.Errorf("trips.variants[%d]: duplicate variant name %q", i, v.Name)
		}
		if other, dup := targets[v.Target]; dup {
			return fmt.Errorf("trips.variants[%d]: target %q is also written by variant %q", i, v.Target, other)
		}
		names[v.Name] = struct{}{}
		targets[v.Target] = v.Name
		c.Variants[i] = v
	}
	if c.MaxParallel < 0 {
		return fmt.Errorf("trips.max_parallel must not be negative")
	}
	if err := c.Cleaning.Validate(); err != nil {
		return fmt.Errorf("trips.%w", err)
	}
	if c.Export.Enabled {
		if c.Export.StorageRef == "" {
			return fmt.Errorf("trips.export.storage_ref is required when export is enabled")
		}
		if strings.Trim(c.Export.BaseDir, "/") == "" {
			return fmt.Errorf("trips.export.base_dir must not be the storage root")
		}
	}
	return nil
}

// NewTripsConfig binds application.trips over DefaultTripsConfig.
// A variants list in the yaml replaces the default list as a whole.
func NewTripsConfig(cfg *config.Config) (*TripsConfig, error) {
	out := DefaultTripsConfig()
	if raw, ok := cfg.Application["trips"]; ok {
		if section, ok := raw.(map[string]interface{}); ok {
			if _, hasVariants := section["variants"]; hasVariants {
				out.Variants = nil
			}
		}
		if err := configbinder.Bind(raw, &out); err != nil {
			return nil, fmt.Errorf("application.trips: %w", err)
		}
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// Module provides *TripsConfig.
var Module = fx.Provide(NewTripsConfig)
