package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/exception"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

const moduleName = "config"

// LoadConfig builds the configuration in three layers:
//
//  1. defaults from NewConfig,
//  2. the embedded YAML, after ${VAR} expansion (variables may come from the .env file),
//  3. environment overrides named after the YAML path, e.g. SURFIN_BATCH_CHUNK_SIZE.
//
// A missing .env file is not an error.
func LoadConfig(envFilePath string, embedded EmbeddedConfig) (*Config, error) {
	return loadConfig(envFilePath, embedded, NewOsEnvironmentExpander())
}

func loadConfig(envFilePath string, embedded EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Debugf(".env file (%s) not loaded: %v", envFilePath, err)
		}
	}

	cfg := NewConfig()

	expanded, err := expander.Expand(embedded)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to expand environment placeholders", err, false, false)
	}
	// yaml.v3 leaves fields absent from the document untouched, so defaults survive.
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to unmarshal embedded config", err, false, false)
	}
	cfg.EmbeddedConfig = embedded

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load config from environment variables", err, false, false)
	}
	if err := validate(cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "invalid configuration", err, false, false)
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Surfin.Batch.ChunkSize <= 0 {
		return fmt.Errorf("surfin.batch.chunk_size must be positive, got %d", cfg.Surfin.Batch.ChunkSize)
	}
	if cfg.Surfin.Batch.Retry.MaxAttempts < 1 {
		return fmt.Errorf("surfin.batch.retry.max_attempts must be at least 1, got %d", cfg.Surfin.Batch.Retry.MaxAttempts)
	}
	if _, err := cfg.Surfin.System.Location(); err != nil {
		return err
	}
	switch cfg.Surfin.Infrastructure.Metrics.Exporter {
	case "", "none", "prometheus", "otlp":
	default:
		return fmt.Errorf("unknown metrics exporter %q", cfg.Surfin.Infrastructure.Metrics.Exporter)
	}
	if ref := cfg.Surfin.Infrastructure.JobRepositoryDBRef; ref != "" {
		if _, ok := cfg.Surfin.Adapter.Database[ref]; !ok {
			return fmt.Errorf("job_repository_db_ref %q has no surfin.adapter.database entry", ref)
		}
	}
	return nil
}

// loadStructFromEnv walks val and overrides scalar fields from environment variables
// whose names are the upper-cased, underscore-joined yaml tags along the path.
// Map-typed sections are left to ${VAR} expansion.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		tag := strings.Split(typ.Field(i).Tag.Get("yaml"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}
		name := strings.ToUpper(prefix + tag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, name+"_"); err != nil {
				return err
			}
			continue
		}

		raw, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		if err := setField(field, raw); err != nil {
			return fmt.Errorf("env var %s: %w", name, err)
		}
	}
	return nil
}

func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	}
	return nil
}
