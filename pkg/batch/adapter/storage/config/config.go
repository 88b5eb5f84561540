// Package config defines the settings of one entry under surfin.adapter.storage.
package config

import (
	"fmt"

	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/configbinder"
)

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type" mapstructure:"type"`                         // "local" or "gcs"
	BucketName      string `yaml:"bucket_name" mapstructure:"bucket_name"`           // default bucket
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"` // GCS service account key
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`                 // GCS emulator URL, disables auth
	BaseDir         string `yaml:"base_dir" mapstructure:"base_dir"`                 // root directory for local storage
}

// Decode converts a raw YAML section into a StorageConfig.
func Decode(raw interface{}) (StorageConfig, error) {
	var cfg StorageConfig
	if err := configbinder.Bind(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("decode storage config: %w", err)
	}
	if cfg.Type == "" {
		return cfg, fmt.Errorf("storage config has no type")
	}
	return cfg, nil
}
