// Package config loads tool configuration from ~/.variantdb.yaml, the
// environment and command-line overrides, in that order of increasing
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hgvslab/variantdb/internal/clinvar"
	"github.com/hgvslab/variantdb/internal/normalize"
)

// Config holds the resolved settings.
type Config struct {
	DataDir             string        `mapstructure:"data_dir"`
	VariantValidatorURL string        `mapstructure:"variantvalidator_url"`
	ClinVarURL          string        `mapstructure:"clinvar_url"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	MaxRetries          int           `mapstructure:"max_retries"`
	RateLimit           float64       `mapstructure:"rate_limit"`
}

// DatasetsDir is where per-dataset store files live.
func (c *Config) DatasetsDir() string {
	return filepath.Join(c.DataDir, "datasets")
}

// ClinVarDBPath is the reference annotation store file.
func (c *Config) ClinVarDBPath() string {
	return filepath.Join(c.DataDir, "clinvar.duckdb")
}

// DefaultDataDir returns ~/.variantdb, falling back to the working
// directory when the home directory cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".variantdb"
	}
	return filepath.Join(home, ".variantdb")
}

// Init wires defaults, the config file and the environment into viper.
// cfgFile overrides the default ~/.variantdb.yaml location.
func Init(cfgFile string) error {
	viper.SetDefault("data_dir", DefaultDataDir())
	viper.SetDefault("variantvalidator_url", normalize.DefaultBaseURL)
	viper.SetDefault("clinvar_url", clinvar.SummaryURL)
	viper.SetDefault("request_timeout", 10*time.Second)
	viper.SetDefault("max_retries", 4)
	viper.SetDefault("rate_limit", 2.0)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".variantdb")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("VARIANTDB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && (errors.As(err, &notFound) || os.IsNotExist(err)) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// Load unmarshals the current viper state.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}
