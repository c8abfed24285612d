// Package config resolves Kiwibes' runtime configuration from CLI
// flags and KIWIBES_-prefixed environment variables, using viper's
// layered precedence (flag > env > default). No config file is read.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/kiwibes/kiwibesd/internal/kerrors"
)

// Config is the fully resolved set of knobs a Kiwibes server runs with.
type Config struct {
	Home               string `mapstructure:"home"`
	Port               int    `mapstructure:"port"`
	LogLevel           int    `mapstructure:"logLevel"`
	LogMaxSizeMB       int    `mapstructure:"logMaxSizeMB"`
	DataStoreMaxSizeMB int    `mapstructure:"dataStoreMaxSizeMB"`
}

// CatalogPath returns the path to the catalog persistence file.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.Home, "kiwibes.json")
}

// AuthPath returns the path to the auth-token persistence file.
func (c *Config) AuthPath() string {
	return filepath.Join(c.Home, "kiwibes.auth")
}

// DataStorePath returns the path to the key/value store persistence file.
func (c *Config) DataStorePath() string {
	return filepath.Join(c.Home, "kiwibes.data")
}

// DataStoreMaxBytes returns the configured data-store cap in bytes.
func (c *Config) DataStoreMaxBytes() int {
	return c.DataStoreMaxSizeMB * 1024 * 1024
}

// Load resolves a Config from CLI flag values plus environment
// variables under the KIWIBES_ prefix, validating every field and
// returning the matching ERROR_CMDLINE_* code on the first violation.
func Load(home string, logLevel, logMaxSizeMB, dataStoreMaxSizeMB, port int) (*Config, error) {
	v := viper.New()
	v.SetDefault("port", 4242)
	v.SetDefault("logLevel", 1)
	v.SetDefault("logMaxSizeMB", 10)
	v.SetDefault("dataStoreMaxSizeMB", 1)

	v.SetEnvPrefix("KIWIBES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.Set("home", home)
	if logLevel >= 0 {
		v.Set("logLevel", logLevel)
	}
	if logMaxSizeMB > 0 {
		v.Set("logMaxSizeMB", logMaxSizeMB)
	}
	if dataStoreMaxSizeMB > 0 {
		v.Set("dataStoreMaxSizeMB", dataStoreMaxSizeMB)
	}
	if port > 0 {
		v.Set("port", port)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, kerrors.New(kerrors.CmdlineParse, err.Error())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate enforces the CLI surface's range checks described in the
// external interfaces section, returning the matching ERROR_CMDLINE_*
// code for the first violated constraint.
func (c *Config) Validate() error {
	info, err := os.Stat(c.Home)
	if err != nil || !info.IsDir() {
		return kerrors.New(kerrors.CmdlineInvHome, fmt.Sprintf("home directory does not exist: %s", c.Home))
	}

	if c.LogLevel < 0 || c.LogLevel > 2 {
		return kerrors.New(kerrors.CmdlineInvLogLevel, fmt.Sprintf("log level must be 0..2, got %d", c.LogLevel))
	}

	if c.LogMaxSizeMB < 1 || c.LogMaxSizeMB > 100 {
		return kerrors.New(kerrors.CmdlineInvLogMaxSize, fmt.Sprintf("log max size must be 1..100 MB, got %d", c.LogMaxSizeMB))
	}

	if c.DataStoreMaxSizeMB < 1 || c.DataStoreMaxSizeMB > 100 {
		return kerrors.New(kerrors.CmdlineInvDataStoreMaxSize, fmt.Sprintf("data store max size must be 1..100 MB, got %d", c.DataStoreMaxSizeMB))
	}

	return nil
}
