// Package config provides configuration management for SISMED.
//
// The config file holds installation settings: where the store lives, the
// HTTP listen address, logging and backup options. Every key can be
// overridden from the environment with the SISMED_ prefix, dots replaced by
// underscores (database.path -> SISMED_DATABASE_PATH).
//
// Config file locations (priority order):
//  1. $SISMED_CONFIG
//  2. ./sismed.yaml
//  3. $XDG_CONFIG_HOME/sismed/config.yaml
//  4. ~/.config/sismed/config.yaml
//  5. /etc/sismed/config.yaml
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	defaultAddr            = "127.0.0.1:3000"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultShutdownTimeout = 10 * time.Second
)

// Load finds and loads the config file, or returns defaults with
// environment overrides applied if none is found. explicit, when not
// empty, is used instead of the search and must exist.
func Load(explicit string) (*Config, string, error) {
	path := explicit
	if path == "" {
		path = FindConfigPath()
	}
	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path. An empty path loads
// defaults and environment overrides only.
func LoadFromPath(path string) (*Config, string, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, path, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, path, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("version", 1)
	v.SetDefault("database.path", DefaultDatabasePath())
	v.SetDefault("server.addr", defaultAddr)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout.String())
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.format", defaultLogFormat)

	// Keys without a default are only seen by Unmarshal when bound
	for _, key := range []string{
		"server.cors_origins",
		"backup.passphrase",
		"backup.s3.region",
		"backup.s3.endpoint",
		"backup.s3.access_key_id",
		"backup.s3.secret_access_key",
		"backup.s3.path_style",
	} {
		_ = v.BindEnv(key)
	}
	return v
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath()
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(defaultShutdownTimeout)
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = defaultLogFormat
	}
}

// Validate checks the settings that would otherwise fail late
func (c *Config) Validate() error {
	var errs []error

	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		errs = append(errs, fmt.Errorf("server.addr %q: %w", c.Server.Addr, err))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}

	s3 := c.Backup.S3
	if (s3.AccessKeyID == "") != (s3.SecretAccessKey == "") {
		errs = append(errs, errors.New("backup.s3.access_key_id and backup.s3.secret_access_key must be set together"))
	}
	if s3.Endpoint != "" && s3.Region == "" {
		errs = append(errs, errors.New("backup.s3.region is required with a custom endpoint"))
	}

	return errors.Join(errs...)
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	summary := fmt.Sprintf("Database: %s\n", c.Database.Path)
	summary += fmt.Sprintf("Server: %s, Log: %s/%s\n", c.Server.Addr, c.Log.Level, c.Log.Format)
	summary += fmt.Sprintf("Backups: sealed=%t", c.Backup.Passphrase != "")
	if c.Backup.S3.Region != "" {
		summary += fmt.Sprintf(", s3 region %s", c.Backup.S3.Region)
	}
	return summary
}
