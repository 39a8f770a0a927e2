package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version  int            `yaml:"version" mapstructure:"version"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Backup   BackupConfig   `yaml:"backup" mapstructure:"backup"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string   `yaml:"addr" mapstructure:"addr"`
	CORSOrigins     []string `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // trace, debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json, console
}

// BackupConfig holds backup settings. The passphrase is normally supplied
// through SISMED_BACKUP_PASSPHRASE rather than written to the file.
type BackupConfig struct {
	Passphrase string   `yaml:"passphrase,omitempty" mapstructure:"passphrase"`
	S3         S3Config `yaml:"s3" mapstructure:"s3"`
}

// S3Config holds settings for s3:// backup locations
type S3Config struct {
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Endpoint        string `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	PathStyle       bool   `yaml:"path_style,omitempty" mapstructure:"path_style"`
}

// Duration wraps time.Duration for YAML and env values like "10s"
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
