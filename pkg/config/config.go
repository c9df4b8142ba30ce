// Package config provides configuration management for the CDSE client. It
// handles loading, validating and saving application settings: credentials,
// endpoint overrides and download behavior. Configuration lives in a YAML
// file with sensible defaults, and credentials may instead come from the
// environment.
package config

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/glorpus-work/cdse/pkg/auth"
	"github.com/glorpus-work/cdse/pkg/errors"
	"github.com/glorpus-work/cdse/pkg/fsutil"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Credentials CredentialsConfig `yaml:"credentials,omitempty"`
	Endpoints   EndpointsConfig   `yaml:"endpoints,omitempty"`
	Settings    Settings          `yaml:"settings"`
}

// CredentialsConfig holds stored CDSE credentials. All fields are optional;
// missing values fall back to the environment.
type CredentialsConfig struct {
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	S3AccessKey string `yaml:"s3_access_key,omitempty"`
	S3SecretKey string `yaml:"s3_secret_key,omitempty"`
}

// EndpointsConfig overrides the default CDSE endpoints.
type EndpointsConfig struct {
	TokenURL      string `yaml:"token_url,omitempty"`
	CatalogueURL  string `yaml:"catalogue_url,omitempty"`
	OpenSearchURL string `yaml:"opensearch_url,omitempty"`
	S3Endpoint    string `yaml:"s3_endpoint,omitempty"`
}

// Settings represents general application settings.
type Settings struct {
	// DownloadDir is the default destination for downloaded products.
	DownloadDir string `yaml:"download_dir,omitempty"`

	// Network settings.
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	MaxAttempts int           `yaml:"max_attempts"`

	// NoVerify disables checksum verification of downloaded products.
	NoVerify bool `yaml:"no_verify,omitempty"`

	// Output settings.
	LogLevel string `yaml:"log_level"` // panic, fatal, error, warn, info, debug, trace
}

// Default configuration values.
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 10 * time.Minute

	// DefaultMaxAttempts is the default per-item retry bound.
	DefaultMaxAttempts = 3

	// YAMLIndent is the number of spaces to use for YAML indentation.
	YAMLIndent = 2
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	downloadDir, err := os.UserHomeDir()
	if err != nil {
		downloadDir = "."
	}
	return &Config{
		Settings: Settings{
			DownloadDir: filepath.Join(downloadDir, "cdse"),
			HTTPTimeout: DefaultHTTPTimeout,
			MaxAttempts: DefaultMaxAttempts,
			LogLevel:    "info",
		},
	}
}

// LoadConfig loads configuration from a file. A missing file yields the
// default configuration.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config data")
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(errors.ErrConfigParse, err.Error())
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrConfigValidation, err.Error())
	}
	return &config, nil
}

// SaveConfig saves configuration to a file. The file is written with
// restrictive permissions since it may hold credentials.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return errors.ErrEmptyConfigPath
	}
	if err := os.MkdirAll(filepath.Dir(path), fsutil.DirModeSecure); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fsutil.FileModeSecure)
	if err != nil {
		return errors.Wrap(err, "failed to create config file")
	}
	defer func() { _ = file.Close() }()

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(YAMLIndent)
	if err := encoder.Encode(c); err != nil {
		return errors.Wrap(errors.ErrConfigEncode, err.Error())
	}
	return encoder.Close()
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Settings.HTTPTimeout < 0 {
		return errors.Wrap(errors.ErrConfigValidation, "http_timeout cannot be negative")
	}
	if c.Settings.MaxAttempts < 0 {
		return errors.Wrap(errors.ErrConfigValidation, "max_attempts cannot be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Settings.DownloadDir == "" {
		c.Settings.DownloadDir = defaults.Settings.DownloadDir
	}
	if c.Settings.HTTPTimeout == 0 {
		c.Settings.HTTPTimeout = defaults.Settings.HTTPTimeout
	}
	if c.Settings.MaxAttempts == 0 {
		c.Settings.MaxAttempts = defaults.Settings.MaxAttempts
	}
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = defaults.Settings.LogLevel
	}
}

// ToCredentials resolves CDSE credentials from the config, falling back to
// the environment when the config has none.
func (c *Config) ToCredentials() (auth.Credentials, error) {
	if c.Credentials.Username != "" && c.Credentials.Password != "" {
		return auth.FromLogin(c.Credentials.Username, c.Credentials.Password)
	}
	return auth.FromEnv()
}
