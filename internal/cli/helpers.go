package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/glorpus-work/cdse/pkg/auth"
	"github.com/glorpus-work/cdse/pkg/config"
	"github.com/glorpus-work/cdse/pkg/logger"
	"github.com/glorpus-work/cdse/pkg/odata"
)

// These variables will be set by the main package
var (
	ConfigPath *string
	Verbose    *bool
	NoColor    *bool
)

// loadConfig loads the configuration from the --config flag or the default
// location and initializes logging from it.
func loadConfig() (*config.Config, error) {
	configPath := ""
	if ConfigPath != nil {
		configPath = *ConfigPath
	}
	if configPath == "" {
		defaultPath, err := config.GetDefaultConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get default config path: %w", err)
		}
		configPath = defaultPath
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logLevel := cfg.Settings.LogLevel
	if Verbose != nil && *Verbose {
		logLevel = "debug"
	}
	noColor := NoColor != nil && *NoColor
	logger.InitLogger(logLevel, noColor)

	return cfg, nil
}

// newCatalogueClient creates an unauthenticated catalogue client from the
// config. Search endpoints do not require a session.
func newCatalogueClient(cfg *config.Config) *odata.Client {
	opts := []odata.ClientOption{
		odata.WithHTTPClient(&http.Client{Timeout: cfg.Settings.HTTPTimeout}),
	}
	if cfg.Endpoints.CatalogueURL != "" {
		opts = append(opts, odata.WithBaseURL(cfg.Endpoints.CatalogueURL))
	}
	return odata.NewClient(opts...)
}

// newSession creates an authenticated HTTP client backed by a token store.
func newSession(cfg *config.Config) (*http.Client, error) {
	creds, err := cfg.ToCredentials()
	if err != nil {
		return nil, err
	}

	var storeOpts []auth.TokenStoreOption
	domains := auth.AuthDomains
	if cfg.Endpoints.TokenURL != "" {
		storeOpts = append(storeOpts, auth.WithTokenURL(cfg.Endpoints.TokenURL))
	}
	if cfg.Endpoints.CatalogueURL != "" {
		// A non-default catalogue (e.g. a test double) must also receive the
		// bearer token.
		u, err := url.Parse(cfg.Endpoints.CatalogueURL)
		if err != nil {
			return nil, fmt.Errorf("invalid catalogue URL: %w", err)
		}
		domains = append([]string{u.Hostname()}, domains...)
	}
	store := auth.NewTokenStore(creds, storeOpts...)

	client := auth.NewClient(store, domains...)
	client.Timeout = cfg.Settings.HTTPTimeout
	return client, nil
}

// parseTime accepts RFC 3339 timestamps or plain dates.
func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, expected RFC 3339 or YYYY-MM-DD", value)
	}
	return t, nil
}
