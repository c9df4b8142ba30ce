package errors

import "fmt"

// Common error types.
var (
	// Config errors.
	ErrEmptyConfigPath   = fmt.Errorf("config file path cannot be empty")
	ErrInvalidConfigPath = fmt.Errorf("invalid config file path")
	ErrConfigParse       = fmt.Errorf("failed to parse config")
	ErrConfigValidation  = fmt.Errorf("invalid configuration")
	ErrConfigEncode      = fmt.Errorf("failed to encode config")

	// Filter construction and serialization errors.
	ErrInvalidValueKind      = fmt.Errorf("value kind not valid for operator")
	ErrEmptyCombinator       = fmt.Errorf("combinator requires at least one child filter")
	ErrUnsupportedScalarKind = fmt.Errorf("scalar kind has no wire rendering")

	// Auth errors.
	ErrAuth           = fmt.Errorf("authentication failed")
	ErrReauthRequired = fmt.Errorf("refresh token expired, re-authentication required")
	ErrNoCredentials  = fmt.Errorf("no credentials available")

	// Search errors.
	ErrSearchFailed    = fmt.Errorf("search request failed")
	ErrInvalidQuery    = fmt.Errorf("invalid query parameter")
	ErrProductNotFound = fmt.Errorf("product not found")

	// Subscription errors.
	ErrSubscription = fmt.Errorf("subscription request failed")

	// Download errors.
	ErrDownloadFailed = fmt.Errorf("download failed")
	ErrIntegrity      = fmt.Errorf("checksum of downloaded file does not match product info")
	ErrInvalidPath    = fmt.Errorf("invalid path")
)

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
