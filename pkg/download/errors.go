package download

import (
	"errors"
	"fmt"
	"net"
	"net/url"

	pkgerrors "github.com/glorpus-work/cdse/pkg/errors"
)

// StatusError reports a non-200 response from the download endpoint.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// Unwrap makes StatusError match pkgerrors.ErrDownloadFailed.
func (e *StatusError) Unwrap() error { return pkgerrors.ErrDownloadFailed }

// Transient reports whether the status is worth retrying. Server-side
// failures and throttling are; client errors such as 404 are not.
func (e *StatusError) Transient() bool {
	return e.Code >= 500 || e.Code == 429
}

func statusError(code int) error {
	// The auth transport already refreshed and retried once on 401, so an
	// auth status surfacing here means credentials cannot self-heal.
	if code == 401 || code == 403 {
		return pkgerrors.Wrapf(pkgerrors.ErrReauthRequired, "unexpected status code: %d", code)
	}
	return &StatusError{Code: code}
}

// isTransient classifies a transfer error for the retry policy: connection
// and timeout failures and retryable statuses are transient, auth and 4xx
// failures are permanent.
func isTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	if errors.Is(err, pkgerrors.ErrReauthRequired) || errors.Is(err, pkgerrors.ErrIntegrity) {
		return false
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
