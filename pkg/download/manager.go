// Package download fetches products from the CDSE download endpoints under
// the service's concurrency ceiling, with per-item retry and integrity
// verification.
package download

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	pkgerrors "github.com/glorpus-work/cdse/pkg/errors"
	"github.com/glorpus-work/cdse/pkg/fsutil"
	"github.com/glorpus-work/cdse/pkg/hook"
	"github.com/glorpus-work/cdse/pkg/logger"
	"github.com/sirupsen/logrus"
)

// MaxConcurrentTransfers is the number of simultaneous transfers the remote
// service allows per session. This is a protocol constraint, not a tunable:
// exceeding it causes the service to reject or throttle connections.
const MaxConcurrentTransfers = 4

// DefaultMaxAttempts bounds retries of transient failures per item.
const DefaultMaxAttempts = 3

// ManagerImpl downloads products over an authenticated HTTP session. It runs
// a fixed pool of MaxConcurrentTransfers workers for batches.
type ManagerImpl struct {
	client      *http.Client
	userAgent   string
	backoffBase time.Duration
}

// ManagerOption customizes a ManagerImpl.
type ManagerOption func(*ManagerImpl)

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ManagerOption {
	return func(m *ManagerImpl) { m.userAgent = ua }
}

// WithBackoffBase overrides the initial retry backoff interval. Tests use a
// small value to keep retries fast.
func WithBackoffBase(d time.Duration) ManagerOption {
	return func(m *ManagerImpl) { m.backoffBase = d }
}

// NewManager creates a download manager on top of the given HTTP client,
// typically an auth.NewClient session so transfers carry a bearer token and
// recover from token expiry.
func NewManager(client *http.Client, opts ...ManagerOption) *ManagerImpl {
	m := &ManagerImpl{
		client:      client,
		userAgent:   "cdse/1.0",
		backoffBase: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Fetch downloads a single item and returns the path to the downloaded file.
func (m *ManagerImpl) Fetch(ctx context.Context, item Item, opts Options) (string, error) {
	if err := checkDir(opts.Dir); err != nil {
		return "", err
	}
	res := m.fetchOne(ctx, item, opts)
	return res.Path, res.Err
}

// FetchAll downloads all items with at most MaxConcurrentTransfers in flight
// at any instant. Results come back in input order; one item's permanent
// failure does not cancel or block the others.
func (m *ManagerImpl) FetchAll(ctx context.Context, items []Item, opts Options) []Result {
	results := make([]Result, len(items))
	if err := checkDir(opts.Dir); err != nil {
		for i, it := range items {
			results[i] = Result{ID: it.ID, Status: StatusFailed, Err: err}
		}
		return results
	}

	tasks := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < MaxConcurrentTransfers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range tasks {
				results[idx] = m.fetchOne(ctx, items[idx], opts)
			}
		}()
	}
	for i := range items {
		tasks <- i
	}
	close(tasks)
	wg.Wait()
	return results
}

// fetchOne runs one task to its terminal state. Transient transfer failures
// are retried with exponential backoff; integrity and auth failures are
// permanent.
func (m *ManagerImpl) fetchOne(ctx context.Context, item Item, opts Options) Result {
	res := Result{ID: item.ID, Status: StatusPending}

	filename := item.Name
	if filename == "" {
		filename = filepath.Base(item.URL)
	}
	absPath := filepath.Join(opts.Dir, filename)

	if opts.Hooks != nil {
		if err := opts.Hooks.Execute(hook.PreDownload, hook.Context{
			ProductID: item.ID, ProductName: item.Name, Path: absPath,
		}); err != nil {
			return fail(res, err)
		}
	}

	// Reuse a previous download when it already verifies.
	if path, ok := m.tryReuseExisting(absPath, item, opts); ok {
		logger.Debug("already downloaded", logrus.Fields{"id": item.ID, "path": path})
		res.Status = StatusDone
		res.Path = path
		return res
	}

	res.Status = StatusInProgress
	tmpPath, err := m.transferWithRetry(ctx, item, absPath, opts, &res)
	if err != nil {
		return fail(res, err)
	}

	if !opts.NoVerify {
		res.Status = StatusVerifying
		if err := m.verify(tmpPath, item); err != nil {
			// A repeat fetch will not fix a persistent mismatch; remove the
			// partial output and report.
			_ = os.Remove(tmpPath)
			return fail(res, err)
		}
	}

	if err := finalizeFile(tmpPath, absPath); err != nil {
		return fail(res, err)
	}

	if opts.Hooks != nil {
		if err := opts.Hooks.Execute(hook.PostDownload, hook.Context{
			ProductID: item.ID, ProductName: item.Name, Path: absPath,
		}); err != nil {
			return fail(res, err)
		}
	}

	res.Status = StatusDone
	res.Path = absPath
	return res
}

// transferWithRetry streams the item body to a temp file next to absPath,
// retrying transient failures up to the attempt bound.
func (m *ManagerImpl) transferWithRetry(ctx context.Context, item Item, absPath string, opts Options, res *Result) (string, error) {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = m.backoffBase
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(maxAttempts-1)), ctx)

	var tmpPath string
	operation := func() error {
		res.Attempts++
		path, err := m.transferOnce(ctx, item, absPath)
		if err != nil {
			res.Err = err
			if isTransient(err) {
				logger.Debug("transient download failure, will retry",
					logrus.Fields{"id": item.ID, "attempt": res.Attempts, "error": err.Error()})
				return err
			}
			return backoff.Permanent(err)
		}
		tmpPath = path
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}
	return tmpPath, nil
}

// transferOnce performs a single streaming transfer attempt.
func (m *ManagerImpl) transferOnce(ctx context.Context, item Item, absPath string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.URL, http.NoBody)
	if err != nil {
		return "", pkgerrors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", m.userAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", pkgerrors.Wrap(err, "download request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(absPath), "dl-*.tmp")
	if err != nil {
		return "", pkgerrors.Wrap(err, "could not create temp file")
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", pkgerrors.Wrap(err, "could not write file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", pkgerrors.Wrap(err, "could not close file")
	}
	return tmpPath, nil
}

func (m *ManagerImpl) verify(path string, item Item) error {
	if len(item.Checksums) == 0 {
		logger.Warn("product has no checksums available, skipping verification",
			logrus.Fields{"id": item.ID})
		return nil
	}
	return Verify(path, item.Checksums)
}

// tryReuseExisting reports whether absPath already holds a verified copy.
func (m *ManagerImpl) tryReuseExisting(absPath string, item Item, opts Options) (string, bool) {
	st, err := os.Stat(absPath)
	if err != nil || st.Size() == 0 {
		return "", false
	}
	if opts.NoVerify || len(item.Checksums) == 0 {
		return absPath, true
	}
	if err := Verify(absPath, item.Checksums); err != nil {
		// Stale leftover from an earlier run. Remove it now so a failing
		// re-download cannot leave a mismatched file at the destination.
		logger.Debug("existing file failed verification, re-downloading",
			logrus.Fields{"id": item.ID, "path": absPath})
		_ = os.Remove(absPath)
		return "", false
	}
	return absPath, true
}

func finalizeFile(tmpPath, absPath string) error {
	if err := fsutil.Move(tmpPath, absPath); err != nil {
		return pkgerrors.Wrap(err, "could not finalize file")
	}
	if err := os.Chmod(absPath, fsutil.FileModeDefault); err != nil {
		return pkgerrors.Wrap(err, "could not set permissions")
	}
	return nil
}

func checkDir(dir string) error {
	if dir == "" || !filepath.IsAbs(dir) {
		return pkgerrors.Wrapf(pkgerrors.ErrInvalidPath, "download dir must be absolute: %s", dir)
	}
	return os.MkdirAll(dir, fsutil.DirModeDefault)
}

func fail(res Result, err error) Result {
	res.Status = StatusFailed
	res.Err = err
	return res
}
