package download

import (
	"context"
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	pkgerrors "github.com/glorpus-work/cdse/pkg/errors"
	"github.com/glorpus-work/cdse/pkg/hook"
	hookmocks "github.com/glorpus-work/cdse/pkg/hook/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func md5Hex(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

func newTestManager(t *testing.T, handler http.HandlerFunc) (*ManagerImpl, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	manager := NewManager(server.Client(), WithBackoffBase(time.Millisecond))
	return manager, server
}

func TestFetch(t *testing.T) {
	payload := []byte("product bytes")

	t.Run("downloads and verifies", func(t *testing.T) {
		manager, server := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(payload)
		})
		dir := t.TempDir()

		path, err := manager.Fetch(context.Background(), Item{
			ID:        "p-1",
			Name:      "scene.zip",
			URL:       server.URL + "/value",
			Checksums: []Checksum{{Algorithm: "MD5", Value: md5Hex(payload)}},
		}, Options{Dir: dir})

		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "scene.zip"), path)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, payload, data)

		st, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o644), st.Mode().Perm())
	})

	t.Run("derives filename from URL", func(t *testing.T) {
		manager, server := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(payload)
		})
		dir := t.TempDir()

		path, err := manager.Fetch(context.Background(), Item{
			ID:  "p-1",
			URL: server.URL + "/scene.nc",
		}, Options{Dir: dir})

		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "scene.nc"), path)
	})

	t.Run("relative dir fails", func(t *testing.T) {
		manager := NewManager(http.DefaultClient)
		_, err := manager.Fetch(context.Background(), Item{ID: "p-1", URL: "http://invalid"},
			Options{Dir: "relative/dir"})
		require.Error(t, err)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidPath)
	})
}

func TestFetch_Retry(t *testing.T) {
	payload := []byte("eventually fine")

	t.Run("transient failure is retried", func(t *testing.T) {
		var calls int32
		manager, server := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = w.Write(payload)
		})
		dir := t.TempDir()

		res := manager.fetchOne(context.Background(), Item{
			ID: "p-1", Name: "out.zip", URL: server.URL,
		}, Options{Dir: dir})

		require.NoError(t, res.Err)
		assert.Equal(t, StatusDone, res.Status)
		assert.Equal(t, 2, res.Attempts)
		assert.EqualValues(t, 2, calls)
	})

	t.Run("permanent 404 is not retried", func(t *testing.T) {
		var calls int32
		manager, server := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusNotFound)
		})
		dir := t.TempDir()

		res := manager.fetchOne(context.Background(), Item{
			ID: "p-1", Name: "out.zip", URL: server.URL,
		}, Options{Dir: dir})

		require.Error(t, res.Err)
		assert.Equal(t, StatusFailed, res.Status)
		assert.ErrorIs(t, res.Err, pkgerrors.ErrDownloadFailed)
		assert.Equal(t, 1, res.Attempts)
		assert.EqualValues(t, 1, calls)
	})

	t.Run("attempt bound is honored", func(t *testing.T) {
		var calls int32
		manager, server := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		})
		dir := t.TempDir()

		res := manager.fetchOne(context.Background(), Item{
			ID: "p-1", Name: "out.zip", URL: server.URL,
		}, Options{Dir: dir, MaxAttempts: 2})

		require.Error(t, res.Err)
		assert.Equal(t, 2, res.Attempts)
		assert.EqualValues(t, 2, calls)
	})

	t.Run("auth status is permanent", func(t *testing.T) {
		var calls int32
		manager, server := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusForbidden)
		})
		dir := t.TempDir()

		res := manager.fetchOne(context.Background(), Item{
			ID: "p-1", Name: "out.zip", URL: server.URL,
		}, Options{Dir: dir})

		require.Error(t, res.Err)
		assert.ErrorIs(t, res.Err, pkgerrors.ErrReauthRequired)
		assert.EqualValues(t, 1, calls)
	})
}

func TestFetch_Integrity(t *testing.T) {
	payload := []byte("corrupted in transit")

	t.Run("mismatch fails and leaves no file behind", func(t *testing.T) {
		manager, server := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(payload)
		})
		dir := t.TempDir()

		res := manager.fetchOne(context.Background(), Item{
			ID:        "p-1",
			Name:      "scene.zip",
			URL:       server.URL,
			Checksums: []Checksum{{Algorithm: "MD5", Value: md5Hex([]byte("what the server should have sent"))}},
		}, Options{Dir: dir})

		require.Error(t, res.Err)
		assert.Equal(t, StatusFailed, res.Status)
		assert.ErrorIs(t, res.Err, pkgerrors.ErrIntegrity)

		// Neither the destination nor any partial temp file survives.
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("NoVerify skips the mismatch", func(t *testing.T) {
		manager, server := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(payload)
		})
		dir := t.TempDir()

		path, err := manager.Fetch(context.Background(), Item{
			ID:        "p-1",
			Name:      "scene.zip",
			URL:       server.URL,
			Checksums: []Checksum{{Algorithm: "MD5", Value: md5Hex([]byte("other"))}},
		}, Options{Dir: dir, NoVerify: true})

		require.NoError(t, err)
		assert.FileExists(t, path)
	})
}

func TestFetch_ReusesExistingFile(t *testing.T) {
	payload := []byte("already here")

	var calls int32
	manager, server := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write(payload)
	})
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scene.zip"), payload, 0o644))

	path, err := manager.Fetch(context.Background(), Item{
		ID:        "p-1",
		Name:      "scene.zip",
		URL:       server.URL,
		Checksums: []Checksum{{Algorithm: "MD5", Value: md5Hex(payload)}},
	}, Options{Dir: dir})

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "scene.zip"), path)
	assert.EqualValues(t, 0, calls)
}

func TestFetch_ReplacesMismatchedExistingFile(t *testing.T) {
	payload := []byte("the real product")

	t.Run("re-downloads over a stale file", func(t *testing.T) {
		var calls int32
		manager, server := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			_, _ = w.Write(payload)
		})
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "scene.zip"), []byte("stale leftover"), 0o644))

		path, err := manager.Fetch(context.Background(), Item{
			ID:        "p-1",
			Name:      "scene.zip",
			URL:       server.URL,
			Checksums: []Checksum{{Algorithm: "MD5", Value: md5Hex(payload)}},
		}, Options{Dir: dir})

		require.NoError(t, err)
		assert.EqualValues(t, 1, calls)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, payload, data)
	})

	t.Run("stale file does not survive a failing re-download", func(t *testing.T) {
		manager, server := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("still not the right bytes"))
		})
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "scene.zip"), []byte("stale leftover"), 0o644))

		res := manager.fetchOne(context.Background(), Item{
			ID:        "p-1",
			Name:      "scene.zip",
			URL:       server.URL,
			Checksums: []Checksum{{Algorithm: "MD5", Value: md5Hex(payload)}},
		}, Options{Dir: dir})

		require.Error(t, res.Err)
		assert.ErrorIs(t, res.Err, pkgerrors.ErrIntegrity)
		// Neither the stale destination nor the fresh temp file remains.
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestFetchAll(t *testing.T) {
	payload := []byte("batch payload")

	t.Run("one failure does not affect the rest", func(t *testing.T) {
		manager, server := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
			if filepath.Base(r.URL.Path) == "item-3" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write(payload)
		})
		dir := t.TempDir()

		items := make([]Item, 10)
		for i := range items {
			items[i] = Item{
				ID:   fmt.Sprintf("item-%d", i),
				Name: fmt.Sprintf("item-%d.zip", i),
				URL:  fmt.Sprintf("%s/item-%d", server.URL, i),
			}
		}

		results := manager.FetchAll(context.Background(), items, Options{Dir: dir})
		require.Len(t, results, 10)

		for i, res := range results {
			assert.Equal(t, items[i].ID, res.ID, "results keep input order")
			if i == 3 {
				assert.Equal(t, StatusFailed, res.Status)
				assert.ErrorIs(t, res.Err, pkgerrors.ErrDownloadFailed)
				continue
			}
			assert.Equal(t, StatusDone, res.Status, res.ID)
			assert.FileExists(t, res.Path)
		}
	})

	t.Run("never exceeds the transfer ceiling", func(t *testing.T) {
		var inflight, peak int32
		manager, server := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
			cur := atomic.AddInt32(&inflight, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&inflight, -1)
			_, _ = w.Write(payload)
		})
		dir := t.TempDir()

		items := make([]Item, 12)
		for i := range items {
			items[i] = Item{
				ID:   fmt.Sprintf("item-%d", i),
				Name: fmt.Sprintf("item-%d.zip", i),
				URL:  fmt.Sprintf("%s/item-%d", server.URL, i),
			}
		}

		results := manager.FetchAll(context.Background(), items, Options{Dir: dir})
		for _, res := range results {
			require.NoError(t, res.Err)
		}
		assert.LessOrEqual(t, peak, int32(MaxConcurrentTransfers))
		assert.Positive(t, peak)
	})

	t.Run("bad dir fails every item", func(t *testing.T) {
		manager := NewManager(http.DefaultClient)
		results := manager.FetchAll(context.Background(), []Item{
			{ID: "a", URL: "http://invalid/a"},
			{ID: "b", URL: "http://invalid/b"},
		}, Options{Dir: ""})

		require.Len(t, results, 2)
		for _, res := range results {
			assert.Equal(t, StatusFailed, res.Status)
			assert.ErrorIs(t, res.Err, pkgerrors.ErrInvalidPath)
		}
	})
}

func TestFetch_Hooks(t *testing.T) {
	payload := []byte("hooked payload")

	t.Run("pre and post hooks run around the transfer", func(t *testing.T) {
		manager, server := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(payload)
		})
		dir := t.TempDir()

		ctrl := gomock.NewController(t)
		hooks := hookmocks.NewMockManager(ctrl)
		gomock.InOrder(
			hooks.EXPECT().Execute(hook.PreDownload, gomock.Any()).Return(nil),
			hooks.EXPECT().Execute(hook.PostDownload, gomock.Any()).Return(nil),
		)

		_, err := manager.Fetch(context.Background(), Item{
			ID: "p-1", Name: "scene.zip", URL: server.URL,
		}, Options{Dir: dir, Hooks: hooks})
		require.NoError(t, err)
	})

	t.Run("pre-hook failure aborts before any transfer", func(t *testing.T) {
		var calls int32
		manager, server := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			_, _ = w.Write(payload)
		})
		dir := t.TempDir()

		ctrl := gomock.NewController(t)
		hooks := hookmocks.NewMockManager(ctrl)
		hooks.EXPECT().Execute(hook.PreDownload, gomock.Any()).Return(hook.ErrHookExecution)

		_, err := manager.Fetch(context.Background(), Item{
			ID: "p-1", Name: "scene.zip", URL: server.URL,
		}, Options{Dir: dir, Hooks: hooks})
		require.Error(t, err)
		assert.EqualValues(t, 0, calls)
	})
}
