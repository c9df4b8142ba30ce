package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport_AttachesBearerOnAllowedHosts(t *testing.T) {
	now := time.Now()
	identity := &fakeIdentity{}
	store := newTestStore(t, identity, &now)

	var gotAuth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer api.Close()

	apiURL, err := url.Parse(api.URL)
	require.NoError(t, err)

	client := NewClient(store, apiURL.Hostname())
	resp, err := client.Get(api.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "Bearer access-1", gotAuth)
}

func TestTransport_SkipsBearerOutsideAuthDomains(t *testing.T) {
	now := time.Now()
	identity := &fakeIdentity{}
	store := newTestStore(t, identity, &now)

	var gotAuth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer api.Close()

	// Restrict the transport to a host the test server is not.
	client := NewClient(store, "catalogue.dataspace.copernicus.eu")
	resp, err := client.Get(api.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Empty(t, gotAuth)
	// No token was needed, so no login happened either.
	assert.EqualValues(t, 0, identity.logins)
}

func TestTransport_RetriesOnceAfter401(t *testing.T) {
	now := time.Now()
	identity := &fakeIdentity{}
	store := newTestStore(t, identity, &now)

	var calls int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer access-2", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, "ok")
	}))
	defer api.Close()

	apiURL, err := url.Parse(api.URL)
	require.NoError(t, err)

	client := NewClient(store, apiURL.Hostname())
	resp, err := client.Get(api.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, calls)
	assert.EqualValues(t, 1, identity.refreshes)
}

func TestTransport_SurfacesPersistent401(t *testing.T) {
	now := time.Now()
	identity := &fakeIdentity{}
	store := newTestStore(t, identity, &now)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer api.Close()

	apiURL, err := url.Parse(api.URL)
	require.NoError(t, err)

	client := NewClient(store, apiURL.Hostname())
	resp, err := client.Get(api.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	// A single refresh-and-retry; the second 401 is handed to the caller.
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.EqualValues(t, 1, identity.refreshes)
}

func TestAuthenticators(t *testing.T) {
	t.Run("bearer auth sets the header", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, "http://example.test", nil)
		require.NoError(t, err)

		var a Authenticator = BearerAuth{Token: "tok"}
		require.NoError(t, a.Apply(req))
		assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
	})

	t.Run("store auth fetches a valid token", func(t *testing.T) {
		now := time.Now()
		identity := &fakeIdentity{}
		store := newTestStore(t, identity, &now)

		req, err := http.NewRequest(http.MethodGet, "http://example.test", nil)
		require.NoError(t, err)

		var a Authenticator = StoreAuth{Store: store}
		require.NoError(t, a.Apply(req))
		assert.Equal(t, "Bearer access-1", req.Header.Get("Authorization"))
	})

	t.Run("store auth surfaces credential failures", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, "http://example.test", nil)
		require.NoError(t, err)

		a := StoreAuth{Store: NewTokenStore(Credentials{})}
		assert.Error(t, a.Apply(req))
	})
}

func TestTransport_DoesNotMutateRequest(t *testing.T) {
	now := time.Now()
	identity := &fakeIdentity{}
	store := newTestStore(t, identity, &now)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer api.Close()

	apiURL, err := url.Parse(api.URL)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, api.URL, nil)
	require.NoError(t, err)

	transport := &Transport{Store: store, Domains: []string{apiURL.Hostname()}}
	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Empty(t, req.Header.Get("Authorization"))
}
