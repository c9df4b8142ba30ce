package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/glorpus-work/cdse/pkg/errors"
	"github.com/glorpus-work/cdse/pkg/logger"
	"github.com/sirupsen/logrus"
)

// DefaultSkew is the safety margin subtracted from token expiries so a token
// is refreshed before the server would reject it.
const DefaultSkew = 60 * time.Second

// Token holds an access/refresh token pair with their expiry instants.
type Token struct {
	AccessToken   string
	AccessExpiry  time.Time
	RefreshToken  string
	RefreshExpiry time.Time
}

// tokenResponse is the identity server's token endpoint payload.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// TokenStore owns access/refresh token state for one session. It performs
// the password grant on Authenticate and refresh grants on expiry. All token
// access goes through a single critical section, so concurrent callers of
// GetValidToken during an expiry window share exactly one refresh request.
type TokenStore struct {
	client   *http.Client
	tokenURL string
	creds    Credentials
	skew     time.Duration
	now      func() time.Time

	mu            sync.Mutex
	token         Token
	authenticated bool
	refreshes     int // network refresh count, exposed for tests
}

// TokenStoreOption customizes a TokenStore.
type TokenStoreOption func(*TokenStore)

// WithTokenURL overrides the identity token endpoint.
func WithTokenURL(u string) TokenStoreOption {
	return func(s *TokenStore) { s.tokenURL = u }
}

// WithHTTPClient overrides the HTTP client used for token requests.
func WithHTTPClient(c *http.Client) TokenStoreOption {
	return func(s *TokenStore) { s.client = c }
}

// WithSkew overrides the expiry safety margin.
func WithSkew(d time.Duration) TokenStoreOption {
	return func(s *TokenStore) { s.skew = d }
}

// WithClock overrides the time source. Used by tests to simulate expiry.
func WithClock(now func() time.Time) TokenStoreOption {
	return func(s *TokenStore) { s.now = now }
}

// NewTokenStore creates a token store for the given credentials. No network
// call is made until Authenticate or the first GetValidToken.
func NewTokenStore(creds Credentials, opts ...TokenStoreOption) *TokenStore {
	s := &TokenStore{
		client:   &http.Client{Timeout: 30 * time.Second},
		tokenURL: DefaultTokenURL,
		creds:    creds,
		skew:     DefaultSkew,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate exchanges the username/password for an access/refresh token
// pair. Invalid credentials fail with ErrAuth and are not retried.
func (s *TokenStore) Authenticate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticateLocked(ctx)
}

// GetValidToken returns the current access token, refreshing it first when
// it expires within the skew window. If the refresh token itself is expired
// or rejected, it fails with ErrReauthRequired and the store drops back to
// the unauthenticated state.
func (s *TokenStore) GetValidToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.authenticated {
		if err := s.authenticateLocked(ctx); err != nil {
			return "", err
		}
		return s.token.AccessToken, nil
	}
	if s.now().Before(s.token.AccessExpiry.Add(-s.skew)) {
		return s.token.AccessToken, nil
	}
	if err := s.refreshLocked(ctx); err != nil {
		return "", err
	}
	return s.token.AccessToken, nil
}

// RefreshIfStale refreshes the token unless another caller already replaced
// the given stale access token, in which case the current token is returned
// as-is. Download workers use this after a 401 so one expiry event causes at
// most one refresh across the pool.
func (s *TokenStore) RefreshIfStale(ctx context.Context, stale string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.authenticated {
		if err := s.authenticateLocked(ctx); err != nil {
			return "", err
		}
		return s.token.AccessToken, nil
	}
	if s.token.AccessToken != stale {
		return s.token.AccessToken, nil
	}
	if err := s.refreshLocked(ctx); err != nil {
		return "", err
	}
	return s.token.AccessToken, nil
}

// Refreshes reports how many refresh requests hit the network.
func (s *TokenStore) Refreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

func (s *TokenStore) authenticateLocked(ctx context.Context) error {
	if s.creds.Username == "" || s.creds.Password == "" {
		return errors.ErrNoCredentials
	}
	logger.Debug("requesting token", logrus.Fields{"username": s.creds.Username})
	form := url.Values{
		"client_id":  {ClientID},
		"grant_type": {"password"},
		"username":   {s.creds.Username},
		"password":   {s.creds.Password},
	}
	tok, err := s.tokenRequest(ctx, form)
	if err != nil {
		return errors.Wrap(errors.ErrAuth, err.Error())
	}
	s.token = tok
	s.authenticated = true
	return nil
}

func (s *TokenStore) refreshLocked(ctx context.Context) error {
	now := s.now()
	if !now.Before(s.token.RefreshExpiry.Add(-s.skew)) {
		s.authenticated = false
		return errors.ErrReauthRequired
	}
	logger.Debug("refreshing token")
	form := url.Values{
		"client_id":     {ClientID},
		"grant_type":    {"refresh_token"},
		"refresh_token": {s.token.RefreshToken},
	}
	s.refreshes++
	tok, err := s.tokenRequest(ctx, form)
	if err != nil {
		// A rejected refresh token cannot self-heal; require a fresh login.
		s.authenticated = false
		return errors.Wrap(errors.ErrReauthRequired, err.Error())
	}
	s.token = tok
	return nil
}

func (s *TokenStore) tokenRequest(ctx context.Context, form url.Values) (Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, errors.Wrap(err, "failed to create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return Token{}, errors.Wrap(err, "token request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, errors.Wrap(err, "failed to read token response")
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Token{}, errors.Wrapf(err, "failed to decode token response (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return Token{}, errors.Wrapf(errors.ErrAuth,
			"unable to get token (status %d): %s: %s", resp.StatusCode, tr.Error, tr.ErrorDescription)
	}

	acquired := s.now()
	return Token{
		AccessToken:   tr.AccessToken,
		AccessExpiry:  acquired.Add(time.Duration(tr.ExpiresIn) * time.Second),
		RefreshToken:  tr.RefreshToken,
		RefreshExpiry: acquired.Add(time.Duration(tr.RefreshExpiresIn) * time.Second),
	}, nil
}
