package auth

import (
	"net/http"

	"github.com/glorpus-work/cdse/pkg/logger"
	"github.com/sirupsen/logrus"
)

// Transport is an http.RoundTripper that attaches the session's bearer token
// to requests and transparently recovers from a single mid-request 401 by
// refreshing the token. The token is only attached for hosts in Domains, so
// a redirect off the CDSE download domains never leaks the credential.
type Transport struct {
	Store *TokenStore
	Base  http.RoundTripper

	// Domains restricts which hosts receive the Authorization header.
	// Empty means AuthDomains; tests override it with their own hosts.
	Domains []string
}

// NewClient returns an *http.Client whose requests carry a valid bearer
// token from the given store.
func NewClient(store *TokenStore, domains ...string) *http.Client {
	return &http.Client{Transport: &Transport{Store: store, Domains: domains}}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.allowed(req.URL.Hostname()) {
		logger.Debug("host outside auth domains, sending unauthenticated",
			logrus.Fields{"host": req.URL.Hostname()})
		return t.base().RoundTrip(req)
	}

	token, err := t.Store.GetValidToken(req.Context())
	if err != nil {
		return nil, err
	}
	resp, err := t.base().RoundTrip(withBearer(req, token))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	// One retry after a coalesced refresh; if another worker already
	// replaced the token no extra network refresh happens.
	logger.Debug("401 response, refreshing token and retrying")
	_ = resp.Body.Close()
	fresh, err := t.Store.RefreshIfStale(req.Context(), token)
	if err != nil {
		return nil, err
	}
	return t.base().RoundTrip(withBearer(req, fresh))
}

func (t *Transport) allowed(host string) bool {
	domains := t.Domains
	if len(domains) == 0 {
		domains = AuthDomains
	}
	for _, d := range domains {
		if host == d {
			return true
		}
	}
	return false
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// withBearer clones the request with the bearer header set. Requests are not
// mutated in place, as required by the RoundTripper contract.
func withBearer(req *http.Request, token string) *http.Request {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	return clone
}
