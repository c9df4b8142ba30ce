// Package auth handles CDSE identity-server authentication and token
// lifecycle for authorized catalogue and download requests.
package auth

import (
	"net/http"
	"os"

	"github.com/glorpus-work/cdse/pkg/errors"
)

// CDSE endpoints and identity constants.
const (
	// IdentityHost is the CDSE identity server.
	IdentityHost = "identity.dataspace.copernicus.eu"

	// DefaultTokenURL is the OpenID Connect token endpoint.
	DefaultTokenURL = "https://" + IdentityHost + "/auth/realms/CDSE/protocol/openid-connect/token"

	// ClientID is the public OAuth client used for password and refresh grants.
	ClientID = "cdse-public"
)

// AuthDomains are the hosts the bearer token may be sent to. Redirects that
// leave this set must not carry the Authorization header.
var AuthDomains = []string{
	"catalogue.dataspace.copernicus.eu",
	"download.dataspace.copernicus.eu",
	"zipper.dataspace.copernicus.eu",
}

// Credentials is a CDSE username/password pair.
type Credentials struct {
	Username string
	Password string
}

// FromLogin creates credentials from an explicit username and password.
func FromLogin(username, password string) (Credentials, error) {
	if username == "" || password == "" {
		return Credentials{}, errors.Wrap(errors.ErrNoCredentials, "username and password must be non-empty")
	}
	return Credentials{Username: username, Password: password}, nil
}

// FromEnv creates credentials from the CDSE_USERNAME and CDSE_PASSWORD
// environment variables.
func FromEnv() (Credentials, error) {
	username := os.Getenv("CDSE_USERNAME")
	password := os.Getenv("CDSE_PASSWORD")
	if username == "" || password == "" {
		return Credentials{}, errors.Wrap(errors.ErrNoCredentials,
			"'CDSE_USERNAME' and/or 'CDSE_PASSWORD' environment variable does not exist or is empty")
	}
	return Credentials{Username: username, Password: password}, nil
}

// Authenticator applies authentication to outgoing HTTP requests.
type Authenticator interface {
	Apply(req *http.Request) error
}

// BearerAuth applies a static bearer token.
type BearerAuth struct {
	Token string
}

// Apply adds the Authorization header to the request.
func (b BearerAuth) Apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+b.Token)
	return nil
}

// StoreAuth applies the current valid token from a TokenStore, refreshing it
// first if it is about to expire.
type StoreAuth struct {
	Store *TokenStore
}

// Apply fetches a valid access token and adds it as a bearer credential.
func (s StoreAuth) Apply(req *http.Request) error {
	token, err := s.Store.GetValidToken(req.Context())
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}
