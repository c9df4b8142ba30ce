package odata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/glorpus-work/cdse/pkg/errors"
)

// DefaultBaseURL is the CDSE catalogue OData v1 root.
const DefaultBaseURL = "https://catalogue.dataspace.copernicus.eu/odata/v1"

const defaultUserAgent = "cdse/1.0"

// Client performs catalogue requests. The zero client is not usable; create
// one with NewClient.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the catalogue root URL.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client, typically an auth.NewClient session.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates a catalogue client. Search endpoints are public; an
// authenticated client is only needed for downloads.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    DefaultBaseURL,
		userAgent:  defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the catalogue root this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// ProductDownloadURL returns the $value download locator for a product id.
func (c *Client) ProductDownloadURL(productID string) string {
	return fmt.Sprintf("%s/Products(%s)/$value", c.baseURL, productID)
}

// page is one page of an OData collection response.
type page[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink"`
	Count    *int64 `json:"@odata.count"`
}

// getPage fetches one collection page. params may be nil when rawURL is a
// server-provided nextLink that already carries the query.
func getPage[T any](c *Client, ctx context.Context, rawURL string, params url.Values) (page[T], error) {
	var result page[T]

	if len(params) > 0 {
		u, err := url.Parse(rawURL)
		if err != nil {
			return result, errors.Wrap(errors.ErrInvalidQuery, err.Error())
		}
		u.RawQuery = params.Encode()
		rawURL = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return result, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return result, errors.Wrap(errors.ErrSearchFailed, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, errors.Wrap(errors.ErrSearchFailed, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return result, errors.Wrapf(errors.ErrSearchFailed, "unexpected status code: %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return result, errors.Wrap(errors.ErrSearchFailed, err.Error())
	}
	return result, nil
}
