// Package opensearch queries the CDSE resto OpenSearch endpoint. It covers
// the attribute filters the OData catalogue does not expose as first-class
// query fields (cloud cover ranges, point-radius search, instrument and
// sensor mode) and returns GeoJSON features instead of OData products.
package opensearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/glorpus-work/cdse/pkg/errors"
)

// DefaultBaseURL is the CDSE resto API root.
const DefaultBaseURL = "https://catalogue.dataspace.copernicus.eu/resto/api"

// DefaultPageSize is the records-per-page default when a query does not set
// one.
const DefaultPageSize = 1000

const defaultUserAgent = "cdse/1.0"

// timeFormat renders query timestamps the endpoint accepts.
const timeFormat = "2006-01-02T15:04:05Z"

// Client performs OpenSearch requests. Search endpoints are public, no
// authenticated session is needed.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the resto API root URL.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates an OpenSearch client.
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

// Point is a WGS84 coordinate.
type Point struct {
	Lon float64
	Lat float64
}

// Query describes an OpenSearch product search. Zero-valued fields are
// omitted from the request.
type Query struct {
	// Collection selects the per-collection search endpoint, e.g.
	// "Sentinel2". Required.
	Collection string

	Name      string // product identifier substring, e.g. "S2A_MSIL2A"
	ProductID string // exact product UUID

	// Sensing time window.
	SensingFrom time.Time
	SensingTo   time.Time

	// Publication time window.
	PublishedFrom time.Time
	PublishedTo   time.Time

	// Point-radius search. Radius is in meters and only applies when Point
	// is set.
	Point  *Point
	Radius float64

	// BBox is a lonMin,latMin,lonMax,latMax bounding box.
	BBox *[4]float64

	// CloudCover is an inclusive [min,max] percentage range.
	CloudCover *[2]int

	Instrument     string
	ProductType    string
	SensorMode     string
	OrbitDirection string
	Resolution     string
	Status         string

	SortParam string // feature attribute to sort on, e.g. "startDate"
	SortOrder string // "ascending" or "descending"
	PageSize  int    // records per page, 0 means DefaultPageSize
}

// Feature is one GeoJSON product feature.
type Feature struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Geometry   json.RawMessage   `json:"geometry"`
	Properties FeatureProperties `json:"properties"`
}

// FeatureProperties are the product attributes of a feature. Unlisted
// attributes are dropped during decoding.
type FeatureProperties struct {
	Title             string          `json:"title"`
	ProductIdentifier string          `json:"productIdentifier"`
	ProductType       string          `json:"productType"`
	Platform          string          `json:"platform"`
	Instrument        string          `json:"instrument"`
	SensorMode        string          `json:"sensorMode"`
	OrbitDirection    string          `json:"orbitDirection"`
	CloudCover        float64         `json:"cloudCover"`
	StartDate         string          `json:"startDate"`
	CompletionDate    string          `json:"completionDate"`
	Published         string          `json:"published"`
	Status            json.RawMessage `json:"status"`
	Services          json.RawMessage `json:"services"`
}

// Link is a pagination link of a result page.
type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// searchPage is one GeoJSON response page.
type searchPage struct {
	Features   []Feature `json:"features"`
	Properties struct {
		TotalResults *int64 `json:"totalResults"`
		Links        []Link `json:"links"`
	} `json:"properties"`
}

// Search is a prepared, reusable OpenSearch query against one client.
type Search struct {
	client *Client
	query  Query
}

// NewSearch validates the query and binds it to a client.
func NewSearch(client *Client, query Query) (*Search, error) {
	if query.Collection == "" {
		return nil, errors.Wrap(errors.ErrInvalidQuery, "collection is required")
	}
	if query.PageSize < 0 {
		return nil, errors.Wrap(errors.ErrInvalidQuery, "page size cannot be negative")
	}
	if query.SortOrder != "" && query.SortOrder != "ascending" && query.SortOrder != "descending" {
		return nil, errors.Wrapf(errors.ErrInvalidQuery,
			"invalid sort order %q, must be ascending or descending", query.SortOrder)
	}
	return &Search{client: client, query: query}, nil
}

// Params renders the query to OpenSearch request parameters.
func (s *Search) Params() url.Values {
	q := s.query
	params := url.Values{}

	if q.Name != "" {
		params.Set("productIdentifier", q.Name)
	}
	if q.ProductID != "" {
		params.Set("identifier", q.ProductID)
	}
	if !q.SensingFrom.IsZero() {
		params.Set("startDate", q.SensingFrom.UTC().Format(timeFormat))
	}
	if !q.SensingTo.IsZero() {
		params.Set("completionDate", q.SensingTo.UTC().Format(timeFormat))
	}
	if !q.PublishedFrom.IsZero() {
		params.Set("publishedAfter", q.PublishedFrom.UTC().Format(timeFormat))
	}
	if !q.PublishedTo.IsZero() {
		params.Set("publishedBefore", q.PublishedTo.UTC().Format(timeFormat))
	}
	if q.Point != nil {
		params.Set("lon", formatFloat(q.Point.Lon))
		params.Set("lat", formatFloat(q.Point.Lat))
		if q.Radius > 0 {
			params.Set("radius", formatFloat(q.Radius))
		}
	}
	if q.BBox != nil {
		coords := make([]string, len(q.BBox))
		for i, v := range q.BBox {
			coords[i] = formatFloat(v)
		}
		params.Set("box", strings.Join(coords, ","))
	}
	if q.CloudCover != nil {
		params.Set("cloudCover", fmt.Sprintf("[%d,%d]", q.CloudCover[0], q.CloudCover[1]))
	}
	if q.Instrument != "" {
		params.Set("instrument", q.Instrument)
	}
	if q.ProductType != "" {
		params.Set("productType", q.ProductType)
	}
	if q.SensorMode != "" {
		params.Set("sensorMode", q.SensorMode)
	}
	if q.OrbitDirection != "" {
		params.Set("orbitDirection", q.OrbitDirection)
	}
	if q.Resolution != "" {
		params.Set("resolution", q.Resolution)
	}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.SortParam != "" {
		params.Set("sortParam", q.SortParam)
	}
	if q.SortOrder != "" {
		params.Set("sortOrder", q.SortOrder)
	}

	pageSize := q.PageSize
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	params.Set("maxRecords", strconv.Itoa(pageSize))
	return params
}

// Iterator returns a fresh lazy iterator over all matching features.
// Iterating again re-issues requests from the first page.
func (s *Search) Iterator() *Iterator {
	return &Iterator{
		client:   s.client,
		firstURL: s.searchURL(),
		params:   s.Params(),
	}
}

// Get fetches up to limit matching features. limit <= 0 means no limit.
func (s *Search) Get(ctx context.Context, limit int) ([]Feature, error) {
	it := s.Iterator()
	it.limit = limit

	var out []Feature
	for it.Next(ctx) {
		out = append(out, it.Item())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Hits returns the total number of features matching the search without
// fetching them.
func (s *Search) Hits(ctx context.Context) (int64, error) {
	params := s.Params()
	params.Set("maxRecords", "1")
	pg, err := getSearchPage(s.client, ctx, s.searchURL(), params)
	if err != nil {
		return 0, err
	}
	if pg.Properties.TotalResults == nil {
		return 0, errors.Wrap(errors.ErrSearchFailed, "response is missing totalResults")
	}
	return *pg.Properties.TotalResults, nil
}

func (s *Search) searchURL() string {
	return fmt.Sprintf("%s/collections/%s/search.json", s.client.baseURL, s.query.Collection)
}

// Iterator lazily walks a paginated GeoJSON result set, following the
// rel="next" link of each page. The next link carries the full query, so
// the initial parameters are only sent with the first request. An Iterator
// is single-use.
type Iterator struct {
	client   *Client
	firstURL string
	params   url.Values
	limit    int

	nextURL string
	buf     []Feature
	pos     int
	yielded int
	cur     Feature
	started bool
	done    bool
	err     error
}

// Next advances to the next feature, fetching the next page when the
// buffered one is exhausted. It returns false at the end of the results or
// on error.
func (it *Iterator) Next(ctx context.Context) bool {
	if it.err != nil || (it.limit > 0 && it.yielded >= it.limit) {
		return false
	}
	for it.pos >= len(it.buf) {
		if it.done {
			return false
		}
		if !it.fetchPage(ctx) {
			return false
		}
	}
	it.cur = it.buf[it.pos]
	it.pos++
	it.yielded++
	return true
}

// Item returns the current feature. Only valid after Next returned true.
func (it *Iterator) Item() Feature { return it.cur }

// Err returns the first error encountered while iterating.
func (it *Iterator) Err() error { return it.err }

func (it *Iterator) fetchPage(ctx context.Context) bool {
	var (
		pg  searchPage
		err error
	)
	switch {
	case !it.started:
		pg, err = getSearchPage(it.client, ctx, it.firstURL, it.params)
		it.started = true
	case it.nextURL != "":
		pg, err = getSearchPage(it.client, ctx, it.nextURL, nil)
	default:
		it.done = true
		return false
	}
	if err != nil {
		it.err = err
		it.done = true
		return false
	}

	it.buf = pg.Features
	it.pos = 0
	it.nextURL = nextLink(pg.Properties.Links)
	if it.nextURL == "" {
		it.done = true
	}
	return len(it.buf) > 0 || !it.done
}

func nextLink(links []Link) string {
	for _, l := range links {
		if l.Rel == "next" {
			return l.Href
		}
	}
	return ""
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// getSearchPage fetches one result page. params may be nil when rawURL is a
// server-provided next link that already carries the query.
func getSearchPage(c *Client, ctx context.Context, rawURL string, params url.Values) (searchPage, error) {
	var result searchPage

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
