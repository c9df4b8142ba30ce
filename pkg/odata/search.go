package odata

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/glorpus-work/cdse/pkg/errors"
	"github.com/glorpus-work/cdse/pkg/filter"
)

// Query limits imposed by the catalogue.
const (
	MaxTop  = 1000
	MaxSkip = 10000
)

const areaPattern = "OData.CSC.Intersects(area=geography'SRID=4326;%s')"

// ProductQuery describes a product search. Zero-valued fields are omitted
// from the request. All query pieces are and-joined into a single $filter in
// a fixed order (collection, name, id, sensing date, publication date, area,
// extra filters), so the serialized query is stable for identical inputs.
type ProductQuery struct {
	Collection string
	Name       string
	ProductID  string

	// Sensing time window, matched against ContentDate/Start.
	SensingFrom time.Time
	SensingTo   time.Time

	// Publication time window.
	PublishedFrom time.Time
	PublishedTo   time.Time

	// Area is a WKT geometry in EPSG:4326, e.g. "POLYGON((...))". Geometry
	// parsing is out of scope; callers supply the literal.
	Area string

	// Filters are extra filter expressions and-joined after the built-ins.
	Filters []filter.Node

	OrderBy string // one of ProductOrderByOptions
	Order   string // "asc" or "desc"
	Top     int    // page size, 1..1000; 0 means the server default
	Skip    int    // entries to skip, 0..10000
	Expand  string // one of ProductExpandOptions
}

// Valid option values for product searches.
var (
	ProductOrderByOptions = []string{"ContentDate/Start", "ContentDate/End", "PublicationDate", "ModificationDate"}
	ProductExpandOptions  = []string{"Assets", "Attributes", "Locations"}
	OrderOptions          = []string{"asc", "desc"}
)

// ProductSearch is a prepared, reusable product search against one client.
type ProductSearch struct {
	client *Client
	query  ProductQuery
}

// NewProductSearch validates the query and binds it to a client.
func NewProductSearch(client *Client, query ProductQuery) (*ProductSearch, error) {
	if err := validateQuery(query.Top, query.Skip, query.OrderBy, query.Order, query.Expand,
		ProductOrderByOptions, ProductExpandOptions); err != nil {
		return nil, err
	}
	return &ProductSearch{client: client, query: query}, nil
}

// Params renders the query to OData request parameters.
func (s *ProductSearch) Params() (url.Values, error) {
	filterString, err := buildFilterString(s.query)
	if err != nil {
		return nil, err
	}
	return buildParams(filterString, s.query.Top, s.query.Skip, s.query.OrderBy, s.query.Order, s.query.Expand), nil
}

// Iterator returns a fresh lazy iterator over all matching products.
// Iterating again re-issues requests from the first page.
func (s *ProductSearch) Iterator() (*Iterator[Product], error) {
	params, err := s.Params()
	if err != nil {
		return nil, err
	}
	return newIterator[Product](s.client, s.client.baseURL+"/Products", params, 0), nil
}

// Get fetches up to limit matching products. limit <= 0 means no limit.
func (s *ProductSearch) Get(ctx context.Context, limit int) ([]Product, error) {
	params, err := s.Params()
	if err != nil {
		return nil, err
	}
	it := newIterator[Product](s.client, s.client.baseURL+"/Products", params, limit)
	return collect(ctx, it)
}

// GetAll fetches all matching products.
func (s *ProductSearch) GetAll(ctx context.Context) ([]Product, error) {
	return s.Get(ctx, 0)
}

// Hits returns the total number of products matching the search without
// fetching them.
func (s *ProductSearch) Hits(ctx context.Context) (int64, error) {
	params, err := s.Params()
	if err != nil {
		return 0, err
	}
	params.Set("$top", "1")
	params.Set("$count", "true")
	pg, err := getPage[Product](s.client, ctx, s.client.baseURL+"/Products", params)
	if err != nil {
		return 0, err
	}
	if pg.Count == nil {
		return 0, errors.Wrap(errors.ErrSearchFailed, "response is missing @odata.count")
	}
	return *pg.Count, nil
}

// DeletedProductQuery describes a search of the DeletedProducts endpoint.
type DeletedProductQuery struct {
	Collection    string
	Name          string
	DeletionCause string
	DeletedFrom   time.Time
	DeletedTo     time.Time
	Filters       []filter.Node

	OrderBy string
	Order   string
	Top     int
	Skip    int
}

// DeletedProductOrderByOptions are the orderings the DeletedProducts
// endpoint accepts.
var DeletedProductOrderByOptions = []string{"DeletionDate", "PublicationDate", "ModificationDate"}

// DeletedProductSearch is a prepared search of the DeletedProducts endpoint.
type DeletedProductSearch struct {
	client *Client
	query  DeletedProductQuery
}

// NewDeletedProductSearch validates the query and binds it to a client.
func NewDeletedProductSearch(client *Client, query DeletedProductQuery) (*DeletedProductSearch, error) {
	if err := validateQuery(query.Top, query.Skip, query.OrderBy, query.Order, "",
		DeletedProductOrderByOptions, nil); err != nil {
		return nil, err
	}
	return &DeletedProductSearch{client: client, query: query}, nil
}

// Get fetches up to limit matching deleted products. limit <= 0 means no limit.
func (s *DeletedProductSearch) Get(ctx context.Context, limit int) ([]DeletedProduct, error) {
	nodes, err := deletedFilterNodes(s.query)
	if err != nil {
		return nil, err
	}
	filterString, err := joinFilterParts(nodes, "", s.query.Filters)
	if err != nil {
		return nil, err
	}
	params := buildParams(filterString, s.query.Top, s.query.Skip, s.query.OrderBy, s.query.Order, "")
	it := newIterator[DeletedProduct](s.client, s.client.baseURL+"/DeletedProducts", params, limit)
	return collect(ctx, it)
}

func validateQuery(top, skip int, orderBy, order, expand string, orderByOptions, expandOptions []string) error {
	if top < 0 || top > MaxTop {
		return errors.Wrapf(errors.ErrInvalidQuery, "top must be between 0 and %d", MaxTop)
	}
	if skip < 0 || skip > MaxSkip {
		return errors.Wrapf(errors.ErrInvalidQuery, "skip must be between 0 and %d", MaxSkip)
	}
	if orderBy != "" && !contains(orderByOptions, orderBy) {
		return errors.Wrapf(errors.ErrInvalidQuery, "invalid order_by %q, must be one of %v", orderBy, orderByOptions)
	}
	if order != "" && !contains(OrderOptions, order) {
		return errors.Wrapf(errors.ErrInvalidQuery, "invalid order %q, must be one of %v", order, OrderOptions)
	}
	if expand != "" && !contains(expandOptions, expand) {
		return errors.Wrapf(errors.ErrInvalidQuery, "invalid expand %q, must be one of %v", expand, expandOptions)
	}
	return nil
}

func buildFilterString(q ProductQuery) (string, error) {
	nodes, err := productFilterNodes(q)
	if err != nil {
		return "", err
	}
	area := ""
	if q.Area != "" {
		area = fmt.Sprintf(areaPattern, q.Area)
	}
	return joinFilterParts(nodes, area, q.Filters)
}

func productFilterNodes(q ProductQuery) ([]filter.Node, error) {
	var nodes []filter.Node
	add := func(node filter.Node, err error) error {
		if err != nil {
			return err
		}
		nodes = append(nodes, node)
		return nil
	}

	if q.Collection != "" {
		if err := add(filter.Eq("Collection/Name", q.Collection)); err != nil {
			return nil, err
		}
	}
	if q.Name != "" {
		if err := add(filter.Eq("Name", q.Name)); err != nil {
			return nil, err
		}
	}
	if q.ProductID != "" {
		if err := add(filter.Eq("Id", q.ProductID)); err != nil {
			return nil, err
		}
	}
	if !q.SensingFrom.IsZero() {
		if err := add(filter.Ge("ContentDate/Start", q.SensingFrom)); err != nil {
			return nil, err
		}
	}
	if !q.SensingTo.IsZero() {
		if err := add(filter.Lt("ContentDate/Start", q.SensingTo)); err != nil {
			return nil, err
		}
	}
	if !q.PublishedFrom.IsZero() {
		if err := add(filter.Ge("PublicationDate", q.PublishedFrom)); err != nil {
			return nil, err
		}
	}
	if !q.PublishedTo.IsZero() {
		if err := add(filter.Lt("PublicationDate", q.PublishedTo)); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

func deletedFilterNodes(q DeletedProductQuery) ([]filter.Node, error) {
	var nodes []filter.Node
	add := func(node filter.Node, err error) error {
		if err != nil {
			return err
		}
		nodes = append(nodes, node)
		return nil
	}

	if q.Collection != "" {
		if err := add(filter.Eq("Collection/Name", q.Collection)); err != nil {
			return nil, err
		}
	}
	if q.Name != "" {
		if err := add(filter.Eq("Name", q.Name)); err != nil {
			return nil, err
		}
	}
	if q.DeletionCause != "" {
		if !contains(DeletionCauses, q.DeletionCause) {
			return nil, errors.Wrapf(errors.ErrInvalidQuery,
				"invalid deletion cause %q, must be one of %v", q.DeletionCause, DeletionCauses)
		}
		if err := add(filter.Eq("DeletionCause", q.DeletionCause)); err != nil {
			return nil, err
		}
	}
	if !q.DeletedFrom.IsZero() {
		if err := add(filter.Ge("DeletionDate", q.DeletedFrom)); err != nil {
			return nil, err
		}
	}
	if !q.DeletedTo.IsZero() {
		if err := add(filter.Lt("DeletionDate", q.DeletedTo)); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

// joinFilterParts and-joins built-in filter nodes, the raw area clause and
// extra caller filters, in that order.
func joinFilterParts(nodes []filter.Node, area string, extra []filter.Node) (string, error) {
	var parts []string
	if len(nodes) > 0 {
		s, err := filter.SerializeAll(nodes...)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	if area != "" {
		parts = append(parts, area)
	}
	if len(extra) > 0 {
		s, err := filter.SerializeAll(extra...)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " and "), nil
}

func buildParams(filterString string, top, skip int, orderBy, order, expand string) url.Values {
	params := url.Values{}
	if filterString != "" {
		params.Set("$filter", filterString)
	}
	if top > 0 {
		params.Set("$top", strconv.Itoa(top))
	}
	if skip > 0 {
		params.Set("$skip", strconv.Itoa(skip))
	}
	if orderBy != "" {
		if order == "" {
			order = "asc"
		}
		params.Set("$orderby", orderBy+" "+order)
	}
	if expand != "" {
		params.Set("$expand", expand)
	}
	return params
}

func contains(options []string, value string) bool {
	for _, o := range options {
		if o == value {
			return true
		}
	}
	return false
}
