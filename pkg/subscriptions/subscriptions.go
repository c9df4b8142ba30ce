// Package subscriptions manages catalogue subscriptions: standing filtered
// feeds of newly published products that are read and acknowledged through
// the authenticated OData endpoint.
package subscriptions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/glorpus-work/cdse/pkg/errors"
	"github.com/glorpus-work/cdse/pkg/filter"
)

// DefaultBaseURL is the CDSE catalogue OData v1 root.
const DefaultBaseURL = "https://catalogue.dataspace.copernicus.eu/odata/v1"

// MaxReadTop is the largest batch the Read endpoint serves per request.
const MaxReadTop = 20

const defaultUserAgent = "cdse/1.0"

// Status is a subscription lifecycle state.
type Status string

// Subscription states accepted by the endpoint.
const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
)

// StatusOptions are the states an update may move a subscription to.
var StatusOptions = []Status{StatusRunning, StatusPaused, StatusCancelled}

// Subscription describes a catalogue subscription.
type Subscription struct {
	ID                   string    `json:"Id"`
	Status               Status    `json:"Status"`
	FilterParam          string    `json:"FilterParam,omitempty"`
	StageOrder           bool      `json:"StageOrder"`
	Priority             int       `json:"Priority"`
	NotificationEndpoint string    `json:"NotificationEndpoint,omitempty"`
	SubscriptionEvent    []string  `json:"SubscriptionEvent"`
	SubmissionDate       time.Time `json:"SubmissionDate,omitempty"`
	LastNotificationDate time.Time `json:"LastNotificationDate,omitempty"`
}

// Notification is one queued subscription result.
type Notification struct {
	ProductID         string    `json:"ProductId"`
	ProductName       string    `json:"ProductName"`
	SubscriptionEvent string    `json:"SubscriptionEvent"`
	NotificationDate  time.Time `json:"NotificationDate"`
	AckID             string    `json:"AckId"`
}

// NotificationParams configure push delivery of subscription events to a
// caller-operated endpoint. Leave nil for pull subscriptions read via Read.
type NotificationParams struct {
	Endpoint string
	Username string
	Password string
}

// Client performs subscription requests. The HTTP client must carry a
// bearer session (auth.NewClient); every subscription operation requires
// authentication.
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

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates a subscription client on top of an authenticated
// HTTP session.
func NewClient(httpClient *http.Client, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: httpClient,
		baseURL:    DefaultBaseURL,
		userAgent:  defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// createPayload is the creation request body. StageOrder, Priority and the
// subscription event are fixed: the endpoint accepts no other values.
type createPayload struct {
	StageOrder             bool     `json:"StageOrder"`
	Priority               int      `json:"Priority"`
	Status                 Status   `json:"Status"`
	SubscriptionEvent      []string `json:"SubscriptionEvent"`
	FilterParam            string   `json:"FilterParam,omitempty"`
	NotificationEndpoint   string   `json:"NotificationEndpoint,omitempty"`
	NotificationEpUsername string   `json:"NotificationEpUsername,omitempty"`
	NotificationEpPassword string   `json:"NotificationEpPassword,omitempty"`
}

type updatePayload struct {
	Status                 Status `json:"Status,omitempty"`
	NotificationEndpoint   string `json:"NotificationEndpoint,omitempty"`
	NotificationEpUsername string `json:"NotificationEpUsername,omitempty"`
	NotificationEpPassword string `json:"NotificationEpPassword,omitempty"`
}

// Create registers a new running subscription. products matching the filter
// are queued as they are published. A nil filter subscribes to everything.
func (c *Client) Create(ctx context.Context, node filter.Node, notif *NotificationParams) (Subscription, error) {
	payload := createPayload{
		StageOrder:        true,
		Priority:          1,
		Status:            StatusRunning,
		SubscriptionEvent: []string{"created"},
	}
	if node != nil {
		filterString, err := filter.Serialize(node)
		if err != nil {
			return Subscription{}, err
		}
		payload.FilterParam = filterString
	}
	if notif != nil {
		payload.NotificationEndpoint = notif.Endpoint
		payload.NotificationEpUsername = notif.Username
		payload.NotificationEpPassword = notif.Password
	}

	var sub Subscription
	err := c.do(ctx, http.MethodPost, c.baseURL+"/Subscriptions", payload, &sub)
	return sub, err
}

// Delete removes a subscription.
func (c *Client) Delete(ctx context.Context, subscriptionID string) error {
	return c.do(ctx, http.MethodDelete, c.subscriptionURL(subscriptionID), nil, nil)
}

// Info fetches one subscription.
func (c *Client) Info(ctx context.Context, subscriptionID string) (Subscription, error) {
	var sub Subscription
	err := c.do(ctx, http.MethodGet, c.subscriptionURL(subscriptionID), nil, &sub)
	return sub, err
}

// List fetches all subscriptions of the account.
func (c *Client) List(ctx context.Context) ([]Subscription, error) {
	var subs []Subscription
	err := c.do(ctx, http.MethodGet, c.baseURL+"/Subscriptions/Info", nil, &subs)
	return subs, err
}

// Read fetches up to limit queued results without acknowledging them.
// Repeated reads return the same results until they are acknowledged. The
// endpoint caps the batch at MaxReadTop; limit <= 0 means one result.
func (c *Client) Read(ctx context.Context, subscriptionID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 1
	}
	if limit > MaxReadTop {
		return nil, errors.Wrapf(errors.ErrInvalidQuery, "read limit must be at most %d", MaxReadTop)
	}
	rawURL := c.subscriptionURL(subscriptionID) + "/Read?$top=" + strconv.Itoa(limit)

	var notifications []Notification
	err := c.do(ctx, http.MethodGet, rawURL, nil, &notifications)
	return notifications, err
}

// Ack acknowledges one queued result, removing it from the subscription.
// Acknowledging a result also acknowledges everything queued before it.
func (c *Client) Ack(ctx context.Context, subscriptionID, ackToken string) (Subscription, error) {
	rawURL := c.subscriptionURL(subscriptionID) + "/Ack?$ackid=" + url.QueryEscape(ackToken)

	var sub Subscription
	err := c.do(ctx, http.MethodPost, rawURL, nil, &sub)
	return sub, err
}

// Update changes a subscription's status and/or notification endpoint. An
// empty status leaves the current state untouched.
func (c *Client) Update(ctx context.Context, subscriptionID string, status Status, notif *NotificationParams) (Subscription, error) {
	if status != "" && !validStatus(status) {
		return Subscription{}, errors.Wrapf(errors.ErrInvalidQuery,
			"invalid status %q, must be one of %v", status, StatusOptions)
	}
	payload := updatePayload{Status: status}
	if notif != nil {
		payload.NotificationEndpoint = notif.Endpoint
		payload.NotificationEpUsername = notif.Username
		payload.NotificationEpPassword = notif.Password
	}

	var sub Subscription
	err := c.do(ctx, http.MethodPatch, c.subscriptionURL(subscriptionID), payload, &sub)
	return sub, err
}

func (c *Client) subscriptionURL(subscriptionID string) string {
	return fmt.Sprintf("%s/Subscriptions(%s)", c.baseURL, subscriptionID)
}

func validStatus(status Status) bool {
	for _, s := range StatusOptions {
		if s == status {
			return true
		}
	}
	return false
}

// do performs one request and decodes the response into out when non-nil.
func (c *Client) do(ctx context.Context, method, rawURL string, payload, out interface{}) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "failed to encode request body")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrSubscription, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(errors.ErrSubscription, err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Wrapf(errors.ErrSubscription, "unexpected status code: %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(errors.ErrSubscription, err.Error())
	}
	return nil
}
