package rooms

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Source is the request/response channel consumed by the sync core.
// It is implemented by *Client and can be faked in tests.
type Source interface {
	FetchRooms(ctx context.Context) ([]Room, error)
	UpdateStatus(ctx context.Context, id string, status Status) ([]byte, error)
}

// Ensure Client implements Source at compile time.
var _ Source = (*Client)(nil)

// Client talks to the room HTTP API.
type Client struct {
	baseURL *url.URL
	http    *resty.Client
}

const (
	defaultAPIBase   = "http://127.0.0.1:8000"
	defaultUserAgent = "roomboard/0.1"
	defaultTimeout   = 5 * time.Second

	roomsPath  = "/rooms"
	statusPath = "/rooms/{id}/status"
	streamPath = "/ws/rooms/status"
)

// NewClient builds a Client for apiBase. A non-positive timeout uses the
// default of five seconds.
func NewClient(apiBase string, timeout time.Duration, log *zap.Logger) (*Client, error) {
	base, err := ParseBaseURL(apiBase)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	http := resty.New().
		SetBaseURL(base.String()).
		SetTimeout(timeout).
		SetLogger(log.Named("http").Sugar()).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", defaultUserAgent)
	return &Client{baseURL: base, http: http}, nil
}

// BaseURL returns the normalized API base.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// FetchRooms retrieves the full ordered collection.
func (c *Client) FetchRooms(ctx context.Context) ([]Room, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	resp, err := c.http.R().SetContext(ctx).Get(roomsPath)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("api %s returned status %d", roomsPath, resp.StatusCode())
	}
	list, err := DecodeSnapshot(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return list, nil
}

type statusUpdateRequest struct {
	NewStatus Status `json:"new_status"`
}

// UpdateStatus posts a status change and returns the raw response body.
// Classifying the body is left to the caller; HTTP error statuses are
// returned as errors.
func (c *Client) UpdateStatus(ctx context.Context, id string, status Status) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("room id required")
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetHeader("Content-Type", "application/json").
		SetBody(statusUpdateRequest{NewStatus: status}).
		Post(statusPath)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("api %s returned status %d", statusPath, resp.StatusCode())
	}
	return resp.Body(), nil
}

// ParseBaseURL normalizes an API base such as "127.0.0.1:8000" or
// "http://host:8000/" into a scheme://host URL.
func ParseBaseURL(apiBase string) (*url.URL, error) {
	trimmed := strings.TrimSpace(apiBase)
	if trimmed == "" {
		trimmed = defaultAPIBase
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api base %q: %w", apiBase, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse api base %q: missing host", apiBase)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// StreamURL derives the live update endpoint from an API base.
func StreamURL(apiBase string) (string, error) {
	u, err := ParseBaseURL(apiBase)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = streamPath
	return u.String(), nil
}
