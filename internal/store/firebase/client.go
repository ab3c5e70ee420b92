// Package firebase implements store.Store against the Firebase Realtime
// Database REST API.
//
// Every path maps to "{base}/{path}.json". The master credential travels as
// the "auth" query parameter, so request URLs are never logged or returned
// in errors: failures name the method and path only.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nerrad567/roomgate/internal/store"
)

// Client limits.
const (
	// defaultTimeout backstops the per-call context deadline.
	defaultTimeout = 10 * time.Second

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 4 << 10

	// maxSnapshotBody bounds a full-tree read.
	maxSnapshotBody = 16 << 20
)

// Config configures a Client.
type Config struct {
	// URL is the database base URL, e.g. https://project-default-rtdb.firebaseio.com
	URL string

	// Secret is the database secret (or ID token) sent as ?auth=.
	Secret string

	// Timeout bounds each HTTP request. Zero uses the default.
	Timeout time.Duration

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to one Realtime Database instance.
type Client struct {
	base       *url.URL
	secret     string
	httpClient *http.Client
}

// New validates cfg and returns a Client. No network call is made.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("firebase: url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("firebase: parsing url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("firebase: url scheme must be http or https, got %q", base.Scheme)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		base:       base,
		secret:     cfg.Secret,
		httpClient: httpClient,
	}, nil
}

// Put implements store.Store with an HTTP PUT (replace).
func (c *Client) Put(ctx context.Context, path string, value json.RawMessage) error {
	if _, err := store.SplitPath(path); err != nil {
		return err
	}
	if !json.Valid(value) {
		return store.ErrInvalidValue
	}
	_, err := c.do(ctx, http.MethodPut, path, value, true)
	return err
}

// Patch implements store.Store with an HTTP PATCH (merge).
func (c *Client) Patch(ctx context.Context, path string, fields map[string]json.RawMessage) error {
	if _, err := store.SplitPath(path); err != nil {
		return err
	}
	if len(fields) == 0 {
		return store.ErrInvalidFields
	}
	for k := range fields {
		if err := store.ValidateKey(k); err != nil {
			return err
		}
	}
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidValue, err)
	}
	_, err = c.do(ctx, http.MethodPatch, path, body, true)
	return err
}

// GetAll implements store.Store with a GET of the root.
func (c *Client) GetAll(ctx context.Context) (json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodGet, "", nil, false)
	if err != nil {
		return nil, err
	}
	if store.IsNull(body) {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: GET /: response is not JSON", store.ErrUnexpectedStatus)
	}
	return body, nil
}

// HealthCheck performs a shallow root read to verify the database and
// credential are usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	u := c.endpoint("")
	q := u.Query()
	q.Set("shallow", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("firebase health check: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("firebase health check: %w: %w", store.ErrRequestFailed, redact(err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("firebase health check: %w: HTTP %d", store.ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}

// endpoint builds the REST URL for path with the auth parameter attached.
func (c *Client) endpoint(path string) *url.URL {
	u := *c.base
	u.Path = c.base.Path + "/" + strings.Trim(path, "/") + ".json"
	q := url.Values{}
	if c.secret != "" {
		q.Set("auth", c.secret)
	}
	u.RawQuery = q.Encode()
	return &u
}

// do issues one request. silent asks the server to omit the echoed body on writes.
func (c *Client) do(ctx context.Context, method, path string, body []byte, silent bool) ([]byte, error) {
	u := c.endpoint(path)
	if silent {
		q := u.Query()
		q.Set("print", "silent")
		u.RawQuery = q.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %s /%s: %w", store.ErrRequestFailed, method, path, redact(err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s /%s: %w", store.ErrRequestFailed, method, path, redact(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := upstreamMessage(resp.Body)
		return nil, fmt.Errorf("%w: %s /%s: HTTP %d%s", store.ErrUnexpectedStatus, method, path, resp.StatusCode, msg)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %s /%s: reading response: %w", store.ErrRequestFailed, method, path, redact(err))
	}
	return data, nil
}

// upstreamMessage extracts the {"error": "..."} message the database returns.
func upstreamMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) != nil || body.Error == "" {
		return ""
	}
	return ": " + body.Error
}

// redact strips the request URL (and with it the auth query) from transport errors.
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
