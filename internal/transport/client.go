// Package transport is the HTTP boundary to the query service: saved
// query storage, query execution, the user profile, spaces and type
// descriptors.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/querybuilder/internal/auth"
	"github.com/roach88/querybuilder/internal/canonical"
	"github.com/roach88/querybuilder/internal/catalog"
	"github.com/roach88/querybuilder/internal/queryspec"
	"github.com/roach88/querybuilder/internal/session"
)

// Service paths. The server package serves the same routes.
const (
	PathUser    = "/service/api/user"
	PathSpaces  = "/service/api/spaces"
	PathTypes   = "/service/api/types"
	PathQueries = "/service/api/queries"
)

// QueryPath returns the path of one saved query.
func QueryPath(id string) string {
	return PathQueries + "/" + url.PathEscape(id)
}

// DefaultTimeout bounds one request when no http.Client is supplied.
const DefaultTimeout = 30 * time.Second

// Envelope wraps list and profile responses.
type Envelope[T any] struct {
	Data T `json:"data"`
}

// Client calls the query service over HTTP.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	token   string
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithToken sends token as a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a Client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", baseURL)
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PerformQuery runs req.Query. The whole response body is the result.
func (c *Client) PerformQuery(ctx context.Context, req session.ExecuteRequest) (*session.QueryResult, error) {
	if req.Query == nil {
		return nil, errors.New("perform query: nil query")
	}
	v := url.Values{}
	v.Set("size", strconv.Itoa(req.Size))
	v.Set("from", strconv.Itoa(req.From))
	if req.InstanceID != "" {
		v.Set("instanceId", req.InstanceID)
	}
	if req.Stage != "" {
		v.Set("stage", req.Stage)
	}
	for name, value := range req.Params {
		v.Add(name, value)
	}
	if len(req.RestrictToSpaces) > 0 {
		v.Set("restrictToSpaces", strings.Join(req.RestrictToSpaces, ","))
	}

	var body any
	if err := c.do(ctx, http.MethodPost, PathQueries, v, req.Query.ToMap(), &body); err != nil {
		return nil, err
	}
	return &session.QueryResult{Data: body}, nil
}

// SaveQuery stores q under id in space.
func (c *Client) SaveQuery(ctx context.Context, id string, q *queryspec.Query, space string) error {
	if q == nil {
		return errors.New("save query: nil query")
	}
	var v url.Values
	if space != "" {
		v = url.Values{"space": {space}}
	}
	return c.do(ctx, http.MethodPut, QueryPath(id), v, q.ToMap(), nil)
}

// DeleteQuery removes the saved query id.
func (c *Client) DeleteQuery(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, QueryPath(id), nil, nil, nil)
}

// ListQueries returns the saved documents whose root type is typeID.
func (c *Client) ListQueries(ctx context.Context, typeID string) ([]map[string]any, error) {
	var env Envelope[[]map[string]any]
	if err := c.do(ctx, http.MethodGet, PathQueries, url.Values{"type": {typeID}}, nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// GetQuery returns the saved document id.
func (c *Client) GetQuery(ctx context.Context, id string) (map[string]any, error) {
	var doc map[string]any
	if err := c.do(ctx, http.MethodGet, QueryPath(id), nil, nil, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// GetUserProfile returns the profile document of the signed-in user.
func (c *Client) GetUserProfile(ctx context.Context) (map[string]any, error) {
	var env Envelope[map[string]any]
	if err := c.do(ctx, http.MethodGet, PathUser, nil, nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// GetSpaces returns the spaces of the signed-in user.
func (c *Client) GetSpaces(ctx context.Context) ([]auth.Space, error) {
	var env Envelope[[]auth.Space]
	if err := c.do(ctx, http.MethodGet, PathSpaces, nil, nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// FetchTypes returns the descriptors of the given type ids.
func (c *Client) FetchTypes(ctx context.Context, ids []string) ([]catalog.Type, error) {
	var env Envelope[[]catalog.Type]
	if err := c.do(ctx, http.MethodPost, PathTypes, nil, ids, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// do sends one request. payload, when non-nil, is sent as canonical JSON;
// out, when non-nil, receives the decoded body with numbers kept as
// json.Number.
func (c *Client) do(ctx context.Context, method, route string, query url.Values, payload, out any) error {
	u, err := c.baseURL.Parse(strings.TrimSuffix(c.baseURL.EscapedPath(), "/") + route)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, route, err)
	}
	u.RawQuery = query.Encode()

	var body io.Reader
	if payload != nil {
		data, err := canonical.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s %s: encode body: %w", method, route, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, route, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, route, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, route, err)
	}
	c.logger.Debug("service request",
		"method", method,
		"path", u.Path,
		"status", resp.StatusCode,
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newStatusError(method, u.RequestURI(), resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, route, err)
	}
	return nil
}
