// Package hrapi is the console's client for the GestionRH REST API.
package hrapi

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
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gestionrh/gestionrh-console/internal/apierr"
)

// TokenCookie is the cookie carrying the API bearer token.
const TokenCookie = "token"

const (
	mePath       = "/auth/me"
	maxErrorBody = 1 << 20
)

// ErrUnexpectedShape reports a 2xx body that does not match the expected structure.
var ErrUnexpectedShape = errors.New("hrapi: unexpected response structure")

// Credentials is the owned session state a call runs under.
type Credentials interface {
	APIToken() string
	// ExpireAPISession tears the session down after the API rejected the token.
	ExpireAPISession()
}

// Config controls the API client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the GestionRH API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient constructs a client. Outgoing requests are traced.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string { return c.baseURL }

// For binds creds to subsequent calls.
func (c *Client) For(creds Credentials) *Caller {
	return &Caller{client: c, creds: creds}
}

// Caller issues API calls under one set of credentials.
type Caller struct {
	client *Client
	creds  Credentials
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
}

func (c *Client) newRequest(ctx context.Context, r request, token string) (*http.Request, error) {
	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}
	var body io.Reader
	if r.body != nil {
		buf, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("hrapi: encode %s %s: %w", r.method, r.path, err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
		req.AddCookie(&http.Cookie{Name: TokenCookie, Value: token})
	}
	return req, nil
}

// send performs the request and returns the response for 2xx statuses. Any
// other outcome is an *apierr.Error.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apierr.Error{Method: req.Method, Path: pathOf(req, c.baseURL), Err: err}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, apierr.FromResponse(req.Method, pathOf(req, c.baseURL), resp.StatusCode, body)
}

func pathOf(req *http.Request, base string) string {
	if base != "" {
		if u, err := url.Parse(base); err == nil {
			return strings.TrimPrefix(req.URL.Path, strings.TrimRight(u.Path, "/"))
		}
	}
	return req.URL.Path
}

// do runs r under the caller's credentials and decodes a JSON body into out
// when out is non-nil.
func (a *Caller) do(ctx context.Context, r request, out any) error {
	token := ""
	if a.creds != nil {
		token = a.creds.APIToken()
	}
	req, err := a.client.newRequest(ctx, r, token)
	if err != nil {
		return err
	}
	resp, err := a.client.send(req)
	if err != nil {
		if apierr.IsStatus(err, http.StatusUnauthorized) && r.path != mePath && a.creds != nil {
			a.client.logger.Warn("api session expired", slog.String("path", r.path))
			a.creds.ExpireAPISession()
		}
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("hrapi: decode %s %s: %w", r.method, r.path, err)
	}
	return nil
}

func (a *Caller) get(ctx context.Context, path string, query url.Values, out any) error {
	return a.do(ctx, request{method: http.MethodGet, path: path, query: query}, out)
}

// list fetches a collection that the API returns either as an array or as a page.
func list[T any](ctx context.Context, a *Caller, path string, query url.Values) ([]T, error) {
	var raw json.RawMessage
	if err := a.get(ctx, path, query, &raw); err != nil {
		return nil, err
	}
	return decodeList[T](raw)
}

func decodeList[T any](raw json.RawMessage) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []T{}, nil
	}
	switch trimmed[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("hrapi: decode list: %w", err)
		}
		return items, nil
	case '{':
		var page Page[T]
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return nil, fmt.Errorf("hrapi: decode page: %w", err)
		}
		if page.Content == nil {
			return nil, ErrUnexpectedShape
		}
		return page.Content, nil
	}
	return nil, ErrUnexpectedShape
}

func idPath(format string, id int64) string {
	return fmt.Sprintf(format, id)
}
