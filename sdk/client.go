// Package zenith is the Go client for the ZENITH gateway. It covers agent
// chat and the live handshake, the studio endpoints, and a live.Dialer that
// goes through the gateway relay.
package zenith

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vango-go/zenith/pkg/core"
)

const defaultRequestTimeout = 2 * time.Minute

// Client talks to one gateway. The zero value is not usable; BaseURL is
// required.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	// APIKey is sent as a bearer token when set.
	APIKey string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the gateway API key.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.APIKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.HTTPClient = client
	}
}

// NewClient returns a Client for the gateway at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		BaseURL:    baseURL,
		HTTPClient: newDefaultHTTPClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newDefaultHTTPClient sets transport timeouts only; request lifetime is
// bounded by contexts.
func newDefaultHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	}
	return &http.Client{Transport: transport}
}

// TransportError is a failure to reach the gateway at all (DNS, TLS,
// connection reset). API errors are *core.Error instead.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Op != "" && e.URL != "":
		return fmt.Sprintf("transport error during %s %s: %v", e.Op, redactURLUserInfo(e.URL), e.Err)
	case e.Op != "":
		return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("transport error: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func redactURLUserInfo(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return raw
	}
	parsed.User = nil
	return parsed.String()
}

func (c *Client) endpoint(path string) (string, error) {
	rawBaseURL := strings.TrimSpace(c.BaseURL)
	if rawBaseURL == "" {
		return "", core.NewInvalidRequestError("gateway base URL is required")
	}

	base, err := url.Parse(rawBaseURL)
	if err != nil || strings.TrimSpace(base.Scheme) == "" || strings.TrimSpace(base.Host) == "" {
		return "", core.NewInvalidRequestError("invalid gateway base URL")
	}
	if base.User != nil {
		return "", core.NewInvalidRequestError("gateway base URL must not include credentials")
	}

	// path may carry an already encoded query; it replaces the base URL's.
	path, rawQuery, _ := strings.Cut(path, "?")
	base.RawQuery = rawQuery
	base.Fragment = ""

	cleanPath := "/" + strings.TrimLeft(path, "/")
	basePath := strings.TrimSuffix(base.Path, "/")
	if basePath == "" {
		base.Path = cleanPath
	} else {
		base.Path = basePath + cleanPath
	}
	base.RawPath = ""

	return base.String(), nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// do sends a JSON request and decodes a 2xx JSON response into out.
func (c *Client) newRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	endpoint, err := c.endpoint(path)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, core.NewInvalidRequestError("failed to marshal request body")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, &TransportError{Op: method, URL: endpoint, Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, payload)
	if err != nil {
		return err
	}
	endpoint := req.URL.String()

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return &TransportError{Op: method, URL: endpoint, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeErrorResponse(resp, endpoint, method)
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   fmt.Sprintf("decode gateway response: %v", err),
			RequestID: requestIDFromHeader(resp.Header),
		}
	}
	return nil
}

func decodeErrorResponse(resp *http.Response, endpoint, method string) error {
	defer resp.Body.Close()

	requestID := requestIDFromHeader(resp.Header)
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &TransportError{Op: method, URL: endpoint, Err: err}
	}

	out := &core.Error{
		Type:      inferErrorType(resp.StatusCode),
		RequestID: requestID,
	}

	var env struct {
		Error   json.RawMessage `json:"error"`
		Status  string          `json:"status"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &env); err == nil {
		var structured core.Error
		var flat string
		switch {
		case len(env.Error) > 0 && json.Unmarshal(env.Error, &structured) == nil && structured.Message != "":
			*out = structured
			if out.RequestID == "" {
				out.RequestID = requestID
			}
			if out.Type == "" {
				out.Type = inferErrorType(resp.StatusCode)
			}
		case len(env.Error) > 0 && json.Unmarshal(env.Error, &flat) == nil && flat != "":
			out.Message = flat
		case env.Status == "error" && env.Message != "":
			out.Message = env.Message
		}
	}
	if out.Message == "" {
		out.Message = fmt.Sprintf("gateway request failed with status %d", resp.StatusCode)
	}
	if out.RetryAfter == nil {
		out.RetryAfter = parseRetryAfterHeader(resp.Header.Get("Retry-After"))
	}
	return out
}

func inferErrorType(statusCode int) core.ErrorType {
	switch statusCode {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return core.ErrInvalidRequest
	case http.StatusUnauthorized:
		return core.ErrAuthentication
	case http.StatusForbidden:
		return core.ErrPermission
	case http.StatusNotFound:
		return core.ErrNotFound
	case http.StatusTooManyRequests:
		return core.ErrRateLimit
	case 529:
		return core.ErrOverloaded
	default:
		return core.ErrAPI
	}
}

func requestIDFromHeader(h http.Header) string {
	if h == nil {
		return ""
	}
	return strings.TrimSpace(h.Get("X-Request-ID"))
}

func parseRetryAfterHeader(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &seconds
}

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultRequestTimeout)
}
