package jobcan

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/jobcan-tools/jobcan-di/internal/dierr"
	"github.com/jobcan-tools/jobcan-di/internal/ratelimit"
	"github.com/jobcan-tools/jobcan-di/internal/telemetry"
)

const (
	// DefaultBaseURL is the production workflow API endpoint.
	DefaultBaseURL = "https://ssl.wf.jobcan.jp/wf_api"

	// DefaultTimeout applies to token verification and per-request
	// detail fetches; ListTimeout to paginated list pages.
	DefaultTimeout = 30 * time.Second
	ListTimeout    = 180 * time.Second

	// maxResponseSize caps a single response body.
	maxResponseSize = 50 * 1024 * 1024
)

// Client issues authenticated requests against the workflow API. All
// requests pass through the shared rate limiter when one is set.
type Client struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
	Limiter    *ratelimit.Limiter
	Metrics    *telemetry.FetchMetrics

	timeout     time.Duration
	listTimeout time.Duration
}

// NewClient creates a client for the production API.
func NewClient(token string) *Client {
	return &Client{
		Token:       token,
		BaseURL:     DefaultBaseURL,
		HTTPClient:  &http.Client{},
		timeout:     DefaultTimeout,
		listTimeout: ListTimeout,
	}
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	dup := *c
	dup.HTTPClient = httpClient
	return &dup
}

// WithBaseURL returns a new client with a custom base URL (for tests).
func (c *Client) WithBaseURL(baseURL string) *Client {
	dup := *c
	dup.BaseURL = baseURL
	return &dup
}

// WithLimiter returns a new client that acquires the limiter before
// every outbound request.
func (c *Client) WithLimiter(l *ratelimit.Limiter) *Client {
	dup := *c
	dup.Limiter = l
	return &dup
}

// WithMetrics returns a new client recording fetch metrics.
func (c *Client) WithMetrics(m *telemetry.FetchMetrics) *Client {
	dup := *c
	dup.Metrics = m
	return &dup
}

// WithTimeouts returns a new client with custom per-request timeouts.
func (c *Client) WithTimeouts(detail, list time.Duration) *Client {
	dup := *c
	dup.timeout = detail
	dup.listTimeout = list
	return &dup
}

// buildURL constructs a full API URL.
func (c *Client) buildURL(path string, params map[string]string) string {
	u := c.BaseURL + path
	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}
	return u
}

// resolveNext makes a next-page link absolute against the base URL.
func (c *Client) resolveNext(next string) string {
	u, err := url.Parse(next)
	if err != nil {
		return next
	}
	if u.IsAbs() {
		return next
	}
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return next
	}
	return base.ResolveReference(u).String()
}

// doGet performs one authenticated GET. The returned error is always
// fatal: connection failures map to RequestConnectionError, timeouts
// to RequestReadTimeout. Status-code classification is the caller's
// concern.
func (c *Client) doGet(ctx context.Context, urlStr string, timeout time.Duration) (int, []byte, *dierr.Fatal) {
	if c.HTTPClient == nil {
		return 0, nil, dierr.NewFatal(dierr.ApiClientNotPrepared)
	}

	if c.Limiter != nil {
		if err := c.Limiter.Acquire(ctx); err != nil {
			return 0, nil, dierr.FatalFrom(dierr.RequestConnectionError, err).With("url", urlStr)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, urlStr, nil)
	if err != nil {
		return 0, nil, dierr.FatalFrom(dierr.RequestConnectionError, err).With("url", urlStr)
	}
	req.Header.Set("Authorization", "Token "+c.Token)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, classifyTransportError(err, ctx, urlStr)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, classifyTransportError(err, ctx, urlStr)
	}
	c.Metrics.Request(ctx, resp.StatusCode, time.Since(start))
	return resp.StatusCode, body, nil
}

// classifyTransportError separates read timeouts from connection
// failures. A deadline hit on the parent context is the caller
// canceling, which still surfaces as a connection error.
func classifyTransportError(err error, parent context.Context, urlStr string) *dierr.Fatal {
	var nerr net.Error
	timedOut := errors.As(err, &nerr) && nerr.Timeout()
	if (errors.Is(err, context.DeadlineExceeded) || timedOut) && parent.Err() == nil {
		return dierr.FatalFrom(dierr.RequestReadTimeout, err).With("url", urlStr)
	}
	return dierr.FatalFrom(dierr.RequestConnectionError, err).With("url", urlStr)
}

// VerifyToken checks the token against the test endpoint. 401 and 403
// mean the token is bad; transport failures are fatal as usual.
func (c *Client) VerifyToken(ctx context.Context) *dierr.Fatal {
	urlStr := c.buildURL("/test/", nil)
	status, body, fatal := c.doGet(ctx, urlStr, c.timeout)
	if fatal != nil {
		return fatal
	}
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return dierr.NewFatal(dierr.TokenInvalid).With("status", itoa(status))
	default:
		return dierr.NewFatal(dierr.Unexpected).
			With("status", itoa(status)).
			With("body", truncate(string(body), 200))
	}
}
