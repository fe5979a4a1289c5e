// Package client provides the HTTP client shared by all virtual users.
// It owns the connection pool, default headers, optional request-rate cap
// and retry policy; transport failures are returned to the caller so they
// can be classified.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/example/ecommerce/loadgen/internal/config"
)

// RequestIDHeader carries a unique id per call so target logs can be
// correlated with generator logs.
const RequestIDHeader = "X-Request-ID"

// ErrBaseURLRequired is returned when the client is built without a base URL.
var ErrBaseURLRequired = errors.New("client: base URL is required")

// Client is the HTTP client for the load generator. It is safe for
// concurrent use.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	headers     map[string]string
	limiter     *rate.Limiter
	retryConfig RetryConfig
}

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxRetries  int
	RetryDelay  time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	ShouldRetry func(resp *http.Response, err error) bool
}

// DefaultRetryConfig returns a retry configuration that never retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 0,
		RetryDelay: 500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		ShouldRetry: func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode >= 500
		},
	}
}

// NewClient creates a client for the given target.
func NewClient(cfg config.TargetConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrBaseURLRequired
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", cfg.BaseURL)
	}
	base.Path = strings.TrimSuffix(base.Path, "/")

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	retry := DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	if cfg.RetryDelay > 0 {
		retry.RetryDelay = cfg.RetryDelay
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(transport),
			Timeout:   cfg.Timeout,
		},
		baseURL:     base,
		headers:     make(map[string]string),
		retryConfig: retry,
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}
	c.headers["Content-Type"] = "application/json"
	c.headers["Accept"] = "application/json"
	c.headers["User-Agent"] = userAgent

	for k, v := range cfg.Headers {
		c.headers[k] = v
	}

	if cfg.MaxRPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRPS), burst)
	}

	return c, nil
}

// Request represents an HTTP request to be executed.
type Request struct {
	Method string
	// Path may carry a query string, e.g. "/product-service/api/products?search=test1".
	Path    string
	Headers map[string]string
	Body    any
}

// Response represents an HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	RequestID  string
}

// Do executes a request. A non-nil error means no usable response was
// received (connection failure, timeout, unreadable body); HTTP error
// statuses are not errors.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	u, err := c.buildURL(req.Path)
	if err != nil {
		return nil, fmt.Errorf("building URL: %w", err)
	}

	var body []byte
	if req.Body != nil {
		body, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
	}

	requestID := uuid.NewString()

	var lastResp *Response
	var lastErr error

	for attempt := 0; attempt <= c.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return lastResp, ctx.Err()
			case <-time.After(c.calculateBackoff(attempt)):
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("waiting for rate limiter: %w", err)
			}
		}

		resp, httpResp, err := c.attempt(ctx, req, u, body, requestID)
		lastResp, lastErr = resp, err

		if attempt < c.retryConfig.MaxRetries && c.retryConfig.ShouldRetry(httpResp, err) {
			continue
		}
		return resp, err
	}

	return lastResp, lastErr
}

func (c *Client) attempt(ctx context.Context, req Request, u *url.URL, body []byte, requestID string) (*Response, *http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), bodyReader)
	if err != nil {
		return nil, nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	c.setHeaders(httpReq, req.Headers)
	httpReq.Header.Set(RequestIDHeader, requestID)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &Response{Duration: time.Since(start), RequestID: requestID}, nil, err
	}
	defer httpResp.Body.Close()

	data, readErr := io.ReadAll(httpResp.Body)
	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       data,
		Duration:   time.Since(start),
		RequestID:  requestID,
	}
	if readErr != nil {
		return resp, httpResp, fmt.Errorf("reading response body: %w", readErr)
	}
	return resp, httpResp, nil
}

// buildURL joins path (with optional query) onto the base URL, keeping
// any path prefix of the base.
func (c *Client) buildURL(path string) (*url.URL, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parsing path: %w", err)
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + ref.Path
	u.RawQuery = ref.RawQuery
	return &u, nil
}

// setHeaders sets default then per-request headers.
func (c *Client) setHeaders(req *http.Request, customHeaders map[string]string) {
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range customHeaders {
		req.Header.Set(k, v)
	}
}

// calculateBackoff calculates the backoff delay for the given attempt.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryConfig.RetryDelay) * math.Pow(c.retryConfig.Multiplier, float64(attempt-1))
	if delay > float64(c.retryConfig.MaxDelay) {
		delay = float64(c.retryConfig.MaxDelay)
	}
	// ±25% jitter
	jitter := delay * 0.25
	delay += (rand.Float64()*2 - 1) * jitter
	return time.Duration(delay)
}

// BaseURL returns the client's base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
