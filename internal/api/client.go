// Package api is a client for the Mastodon-compatible REST API.
//
// List endpoints return orchestrator.PageFetcher values whose cursors are the
// absolute page URLs advertised in the Link header.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/tomnomnom/linkheader"
	"go.uber.org/zap"

	"github.com/smileynet/fedicache/internal/metrics"
	"github.com/smileynet/fedicache/internal/orchestrator"
)

// Retry defaults.
const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = 500 * time.Millisecond
	maxRetryDelay        = 10 * time.Second
	maxBodyBytes         = 8 << 20
)

// Client talks to one instance.
type Client struct {
	base     *url.URL
	token    string
	http     *http.Client
	log      *zap.Logger
	metrics  *metrics.Collectors
	timeout  time.Duration
	attempts uint
	delay    time.Duration
	newKey   func() string
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client. h itself is never
// modified.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout sets the per-request timeout. It applies to a copy of the
// client given to WithHTTPClient, whatever the option order.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithMetrics records request latency on m.
func WithMetrics(m *metrics.Collectors) Option {
	return func(c *Client) { c.metrics = m }
}

// WithRetry sets the attempt count and initial backoff delay for retryable failures.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.delay = delay
	}
}

// WithIdempotencyKeys overrides the generator of Idempotency-Key headers.
func WithIdempotencyKeys(gen func() string) Option {
	return func(c *Client) { c.newKey = gen }
}

// New returns a client for the instance at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("api: parsing base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("api: base URL must be absolute http(s), got %q", baseURL)
	}
	c := &Client{
		base:     u,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      zap.NewNop(),
		attempts: defaultRetryAttempts,
		delay:    defaultRetryDelay,
		newKey:   newIdempotencyKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		h := *c.http
		h.Timeout = c.timeout
		c.http = &h
	}
	if c.attempts == 0 {
		c.attempts = 1
	}
	if c.delay <= 0 {
		c.delay = defaultRetryDelay
	}
	return c, nil
}

// BaseURL returns the instance URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// request describes one API call.
type request struct {
	method  string
	target  *url.URL
	body    any
	headers http.Header
}

func (c *Client) endpoint(path string, query url.Values) *url.URL {
	u := *c.base
	u.Path = c.base.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return &u
}

// do sends r, retrying rate limits, server errors and network failures, and
// returns the decoded page metadata with the raw body.
func (c *Client) do(ctx context.Context, r request) (orchestrator.Response, error) {
	var payload []byte
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return orchestrator.Response{}, fmt.Errorf("api: encoding request: %w", err)
		}
		payload = b
	}

	var out orchestrator.Response
	op := r.method + " " + r.target.Path
	err := retry.Do(
		func() error {
			resp, err := c.send(ctx, r, payload)
			if err != nil {
				return err
			}
			out = resp
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.MaxDelay(maxRetryDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(max(c.delay/4, time.Millisecond)),
		retry.OnRetry(func(n uint, err error) {
			c.log.Info("retrying request", zap.String("op", op), zap.Uint("attempt", n+1), zap.Uint("max_attempts", c.attempts), zap.Error(err))
		}),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
	)
	if err != nil {
		return orchestrator.Response{}, err
	}
	return out, nil
}

func (c *Client) send(ctx context.Context, r request, payload []byte) (orchestrator.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.target.String(), body)
	if err != nil {
		return orchestrator.Response{}, fmt.Errorf("api: creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, vs := range r.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(r.method, "error", time.Since(start).Seconds())
		return orchestrator.Response{}, fmt.Errorf("api: %s %s: %w", r.method, r.target.Path, err)
	}
	defer drainAndClose(resp.Body)
	c.metrics.ObserveRequest(r.method, statusClass(resp.StatusCode), time.Since(start).Seconds())

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return orchestrator.Response{}, fmt.Errorf("api: reading %s %s: %w", r.method, r.target.Path, err)
	}

	c.log.Debug("api response", zap.String("method", r.method), zap.String("path", r.target.Path), zap.Int("status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return orchestrator.Response{}, &Error{
			Kind:    kindOf(resp.StatusCode),
			Status:  resp.StatusCode,
			Method:  r.method,
			Path:    r.target.Path,
			Message: serverMessage(data),
		}
	}

	links := parseLinks(resp.Header.Values("Link"))
	out := orchestrator.Response{
		Body: data,
		Next: links["next"],
		Prev: links["prev"],
	}
	if v := resp.Header.Get("X-Total-Count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			out.TotalCount = &n
		}
	}
	return out, nil
}

// retryable reports whether err is worth another attempt.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func serverMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		return payload.Error
	}
	return ""
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxBodyBytes))
	_ = body.Close()
}

// linkComma stands in for commas inside <target> while a Link header is
// split on the commas that separate its entries.
const linkComma = "\x1f"

// parseLinks extracts rel → URL from RFC 8288 Link header values. The first
// target given for a rel wins.
func parseLinks(values []string) map[string]string {
	masked := make([]string, len(values))
	for i, v := range values {
		masked[i] = maskTargetCommas(v)
	}
	out := make(map[string]string)
	for _, l := range linkheader.ParseMultiple(masked) {
		target := strings.ReplaceAll(l.URL, linkComma, ",")
		for _, rel := range strings.Fields(l.Rel) {
			if _, seen := out[rel]; !seen {
				out[rel] = target
			}
		}
	}
	return out
}

func maskTargetCommas(v string) string {
	var b strings.Builder
	inTarget := false
	for _, r := range v {
		switch {
		case r == '<':
			inTarget = true
		case r == '>':
			inTarget = false
		case r == ',' && inTarget:
			b.WriteString(linkComma)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
