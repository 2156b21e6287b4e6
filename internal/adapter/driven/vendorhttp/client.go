// Package vendorhttp provides the HTTP plumbing shared by all vendor
// connectors: request pacing, quota accounting, error classification and JSON
// decoding.
package vendorhttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gregjones/httpcache"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
	"github.com/ericfisherdev/sungazer/internal/domain/port/driven"
)

// MaxPages caps pagination loops so a misbehaving vendor cannot keep a
// connector paging forever.
const MaxPages = 50

// Client issues paced, authenticated GET requests against one vendor API.
type Client struct {
	vendor  model.Vendor
	http    *http.Client
	baseURL *url.URL
	limiter *Limiter
	query   url.Values
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithQuery adds a query parameter sent on every request, such as an API key.
func WithQuery(key, value string) Option {
	return func(c *Client) {
		c.query.Set(key, value)
	}
}

// NewTransport returns the base transport for vendor clients: an in-memory
// HTTP cache that honours the vendor's cache headers.
func NewTransport() http.RoundTripper {
	return httpcache.NewMemoryCacheTransport()
}

// New creates a Client. httpClient carries any auth transport; limiter may be
// shared by several clients of the same vendor.
func New(vendor model.Vendor, httpClient *http.Client, baseURL string, limiter *Limiter, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing %s base URL: %w", vendor, err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Transport: NewTransport(), Timeout: 30 * time.Second}
	}
	if limiter == nil {
		limiter = NewLimiter(vendor, 0, 0)
	}

	c := &Client{
		vendor:  vendor,
		http:    httpClient,
		baseURL: u,
		limiter: limiter,
		query:   url.Values{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Usage reports the request count of the underlying limiter.
func (c *Client) Usage() model.QuotaUsage {
	return c.limiter.Usage()
}

// GetJSON waits for the limiter, issues GET baseURL+path with params and
// decodes the JSON response into out. Failures are *driven.ConnectorError.
func (c *Client) GetJSON(ctx context.Context, op, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return c.fail(driven.KindTransient, op, 0, fmt.Errorf("waiting for rate limiter: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(path, params), nil)
	if err != nil {
		return c.fail(driven.KindValidation, op, 0, fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		return c.fail(driven.KindTransient, op, 0, redactURL(err))
	}
	defer resp.Body.Close()

	slog.Debug("vendor request",
		"vendor", c.vendor,
		"op", op,
		"path", path,
		"status", resp.StatusCode,
		"cached", resp.Header.Get(httpcache.XFromCache) == "1",
		"duration", time.Since(start).Round(time.Millisecond),
	)

	if resp.StatusCode >= 300 {
		return c.statusError(op, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return c.fail(driven.KindValidation, op, resp.StatusCode, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

func (c *Client) buildURL(path string, params url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	for k, v := range c.query {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// redactURL strips the query string from a transport error. Request URLs
// carry API keys, and the error text ends up in logs and the fetch ledger.
func redactURL(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}

	target := urlErr.URL
	if u, perr := url.Parse(urlErr.URL); perr == nil {
		u.RawQuery = ""
		u.User = nil
		target = u.String()
	} else {
		target = "<redacted>"
	}
	return fmt.Errorf("%s %q: %w", urlErr.Op, target, urlErr.Err)
}

// statusError maps a non-2xx response to the connector error taxonomy.
func (c *Client) statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	cause := errors.New(strings.TrimSpace(string(body)))
	if len(body) == 0 {
		cause = errors.New(http.StatusText(resp.StatusCode))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return c.fail(driven.KindAuth, op, resp.StatusCode, cause)
	case resp.StatusCode == http.StatusTooManyRequests:
		ce := c.fail(driven.KindRateLimit, op, resp.StatusCode, cause)
		ce.RetryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"), c.now())
		return ce
	case resp.StatusCode == http.StatusNotFound:
		return c.fail(driven.KindNotSupported, op, resp.StatusCode, cause)
	case resp.StatusCode >= 500:
		return c.fail(driven.KindTransient, op, resp.StatusCode, cause)
	default:
		return c.fail(driven.KindValidation, op, resp.StatusCode, cause)
	}
}

func (c *Client) fail(kind driven.ErrorKind, op string, status int, err error) *driven.ConnectorError {
	return &driven.ConnectorError{
		Kind:       kind,
		Vendor:     c.vendor,
		Op:         op,
		StatusCode: status,
		Err:        err,
	}
}

// ParseRetryAfter reads a Retry-After header given either as delta-seconds or
// as an HTTP date. It returns zero when the header is absent or unusable.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d.Round(time.Second)
		}
	}
	return 0
}
