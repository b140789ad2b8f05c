// Package rentcast speaks to the Rentcast-style property listings API:
// GET <base>?city=<city>&state=<state> authenticated with an X-Api-Key
// header, returning a JSON array of property records.
//
// The client deals in raw bytes on purpose. The extractor persists payloads
// byte-for-byte, so nothing here may decode, re-encode or otherwise touch
// the body.
package rentcast

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"primesquare/internal/metrics"
)

// maxErrBody bounds how much of a non-200 body is carried in the error.
// Listing APIs put the interesting diagnostics (quota, bad key) in the
// first few lines.
const maxErrBody = 4096

// StatusError is the error for a non-200 response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Options configures a Client.
type Options struct {
	// BaseURL of the listings endpoint, e.g.
	// "https://api.rentcast.io/v1/properties".
	BaseURL string

	// APIKey is sent as the X-Api-Key header on every request.
	APIKey string

	// Timeout bounds each attempt. <= 0 disables the per-request deadline
	// and leaves cancellation to the caller's context.
	Timeout time.Duration

	// Retries is how many times a failed attempt is retried. Only transport
	// errors and 5xx responses retry; a 4xx is final.
	Retries int

	// Job labels the HTTP metrics for this client.
	Job string

	// HTTPClient overrides the default pooled client. Tests pass the
	// httptest server's client.
	HTTPClient *http.Client
}

// Client fetches property listings for one (city, state) at a time. Safe for
// concurrent use, though the pipeline drives it sequentially.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	timeout time.Duration
	retries int
	job     string

	// sleep is a test seam; production uses time.Sleep.
	sleep func(d time.Duration)
}

func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = newHTTPClient()
	}
	retries := opts.Retries
	if retries < 0 {
		retries = 0
	}
	return &Client{
		http:    hc,
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		timeout: opts.Timeout,
		retries: retries,
		job:     opts.Job,
		sleep:   time.Sleep,
	}
}

// newHTTPClient builds the shared client. Every request hits the same
// upstream host, so keep a few idle connections warm between cities.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        16,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// FetchProperties returns the raw response body for one city/state query on
// HTTP 200.
//
// Behavior:
//   - Query parameters city and state are set from the arguments, so a city
//     name with spaces is encoded, never mangled.
//   - Headers: "accept: application/json" and the configured X-Api-Key.
//   - Non-200 yields a *StatusError carrying the status and up to 4 KB of
//     the body.
//   - Transport errors and 5xx retry up to Retries times with capped
//     exponential backoff; 4xx never retries.
func (c *Client) FetchProperties(ctx context.Context, city, state string) ([]byte, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("rentcast: bad base url %q: %w", c.baseURL, err)
	}
	q := u.Query()
	q.Set("city", city)
	q.Set("state", state)
	u.RawQuery = q.Encode()
	target := u.String()

	attempts := c.retries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		body, retryable, err := c.fetchOnce(ctx, target)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable || attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		c.sleep(backoff(attempt))
	}
	return nil, lastErr
}

func (c *Client) fetchOnce(parent context.Context, target string) (body []byte, retryable bool, err error) {
	ctx := parent
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, false, fmt.Errorf("rentcast: build request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordHTTP(c.job, 0, err, time.Since(start), 0)
		return nil, true, fmt.Errorf("rentcast: GET %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
		metrics.RecordHTTP(c.job, resp.StatusCode, statusErr, time.Since(start), int64(len(snippet)))
		return nil, resp.StatusCode >= 500, statusErr
	}

	body, err = io.ReadAll(resp.Body)
	dur := time.Since(start)
	if err != nil {
		metrics.RecordHTTP(c.job, resp.StatusCode, err, dur, int64(len(body)))
		return nil, true, fmt.Errorf("rentcast: read body: %w", err)
	}
	metrics.RecordHTTP(c.job, resp.StatusCode, nil, dur, int64(len(body)))
	return body, false, nil
}

// backoff grows 500ms, 1s, 2s, ... capped at 5s.
func backoff(attempt int) time.Duration {
	d := 500 * time.Millisecond << (attempt - 1)
	if d > 5*time.Second {
		return 5 * time.Second
	}
	return d
}
