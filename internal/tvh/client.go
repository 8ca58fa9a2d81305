// Package tvh is a client for the TVHeadend HTTP API. The API changed
// shape repeatedly across backend versions, so the client tolerates
// multiple response encodings and falls back through alternate write
// payload formats rather than assuming any single build's behavior.
package tvh

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/icholy/digest"

	"github.com/jedp/fptv/internal/logger"
	"github.com/jedp/fptv/internal/playlist"
)

const (
	// requestTimeout bounds every single HTTP call.
	requestTimeout = 10 * time.Second

	// readRetries is the attempt count for idempotent reads.
	// Writes are never blindly retried to avoid double-application.
	readRetries = 3

	// retryBaseDelay is the backoff base; actual delay is
	// base * 2^attempt plus up to 50% jitter.
	retryBaseDelay = 500 * time.Millisecond
)

// DecodeError indicates the backend returned a body that could not be
// parsed as the expected JSON shape.
type DecodeError struct {
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("tvh: failed to decode response from %s: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// StatusError indicates a non-2xx HTTP status.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tvh: %s returned %d: %s", e.Endpoint, e.Code, e.Body)
}

// Client wraps authenticated access to a TVHeadend instance.
type Client struct {
	baseURL string
	http    *http.Client
	breaker breaker
}

// NewClient creates a client for the given base URL. With non-empty
// credentials requests use HTTP Digest auth (TVHeadend's default).
func NewClient(baseURL, username, password string) *Client {
	transport := http.DefaultTransport
	if username != "" && password != "" {
		transport = &digest.Transport{
			Username: username,
			Password: password,
		}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   requestTimeout,
			Transport: transport,
		},
	}
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// retryable reports whether a read should be retried: connection
// errors and 5xx responses only, never 4xx.
func retryable(err error, status int) bool {
	if err != nil {
		return true
	}
	return status >= 500
}

func backoffDelay(attempt int) time.Duration {
	d := retryBaseDelay * time.Duration(1<<attempt)
	jitter := time.Duration(rand.Int63n(int64(d) / 2))
	return d + jitter
}

// GetJSON performs a GET with retry and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	if !c.breaker.allow() {
		return ErrBackendUnavailable
	}

	fullURL := c.baseURL + endpoint
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		fullURL += sep + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < readRetries; attempt++ {
		if attempt > 0 {
			logger.Debugf("tvh: retrying GET %s (attempt %d/%d)", endpoint, attempt+1, readRetries)
			select {
			case <-time.After(backoffDelay(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return fmt.Errorf("tvh: failed to build request for %s: %w", endpoint, err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.breaker.recordFailure()
			lastErr = fmt.Errorf("tvh: GET %s failed: %w", endpoint, err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		resp.Body.Close()
		if readErr != nil {
			c.breaker.recordFailure()
			lastErr = fmt.Errorf("tvh: reading GET %s response: %w", endpoint, readErr)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: truncate(string(body), 200)}
			if !retryable(nil, resp.StatusCode) {
				// A 4xx means the backend is up and answering; only
				// connection errors and 5xx count against the circuit.
				c.breaker.recordSuccess()
				return statusErr
			}
			c.breaker.recordFailure()
			lastErr = statusErr
			continue
		}

		c.breaker.recordSuccess()
		if err := json.Unmarshal(body, out); err != nil {
			return &DecodeError{Endpoint: endpoint, Err: err}
		}
		return nil
	}
	return lastErr
}

// PostForm performs a form-encoded POST and returns the status code and
// raw body. Mutations are never retried; callers interpret the result
// (some backend versions signal app-level failure with 200 plus an
// error body, others with a non-200 status).
func (c *Client) PostForm(ctx context.Context, endpoint string, form url.Values) (int, []byte, error) {
	if !c.breaker.allow() {
		return 0, nil, ErrBackendUnavailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, fmt.Errorf("tvh: failed to build request for %s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.recordFailure()
		return 0, nil, fmt.Errorf("tvh: POST %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.breaker.recordFailure()
		return resp.StatusCode, nil, fmt.Errorf("tvh: reading POST %s response: %w", endpoint, err)
	}
	if resp.StatusCode >= 500 {
		c.breaker.recordFailure()
	} else {
		c.breaker.recordSuccess()
	}
	return resp.StatusCode, body, nil
}

// ProbeStream opens a channel's stream endpoint and reports whether any
// data arrives before the timeout. Used as a liveness tie-break when
// deduplicating channels.
func (c *Client) ProbeStream(ctx context.Context, channelUUID string, timeout time.Duration) bool {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet,
		c.baseURL+"/stream/channel/"+url.PathEscape(channelUUID), nil)
	if err != nil {
		return false
	}

	// The shared client's fixed timeout would cap long probes; streams
	// need their own deadline via the context instead.
	probeClient := &http.Client{Transport: c.http.Transport}
	resp, err := probeClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}

	buf := make([]byte, 4096)
	n, err := resp.Body.Read(buf)
	if n > 0 {
		return true
	}
	if err != nil {
		logger.Debugf("tvh: stream probe for %s got no data: %v", channelUUID, err)
	}
	return false
}

// Playlist fetches /playlist/channels and parses the M3U body into
// playable channel entries.
func (c *Client) Playlist(ctx context.Context) ([]playlist.Channel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/playlist/channels", nil)
	if err != nil {
		return nil, fmt.Errorf("tvh: failed to build playlist request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tvh: GET /playlist/channels failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, &StatusError{Endpoint: "/playlist/channels", Code: resp.StatusCode, Body: truncate(string(body), 200)}
	}
	return playlist.Parse(io.LimitReader(resp.Body, 32<<20))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
