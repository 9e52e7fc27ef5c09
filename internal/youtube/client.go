package youtube

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	kkdai "github.com/kkdai/youtube/v2"
	"github.com/rs/zerolog/log"
)

const (
	defaultBaseURL   = "https://www.youtube.com"
	maxResponseBytes = 16 << 20
)

// StatusError is a non-200 response from the platform.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Status, e.URL)
}

// Client talks to the video platform. Every request is retried with
// exponential backoff on 429 and 5xx responses.
type Client struct {
	http            *http.Client
	lib             *kkdai.Client
	base            *url.URL
	userAgent       string
	maxRetries      int
	initialInterval time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if u, err := url.Parse(strings.TrimSuffix(raw, "/")); err == nil && raw != "" {
			c.base = u
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

func WithRetries(n int, initial time.Duration) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
		if initial > 0 {
			c.initialInterval = initial
		}
	}
}

func NewClient(opts ...Option) *Client {
	base, _ := url.Parse(defaultBaseURL)
	c := &Client{
		http:            &http.Client{Timeout: 15 * time.Second},
		base:            base,
		userAgent:       "Mozilla/5.0",
		maxRetries:      2,
		initialInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.lib = &kkdai.Client{HTTPClient: c.http}
	return c
}

func (c *Client) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("failed to parse url %q: %w", ref, err)
	}
	return c.base.ResolveReference(u).String(), nil
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.initialInterval
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.maxRetries)), ctx)
}

// fetch runs newReq until it yields a 200, a permanent error, or retries run out.
func (c *Client) fetch(ctx context.Context, newReq func() (*http.Request, error)) ([]byte, error) {
	var body []byte
	attempt := 0
	op := func() error {
		attempt++
		req, err := newReq()
		if err != nil {
			return backoff.Permanent(err)
		}
		if req.Header.Get("User-Agent") == "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			log.Debug().Str("url", req.URL.String()).Int("status", resp.StatusCode).Int("attempt", attempt).Msg("Retrying platform request")
			return &StatusError{URL: req.URL.String(), Status: resp.StatusCode}
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(&StatusError{URL: req.URL.String(), Status: resp.StatusCode})
		}
		body = data
		return nil
	}

	if err := backoff.Retry(op, c.newBackOff(ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	return c.fetch(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range header {
			req.Header[k] = v
		}
		return req, nil
	})
}
