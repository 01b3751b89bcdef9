// Package fetch is the transport layer: a plain HTTP client with retries for
// feed documents and a colly-based scraper for web pages.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultRetries    = 2
	DefaultRetryDelay = time.Second
	DefaultWorkers    = 4
	DefaultUserAgent  = "feedwatch/1.0 (+https://github.com/TobiSchelling/feedwatch)"

	maxBodyBytes = 10 << 20
)

// Options configures both the Client and the Scraper.
type Options struct {
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	UserAgent  string
	Workers    int
}

// DefaultOptions returns the transport defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:    DefaultTimeout,
		Retries:    DefaultRetries,
		RetryDelay: DefaultRetryDelay,
		UserAgent:  DefaultUserAgent,
		Workers:    DefaultWorkers,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.UserAgent == "" {
		o.UserAgent = d.UserAgent
	}
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	return o
}

// StatusError is returned when a server answers with a non-2xx status.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s for url: %s", e.Code, http.StatusText(e.Code), e.URL)
}

// StatusCode returns the HTTP status carried by err, if any.
func StatusCode(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

// Client performs GET requests, retrying failures a fixed number of times.
type Client struct {
	http *http.Client
	opts Options
	log  *zap.Logger
}

// NewClient creates a client. A nil logger disables logging.
func NewClient(opts Options, log *zap.Logger) *Client {
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http: &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		opts: opts,
		log:  log,
	}
}

// Response is a successful GET.
type Response struct {
	Status int
	Body   []byte
}

// Get fetches url and returns the body.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Fetch fetches url. It makes 1+Retries attempts spaced RetryDelay apart;
// the last error is returned when all of them fail.
func (c *Client) Fetch(ctx context.Context, url string) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.opts.Retries; attempt++ {
		if attempt > 0 {
			c.log.Debug("retrying request",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.opts.RetryDelay):
			}
		}

		resp, err := c.get(ctx, url)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (c *Client) get(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return &Response{Status: resp.StatusCode, Body: body}, nil
}
