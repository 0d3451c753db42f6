// Package fetch performs bounded, retried GETs against upstream sources (newsletter archive,
// ICS feeds). Transport errors and 5xx/429 answers are retried with exponential backoff;
// other 4xx answers fail immediately.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// StatusError reports a non-2xx upstream answer.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string { return fmt.Sprintf("GET %s: status %d", e.URL, e.Status) }

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// Options tune a Client.
type Options struct {
	Timeout     time.Duration // per attempt
	MaxRetries  uint64        // retries after the first attempt
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	UserAgent   string
}

// Client is safe for concurrent use.
type Client struct {
	http *resty.Client
	opts Options
}

// New returns a Client; zero options get sensible defaults.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 250 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 2 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "vibeshift-dashboard/1.0"
	}
	c := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent)
	return &Client{http: c, opts: opts}
}

// Get fetches url and returns the body.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.opts.BaseBackoff
	exp.Multiplier = 2
	exp.MaxInterval = c.opts.MaxBackoff
	exp.Reset()

	var body []byte
	op := func() error {
		resp, err := c.http.R().SetContext(ctx).Get(url)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(errors.Wrapf(err, "GET %s", url))
			}
			return errors.Wrapf(err, "GET %s", url)
		}
		if resp.IsError() {
			se := &StatusError{URL: url, Status: resp.StatusCode()}
			if se.Retryable() {
				return se
			}
			return backoff.Permanent(se)
		}
		body = resp.Body()
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, c.opts.MaxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return body, nil
}
