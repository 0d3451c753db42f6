// Package kvrest implements kv.Store over a Redis-compatible REST API
// (GET /get/{key}, POST /set/{key}?EX=n, GET /del/{key}, GET /ping) with bearer auth.
package kvrest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/vibeshift/dashboard/internal/kv"
)

// Store talks to the REST endpoint. It is safe for concurrent use.
type Store struct {
	client *resty.Client
}

type restResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// New builds a client for baseURL authenticated with token.
func New(baseURL, token string, timeout time.Duration) (*Store, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("kv-rest base URL is empty")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if token != "" {
		c.SetAuthToken(token)
	}
	return &Store{client: c}, nil
}

func (s *Store) do(ctx context.Context, method, path string, body []byte) (json.RawMessage, error) {
	var out restResponse
	req := s.client.R().SetContext(ctx).SetResult(&out).SetError(&out)
	if body != nil {
		req.SetHeader("Content-Type", "text/plain").SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, errors.Wrapf(err, "kv-rest %s %s", method, path)
	}
	if resp.IsError() {
		return nil, errors.Errorf("kv-rest %s %s: status %d: %s", method, path, resp.StatusCode(), out.Error)
	}
	if out.Error != "" {
		return nil, errors.Errorf("kv-rest %s %s: %s", method, path, out.Error)
	}
	return out.Result, nil
}

// Get returns the value stored under key, or kv.ErrNotFound when it is absent or expired.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.do(ctx, resty.MethodGet, "/get/"+url.PathEscape(key), nil)
	if err != nil {
		return nil, err
	}
	var val *string
	if len(raw) == 0 {
		return nil, kv.ErrNotFound
	}
	if err := json.Unmarshal(raw, &val); err != nil {
		return nil, errors.Wrap(err, "kv-rest: decode get result")
	}
	if val == nil {
		return nil, kv.ErrNotFound
	}
	return []byte(*val), nil
}

// Set stores value under key, expiring it after ttl when ttl is at least a second.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	path := "/set/" + url.PathEscape(key)
	if secs := int64(ttl / time.Second); secs > 0 {
		path += "?EX=" + strconv.FormatInt(secs, 10)
	}
	_, err := s.do(ctx, resty.MethodPost, path, value)
	return err
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.do(ctx, resty.MethodGet, "/del/"+url.PathEscape(key), nil)
	return err
}

// HealthPing implements health.HealthPinger.
func (s *Store) HealthPing(ctx context.Context) error {
	_, err := s.do(ctx, resty.MethodGet, "/ping", nil)
	return err
}
