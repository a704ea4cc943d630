package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

var ErrRejected = errors.New("payload rejected")

// Client POSTs payloads and retries until they are accepted.
type Client struct {
	client        *http.Client
	timeout       time.Duration
	retryInterval time.Duration
	log           *slog.Logger
}

func NewClient(opts ...Option) *Client {
	set := applyOptions(opts)
	c := &Client{
		client:        &http.Client{},
		timeout:       set.timeout,
		retryInterval: set.retryInterval,
		log:           set.log,
	}
	if set.tlsConfig != nil {
		c.client.Transport = &http.Transport{TLSClientConfig: set.tlsConfig}
	}
	return c
}

// Post sends payload to url. 4xx answers other than 429 are not retried.
func (c *Client) Post(ctx context.Context, url string, payload []byte) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	var lastErr error
	for attempt := 1; ; attempt++ {
		status, err := c.post(ctx, url, payload)
		switch {
		case err == nil && (status == http.StatusAccepted || status == http.StatusOK):
			return nil
		case err == nil && status >= 400 && status < 500 && status != http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s answered %d", ErrRejected, url, status)
		case err == nil:
			lastErr = fmt.Errorf("%s answered %d", url, status)
		default:
			lastErr = err
		}
		c.log.Debug("post failed, retrying", "url", url, "attempt", attempt, "error", lastErr)

		select {
		case <-ctx.Done():
			return fmt.Errorf("connection attempts timed out with error %w", errors.Join(ctx.Err(), lastErr))
		case <-time.After(c.retryInterval):
		}
	}
}

func (c *Client) post(ctx context.Context, url string, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	if err := resp.Body.Close(); err != nil {
		return resp.StatusCode, err
	}
	return resp.StatusCode, nil
}
