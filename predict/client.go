// Package predict calls a remote segmentation model over HTTP.
package predict

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Client posts encoded GeoTIFF tiles to a model server and returns the raw
// float32 scores it answers with. It implements debrismap.Predictor.
type Client struct {
	endpoint string
	http     *http.Client
	headers  http.Header
	logger   *zap.Logger
}

type Option func(c *Client) error

// HTTPClient sets the client used for requests. Defaults to a client with a
// 5 minute timeout.
func HTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return fmt.Errorf("nil http client")
		}
		c.http = hc
		return nil
	}
}

// Header adds a header to every request, e.g. for authentication
func Header(key, value string) Option {
	return func(c *Client) error {
		c.headers.Add(key, value)
		return nil
	}
}

func Logger(l *zap.Logger) Option {
	return func(c *Client) error {
		c.logger = l
		return nil
	}
}

func NewClient(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("endpoint %q: scheme must be http or https", endpoint)
	}
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 5 * time.Minute},
		headers:  http.Header{},
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Predict sends tile as application/octet-stream. Any non 2xx status is an
// error carrying the start of the response body.
func (c *Client) Predict(ctx context.Context, tile []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(tile))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}
	reqID := uuid.New().String()
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Request-Id", reqID)

	st := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > 256 {
			body = body[:256]
		}
		return nil, fmt.Errorf("post %s: %s: %s", c.endpoint, resp.Status, body)
	}
	c.logger.Debug("tile predicted", zap.String("request_id", reqID), zap.Int("sent", len(tile)),
		zap.Int("received", len(body)), zap.Duration("elapsed", time.Since(st)))
	return body, nil
}
