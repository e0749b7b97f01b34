// Package imagemin compresses images with the TinyPNG web service.
package imagemin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// DefaultEndpoint is the TinyPNG shrink endpoint.
const DefaultEndpoint = "https://api.tinify.com/shrink"

// APIError is a non-success response from the service.
type APIError struct {
	StatusCode int
	Kind       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Kind == "" && e.Message == "" {
		return fmt.Sprintf("tinypng: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("tinypng: HTTP %d %s: %s", e.StatusCode, e.Kind, e.Message)
}

// Retryable reports whether the request may succeed when repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client talks to the shrink API.
type Client struct {
	apiKey     string
	endpoint   string
	http       *http.Client
	maxRetries uint64
	baseDelay  time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithRetry sets the retry budget for throttled and server errors.
func WithRetry(maxRetries uint64, baseDelay time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.baseDelay = baseDelay
	}
}

// NewClient creates a client. An empty endpoint selects DefaultEndpoint.
func NewClient(apiKey, endpoint string, opts ...ClientOption) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		apiKey:     apiKey,
		endpoint:   endpoint,
		http:       &http.Client{Timeout: 2 * time.Minute},
		maxRetries: 4,
		baseDelay:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type shrinkResponse struct {
	Output struct {
		Size int64  `json:"size"`
		URL  string `json:"url"`
	} `json:"output"`
}

// Shrink uploads data and returns the compressed image.
func (c *Client) Shrink(ctx context.Context, data []byte) ([]byte, error) {
	var location string
	err := c.withRetry(ctx, func(ctx context.Context) error {
		resp, err := c.do(ctx, http.MethodPost, c.endpoint, data)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusCreated {
			return apiError(resp)
		}

		location = resp.Header.Get("Location")
		if location == "" {
			var body shrinkResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Errorf("tinypng: invalid shrink response: %w", err)
			}
			location = body.Output.URL
		}
		if location == "" {
			return errors.New("tinypng: shrink response has no output location")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out []byte
	err = c.withRetry(ctx, func(ctx context.Context) error {
		resp, err := c.do(ctx, http.MethodGet, location, nil)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return apiError(resp)
		}
		out, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("tinypng: failed to read output: %w", err))
		}
		return nil
	})
	return out, err
}

func (c *Client) withRetry(ctx context.Context, fn retry.RetryFunc) error {
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.baseDelay))
	return retry.Do(ctx, backoff, fn)
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("tinypng: %w", err)
	}
	req.SetBasicAuth("api", c.apiKey)
	req.Header.Set("User-Agent", "assetpipe")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, retry.RetryableError(fmt.Errorf("tinypng: %w", err))
	}
	return resp, nil
}

// apiError decodes the error body of resp and marks throttling and server
// failures as retryable.
func apiError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); err == nil {
		_ = json.Unmarshal(data, apiErr)
	}
	if apiErr.Retryable() {
		return retry.RetryableError(apiErr)
	}
	return apiErr
}
