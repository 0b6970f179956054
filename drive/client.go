// Package drive provides a client for a folder-scoped file store speaking the
// Google Drive v3 REST dialect.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	snaperrors "github.com/jrsteele09/drive-snapshot/internal/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://www.googleapis.com/drive/v3"
	DefaultUploadURL = "https://www.googleapis.com/upload/drive/v3"
	DefaultTimeout   = 60 * time.Second
	DefaultRateLimit = 5 // requests per second

	maxErrorBody = 4 << 10
)

// Client talks to the remote store. It holds no per-user state; every call
// takes the access token it should use.
type Client struct {
	baseURL        string
	uploadURL      string
	httpClient     *http.Client
	requestTimeout time.Duration
	logger         zerolog.Logger
	limiter        *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the metadata/download base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithUploadURL sets the upload base URL
func WithUploadURL(uploadURL string) ClientOption {
	return func(c *Client) {
		c.uploadURL = uploadURL
	}
}

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout bounds metadata calls. Uploads and downloads are streamed and
// only bounded by the caller's context.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.requestTimeout = timeout
	}
}

// NewClient creates a new store client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:        DefaultBaseURL,
		uploadURL:      DefaultUploadURL,
		httpClient:     &http.Client{},
		requestTimeout: DefaultTimeout,
		limiter:        rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:         zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// do performs a rate-limited, bearer-authorized request. The caller owns the
// response body on success; non-2xx responses are converted to errors.
func (c *Client) do(ctx context.Context, accessToken, method, endpoint string, body io.Reader, contentType string) (*http.Response, error) {
	if accessToken == "" {
		return nil, &AuthError{Endpoint: endpoint, Err: snaperrors.ErrMissingAccessToken}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.logger.Debug().Str("method", method).Str("url", endpoint).Msg("drive API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(msg), Endpoint: endpoint}
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, &AuthError{Endpoint: endpoint, Err: apiErr}
		}
		return nil, apiErr
	}
	return resp, nil
}

// doJSON performs a bounded metadata call and decodes the JSON response into result.
func (c *Client) doJSON(ctx context.Context, accessToken, method, endpoint string, payload any, result any) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var body io.Reader
	contentType := ""
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json; charset=UTF-8"
	}

	resp, err := c.do(ctx, accessToken, method, endpoint, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
