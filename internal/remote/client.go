// Package remote fetches files that were uploaded by reference, so job
// handlers can read documents and images given as URLs.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kiranshivaraju/ayupilot/internal/upload"
)

// Sentinel errors for fetch failures.
var (
	ErrUnreachable = errors.New("remote file unreachable")
	ErrBadStatus   = errors.New("remote file request failed")
	ErrTimeout     = errors.New("remote file fetch timeout")
)

// Fetcher downloads a referenced file as a data URI.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*upload.DataURI, error)
}

// HTTPClient implements Fetcher over plain HTTP(S).
type HTTPClient struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPClient returns a client that gives up after timeout and refuses
// bodies larger than maxBytes. A zero maxBytes disables the size check.
func NewHTTPClient(timeout time.Duration, maxBytes int64) *HTTPClient {
	return &HTTPClient{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

func (c *HTTPClient) Fetch(ctx context.Context, rawURL string) (*upload.DataURI, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an http(s) URL", ErrBadStatus, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrBadStatus, resp.StatusCode)
	}
	if c.maxBytes > 0 {
		if n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil && n > c.maxBytes {
			return nil, fmt.Errorf("%w: limit is %d bytes", upload.ErrTooLarge, c.maxBytes)
		}
	}

	var body io.Reader = resp.Body
	if c.maxBytes > 0 {
		body = io.LimitReader(resp.Body, c.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, classifyError(err)
	}
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", upload.ErrTooLarge, c.maxBytes)
	}

	return &upload.DataURI{MIME: upload.DetectMIME(resp.Header.Get("Content-Type"), data), Data: data}, nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// Compile-time check that HTTPClient implements Fetcher.
var _ Fetcher = (*HTTPClient)(nil)
