package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
)

// DefaultMaxResponseSize bounds the reply body read by HTTPTransport.
const DefaultMaxResponseSize = 10 << 20

// StatusError is returned for a reply with a non-2xx status.
type StatusError struct {
	Code int
	Body string // First bytes of the reply, for diagnostics
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("transport: http status %d", e.Code)
	}
	return fmt.Sprintf("transport: http status %d: %s", e.Code, e.Body)
}

// HTTPTransport POSTs each request body to a fixed endpoint.
type HTTPTransport struct {
	endpoint string
	client   *http.Client
	maxBody  int64
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) { t.client = c }
}

// WithTimeout sets a per-request timeout on a private http.Client.
func WithTimeout(d time.Duration) HTTPOption {
	return func(t *HTTPTransport) { t.client = &http.Client{Timeout: d} }
}

// WithMaxResponseSize overrides DefaultMaxResponseSize.
func WithMaxResponseSize(n int64) HTTPOption {
	return func(t *HTTPTransport) { t.maxBody = n }
}

func NewHTTPTransport(endpoint string, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		endpoint: endpoint,
		client:   http.DefaultClient,
		maxBody:  DefaultMaxResponseSize,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Endpoint returns the URL requests are posted to.
func (t *HTTPTransport) Endpoint() string {
	return t.endpoint
}

func (t *HTTPTransport) Send(ctx context.Context, body string, headers map[string]string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewBufferString(body))
	if err != nil {
		return "", errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "post %s", t.endpoint)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody+1))
	if err != nil {
		return "", errors.Wrap(err, "read response")
	}
	if int64(len(data)) > t.maxBody {
		return "", errors.Errorf("response exceeds %d bytes", t.maxBody)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := data
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return "", &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	return string(data), nil
}
