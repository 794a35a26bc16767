package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the end-to-end request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = timeout }
}

// RequestOptions describes one outgoing request.
type RequestOptions struct {
	Method      string
	URL         string
	Headers     map[string]string
	QueryParams map[string][]string
	Body        interface{}
}

// Client wraps http.Client with JSON-oriented request helpers.
type Client struct {
	http *http.Client
}

// NewClient builds a client with a 30s default timeout.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{http: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendAndParse performs the request and decodes the response into dest.
// A *[]byte dest receives the raw body, an io.Writer has it streamed,
// anything else is decoded as JSON and nil discards it. Non-2xx
// responses become errors carrying the response body.
func (c *Client) SendAndParse(ctx context.Context, opts *RequestOptions, dest interface{}) error {
	req, err := newRequest(ctx, opts)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	switch v := dest.(type) {
	case nil:
		return nil
	case *[]byte:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		*v = body
		return nil
	case io.Writer:
		if _, err := io.Copy(v, resp.Body); err != nil {
			return fmt.Errorf("copy body: %w", err)
		}
		return nil
	default:
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return fmt.Errorf("decode json: %w", err)
		}
		return nil
	}
}

func newRequest(ctx context.Context, opts *RequestOptions) (*http.Request, error) {
	body, err := encodeBody(opts)
	if err != nil {
		return nil, fmt.Errorf("create body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, opts.URL, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	if len(opts.QueryParams) > 0 {
		q := req.URL.Query()
		for key, values := range opts.QueryParams {
			for _, value := range values {
				q.Add(key, value)
			}
		}
		req.URL.RawQuery = q.Encode()
	}

	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}
	if req.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// encodeBody renders the request body. Byte slices, strings and
// readers pass through; a map[string]string is form-encoded when the
// Content-Type header asks for it; everything else is JSON.
func encodeBody(opts *RequestOptions) (io.Reader, error) {
	switch v := opts.Body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return bytes.NewReader(v), nil
	case string:
		return strings.NewReader(v), nil
	case io.Reader:
		return v, nil
	case map[string]string:
		if opts.Headers["Content-Type"] == "application/x-www-form-urlencoded" {
			form := url.Values{}
			for key, value := range v {
				form.Set(key, value)
			}
			return strings.NewReader(form.Encode()), nil
		}
	}

	data, err := json.Marshal(opts.Body)
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	return bytes.NewReader(data), nil
}
