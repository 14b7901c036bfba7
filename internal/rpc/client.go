package rpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client calls a probe endpoint
type Client struct {
	endpoint string
	http     *http.Client
	codec    Codec
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithCodec selects the request and response encoding
func WithCodec(codec Codec) ClientOption {
	return func(c *Client) {
		c.codec = codec
	}
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient creates a client for the endpoint at baseURL + path
func NewClient(baseURL, path string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/"),
		http:     &http.Client{Timeout: timeout},
		codec:    JSON,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint is the URL the client posts to, without the probe key
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Probe performs a probe call. A fault answer is returned as *Fault.
func (c *Client) Probe(ctx context.Context, probeKey string, variables []string) (any, error) {
	var body bytes.Buffer
	if err := c.codec.Encode(&body, NewProbeRequest(variables)); err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	target, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	if probeKey != "" {
		q := target.Query()
		q.Set("probe_key", probeKey)
		target.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", c.codec.ContentType())
	req.Header.Set("Accept", c.codec.ContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe request failed: %w", err)
	}
	defer resp.Body.Close()

	var envelope Response
	if err := ForContentType(resp.Header.Get("Content-Type")).Decode(resp.Body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if envelope.Fault != nil {
		return nil, envelope.Fault
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return Normalize(envelope.Result), nil
}

// IsFault reports whether err is a fault with the given code
func IsFault(err error, code int) bool {
	var fault *Fault
	return errors.As(err, &fault) && fault.Code == code
}
