// Package artifactory fetches metadata and contents of artifacts stored on a
// JFrog Artifactory instance.
package artifactory

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/open-edge-platform/artifactory-fetch/internal/utils/network"
	"github.com/open-edge-platform/artifactory-fetch/internal/utils/security"
)

const (
	storageAPIPrefix = "/artifactory/api/storage/"
	downloadPrefix   = "/artifactory/"

	// errorBodyLimit bounds how much of a failed response is drained so the
	// connection can be reused.
	errorBodyLimit = 4 << 10
)

// Client talks to a single Artifactory instance. Its configuration does not
// change after construction, so a Client may be shared between goroutines.
type Client struct {
	origin     string
	bearer     string
	httpClient *http.Client
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used as transport. A nil client keeps
// the default.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New returns an unauthenticated client for the instance at origin.
//
// The origin is not validated here; a malformed origin surfaces as a
// transport error on the first request.
func New(origin string, opts ...Option) *Client {
	c := &Client{origin: origin}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = network.NewSecureHTTPClient()
	}
	return c
}

// WithBearer returns a copy of c that presents token as a bearer credential
// on every request. The receiver is left untouched.
//
// A token that cannot be carried in an HTTP header value is rejected here
// instead of failing later at request time.
func (c *Client) WithBearer(token string) (*Client, error) {
	if err := security.ValidateHeaderValue("bearer token", token); err != nil {
		return nil, err
	}
	cp := *c
	cp.bearer = token
	return &cp, nil
}

// Origin returns the base URL the client was built with.
func (c *Client) Origin() string {
	return c.origin
}

// HasBearer reports whether a credential is attached.
func (c *Client) HasBearer() bool {
	return c.bearer != ""
}

func (c *Client) storageURL(p Path) string {
	return c.origin + storageAPIPrefix + string(p)
}

func (c *Client) downloadURL(p Path) string {
	return c.origin + downloadPrefix + string(p)
}

func (c *Client) authorize(req *http.Request) {
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
}

// get issues a single GET request. Any failure, including a non-2xx
// status, is returned as a transport error and the body is closed.
func (c *Client) get(ctx context.Context, op, href string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return nil, transportError(op, fmt.Errorf("building request for %s: %w", href, err))
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, errorBodyLimit))
		resp.Body.Close()
		return nil, transportError(op, &StatusError{
			URL:        href,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		})
	}
	return resp, nil
}
