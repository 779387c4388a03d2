// Package api is the HTTP client for the inventory REST API.
//
// A single Client is shared by every entity store. It injects the bearer
// token from the persisted credential, enforces a fixed request timeout, and
// turns a 401 answer into a cleared credential plus an AuthExpired event.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/noah-network/noah/pkg/credential"
	"github.com/noah-network/noah/pkg/util"
)

const (
	// DefaultBaseURL is used when neither config nor environment set one
	DefaultBaseURL = "http://10.0.0.104/api/noah"

	// DefaultTimeout bounds every request
	DefaultTimeout = 15 * time.Second
)

// AuthExpired is published when the server rejects the credential
type AuthExpired struct {
	Method string
	Path   string
	At     time.Time
}

// Options carries per-request parameters
type Options struct {
	Params  url.Values
	Body    any
	Headers map[string]string
}

// Option configures a Client
type Option func(*Client)

// WithTimeout overrides the request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithTransport replaces the HTTP transport (tests, tunnels, proxies)
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http.Transport = rt
	}
}

// WithSSHTunnel routes every request through an SSH connection
func WithSSHTunnel(t *SSHTunnel) Option {
	return func(c *Client) {
		c.http.Transport = t.Transport()
	}
}

// WithCredentialStore sets where the token is read from and cleared on 401
func WithCredentialStore(s credential.Store) Option {
	return func(c *Client) {
		c.creds = s
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// Client issues authenticated requests against the inventory API
type Client struct {
	baseURL   string
	http      *http.Client
	creds     credential.Store
	userAgent string

	mu       sync.RWMutex
	handlers []func(AuthExpired)
}

// New creates a client for baseURL. A trailing slash is dropped.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		creds:   credential.NewMemoryStore(credential.Credential{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalized base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Timeout returns the fixed request timeout
func (c *Client) Timeout() time.Duration {
	return c.http.Timeout
}

// Credentials returns the credential store used for the bearer token
func (c *Client) Credentials() credential.Store {
	return c.creds
}

// OnAuthExpired registers fn to run after a 401 cleared the credential.
// Handlers run synchronously on the goroutine that received the 401.
func (c *Client) OnAuthExpired(fn func(AuthExpired)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

// Get issues a GET request
func (c *Client) Get(ctx context.Context, path string, params url.Values) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, Options{Params: params})
}

// Post issues a POST request with a JSON body
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, Options{Body: body})
}

// Put issues a PUT request with a JSON body
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, Options{Body: body})
}

// Delete issues a DELETE request; body may be nil
func (c *Client) Delete(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, Options{Body: body})
}

// Do sends one request. It returns *HTTPError for non-2xx answers and
// *NetworkError when no answer arrived.
func (c *Client) Do(ctx context.Context, method, path string, opts Options) (*Response, error) {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(opts.Params) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + opts.Params.Encode()
	}

	var body io.Reader
	if opts.Body != nil {
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding %s %s body: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("building %s %s: %w", method, path, err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if cred, err := c.creds.Load(ctx); err != nil {
		util.WithRequest(method, path).Warnf("could not load credential: %v", err)
	} else if cred.Present() {
		req.Header.Set("Authorization", "Bearer "+cred.Token)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	log := util.WithRequest(method, path).WithField("request_id", requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		nerr := &NetworkError{Method: method, Path: path, Err: err, Timeout: isTimeout(err)}
		log.WithField("duration", time.Since(start)).Debugf("request failed: %v", err)
		return nil, nerr
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Method: method, Path: path, Err: err, Timeout: isTimeout(err)}
	}

	log.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("api request")

	decoded := decodeResponse(resp.StatusCode, raw)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return decoded, nil
	}

	herr := &HTTPError{
		Method:  method,
		Path:    path,
		Status:  resp.StatusCode,
		Message: decoded.Envelope.Message,
		Body:    raw,
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.expire(method, path)
	}
	return decoded, herr
}

// expire clears the credential and notifies subscribers. Clearing uses a
// fresh context so it happens even when the caller's context is done.
func (c *Client) expire(method, path string) {
	if err := c.creds.Clear(context.Background()); err != nil {
		util.WithRequest(method, path).Warnf("clearing credential after 401: %v", err)
	}

	c.mu.RLock()
	handlers := append([]func(AuthExpired){}, c.handlers...)
	c.mu.RUnlock()

	ev := AuthExpired{Method: method, Path: path, At: time.Now()}
	for _, h := range handlers {
		h(ev)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
