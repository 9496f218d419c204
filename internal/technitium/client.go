package technitium

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultTimeout = 30 * time.Second

// TokenObserver is notified when the DNS server rejects a bearer token.
// The console's session manager subscribes so it can drop every session
// that still holds the token.
type TokenObserver interface {
	TokenInvalidated(token string)
}

// TokenObserverFunc adapts a function to TokenObserver.
type TokenObserverFunc func(token string)

func (f TokenObserverFunc) TokenInvalidated(token string) { f(token) }

// Client talks to the DNS server's HTTP/JSON management API. It is shared
// by all console sessions; the bearer token of a call comes from the
// context (see ContextWithToken).
type Client struct {
	baseURL string
	http    *http.Client
	metrics *Metrics

	mu        sync.RWMutex
	nextID    int
	observers map[int]TokenObserver
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithInsecureTLS disables certificate verification of the DNS server.
func WithInsecureTLS() Option {
	return func(c *Client) {
		c.http.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
}

// WithMetrics records every call in m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		http:      &http.Client{Timeout: defaultTimeout},
		observers: make(map[int]TokenObserver),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Observe subscribes o to invalid-token notifications. The returned
// function unsubscribes it.
func (c *Client) Observe(o TokenObserver) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.observers[id] = o
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

func (c *Client) notifyInvalid(token string) {
	if token == "" {
		return
	}
	c.metrics.invalidToken()

	c.mu.RLock()
	observers := make([]TokenObserver, 0, len(c.observers))
	for _, o := range c.observers {
		observers = append(observers, o)
	}
	c.mu.RUnlock()

	for _, o := range observers {
		o.TokenInvalidated(token)
	}
}

// Call issues a GET request and returns the decoded envelope. Transport
// failures are wrapped in ErrTransport. An envelope with a non-ok status is
// returned together with its *APIError.
func (c *Client) Call(ctx context.Context, endpoint string, params url.Values) (*Envelope, error) {
	return c.do(ctx, http.MethodGet, endpoint, params)
}

// Submit is Call with the parameters sent as a form-encoded POST body, for
// payloads too large for a query string (imports, settings, app config).
func (c *Client) Submit(ctx context.Context, endpoint string, params url.Values) (*Envelope, error) {
	return c.do(ctx, http.MethodPost, endpoint, params)
}

// Do calls endpoint and decodes the unwrapped payload into out.
func (c *Client) Do(ctx context.Context, endpoint string, params url.Values, out any) error {
	env, err := c.Call(ctx, endpoint, params)
	if err != nil {
		return err
	}
	return env.Decode(out)
}

// SubmitDo is Do over POST.
func (c *Client) SubmitDo(ctx context.Context, endpoint string, params url.Values, out any) error {
	env, err := c.Submit(ctx, endpoint, params)
	if err != nil {
		return err
	}
	return env.Decode(out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values) (*Envelope, error) {
	req, err := c.newRequest(ctx, method, endpoint, params)
	if err != nil {
		return nil, err
	}
	token := TokenFromContext(ctx)
	reqID := req.Header.Get("X-Request-ID")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.observe(endpoint, "transport", time.Since(start))
		log.Printf("[technitium] %s %s (req %s) failed: %v", method, endpoint, reqID, err)
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.metrics.observe(endpoint, StatusInvalidToken, time.Since(start))
		c.notifyInvalid(token)
		env := &Envelope{Status: StatusInvalidToken, ErrorMessage: "Invalid token or session expired."}
		_, perr := env.Payload()
		return env, perr
	}

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		c.metrics.observe(endpoint, "transport", time.Since(start))
		return nil, fmt.Errorf("%w: %s %s: HTTP %d with undecodable body: %v", ErrTransport, method, endpoint, resp.StatusCode, err)
	}
	c.metrics.observe(endpoint, statusLabel(env.Status), time.Since(start))

	if env.Status == StatusInvalidToken {
		c.notifyInvalid(token)
	}
	if env.Status != StatusOK {
		_, perr := env.Payload()
		return &env, perr
	}
	return &env, nil
}

// Stream performs a GET and hands back the raw response for file
// downloads. The caller closes the body. A JSON reply means the server
// refused the download; it is decoded and returned as an error.
func (c *Client) Stream(ctx context.Context, endpoint string, params url.Values) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, params)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.observe(endpoint, "transport", time.Since(start))
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	c.metrics.observe(endpoint, "stream", time.Since(start))

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		c.notifyInvalid(TokenFromContext(ctx))
		return nil, &APIError{Status: StatusInvalidToken, Message: "Invalid token or session expired."}
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		defer resp.Body.Close()
		var env Envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		if env.Status == StatusInvalidToken {
			c.notifyInvalid(TokenFromContext(ctx))
		}
		_, perr := env.Payload()
		if perr == nil {
			perr = &APIError{Status: StatusError, Message: "server returned no file"}
		}
		return nil, perr
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, params url.Values) (*http.Request, error) {
	target := c.baseURL + endpoint
	var body io.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			target += "?" + params.Encode()
		}
	} else {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("technitium: build request: %w", err)
	}
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token := TokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

type tokenKey struct{}

// ContextWithToken returns a context whose API calls authenticate with token.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the bearer token attached to ctx, if any.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

func requireToken(ctx context.Context) error {
	if TokenFromContext(ctx) == "" {
		return ErrNoToken
	}
	return nil
}
