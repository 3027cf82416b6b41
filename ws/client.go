package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wesleyorama2/ws/internal/connpool"
)

// Client executes requests built with URL or URLf through a pooled
// connection manager. Client is safe for concurrent use by multiple
// goroutines.
type Client struct {
	httpClient *http.Client
	pool       *connpool.Pool
	limiter    *rate.Limiter
	transport  http.RoundTripper
	config     Config
	headers    map[string]string
	creds      []Credentials
	log        *zap.Logger
	closed     atomic.Bool
	setupErr   error
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// NewClient creates a new client with the given options.
//
// Example:
//
//	client, err := ws.NewClient(
//	    ws.WithTimeout(10*time.Second),
//	    ws.WithHeader("Accept", "application/json"),
//	)
func NewClient(options ...ClientOption) (*Client, error) {
	c := &Client{
		config:  DefaultConfig(),
		headers: make(map[string]string),
		log:     zap.NewNop(),
	}

	for _, option := range options {
		option(c)
	}
	if c.setupErr != nil {
		return nil, c.setupErr
	}

	c.log = c.log.Named("ws")

	pool, err := connpool.New(connpool.Config{
		MaxConnections:        c.config.MaxConnections,
		MaxConnectionsPerHost: c.config.MaxConnectionsPerHost,
		IdleTimeout:           c.config.IdleTimeout,
		ConnectTimeout:        c.config.ConnectTimeout,
		Proxy:                 c.config.Proxy,
		InsecureSkipVerify:    c.config.InsecureSkipVerify,
	}, c.log.Named("pool"))
	if err != nil {
		return nil, err
	}
	c.pool = pool

	transport := c.transport
	if transport == nil {
		transport = pool.Transport()
	}

	c.httpClient = &http.Client{
		Transport:     transport,
		Timeout:       c.config.Timeout,
		CheckRedirect: c.redirectPolicy,
	}

	if c.config.RateLimit > 0 {
		burst := c.config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(c.config.RateLimit), burst)
	}

	return c, nil
}

func (c *Client) redirectPolicy(req *http.Request, via []*http.Request) error {
	if !c.config.FollowRedirects {
		return http.ErrUseLastResponse
	}
	if len(via) >= c.config.MaxRedirects {
		return http.ErrUseLastResponse
	}
	return nil
}

// WithConfig replaces the whole client configuration.
// Options applied after it adjust individual fields.
func WithConfig(cfg Config) ClientOption {
	return func(c *Client) {
		c.config = cfg
	}
}

// WithTimeout sets the overall timeout for each request.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.config.Timeout = timeout
	}
}

// WithMaxConnections sets how many connections may be leased at once.
func WithMaxConnections(n int) ClientOption {
	return func(c *Client) {
		c.config.MaxConnections = n
	}
}

// WithHeader adds a default header to all requests made by this client.
// Headers set on individual requests will override these defaults.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.config.UserAgent = userAgent
	}
}

// WithLogger sets the logger. The client logs under the "ws" name.
func WithLogger(log *zap.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithRateLimit limits the client to rps requests per second.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		c.config.RateLimit = rps
		c.config.RateBurst = burst
	}
}

// WithCredentials registers credentials used for every request of this
// client whose host matches scopeURL. An empty scopeURL matches any host.
func WithCredentials(username, password, scopeURL string) ClientOption {
	return func(c *Client) {
		creds, err := NewCredentials(username, password, scopeURL)
		if err != nil {
			c.setupErr = err
			return
		}
		c.creds = append(c.creds, creds)
	}
}

// WithTransport replaces the pooled transport. Connection slots are still
// leased from the pool, so the concurrency limit keeps applying.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.transport = rt
	}
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.config
}

// URL starts a request for rawURL.
func (c *Client) URL(rawURL string) *Request {
	return newRequest(c, rawURL)
}

// URLf starts a request whose URL is format with params substituted.
// Every param is URL-encoded first, so values may contain spaces,
// ampersands or slashes.
//
// Example:
//
//	resp, err := client.URLf("https://search.example.com/?q=%s&page=%s", "gophers & co", "2").Get(ctx)
func (c *Client) URLf(format string, params ...string) *Request {
	encoded := make([]any, len(params))
	for i, p := range params {
		encoded[i] = Encode(p)
	}
	return newRequest(c, fmt.Sprintf(format, encoded...))
}

// Encode URL-encodes a UTF-8 string for use as a query string parameter.
func Encode(part string) string {
	return url.QueryEscape(part)
}

// NewSession creates a session bound to this client.
func (c *Client) NewSession() *Session {
	return newSession(c.log)
}

// PoolStats is a snapshot of connection slot usage.
type PoolStats = connpool.Stats

// Stats reports how many connections are currently leased.
func (c *Client) Stats() PoolStats {
	return c.pool.Stats()
}

// Close releases the pool and waits for leased connections to be returned.
func (c *Client) Close() {
	_ = c.Shutdown(context.Background())
}

// Shutdown is Close bounded by ctx. Responses still holding a connection
// keep Shutdown waiting until they are released or ctx is done.
func (c *Client) Shutdown(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	done := make(chan struct{})
	go func() {
		c.pool.Close()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		c.log.Warn("shutdown interrupted with connections still leased",
			zap.Int("leased", c.pool.Stats().Acquired))
		return ctx.Err()
	}
}

func (c *Client) execute(ctx context.Context, r *Request, method string) (*Response, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	if err := r.validate(method); err != nil {
		return nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s %s: rate limit: %w", method, r.URL, err)
		}
	}

	lease, err := c.pool.Acquire(ctx)
	if err != nil {
		if errors.Is(err, connpool.ErrClosed) {
			return nil, ErrClientClosed
		}
		return nil, fmt.Errorf("%s %s: %w", method, r.URL, err)
	}

	session := SessionFromContext(ctx)
	log := c.log.With(zap.String("method", method), zap.String("url", r.URL))
	if session != nil {
		log = log.With(zap.String("session", session.ID()))
	}

	trace := newTimingTrace()
	ctx = httptrace.WithClientTrace(ctx, trace.clientTrace())

	httpResp, err := c.send(ctx, r, method, session)
	if err != nil {
		lease.Release()
		log.Warn("request failed", zap.Error(err))
		return nil, fmt.Errorf("%s %s: %w", method, r.URL, err)
	}
	lease.Attach(httpResp.Body)

	resp := &Response{
		raw:     httpResp,
		lease:   lease,
		session: session,
		timing:  trace.finish(),
	}
	if session != nil {
		session.track(resp)
	}

	log.Debug("request executed",
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("duration", resp.timing.Total),
		zap.Duration("ttfb", resp.timing.TimeToFirstByte),
		zap.Bool("reused", resp.timing.ConnReused),
	)

	return resp, nil
}

// send performs the round trip and answers a single authentication
// challenge when matching credentials are known.
func (c *Client) send(ctx context.Context, r *Request, method string, session *Session) (*http.Response, error) {
	httpReq, err := c.prepare(ctx, r, method)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode != http.StatusUnauthorized {
		return httpResp, nil
	}

	creds, ok := c.credentialsFor(httpReq.URL, session)
	if !ok {
		return httpResp, nil
	}

	authHeader, err := Authorization(creds, httpResp.Header.Values("WWW-Authenticate"), method, httpReq.URL)
	if err != nil || authHeader == "" {
		return httpResp, nil
	}
	drain(httpResp)

	retry, err := c.prepare(ctx, r, method)
	if err != nil {
		return nil, err
	}
	retry.Header.Set("Authorization", authHeader)

	return c.httpClient.Do(retry)
}

func (c *Client) prepare(ctx context.Context, r *Request, method string) (*http.Request, error) {
	httpReq, err := r.Build(ctx, method)
	if err != nil {
		return nil, err
	}

	// request headers win over client defaults
	for key, value := range c.headers {
		if httpReq.Header.Get(key) == "" {
			httpReq.Header.Set(key, value)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" && c.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}

	return httpReq, nil
}

func (c *Client) credentialsFor(u *url.URL, session *Session) (Credentials, bool) {
	if session != nil {
		if creds, ok := session.credentialsFor(u); ok {
			return creds, true
		}
	}
	for i := len(c.creds) - 1; i >= 0; i-- {
		if c.creds[i].Matches(u) {
			return c.creds[i], true
		}
	}
	return Credentials{}, false
}
