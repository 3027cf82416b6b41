// Package connpool provides the bounded connection manager behind the ws
// client: a shared http.Transport plus a fixed number of connection slots
// that callers lease for the lifetime of a response.
package connpool

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/jackc/puddle/v2"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

const (
	// DefaultMaxConnections is the number of slots when none is configured
	DefaultMaxConnections = 20
	// DefaultMaxConnectionsPerHost caps concurrent connections to one host
	DefaultMaxConnectionsPerHost = 10
	// DefaultIdleTimeout is how long idle connections stay in the transport
	DefaultIdleTimeout = 90 * time.Second
	// DefaultConnectTimeout bounds a single dial attempt
	DefaultConnectTimeout = 10 * time.Second

	// maxDrain is how much of an unread body is consumed on release so the
	// underlying connection can be reused.
	maxDrain = 256 << 10

	h2ReadIdleTimeout = 30 * time.Second
	h2PingTimeout     = 15 * time.Second
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("connection pool closed")

// Config describes the pool and its transport.
type Config struct {
	MaxConnections        int
	MaxConnectionsPerHost int
	IdleTimeout           time.Duration
	ConnectTimeout        time.Duration
	Proxy                 string
	InsecureSkipVerify    bool
}

// Stats is a point-in-time snapshot of slot usage.
type Stats struct {
	Acquired int
	Idle     int
	Total    int
	Max      int
}

type slot struct{}

// Pool hands out connection slots and owns the transport.
type Pool struct {
	transport *http.Transport
	slots     *puddle.Pool[slot]
	log       *zap.Logger
}

// New creates a pool. A nil logger is replaced by a no-op logger.
func New(cfg Config, log *zap.Logger) (*Pool, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cfg = withDefaults(cfg)

	transport, err := newTransport(cfg, log)
	if err != nil {
		return nil, err
	}

	slots, err := puddle.NewPool(&puddle.Config[slot]{
		Constructor: func(context.Context) (slot, error) { return slot{}, nil },
		Destructor:  func(slot) {},
		MaxSize:     int32(cfg.MaxConnections),
	})
	if err != nil {
		return nil, fmt.Errorf("error creating slot pool: %w", err)
	}

	return &Pool{
		transport: transport,
		slots:     slots,
		log:       log,
	}, nil
}

func withDefaults(cfg Config) Config {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.MaxConnectionsPerHost <= 0 {
		cfg.MaxConnectionsPerHost = DefaultMaxConnectionsPerHost
	}
	if cfg.MaxConnectionsPerHost > cfg.MaxConnections {
		cfg.MaxConnectionsPerHost = cfg.MaxConnections
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	return cfg
}

func newTransport(cfg Config, log *zap.Logger) (*http.Transport, error) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialEach(cfg.ConnectTimeout, log),
		MaxIdleConns:        cfg.MaxConnections,
		MaxIdleConnsPerHost: cfg.MaxConnectionsPerHost,
		MaxConnsPerHost:     cfg.MaxConnectionsPerHost,
		IdleConnTimeout:     cfg.IdleTimeout,
	}

	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	h2, err := http2.ConfigureTransports(transport)
	if err != nil {
		return nil, fmt.Errorf("configuring http2: %w", err)
	}
	// idle HTTP/2 connections are health checked with pings
	h2.ReadIdleTimeout = h2ReadIdleTimeout
	h2.PingTimeout = h2PingTimeout

	return transport, nil
}

// dialEach resolves the host and tries every address in turn, each bounded
// by the connect timeout.
func dialEach(timeout time.Duration, log *zap.Logger) func(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}

	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}

		ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, err
		}

		var lastErr error
		for _, ip := range ips {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
			if err == nil {
				return conn, nil
			}
			log.Debug("dial failed, trying next address",
				zap.String("host", host),
				zap.String("ip", ip.String()),
				zap.Error(err),
			)
			lastErr = err
			if ctx.Err() != nil {
				break
			}
		}

		if lastErr == nil {
			lastErr = fmt.Errorf("no addresses for %s", host)
		}
		return nil, fmt.Errorf("cannot connect to %s: %w", host, lastErr)
	}
}

// Transport returns the shared round tripper.
func (p *Pool) Transport() *http.Transport {
	return p.transport
}

// Acquire blocks until a slot is free, ctx is done, or the pool is closed.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	res, err := p.slots.Acquire(ctx)
	if err != nil {
		if errors.Is(err, puddle.ErrClosedPool) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("error acquiring connection: %w", err)
	}
	return &Lease{res: res, log: p.log}, nil
}

// Stats reports current slot usage.
func (p *Pool) Stats() Stats {
	st := p.slots.Stat()
	return Stats{
		Acquired: int(st.AcquiredResources()),
		Idle:     int(st.IdleResources()),
		Total:    int(st.TotalResources()),
		Max:      int(st.MaxResources()),
	}
}

// Close waits for leased slots to be released, then drops idle connections.
func (p *Pool) Close() {
	p.log.Debug("closing connection pool")
	p.slots.Close()
	p.transport.CloseIdleConnections()
}

// Lease is one acquired connection slot. It owns the response body attached
// to it until released.
type Lease struct {
	res  *puddle.Resource[slot]
	log  *zap.Logger
	mu   sync.Mutex
	body io.ReadCloser
	once sync.Once
}

// Attach hands the response body to the lease so Release can close it.
func (l *Lease) Attach(body io.ReadCloser) {
	l.mu.Lock()
	l.body = body
	l.mu.Unlock()
}

// Release drains and closes the attached body and returns the slot.
// Calling it more than once is a no-op.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.mu.Lock()
		body := l.body
		l.body = nil
		l.mu.Unlock()

		if body != nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(body, maxDrain))
			if err := body.Close(); err != nil {
				l.log.Debug("error closing response body", zap.Error(err))
			}
		}
		l.res.Release()
	})
}
