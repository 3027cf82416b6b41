package ws

import "time"

const (
	// DefaultTimeout is the default overall request timeout
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRedirects is the maximum number of redirects to follow
	DefaultMaxRedirects = 10
	// DefaultUserAgent is sent when no User-Agent header is configured
	DefaultUserAgent = "ws/0.1"
)

// Config holds the client settings that can be loaded from files,
// environment variables or flags.
type Config struct {
	// Timeout bounds a whole request including reading the body
	Timeout time.Duration `conf:"timeout"`

	// ConnectTimeout bounds each dial attempt
	ConnectTimeout time.Duration `conf:"connect_timeout"`

	// MaxConnections is the number of connections that may be leased at once
	MaxConnections int `conf:"max_connections"`

	// MaxConnectionsPerHost caps concurrent connections to a single host
	MaxConnectionsPerHost int `conf:"max_connections_per_host"`

	// IdleTimeout is how long an idle connection is kept for reuse
	IdleTimeout time.Duration `conf:"idle_timeout"`

	UserAgent string `conf:"user_agent"`

	// Proxy is an optional proxy URL; the environment is used otherwise
	Proxy string `conf:"proxy"`

	InsecureSkipVerify bool `conf:"insecure_skip_verify"`

	FollowRedirects bool `conf:"follow_redirects"`
	MaxRedirects    int  `conf:"max_redirects"`

	// RateLimit is the number of requests per second; zero disables limiting
	RateLimit float64 `conf:"rate_limit"`
	RateBurst int     `conf:"rate_burst"`
}

// DefaultConfig returns the settings used when no configuration is given.
func DefaultConfig() Config {
	return Config{
		Timeout:               DefaultTimeout,
		ConnectTimeout:        10 * time.Second,
		MaxConnections:        20,
		MaxConnectionsPerHost: 10,
		IdleTimeout:           90 * time.Second,
		UserAgent:             DefaultUserAgent,
		FollowRedirects:       true,
		MaxRedirects:          DefaultMaxRedirects,
	}
}
