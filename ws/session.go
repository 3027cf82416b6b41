package ws

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session is one unit of work, typically one incoming request handled by a
// server. Responses executed with a context carrying the session are
// tracked, and Release returns every connection they still hold.
//
// Session is safe for concurrent use.
type Session struct {
	id  string
	log *zap.Logger

	mu       sync.Mutex
	inflight map[*Response]struct{}
	creds    []Credentials
}

func newSession(log *zap.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:       id,
		log:      log.Named("session").With(zap.String("session", id)),
		inflight: make(map[*Response]struct{}),
	}
}

// ID identifies the session in logs.
func (s *Session) ID() string {
	return s.id
}

// Authenticate registers credentials for requests of this session whose
// host matches scopeURL. An empty scopeURL matches any host.
func (s *Session) Authenticate(username, password, scopeURL string) error {
	creds, err := NewCredentials(username, password, scopeURL)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.creds = append(s.creds, creds)
	s.mu.Unlock()
	return nil
}

// InFlight is the number of responses still holding a connection.
func (s *Session) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// Release returns the connections of all tracked responses and forgets the
// session credentials. The session can be reused afterwards.
func (s *Session) Release() {
	s.mu.Lock()
	pending := make([]*Response, 0, len(s.inflight))
	for resp := range s.inflight {
		pending = append(pending, resp)
	}
	s.inflight = make(map[*Response]struct{})
	s.creds = nil
	s.mu.Unlock()

	s.log.Debug("releasing http client connections", zap.Int("count", len(pending)))

	for _, resp := range pending {
		resp.Release()
	}
}

func (s *Session) track(resp *Response) {
	s.mu.Lock()
	s.inflight[resp] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) forget(resp *Response) {
	s.mu.Lock()
	delete(s.inflight, resp)
	s.mu.Unlock()
}

func (s *Session) credentialsFor(u *url.URL) (Credentials, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// most recent registration wins
	for i := len(s.creds) - 1; i >= 0; i-- {
		if s.creds[i].Matches(u) {
			return s.creds[i], true
		}
	}
	return Credentials{}, false
}

type contextKey int

var sessionKey = contextKey(0)

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the session carried by ctx, or nil.
func SessionFromContext(ctx context.Context) *Session {
	if s, ok := ctx.Value(sessionKey).(*Session); ok {
		return s
	}
	return nil
}

// Middleware opens a session for every incoming request, places it in the
// request context and releases it once next returns, including on panic.
func (c *Client) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := c.NewSession()
		defer session.Release()
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
	})
}
