package ws

import (
	"crypto/tls"
	"net/http/httptrace"
	"sync"
	"time"
)

// Timing breaks the time until the response headers arrived into
// connection phases. Phases that did not happen, such as the DNS lookup
// on a reused connection, are zero.
type Timing struct {
	DNSLookup    time.Duration
	TCPConnect   time.Duration
	TLSHandshake time.Duration
	// TimeToFirstByte is measured from the end of the last connection phase.
	TimeToFirstByte time.Duration
	Total           time.Duration
	ConnReused      bool
}

type timingTrace struct {
	mu sync.Mutex

	start        time.Time
	dnsStart     time.Time
	connectStart time.Time
	tlsStart     time.Time
	lastPhase    time.Time

	timing Timing
}

func newTimingTrace() *timingTrace {
	now := time.Now()
	return &timingTrace{start: now, lastPhase: now}
}

func (t *timingTrace) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			t.mu.Lock()
			defer t.mu.Unlock()
			t.timing.ConnReused = info.Reused
			if info.Reused {
				t.lastPhase = time.Now()
			}
		},
		DNSStart: func(httptrace.DNSStartInfo) {
			t.mu.Lock()
			defer t.mu.Unlock()
			t.dnsStart = time.Now()
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			t.mu.Lock()
			defer t.mu.Unlock()
			now := time.Now()
			t.timing.DNSLookup = now.Sub(t.dnsStart)
			t.lastPhase = now
		},
		ConnectStart: func(string, string) {
			t.mu.Lock()
			defer t.mu.Unlock()
			t.connectStart = time.Now()
		},
		ConnectDone: func(_, _ string, err error) {
			if err != nil {
				return
			}
			t.mu.Lock()
			defer t.mu.Unlock()
			now := time.Now()
			t.timing.TCPConnect = now.Sub(t.connectStart)
			t.lastPhase = now
		},
		TLSHandshakeStart: func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			t.tlsStart = time.Now()
		},
		TLSHandshakeDone: func(_ tls.ConnectionState, err error) {
			if err != nil {
				return
			}
			t.mu.Lock()
			defer t.mu.Unlock()
			now := time.Now()
			t.timing.TLSHandshake = now.Sub(t.tlsStart)
			t.lastPhase = now
		},
		GotFirstResponseByte: func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			t.timing.TimeToFirstByte = time.Since(t.lastPhase)
		},
	}
}

// finish stamps the total and returns a copy of the collected phases.
func (t *timingTrace) finish() Timing {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timing.Total = time.Since(t.start)
	return t.timing
}
