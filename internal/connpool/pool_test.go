package connpool

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func TestNew_Defaults(t *testing.T) {
	pool, err := New(Config{}, nil)
	require.NoError(t, err)
	defer pool.Close()

	st := pool.Stats()
	assert.Equal(t, DefaultMaxConnections, st.Max)
	assert.Equal(t, 0, st.Acquired)

	tr := pool.Transport()
	assert.Equal(t, DefaultMaxConnectionsPerHost, tr.MaxConnsPerHost)
	assert.Equal(t, DefaultIdleTimeout, tr.IdleConnTimeout)
	require.NotNil(t, tr.TLSClientConfig)
	assert.False(t, tr.TLSClientConfig.InsecureSkipVerify)
	assert.Contains(t, tr.TLSClientConfig.NextProtos, "h2")
	assert.Contains(t, tr.TLSNextProto, "h2")
}

func TestNew_PerHostClampedToMax(t *testing.T) {
	pool, err := New(Config{MaxConnections: 2, MaxConnectionsPerHost: 8}, nil)
	require.NoError(t, err)
	defer pool.Close()

	assert.Equal(t, 2, pool.Transport().MaxConnsPerHost)
}

func TestNew_InvalidProxy(t *testing.T) {
	_, err := New(Config{Proxy: "://bad"}, nil)
	assert.Error(t, err)
}

func TestNew_InsecureSkipVerify(t *testing.T) {
	pool, err := New(Config{InsecureSkipVerify: true}, nil)
	require.NoError(t, err)
	defer pool.Close()

	require.NotNil(t, pool.Transport().TLSClientConfig)
	assert.True(t, pool.Transport().TLSClientConfig.InsecureSkipVerify)
}

func TestAcquire_BlocksWhenExhausted(t *testing.T) {
	pool, err := New(Config{MaxConnections: 1}, nil)
	require.NoError(t, err)
	defer pool.Close()

	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pool.Stats().Acquired)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	lease.Release()
	assert.Equal(t, 0, pool.Stats().Acquired)

	again, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	again.Release()
}

func TestLease_ReleaseClosesBodyOnce(t *testing.T) {
	pool, err := New(Config{MaxConnections: 1}, nil)
	require.NoError(t, err)
	defer pool.Close()

	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	body := &trackingBody{Reader: strings.NewReader("unread")}
	lease.Attach(body)

	lease.Release()
	lease.Release()

	assert.True(t, body.closed)
	assert.Equal(t, 0, pool.Stats().Acquired)
}

func TestAcquire_AfterClose(t *testing.T) {
	pool, err := New(Config{}, nil)
	require.NoError(t, err)
	pool.Close()

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTransport_DialsLocalServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	pool, err := New(Config{ConnectTimeout: time.Second}, nil)
	require.NoError(t, err)
	defer pool.Close()

	client := &http.Client{Transport: pool.Transport()}
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}
