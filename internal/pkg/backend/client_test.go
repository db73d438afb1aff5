package backend

import (
	"Roger/internal/api/config"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	return NewClient(config.BackendConfig{BaseURL: url, Timeout: 2, RetryQueueSize: 2}, func() string { return "token-1" })
}

func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		return
	}
	if conn, _, err := hj.Hijack(); err == nil {
		_ = conn.Close()
	}
}

func TestPerformDecodesObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Equal(t, "/v1/streams", r.URL.Path)
		assert.Equal(t, "abc", r.URL.Query().Get("cursor"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data":   []any{map[string]any{"id": 1}},
			"cursor": "def",
		})
	}))
	defer srv.Close()

	res := newTestClient(t, srv.URL).Perform(context.Background(), GetStreams("abc"))
	require.True(t, res.Successful())
	require.Len(t, res.List("data"), 1)
	require.Equal(t, "def", res.String("cursor"))
}

func TestPerformEmitsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"expired"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	var got []string
	c.Unauthorized.AddListener(func(in Intent) { got = append(got, in.Name) })

	res := c.Perform(context.Background(), GetStream(5))
	require.False(t, res.Successful())
	require.True(t, res.Unauthorized())
	var statusErr *StatusError
	require.ErrorAs(t, res.Err, &statusErr)
	require.Equal(t, "expired", statusErr.Message)

	c.Perform(context.Background(), SetPlayedUntil(5, 1000))
	require.Equal(t, []string{"get-stream", "set-played-until"}, got)
}

func TestRetryableIntentQueuedWithoutResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url)
	res := c.Perform(context.Background(), SetPlayedUntil(1, 10))
	require.Zero(t, res.Code)
	require.ErrorIs(t, res.Err, ErrNoResponse)

	c.Perform(context.Background(), GetStream(1))
	require.Equal(t, 1, c.Pending())

	c.Perform(context.Background(), SetPlayedUntil(2, 10))
	c.Perform(context.Background(), SetPlayedUntil(3, 10))
	require.Equal(t, 2, c.Pending())
	require.Zero(t, c.FlushPending(context.Background()))
	require.Equal(t, 2, c.Pending())
}

func TestFlushPendingSendsQueuedIntents(t *testing.T) {
	var online atomic.Bool
	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !online.Load() {
			dropConnection(w)
			return
		}
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.Perform(context.Background(), SetPlayedUntil(7, 10))
	require.Equal(t, 1, c.Pending())

	online.Store(true)
	require.Equal(t, 1, c.FlushPending(context.Background()))
	require.Zero(t, c.Pending())
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"/v1/streams/7"}, paths)
}

func TestRetriedIntentReportsResult(t *testing.T) {
	var online atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !online.Load() {
			dropConnection(w)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":7}`))
	}))
	defer srv.Close()

	var retried []Result
	in := SetPlayedUntil(7, 10)
	in.OnRetried = func(res Result) { retried = append(retried, res) }

	c := newTestClient(t, srv.URL)
	res := c.Perform(context.Background(), in)
	require.True(t, res.Queued)
	require.Empty(t, retried)

	online.Store(true)
	require.Equal(t, 1, c.FlushPending(context.Background()))
	require.Len(t, retried, 1)
	require.True(t, retried[0].Successful())
	require.Equal(t, float64(7), retried[0].Data["id"])

	res = c.Perform(context.Background(), GetStream(7))
	require.False(t, res.Queued)
}

func TestSuccessfulRequestTriggersFlush(t *testing.T) {
	var online atomic.Bool
	var played atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !online.Load() {
			dropConnection(w)
			return
		}
		if r.Method == http.MethodPost {
			played.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.Perform(context.Background(), SetPlayedUntil(7, 10))
	online.Store(true)
	require.True(t, c.Perform(context.Background(), GetStream(7)).Successful())
	require.Eventually(t, func() bool { return played.Load() == 1 && c.Pending() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestParamInt64(t *testing.T) {
	data := map[string]any{"a": float64(3), "b": "42", "c": true}
	n, ok := ParamInt64(data, "a")
	require.True(t, ok)
	require.Equal(t, int64(3), n)
	n, ok = ParamInt64(data, "b")
	require.True(t, ok)
	require.Equal(t, int64(42), n)
	_, ok = ParamInt64(data, "c")
	require.False(t, ok)
}
