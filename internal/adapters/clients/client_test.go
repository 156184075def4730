package clients

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jsamuelsen/quote-manager/internal/adapters/http/middleware"
	"github.com/jsamuelsen/quote-manager/internal/platform/config"
)

// remote is a scripted feed: the n-th call answers statuses[n-1], and the
// last status repeats once the script runs out.
type remote struct {
	mu       sync.Mutex
	statuses []int
	calls    atomic.Int32
	headers  []http.Header
}

func (r *remote) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	n := int(r.calls.Add(1))

	r.mu.Lock()
	r.headers = append(r.headers, req.Header.Clone())
	status := r.statuses[min(n, len(r.statuses))-1]
	r.mu.Unlock()

	w.WriteHeader(status)
}

func newRemote(t *testing.T, statuses ...int) (*remote, *Config) {
	t.Helper()

	r := &remote{statuses: statuses}
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return r, &Config{
		ServiceName: "remote-quotes",
		BaseURL:     server.URL,
		Timeout:     5 * time.Second,
		Retry: config.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
			Multiplier:      2,
		},
		Circuit: config.CircuitBreakerConfig{
			MaxFailures:   5,
			Timeout:       time.Minute,
			HalfOpenLimit: 1,
		},
	}
}

func mustNew(t *testing.T, cfg *Config) *Client {
	t.Helper()

	c, err := New(cfg)
	require.NoError(t, err)

	return c
}

func get(t *testing.T, ctx context.Context, c *Client) (*http.Response, error) {
	t.Helper()

	resp, err := c.Get(ctx, "/posts")
	if resp != nil {
		t.Cleanup(func() { _ = resp.Body.Close() })
	}

	return resp, err
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	require.ErrorContains(t, err, "config is required")

	_, err = New(&Config{BaseURL: "http://localhost"})
	require.ErrorContains(t, err, "service name is required")
}

func TestNew_DoesNotMutateConfig(t *testing.T) {
	cfg := &Config{ServiceName: "remote-quotes"}

	c := mustNew(t, cfg)

	assert.Zero(t, cfg.Timeout)
	assert.Zero(t, cfg.Retry.MaxAttempts)
	assert.Equal(t, defaultTimeout, c.cfg.Timeout)
	assert.Equal(t, 1, c.cfg.Retry.MaxAttempts)
}

func TestClient_Retries(t *testing.T) {
	tests := []struct {
		name        string
		statuses    []int
		maxAttempts int
		wantStatus  int
		wantErr     bool
		wantCalls   int32
	}{
		{name: "5xx then success", statuses: []int{500, 502, 200}, maxAttempts: 3, wantStatus: 200, wantCalls: 3},
		{name: "4xx is not retried", statuses: []int{404}, maxAttempts: 3, wantStatus: 404, wantCalls: 1},
		{name: "429 is handed back", statuses: []int{429, 200}, maxAttempts: 3, wantStatus: 429, wantCalls: 1},
		{name: "attempts exhausted", statuses: []int{503}, maxAttempts: 3, wantErr: true, wantCalls: 3},
		{name: "zero attempts still sends once", statuses: []int{200}, maxAttempts: 0, wantStatus: 200, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, cfg := newRemote(t, tt.statuses...)
			cfg.Retry.MaxAttempts = tt.maxAttempts

			resp, err := get(t, context.Background(), mustNew(t, cfg))

			assert.Equal(t, tt.wantCalls, r.calls.Load())

			if tt.wantErr {
				require.ErrorIs(t, err, ErrMaxRetriesExceeded)
				assert.ErrorIs(t, err, errServerStatus)
				assert.Contains(t, err.Error(), "after 3 attempt(s)")

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestClient_CircuitOpensAndShortCircuits(t *testing.T) {
	r, cfg := newRemote(t, http.StatusServiceUnavailable)
	cfg.Retry.MaxAttempts = 1
	cfg.Circuit.MaxFailures = 2

	c := mustNew(t, cfg)

	_, err := get(t, context.Background(), c)
	require.Error(t, err)
	assert.Equal(t, StateClosed, c.CircuitState())

	_, err = get(t, context.Background(), c)
	require.Error(t, err)
	assert.Equal(t, StateOpen, c.CircuitState())

	_, err = get(t, context.Background(), c)
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), r.calls.Load())

	snap := c.Breaker()
	assert.Equal(t, StateOpen, snap.State)
	assert.Equal(t, 2, snap.Failures)
	assert.False(t, snap.LastFailure.IsZero())
}

func TestClient_SuccessResetsFailures(t *testing.T) {
	_, cfg := newRemote(t, 502, 200)
	cfg.Retry.MaxAttempts = 1

	c := mustNew(t, cfg)

	_, err := get(t, context.Background(), c)
	require.Error(t, err)
	assert.Equal(t, 1, c.Breaker().Failures)

	_, err = get(t, context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Breaker().Failures)
}

func TestClient_HeadersOnEveryAttempt(t *testing.T) {
	r, cfg := newRemote(t, 503, 200)
	cfg.Headers = map[string]string{
		"User-Agent": "quote-manager/test",
		"Accept":     "application/json",
	}

	ctx := middleware.ContextWithRequestID(context.Background(), "req-1")
	ctx = middleware.ContextWithCorrelationID(ctx, "manual-sync-1")

	_, err := get(t, ctx, mustNew(t, cfg))
	require.NoError(t, err)

	require.Len(t, r.headers, 2)

	for _, h := range r.headers {
		assert.Equal(t, "quote-manager/test", h.Get("User-Agent"))
		assert.Equal(t, "application/json", h.Get("Accept"))
		assert.Equal(t, "req-1", h.Get(middleware.HeaderRequestID))
		assert.Equal(t, "manual-sync-1", h.Get(middleware.HeaderCorrelationID))
	}
}

func TestClient_CancelledContextIsNotRetried(t *testing.T) {
	release := make(chan struct{})

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
		<-release
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	_, cfg := newRemote(t, 200)
	cfg.BaseURL = server.URL

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := get(t, ctx, mustNew(t, cfg))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_SpanRecordsAttempts(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()

	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	_, cfg := newRemote(t, 500, 200)

	_, err := get(t, context.Background(), mustNew(t, cfg))
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP GET remote-quotes", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.Int("http.attempts", 2))
	assert.Contains(t, spans[0].Attributes(), attribute.Int("http.status_code", 200))
}

func TestClient_Policy(t *testing.T) {
	_, cfg := newRemote(t, 200)
	cfg.Retry.JitterFactor = 0.1

	b := mustNew(t, cfg).policy()

	assert.Equal(t, cfg.Retry.InitialInterval, b.InitialInterval)
	assert.Equal(t, cfg.Retry.MaxInterval, b.MaxInterval)
	assert.InDelta(t, 2.0, b.Multiplier, 0)
	assert.InDelta(t, 0.1, b.RandomizationFactor, 0)
}

type fakeNetError struct{ timeout bool }

func (e fakeNetError) Error() string   { return "fake net error" }
func (e fakeNetError) Timeout() bool   { return e.timeout }
func (e fakeNetError) Temporary() bool { return false }

func TestRetryable(t *testing.T) {
	assert.False(t, retryable(context.Canceled))
	assert.False(t, retryable(context.DeadlineExceeded))
	assert.True(t, retryable(fakeNetError{timeout: true}))
	assert.False(t, retryable(fakeNetError{timeout: false}))
	assert.True(t, retryable(&net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}))
}

func TestNewTransport(t *testing.T) {
	tr := newTransport(config.TransportConfig{})

	assert.Equal(t, config.DefaultTransportMaxIdleConns, tr.MaxIdleConns)
	assert.Equal(t, config.DefaultTransportMaxIdleConnsPerHost, tr.MaxIdleConnsPerHost)
	assert.Equal(t, 90*time.Second, tr.IdleConnTimeout)

	tr = newTransport(config.TransportConfig{MaxIdleConns: 4, MaxIdleConnsPerHost: 2, IdleConnTimeout: time.Second})
	assert.Equal(t, 4, tr.MaxIdleConns)
	assert.Equal(t, time.Second, tr.IdleConnTimeout)
}

func TestClient_BuildURL(t *testing.T) {
	c := mustNew(t, &Config{ServiceName: "remote-quotes", BaseURL: "https://jsonplaceholder.typicode.com/"})

	assert.Equal(t, "https://jsonplaceholder.typicode.com/posts", c.buildURL("/posts"))
	assert.Equal(t, "https://jsonplaceholder.typicode.com/posts?_limit=1", c.buildURL("posts?_limit=1"))
}
