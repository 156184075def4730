package ports

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func check(name string, err error) CheckerFunc {
	return CheckerFunc{CheckerName: name, Fn: func(context.Context) error { return err }}
}

func TestRegistry_RejectsDuplicateNames(t *testing.T) {
	r := NewHealthRegistry()

	require.NoError(t, r.Register(check("storage", nil)))

	err := r.RegisterOptional(check("storage", nil))
	require.ErrorIs(t, err, ErrDuplicateChecker)
	assert.EqualError(t, err, "duplicate health checker: storage")

	assert.Len(t, r.CheckAll(context.Background()).Checks, 1)
}

func TestRegistry_CheckAll(t *testing.T) {
	down := errors.New("connection refused")

	tests := []struct {
		name     string
		required []CheckerFunc
		optional []CheckerFunc
		want     HealthStatus
	}{
		{name: "nothing registered", want: HealthStatusHealthy},
		{
			name:     "all pass",
			required: []CheckerFunc{check("storage", nil)},
			optional: []CheckerFunc{check("remote-quotes", nil)},
			want:     HealthStatusHealthy,
		},
		{
			name:     "remote down degrades",
			required: []CheckerFunc{check("storage", nil)},
			optional: []CheckerFunc{check("remote-quotes", down)},
			want:     HealthStatusDegraded,
		},
		{
			name:     "storage down is unhealthy",
			required: []CheckerFunc{check("storage", down)},
			optional: []CheckerFunc{check("remote-quotes", nil)},
			want:     HealthStatusUnhealthy,
		},
		{
			name:     "unhealthy outranks degraded",
			required: []CheckerFunc{check("storage", down)},
			optional: []CheckerFunc{check("remote-quotes", down)},
			want:     HealthStatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewHealthRegistry()

			for _, c := range tt.required {
				require.NoError(t, r.Register(c))
			}

			for _, c := range tt.optional {
				require.NoError(t, r.RegisterOptional(c))
			}

			res := r.CheckAll(context.Background())

			assert.Equal(t, tt.want, res.Status)
			assert.Len(t, res.Checks, len(tt.required)+len(tt.optional))
			assert.False(t, res.Timestamp.IsZero())
		})
	}
}

func TestRegistry_CheckResultDetails(t *testing.T) {
	r := NewHealthRegistry()
	require.NoError(t, r.Register(check("storage", nil)))
	require.NoError(t, r.RegisterOptional(check("remote-quotes", errors.New("circuit breaker open"))))

	res := r.CheckAll(context.Background())

	assert.Equal(t, &CheckResult{Status: HealthStatusUnhealthy, Optional: true, Message: "circuit breaker open", Duration: res.Checks["remote-quotes"].Duration},
		res.Checks["remote-quotes"])
	assert.Equal(t, HealthStatusHealthy, res.Checks["storage"].Status)
	assert.Empty(t, res.Checks["storage"].Message)
	assert.False(t, res.Checks["storage"].Optional)
}

func TestRegistry_ChecksRunConcurrently(t *testing.T) {
	var running, peak atomic.Int32

	slow := func(context.Context) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}

		time.Sleep(20 * time.Millisecond)
		running.Add(-1)

		return nil
	}

	r := NewHealthRegistry()
	require.NoError(t, r.Register(CheckerFunc{CheckerName: "a", Fn: slow}))
	require.NoError(t, r.Register(CheckerFunc{CheckerName: "b", Fn: slow}))
	require.NoError(t, r.Register(CheckerFunc{CheckerName: "c", Fn: slow}))

	r.CheckAll(context.Background())

	assert.Greater(t, peak.Load(), int32(1))
}

func TestRegistry_PassesContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewHealthRegistry()
	require.NoError(t, r.Register(CheckerFunc{CheckerName: "storage", Fn: func(ctx context.Context) error {
		return ctx.Err()
	}}))

	res := r.CheckAll(ctx)

	assert.Equal(t, HealthStatusUnhealthy, res.Status)
	assert.Equal(t, context.Canceled.Error(), res.Checks["storage"].Message)
}

func TestCheckerFunc_NilFnPasses(t *testing.T) {
	c := CheckerFunc{CheckerName: "noop"}

	assert.Equal(t, "noop", c.Name())
	assert.NoError(t, c.Check(context.Background()))
}
