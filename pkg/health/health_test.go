package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runTimes(p *probe, n int) {
	for range n {
		p.run(context.Background())
	}
}

func TestProbe_FailureThreshold(t *testing.T) {
	p := newProbe("db", time.Second, func(context.Context) error {
		return errors.New("connection refused")
	})

	runTimes(p, 2)
	_, failed := p.failure()
	assert.False(t, failed, "two failures stay under the threshold")

	runTimes(p, 1)
	msg, failed := p.failure()
	require.True(t, failed, "third consecutive failure trips the probe")
	assert.Equal(t, "connection refused", msg)
}

func TestProbe_RecoveryThreshold(t *testing.T) {
	healthy := false
	p := newProbe("db", time.Second, func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("down")
	})

	runTimes(p, 3)
	_, failed := p.failure()
	require.True(t, failed)

	healthy = true
	runTimes(p, 1)
	_, failed = p.failure()
	assert.False(t, failed, "one success restores health")
}

func TestProbe_InterleavedFailuresDoNotAccumulate(t *testing.T) {
	i := 0
	p := newProbe("flaky", time.Second, func(context.Context) error {
		i++
		if i%2 == 0 {
			return nil
		}
		return errors.New("blip")
	})

	runTimes(p, 10)
	_, failed := p.failure()
	assert.False(t, failed, "non-consecutive failures never trip the threshold")
}

func TestProbe_TimeoutReachesCheck(t *testing.T) {
	p := newProbe("slow", 10*time.Millisecond, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})

	runTimes(p, 3)
	msg, failed := p.failure()
	require.True(t, failed)
	assert.Contains(t, msg, "context deadline exceeded")
}

func TestHealth_StartsNotReady(t *testing.T) {
	h := New()
	assert.False(t, h.IsReady())

	h.SetReady(true)
	assert.True(t, h.IsReady())

	h.SetReady(false)
	assert.False(t, h.IsReady())
}

func TestHealth_ReadinessProbeGatesIsReady(t *testing.T) {
	h := New()
	h.AddReadinessCheck("db", time.Second, func(context.Context) error {
		return errors.New("down")
	})
	h.SetReady(true)

	// Probes have not run yet; the optimistic initial state counts as passing.
	assert.True(t, h.IsReady())

	h.mu.RLock()
	p := h.readiness[0]
	h.mu.RUnlock()
	runTimes(p, 3)

	assert.False(t, h.IsReady())
}

func TestLiveEndpoint(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, func(context.Context) error {
		return errors.New("too many goroutines")
	})

	rec := httptest.NewRecorder()
	h.LiveEndpoint(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	require.Equal(t, http.StatusOK, rec.Code, "untripped probes report healthy")
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	h.mu.RLock()
	p := h.liveness[0]
	h.mu.RUnlock()
	runTimes(p, 3)

	rec = httptest.NewRecorder()
	h.LiveEndpoint(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"goroutines":"too many goroutines"}}`, rec.Body.String())
}

func TestReadyEndpoint_ManualGate(t *testing.T) {
	h := New()

	rec := httptest.NewRecorder()
	h.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"_readiness":"service is not ready"}}`, rec.Body.String())

	h.SetReady(true)
	rec = httptest.NewRecorder()
	h.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealth_StartRunsProbesImmediately(t *testing.T) {
	h := New()
	ran := make(chan struct{})
	h.AddReadinessCheck("db", time.Second, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})

	h.Start(context.Background(), time.Hour)
	defer h.Stop()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("probe did not run at startup")
	}
}

func TestHealth_StopIsIdempotent(t *testing.T) {
	h := New()
	h.AddLivenessCheck("noop", time.Second, func(context.Context) error { return nil })
	h.Start(context.Background(), time.Hour)

	h.Stop()
	h.Stop()
}
