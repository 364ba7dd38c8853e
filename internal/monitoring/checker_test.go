package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/priorauth/internal/config"
	"github.com/sells-group/priorauth/internal/model"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1, LookbackWindowHours: 24, FailureRateThreshold: 0.10}
	checker := NewChecker(newTestCollector(&fakeRuns{}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_Interval(t *testing.T) {
	c := NewChecker(newTestCollector(&fakeRuns{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	assert.Equal(t, DefaultCheckInterval, c.Interval())

	c = NewChecker(nil, nil, config.MonitoringConfig{CheckIntervalSecs: 30})
	assert.Equal(t, 30*time.Second, c.Interval())
}

func TestChecker_CheckSendsAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	var runs []model.Run
	for i := 0; i < 6; i++ {
		runs = append(runs, run(model.StatusFailed, "", 0, time.Hour))
	}
	cfg := config.MonitoringConfig{WebhookURL: ts.URL, LookbackWindowHours: 24, FailureRateThreshold: 0.10}
	checker := NewChecker(newTestCollector(&fakeRuns{runs: runs}), NewAlerter(cfg), cfg)

	snap, alerts := checker.Check(context.Background())
	require.NotNil(t, snap)
	assert.Equal(t, 6, snap.Failed)
	require.Len(t, alerts, 1)
	assert.Equal(t, int32(1), received.Load())
}

func TestChecker_CheckCollectError(t *testing.T) {
	cfg := config.MonitoringConfig{LookbackWindowHours: 24}
	checker := NewChecker(newTestCollector(&fakeRuns{err: assert.AnError}), NewAlerter(cfg), cfg)

	snap, alerts := checker.Check(context.Background())
	assert.Nil(t, snap)
	assert.Nil(t, alerts)
}
