package app

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/activity_classifier/internal/activity"
	"github.com/relabs-tech/activity_classifier/internal/config"
	"github.com/relabs-tech/activity_classifier/internal/imu"
	"github.com/relabs-tech/activity_classifier/internal/sampling"
	"github.com/relabs-tech/activity_classifier/internal/sensors"
	"github.com/relabs-tech/activity_classifier/internal/store"
	"github.com/relabs-tech/activity_classifier/internal/timeutil"
)

func benchConfig() *config.Config {
	cfg := config.Default()
	cfg.UseMockIMU = true
	cfg.MockActivity = activity.Stationary
	cfg.ClassifierWindowMS = 200
	cfg.MinPredictions = 2
	cfg.MaxPredictions = 3
	cfg.CycleIntervalMS = 0
	return cfg
}

type outcomes struct {
	mu  sync.Mutex
	all []sampling.Outcome
}

func (o *outcomes) record(out sampling.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.all = append(o.all, out)
}

func TestPipelineRunsCyclesEndToEnd(t *testing.T) {
	cfg := benchConfig()
	st, err := store.Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer st.Close()

	source, err := openSource(cfg)
	require.NoError(t, err)

	var got outcomes
	p := newPipeline(cfg, source, nil, got.record, storeSink(st), logSink)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	require.NoError(t, p.runner.run(ctx, 2))
	// Each report is queued before its cycle's Done fires; close drains them.
	p.close()

	require.Len(t, got.all, 2)
	for _, out := range got.all {
		assert.Equal(t, sampling.StateCompleted, out.State, out.Error)
		assert.Equal(t, activity.Stationary, out.Decision.Type)
		assert.GreaterOrEqual(t, out.Rounds, cfg.MinPredictions)
		assert.LessOrEqual(t, out.Rounds, cfg.MaxPredictions)
	}
	assert.NotEqual(t, got.all[0].CycleID, got.all[1].CycleID)

	cycles, err := st.ListCycles(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, cycles, 2)

	_, held := p.host.Active()
	assert.False(t, held)
}

func TestPipelineRevokedGrantFaults(t *testing.T) {
	cfg := benchConfig()
	cfg.RoundTimeoutMS = 10000
	source := sensors.NewPollingSource(stalledReader{}, 1, timeutil.NewMockClock(time.Now()))

	var got outcomes
	p := newPipeline(cfg, source, nil, got.record)
	defer p.close()

	done := make(chan error, 1)
	go func() { done <- p.runner.run(context.Background(), 1) }()

	require.Eventually(t, func() bool { _, held := p.host.Active(); return held }, 2*time.Second, time.Millisecond)
	p.host.Revoke()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not fault after revocation")
	}
	p.dispatcher.Close()

	require.Len(t, got.all, 1)
	assert.Equal(t, sampling.StateFaulted, got.all[0].State)
	assert.Equal(t, activity.Predicted{Type: activity.Unknown, Confidence: 1}, got.all[0].Decision)
}

func TestCycleRunnerStopsOnCancel(t *testing.T) {
	cfg := benchConfig()
	cfg.CycleIntervalMS = 3600000
	source, err := openSource(cfg)
	require.NoError(t, err)

	var got outcomes
	p := newPipeline(cfg, source, nil, got.record)
	clock := timeutil.NewMockClock(time.Now())
	p.runner.clock = clock
	defer p.close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.runner.run(ctx, 0) }()

	// The runner parks in its pause once the first cycle finishes.
	require.Eventually(t, func() bool { return clock.PendingTimers() == 1 }, 10*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner ignored cancellation")
	}
}

// stalledReader is only ever polled by a clock that never advances, so the
// source it backs delivers nothing.
type stalledReader struct{}

func (stalledReader) ReadRaw() (imu.IMURaw, error) { return imu.IMURaw{Az: 8192}, nil }
