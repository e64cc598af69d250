package sensors

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/activity_classifier/internal/activity"
	"github.com/relabs-tech/activity_classifier/internal/imu"
	"github.com/relabs-tech/activity_classifier/internal/timeutil"
)

type scriptedReader struct {
	mu   sync.Mutex
	raws []imu.IMURaw
	err  error
}

func (r *scriptedReader) ReadRaw() (imu.IMURaw, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return imu.IMURaw{}, r.err
	}
	if len(r.raws) == 0 {
		return imu.IMURaw{Az: 16384}, nil
	}
	raw := r.raws[0]
	r.raws = r.raws[1:]
	return raw, nil
}

func receive(t *testing.T, ch <-chan imu.Sample) imu.Sample {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no sample delivered")
		return imu.Sample{}
	}
}

func TestPollingSourceDeliversConvertedSamples(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	reader := &scriptedReader{raws: []imu.IMURaw{
		{Ax: 8192, Ay: -8192, Az: 16384},
		{Az: 8192},
	}}
	src := NewPollingSource(reader, 0, clock)

	require.NoError(t, src.Start(10))
	defer src.Stop()

	clock.Advance(100 * time.Millisecond)
	s := receive(t, src.Samples())
	assert.InDelta(t, 0.5, s.X, 1e-9)
	assert.InDelta(t, -0.5, s.Y, 1e-9)
	assert.InDelta(t, 1.0, s.Z, 1e-9)
	assert.Equal(t, clock.Now(), s.Timestamp)

	clock.Advance(100 * time.Millisecond)
	s = receive(t, src.Samples())
	assert.InDelta(t, 0.5, s.Z, 1e-9)
}

func TestPollingSourceReportsReadErrors(t *testing.T) {
	clock := timeutil.NewMockClock(time.Now())
	src := NewPollingSource(&scriptedReader{err: errors.New("spi: bus busy")}, 0, clock)

	require.NoError(t, src.Start(50))
	clock.Advance(20 * time.Millisecond)

	select {
	case err := <-src.Errors():
		assert.ErrorContains(t, err, "bus busy")
	case <-time.After(2 * time.Second):
		t.Fatal("no error delivered")
	}
	require.NoError(t, src.Stop())
}

func TestPollingSourceLifecycle(t *testing.T) {
	src := NewPollingSource(&scriptedReader{}, 0, timeutil.NewMockClock(time.Now()))

	assert.Error(t, src.Start(0))
	assert.NoError(t, src.Stop(), "stopping an idle source")

	require.NoError(t, src.Start(25))
	assert.ErrorIs(t, src.Start(25), ErrAlreadyStarted)
	require.NoError(t, src.Stop())
	require.NoError(t, src.Stop())
	require.NoError(t, src.Start(25), "restart after stop")
	require.NoError(t, src.Stop())
}

func TestPollingSourceInvalidRange(t *testing.T) {
	clock := timeutil.NewMockClock(time.Now())
	src := NewPollingSource(&scriptedReader{}, 7, clock)
	require.NoError(t, src.Start(10))
	defer src.Stop()

	clock.Advance(100 * time.Millisecond)
	select {
	case err := <-src.Errors():
		assert.ErrorContains(t, err, "out of range")
	case <-time.After(2 * time.Second):
		t.Fatal("no error delivered")
	}
}

func TestMockReaderProfiles(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	swing := func(kind activity.Type) (lo, hi float64) {
		clock := timeutil.NewMockClock(start)
		r := NewMockReader(kind, 1, clock, 42)
		lo, hi = 10, -10
		for i := 0; i < 100; i++ {
			raw, err := r.ReadRaw()
			require.NoError(t, err)
			s, err := imu.FromRaw(raw, 1, clock.Now())
			require.NoError(t, err)
			m := s.Magnitude()
			lo, hi = min(lo, m), max(hi, m)
			clock.Advance(20 * time.Millisecond)
		}
		return lo, hi
	}

	lo, hi := swing(activity.Stationary)
	assert.InDelta(t, 1.0, lo, 0.02)
	assert.InDelta(t, 1.0, hi, 0.02)

	lo, hi = swing(activity.Running)
	assert.Greater(t, hi-lo, 1.2, "running swings well over a g")

	lo, hi = swing(activity.Walking)
	assert.Greater(t, hi-lo, 0.5)
	assert.Less(t, hi-lo, 1.0)
}

func TestMockReaderIsDeterministic(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := NewMockReader(activity.Bus, 1, timeutil.NewMockClock(start), 7)
	b := NewMockReader(activity.Bus, 1, timeutil.NewMockClock(start), 7)
	for i := 0; i < 10; i++ {
		ra, _ := a.ReadRaw()
		rb, _ := b.ReadRaw()
		assert.Equal(t, ra, rb)
	}
}
