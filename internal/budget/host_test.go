package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/activity_classifier/internal/sampling"
	"github.com/relabs-tech/activity_classifier/internal/timeutil"
)

func newTestHost(t *testing.T, cfg Config) (*Host, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
	return NewHost(cfg, clock), clock
}

func expiring(g sampling.Grant) bool {
	select {
	case <-g.Expiring():
		return true
	default:
		return false
	}
}

func TestGrantExpiryWarning(t *testing.T) {
	t.Parallel()
	h, clock := newTestHost(t, Config{GrantDuration: 10 * time.Second, ExpiryWarning: 2 * time.Second})

	g, err := h.RequestGrant(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, g.ID())

	clock.Advance(7 * time.Second)
	assert.False(t, expiring(g))

	clock.Advance(time.Second)
	assert.True(t, expiring(g), "warning fires at deadline minus lead")

	err = h.ExtendGrant(g)
	assert.True(t, errors.Is(err, sampling.ErrBudgetExpired))
}

func TestGrantIsExclusive(t *testing.T) {
	t.Parallel()
	h, _ := newTestHost(t, Config{})

	g, err := h.RequestGrant(context.Background())
	require.NoError(t, err)

	_, err = h.RequestGrant(context.Background())
	assert.True(t, errors.Is(err, sampling.ErrBudgetDenied))

	id, ok := h.Active()
	assert.True(t, ok)
	assert.Equal(t, g.ID(), id)

	h.ReleaseGrant(g)
	h.ReleaseGrant(g)
	_, ok = h.Active()
	assert.False(t, ok)

	g2, err := h.RequestGrant(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, g.ID(), g2.ID())
}

func TestExtendPushesDeadline(t *testing.T) {
	t.Parallel()
	h, clock := newTestHost(t, Config{GrantDuration: 10 * time.Second, ExpiryWarning: 2 * time.Second})

	g, err := h.RequestGrant(context.Background())
	require.NoError(t, err)

	clock.Advance(6 * time.Second)
	require.NoError(t, h.ExtendGrant(g))
	assert.Equal(t, 1, clock.PendingTimers(), "old warning timer is stopped")

	clock.Advance(6 * time.Second)
	assert.False(t, expiring(g), "12s after issue but only 6s after extension")

	clock.Advance(2 * time.Second)
	assert.True(t, expiring(g))
}

func TestExtensionLimit(t *testing.T) {
	t.Parallel()
	h, _ := newTestHost(t, Config{MaxExtensions: 2})

	g, err := h.RequestGrant(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.ExtendGrant(g))
	require.NoError(t, h.ExtendGrant(g))

	err = h.ExtendGrant(g)
	assert.True(t, errors.Is(err, sampling.ErrBudgetExpired))
}

func TestRevokeAndAvailability(t *testing.T) {
	t.Parallel()
	h, clock := newTestHost(t, Config{})

	h.Revoke()

	g, err := h.RequestGrant(context.Background())
	require.NoError(t, err)
	h.Revoke()
	assert.True(t, expiring(g))
	h.ReleaseGrant(g)
	assert.Zero(t, clock.PendingTimers())

	h.SetAvailable(false)
	_, err = h.RequestGrant(context.Background())
	assert.True(t, errors.Is(err, sampling.ErrBudgetDenied))

	h.SetAvailable(true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.RequestGrant(ctx)
	assert.True(t, errors.Is(err, sampling.ErrBudgetDenied))
}

func TestReleaseStaleGrantKeepsActive(t *testing.T) {
	t.Parallel()
	h, _ := newTestHost(t, Config{})

	g1, err := h.RequestGrant(context.Background())
	require.NoError(t, err)
	h.ReleaseGrant(g1)
	g2, err := h.RequestGrant(context.Background())
	require.NoError(t, err)

	h.ReleaseGrant(g1)
	id, ok := h.Active()
	require.True(t, ok)
	assert.Equal(t, g2.ID(), id)

	assert.True(t, errors.Is(h.ExtendGrant(g1), sampling.ErrBudgetExpired))
}

func TestDefaults(t *testing.T) {
	cfg := Config{GrantDuration: 12 * time.Second, ExpiryWarning: 20 * time.Second}.withDefaults()
	assert.Equal(t, 2*time.Second, cfg.ExpiryWarning)

	cfg = Config{}.withDefaults()
	assert.Equal(t, 30*time.Second, cfg.GrantDuration)
	assert.Equal(t, 5*time.Second, cfg.ExpiryWarning)
}
