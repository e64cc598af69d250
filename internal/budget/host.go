// Package budget implements an execution-budget host: time-bounded, renewable,
// exclusively owned grants with an early expiry warning.
package budget

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/activity_classifier/internal/sampling"
	"github.com/relabs-tech/activity_classifier/internal/timeutil"
)

// Config bounds the grants a Host hands out.
type Config struct {
	GrantDuration time.Duration // lifetime of a fresh or extended grant
	ExpiryWarning time.Duration // how long before the deadline Expiring fires
	MaxExtensions int           // 0 means unlimited
}

func (c Config) withDefaults() Config {
	if c.GrantDuration <= 0 {
		c.GrantDuration = 30 * time.Second
	}
	if c.ExpiryWarning < 0 || c.ExpiryWarning >= c.GrantDuration {
		c.ExpiryWarning = c.GrantDuration / 6
	}
	return c
}

// Host issues at most one grant at a time.
type Host struct {
	cfg   Config
	clock timeutil.Clock

	mu          sync.Mutex
	active      *Grant
	unavailable bool
}

// NewHost returns a Host using clock for deadlines.
func NewHost(cfg Config, clock timeutil.Clock) *Host {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Host{cfg: cfg.withDefaults(), clock: clock}
}

// Grant is a handle returned by RequestGrant.
type Grant struct {
	id         string
	issuedAt   time.Time
	deadline   time.Time
	extensions int
	timer      timeutil.Timer

	expiring chan struct{}
	once     sync.Once
}

func (g *Grant) ID() string { return g.id }

func (g *Grant) Expiring() <-chan struct{} { return g.expiring }

func (g *Grant) expire() {
	g.once.Do(func() { close(g.expiring) })
}

func (g *Grant) expired() bool {
	select {
	case <-g.expiring:
		return true
	default:
		return false
	}
}

// RequestGrant issues a new grant. It fails with sampling.ErrBudgetDenied
// while another grant is held or the host is unavailable.
func (h *Host) RequestGrant(ctx context.Context) (sampling.Grant, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", sampling.ErrBudgetDenied, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.unavailable {
		return nil, fmt.Errorf("%w: host unavailable", sampling.ErrBudgetDenied)
	}
	if h.active != nil {
		return nil, fmt.Errorf("%w: grant %s still held", sampling.ErrBudgetDenied, h.active.id)
	}

	now := h.clock.Now()
	g := &Grant{
		id:       uuid.NewString(),
		issuedAt: now,
		expiring: make(chan struct{}),
	}
	h.arm(g, now)
	h.active = g
	log.Printf("budget: granted %s until %s", g.id, g.deadline.Format(time.RFC3339))
	return g, nil
}

// ExtendGrant pushes the grant's deadline out by a full grant duration.
func (h *Host) ExtendGrant(sg sampling.Grant) error {
	g, ok := sg.(*Grant)
	if !ok {
		return fmt.Errorf("%w: foreign grant %T", sampling.ErrBudgetDenied, sg)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.active != g {
		return fmt.Errorf("%w: grant %s is not active", sampling.ErrBudgetExpired, g.id)
	}
	if g.expired() {
		return fmt.Errorf("%w: grant %s", sampling.ErrBudgetExpired, g.id)
	}
	if h.cfg.MaxExtensions > 0 && g.extensions >= h.cfg.MaxExtensions {
		return fmt.Errorf("%w: grant %s reached %d extensions", sampling.ErrBudgetExpired, g.id, g.extensions)
	}

	g.timer.Stop()
	g.extensions++
	h.arm(g, h.clock.Now())
	return nil
}

// ReleaseGrant returns the grant to the host. Releasing twice is a no-op.
func (h *Host) ReleaseGrant(sg sampling.Grant) {
	g, ok := sg.(*Grant)
	if !ok || g == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	g.timer.Stop()
	if h.active == g {
		h.active = nil
		log.Printf("budget: released %s after %d extension(s)", g.id, g.extensions)
	}
}

// Revoke signals expiry on the active grant, if any.
func (h *Host) Revoke() {
	h.mu.Lock()
	g := h.active
	h.mu.Unlock()

	if g == nil {
		return
	}
	log.Printf("budget: revoking %s", g.id)
	g.expire()
}

// SetAvailable controls whether new grants can be issued.
func (h *Host) SetAvailable(available bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unavailable = !available
}

// Active returns the ID of the held grant.
func (h *Host) Active() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active == nil {
		return "", false
	}
	return h.active.id, true
}

// arm sets a fresh deadline and schedules the expiry warning. Caller holds h.mu.
func (h *Host) arm(g *Grant, now time.Time) {
	g.deadline = now.Add(h.cfg.GrantDuration)
	g.timer = h.clock.AfterFunc(h.cfg.GrantDuration-h.cfg.ExpiryWarning, func() {
		log.Printf("budget: grant %s about to expire", g.id)
		g.expire()
	})
}
