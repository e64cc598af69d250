// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sampling drives one classification cycle at a time: it holds an
// execution-budget grant, fills sample windows from the hardware feed, runs
// the classifier on each, and feeds the results into a prediction.Aggregator
// until the aggregator reports a final decision or the cycle faults.
package sampling

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/activity_classifier/internal/activity"
	"github.com/relabs-tech/activity_classifier/internal/imu"
	"github.com/relabs-tech/activity_classifier/internal/prediction"
	"github.com/relabs-tech/activity_classifier/internal/timeutil"
)

// Config tunes a Controller.
type Config struct {
	Thresholds prediction.Thresholds

	// RoundTimeout bounds how long one window may take to fill. Zero means
	// four times the classifier window.
	RoundTimeout time.Duration

	// Oversample multiplies the classifier sample rate when starting the
	// hardware feed. Zero means 2.
	Oversample float64
}

// Outcome is the terminal report of one cycle.
type Outcome struct {
	CycleID     string                  `json:"cycle_id"`
	State       State                   `json:"state"`
	Decision    activity.Predicted      `json:"decision"`
	Rounds      int                     `json:"rounds"`
	Predictions []prediction.Prediction `json:"predictions,omitempty"`
	Err         error                   `json:"-"`
	Error       string                  `json:"error,omitempty"`
	StartedAt   time.Time               `json:"started_at"`
	FinishedAt  time.Time               `json:"finished_at"`
}

// ReportFunc receives a cycle's Outcome exactly once.
type ReportFunc func(Outcome)

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the wall clock used for timeouts and timestamps.
func WithClock(clock timeutil.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithExecutor sets where report callbacks run. By default they run on the
// cycle's worker goroutine.
func WithExecutor(exec Executor) Option {
	return func(c *Controller) { c.exec = exec }
}

// Controller owns the sampling lifecycle. Only one cycle runs at a time.
type Controller struct {
	cfg        Config
	classifier Classifier
	budget     BudgetHost
	source     SampleSource
	clock      timeutil.Clock
	exec       Executor

	mu      sync.Mutex
	current *Cycle
	last    *Cycle
}

// NewController wires a controller to its collaborators.
func NewController(cfg Config, classifier Classifier, budget BudgetHost, source SampleSource, opts ...Option) *Controller {
	if cfg.Oversample <= 0 {
		cfg.Oversample = 2
	}
	c := &Controller{
		cfg:        cfg,
		classifier: classifier,
		budget:     budget,
		source:     source,
		clock:      timeutil.RealClock{},
		exec:       inlineExecutor{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cycle is a handle on one running or finished classification cycle.
type Cycle struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	state   State
	rounds  int
	outcome Outcome
}

func (cy *Cycle) ID() string { return cy.id }

func (cy *Cycle) State() State {
	cy.mu.Lock()
	defer cy.mu.Unlock()
	return cy.state
}

// Rounds returns how many predictions the cycle has produced so far.
func (cy *Cycle) Rounds() int {
	cy.mu.Lock()
	defer cy.mu.Unlock()
	return cy.rounds
}

// Done is closed once the cycle is terminal and its grant released.
func (cy *Cycle) Done() <-chan struct{} { return cy.done }

// Outcome returns the terminal report. It is only meaningful after Done.
func (cy *Cycle) Outcome() Outcome {
	cy.mu.Lock()
	defer cy.mu.Unlock()
	return cy.outcome
}

// Cancel requests an immediate fault. Safe to call repeatedly.
func (cy *Cycle) Cancel() { cy.cancel() }

func (cy *Cycle) transition(next State) error {
	cy.mu.Lock()
	defer cy.mu.Unlock()
	if !cy.state.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, cy.state, next)
	}
	cy.state = next
	return nil
}

// Start begins a new cycle and returns immediately. report, if non-nil, is
// called once with the outcome via the controller's Executor.
func (c *Controller) Start(ctx context.Context, report ReportFunc) (*Cycle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		return nil, fmt.Errorf("%w: %s", ErrCycleInProgress, c.current.id)
	}

	ctx, cancel := context.WithCancel(ctx)
	cy := &Cycle{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StateIdle,
	}
	if err := cy.transition(StateRequesting); err != nil {
		cancel()
		return nil, err
	}
	c.current = cy

	go c.run(ctx, cy, report)
	return cy, nil
}

// Classify runs one cycle and waits for it to finish. Cancelling ctx faults
// the cycle; the outcome is still returned.
func (c *Controller) Classify(ctx context.Context) (Outcome, error) {
	cy, err := c.Start(ctx, nil)
	if err != nil {
		return Outcome{}, err
	}
	<-cy.Done()
	return cy.Outcome(), nil
}

// Cancel faults the running cycle, if any. It is a no-op otherwise.
func (c *Controller) Cancel() {
	c.mu.Lock()
	cy := c.current
	c.mu.Unlock()
	if cy != nil {
		cy.Cancel()
	}
}

// State returns the running cycle's state, or StateIdle between cycles.
func (c *Controller) State() State {
	c.mu.Lock()
	cy := c.current
	c.mu.Unlock()
	if cy == nil {
		return StateIdle
	}
	return cy.State()
}

// Last returns the most recently finished cycle.
func (c *Controller) Last() (*Cycle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.last != nil
}

func (c *Controller) run(ctx context.Context, cy *Cycle, report ReportFunc) {
	defer cy.cancel()

	started := c.clock.Now()
	agg := prediction.NewAggregator(c.cfg.Thresholds)
	sourceRunning := false

	grant, err := c.budget.RequestGrant(ctx)
	switch {
	case err != nil && ctx.Err() != nil:
		err = fmt.Errorf("%w: %v", ErrCancelled, err)
	case err != nil && !errors.Is(err, ErrBudgetDenied):
		err = fmt.Errorf("%w: %v", ErrBudgetDenied, err)
	case err == nil:
		err = c.sampleRounds(ctx, cy, agg, grant, &sourceRunning)
	}

	c.finish(cy, agg, grant, sourceRunning, err, started, report)
}

func (c *Controller) sampleRounds(ctx context.Context, cy *Cycle, agg *prediction.Aggregator, grant Grant, sourceRunning *bool) error {
	if err := cy.transition(StateSampling); err != nil {
		return err
	}

	rate := c.classifier.SampleRate() * c.cfg.Oversample
	window := c.classifier.WindowDuration()
	if err := c.source.Start(rate); err != nil {
		return fmt.Errorf("%w: start at %.1f Hz: %v", ErrHardware, rate, err)
	}
	*sourceRunning = true
	log.Printf("sampling: cycle %s sampling at %.1f Hz, window %s", cy.id, rate, window)

	for {
		buf := imu.NewBuffer(int(rate*window.Seconds()) + 1)
		opened := c.clock.Now()
		if err := c.fill(ctx, buf, grant, window); err != nil {
			return err
		}
		if err := c.alive(ctx, grant); err != nil {
			return err
		}

		if err := cy.transition(StateEvaluating); err != nil {
			return err
		}
		p := c.evaluate(buf, window, opened)
		agg.Add(p)

		cy.mu.Lock()
		cy.rounds = agg.Len()
		cy.mu.Unlock()

		if agg.IsComplete() {
			return nil
		}
		if err := c.budget.ExtendGrant(grant); err != nil {
			if !errors.Is(err, ErrBudgetExpired) {
				err = fmt.Errorf("%w: %v", ErrBudgetExpired, err)
			}
			return err
		}
		if err := cy.transition(StateSampling); err != nil {
			return err
		}
	}
}

// fill reads samples into buf until it covers window or the round times out.
// A timed-out round is not an error; evaluate turns it into an unknown vote.
func (c *Controller) fill(ctx context.Context, buf *imu.Buffer, grant Grant, window time.Duration) error {
	timeout := c.cfg.RoundTimeout
	if timeout <= 0 {
		timeout = 4 * window
	}
	expired := make(chan struct{})
	timer := c.clock.AfterFunc(timeout, func() { close(expired) })
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrCancelled, context.Cause(ctx))
		case <-grant.Expiring():
			return fmt.Errorf("%w: grant %s", ErrBudgetExpired, grant.ID())
		case err, ok := <-c.source.Errors():
			if !ok {
				return fmt.Errorf("%w: error feed closed", ErrHardware)
			}
			return fmt.Errorf("%w: %v", ErrHardware, err)
		case s, ok := <-c.source.Samples():
			if !ok {
				return fmt.Errorf("%w: sample feed closed", ErrHardware)
			}
			if err := buf.Append(s); err != nil {
				log.Printf("sampling: dropping sample: %v", err)
				continue
			}
			if buf.DurationCovered() >= window {
				return nil
			}
		case <-expired:
			log.Printf("sampling: round timed out after %s with %d samples covering %s",
				timeout, buf.Len(), buf.DurationCovered())
			return nil
		}
	}
}

func (c *Controller) alive(ctx context.Context, grant Grant) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrCancelled, context.Cause(ctx))
	case <-grant.Expiring():
		return fmt.Errorf("%w: grant %s", ErrBudgetExpired, grant.ID())
	default:
		return nil
	}
}

// evaluate classifies one window. Any per-round failure becomes the unknown
// fallback vote.
func (c *Controller) evaluate(buf *imu.Buffer, window time.Duration, opened time.Time) prediction.Prediction {
	start := buf.ReferenceStart()
	if buf.IsEmpty() {
		start = opened
	}
	if covered := buf.DurationCovered(); covered < window {
		log.Printf("sampling: window covers %s of %s, voting unknown", covered, window)
		return prediction.UnknownFallback(start)
	}

	scores, err := c.classifier.Classify(buf)
	if err != nil {
		log.Printf("sampling: classifier error, voting unknown: %v", err)
		return prediction.UnknownFallback(start)
	}
	p, err := prediction.FromClassifier(start, scores)
	if err != nil {
		log.Printf("sampling: %v, voting unknown", err)
		return prediction.UnknownFallback(start)
	}
	return p
}

func (c *Controller) finish(cy *Cycle, agg *prediction.Aggregator, grant Grant, sourceRunning bool, failure error, started time.Time, report ReportFunc) {
	if sourceRunning {
		if err := c.source.Stop(); err != nil {
			log.Printf("sampling: stopping sample source: %v", err)
		}
	}

	final := StateCompleted
	if failure != nil {
		final = StateFaulted
		if agg.Len() == 0 {
			agg.Add(prediction.UnknownFallback(c.clock.Now()))
		}
	}
	if grant != nil {
		c.budget.ReleaseGrant(grant)
	}

	if err := cy.transition(final); err != nil {
		log.Printf("sampling: cycle %s: %v", cy.id, err)
		if failure == nil {
			failure = err
			if agg.Len() == 0 {
				agg.Add(prediction.UnknownFallback(c.clock.Now()))
			}
		}
		final = StateFaulted
		cy.mu.Lock()
		cy.state = StateFaulted
		cy.mu.Unlock()
	}

	decision, _ := agg.CurrentDecision()
	out := Outcome{
		CycleID:     cy.id,
		State:       final,
		Decision:    decision,
		Rounds:      agg.Len(),
		Predictions: agg.Predictions(),
		Err:         failure,
		StartedAt:   started,
		FinishedAt:  c.clock.Now(),
	}
	if failure != nil {
		out.Error = failure.Error()
		log.Printf("sampling: cycle %s faulted after %d round(s): %v; reporting %s", cy.id, out.Rounds, failure, decision)
	} else {
		log.Printf("sampling: cycle %s completed after %d round(s): %s", cy.id, out.Rounds, decision)
	}

	cy.mu.Lock()
	cy.outcome = out
	cy.rounds = out.Rounds
	cy.mu.Unlock()

	c.mu.Lock()
	if c.current == cy {
		c.current = nil
	}
	c.last = cy
	c.mu.Unlock()

	// Queue the report before Done fires so an executor closed after Done
	// still delivers it.
	if report != nil {
		c.exec.Dispatch(func() { report(out) })
	}
	close(cy.done)
}
