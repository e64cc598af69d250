// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sampling

import (
	"context"
	"errors"
	"time"

	"github.com/relabs-tech/activity_classifier/internal/activity"
	"github.com/relabs-tech/activity_classifier/internal/imu"
)

var (
	ErrBudgetDenied      = errors.New("execution budget denied")
	ErrBudgetExpired     = errors.New("execution budget expired")
	ErrHardware          = errors.New("hardware sample source failed")
	ErrCancelled         = errors.New("classification cancelled")
	ErrCycleInProgress   = errors.New("classification cycle already in progress")
	ErrIllegalTransition = errors.New("illegal state transition")
)

// Classifier scores one sample window. It is treated as a pure function and
// is never retried.
type Classifier interface {
	// SampleRate is the rate in Hz the classifier expects its input at.
	SampleRate() float64
	// WindowDuration is the span a buffer must cover before classification.
	WindowDuration() time.Duration
	Classify(buf *imu.Buffer) (map[activity.Type]float64, error)
}

// Grant is an exclusively owned, time-bounded permission to keep working.
type Grant interface {
	ID() string
	// Expiring is closed when the grant is about to expire or was revoked.
	Expiring() <-chan struct{}
}

// BudgetHost hands out execution-budget grants.
type BudgetHost interface {
	RequestGrant(ctx context.Context) (Grant, error)
	ExtendGrant(g Grant) error
	ReleaseGrant(g Grant)
}

// SampleSource is a push-based accelerometer feed.
type SampleSource interface {
	Start(rate float64) error
	Stop() error
	Samples() <-chan imu.Sample
	Errors() <-chan error
}

// Executor runs report callbacks on the consumer-facing goroutine.
type Executor interface {
	Dispatch(fn func())
}

// inlineExecutor runs callbacks on the calling goroutine.
type inlineExecutor struct{}

func (inlineExecutor) Dispatch(fn func()) { fn() }
