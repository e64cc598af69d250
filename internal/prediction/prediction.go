// Package prediction wraps classifier output and aggregates it across
// sampling rounds into one decision.
package prediction

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/relabs-tech/activity_classifier/internal/activity"
)

// ErrInvalidClassifierOutput is returned when a classifier result is empty or
// holds confidences outside [0,1].
var ErrInvalidClassifierOutput = errors.New("invalid classifier output")

// Prediction is the result of one classifier invocation.
type Prediction struct {
	StartedAt  time.Time            `json:"started_at"`
	Activities []activity.Predicted `json:"activities"`
}

// FromClassifier builds a Prediction from raw class confidences. Activities
// are ordered by confidence, highest first, ties broken by declaration order.
func FromClassifier(start time.Time, scores map[activity.Type]float64) (Prediction, error) {
	if len(scores) == 0 {
		return Prediction{}, fmt.Errorf("%w: no classes scored", ErrInvalidClassifierOutput)
	}
	out := make([]activity.Predicted, 0, len(scores))
	for typ, conf := range scores {
		pa := activity.Predicted{Type: typ, Confidence: conf}
		if !pa.Valid() {
			return Prediction{}, fmt.Errorf("%w: %s=%v", ErrInvalidClassifierOutput, typ, conf)
		}
		out = append(out, pa)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Type < out[j].Type
	})
	return Prediction{StartedAt: start, Activities: out}, nil
}

// UnknownFallback is the neutral vote used when no real classification is
// available for a round.
func UnknownFallback(start time.Time) Prediction {
	return Prediction{
		StartedAt:  start,
		Activities: []activity.Predicted{{Type: activity.Unknown, Confidence: 1}},
	}
}

// Confidence returns the score given to t, or 0 when t was not scored.
func (p Prediction) Confidence(t activity.Type) float64 {
	for _, a := range p.Activities {
		if a.Type == t {
			return a.Confidence
		}
	}
	return 0
}

// Top returns the highest-scored activity.
func (p Prediction) Top() activity.Predicted {
	if len(p.Activities) == 0 {
		return activity.Predicted{Type: activity.Unknown}
	}
	best := p.Activities[0]
	for _, a := range p.Activities[1:] {
		if a.Confidence > best.Confidence {
			best = a
		}
	}
	return best
}

// IsFallback reports whether p is exactly the unknown fallback vote.
func (p Prediction) IsFallback() bool {
	return len(p.Activities) == 1 &&
		p.Activities[0].Type == activity.Unknown &&
		p.Activities[0].Confidence == 1
}
