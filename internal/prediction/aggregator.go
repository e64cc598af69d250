package prediction

import (
	"github.com/relabs-tech/activity_classifier/internal/activity"
)

const (
	HighConfidenceThreshold         = 0.75
	MinimumSampleCountForSuccess    = 8
	MaximumSampleCountBeforeFailure = 15
)

// Thresholds control when an Aggregator considers its decision final.
type Thresholds struct {
	HighConfidence float64
	MinPredictions int
	MaxPredictions int
}

// DefaultThresholds returns the stock stopping rules.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighConfidence: HighConfidenceThreshold,
		MinPredictions: MinimumSampleCountForSuccess,
		MaxPredictions: MaximumSampleCountBeforeFailure,
	}
}

// Aggregator combines a growing list of Predictions with confidence-weighted
// voting. It is not safe for concurrent use.
type Aggregator struct {
	thresholds  Thresholds
	predictions []Prediction

	decision *activity.Predicted
}

// NewAggregator returns an empty aggregator. Zero-valued thresholds fall back
// to the defaults.
func NewAggregator(th Thresholds) *Aggregator {
	def := DefaultThresholds()
	if th.HighConfidence <= 0 {
		th.HighConfidence = def.HighConfidence
	}
	if th.MinPredictions <= 0 {
		th.MinPredictions = def.MinPredictions
	}
	if th.MaxPredictions <= 0 {
		th.MaxPredictions = def.MaxPredictions
	}
	if th.MaxPredictions < th.MinPredictions {
		th.MaxPredictions = th.MinPredictions
	}
	return &Aggregator{thresholds: th}
}

func (a *Aggregator) Thresholds() Thresholds { return a.thresholds }

// Add appends p and invalidates the cached decision.
func (a *Aggregator) Add(p Prediction) {
	a.predictions = append(a.predictions, p)
	a.decision = nil
}

func (a *Aggregator) Len() int { return len(a.predictions) }

// Predictions returns the accumulated predictions in insertion order.
func (a *Aggregator) Predictions() []Prediction {
	out := make([]Prediction, len(a.predictions))
	copy(out, a.predictions)
	return out
}

// Reset discards all predictions.
func (a *Aggregator) Reset() {
	a.predictions = nil
	a.decision = nil
}

// CurrentDecision sums each class's confidence over all predictions (absent
// classes add 0) and divides by the prediction count. The top class wins;
// on a tie the class seen first in insertion order is kept. Within one
// prediction activities are ordered by confidence, then by enum order, so
// equal scores resolve to the earlier activity.Type (walking before cycling).
func (a *Aggregator) CurrentDecision() (activity.Predicted, bool) {
	if len(a.predictions) == 0 {
		return activity.Predicted{}, false
	}
	if a.decision != nil {
		return *a.decision, true
	}

	var order []activity.Type
	sums := make(map[activity.Type]float64)
	for _, p := range a.predictions {
		for _, pa := range p.Activities {
			if _, seen := sums[pa.Type]; !seen {
				order = append(order, pa.Type)
			}
			sums[pa.Type] += pa.Confidence
		}
	}

	n := float64(len(a.predictions))
	best := activity.Predicted{Type: activity.Unknown, Confidence: -1}
	for _, typ := range order {
		if score := sums[typ] / n; score > best.Confidence {
			best = activity.Predicted{Type: typ, Confidence: score}
		}
	}
	if best.Confidence < 0 {
		// every prediction was empty
		best = activity.Predicted{Type: activity.Unknown, Confidence: 0}
	}
	a.decision = &best
	return best, true
}

// IsComplete reports whether the decision is final: never before the minimum
// prediction count, always at the maximum, otherwise once the decision is
// confident enough.
func (a *Aggregator) IsComplete() bool {
	n := len(a.predictions)
	if n < a.thresholds.MinPredictions {
		return false
	}
	if n >= a.thresholds.MaxPredictions {
		return true
	}
	d, _ := a.CurrentDecision()
	return d.Confidence >= a.thresholds.HighConfidence
}
