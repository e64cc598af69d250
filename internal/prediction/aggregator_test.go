package prediction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/activity_classifier/internal/activity"
)

func mustPredict(t *testing.T, scores map[activity.Type]float64) Prediction {
	t.Helper()
	p, err := FromClassifier(t0, scores)
	require.NoError(t, err)
	return p
}

func TestAggregatorEmpty(t *testing.T) {
	agg := NewAggregator(Thresholds{})
	_, ok := agg.CurrentDecision()
	assert.False(t, ok)
	assert.False(t, agg.IsComplete())
	assert.Equal(t, DefaultThresholds(), agg.Thresholds())
}

func TestAggregatorMinimumEvidence(t *testing.T) {
	agg := NewAggregator(DefaultThresholds())
	for i := 1; i < MinimumSampleCountForSuccess; i++ {
		agg.Add(mustPredict(t, map[activity.Type]float64{activity.Rail: 1}))
		assert.False(t, agg.IsComplete(), "complete after %d predictions", i)
	}
	d, ok := agg.CurrentDecision()
	require.True(t, ok)
	assert.Equal(t, activity.Predicted{Type: activity.Rail, Confidence: 1}, d)
}

func TestAggregatorHighConfidenceExit(t *testing.T) {
	agg := NewAggregator(DefaultThresholds())
	scores := map[activity.Type]float64{activity.Cycling: 0.8, activity.Automotive: 0.2}
	for i := 1; i <= MinimumSampleCountForSuccess; i++ {
		agg.Add(mustPredict(t, scores))
		if i < MinimumSampleCountForSuccess {
			assert.False(t, agg.IsComplete())
		}
	}
	assert.True(t, agg.IsComplete())

	d, ok := agg.CurrentDecision()
	require.True(t, ok)
	assert.Equal(t, activity.Cycling, d.Type)
	assert.InDelta(t, 0.8, d.Confidence, 1e-9)
}

func TestAggregatorForcedExit(t *testing.T) {
	agg := NewAggregator(DefaultThresholds())
	scores := map[activity.Type]float64{
		activity.Cycling: 0.4,
		activity.Walking: 0.4,
		activity.Unknown: 0.2,
	}
	for i := 1; i <= MaximumSampleCountBeforeFailure; i++ {
		agg.Add(mustPredict(t, scores))
		if i < MaximumSampleCountBeforeFailure {
			require.False(t, agg.IsComplete(), "complete early at %d", i)
		}
	}
	assert.True(t, agg.IsComplete())

	d, _ := agg.CurrentDecision()
	assert.Equal(t, activity.Walking, d.Type, "walking sorts before cycling on equal confidence")
	assert.InDelta(t, 0.4, d.Confidence, 1e-9)
}

func TestAggregatorTerminatesForAnyInput(t *testing.T) {
	inputs := []map[activity.Type]float64{
		{activity.Unknown: 0},
		{activity.Walking: 0.1},
		{activity.Bus: 0.74, activity.Rail: 0.26},
		{activity.Aviation: 0.5, activity.Stationary: 0.5},
	}
	for _, scores := range inputs {
		agg := NewAggregator(DefaultThresholds())
		n := 0
		for !agg.IsComplete() {
			agg.Add(mustPredict(t, scores))
			n++
			require.LessOrEqual(t, n, MaximumSampleCountBeforeFailure)
		}
	}
}

func TestAggregatorTieBreakPrefersFirstAdded(t *testing.T) {
	for run := 0; run < 50; run++ {
		agg := NewAggregator(DefaultThresholds())
		agg.Add(mustPredict(t, map[activity.Type]float64{activity.Running: 0.9}))
		agg.Add(mustPredict(t, map[activity.Type]float64{activity.Walking: 0.9}))

		d, ok := agg.CurrentDecision()
		require.True(t, ok)
		assert.Equal(t, activity.Running, d.Type)
		assert.InDelta(t, 0.45, d.Confidence, 1e-9)
	}

	agg := NewAggregator(DefaultThresholds())
	agg.Add(mustPredict(t, map[activity.Type]float64{activity.Walking: 0.9}))
	agg.Add(mustPredict(t, map[activity.Type]float64{activity.Running: 0.9}))
	d, _ := agg.CurrentDecision()
	assert.Equal(t, activity.Walking, d.Type)
}

func TestAggregatorAbsentClassesCountAsZero(t *testing.T) {
	agg := NewAggregator(DefaultThresholds())
	agg.Add(mustPredict(t, map[activity.Type]float64{activity.Bus: 1}))
	agg.Add(mustPredict(t, map[activity.Type]float64{activity.Automotive: 0.6, activity.Bus: 0.4}))
	agg.Add(mustPredict(t, map[activity.Type]float64{activity.Automotive: 0.9}))

	d, _ := agg.CurrentDecision()
	assert.Equal(t, activity.Automotive, d.Type)
	assert.InDelta(t, 0.5, d.Confidence, 1e-9)
}

func TestAggregatorGracefulFallback(t *testing.T) {
	agg := NewAggregator(DefaultThresholds())
	for i := 1; i <= MinimumSampleCountForSuccess; i++ {
		agg.Add(UnknownFallback(t0))
		assert.Equal(t, i == MinimumSampleCountForSuccess, agg.IsComplete())
	}
	d, _ := agg.CurrentDecision()
	assert.Equal(t, activity.Predicted{Type: activity.Unknown, Confidence: 1}, d)
}

func TestAggregatorDecisionInvalidatedOnAdd(t *testing.T) {
	agg := NewAggregator(DefaultThresholds())
	agg.Add(mustPredict(t, map[activity.Type]float64{activity.Walking: 1}))
	d, _ := agg.CurrentDecision()
	assert.Equal(t, activity.Walking, d.Type)

	agg.Add(mustPredict(t, map[activity.Type]float64{activity.Cycling: 1}))
	agg.Add(mustPredict(t, map[activity.Type]float64{activity.Cycling: 1}))
	d, _ = agg.CurrentDecision()
	assert.Equal(t, activity.Cycling, d.Type)
	assert.InDelta(t, 2.0/3.0, d.Confidence, 1e-9)
	assert.Len(t, agg.Predictions(), 3)

	agg.Reset()
	assert.Zero(t, agg.Len())
	_, ok := agg.CurrentDecision()
	assert.False(t, ok)
}

func TestAggregatorCustomThresholds(t *testing.T) {
	agg := NewAggregator(Thresholds{HighConfidence: 0.5, MinPredictions: 2, MaxPredictions: 3})
	agg.Add(mustPredict(t, map[activity.Type]float64{activity.Stationary: 0.6}))
	assert.False(t, agg.IsComplete())
	agg.Add(mustPredict(t, map[activity.Type]float64{activity.Stationary: 0.6}))
	assert.True(t, agg.IsComplete())

	clamped := NewAggregator(Thresholds{MinPredictions: 10, MaxPredictions: 4})
	assert.Equal(t, 10, clamped.Thresholds().MaxPredictions)
}
