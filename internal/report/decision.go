package report

import (
	"fmt"
	"time"

	"github.com/relabs-tech/activity_classifier/internal/activity"
	"github.com/relabs-tech/activity_classifier/internal/sampling"
)

// Decision is the wire form of a cycle outcome, published on the decision
// topic and pushed to web clients.
type Decision struct {
	CycleID    string         `json:"cycle_id"`
	Activity   activity.Type  `json:"activity"`
	Confidence float64        `json:"confidence"`
	Glyph      string         `json:"glyph"`
	State      sampling.State `json:"state"`
	Rounds     int            `json:"rounds"`
	Error      string         `json:"error,omitempty"`
	At         time.Time      `json:"at"`
}

// NewDecision summarizes out.
func NewDecision(out sampling.Outcome) Decision {
	return Decision{
		CycleID:    out.CycleID,
		Activity:   out.Decision.Type,
		Confidence: out.Decision.Confidence,
		Glyph:      out.Decision.Type.Glyph(),
		State:      out.State,
		Rounds:     out.Rounds,
		Error:      out.Error,
		At:         out.FinishedAt,
	}
}

// Line formats d for the console.
func (d Decision) Line() string {
	line := fmt.Sprintf("[ACT ] %s %-10s conf=%.2f rounds=%2d state=%s",
		d.Glyph, d.Activity, d.Confidence, d.Rounds, d.State)
	if d.Error != "" {
		line += " error=" + d.Error
	}
	return line
}

// Fanout returns a report func that passes each outcome to every sink in
// order.
func Fanout(sinks ...sampling.ReportFunc) sampling.ReportFunc {
	return func(out sampling.Outcome) {
		for _, sink := range sinks {
			if sink != nil {
				sink(out)
			}
		}
	}
}
