package report

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/activity_classifier/internal/activity"
	"github.com/relabs-tech/activity_classifier/internal/sampling"
)

var finished = time.Date(2026, 7, 14, 18, 0, 0, 0, time.UTC)

func completed() sampling.Outcome {
	return sampling.Outcome{
		CycleID:    "c-1",
		State:      sampling.StateCompleted,
		Decision:   activity.Predicted{Type: activity.Cycling, Confidence: 0.8},
		Rounds:     8,
		FinishedAt: finished,
	}
}

type doneToken struct {
	err     error
	timeout bool
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu    sync.Mutex
	sent  []published
	token doneToken
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return c.token
}

func TestMQTTPublisherPublishesRetainedDecision(t *testing.T) {
	client := &fakeClient{}
	pub := NewMQTTPublisher(client, "activity/decision")

	require.NoError(t, pub.Publish(completed()))
	require.Len(t, client.sent, 1)
	assert.Equal(t, "activity/decision", client.sent[0].topic)
	assert.True(t, client.sent[0].retained)

	assert.JSONEq(t, `{
		"cycle_id": "c-1",
		"activity": "cycling",
		"confidence": 0.8,
		"glyph": "🚲",
		"state": "completed",
		"rounds": 8,
		"at": "2026-07-14T18:00:00Z"
	}`, string(client.sent[0].payload))

	var back Decision
	require.NoError(t, json.Unmarshal(client.sent[0].payload, &back))
	if diff := cmp.Diff(NewDecision(completed()), back); diff != "" {
		t.Errorf("decision round trip (-want +got):\n%s", diff)
	}
}

func TestMQTTPublisherErrors(t *testing.T) {
	pub := NewMQTTPublisher(&fakeClient{token: doneToken{err: errors.New("not connected")}}, "t")
	assert.ErrorContains(t, pub.Publish(completed()), "not connected")

	pub = NewMQTTPublisher(&fakeClient{token: doneToken{timeout: true}}, "t")
	assert.ErrorContains(t, pub.Publish(completed()), "timed out")

	// Report only logs.
	pub.Report(completed())
}

func TestDecisionLine(t *testing.T) {
	d := NewDecision(completed())
	assert.Equal(t, "[ACT ] 🚲 cycling    conf=0.80 rounds= 8 state=completed", d.Line())

	out := completed()
	out.State = sampling.StateFaulted
	out.Decision = activity.Predicted{Type: activity.Unknown, Confidence: 1}
	out.Error = "budget expired"
	assert.Contains(t, NewDecision(out).Line(), "error=budget expired")
}

func TestFanout(t *testing.T) {
	var got []string
	report := Fanout(
		func(o sampling.Outcome) { got = append(got, "a:"+o.CycleID) },
		nil,
		func(o sampling.Outcome) { got = append(got, "b:"+o.CycleID) },
	)
	report(completed())
	assert.Equal(t, []string{"a:c-1", "b:c-1"}, got)
}

func TestDispatcherRunsInOrderOnOneGoroutine(t *testing.T) {
	d := NewDispatcher(4)

	var (
		mu     sync.Mutex
		order  []int
		active int
		peak   int
	)
	for i := 0; i < 20; i++ {
		i := i
		d.Dispatch(func() {
			mu.Lock()
			active++
			peak = max(peak, active)
			order = append(order, i)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		})
	}
	d.Close()

	require.Len(t, order, 20)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 1, peak)
}

func TestDispatcherSurvivesPanicsAndClose(t *testing.T) {
	d := NewDispatcher(1)
	ran := make(chan struct{})
	d.Dispatch(func() { panic("boom") })
	d.Dispatch(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("callback after panic never ran")
	}

	d.Close()
	d.Close()
	d.Dispatch(func() { t.Error("dispatched after close") })
}
