// Package progress defines the event stream the pipeline emits to its
// caller. Every component writes to one sink owned by the orchestrator;
// consumers (CLI, tests) observe it without knowing pipeline internals.
package progress

import "sync"

// Outcome marks a terminal event. OutcomeNone is a plain update.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeSuccess
	OutcomeFailure
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "none"
	}
}

// Event is one progress update. Percent is 0-100 and non-decreasing
// within a stage; it resets to 0 at the start of the next stage.
type Event struct {
	Percent int
	Message string
	Outcome Outcome
}

// Sink receives events. A nil Sink is valid and discards everything.
type Sink func(Event)

// Reporter wraps a Sink and enforces the within-stage ordering
// guarantee: percentages never go backwards until StageReset is called.
type Reporter struct {
	mu    sync.Mutex
	sink  Sink
	floor int
}

// NewReporter creates a Reporter for the given sink. sink may be nil.
func NewReporter(sink Sink) *Reporter {
	return &Reporter{sink: sink}
}

// Report emits a non-terminal event. Percent is clamped to [floor, 100]
// so a late method in a fallback chain cannot move the bar backwards.
func (r *Reporter) Report(percent int, message string) {
	r.mu.Lock()
	if percent < r.floor {
		percent = r.floor
	}
	if percent > 100 {
		percent = 100
	}
	r.floor = percent
	sink := r.sink
	r.mu.Unlock()

	if sink != nil {
		sink(Event{Percent: percent, Message: message})
	}
}

// StageReset drops the percentage floor back to zero. Called by the
// orchestrator at every stage boundary.
func (r *Reporter) StageReset() {
	r.mu.Lock()
	r.floor = 0
	r.mu.Unlock()
}

// Terminal emits the final event for a run. Success carries 100 percent,
// failure and cancellation carry the floor reached so far.
func (r *Reporter) Terminal(outcome Outcome, message string) {
	r.mu.Lock()
	percent := r.floor
	if outcome == OutcomeSuccess {
		percent = 100
	}
	sink := r.sink
	r.mu.Unlock()

	if sink != nil {
		sink(Event{Percent: percent, Message: message, Outcome: outcome})
	}
}

// ChannelSink returns a Sink that forwards events to ch without
// blocking the pipeline; events are dropped when the consumer falls
// behind. Useful when rendering happens on another goroutine.
func ChannelSink(ch chan<- Event) Sink {
	return func(e Event) {
		select {
		case ch <- e:
		default:
		}
	}
}

// Collector is a Sink that records every event, for tests and for
// consumers that render after the fact.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// Sink returns the recording sink of the collector.
func (c *Collector) Sink() Sink {
	return func(e Event) {
		c.mu.Lock()
		c.events = append(c.events, e)
		c.mu.Unlock()
	}
}

// Events returns a copy of everything recorded so far.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}
