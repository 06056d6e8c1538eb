package progress

import "testing"

func TestReporter_MonotonicWithinStage(t *testing.T) {
	var c Collector
	r := NewReporter(c.Sink())

	r.Report(10, "a")
	r.Report(40, "b")
	r.Report(25, "late fallback method") // must not go backwards
	r.Report(60, "c")

	events := c.Events()
	last := -1
	for _, e := range events {
		if e.Percent < last {
			t.Errorf("percent went backwards: %d after %d", e.Percent, last)
		}
		last = e.Percent
	}
	if events[2].Percent != 40 {
		t.Errorf("expected clamped percent 40, got %d", events[2].Percent)
	}
}

func TestReporter_StageResetDropsFloor(t *testing.T) {
	var c Collector
	r := NewReporter(c.Sink())

	r.Report(80, "end of stage one")
	r.StageReset()
	r.Report(5, "start of stage two")

	events := c.Events()
	if got := events[1].Percent; got != 5 {
		t.Errorf("expected percent 5 after stage reset, got %d", got)
	}
}

func TestReporter_ClampsAboveHundred(t *testing.T) {
	var c Collector
	r := NewReporter(c.Sink())

	r.Report(150, "overshoot")
	if got := c.Events()[0].Percent; got != 100 {
		t.Errorf("expected clamp to 100, got %d", got)
	}
}

func TestReporter_TerminalOutcomes(t *testing.T) {
	tests := []struct {
		outcome     Outcome
		wantPercent int
	}{
		{OutcomeSuccess, 100},
		{OutcomeFailure, 30},
		{OutcomeCancelled, 30},
	}

	for _, tt := range tests {
		t.Run(tt.outcome.String(), func(t *testing.T) {
			var c Collector
			r := NewReporter(c.Sink())
			r.Report(30, "progress")
			r.Terminal(tt.outcome, "done")

			events := c.Events()
			final := events[len(events)-1]
			if final.Outcome != tt.outcome {
				t.Errorf("expected outcome %v, got %v", tt.outcome, final.Outcome)
			}
			if final.Percent != tt.wantPercent {
				t.Errorf("expected percent %d, got %d", tt.wantPercent, final.Percent)
			}
		})
	}
}

func TestReporter_NilSinkIsSafe(t *testing.T) {
	r := NewReporter(nil)
	r.Report(50, "nobody listening")
	r.Terminal(OutcomeSuccess, "done")
}

func TestChannelSink_DropsWhenFull(t *testing.T) {
	ch := make(chan Event, 1)
	sink := ChannelSink(ch)

	sink(Event{Percent: 10, Message: "first"})
	sink(Event{Percent: 20, Message: "overflow, dropped"})

	got := <-ch
	if got.Percent != 10 {
		t.Errorf("expected the first event, got %+v", got)
	}
	select {
	case e := <-ch:
		t.Errorf("expected the second event dropped, got %+v", e)
	default:
	}
}
