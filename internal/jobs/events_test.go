package jobs

import (
	"testing"

	"orate-studio/internal/domain"
)

// TestEventBusSince verifies incremental reads return only events past
// the given sequence, with job payload fields intact.
func TestEventBusSince(t *testing.T) {
	bus := NewEventBus(3)
	bus.Publish(Event{JobID: "job_1", Type: EventTypeStatus, Status: domain.JobStatusQueued})
	bus.Publish(Event{JobID: "job_1", Type: EventTypeStatus, Status: domain.JobStatusRunning, Progress: 0.5, Stage: "decode"})
	bus.Publish(Event{JobID: "job_1", Type: EventTypeResult, TranscriptID: "tr_1"})

	events := bus.Since(1)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Seq != 2 || events[1].Seq != 3 {
		t.Fatalf("unexpected seqs: %+v", events)
	}
	if events[0].Progress != 0.5 || events[0].Stage != "decode" {
		t.Fatalf("progress payload lost: %+v", events[0])
	}
	if events[1].TranscriptID != "tr_1" {
		t.Fatalf("result payload lost: %+v", events[1])
	}
}

// TestEventBusCapsHistory verifies the oldest events are trimmed once the
// buffer limit is reached.
func TestEventBusCapsHistory(t *testing.T) {
	bus := NewEventBus(2)
	bus.Publish(Event{Message: "1"})
	bus.Publish(Event{Message: "2"})
	bus.Publish(Event{Message: "3"})

	events := bus.Since(0)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Message != "2" || events[1].Message != "3" {
		t.Fatalf("unexpected events: %+v", events)
	}
}
