package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"orate-studio/internal/domain"
)

// ErrNoRunningJob is returned when cancel is requested with no active job.
var ErrNoRunningJob = errors.New("no running job")

// API is the transport surface the orchestrator polls against.
type API interface {
	SubmitTranscription(ctx context.Context, recordingID string, opts *domain.TranscribeOptions) (domain.Job, error)
	GetJob(ctx context.Context, jobID string) (domain.Job, error)
	GetTranscript(ctx context.Context, transcriptID string) (domain.Transcript, error)
}

// Orchestrator submits transcription jobs and polls each one to a terminal
// state. A monotonic generation number guards every snapshot mutation so a
// superseded poll chain can never touch state after cancellation, and the
// terminal notification fires exactly once per job id.
type Orchestrator struct {
	api          API
	notifier     Notifier
	clock        clock.Clock
	log          zerolog.Logger
	events       *EventBus
	sink         func(Event)
	pollInterval time.Duration
	errInterval  time.Duration

	mu         sync.Mutex
	generation int64
	job        domain.Job
	active     bool
	dispatched map[string]bool
	cancel     context.CancelFunc
	result     domain.Transcript
	hasResult  bool
}

// Config bundles orchestrator construction parameters.
type Config struct {
	API          API
	Notifier     Notifier
	Clock        clock.Clock
	Log          zerolog.Logger
	PollInterval time.Duration
	ErrInterval  time.Duration
	Sink         func(Event)
}

// NewOrchestrator creates an idle orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 1200 * time.Millisecond
	}
	if cfg.ErrInterval <= 0 {
		cfg.ErrInterval = 1800 * time.Millisecond
	}

	return &Orchestrator{
		api:          cfg.API,
		notifier:     cfg.Notifier,
		clock:        cfg.Clock,
		log:          cfg.Log,
		events:       NewEventBus(1000),
		sink:         cfg.Sink,
		pollInterval: cfg.PollInterval,
		errInterval:  cfg.ErrInterval,
		dispatched:   make(map[string]bool),
	}
}

// Submit creates a job for a stored recording and starts its poll loop.
// Any prior job's poll chain and notification state are invalidated first.
func (o *Orchestrator) Submit(recordingID string, opts *domain.TranscribeOptions) (domain.Job, error) {
	o.mu.Lock()
	o.generation++
	gen := o.generation
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.active = false
	o.hasResult = false
	o.dispatched = make(map[string]bool)
	o.mu.Unlock()

	job, err := o.api.SubmitTranscription(context.Background(), recordingID, opts)
	if err != nil {
		return domain.Job{}, fmt.Errorf("submit transcription: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	o.mu.Lock()
	if o.generation != gen {
		// A newer submission won the race; this job is abandoned unpolled.
		o.mu.Unlock()
		cancel()
		return job, nil
	}
	o.job = job
	o.active = true
	o.cancel = cancel
	o.mu.Unlock()

	o.publish(Event{
		JobID:  job.ID,
		Type:   EventTypeStatus,
		Status: job.Status,
	})

	go o.pollLoop(ctx, gen, job.ID)
	return job, nil
}

// Cancel stops the active poll chain. The generation bump makes any
// in-flight response a no-op before this call returns.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.active {
		return ErrNoRunningJob
	}
	o.generation++
	o.active = false
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	return nil
}

// Current returns a snapshot of the most recently observed job.
func (o *Orchestrator) Current() domain.Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.job
}

// IsActive reports whether a job is being polled in a non-terminal state.
func (o *Orchestrator) IsActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active && !o.job.Status.IsTerminal()
}

// Result returns the fetched transcript for the last completed job.
func (o *Orchestrator) Result() (domain.Transcript, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result, o.hasResult
}

// Events returns all events with sequence greater than sinceSeq.
func (o *Orchestrator) Events(sinceSeq int64) []Event {
	return o.events.Since(sinceSeq)
}

// pollLoop fetches the job snapshot until a terminal state, cancellation,
// or supersession. Transport errors keep the last snapshot and retry on
// the longer interval.
func (o *Orchestrator) pollLoop(ctx context.Context, gen int64, jobID string) {
	for {
		snap, err := o.api.GetJob(ctx, jobID)
		if ctx.Err() != nil {
			return
		}

		delay := o.pollInterval
		if err != nil {
			delay = o.errInterval
			o.log.Debug().Err(err).Str("job_id", jobID).Msg("job poll failed, retrying")
		} else {
			applied, terminal := o.applySnapshot(gen, snap)
			if !applied {
				return
			}
			if terminal {
				o.finish(ctx, gen, snap)
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-o.clock.After(delay):
		}
	}
}

// applySnapshot updates observable state iff this chain is still current.
func (o *Orchestrator) applySnapshot(gen int64, snap domain.Job) (applied, terminal bool) {
	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		o.log.Debug().Str("job_id", snap.ID).Msg("stale poll response discarded")
		return false, false
	}
	o.job = snap
	o.mu.Unlock()

	o.publish(Event{
		JobID:      snap.ID,
		Type:       EventTypeStatus,
		Status:     snap.Status,
		Progress:   snap.Progress,
		Stage:      snap.Stage,
		ETASeconds: snap.ETASeconds,
	})
	return true, snap.Status.IsTerminal()
}

// finish performs the terminal side effects for a job exactly once: on
// done it resolves the transcript before signaling completion, on error it
// surfaces the server-supplied message verbatim. The generation is checked
// again after the transcript fetch, since a new submission may arrive
// while this chain is suspended in it.
func (o *Orchestrator) finish(ctx context.Context, gen int64, snap domain.Job) {
	o.mu.Lock()
	if gen != o.generation || o.dispatched[snap.ID] {
		o.mu.Unlock()
		return
	}
	o.dispatched[snap.ID] = true
	o.active = false
	o.mu.Unlock()

	if snap.Status == domain.JobStatusError {
		o.publish(Event{
			JobID:   snap.ID,
			Type:    EventTypeError,
			Status:  snap.Status,
			Message: snap.Error,
		})
		o.notify("Transcription failed", snap.Error)
		return
	}

	transcript, err := o.api.GetTranscript(ctx, snap.ResultRef)

	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		o.log.Debug().Str("job_id", snap.ID).Msg("terminal dispatch superseded during transcript fetch")
		return
	}
	if err == nil {
		o.result = transcript
		o.hasResult = true
	}
	o.mu.Unlock()

	if err != nil {
		o.publish(Event{
			JobID:   snap.ID,
			Type:    EventTypeError,
			Status:  snap.Status,
			Message: fmt.Sprintf("fetch transcript %s: %v", snap.ResultRef, err),
		})
		o.notify("Transcription failed", "transcript could not be fetched")
		return
	}

	o.publish(Event{
		JobID:        snap.ID,
		Type:         EventTypeResult,
		Status:       snap.Status,
		Progress:     1,
		TranscriptID: transcript.ID,
		Message:      "Transcript ready",
	})
	o.notify("Transcription complete", "Your transcript is ready.")
}

// publish stores event history and mirrors it to the configured sink.
func (o *Orchestrator) publish(event Event) {
	published := o.events.Publish(event)
	if o.sink != nil {
		o.sink(published)
	}
}

// notify sends the terminal alert, tolerating notifier absence.
func (o *Orchestrator) notify(title, message string) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(title, message); err != nil {
		o.log.Debug().Err(err).Msg("notification delivery failed")
	}
}
