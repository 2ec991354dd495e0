package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"orate-studio/internal/domain"
)

type pollStep struct {
	job domain.Job
	err error
}

// fakeAPI scripts submission and poll responses; the last step repeats.
type fakeAPI struct {
	mu          sync.Mutex
	submits     int
	lastRecID   string
	lastOpts    *domain.TranscribeOptions
	submitJob   domain.Job
	steps       []pollStep
	stepIdx     int
	transcript  domain.Transcript
	trErr       error
	trCalls     int
	gate        chan struct{}
	trGate      chan struct{}
	trEntered   chan struct{}
}

func (f *fakeAPI) SubmitTranscription(ctx context.Context, recordingID string, opts *domain.TranscribeOptions) (domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	f.lastRecID = recordingID
	f.lastOpts = opts
	return f.submitJob, nil
}

func (f *fakeAPI) GetJob(ctx context.Context, jobID string) (domain.Job, error) {
	if f.gate != nil {
		<-f.gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	step := f.steps[f.stepIdx]
	if f.stepIdx < len(f.steps)-1 {
		f.stepIdx++
	}
	return step.job, step.err
}

// GetTranscript signals and parks on one-shot gates so a test can hold a
// terminal chain inside the fetch.
func (f *fakeAPI) GetTranscript(ctx context.Context, transcriptID string) (domain.Transcript, error) {
	f.mu.Lock()
	entered := f.trEntered
	f.trEntered = nil
	gate := f.trGate
	f.trGate = nil
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.trCalls++
	if f.trErr != nil {
		return domain.Transcript{}, f.trErr
	}
	return f.transcript, nil
}

// countNotifier counts alerts and signals each delivery.
type countNotifier struct {
	mu    sync.Mutex
	calls int
	last  string
	ch    chan struct{}
}

func newCountNotifier() *countNotifier {
	return &countNotifier{ch: make(chan struct{}, 16)}
}

func (n *countNotifier) Notify(title, message string) error {
	n.mu.Lock()
	n.calls++
	n.last = message
	n.mu.Unlock()
	n.ch <- struct{}{}
	return nil
}

func (n *countNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

// waitNotify blocks until one notification arrives.
func waitNotify(t *testing.T, n *countNotifier) {
	t.Helper()
	select {
	case <-n.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no notification before timeout")
	}
}

// newTestOrchestrator builds an orchestrator with fast real-time polling.
func newTestOrchestrator(api API, notifier Notifier) *Orchestrator {
	return NewOrchestrator(Config{
		API:          api,
		Notifier:     notifier,
		Log:          zerolog.Nop(),
		PollInterval: time.Millisecond,
		ErrInterval:  2 * time.Millisecond,
	})
}

// TestSubmitAndPollToCompletion runs the full happy path: options forwarded,
// progress observed, transcript resolved, one completion notification.
func TestSubmitAndPollToCompletion(t *testing.T) {
	api := &fakeAPI{
		submitJob: domain.Job{ID: "job_1", Status: domain.JobStatusQueued},
		steps: []pollStep{
			{job: domain.Job{ID: "job_1", Status: domain.JobStatusRunning, Progress: 0.4}},
			{job: domain.Job{ID: "job_1", Status: domain.JobStatusDone, Progress: 1, ResultRef: "tr_123"}},
		},
		transcript: domain.Transcript{ID: "tr_123", Text: "hello"},
	}
	notifier := newCountNotifier()
	o := newTestOrchestrator(api, notifier)

	model := "small"
	vad := true
	job, err := o.Submit("rec_1", &domain.TranscribeOptions{Model: &model, VAD: &vad})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if job.ID != "job_1" || job.Status != domain.JobStatusQueued {
		t.Fatalf("job = %+v", job)
	}
	if api.lastRecID != "rec_1" || api.lastOpts == nil || *api.lastOpts.Model != "small" || !*api.lastOpts.VAD {
		t.Fatalf("submission payload: rec=%s opts=%+v", api.lastRecID, api.lastOpts)
	}

	waitNotify(t, notifier)

	if notifier.count() != 1 {
		t.Fatalf("notifications = %d, want 1", notifier.count())
	}
	if api.trCalls != 1 {
		t.Fatalf("transcript fetches = %d, want 1", api.trCalls)
	}

	result, ok := o.Result()
	if !ok || result.ID != "tr_123" {
		t.Fatalf("result = %+v ok = %v", result, ok)
	}
	if o.IsActive() {
		t.Fatal("orchestrator still active after terminal state")
	}

	events := o.Events(0)
	last := events[len(events)-1]
	if last.Type != EventTypeResult || last.TranscriptID != "tr_123" {
		t.Fatalf("final event = %+v", last)
	}
	for _, event := range events {
		if event.Type == EventTypeError {
			t.Fatalf("unexpected error event: %+v", event)
		}
	}
}

// TestTerminalNotificationFiresOnce simulates duplicate terminal responses
// racing into the dispatch path.
func TestTerminalNotificationFiresOnce(t *testing.T) {
	api := &fakeAPI{
		transcript: domain.Transcript{ID: "tr_9"},
		steps:      []pollStep{{job: domain.Job{ID: "job_9", Status: domain.JobStatusDone, ResultRef: "tr_9"}}},
	}
	notifier := newCountNotifier()
	o := newTestOrchestrator(api, notifier)

	o.mu.Lock()
	o.generation = 7
	o.mu.Unlock()

	snap := domain.Job{ID: "job_9", Status: domain.JobStatusDone, ResultRef: "tr_9"}
	o.finish(context.Background(), 7, snap)
	o.finish(context.Background(), 7, snap)

	if notifier.count() != 1 {
		t.Fatalf("notifications = %d, want exactly 1", notifier.count())
	}
}

// TestTransportErrorsAreInvisible checks poll failures retry without
// emitting error events or disturbing the snapshot.
func TestTransportErrorsAreInvisible(t *testing.T) {
	api := &fakeAPI{
		submitJob: domain.Job{ID: "job_2", Status: domain.JobStatusQueued},
		steps: []pollStep{
			{job: domain.Job{ID: "job_2", Status: domain.JobStatusRunning, Progress: 0.2}},
			{err: errors.New("connection refused")},
			{err: errors.New("connection refused")},
			{job: domain.Job{ID: "job_2", Status: domain.JobStatusDone, ResultRef: "tr_2"}},
		},
		transcript: domain.Transcript{ID: "tr_2"},
	}
	notifier := newCountNotifier()
	o := newTestOrchestrator(api, notifier)

	if _, err := o.Submit("rec_2", nil); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitNotify(t, notifier)

	for _, event := range o.Events(0) {
		if event.Type == EventTypeError {
			t.Fatalf("transport error leaked into events: %+v", event)
		}
	}
	if got := o.Current().Status; got != domain.JobStatusDone {
		t.Fatalf("final status = %s, want done", got)
	}
}

// TestStaleSnapshotDiscarded checks the generation guard directly.
func TestStaleSnapshotDiscarded(t *testing.T) {
	o := newTestOrchestrator(&fakeAPI{steps: []pollStep{{}}}, nil)

	o.mu.Lock()
	o.generation = 3
	o.job = domain.Job{ID: "job_current", Status: domain.JobStatusRunning}
	o.mu.Unlock()

	applied, _ := o.applySnapshot(2, domain.Job{ID: "job_old", Status: domain.JobStatusDone})
	if applied {
		t.Fatal("stale snapshot was applied")
	}
	if o.Current().ID != "job_current" {
		t.Fatalf("snapshot corrupted by stale response: %+v", o.Current())
	}
}

// TestCancelPreventsStaleMutation verifies an in-flight poll response
// becomes a no-op once Cancel returns.
func TestCancelPreventsStaleMutation(t *testing.T) {
	gate := make(chan struct{})
	api := &fakeAPI{
		submitJob: domain.Job{ID: "job_3", Status: domain.JobStatusQueued},
		steps:     []pollStep{{job: domain.Job{ID: "job_3", Status: domain.JobStatusDone, ResultRef: "tr_3"}}},
		gate:      gate,
	}
	notifier := newCountNotifier()
	o := newTestOrchestrator(api, notifier)

	if _, err := o.Submit("rec_3", nil); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := o.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	close(gate)

	time.Sleep(20 * time.Millisecond)
	if got := o.Current().Status; got != domain.JobStatusQueued {
		t.Fatalf("cancelled job mutated to %s", got)
	}
	if notifier.count() != 0 {
		t.Fatalf("notifications after cancel = %d, want 0", notifier.count())
	}

	if err := o.Cancel(); !errors.Is(err, ErrNoRunningJob) {
		t.Fatalf("second Cancel() error = %v, want ErrNoRunningJob", err)
	}
}

// TestErrorStatusSurfacesMessageVerbatim checks terminal job errors carry
// the server-supplied message unchanged.
func TestErrorStatusSurfacesMessageVerbatim(t *testing.T) {
	api := &fakeAPI{
		submitJob: domain.Job{ID: "job_4", Status: domain.JobStatusQueued},
		steps: []pollStep{
			{job: domain.Job{ID: "job_4", Status: domain.JobStatusError, Error: "CUDA out of memory"}},
		},
	}
	notifier := newCountNotifier()
	o := newTestOrchestrator(api, notifier)

	if _, err := o.Submit("rec_4", nil); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitNotify(t, notifier)

	events := o.Events(0)
	last := events[len(events)-1]
	if last.Type != EventTypeError || last.Message != "CUDA out of memory" {
		t.Fatalf("error event = %+v", last)
	}
	if api.trCalls != 0 {
		t.Fatalf("transcript fetched for failed job: %d calls", api.trCalls)
	}
	if o.IsActive() {
		t.Fatal("orchestrator active after terminal error")
	}
}

// TestSubmitDuringTranscriptFetchSuppressesStaleAlert holds the first
// job's terminal chain inside its transcript fetch while a new submission
// arrives; the old chain must complete as a no-op with no alert or result
// event of its own.
func TestSubmitDuringTranscriptFetchSuppressesStaleAlert(t *testing.T) {
	trGate := make(chan struct{})
	trEntered := make(chan struct{}, 1)
	api := &fakeAPI{
		submitJob:  domain.Job{ID: "job_a", Status: domain.JobStatusQueued},
		steps:      []pollStep{{job: domain.Job{ID: "job_a", Status: domain.JobStatusDone, ResultRef: "tr_a"}}},
		transcript: domain.Transcript{ID: "tr_a"},
		trGate:     trGate,
		trEntered:  trEntered,
	}
	notifier := newCountNotifier()
	o := newTestOrchestrator(api, notifier)

	if _, err := o.Submit("rec_a", nil); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}

	select {
	case <-trEntered:
	case <-time.After(2 * time.Second):
		t.Fatal("first job never reached the transcript fetch")
	}

	api.mu.Lock()
	api.submitJob = domain.Job{ID: "job_b", Status: domain.JobStatusQueued}
	api.steps = []pollStep{{job: domain.Job{ID: "job_b", Status: domain.JobStatusDone, ResultRef: "tr_b"}}}
	api.stepIdx = 0
	api.transcript = domain.Transcript{ID: "tr_b"}
	api.mu.Unlock()

	if _, err := o.Submit("rec_b", nil); err != nil {
		t.Fatalf("second Submit() error = %v", err)
	}
	close(trGate)

	waitNotify(t, notifier)
	time.Sleep(20 * time.Millisecond)

	if notifier.count() != 1 {
		t.Fatalf("notifications = %d, want 1 (superseded job must stay silent)", notifier.count())
	}
	result, ok := o.Result()
	if !ok || result.ID != "tr_b" {
		t.Fatalf("result = %+v ok = %v", result, ok)
	}
	for _, event := range o.Events(0) {
		if event.TranscriptID == "tr_a" {
			t.Fatalf("superseded job published its result: %+v", event)
		}
	}
}

// TestSubmitSupersedesPriorJob checks a new submission invalidates the
// previous poll chain and its notification state.
func TestSubmitSupersedesPriorJob(t *testing.T) {
	gate := make(chan struct{})
	first := &fakeAPI{
		submitJob: domain.Job{ID: "job_a", Status: domain.JobStatusQueued},
		steps:     []pollStep{{job: domain.Job{ID: "job_a", Status: domain.JobStatusDone, ResultRef: "tr_a"}}},
		gate:      gate,
	}
	notifier := newCountNotifier()
	o := newTestOrchestrator(first, notifier)

	if _, err := o.Submit("rec_a", nil); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}

	first.mu.Lock()
	first.submitJob = domain.Job{ID: "job_b", Status: domain.JobStatusQueued}
	first.steps = []pollStep{{job: domain.Job{ID: "job_b", Status: domain.JobStatusDone, ResultRef: "tr_b"}}}
	first.stepIdx = 0
	first.transcript = domain.Transcript{ID: "tr_b"}
	first.mu.Unlock()

	if _, err := o.Submit("rec_b", nil); err != nil {
		t.Fatalf("second Submit() error = %v", err)
	}
	close(gate)
	waitNotify(t, notifier)

	time.Sleep(20 * time.Millisecond)
	if notifier.count() != 1 {
		t.Fatalf("notifications = %d, want 1 (only superseding job)", notifier.count())
	}
	if got := o.Current().ID; got != "job_b" {
		t.Fatalf("current job = %s, want job_b", got)
	}
	result, ok := o.Result()
	if !ok || result.ID != "tr_b" {
		t.Fatalf("result = %+v ok = %v", result, ok)
	}
}
