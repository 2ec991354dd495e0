package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"orate-studio/internal/domain"
)

// Uploader turns a finished recording blob into a stored Recording.
// Implemented by the API client; no automatic retry is performed here.
type Uploader interface {
	Upload(ctx context.Context, blob []byte, filename string, onProgress func(fraction float64)) (domain.Recording, error)
}

// Callbacks receive controller observations. All fields are optional and
// are invoked outside the controller lock.
type Callbacks struct {
	OnState    func(state domain.CaptureState)
	OnLevel    func(level float64)
	OnProgress func(fraction float64)
	OnError    func(err error)
}

// Controller owns the recording state machine:
// Idle -> Recording <-> Paused -> Stopping -> Uploading -> Idle, with Error
// reachable on device failure. One recording session at a time; the audio
// source is released exactly once on every exit path.
type Controller struct {
	source     Source
	uploader   Uploader
	clock      clock.Clock
	meter      *Meter
	callbacks  Callbacks
	sampleRate int

	mu          sync.Mutex
	state       domain.CaptureState
	starting    bool
	sessionID   string
	chunks      [][]int16
	startedAt   time.Time
	pausedAt    time.Time
	pausedTotal time.Duration
	sourceOpen  bool
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// NewController creates an idle controller around one audio source.
func NewController(source Source, uploader Uploader, clk clock.Clock, sampleRate int, callbacks Callbacks) *Controller {
	return &Controller{
		source:     source,
		uploader:   uploader,
		clock:      clk,
		meter:      NewMeter(sampleRate / 2),
		callbacks:  callbacks,
		sampleRate: sampleRate,
		state:      domain.CaptureStateIdle,
	}
}

// State returns the current capture state.
func (c *Controller) State() domain.CaptureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start acquires the microphone and begins chunked capture. Valid from
// Idle or Error; device failures map to ErrPermissionDenied or
// ErrDeviceUnavailable and leave the controller Idle. The starting flag
// keeps a second caller out while the device is still being acquired, so
// the source is never opened twice.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.starting || (c.state != domain.CaptureStateIdle && c.state != domain.CaptureStateError) {
		c.mu.Unlock()
		return ErrAlreadyRecording
	}
	c.starting = true
	c.state = domain.CaptureStateIdle
	c.mu.Unlock()

	if err := c.source.Start(); err != nil {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
		return fmt.Errorf("open audio source: %w", err)
	}

	c.mu.Lock()
	c.starting = false
	c.sessionID = uuid.NewString()
	c.chunks = nil
	c.startedAt = c.clock.Now()
	c.pausedTotal = 0
	c.sourceOpen = true
	c.state = domain.CaptureStateRecording
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	stopCh, doneCh := c.stopCh, c.doneCh
	c.mu.Unlock()

	c.notifyState(domain.CaptureStateRecording)
	go c.readLoop(stopCh, doneCh)
	return nil
}

// Pause freezes the active-duration clock. No-op unless Recording.
func (c *Controller) Pause() {
	c.mu.Lock()
	if c.state != domain.CaptureStateRecording {
		c.mu.Unlock()
		return
	}
	c.state = domain.CaptureStatePaused
	c.pausedAt = c.clock.Now()
	c.mu.Unlock()

	c.notifyState(domain.CaptureStatePaused)
}

// Resume adds the elapsed paused interval to the accumulator and continues
// capture. No-op unless Paused.
func (c *Controller) Resume() {
	c.mu.Lock()
	if c.state != domain.CaptureStatePaused {
		c.mu.Unlock()
		return
	}
	c.pausedTotal += c.clock.Now().Sub(c.pausedAt)
	c.state = domain.CaptureStateRecording
	c.mu.Unlock()

	c.notifyState(domain.CaptureStateRecording)
}

// ActiveDuration reports wall-clock elapsed time minus total paused time.
func (c *Controller) ActiveDuration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeDurationLocked()
}

func (c *Controller) activeDurationLocked() time.Duration {
	switch c.state {
	case domain.CaptureStateIdle, domain.CaptureStateError:
		return 0
	}

	elapsed := c.clock.Now().Sub(c.startedAt) - c.pausedTotal
	if c.state == domain.CaptureStatePaused {
		elapsed -= c.clock.Now().Sub(c.pausedAt)
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed
}

// Stop finalizes the chunk sequence into a WAV blob, releases the device,
// and uploads the blob. Valid only while Recording or Paused. Upload
// failure returns the controller to Idle with the chunks discarded.
func (c *Controller) Stop(ctx context.Context) (domain.Recording, error) {
	c.mu.Lock()
	if c.state != domain.CaptureStateRecording && c.state != domain.CaptureStatePaused {
		c.mu.Unlock()
		return domain.Recording{}, ErrNotRecording
	}
	if c.state == domain.CaptureStatePaused {
		c.pausedTotal += c.clock.Now().Sub(c.pausedAt)
	}
	c.state = domain.CaptureStateStopping
	stopCh, doneCh := c.stopCh, c.doneCh
	c.mu.Unlock()

	c.notifyState(domain.CaptureStateStopping)
	close(stopCh)
	<-doneCh

	c.mu.Lock()
	c.releaseLocked()
	chunks := c.chunks
	c.chunks = nil
	sessionID := c.sessionID
	c.mu.Unlock()

	blob, err := encodeWAV(chunks, c.sampleRate)
	if err != nil {
		c.setState(domain.CaptureStateIdle)
		return domain.Recording{}, fmt.Errorf("finalize recording: %w", err)
	}

	c.setState(domain.CaptureStateUploading)
	filename := fmt.Sprintf("capture-%s.wav", sessionID[:8])
	rec, err := c.uploader.Upload(ctx, blob, filename, c.callbacks.OnProgress)
	c.setState(domain.CaptureStateIdle)
	if err != nil {
		return domain.Recording{}, fmt.Errorf("upload recording: %w", err)
	}
	return rec, nil
}

// Close releases the device from any state, for component teardown.
func (c *Controller) Close() {
	c.mu.Lock()
	var stopCh, doneCh chan struct{}
	if c.state == domain.CaptureStateRecording || c.state == domain.CaptureStatePaused {
		c.state = domain.CaptureStateIdle
		stopCh, doneCh = c.stopCh, c.doneCh
	}
	c.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}

	c.mu.Lock()
	c.chunks = nil
	c.releaseLocked()
	c.mu.Unlock()
}

// readLoop pulls chunks until stopped, metering continuously and appending
// audio only while Recording so paused stretches are excluded.
func (c *Controller) readLoop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		chunk, err := c.source.ReadChunk()
		if err != nil {
			select {
			case <-stopCh:
				return
			default:
			}
			c.failFromLoop(err)
			return
		}

		level := c.meter.Level(chunk)

		c.mu.Lock()
		state := c.state
		if state == domain.CaptureStateRecording {
			c.chunks = append(c.chunks, chunk)
		}
		c.mu.Unlock()

		if c.callbacks.OnLevel != nil &&
			(state == domain.CaptureStateRecording || state == domain.CaptureStatePaused) {
			c.callbacks.OnLevel(level)
		}
	}
}

// failFromLoop handles device loss mid-recording: partial buffer discarded,
// device released, Error state surfaced.
func (c *Controller) failFromLoop(err error) {
	c.mu.Lock()
	if c.state != domain.CaptureStateRecording && c.state != domain.CaptureStatePaused {
		c.mu.Unlock()
		return
	}
	c.state = domain.CaptureStateError
	c.chunks = nil
	c.releaseLocked()
	c.mu.Unlock()

	c.notifyState(domain.CaptureStateError)
	if c.callbacks.OnError != nil {
		c.callbacks.OnError(err)
	}
}

// releaseLocked stops the source at most once per session.
func (c *Controller) releaseLocked() {
	if !c.sourceOpen {
		return
	}
	c.sourceOpen = false
	_ = c.source.Stop()
}

// setState transitions and notifies outside the lock.
func (c *Controller) setState(state domain.CaptureState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	c.notifyState(state)
}

// notifyState pushes a state change to the configured observer.
func (c *Controller) notifyState(state domain.CaptureState) {
	if c.callbacks.OnState != nil {
		c.callbacks.OnState(state)
	}
}
