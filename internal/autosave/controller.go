package autosave

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bep/debounce"
	"github.com/rs/zerolog"

	"orate-studio/internal/domain"
)

// Saver is the transport surface for transcript metadata writes.
type Saver interface {
	UpdateTranscript(ctx context.Context, transcriptID string, patch domain.TranscriptPatch) (domain.Transcript, error)
}

// Controller persists transcript metadata edits. Titles save on explicit
// request; notes save automatically after a quiet period. Every notes edit
// mints a strictly increasing token, and only the response carrying the
// latest token may update the visible save status, so late completions of
// superseded writes are silently discarded.
type Controller struct {
	saver        Saver
	clock        clock.Clock
	log          zerolog.Logger
	onStatus     func(domain.NotesStatus)
	savedDisplay time.Duration
	schedule     func(f func())

	mu           sync.Mutex
	transcriptID string
	token        int64
	acked        string
	pending      string
	state        domain.SaveState
	errMsg       string
	revertTimer  *clock.Timer
}

// Config bundles controller construction parameters.
type Config struct {
	Saver        Saver
	Clock        clock.Clock
	Log          zerolog.Logger
	OnStatus     func(domain.NotesStatus)
	QuietPeriod  time.Duration
	SavedDisplay time.Duration
}

// NewController creates a controller with a debounced write scheduler.
func NewController(cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = 600 * time.Millisecond
	}
	if cfg.SavedDisplay <= 0 {
		cfg.SavedDisplay = 2 * time.Second
	}

	return &Controller{
		saver:        cfg.Saver,
		clock:        cfg.Clock,
		log:          cfg.Log,
		onStatus:     cfg.OnStatus,
		savedDisplay: cfg.SavedDisplay,
		schedule:     debounce.New(cfg.QuietPeriod),
		state:        domain.SaveStateIdle,
	}
}

// NewControllerForTests creates a controller with an injectable scheduler.
func NewControllerForTests(cfg Config, schedule func(f func())) *Controller {
	c := NewController(cfg)
	c.schedule = schedule
	return c
}

// SetTranscript switches the active transcript. Any pending scheduled
// write is invalidated so edits never bleed across transcripts.
func (c *Controller) SetTranscript(transcriptID, currentNotes string) {
	c.mu.Lock()
	c.transcriptID = transcriptID
	c.token++
	c.acked = currentNotes
	c.pending = ""
	c.state = domain.SaveStateIdle
	c.errMsg = ""
	c.stopRevertLocked()
	status := c.statusLocked()
	c.mu.Unlock()

	c.emit(status)
}

// SaveTitle writes a title immediately, with no debounce or token tracking.
func (c *Controller) SaveTitle(ctx context.Context, transcriptID, title string) error {
	if _, err := c.saver.UpdateTranscript(ctx, transcriptID, domain.TranscriptPatch{Title: &title}); err != nil {
		return fmt.Errorf("save title: %w", err)
	}
	return nil
}

// EditNotes registers one notes edit. Equal-to-acknowledged values reset
// the status to idle and send nothing; any other value becomes the sole
// candidate for the next debounced write.
func (c *Controller) EditNotes(value string) {
	c.mu.Lock()
	if c.transcriptID == "" {
		c.mu.Unlock()
		return
	}

	// The token bump invalidates any previously scheduled write even when
	// this edit itself sends nothing.
	c.token++
	c.stopRevertLocked()

	if value == c.acked {
		c.pending = ""
		c.state = domain.SaveStateIdle
		c.errMsg = ""
		status := c.statusLocked()
		c.mu.Unlock()
		c.emit(status)
		return
	}

	token := c.token
	c.pending = value
	c.state = domain.SaveStateSaving
	c.errMsg = ""
	status := c.statusLocked()
	c.mu.Unlock()

	c.emit(status)
	c.schedule(func() { c.fire(token) })
}

// Status returns the current save-status projection.
func (c *Controller) Status() domain.NotesStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// fire performs the scheduled write for one token and applies the outcome
// only if that token is still the latest.
func (c *Controller) fire(token int64) {
	c.mu.Lock()
	if token != c.token {
		c.mu.Unlock()
		return
	}
	transcriptID := c.transcriptID
	value := c.pending
	c.mu.Unlock()

	_, err := c.saver.UpdateTranscript(context.Background(), transcriptID, domain.TranscriptPatch{Notes: &value})

	c.mu.Lock()
	if token != c.token || transcriptID != c.transcriptID {
		c.mu.Unlock()
		c.log.Debug().Str("transcript_id", transcriptID).Msg("stale autosave response discarded")
		return
	}

	if err != nil {
		c.state = domain.SaveStateError
		c.errMsg = err.Error()
		status := c.statusLocked()
		c.mu.Unlock()
		c.emit(status)
		return
	}

	c.acked = value
	c.pending = ""
	c.state = domain.SaveStateSaved
	c.errMsg = ""
	c.revertTimer = c.clock.AfterFunc(c.savedDisplay, func() { c.revert(token) })
	status := c.statusLocked()
	c.mu.Unlock()

	c.emit(status)
}

// revert moves saved back to idle after the display window, unless a newer
// edit owns the status by now.
func (c *Controller) revert(token int64) {
	c.mu.Lock()
	if token != c.token || c.state != domain.SaveStateSaved {
		c.mu.Unlock()
		return
	}
	c.state = domain.SaveStateIdle
	status := c.statusLocked()
	c.mu.Unlock()

	c.emit(status)
}

// stopRevertLocked cancels a scheduled saved-to-idle transition.
func (c *Controller) stopRevertLocked() {
	if c.revertTimer != nil {
		c.revertTimer.Stop()
		c.revertTimer = nil
	}
}

// statusLocked builds the projection under the lock.
func (c *Controller) statusLocked() domain.NotesStatus {
	return domain.NotesStatus{
		TranscriptID: c.transcriptID,
		State:        c.state,
		Error:        c.errMsg,
	}
}

// emit pushes a status update to the configured observer.
func (c *Controller) emit(status domain.NotesStatus) {
	if c.onStatus != nil {
		c.onStatus(status)
	}
}
