// Package history keeps a periodically refreshed snapshot of past
// transcripts for the listing panel.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"orate-studio/internal/domain"
)

// Lister is the transport surface the scheduler refreshes from.
type Lister interface {
	ListTranscripts(ctx context.Context, limit int) ([]domain.HistoryItem, error)
}

// Scheduler polls the transcript listing on an adaptive interval: short
// while a transcription job is active, long otherwise. Refresh failures
// keep the previous snapshot and are logged, never surfaced.
type Scheduler struct {
	lister         Lister
	clock          clock.Clock
	log            zerolog.Logger
	jobActive      func() bool
	onUpdate       func([]domain.HistoryItem)
	activeInterval time.Duration
	idleInterval   time.Duration
	limit          int

	mu      sync.Mutex
	items   []domain.HistoryItem
	running bool
	stopCh  chan struct{}
	kickCh  chan struct{}
}

// Config bundles scheduler construction parameters.
type Config struct {
	Lister         Lister
	Clock          clock.Clock
	Log            zerolog.Logger
	JobActive      func() bool
	OnUpdate       func([]domain.HistoryItem)
	ActiveInterval time.Duration
	IdleInterval   time.Duration
	Limit          int
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.ActiveInterval <= 0 {
		cfg.ActiveInterval = 3 * time.Second
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = 15 * time.Second
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 50
	}

	return &Scheduler{
		lister:         cfg.Lister,
		clock:          cfg.Clock,
		log:            cfg.Log,
		jobActive:      cfg.JobActive,
		onUpdate:       cfg.OnUpdate,
		activeInterval: cfg.ActiveInterval,
		idleInterval:   cfg.IdleInterval,
		limit:          cfg.Limit,
	}
}

// Start refreshes immediately and begins the periodic loop. Calling Start
// on a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.kickCh = make(chan struct{}, 1)
	stop, kick := s.stopCh, s.kickCh
	s.mu.Unlock()

	go s.loop(stop, kick)
}

// Stop halts the periodic loop. The last snapshot stays readable.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
}

// RefreshNow requests an out-of-band refresh without disturbing the loop.
func (s *Scheduler) RefreshNow() {
	s.mu.Lock()
	kick := s.kickCh
	s.mu.Unlock()
	if kick == nil {
		return
	}
	select {
	case kick <- struct{}{}:
	default:
	}
}

// Items returns a copy of the current snapshot.
func (s *Scheduler) Items() []domain.HistoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.HistoryItem, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Scheduler) loop(stop, kick chan struct{}) {
	s.refresh()
	for {
		select {
		case <-stop:
			return
		case <-kick:
		case <-s.clock.After(s.nextInterval()):
		}

		select {
		case <-stop:
			return
		default:
		}
		s.refresh()
	}
}

// nextInterval picks the tick delay from current job activity.
func (s *Scheduler) nextInterval() time.Duration {
	if s.jobActive != nil && s.jobActive() {
		return s.activeInterval
	}
	return s.idleInterval
}

func (s *Scheduler) refresh() {
	items, err := s.lister.ListTranscripts(context.Background(), s.limit)
	if err != nil {
		s.log.Debug().Err(err).Msg("history refresh failed, keeping snapshot")
		return
	}

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()

	if s.onUpdate != nil {
		s.onUpdate(items)
	}
}
