package configstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mikeboe/widget-studio/pkg/metrics"
	"github.com/mikeboe/widget-studio/pkg/widget"
)

const (
	DefaultDebounce = 500 * time.Millisecond
	saveTimeout     = 10 * time.Second
)

// Persister saves a configuration outside the process.
type Persister interface {
	SaveConfiguration(ctx context.Context, ownerID string, cfg widget.Configuration) error
}

// Store holds the live configuration of one widget. The in-memory value is
// the source of truth; persistence is best effort and never rolls it back.
type Store struct {
	mu        sync.Mutex
	ownerID   string
	current   widget.Configuration
	persister Persister
	debounce  time.Duration
	logger    *slog.Logger

	timer   *time.Timer
	pending bool
	seq     uint64
	closed  bool

	listeners map[int]func(widget.Configuration)
	nextID    int
}

type Option func(*Store)

func WithDebounce(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.debounce = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(ownerID string, initial widget.Configuration, p Persister, opts ...Option) *Store {
	if initial == nil {
		initial = widget.Configuration{}
	}
	s := &Store{
		ownerID:   ownerID,
		current:   initial.Clone(),
		persister: p,
		debounce:  DefaultDebounce,
		logger:    slog.Default(),
		listeners: make(map[int]func(widget.Configuration)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OwnerID returns the id the store persists under.
func (s *Store) OwnerID() string {
	return s.ownerID
}

// Get returns a copy of the live configuration.
func (s *Store) Get() widget.Configuration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Set merges partial into the live configuration and schedules a save.
// A Set inside the debounce window replaces the pending save, so only the
// last merged state of a burst reaches the persister.
func (s *Store) Set(partial widget.Configuration) widget.Configuration {
	s.mu.Lock()
	s.current = s.current.Merge(partial)
	next := s.current.Clone()
	s.schedulePersistLocked()
	listeners := make([]func(widget.Configuration), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(next.Clone())
	}
	return next
}

// OnChange registers fn to receive every configuration produced by Set.
func (s *Store) OnChange(fn func(widget.Configuration)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) schedulePersistLocked() {
	if s.persister == nil || s.closed {
		return
	}
	s.pending = true
	s.seq++
	seq := s.seq
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() { s.fire(seq) })
}

func (s *Store) fire(seq uint64) {
	s.mu.Lock()
	// a later Set rescheduled; that timer owns the save
	if seq != s.seq || !s.pending || s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = false
	snapshot := s.current.Clone()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	s.save(ctx, snapshot)
}

func (s *Store) save(ctx context.Context, cfg widget.Configuration) {
	if err := s.persister.SaveConfiguration(ctx, s.ownerID, cfg); err != nil {
		metrics.ConfigPersists.WithLabelValues("error").Inc()
		s.logger.Error("Failed to persist widget configuration", "owner_id", s.ownerID, "error", err)
		return
	}
	metrics.ConfigPersists.WithLabelValues("ok").Inc()
	s.logger.Debug("Persisted widget configuration", "owner_id", s.ownerID)
}

// Flush saves a pending configuration now instead of waiting for the timer.
func (s *Store) Flush(ctx context.Context) {
	s.mu.Lock()
	if !s.pending || s.persister == nil {
		s.mu.Unlock()
		return
	}
	s.pending = false
	s.seq++
	if s.timer != nil {
		s.timer.Stop()
	}
	snapshot := s.current.Clone()
	s.mu.Unlock()

	s.save(ctx, snapshot)
}

// Close stops the debounce timer. A pending save is dropped; call Flush
// first to keep it.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.pending = false
	if s.timer != nil {
		s.timer.Stop()
	}
}
