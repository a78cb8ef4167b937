// Package session runs the lifecycle of one mounted widget: expanding,
// taking a query, streaming the answer and resetting for a new search.
package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mikeboe/widget-studio/pkg/metrics"
	"github.com/mikeboe/widget-studio/pkg/seed"
	"github.com/mikeboe/widget-studio/pkg/stream"
	"github.com/mikeboe/widget-studio/pkg/widget"
)

type State string

const (
	StateCollapsed State = "collapsed"
	StateInput     State = "input"
	StateLoading   State = "loading"
	StateStreaming State = "streaming"
	StateComplete  State = "complete"
	StateError     State = "error"
)

type Feedback string

const (
	FeedbackNone Feedback = ""
	FeedbackUp   Feedback = "up"
	FeedbackDown Feedback = "down"
)

var (
	ErrFeedbackUnavailable = errors.New("feedback is only accepted for a completed answer")
	ErrInvalidFeedback     = errors.New("feedback must be up, down or empty")
)

// Executor produces the answer events for a query.
type Executor interface {
	Execute(ctx context.Context, req stream.Request) iter.Seq[stream.Event]
}

// Snapshot is a copy of the session state. Version increases with every
// change.
type Snapshot struct {
	State        State          `json:"state"`
	Query        string         `json:"query"`
	SelectedSeed string         `json:"selectedSeed,omitempty"`
	StreamedText string         `json:"streamedText"`
	Answer       *widget.Answer `json:"answer,omitempty"`
	Error        string         `json:"error,omitempty"`
	Feedback     Feedback       `json:"feedback,omitempty"`
	Expanded     bool           `json:"expanded"`
	Version      uint64         `json:"version"`
}

// AnswerCallback is told about every answer that completes.
type AnswerCallback func(query string, answer widget.Answer, took time.Duration)

// Machine is the state machine of one widget instance. All methods are
// safe for concurrent use.
type Machine struct {
	mu sync.Mutex

	exec             Executor
	perceivedLatency time.Duration
	collapsible      bool
	systemPrompt     string
	initialQuery     string
	onComplete       AnswerCallback
	logger           *slog.Logger
	expand           expander

	state    State
	expanded bool
	input    seed.Selection
	streamed string
	answer   *widget.Answer
	errMsg   string
	feedback Feedback
	version  uint64

	autoSubmitted bool
	pendingSubmit bool
	gen           uint64
	cancelRun     context.CancelFunc
	closed        bool

	subs   map[int]chan Snapshot
	nextID int
}

type Option func(*Machine)

// WithPerceivedLatency sets the pause spent in loading before streaming
// begins.
func WithPerceivedLatency(d time.Duration) Option {
	return func(m *Machine) {
		if d >= 0 {
			m.perceivedLatency = d
		}
	}
}

// WithCollapsible gives the widget a collapsed state.
func WithCollapsible(collapsible bool) Option {
	return func(m *Machine) {
		m.collapsible = collapsible
	}
}

func WithExpand(mode ExpandMode) Option {
	return func(m *Machine) {
		m.expand, m.expanded = resolveExpand(mode)
	}
}

// WithInitialQuery makes Mount submit q once.
func WithInitialQuery(q string) Option {
	return func(m *Machine) {
		m.initialQuery = q
	}
}

func WithSystemPrompt(p string) Option {
	return func(m *Machine) {
		m.systemPrompt = p
	}
}

func WithOnAnswerComplete(fn AnswerCallback) Option {
	return func(m *Machine) {
		m.onComplete = fn
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

func New(exec Executor, opts ...Option) *Machine {
	m := &Machine{
		exec:             exec,
		perceivedLatency: widget.DefaultPerceivedLatency,
		logger:           slog.Default(),
		subs:             make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(m)
	}
	if !m.collapsible {
		m.expanded = true
	}
	if m.expanded {
		m.state = StateInput
	} else {
		m.state = StateCollapsed
	}
	return m
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	s := Snapshot{
		State:        m.state,
		Query:        m.input.Value(),
		SelectedSeed: m.input.Selected(),
		StreamedText: m.streamed,
		Error:        m.errMsg,
		Feedback:     m.feedback,
		Expanded:     m.expanded,
		Version:      m.version,
	}
	if m.answer != nil {
		a := *m.answer
		a.Sources = append([]widget.Citation(nil), m.answer.Sources...)
		s.Answer = &a
	}
	return s
}

// Subscribe returns a channel receiving a snapshot after every change. A
// slow reader only misses intermediate snapshots, never the latest one.
// The channel is closed by cancel or Close.
func (m *Machine) Subscribe() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Snapshot, 16)
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	ch <- m.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if c, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(c)
			}
		})
	}
}

// changedLocked bumps the version and pushes a snapshot to subscribers.
func (m *Machine) changedLocked() {
	m.version++
	snap := m.snapshotLocked()
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
			// drop the oldest so the newest always lands
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (m *Machine) setStateLocked(next State) {
	if m.state == next {
		return
	}
	metrics.SessionTransitions.WithLabelValues(string(m.state), string(next)).Inc()
	m.logger.Debug("Widget transition", "from", m.state, "to", next)
	m.state = next
}

// Expand opens a collapsed widget. Controlled widgets only report the
// request to their owner.
func (m *Machine) Expand() {
	m.requestExpanded(true)
}

// Collapse closes the widget from input or complete.
func (m *Machine) Collapse() {
	m.requestExpanded(false)
}

func (m *Machine) requestExpanded(v bool) {
	m.mu.Lock()
	if m.closed || !m.collapsible {
		m.mu.Unlock()
		return
	}
	if m.expand.controlled {
		fn := m.expand.onChange
		m.mu.Unlock()
		if fn != nil {
			fn(v)
		}
		return
	}
	m.applyExpandedLocked(v)
	m.mu.Unlock()
}

// SyncExpanded is called by the owner of a controlled widget when its
// expanded value changes.
func (m *Machine) SyncExpanded(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.collapsible {
		return
	}
	m.applyExpandedLocked(v)
}

// applyExpandedLocked moves between collapsed and input. Expanding shows
// an empty result, keeping only the typed query.
func (m *Machine) applyExpandedLocked(v bool) {
	switch {
	case v && m.state == StateCollapsed:
		m.expanded = true
		m.clearResultLocked()
		m.setStateLocked(StateInput)
		if m.pendingSubmit {
			m.pendingSubmit = false
			m.changedLocked()
			m.submitLocked()
			return
		}
	case !v && (m.state == StateInput || m.state == StateComplete):
		m.expanded = false
		m.setStateLocked(StateCollapsed)
	default:
		return
	}
	m.changedLocked()
}

// SetQuery records typed input. Typing clears the suggested-question
// highlight.
func (m *Machine) SetQuery(q string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.state == StateCollapsed {
		return
	}
	m.input.Type(q)
	m.changedLocked()
}

// SelectSeed pre-fills the input with a suggested question. From complete
// or error the widget returns to input and the previous answer is cleared.
// Nothing is submitted.
func (m *Machine) SelectSeed(question string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	switch m.state {
	case StateInput:
	case StateComplete, StateError:
		m.clearResultLocked()
		m.setStateLocked(StateInput)
	default:
		return false
	}
	m.input.Click(question)
	m.changedLocked()
	return true
}

// Submit starts answering the pending query. It returns false, changing
// nothing, when the trimmed query is empty or the widget is not accepting
// queries.
func (m *Machine) Submit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitLocked()
}

func (m *Machine) submitLocked() bool {
	if m.closed {
		return false
	}
	switch m.state {
	case StateInput, StateComplete, StateError:
	default:
		return false
	}
	q := strings.TrimSpace(m.input.Value())
	if q == "" {
		return false
	}

	m.cancelRunLocked()
	m.gen++
	m.clearResultLocked()
	m.setStateLocked(StateLoading)
	m.changedLocked()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelRun = cancel
	go m.run(ctx, m.gen, stream.Request{Query: q, SystemPrompt: m.systemPrompt})
	return true
}

// Mount performs the one automatic submit of a widget created with an
// initial query. Later calls do nothing. A collapsed controlled widget asks
// its owner to expand and submits once SyncExpanded(true) arrives.
func (m *Machine) Mount() {
	m.mu.Lock()
	if m.autoSubmitted || m.closed {
		m.mu.Unlock()
		return
	}
	m.autoSubmitted = true
	if strings.TrimSpace(m.initialQuery) == "" {
		m.mu.Unlock()
		return
	}
	m.input.Type(m.initialQuery)
	if m.state == StateCollapsed && m.expand.controlled {
		m.pendingSubmit = true
		fn := m.expand.onChange
		m.mu.Unlock()
		if fn != nil {
			fn(true)
		}
		return
	}
	defer m.mu.Unlock()
	if m.state == StateCollapsed {
		m.pendingSubmit = true
		m.applyExpandedLocked(true)
		return
	}
	m.submitLocked()
}

// NewSearch abandons any answer in flight and resets the session to an
// empty input.
func (m *Machine) NewSearch() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.state == StateCollapsed {
		return false
	}
	m.cancelRunLocked()
	m.gen++
	m.clearResultLocked()
	m.input.Reset()
	m.setStateLocked(StateInput)
	m.changedLocked()
	return true
}

// SetFeedback records a vote on the completed answer.
func (m *Machine) SetFeedback(f Feedback) error {
	switch f {
	case FeedbackNone, FeedbackUp, FeedbackDown:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFeedback, f)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateComplete {
		return ErrFeedbackUnavailable
	}
	m.feedback = f
	m.changedLocked()
	return nil
}

// Close unmounts the widget: the answer in flight is cancelled and all
// subscriptions end.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.cancelRunLocked()
	m.gen++
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}

func (m *Machine) clearResultLocked() {
	m.streamed = ""
	m.answer = nil
	m.errMsg = ""
	m.feedback = FeedbackNone
}

func (m *Machine) cancelRunLocked() {
	if m.cancelRun != nil {
		m.cancelRun()
		m.cancelRun = nil
	}
}

// run drives one submitted query. Events from a run that has been
// superseded by a newer gen are discarded.
func (m *Machine) run(ctx context.Context, gen uint64, req stream.Request) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Answer run panicked", "panic", r)
			m.finish(gen, func() {
				m.errMsg = fmt.Sprint(r)
				m.setStateLocked(StateError)
			})
		}
	}()

	if m.perceivedLatency > 0 {
		timer := time.NewTimer(m.perceivedLatency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	if !m.finish(gen, func() { m.setStateLocked(StateStreaming) }) {
		return
	}

	terminal := false
	for ev := range m.exec.Execute(ctx, req) {
		var completed *widget.Answer
		ok := m.finish(gen, func() {
			switch ev.Kind {
			case stream.EventDelta:
				m.streamed = ev.Text
			case stream.EventComplete:
				m.streamed = ev.Text
				m.answer = &widget.Answer{Text: ev.Text, Sources: ev.Sources}
				a := *m.answer
				completed = &a
				m.setStateLocked(StateComplete)
			case stream.EventFailed:
				m.errMsg = ev.Reason
				m.setStateLocked(StateError)
			}
		})
		if !ok {
			return
		}
		if ev.Kind != stream.EventDelta {
			terminal = true
		}
		if completed != nil && m.onComplete != nil {
			m.onComplete(req.Query, *completed, time.Since(start))
		}
		if terminal {
			return
		}
	}

	if ctx.Err() == nil {
		m.finish(gen, func() {
			m.errMsg = "answer stream ended unexpectedly"
			m.setStateLocked(StateError)
		})
	}
}

// finish applies fn if gen is still the current run and reports whether
// it was.
func (m *Machine) finish(gen uint64, fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.closed {
		return false
	}
	fn()
	m.changedLocked()
	return true
}
