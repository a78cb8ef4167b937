package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/widget-studio/pkg/configstore"
	"github.com/mikeboe/widget-studio/pkg/database"
	"github.com/mikeboe/widget-studio/pkg/metrics"
	"github.com/mikeboe/widget-studio/pkg/preview"
	"github.com/mikeboe/widget-studio/pkg/seed"
	"github.com/mikeboe/widget-studio/pkg/session"
	"github.com/mikeboe/widget-studio/pkg/widget"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownVariant  = errors.New("unknown widget variant")
)

// AnswerRecorder stores answer analytics. *database.PostgresDB satisfies it.
type AnswerRecorder interface {
	RecordAnswerEvent(ctx context.Context, ev database.AnswerEvent) (string, error)
	RecordFeedback(ctx context.Context, eventID, feedback string) error
}

type Service struct {
	Configs  *configstore.Registry
	Exec     session.Executor
	Recorder AnswerRecorder
	// PerceivedLatency overrides the variant default when non-negative.
	PerceivedLatency time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewService(configs *configstore.Registry, exec session.Executor, recorder AnswerRecorder, perceivedLatency time.Duration) *Service {
	return &Service{
		Configs:          configs,
		Exec:             exec,
		Recorder:         recorder,
		PerceivedLatency: perceivedLatency,
		sessions:         make(map[string]*Session),
	}
}

// CarouselPosition is the seed question a carousel row currently shows.
type CarouselPosition struct {
	Row   int    `json:"row"`
	Index int    `json:"index"`
	Item  string `json:"item"`
}

// Session is one mounted widget instance.
type Session struct {
	ID        string         `json:"id"`
	WidgetID  string         `json:"widgetId"`
	Variant   widget.Variant `json:"variant"`
	CreatedAt time.Time      `json:"createdAt"`

	Machine *session.Machine `json:"-"`
	Rows    *seed.Rows       `json:"-"`

	mu      sync.Mutex
	eventID string
	subs    map[int]chan CarouselPosition
	nextSub int
}

// SubscribeCarousel receives carousel advances until cancel is called.
func (s *Session) SubscribeCarousel() (<-chan CarouselPosition, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan CarouselPosition, 4)
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Session) publishCarousel(pos CarouselPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- pos:
		default:
		}
	}
}

func (s *Session) setEventID(id string) {
	s.mu.Lock()
	s.eventID = id
	s.mu.Unlock()
}

func (s *Session) lastEventID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventID
}

type CreateSessionRequest struct {
	WidgetID     string `json:"widgetId" binding:"required"`
	Variant      string `json:"variant" binding:"required"`
	InitialQuery string `json:"initialQuery,omitempty"`
	Expanded     *bool  `json:"expanded,omitempty"`
}

func (s *Service) latencyFor(theme widget.Theme) time.Duration {
	if s.PerceivedLatency >= 0 {
		return s.PerceivedLatency
	}
	return theme.PerceivedLatency
}

// CreateSession mounts a widget with the current configuration of its
// widget id. An initial query is submitted right away.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	store, err := s.Configs.Get(ctx, req.WidgetID)
	if err != nil {
		return nil, err
	}
	rw := preview.Render(req.Variant, store.Get())
	if rw == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariant, req.Variant)
	}
	theme, _ := widget.Defaults(rw.Variant)

	expanded := rw.Props.DefaultExpanded
	if req.Expanded != nil {
		expanded = *req.Expanded
	}

	sess := &Session{
		ID:        uuid.NewString(),
		WidgetID:  req.WidgetID,
		Variant:   rw.Variant,
		CreatedAt: time.Now().UTC(),
		subs:      make(map[int]chan CarouselPosition),
	}
	logger := slog.With("session_id", sess.ID, "widget_id", req.WidgetID)

	sess.Machine = session.New(s.Exec,
		session.WithPerceivedLatency(s.latencyFor(theme)),
		session.WithCollapsible(rw.Props.Collapsible),
		session.WithExpand(session.Uncontrolled{Initial: expanded}),
		session.WithInitialQuery(req.InitialQuery),
		session.WithSystemPrompt(rw.Props.SystemPrompt),
		session.WithOnAnswerComplete(s.recordAnswer(sess)),
		session.WithLogger(logger),
	)

	if rw.Props.AutoScroll && rw.Props.CarouselIntervalMs > 0 {
		row1, row2 := rw.Props.SeedQuestionsRow1, rw.Props.SeedQuestionsRow2
		if row1 == nil && row2 == nil {
			row1 = rw.Props.SeedQuestions
		}
		sess.Rows = seed.NewRows(row1, row2, time.Duration(rw.Props.CarouselIntervalMs)*time.Millisecond,
			func(row, index int, item string) {
				sess.publishCarousel(CarouselPosition{Row: row, Index: index, Item: item})
			})
		sess.Rows.Start()
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	metrics.ActiveSessions.Inc()

	sess.Machine.Mount()
	logger.Info("Session created", "variant", rw.Variant)
	return sess, nil
}

func (s *Service) recordAnswer(sess *Session) session.AnswerCallback {
	return func(query string, answer widget.Answer, took time.Duration) {
		sess.setEventID("")
		if s.Recorder == nil {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			id, err := s.Recorder.RecordAnswerEvent(ctx, database.AnswerEvent{
				WidgetID:    sess.WidgetID,
				SessionID:   sess.ID,
				Variant:     sess.Variant,
				Query:       query,
				AnswerLen:   len(answer.Text),
				SourceCount: len(answer.Sources),
				Took:        took,
			})
			if err != nil {
				slog.Error("Failed to record answer event", "session_id", sess.ID, "error", err)
				return
			}
			sess.setEventID(id)
		}()
	}
}

func (s *Service) GetSession(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// SetFeedback rates the current answer and forwards the rating to the
// recorder when the answer was recorded.
func (s *Service) SetFeedback(ctx context.Context, sess *Session, f session.Feedback) error {
	if err := sess.Machine.SetFeedback(f); err != nil {
		return err
	}
	if s.Recorder == nil {
		return nil
	}
	if id := sess.lastEventID(); id != "" {
		if err := s.Recorder.RecordFeedback(ctx, id, string(f)); err != nil {
			slog.Error("Failed to record feedback", "session_id", sess.ID, "error", err)
		}
	}
	return nil
}

func (s *Service) DeleteSession(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	closeSession(sess)
	return nil
}

// Close unmounts every session.
func (s *Service) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()
	for _, sess := range sessions {
		closeSession(sess)
	}
}

func closeSession(sess *Session) {
	if sess.Rows != nil {
		sess.Rows.Stop()
	}
	sess.Machine.Close()
	metrics.ActiveSessions.Dec()
}
