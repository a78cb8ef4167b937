// Package stream reads a plain-text answer stream from the answer endpoint
// and turns it into accumulated-text events.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"github.com/mikeboe/widget-studio/pkg/metrics"
	"github.com/mikeboe/widget-studio/pkg/widget"
)

const defaultReadSize = 4096

// Request is the JSON body sent to the answer endpoint.
type Request struct {
	Query        string `json:"query"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
}

// EventKind tells the three event types apart.
type EventKind int

const (
	EventDelta EventKind = iota
	EventComplete
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventDelta:
		return "delta"
	case EventComplete:
		return "complete"
	case EventFailed:
		return "failed"
	}
	return "unknown"
}

// Event is one step of an answer stream. Text always holds the full text
// received so far, never just the newest fragment.
type Event struct {
	Kind    EventKind
	Text    string
	Sources []widget.Citation
	Reason  string
}

// SourceProvider looks up citations for an answered query. Sources are not
// part of the byte stream.
type SourceProvider interface {
	Sources(ctx context.Context, query, answer string) ([]widget.Citation, error)
}

// Consumer issues answer requests against one endpoint.
type Consumer struct {
	endpoint string
	client   *http.Client
	sources  SourceProvider
	logger   *slog.Logger
	readSize int
}

type Option func(*Consumer)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Consumer) {
		if c != nil {
			s.client = c
		}
	}
}

func WithSourceProvider(p SourceProvider) Option {
	return func(s *Consumer) {
		s.sources = p
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Consumer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithReadSize sets the size of each read from the response body.
func WithReadSize(n int) Option {
	return func(s *Consumer) {
		if n > 0 {
			s.readSize = n
		}
	}
}

func NewConsumer(endpoint string, opts ...Option) *Consumer {
	c := &Consumer{
		endpoint: endpoint,
		client:   http.DefaultClient,
		logger:   slog.Default(),
		readSize: defaultReadSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute sends req and yields a Delta per chunk read, followed by exactly
// one Complete or Failed event. A blank query yields nothing. Cancelling
// ctx aborts the request; no further events are yielded after that.
// Failures are never retried.
func (c *Consumer) Execute(ctx context.Context, req Request) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		req.Query = strings.TrimSpace(req.Query)
		if req.Query == "" {
			return
		}

		start := time.Now()
		outcome := "failed"
		defer func() {
			metrics.StreamRequests.WithLabelValues(outcome).Inc()
			metrics.StreamDuration.Observe(time.Since(start).Seconds())
		}()

		fail := func(reason string) {
			if ctx.Err() != nil {
				outcome = "cancelled"
				return
			}
			c.logger.Warn("Answer stream failed", "reason", reason)
			yield(Event{Kind: EventFailed, Reason: reason})
		}

		resp, err := c.post(ctx, req)
		if err != nil {
			fail(errorReason(err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(resp.Body)
			fail(FailureMessage(resp.StatusCode, body))
			return
		}

		text, err := accumulate(resp.Body, c.readSize, func(acc string) bool {
			return yield(Event{Kind: EventDelta, Text: acc})
		})
		if errors.Is(err, errStopped) {
			outcome = "abandoned"
			return
		}
		if err != nil {
			fail(errorReason(err))
			return
		}

		var sources []widget.Citation
		if c.sources != nil {
			sources, err = c.sources.Sources(ctx, req.Query, text)
			if err != nil {
				c.logger.Error("Failed to load answer sources", "error", err)
				sources = nil
			}
		}

		outcome = "complete"
		yield(Event{Kind: EventComplete, Text: text, Sources: sources})
	}
}

func (c *Consumer) post(ctx context.Context, req Request) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/plain")
	return c.client.Do(httpReq)
}

var errStopped = errors.New("consumer stopped")

// accumulate reads UTF-8 text from r and calls emit with the accumulated
// text after every read that produced characters. A rune split across two
// reads is held back until it is complete; malformed input is an error.
func accumulate(r io.Reader, readSize int, emit func(string) bool) (string, error) {
	decoded := transform.NewReader(r, encoding.UTF8Validator)
	buf := make([]byte, readSize)
	var acc strings.Builder

	for {
		n, err := decoded.Read(buf)
		if n > 0 {
			acc.Write(buf[:n])
			if !emit(acc.String()) {
				return acc.String(), errStopped
			}
		}
		if err == io.EOF {
			return acc.String(), nil
		}
		if err != nil {
			return acc.String(), err
		}
	}
}

func errorReason(err error) string {
	if err == nil || err.Error() == "" {
		return "Unknown error"
	}
	return err.Error()
}
