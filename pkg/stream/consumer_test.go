package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/widget-studio/pkg/widget"
)

// chunkReader returns its chunks one Read at a time.
type chunkReader struct {
	chunks [][]byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n < len(r.chunks[0]) {
		r.chunks[0] = r.chunks[0][n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func splitAt(data []byte, cuts ...int) [][]byte {
	var out [][]byte
	prev := 0
	for _, c := range cuts {
		out = append(out, data[prev:c])
		prev = c
	}
	return append(out, data[prev:])
}

func TestAccumulateIsIndependentOfChunkBoundaries(t *testing.T) {
	text := "Brød, crème brûlée 🍞 and 全麦面包"
	data := []byte(text)

	tests := []struct {
		name   string
		chunks [][]byte
	}{
		{"Single chunk", [][]byte{data}},
		{"Split inside ø", splitAt(data, 3)},
		{"Split inside emoji", splitAt(data, 23, 24, 25)},
		{"Split inside CJK", splitAt(data, len(data)-2)},
	}

	var oneByte [][]byte
	for i := range data {
		oneByte = append(oneByte, data[i:i+1])
	}
	tests = append(tests, struct {
		name   string
		chunks [][]byte
	}{"One byte per chunk", oneByte})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var deltas []string
			got, err := accumulate(&chunkReader{chunks: tt.chunks}, 64, func(acc string) bool {
				deltas = append(deltas, acc)
				return true
			})
			require.NoError(t, err)
			assert.Equal(t, text, got)

			for i := 1; i < len(deltas); i++ {
				assert.True(t, strings.HasPrefix(deltas[i], deltas[i-1]), "delta %d is not an extension", i)
				assert.GreaterOrEqual(t, len(deltas[i]), len(deltas[i-1]))
			}
			for _, d := range deltas {
				assert.NotContains(t, d, "�")
			}
		})
	}
}

func TestAccumulateRejectsMalformedInput(t *testing.T) {
	_, err := accumulate(&chunkReader{chunks: [][]byte{[]byte("ok "), {0xff, 0xfe}}}, 64, func(string) bool { return true })
	assert.Error(t, err)
}

func TestAccumulateRejectsTruncatedRune(t *testing.T) {
	_, err := accumulate(&chunkReader{chunks: [][]byte{[]byte("bread "), {0xf0, 0x9f}}}, 64, func(string) bool { return true })
	assert.Error(t, err)
}

func flushingServer(t *testing.T, chunks []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, c := range chunks {
			_, _ = w.Write([]byte(c))
			w.(http.Flusher).Flush()
		}
	}))
}

func collect(seq func(func(Event) bool)) []Event {
	var events []Event
	for ev := range seq {
		events = append(events, ev)
	}
	return events
}

func TestExecuteStreamsAccumulatedText(t *testing.T) {
	chunks := []string{"Whole ", "grain ", "rye ", "is a good choice."}
	srv := flushingServer(t, chunks)
	defer srv.Close()

	c := NewConsumer(srv.URL)
	events := collect(c.Execute(context.Background(), Request{Query: "What is the best bread for weight loss?"}))

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventComplete, last.Kind)
	assert.Equal(t, strings.Join(chunks, ""), last.Text)

	prev := ""
	for _, ev := range events[:len(events)-1] {
		assert.Equal(t, EventDelta, ev.Kind)
		assert.True(t, strings.HasPrefix(ev.Text, prev))
		prev = ev.Text
	}
}

func TestExecuteBlankQueryIsNoop(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := NewConsumer(srv.URL)
	for _, q := range []string{"", "   ", "\n\t"} {
		assert.Empty(t, collect(c.Execute(context.Background(), Request{Query: q})))
	}
	assert.Equal(t, int32(0), hits.Load())
}

func TestExecuteSendsTrimmedQueryAndSystemPrompt(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	collect(NewConsumer(srv.URL).Execute(context.Background(), Request{Query: "  rye?  ", SystemPrompt: "be brief"}))
	assert.Equal(t, Request{Query: "rye?", SystemPrompt: "be brief"}, got)
}

func TestExecuteMapsHTTPFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"Not found", http.StatusNotFound, "", "answer endpoint not found"},
		{"Unauthorized", http.StatusUnauthorized, `{"error":"no key"}`, "authentication error"},
		{"Forbidden", http.StatusForbidden, "", "authentication error"},
		{"Server error with details", http.StatusInternalServerError, `{"error":"boom","details":"model unavailable"}`, "server error: model unavailable"},
		{"Server error plain text", http.StatusInternalServerError, "upstream crashed", "server error: upstream crashed"},
		{"Other status", http.StatusTooManyRequests, `{"error":"slow down"}`, "request failed (429): slow down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			events := collect(NewConsumer(srv.URL).Execute(context.Background(), Request{Query: "q"}))
			require.Len(t, events, 1)
			assert.Equal(t, EventFailed, events[0].Kind)
			assert.Equal(t, tt.want, events[0].Reason)
		})
	}
}

func TestExecuteNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	events := collect(NewConsumer(url).Execute(context.Background(), Request{Query: "q"}))
	require.Len(t, events, 1)
	assert.Equal(t, EventFailed, events[0].Kind)
	assert.NotEmpty(t, events[0].Reason)
}

func TestExecuteMalformedStreamFails(t *testing.T) {
	srv := flushingServer(t, []string{"fine ", "\xff\xfe"})
	defer srv.Close()

	events := collect(NewConsumer(srv.URL).Execute(context.Background(), Request{Query: "q"}))
	require.NotEmpty(t, events)
	assert.Equal(t, EventFailed, events[len(events)-1].Kind)
}

type staticSources struct {
	sources []widget.Citation
	err     error
}

func (s staticSources) Sources(ctx context.Context, query, answer string) ([]widget.Citation, error) {
	return s.sources, s.err
}

func TestExecuteAttachesSources(t *testing.T) {
	srv := flushingServer(t, []string{"answer"})
	defer srv.Close()

	want := []widget.Citation{{ID: "1", Title: "Rye bread", URL: "https://example.com/rye", Domain: "example.com"}}
	c := NewConsumer(srv.URL, WithSourceProvider(staticSources{sources: want}))

	events := collect(c.Execute(context.Background(), Request{Query: "q"}))
	last := events[len(events)-1]
	assert.Equal(t, EventComplete, last.Kind)
	assert.Equal(t, want, last.Sources)
}

func TestExecuteSourceFailureStillCompletes(t *testing.T) {
	srv := flushingServer(t, []string{"answer"})
	defer srv.Close()

	c := NewConsumer(srv.URL, WithSourceProvider(staticSources{err: errors.New("vector store down")}))

	events := collect(c.Execute(context.Background(), Request{Query: "q"}))
	last := events[len(events)-1]
	assert.Equal(t, EventComplete, last.Kind)
	assert.Equal(t, "answer", last.Text)
	assert.Nil(t, last.Sources)
}

func TestExecuteCancelledYieldsNoFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var events []Event
	for ev := range NewConsumer(srv.URL).Execute(ctx, Request{Query: "q"}) {
		events = append(events, ev)
		cancel()
	}

	require.Len(t, events, 1)
	assert.Equal(t, EventDelta, events[0].Kind)
}

func TestFailureMessage(t *testing.T) {
	assert.Equal(t, "request failed (418)", FailureMessage(418, nil))
	assert.Equal(t, "server error: unknown error", FailureMessage(500, []byte("  ")))
	assert.Equal(t, "server error: just error", FailureMessage(500, []byte(`{"error":"just error"}`)))
}
