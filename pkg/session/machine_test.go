package session

import (
	"context"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/widget-studio/pkg/stream"
	"github.com/mikeboe/widget-studio/pkg/widget"
)

// scriptedExecutor replays chunks as accumulated deltas and then completes,
// or fails with failReason when set.
type scriptedExecutor struct {
	chunks     []string
	sources    []widget.Citation
	failReason string
	block      chan struct{}

	calls atomic.Int32
	mu    sync.Mutex
	reqs  []stream.Request
}

func (e *scriptedExecutor) Execute(ctx context.Context, req stream.Request) iter.Seq[stream.Event] {
	e.calls.Add(1)
	e.mu.Lock()
	e.reqs = append(e.reqs, req)
	e.mu.Unlock()

	return func(yield func(stream.Event) bool) {
		if e.block != nil {
			select {
			case <-e.block:
			case <-ctx.Done():
				return
			}
		}
		if e.failReason != "" {
			yield(stream.Event{Kind: stream.EventFailed, Reason: e.failReason})
			return
		}
		acc := ""
		for _, c := range e.chunks {
			acc += c
			if !yield(stream.Event{Kind: stream.EventDelta, Text: acc}) {
				return
			}
		}
		yield(stream.Event{Kind: stream.EventComplete, Text: acc, Sources: e.sources})
	}
}

func waitFor(t *testing.T, m *Machine, want State) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return m.Snapshot().State == want }, 2*time.Second, time.Millisecond,
		"state never reached %s, last %s", want, m.Snapshot().State)
	return m.Snapshot()
}

func newMachine(exec Executor, opts ...Option) *Machine {
	return New(exec, append([]Option{WithPerceivedLatency(0)}, opts...)...)
}

func TestInitialState(t *testing.T) {
	assert.Equal(t, StateInput, newMachine(nil).Snapshot().State)
	assert.Equal(t, StateCollapsed, newMachine(nil, WithCollapsible(true)).Snapshot().State)
	assert.Equal(t, StateInput, newMachine(nil, WithCollapsible(true), WithExpand(Uncontrolled{Initial: true})).Snapshot().State)
}

func TestSubmitStreamsToComplete(t *testing.T) {
	exec := &scriptedExecutor{
		chunks:  []string{"Whole", " grain", " rye."},
		sources: []widget.Citation{{ID: "1", Title: "Rye", URL: "https://example.com/rye", Domain: "example.com"}},
	}
	m := newMachine(exec, WithPerceivedLatency(20*time.Millisecond))
	defer m.Close()

	updates, cancel := m.Subscribe()
	defer cancel()

	m.SetQuery("What is the best bread for weight loss?")
	require.True(t, m.Submit())

	final := waitFor(t, m, StateComplete)
	require.NotNil(t, final.Answer)
	assert.Equal(t, "Whole grain rye.", final.Answer.Text)
	assert.Equal(t, "Whole grain rye.", final.StreamedText)
	assert.Equal(t, exec.sources, final.Answer.Sources)

	var seen []State
	timeout := time.After(time.Second)
	for done := false; !done; {
		select {
		case s := <-updates:
			if len(seen) == 0 || seen[len(seen)-1] != s.State {
				seen = append(seen, s.State)
			}
			done = s.State == StateComplete
		case <-timeout:
			t.Fatal("no complete snapshot")
		}
	}
	assert.Equal(t, []State{StateInput, StateLoading, StateStreaming, StateComplete}, seen)
}

func TestSubmitRejectsBlankQuery(t *testing.T) {
	exec := &scriptedExecutor{chunks: []string{"x"}}
	m := newMachine(exec)
	defer m.Close()

	for _, q := range []string{"", "   ", "\t\n"} {
		m.SetQuery(q)
		assert.False(t, m.Submit())
		assert.Equal(t, StateInput, m.Snapshot().State)
	}
	assert.Equal(t, int32(0), exec.calls.Load())
}

func TestSubmitTrimsQueryAndPassesSystemPrompt(t *testing.T) {
	exec := &scriptedExecutor{chunks: []string{"x"}}
	m := newMachine(exec, WithSystemPrompt("answer as a baker"))
	defer m.Close()

	m.SetQuery("  rye?  ")
	require.True(t, m.Submit())
	waitFor(t, m, StateComplete)

	exec.mu.Lock()
	defer exec.mu.Unlock()
	assert.Equal(t, []stream.Request{{Query: "rye?", SystemPrompt: "answer as a baker"}}, exec.reqs)
}

func TestFailureEntersErrorAndRecovers(t *testing.T) {
	exec := &scriptedExecutor{failReason: "answer endpoint not found"}
	m := newMachine(exec)
	defer m.Close()

	m.SetQuery("q")
	m.Submit()
	s := waitFor(t, m, StateError)
	assert.Contains(t, s.Error, "endpoint not found")

	// retry by submitting again
	exec.failReason = ""
	exec.chunks = []string{"ok"}
	require.True(t, m.Submit())
	s = waitFor(t, m, StateComplete)
	assert.Empty(t, s.Error)
}

func TestNewSearchResetsEverything(t *testing.T) {
	exec := &scriptedExecutor{chunks: []string{"answer"}}
	m := newMachine(exec)
	defer m.Close()

	m.SelectSeed("seeded")
	m.Submit()
	waitFor(t, m, StateComplete)
	require.NoError(t, m.SetFeedback(FeedbackUp))

	require.True(t, m.NewSearch())
	s := m.Snapshot()
	assert.Equal(t, StateInput, s.State)
	assert.Empty(t, s.Query)
	assert.Empty(t, s.SelectedSeed)
	assert.Empty(t, s.StreamedText)
	assert.Nil(t, s.Answer)
	assert.Equal(t, FeedbackNone, s.Feedback)
	assert.Empty(t, s.Error)
}

func TestNewSearchAbandonsStreamInFlight(t *testing.T) {
	exec := &scriptedExecutor{chunks: []string{"late"}, block: make(chan struct{})}
	m := newMachine(exec)
	defer m.Close()

	m.SetQuery("q")
	m.Submit()
	waitFor(t, m, StateStreaming)

	m.NewSearch()
	close(exec.block)
	time.Sleep(20 * time.Millisecond)

	s := m.Snapshot()
	assert.Equal(t, StateInput, s.State)
	assert.Empty(t, s.StreamedText)
}

func TestAutoSubmitRunsOnce(t *testing.T) {
	exec := &scriptedExecutor{chunks: []string{"a"}}
	m := newMachine(exec, WithInitialQuery("from the url"), WithCollapsible(true))
	defer m.Close()

	for i := 0; i < 5; i++ {
		m.Mount()
	}
	s := waitFor(t, m, StateComplete)
	for i := 0; i < 5; i++ {
		m.Mount()
	}
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(1), exec.calls.Load())
	assert.Equal(t, "from the url", s.Query)
	assert.True(t, s.Expanded)
}

func TestMountWithoutInitialQueryDoesNothing(t *testing.T) {
	exec := &scriptedExecutor{}
	m := newMachine(exec)
	defer m.Close()

	m.Mount()
	assert.Equal(t, StateInput, m.Snapshot().State)
	assert.Equal(t, int32(0), exec.calls.Load())
}

func TestSelectSeedFromCompleteClearsAnswerWithoutSubmitting(t *testing.T) {
	exec := &scriptedExecutor{chunks: []string{"first answer"}, sources: []widget.Citation{{ID: "s"}}}
	m := newMachine(exec)
	defer m.Close()

	m.SetQuery("first")
	m.Submit()
	waitFor(t, m, StateComplete)

	require.True(t, m.SelectSeed("Which grains are high in protein?"))
	s := m.Snapshot()
	assert.Equal(t, StateInput, s.State)
	assert.Equal(t, "Which grains are high in protein?", s.Query)
	assert.Equal(t, "Which grains are high in protein?", s.SelectedSeed)
	assert.Nil(t, s.Answer)
	assert.Empty(t, s.StreamedText)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), exec.calls.Load())

	m.SetQuery("Which grains are high in fibre?")
	assert.Empty(t, m.Snapshot().SelectedSeed)

	require.True(t, m.Submit())
	waitFor(t, m, StateComplete)
	assert.Equal(t, int32(2), exec.calls.Load())
}

func TestSelectSeedRejectedWhileStreaming(t *testing.T) {
	exec := &scriptedExecutor{chunks: []string{"x"}, block: make(chan struct{})}
	m := newMachine(exec)
	defer m.Close()

	m.SetQuery("q")
	m.Submit()
	waitFor(t, m, StateStreaming)
	assert.False(t, m.SelectSeed("other"))
	close(exec.block)
}

func TestFeedbackOnlyWhileComplete(t *testing.T) {
	exec := &scriptedExecutor{chunks: []string{"x"}}
	m := newMachine(exec)
	defer m.Close()

	assert.ErrorIs(t, m.SetFeedback(FeedbackUp), ErrFeedbackUnavailable)

	m.SetQuery("q")
	m.Submit()
	waitFor(t, m, StateComplete)

	assert.ErrorIs(t, m.SetFeedback("sideways"), ErrInvalidFeedback)
	require.NoError(t, m.SetFeedback(FeedbackDown))
	assert.Equal(t, FeedbackDown, m.Snapshot().Feedback)
	assert.Equal(t, StateComplete, m.Snapshot().State)
}

func TestAnswerCompleteCallback(t *testing.T) {
	exec := &scriptedExecutor{chunks: []string{"a", "b"}}
	got := make(chan string, 1)
	m := newMachine(exec, WithOnAnswerComplete(func(q string, a widget.Answer, took time.Duration) {
		got <- q + "=" + a.Text
	}))
	defer m.Close()

	m.SetQuery("q")
	m.Submit()

	select {
	case v := <-got:
		assert.Equal(t, "q=ab", v)
	case <-time.After(time.Second):
		t.Fatal("callback not invoked")
	}
}

func TestUncontrolledExpandCollapse(t *testing.T) {
	m := newMachine(&scriptedExecutor{chunks: []string{"x"}}, WithCollapsible(true))
	defer m.Close()

	m.SetQuery("ignored while collapsed")
	assert.Empty(t, m.Snapshot().Query)

	m.Expand()
	assert.Equal(t, StateInput, m.Snapshot().State)

	m.Collapse()
	assert.Equal(t, StateCollapsed, m.Snapshot().State)
	assert.False(t, m.Submit())

	m.Expand()
	m.SetQuery("q")
	m.Submit()
	waitFor(t, m, StateComplete)
	m.Collapse()
	assert.Equal(t, StateCollapsed, m.Snapshot().State)
}

func TestControlledExpandWaitsForOwner(t *testing.T) {
	var requested []bool
	m := newMachine(nil, WithCollapsible(true), WithExpand(Controlled{
		Value:    false,
		OnChange: func(v bool) { requested = append(requested, v) },
	}))
	defer m.Close()

	m.Expand()
	assert.Equal(t, []bool{true}, requested)
	assert.Equal(t, StateCollapsed, m.Snapshot().State)

	m.SyncExpanded(true)
	assert.Equal(t, StateInput, m.Snapshot().State)
	assert.True(t, m.Snapshot().Expanded)
}

func TestMountControlledCollapsedAsksOwner(t *testing.T) {
	tests := []struct {
		name      string
		ownerSync bool
		wantState State
		wantCalls int32
	}{
		{name: "OwnerExpands", ownerSync: true, wantState: StateComplete, wantCalls: 1},
		{name: "OwnerIgnores", ownerSync: false, wantState: StateCollapsed, wantCalls: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &scriptedExecutor{chunks: []string{"answer"}}
			var (
				mu        sync.Mutex
				requested []bool
				m         *Machine
			)
			m = newMachine(exec, WithCollapsible(true), WithInitialQuery("from the url"), WithExpand(Controlled{
				Value: false,
				OnChange: func(v bool) {
					mu.Lock()
					requested = append(requested, v)
					mu.Unlock()
					if tt.ownerSync {
						m.SyncExpanded(v)
					}
				},
			}))
			defer m.Close()

			m.Mount()
			mu.Lock()
			assert.Equal(t, []bool{true}, requested)
			mu.Unlock()

			if tt.wantState == StateComplete {
				s := waitFor(t, m, StateComplete)
				assert.True(t, s.Expanded)
				assert.Equal(t, "from the url", s.Query)
			} else {
				time.Sleep(20 * time.Millisecond)
				assert.Equal(t, tt.wantState, m.Snapshot().State)
				assert.False(t, m.Snapshot().Expanded)
			}
			assert.Equal(t, tt.wantCalls, exec.calls.Load())
		})
	}
}

func TestMountControlledLateSyncSubmitsOnce(t *testing.T) {
	exec := &scriptedExecutor{chunks: []string{"answer"}}
	m := newMachine(exec, WithCollapsible(true), WithInitialQuery("later"), WithExpand(Controlled{Value: false}))
	defer m.Close()

	m.Mount()
	assert.Equal(t, StateCollapsed, m.Snapshot().State)

	m.SyncExpanded(true)
	waitFor(t, m, StateComplete)

	m.Collapse()
	m.SyncExpanded(false)
	m.SyncExpanded(true)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateInput, m.Snapshot().State)
	assert.Equal(t, int32(1), exec.calls.Load())
}

func TestExpandAfterCollapseShowsEmptyResult(t *testing.T) {
	tests := []struct {
		name string
		exec *scriptedExecutor
		from State
	}{
		{name: "FromComplete", exec: &scriptedExecutor{chunks: []string{"old ", "answer"}}, from: StateComplete},
		{name: "WithSources", exec: &scriptedExecutor{chunks: []string{"x"}, sources: []widget.Citation{{ID: "s"}}}, from: StateComplete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMachine(tt.exec, WithCollapsible(true), WithExpand(Uncontrolled{Initial: true}))
			defer m.Close()

			m.SetQuery("question")
			require.True(t, m.Submit())
			waitFor(t, m, tt.from)
			require.NoError(t, m.SetFeedback(FeedbackUp))

			m.Collapse()
			assert.Equal(t, StateCollapsed, m.Snapshot().State)
			m.Expand()

			s := m.Snapshot()
			assert.Equal(t, StateInput, s.State)
			assert.Empty(t, s.StreamedText)
			assert.Nil(t, s.Answer)
			assert.Empty(t, s.Error)
			assert.Equal(t, FeedbackNone, s.Feedback)
			assert.Equal(t, "question", s.Query)
		})
	}
}

func TestNonCollapsibleIgnoresCollapse(t *testing.T) {
	m := newMachine(nil)
	defer m.Close()
	m.Collapse()
	assert.Equal(t, StateInput, m.Snapshot().State)
}

func TestCloseEndsSubscriptionsAndRun(t *testing.T) {
	exec := &scriptedExecutor{chunks: []string{"x"}, block: make(chan struct{})}
	m := newMachine(exec)

	updates, _ := m.Subscribe()
	m.SetQuery("q")
	m.Submit()
	waitFor(t, m, StateStreaming)

	m.Close()
	for range updates {
	}
	close(exec.block)
	assert.False(t, m.Submit())
}

func TestExecutorWithoutTerminalEventErrors(t *testing.T) {
	m := newMachine(executorFunc(func(ctx context.Context, req stream.Request) iter.Seq[stream.Event] {
		return func(yield func(stream.Event) bool) {}
	}))
	defer m.Close()

	m.SetQuery("q")
	m.Submit()
	s := waitFor(t, m, StateError)
	assert.NotEmpty(t, s.Error)
}

type executorFunc func(ctx context.Context, req stream.Request) iter.Seq[stream.Event]

func (f executorFunc) Execute(ctx context.Context, req stream.Request) iter.Seq[stream.Event] {
	return f(ctx, req)
}

func TestWithStreamConsumer404(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	m := newMachine(stream.NewConsumer(srv.URL))
	defer m.Close()

	m.SetQuery("q")
	m.Submit()
	s := waitFor(t, m, StateError)
	assert.Contains(t, s.Error, "endpoint not found")
}

func TestWithStreamConsumerConcatenatesChunks(t *testing.T) {
	chunks := []string{"Sprouted ", "grain ", "bread."}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, c := range chunks {
			_, _ = w.Write([]byte(c))
			w.(http.Flusher).Flush()
		}
	}))
	defer srv.Close()

	m := newMachine(stream.NewConsumer(srv.URL))
	defer m.Close()

	m.SetQuery("What is the best bread for weight loss?")
	m.Submit()
	s := waitFor(t, m, StateComplete)
	assert.Equal(t, strings.Join(chunks, ""), s.Answer.Text)
}
