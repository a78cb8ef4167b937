package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/widget-studio/pkg/widget"
)

type recordingPersister struct {
	mu    sync.Mutex
	saves []widget.Configuration
	err   error
}

func (p *recordingPersister) SaveConfiguration(ctx context.Context, ownerID string, cfg widget.Configuration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves = append(p.saves, cfg)
	return p.err
}

func (p *recordingPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saves)
}

func (p *recordingPersister) last() widget.Configuration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves[len(p.saves)-1]
}

func title(t *testing.T, cfg widget.Configuration) string {
	t.Helper()
	s, err := cfg.Decode()
	require.NoError(t, err)
	require.NotNil(t, s.Title)
	return *s.Title
}

func TestSetIsImmediatelyVisible(t *testing.T) {
	s := New("w1", nil, nil)
	s.Set(widget.Configuration{"title": json.RawMessage(`"Now"`)})
	assert.Equal(t, "Now", title(t, s.Get()))
}

func TestRapidSetsCoalesceIntoOneSave(t *testing.T) {
	p := &recordingPersister{}
	s := New("w1", nil, p, WithDebounce(50*time.Millisecond))
	defer s.Close()

	for _, v := range []string{`"a"`, `"b"`, `"c"`, `"d"`, `"e"`} {
		s.Set(widget.Configuration{"title": json.RawMessage(v)})
	}
	s.Set(widget.Configuration{"placeholder": json.RawMessage(`"p"`)})

	require.Eventually(t, func() bool { return p.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, p.count())

	saved := p.last()
	assert.Equal(t, "e", title(t, saved))
	assert.JSONEq(t, `"p"`, string(saved["placeholder"]))
}

func TestSeparatedBurstsSaveSeparately(t *testing.T) {
	p := &recordingPersister{}
	s := New("w1", nil, p, WithDebounce(20*time.Millisecond))
	defer s.Close()

	s.Set(widget.Configuration{"title": json.RawMessage(`"first"`)})
	require.Eventually(t, func() bool { return p.count() == 1 }, time.Second, 5*time.Millisecond)

	s.Set(widget.Configuration{"title": json.RawMessage(`"second"`)})
	require.Eventually(t, func() bool { return p.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "second", title(t, p.last()))
}

func TestPersistFailureKeepsInMemoryState(t *testing.T) {
	p := &recordingPersister{err: errors.New("database unreachable")}
	s := New("w1", nil, p, WithDebounce(10*time.Millisecond))
	defer s.Close()

	s.Set(widget.Configuration{"title": json.RawMessage(`"kept"`)})
	require.Eventually(t, func() bool { return p.count() == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, "kept", title(t, s.Get()))
}

func TestFlushSavesPendingNow(t *testing.T) {
	p := &recordingPersister{}
	s := New("w1", nil, p, WithDebounce(time.Hour))
	defer s.Close()

	s.Set(widget.Configuration{"title": json.RawMessage(`"flushed"`)})
	s.Flush(context.Background())

	require.Equal(t, 1, p.count())
	assert.Equal(t, "flushed", title(t, p.last()))

	// nothing pending any more
	s.Flush(context.Background())
	assert.Equal(t, 1, p.count())
}

func TestCloseDropsPendingSave(t *testing.T) {
	p := &recordingPersister{}
	s := New("w1", nil, p, WithDebounce(10*time.Millisecond))

	s.Set(widget.Configuration{"title": json.RawMessage(`"dropped"`)})
	s.Close()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, p.count())
}

func TestOnChange(t *testing.T) {
	s := New("w1", nil, nil)

	var got []string
	cancel := s.OnChange(func(cfg widget.Configuration) {
		got = append(got, title(t, cfg))
	})

	s.Set(widget.Configuration{"title": json.RawMessage(`"one"`)})
	s.Set(widget.Configuration{"title": json.RawMessage(`"two"`)})
	cancel()
	s.Set(widget.Configuration{"title": json.RawMessage(`"three"`)})

	assert.Equal(t, []string{"one", "two"}, got)
}

type mapLoader map[string]widget.Configuration

func (m mapLoader) LoadConfiguration(ctx context.Context, ownerID string) (widget.Configuration, error) {
	cfg, ok := m[ownerID]
	if !ok {
		return nil, ErrNotFound
	}
	return cfg, nil
}

func TestRegistry(t *testing.T) {
	loader := mapLoader{"stored": {"title": json.RawMessage(`"from db"`)}}
	r := NewRegistry(loader, nil).WithSeed(func(string) widget.Configuration {
		return widget.Configuration{"title": json.RawMessage(`"seed"`)}
	})

	stored, err := r.Get(context.Background(), "stored")
	require.NoError(t, err)
	assert.Equal(t, "from db", title(t, stored.Get()))

	fresh, err := r.Get(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, "seed", title(t, fresh.Get()))

	again, err := r.Get(context.Background(), "stored")
	require.NoError(t, err)
	assert.Same(t, stored, again)
}

type failingLoader struct{}

func (failingLoader) LoadConfiguration(ctx context.Context, ownerID string) (widget.Configuration, error) {
	return nil, errors.New("boom")
}

func TestRegistryLoadError(t *testing.T) {
	r := NewRegistry(failingLoader{}, nil)
	_, err := r.Get(context.Background(), "x")
	assert.ErrorContains(t, err, "boom")
}
