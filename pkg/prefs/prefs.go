// Package prefs stores the variant and theme a user last previewed.
package prefs

import (
	"context"
	"errors"
	"sync"

	"github.com/mikeboe/widget-studio/pkg/widget"
)

// ErrNotFound is returned when no preferences were saved for a user.
var ErrNotFound = errors.New("preview preferences not found")

// Theme is the light or dark preview canvas.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Prefs are the preview settings remembered between visits.
type Prefs struct {
	Variant widget.Variant `json:"variant"`
	Theme   Theme          `json:"theme"`
}

// Default is used when a user has nothing saved.
var Default = Prefs{Variant: widget.VariantFloating, Theme: ThemeLight}

// Normalize replaces unknown values with their defaults.
func (p Prefs) Normalize() Prefs {
	if _, ok := widget.Defaults(p.Variant); !ok {
		p.Variant = Default.Variant
	}
	if p.Theme != ThemeLight && p.Theme != ThemeDark {
		p.Theme = Default.Theme
	}
	return p
}

// Storage is where preview preferences live.
type Storage interface {
	Load(ctx context.Context, user string) (Prefs, error)
	Save(ctx context.Context, user string, p Prefs) error
}

// LoadOrDefault returns the saved preferences of user, or Default when
// nothing is saved.
func LoadOrDefault(ctx context.Context, s Storage, user string) (Prefs, error) {
	p, err := s.Load(ctx, user)
	if errors.Is(err, ErrNotFound) {
		return Default, nil
	}
	if err != nil {
		return Default, err
	}
	return p.Normalize(), nil
}

// MemoryStorage keeps preferences in process.
type MemoryStorage struct {
	mu    sync.RWMutex
	prefs map[string]Prefs
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{prefs: make(map[string]Prefs)}
}

func (m *MemoryStorage) Load(_ context.Context, user string) (Prefs, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prefs[user]
	if !ok {
		return Prefs{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStorage) Save(_ context.Context, user string, p Prefs) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[user] = p.Normalize()
	return nil
}
