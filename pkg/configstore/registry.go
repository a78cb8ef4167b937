package configstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mikeboe/widget-studio/pkg/widget"
)

// ErrNotFound is returned by a Loader that has nothing stored for an id.
var ErrNotFound = errors.New("configuration not found")

// Loader reads a stored configuration.
type Loader interface {
	LoadConfiguration(ctx context.Context, ownerID string) (widget.Configuration, error)
}

// Registry hands out one Store per widget id. A store is seeded from the
// Loader the first time its id is requested.
type Registry struct {
	mu       sync.Mutex
	stores   map[string]*Store
	loader   Loader
	persist  Persister
	defaults func(ownerID string) widget.Configuration
	opts     []Option
}

func NewRegistry(loader Loader, persister Persister, opts ...Option) *Registry {
	return &Registry{
		stores:  make(map[string]*Store),
		loader:  loader,
		persist: persister,
		opts:    opts,
	}
}

// WithSeed sets the configuration used for ids the loader does not know.
func (r *Registry) WithSeed(fn func(ownerID string) widget.Configuration) *Registry {
	r.defaults = fn
	return r
}

func (r *Registry) Get(ctx context.Context, ownerID string) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[ownerID]; ok {
		return s, nil
	}

	initial := widget.Configuration{}
	if r.defaults != nil {
		initial = r.defaults(ownerID)
	}
	if r.loader != nil {
		cfg, err := r.loader.LoadConfiguration(ctx, ownerID)
		switch {
		case err == nil:
			initial = cfg
		case errors.Is(err, ErrNotFound):
		default:
			return nil, fmt.Errorf("failed to load configuration %s: %w", ownerID, err)
		}
	}

	s := New(ownerID, initial, r.persist, r.opts...)
	r.stores[ownerID] = s
	return s, nil
}

// FlushAll saves every pending configuration and closes the stores.
func (r *Registry) FlushAll(ctx context.Context) {
	r.mu.Lock()
	stores := make([]*Store, 0, len(r.stores))
	for _, s := range r.stores {
		stores = append(stores, s)
	}
	r.mu.Unlock()

	for _, s := range stores {
		s.Flush(ctx)
		s.Close()
	}
}
