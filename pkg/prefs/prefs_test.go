package prefs

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/widget-studio/pkg/widget"
)

func newRedis(t *testing.T) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s, err := NewRedisStorage(context.Background(), "", WithClient(client), WithTTL(time.Hour), WithPrefix("test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestStorage(t *testing.T) {
	redisStore, _ := newRedis(t)
	stores := map[string]Storage{
		"Memory": NewMemoryStorage(),
		"Redis":  redisStore,
	}
	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Load(ctx, "ana")
			assert.ErrorIs(t, err, ErrNotFound)

			p, err := LoadOrDefault(ctx, s, "ana")
			require.NoError(t, err)
			assert.Equal(t, Default, p)

			require.NoError(t, s.Save(ctx, "ana", Prefs{Variant: widget.VariantFood, Theme: ThemeDark}))
			p, err = s.Load(ctx, "ana")
			require.NoError(t, err)
			assert.Equal(t, Prefs{Variant: widget.VariantFood, Theme: ThemeDark}, p)

			require.NoError(t, s.Save(ctx, "ben", Prefs{Variant: "sidebar", Theme: "sepia"}))
			p, err = LoadOrDefault(ctx, s, "ben")
			require.NoError(t, err)
			assert.Equal(t, Default, p)
		})
	}
}

func TestRedisStorageKeysAndExpiry(t *testing.T) {
	s, mr := newRedis(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "ana", Prefs{Variant: widget.VariantCarousel, Theme: ThemeLight}))
	assert.True(t, mr.Exists("test:prefs:ana"))
	assert.Equal(t, time.Hour, mr.TTL("test:prefs:ana"))

	mr.FastForward(30 * time.Minute)
	_, err := s.Load(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL("test:prefs:ana"))

	mr.FastForward(2 * time.Hour)
	_, err = s.Load(ctx, "ana")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStorageCorruptValue(t *testing.T) {
	s, mr := newRedis(t)
	require.NoError(t, mr.Set("test:prefs:ana", "not json"))

	_, err := s.Load(context.Background(), "ana")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestNewRedisStorageRequiresURL(t *testing.T) {
	_, err := NewRedisStorage(context.Background(), "")
	assert.Error(t, err)
}
