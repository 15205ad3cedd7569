package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/ports"
)

func newTestCache(t *testing.T) (*RedisLocationCache, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisLocationCache(client, time.Minute), srv
}

func TestLocationCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	want := ports.CachedLocation{
		Position:   domain.Coordinates{Lat: 24.7136, Lon: 46.6753},
		RecordedAt: time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
	}
	if err := cache.Set(ctx, "drv-1", want); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := cache.Get(ctx, "drv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected a cached location")
	}
	if got.Position != want.Position || !got.RecordedAt.Equal(want.RecordedAt) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestLocationCacheMiss(t *testing.T) {
	cache, _ := newTestCache(t)

	_, ok, err := cache.Get(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected a miss for an unknown driver")
	}
}

func TestLocationCacheExpiry(t *testing.T) {
	cache, srv := newTestCache(t)
	ctx := context.Background()

	loc := ports.CachedLocation{
		Position:   domain.Coordinates{Lat: 24.7136, Lon: 46.6753},
		RecordedAt: time.Now(),
	}
	if err := cache.Set(ctx, "drv-1", loc); err != nil {
		t.Fatalf("set: %v", err)
	}

	srv.FastForward(2 * time.Minute)

	_, ok, err := cache.Get(ctx, "drv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected the entry to expire with the TTL")
	}
}
