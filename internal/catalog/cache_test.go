package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type countingSearcher struct {
	calls    int
	products []Product
	err      error
}

func (s *countingSearcher) Search(ctx context.Context, query string, maxPrice *float64, inStockOnly bool) ([]Product, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.products, nil
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCacheServesSecondSearchWithoutUnderlyingCall(t *testing.T) {
	t.Parallel()

	_, client := newTestRedis(t)
	underlying := &countingSearcher{products: []Product{
		{ID: "p1", Name: "Whey Isolate", Brand: "ON", Category: "protein", Price: 120, InStock: true},
	}}
	cache := NewCache(underlying, client, time.Minute, nil)

	first, err := cache.Search(context.Background(), "პროტეინ", nil, true)
	if err != nil {
		t.Fatalf("first search: %v", err)
	}
	second, err := cache.Search(context.Background(), "პროტეინ", nil, true)
	if err != nil {
		t.Fatalf("second search: %v", err)
	}
	if underlying.calls != 1 {
		t.Fatalf("expected one underlying call, got %d", underlying.calls)
	}
	if len(first) != 1 || len(second) != 1 || second[0].ID != "p1" {
		t.Fatalf("expected cached product p1, got first=%v second=%v", first, second)
	}
}

func TestCacheKeyDistinguishesPriceCeiling(t *testing.T) {
	t.Parallel()

	_, client := newTestRedis(t)
	underlying := &countingSearcher{products: []Product{}}
	cache := NewCache(underlying, client, time.Minute, nil)

	if _, err := cache.Search(context.Background(), "კრეატინ", nil, true); err != nil {
		t.Fatalf("search without ceiling: %v", err)
	}
	ceiling := 75.0
	if _, err := cache.Search(context.Background(), "კრეატინ", &ceiling, true); err != nil {
		t.Fatalf("search with ceiling: %v", err)
	}
	if underlying.calls != 2 {
		t.Fatalf("expected two underlying calls for distinct ceilings, got %d", underlying.calls)
	}
}

func TestCacheFallsThroughWhenRedisUnavailable(t *testing.T) {
	t.Parallel()

	mr, client := newTestRedis(t)
	mr.Close()

	underlying := &countingSearcher{products: []Product{
		{ID: "p2", Name: "Creatine Monohydrate", Brand: "MyProtein", Category: "creatine", Price: 45, InStock: true},
	}}
	cache := NewCache(underlying, client, time.Minute, nil)

	products, err := cache.Search(context.Background(), "კრეატინ", nil, true)
	if err != nil {
		t.Fatalf("expected fall-through search to succeed, got %v", err)
	}
	if len(products) != 1 || products[0].ID != "p2" {
		t.Fatalf("expected underlying products, got %v", products)
	}
	if underlying.calls != 1 {
		t.Fatalf("expected one underlying call, got %d", underlying.calls)
	}
}

func TestCachePropagatesUnderlyingError(t *testing.T) {
	t.Parallel()

	_, client := newTestRedis(t)
	wantErr := errors.New("catalog down")
	underlying := &countingSearcher{err: wantErr}
	cache := NewCache(underlying, client, time.Minute, nil)

	if _, err := cache.Search(context.Background(), "ომეგა", nil, true); !errors.Is(err, wantErr) {
		t.Fatalf("expected underlying error, got %v", err)
	}
}

func TestCacheExpiresEntriesAfterTTL(t *testing.T) {
	t.Parallel()

	mr, client := newTestRedis(t)
	underlying := &countingSearcher{products: []Product{
		{ID: "p3", Name: "Omega 3", Brand: "NOW", Category: "omega", Price: 30, InStock: true},
	}}
	cache := NewCache(underlying, client, time.Minute, nil)

	if _, err := cache.Search(context.Background(), "ომეგა", nil, true); err != nil {
		t.Fatalf("first search: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := cache.Search(context.Background(), "ომეგა", nil, true); err != nil {
		t.Fatalf("second search: %v", err)
	}
	if underlying.calls != 2 {
		t.Fatalf("expected cache entry to expire, underlying calls=%d", underlying.calls)
	}
}
