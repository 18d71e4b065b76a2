package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"scoopai/backend/internal/metrics"
)

// Cache is a read-through decorator over a Searcher. Cache failures are
// logged and fall through to the underlying searcher; they never fail the
// search itself.
type Cache struct {
	next Searcher
	rdb  *redis.Client
	ttl  time.Duration
	log  *zap.Logger
}

func NewCache(next Searcher, rdb *redis.Client, ttl time.Duration, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{next: next, rdb: rdb, ttl: ttl, log: log}
}

func (c *Cache) Search(ctx context.Context, query string, maxPrice *float64, inStockOnly bool) ([]Product, error) {
	key := cacheKey(query, maxPrice, inStockOnly)

	raw, err := c.rdb.Get(ctx, key).Result()
	if err == nil {
		var products []Product
		if unmarshalErr := json.Unmarshal([]byte(raw), &products); unmarshalErr == nil {
			metrics.CatalogCacheHits.Inc()
			return products, nil
		}
		c.log.Warn("catalog cache entry corrupt", zap.String("key", key))
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
	}
	metrics.CatalogCacheMisses.Inc()

	products, err := c.next.Search(ctx, query, maxPrice, inStockOnly)
	if err != nil {
		return nil, err
	}

	payload, marshalErr := json.Marshal(products)
	if marshalErr == nil {
		if setErr := c.rdb.Set(ctx, key, payload, c.ttl).Err(); setErr != nil {
			c.log.Warn("catalog cache write failed", zap.String("key", key), zap.Error(setErr))
		}
	}
	return products, nil
}

func cacheKey(query string, maxPrice *float64, inStockOnly bool) string {
	price := "any"
	if maxPrice != nil {
		price = fmt.Sprintf("%.2f", *maxPrice)
	}
	return fmt.Sprintf("catalog:search:%s:%s:%t", query, price, inStockOnly)
}
