package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"momentum-arb-bot/internal/market"
)

// CandleTTL bounds staleness of cached candles. Signal detection runs on a
// 60s cadence against 1h-class timeframes, so half a tick is plenty fresh.
const CandleTTL = 30 * time.Second

// CandleCache is a Redis-backed cache for candle fetches. Many strategies
// watch the same assets; without the cache every strategy pays its own
// venue round-trip per tick. A nil *CandleCache is valid and disables
// caching.
type CandleCache struct {
	client *redis.Client
}

// NewCandleCache connects to Redis. An empty address disables caching.
func NewCandleCache(addr, password string, db int) *CandleCache {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("redis unreachable, candle cache disabled")
		return nil
	}
	log.Info().Str("addr", addr).Msg("candle cache connected")
	return &CandleCache{client: client}
}

func candleKey(source, pair, interval string) string {
	return fmt.Sprintf("candles:%s:%s:%s", source, pair, interval)
}

// Get returns cached candles, or nil on miss or error
func (c *CandleCache) Get(ctx context.Context, source, pair, interval string) []market.Candle {
	if c == nil {
		return nil
	}
	raw, err := c.client.Get(ctx, candleKey(source, pair, interval)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Msg("candle cache read failed")
		}
		return nil
	}
	var candles []market.Candle
	if err := json.Unmarshal(raw, &candles); err != nil {
		log.Warn().Err(err).Msg("candle cache payload corrupt")
		return nil
	}
	return candles
}

// Set stores candles with the standard TTL. Failures are logged and
// swallowed; the cache is best effort.
func (c *CandleCache) Set(ctx context.Context, source, pair, interval string, candles []market.Candle) {
	if c == nil || len(candles) == 0 {
		return
	}
	raw, err := json.Marshal(candles)
	if err != nil {
		log.Warn().Err(err).Msg("candle cache marshal failed")
		return
	}
	if err := c.client.Set(ctx, candleKey(source, pair, interval), raw, CandleTTL).Err(); err != nil {
		log.Warn().Err(err).Msg("candle cache write failed")
	}
}

// Close releases the Redis connection
func (c *CandleCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
