package redis

import (
	"context"
	"fmt"
	"time"

	"vpn-shop-bot/internal/domain/ports/adapter"
	"vpn-shop-bot/internal/infra/metrics"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var _ adapter.RateOracle = (*CachedRateOracle)(nil)

// CachedRateOracle keeps quotes for a short TTL. A failed upstream fetch is never
// masked by an expired value because expired keys are gone from Redis.
type CachedRateOracle struct {
	next   adapter.RateOracle
	client RedisClient
	ttl    time.Duration
	log    *zerolog.Logger
}

func NewCachedRateOracle(next adapter.RateOracle, client RedisClient, ttl time.Duration, logger *zerolog.Logger) *CachedRateOracle {
	l := logger.With().Str("component", "rate_cache").Logger()
	return &CachedRateOracle{next: next, client: client, ttl: ttl, log: &l}
}

func rateKey(pair string) string { return fmt.Sprintf("rate:%s", pair) }

func (c *CachedRateOracle) GetRate(ctx context.Context, pair string) (decimal.Decimal, error) {
	if raw, err := c.client.Get(ctx, rateKey(pair)); err == nil {
		if d, perr := decimal.NewFromString(raw); perr == nil && d.IsPositive() {
			metrics.IncCacheRequest("rate", "hit")
			return d, nil
		}
	} else if !IsNil(err) {
		c.log.Warn().Err(err).Str("pair", pair).Msg("rate cache read failed")
	}
	metrics.IncCacheRequest("rate", "miss")

	d, err := c.next.GetRate(ctx, pair)
	if err != nil {
		return decimal.Zero, err
	}
	if err := c.client.Set(ctx, rateKey(pair), d.String(), c.ttl); err != nil {
		c.log.Warn().Err(err).Str("pair", pair).Msg("rate cache write failed")
	}
	return d, nil
}
