package postgres

import (
	"context"
	"encoding/json"
	"time"

	"vpn-shop-bot/internal/domain/ports/repository"
	"vpn-shop-bot/internal/infra/metrics"
	red "vpn-shop-bot/internal/infra/redis"
)

var _ repository.SettingRepository = (*settingRepoCacheDecorator)(nil)

const settingsCacheKey = "settings:all"

// settingRepoCacheDecorator keeps the whole settings map under one key.
type settingRepoCacheDecorator struct {
	inner repository.SettingRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewSettingRepoCacheDecorator(inner repository.SettingRepository, cache red.RedisClient, ttl time.Duration) repository.SettingRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &settingRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func (d *settingRepoCacheDecorator) All(ctx context.Context) (map[string]string, error) {
	if val, err := d.cache.Get(ctx, settingsCacheKey); err == nil {
		var m map[string]string
		if json.Unmarshal([]byte(val), &m) == nil {
			metrics.IncCacheRequest("settings", "hit")
			return m, nil
		}
	}
	metrics.IncCacheRequest("settings", "miss")

	m, err := d.inner.All(ctx)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(m); err == nil {
		_ = d.cache.Set(ctx, settingsCacheKey, b, d.ttl)
	}
	return m, nil
}

func (d *settingRepoCacheDecorator) Get(ctx context.Context, key string) (string, bool, error) {
	m, err := d.All(ctx)
	if err != nil {
		return "", false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

func (d *settingRepoCacheDecorator) Set(ctx context.Context, key, value string) error {
	if err := d.inner.Set(ctx, key, value); err != nil {
		return err
	}
	_ = d.cache.Del(ctx, settingsCacheKey)
	return nil
}

func (d *settingRepoCacheDecorator) SeedDefaults(ctx context.Context, defaults map[string]string) error {
	if err := d.inner.SeedDefaults(ctx, defaults); err != nil {
		return err
	}
	_ = d.cache.Del(ctx, settingsCacheKey)
	return nil
}
