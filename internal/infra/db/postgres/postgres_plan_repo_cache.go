package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/repository"
	"vpn-shop-bot/internal/infra/metrics"
	red "vpn-shop-bot/internal/infra/redis"
)

var _ repository.PlanRepository = (*planRepoCacheDecorator)(nil)

type planRepoCacheDecorator struct {
	inner repository.PlanRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewPlanRepoCacheDecorator(inner repository.PlanRepository, cache red.RedisClient) repository.PlanRepository {
	return &planRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   10 * time.Minute,
	}
}

func planKey(id int64) string          { return fmt.Sprintf("plan:%d", id) }
func hostPlansKey(host string) string { return fmt.Sprintf("plans:host:%s", host) }

func (d *planRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Plan, error) {
	key := planKey(id)
	if val, err := d.cache.Get(ctx, key); err == nil {
		var plan model.Plan
		if json.Unmarshal([]byte(val), &plan) == nil {
			metrics.IncCacheRequest("plan", "hit")
			return &plan, nil
		}
	}

	metrics.IncCacheRequest("plan", "miss")
	plan, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if plan != nil {
		b, _ := json.Marshal(plan)
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return plan, nil
}

func (d *planRepoCacheDecorator) ListByHost(ctx context.Context, tx repository.Tx, hostName string) ([]*model.Plan, error) {
	key := hostPlansKey(hostName)
	if val, err := d.cache.Get(ctx, key); err == nil {
		var plans []*model.Plan
		if json.Unmarshal([]byte(val), &plans) == nil {
			metrics.IncCacheRequest("plan_list", "hit")
			return plans, nil
		}
	}

	metrics.IncCacheRequest("plan_list", "miss")
	plans, err := d.inner.ListByHost(ctx, tx, hostName)
	if err != nil {
		return nil, err
	}
	if len(plans) > 0 {
		b, _ := json.Marshal(plans)
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return plans, nil
}

// Save drops both the plan entry and its host listing.
func (d *planRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	if plan.ID != 0 {
		if old, err := d.inner.FindByID(ctx, tx, plan.ID); err == nil && old.HostName != plan.HostName {
			_ = d.cache.Del(ctx, hostPlansKey(old.HostName))
		}
	}
	if err := d.inner.Save(ctx, tx, plan); err != nil {
		return err
	}
	_ = d.cache.Del(ctx, planKey(plan.ID))
	_ = d.cache.Del(ctx, hostPlansKey(plan.HostName))
	return nil
}

func (d *planRepoCacheDecorator) Delete(ctx context.Context, tx repository.Tx, id int64) error {
	if old, err := d.inner.FindByID(ctx, tx, id); err == nil {
		_ = d.cache.Del(ctx, hostPlansKey(old.HostName))
	}
	_ = d.cache.Del(ctx, planKey(id))
	return d.inner.Delete(ctx, tx, id)
}
