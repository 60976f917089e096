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

	"github.com/shopspring/decimal"
)

var _ repository.UserRepository = (*userRepoCacheDecorator)(nil)

// userRepoCacheDecorator caches FindByTelegramID outside transactions.
// Reads inside a transaction always hit the database.
type userRepoCacheDecorator struct {
	repository.UserRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewUserRepoCacheDecorator(inner repository.UserRepository, cache red.RedisClient, ttl time.Duration) repository.UserRepository {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &userRepoCacheDecorator{UserRepository: inner, cache: cache, ttl: ttl}
}

func userKey(tgID int64) string { return fmt.Sprintf("user:%d", tgID) }

func (d *userRepoCacheDecorator) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	if tx != nil {
		return d.UserRepository.FindByTelegramID(ctx, tx, tgID)
	}
	if val, err := d.cache.Get(ctx, userKey(tgID)); err == nil {
		var u model.User
		if json.Unmarshal([]byte(val), &u) == nil {
			metrics.IncCacheRequest("user", "hit")
			return &u, nil
		}
	}
	metrics.IncCacheRequest("user", "miss")

	u, err := d.UserRepository.FindByTelegramID(ctx, tx, tgID)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(u); err == nil {
		_ = d.cache.Set(ctx, userKey(tgID), b, d.ttl)
	}
	return u, nil
}

// invalidate drops the cached row once the write is visible to other readers:
// immediately for a plain write, after commit for a write inside WithTx.
func (d *userRepoCacheDecorator) invalidate(ctx context.Context, tgID int64) {
	repository.AfterCommit(ctx, func() {
		_ = d.cache.Del(context.WithoutCancel(ctx), userKey(tgID))
	})
}

func (d *userRepoCacheDecorator) CreateIfNotExists(ctx context.Context, tx repository.Tx, u *model.User) (bool, error) {
	ok, err := d.UserRepository.CreateIfNotExists(ctx, tx, u)
	if err == nil {
		d.invalidate(ctx, u.TelegramID)
	}
	return ok, err
}

func (d *userRepoCacheDecorator) SetAgreedToTerms(ctx context.Context, tx repository.Tx, tgID int64) error {
	if err := d.UserRepository.SetAgreedToTerms(ctx, tx, tgID); err != nil {
		return err
	}
	d.invalidate(ctx, tgID)
	return nil
}

func (d *userRepoCacheDecorator) MarkTrialUsed(ctx context.Context, tx repository.Tx, tgID int64) (bool, error) {
	ok, err := d.UserRepository.MarkTrialUsed(ctx, tx, tgID)
	if err == nil {
		d.invalidate(ctx, tgID)
	}
	return ok, err
}

func (d *userRepoCacheDecorator) SetBanned(ctx context.Context, tx repository.Tx, tgID int64, banned bool) error {
	if err := d.UserRepository.SetBanned(ctx, tx, tgID, banned); err != nil {
		return err
	}
	d.invalidate(ctx, tgID)
	return nil
}

func (d *userRepoCacheDecorator) AddPurchaseStats(ctx context.Context, tx repository.Tx, tgID int64, spent decimal.Decimal, months int) error {
	if err := d.UserRepository.AddPurchaseStats(ctx, tx, tgID, spent, months); err != nil {
		return err
	}
	d.invalidate(ctx, tgID)
	return nil
}

func (d *userRepoCacheDecorator) AddReferralBalance(ctx context.Context, tx repository.Tx, tgID int64, amount decimal.Decimal) error {
	if err := d.UserRepository.AddReferralBalance(ctx, tx, tgID, amount); err != nil {
		return err
	}
	d.invalidate(ctx, tgID)
	return nil
}

func (d *userRepoCacheDecorator) ResetReferralBalanceIfAtLeast(ctx context.Context, tx repository.Tx, tgID int64, min decimal.Decimal) (decimal.Decimal, bool, error) {
	prev, ok, err := d.UserRepository.ResetReferralBalanceIfAtLeast(ctx, tx, tgID, min)
	if err == nil {
		d.invalidate(ctx, tgID)
	}
	return prev, ok, err
}

func (d *userRepoCacheDecorator) SetReferralBalance(ctx context.Context, tx repository.Tx, tgID int64, amount decimal.Decimal) error {
	if err := d.UserRepository.SetReferralBalance(ctx, tx, tgID, amount); err != nil {
		return err
	}
	d.invalidate(ctx, tgID)
	return nil
}
