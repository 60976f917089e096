//go:build !integration

package postgres

import (
	"context"
	"time"

	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/repository"
	red "vpn-shop-bot/internal/infra/redis"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

var errCacheMiss = redis.Nil

// --- Mocks for Cache Decorator Tests ---

// mockInnerPlanRepo mocks the database repository that the Plan decorator wraps.
type mockInnerPlanRepo struct {
	SaveFunc       func(ctx context.Context, tx repository.Tx, plan *model.Plan) error
	DeleteFunc     func(ctx context.Context, tx repository.Tx, id int64) error
	FindByIDFunc   func(ctx context.Context, tx repository.Tx, id int64) (*model.Plan, error)
	ListByHostFunc func(ctx context.Context, tx repository.Tx, host string) ([]*model.Plan, error)
}

func (m *mockInnerPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	return m.SaveFunc(ctx, tx, plan)
}
func (m *mockInnerPlanRepo) Delete(ctx context.Context, tx repository.Tx, id int64) error {
	return m.DeleteFunc(ctx, tx, id)
}
func (m *mockInnerPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Plan, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerPlanRepo) ListByHost(ctx context.Context, tx repository.Tx, host string) ([]*model.Plan, error) {
	return m.ListByHostFunc(ctx, tx, host)
}

// mockInnerUserRepo mocks the database repository that the User decorator wraps.
// Only the methods the decorator tests touch have Func fields; the rest are inert.
type mockInnerUserRepo struct {
	FindByTelegramIDFunc   func(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error)
	AddReferralBalanceFunc func(ctx context.Context, tx repository.Tx, tgID int64, amount decimal.Decimal) error
}

func (m *mockInnerUserRepo) CreateIfNotExists(ctx context.Context, tx repository.Tx, u *model.User) (bool, error) {
	return true, nil
}
func (m *mockInnerUserRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	return m.FindByTelegramIDFunc(ctx, tx, tgID)
}
func (m *mockInnerUserRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.User, error) {
	return nil, nil
}
func (m *mockInnerUserRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	return 0, nil
}
func (m *mockInnerUserRepo) CountReferrals(ctx context.Context, tx repository.Tx, referrerID int64) (int, error) {
	return 0, nil
}
func (m *mockInnerUserRepo) SetAgreedToTerms(ctx context.Context, tx repository.Tx, tgID int64) error {
	return nil
}
func (m *mockInnerUserRepo) MarkTrialUsed(ctx context.Context, tx repository.Tx, tgID int64) (bool, error) {
	return true, nil
}
func (m *mockInnerUserRepo) SetBanned(ctx context.Context, tx repository.Tx, tgID int64, banned bool) error {
	return nil
}
func (m *mockInnerUserRepo) AddPurchaseStats(ctx context.Context, tx repository.Tx, tgID int64, spent decimal.Decimal, months int) error {
	return nil
}
func (m *mockInnerUserRepo) AddReferralBalance(ctx context.Context, tx repository.Tx, tgID int64, amount decimal.Decimal) error {
	return m.AddReferralBalanceFunc(ctx, tx, tgID, amount)
}
func (m *mockInnerUserRepo) ResetReferralBalanceIfAtLeast(ctx context.Context, tx repository.Tx, tgID int64, min decimal.Decimal) (decimal.Decimal, bool, error) {
	return decimal.Zero, false, nil
}
func (m *mockInnerUserRepo) SetReferralBalance(ctx context.Context, tx repository.Tx, tgID int64, amount decimal.Decimal) error {
	return nil
}

// mockInnerSettingRepo counts calls to All.
type mockInnerSettingRepo struct {
	values   map[string]string
	allCalls int
}

func (m *mockInnerSettingRepo) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}
func (m *mockInnerSettingRepo) Set(ctx context.Context, key, value string) error {
	m.values[key] = value
	return nil
}
func (m *mockInnerSettingRepo) All(ctx context.Context) (map[string]string, error) {
	m.allCalls++
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}
func (m *mockInnerSettingRepo) SeedDefaults(ctx context.Context, defaults map[string]string) error {
	return nil
}

// mockRedisClient mocks our Redis client wrapper. Nil Func fields behave as a miss or no-op.
type mockRedisClient struct {
	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc func(ctx context.Context, keys ...string) error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc == nil {
		return "", errCacheMiss
	}
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return true, nil
}
func (m *mockRedisClient) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return int64(0), nil
}
func (m *mockRedisClient) Ping(ctx context.Context) error                      { return nil }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) { return 1, nil }
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (m *mockRedisClient) Close() error { return nil }
