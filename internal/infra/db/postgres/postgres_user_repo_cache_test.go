//go:build !integration

package postgres

import (
	"context"
	"testing"
	"time"

	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/repository"

	"github.com/shopspring/decimal"
)

func TestUserRepoCacheDecorator(t *testing.T) {
	ctx := context.Background()
	user := &model.User{TelegramID: 98765, Username: "alice", ReferralBalance: decimal.NewFromInt(50)}

	t.Run("FindByTelegramID should fetch from DB and set cache on miss", func(t *testing.T) {
		// --- Arrange ---
		innerRepoCalled := false
		var cachedKey string
		mockRedis := &mockRedisClient{
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				cachedKey = key
				return nil
			},
		}
		mockInnerRepo := &mockInnerUserRepo{
			FindByTelegramIDFunc: func(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
				innerRepoCalled = true
				return user, nil
			},
		}
		decorator := NewUserRepoCacheDecorator(mockInnerRepo, mockRedis, time.Minute)

		// --- Act ---
		result, err := decorator.FindByTelegramID(ctx, nil, 98765)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !innerRepoCalled {
			t.Error("inner repository should be called on a cache miss")
		}
		if cachedKey != "user:98765" {
			t.Errorf("expected user to be cached under user:98765, got %q", cachedKey)
		}
		if result == nil || result.Username != "alice" {
			t.Error("did not return the correct user from the inner repository")
		}
	})

	t.Run("FindByTelegramID inside a transaction bypasses the cache", func(t *testing.T) {
		// --- Arrange ---
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				t.Error("cache must not be read inside a transaction")
				return "", errCacheMiss
			},
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				t.Error("cache must not be written inside a transaction")
				return nil
			},
		}
		mockInnerRepo := &mockInnerUserRepo{
			FindByTelegramIDFunc: func(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
				return user, nil
			},
		}
		decorator := NewUserRepoCacheDecorator(mockInnerRepo, mockRedis, time.Minute)

		// --- Act ---
		_, err := decorator.FindByTelegramID(ctx, struct{}{}, 98765)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("AddReferralBalance should invalidate the cache", func(t *testing.T) {
		// --- Arrange ---
		var deletedKeys []string
		mockRedis := &mockRedisClient{
			DelFunc: func(ctx context.Context, keys ...string) error {
				deletedKeys = append(deletedKeys, keys...)
				return nil
			},
		}
		mockInnerRepo := &mockInnerUserRepo{
			AddReferralBalanceFunc: func(ctx context.Context, tx repository.Tx, tgID int64, amount decimal.Decimal) error {
				return nil
			},
		}
		decorator := NewUserRepoCacheDecorator(mockInnerRepo, mockRedis, time.Minute)

		// --- Act ---
		err := decorator.AddReferralBalance(ctx, nil, 98765, decimal.NewFromInt(30))

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(deletedKeys) != 1 || deletedKeys[0] != "user:98765" {
			t.Errorf("expected user:98765 to be invalidated, got %v", deletedKeys)
		}
	})

	t.Run("AddPurchaseStats inside a transaction invalidates only after commit", func(t *testing.T) {
		// --- Arrange ---
		store := map[string]string{}
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				if v, ok := store[key]; ok {
					return v, nil
				}
				return "", errCacheMiss
			},
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				store[key] = string(value.([]byte))
				return nil
			},
			DelFunc: func(ctx context.Context, keys ...string) error {
				for _, k := range keys {
					delete(store, k)
				}
				return nil
			},
		}
		committed := false
		mockInnerRepo := &mockInnerUserRepo{
			FindByTelegramIDFunc: func(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
				spent := decimal.Zero
				if committed {
					spent = decimal.NewFromInt(300)
				}
				return &model.User{TelegramID: tgID, TotalSpent: spent}, nil
			},
		}
		decorator := NewUserRepoCacheDecorator(mockInnerRepo, mockRedis, time.Minute)
		txCtx, commit := repository.WithCommitHooks(ctx)

		// --- Act ---
		if err := decorator.AddPurchaseStats(txCtx, struct{}{}, 98765, decimal.NewFromInt(300), 1); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		// a concurrent reader outside the transaction still sees the old row
		stale, _ := decorator.FindByTelegramID(ctx, nil, 98765)
		_, cachedBeforeCommit := store["user:98765"]
		committed = true
		commit()
		fresh, err := decorator.FindByTelegramID(ctx, nil, 98765)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !stale.TotalSpent.IsZero() || !cachedBeforeCommit {
			t.Fatalf("expected the pre-commit read to cache spend 0, got %s (cached=%v)", stale.TotalSpent, cachedBeforeCommit)
		}
		if !fresh.TotalSpent.Equal(decimal.NewFromInt(300)) {
			t.Errorf("expected committed spend 300 after commit, got %s", fresh.TotalSpent)
		}
	})

	t.Run("a rolled back write leaves the cache alone", func(t *testing.T) {
		// --- Arrange ---
		deleted := 0
		mockRedis := &mockRedisClient{
			DelFunc: func(ctx context.Context, keys ...string) error {
				deleted++
				return nil
			},
		}
		mockInnerRepo := &mockInnerUserRepo{
			AddReferralBalanceFunc: func(ctx context.Context, tx repository.Tx, tgID int64, amount decimal.Decimal) error {
				return nil
			},
		}
		decorator := NewUserRepoCacheDecorator(mockInnerRepo, mockRedis, time.Minute)
		txCtx, _ := repository.WithCommitHooks(ctx)

		// --- Act ---
		err := decorator.AddReferralBalance(txCtx, struct{}{}, 98765, decimal.NewFromInt(30))

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if deleted != 0 {
			t.Errorf("expected no invalidation without a commit, got %d", deleted)
		}
	})
}

func TestSettingRepoCacheDecorator(t *testing.T) {
	ctx := context.Background()

	t.Run("Get serves every key from one cached map", func(t *testing.T) {
		// --- Arrange ---
		store := map[string]string{}
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				if v, ok := store[key]; ok {
					return v, nil
				}
				return "", errCacheMiss
			},
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				store[key] = string(value.([]byte))
				return nil
			},
			DelFunc: func(ctx context.Context, keys ...string) error {
				for _, k := range keys {
					delete(store, k)
				}
				return nil
			},
		}
		inner := &mockInnerSettingRepo{values: map[string]string{"trial_enabled": "true", "referral_percentage": "10"}}
		decorator := NewSettingRepoCacheDecorator(inner, mockRedis, time.Minute)

		// --- Act ---
		v1, ok1, _ := decorator.Get(ctx, "trial_enabled")
		v2, ok2, _ := decorator.Get(ctx, "referral_percentage")
		_, ok3, _ := decorator.Get(ctx, "missing")

		// --- Assert ---
		if !ok1 || v1 != "true" || !ok2 || v2 != "10" || ok3 {
			t.Errorf("unexpected values: %q/%v %q/%v missing=%v", v1, ok1, v2, ok2, ok3)
		}
		if inner.allCalls != 1 {
			t.Errorf("expected one database read, got %d", inner.allCalls)
		}

		// Set drops the cached map so the next read sees the new value.
		if err := decorator.Set(ctx, "trial_enabled", "false"); err != nil {
			t.Fatalf("set: %v", err)
		}
		v, _, _ := decorator.Get(ctx, "trial_enabled")
		if v != "false" {
			t.Errorf("expected fresh value after Set, got %q", v)
		}
		if inner.allCalls != 2 {
			t.Errorf("expected a reload after Set, got %d reads", inner.allCalls)
		}
	})
}
