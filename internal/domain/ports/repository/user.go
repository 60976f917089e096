package repository

import (
	"context"

	"vpn-shop-bot/internal/domain/model"

	"github.com/shopspring/decimal"
)

// -----------------------------
// Users
// -----------------------------

type UserRepository interface {
	// CreateIfNotExists inserts the user; an existing row (and its referrer) is left untouched.
	CreateIfNotExists(ctx context.Context, tx Tx, u *model.User) (created bool, err error)
	FindByTelegramID(ctx context.Context, tx Tx, tgID int64) (*model.User, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.User, error)
	CountUsers(ctx context.Context, tx Tx) (int, error)
	CountReferrals(ctx context.Context, tx Tx, referrerID int64) (int, error)

	SetAgreedToTerms(ctx context.Context, tx Tx, tgID int64) error
	// MarkTrialUsed flips trial_used false->true; returns false when it was already set.
	MarkTrialUsed(ctx context.Context, tx Tx, tgID int64) (bool, error)
	SetBanned(ctx context.Context, tx Tx, tgID int64, banned bool) error
	AddPurchaseStats(ctx context.Context, tx Tx, tgID int64, spent decimal.Decimal, months int) error

	// AddReferralBalance credits a non-negative amount to both live and aggregate balances.
	AddReferralBalance(ctx context.Context, tx Tx, tgID int64, amount decimal.Decimal) error
	// ResetReferralBalanceIfAtLeast zeroes the balances only when the live balance is >= min.
	// It returns the amount that was zeroed and whether the update happened.
	ResetReferralBalanceIfAtLeast(ctx context.Context, tx Tx, tgID int64, min decimal.Decimal) (decimal.Decimal, bool, error)
	SetReferralBalance(ctx context.Context, tx Tx, tgID int64, amount decimal.Decimal) error
}
