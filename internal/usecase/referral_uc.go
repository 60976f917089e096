package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/adapter"
	"vpn-shop-bot/internal/domain/ports/repository"
	"vpn-shop-bot/internal/infra/logging"
	"vpn-shop-bot/internal/infra/metrics"
)

var _ ReferralUseCase = (*referralUC)(nil)

// MinWithdrawal is the smallest referral balance that can be withdrawn.
var MinWithdrawal = decimal.NewFromInt(100)

type ReferralInfo struct {
	Link        string
	Invited     int
	Balance     decimal.Decimal
	CanWithdraw bool
}

// WithdrawalRequestedEvent is published when a user asks for a payout.
type WithdrawalRequestedEvent struct {
	UserID  int64  `json:"user_id"`
	Amount  string `json:"amount"`
	Details string `json:"details"`
}

type ReferralUseCase interface {
	Info(ctx context.Context, tgID int64) (*ReferralInfo, error)
	// Accrue credits the buyer's referrer with round(price*pct/100, 2) inside the settlement
	// transaction. It returns the referrer id and reward, or (0, 0) when nothing was credited.
	Accrue(ctx context.Context, tx repository.Tx, buyer *model.User, price decimal.Decimal) (int64, decimal.Decimal, error)
	RequestWithdrawal(ctx context.Context, tgID int64, details string) error
	// Approve zeroes the balance when it is still at least MinWithdrawal and returns the paid amount.
	Approve(ctx context.Context, operatorID, tgID int64) (decimal.Decimal, error)
	Decline(ctx context.Context, operatorID, tgID int64) error

	// Admin API helpers.
	Balance(ctx context.Context, tgID int64) (*model.User, int, error)
	ResetBalance(ctx context.Context, tgID int64) error
	SetBalance(ctx context.Context, tgID int64, amount decimal.Decimal) error
}

type referralUC struct {
	users       repository.UserRepository
	settings    SettingsUseCase
	notifier    NotificationUseCase
	events      adapter.EventPublisher
	botUsername string
	log         *zerolog.Logger
}

func NewReferralUseCase(
	users repository.UserRepository,
	settings SettingsUseCase,
	notifier NotificationUseCase,
	events adapter.EventPublisher,
	botUsername string,
	logger *zerolog.Logger,
) *referralUC {
	return &referralUC{users: users, settings: settings, notifier: notifier, events: events, botUsername: botUsername, log: logger}
}

// ReferralLink is the deep link that registers a new user under tgID.
func ReferralLink(botUsername string, tgID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=ref_%d", strings.TrimPrefix(botUsername, "@"), tgID)
}

func (u *referralUC) Info(ctx context.Context, tgID int64) (*ReferralInfo, error) {
	defer logging.TraceDuration(u.log, "ReferralUC.Info")()
	user, invited, err := u.Balance(ctx, tgID)
	if err != nil {
		return nil, err
	}
	return &ReferralInfo{
		Link:        ReferralLink(u.botUsername, tgID),
		Invited:     invited,
		Balance:     user.ReferralBalance,
		CanWithdraw: user.ReferralBalance.GreaterThanOrEqual(MinWithdrawal),
	}, nil
}

func (u *referralUC) Accrue(ctx context.Context, tx repository.Tx, buyer *model.User, price decimal.Decimal) (int64, decimal.Decimal, error) {
	if buyer == nil || buyer.ReferredBy == nil || !price.IsPositive() {
		return 0, decimal.Zero, nil
	}
	pct := u.settings.Decimal(ctx, model.SettingReferralPercentage, decimal.Zero)
	if !pct.IsPositive() {
		return 0, decimal.Zero, nil
	}
	reward := price.Mul(pct).Div(hundred).Round(2)
	if !reward.IsPositive() {
		return 0, decimal.Zero, nil
	}
	referrer := *buyer.ReferredBy
	if err := u.users.AddReferralBalance(ctx, tx, referrer, reward); err != nil {
		return 0, decimal.Zero, err
	}
	metrics.IncReferralAccrual()
	logging.With(ctx, u.log).Info().Int64("referrer", referrer).Str("reward", reward.StringFixed(2)).Msg("referral reward credited")
	return referrer, reward, nil
}

func (u *referralUC) RequestWithdrawal(ctx context.Context, tgID int64, details string) error {
	defer logging.TraceDuration(u.log, "ReferralUC.RequestWithdrawal")()
	details = strings.TrimSpace(details)
	if details == "" {
		return domain.ErrInvalidArgument
	}
	user, err := u.users.FindByTelegramID(ctx, repository.NoTX, tgID)
	if err != nil {
		return err
	}
	if user.ReferralBalance.LessThan(MinWithdrawal) {
		return domain.ErrInsufficientBalance
	}
	if err := u.notifier.WithdrawalRequested(ctx, user, user.ReferralBalance, details); err != nil {
		return fmt.Errorf("forward withdrawal request: %w", err)
	}
	ev := WithdrawalRequestedEvent{UserID: tgID, Amount: user.ReferralBalance.StringFixed(2), Details: details}
	if err := u.events.Publish(ctx, adapter.EventWithdrawalRequested, ev); err != nil {
		logging.With(ctx, u.log).Warn().Err(err).Msg("withdrawal event not published")
	}
	return nil
}

func (u *referralUC) Approve(ctx context.Context, operatorID, tgID int64) (decimal.Decimal, error) {
	defer logging.TraceDuration(u.log, "ReferralUC.Approve")()
	if !u.settings.IsOperator(ctx, operatorID) {
		return decimal.Zero, domain.ErrForbidden
	}
	amount, ok, err := u.users.ResetReferralBalanceIfAtLeast(ctx, repository.NoTX, tgID, MinWithdrawal)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, domain.ErrInsufficientBalance
	}
	logging.With(ctx, u.log).Info().Int64("user", tgID).Int64("operator", operatorID).
		Str("amount", amount.StringFixed(2)).Msg("withdrawal approved")
	u.notifier.WithdrawalDecided(ctx, tgID, amount, true)
	return amount, nil
}

func (u *referralUC) Decline(ctx context.Context, operatorID, tgID int64) error {
	if !u.settings.IsOperator(ctx, operatorID) {
		return domain.ErrForbidden
	}
	if _, err := u.users.FindByTelegramID(ctx, repository.NoTX, tgID); err != nil {
		return err
	}
	u.notifier.WithdrawalDecided(ctx, tgID, decimal.Zero, false)
	return nil
}

func (u *referralUC) Balance(ctx context.Context, tgID int64) (*model.User, int, error) {
	user, err := u.users.FindByTelegramID(ctx, repository.NoTX, tgID)
	if err != nil {
		return nil, 0, err
	}
	invited, err := u.users.CountReferrals(ctx, repository.NoTX, tgID)
	if err != nil {
		return nil, 0, err
	}
	return user, invited, nil
}

func (u *referralUC) ResetBalance(ctx context.Context, tgID int64) error {
	_, _, err := u.users.ResetReferralBalanceIfAtLeast(ctx, repository.NoTX, tgID, decimal.Zero)
	return err
}

func (u *referralUC) SetBalance(ctx context.Context, tgID int64, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return domain.ErrInvalidArgument
	}
	return u.users.SetReferralBalance(ctx, repository.NoTX, tgID, amount.Round(2))
}
