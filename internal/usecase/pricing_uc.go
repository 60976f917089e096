package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/adapter"
	"vpn-shop-bot/internal/infra/logging"
)

var _ PricingUseCase = (*pricingUC)(nil)

// Quote is the price of one plan for one user at one moment.
type Quote struct {
	Base        decimal.Decimal
	Final       decimal.Decimal
	DiscountPct decimal.Decimal
}

func (q Quote) Discounted() bool { return q.Final.LessThan(q.Base) }

// ForeignRoute converts a shop-currency amount into a foreign unit through one or more pairs.
type ForeignRoute struct {
	Currency string
	Pairs    []string
	Margin   decimal.Decimal
	Places   int32
}

var (
	// RouteUSDT is the stable-value quote shown with crypto invoices.
	RouteUSDT = ForeignRoute{Currency: "USDT", Pairs: []string{adapter.PairUSDTRUB}, Margin: decimal.RequireFromString("1.03"), Places: 2}
	// RouteTON prices an on-chain transfer.
	RouteTON = ForeignRoute{Currency: "TON", Pairs: []string{adapter.PairUSDTRUB, adapter.PairTONUSDT}, Margin: decimal.NewFromInt(1), Places: 3}
)

type PricingUseCase interface {
	// Quote re-reads the referral discount setting on every call; nothing is cached.
	Quote(ctx context.Context, user *model.User, plan *model.Plan) (Quote, error)
	Convert(ctx context.Context, amount decimal.Decimal, route ForeignRoute) (decimal.Decimal, error)
}

type pricingUC struct {
	settings SettingsUseCase
	rates    adapter.RateOracle
	log      *zerolog.Logger
}

func NewPricingUseCase(settings SettingsUseCase, rates adapter.RateOracle, logger *zerolog.Logger) *pricingUC {
	return &pricingUC{settings: settings, rates: rates, log: logger}
}

var hundred = decimal.NewFromInt(100)

// ApplyDiscount returns price - round(price*pct/100, 2), half-up.
func ApplyDiscount(price, pct decimal.Decimal) decimal.Decimal {
	if !pct.IsPositive() {
		return price.Round(2)
	}
	discount := price.Mul(pct).Div(hundred).Round(2)
	return price.Sub(discount).Round(2)
}

func (u *pricingUC) Quote(ctx context.Context, user *model.User, plan *model.Plan) (Quote, error) {
	defer logging.TraceDuration(u.log, "PricingUC.Quote")()
	if plan.IsZero() {
		return Quote{}, domain.ErrInvalidArgument
	}
	q := Quote{Base: plan.Price.Round(2), Final: plan.Price.Round(2), DiscountPct: decimal.Zero}
	if !user.FirstPurchasePending() {
		return q, nil
	}
	pct := u.settings.Decimal(ctx, model.SettingReferralDiscount, decimal.Zero)
	if !pct.IsPositive() {
		return q, nil
	}
	q.DiscountPct = pct
	q.Final = ApplyDiscount(plan.Price, pct)
	return q, nil
}

// Convert computes round(amount / r1 / r2 ... * margin, places). Any missing rate aborts
// with ErrRateUnavailable.
func (u *pricingUC) Convert(ctx context.Context, amount decimal.Decimal, route ForeignRoute) (decimal.Decimal, error) {
	defer logging.TraceDuration(u.log, "PricingUC.Convert")()
	out := amount
	for _, pair := range route.Pairs {
		rate, err := u.rates.GetRate(ctx, pair)
		if err != nil {
			return decimal.Zero, err
		}
		if !rate.IsPositive() {
			return decimal.Zero, fmt.Errorf("%s: %w", pair, domain.ErrRateUnavailable)
		}
		out = out.DivRound(rate, 16)
	}
	margin := route.Margin
	if margin.IsZero() {
		margin = decimal.NewFromInt(1)
	}
	return out.Mul(margin).Round(route.Places), nil
}
