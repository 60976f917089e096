package adapter

import (
	"context"

	"github.com/shopspring/decimal"
)

// Currency pairs quoted by the rate oracle.
const (
	PairUSDTRUB = "USDTRUB"
	PairTONUSDT = "TONUSDT"
)

// RateOracle returns the price of one base unit in quote units.
// Any failure is reported as domain.ErrRateUnavailable; a zero rate is never returned.
type RateOracle interface {
	GetRate(ctx context.Context, pair string) (decimal.Decimal, error)
}
