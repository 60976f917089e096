package rate

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vpn-shop-bot/internal/config"
	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/ports/adapter"
	"vpn-shop-bot/internal/infra/metrics"
)

var _ adapter.RateOracle = (*BinanceOracle)(nil)

// BinanceOracle reads spot prices from the public ticker endpoint.
type BinanceOracle struct {
	client *resty.Client
	log    *zerolog.Logger
}

func NewBinanceOracle(cfg config.RatesConfig, logger *zerolog.Logger) *BinanceOracle {
	l := logger.With().Str("component", "rate_oracle").Logger()
	return &BinanceOracle{
		client: resty.New().SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).SetTimeout(cfg.Timeout),
		log:    &l,
	}
}

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// GetRate never returns a zero or negative rate; every failure maps to ErrRateUnavailable.
func (o *BinanceOracle) GetRate(ctx context.Context, pair string) (decimal.Decimal, error) {
	var out tickerPrice
	resp, err := o.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", pair).
		SetResult(&out).
		Get("/ticker/price")
	if err != nil {
		return o.fail(pair, err)
	}
	if resp.IsError() {
		return o.fail(pair, fmt.Errorf("status %d", resp.StatusCode()))
	}
	if out.Price == "" {
		return o.fail(pair, fmt.Errorf("no price in response"))
	}
	d, err := decimal.NewFromString(out.Price)
	if err != nil {
		return o.fail(pair, err)
	}
	if !d.IsPositive() {
		return o.fail(pair, fmt.Errorf("non-positive price %s", out.Price))
	}
	metrics.IncRateFetch(pair, "ok")
	return d, nil
}

func (o *BinanceOracle) fail(pair string, err error) (decimal.Decimal, error) {
	metrics.IncRateFetch(pair, "error")
	o.log.Error().Err(err).Str("pair", pair).Msg("rate fetch failed")
	return decimal.Zero, fmt.Errorf("%s: %w", pair, domain.ErrRateUnavailable)
}
