package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"vpn-shop-bot/internal/config"
	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/ports/adapter"
)

var _ adapter.InvoiceIssuer = (*CryptoBotIssuer)(nil)

const cryptoBotInvoiceTTL = 3600

// CryptoBotIssuer creates fiat-denominated invoices in Crypto Pay.
type CryptoBotIssuer struct {
	client *resty.Client
	token  string
	log    *zerolog.Logger
}

func NewCryptoBotIssuer(cfg config.CryptoBotConfig, logger *zerolog.Logger) *CryptoBotIssuer {
	l := logger.With().Str("component", "cryptobot").Logger()
	cli := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(30*time.Second).
		SetHeader("Crypto-Pay-API-Token", cfg.Token)
	return &CryptoBotIssuer{client: cli, token: cfg.Token, log: &l}
}

func (c *CryptoBotIssuer) Name() string { return "cryptobot" }

type cryptoBotResponse struct {
	OK     bool `json:"ok"`
	Result struct {
		InvoiceID int64  `json:"invoice_id"`
		PayURL    string `json:"pay_url"`
		BotURL    string `json:"bot_invoice_url"`
	} `json:"result"`
	Error *struct {
		Code int    `json:"code"`
		Name string `json:"name"`
	} `json:"error"`
}

// CreateInvoice issues a RUB invoice whose payload is the local payment id.
func (c *CryptoBotIssuer) CreateInvoice(ctx context.Context, req adapter.InvoiceRequest) (*adapter.Checkout, error) {
	if req.PaymentID == "" || !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidArgument
	}
	currency := req.Currency
	if currency == "" {
		currency = "RUB"
	}
	body := map[string]interface{}{
		"currency_type": "fiat",
		"fiat":          currency,
		"amount":        req.Amount.StringFixed(2),
		"description":   req.Description,
		"payload":       req.PaymentID,
		"expires_in":    cryptoBotInvoiceTTL,
	}

	var out cryptoBotResponse
	resp, err := c.client.R().SetContext(ctx).SetBody(body).SetResult(&out).SetError(&out).Post("/createInvoice")
	if err != nil {
		return nil, fmt.Errorf("cryptobot create invoice: %w", err)
	}
	if resp.IsError() || !out.OK {
		name := ""
		if out.Error != nil {
			name = out.Error.Name
		}
		c.log.Error().Int("status", resp.StatusCode()).Str("error", name).Str("payment_id", req.PaymentID).Msg("cryptobot rejected invoice")
		return nil, fmt.Errorf("cryptobot create invoice: status %d %s", resp.StatusCode(), name)
	}
	payURL := out.Result.BotURL
	if payURL == "" {
		payURL = out.Result.PayURL
	}
	if payURL == "" {
		return nil, fmt.Errorf("cryptobot create invoice: no pay url")
	}
	return &adapter.Checkout{ProviderRef: fmt.Sprintf("%d", out.Result.InvoiceID), PayURL: payURL}, nil
}

// VerifySignature checks crypto-pay-api-signature: HMAC-SHA256 of the raw body keyed by SHA256(token).
func (c *CryptoBotIssuer) VerifySignature(body []byte, signature string) bool {
	return VerifyCryptoBotSignature(c.token, body, signature)
}

func VerifyCryptoBotSignature(token string, body []byte, signature string) bool {
	if token == "" || signature == "" {
		return false
	}
	secret := sha256.Sum256([]byte(token))
	h := hmac.New(sha256.New, secret[:])
	h.Write(body)
	expected := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
