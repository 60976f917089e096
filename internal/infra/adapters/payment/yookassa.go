package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vpn-shop-bot/internal/config"
	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/ports/adapter"
)

var _ adapter.CardGateway = (*YooKassaGateway)(nil)

// YooKassaGateway creates redirect payments through the YooKassa v3 API.
type YooKassaGateway struct {
	client    *resty.Client
	returnURL string
	log       *zerolog.Logger
}

func NewYooKassaGateway(cfg config.YooKassaConfig, logger *zerolog.Logger) *YooKassaGateway {
	l := logger.With().Str("component", "yookassa").Logger()
	cli := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetBasicAuth(cfg.ShopID, cfg.SecretKey).
		SetTimeout(30*time.Second).
		SetHeader("Content-Type", "application/json")
	return &YooKassaGateway{client: cli, returnURL: cfg.ReturnURL, log: &l}
}

func (g *YooKassaGateway) Name() string { return "yookassa" }

type ykAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type ykReceiptItem struct {
	Description    string   `json:"description"`
	Quantity       string   `json:"quantity"`
	Amount         ykAmount `json:"amount"`
	VatCode        int      `json:"vat_code"`
	PaymentMode    string   `json:"payment_mode"`
	PaymentSubject string   `json:"payment_subject"`
}

type ykReceipt struct {
	Customer struct {
		Email string `json:"email"`
	} `json:"customer"`
	Items []ykReceiptItem `json:"items"`
}

type ykPaymentRequest struct {
	Amount       ykAmount          `json:"amount"`
	Capture      bool              `json:"capture"`
	Confirmation map[string]string `json:"confirmation"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata"`
	Receipt      *ykReceipt        `json:"receipt,omitempty"`
}

type ykPayment struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Paid         bool              `json:"paid"`
	Amount       ykAmount          `json:"amount"`
	Metadata     map[string]string `json:"metadata"`
	Confirmation struct {
		Type            string `json:"type"`
		ConfirmationURL string `json:"confirmation_url"`
	} `json:"confirmation"`
}

// CreatePayment uses the payment id as the Idempotence-Key, so a retried request
// never opens a second charge for the same pending transaction.
func (g *YooKassaGateway) CreatePayment(ctx context.Context, req adapter.InvoiceRequest) (*adapter.Checkout, error) {
	if req.PaymentID == "" || !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidArgument
	}
	currency := req.Currency
	if currency == "" {
		currency = "RUB"
	}
	amount := ykAmount{Value: req.Amount.StringFixed(2), Currency: currency}

	body := ykPaymentRequest{
		Amount:       amount,
		Capture:      true,
		Confirmation: map[string]string{"type": "redirect", "return_url": g.returnURL},
		Description:  req.Description,
		Metadata:     withPaymentID(req.Metadata, req.PaymentID),
	}
	if req.CustomerEmail != "" {
		r := &ykReceipt{Items: []ykReceiptItem{{
			Description:    req.Description,
			Quantity:       "1.00",
			Amount:         amount,
			VatCode:        1,
			PaymentMode:    "full_payment",
			PaymentSubject: "service",
		}}}
		r.Customer.Email = req.CustomerEmail
		body.Receipt = r
	}

	var out ykPayment
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Idempotence-Key", req.PaymentID).
		SetBody(body).
		SetResult(&out).
		Post("/payments")
	if err != nil {
		return nil, fmt.Errorf("yookassa create payment: %w", err)
	}
	if resp.IsError() {
		g.log.Error().Int("status", resp.StatusCode()).Str("payment_id", req.PaymentID).Msg("yookassa rejected payment")
		return nil, fmt.Errorf("yookassa create payment: status %d: %s", resp.StatusCode(), resp.String())
	}
	if out.ID == "" || out.Confirmation.ConfirmationURL == "" {
		return nil, fmt.Errorf("yookassa create payment: no confirmation url")
	}
	return &adapter.Checkout{ProviderRef: out.ID, PayURL: out.Confirmation.ConfirmationURL}, nil
}

func (g *YooKassaGateway) FetchPayment(ctx context.Context, providerRef string) (*adapter.GatewayPayment, error) {
	if providerRef == "" {
		return nil, domain.ErrInvalidArgument
	}
	var out ykPayment
	resp, err := g.client.R().
		SetContext(ctx).
		SetPathParam("id", providerRef).
		SetResult(&out).
		Get("/payments/{id}")
	if err != nil {
		return nil, fmt.Errorf("yookassa fetch payment: %w", err)
	}
	if resp.StatusCode() == 404 {
		return nil, domain.ErrNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("yookassa fetch payment: status %d", resp.StatusCode())
	}
	amount, err := decimal.NewFromString(out.Amount.Value)
	if err != nil {
		return nil, fmt.Errorf("yookassa amount %q: %w", out.Amount.Value, err)
	}
	return &adapter.GatewayPayment{
		ProviderRef: out.ID,
		Status:      out.Status,
		Paid:        out.Paid && out.Status == "succeeded",
		Amount:      amount,
		Metadata:    out.Metadata,
	}, nil
}

func withPaymentID(meta map[string]string, paymentID string) map[string]string {
	out := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out[MetadataPaymentID] = paymentID
	return out
}

// MetadataPaymentID is the metadata key every rail uses to carry the local payment id.
const MetadataPaymentID = "payment_id"
