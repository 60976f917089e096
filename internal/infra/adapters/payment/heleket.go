package payment

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // the provider defines the signature as md5
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"vpn-shop-bot/internal/config"
	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/ports/adapter"
)

var _ adapter.InvoiceIssuer = (*HeleketIssuer)(nil)

const heleketLifetime = 1800

// HeleketIssuer creates invoices in the Heleket merchant API.
type HeleketIssuer struct {
	client      *resty.Client
	merchantID  string
	apiKey      string
	callbackURL string
	returnURL   string
	log         *zerolog.Logger
}

func NewHeleketIssuer(cfg config.HeleketConfig, callbackURL, returnURL string, logger *zerolog.Logger) *HeleketIssuer {
	l := logger.With().Str("component", "heleket").Logger()
	cli := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(30 * time.Second)
	return &HeleketIssuer{
		client:      cli,
		merchantID:  cfg.MerchantID,
		apiKey:      cfg.APIKey,
		callbackURL: callbackURL,
		returnURL:   returnURL,
		log:         &l,
	}
}

func (h *HeleketIssuer) Name() string { return "heleket" }

type heleketResponse struct {
	State  int `json:"state"`
	Result struct {
		UUID string `json:"uuid"`
		URL  string `json:"url"`
	} `json:"result"`
	Message string `json:"message"`
}

func (h *HeleketIssuer) CreateInvoice(ctx context.Context, req adapter.InvoiceRequest) (*adapter.Checkout, error) {
	if req.PaymentID == "" || !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidArgument
	}
	currency := req.Currency
	if currency == "" {
		currency = "RUB"
	}
	payload := map[string]interface{}{
		"amount":              req.Amount.StringFixed(2),
		"currency":            currency,
		"order_id":            req.PaymentID,
		"url_return":          h.returnURL,
		"url_success":         h.returnURL,
		"url_callback":        h.callbackURL,
		"lifetime":            heleketLifetime,
		"is_payment_multiple": false,
	}
	if req.Description != "" {
		payload["additional_data"] = req.Description
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var out heleketResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("merchant", h.merchantID).
		SetHeader("sign", HeleketSign(raw, h.apiKey)).
		SetHeader("Content-Type", "application/json").
		SetBody(raw).
		SetResult(&out).
		Post("/payment")
	if err != nil {
		return nil, fmt.Errorf("heleket create invoice: %w", err)
	}
	if resp.IsError() || out.Result.URL == "" {
		h.log.Error().Int("status", resp.StatusCode()).Str("message", out.Message).Str("payment_id", req.PaymentID).Msg("heleket rejected invoice")
		return nil, fmt.Errorf("heleket create invoice: status %d %s", resp.StatusCode(), out.Message)
	}
	return &adapter.Checkout{ProviderRef: out.Result.UUID, PayURL: out.Result.URL}, nil
}

// HeleketSign is md5(base64(body) + apiKey) in lowercase hex.
func HeleketSign(body []byte, apiKey string) string {
	sum := md5.Sum([]byte(base64.StdEncoding.EncodeToString(body) + apiKey)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// HeleketWebhook is the subset of the webhook body settlement needs.
type HeleketWebhook struct {
	UUID    string `json:"uuid"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	IsFinal bool   `json:"is_final"`
}

// Paid reports a final successful payment.
func (w *HeleketWebhook) Paid() bool {
	return w.Status == "paid" || w.Status == "paid_over"
}

// VerifyWebhook checks the "sign" field of a webhook body. The signature covers the
// body without "sign", keys in their original order, with slashes escaped.
func (h *HeleketIssuer) VerifyWebhook(body []byte) (*HeleketWebhook, error) {
	return VerifyHeleketWebhook(body, h.apiKey)
}

func VerifyHeleketWebhook(body []byte, apiKey string) (*HeleketWebhook, error) {
	unsigned, sign, err := stripSign(body)
	if err != nil {
		return nil, fmt.Errorf("decode heleket webhook: %w", err)
	}
	if sign == "" || apiKey == "" {
		return nil, domain.ErrInvalidSignature
	}
	expected := HeleketSign(unsigned, apiKey)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(sign))) != 1 {
		return nil, domain.ErrInvalidSignature
	}
	var w HeleketWebhook
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("decode heleket webhook: %w", err)
	}
	return &w, nil
}

// stripSign re-encodes a flat JSON object without its "sign" member.
func stripSign(body []byte) ([]byte, string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	tok, err := dec.Token()
	if err != nil {
		return nil, "", err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, "", fmt.Errorf("expected object")
	}

	var (
		buf  bytes.Buffer
		sign string
		n    int
	)
	buf.WriteByte('{')
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, "", err
		}
		key, _ := keyTok.(string)
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, "", err
		}
		if key == "sign" {
			_ = json.Unmarshal(val, &sign)
			continue
		}
		if n > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		var compact bytes.Buffer
		if err := json.Compact(&compact, val); err != nil {
			return nil, "", err
		}
		buf.Write(compact.Bytes())
		n++
	}
	buf.WriteByte('}')

	out := bytes.ReplaceAll(buf.Bytes(), []byte(`\/`), []byte("/"))
	out = bytes.ReplaceAll(out, []byte("/"), []byte(`\/`))
	return out, sign, nil
}
