//go:build !integration

package http

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/ports/adapter"
	"vpn-shop-bot/internal/infra/adapters/payment"

	"github.com/rs/zerolog"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type settleCall struct{ paymentID, ref string }

// mockSettler records settle calls. On-chain calls also record the paid amount and
// go through OnChainFunc, falling back to SettleFunc.
type mockSettler struct {
	mu          sync.Mutex
	calls       []settleCall
	paid        []int64
	SettleFunc  func(paymentID string) error
	OnChainFunc func(paymentID string, paidNano int64) error
}

func (m *mockSettler) SettlePayment(_ context.Context, paymentID, providerRef string) error {
	m.mu.Lock()
	m.calls = append(m.calls, settleCall{paymentID, providerRef})
	m.mu.Unlock()
	if m.SettleFunc != nil {
		return m.SettleFunc(paymentID)
	}
	return nil
}

func (m *mockSettler) SettleOnChain(_ context.Context, paymentID, txHash string, paidNano int64) error {
	m.mu.Lock()
	m.calls = append(m.calls, settleCall{paymentID, txHash})
	m.paid = append(m.paid, paidNano)
	m.mu.Unlock()
	if m.OnChainFunc != nil {
		return m.OnChainFunc(paymentID, paidNano)
	}
	if m.SettleFunc != nil {
		return m.SettleFunc(paymentID)
	}
	return nil
}

type mockGateway struct {
	payments map[string]*adapter.GatewayPayment
}

func (g *mockGateway) Name() string { return "yookassa" }
func (g *mockGateway) CreatePayment(context.Context, adapter.InvoiceRequest) (*adapter.Checkout, error) {
	return nil, errors.New("not used")
}
func (g *mockGateway) FetchPayment(_ context.Context, ref string) (*adapter.GatewayPayment, error) {
	p, ok := g.payments[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func newTestServer(settler *mockSettler, mutate func(*Deps)) http.Handler {
	deps := Deps{
		Settler: settler,
		YooKassa: &mockGateway{payments: map[string]*adapter.GatewayPayment{
			"yk-1": {ProviderRef: "yk-1", Status: "succeeded", Paid: true, Metadata: map[string]string{"payment_id": "pid-1"}},
			"yk-2": {ProviderRef: "yk-2", Status: "pending", Metadata: map[string]string{"payment_id": "pid-2"}},
		}},
		CryptoBotToken: "cb-token",
		HeleketAPIKey:  "hk-key",
		TonSecret:      "ton-secret",
		BotUsername:    "vpn_shop_bot",
	}
	if mutate != nil {
		mutate(&deps)
	}
	return NewServer(0, deps, newTestLogger()).Handler()
}

func post(h http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func cryptoBotSig(token, body string) string {
	secret := sha256.Sum256([]byte(token))
	h := hmac.New(sha256.New, secret[:])
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}

func tonSig(secret, body string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}

func TestYooKassaWebhook(t *testing.T) {
	t.Run("succeeded payment is re-fetched and settled", func(t *testing.T) {
		// --- Arrange ---
		settler := &mockSettler{}
		h := newTestServer(settler, nil)

		// --- Act ---
		rr := post(h, "/webhooks/yookassa", `{"type":"notification","event":"payment.succeeded","object":{"id":"yk-1","status":"succeeded"}}`, nil)

		// --- Assert ---
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if len(settler.calls) != 1 || settler.calls[0] != (settleCall{"pid-1", "yk-1"}) {
			t.Errorf("unexpected settle calls %+v", settler.calls)
		}
		if rr.Header().Get("X-Trace-Id") == "" {
			t.Error("expected trace id header")
		}
	})

	t.Run("body claims success but the api does not", func(t *testing.T) {
		settler := &mockSettler{}
		h := newTestServer(settler, nil)

		rr := post(h, "/webhooks/yookassa", `{"event":"payment.succeeded","object":{"id":"yk-2","status":"succeeded"}}`, nil)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
		if len(settler.calls) != 0 {
			t.Error("unverified payment must not be settled")
		}
	})

	t.Run("unknown payment id at provider", func(t *testing.T) {
		settler := &mockSettler{}
		h := newTestServer(settler, nil)

		rr := post(h, "/webhooks/yookassa", `{"event":"payment.succeeded","object":{"id":"forged"}}`, nil)

		if rr.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", rr.Code)
		}
		if len(settler.calls) != 0 {
			t.Error("forged payment must not be settled")
		}
	})

	t.Run("other events are acknowledged", func(t *testing.T) {
		settler := &mockSettler{}
		h := newTestServer(settler, nil)

		rr := post(h, "/webhooks/yookassa", `{"event":"payment.canceled","object":{"id":"yk-1"}}`, nil)

		if rr.Code != http.StatusOK || len(settler.calls) != 0 {
			t.Errorf("expected silent 200, got %d with %d calls", rr.Code, len(settler.calls))
		}
	})

	t.Run("ip allow-list", func(t *testing.T) {
		settler := &mockSettler{}
		denied := newTestServer(settler, func(d *Deps) { d.YooKassaIPs = []string{"185.71.76.0/27"} })
		allowed := newTestServer(settler, func(d *Deps) { d.YooKassaIPs = []string{"192.0.2.0/24"} })
		body := `{"event":"payment.succeeded","object":{"id":"yk-1"}}`

		if rr := post(denied, "/webhooks/yookassa", body, nil); rr.Code != http.StatusForbidden {
			t.Errorf("expected 403 from unlisted address, got %d", rr.Code)
		}
		if rr := post(allowed, "/webhooks/yookassa", body, nil); rr.Code != http.StatusOK {
			t.Errorf("expected 200 from listed address, got %d", rr.Code)
		}
	})
}

func TestCryptoBotWebhook(t *testing.T) {
	body := `{"update_type":"invoice_paid","payload":{"invoice_id":77,"status":"paid","payload":"pid-7"}}`

	t.Run("valid signature", func(t *testing.T) {
		settler := &mockSettler{}
		h := newTestServer(settler, nil)

		rr := post(h, "/webhooks/cryptobot", body, map[string]string{"crypto-pay-api-signature": cryptoBotSig("cb-token", body)})

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if len(settler.calls) != 1 || settler.calls[0] != (settleCall{"pid-7", "77"}) {
			t.Errorf("unexpected settle calls %+v", settler.calls)
		}
	})

	t.Run("signature from another token", func(t *testing.T) {
		settler := &mockSettler{}
		h := newTestServer(settler, nil)

		rr := post(h, "/webhooks/cryptobot", body, map[string]string{"crypto-pay-api-signature": cryptoBotSig("other", body)})

		if rr.Code != http.StatusUnauthorized || len(settler.calls) != 0 {
			t.Errorf("expected 401 without settlement, got %d", rr.Code)
		}
	})

	t.Run("rail not configured", func(t *testing.T) {
		settler := &mockSettler{}
		h := newTestServer(settler, func(d *Deps) { d.CryptoBotToken = "" })

		rr := post(h, "/webhooks/cryptobot", body, nil)

		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", rr.Code)
		}
	})
}

func TestHeleketWebhook(t *testing.T) {
	unsigned := `{"uuid":"h-1","order_id":"pid-3","status":"paid"}`
	sign := payment.HeleketSign([]byte(unsigned), "hk-key")
	body := `{"uuid":"h-1","order_id":"pid-3","status":"paid","sign":"` + sign + `"}`

	t.Run("paid", func(t *testing.T) {
		settler := &mockSettler{}
		h := newTestServer(settler, nil)

		rr := post(h, "/webhooks/heleket", body, nil)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if len(settler.calls) != 1 || settler.calls[0] != (settleCall{"pid-3", "h-1"}) {
			t.Errorf("unexpected settle calls %+v", settler.calls)
		}
	})

	t.Run("tampered body", func(t *testing.T) {
		settler := &mockSettler{}
		h := newTestServer(settler, nil)

		rr := post(h, "/webhooks/heleket", strings.Replace(body, "pid-3", "pid-9", 1), nil)

		if rr.Code != http.StatusUnauthorized || len(settler.calls) != 0 {
			t.Errorf("expected 401 without settlement, got %d", rr.Code)
		}
	})
}

func TestTonWebhook(t *testing.T) {
	body := `{"memo":"pid-4","tx_hash":"abc","amount_nano":1500000000}`

	t.Run("signed notification settles by memo", func(t *testing.T) {
		settler := &mockSettler{}
		h := newTestServer(settler, nil)

		rr := post(h, "/webhooks/ton", body, map[string]string{"X-Signature": tonSig("ton-secret", body)})

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if len(settler.calls) != 1 || settler.calls[0] != (settleCall{"pid-4", "abc"}) {
			t.Errorf("unexpected settle calls %+v", settler.calls)
		}
		if len(settler.paid) != 1 || settler.paid[0] != 1500000000 {
			t.Errorf("paid amount not passed on: %v", settler.paid)
		}
	})

	t.Run("transfer below the invoice is acknowledged but not settled", func(t *testing.T) {
		// --- Arrange ---
		const want = 1500000000
		settled := false
		settler := &mockSettler{OnChainFunc: func(_ string, paid int64) error {
			if paid < want {
				return domain.ErrUnderpaid
			}
			settled = true
			return nil
		}}
		h := newTestServer(settler, nil)
		tiny := `{"memo":"pid-4","tx_hash":"abc","amount_nano":1}`

		// --- Act ---
		rr := post(h, "/webhooks/ton", tiny, map[string]string{"X-Signature": tonSig("ton-secret", tiny)})

		// --- Assert ---
		if rr.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rr.Code)
		}
		if settled {
			t.Error("a 1 nanoton transfer must not settle")
		}
		if len(settler.paid) != 1 || settler.paid[0] != 1 {
			t.Errorf("expected the paid amount 1 to reach settlement, got %v", settler.paid)
		}
	})

	t.Run("missing amount", func(t *testing.T) {
		settler := &mockSettler{}
		h := newTestServer(settler, nil)
		noAmount := `{"memo":"pid-4","tx_hash":"abc"}`

		rr := post(h, "/webhooks/ton", noAmount, map[string]string{"X-Signature": tonSig("ton-secret", noAmount)})

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
		if len(settler.calls) != 0 {
			t.Errorf("settlement must not run, got %+v", settler.calls)
		}
	})

	t.Run("missing memo", func(t *testing.T) {
		settler := &mockSettler{}
		h := newTestServer(settler, nil)
		noMemo := `{"tx_hash":"abc"}`

		rr := post(h, "/webhooks/ton", noMemo, map[string]string{"X-Signature": tonSig("ton-secret", noMemo)})

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})
}

func TestSettlementOutcomes(t *testing.T) {
	body := `{"memo":"pid-4","tx_hash":"abc","amount_nano":1500000000}`
	headers := map[string]string{"X-Signature": tonSig("ton-secret", body)}

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"duplicate delivery", domain.ErrAlreadySettled, http.StatusOK},
		{"unknown payment", domain.ErrNotFound, http.StatusOK},
		{"broken metadata", domain.ErrInvalidMetadata, http.StatusOK},
		{"underpaid transfer", domain.ErrUnderpaid, http.StatusOK},
		{"panel down", domain.ErrProvisionFailed, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			settler := &mockSettler{SettleFunc: func(string) error { return tc.err }}
			h := newTestServer(settler, nil)

			// --- Act ---
			rr := post(h, "/webhooks/ton", body, headers)

			// --- Assert ---
			if rr.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rr.Code)
			}
		})
	}
}

func TestHealthAndReturnPage(t *testing.T) {
	h := newTestServer(&mockSettler{}, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("healthz: expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/payment/return", nil))
	if !strings.Contains(rr.Body.String(), "https://t.me/vpn_shop_bot") {
		t.Error("return page should link back to the bot")
	}
}

func TestRecoverMiddleware(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }), Recover(newTestLogger()))
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rr.Code)
	}
}
