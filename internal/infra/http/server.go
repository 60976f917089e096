package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"time"

	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/ports/adapter"
	ucport "vpn-shop-bot/internal/domain/ports/usecase"
	"vpn-shop-bot/internal/infra/adapters/payment"
	"vpn-shop-bot/internal/infra/logging"
	"vpn-shop-bot/internal/infra/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const maxWebhookBody = 1 << 20

// Deps are the collaborators of the webhook server. A rail whose secret is empty
// answers 503 so the provider keeps retrying until it is configured.
type Deps struct {
	Settler        ucport.Settler
	YooKassa       adapter.CardGateway
	YooKassaIPs    []string
	CryptoBotToken string
	HeleketAPIKey  string
	TonSecret      string
	BotUsername    string
}

// Server receives payment provider callbacks and hands verified payments to settlement.
type Server struct {
	deps   Deps
	port   int
	log    *zerolog.Logger
	server *http.Server
}

func NewServer(port int, deps Deps, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "webhooks").Logger()
	return &Server{deps: deps, port: port, log: &l}
}

// Handler builds the router; exposed for tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/payment/return", s.handleReturn)

	r.Route("/webhooks", func(r chi.Router) {
		r.With(AllowIPs(s.deps.YooKassaIPs, s.log)).Post("/yookassa", s.handleYooKassa)
		r.Post("/cryptobot", s.handleCryptoBot)
		r.Post("/heleket", s.handleHeleket)
		r.Post("/ton", s.handleTon)
	})

	return Chain(r,
		Recover(s.log),
		TraceID(),
		RequestLog(s.log),
		Timeout(20*time.Second),
	)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Int("port", s.port).Msg("webhook server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type ykEvent struct {
	Type   string `json:"type"`
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"object"`
}

// handleYooKassa never trusts the notification body: the payment is re-read from the API.
func (s *Server) handleYooKassa(w http.ResponseWriter, r *http.Request) {
	const provider = "yookassa"
	if s.deps.YooKassa == nil {
		s.reject(w, r, provider, "disabled", http.StatusServiceUnavailable)
		return
	}
	body, ok := s.readBody(w, r, provider)
	if !ok {
		return
	}
	var ev ykEvent
	if err := json.Unmarshal(body, &ev); err != nil || ev.Object.ID == "" {
		s.reject(w, r, provider, "malformed", http.StatusBadRequest)
		return
	}
	if ev.Event != "payment.succeeded" {
		s.ignore(w, r, provider, ev.Event)
		return
	}
	gp, err := s.deps.YooKassa.FetchPayment(r.Context(), ev.Object.ID)
	if err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Str("provider_ref", ev.Object.ID).Msg("yookassa re-fetch failed")
		s.reject(w, r, provider, "fetch_failed", http.StatusBadGateway)
		return
	}
	if !gp.Paid || gp.Status != "succeeded" {
		s.reject(w, r, provider, "unverified", http.StatusBadRequest)
		return
	}
	s.settle(w, r, provider, gp.Metadata["payment_id"], gp.ProviderRef)
}

type cryptoBotUpdate struct {
	UpdateType string `json:"update_type"`
	Payload    struct {
		InvoiceID int64  `json:"invoice_id"`
		Status    string `json:"status"`
		Payload   string `json:"payload"`
	} `json:"payload"`
}

func (s *Server) handleCryptoBot(w http.ResponseWriter, r *http.Request) {
	const provider = "cryptobot"
	if s.deps.CryptoBotToken == "" {
		s.reject(w, r, provider, "disabled", http.StatusServiceUnavailable)
		return
	}
	body, ok := s.readBody(w, r, provider)
	if !ok {
		return
	}
	if !payment.VerifyCryptoBotSignature(s.deps.CryptoBotToken, body, r.Header.Get("crypto-pay-api-signature")) {
		s.reject(w, r, provider, "bad_signature", http.StatusUnauthorized)
		return
	}
	var up cryptoBotUpdate
	if err := json.Unmarshal(body, &up); err != nil {
		s.reject(w, r, provider, "malformed", http.StatusBadRequest)
		return
	}
	if up.UpdateType != "invoice_paid" {
		s.ignore(w, r, provider, up.UpdateType)
		return
	}
	s.settle(w, r, provider, up.Payload.Payload, strconv.FormatInt(up.Payload.InvoiceID, 10))
}

func (s *Server) handleHeleket(w http.ResponseWriter, r *http.Request) {
	const provider = "heleket"
	if s.deps.HeleketAPIKey == "" {
		s.reject(w, r, provider, "disabled", http.StatusServiceUnavailable)
		return
	}
	body, ok := s.readBody(w, r, provider)
	if !ok {
		return
	}
	hw, err := payment.VerifyHeleketWebhook(body, s.deps.HeleketAPIKey)
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		s.reject(w, r, provider, "bad_signature", http.StatusUnauthorized)
		return
	case err != nil:
		s.reject(w, r, provider, "malformed", http.StatusBadRequest)
		return
	}
	if !hw.Paid() {
		s.ignore(w, r, provider, hw.Status)
		return
	}
	s.settle(w, r, provider, hw.OrderID, hw.UUID)
}

type tonNotification struct {
	Memo       string `json:"memo"`
	TxHash     string `json:"tx_hash"`
	AmountNano int64  `json:"amount_nano"`
}

// handleTon receives indexer notifications for incoming transfers; the memo is the payment id.
func (s *Server) handleTon(w http.ResponseWriter, r *http.Request) {
	const provider = "ton"
	if s.deps.TonSecret == "" {
		s.reject(w, r, provider, "disabled", http.StatusServiceUnavailable)
		return
	}
	body, ok := s.readBody(w, r, provider)
	if !ok {
		return
	}
	if !payment.VerifyTonWebhookSignature(s.deps.TonSecret, body, r.Header.Get("X-Signature")) {
		s.reject(w, r, provider, "bad_signature", http.StatusUnauthorized)
		return
	}
	var n tonNotification
	if err := json.Unmarshal(body, &n); err != nil || n.Memo == "" || n.AmountNano <= 0 {
		s.reject(w, r, provider, "malformed", http.StatusBadRequest)
		return
	}
	s.respond(w, r, provider, n.Memo, n.TxHash, func(ctx context.Context) error {
		return s.deps.Settler.SettleOnChain(ctx, n.Memo, n.TxHash, n.AmountNano)
	})
}

func (s *Server) settle(w http.ResponseWriter, r *http.Request, provider, paymentID, providerRef string) {
	s.respond(w, r, provider, paymentID, providerRef, func(ctx context.Context) error {
		return s.deps.Settler.SettlePayment(ctx, paymentID, providerRef)
	})
}

// respond maps settlement outcomes onto provider-facing statuses. Only transient
// failures get a 5xx; everything else is acknowledged so the provider stops retrying.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, provider, paymentID, providerRef string, settle func(context.Context) error) {
	ctx := logging.WithPaymentID(r.Context(), paymentID)
	l := logging.With(ctx, s.log).With().Str("provider", provider).Str("provider_ref", providerRef).Logger()
	if paymentID == "" {
		l.Error().Msg("verified webhook without payment id")
		metrics.IncWebhook(provider, "invalid_metadata")
		w.WriteHeader(http.StatusOK)
		return
	}
	err := settle(ctx)
	switch {
	case err == nil:
		metrics.IncWebhook(provider, "settled")
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, domain.ErrAlreadySettled):
		l.Info().Msg("duplicate webhook")
		metrics.IncWebhook(provider, "duplicate")
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, domain.ErrUnderpaid):
		l.Error().Err(err).Msg("underpaid transfer not settled")
		metrics.IncWebhook(provider, "underpaid")
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidMetadata):
		l.Error().Err(err).Msg("webhook does not match a settleable transaction")
		metrics.IncWebhook(provider, "unmatched")
		w.WriteHeader(http.StatusOK)
	default:
		l.Error().Err(err).Msg("settlement failed")
		metrics.IncWebhook(provider, "error")
		http.Error(w, "settlement failed", http.StatusInternalServerError)
	}
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request, provider string) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.reject(w, r, provider, "unreadable", http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request, provider, result string, status int) {
	logging.With(r.Context(), s.log).Warn().Str("provider", provider).Str("result", result).Msg("webhook rejected")
	metrics.IncWebhook(provider, result)
	http.Error(w, result, status)
}

func (s *Server) ignore(w http.ResponseWriter, r *http.Request, provider, event string) {
	logging.With(r.Context(), s.log).Debug().Str("provider", provider).Str("event", event).Msg("webhook ignored")
	metrics.IncWebhook(provider, "ignored")
	w.WriteHeader(http.StatusOK)
}

// handleReturn is where the card gateway sends the buyer after checkout.
func (s *Server) handleReturn(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = returnPage.Execute(w, struct{ BotUsername string }{s.deps.BotUsername})
}

var returnPage = template.Must(template.New("return").Parse(`<!doctype html>
<html lang="ru">
<head>
<meta charset="utf-8" />
<meta name="viewport" content="width=device-width,initial-scale=1" />
<title>Оплата</title>
<style>
body{font-family:system-ui,Arial,sans-serif;margin:2rem;}
.card{max-width:560px;border:1px solid #ddd;border-radius:12px;padding:24px;}
.btn{display:inline-block;margin-top:16px;padding:10px 16px;border-radius:8px;border:1px solid #888;text-decoration:none}
</style>
</head>
<body>
<div class="card">
<h2>Спасибо!</h2>
<p>Как только платёж будет подтверждён, бот пришлёт ваш ключ.</p>
{{if .BotUsername}}<a class="btn" href="https://t.me/{{.BotUsername}}">Вернуться в бот</a>{{end}}
</div>
</body>
</html>`))
