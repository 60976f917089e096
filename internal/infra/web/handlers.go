package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/infra/logging"
	"vpn-shop-bot/internal/infra/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain sentinels onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidMetadata):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrAlreadySettled), errors.Is(err, domain.ErrAlreadyExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrProvisionFailed):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Str("path", r.URL.Path).Msg("admin request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.ErrInvalidArgument
	}
	return nil
}

// ---- auth ----

type loginRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req loginRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !s.auth.CheckKey(req.Key) {
		metrics.IncAdminCommand("login", "unauthorized")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	token, err := s.auth.Mint(w)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	metrics.IncAdminCommand("login", "authorized")
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	if s.auth != nil {
		s.auth.Clear(w)
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- stats, transactions, documents ----

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Stats.Dashboard(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type transactionView struct {
	ID          int64           `json:"id"`
	PaymentID   string          `json:"payment_id"`
	ProviderRef string          `json:"provider_ref,omitempty"`
	UserID      int64           `json:"user_id"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Rail        string          `json:"rail"`
	HostName    string          `json:"host_name"`
	PlanID      int64           `json:"plan_id"`
	Action      string          `json:"action"`
	CreatedAt   time.Time       `json:"created_at"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
}

func toTransactionView(t *model.Transaction) transactionView {
	v := transactionView{
		ID:        t.ID,
		PaymentID: t.PaymentID,
		UserID:    t.UserID,
		Status:    string(t.Status),
		Amount:    t.Amount,
		Rail:      string(t.Rail),
		HostName:  t.Metadata.HostName,
		PlanID:    t.Metadata.PlanID,
		Action:    string(t.Metadata.Action),
		CreatedAt: t.CreatedAt,
		PaidAt:    t.PaidAt,
	}
	if t.ProviderRef != nil {
		v.ProviderRef = *t.ProviderRef
	}
	return v
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	txs, err := s.deps.Stats.Transactions(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]transactionView, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionView(t))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSettle retries settlement of a pending transaction, e.g. an approved bank
// transfer whose panel call failed.
func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")
	ctx := logging.WithPaymentID(r.Context(), paymentID)
	if err := s.deps.Settler.SettlePayment(ctx, paymentID, ""); err != nil {
		s.writeError(w, r, err)
		return
	}
	logging.With(ctx, s.log).Info().Msg("settlement retried from admin api")
	w.WriteHeader(http.StatusNoContent)
}

type documentView struct {
	ID            int64     `json:"id"`
	TransactionID int64     `json:"transaction_id"`
	UserID        int64     `json:"user_id"`
	Kind          string    `json:"kind"`
	Status        string    `json:"status"`
	StorageKey    string    `json:"storage_key,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if st := r.URL.Query().Get("status"); st != "" && st != string(model.DocumentPending) {
		http.Error(w, "only status=pending is supported", http.StatusBadRequest)
		return
	}
	docs, err := s.deps.Stats.PendingDocuments(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]documentView, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentView{
			ID:            d.ID,
			TransactionID: d.TransactionID,
			UserID:        d.UserID,
			Kind:          string(d.Kind),
			Status:        string(d.Status),
			StorageKey:    d.StorageKey,
			CreatedAt:     d.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// ---- settings ----

func (s *Server) handleSettingsAll(w http.ResponseWriter, r *http.Request) {
	all, err := s.deps.Settings.All(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) handleSettingGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": s.deps.Settings.String(r.Context(), key)})
}

type settingRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleSettingPut(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req settingRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Settings.Set(r.Context(), key, req.Value); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": req.Value})
}

// ---- referrals ----

func userIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	return id, nil
}

func (s *Server) handleReferrals(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	u, invited, err := s.deps.Referrals.Balance(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     u.TelegramID,
		"invited":     invited,
		"balance":     u.ReferralBalance,
		"balance_all": u.ReferralBalanceAll,
	})
}

func (s *Server) handleReferralsReset(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Referrals.ResetBalance(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type balanceRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) handleReferralsSet(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req balanceRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Referrals.SetBalance(r.Context(), id, req.Amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- hosts and plans ----

type hostView struct {
	Name      string `json:"name"`
	PanelURL  string `json:"panel_url"`
	Username  string `json:"username"`
	InboundID int    `json:"inbound_id"`
}

type hostRequest struct {
	Name      string `json:"name"`
	PanelURL  string `json:"panel_url"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	InboundID int    `json:"inbound_id"`
}

func (s *Server) handleHostsList(w http.ResponseWriter, r *http.Request) {
	hosts, err := s.deps.Catalog.ListHosts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]hostView, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, hostView{Name: h.Name, PanelURL: h.PanelURL, Username: h.Username, InboundID: h.InboundID})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHostGet(w http.ResponseWriter, r *http.Request) {
	h, err := s.deps.Catalog.GetHost(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hostView{Name: h.Name, PanelURL: h.PanelURL, Username: h.Username, InboundID: h.InboundID})
}

// handleHostSave creates (POST) or replaces (PUT /hosts/{name}) a host. The password is
// write-only and never echoed back.
func (s *Server) handleHostSave(w http.ResponseWriter, r *http.Request) {
	var req hostRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if name := chi.URLParam(r, "name"); name != "" {
		req.Name = name
		// an update without a password keeps the stored one
		if req.Password == "" {
			if cur, err := s.deps.Catalog.GetHost(r.Context(), name); err == nil {
				req.Password = cur.Password
			}
		}
	}
	h, err := model.NewHost(req.Name, req.PanelURL, req.Username, req.Password, req.InboundID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Catalog.SaveHost(r.Context(), h); err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	writeJSON(w, status, hostView{Name: h.Name, PanelURL: h.PanelURL, Username: h.Username, InboundID: h.InboundID})
}

func (s *Server) handleHostDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Catalog.DeleteHost(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type planView struct {
	ID       int64           `json:"id"`
	HostName string          `json:"host_name"`
	Name     string          `json:"name"`
	Months   int             `json:"months"`
	Price    decimal.Decimal `json:"price"`
}

func toPlanView(p *model.Plan) planView {
	return planView{ID: p.ID, HostName: p.HostName, Name: p.Name, Months: p.Months, Price: p.Price}
}

func (s *Server) handlePlansList(w http.ResponseWriter, r *http.Request) {
	plans, err := s.deps.Catalog.ListPlans(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]planView, 0, len(plans))
	for _, p := range plans {
		out = append(out, toPlanView(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func planIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	return id, nil
}

func (s *Server) handlePlanGet(w http.ResponseWriter, r *http.Request) {
	id, err := planIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.deps.Catalog.GetPlan(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanView(p))
}

type planRequest struct {
	HostName string          `json:"host_name"`
	Name     string          `json:"name"`
	Months   int             `json:"months"`
	Price    decimal.Decimal `json:"price"`
}

func (s *Server) handlePlanSave(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := model.NewPlan(strings.TrimSpace(req.HostName), strings.TrimSpace(req.Name), req.Months, req.Price)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if r.Method == http.MethodPut {
		if p.ID, err = planIDParam(r); err != nil {
			s.writeError(w, r, err)
			return
		}
		status = http.StatusOK
	}
	if err := s.deps.Catalog.SavePlan(r.Context(), p); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, toPlanView(p))
}

func (s *Server) handlePlanDelete(w http.ResponseWriter, r *http.Request) {
	id, err := planIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Catalog.DeletePlan(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pageParams(r *http.Request) (limit, offset int) {
	limit, offset = 50, 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
