//go:build !integration

package web

import (
	"context"
	"sync"

	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/usecase"

	"github.com/shopspring/decimal"
)

type mockStats struct {
	dashboard *usecase.Dashboard
	txs       []*model.Transaction
	docs      []*model.BankPaymentDocument
	lastLimit int
}

func (m *mockStats) Dashboard(context.Context) (*usecase.Dashboard, error) {
	return m.dashboard, nil
}

func (m *mockStats) Transactions(_ context.Context, limit, offset int) ([]*model.Transaction, error) {
	m.lastLimit = limit
	if offset >= len(m.txs) {
		return nil, nil
	}
	return m.txs[offset:], nil
}

func (m *mockStats) PendingDocuments(context.Context) ([]*model.BankPaymentDocument, error) {
	return m.docs, nil
}

type mockCatalog struct {
	usecase.CatalogUseCase // embedded for methods the API does not call

	mu     sync.Mutex
	hosts  map[string]*model.Host
	plans  map[int64]*model.Plan
	nextID int64
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{hosts: map[string]*model.Host{}, plans: map[int64]*model.Plan{}, nextID: 1}
}

func (m *mockCatalog) ListHosts(context.Context) ([]*model.Host, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Host, 0, len(m.hosts))
	for _, h := range m.hosts {
		out = append(out, h)
	}
	return out, nil
}

func (m *mockCatalog) GetHost(_ context.Context, name string) (*model.Host, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hosts[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *h
	return &cp, nil
}

func (m *mockCatalog) SaveHost(_ context.Context, h *model.Host) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hosts[h.Name] = h
	return nil
}

func (m *mockCatalog) DeleteHost(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hosts[name]; !ok {
		return domain.ErrNotFound
	}
	delete(m.hosts, name)
	return nil
}

func (m *mockCatalog) ListPlans(_ context.Context, host string) ([]*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Plan
	for _, p := range m.plans {
		if p.HostName == host {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockCatalog) GetPlan(_ context.Context, id int64) (*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (m *mockCatalog) SavePlan(_ context.Context, p *model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hosts[p.HostName]; !ok {
		return domain.ErrNotFound
	}
	if p.ID == 0 {
		p.ID = m.nextID
		m.nextID++
	}
	m.plans[p.ID] = p
	return nil
}

func (m *mockCatalog) DeletePlan(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.plans, id)
	return nil
}

type mockSettings struct {
	usecase.SettingsUseCase

	mu     sync.Mutex
	values map[string]string
}

func (m *mockSettings) String(_ context.Context, key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key]
}

func (m *mockSettings) All(context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

func (m *mockSettings) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

type mockReferrals struct {
	usecase.ReferralUseCase

	users map[int64]*model.User
}

func (m *mockReferrals) Balance(_ context.Context, tgID int64) (*model.User, int, error) {
	u, ok := m.users[tgID]
	if !ok {
		return nil, 0, domain.ErrNotFound
	}
	return u, 2, nil
}

func (m *mockReferrals) ResetBalance(_ context.Context, tgID int64) error {
	u, ok := m.users[tgID]
	if !ok {
		return domain.ErrNotFound
	}
	u.ReferralBalance, u.ReferralBalanceAll = decimal.Zero, decimal.Zero
	return nil
}

func (m *mockReferrals) SetBalance(_ context.Context, tgID int64, amount decimal.Decimal) error {
	u, ok := m.users[tgID]
	if !ok {
		return domain.ErrNotFound
	}
	if amount.IsNegative() {
		return domain.ErrInvalidArgument
	}
	u.ReferralBalance = amount
	return nil
}

type mockSettler struct {
	calls      []string
	SettleFunc func(paymentID string) error
}

func (m *mockSettler) SettlePayment(_ context.Context, paymentID, _ string) error {
	m.calls = append(m.calls, paymentID)
	if m.SettleFunc != nil {
		return m.SettleFunc(paymentID)
	}
	return nil
}

func (m *mockSettler) SettleOnChain(ctx context.Context, paymentID, txHash string, _ int64) error {
	return m.SettlePayment(ctx, paymentID, txHash)
}
