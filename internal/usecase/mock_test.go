//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/adapter"
	"vpn-shop-bot/internal/domain/ports/repository"
	"vpn-shop-bot/internal/infra/i18n"
)

// =============================
// Repositories
// =============================

// ---- Mock UserRepository ----

type MockUserRepo struct {
	mu    sync.Mutex
	users map[int64]*model.User

	CreateIfNotExistsFunc  func(ctx context.Context, tx repository.Tx, u *model.User) (bool, error)
	AddReferralBalanceFunc func(ctx context.Context, tx repository.Tx, tgID int64, amount decimal.Decimal) error
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo() *MockUserRepo { return &MockUserRepo{users: map[int64]*model.User{}} }

// Put seeds a user directly.
func (m *MockUserRepo) Put(u *model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.TotalSpent.IsZero() {
		u.TotalSpent = decimal.Zero
	}
	m.users[u.TelegramID] = u
}

func (m *MockUserRepo) Get(id int64) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (m *MockUserRepo) CreateIfNotExists(ctx context.Context, tx repository.Tx, u *model.User) (bool, error) {
	if m.CreateIfNotExistsFunc != nil {
		return m.CreateIfNotExistsFunc(ctx, tx, u)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.TelegramID]; ok {
		return false, nil
	}
	cp := *u
	m.users[u.TelegramID] = &cp
	return true, nil
}

func (m *MockUserRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	if u := m.Get(tgID); u != nil {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockUserRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TelegramID < out[j].TelegramID })
	return out, nil
}

func (m *MockUserRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func (m *MockUserRepo) CountReferrals(ctx context.Context, tx repository.Tx, referrerID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.users {
		if u.ReferredBy != nil && *u.ReferredBy == referrerID {
			n++
		}
	}
	return n, nil
}

func (m *MockUserRepo) update(tgID int64, fn func(u *model.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[tgID]
	if !ok {
		return domain.ErrNotFound
	}
	fn(u)
	return nil
}

func (m *MockUserRepo) SetAgreedToTerms(ctx context.Context, tx repository.Tx, tgID int64) error {
	return m.update(tgID, func(u *model.User) { u.AgreedToTerms = true })
}

func (m *MockUserRepo) MarkTrialUsed(ctx context.Context, tx repository.Tx, tgID int64) (bool, error) {
	flipped := false
	err := m.update(tgID, func(u *model.User) {
		if !u.TrialUsed {
			u.TrialUsed, flipped = true, true
		}
	})
	return flipped, err
}

func (m *MockUserRepo) SetBanned(ctx context.Context, tx repository.Tx, tgID int64, banned bool) error {
	return m.update(tgID, func(u *model.User) { u.IsBanned = banned })
}

func (m *MockUserRepo) AddPurchaseStats(ctx context.Context, tx repository.Tx, tgID int64, spent decimal.Decimal, months int) error {
	return m.update(tgID, func(u *model.User) {
		u.TotalSpent = u.TotalSpent.Add(spent)
		u.TotalMonths += months
	})
}

func (m *MockUserRepo) AddReferralBalance(ctx context.Context, tx repository.Tx, tgID int64, amount decimal.Decimal) error {
	if m.AddReferralBalanceFunc != nil {
		return m.AddReferralBalanceFunc(ctx, tx, tgID, amount)
	}
	return m.update(tgID, func(u *model.User) {
		u.ReferralBalance = u.ReferralBalance.Add(amount)
		u.ReferralBalanceAll = u.ReferralBalanceAll.Add(amount)
	})
}

func (m *MockUserRepo) ResetReferralBalanceIfAtLeast(ctx context.Context, tx repository.Tx, tgID int64, min decimal.Decimal) (decimal.Decimal, bool, error) {
	var (
		amount decimal.Decimal
		ok     bool
	)
	err := m.update(tgID, func(u *model.User) {
		if u.ReferralBalance.LessThan(min) {
			return
		}
		amount, ok = u.ReferralBalance, true
		u.ReferralBalance, u.ReferralBalanceAll = decimal.Zero, decimal.Zero
	})
	return amount, ok, err
}

func (m *MockUserRepo) SetReferralBalance(ctx context.Context, tx repository.Tx, tgID int64, amount decimal.Decimal) error {
	return m.update(tgID, func(u *model.User) { u.ReferralBalance = amount })
}

// ---- Mock KeyRepository ----

type MockKeyRepo struct {
	mu     sync.Mutex
	keys   map[int64]*model.Key
	nextID int64
}

var _ repository.KeyRepository = (*MockKeyRepo)(nil)

func NewMockKeyRepo() *MockKeyRepo { return &MockKeyRepo{keys: map[int64]*model.Key{}} }

func (m *MockKeyRepo) Create(ctx context.Context, tx repository.Tx, k *model.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	k.ID = m.nextID
	cp := *k
	m.keys[k.ID] = &cp
	return nil
}

func (m *MockKeyRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *k
	return &cp, nil
}

func (m *MockKeyRepo) ListByUser(ctx context.Context, tx repository.Tx, userID int64) ([]*model.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Key
	for _, k := range m.keys {
		if k.UserID == userID {
			cp := *k
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockKeyRepo) NextKeyNumber(ctx context.Context, tx repository.Tx, userID int64) (int, error) {
	keys, _ := m.ListByUser(ctx, tx, userID)
	return len(keys) + 1, nil
}

func (m *MockKeyRepo) UpdateAfterExtend(ctx context.Context, tx repository.Tx, id int64, clientUUID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok {
		return domain.ErrNotFound
	}
	k.ClientUUID, k.ExpiresAt, k.RemindedAt = clientUUID, expiresAt, nil
	return nil
}

func (m *MockKeyRepo) CountAll(ctx context.Context, tx repository.Tx) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys), nil
}

func (m *MockKeyRepo) ListExpiringBetween(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Key
	for _, k := range m.keys {
		if !k.ExpiresAt.Before(from) && k.ExpiresAt.Before(to) && k.RemindedAt == nil {
			cp := *k
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockKeyRepo) MarkReminded(ctx context.Context, tx repository.Tx, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok {
		return domain.ErrNotFound
	}
	k.RemindedAt = &at
	return nil
}

func (m *MockKeyRepo) Len() int {
	n, _ := m.CountAll(context.Background(), repository.NoTX)
	return n
}

// ---- Mock Host/Plan repositories ----

type MockHostRepo struct {
	mu    sync.Mutex
	hosts map[string]*model.Host
}

var _ repository.HostRepository = (*MockHostRepo)(nil)

func NewMockHostRepo(hosts ...*model.Host) *MockHostRepo {
	m := &MockHostRepo{hosts: map[string]*model.Host{}}
	for _, h := range hosts {
		m.hosts[h.Name] = h
	}
	return m
}

func (m *MockHostRepo) Save(ctx context.Context, tx repository.Tx, h *model.Host) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *h
	m.hosts[h.Name] = &cp
	return nil
}

func (m *MockHostRepo) FindByName(ctx context.Context, tx repository.Tx, name string) (*model.Host, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hosts[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *h
	return &cp, nil
}

func (m *MockHostRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Host, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Host
	for _, h := range m.hosts {
		cp := *h
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MockHostRepo) Delete(ctx context.Context, tx repository.Tx, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hosts[name]; !ok {
		return domain.ErrNotFound
	}
	delete(m.hosts, name)
	return nil
}

type MockPlanRepo struct {
	mu     sync.Mutex
	plans  map[int64]*model.Plan
	nextID int64
}

var _ repository.PlanRepository = (*MockPlanRepo)(nil)

func NewMockPlanRepo(plans ...*model.Plan) *MockPlanRepo {
	m := &MockPlanRepo{plans: map[int64]*model.Plan{}}
	for _, p := range plans {
		m.plans[p.ID] = p
		if p.ID > m.nextID {
			m.nextID = p.ID
		}
	}
	return m
}

func (m *MockPlanRepo) Save(ctx context.Context, tx repository.Tx, p *model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		m.nextID++
		p.ID = m.nextID
	}
	cp := *p
	m.plans[p.ID] = &cp
	return nil
}

func (m *MockPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPlanRepo) ListByHost(ctx context.Context, tx repository.Tx, hostName string) ([]*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Plan
	for _, p := range m.plans {
		if p.HostName == hostName {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockPlanRepo) Delete(ctx context.Context, tx repository.Tx, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.plans, id)
	return nil
}

// ---- Mock TransactionRepository ----

type MockTransactionRepo struct {
	mu     sync.Mutex
	byPID  map[string]*model.Transaction
	nextID int64

	CreatePendingFunc func(ctx context.Context, tx repository.Tx, t *model.Transaction) error
}

var _ repository.TransactionRepository = (*MockTransactionRepo)(nil)

func NewMockTransactionRepo() *MockTransactionRepo {
	return &MockTransactionRepo{byPID: map[string]*model.Transaction{}}
}

// Seed stores t as pending and returns it.
func (m *MockTransactionRepo) Seed(meta model.PurchaseMetadata) *model.Transaction {
	t := model.NewPendingTransaction(meta)
	_ = m.CreatePending(context.Background(), repository.NoTX, t)
	return t
}

func (m *MockTransactionRepo) Get(paymentID string) *model.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byPID[paymentID]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

func (m *MockTransactionRepo) All() []*model.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Transaction
	for _, t := range m.byPID {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MockTransactionRepo) CreatePending(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	if m.CreatePendingFunc != nil {
		return m.CreatePendingFunc(ctx, tx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.PaymentID == "" {
		t.PaymentID = uuid.NewString()
	}
	m.nextID++
	t.ID = m.nextID
	t.Status = model.TransactionPending
	cp := *t
	m.byPID[t.PaymentID] = &cp
	return nil
}

func (m *MockTransactionRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.byPID {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockTransactionRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Transaction, error) {
	if t := m.Get(paymentID); t != nil {
		return t, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockTransactionRepo) LockByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Transaction, error) {
	return m.FindByPaymentID(ctx, tx, paymentID)
}

func (m *MockTransactionRepo) transition(paymentID string, to model.TransactionStatus, fn func(t *model.Transaction)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byPID[paymentID]
	if !ok || t.Status != model.TransactionPending {
		return false
	}
	t.Status = to
	if fn != nil {
		fn(t)
	}
	return true
}

func (m *MockTransactionRepo) MarkPaidIfPending(ctx context.Context, tx repository.Tx, paymentID string, providerRef *string, paidAt time.Time) (bool, error) {
	return m.transition(paymentID, model.TransactionPaid, func(t *model.Transaction) {
		t.PaidAt = &paidAt
		if providerRef != nil {
			t.ProviderRef = providerRef
		}
	}), nil
}

func (m *MockTransactionRepo) MarkFailedIfPending(ctx context.Context, tx repository.Tx, paymentID string) (bool, error) {
	return m.transition(paymentID, model.TransactionFailed, nil), nil
}

func (m *MockTransactionRepo) SetProviderRef(ctx context.Context, tx repository.Tx, paymentID, providerRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byPID[paymentID]
	if !ok {
		return domain.ErrNotFound
	}
	t.ProviderRef = &providerRef
	return nil
}

func (m *MockTransactionRepo) FailPendingOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time, exceptRail model.Rail) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.byPID {
		if t.Status == model.TransactionPending && t.CreatedAt.Before(cutoff) && t.Rail != exceptRail {
			t.Status = model.TransactionFailed
			n++
		}
	}
	return n, nil
}

func (m *MockTransactionRepo) List(ctx context.Context, tx repository.Tx, limit, offset int) ([]*model.Transaction, error) {
	return m.All(), nil
}

func (m *MockTransactionRepo) Stats(ctx context.Context, tx repository.Tx) (*model.TransactionStats, error) {
	st := &model.TransactionStats{Revenue: decimal.Zero}
	for _, t := range m.All() {
		switch t.Status {
		case model.TransactionPaid:
			st.PaidCount++
			st.Revenue = st.Revenue.Add(t.Amount)
		case model.TransactionPending:
			st.PendingCount++
		}
	}
	return st, nil
}

// ---- Mock BankDocumentRepository ----

type MockBankDocumentRepo struct {
	mu     sync.Mutex
	docs   map[int64]*model.BankPaymentDocument
	nextID int64
}

var _ repository.BankDocumentRepository = (*MockBankDocumentRepo)(nil)

func NewMockBankDocumentRepo() *MockBankDocumentRepo {
	return &MockBankDocumentRepo{docs: map[int64]*model.BankPaymentDocument{}}
}

func (m *MockBankDocumentRepo) Create(ctx context.Context, tx repository.Tx, d *model.BankPaymentDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	d.ID = m.nextID
	cp := *d
	m.docs[d.ID] = &cp
	return nil
}

func (m *MockBankDocumentRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.BankPaymentDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MockBankDocumentRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id int64, status model.DocumentStatus, reviewer int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok || d.Status != model.DocumentPending {
		return false, nil
	}
	d.Status, d.ReviewedBy, d.ReviewedAt = status, &reviewer, &at
	return true, nil
}

func (m *MockBankDocumentRepo) SetStorageKey(ctx context.Context, tx repository.Tx, id int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.StorageKey = key
	return nil
}

func (m *MockBankDocumentRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.DocumentStatus) ([]*model.BankPaymentDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.BankPaymentDocument
	for _, d := range m.docs {
		if d.Status == status {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- Mock SettingRepository ----

type MockSettingRepo struct {
	mu     sync.Mutex
	values map[string]string
}

var _ repository.SettingRepository = (*MockSettingRepo)(nil)

func NewMockSettingRepo(values map[string]string) *MockSettingRepo {
	m := &MockSettingRepo{values: map[string]string{}}
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

func (m *MockSettingRepo) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MockSettingRepo) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MockSettingRepo) All(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

func (m *MockSettingRepo) SeedDefaults(ctx context.Context, defaults map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range defaults {
		if _, ok := m.values[k]; !ok {
			m.values[k] = v
		}
	}
	return nil
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// =============================
// Adapters
// =============================

// ---- Mock PanelClient ----

// MockPanel keeps clients by identity label, so extending a label reuses its client.
type MockPanel struct {
	mu      sync.Mutex
	clients map[string]*model.ProvisionResult
	Calls   int

	ProvisionFunc func(ctx context.Context, host *model.Host, label string, days int) (*model.ProvisionResult, error)
}

var _ adapter.PanelClient = (*MockPanel)(nil)

func NewMockPanel() *MockPanel { return &MockPanel{clients: map[string]*model.ProvisionResult{}} }

func (m *MockPanel) ProvisionOrExtend(ctx context.Context, host *model.Host, label string, days int) (*model.ProvisionResult, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.ProvisionFunc != nil {
		return m.ProvisionFunc(ctx, host, label, days)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.clients[label]
	base := time.Now()
	if ok && time.UnixMilli(res.ExpiryMs).After(base) {
		base = time.UnixMilli(res.ExpiryMs)
	}
	if !ok {
		id := uuid.NewString()
		res = &model.ProvisionResult{
			ClientUUID:       id,
			Email:            label,
			ConnectionString: fmt.Sprintf("vless://%s@%s:443#%s", id, host.Name, label),
		}
		m.clients[label] = res
	}
	res.ExpiryMs = base.Add(time.Duration(days) * 24 * time.Hour).UnixMilli()
	cp := *res
	return &cp, nil
}

func (m *MockPanel) ConnectionInfo(ctx context.Context, host *model.Host, key *model.Key) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.clients[key.Email]
	if !ok {
		return "", domain.ErrNotFound
	}
	return res.ConnectionString, nil
}

func (m *MockPanel) Clients() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// ---- Mock RateOracle ----

type MockRates struct {
	Rates map[string]decimal.Decimal
	Err   error
}

var _ adapter.RateOracle = (*MockRates)(nil)

func (m *MockRates) GetRate(ctx context.Context, pair string) (decimal.Decimal, error) {
	if m.Err != nil {
		return decimal.Zero, m.Err
	}
	r, ok := m.Rates[pair]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s: %w", pair, domain.ErrRateUnavailable)
	}
	return r, nil
}

// ---- Mock TelegramBotAdapter ----

type MockTelegramBot struct {
	mu     sync.Mutex
	Sent   []adapter.SendMessageParams
	Files  []adapter.SendFileParams
	Copies []int64

	CopyMessageFunc  func(ctx context.Context, chatID, fromChatID int64, messageID int, buttons adapter.Keyboard) error
	DownloadFileFunc func(ctx context.Context, fileID string) ([]byte, error)
}

var _ adapter.TelegramBotAdapter = (*MockTelegramBot)(nil)

func (m *MockTelegramBot) SendMessage(ctx context.Context, p adapter.SendMessageParams) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, p)
	return len(m.Sent), nil
}

func (m *MockTelegramBot) EditMessage(ctx context.Context, p adapter.EditMessageParams) error {
	return nil
}

func (m *MockTelegramBot) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return nil
}

func (m *MockTelegramBot) SendPhoto(ctx context.Context, p adapter.SendFileParams) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Files = append(m.Files, p)
	return len(m.Files), nil
}

func (m *MockTelegramBot) SendDocument(ctx context.Context, p adapter.SendFileParams) (int, error) {
	return m.SendPhoto(ctx, p)
}

func (m *MockTelegramBot) CopyMessage(ctx context.Context, chatID, fromChatID int64, messageID int, buttons adapter.Keyboard) error {
	if m.CopyMessageFunc != nil {
		if err := m.CopyMessageFunc(ctx, chatID, fromChatID, messageID, buttons); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Copies = append(m.Copies, chatID)
	return nil
}

func (m *MockTelegramBot) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	return nil
}

func (m *MockTelegramBot) IsChannelMember(ctx context.Context, channel string, userID int64) (bool, error) {
	return true, nil
}

func (m *MockTelegramBot) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	if m.DownloadFileFunc != nil {
		return m.DownloadFileFunc(ctx, fileID)
	}
	return []byte("file:" + fileID), nil
}

func (m *MockTelegramBot) Username() string { return "vpn_shop_bot" }

func (m *MockTelegramBot) SentTo(chatID int64) []adapter.SendMessageParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []adapter.SendMessageParams
	for _, p := range m.Sent {
		if p.ChatID == chatID {
			out = append(out, p)
		}
	}
	return out
}

// ---- Mock payment rails ----

type MockGateway struct {
	mu       sync.Mutex
	Requests []adapter.InvoiceRequest
	Err      error
}

var (
	_ adapter.CardGateway   = (*MockGateway)(nil)
	_ adapter.InvoiceIssuer = (*MockGateway)(nil)
)

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) CreatePayment(ctx context.Context, req adapter.InvoiceRequest) (*adapter.Checkout, error) {
	return m.CreateInvoice(ctx, req)
}

func (m *MockGateway) CreateInvoice(ctx context.Context, req adapter.InvoiceRequest) (*adapter.Checkout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.Requests = append(m.Requests, req)
	return &adapter.Checkout{ProviderRef: "ref-" + req.PaymentID, PayURL: "https://pay.example.com/" + req.PaymentID}, nil
}

func (m *MockGateway) FetchPayment(ctx context.Context, providerRef string) (*adapter.GatewayPayment, error) {
	return nil, domain.ErrNotFound
}

// MockWalletSession connects once Connect is called and records pushed transfers.
type MockWalletSession struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	Sent      []adapter.TransferRequest
	SendErr   error
}

var _ adapter.WalletSession = (*MockWalletSession)(nil)

func (s *MockWalletSession) Connect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
}

func (s *MockWalletSession) ConnectURL() string { return "tc://connect?id=test" }

func (s *MockWalletSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *MockWalletSession) SendTransaction(ctx context.Context, req adapter.TransferRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	s.Sent = append(s.Sent, req)
	return nil
}

func (s *MockWalletSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MockWalletSession) Transfers() []adapter.TransferRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]adapter.TransferRequest(nil), s.Sent...)
}

func (s *MockWalletSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type MockConnector struct {
	Session *MockWalletSession
}

var _ adapter.WalletConnector = (*MockConnector)(nil)

func (m *MockConnector) NewSession(ctx context.Context) (adapter.WalletSession, error) {
	if m.Session == nil {
		m.Session = &MockWalletSession{}
	}
	return m.Session, nil
}

// ---- Mock DocumentStore / EventPublisher ----

type MockStore struct {
	mu      sync.Mutex
	Objects map[string][]byte
}

var _ adapter.DocumentStore = (*MockStore)(nil)

func (m *MockStore) Put(ctx context.Context, key, contentType string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Objects == nil {
		m.Objects = map[string][]byte{}
	}
	m.Objects[key] = body
	return nil
}

type MockPublisher struct {
	mu     sync.Mutex
	Events []string
}

var _ adapter.EventPublisher = (*MockPublisher)(nil)

func (m *MockPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, routingKey)
	return nil
}

func (m *MockPublisher) Count(routingKey string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.Events {
		if e == routingKey {
			n++
		}
	}
	return n
}

// =============================
// Helpers
// =============================

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func newTestTranslator() *i18n.Translator {
	testFS := fstest.MapFS{
		"locales/ru.yaml": {
			Data: []byte("purchase_success: 'key #%d %s until %s: %s'\nkey_created: created\nkey_extended: extended\n" +
				"broadcast_done: 'sent=%d failed=%d banned=%d'\ninvoice_description: 'VPN %d mo'\n"),
		},
	}
	translator, _ := i18n.NewTranslator(testFS, "ru")
	return translator
}

const (
	testOperator = int64(900)
	testHost     = "Frankfurt 1"
)

func newTestHost() *model.Host {
	return &model.Host{Name: testHost, PanelURL: "https://panel.example.com", Username: "admin", Password: "secret", InboundID: 1}
}

func newTestPlan() *model.Plan {
	return &model.Plan{ID: 10, HostName: testHost, Name: "1 month", Months: 1, Price: decimal.NewFromInt(300)}
}

func newTestSettings(values map[string]string) *MockSettingRepo {
	all := map[string]string{}
	for k, v := range model.DefaultSettings {
		all[k] = v
	}
	for k, v := range values {
		all[k] = v
	}
	return NewMockSettingRepo(all)
}
