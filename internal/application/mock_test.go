//go:build !integration

package application_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vpn-shop-bot/internal/application"
	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/adapter"
	"vpn-shop-bot/internal/infra/i18n"
	"vpn-shop-bot/internal/usecase"
)

const (
	operatorID = int64(900)
	buyerID    = int64(42)
	chatOf     = int64(1000) // chat id = chatOf + user id
	hostName   = "Frankfurt 1"
)

// ---- users ----

type mockUsers struct {
	users map[int64]*model.User
}

func newMockUsers() *mockUsers { return &mockUsers{users: map[int64]*model.User{}} }

func (m *mockUsers) add(id int64, agreed bool) *model.User {
	u, _ := model.NewUser(id, "user", nil)
	u.AgreedToTerms = agreed
	m.users[id] = u
	return u
}

func (m *mockUsers) Register(ctx context.Context, tgID int64, username, startArg string) (*model.User, bool, error) {
	if u, ok := m.users[tgID]; ok {
		return u, false, nil
	}
	u, err := model.NewUser(tgID, username, usecase.ParseReferrer(startArg))
	if err != nil {
		return nil, false, err
	}
	m.users[tgID] = u
	return u, true, nil
}

func (m *mockUsers) Get(ctx context.Context, tgID int64) (*model.User, error) {
	return m.users[tgID], nil
}

func (m *mockUsers) AgreeToTerms(ctx context.Context, tgID int64) error {
	u, ok := m.users[tgID]
	if !ok {
		return domain.ErrNotFound
	}
	u.AgreedToTerms = true
	return nil
}

func (m *mockUsers) Profile(ctx context.Context, tgID int64) (*usecase.Profile, error) {
	u, ok := m.users[tgID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &usecase.Profile{User: u}, nil
}

// ---- keys ----

type mockKeys struct {
	keys           []*model.Key
	IssueTrialFunc func(tgID int64, host string) (*usecase.IssuedKey, error)
	GetOwnedFunc   func(tgID, keyID int64) (*model.Key, error)
	trialHosts     []string
}

func (m *mockKeys) ListKeys(ctx context.Context, tgID int64) ([]*model.Key, error) {
	var out []*model.Key
	for _, k := range m.keys {
		if k.UserID == tgID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *mockKeys) GetOwnedKey(ctx context.Context, tgID, keyID int64) (*model.Key, error) {
	if m.GetOwnedFunc != nil {
		return m.GetOwnedFunc(tgID, keyID)
	}
	for _, k := range m.keys {
		if k.ID == keyID {
			if k.UserID != tgID {
				return nil, domain.ErrForbidden
			}
			return k, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockKeys) Connection(ctx context.Context, key *model.Key) (string, error) {
	return "vless://" + key.Email, nil
}

func (m *mockKeys) QRCode(connection string) ([]byte, error) { return []byte("png:" + connection), nil }

func (m *mockKeys) TrialAvailable(ctx context.Context, user *model.User) bool {
	return user != nil && !user.TrialUsed
}

func (m *mockKeys) IssueTrial(ctx context.Context, tgID int64, host string) (*usecase.IssuedKey, error) {
	m.trialHosts = append(m.trialHosts, host)
	if m.IssueTrialFunc != nil {
		return m.IssueTrialFunc(tgID, host)
	}
	k := &model.Key{ID: int64(len(m.keys) + 1), UserID: tgID, HostName: host, Email: "trial"}
	m.keys = append(m.keys, k)
	return &usecase.IssuedKey{Key: k, Connection: "vless://trial"}, nil
}

// ---- catalog ----

type mockCatalog struct {
	hosts      []*model.Host
	plans      map[string][]*model.Plan
	planCalls  []string
	hostsCalls int
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{
		hosts: []*model.Host{{Name: hostName, PanelURL: "https://panel", InboundID: 1}},
		plans: map[string][]*model.Plan{
			hostName: {{ID: 10, HostName: hostName, Name: "1 month", Months: 1, Price: decimal.NewFromInt(300)}},
		},
	}
}

func (m *mockCatalog) ListHosts(ctx context.Context) ([]*model.Host, error) {
	m.hostsCalls++
	return m.hosts, nil
}

func (m *mockCatalog) ListPlans(ctx context.Context, host string) ([]*model.Plan, error) {
	m.planCalls = append(m.planCalls, host)
	return m.plans[host], nil
}

// ---- checkout ----

type startCall struct {
	Intent model.PurchaseIntent
	Rail   model.Rail
}

type submitCall struct {
	PaymentID string
	FileID    string
	Kind      model.DocumentKind
}

type mockCheckout struct {
	rails       []usecase.RailOption
	bankDetails string
	priceCalls  int
	confirmed   int64
	starts      []startCall
	submits     []submitCall
	reviews     []int64
	StartFunc   func(intent *model.PurchaseIntent, rail model.Rail) (*usecase.CheckoutResult, error)
	ReviewFunc  func(reviewerID, docID int64, approve bool) (*model.BankPaymentDocument, error)
}

func (m *mockCheckout) AvailableRails(ctx context.Context) []usecase.RailOption { return m.rails }

func (m *mockCheckout) PriceIntent(ctx context.Context, tgID int64, intent *model.PurchaseIntent) (*model.Plan, usecase.Quote, error) {
	m.priceCalls++
	q := usecase.Quote{Base: decimal.NewFromInt(300), Final: decimal.NewFromInt(270), DiscountPct: decimal.NewFromInt(10)}
	intent.FinalPrice = q.Final
	return &model.Plan{ID: intent.PlanID, HostName: intent.HostName, Name: "1 month", Months: 1, Price: q.Base}, q, nil
}

func (m *mockCheckout) Start(ctx context.Context, tgID int64, intent *model.PurchaseIntent, rail model.Rail) (*usecase.CheckoutResult, error) {
	m.starts = append(m.starts, startCall{Intent: *intent, Rail: rail})
	if m.StartFunc != nil {
		return m.StartFunc(intent, rail)
	}
	t := &model.Transaction{ID: 1, PaymentID: "pid-1", Amount: intent.FinalPrice, Rail: rail}
	return &usecase.CheckoutResult{Transaction: t, PayURL: "https://pay.example/1"}, nil
}

func (m *mockCheckout) BankDetails(ctx context.Context) (string, error) {
	if m.bankDetails == "" {
		return "", domain.ErrRailUnavailable
	}
	return m.bankDetails, nil
}

func (m *mockCheckout) ConfirmBankTransfer(ctx context.Context, tgID int64, intent *model.PurchaseIntent) (*model.Transaction, error) {
	m.confirmed++
	return &model.Transaction{ID: m.confirmed, PaymentID: "bank-pid", Amount: intent.FinalPrice, Rail: model.RailBank}, nil
}

func (m *mockCheckout) SubmitDocument(ctx context.Context, tgID int64, paymentID, fileID string, kind model.DocumentKind) (*model.BankPaymentDocument, error) {
	m.submits = append(m.submits, submitCall{PaymentID: paymentID, FileID: fileID, Kind: kind})
	return &model.BankPaymentDocument{ID: 1, UserID: tgID, FileID: fileID, Kind: kind}, nil
}

func (m *mockCheckout) ReviewDocument(ctx context.Context, reviewerID, docID int64, approve bool) (*model.BankPaymentDocument, error) {
	m.reviews = append(m.reviews, docID)
	if m.ReviewFunc != nil {
		return m.ReviewFunc(reviewerID, docID, approve)
	}
	if reviewerID != operatorID {
		return nil, domain.ErrForbidden
	}
	return &model.BankPaymentDocument{ID: docID, UserID: buyerID}, nil
}

// ---- referrals ----

type mockReferrals struct {
	info      usecase.ReferralInfo
	requested []string
	approved  []int64
	declined  []int64
}

func (m *mockReferrals) Info(ctx context.Context, tgID int64) (*usecase.ReferralInfo, error) {
	info := m.info
	return &info, nil
}

func (m *mockReferrals) RequestWithdrawal(ctx context.Context, tgID int64, details string) error {
	if !m.info.CanWithdraw {
		return domain.ErrInsufficientBalance
	}
	m.requested = append(m.requested, details)
	return nil
}

func (m *mockReferrals) Approve(ctx context.Context, opID, tgID int64) (decimal.Decimal, error) {
	m.approved = append(m.approved, tgID)
	return decimal.NewFromInt(150), nil
}

func (m *mockReferrals) Decline(ctx context.Context, opID, tgID int64) error {
	m.declined = append(m.declined, tgID)
	return nil
}

// ---- broadcast ----

type mockBroadcast struct {
	started []model.BroadcastDraft
}

func (m *mockBroadcast) ValidateButtonURL(ctx context.Context, raw string) error {
	if !strings.HasPrefix(raw, "https://") {
		return errors.New("bad url")
	}
	return nil
}

func (m *mockBroadcast) Start(ctx context.Context, opID int64, draft *model.BroadcastDraft) {
	m.started = append(m.started, *draft)
}

// ---- settings ----

type mockSettings struct {
	values map[string]string
}

func (m *mockSettings) String(ctx context.Context, key string) string { return m.values[key] }

func (m *mockSettings) Bool(ctx context.Context, key string) bool { return m.values[key] == "true" }

func (m *mockSettings) Int(ctx context.Context, key string, def int) int { return def }

func (m *mockSettings) IsOperator(ctx context.Context, tgID int64) bool { return tgID == operatorID }

// ---- conversation state ----

type memState struct {
	convs map[int64]model.Conversation
}

func cloneConv(c model.Conversation) model.Conversation {
	if c.Intent != nil {
		i := *c.Intent
		c.Intent = &i
	}
	if c.Broadcast != nil {
		b := *c.Broadcast
		c.Broadcast = &b
	}
	return c
}

func (m *memState) SetState(ctx context.Context, tgID int64, c *model.Conversation) error {
	m.convs[tgID] = cloneConv(*c)
	return nil
}

func (m *memState) GetState(ctx context.Context, tgID int64) (*model.Conversation, error) {
	c := cloneConv(m.convs[tgID])
	return &c, nil
}

func (m *memState) ClearState(ctx context.Context, tgID int64) error {
	delete(m.convs, tgID)
	return nil
}

func (m *memState) step(tgID int64) model.ConversationStep { return m.convs[tgID].Step }

// ---- bot ----

type answer struct {
	Text  string
	Alert bool
}

type copyCall struct {
	To, From int64
	Message  int
	Buttons  adapter.Keyboard
}

type mockBot struct {
	sent     []adapter.SendMessageParams
	edits    []adapter.EditMessageParams
	photos   []adapter.SendFileParams
	answers  []answer
	copies   []copyCall
	deleted  []int
	member   bool
	channels []string
}

func (b *mockBot) SendMessage(ctx context.Context, p adapter.SendMessageParams) (int, error) {
	b.sent = append(b.sent, p)
	return len(b.sent), nil
}

func (b *mockBot) EditMessage(ctx context.Context, p adapter.EditMessageParams) error {
	b.edits = append(b.edits, p)
	return nil
}

func (b *mockBot) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	b.deleted = append(b.deleted, messageID)
	return nil
}

func (b *mockBot) SendPhoto(ctx context.Context, p adapter.SendFileParams) (int, error) {
	b.photos = append(b.photos, p)
	return len(b.photos), nil
}

func (b *mockBot) SendDocument(ctx context.Context, p adapter.SendFileParams) (int, error) {
	return 0, nil
}

func (b *mockBot) CopyMessage(ctx context.Context, chatID, fromChatID int64, messageID int, buttons adapter.Keyboard) error {
	b.copies = append(b.copies, copyCall{To: chatID, From: fromChatID, Message: messageID, Buttons: buttons})
	return nil
}

func (b *mockBot) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	b.answers = append(b.answers, answer{Text: text, Alert: alert})
	return nil
}

func (b *mockBot) IsChannelMember(ctx context.Context, channel string, userID int64) (bool, error) {
	b.channels = append(b.channels, channel)
	return b.member, nil
}

func (b *mockBot) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	return []byte(fileID), nil
}

func (b *mockBot) Username() string { return "vpn_shop_bot" }

func (b *mockBot) last(t *testing.T) adapter.SendMessageParams {
	t.Helper()
	if len(b.sent) == 0 {
		t.Fatal("no message sent")
	}
	return b.sent[len(b.sent)-1]
}

func (b *mockBot) lastAlert(t *testing.T) answer {
	t.Helper()
	for i := len(b.answers) - 1; i >= 0; i-- {
		if b.answers[i].Alert {
			return b.answers[i]
		}
	}
	t.Fatal("no alert shown")
	return answer{}
}

func (b *mockBot) sentText(text string) bool {
	for _, m := range b.sent {
		if m.Text == text {
			return true
		}
	}
	return false
}

// ---- fixture ----

type flowFixture struct {
	users     *mockUsers
	keys      *mockKeys
	catalog   *mockCatalog
	checkout  *mockCheckout
	referrals *mockReferrals
	broadcast *mockBroadcast
	settings  *mockSettings
	state     *memState
	bot       *mockBot
	flow      *application.Flow
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()
	tr, err := i18n.NewTranslator(fstest.MapFS{
		"locales/ru.yaml": {Data: []byte("btn_main_menu_reply: \"Menu\"\n")},
	}, "ru")
	if err != nil {
		t.Fatalf("translator: %v", err)
	}
	f := &flowFixture{
		users:   newMockUsers(),
		keys:    &mockKeys{},
		catalog: newMockCatalog(),
		checkout: &mockCheckout{
			rails: []usecase.RailOption{
				{Rail: model.RailYooKassa, SBP: true},
				{Rail: model.RailBank},
			},
			bankDetails: "4276 0000 0000 0000",
		},
		referrals: &mockReferrals{},
		broadcast: &mockBroadcast{},
		settings:  &mockSettings{values: map[string]string{}},
		state:     &memState{convs: map[int64]model.Conversation{}},
		bot:       &mockBot{},
	}
	logger := zerolog.Nop()
	f.flow = application.NewFlow(application.Deps{
		Users:     f.users,
		Keys:      f.keys,
		Catalog:   f.catalog,
		Checkout:  f.checkout,
		Referrals: f.referrals,
		Broadcast: f.broadcast,
		Settings:  f.settings,
		State:     f.state,
		Bot:       f.bot,
		Tr:        tr,
	}, &logger)
	return f
}

func (f *flowFixture) handle(t *testing.T, up adapter.Update) {
	t.Helper()
	if up.ChatID == 0 {
		up.ChatID = chatOf + up.UserID
	}
	if err := f.flow.Handle(context.Background(), up); err != nil {
		t.Fatalf("Handle: %v", err)
	}
}

func (f *flowFixture) command(t *testing.T, uid int64, cmd, args string) {
	f.handle(t, adapter.Update{Kind: adapter.UpdateCommand, UserID: uid, Command: cmd, Args: args})
}

func (f *flowFixture) press(t *testing.T, uid int64, data string) {
	f.handle(t, adapter.Update{Kind: adapter.UpdateCallback, UserID: uid, CallbackID: "cb", Data: data})
}

func (f *flowFixture) text(t *testing.T, uid int64, text string) {
	f.handle(t, adapter.Update{Kind: adapter.UpdateText, UserID: uid, Text: text, MessageID: 55})
}

func hasData(kb adapter.Keyboard, data string) bool {
	for _, r := range kb {
		for _, b := range r {
			if b.Data == data {
				return true
			}
		}
	}
	return false
}

func hasURL(kb adapter.Keyboard, url string) bool {
	for _, r := range kb {
		for _, b := range r {
			if b.URL == url {
				return true
			}
		}
	}
	return false
}
