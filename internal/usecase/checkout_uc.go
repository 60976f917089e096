package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"

	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/adapter"
	"vpn-shop-bot/internal/domain/ports/repository"
	ucport "vpn-shop-bot/internal/domain/ports/usecase"
	"vpn-shop-bot/internal/infra/i18n"
	"vpn-shop-bot/internal/infra/logging"
	"vpn-shop-bot/internal/infra/metrics"
)

var _ CheckoutUseCase = (*checkoutUC)(nil)

// tonTransferTTL bounds how long the wallet may sign the pushed transfer.
const tonTransferTTL = 600 * time.Second

// RailOption is one payment button on the rail selection screen.
type RailOption struct {
	Rail model.Rail
	SBP  bool // YooKassa is labelled as SBP + card
}

// CheckoutResult is what the conversation shows after a rail has been started.
type CheckoutResult struct {
	Transaction   *model.Transaction
	Quote         Quote
	PayURL        string
	QR            []byte
	ForeignAmount decimal.Decimal
	Currency      string
	// Done reports the wallet listener outcome for the on-chain rail; nil for other rails.
	Done <-chan error
}

// Rails groups the payment drivers; nil members are treated as not configured.
type Rails struct {
	YooKassa  adapter.CardGateway
	CryptoBot adapter.InvoiceIssuer
	Heleket   adapter.InvoiceIssuer
	Ton       adapter.WalletConnector
}

type CheckoutUseCase interface {
	AvailableRails(ctx context.Context) []RailOption
	// PriceIntent re-reads the user and plan and fills intent.FinalPrice.
	PriceIntent(ctx context.Context, tgID int64, intent *model.PurchaseIntent) (*model.Plan, Quote, error)
	// Start creates the pending transaction and the provider-side charge for a redirect,
	// invoice or wallet-connect rail.
	Start(ctx context.Context, tgID int64, intent *model.PurchaseIntent, rail model.Rail) (*CheckoutResult, error)

	BankDetails(ctx context.Context) (string, error)
	// ConfirmBankTransfer is the "I paid" step: it creates the pending bank transaction.
	ConfirmBankTransfer(ctx context.Context, tgID int64, intent *model.PurchaseIntent) (*model.Transaction, error)
	SubmitDocument(ctx context.Context, tgID int64, paymentID, fileID string, kind model.DocumentKind) (*model.BankPaymentDocument, error)
	// ReviewDocument moves a pending document to approved or rejected exactly once.
	ReviewDocument(ctx context.Context, reviewerID, docID int64, approve bool) (*model.BankPaymentDocument, error)

	// ExpirePending fails non-bank pending transactions older than ttl.
	ExpirePending(ctx context.Context, ttl time.Duration) (int64, error)
}

type checkoutUC struct {
	users     repository.UserRepository
	plans     repository.PlanRepository
	keys      repository.KeyRepository
	txs       repository.TransactionRepository
	docs      repository.BankDocumentRepository
	pricing   PricingUseCase
	settings  SettingsUseCase
	rails     Rails
	listeners *WalletListeners
	settler   ucport.Settler
	notifier  NotificationUseCase
	bot       adapter.TelegramBotAdapter
	store     adapter.DocumentStore
	events    adapter.EventPublisher
	tr        *i18n.Translator
	log       *zerolog.Logger
	now       func() time.Time
}

type CheckoutDeps struct {
	Users     repository.UserRepository
	Plans     repository.PlanRepository
	Keys      repository.KeyRepository
	Txs       repository.TransactionRepository
	Docs      repository.BankDocumentRepository
	Pricing   PricingUseCase
	Settings  SettingsUseCase
	Rails     Rails
	Listeners *WalletListeners
	Settler   ucport.Settler
	Notifier  NotificationUseCase
	Bot       adapter.TelegramBotAdapter
	Store     adapter.DocumentStore
	Events    adapter.EventPublisher
	Tr        *i18n.Translator
}

func NewCheckoutUseCase(d CheckoutDeps, logger *zerolog.Logger) *checkoutUC {
	l := logger.With().Str("component", "checkout").Logger()
	return &checkoutUC{
		users: d.Users, plans: d.Plans, keys: d.Keys, txs: d.Txs, docs: d.Docs,
		pricing: d.Pricing, settings: d.Settings, rails: d.Rails, listeners: d.Listeners,
		settler: d.Settler, notifier: d.Notifier, bot: d.Bot, store: d.Store, events: d.Events,
		tr: d.Tr, log: &l, now: time.Now,
	}
}

func (u *checkoutUC) AvailableRails(ctx context.Context) []RailOption {
	var out []RailOption
	if u.rails.YooKassa != nil && u.settings.Bool(ctx, model.SettingYooKassaEnabled) {
		out = append(out, RailOption{Rail: model.RailYooKassa, SBP: u.settings.Bool(ctx, model.SettingSBPEnabled)})
	}
	if u.settings.Bool(ctx, model.SettingBankTransferEnabled) && u.settings.String(ctx, model.SettingBankCardDetails) != "" {
		out = append(out, RailOption{Rail: model.RailBank})
	}
	if u.rails.Heleket != nil && u.settings.Bool(ctx, model.SettingHeleketEnabled) {
		out = append(out, RailOption{Rail: model.RailHeleket})
	}
	if u.rails.CryptoBot != nil && u.settings.Bool(ctx, model.SettingCryptoBotEnabled) {
		out = append(out, RailOption{Rail: model.RailCryptoBot})
	}
	if u.rails.Ton != nil && u.settings.Bool(ctx, model.SettingTonEnabled) && u.settings.String(ctx, model.SettingTonWalletAddress) != "" {
		out = append(out, RailOption{Rail: model.RailTON})
	}
	return out
}

func (u *checkoutUC) railEnabled(ctx context.Context, rail model.Rail) bool {
	for _, o := range u.AvailableRails(ctx) {
		if o.Rail == rail {
			return true
		}
	}
	return false
}

func (u *checkoutUC) PriceIntent(ctx context.Context, tgID int64, intent *model.PurchaseIntent) (*model.Plan, Quote, error) {
	defer logging.TraceDuration(u.log, "CheckoutUC.PriceIntent")()
	if err := intent.Validate(); err != nil {
		return nil, Quote{}, err
	}
	user, err := u.users.FindByTelegramID(ctx, repository.NoTX, tgID)
	if err != nil {
		return nil, Quote{}, err
	}
	plan, err := u.plans.FindByID(ctx, repository.NoTX, intent.PlanID)
	if err != nil {
		return nil, Quote{}, err
	}
	if plan.HostName != intent.HostName {
		return nil, Quote{}, fmt.Errorf("plan %d is not offered on %q: %w", plan.ID, intent.HostName, domain.ErrInvalidArgument)
	}
	if intent.Action == model.ActionExtend {
		key, err := u.keys.FindByID(ctx, repository.NoTX, intent.KeyID)
		if err != nil {
			return nil, Quote{}, err
		}
		if key.UserID != tgID {
			return nil, Quote{}, domain.ErrForbidden
		}
	}
	q, err := u.pricing.Quote(ctx, user, plan)
	if err != nil {
		return nil, Quote{}, err
	}
	intent.FinalPrice = q.Final
	return plan, q, nil
}

// newPending prices the intent afresh and freezes it into a pending transaction.
func (u *checkoutUC) newPending(ctx context.Context, tgID int64, intent *model.PurchaseIntent, rail model.Rail) (*model.Transaction, Quote, error) {
	plan, q, err := u.PriceIntent(ctx, tgID, intent)
	if err != nil {
		return nil, Quote{}, err
	}
	meta := model.NewPurchaseMetadata(tgID, intent, plan, rail)
	if err := meta.Validate(); err != nil {
		return nil, Quote{}, err
	}
	return model.NewPendingTransaction(meta), q, nil
}

func (u *checkoutUC) Start(ctx context.Context, tgID int64, intent *model.PurchaseIntent, rail model.Rail) (*CheckoutResult, error) {
	defer logging.TraceDuration(u.log, "CheckoutUC.Start")()
	if rail == model.RailBank || !u.railEnabled(ctx, rail) {
		return nil, domain.ErrRailUnavailable
	}
	t, q, err := u.newPending(ctx, tgID, intent, rail)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithPaymentID(ctx, t.PaymentID)
	res := &CheckoutResult{Transaction: t, Quote: q}

	if rail == model.RailTON {
		if err := u.startTon(ctx, tgID, t, res); err != nil {
			metrics.IncPayment(string(rail), "error")
			return nil, err
		}
		metrics.IncPayment(string(rail), "created")
		return res, nil
	}

	if rail == model.RailCryptoBot {
		usdt, err := u.pricing.Convert(ctx, t.Amount, RouteUSDT)
		if err != nil {
			metrics.IncPayment(string(rail), "error")
			logging.With(ctx, u.log).Warn().Err(err).Msg("usdt rate unavailable, invoice not created")
			return nil, err
		}
		t.AmountCurrency, t.CurrencyName = &usdt, RouteUSDT.Currency
		res.ForeignAmount, res.Currency = usdt, RouteUSDT.Currency
	}
	if err := u.txs.CreatePending(ctx, repository.NoTX, t); err != nil {
		return nil, err
	}

	req := adapter.InvoiceRequest{
		PaymentID:     t.PaymentID,
		Amount:        t.Amount,
		Currency:      "RUB",
		Description:   u.tr.T("invoice_description", t.Metadata.Months),
		CustomerEmail: t.Metadata.CustomerEmail,
		Metadata:      metadataMap(t.Metadata),
	}
	var checkout *adapter.Checkout
	switch rail {
	case model.RailYooKassa:
		checkout, err = u.rails.YooKassa.CreatePayment(ctx, req)
	case model.RailCryptoBot:
		checkout, err = u.rails.CryptoBot.CreateInvoice(ctx, req)
	case model.RailHeleket:
		checkout, err = u.rails.Heleket.CreateInvoice(ctx, req)
	}
	if err != nil {
		metrics.IncPayment(string(rail), "error")
		u.abandon(ctx, t)
		logging.With(ctx, u.log).Error().Err(err).Str("rail", string(rail)).Msg("charge creation failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrRailUnavailable, err)
	}
	if checkout.ProviderRef != "" {
		if err := u.txs.SetProviderRef(ctx, repository.NoTX, t.PaymentID, checkout.ProviderRef); err != nil {
			u.abandon(ctx, t)
			return nil, err
		}
		ref := checkout.ProviderRef
		t.ProviderRef = &ref
	}
	res.PayURL = checkout.PayURL
	metrics.IncPayment(string(rail), "created")
	logging.With(ctx, u.log).Info().Str("rail", string(rail)).Str("amount", t.Amount.StringFixed(2)).Msg("checkout started")
	return res, nil
}

func (u *checkoutUC) startTon(ctx context.Context, tgID int64, t *model.Transaction, res *CheckoutResult) error {
	wallet := u.settings.String(ctx, model.SettingTonWalletAddress)
	if wallet == "" {
		return domain.ErrRailUnavailable
	}
	ton, err := u.pricing.Convert(ctx, t.Amount, RouteTON)
	if err != nil {
		return err
	}
	if !ton.IsPositive() {
		return fmt.Errorf("non-positive ton amount: %w", domain.ErrRateUnavailable)
	}
	t.AmountCurrency, t.CurrencyName = &ton, RouteTON.Currency

	session, err := u.rails.Ton.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRailUnavailable, err)
	}
	qr, err := qrcode.Encode(session.ConnectURL(), qrcode.Medium, 512)
	if err != nil {
		_ = session.Close()
		return err
	}
	if err := u.txs.CreatePending(ctx, repository.NoTX, t); err != nil {
		_ = session.Close()
		return err
	}
	req := adapter.TransferRequest{
		Address:    wallet,
		AmountNano: ton.Shift(9).IntPart(),
		Memo:       t.PaymentID,
		ValidUntil: u.now().Add(tonTransferTTL).Unix(),
	}
	res.PayURL = session.ConnectURL()
	res.QR = qr
	res.ForeignAmount, res.Currency = ton, RouteTON.Currency
	res.Done = u.listeners.Start(tgID, session, req)
	return nil
}

// abandon marks a transaction whose charge could not be created as failed.
func (u *checkoutUC) abandon(ctx context.Context, t *model.Transaction) {
	if _, err := u.txs.MarkFailedIfPending(ctx, repository.NoTX, t.PaymentID); err != nil {
		logging.With(ctx, u.log).Warn().Err(err).Msg("could not fail abandoned transaction")
	}
}

func metadataMap(m model.PurchaseMetadata) map[string]string {
	return map[string]string{
		"user_id":        strconv.FormatInt(m.UserID, 10),
		"months":         strconv.Itoa(m.Months),
		"price":          m.Price.StringFixed(2),
		"action":         string(m.Action),
		"key_id":         strconv.FormatInt(m.KeyID, 10),
		"host_name":      m.HostName,
		"plan_id":        strconv.FormatInt(m.PlanID, 10),
		"customer_email": m.CustomerEmail,
		"payment_method": string(m.Rail),
	}
}

func (u *checkoutUC) BankDetails(ctx context.Context) (string, error) {
	if !u.railEnabled(ctx, model.RailBank) {
		return "", domain.ErrRailUnavailable
	}
	return u.settings.String(ctx, model.SettingBankCardDetails), nil
}

func (u *checkoutUC) ConfirmBankTransfer(ctx context.Context, tgID int64, intent *model.PurchaseIntent) (*model.Transaction, error) {
	defer logging.TraceDuration(u.log, "CheckoutUC.ConfirmBankTransfer")()
	if !u.railEnabled(ctx, model.RailBank) {
		return nil, domain.ErrRailUnavailable
	}
	t, _, err := u.newPending(ctx, tgID, intent, model.RailBank)
	if err != nil {
		return nil, err
	}
	if err := u.txs.CreatePending(ctx, repository.NoTX, t); err != nil {
		return nil, err
	}
	metrics.IncPayment(string(model.RailBank), "created")
	return t, nil
}

func (u *checkoutUC) SubmitDocument(ctx context.Context, tgID int64, paymentID, fileID string, kind model.DocumentKind) (*model.BankPaymentDocument, error) {
	defer logging.TraceDuration(u.log, "CheckoutUC.SubmitDocument")()
	ctx = logging.WithPaymentID(ctx, paymentID)
	log := logging.With(ctx, u.log)

	t, err := u.txs.FindByPaymentID(ctx, repository.NoTX, paymentID)
	if err != nil {
		return nil, err
	}
	if t.UserID != tgID || t.Rail != model.RailBank {
		return nil, domain.ErrForbidden
	}
	if !t.IsPending() {
		return nil, domain.ErrAlreadySettled
	}
	doc, err := model.NewBankPaymentDocument(t.ID, tgID, fileID, kind)
	if err != nil {
		return nil, err
	}
	if err := u.docs.Create(ctx, repository.NoTX, doc); err != nil {
		return nil, err
	}
	if key, err := u.archive(ctx, doc); err != nil {
		log.Warn().Err(err).Int64("document_id", doc.ID).Msg("document not archived")
	} else if key != "" {
		doc.StorageKey = key
	}

	buyer, err := u.users.FindByTelegramID(ctx, repository.NoTX, tgID)
	if err != nil {
		return nil, err
	}
	u.notifier.DocumentSubmitted(ctx, doc, t, buyer)
	log.Info().Int64("document_id", doc.ID).Msg("bank document submitted")
	return doc, nil
}

// archive copies the receipt from Telegram to the document store and records its key.
func (u *checkoutUC) archive(ctx context.Context, doc *model.BankPaymentDocument) (string, error) {
	if u.store == nil {
		return "", nil
	}
	body, err := u.bot.DownloadFile(ctx, doc.FileID)
	if err != nil {
		return "", err
	}
	ext, ct := "jpg", "image/jpeg"
	if doc.Kind == model.DocumentPDF {
		ext, ct = "pdf", "application/pdf"
	}
	key := fmt.Sprintf("bank-documents/%d/%d.%s", doc.UserID, doc.ID, ext)
	if err := u.store.Put(ctx, key, ct, body); err != nil {
		return "", err
	}
	if err := u.docs.SetStorageKey(ctx, repository.NoTX, doc.ID, key); err != nil {
		return "", err
	}
	return key, nil
}

// DocumentReviewedEvent is published after an operator decision.
type DocumentReviewedEvent struct {
	DocumentID    int64                `json:"document_id"`
	TransactionID int64                `json:"transaction_id"`
	UserID        int64                `json:"user_id"`
	Status        model.DocumentStatus `json:"status"`
	ReviewedBy    int64                `json:"reviewed_by"`
}

func (u *checkoutUC) ReviewDocument(ctx context.Context, reviewerID, docID int64, approve bool) (*model.BankPaymentDocument, error) {
	defer logging.TraceDuration(u.log, "CheckoutUC.ReviewDocument")()
	if !u.settings.IsOperator(ctx, reviewerID) {
		return nil, domain.ErrForbidden
	}
	doc, err := u.docs.FindByID(ctx, repository.NoTX, docID)
	if err != nil {
		return nil, err
	}
	status := model.DocumentRejected
	if approve {
		status = model.DocumentApproved
	}
	at := u.now()
	ok, err := u.docs.UpdateStatusIfPending(ctx, repository.NoTX, docID, status, reviewerID, at)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrAlreadyReviewed
	}
	doc.Status, doc.ReviewedBy, doc.ReviewedAt = status, &reviewerID, &at

	t, err := u.txs.FindByID(ctx, repository.NoTX, doc.TransactionID)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithPaymentID(ctx, t.PaymentID)
	log := logging.With(ctx, u.log).With().Int64("document_id", docID).Int64("operator", reviewerID).Logger()

	var settleErr error
	if approve {
		settleErr = u.settler.SettlePayment(ctx, t.PaymentID, "")
		if settleErr != nil && !errors.Is(settleErr, domain.ErrAlreadySettled) {
			log.Error().Err(settleErr).Msg("approved document could not be settled")
		}
	} else {
		if _, err := u.txs.MarkFailedIfPending(ctx, repository.NoTX, t.PaymentID); err != nil {
			log.Warn().Err(err).Msg("rejected transaction not failed")
		}
		metrics.IncPayment(string(model.RailBank), "rejected")
		u.notifier.DocumentRejected(ctx, doc.UserID)
	}
	log.Info().Str("status", string(status)).Msg("bank document reviewed")

	ev := DocumentReviewedEvent{DocumentID: docID, TransactionID: t.ID, UserID: doc.UserID, Status: status, ReviewedBy: reviewerID}
	if err := u.events.Publish(ctx, adapter.EventDocumentReviewed, ev); err != nil {
		log.Warn().Err(err).Msg("review event not published")
	}
	return doc, settleErr
}

func (u *checkoutUC) ExpirePending(ctx context.Context, ttl time.Duration) (int64, error) {
	defer logging.TraceDuration(u.log, "CheckoutUC.ExpirePending")()
	n, err := u.txs.FailPendingOlderThan(ctx, repository.NoTX, u.now().Add(-ttl), model.RailBank)
	if err != nil {
		return 0, err
	}
	metrics.AddPendingExpired(n)
	if n > 0 {
		u.log.Info().Int64("expired", n).Msg("stale pending transactions failed")
	}
	return n, nil
}
