package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/adapter"
	"vpn-shop-bot/internal/domain/ports/repository"
	"vpn-shop-bot/internal/infra/i18n"
	"vpn-shop-bot/internal/infra/logging"
)

// Compile-time check
var _ NotificationUseCase = (*notificationUC)(nil)

// Settlement is the outcome of one settled payment, handed to notifications after commit.
type Settlement struct {
	Buyer      *model.User
	Key        *model.Key
	KeyNumber  int
	Connection string
	Meta       model.PurchaseMetadata
	ReferrerID int64
	Reward     decimal.Decimal
}

// NotificationUseCase sends every out-of-conversation message: buyers, referrers and operators.
// Delivery failures are logged and never returned to the caller's business flow.
type NotificationUseCase interface {
	PurchaseSettled(ctx context.Context, s *Settlement)
	ProvisionFailed(ctx context.Context, userID int64, hostName string)
	DocumentSubmitted(ctx context.Context, doc *model.BankPaymentDocument, tx *model.Transaction, buyer *model.User)
	DocumentRejected(ctx context.Context, userID int64)
	WithdrawalRequested(ctx context.Context, user *model.User, amount decimal.Decimal, details string) error
	WithdrawalDecided(ctx context.Context, userID int64, amount decimal.Decimal, approved bool)
	// SendExpiryReminders notifies owners of keys expiring within the window, once per expiry.
	SendExpiryReminders(ctx context.Context, within time.Duration) (int, error)
}

type notificationUC struct {
	bot      adapter.TelegramBotAdapter
	tr       *i18n.Translator
	settings SettingsUseCase
	keys     repository.KeyRepository
	log      *zerolog.Logger
	now      func() time.Time
}

func NewNotificationUseCase(
	bot adapter.TelegramBotAdapter,
	tr *i18n.Translator,
	settings SettingsUseCase,
	keys repository.KeyRepository,
	logger *zerolog.Logger,
) *notificationUC {
	return &notificationUC{bot: bot, tr: tr, settings: settings, keys: keys, log: logger, now: time.Now}
}

const dateLayout = "2006-01-02 15:04"

func money(d decimal.Decimal) string { return d.StringFixed(2) }

// KeyInfoButtons is the keyboard attached to a key: extend, QR, howto and back to the list.
func KeyInfoButtons(tr *i18n.Translator, keyID int64) adapter.Keyboard {
	return adapter.Keyboard{
		{{Text: tr.T("btn_extend_key"), Data: fmt.Sprintf("extend_key_%d", keyID)}},
		{{Text: tr.T("btn_show_qr"), Data: fmt.Sprintf("show_qr_%d", keyID)}},
		{{Text: tr.T("btn_howto"), Data: fmt.Sprintf("howto_vless_%d", keyID)}},
		{{Text: tr.T("btn_back_to_keys"), Data: "manage_keys"}},
	}
}

// PurchaseSuccessText renders the message a buyer gets with a fresh or extended key.
func PurchaseSuccessText(tr *i18n.Translator, action model.PurchaseAction, keyNumber int, expiry time.Time, connection string) string {
	verb := tr.T("key_created")
	if action == model.ActionExtend {
		verb = tr.T("key_extended")
	}
	return tr.T("purchase_success", keyNumber, verb, expiry.Format(dateLayout), connection)
}

func (n *notificationUC) PurchaseSettled(ctx context.Context, s *Settlement) {
	defer logging.TraceDuration(n.log, "NotificationUC.PurchaseSettled")()
	log := logging.With(ctx, n.log)

	text := PurchaseSuccessText(n.tr, s.Meta.Action, s.KeyNumber, s.Key.ExpiresAt, s.Connection)
	if _, err := n.bot.SendMessage(ctx, adapter.SendMessageParams{
		ChatID:    s.Buyer.TelegramID,
		Text:      text,
		ParseMode: "HTML",
		Buttons:   KeyInfoButtons(n.tr, s.Key.ID),
	}); err != nil {
		log.Warn().Err(err).Msg("buyer notification failed")
	}

	if s.ReferrerID != 0 && s.Reward.IsPositive() {
		msg := n.tr.T("referral_reward", s.Buyer.DisplayName(), money(s.Meta.Price), money(s.Reward))
		if _, err := n.bot.SendMessage(ctx, adapter.SendMessageParams{ChatID: s.ReferrerID, Text: msg}); err != nil {
			log.Warn().Err(err).Int64("referrer", s.ReferrerID).Msg("referrer notification failed")
		}
	}

	n.toOperator(ctx, adapter.SendMessageParams{
		Text: n.tr.T("operator_purchase",
			s.Buyer.DisplayName(), s.Buyer.TelegramID, s.Meta.HostName, s.Meta.PlanName,
			money(s.Meta.Price), n.tr.T("rail_"+string(s.Meta.Rail))),
		ParseMode: "HTML",
	})
}

func (n *notificationUC) ProvisionFailed(ctx context.Context, userID int64, hostName string) {
	if _, err := n.bot.SendMessage(ctx, adapter.SendMessageParams{
		ChatID: userID,
		Text:   n.tr.T("provision_failed", hostName),
	}); err != nil {
		logging.With(ctx, n.log).Warn().Err(err).Msg("failure notification not delivered")
	}
}

func (n *notificationUC) DocumentSubmitted(ctx context.Context, doc *model.BankPaymentDocument, tx *model.Transaction, buyer *model.User) {
	defer logging.TraceDuration(n.log, "NotificationUC.DocumentSubmitted")()
	op := n.settings.PrimaryOperator(ctx)
	if op == 0 {
		logging.With(ctx, n.log).Warn().Int64("document_id", doc.ID).Msg("no operator configured for document review")
		return
	}
	params := adapter.SendFileParams{
		ChatID: op,
		FileID: doc.FileID,
		Caption: n.tr.T("operator_document",
			buyer.DisplayName(), buyer.TelegramID, money(tx.Amount), tx.Metadata.PlanName, doc.ID, tx.ID),
		ParseMode: "HTML",
		Buttons: adapter.Keyboard{{
			{Text: n.tr.T("btn_approve"), Data: model.DocumentReviewData(true, doc.ID, tx.ID)},
			{Text: n.tr.T("btn_reject"), Data: model.DocumentReviewData(false, doc.ID, tx.ID)},
		}},
	}
	var err error
	if doc.Kind == model.DocumentImage {
		_, err = n.bot.SendPhoto(ctx, params)
	} else {
		_, err = n.bot.SendDocument(ctx, params)
	}
	if err != nil {
		logging.With(ctx, n.log).Error().Err(err).Int64("document_id", doc.ID).Msg("operator document notification failed")
	}
}

func (n *notificationUC) DocumentRejected(ctx context.Context, userID int64) {
	if _, err := n.bot.SendMessage(ctx, adapter.SendMessageParams{ChatID: userID, Text: n.tr.T("document_rejected")}); err != nil {
		logging.With(ctx, n.log).Warn().Err(err).Msg("rejection notification not delivered")
	}
}

func (n *notificationUC) WithdrawalRequested(ctx context.Context, user *model.User, amount decimal.Decimal, details string) error {
	op := n.settings.PrimaryOperator(ctx)
	if op == 0 {
		return fmt.Errorf("no operator configured")
	}
	_, err := n.bot.SendMessage(ctx, adapter.SendMessageParams{
		ChatID: op,
		Text: n.tr.T("operator_withdrawal",
			user.DisplayName(), user.TelegramID, money(amount), details,
			model.CommandApproveWithdraw, user.TelegramID, model.CommandDeclineWithdraw, user.TelegramID),
		ParseMode: "HTML",
	})
	return err
}

func (n *notificationUC) WithdrawalDecided(ctx context.Context, userID int64, amount decimal.Decimal, approved bool) {
	text := n.tr.T("withdraw_declined")
	if approved {
		text = n.tr.T("withdraw_approved", money(amount))
	}
	if _, err := n.bot.SendMessage(ctx, adapter.SendMessageParams{ChatID: userID, Text: text}); err != nil {
		logging.With(ctx, n.log).Warn().Err(err).Int64("user", userID).Msg("withdrawal decision not delivered")
	}
}

func (n *notificationUC) SendExpiryReminders(ctx context.Context, within time.Duration) (int, error) {
	defer logging.TraceDuration(n.log, "NotificationUC.SendExpiryReminders")()
	now := n.now()
	keys, err := n.keys.ListExpiringBetween(ctx, repository.NoTX, now, now.Add(within))
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, k := range keys {
		hours := int(k.ExpiresAt.Sub(now).Hours())
		_, err := n.bot.SendMessage(ctx, adapter.SendMessageParams{
			ChatID:  k.UserID,
			Text:    n.tr.T("expiry_reminder", k.HostName, k.ExpiresAt.Format(dateLayout), hours),
			Buttons: adapter.Keyboard{{{Text: n.tr.T("btn_extend_key"), Data: fmt.Sprintf("extend_key_%d", k.ID)}}},
		})
		if err != nil {
			n.log.Warn().Err(err).Int64("key_id", k.ID).Msg("expiry reminder not delivered")
			continue
		}
		if err := n.keys.MarkReminded(ctx, repository.NoTX, k.ID, now); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

func (n *notificationUC) toOperator(ctx context.Context, p adapter.SendMessageParams) {
	p.ChatID = n.settings.PrimaryOperator(ctx)
	if p.ChatID == 0 {
		return
	}
	if _, err := n.bot.SendMessage(ctx, p); err != nil {
		logging.With(ctx, n.log).Warn().Err(err).Msg("operator notification failed")
	}
}
