package application

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/adapter"
	"vpn-shop-bot/internal/infra/logging"
	"vpn-shop-bot/internal/usecase"
)

// buyData encodes a plan choice as "buy_{host}_{plan}_{action}_{key}".
// The host name may itself contain underscores, so the parser works from the end.
func buyData(host string, planID int64, action model.PurchaseAction, keyID int64) string {
	return fmt.Sprintf("buy_%s_%d_%s_%d", host, planID, action, keyID)
}

// parseBuyData parses the part after "buy_".
func parseBuyData(rest string) (*model.PurchaseIntent, bool) {
	parts := strings.Split(rest, "_")
	if len(parts) < 4 {
		return nil, false
	}
	n := len(parts)
	keyID, err1 := strconv.ParseInt(parts[n-1], 10, 64)
	action := model.PurchaseAction(parts[n-2])
	planID, err2 := strconv.ParseInt(parts[n-3], 10, 64)
	host := strings.Join(parts[:n-3], "_")
	if err1 != nil || err2 != nil || host == "" || planID <= 0 {
		return nil, false
	}
	intent := &model.PurchaseIntent{Action: action, PlanID: planID, HostName: host}
	if action == model.ActionExtend {
		intent.KeyID = keyID
	}
	if intent.Validate() != nil {
		return nil, false
	}
	return intent, true
}

func (f *Flow) hostsForPurchase(ctx context.Context, s *session, _ string) error {
	f.reset(ctx, s)
	hosts, err := f.catalog.ListHosts(ctx)
	if err != nil {
		return err
	}
	if len(hosts) == 0 {
		f.alert(ctx, s, f.tr.T("no_hosts"))
		return nil
	}
	f.show(ctx, s, f.tr.T("choose_host"), f.hostsKeyboard(hosts, "new"))
	return nil
}

func (f *Flow) plansForHost(ctx context.Context, s *session, host string) error {
	s.conv.Reset()
	s.conv.Intent = &model.PurchaseIntent{Action: model.ActionNew, HostName: host}
	if err := f.save(ctx, s); err != nil {
		return err
	}
	return f.showPlans(ctx, s)
}

// showPlans renders the plan list for the host and action held in the conversation.
func (f *Flow) showPlans(ctx context.Context, s *session) error {
	intent := s.conv.Intent
	plans, err := f.catalog.ListPlans(ctx, intent.HostName)
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		f.show(ctx, s, f.tr.T("no_plans", html.EscapeString(intent.HostName)), f.plansKeyboard(nil, intent))
		return nil
	}
	text := f.tr.T("choose_plan", html.EscapeString(intent.HostName))
	if intent.Action == model.ActionExtend {
		text = f.tr.T("choose_plan_extend", html.EscapeString(intent.HostName))
	}
	f.show(ctx, s, text, f.plansKeyboard(plans, intent))
	return nil
}

func (f *Flow) selectPlan(ctx context.Context, s *session, arg string) error {
	intent, ok := parseBuyData(arg)
	if !ok {
		logging.With(ctx, f.log).Warn().Str("data", s.up.Data).Msg("malformed plan callback")
		return nil
	}
	s.conv.Reset()
	s.conv.Intent = intent
	s.conv.Step = model.StepAwaitingEmail
	if err := f.save(ctx, s); err != nil {
		return err
	}
	f.show(ctx, s, f.tr.T("email_prompt"), f.emailKeyboard())
	return nil
}

func (f *Flow) receiveEmail(ctx context.Context, s *session) error {
	if s.conv.Intent == nil {
		return f.sessionExpired(ctx, s)
	}
	email := strings.TrimSpace(s.up.Text)
	if s.up.Kind != adapter.UpdateText || !model.ValidEmail(email) {
		f.reply(ctx, s, f.tr.T("email_invalid"), f.emailKeyboard())
		return nil
	}
	s.conv.Intent.CustomerEmail = email
	plan, quote, err := f.checkout.PriceIntent(ctx, s.uid(), s.conv.Intent)
	if err != nil {
		return f.railFailed(ctx, s, err)
	}
	s.conv.Step = model.StepAwaitingRail
	if err := f.save(ctx, s); err != nil {
		return err
	}
	f.reply(ctx, s, f.tr.T("email_accepted", html.EscapeString(email)), nil)
	f.showRails(ctx, s, plan, quote)
	return nil
}

func (f *Flow) showRails(ctx context.Context, s *session, plan *model.Plan, q usecase.Quote) {
	opts := f.checkout.AvailableRails(ctx)
	if len(opts) == 0 {
		f.show(ctx, s, f.tr.T("no_rails"), f.keyboardBackToMenu())
		return
	}
	var b strings.Builder
	if q.Discounted() {
		b.WriteString(f.tr.T("discount_applied", q.DiscountPct.String(), q.Base.StringFixed(2), q.Final.StringFixed(2)))
		b.WriteString("\n\n")
	}
	b.WriteString(f.tr.T("choose_payment", html.EscapeString(plan.Name), q.Final.StringFixed(2)))
	f.show(ctx, s, b.String(), f.railsKeyboard(opts))
}

// ---- back navigation, rebuilt from the conversation only ----

func (f *Flow) backToPlans(ctx context.Context, s *session, _ string) error {
	if s.conv.Intent == nil || s.conv.Intent.HostName == "" {
		return f.sessionExpired(ctx, s)
	}
	s.conv.Step = model.StepIdle
	if err := f.save(ctx, s); err != nil {
		return err
	}
	return f.showPlans(ctx, s)
}

func (f *Flow) backToEmail(ctx context.Context, s *session, _ string) error {
	if s.conv.Intent == nil || s.conv.Intent.PlanID == 0 {
		return f.sessionExpired(ctx, s)
	}
	s.conv.Step = model.StepAwaitingEmail
	if err := f.save(ctx, s); err != nil {
		return err
	}
	f.show(ctx, s, f.tr.T("email_prompt"), f.emailKeyboard())
	return nil
}

func (f *Flow) backToRails(ctx context.Context, s *session, _ string) error {
	if s.conv.Intent == nil || s.conv.Intent.CustomerEmail == "" {
		return f.sessionExpired(ctx, s)
	}
	plan, quote, err := f.checkout.PriceIntent(ctx, s.uid(), s.conv.Intent)
	if err != nil {
		return f.railFailed(ctx, s, err)
	}
	s.conv.Step = model.StepAwaitingRail
	s.conv.TransactionID, s.conv.PaymentID = 0, ""
	if err := f.save(ctx, s); err != nil {
		return err
	}
	f.showRails(ctx, s, plan, quote)
	return nil
}

// ---- rails ----

func (f *Flow) awaitingRail(s *session) bool {
	return s.conv.Step == model.StepAwaitingRail && s.conv.Intent != nil
}

func (f *Flow) payRail(ctx context.Context, s *session, _ string) error {
	if !f.awaitingRail(s) {
		return f.sessionExpired(ctx, s)
	}
	rail := model.Rail(strings.TrimPrefix(s.up.Data, "pay_"))
	f.toast(ctx, s, f.tr.T("preparing_payment"))

	res, err := f.checkout.Start(ctx, s.uid(), s.conv.Intent, rail)
	if err != nil {
		return f.railFailed(ctx, s, err)
	}
	amount := res.Transaction.Amount.StringFixed(2)
	// the intent is consumed; another press of a rail button must not open a second invoice
	f.reset(ctx, s)

	if rail == model.RailTON {
		if _, err := f.bot.SendPhoto(ctx, adapter.SendFileParams{
			ChatID:    s.up.ChatID,
			Bytes:     res.QR,
			FileName:  "tonconnect.png",
			Caption:   f.tr.T("ton_invoice", res.ForeignAmount.String(), amount),
			ParseMode: "HTML",
			Buttons:   f.tonKeyboard(res.PayURL),
		}); err != nil {
			return err
		}
		go f.awaitWallet(context.WithoutCancel(ctx), s.up.ChatID, res.Done)
		return nil
	}

	text := f.tr.T("invoice_ready", amount)
	if res.Currency != "" && res.ForeignAmount.IsPositive() {
		text = f.tr.T("invoice_ready_estimate", amount, res.ForeignAmount.String(), res.Currency)
	}
	f.show(ctx, s, text, f.payLinkKeyboard(res.PayURL))
	return nil
}

// awaitWallet reports the wallet listener outcome. The payment itself is settled by
// the on-chain webhook, not here.
func (f *Flow) awaitWallet(ctx context.Context, chatID int64, done <-chan error) {
	if done == nil {
		return
	}
	err := <-done
	var key string
	switch {
	case err == nil:
		key = "ton_request_sent"
	case errors.Is(err, context.Canceled):
		return
	case errors.Is(err, usecase.ErrWalletTimeout):
		key = "ton_timeout"
	default:
		key = "ton_failed"
	}
	if _, err := f.bot.SendMessage(ctx, adapter.SendMessageParams{ChatID: chatID, Text: f.tr.T(key)}); err != nil {
		logging.With(ctx, f.log).Warn().Err(err).Msg("wallet outcome not delivered")
	}
}

func (f *Flow) bankDetails(ctx context.Context, s *session, _ string) error {
	if !f.awaitingRail(s) {
		return f.sessionExpired(ctx, s)
	}
	details, err := f.checkout.BankDetails(ctx)
	if err != nil {
		return f.railFailed(ctx, s, err)
	}
	if details == "" {
		details = f.tr.T("bank_details_missing")
	}
	text := f.tr.T("bank_transfer", s.conv.Intent.FinalPrice.StringFixed(2), html.EscapeString(details))
	f.show(ctx, s, text, f.bankKeyboard())
	return nil
}

// bankConfirmed is the "I paid" press: the pending transaction is created now and
// the user is asked for the receipt.
func (f *Flow) bankConfirmed(ctx context.Context, s *session, _ string) error {
	if !f.awaitingRail(s) {
		return f.sessionExpired(ctx, s)
	}
	t, err := f.checkout.ConfirmBankTransfer(ctx, s.uid(), s.conv.Intent)
	if err != nil {
		return f.railFailed(ctx, s, err)
	}
	s.conv.Step = model.StepAwaitingDocument
	s.conv.TransactionID, s.conv.PaymentID = t.ID, t.PaymentID
	if err := f.save(ctx, s); err != nil {
		return err
	}
	f.show(ctx, s, f.tr.T("document_prompt"), nil)
	return nil
}

func (f *Flow) receiveDocument(ctx context.Context, s *session) error {
	if s.conv.PaymentID == "" {
		return f.sessionExpired(ctx, s)
	}
	isPhoto := s.up.Kind == adapter.UpdatePhoto
	kind, ok := model.DocumentKindFor(isPhoto, s.up.MimeType)
	if !ok || (!isPhoto && s.up.Kind != adapter.UpdateDocument) || s.up.FileID == "" {
		f.reply(ctx, s, f.tr.T("document_wrong_type"), nil)
		return nil
	}
	paymentID := s.conv.PaymentID
	if _, err := f.checkout.SubmitDocument(ctx, s.uid(), paymentID, s.up.FileID, kind); err != nil {
		return f.railFailed(ctx, s, err)
	}
	f.reset(ctx, s)
	f.reply(ctx, s, f.tr.T("document_received"), f.keyboardBackToMenu())
	return nil
}

// railFailed clears the conversation back to the menu and explains a known failure.
func (f *Flow) railFailed(ctx context.Context, s *session, err error) error {
	msg, ok := f.userError(err)
	if !ok {
		f.reset(ctx, s)
		return err
	}
	logging.With(ctx, f.log).Info().Err(err).Str("step", string(s.conv.Step)).Msg("purchase step failed")
	f.reset(ctx, s)
	f.reply(ctx, s, msg, f.keyboardBackToMenu())
	return nil
}

func (f *Flow) sessionExpired(ctx context.Context, s *session) error {
	f.reset(ctx, s)
	f.alertOrReply(ctx, s, f.tr.T("session_expired"))
	return f.mainMenu(ctx, s, false)
}
