package application

import (
	"context"
	"errors"
	"strings"

	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/infra/logging"
	"vpn-shop-bot/internal/infra/metrics"
)

// reviewDocument handles the approve/reject buttons attached to a forwarded receipt.
func (f *Flow) reviewDocument(ctx context.Context, s *session, _ string) error {
	approve, docID, _, ok := model.ParseDocumentReviewData(s.up.Data)
	if !ok {
		return nil
	}
	doc, err := f.checkout.ReviewDocument(ctx, s.uid(), docID, approve)
	switch {
	case errors.Is(err, domain.ErrForbidden):
		metrics.IncAdminCommand("review_document", "forbidden")
		f.alert(ctx, s, f.tr.T("forbidden"))
		return nil
	case errors.Is(err, domain.ErrAlreadyReviewed):
		f.alert(ctx, s, f.tr.T("already_reviewed"))
		return nil
	case doc == nil && err != nil:
		if msg, ok := f.userError(err); ok {
			f.alert(ctx, s, msg)
			return nil
		}
		return err
	case err != nil && !errors.Is(err, domain.ErrAlreadySettled):
		// the document is approved but settlement failed; the transaction stays pending
		logging.With(ctx, f.log).Error().Err(err).Int64("document_id", docID).Msg("approved document not settled")
		f.toast(ctx, s, "")
		f.reply(ctx, s, f.tr.T("review_settle_failed", docID), nil)
		return nil
	}
	f.toast(ctx, s, "")
	metrics.IncAdminCommand("review_document", "ok")
	key := "review_rejected"
	if approve {
		key = "review_approved"
	}
	f.reply(ctx, s, f.tr.T(key, docID, doc.UserID), nil)
	return nil
}

// decideWithdrawal handles /approve_withdraw_<id> and /decline_withdraw_<id>.
// Non-operators get no answer at all.
func (f *Flow) decideWithdrawal(ctx context.Context, s *session, idStr string, approve bool) error {
	if !f.isOperator(ctx, s) {
		logging.With(ctx, f.log).Warn().Int64("user", s.uid()).Msg("withdrawal decision by non-operator ignored")
		metrics.IncAdminCommand("withdrawal", "forbidden")
		return nil
	}
	userID, ok := parseID(strings.TrimSpace(idStr))
	if !ok {
		f.reply(ctx, s, f.tr.T("invalid_input"), nil)
		return nil
	}
	if approve {
		amount, err := f.referrals.Approve(ctx, s.uid(), userID)
		if err != nil {
			return f.operatorError(ctx, s, err)
		}
		metrics.IncAdminCommand("withdrawal", "approved")
		f.reply(ctx, s, f.tr.T("withdraw_approved_op", amount.StringFixed(2), userID), nil)
		return nil
	}
	if err := f.referrals.Decline(ctx, s.uid(), userID); err != nil {
		return f.operatorError(ctx, s, err)
	}
	metrics.IncAdminCommand("withdrawal", "declined")
	f.reply(ctx, s, f.tr.T("withdraw_declined_op", userID), nil)
	return nil
}

func (f *Flow) operatorError(ctx context.Context, s *session, err error) error {
	if msg, ok := f.userError(err); ok {
		f.reply(ctx, s, msg, nil)
		return nil
	}
	return err
}

// ---- broadcast composition ----

func (f *Flow) broadcastStart(ctx context.Context, s *session, _ string) error {
	if !f.isOperator(ctx, s) {
		f.alert(ctx, s, f.tr.T("forbidden"))
		return nil
	}
	s.conv.Reset()
	s.conv.Step = model.StepBroadcastMessage
	if err := f.save(ctx, s); err != nil {
		return err
	}
	f.show(ctx, s, f.tr.T("broadcast_prompt"), f.cancelKeyboard())
	return nil
}

// broadcastMessage receives the operator's typed input during composition.
func (f *Flow) broadcastMessage(ctx context.Context, s *session) error {
	if !f.isOperator(ctx, s) {
		f.reset(ctx, s)
		return nil
	}
	switch s.conv.Step {
	case model.StepBroadcastMessage:
		s.conv.Broadcast = &model.BroadcastDraft{FromChatID: s.up.ChatID, MessageID: s.up.MessageID}
		s.conv.Step = model.StepBroadcastOption
		if err := f.save(ctx, s); err != nil {
			return err
		}
		f.reply(ctx, s, f.tr.T("broadcast_button_option"), f.broadcastOptionsKeyboard())
	case model.StepBroadcastButtonText:
		text := strings.TrimSpace(s.up.Text)
		if text == "" {
			f.reply(ctx, s, f.tr.T("broadcast_button_text_prompt"), f.cancelKeyboard())
			return nil
		}
		s.conv.Broadcast.ButtonText = text
		s.conv.Step = model.StepBroadcastButtonURL
		if err := f.save(ctx, s); err != nil {
			return err
		}
		f.reply(ctx, s, f.tr.T("broadcast_button_url_prompt"), f.cancelKeyboard())
	case model.StepBroadcastButtonURL:
		raw := strings.TrimSpace(s.up.Text)
		if err := f.broadcast.ValidateButtonURL(ctx, raw); err != nil {
			f.reply(ctx, s, f.tr.T("broadcast_url_invalid"), f.cancelKeyboard())
			return nil
		}
		s.conv.Broadcast.ButtonURL = raw
		return f.broadcastPreview(ctx, s)
	default:
		f.reply(ctx, s, f.tr.T("use_menu_buttons"), nil)
	}
	return nil
}

func (f *Flow) broadcastDraftAt(ctx context.Context, s *session, step model.ConversationStep) bool {
	if !f.isOperator(ctx, s) {
		f.alert(ctx, s, f.tr.T("forbidden"))
		return false
	}
	if s.conv.Step != step || s.conv.Broadcast == nil {
		f.alert(ctx, s, f.tr.T("session_expired"))
		return false
	}
	return true
}

func (f *Flow) broadcastAddButton(ctx context.Context, s *session, _ string) error {
	if !f.broadcastDraftAt(ctx, s, model.StepBroadcastOption) {
		return nil
	}
	s.conv.Step = model.StepBroadcastButtonText
	if err := f.save(ctx, s); err != nil {
		return err
	}
	f.show(ctx, s, f.tr.T("broadcast_button_text_prompt"), f.cancelKeyboard())
	return nil
}

func (f *Flow) broadcastSkipButton(ctx context.Context, s *session, _ string) error {
	if !f.broadcastDraftAt(ctx, s, model.StepBroadcastOption) {
		return nil
	}
	return f.broadcastPreview(ctx, s)
}

// broadcastPreview copies the draft back to the operator exactly as recipients will see it.
func (f *Flow) broadcastPreview(ctx context.Context, s *session) error {
	s.conv.Step = model.StepBroadcastConfirm
	if err := f.save(ctx, s); err != nil {
		return err
	}
	d := s.conv.Broadcast
	if err := f.bot.CopyMessage(ctx, s.up.ChatID, d.FromChatID, d.MessageID, draftButtons(d)); err != nil {
		logging.With(ctx, f.log).Warn().Err(err).Msg("broadcast preview failed")
	}
	f.reply(ctx, s, f.tr.T("broadcast_confirm"), f.broadcastConfirmKeyboard())
	return nil
}

func (f *Flow) broadcastConfirm(ctx context.Context, s *session, _ string) error {
	if !f.broadcastDraftAt(ctx, s, model.StepBroadcastConfirm) {
		return nil
	}
	draft := *s.conv.Broadcast
	f.reset(ctx, s)
	f.broadcast.Start(ctx, s.uid(), &draft)
	f.show(ctx, s, f.tr.T("broadcast_started"), nil)
	return nil
}

func (f *Flow) broadcastCancel(ctx context.Context, s *session, _ string) error {
	f.reset(ctx, s)
	f.show(ctx, s, f.tr.T("broadcast_cancelled"), f.keyboardBackToMenu())
	return nil
}
