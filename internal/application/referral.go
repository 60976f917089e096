package application

import (
	"context"
	"html"
	"strings"

	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/usecase"
)

func (f *Flow) referralProgram(ctx context.Context, s *session, _ string) error {
	f.reset(ctx, s)
	info, err := f.referrals.Info(ctx, s.uid())
	if err != nil {
		return err
	}
	pct := f.settings.String(ctx, model.SettingReferralPercentage)
	discount := f.settings.String(ctx, model.SettingReferralDiscount)
	text := f.tr.T("referral_program",
		pct,
		discount,
		html.EscapeString(info.Link),
		info.Invited,
		info.Balance.StringFixed(2),
		usecase.MinWithdrawal.StringFixed(0),
	)
	f.show(ctx, s, text, f.referralKeyboard(info.CanWithdraw))
	return nil
}

func (f *Flow) withdrawPrompt(ctx context.Context, s *session, _ string) error {
	info, err := f.referrals.Info(ctx, s.uid())
	if err != nil {
		return err
	}
	if !info.CanWithdraw {
		f.alert(ctx, s, f.tr.T("withdraw_insufficient", usecase.MinWithdrawal.StringFixed(0)))
		return nil
	}
	s.conv.Reset()
	s.conv.Step = model.StepWithdrawDetails
	if err := f.save(ctx, s); err != nil {
		return err
	}
	f.show(ctx, s, f.tr.T("withdraw_details_prompt", info.Balance.StringFixed(2)), f.keyboardBackToMenu())
	return nil
}

// receiveWithdrawDetails forwards the payout details to the operator.
func (f *Flow) receiveWithdrawDetails(ctx context.Context, s *session) error {
	details := strings.TrimSpace(s.up.Text)
	if details == "" {
		f.reply(ctx, s, f.tr.T("withdraw_details_prompt_again"), f.keyboardBackToMenu())
		return nil
	}
	f.reset(ctx, s)
	if err := f.referrals.RequestWithdrawal(ctx, s.uid(), details); err != nil {
		if msg, ok := f.userError(err); ok {
			f.reply(ctx, s, msg, f.keyboardBackToMenu())
			return nil
		}
		return err
	}
	f.reply(ctx, s, f.tr.T("withdraw_requested"), f.keyboardBackToMenu())
	return nil
}
