package application

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/adapter"
	"vpn-shop-bot/internal/infra/logging"
)

// start handles /start: it registers the sender (honouring a ref_<id> payload once),
// clears any half-finished conversation and shows either the terms gate or the menu.
func (f *Flow) start(ctx context.Context, s *session) error {
	f.reset(ctx, s)
	user, created, err := f.users.Register(ctx, s.uid(), s.up.Username, s.up.Args)
	if err != nil {
		return err
	}
	s.user = user
	if user.IsBanned {
		f.reply(ctx, s, f.tr.T("user_banned"), nil)
		return nil
	}
	if created {
		logging.With(ctx, f.log).Info().Int64("user", user.TelegramID).Bool("referred", user.ReferredBy != nil).Msg("user registered")
	}

	if !user.AgreedToTerms {
		if f.gateConfigured(ctx) {
			return f.showWelcomeGate(ctx, s)
		}
		if err := f.users.AgreeToTerms(ctx, user.TelegramID); err != nil {
			return err
		}
		user.AgreedToTerms = true
	}

	if created {
		f.sendWelcome(ctx, s)
	} else {
		f.reply(ctx, s, f.tr.T("welcome_back", html.EscapeString(displayName(s))), nil)
	}
	return f.mainMenu(ctx, s, false)
}

// gateConfigured reports whether the channel and both legal links are set.
func (f *Flow) gateConfigured(ctx context.Context) bool {
	return f.settings.String(ctx, model.SettingChannelURL) != "" &&
		f.settings.String(ctx, model.SettingTermsURL) != "" &&
		f.settings.String(ctx, model.SettingPrivacyURL) != ""
}

func (f *Flow) welcomeText(ctx context.Context) string {
	if t := f.settings.String(ctx, model.SettingWelcomeText); t != "" {
		return t
	}
	return f.tr.T("welcome")
}

// sendWelcome sends the welcome text, as a photo caption when a photo is configured.
func (f *Flow) sendWelcome(ctx context.Context, s *session) {
	text := f.welcomeText(ctx)
	if p := f.settings.String(ctx, model.SettingWelcomePhotoPath); p != "" {
		img, err := os.ReadFile(p)
		if err == nil {
			_, err = f.bot.SendPhoto(ctx, adapter.SendFileParams{
				ChatID:    s.up.ChatID,
				Bytes:     img,
				FileName:  filepath.Base(p),
				Caption:   text,
				ParseMode: "HTML",
			})
		}
		if err == nil {
			return
		}
		logging.With(ctx, f.log).Warn().Err(err).Str("path", p).Msg("welcome photo not sent")
	}
	f.reply(ctx, s, text, nil)
}

func (f *Flow) showWelcomeGate(ctx context.Context, s *session) error {
	s.conv.Reset()
	s.conv.Step = model.StepOnboarding
	if err := f.save(ctx, s); err != nil {
		return err
	}
	forced := f.settings.Bool(ctx, model.SettingForceSubscription)
	text := f.tr.T("welcome_gate")
	if forced {
		text = f.tr.T("welcome_gate_subscribe")
	}
	kb := f.welcomeKeyboard(
		f.settings.String(ctx, model.SettingChannelURL),
		f.settings.String(ctx, model.SettingTermsURL),
		f.settings.String(ctx, model.SettingPrivacyURL),
		forced,
	)
	f.show(ctx, s, f.welcomeText(ctx)+"\n\n"+text, kb)
	return nil
}

// agree accepts the terms, checking channel membership first when subscription is forced.
func (f *Flow) agree(ctx context.Context, s *session, _ string) error {
	user, err := f.users.Get(ctx, s.uid())
	if err != nil {
		return err
	}
	if user == nil {
		f.alert(ctx, s, f.tr.T("registration_required"))
		return nil
	}
	s.user = user

	if f.settings.Bool(ctx, model.SettingForceSubscription) {
		channel := channelHandle(f.settings.String(ctx, model.SettingChannelURL))
		if channel != "" {
			member, err := f.bot.IsChannelMember(ctx, channel, s.uid())
			if err != nil {
				// an unverifiable membership does not lock the user out
				logging.With(ctx, f.log).Warn().Err(err).Str("channel", channel).Msg("membership check failed")
			} else if !member {
				f.alert(ctx, s, f.tr.T("subscription_not_confirmed"))
				return nil
			}
		}
	}

	if err := f.users.AgreeToTerms(ctx, s.uid()); err != nil {
		return err
	}
	user.AgreedToTerms = true
	f.reset(ctx, s)
	if s.up.MessageID != 0 {
		_ = f.bot.DeleteMessage(ctx, s.up.ChatID, s.up.MessageID)
	}
	f.reply(ctx, s, f.tr.T("thanks_for_agreeing"), nil)
	return f.mainMenu(ctx, s, false)
}

// channelHandle turns "https://t.me/name" or "@name" into "@name".
func channelHandle(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "@") {
		return raw
	}
	raw = strings.TrimSuffix(raw, "/")
	i := strings.LastIndex(raw, "/")
	name := raw[i+1:]
	if name == "" || strings.HasPrefix(name, "+") {
		// private invite links cannot be checked
		return ""
	}
	return "@" + name
}

func displayName(s *session) string {
	if s.up.FullName != "" {
		return s.up.FullName
	}
	if s.user != nil {
		return s.user.DisplayName()
	}
	return s.up.Username
}

func (f *Flow) mainMenu(ctx context.Context, s *session, edit bool) error {
	user := s.user
	if user == nil {
		u, err := f.users.Get(ctx, s.uid())
		if err != nil {
			return err
		}
		user = u
	}
	keys, err := f.keys.ListKeys(ctx, s.uid())
	if err != nil {
		return err
	}
	trial := user != nil && f.keys.TrialAvailable(ctx, user)
	kb := f.mainMenuKeyboard(trial, len(keys), f.isOperator(ctx, s))
	if edit {
		f.show(ctx, s, f.tr.T("main_menu"), kb)
	} else {
		f.reply(ctx, s, f.tr.T("main_menu"), kb)
	}
	return nil
}

func (f *Flow) menuCallback(ctx context.Context, s *session, _ string) error {
	f.reset(ctx, s)
	return f.mainMenu(ctx, s, true)
}

func (f *Flow) profile(ctx context.Context, s *session, _ string) error {
	p, err := f.users.Profile(ctx, s.uid())
	if err != nil {
		return err
	}
	status := f.tr.T("profile_no_active_keys")
	if p.Latest != nil {
		left := time.Until(p.Latest.ExpiresAt)
		status = f.tr.T("profile_active_until", p.Latest.ExpiresAt.Format(keyDateLayout), formatLeft(left))
	}
	text := f.tr.T("profile",
		html.EscapeString(displayName(s)),
		p.User.TotalSpent.StringFixed(2),
		p.User.TotalMonths,
		len(p.Keys),
		status,
	)
	f.show(ctx, s, text, f.keyboardBackToMenu())
	return nil
}

// formatLeft renders a remaining duration as "Nd Nh".
func formatLeft(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

func (f *Flow) keyboardBackToMenu() adapter.Keyboard {
	return adapter.Keyboard{f.backToMenuRow()}
}

// support shows the support link, or the configured contact and text.
func (f *Flow) support(ctx context.Context, s *session, _ string) error {
	if u := f.settings.String(ctx, model.SettingSupportTelegramURL); u != "" {
		f.show(ctx, s, f.tr.T("support_link"), adapter.Keyboard{
			row(link(f.tr.T("btn_support_contact"), u)),
			f.backToMenuRow(),
		})
		return nil
	}
	user := f.settings.String(ctx, model.SettingSupportUser)
	if user == "" {
		f.show(ctx, s, f.tr.T("support_not_configured"), f.keyboardBackToMenu())
		return nil
	}
	text := f.settings.String(ctx, model.SettingSupportText)
	if text == "" {
		text = f.tr.T("support_default_text")
	}
	f.show(ctx, s, text+"\n\n"+f.tr.T("support_contact", html.EscapeString(user)), f.keyboardBackToMenu())
	return nil
}

func (f *Flow) news(ctx context.Context, s *session, _ string) error {
	u := f.settings.String(ctx, model.SettingNewsChannelURL)
	if u == "" {
		f.alert(ctx, s, f.tr.T("news_not_configured"))
		return nil
	}
	f.show(ctx, s, f.tr.T("news"), adapter.Keyboard{
		row(link(f.tr.T("btn_news_channel"), u)),
		f.backToMenuRow(),
	})
	return nil
}

func (f *Flow) clientURLs(ctx context.Context) map[string]string {
	return map[string]string{
		"android": f.settings.String(ctx, model.SettingAndroidURL),
		"ios":     f.settings.String(ctx, model.SettingIOSURL),
		"windows": f.settings.String(ctx, model.SettingWindowsURL),
		"linux":   f.settings.String(ctx, model.SettingLinuxURL),
	}
}

func (f *Flow) howto(ctx context.Context, s *session, _ string) error {
	f.show(ctx, s, f.tr.T("howto"), f.howtoKeyboard("back_to_main_menu", f.clientURLs(ctx)))
	return nil
}

func (f *Flow) howtoForKey(ctx context.Context, s *session, arg string) error {
	keyID, ok := parseID(arg)
	if !ok {
		return nil
	}
	f.show(ctx, s, f.tr.T("howto"), f.howtoKeyboard(fmt.Sprintf("show_key_%d", keyID), f.clientURLs(ctx)))
	return nil
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil && id > 0
}
