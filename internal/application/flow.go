package application

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/adapter"
	"vpn-shop-bot/internal/domain/ports/repository"
	"vpn-shop-bot/internal/infra/i18n"
	"vpn-shop-bot/internal/infra/logging"
	"vpn-shop-bot/internal/usecase"
)

// Deps groups everything the conversation needs.
type Deps struct {
	Users     UserService
	Keys      KeyService
	Catalog   CatalogService
	Checkout  CheckoutService
	Referrals ReferralService
	Broadcast BroadcastService
	Settings  SettingsReader
	State     repository.StateRepository
	Bot       adapter.TelegramBotAdapter
	Tr        *i18n.Translator
}

// Flow is the per-user conversation state machine. The transport delivers the
// updates of one chat sequentially, so a user's state is never mutated concurrently.
type Flow struct {
	users     UserService
	keys      KeyService
	catalog   CatalogService
	checkout  CheckoutService
	referrals ReferralService
	broadcast BroadcastService
	settings  SettingsReader
	state     repository.StateRepository
	bot       adapter.TelegramBotAdapter
	tr        *i18n.Translator
	log       *zerolog.Logger

	routes []route
	exact  map[string]route
}

func NewFlow(d Deps, logger *zerolog.Logger) *Flow {
	l := logger.With().Str("component", "flow").Logger()
	f := &Flow{
		users:     d.Users,
		keys:      d.Keys,
		catalog:   d.Catalog,
		checkout:  d.Checkout,
		referrals: d.Referrals,
		broadcast: d.Broadcast,
		settings:  d.Settings,
		state:     d.State,
		bot:       d.Bot,
		tr:        d.Tr,
		log:       &l,
	}
	f.registerRoutes()
	return f
}

// session is one inbound update together with the sender's conversation.
type session struct {
	up       adapter.Update
	conv     *model.Conversation
	user     *model.User
	answered bool
}

func (s *session) uid() int64 { return s.up.UserID }

// Handle dispatches an update by kind and conversation step.
func (f *Flow) Handle(ctx context.Context, up adapter.Update) error {
	conv, err := f.state.GetState(ctx, up.UserID)
	if err != nil {
		logging.With(ctx, f.log).Warn().Err(err).Msg("conversation state unavailable, starting fresh")
		conv = &model.Conversation{}
	}
	s := &session{up: up, conv: conv}

	switch up.Kind {
	case adapter.UpdateCommand:
		err = f.onCommand(ctx, s)
	case adapter.UpdateCallback:
		err = f.onCallback(ctx, s)
		if !s.answered {
			_ = f.bot.AnswerCallback(ctx, up.CallbackID, "", false)
		}
	default:
		err = f.onMessage(ctx, s)
	}
	if err != nil {
		logging.With(ctx, f.log).Error().Err(err).Str("step", string(s.conv.Step)).Msg("update handling failed")
		f.reply(ctx, s, f.tr.T("generic_error"), nil)
	}
	return nil
}

// RateLimited tells the user to slow down.
func (f *Flow) RateLimited(ctx context.Context, up adapter.Update) {
	if up.Kind == adapter.UpdateCallback {
		_ = f.bot.AnswerCallback(ctx, up.CallbackID, f.tr.T("rate_limited"), true)
		return
	}
	_, _ = f.bot.SendMessage(ctx, adapter.SendMessageParams{ChatID: up.ChatID, Text: f.tr.T("rate_limited")})
}

func (f *Flow) onCommand(ctx context.Context, s *session) error {
	cmd := s.up.Command
	switch {
	case cmd == "start":
		return f.start(ctx, s)
	case strings.HasPrefix(cmd, model.CommandApproveWithdraw):
		return f.decideWithdrawal(ctx, s, strings.TrimPrefix(cmd, model.CommandApproveWithdraw), true)
	case strings.HasPrefix(cmd, model.CommandDeclineWithdraw):
		return f.decideWithdrawal(ctx, s, strings.TrimPrefix(cmd, model.CommandDeclineWithdraw), false)
	}
	if ok, err := f.requireRegistered(ctx, s); !ok || err != nil {
		return err
	}
	f.reply(ctx, s, f.tr.T("unknown_command"), nil)
	return nil
}

func (f *Flow) onMessage(ctx context.Context, s *session) error {
	step := s.conv.Step
	switch {
	case step == model.StepOnboarding:
		f.reply(ctx, s, f.tr.T("onboarding_fallback"), nil)
		return nil
	case step.IsBroadcast():
		return f.broadcastMessage(ctx, s)
	}

	if ok, err := f.requireRegistered(ctx, s); !ok || err != nil {
		return err
	}
	switch step {
	case model.StepAwaitingEmail:
		return f.receiveEmail(ctx, s)
	case model.StepAwaitingDocument:
		return f.receiveDocument(ctx, s)
	case model.StepWithdrawDetails:
		return f.receiveWithdrawDetails(ctx, s)
	}

	text := strings.TrimSpace(s.up.Text)
	switch {
	case text == f.tr.T("btn_main_menu_reply"):
		return f.mainMenu(ctx, s, false)
	case strings.HasPrefix(text, "/"):
		f.reply(ctx, s, f.tr.T("unknown_command"), nil)
	default:
		f.reply(ctx, s, f.tr.T("use_menu_buttons"), nil)
	}
	return nil
}

func (f *Flow) onCallback(ctx context.Context, s *session) error {
	data := s.up.Data
	r, arg, ok := f.match(data)
	if !ok {
		logging.With(ctx, f.log).Debug().Str("data", data).Msg("unrouted callback")
		return nil
	}
	if !r.exempt {
		if ok, err := f.requireRegistered(ctx, s); !ok || err != nil {
			return err
		}
	}
	return r.handle(ctx, s, arg)
}

// requireRegistered loads the sender and reports whether the update may proceed.
// Unknown users are asked to /start; users who have not accepted the terms see the
// welcome screen again.
func (f *Flow) requireRegistered(ctx context.Context, s *session) (bool, error) {
	user, err := f.users.Get(ctx, s.uid())
	if err != nil {
		return false, err
	}
	if user == nil {
		f.alertOrReply(ctx, s, f.tr.T("registration_required"))
		return false, nil
	}
	if user.IsBanned {
		f.alertOrReply(ctx, s, f.tr.T("user_banned"))
		return false, nil
	}
	s.user = user
	if !user.AgreedToTerms {
		return false, f.showWelcomeGate(ctx, s)
	}
	return true, nil
}

func (f *Flow) isOperator(ctx context.Context, s *session) bool {
	return f.settings.IsOperator(ctx, s.uid())
}

// ---- state helpers ----

func (f *Flow) save(ctx context.Context, s *session) error {
	return f.state.SetState(ctx, s.uid(), s.conv)
}

func (f *Flow) reset(ctx context.Context, s *session) {
	s.conv.Reset()
	if err := f.state.ClearState(ctx, s.uid()); err != nil {
		logging.With(ctx, f.log).Warn().Err(err).Msg("conversation state not cleared")
	}
}

// ---- output helpers ----

func (f *Flow) reply(ctx context.Context, s *session, text string, kb adapter.Keyboard) {
	if _, err := f.bot.SendMessage(ctx, adapter.SendMessageParams{
		ChatID:         s.up.ChatID,
		Text:           text,
		ParseMode:      "HTML",
		Buttons:        kb,
		DisablePreview: true,
	}); err != nil {
		logging.With(ctx, f.log).Warn().Err(err).Msg("reply not delivered")
	}
}

// show edits the message behind a button press, or sends a new one for typed input.
func (f *Flow) show(ctx context.Context, s *session, text string, kb adapter.Keyboard) {
	if s.up.Kind == adapter.UpdateCallback && s.up.MessageID != 0 {
		err := f.bot.EditMessage(ctx, adapter.EditMessageParams{
			ChatID:    s.up.ChatID,
			MessageID: s.up.MessageID,
			Text:      text,
			ParseMode: "HTML",
			Buttons:   kb,
		})
		if err == nil {
			return
		}
		// photos cannot be edited into text; fall through to a fresh message
		logging.With(ctx, f.log).Debug().Err(err).Msg("edit failed, sending new message")
	}
	f.reply(ctx, s, text, kb)
}

func (f *Flow) alert(ctx context.Context, s *session, text string) {
	s.answered = true
	_ = f.bot.AnswerCallback(ctx, s.up.CallbackID, text, true)
}

func (f *Flow) toast(ctx context.Context, s *session, text string) {
	s.answered = true
	_ = f.bot.AnswerCallback(ctx, s.up.CallbackID, text, false)
}

func (f *Flow) alertOrReply(ctx context.Context, s *session, text string) {
	if s.up.Kind == adapter.UpdateCallback {
		f.alert(ctx, s, text)
		return
	}
	f.reply(ctx, s, text, nil)
}

// userError maps domain errors to a message for the user; other errors bubble up.
func (f *Flow) userError(err error) (string, bool) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return f.tr.T("not_found"), true
	case errors.Is(err, domain.ErrForbidden):
		return f.tr.T("forbidden"), true
	case errors.Is(err, domain.ErrRailUnavailable):
		return f.tr.T("rail_unavailable"), true
	case errors.Is(err, domain.ErrRateUnavailable):
		return f.tr.T("rate_unavailable"), true
	case errors.Is(err, domain.ErrTrialUsed):
		return f.tr.T("trial_used"), true
	case errors.Is(err, domain.ErrProvisionFailed):
		return f.tr.T("provision_failed_short"), true
	case errors.Is(err, domain.ErrInsufficientBalance):
		return f.tr.T("withdraw_insufficient", usecase.MinWithdrawal.StringFixed(0)), true
	case errors.Is(err, domain.ErrAlreadySettled):
		return f.tr.T("already_settled"), true
	case errors.Is(err, domain.ErrAlreadyReviewed):
		return f.tr.T("already_reviewed"), true
	case errors.Is(err, domain.ErrInvalidArgument):
		return f.tr.T("invalid_input"), true
	}
	return "", false
}
