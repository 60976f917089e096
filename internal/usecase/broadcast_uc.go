package usecase

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/adapter"
	"vpn-shop-bot/internal/domain/ports/repository"
	"vpn-shop-bot/internal/infra/i18n"
	"vpn-shop-bot/internal/infra/logging"
	"vpn-shop-bot/internal/infra/metrics"
)

var _ BroadcastUseCase = (*broadcastUC)(nil)

var buttonURLShape = regexp.MustCompile(`^https?://([a-zA-Z0-9-]+\.)+[a-zA-Z]{2,}(/.*)?$`)

// BroadcastReport counts the outcome of one broadcast.
type BroadcastReport struct {
	Sent   int
	Failed int
	Banned int
}

type BroadcastUseCase interface {
	// ValidateButtonURL checks the shape of the URL and that it answers a HEAD with status < 400.
	ValidateButtonURL(ctx context.Context, raw string) error
	// Run copies the draft to every non-banned user, one at a time.
	Run(ctx context.Context, draft *model.BroadcastDraft) (BroadcastReport, error)
	// Start runs the broadcast in the background and reports the counts to the operator.
	Start(ctx context.Context, operatorID int64, draft *model.BroadcastDraft)
}

type broadcastUC struct {
	users repository.UserRepository
	bot   adapter.TelegramBotAdapter
	tr    *i18n.Translator
	http  *resty.Client
	delay time.Duration
	log   *zerolog.Logger
}

func NewBroadcastUseCase(
	users repository.UserRepository,
	bot adapter.TelegramBotAdapter,
	tr *i18n.Translator,
	delay time.Duration,
	logger *zerolog.Logger,
) *broadcastUC {
	if delay < 0 {
		delay = 0
	}
	client := resty.New().
		SetTimeout(5 * time.Second).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	return &broadcastUC{users: users, bot: bot, tr: tr, http: client, delay: delay, log: logger}
}

func (uc *broadcastUC) ValidateButtonURL(ctx context.Context, raw string) error {
	if !buttonURLShape.MatchString(raw) {
		return domain.ErrInvalidArgument
	}
	resp, err := uc.http.R().SetContext(ctx).Head(raw)
	if err != nil {
		logging.With(ctx, uc.log).Warn().Err(err).Str("url", raw).Msg("button url probe failed")
		return fmt.Errorf("probe %s: %w", raw, domain.ErrInvalidArgument)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("probe %s: status %d: %w", raw, resp.StatusCode(), domain.ErrInvalidArgument)
	}
	return nil
}

func (uc *broadcastUC) Run(ctx context.Context, draft *model.BroadcastDraft) (BroadcastReport, error) {
	defer logging.TraceDuration(uc.log, "BroadcastUC.Run")()
	var rep BroadcastReport
	if draft == nil || draft.MessageID == 0 {
		return rep, domain.ErrInvalidArgument
	}
	all, err := uc.users.ListAll(ctx, repository.NoTX)
	if err != nil {
		uc.log.Error().Err(err).Msg("failed to fetch users for broadcast")
		return rep, err
	}

	var buttons adapter.Keyboard
	if draft.ButtonText != "" && draft.ButtonURL != "" {
		buttons = adapter.Keyboard{{{Text: draft.ButtonText, URL: draft.ButtonURL}}}
	}

	uc.log.Info().Int("user_count", len(all)).Msg("starting broadcast")
	for _, user := range all {
		if user.IsBanned {
			rep.Banned++
			metrics.IncBroadcastDelivery("skipped")
			continue
		}
		if err := uc.bot.CopyMessage(ctx, user.TelegramID, draft.FromChatID, draft.MessageID, buttons); err != nil {
			rep.Failed++
			metrics.IncBroadcastDelivery("failed")
			uc.log.Warn().Err(err).Int64("tg_id", user.TelegramID).Msg("broadcast delivery failed")
		} else {
			rep.Sent++
			metrics.IncBroadcastDelivery("sent")
		}
		if uc.delay > 0 {
			select {
			case <-ctx.Done():
				return rep, ctx.Err()
			case <-time.After(uc.delay):
			}
		}
	}
	uc.log.Info().Int("sent", rep.Sent).Int("failed", rep.Failed).Int("banned", rep.Banned).Msg("broadcast finished")
	return rep, nil
}

func (uc *broadcastUC) Start(ctx context.Context, operatorID int64, draft *model.BroadcastDraft) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		rep, err := uc.Run(ctx, draft)
		text := uc.tr.T("broadcast_done", rep.Sent, rep.Failed, rep.Banned)
		if err != nil {
			text = uc.tr.T("broadcast_failed")
		}
		if _, err := uc.bot.SendMessage(ctx, adapter.SendMessageParams{ChatID: operatorID, Text: text}); err != nil {
			uc.log.Warn().Err(err).Msg("broadcast report not delivered")
		}
	}()
}
