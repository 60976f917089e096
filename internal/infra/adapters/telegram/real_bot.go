package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"vpn-shop-bot/internal/config"
	"vpn-shop-bot/internal/domain/ports/adapter"
	"vpn-shop-bot/internal/infra/logging"
	"vpn-shop-bot/internal/infra/metrics"
	red "vpn-shop-bot/internal/infra/redis"
	"vpn-shop-bot/internal/infra/worker"
)

var _ adapter.TelegramBotAdapter = (*RealTelegramBotAdapter)(nil)

// UpdateHandler consumes inbound updates; the conversation layer implements it.
type UpdateHandler interface {
	Handle(ctx context.Context, up adapter.Update) error
}

// RateLimitNotifier is told when a user hits the rate limit.
type RateLimitNotifier interface {
	RateLimited(ctx context.Context, up adapter.Update)
}

// RealTelegramBotAdapter polls tgbotapi for updates and hands them to the
// conversation layer through a worker pool keyed by chat id.
type RealTelegramBotAdapter struct {
	bot         *tgbotapi.BotAPI
	cfg         *config.BotConfig
	pool        *worker.Pool
	rateLimiter *red.RateLimiter
	handler     UpdateHandler
	log         *zerolog.Logger

	cancelPolling context.CancelFunc
}

func NewRealTelegramBotAdapter(cfg *config.BotConfig, pool *worker.Pool, rateLimiter *red.RateLimiter, logger *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	if pool == nil {
		return nil, errors.New("worker pool is nil")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	l := logger.With().Str("component", "telegram").Logger()
	return &RealTelegramBotAdapter{
		bot:         bot,
		cfg:         cfg,
		pool:        pool,
		rateLimiter: rateLimiter,
		log:         &l,
	}, nil
}

// SetHandler wires the conversation layer; it must be called before StartPolling.
func (r *RealTelegramBotAdapter) SetHandler(h UpdateHandler) { r.handler = h }

func (r *RealTelegramBotAdapter) Username() string { return r.bot.Self.UserName }

// StartPolling runs until ctx is canceled. Updates of one chat are always handled
// by the same worker, in arrival order.
func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	if r.handler == nil {
		return errors.New("update handler is not set")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	r.cancelPolling = cancel
	r.pool.Start(ctx)

	for {
		select {
		case <-ctx.Done():
			r.bot.StopReceivingUpdates()
			r.pool.Stop()
			return ctx.Err()
		case raw, ok := <-updates:
			if !ok {
				r.pool.Stop()
				return nil
			}
			up, ok := toUpdate(raw)
			if !ok {
				continue
			}
			metrics.IncTelegramUpdate(kindName(up.Kind))
			if err := r.pool.Submit(ctx, up.ChatID, r.task(up)); err != nil {
				r.log.Warn().Err(err).Int64("chat_id", up.ChatID).Msg("update dropped")
			}
		}
	}
}

func (r *RealTelegramBotAdapter) StopPolling() {
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

func (r *RealTelegramBotAdapter) task(up adapter.Update) worker.Task {
	return func(ctx context.Context) error {
		ctx = logging.WithTraceID(ctx, logging.NewTraceID())
		ctx = logging.WithTgID(ctx, up.UserID)

		if r.rateLimiter != nil {
			allowed, err := r.rateLimiter.Allow(ctx, red.UserCommandKey(up.UserID, rateKey(up)), 30, time.Minute)
			if err != nil {
				r.log.Warn().Err(err).Msg("rate limit check failed")
			} else if !allowed {
				metrics.IncRateLimitTriggered()
				if n, ok := r.handler.(RateLimitNotifier); ok {
					n.RateLimited(ctx, up)
				}
				return nil
			}
		}
		return r.handler.Handle(ctx, up)
	}
}

func rateKey(up adapter.Update) string {
	switch up.Kind {
	case adapter.UpdateCommand:
		return "/" + up.Command
	case adapter.UpdateCallback:
		return "cb"
	default:
		return "message"
	}
}

func kindName(k adapter.UpdateKind) string {
	switch k {
	case adapter.UpdateCommand:
		return "command"
	case adapter.UpdateCallback:
		return "callback"
	case adapter.UpdateText:
		return "text"
	case adapter.UpdatePhoto:
		return "photo"
	case adapter.UpdateDocument:
		return "document"
	}
	return "other"
}

// toUpdate maps a tgbotapi update onto the transport-neutral event; unsupported updates are skipped.
func toUpdate(raw tgbotapi.Update) (adapter.Update, bool) {
	if q := raw.CallbackQuery; q != nil {
		if q.From == nil {
			return adapter.Update{}, false
		}
		up := adapter.Update{
			Kind:       adapter.UpdateCallback,
			ChatID:     q.From.ID,
			UserID:     q.From.ID,
			Username:   q.From.UserName,
			FullName:   fullName(q.From),
			CallbackID: q.ID,
			Data:       strings.TrimSpace(q.Data),
		}
		if q.Message != nil && q.Message.Chat != nil {
			up.ChatID = q.Message.Chat.ID
			up.MessageID = q.Message.MessageID
		}
		return up, true
	}

	m := raw.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return adapter.Update{}, false
	}
	up := adapter.Update{
		ChatID:    m.Chat.ID,
		UserID:    m.From.ID,
		Username:  m.From.UserName,
		FullName:  fullName(m.From),
		MessageID: m.MessageID,
	}
	switch {
	case m.IsCommand():
		up.Kind = adapter.UpdateCommand
		up.Command = m.Command()
		up.Args = strings.TrimSpace(m.CommandArguments())
		up.Text = m.Text
	case len(m.Photo) > 0:
		up.Kind = adapter.UpdatePhoto
		up.FileID = m.Photo[len(m.Photo)-1].FileID
		up.Text = m.Caption
	case m.Document != nil:
		up.Kind = adapter.UpdateDocument
		up.FileID = m.Document.FileID
		up.MimeType = m.Document.MimeType
		up.Text = m.Caption
	case m.Text != "":
		up.Kind = adapter.UpdateText
		up.Text = m.Text
	default:
		// stickers, voice and the like still reach the conversation as empty text
		up.Kind = adapter.UpdateText
	}
	return up, true
}

func fullName(u *tgbotapi.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
