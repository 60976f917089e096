package telegram

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"vpn-shop-bot/internal/domain/ports/adapter"
)

var _ adapter.TelegramBotAdapter = (*NoopBotAdapter)(nil)

// NoopBotAdapter logs outgoing messages instead of sending them. cmd/seed and
// local runs without a token use it.
type NoopBotAdapter struct {
	log *zerolog.Logger
	mu  sync.Mutex
	seq int
}

func NewNoopBotAdapter(logger *zerolog.Logger) *NoopBotAdapter {
	return &NoopBotAdapter{log: logger}
}

func (b *NoopBotAdapter) next() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	return b.seq
}

func (b *NoopBotAdapter) SendMessage(ctx context.Context, p adapter.SendMessageParams) (int, error) {
	b.log.Info().Int64("chat_id", p.ChatID).Str("text", p.Text).Int("rows", len(p.Buttons)).Msg("noop send")
	return b.next(), ctx.Err()
}

func (b *NoopBotAdapter) EditMessage(ctx context.Context, p adapter.EditMessageParams) error {
	b.log.Info().Int64("chat_id", p.ChatID).Int("message_id", p.MessageID).Str("text", p.Text).Msg("noop edit")
	return nil
}

func (b *NoopBotAdapter) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return nil
}

func (b *NoopBotAdapter) SendPhoto(ctx context.Context, p adapter.SendFileParams) (int, error) {
	b.log.Info().Int64("chat_id", p.ChatID).Str("caption", p.Caption).Msg("noop photo")
	return b.next(), nil
}

func (b *NoopBotAdapter) SendDocument(ctx context.Context, p adapter.SendFileParams) (int, error) {
	b.log.Info().Int64("chat_id", p.ChatID).Str("caption", p.Caption).Msg("noop document")
	return b.next(), nil
}

func (b *NoopBotAdapter) CopyMessage(ctx context.Context, chatID, fromChatID int64, messageID int, buttons adapter.Keyboard) error {
	return nil
}

func (b *NoopBotAdapter) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	return nil
}

func (b *NoopBotAdapter) IsChannelMember(ctx context.Context, channel string, userID int64) (bool, error) {
	return true, nil
}

func (b *NoopBotAdapter) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	return nil, nil
}

func (b *NoopBotAdapter) Username() string { return "noop_bot" }
