package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/go-resty/resty/v2"

	"vpn-shop-bot/internal/domain/ports/adapter"
)

// buildKeyboard converts the port keyboard; URL buttons win over callback data.
func buildKeyboard(rows adapter.Keyboard) *tgbotapi.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			switch {
			case btn.URL != "":
				r = append(r, tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL))
			case btn.Data != "":
				r = append(r, tgbotapi.NewInlineKeyboardButtonData(label, btn.Data))
			default:
				r = append(r, tgbotapi.NewInlineKeyboardButtonData(label, label))
			}
		}
		kbRows = append(kbRows, r)
	}
	if len(kbRows) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(kbRows...)
	return &markup
}

func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, p adapter.SendMessageParams) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(p.ChatID, p.Text)
	msg.ParseMode = p.ParseMode
	msg.DisableWebPagePreview = p.DisablePreview
	if kb := buildKeyboard(p.Buttons); kb != nil {
		msg.ReplyMarkup = kb
	}
	sent, err := r.bot.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (r *RealTelegramBotAdapter) EditMessage(ctx context.Context, p adapter.EditMessageParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(p.ChatID, p.MessageID, p.Text)
	edit.ParseMode = p.ParseMode
	edit.ReplyMarkup = buildKeyboard(p.Buttons)
	_, err := r.bot.Request(edit)
	return err
}

func (r *RealTelegramBotAdapter) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	_, err := r.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	return err
}

func fileOf(p adapter.SendFileParams) tgbotapi.RequestFileData {
	if p.FileID != "" {
		return tgbotapi.FileID(p.FileID)
	}
	return tgbotapi.FileBytes{Name: p.FileName, Bytes: p.Bytes}
}

func (r *RealTelegramBotAdapter) SendPhoto(ctx context.Context, p adapter.SendFileParams) (int, error) {
	photo := tgbotapi.NewPhoto(p.ChatID, fileOf(p))
	photo.Caption = p.Caption
	photo.ParseMode = p.ParseMode
	if kb := buildKeyboard(p.Buttons); kb != nil {
		photo.ReplyMarkup = kb
	}
	sent, err := r.bot.Send(photo)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (r *RealTelegramBotAdapter) SendDocument(ctx context.Context, p adapter.SendFileParams) (int, error) {
	doc := tgbotapi.NewDocument(p.ChatID, fileOf(p))
	doc.Caption = p.Caption
	doc.ParseMode = p.ParseMode
	if kb := buildKeyboard(p.Buttons); kb != nil {
		doc.ReplyMarkup = kb
	}
	sent, err := r.bot.Send(doc)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (r *RealTelegramBotAdapter) CopyMessage(ctx context.Context, chatID, fromChatID int64, messageID int, buttons adapter.Keyboard) error {
	cp := tgbotapi.NewCopyMessage(chatID, fromChatID, messageID)
	if kb := buildKeyboard(buttons); kb != nil {
		cp.ReplyMarkup = kb
	}
	_, err := r.bot.Request(cp)
	return err
}

func (r *RealTelegramBotAdapter) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	cb := tgbotapi.NewCallback(callbackID, text)
	cb.ShowAlert = alert
	_, err := r.bot.Request(cb)
	return err
}

// IsChannelMember accepts "@channel" or a numeric chat id rendered as a string.
func (r *RealTelegramBotAdapter) IsChannelMember(ctx context.Context, channel string, userID int64) (bool, error) {
	member, err := r.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{SuperGroupUsername: channel, UserID: userID},
	})
	if err != nil {
		return false, fmt.Errorf("get chat member: %w", err)
	}
	switch member.Status {
	case "member", "administrator", "creator":
		return true, nil
	}
	return false, nil
}

func (r *RealTelegramBotAdapter) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	url, err := r.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("file url: %w", err)
	}
	resp, err := resty.New().R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}
