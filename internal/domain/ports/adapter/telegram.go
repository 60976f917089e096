package adapter

import "context"

// Button is an inline keyboard button: either callback Data or a URL.
type Button struct {
	Text string
	Data string
	URL  string
}

// Keyboard is a grid of inline buttons.
type Keyboard [][]Button

type SendMessageParams struct {
	ChatID         int64
	Text           string
	ParseMode      string
	Buttons        Keyboard
	DisablePreview bool
}

type EditMessageParams struct {
	ChatID    int64
	MessageID int
	Text      string
	ParseMode string
	Buttons   Keyboard
}

// SendFileParams sends either an existing Telegram file (FileID) or raw bytes.
type SendFileParams struct {
	ChatID    int64
	FileID    string
	Bytes     []byte
	FileName  string
	Caption   string
	ParseMode string
	Buttons   Keyboard
}

// TelegramBotAdapter is the outbound side of the chat transport.
type TelegramBotAdapter interface {
	SendMessage(ctx context.Context, params SendMessageParams) (messageID int, err error)
	EditMessage(ctx context.Context, params EditMessageParams) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	SendPhoto(ctx context.Context, params SendFileParams) (messageID int, err error)
	SendDocument(ctx context.Context, params SendFileParams) (messageID int, err error)
	CopyMessage(ctx context.Context, chatID, fromChatID int64, messageID int, buttons Keyboard) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
	IsChannelMember(ctx context.Context, channel string, userID int64) (bool, error)
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
	Username() string
}

type UpdateKind int

const (
	UpdateCommand UpdateKind = iota + 1
	UpdateCallback
	UpdateText
	UpdatePhoto
	UpdateDocument
)

// Update is an inbound structured user event.
type Update struct {
	Kind       UpdateKind
	ChatID     int64
	UserID     int64
	Username   string
	FullName   string
	MessageID  int
	Command    string // without leading slash, e.g. "start" or "approve_withdraw_42"
	Args       string
	CallbackID string
	Data       string
	Text       string
	FileID     string
	MimeType   string
}
