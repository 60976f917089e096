package application

import (
	"context"

	"github.com/shopspring/decimal"

	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/usecase"
)

// ---- small interfaces to decouple the conversation from concrete usecases ----
// Each lists only what the flow calls, so tests can hand in light-weight mocks.

type UserService interface {
	Register(ctx context.Context, tgID int64, username, startArg string) (*model.User, bool, error)
	Get(ctx context.Context, tgID int64) (*model.User, error)
	AgreeToTerms(ctx context.Context, tgID int64) error
	Profile(ctx context.Context, tgID int64) (*usecase.Profile, error)
}

type KeyService interface {
	ListKeys(ctx context.Context, tgID int64) ([]*model.Key, error)
	GetOwnedKey(ctx context.Context, tgID, keyID int64) (*model.Key, error)
	Connection(ctx context.Context, key *model.Key) (string, error)
	QRCode(connection string) ([]byte, error)
	TrialAvailable(ctx context.Context, user *model.User) bool
	IssueTrial(ctx context.Context, tgID int64, hostName string) (*usecase.IssuedKey, error)
}

type CatalogService interface {
	ListHosts(ctx context.Context) ([]*model.Host, error)
	ListPlans(ctx context.Context, hostName string) ([]*model.Plan, error)
}

type CheckoutService interface {
	AvailableRails(ctx context.Context) []usecase.RailOption
	PriceIntent(ctx context.Context, tgID int64, intent *model.PurchaseIntent) (*model.Plan, usecase.Quote, error)
	Start(ctx context.Context, tgID int64, intent *model.PurchaseIntent, rail model.Rail) (*usecase.CheckoutResult, error)
	BankDetails(ctx context.Context) (string, error)
	ConfirmBankTransfer(ctx context.Context, tgID int64, intent *model.PurchaseIntent) (*model.Transaction, error)
	SubmitDocument(ctx context.Context, tgID int64, paymentID, fileID string, kind model.DocumentKind) (*model.BankPaymentDocument, error)
	ReviewDocument(ctx context.Context, reviewerID, docID int64, approve bool) (*model.BankPaymentDocument, error)
}

type ReferralService interface {
	Info(ctx context.Context, tgID int64) (*usecase.ReferralInfo, error)
	RequestWithdrawal(ctx context.Context, tgID int64, details string) error
	Approve(ctx context.Context, operatorID, tgID int64) (decimal.Decimal, error)
	Decline(ctx context.Context, operatorID, tgID int64) error
}

type BroadcastService interface {
	ValidateButtonURL(ctx context.Context, raw string) error
	Start(ctx context.Context, operatorID int64, draft *model.BroadcastDraft)
}

type SettingsReader interface {
	String(ctx context.Context, key string) string
	Bool(ctx context.Context, key string) bool
	Int(ctx context.Context, key string, def int) int
	IsOperator(ctx context.Context, tgID int64) bool
}
