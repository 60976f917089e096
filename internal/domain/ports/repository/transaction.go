package repository

import (
	"context"
	"time"

	"vpn-shop-bot/internal/domain/model"
)

// -----------------------------
// Transactions
// -----------------------------

type TransactionRepository interface {
	CreatePending(ctx context.Context, tx Tx, t *model.Transaction) error
	FindByID(ctx context.Context, tx Tx, id int64) (*model.Transaction, error)
	FindByPaymentID(ctx context.Context, tx Tx, paymentID string) (*model.Transaction, error)
	// LockByPaymentID reads the row with SELECT ... FOR UPDATE; requires a transaction.
	LockByPaymentID(ctx context.Context, tx Tx, paymentID string) (*model.Transaction, error)
	// MarkPaidIfPending performs the single pending->paid transition.
	MarkPaidIfPending(ctx context.Context, tx Tx, paymentID string, providerRef *string, paidAt time.Time) (bool, error)
	MarkFailedIfPending(ctx context.Context, tx Tx, paymentID string) (bool, error)
	SetProviderRef(ctx context.Context, tx Tx, paymentID, providerRef string) error
	// FailPendingOlderThan expires stale pending rows and returns how many were changed.
	FailPendingOlderThan(ctx context.Context, tx Tx, cutoff time.Time, exceptRail model.Rail) (int64, error)
	List(ctx context.Context, tx Tx, limit, offset int) ([]*model.Transaction, error)
	Stats(ctx context.Context, tx Tx) (*model.TransactionStats, error)
}

// BankDocumentRepository persists receipts for manual bank transfers.
type BankDocumentRepository interface {
	Create(ctx context.Context, tx Tx, d *model.BankPaymentDocument) error
	FindByID(ctx context.Context, tx Tx, id int64) (*model.BankPaymentDocument, error)
	// UpdateStatusIfPending performs the single pending->approved|rejected transition.
	UpdateStatusIfPending(ctx context.Context, tx Tx, id int64, status model.DocumentStatus, reviewer int64, at time.Time) (bool, error)
	SetStorageKey(ctx context.Context, tx Tx, id int64, key string) error
	ListByStatus(ctx context.Context, tx Tx, status model.DocumentStatus) ([]*model.BankPaymentDocument, error)
}
