package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionPending TransactionStatus = "pending" // created before the user pays; awaiting confirmation
	TransactionPaid    TransactionStatus = "paid"    // settled exactly once
	TransactionFailed  TransactionStatus = "failed"  // expired or rejected
)

// Transaction is a payment attempt. PaymentID is generated locally and embedded in
// provider metadata, invoice payloads and on-chain memos.
type Transaction struct {
	ID             int64
	PaymentID      string
	ProviderRef    *string
	UserID         int64
	Status         TransactionStatus
	Amount         decimal.Decimal
	AmountCurrency *decimal.Decimal
	CurrencyName   string
	Rail           Rail
	Metadata       PurchaseMetadata
	CreatedAt      time.Time
	PaidAt         *time.Time
}

func NewPendingTransaction(meta PurchaseMetadata) *Transaction {
	return &Transaction{
		PaymentID:    uuid.NewString(),
		UserID:       meta.UserID,
		Status:       TransactionPending,
		Amount:       meta.Price,
		CurrencyName: "RUB",
		Rail:         meta.Rail,
		Metadata:     meta,
		CreatedAt:    time.Now(),
	}
}

func (t *Transaction) IsPending() bool { return t != nil && t.Status == TransactionPending }

// TransactionStats is an aggregate for the admin dashboard.
type TransactionStats struct {
	PaidCount    int64
	PendingCount int64
	Revenue      decimal.Decimal
}
