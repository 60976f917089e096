package model

import (
	"time"

	"vpn-shop-bot/internal/domain"
)

type DocumentKind string

const (
	DocumentImage DocumentKind = "photo"
	DocumentPDF   DocumentKind = "pdf"
)

type DocumentStatus string

const (
	DocumentPending  DocumentStatus = "pending"
	DocumentApproved DocumentStatus = "approved"
	DocumentRejected DocumentStatus = "rejected"
)

// BankPaymentDocument is a receipt a user attaches for a manual bank transfer.
// Status moves from pending to approved or rejected exactly once.
type BankPaymentDocument struct {
	ID            int64
	TransactionID int64
	UserID        int64
	FileID        string
	Kind          DocumentKind
	Status        DocumentStatus
	ReviewedBy    *int64
	ReviewedAt    *time.Time
	StorageKey    string
	CreatedAt     time.Time
}

func NewBankPaymentDocument(txID, userID int64, fileID string, kind DocumentKind) (*BankPaymentDocument, error) {
	if txID <= 0 || userID <= 0 || fileID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if kind != DocumentImage && kind != DocumentPDF {
		return nil, domain.ErrInvalidArgument
	}
	return &BankPaymentDocument{
		TransactionID: txID,
		UserID:        userID,
		FileID:        fileID,
		Kind:          kind,
		Status:        DocumentPending,
		CreatedAt:     time.Now(),
	}, nil
}

func (d *BankPaymentDocument) IsPending() bool { return d != nil && d.Status == DocumentPending }

// DocumentKindFor maps an attachment to a document kind; only photos and PDFs are accepted.
func DocumentKindFor(isPhoto bool, mimeType string) (DocumentKind, bool) {
	if isPhoto {
		return DocumentImage, true
	}
	if mimeType == "application/pdf" {
		return DocumentPDF, true
	}
	return "", false
}
