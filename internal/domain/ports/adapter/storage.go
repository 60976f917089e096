package adapter

import "context"

// DocumentStore archives bank transfer receipts outside Telegram.
type DocumentStore interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
}

// EventPublisher emits domain events to other systems.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Event routing keys.
const (
	EventPurchaseSettled     = "purchase.settled"
	EventWithdrawalRequested = "withdrawal.requested"
	EventDocumentReviewed    = "document.reviewed"
)
