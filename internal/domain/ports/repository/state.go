package repository

import (
	"context"

	"vpn-shop-bot/internal/domain/model"
)

// StateRepository is the port for the per-user conversation context.
// GetState returns an empty conversation when nothing is stored.
type StateRepository interface {
	SetState(ctx context.Context, tgID int64, state *model.Conversation) error
	GetState(ctx context.Context, tgID int64) (*model.Conversation, error)
	ClearState(ctx context.Context, tgID int64) error
}
