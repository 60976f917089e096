package repository

import (
	"context"
	"time"

	"vpn-shop-bot/internal/domain/model"
)

// -----------------------------
// Keys
// -----------------------------

type KeyRepository interface {
	Create(ctx context.Context, tx Tx, k *model.Key) error
	FindByID(ctx context.Context, tx Tx, id int64) (*model.Key, error)
	ListByUser(ctx context.Context, tx Tx, userID int64) ([]*model.Key, error)
	// NextKeyNumber is the sequence used in identity labels: count of the user's keys + 1.
	NextKeyNumber(ctx context.Context, tx Tx, userID int64) (int, error)
	UpdateAfterExtend(ctx context.Context, tx Tx, id int64, clientUUID string, expiresAt time.Time) error
	CountAll(ctx context.Context, tx Tx) (int, error)

	ListExpiringBetween(ctx context.Context, tx Tx, from, to time.Time) ([]*model.Key, error)
	MarkReminded(ctx context.Context, tx Tx, id int64, at time.Time) error
}
