package repository

import (
	"context"

	"vpn-shop-bot/internal/domain/model"
)

// HostRepository is the port for panel host persistence.
type HostRepository interface {
	Save(ctx context.Context, tx Tx, h *model.Host) error
	FindByName(ctx context.Context, tx Tx, name string) (*model.Host, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.Host, error)
	Delete(ctx context.Context, tx Tx, name string) error
}

// PlanRepository is the port for plan persistence.
type PlanRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Plan) error
	FindByID(ctx context.Context, tx Tx, id int64) (*model.Plan, error)
	ListByHost(ctx context.Context, tx Tx, hostName string) ([]*model.Plan, error)
	Delete(ctx context.Context, tx Tx, id int64) error
}
