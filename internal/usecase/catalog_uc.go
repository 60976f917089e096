package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/repository"
	"vpn-shop-bot/internal/infra/logging"
)

var _ CatalogUseCase = (*catalogUC)(nil)

// CatalogUseCase serves hosts and plans to the bot and to the admin API.
type CatalogUseCase interface {
	ListHosts(ctx context.Context) ([]*model.Host, error)
	GetHost(ctx context.Context, name string) (*model.Host, error)
	SaveHost(ctx context.Context, h *model.Host) error
	DeleteHost(ctx context.Context, name string) error

	ListPlans(ctx context.Context, hostName string) ([]*model.Plan, error)
	GetPlan(ctx context.Context, id int64) (*model.Plan, error)
	SavePlan(ctx context.Context, p *model.Plan) error
	DeletePlan(ctx context.Context, id int64) error
}

type catalogUC struct {
	hosts repository.HostRepository
	plans repository.PlanRepository
	log   *zerolog.Logger
}

func NewCatalogUseCase(hosts repository.HostRepository, plans repository.PlanRepository, logger *zerolog.Logger) *catalogUC {
	return &catalogUC{hosts: hosts, plans: plans, log: logger}
}

func (u *catalogUC) ListHosts(ctx context.Context) ([]*model.Host, error) {
	defer logging.TraceDuration(u.log, "CatalogUC.ListHosts")()
	return u.hosts.ListAll(ctx, repository.NoTX)
}

func (u *catalogUC) GetHost(ctx context.Context, name string) (*model.Host, error) {
	return u.hosts.FindByName(ctx, repository.NoTX, name)
}

func (u *catalogUC) SaveHost(ctx context.Context, h *model.Host) error {
	defer logging.TraceDuration(u.log, "CatalogUC.SaveHost")()
	if h == nil || h.Name == "" || h.PanelURL == "" || h.InboundID <= 0 {
		return domain.ErrInvalidArgument
	}
	return u.hosts.Save(ctx, repository.NoTX, h)
}

// DeleteHost removes the host's plans one by one first so every plan cache entry is
// invalidated, then the host itself.
func (u *catalogUC) DeleteHost(ctx context.Context, name string) error {
	defer logging.TraceDuration(u.log, "CatalogUC.DeleteHost")()
	plans, err := u.plans.ListByHost(ctx, repository.NoTX, name)
	if err != nil {
		return err
	}
	for _, p := range plans {
		if err := u.plans.Delete(ctx, repository.NoTX, p.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("delete plan %d: %w", p.ID, err)
		}
	}
	return u.hosts.Delete(ctx, repository.NoTX, name)
}

func (u *catalogUC) ListPlans(ctx context.Context, hostName string) ([]*model.Plan, error) {
	defer logging.TraceDuration(u.log, "CatalogUC.ListPlans")()
	return u.plans.ListByHost(ctx, repository.NoTX, hostName)
}

func (u *catalogUC) GetPlan(ctx context.Context, id int64) (*model.Plan, error) {
	return u.plans.FindByID(ctx, repository.NoTX, id)
}

func (u *catalogUC) SavePlan(ctx context.Context, p *model.Plan) error {
	defer logging.TraceDuration(u.log, "CatalogUC.SavePlan")()
	if p == nil || p.HostName == "" || p.Months <= 0 || !p.Price.IsPositive() {
		return domain.ErrInvalidArgument
	}
	if _, err := u.hosts.FindByName(ctx, repository.NoTX, p.HostName); err != nil {
		return err
	}
	return u.plans.Save(ctx, repository.NoTX, p)
}

func (u *catalogUC) DeletePlan(ctx context.Context, id int64) error {
	defer logging.TraceDuration(u.log, "CatalogUC.DeletePlan")()
	return u.plans.Delete(ctx, repository.NoTX, id)
}
