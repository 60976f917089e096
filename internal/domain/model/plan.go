package model

import (
	"time"

	"vpn-shop-bot/internal/domain"

	"github.com/shopspring/decimal"
)

// DaysPerMonth converts plan months into panel days.
const DaysPerMonth = 30

// Plan is a purchasable duration on a specific host. Price is in the shop's base currency (RUB).
type Plan struct {
	ID        int64
	HostName  string
	Name      string
	Months    int
	Price     decimal.Decimal
	CreatedAt time.Time
}

func (p *Plan) IsZero() bool { return p == nil || p.ID == 0 }

func (p *Plan) Days() int { return p.Months * DaysPerMonth }

// NewPlan validates and constructs a plan.
func NewPlan(hostName, name string, months int, price decimal.Decimal) (*Plan, error) {
	if hostName == "" || name == "" || months <= 0 || !price.IsPositive() {
		return nil, domain.ErrInvalidArgument
	}
	return &Plan{
		HostName:  hostName,
		Name:      name,
		Months:    months,
		Price:     price,
		CreatedAt: time.Now(),
	}, nil
}
