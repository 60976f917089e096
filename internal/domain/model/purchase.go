package model

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"vpn-shop-bot/internal/domain"

	"github.com/shopspring/decimal"
)

type PurchaseAction string

const (
	ActionNew    PurchaseAction = "new"
	ActionExtend PurchaseAction = "extend"
)

type Rail string

const (
	RailYooKassa  Rail = "yookassa"
	RailCryptoBot Rail = "cryptobot"
	RailHeleket   Rail = "heleket"
	RailTON       Rail = "tonconnect"
	RailBank      Rail = "bank_card_rf"
)

func (r Rail) Valid() bool {
	switch r {
	case RailYooKassa, RailCryptoBot, RailHeleket, RailTON, RailBank:
		return true
	}
	return false
}

// PurchaseIntent is collected across conversation steps and consumed by one rail.
type PurchaseIntent struct {
	Action        PurchaseAction  `json:"action"`
	KeyID         int64           `json:"key_id"`
	PlanID        int64           `json:"plan_id"`
	HostName      string          `json:"host_name"`
	CustomerEmail string          `json:"customer_email,omitempty"`
	FinalPrice    decimal.Decimal `json:"final_price"`
}

func (i *PurchaseIntent) Validate() error {
	if i == nil {
		return domain.ErrInvalidArgument
	}
	switch i.Action {
	case ActionNew:
	case ActionExtend:
		if i.KeyID <= 0 {
			return fmt.Errorf("extend without key: %w", domain.ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("unknown action %q: %w", i.Action, domain.ErrInvalidArgument)
	}
	if i.PlanID <= 0 || i.HostName == "" {
		return domain.ErrInvalidArgument
	}
	return nil
}

// PurchaseMetadata is the serialized copy of an intent stored with a Transaction.
// It carries everything settlement needs.
type PurchaseMetadata struct {
	UserID        int64           `json:"user_id"`
	Months        int             `json:"months"`
	Price         decimal.Decimal `json:"price"`
	Action        PurchaseAction  `json:"action"`
	KeyID         int64           `json:"key_id"`
	HostName      string          `json:"host_name"`
	PlanID        int64           `json:"plan_id"`
	PlanName      string          `json:"plan_name,omitempty"`
	CustomerEmail string          `json:"customer_email,omitempty"`
	Rail          Rail            `json:"payment_method"`
}

// Validate checks the metadata shape before any mutation happens.
func (m *PurchaseMetadata) Validate() error {
	if m == nil {
		return domain.ErrInvalidMetadata
	}
	if m.UserID <= 0 || m.Months <= 0 || m.PlanID <= 0 || m.HostName == "" {
		return fmt.Errorf("missing user/plan/host: %w", domain.ErrInvalidMetadata)
	}
	if m.Price.IsNegative() {
		return fmt.Errorf("negative price: %w", domain.ErrInvalidMetadata)
	}
	switch m.Action {
	case ActionNew:
	case ActionExtend:
		if m.KeyID <= 0 {
			return fmt.Errorf("extend without key: %w", domain.ErrInvalidMetadata)
		}
	default:
		return fmt.Errorf("unknown action %q: %w", m.Action, domain.ErrInvalidMetadata)
	}
	return nil
}

// NewPurchaseMetadata freezes an intent for the given rail.
func NewPurchaseMetadata(userID int64, intent *PurchaseIntent, plan *Plan, rail Rail) PurchaseMetadata {
	return PurchaseMetadata{
		UserID:        userID,
		Months:        plan.Months,
		Price:         intent.FinalPrice,
		Action:        intent.Action,
		KeyID:         intent.KeyID,
		HostName:      intent.HostName,
		PlanID:        plan.ID,
		PlanName:      plan.Name,
		CustomerEmail: intent.CustomerEmail,
		Rail:          rail,
	}
}

var emailShape = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[A-Za-z]{2,}$`)

// ValidEmail accepts local@domain.tld.
func ValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if !emailShape.MatchString(s) {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
