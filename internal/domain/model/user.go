package model

import (
	"time"

	"vpn-shop-bot/internal/domain"

	"github.com/shopspring/decimal"
)

// User is a Telegram customer of the shop.
// ReferredBy is set once at registration and never changed afterwards.
type User struct {
	TelegramID         int64
	Username           string
	TotalSpent         decimal.Decimal
	TotalMonths        int
	ReferredBy         *int64
	ReferralBalance    decimal.Decimal
	ReferralBalanceAll decimal.Decimal
	TrialUsed          bool
	IsBanned           bool
	AgreedToTerms      bool
	RegisteredAt       time.Time
}

// NewUser validates and constructs a user. A referrer equal to the user itself is dropped.
func NewUser(tgID int64, username string, referrer *int64) (*User, error) {
	if tgID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if referrer != nil && (*referrer == tgID || *referrer <= 0) {
		referrer = nil
	}
	return &User{
		TelegramID:         tgID,
		Username:           username,
		TotalSpent:         decimal.Zero,
		ReferralBalance:    decimal.Zero,
		ReferralBalanceAll: decimal.Zero,
		ReferredBy:         referrer,
		RegisteredAt:       time.Now(),
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.TelegramID == 0 }

// FirstPurchasePending reports whether the user came through a referral link
// and has not paid for anything yet.
func (u *User) FirstPurchasePending() bool {
	return u != nil && u.ReferredBy != nil && u.TotalSpent.IsZero()
}

// DisplayName returns the username or a fallback for logs and operator messages.
func (u *User) DisplayName() string {
	if u == nil || u.Username == "" {
		return "N/A"
	}
	return u.Username
}
