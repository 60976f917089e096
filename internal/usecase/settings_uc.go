package usecase

import (
	"context"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/repository"
	"vpn-shop-bot/internal/infra/logging"
)

var _ SettingsUseCase = (*settingsUC)(nil)

// SettingsUseCase reads runtime settings with typed fallbacks.
type SettingsUseCase interface {
	String(ctx context.Context, key string) string
	Bool(ctx context.Context, key string) bool
	Int(ctx context.Context, key string, def int) int
	Decimal(ctx context.Context, key string, def decimal.Decimal) decimal.Decimal
	All(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, key, value string) error

	// IsOperator reports whether the user may run operator-only actions.
	IsOperator(ctx context.Context, tgID int64) bool
	// PrimaryOperator is the chat that receives operator notifications; 0 when none is set.
	PrimaryOperator(ctx context.Context) int64
}

type settingsUC struct {
	repo      repository.SettingRepository
	operators []int64
	log       *zerolog.Logger
}

// NewSettingsUseCase takes the operator ids from the static config; the admin_telegram_id
// setting adds one more at runtime.
func NewSettingsUseCase(repo repository.SettingRepository, operators []int64, logger *zerolog.Logger) *settingsUC {
	return &settingsUC{repo: repo, operators: operators, log: logger}
}

func (u *settingsUC) String(ctx context.Context, key string) string {
	v, _, err := u.repo.Get(ctx, key)
	if err != nil {
		logging.With(ctx, u.log).Warn().Err(err).Str("key", key).Msg("setting read failed")
		return ""
	}
	return strings.TrimSpace(v)
}

func (u *settingsUC) Bool(ctx context.Context, key string) bool {
	switch strings.ToLower(u.String(ctx, key)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

func (u *settingsUC) Int(ctx context.Context, key string, def int) int {
	n, err := strconv.Atoi(u.String(ctx, key))
	if err != nil {
		return def
	}
	return n
}

func (u *settingsUC) Decimal(ctx context.Context, key string, def decimal.Decimal) decimal.Decimal {
	d, err := decimal.NewFromString(u.String(ctx, key))
	if err != nil {
		return def
	}
	return d
}

func (u *settingsUC) All(ctx context.Context) (map[string]string, error) {
	defer logging.TraceDuration(u.log, "SettingsUC.All")()
	return u.repo.All(ctx)
}

func (u *settingsUC) Set(ctx context.Context, key, value string) error {
	defer logging.TraceDuration(u.log, "SettingsUC.Set")()
	if strings.TrimSpace(key) == "" {
		return domain.ErrInvalidArgument
	}
	return u.repo.Set(ctx, key, value)
}

func (u *settingsUC) IsOperator(ctx context.Context, tgID int64) bool {
	if tgID == 0 {
		return false
	}
	for _, id := range u.operators {
		if id == tgID {
			return true
		}
	}
	return u.settingOperator(ctx) == tgID
}

func (u *settingsUC) PrimaryOperator(ctx context.Context) int64 {
	if id := u.settingOperator(ctx); id != 0 {
		return id
	}
	if len(u.operators) > 0 {
		return u.operators[0]
	}
	return 0
}

func (u *settingsUC) settingOperator(ctx context.Context) int64 {
	id, err := strconv.ParseInt(u.String(ctx, model.SettingAdminTelegramID), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
