package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	qrcode "github.com/skip2/go-qrcode"

	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/adapter"
	"vpn-shop-bot/internal/domain/ports/repository"
	"vpn-shop-bot/internal/infra/logging"
	"vpn-shop-bot/internal/infra/metrics"
)

var _ KeyUseCase = (*keyUC)(nil)

// IssuedKey is a key together with its connection string.
type IssuedKey struct {
	Key        *model.Key
	Connection string
}

type KeyUseCase interface {
	ListKeys(ctx context.Context, tgID int64) ([]*model.Key, error)
	// GetOwnedKey returns ErrForbidden when the key belongs to somebody else.
	GetOwnedKey(ctx context.Context, tgID, keyID int64) (*model.Key, error)
	Connection(ctx context.Context, key *model.Key) (string, error)
	QRCode(connection string) ([]byte, error)

	TrialAvailable(ctx context.Context, user *model.User) bool
	// IssueTrial provisions the one-time trial key. A panel failure leaves trial_used false.
	IssueTrial(ctx context.Context, tgID int64, hostName string) (*IssuedKey, error)
}

type keyUC struct {
	keys     repository.KeyRepository
	users    repository.UserRepository
	hosts    repository.HostRepository
	tm       repository.TransactionManager
	panel    adapter.PanelClient
	settings SettingsUseCase
	log      *zerolog.Logger
}

func NewKeyUseCase(
	keys repository.KeyRepository,
	users repository.UserRepository,
	hosts repository.HostRepository,
	tm repository.TransactionManager,
	panel adapter.PanelClient,
	settings SettingsUseCase,
	logger *zerolog.Logger,
) *keyUC {
	return &keyUC{keys: keys, users: users, hosts: hosts, tm: tm, panel: panel, settings: settings, log: logger}
}

func (u *keyUC) ListKeys(ctx context.Context, tgID int64) ([]*model.Key, error) {
	defer logging.TraceDuration(u.log, "KeyUC.ListKeys")()
	return u.keys.ListByUser(ctx, repository.NoTX, tgID)
}

func (u *keyUC) GetOwnedKey(ctx context.Context, tgID, keyID int64) (*model.Key, error) {
	k, err := u.keys.FindByID(ctx, repository.NoTX, keyID)
	if err != nil {
		return nil, err
	}
	if k.UserID != tgID {
		return nil, domain.ErrForbidden
	}
	return k, nil
}

func (u *keyUC) Connection(ctx context.Context, key *model.Key) (string, error) {
	defer logging.TraceDuration(u.log, "KeyUC.Connection")()
	host, err := u.hosts.FindByName(ctx, repository.NoTX, key.HostName)
	if err != nil {
		return "", err
	}
	return u.panel.ConnectionInfo(ctx, host, key)
}

func (u *keyUC) QRCode(connection string) ([]byte, error) {
	if connection == "" {
		return nil, domain.ErrInvalidArgument
	}
	return qrcode.Encode(connection, qrcode.Medium, 512)
}

func (u *keyUC) TrialAvailable(ctx context.Context, user *model.User) bool {
	return user != nil && !user.TrialUsed && u.settings.Bool(ctx, model.SettingTrialEnabled)
}

func (u *keyUC) IssueTrial(ctx context.Context, tgID int64, hostName string) (*IssuedKey, error) {
	defer logging.TraceDuration(u.log, "KeyUC.IssueTrial")()
	log := logging.With(ctx, u.log)

	if !u.settings.Bool(ctx, model.SettingTrialEnabled) {
		return nil, domain.ErrForbidden
	}
	host, err := u.hosts.FindByName(ctx, repository.NoTX, hostName)
	if err != nil {
		return nil, err
	}
	days := u.settings.Int(ctx, model.SettingTrialDurationDays, 3)
	if days <= 0 {
		days = 3
	}

	var issued *IssuedKey
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := u.users.MarkTrialUsed(ctx, tx, tgID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrTrialUsed
		}
		seq, err := u.keys.NextKeyNumber(ctx, tx, tgID)
		if err != nil {
			return err
		}
		label := model.IdentityLabel(tgID, seq, host.Name, true)
		res, err := u.panel.ProvisionOrExtend(ctx, host, label, days)
		if err != nil {
			metrics.IncProvisionFailure(host.Name)
			return err
		}
		k := &model.Key{
			UserID:     tgID,
			HostName:   host.Name,
			ClientUUID: res.ClientUUID,
			Email:      res.Email,
			ExpiresAt:  res.Expiry(),
			CreatedAt:  time.Now(),
		}
		if err := u.keys.Create(ctx, tx, k); err != nil {
			return fmt.Errorf("store trial key: %w", err)
		}
		issued = &IssuedKey{Key: k, Connection: res.ConnectionString}
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrTrialUsed) {
			log.Error().Err(err).Str("host", hostName).Msg("trial issue failed")
		}
		return nil, err
	}
	log.Info().Int64("key_id", issued.Key.ID).Str("host", host.Name).Msg("trial key issued")
	return issued, nil
}
