package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/adapter"
	"vpn-shop-bot/internal/domain/ports/repository"
	ucport "vpn-shop-bot/internal/domain/ports/usecase"
	"vpn-shop-bot/internal/infra/logging"
	"vpn-shop-bot/internal/infra/metrics"
)

var _ ucport.Settler = (*settlementUC)(nil)

// PurchaseSettledEvent is published after a settlement commits.
type PurchaseSettledEvent struct {
	PaymentID string               `json:"payment_id"`
	UserID    int64                `json:"user_id"`
	KeyID     int64                `json:"key_id"`
	HostName  string               `json:"host_name"`
	PlanID    int64                `json:"plan_id"`
	Months    int                  `json:"months"`
	Amount    string               `json:"amount"`
	Rail      model.Rail           `json:"rail"`
	Action    model.PurchaseAction `json:"action"`
	SettledAt time.Time            `json:"settled_at"`
}

type settlementUC struct {
	tm        repository.TransactionManager
	txs       repository.TransactionRepository
	users     repository.UserRepository
	keys      repository.KeyRepository
	hosts     repository.HostRepository
	panel     adapter.PanelClient
	referrals ReferralUseCase
	notifier  NotificationUseCase
	events    adapter.EventPublisher
	log       *zerolog.Logger
	now       func() time.Time
}

func NewSettlementUseCase(
	tm repository.TransactionManager,
	txs repository.TransactionRepository,
	users repository.UserRepository,
	keys repository.KeyRepository,
	hosts repository.HostRepository,
	panel adapter.PanelClient,
	referrals ReferralUseCase,
	notifier NotificationUseCase,
	events adapter.EventPublisher,
	logger *zerolog.Logger,
) *settlementUC {
	l := logger.With().Str("component", "settlement").Logger()
	return &settlementUC{
		tm: tm, txs: txs, users: users, keys: keys, hosts: hosts, panel: panel,
		referrals: referrals, notifier: notifier, events: events, log: &l, now: time.Now,
	}
}

// SettlePayment settles the pending transaction identified by paymentID exactly once.
// The row lock, the panel call, the key write, the referral credit, the buyer stats and
// the pending->paid transition share one database transaction; a panel failure rolls
// everything back and the transaction stays pending.
func (u *settlementUC) SettlePayment(ctx context.Context, paymentID, providerRef string) error {
	defer logging.TraceDuration(u.log, "SettlementUC.SettlePayment")()
	return u.settle(ctx, paymentID, providerRef, nil)
}

// SettleOnChain is SettlePayment for a TON transfer reported by the indexer. The
// transfer must cover the TON amount quoted at checkout; nothing is mutated otherwise.
func (u *settlementUC) SettleOnChain(ctx context.Context, paymentID, txHash string, paidNano int64) error {
	defer logging.TraceDuration(u.log, "SettlementUC.SettleOnChain")()
	return u.settle(ctx, paymentID, txHash, func(t *model.Transaction) error {
		if t.Rail != model.RailTON || t.AmountCurrency == nil {
			return fmt.Errorf("transfer for %s transaction: %w", t.Rail, domain.ErrInvalidMetadata)
		}
		want := t.AmountCurrency.Shift(9).Ceil().IntPart()
		if paidNano < want {
			return fmt.Errorf("paid %d of %d nanoton: %w", paidNano, want, domain.ErrUnderpaid)
		}
		return nil
	})
}

// settle runs the settlement transaction; check, when set, vets the locked pending row.
func (u *settlementUC) settle(ctx context.Context, paymentID, providerRef string, check func(*model.Transaction) error) error {
	ctx = logging.WithPaymentID(ctx, paymentID)
	log := logging.With(ctx, u.log)

	var (
		result *Settlement
		userID int64
		host   string
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		t, err := u.txs.LockByPaymentID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if !t.IsPending() {
			return domain.ErrAlreadySettled
		}
		if check != nil {
			if err := check(t); err != nil {
				return err
			}
		}
		meta := t.Metadata
		if err := meta.Validate(); err != nil {
			return err
		}
		userID, host = meta.UserID, meta.HostName

		buyer, err := u.users.FindByTelegramID(ctx, tx, meta.UserID)
		if err != nil {
			return fmt.Errorf("buyer %d: %w", meta.UserID, err)
		}

		var (
			existing *model.Key
			label    string
			seq      int
		)
		switch meta.Action {
		case model.ActionExtend:
			existing, err = u.keys.FindByID(ctx, tx, meta.KeyID)
			if err != nil {
				return fmt.Errorf("key %d: %w", meta.KeyID, domain.ErrInvalidMetadata)
			}
			if existing.UserID != meta.UserID {
				return fmt.Errorf("key %d belongs to another user: %w", meta.KeyID, domain.ErrInvalidMetadata)
			}
			label = existing.Email
			meta.HostName = existing.HostName
		default:
			seq, err = u.keys.NextKeyNumber(ctx, tx, meta.UserID)
			if err != nil {
				return err
			}
			label = model.IdentityLabel(meta.UserID, seq, meta.HostName, false)
		}

		h, err := u.hosts.FindByName(ctx, tx, meta.HostName)
		if err != nil {
			return fmt.Errorf("host %q: %w", meta.HostName, domain.ErrInvalidMetadata)
		}
		res, err := u.panel.ProvisionOrExtend(ctx, h, label, meta.Months*model.DaysPerMonth)
		if err != nil {
			metrics.IncProvisionFailure(h.Name)
			if !errors.Is(err, domain.ErrProvisionFailed) {
				err = fmt.Errorf("%w: %v", domain.ErrProvisionFailed, err)
			}
			return err
		}

		key := existing
		if key == nil {
			key = &model.Key{
				UserID:     meta.UserID,
				HostName:   h.Name,
				ClientUUID: res.ClientUUID,
				Email:      res.Email,
				ExpiresAt:  res.Expiry(),
				CreatedAt:  u.now(),
			}
			if err := u.keys.Create(ctx, tx, key); err != nil {
				return fmt.Errorf("create key: %w", err)
			}
		} else {
			key.ClientUUID, key.ExpiresAt = res.ClientUUID, res.Expiry()
			if err := u.keys.UpdateAfterExtend(ctx, tx, key.ID, key.ClientUUID, key.ExpiresAt); err != nil {
				return fmt.Errorf("extend key: %w", err)
			}
			seq, err = u.keyNumber(ctx, tx, meta.UserID, key.ID)
			if err != nil {
				return err
			}
		}

		referrer, reward, err := u.referrals.Accrue(ctx, tx, buyer, meta.Price)
		if err != nil {
			return fmt.Errorf("referral accrual: %w", err)
		}
		if err := u.users.AddPurchaseStats(ctx, tx, meta.UserID, meta.Price, meta.Months); err != nil {
			return fmt.Errorf("buyer stats: %w", err)
		}

		var ref *string
		if providerRef != "" {
			ref = &providerRef
		}
		ok, err := u.txs.MarkPaidIfPending(ctx, tx, paymentID, ref, u.now())
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAlreadySettled
		}
		result = &Settlement{
			Buyer:      buyer,
			Key:        key,
			KeyNumber:  seq,
			Connection: res.ConnectionString,
			Meta:       meta,
			ReferrerID: referrer,
			Reward:     reward,
		}
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrAlreadySettled):
		metrics.IncSettlement("duplicate")
		log.Info().Msg("payment already settled, ignoring")
		return err
	case errors.Is(err, domain.ErrProvisionFailed):
		metrics.IncSettlement("provision_failed")
		log.Error().Err(err).Int64("user", userID).Str("host", host).Msg("provisioning failed, transaction left pending")
		if userID != 0 {
			u.notifier.ProvisionFailed(ctx, userID, host)
		}
		return err
	case errors.Is(err, domain.ErrUnderpaid):
		metrics.IncSettlement("underpaid")
		log.Error().Err(err).Msg("transfer does not cover the invoice, transaction left pending")
		return err
	case errors.Is(err, domain.ErrInvalidMetadata):
		metrics.IncSettlement("invalid")
		log.Error().Err(err).Msg("settlement aborted on malformed metadata")
		return err
	default:
		metrics.IncSettlement("error")
		log.Error().Err(err).Msg("settlement failed")
		return err
	}

	metrics.IncSettlement("settled")
	metrics.IncPayment(string(result.Meta.Rail), "paid")
	metrics.AddPaymentRevenue(string(result.Meta.Rail), result.Meta.Price)
	log.Info().
		Int64("user", result.Buyer.TelegramID).
		Int64("key_id", result.Key.ID).
		Str("action", string(result.Meta.Action)).
		Str("rail", string(result.Meta.Rail)).
		Msg("payment settled")

	u.notifier.PurchaseSettled(ctx, result)
	ev := PurchaseSettledEvent{
		PaymentID: paymentID,
		UserID:    result.Buyer.TelegramID,
		KeyID:     result.Key.ID,
		HostName:  result.Key.HostName,
		PlanID:    result.Meta.PlanID,
		Months:    result.Meta.Months,
		Amount:    result.Meta.Price.StringFixed(2),
		Rail:      result.Meta.Rail,
		Action:    result.Meta.Action,
		SettledAt: u.now().UTC(),
	}
	if err := u.events.Publish(ctx, adapter.EventPurchaseSettled, ev); err != nil {
		log.Warn().Err(err).Msg("purchase event not published")
	}
	return nil
}

// keyNumber is the 1-based position of the key among the user's keys.
func (u *settlementUC) keyNumber(ctx context.Context, tx repository.Tx, userID, keyID int64) (int, error) {
	keys, err := u.keys.ListByUser(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	for i, k := range keys {
		if k.ID == keyID {
			return i + 1, nil
		}
	}
	return len(keys), nil
}
