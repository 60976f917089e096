package usecase

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/repository"
	"vpn-shop-bot/internal/infra/logging"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

// Dashboard is the admin overview.
type Dashboard struct {
	Users        int             `json:"users"`
	Keys         int             `json:"keys"`
	PaidCount    int64           `json:"paid_transactions"`
	PendingCount int64           `json:"pending_transactions"`
	Revenue      decimal.Decimal `json:"revenue"`
}

type StatsUseCase interface {
	Dashboard(ctx context.Context) (*Dashboard, error)
	Transactions(ctx context.Context, limit, offset int) ([]*model.Transaction, error)
	PendingDocuments(ctx context.Context) ([]*model.BankPaymentDocument, error)
}

type statsUC struct {
	users repository.UserRepository
	keys  repository.KeyRepository
	txs   repository.TransactionRepository
	docs  repository.BankDocumentRepository

	log *zerolog.Logger
}

func NewStatsUseCase(
	users repository.UserRepository,
	keys repository.KeyRepository,
	txs repository.TransactionRepository,
	docs repository.BankDocumentRepository,
	logger *zerolog.Logger,
) *statsUC {
	return &statsUC{users: users, keys: keys, txs: txs, docs: docs, log: logger}
}

func (s *statsUC) Dashboard(ctx context.Context) (*Dashboard, error) {
	defer logging.TraceDuration(s.log, "StatsUC.Dashboard")()
	users, err := s.users.CountUsers(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	keys, err := s.keys.CountAll(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	st, err := s.txs.Stats(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		Users:        users,
		Keys:         keys,
		PaidCount:    st.PaidCount,
		PendingCount: st.PendingCount,
		Revenue:      st.Revenue,
	}, nil
}

func (s *statsUC) Transactions(ctx context.Context, limit, offset int) ([]*model.Transaction, error) {
	return s.txs.List(ctx, repository.NoTX, limit, offset)
}

func (s *statsUC) PendingDocuments(ctx context.Context) ([]*model.BankPaymentDocument, error) {
	return s.docs.ListByStatus(ctx, repository.NoTX, model.DocumentPending)
}
