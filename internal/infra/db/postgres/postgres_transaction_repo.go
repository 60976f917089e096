package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/repository"
)

var _ repository.TransactionRepository = (*PostgresTransactionRepo)(nil)

type PostgresTransactionRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresTransactionRepo(pool *pgxpool.Pool) *PostgresTransactionRepo {
	return &PostgresTransactionRepo{pool: pool}
}

const txColumns = `id, payment_id, provider_ref, user_id, status, amount, amount_currency,
       currency_name, rail, metadata, created_at, paid_at`

func scanTransaction(row interface{ Scan(...interface{}) error }) (*model.Transaction, error) {
	var (
		t      model.Transaction
		status string
		rail   string
		meta   []byte
	)
	if err := row.Scan(&t.ID, &t.PaymentID, &t.ProviderRef, &t.UserID, &status, &t.Amount, &t.AmountCurrency,
		&t.CurrencyName, &rail, &meta, &t.CreatedAt, &t.PaidAt); err != nil {
		return nil, err
	}
	t.Status = model.TransactionStatus(status)
	t.Rail = model.Rail(rail)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Metadata); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidMetadata, err)
		}
	}
	return &t, nil
}

func (r *PostgresTransactionRepo) CreatePending(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	meta, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	const q = `
INSERT INTO transactions (payment_id, provider_ref, user_id, status, amount, amount_currency, currency_name, rail, metadata, created_at)
VALUES ($1, $2, $3, 'pending', $4, $5, $6, $7, $8, $9)
RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, t.PaymentID, t.ProviderRef, t.UserID, t.Amount, t.AmountCurrency,
		t.CurrencyName, string(t.Rail), meta, t.CreatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&t.ID); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("create transaction: %w", err)
	}
	t.Status = model.TransactionPending
	return nil
}

func (r *PostgresTransactionRepo) findOne(ctx context.Context, tx repository.Tx, q string, arg interface{}) (*model.Transaction, error) {
	row, err := pickRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, err
	}
	t, err := scanTransaction(row)
	if err != nil {
		return nil, scanErr(err)
	}
	return t, nil
}

func (r *PostgresTransactionRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Transaction, error) {
	return r.findOne(ctx, tx, `SELECT `+txColumns+` FROM transactions WHERE id=$1;`, id)
}

func (r *PostgresTransactionRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Transaction, error) {
	return r.findOne(ctx, tx, `SELECT `+txColumns+` FROM transactions WHERE payment_id=$1;`, paymentID)
}

func (r *PostgresTransactionRepo) LockByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Transaction, error) {
	if !inTx(tx) {
		return nil, domain.ErrInvalidExecContext
	}
	return r.findOne(ctx, tx, `SELECT `+txColumns+` FROM transactions WHERE payment_id=$1 FOR UPDATE;`, paymentID)
}

func (r *PostgresTransactionRepo) MarkPaidIfPending(ctx context.Context, tx repository.Tx, paymentID string, providerRef *string, paidAt time.Time) (bool, error) {
	const q = `
UPDATE transactions
   SET status='paid', paid_at=$2, provider_ref=COALESCE($3, provider_ref)
 WHERE payment_id=$1 AND status='pending';`
	ct, err := execSQL(ctx, r.pool, tx, q, paymentID, paidAt, providerRef)
	if err != nil {
		if isUniqueViolation(err) {
			return false, domain.ErrAlreadySettled
		}
		return false, fmt.Errorf("mark paid: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// MarkFailedIfPending closes a single pending row, e.g. after a rejected bank receipt.
func (r *PostgresTransactionRepo) MarkFailedIfPending(ctx context.Context, tx repository.Tx, paymentID string) (bool, error) {
	ct, err := execSQL(ctx, r.pool, tx, `UPDATE transactions SET status='failed' WHERE payment_id=$1 AND status='pending';`, paymentID)
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *PostgresTransactionRepo) SetProviderRef(ctx context.Context, tx repository.Tx, paymentID, providerRef string) error {
	ct, err := execSQL(ctx, r.pool, tx, `UPDATE transactions SET provider_ref=$2 WHERE payment_id=$1;`, paymentID, providerRef)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("set provider ref: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// FailPendingOlderThan leaves rows of exceptRail alone; bank transfers wait for a human.
func (r *PostgresTransactionRepo) FailPendingOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time, exceptRail model.Rail) (int64, error) {
	const q = `UPDATE transactions SET status='failed' WHERE status='pending' AND created_at < $1 AND rail <> $2;`
	ct, err := execSQL(ctx, r.pool, tx, q, cutoff, string(exceptRail))
	if err != nil {
		return 0, fmt.Errorf("expire pending: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (r *PostgresTransactionRepo) List(ctx context.Context, tx repository.Tx, limit, offset int) ([]*model.Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	q := `SELECT ` + txColumns + ` FROM transactions ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresTransactionRepo) Stats(ctx context.Context, tx repository.Tx) (*model.TransactionStats, error) {
	const q = `
SELECT COUNT(*) FILTER (WHERE status='paid'),
       COUNT(*) FILTER (WHERE status='pending'),
       COALESCE(SUM(amount) FILTER (WHERE status='paid'), 0)
  FROM transactions;`
	row, err := pickRow(ctx, r.pool, tx, q)
	if err != nil {
		return nil, err
	}
	var s model.TransactionStats
	var revenue decimal.Decimal
	if err := row.Scan(&s.PaidCount, &s.PendingCount, &revenue); err != nil {
		return nil, fmt.Errorf("transaction stats: %w", err)
	}
	s.Revenue = revenue
	return &s, nil
}
