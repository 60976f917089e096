package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*PostgresUserRepo)(nil)

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

const userColumns = `telegram_id, username, total_spent, total_months, referred_by,
       referral_balance, referral_balance_all, trial_used, is_banned, agreed_to_terms, registered_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.TelegramID, &u.Username, &u.TotalSpent, &u.TotalMonths, &u.ReferredBy,
		&u.ReferralBalance, &u.ReferralBalanceAll, &u.TrialUsed, &u.IsBanned, &u.AgreedToTerms, &u.RegisteredAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateIfNotExists never touches an existing row, so the referrer stays as first recorded.
func (r *PostgresUserRepo) CreateIfNotExists(ctx context.Context, tx repository.Tx, u *model.User) (bool, error) {
	const q = `
INSERT INTO users (telegram_id, username, referred_by, registered_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (telegram_id) DO NOTHING;`
	ct, err := execSQL(ctx, r.pool, tx, q, u.TelegramID, u.Username, u.ReferredBy, u.RegisteredAt)
	if err != nil {
		return false, fmt.Errorf("create user: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *PostgresUserRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE telegram_id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, tgID)
	if err != nil {
		return nil, err
	}
	u, err := scanUser(row)
	if err != nil {
		return nil, scanErr(err)
	}
	return u, nil
}

func (r *PostgresUserRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.User, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+userColumns+` FROM users ORDER BY registered_at;`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *PostgresUserRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM users;`)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (r *PostgresUserRepo) CountReferrals(ctx context.Context, tx repository.Tx, referrerID int64) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM users WHERE referred_by=$1;`, referrerID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count referrals: %w", err)
	}
	return n, nil
}

func (r *PostgresUserRepo) SetAgreedToTerms(ctx context.Context, tx repository.Tx, tgID int64) error {
	return r.execOne(ctx, tx, `UPDATE users SET agreed_to_terms=TRUE WHERE telegram_id=$1;`, tgID)
}

func (r *PostgresUserRepo) MarkTrialUsed(ctx context.Context, tx repository.Tx, tgID int64) (bool, error) {
	ct, err := execSQL(ctx, r.pool, tx, `UPDATE users SET trial_used=TRUE WHERE telegram_id=$1 AND trial_used=FALSE;`, tgID)
	if err != nil {
		return false, fmt.Errorf("mark trial used: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *PostgresUserRepo) SetBanned(ctx context.Context, tx repository.Tx, tgID int64, banned bool) error {
	return r.execOne(ctx, tx, `UPDATE users SET is_banned=$2 WHERE telegram_id=$1;`, tgID, banned)
}

func (r *PostgresUserRepo) AddPurchaseStats(ctx context.Context, tx repository.Tx, tgID int64, spent decimal.Decimal, months int) error {
	const q = `UPDATE users SET total_spent = total_spent + $2, total_months = total_months + $3 WHERE telegram_id=$1;`
	return r.execOne(ctx, tx, q, tgID, spent, months)
}

func (r *PostgresUserRepo) AddReferralBalance(ctx context.Context, tx repository.Tx, tgID int64, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return domain.ErrInvalidArgument
	}
	const q = `
UPDATE users
   SET referral_balance = referral_balance + $2,
       referral_balance_all = referral_balance_all + $2
 WHERE telegram_id=$1;`
	return r.execOne(ctx, tx, q, tgID, amount)
}

// ResetReferralBalanceIfAtLeast zeroes both balances in one statement and returns
// the live balance as it was immediately before the update.
func (r *PostgresUserRepo) ResetReferralBalanceIfAtLeast(ctx context.Context, tx repository.Tx, tgID int64, min decimal.Decimal) (decimal.Decimal, bool, error) {
	const q = `
WITH prev AS (
    SELECT telegram_id, referral_balance FROM users WHERE telegram_id=$1 FOR UPDATE
)
UPDATE users u
   SET referral_balance = 0, referral_balance_all = 0
  FROM prev
 WHERE u.telegram_id = prev.telegram_id AND prev.referral_balance >= $2
RETURNING prev.referral_balance;`
	row, err := pickRow(ctx, r.pool, tx, q, tgID, min)
	if err != nil {
		return decimal.Zero, false, err
	}
	var amount decimal.Decimal
	if err := row.Scan(&amount); err != nil {
		if scanErr(err) == domain.ErrNotFound {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("reset referral balance: %w", err)
	}
	return amount, true, nil
}

func (r *PostgresUserRepo) SetReferralBalance(ctx context.Context, tx repository.Tx, tgID int64, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return domain.ErrInvalidArgument
	}
	return r.execOne(ctx, tx, `UPDATE users SET referral_balance=$2 WHERE telegram_id=$1;`, tgID, amount)
}

func (r *PostgresUserRepo) execOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) error {
	ct, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrOperationFailed, err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
