package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/repository"
)

var _ repository.KeyRepository = (*PostgresKeyRepo)(nil)

type PostgresKeyRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresKeyRepo(pool *pgxpool.Pool) *PostgresKeyRepo {
	return &PostgresKeyRepo{pool: pool}
}

const keyColumns = `id, user_id, host_name, client_uuid, email, expires_at, created_at, reminded_at`

func scanKey(row interface{ Scan(...interface{}) error }) (*model.Key, error) {
	var k model.Key
	if err := row.Scan(&k.ID, &k.UserID, &k.HostName, &k.ClientUUID, &k.Email, &k.ExpiresAt, &k.CreatedAt, &k.RemindedAt); err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *PostgresKeyRepo) Create(ctx context.Context, tx repository.Tx, k *model.Key) error {
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now()
	}
	const q = `
INSERT INTO vpn_keys (user_id, host_name, client_uuid, email, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, k.UserID, k.HostName, k.ClientUUID, k.Email, k.ExpiresAt, k.CreatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&k.ID); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("create key: %w", err)
	}
	return nil
}

func (r *PostgresKeyRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Key, error) {
	q := `SELECT ` + keyColumns + ` FROM vpn_keys WHERE id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	k, err := scanKey(row)
	if err != nil {
		return nil, scanErr(err)
	}
	return k, nil
}

func (r *PostgresKeyRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Key, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var out []*model.Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *PostgresKeyRepo) ListByUser(ctx context.Context, tx repository.Tx, userID int64) ([]*model.Key, error) {
	return r.list(ctx, tx, `SELECT `+keyColumns+` FROM vpn_keys WHERE user_id=$1 ORDER BY id;`, userID)
}

// NextKeyNumber locks the owner's user row first when called inside a transaction,
// so two concurrent purchases for one user cannot pick the same number.
func (r *PostgresKeyRepo) NextKeyNumber(ctx context.Context, tx repository.Tx, userID int64) (int, error) {
	if inTx(tx) {
		if _, err := execSQL(ctx, r.pool, tx, `SELECT 1 FROM users WHERE telegram_id=$1 FOR UPDATE;`, userID); err != nil {
			return 0, fmt.Errorf("lock user: %w", err)
		}
	}
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM vpn_keys WHERE user_id=$1;`, userID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count user keys: %w", err)
	}
	return n + 1, nil
}

func (r *PostgresKeyRepo) UpdateAfterExtend(ctx context.Context, tx repository.Tx, id int64, clientUUID string, expiresAt time.Time) error {
	const q = `UPDATE vpn_keys SET client_uuid=$2, expires_at=$3, reminded_at=NULL WHERE id=$1;`
	ct, err := execSQL(ctx, r.pool, tx, q, id, clientUUID, expiresAt)
	if err != nil {
		return fmt.Errorf("update key: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresKeyRepo) CountAll(ctx context.Context, tx repository.Tx) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM vpn_keys;`)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count keys: %w", err)
	}
	return n, nil
}

// ListExpiringBetween returns keys in [from, to) that have not been reminded yet.
func (r *PostgresKeyRepo) ListExpiringBetween(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.Key, error) {
	const q = `SELECT ` + keyColumns + `
  FROM vpn_keys
 WHERE expires_at >= $1 AND expires_at < $2 AND reminded_at IS NULL
 ORDER BY expires_at;`
	return r.list(ctx, tx, q, from, to)
}

func (r *PostgresKeyRepo) MarkReminded(ctx context.Context, tx repository.Tx, id int64, at time.Time) error {
	_, err := execSQL(ctx, r.pool, tx, `UPDATE vpn_keys SET reminded_at=$2 WHERE id=$1;`, id, at)
	if err != nil {
		return fmt.Errorf("mark reminded: %w", err)
	}
	return nil
}
