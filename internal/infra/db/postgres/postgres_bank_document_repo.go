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

var _ repository.BankDocumentRepository = (*PostgresBankDocumentRepo)(nil)

type PostgresBankDocumentRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresBankDocumentRepo(pool *pgxpool.Pool) *PostgresBankDocumentRepo {
	return &PostgresBankDocumentRepo{pool: pool}
}

const docColumns = `id, transaction_id, user_id, file_id, kind, status, reviewed_by, reviewed_at, storage_key, created_at`

func scanDocument(row interface{ Scan(...interface{}) error }) (*model.BankPaymentDocument, error) {
	var (
		d            model.BankPaymentDocument
		kind, status string
	)
	if err := row.Scan(&d.ID, &d.TransactionID, &d.UserID, &d.FileID, &kind, &status,
		&d.ReviewedBy, &d.ReviewedAt, &d.StorageKey, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.Kind = model.DocumentKind(kind)
	d.Status = model.DocumentStatus(status)
	return &d, nil
}

func (r *PostgresBankDocumentRepo) Create(ctx context.Context, tx repository.Tx, d *model.BankPaymentDocument) error {
	const q = `
INSERT INTO bank_payment_documents (transaction_id, user_id, file_id, kind, status, storage_key, created_at)
VALUES ($1, $2, $3, $4, 'pending', $5, $6)
RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, d.TransactionID, d.UserID, d.FileID, string(d.Kind), d.StorageKey, d.CreatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&d.ID); err != nil {
		return fmt.Errorf("create bank document: %w", err)
	}
	d.Status = model.DocumentPending
	return nil
}

func (r *PostgresBankDocumentRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.BankPaymentDocument, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+docColumns+` FROM bank_payment_documents WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	d, err := scanDocument(row)
	if err != nil {
		return nil, scanErr(err)
	}
	return d, nil
}

func (r *PostgresBankDocumentRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id int64, status model.DocumentStatus, reviewer int64, at time.Time) (bool, error) {
	if status != model.DocumentApproved && status != model.DocumentRejected {
		return false, domain.ErrInvalidArgument
	}
	const q = `
UPDATE bank_payment_documents
   SET status=$2, reviewed_by=$3, reviewed_at=$4
 WHERE id=$1 AND status='pending';`
	ct, err := execSQL(ctx, r.pool, tx, q, id, string(status), reviewer, at)
	if err != nil {
		return false, fmt.Errorf("review bank document: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *PostgresBankDocumentRepo) SetStorageKey(ctx context.Context, tx repository.Tx, id int64, key string) error {
	ct, err := execSQL(ctx, r.pool, tx, `UPDATE bank_payment_documents SET storage_key=$2 WHERE id=$1;`, id, key)
	if err != nil {
		return fmt.Errorf("set storage key: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresBankDocumentRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.DocumentStatus) ([]*model.BankPaymentDocument, error) {
	q := `SELECT ` + docColumns + ` FROM bank_payment_documents WHERE status=$1 ORDER BY created_at;`
	rows, err := queryRows(ctx, r.pool, tx, q, string(status))
	if err != nil {
		return nil, fmt.Errorf("list bank documents: %w", err)
	}
	defer rows.Close()

	var out []*model.BankPaymentDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
