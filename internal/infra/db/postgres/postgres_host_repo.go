package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/repository"
)

var _ repository.HostRepository = (*PostgresHostRepo)(nil)

// Cipher encrypts panel passwords at rest. security.EncryptionService satisfies it.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type PostgresHostRepo struct {
	pool   *pgxpool.Pool
	cipher Cipher
}

// NewPostgresHostRepo stores passwords as given when cipher is nil.
func NewPostgresHostRepo(pool *pgxpool.Pool, cipher Cipher) *PostgresHostRepo {
	return &PostgresHostRepo{pool: pool, cipher: cipher}
}

func (r *PostgresHostRepo) seal(pw string) (string, error) {
	if r.cipher == nil {
		return pw, nil
	}
	return r.cipher.Encrypt(pw)
}

func (r *PostgresHostRepo) open(enc string) (string, error) {
	if r.cipher == nil {
		return enc, nil
	}
	return r.cipher.Decrypt(enc)
}

func (r *PostgresHostRepo) Save(ctx context.Context, tx repository.Tx, h *model.Host) error {
	enc, err := r.seal(h.Password)
	if err != nil {
		return fmt.Errorf("encrypt host password: %w", err)
	}
	const q = `
INSERT INTO hosts (name, panel_url, username, password_enc, inbound_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (name) DO UPDATE
  SET panel_url    = EXCLUDED.panel_url,
      username     = EXCLUDED.username,
      password_enc = EXCLUDED.password_enc,
      inbound_id   = EXCLUDED.inbound_id;`
	if _, err := execSQL(ctx, r.pool, tx, q, h.Name, h.PanelURL, h.Username, enc, h.InboundID, h.CreatedAt); err != nil {
		return fmt.Errorf("save host: %w", err)
	}
	return nil
}

func (r *PostgresHostRepo) scan(row interface{ Scan(...interface{}) error }) (*model.Host, error) {
	var h model.Host
	var enc string
	if err := row.Scan(&h.Name, &h.PanelURL, &h.Username, &enc, &h.InboundID, &h.CreatedAt); err != nil {
		return nil, err
	}
	pw, err := r.open(enc)
	if err != nil {
		return nil, fmt.Errorf("decrypt host %s password: %w", h.Name, err)
	}
	h.Password = pw
	return &h, nil
}

func (r *PostgresHostRepo) FindByName(ctx context.Context, tx repository.Tx, name string) (*model.Host, error) {
	const q = `SELECT name, panel_url, username, password_enc, inbound_id, created_at FROM hosts WHERE name=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, name)
	if err != nil {
		return nil, err
	}
	h, err := r.scan(row)
	if err != nil {
		return nil, scanErr(err)
	}
	return h, nil
}

func (r *PostgresHostRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Host, error) {
	const q = `SELECT name, panel_url, username, password_enc, inbound_id, created_at FROM hosts ORDER BY name;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, fmt.Errorf("list hosts: %w", err)
	}
	defer rows.Close()

	var out []*model.Host
	for rows.Next() {
		h, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Delete removes the host; its plans go with it (ON DELETE CASCADE).
func (r *PostgresHostRepo) Delete(ctx context.Context, tx repository.Tx, name string) error {
	ct, err := execSQL(ctx, r.pool, tx, `DELETE FROM hosts WHERE name=$1;`, name)
	if err != nil {
		return fmt.Errorf("delete host: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
