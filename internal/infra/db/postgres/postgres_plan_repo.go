package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/repository"
)

// Ensure interface compliance
var _ repository.PlanRepository = (*PostgresPlanRepo)(nil)

type PostgresPlanRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresPlanRepo(pool *pgxpool.Pool) *PostgresPlanRepo {
	return &PostgresPlanRepo{pool: pool}
}

// Save inserts a plan when ID is zero and updates it otherwise.
func (r *PostgresPlanRepo) Save(ctx context.Context, tx repository.Tx, p *model.Plan) error {
	if p.ID == 0 {
		const q = `
INSERT INTO plans (host_name, name, months, price, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id;`
		row, err := pickRow(ctx, r.pool, tx, q, p.HostName, p.Name, p.Months, p.Price, p.CreatedAt)
		if err != nil {
			return err
		}
		if err := row.Scan(&p.ID); err != nil {
			return fmt.Errorf("insert plan: %w", err)
		}
		return nil
	}

	const q = `UPDATE plans SET host_name=$2, name=$3, months=$4, price=$5 WHERE id=$1;`
	ct, err := execSQL(ctx, r.pool, tx, q, p.ID, p.HostName, p.Name, p.Months, p.Price)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanPlan(row interface{ Scan(...interface{}) error }) (*model.Plan, error) {
	var p model.Plan
	if err := row.Scan(&p.ID, &p.HostName, &p.Name, &p.Months, &p.Price, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Plan, error) {
	const q = `SELECT id, host_name, name, months, price, created_at FROM plans WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	p, err := scanPlan(row)
	if err != nil {
		return nil, scanErr(err)
	}
	return p, nil
}

func (r *PostgresPlanRepo) ListByHost(ctx context.Context, tx repository.Tx, hostName string) ([]*model.Plan, error) {
	const q = `
SELECT id, host_name, name, months, price, created_at
  FROM plans
 WHERE host_name=$1
 ORDER BY months, price;`
	rows, err := queryRows(ctx, r.pool, tx, q, hostName)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []*model.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresPlanRepo) Delete(ctx context.Context, tx repository.Tx, id int64) error {
	ct, err := execSQL(ctx, r.pool, tx, `DELETE FROM plans WHERE id=$1;`, id)
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
