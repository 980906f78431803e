package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"coverflow/escrow"
)

// ErrNotFound signals the requested policy does not exist.
var ErrNotFound = errors.New("policy: not found")

const policyColumns = `id, owner, product_type, asset_id, child_address, coverage_amount, premium, created_at, expires_at`

// Repository persists minted coverage records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// NextID allocates the next policy id from the shared sequence.
func (r *Repository) NextID(ctx context.Context, tx pgx.Tx) (uint64, error) {
	var id int64
	if err := tx.QueryRow(ctx, `SELECT nextval('policy_id_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("policy: next id: %w", err)
	}
	return uint64(id), nil
}

// Insert stores a minted policy inside the caller's transaction.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, p Policy) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO policies (`+policyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		int64(p.ID),
		p.Owner,
		string(p.ProductType),
		p.AssetID,
		p.ChildAddress,
		p.CoverageAmount,
		p.Premium,
		p.CreatedAt,
		p.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("policy: insert: %w", err)
	}
	return nil
}

// GetByID fetches one policy.
func (r *Repository) GetByID(ctx context.Context, id uint64) (Policy, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+policyColumns+` FROM policies WHERE id = $1`, int64(id))
	p, err := scanPolicy(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Policy{}, ErrNotFound
		}
		return Policy{}, fmt.Errorf("policy: get by id: %w", err)
	}
	return p, nil
}

// ListByOwner fetches the owner's policies, newest first.
func (r *Repository) ListByOwner(ctx context.Context, owner string, limit int) ([]Policy, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+policyColumns+`
		FROM policies
		WHERE owner = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("policy: list by owner: %w", err)
	}
	defer rows.Close()

	policies := make([]Policy, 0, limit)
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("policy: scan row: %w", err)
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("policy: iterate rows: %w", err)
	}

	return policies, nil
}

func scanPolicy(row pgx.Row) (Policy, error) {
	var (
		p           Policy
		id          int64
		productType string
	)
	err := row.Scan(
		&id,
		&p.Owner,
		&productType,
		&p.AssetID,
		&p.ChildAddress,
		&p.CoverageAmount,
		&p.Premium,
		&p.CreatedAt,
		&p.ExpiresAt,
	)
	if err != nil {
		return Policy{}, err
	}
	p.ID = uint64(id)
	p.ProductType = escrow.ProductType(productType)
	return p, nil
}
