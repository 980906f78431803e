package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"coverflow/escrow"
)

// PGChildRegistry is the Postgres-backed child registry.
type PGChildRegistry struct {
	pool *pgxpool.Pool
}

// NewChildRegistry wires a pgxpool-backed child registry.
func NewChildRegistry(pool *pgxpool.Pool) *PGChildRegistry {
	return &PGChildRegistry{pool: pool}
}

// Register inserts a routing entry. Registering the same product/asset pair
// twice returns ErrDuplicateRegistration.
func (r *PGChildRegistry) Register(ctx context.Context, child Child) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO registry_children (product_type, asset_id, address, registered_at)
		VALUES ($1, $2, $3, now())
	`, string(child.ProductType), child.AssetID, child.Address)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateRegistration
		}
		return fmt.Errorf("registry: register child: %w", err)
	}
	return nil
}

// Resolve returns the child registered for the product/asset pair.
func (r *PGChildRegistry) Resolve(ctx context.Context, product escrow.ProductType, assetID string) (Child, error) {
	const query = `
		SELECT product_type, asset_id, address, registered_at
		FROM registry_children
		WHERE product_type = $1 AND asset_id = $2
	`

	var child Child
	var productType string
	err := r.pool.QueryRow(ctx, query, string(product), assetID).Scan(
		&productType,
		&child.AssetID,
		&child.Address,
		&child.RegisteredAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Child{}, ErrUnknownAsset
		}
		return Child{}, fmt.Errorf("registry: resolve child: %w", err)
	}
	child.ProductType = escrow.ProductType(productType)
	return child, nil
}

// List returns all routing entries ordered by product then asset.
func (r *PGChildRegistry) List(ctx context.Context) ([]Child, error) {
	const query = `
		SELECT product_type, asset_id, address, registered_at
		FROM registry_children
		ORDER BY product_type, asset_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("registry: list children: %w", err)
	}
	defer rows.Close()

	children := make([]Child, 0, 8)
	for rows.Next() {
		var child Child
		var productType string
		if err := rows.Scan(&productType, &child.AssetID, &child.Address, &child.RegisteredAt); err != nil {
			return nil, fmt.Errorf("registry: scan child: %w", err)
		}
		child.ProductType = escrow.ProductType(productType)
		children = append(children, child)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("registry: iterate children: %w", err)
	}

	return children, nil
}

// PGTemplateRegistry is the Postgres-backed template registry.
type PGTemplateRegistry struct {
	pool *pgxpool.Pool
}

// NewTemplateRegistry wires a pgxpool-backed template registry.
func NewTemplateRegistry(pool *pgxpool.Pool) *PGTemplateRegistry {
	return &PGTemplateRegistry{pool: pool}
}

// Put inserts a code template version for a product line.
func (r *PGTemplateRegistry) Put(ctx context.Context, tpl Template) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO registry_templates (product_type, version, code_ref, registered_at)
		VALUES ($1, $2, $3, now())
	`, string(tpl.ProductType), tpl.Version, tpl.CodeRef)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateRegistration
		}
		return fmt.Errorf("registry: put template: %w", err)
	}
	return nil
}

// Latest returns the highest registered version for the product line.
func (r *PGTemplateRegistry) Latest(ctx context.Context, product escrow.ProductType) (Template, error) {
	const query = `
		SELECT product_type, version, code_ref, registered_at
		FROM registry_templates
		WHERE product_type = $1
		ORDER BY version DESC
		LIMIT 1
	`

	var tpl Template
	var productType string
	err := r.pool.QueryRow(ctx, query, string(product)).Scan(
		&productType,
		&tpl.Version,
		&tpl.CodeRef,
		&tpl.RegisteredAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Template{}, ErrUnknownTemplate
		}
		return Template{}, fmt.Errorf("registry: latest template: %w", err)
	}
	tpl.ProductType = escrow.ProductType(productType)
	return tpl, nil
}
