package transfer

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"coverflow/escrow"
	"coverflow/settlement"
)

// Repository hands the dispatcher exclusive claims over pending outbox rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ClaimBatch locks up to limit pending transfers, oldest first. Rows already
// locked by a concurrent dispatcher are skipped rather than waited on.
func (r *Repository) ClaimBatch(ctx context.Context, tx pgx.Tx, limit int) ([]settlement.OutboxTransfer, error) {
	const query = `
		SELECT id, policy_id, recipient, amount, kind, status, attempts, created_at, updated_at
		FROM transfer_outbox
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	rows, err := tx.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("transfer: claim batch: %w", err)
	}
	defer rows.Close()

	items := make([]settlement.OutboxTransfer, 0, limit)
	for rows.Next() {
		var (
			item     settlement.OutboxTransfer
			policyID int64
			kind     string
		)
		if err := rows.Scan(&item.ID, &policyID, &item.Recipient, &item.Amount, &kind, &item.Status, &item.Attempts, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("transfer: scan claimed row: %w", err)
		}
		item.PolicyID = uint64(policyID)
		item.Kind = escrow.TransferKind(kind)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transfer: iterate claimed rows: %w", err)
	}

	return items, nil
}

// MarkSent finalizes a delivered transfer.
func (r *Repository) MarkSent(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE transfer_outbox
		SET status = 'sent', attempts = attempts + 1, updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("transfer: mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transfer: mark sent: row %s vanished", id)
	}
	return nil
}

// MarkFailed bumps the attempt counter and parks the row as dead once the
// attempt budget is spent. It returns the status the row ended up in.
func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, id string, maxAttempts int) (string, error) {
	const query = `
		UPDATE transfer_outbox
		SET attempts = attempts + 1,
		    status = CASE WHEN attempts + 1 >= $2 THEN 'dead' ELSE 'pending' END,
		    updated_at = now()
		WHERE id = $1
		RETURNING status
	`

	var status string
	if err := tx.QueryRow(ctx, query, id, maxAttempts).Scan(&status); err != nil {
		return "", fmt.Errorf("transfer: mark failed: %w", err)
	}
	return status, nil
}

// PendingCount reports the current delivery backlog.
func (r *Repository) PendingCount(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transfer_outbox WHERE status = 'pending'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("transfer: count pending: %w", err)
	}
	return n, nil
}
