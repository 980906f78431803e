package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"coverflow/escrow"
)

var (
	// ErrNotFound is returned when no escrow row exists for the policy id.
	ErrNotFound = errors.New("settlement: escrow not found")
	// ErrDuplicateIdempotencyKey signals the idempotency insert hit an
	// existing key, so the submission was already applied.
	ErrDuplicateIdempotencyKey = errors.New("settlement: duplicate idempotency key")
)

const escrowColumns = `policy_id, policy_owner, vault, oracle, admin,
	lp_rewards, staker_rewards, protocol_treasury, arbiter_rewards, builder_rewards, admin_fee, gas_wallet,
	coverage_amount, collateral_amount, created_at, expiry_at,
	product_type, asset_id, trigger_threshold, trigger_duration_seconds,
	user_bps, lp_rewards_bps, staker_rewards_bps, protocol_treasury_bps,
	arbiter_rewards_bps, builder_rewards_bps, admin_fee_bps, gas_refund_bps,
	status, disputed_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get loads one escrow without locking it.
func (r *Repository) Get(ctx context.Context, policyID uint64) (*escrow.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE policy_id = $1`
	esc, err := scanEscrow(r.pool.QueryRow(ctx, query, int64(policyID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("settlement: get escrow %d: %w", policyID, err)
	}
	return esc, nil
}

// GetForUpdate loads one escrow inside tx, holding its row lock until the
// transaction ends. Every transition serializes on this lock, which is what
// keeps per-policy processing single-threaded.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, policyID uint64) (*escrow.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE policy_id = $1 FOR UPDATE`
	esc, err := scanEscrow(tx.QueryRow(ctx, query, int64(policyID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("settlement: lock escrow %d: %w", policyID, err)
	}
	return esc, nil
}

// InsertEscrow persists a freshly created escrow with its full immutable
// configuration.
func (r *Repository) InsertEscrow(ctx context.Context, tx pgx.Tx, esc *escrow.Escrow) error {
	const query = `
INSERT INTO escrows (policy_id, policy_owner, vault, oracle, admin,
	lp_rewards, staker_rewards, protocol_treasury, arbiter_rewards, builder_rewards, admin_fee, gas_wallet,
	coverage_amount, collateral_amount, created_at, expiry_at,
	product_type, asset_id, trigger_threshold, trigger_duration_seconds,
	user_bps, lp_rewards_bps, staker_rewards_bps, protocol_treasury_bps,
	arbiter_rewards_bps, builder_rewards_bps, admin_fee_bps, gas_refund_bps,
	status, disputed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
	$21,$22,$23,$24,$25,$26,$27,$28,$29,$30)
`
	_, err := tx.Exec(ctx, query,
		int64(esc.PolicyID), esc.PolicyOwner, esc.Vault, esc.Oracle, esc.Admin,
		esc.LPRewards, esc.StakerRewards, esc.ProtocolTreasury, esc.ArbiterRewards,
		esc.BuilderRewards, esc.AdminFee, esc.GasWallet,
		esc.CoverageAmount, esc.CollateralAmount, esc.CreatedAt, esc.ExpiryTimestamp,
		string(esc.ProductType), esc.AssetID, int32(esc.TriggerThreshold), int64(esc.TriggerDuration/time.Second),
		int16(esc.Shares.UserBps), int16(esc.Shares.LPRewardsBps), int16(esc.Shares.StakerRewardsBps),
		int16(esc.Shares.ProtocolTreasuryBps), int16(esc.Shares.ArbiterRewardsBps),
		int16(esc.Shares.BuilderRewardsBps), int16(esc.Shares.AdminFeeBps), int16(esc.Shares.GasRefundBps),
		string(esc.Status), esc.DisputedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("settlement: escrow %d already exists: %w", esc.PolicyID, err)
		}
		return fmt.Errorf("settlement: insert escrow %d: %w", esc.PolicyID, err)
	}
	return nil
}

// UpdateState persists the mutable escrow fields after a transition.
func (r *Repository) UpdateState(ctx context.Context, tx pgx.Tx, esc *escrow.Escrow) error {
	const query = `
UPDATE escrows
SET status = $2,
    collateral_amount = $3,
    disputed_at = $4,
    updated_at = now()
WHERE policy_id = $1
`
	tag, err := tx.Exec(ctx, query, int64(esc.PolicyID), string(esc.Status), esc.CollateralAmount, esc.DisputedAt)
	if err != nil {
		return fmt.Errorf("settlement: update escrow %d: %w", esc.PolicyID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendTimeline records one settlement event with the next per-policy
// sequence number. Callers hold the escrow row lock, so the seq subselect
// cannot race.
func (r *Repository) AppendTimeline(ctx context.Context, tx pgx.Tx, policyID uint64, eventType, caller string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("settlement: marshal timeline payload: %w", err)
	}
	const query = `
INSERT INTO timeline_events (policy_id, seq, type, caller, payload)
VALUES ($1, (SELECT COALESCE(MAX(seq), 0) + 1 FROM timeline_events WHERE policy_id = $1), $2, $3, $4)
`
	if _, err := tx.Exec(ctx, query, int64(policyID), eventType, caller, body); err != nil {
		return fmt.Errorf("settlement: insert timeline event: %w", err)
	}
	return nil
}

// EnqueueTransfer queues one outbound transfer for the dispatcher.
func (r *Repository) EnqueueTransfer(ctx context.Context, tx pgx.Tx, id string, policyID uint64, tr escrow.Transfer) error {
	const query = `
INSERT INTO transfer_outbox (id, policy_id, recipient, amount, kind, status)
VALUES ($1, $2, $3, $4, $5, 'pending')
`
	if _, err := tx.Exec(ctx, query, id, int64(policyID), tr.To, tr.Amount, string(tr.Kind)); err != nil {
		return fmt.Errorf("settlement: enqueue transfer: %w", err)
	}
	return nil
}

// InsertIdempotencyKey reserves the key inside the active transaction.
func (r *Repository) InsertIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) error {
	if key == "" {
		return fmt.Errorf("settlement: empty idempotency key")
	}
	if _, err := tx.Exec(ctx, `INSERT INTO idempotency_keys (key) VALUES ($1)`, key); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("settlement: insert idempotency key: %w", err)
	}
	return nil
}

// ListExpirable returns active policies whose expiry has passed, oldest
// first.
func (r *Repository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	const query = `
SELECT policy_id FROM escrows
WHERE status = 'active' AND expiry_at <= $1
ORDER BY expiry_at
LIMIT $2
`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("settlement: list expirable: %w", err)
	}
	defer rows.Close()

	out := make([]uint64, 0, limit)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("settlement: scan expirable: %w", err)
		}
		out = append(out, uint64(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("settlement: iterate expirable: %w", err)
	}
	return out, nil
}

// ListTriggerable returns active policies covering the given product, asset
// and threshold. Expiry is not filtered here: a policy stays claimable
// until something transitions it.
func (r *Repository) ListTriggerable(ctx context.Context, product escrow.ProductType, assetID string, threshold uint32) ([]uint64, error) {
	const query = `
SELECT policy_id FROM escrows
WHERE status = 'active' AND product_type = $1 AND asset_id = $2 AND trigger_threshold = $3
ORDER BY policy_id
`
	rows, err := r.pool.Query(ctx, query, string(product), assetID, int32(threshold))
	if err != nil {
		return nil, fmt.Errorf("settlement: list triggerable: %w", err)
	}
	defer rows.Close()

	var out []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("settlement: scan triggerable: %w", err)
		}
		out = append(out, uint64(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("settlement: iterate triggerable: %w", err)
	}
	return out, nil
}

// Timeline returns the full event history of one policy in sequence order.
func (r *Repository) Timeline(ctx context.Context, policyID uint64) ([]TimelineEvent, error) {
	const query = `
SELECT id, policy_id, seq, type, caller, payload, created_at
FROM timeline_events
WHERE policy_id = $1
ORDER BY seq
`
	rows, err := r.pool.Query(ctx, query, int64(policyID))
	if err != nil {
		return nil, fmt.Errorf("settlement: timeline: %w", err)
	}
	defer rows.Close()

	out := make([]TimelineEvent, 0, 8)
	for rows.Next() {
		var (
			ev       TimelineEvent
			policyID int64
		)
		if err := rows.Scan(&ev.ID, &policyID, &ev.Seq, &ev.Type, &ev.Caller, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("settlement: scan timeline: %w", err)
		}
		ev.PolicyID = uint64(policyID)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("settlement: iterate timeline: %w", err)
	}
	return out, nil
}

func scanEscrow(row pgx.Row) (*escrow.Escrow, error) {
	var (
		esc             escrow.Escrow
		policyID        int64
		productType     string
		threshold       int32
		durationSeconds int64
		shares          [8]int16
		status          string
	)
	err := row.Scan(
		&policyID, &esc.PolicyOwner, &esc.Vault, &esc.Oracle, &esc.Admin,
		&esc.LPRewards, &esc.StakerRewards, &esc.ProtocolTreasury, &esc.ArbiterRewards,
		&esc.BuilderRewards, &esc.AdminFee, &esc.GasWallet,
		&esc.CoverageAmount, &esc.CollateralAmount, &esc.CreatedAt, &esc.ExpiryTimestamp,
		&productType, &esc.AssetID, &threshold, &durationSeconds,
		&shares[0], &shares[1], &shares[2], &shares[3], &shares[4], &shares[5], &shares[6], &shares[7],
		&status, &esc.DisputedAt,
	)
	if err != nil {
		return nil, err
	}

	esc.PolicyID = uint64(policyID)
	esc.ProductType = escrow.ProductType(productType)
	esc.TriggerThreshold = uint32(threshold)
	esc.TriggerDuration = time.Duration(durationSeconds) * time.Second
	esc.Shares = escrow.Shares{
		UserBps:             uint16(shares[0]),
		LPRewardsBps:        uint16(shares[1]),
		StakerRewardsBps:    uint16(shares[2]),
		ProtocolTreasuryBps: uint16(shares[3]),
		ArbiterRewardsBps:   uint16(shares[4]),
		BuilderRewardsBps:   uint16(shares[5]),
		AdminFeeBps:         uint16(shares[6]),
		GasRefundBps:        uint16(shares[7]),
	}
	esc.Status = escrow.Status(status)
	return &esc, nil
}
