package actors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"coverflow/escrow"
	"coverflow/policy"
	"coverflow/settlement"
)

// transient reports whether an error is expected under stress: another
// actor won the row first, a guard legitimately rejected the attempt, or
// chaos killed the connection out from under us. Anything else is a real
// failure and aborts the run.
func transient(err error) bool {
	if errors.Is(err, escrow.ErrInvalidState) ||
		errors.Is(err, escrow.ErrAlreadyInitialized) ||
		errors.Is(err, escrow.ErrNotExpired) ||
		errors.Is(err, escrow.ErrInsufficientCollateral) ||
		errors.Is(err, settlement.ErrNotFound) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 57P01 admin shutdown, 08xxx connection exceptions
		return pgErr.Code == "57P01" || strings.HasPrefix(pgErr.Code, "08")
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		strings.Contains(err.Error(), "conn closed")
}

func pickIDs(ctx context.Context, pool *pgxpool.Pool, status string, limit int) []uint64 {
	rows, err := pool.Query(ctx, `SELECT policy_id FROM escrows WHERE status = $1 ORDER BY random() LIMIT $2`, status, limit)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var out []uint64
	for rows.Next() {
		var id int64
		if rows.Scan(&id) == nil {
			out = append(out, uint64(id))
		}
	}
	return out
}

// Minter buys coverage in a loop, producing a steady stream of pending
// escrows for the other actors to fight over.
func Minter(ctx context.Context, svc *policy.Service, owner string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := svc.Create(ctx, policy.CreateParams{
			Owner:          owner,
			ProductType:    escrow.ProductDepeg,
			AssetID:        "USDT",
			CoverageAmount: (1 + rand.Int63n(100)) * 1_000_000_000,
			Term:           time.Duration(1+rand.Intn(30)) * 24 * time.Hour,
		})
		if err != nil && !transient(err) && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("minter create: %w", err)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Initializer plays the vault: it funds pending escrows with random
// collateral. Competing initializers lose on the already-initialized guard.
func Initializer(ctx context.Context, pool *pgxpool.Pool, svc *settlement.Service, vault string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		for _, id := range pickIDs(ctx, pool, "pending", 5) {
			attached := escrow.OperationalReserve + 1 + rand.Int63n(10_000_000_000)
			if err := svc.Initialize(ctx, id, vault, attached); err != nil && !transient(err) && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("initializer %d: %w", id, err)
			}
		}
		time.Sleep(time.Duration(15+rand.Intn(30)) * time.Millisecond)
	}
}

// Triggerer plays the oracle: it claims random active policies, always
// under the same per-policy idempotency key so replays and races collapse
// into a single payout.
func Triggerer(ctx context.Context, pool *pgxpool.Pool, svc *settlement.Service, oracle string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		rows, err := pool.Query(ctx, `SELECT policy_id, product_type, asset_id, trigger_threshold
			FROM escrows WHERE status = 'active' ORDER BY random() LIMIT 5`)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			continue
		}
		type target struct {
			id        int64
			product   string
			asset     string
			threshold int32
		}
		var targets []target
		for rows.Next() {
			var tg target
			if rows.Scan(&tg.id, &tg.product, &tg.asset, &tg.threshold) == nil {
				targets = append(targets, tg)
			}
		}
		rows.Close()

		for _, tg := range targets {
			proof := escrow.TriggerProof{
				PolicyID:         uint64(tg.id),
				Timestamp:        time.Now().UTC(),
				ProductType:      escrow.ProductType(tg.product),
				AssetID:          tg.asset,
				TriggerThreshold: uint32(tg.threshold),
			}
			key := fmt.Sprintf("stress-trigger:%d", tg.id)
			if err := svc.TriggerClaim(ctx, uint64(tg.id), oracle, proof, key); err != nil && !transient(err) && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("triggerer %d: %w", tg.id, err)
			}
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// Disputer plays the admin: it freezes random active escrows. Frozen ones
// it either resolves with a random outcome or drains via emergency
// withdrawal.
func Disputer(ctx context.Context, pool *pgxpool.Pool, svc *settlement.Service, admin string, stop <-chan struct{}) error {
	outcomes := []escrow.Outcome{escrow.OutcomeRefundVault, escrow.OutcomePayUser, escrow.OutcomeSplit}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		for _, id := range pickIDs(ctx, pool, "active", 2) {
			if err := svc.FreezeDispute(ctx, id, admin); err != nil && !transient(err) && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("disputer freeze %d: %w", id, err)
			}
		}
		for _, id := range pickIDs(ctx, pool, "disputed", 2) {
			var err error
			if rand.Intn(4) == 0 {
				err = svc.EmergencyWithdraw(ctx, id, admin)
			} else {
				err = svc.ResolveDispute(ctx, id, admin, outcomes[rand.Intn(len(outcomes))])
			}
			if err != nil && !transient(err) && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("disputer resolve %d: %w", id, err)
			}
		}
		time.Sleep(time.Duration(60+rand.Intn(80)) * time.Millisecond)
	}
}

// Ager backdates random active escrows so expiry races the trigger path
// within the run window, and ages disputes past the emergency window so
// withdrawals can succeed.
func Ager(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, _ = pool.Exec(ctx, `UPDATE escrows SET expiry_at = now() - interval '1 second'
			WHERE policy_id IN (SELECT policy_id FROM escrows WHERE status = 'active' ORDER BY random() LIMIT 3)`)
		_, _ = pool.Exec(ctx, `UPDATE escrows SET disputed_at = now() - interval '31 days'
			WHERE policy_id IN (SELECT policy_id FROM escrows WHERE status = 'disputed' ORDER BY random() LIMIT 1)`)
		time.Sleep(time.Duration(100+rand.Intn(100)) * time.Millisecond)
	}
}

// Expirer runs the real sweeper in a tight loop instead of waiting for its
// cron schedule.
func Expirer(ctx context.Context, sweeper *settlement.Sweeper, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		sweeper.Sweep(ctx)
		time.Sleep(time.Duration(80+rand.Intn(80)) * time.Millisecond)
	}
}
