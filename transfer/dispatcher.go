package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"coverflow/settlement"
	"coverflow/telemetry"
)

// TxBeginner starts transactions for batch claims.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store abstracts outbox operations for the dispatcher.
type Store interface {
	ClaimBatch(ctx context.Context, tx pgx.Tx, limit int) ([]settlement.OutboxTransfer, error)
	MarkSent(ctx context.Context, tx pgx.Tx, id string) error
	MarkFailed(ctx context.Context, tx pgx.Tx, id string, maxAttempts int) (string, error)
	PendingCount(ctx context.Context) (int, error)
}

// Config bounds the dispatcher's polling behavior.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// Dispatcher drains the transfer outbox and hands each row to the sender.
// Delivery is detached from escrow state: a transfer that exhausts its
// attempt budget is parked as dead and never reopens the policy.
type Dispatcher struct {
	pool    TxBeginner
	store   Store
	sender  Sender
	log     zerolog.Logger
	metrics *telemetry.Metrics

	poll        time.Duration
	batch       int
	maxAttempts int
}

// NewDispatcher builds a dispatcher over the given outbox store and sender.
func NewDispatcher(pool TxBeginner, store Store, sender Sender, log zerolog.Logger, metrics *telemetry.Metrics, cfg Config) *Dispatcher {
	if metrics == nil {
		metrics = &telemetry.Metrics{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	return &Dispatcher{
		pool:        pool,
		store:       store,
		sender:      sender,
		log:         log,
		metrics:     metrics,
		poll:        cfg.PollInterval,
		batch:       cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
	}
}

// Run polls the outbox until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := d.DispatchOnce(ctx); err != nil {
				d.log.Error().Err(err).Msg("outbox dispatch failed")
			} else if n > 0 {
				d.log.Debug().Int("delivered", n).Msg("outbox batch dispatched")
			}
			if depth, err := d.store.PendingCount(ctx); err == nil {
				d.metrics.SetOutboxDepth(depth)
			}
		}
	}
}

// DispatchOnce claims one batch of pending transfers and attempts delivery
// for each. It returns the number of transfers marked sent.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("transfer: begin dispatch tx: %w", err)
	}
	defer tx.Rollback(ctx)

	items, err := d.store.ClaimBatch(ctx, tx, d.batch)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	sent := 0
	for _, item := range items {
		if err := d.sender.Send(ctx, item); err != nil {
			status, markErr := d.store.MarkFailed(ctx, tx, item.ID, d.maxAttempts)
			if markErr != nil {
				return sent, markErr
			}
			if status == settlement.OutboxDead {
				d.metrics.RecordTransferDispatch(string(item.Kind), "dead")
				d.log.Error().Err(err).
					Str("transfer_id", item.ID).
					Uint64("policy_id", item.PolicyID).
					Int("attempts", item.Attempts+1).
					Msg("transfer parked as dead")
			} else {
				d.metrics.RecordTransferDispatch(string(item.Kind), "retry")
				d.log.Warn().Err(err).
					Str("transfer_id", item.ID).
					Uint64("policy_id", item.PolicyID).
					Msg("transfer delivery failed, will retry")
			}
			continue
		}

		if err := d.store.MarkSent(ctx, tx, item.ID); err != nil {
			return sent, err
		}
		d.metrics.RecordTransferDispatch(string(item.Kind), "sent")
		sent++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("transfer: commit dispatch tx: %w", err)
	}
	return sent, nil
}
