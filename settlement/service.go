package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"coverflow/escrow"
	"coverflow/telemetry"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the data access required by the service.
type Store interface {
	Get(ctx context.Context, policyID uint64) (*escrow.Escrow, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, policyID uint64) (*escrow.Escrow, error)
	UpdateState(ctx context.Context, tx pgx.Tx, esc *escrow.Escrow) error
	AppendTimeline(ctx context.Context, tx pgx.Tx, policyID uint64, eventType, caller string, payload map[string]any) error
	EnqueueTransfer(ctx context.Context, tx pgx.Tx, id string, policyID uint64, tr escrow.Transfer) error
	InsertIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) error
	Timeline(ctx context.Context, policyID uint64) ([]TimelineEvent, error)
}

// Notifier announces settled escrows after commit. Delivery is best effort:
// failures must be absorbed by the implementation, never surfaced here.
type Notifier interface {
	EscrowSettled(ctx context.Context, esc *escrow.Escrow, op escrow.Op)
}

// Service drives escrow transitions as single atomic steps: lock the row,
// run the pure state machine, persist the outcome together with its
// timeline event and outbound transfers, commit. A guard failure rolls the
// whole message back.
type Service struct {
	pool     TxBeginner
	repo     Store
	notifier Notifier
	log      zerolog.Logger
	metrics  *telemetry.Metrics

	now   func() time.Time
	newID func() string
}

func NewService(pool TxBeginner, repo Store, notifier Notifier, log zerolog.Logger, metrics *telemetry.Metrics) *Service {
	if metrics == nil {
		metrics = &telemetry.Metrics{}
	}
	return &Service{
		pool:     pool,
		repo:     repo,
		notifier: notifier,
		log:      log,
		metrics:  metrics,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

type transition struct {
	op             escrow.Op
	caller         string
	idempotencyKey string
	payload        map[string]any
	run            func(esc *escrow.Escrow) ([]escrow.Transfer, error)
}

func (s *Service) apply(ctx context.Context, policyID uint64, tr transition) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("settlement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if tr.idempotencyKey != "" {
		if err := s.repo.InsertIdempotencyKey(ctx, tx, tr.idempotencyKey); err != nil {
			if errors.Is(err, ErrDuplicateIdempotencyKey) {
				s.log.Debug().Uint64("policy_id", policyID).Str("operation", string(tr.op)).
					Str("idempotency_key", tr.idempotencyKey).Msg("duplicate submission swallowed")
				return nil
			}
			return err
		}
	}

	esc, err := s.repo.GetForUpdate(ctx, tx, policyID)
	if err != nil {
		return err
	}

	transfers, err := tr.run(esc)
	if err != nil {
		s.metrics.RecordTransition(string(tr.op), "rejected")
		return err
	}

	if err := s.repo.UpdateState(ctx, tx, esc); err != nil {
		return err
	}
	if err := s.repo.AppendTimeline(ctx, tx, policyID, string(tr.op), tr.caller, tr.payload); err != nil {
		return err
	}
	for _, t := range transfers {
		if err := s.repo.EnqueueTransfer(ctx, tx, s.newID(), policyID, t); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("settlement: commit %s: %w", tr.op, err)
	}

	s.metrics.RecordTransition(string(tr.op), "applied")
	s.log.Info().Uint64("policy_id", policyID).Str("operation", string(tr.op)).
		Str("status", string(esc.Status)).Int("transfers", len(transfers)).
		Msg("transition applied")

	if s.notifier != nil && esc.Status.Terminal() {
		s.notifier.EscrowSettled(ctx, esc, tr.op)
	}
	return nil
}

// Initialize records the vault's collateral deposit against a pending
// policy.
func (s *Service) Initialize(ctx context.Context, policyID uint64, caller string, attached int64) error {
	payload := map[string]any{"attached": attached}
	return s.apply(ctx, policyID, transition{
		op:      escrow.OpInitialize,
		caller:  caller,
		payload: payload,
		run: func(esc *escrow.Escrow) ([]escrow.Transfer, error) {
			if err := esc.Initialize(caller, attached); err != nil {
				return nil, err
			}
			payload["collateral"] = esc.CollateralAmount
			return nil, nil
		},
	})
}

// TriggerClaim settles a policy on oracle proof. Duplicate submissions
// carrying the same idempotency key are swallowed without re-execution.
func (s *Service) TriggerClaim(ctx context.Context, policyID uint64, caller string, proof escrow.TriggerProof, idempotencyKey string) error {
	payload := map[string]any{
		"proof_timestamp": proof.Timestamp.UTC(),
		"product_type":    string(proof.ProductType),
		"asset_id":        proof.AssetID,
	}
	return s.apply(ctx, policyID, transition{
		op:             escrow.OpTriggerClaim,
		caller:         caller,
		idempotencyKey: idempotencyKey,
		payload:        payload,
		run: func(esc *escrow.Escrow) ([]escrow.Transfer, error) {
			transfers, err := esc.TriggerClaim(caller, proof)
			if err != nil {
				return nil, err
			}
			var total int64
			for _, t := range transfers {
				total += t.Amount
			}
			payload["payout_total"] = total
			return transfers, nil
		},
	})
}

// HandleExpiry refunds the vault once a policy's term has lapsed.
func (s *Service) HandleExpiry(ctx context.Context, policyID uint64, caller string) error {
	payload := map[string]any{}
	return s.apply(ctx, policyID, transition{
		op:      escrow.OpHandleExpiry,
		caller:  caller,
		payload: payload,
		run: func(esc *escrow.Escrow) ([]escrow.Transfer, error) {
			transfers, err := esc.HandleExpiry(caller, s.now())
			if err != nil {
				return nil, err
			}
			payload["refund"] = esc.CollateralAmount
			return transfers, nil
		},
	})
}

// FreezeDispute parks an active policy for admin review.
func (s *Service) FreezeDispute(ctx context.Context, policyID uint64, caller string) error {
	payload := map[string]any{}
	return s.apply(ctx, policyID, transition{
		op:      escrow.OpFreezeDispute,
		caller:  caller,
		payload: payload,
		run: func(esc *escrow.Escrow) ([]escrow.Transfer, error) {
			if err := esc.FreezeDispute(caller, s.now()); err != nil {
				return nil, err
			}
			payload["disputed_at"] = esc.DisputedAt.UTC()
			return nil, nil
		},
	})
}

// ResolveDispute closes a disputed policy with the chosen outcome.
func (s *Service) ResolveDispute(ctx context.Context, policyID uint64, caller string, outcome escrow.Outcome) error {
	return s.apply(ctx, policyID, transition{
		op:      escrow.OpResolveDispute,
		caller:  caller,
		payload: map[string]any{"outcome": string(outcome)},
		run: func(esc *escrow.Escrow) ([]escrow.Transfer, error) {
			return esc.ResolveDispute(caller, outcome)
		},
	})
}

// EmergencyWithdraw cancels a policy stuck in dispute past the emergency
// window.
func (s *Service) EmergencyWithdraw(ctx context.Context, policyID uint64, caller string) error {
	return s.apply(ctx, policyID, transition{
		op:      escrow.OpEmergencyWithdraw,
		caller:  caller,
		payload: map[string]any{},
		run: func(esc *escrow.Escrow) ([]escrow.Transfer, error) {
			return esc.EmergencyWithdraw(caller, s.now())
		},
	})
}

// Snapshot returns the current escrow state without locking it.
func (s *Service) Snapshot(ctx context.Context, policyID uint64) (*escrow.Escrow, error) {
	return s.repo.Get(ctx, policyID)
}

// TimeRemaining reports how long until the policy expires.
func (s *Service) TimeRemaining(ctx context.Context, policyID uint64) (time.Duration, error) {
	esc, err := s.repo.Get(ctx, policyID)
	if err != nil {
		return 0, err
	}
	return esc.TimeRemaining(s.now()), nil
}

// Preview recomputes the distribution the escrow would pay out, for
// off-chain verification against the published configuration.
func (s *Service) Preview(ctx context.Context, policyID uint64) (escrow.Amounts, error) {
	esc, err := s.repo.Get(ctx, policyID)
	if err != nil {
		return escrow.Amounts{}, err
	}
	return esc.DistributionPreview(), nil
}

// Timeline returns the policy's settlement history.
func (s *Service) Timeline(ctx context.Context, policyID uint64) ([]TimelineEvent, error) {
	return s.repo.Timeline(ctx, policyID)
}
