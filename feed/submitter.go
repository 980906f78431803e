package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"coverflow/escrow"
)

// Triggerer submits trigger claims against the settlement service.
type Triggerer interface {
	TriggerClaim(ctx context.Context, policyID uint64, caller string, proof escrow.TriggerProof, idempotencyKey string) error
}

// TriggerableLister lists active policies matching a trigger's terms.
type TriggerableLister interface {
	ListTriggerable(ctx context.Context, product escrow.ProductType, assetID string, threshold uint32) ([]uint64, error)
}

// Submitter turns depeg events into trigger claims for every eligible
// policy. The idempotency key is derived from the policy and the breach
// window, so the same window never pays a policy twice no matter how often
// the watcher re-observes it.
type Submitter struct {
	svc    Triggerer
	lister TriggerableLister
	caller string
	log    zerolog.Logger
}

// NewSubmitter builds a submitter acting as the given oracle address.
func NewSubmitter(svc Triggerer, lister TriggerableLister, caller string, log zerolog.Logger) *Submitter {
	return &Submitter{svc: svc, lister: lister, caller: caller, log: log}
}

// Run consumes events until ctx is cancelled.
func (s *Submitter) Run(ctx context.Context, events <-chan DepegEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			s.Submit(ctx, event)
		}
	}
}

// Submit files a claim for every policy covered by the event. It returns
// the number of policies settled.
func (s *Submitter) Submit(ctx context.Context, event DepegEvent) int {
	ids, err := s.lister.ListTriggerable(ctx, escrow.ProductDepeg, event.AssetID, event.Threshold)
	if err != nil {
		s.log.Error().Err(err).Str("asset", event.AssetID).Msg("list triggerable policies failed")
		return 0
	}

	settled := 0
	for _, id := range ids {
		proof := escrow.TriggerProof{
			PolicyID:         id,
			Timestamp:        event.WindowStart,
			ProductType:      escrow.ProductDepeg,
			AssetID:          event.AssetID,
			TriggerThreshold: event.Threshold,
		}
		key := fmt.Sprintf("trigger:%d:%d", id, event.WindowStart.Unix())

		err := s.svc.TriggerClaim(ctx, id, s.caller, proof, key)
		switch {
		case err == nil:
			settled++
		case errors.Is(err, escrow.ErrInvalidState):
			// already settled by a racing caller; nothing to do
		default:
			s.log.Error().Err(err).Uint64("policy_id", id).Msg("trigger claim failed")
		}
	}

	if settled > 0 {
		s.log.Info().
			Str("asset", event.AssetID).
			Int("settled", settled).
			Int("eligible", len(ids)).
			Msg("depeg claims submitted")
	}
	return settled
}
