package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"coverflow/escrow"
	"coverflow/registry"
	"coverflow/settlement"
)

// TxBeginner starts transactions for policy minting.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store abstracts policy persistence for the service.
type Store interface {
	NextID(ctx context.Context, tx pgx.Tx) (uint64, error)
	Insert(ctx context.Context, tx pgx.Tx, p Policy) error
	GetByID(ctx context.Context, id uint64) (Policy, error)
	ListByOwner(ctx context.Context, owner string, limit int) ([]Policy, error)
}

// EscrowStore abstracts the settlement-side writes done at mint time.
type EscrowStore interface {
	InsertEscrow(ctx context.Context, tx pgx.Tx, esc *escrow.Escrow) error
	AppendTimeline(ctx context.Context, tx pgx.Tx, policyID uint64, eventType, caller string, payload map[string]any) error
}

// Service quotes and mints parametric coverage.
type Service struct {
	pool     TxBeginner
	repo     Store
	escrows  EscrowStore
	children registry.ChildRegistry
	addrs    Addresses
	log      zerolog.Logger

	now func() time.Time
}

// NewService builds a Service over the given stores and routing registry.
func NewService(pool TxBeginner, repo Store, escrows EscrowStore, children registry.ChildRegistry, addrs Addresses, log zerolog.Logger) *Service {
	return &Service{
		pool:     pool,
		repo:     repo,
		escrows:  escrows,
		children: children,
		addrs:    addrs,
		log:      log,
		now:      time.Now,
	}
}

// Quote prices coverage without minting. The asset must be routable so
// buyers cannot hold quotes for products the platform does not settle.
func (s *Service) Quote(ctx context.Context, product escrow.ProductType, assetID string, coverage int64, term time.Duration) (QuoteResult, error) {
	spec, err := ProductFor(product)
	if err != nil {
		return QuoteResult{}, err
	}
	if _, err := s.children.Resolve(ctx, product, assetID); err != nil {
		return QuoteResult{}, err
	}
	premium, err := Premium(product, coverage, term)
	if err != nil {
		return QuoteResult{}, err
	}

	return QuoteResult{
		ProductType:      product,
		AssetID:          assetID,
		CoverageAmount:   coverage,
		Term:             term,
		Premium:          premium,
		RateBps:          spec.RateBps,
		TriggerThreshold: spec.TriggerThreshold,
		TriggerDuration:  spec.TriggerDuration,
	}, nil
}

// Create mints a policy: it allocates the next id, persists the Pending
// escrow and the coverage record in one transaction, and returns the record.
// The escrow stays Pending until the vault attaches collateral.
func (s *Service) Create(ctx context.Context, params CreateParams) (Policy, error) {
	if params.Owner == "" {
		return Policy{}, fmt.Errorf("policy: owner required: %w", escrow.ErrInvalidConfiguration)
	}

	spec, err := ProductFor(params.ProductType)
	if err != nil {
		return Policy{}, err
	}
	child, err := s.children.Resolve(ctx, params.ProductType, params.AssetID)
	if err != nil {
		return Policy{}, err
	}
	premium, err := Premium(params.ProductType, params.CoverageAmount, params.Term)
	if err != nil {
		return Policy{}, err
	}

	now := s.now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Policy{}, fmt.Errorf("policy: begin mint tx: %w", err)
	}
	defer tx.Rollback(ctx)

	id, err := s.repo.NextID(ctx, tx)
	if err != nil {
		return Policy{}, err
	}

	esc, err := escrow.New(escrow.Config{
		PolicyID:         id,
		PolicyOwner:      params.Owner,
		Vault:            s.addrs.Vault,
		Oracle:           s.addrs.Oracle,
		Admin:            s.addrs.Admin,
		LPRewards:        s.addrs.LPRewards,
		StakerRewards:    s.addrs.StakerRewards,
		ProtocolTreasury: s.addrs.ProtocolTreasury,
		ArbiterRewards:   s.addrs.ArbiterRewards,
		BuilderRewards:   s.addrs.BuilderRewards,
		AdminFee:         s.addrs.AdminFee,
		GasWallet:        s.addrs.GasWallet,
		CoverageAmount:   params.CoverageAmount,
		CreatedAt:        now,
		ExpiryTimestamp:  now.Add(params.Term),
		ProductType:      params.ProductType,
		AssetID:          params.AssetID,
		TriggerThreshold: spec.TriggerThreshold,
		TriggerDuration:  spec.TriggerDuration,
		Shares:           escrow.DefaultShares,
	})
	if err != nil {
		return Policy{}, err
	}
	if err := s.escrows.InsertEscrow(ctx, tx, esc); err != nil {
		return Policy{}, err
	}

	p := Policy{
		ID:             id,
		Owner:          params.Owner,
		ProductType:    params.ProductType,
		AssetID:        params.AssetID,
		ChildAddress:   child.Address,
		CoverageAmount: params.CoverageAmount,
		Premium:        premium,
		CreatedAt:      now,
		ExpiresAt:      now.Add(params.Term),
	}
	if err := s.repo.Insert(ctx, tx, p); err != nil {
		return Policy{}, err
	}

	if err := s.escrows.AppendTimeline(ctx, tx, id, settlement.EventEscrowCreated, params.Owner, map[string]any{
		"owner":    params.Owner,
		"coverage": params.CoverageAmount,
		"premium":  premium,
		"child":    child.Address,
	}); err != nil {
		return Policy{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Policy{}, fmt.Errorf("policy: commit mint tx: %w", err)
	}

	s.log.Info().
		Uint64("policy_id", id).
		Str("product", string(params.ProductType)).
		Str("asset", params.AssetID).
		Int64("coverage", params.CoverageAmount).
		Int64("premium", premium).
		Msg("policy minted")

	return p, nil
}

// Get returns one minted policy.
func (s *Service) Get(ctx context.Context, id uint64) (Policy, error) {
	return s.repo.GetByID(ctx, id)
}

// ListByOwner returns the owner's policies, newest first.
func (s *Service) ListByOwner(ctx context.Context, owner string, limit int) ([]Policy, error) {
	return s.repo.ListByOwner(ctx, owner, limit)
}
