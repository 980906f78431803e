package escrow

import (
	"fmt"
	"time"
)

// ProductType identifies the parametric trigger family a policy covers.
type ProductType string

const (
	ProductDepeg        ProductType = "depeg"
	ProductExploit      ProductType = "exploit"
	ProductOracleOutage ProductType = "oracle_outage"
	ProductBridge       ProductType = "bridge"
)

// Config is the immutable per-policy configuration fixed at creation.
type Config struct {
	PolicyID    uint64
	PolicyOwner string

	Vault  string
	Oracle string
	Admin  string

	LPRewards        string
	StakerRewards    string
	ProtocolTreasury string
	ArbiterRewards   string
	BuilderRewards   string
	AdminFee         string
	GasWallet        string

	CoverageAmount int64

	CreatedAt       time.Time
	ExpiryTimestamp time.Time

	ProductType      ProductType
	AssetID          string
	TriggerThreshold uint32
	TriggerDuration  time.Duration

	Shares Shares
}

// Validate enforces the creation-time invariants. Every field here is
// immutable afterwards, so a Config that passes once stays valid for the
// life of the policy.
func (c Config) Validate() error {
	if c.PolicyID == 0 {
		return fmt.Errorf("escrow: policy id is zero: %w", ErrInvalidConfiguration)
	}
	parties := []struct {
		name string
		addr string
	}{
		{"policy owner", c.PolicyOwner},
		{"vault", c.Vault},
		{"oracle", c.Oracle},
		{"admin", c.Admin},
		{"lp rewards", c.LPRewards},
		{"staker rewards", c.StakerRewards},
		{"protocol treasury", c.ProtocolTreasury},
		{"arbiter rewards", c.ArbiterRewards},
		{"builder rewards", c.BuilderRewards},
		{"admin fee", c.AdminFee},
		{"gas wallet", c.GasWallet},
	}
	for _, p := range parties {
		if p.addr == "" {
			return fmt.Errorf("escrow: %s address is empty: %w", p.name, ErrInvalidConfiguration)
		}
	}
	if c.CoverageAmount <= 0 {
		return fmt.Errorf("escrow: coverage amount %d: %w", c.CoverageAmount, ErrInvalidConfiguration)
	}
	if !c.ExpiryTimestamp.After(c.CreatedAt) {
		return fmt.Errorf("escrow: expiry %s not after creation %s: %w",
			c.ExpiryTimestamp.UTC().Format(time.RFC3339), c.CreatedAt.UTC().Format(time.RFC3339), ErrInvalidConfiguration)
	}
	if c.AssetID == "" {
		return fmt.Errorf("escrow: asset id is empty: %w", ErrInvalidConfiguration)
	}
	if c.ProductType == "" {
		return fmt.Errorf("escrow: product type is empty: %w", ErrInvalidConfiguration)
	}
	if sum := c.Shares.Sum(); sum != TotalBps {
		return fmt.Errorf("escrow: shares sum to %d, want %d: %w", sum, TotalBps, ErrInvalidConfiguration)
	}
	return nil
}

// TriggerProof is the oracle-supplied evidence that the covered condition
// occurred. It is matched structurally against the escrow configuration;
// oracle identity is the trust anchor beyond that.
type TriggerProof struct {
	PolicyID         uint64
	Timestamp        time.Time
	ProductType      ProductType
	AssetID          string
	TriggerThreshold uint32
}

// TransferKind labels the destination class of an outbound transfer.
type TransferKind string

const (
	TransferUserPayout       TransferKind = "user_payout"
	TransferLPRewards        TransferKind = "lp_rewards"
	TransferStakerRewards    TransferKind = "staker_rewards"
	TransferProtocolTreasury TransferKind = "protocol_treasury"
	TransferArbiterRewards   TransferKind = "arbiter_rewards"
	TransferBuilderRewards   TransferKind = "builder_rewards"
	TransferAdminFee         TransferKind = "admin_fee"
	TransferGasRefund        TransferKind = "gas_refund"
	TransferVaultRefund      TransferKind = "vault_refund"
)

// Transfer is one outbound value movement produced by a transition. It is
// emitted atomically with the status change and delivered afterwards;
// delivery failure never reopens the escrow.
type Transfer struct {
	To     string
	Amount int64
	Kind   TransferKind
}

// Escrow is the per-policy settlement instance: the immutable configuration
// plus the only mutable fields, status and collateral. Instances are never
// shared across policies.
type Escrow struct {
	Config

	Status           Status
	CollateralAmount int64
	DisputedAt       *time.Time
}

// New builds a Pending escrow after validating the configuration.
func New(cfg Config) (*Escrow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Escrow{Config: cfg, Status: StatusPending}, nil
}

// TimeRemaining reports how long until expiry, zero once the expiry
// timestamp has passed.
func (e *Escrow) TimeRemaining(now time.Time) time.Duration {
	if !now.Before(e.ExpiryTimestamp) {
		return 0
	}
	return e.ExpiryTimestamp.Sub(now)
}

// DistributionPreview computes the per-class amounts a trigger would pay
// out: over the attached collateral once initialized, otherwise over the
// covered amount.
func (e *Escrow) DistributionPreview() Amounts {
	base := e.CollateralAmount
	if base == 0 {
		base = e.CoverageAmount
	}
	return Distribute(base, e.Shares)
}
