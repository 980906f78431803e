package policy

import (
	"time"

	"coverflow/escrow"
)

// Policy is the minted coverage record backing one escrow.
type Policy struct {
	ID             uint64
	Owner          string
	ProductType    escrow.ProductType
	AssetID        string
	ChildAddress   string
	CoverageAmount int64
	Premium        int64
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// CreateParams enumerates the buyer-supplied fields for minting coverage.
type CreateParams struct {
	Owner          string
	ProductType    escrow.ProductType
	AssetID        string
	CoverageAmount int64
	Term           time.Duration
}

// QuoteResult is the priced offer returned before purchase.
type QuoteResult struct {
	ProductType      escrow.ProductType
	AssetID          string
	CoverageAmount   int64
	Term             time.Duration
	Premium          int64
	RateBps          uint16
	TriggerThreshold uint32
	TriggerDuration  time.Duration
}

// Addresses lists the platform wallets written into every escrow
// configuration at mint time.
type Addresses struct {
	Vault            string
	Oracle           string
	Admin            string
	LPRewards        string
	StakerRewards    string
	ProtocolTreasury string
	ArbiterRewards   string
	BuilderRewards   string
	AdminFee         string
	GasWallet        string
}
