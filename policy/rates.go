package policy

import (
	"errors"
	"time"

	"coverflow/escrow"
)

var (
	// ErrUnknownProduct signals the product line is not underwritten.
	ErrUnknownProduct = errors.New("policy: unknown product")
	// ErrCoverageOutOfRange signals coverage outside the underwriting band.
	ErrCoverageOutOfRange = errors.New("policy: coverage out of range")
	// ErrTermOutOfRange signals a term shorter than a day or longer than a year.
	ErrTermOutOfRange = errors.New("policy: term out of range")
)

// Underwriting bounds, in nanoton.
const (
	MinCoverage int64 = 1_000_000_000         // 1 TON
	MaxCoverage int64 = 1_000_000_000_000_000 // 1M TON
)

const (
	MinTerm = 24 * time.Hour
	MaxTerm = 365 * 24 * time.Hour
)

// ProductSpec fixes the flat underwriting terms for one product line.
// RateBps prices a 30-day term in basis points of coverage.
type ProductSpec struct {
	RateBps          uint16
	TriggerThreshold uint32
	TriggerDuration  time.Duration
}

// catalog holds the flat per-product rate table. Thresholds are interpreted
// per product line: price floor in bps of peg for depeg, TVL drop in bps for
// exploit, heartbeat gap in seconds for oracle outage, halted minutes for
// bridge.
var catalog = map[escrow.ProductType]ProductSpec{
	escrow.ProductDepeg:        {RateBps: 80, TriggerThreshold: 9_500, TriggerDuration: 5 * time.Minute},
	escrow.ProductExploit:      {RateBps: 150, TriggerThreshold: 2_000, TriggerDuration: 10 * time.Minute},
	escrow.ProductOracleOutage: {RateBps: 60, TriggerThreshold: 3_600, TriggerDuration: 30 * time.Minute},
	escrow.ProductBridge:       {RateBps: 200, TriggerThreshold: 60, TriggerDuration: 15 * time.Minute},
}

// ProductFor returns the underwriting terms for a product line.
func ProductFor(product escrow.ProductType) (ProductSpec, error) {
	spec, ok := catalog[product]
	if !ok {
		return ProductSpec{}, ErrUnknownProduct
	}
	return spec, nil
}

// Products lists the underwritten product lines.
func Products() []escrow.ProductType {
	return []escrow.ProductType{
		escrow.ProductDepeg,
		escrow.ProductExploit,
		escrow.ProductOracleOutage,
		escrow.ProductBridge,
	}
}

// Premium prices coverage over a term. The 30-day rate is scaled linearly
// by whole days, rounding the term up, all in exact integer arithmetic.
func Premium(product escrow.ProductType, coverage int64, term time.Duration) (int64, error) {
	spec, err := ProductFor(product)
	if err != nil {
		return 0, err
	}
	if coverage < MinCoverage || coverage > MaxCoverage {
		return 0, ErrCoverageOutOfRange
	}
	if term < MinTerm || term > MaxTerm {
		return 0, ErrTermOutOfRange
	}

	days := int64((term + 24*time.Hour - 1) / (24 * time.Hour))
	per30 := coverage / escrow.TotalBps * int64(spec.RateBps)
	per30 += coverage % escrow.TotalBps * int64(spec.RateBps) / escrow.TotalBps
	return per30 * days / 30, nil
}
