package relay

import "time"

// Sponsor is the domain representation of a gas-sponsorship account.
// It mirrors the relay_sponsors table and carries no JSON annotations so it
// can be reused by different presentation layers.
type Sponsor struct {
	ID         string
	Name       string
	Wallet     string
	SecretHash string
	NextNonce  uint64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RegisterRequest contains sponsor registration data supplied by callers.
type RegisterRequest struct {
	Name   string `json:"name"`
	Wallet string `json:"wallet"`
	Secret string `json:"secret"`
}

// LoginRequest contains sponsor login credentials.
type LoginRequest struct {
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

// Funding is one sponsored meta-transaction grant. The (sponsor, nonce)
// pair is unique, which is what makes replayed requests visible.
type Funding struct {
	ID        string
	SponsorID string
	Nonce     uint64
	Recipient string
	Amount    int64
	CreatedAt time.Time
}

// FundRequest contains the fields of a funding grant.
type FundRequest struct {
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
}
