package escrow

import (
	"fmt"
	"time"
)

const (
	// OperationalReserve is held back from the attached value when collateral
	// is recorded, covering forward fees on later settlement messages.
	OperationalReserve int64 = 50_000_000

	// DisputeEmergencyWindow is how long an escrow must sit disputed before
	// the admin may cancel it and recover the collateral.
	DisputeEmergencyWindow = 30 * 24 * time.Hour
)

// Initialize records the vault's attached collateral and activates the
// escrow. The operational reserve is deducted first. Re-initialization is
// rejected whatever the current status.
func (e *Escrow) Initialize(caller string, attached int64) error {
	if err := e.authorize(OpInitialize, caller); err != nil {
		return err
	}
	if e.Status != StatusPending {
		return fmt.Errorf("escrow: policy %d is %s: %w", e.PolicyID, e.Status, ErrAlreadyInitialized)
	}
	if attached <= OperationalReserve {
		return fmt.Errorf("escrow: attached %d, reserve %d: %w", attached, OperationalReserve, ErrInsufficientCollateral)
	}
	e.CollateralAmount = attached - OperationalReserve
	e.Status = StatusActive
	return nil
}

// TriggerClaim settles an active escrow on oracle-submitted proof of the
// covered condition, splitting the collateral across the eight payout
// classes. Classes whose computed amount is zero emit no transfer.
func (e *Escrow) TriggerClaim(caller string, proof TriggerProof) ([]Transfer, error) {
	if err := e.authorize(OpTriggerClaim, caller); err != nil {
		return nil, err
	}
	if err := e.requireStatus(OpTriggerClaim, StatusActive); err != nil {
		return nil, err
	}
	if err := e.matchProof(proof); err != nil {
		return nil, err
	}

	amts := Distribute(e.CollateralAmount, e.Shares)
	var out []Transfer
	out = appendTransfer(out, e.PolicyOwner, amts.User, TransferUserPayout)
	out = appendTransfer(out, e.LPRewards, amts.LPRewards, TransferLPRewards)
	out = appendTransfer(out, e.StakerRewards, amts.StakerRewards, TransferStakerRewards)
	out = appendTransfer(out, e.ProtocolTreasury, amts.ProtocolTreasury, TransferProtocolTreasury)
	out = appendTransfer(out, e.ArbiterRewards, amts.ArbiterRewards, TransferArbiterRewards)
	out = appendTransfer(out, e.BuilderRewards, amts.BuilderRewards, TransferBuilderRewards)
	out = appendTransfer(out, e.AdminFee, amts.AdminFee, TransferAdminFee)
	out = appendTransfer(out, e.GasWallet, amts.GasRefund, TransferGasRefund)

	e.Status = StatusPaidOut
	return out, nil
}

// HandleExpiry refunds the full collateral to the vault once the expiry
// timestamp is reached. Anyone may call it: eligibility is purely a matter
// of time, and idle escrows only move when poked.
func (e *Escrow) HandleExpiry(caller string, now time.Time) ([]Transfer, error) {
	if err := e.authorize(OpHandleExpiry, caller); err != nil {
		return nil, err
	}
	if err := e.requireStatus(OpHandleExpiry, StatusActive); err != nil {
		return nil, err
	}
	if now.Before(e.ExpiryTimestamp) {
		return nil, fmt.Errorf("escrow: policy %d expires at %s: %w",
			e.PolicyID, e.ExpiryTimestamp.UTC().Format(time.RFC3339), ErrNotExpired)
	}
	out := appendTransfer(nil, e.Vault, e.CollateralAmount, TransferVaultRefund)
	e.Status = StatusExpired
	return out, nil
}

// FreezeDispute halts an active escrow pending admin resolution. No funds
// move; the dispute start is recorded for the emergency window.
func (e *Escrow) FreezeDispute(caller string, now time.Time) error {
	if err := e.authorize(OpFreezeDispute, caller); err != nil {
		return err
	}
	if err := e.requireStatus(OpFreezeDispute, StatusActive); err != nil {
		return err
	}
	at := now
	e.DisputedAt = &at
	e.Status = StatusDisputed
	return nil
}

// Outcome selects how an admin resolves a disputed escrow.
type Outcome string

const (
	OutcomeRefundVault Outcome = "refund_vault"
	OutcomePayUser     Outcome = "pay_user"
	OutcomeSplit       Outcome = "split"
)

// ResolveDispute closes a disputed escrow. RefundVault returns the
// collateral to the vault, PayUser awards it whole to the policy owner,
// Split halves it between them with the odd nanoton going to the vault.
func (e *Escrow) ResolveDispute(caller string, outcome Outcome) ([]Transfer, error) {
	if err := e.authorize(OpResolveDispute, caller); err != nil {
		return nil, err
	}
	if err := e.requireStatus(OpResolveDispute, StatusDisputed); err != nil {
		return nil, err
	}

	var out []Transfer
	switch outcome {
	case OutcomeRefundVault:
		out = appendTransfer(out, e.Vault, e.CollateralAmount, TransferVaultRefund)
		e.Status = StatusExpired
	case OutcomePayUser:
		out = appendTransfer(out, e.PolicyOwner, e.CollateralAmount, TransferUserPayout)
		e.Status = StatusPaidOut
	case OutcomeSplit:
		half := e.CollateralAmount / 2
		out = appendTransfer(out, e.PolicyOwner, half, TransferUserPayout)
		out = appendTransfer(out, e.Vault, e.CollateralAmount-half, TransferVaultRefund)
		e.Status = StatusExpired
	default:
		return nil, fmt.Errorf("escrow: unknown dispute outcome %q", outcome)
	}
	return out, nil
}

// EmergencyWithdraw cancels an escrow stuck in dispute and returns the
// collateral to the vault. It only opens DisputeEmergencyWindow after the
// dispute was frozen.
func (e *Escrow) EmergencyWithdraw(caller string, now time.Time) ([]Transfer, error) {
	if err := e.authorize(OpEmergencyWithdraw, caller); err != nil {
		return nil, err
	}
	if err := e.requireStatus(OpEmergencyWithdraw, StatusDisputed); err != nil {
		return nil, err
	}
	if e.DisputedAt == nil {
		return nil, fmt.Errorf("escrow: disputed policy %d has no dispute timestamp: %w", e.PolicyID, ErrInvalidState)
	}
	if eligible := e.DisputedAt.Add(DisputeEmergencyWindow); now.Before(eligible) {
		return nil, fmt.Errorf("escrow: emergency withdraw opens at %s: %w",
			eligible.UTC().Format(time.RFC3339), ErrNotExpired)
	}
	out := appendTransfer(nil, e.Vault, e.CollateralAmount, TransferVaultRefund)
	e.Status = StatusCancelled
	return out, nil
}

func (e *Escrow) requireStatus(op Op, want Status) error {
	if e.Status != want {
		return fmt.Errorf("escrow: %s on %s policy %d: %w", op, e.Status, e.PolicyID, ErrInvalidState)
	}
	return nil
}

func (e *Escrow) matchProof(p TriggerProof) error {
	if p.PolicyID != e.PolicyID ||
		p.ProductType != e.ProductType ||
		p.AssetID != e.AssetID ||
		p.TriggerThreshold != e.TriggerThreshold {
		return fmt.Errorf("escrow: proof mismatch for policy %d: %w", e.PolicyID, ErrInvalidTriggerProof)
	}
	return nil
}

func appendTransfer(ts []Transfer, to string, amount int64, kind TransferKind) []Transfer {
	if amount <= 0 {
		return ts
	}
	return append(ts, Transfer{To: to, Amount: amount, Kind: kind})
}
