package escrow

import "errors"

var (
	ErrUnauthorized           = errors.New("escrow: unauthorized caller")
	ErrAlreadyInitialized     = errors.New("escrow: already initialized")
	ErrInvalidState           = errors.New("escrow: operation not allowed in current status")
	ErrNotExpired             = errors.New("escrow: time condition not reached")
	ErrInvalidTriggerProof    = errors.New("escrow: trigger proof does not match policy")
	ErrInvalidConfiguration   = errors.New("escrow: invalid configuration")
	ErrInsufficientCollateral = errors.New("escrow: attached value does not cover the operational reserve")
)
