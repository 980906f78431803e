package escrow

import "fmt"

// Role is the closed set of caller identities an operation may require.
type Role string

const (
	RoleVault  Role = "vault"
	RoleOracle Role = "oracle"
	RoleAdmin  Role = "admin"
	RoleAnyone Role = "anyone"
)

// Op names a state-machine operation, used both for authorization and for
// timeline records.
type Op string

const (
	OpInitialize        Op = "initialize"
	OpTriggerClaim      Op = "trigger_claim"
	OpHandleExpiry      Op = "handle_expiry"
	OpFreezeDispute     Op = "freeze_dispute"
	OpResolveDispute    Op = "resolve_dispute"
	OpEmergencyWithdraw Op = "emergency_withdraw"
)

// permittedCaller assigns each operation the single role allowed to invoke it.
var permittedCaller = map[Op]Role{
	OpInitialize:        RoleVault,
	OpTriggerClaim:      RoleOracle,
	OpHandleExpiry:      RoleAnyone,
	OpFreezeDispute:     RoleAdmin,
	OpResolveDispute:    RoleAdmin,
	OpEmergencyWithdraw: RoleAdmin,
}

// RoleOf resolves a caller address against the configured parties. An
// address configured as more than one party resolves in vault, oracle,
// admin order.
func (c Config) RoleOf(caller string) Role {
	switch caller {
	case c.Vault:
		return RoleVault
	case c.Oracle:
		return RoleOracle
	case c.Admin:
		return RoleAdmin
	}
	return RoleAnyone
}

// authorize rejects callers whose resolved role differs from the one the
// operation requires. It runs before any status or time guard.
func (e *Escrow) authorize(op Op, caller string) error {
	required, ok := permittedCaller[op]
	if !ok {
		return fmt.Errorf("escrow: unknown operation %q", op)
	}
	if required == RoleAnyone {
		return nil
	}
	if e.RoleOf(caller) != required {
		return fmt.Errorf("escrow: %s requires the %s: %w", op, required, ErrUnauthorized)
	}
	return nil
}
