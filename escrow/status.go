package escrow

// Status is the lifecycle state of an escrow instance.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusPaidOut   Status = "paid_out"
	StatusExpired   Status = "expired"
	StatusDisputed  Status = "disputed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition may leave s. Disputed is
// not terminal: an admin can still resolve or cancel it.
func (s Status) Terminal() bool {
	switch s {
	case StatusPaidOut, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusPaidOut, StatusExpired, StatusDisputed, StatusCancelled:
		return true
	}
	return false
}
