package settlement

import (
	"time"

	"coverflow/escrow"
)

// TimelineEvent captures an immutable settlement event for a policy. Seq is
// strictly increasing per policy, so the timeline doubles as an audit log
// of every accepted operation.
type TimelineEvent struct {
	ID        int64
	PolicyID  uint64
	Seq       int
	Type      string
	Caller    string
	Payload   []byte
	CreatedAt time.Time
}

// EventEscrowCreated marks the creation row every policy timeline starts with.
const EventEscrowCreated = "escrow_created"

// OutboxTransfer is one queued outbound value movement. Rows are written in
// the same transaction as the status change that produced them and drained
// by the transfer dispatcher afterwards.
type OutboxTransfer struct {
	ID        string
	PolicyID  uint64
	Recipient string
	Amount    int64
	Kind      escrow.TransferKind
	Status    string
	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	OutboxPending = "pending"
	OutboxSent    = "sent"
	OutboxDead    = "dead"
)
