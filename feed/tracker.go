package feed

import "time"

// PriceUpdate is one observation from the oracle price stream. Prices are
// carried in basis points of the peg so breach math never touches floats.
type PriceUpdate struct {
	AssetID   string
	PriceBps  uint32
	Timestamp time.Time
}

// DepegEvent marks a below-threshold span that has lasted the trigger
// duration. WindowStart identifies the breach window and seeds the
// idempotency key for claim submission.
type DepegEvent struct {
	AssetID     string
	Threshold   uint32
	WindowStart time.Time
	LowestBps   uint32
}

// breachTracker follows one asset through breach and recovery. A breach
// fires at most one event; the asset must recover above the threshold
// before a new window can open.
type breachTracker struct {
	threshold uint32
	duration  time.Duration

	inBreach    bool
	fired       bool
	breachStart time.Time
	lowest      uint32
}

func (b *breachTracker) observe(u PriceUpdate) (DepegEvent, bool) {
	if u.PriceBps >= b.threshold {
		b.inBreach = false
		b.fired = false
		return DepegEvent{}, false
	}

	if !b.inBreach {
		b.inBreach = true
		b.breachStart = u.Timestamp
		b.lowest = u.PriceBps
		b.fired = false
	}
	if u.PriceBps < b.lowest {
		b.lowest = u.PriceBps
	}

	if b.fired || u.Timestamp.Sub(b.breachStart) < b.duration {
		return DepegEvent{}, false
	}

	b.fired = true
	return DepegEvent{
		AssetID:     u.AssetID,
		Threshold:   b.threshold,
		WindowStart: b.breachStart,
		LowestBps:   b.lowest,
	}, true
}

// Tracker fans price updates out to per-asset breach trackers sharing one
// threshold and trigger duration.
type Tracker struct {
	threshold uint32
	duration  time.Duration
	assets    map[string]*breachTracker
}

// NewTracker builds a tracker for the given trigger terms.
func NewTracker(threshold uint32, duration time.Duration) *Tracker {
	return &Tracker{
		threshold: threshold,
		duration:  duration,
		assets:    make(map[string]*breachTracker),
	}
}

// Observe feeds one update through the asset's tracker. The second return
// is true when the update completes a qualifying breach.
func (t *Tracker) Observe(u PriceUpdate) (DepegEvent, bool) {
	b, ok := t.assets[u.AssetID]
	if !ok {
		b = &breachTracker{threshold: t.threshold, duration: t.duration}
		t.assets[u.AssetID] = b
	}
	return b.observe(u)
}
