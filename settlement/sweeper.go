package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"coverflow/escrow"
	"coverflow/telemetry"
)

// SweeperCaller is the address the sweeper reports expiries under. Expiry
// is open to any caller, so the name only matters for the timeline.
const SweeperCaller = "expiry-sweeper"

// Expirer is the slice of the service the sweeper drives.
type Expirer interface {
	HandleExpiry(ctx context.Context, policyID uint64, caller string) error
}

// ExpiryLister finds active policies whose term has lapsed.
type ExpiryLister interface {
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]uint64, error)
}

// Sweeper periodically reports expiries for lapsed active policies. The
// escrows themselves stay message driven; the sweeper is just a caller
// that pokes them on a schedule.
type Sweeper struct {
	svc     Expirer
	lister  ExpiryLister
	log     zerolog.Logger
	metrics *telemetry.Metrics
	batch   int

	cron *cron.Cron
	now  func() time.Time
}

func NewSweeper(svc Expirer, lister ExpiryLister, log zerolog.Logger, metrics *telemetry.Metrics, batch int) *Sweeper {
	if metrics == nil {
		metrics = &telemetry.Metrics{}
	}
	return &Sweeper{
		svc:     svc,
		lister:  lister,
		log:     log,
		metrics: metrics,
		batch:   batch,
		now:     time.Now,
	}
}

// Start schedules sweeps on the given cron spec.
func (s *Sweeper) Start(spec string) error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(spec, func() {
		s.Sweep(context.Background())
	}); err != nil {
		return fmt.Errorf("settlement: schedule sweep %q: %w", spec, err)
	}
	s.cron.Start()
	s.log.Info().Str("cron", spec).Msg("expiry sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep expires every currently eligible policy once and reports how many
// settled. Races with concurrent transitions are expected: a policy that
// settles under someone else's message between listing and locking is
// simply skipped.
func (s *Sweeper) Sweep(ctx context.Context) int {
	started := s.now()

	ids, err := s.lister.ListExpirable(ctx, s.now(), s.batch)
	if err != nil {
		s.log.Error().Err(err).Msg("list expirable policies")
		return 0
	}

	expired := 0
	for _, id := range ids {
		switch err := s.svc.HandleExpiry(ctx, id, SweeperCaller); {
		case err == nil:
			expired++
		case errors.Is(err, escrow.ErrInvalidState), errors.Is(err, escrow.ErrNotExpired):
			// lost the race to another transition; nothing to do
		default:
			s.log.Error().Err(err).Uint64("policy_id", id).Msg("expire policy")
		}
	}

	s.metrics.RecordSweep(expired, time.Since(started))
	if expired > 0 {
		s.log.Info().Int("expired", expired).Int("candidates", len(ids)).Msg("expiry sweep finished")
	}
	return expired
}
