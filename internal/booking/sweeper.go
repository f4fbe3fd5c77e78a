package booking

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// NoShowSweeper marks scheduled appointments as no-show once their slot has
// ended and the grace period has passed without a check-in.
type NoShowSweeper struct {
	ledger *Ledger
	slots  *SlotRegistry
	loc    *time.Location
	grace  time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

func NewNoShowSweeper(ledger *Ledger, slots *SlotRegistry, loc *time.Location, grace time.Duration, logger zerolog.Logger) *NoShowSweeper {
	if loc == nil {
		loc = time.UTC
	}
	return &NoShowSweeper{
		ledger: ledger,
		slots:  slots,
		loc:    loc,
		grace:  grace,
		now:    time.Now,
		log:    logger.With().Str("component", "noshow-sweeper").Logger(),
	}
}

// SweepOnce returns the number of appointments moved to no-show.
func (s *NoShowSweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now()
	marked := 0

	for _, slot := range s.slots.Slots() {
		if err := ctx.Err(); err != nil {
			return marked, err
		}

		end, err := SlotEnd(slot, s.loc)
		if err != nil {
			s.log.Error().Err(err).Str("slot_id", slot.ID).Msg("bad slot end time")
			continue
		}
		if now.Before(end.Add(s.grace)) {
			continue
		}

		appts, err := s.ledger.ListBySlot(ctx, slot.ID)
		if err != nil {
			return marked, err
		}
		for _, a := range appts {
			if a.Status != StatusScheduled {
				continue
			}
			_, err := s.ledger.Transition(ctx, a.ID, StatusNoShow)
			if err != nil {
				if errors.Is(err, ErrInvalidTransition) {
					continue
				}
				s.log.Error().Err(err).Str("appointment_id", a.ID).Msg("failed to mark no-show")
				continue
			}
			marked++
		}
	}

	return marked, nil
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *NoShowSweeper) Run(ctx context.Context, interval time.Duration) error {
	s.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("stopping no-show sweeper")
			return nil
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *NoShowSweeper) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := s.SweepOnce(runCtx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error().Err(err).Msg("no-show sweep failed")
		return
	}
	s.log.Info().Int("marked", n).Dur("took", time.Since(start)).Msg("no-show sweep complete")
}
