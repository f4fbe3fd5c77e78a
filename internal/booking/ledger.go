package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	OutcomeCreated  = "created"
	OutcomeSlotFull = "slot_full"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics receives ledger outcomes. metrics.Collector implements it.
type Metrics interface {
	BookingAttempt(outcome string)
	StatusTransition(from, to Status)
	CapacityReleased()
}

type nopMetrics struct{}

func (nopMetrics) BookingAttempt(string)          {}
func (nopMetrics) StatusTransition(Status, Status) {}
func (nopMetrics) CapacityReleased()               {}

type LedgerConfig struct {
	Catalog *Catalog
	Slots   *SlotRegistry
	Repo    Repository
	Locker  Locker
	Logger  zerolog.Logger
	Metrics Metrics

	// VerifyInvariants re-counts live appointments after every mutation and
	// panics when the slot counter disagrees. Off in production.
	VerifyInvariants bool

	Now func() time.Time
}

// Ledger is the only writer of appointment status.
type Ledger struct {
	catalog *Catalog
	slots   *SlotRegistry
	repo    Repository
	locker  Locker
	log     zerolog.Logger
	metrics Metrics
	verify  bool
	now     func() time.Time
}

func NewLedger(cfg LedgerConfig) *Ledger {
	l := &Ledger{
		catalog: cfg.Catalog,
		slots:   cfg.Slots,
		repo:    cfg.Repo,
		locker:  cfg.Locker,
		log:     cfg.Logger.With().Str("component", "ledger").Logger(),
		metrics: cfg.Metrics,
		verify:  cfg.VerifyInvariants,
		now:     cfg.Now,
	}
	if l.locker == nil {
		l.locker = NewLocalLocker()
	}
	if l.metrics == nil {
		l.metrics = nopMetrics{}
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

type CreateRequest struct {
	PatientID  string  `json:"patientId"`
	ProviderID string  `json:"doctorId"`
	SlotID     string  `json:"slotId"`
	Notes      *string `json:"notes,omitempty"`
}

// CreateAppointment reserves a seat in the slot and appends a scheduled
// appointment. Either both happen or neither does.
func (l *Ledger) CreateAppointment(ctx context.Context, req CreateRequest) (*Appointment, error) {
	appt, err := l.createAppointment(ctx, req)
	switch {
	case err == nil:
		l.metrics.BookingAttempt(OutcomeCreated)
	case errors.Is(err, ErrSlotFull):
		l.metrics.BookingAttempt(OutcomeSlotFull)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrValidation):
		l.metrics.BookingAttempt(OutcomeRejected)
	default:
		l.metrics.BookingAttempt(OutcomeError)
	}
	return appt, err
}

func (l *Ledger) createAppointment(ctx context.Context, req CreateRequest) (*Appointment, error) {
	if req.PatientID == "" {
		return nil, invalid("patient id is required")
	}
	if req.ProviderID == "" {
		return nil, invalid("doctor id is required")
	}
	if req.SlotID == "" {
		return nil, invalid("slot id is required")
	}

	if _, err := l.catalog.GetPatient(req.PatientID); err != nil {
		return nil, err
	}
	provider, err := l.catalog.GetProvider(req.ProviderID)
	if err != nil {
		return nil, err
	}
	if !provider.IsActive {
		return nil, invalid("doctor %q is not accepting appointments", provider.ID)
	}
	slot, err := l.slots.GetSlot(req.SlotID)
	if err != nil {
		return nil, err
	}
	if slot.ProviderID != provider.ID {
		return nil, invalid("slot %q does not belong to doctor %q", slot.ID, provider.ID)
	}

	var created *Appointment

	err = l.locker.WithSlotLock(ctx, slot.ID, func(lockCtx context.Context) error {
		if err := l.syncCounter(lockCtx, slot.ID); err != nil {
			return err
		}
		if err := l.slots.ReserveCapacity(slot.ID); err != nil {
			return err
		}

		appt, err := l.appendAppointment(lockCtx, req, provider)
		if err != nil {
			if relErr := l.slots.ReleaseCapacity(slot.ID); relErr != nil {
				l.log.Error().Err(relErr).Str("slot_id", slot.ID).Msg("compensating release failed")
			}
			return err
		}

		created = appt
		l.assertSlot(lockCtx, slot.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Debug().
		Str("appointment_id", created.ID).
		Str("slot_id", created.SlotID).
		Int("token", *created.TokenNumber).
		Msg("appointment scheduled")

	return created, nil
}

func (l *Ledger) appendAppointment(ctx context.Context, req CreateRequest, provider Provider) (*Appointment, error) {
	token, err := l.repo.NextToken(ctx, req.SlotID)
	if err != nil {
		return nil, fmt.Errorf("next token: %w", err)
	}

	now := l.now().UTC()
	appt := &Appointment{
		ID:              uuid.NewString(),
		PatientID:       req.PatientID,
		ProviderID:      provider.ID,
		SlotID:          req.SlotID,
		Status:          StatusScheduled,
		TokenNumber:     &token,
		ConsultationFee: provider.ConsultationFee,
		PaymentStatus:   PaymentPending,
		Notes:           cloneString(req.Notes),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := l.repo.InsertAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	l.logEvent(ctx, Event{
		AppointmentID: appt.ID,
		Type:          EventAppointmentCreated,
		To:            StatusScheduled,
		CreatedAt:     now,
	})

	return appt, nil
}

// Transition moves an appointment along the state machine. Leaving a live
// status for cancelled or no-show gives the seat back exactly once.
func (l *Ledger) Transition(ctx context.Context, id string, target Status) (*Appointment, error) {
	return l.transition(ctx, id, target, nil)
}

// Cancel is Transition to cancelled that also records the reason.
func (l *Ledger) Cancel(ctx context.Context, id, reason string) (*Appointment, error) {
	var r *string
	if reason != "" {
		r = &reason
	}
	return l.transition(ctx, id, StatusCancelled, r)
}

func (l *Ledger) transition(ctx context.Context, id string, target Status, reason *string) (*Appointment, error) {
	if id == "" {
		return nil, invalid("appointment id is required")
	}
	if !target.Valid() {
		return nil, invalid("unknown status %q", target)
	}

	current, err := l.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	var updated *Appointment

	err = l.locker.WithSlotLock(ctx, current.SlotID, func(lockCtx context.Context) error {
		appt, err := l.repo.GetAppointment(lockCtx, id)
		if err != nil {
			return err
		}

		from := appt.Status
		if !CanTransition(from, target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, target)
		}
		if err := l.syncCounter(lockCtx, appt.SlotID); err != nil {
			return err
		}

		now := l.now().UTC()
		appt.Status = target
		appt.UpdatedAt = now
		if reason != nil {
			appt.CancellationReason = cloneString(reason)
		}

		if err := l.repo.UpdateAppointment(lockCtx, appt, from); err != nil {
			if errors.Is(err, ErrStatusConflict) {
				return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, target)
			}
			return fmt.Errorf("update appointment: %w", err)
		}

		if from.Live() && !target.Live() {
			if err := l.slots.ReleaseCapacity(appt.SlotID); err != nil {
				l.log.Error().Err(err).Str("slot_id", appt.SlotID).Msg("release capacity failed")
			} else {
				l.metrics.CapacityReleased()
			}
		}
		l.metrics.StatusTransition(from, target)

		fromCopy := from
		l.logEvent(lockCtx, Event{
			AppointmentID: appt.ID,
			Type:          EventAppointmentStatusChanged,
			From:          &fromCopy,
			To:            target,
			Reason:        cloneString(reason),
			CreatedAt:     now,
		})

		updated = appt
		l.assertSlot(lockCtx, appt.SlotID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Debug().
		Str("appointment_id", updated.ID).
		Str("status", string(updated.Status)).
		Msg("appointment status changed")

	return updated, nil
}

// GetAppointment returns the stored ledger record.
func (l *Ledger) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	return l.repo.GetAppointment(ctx, id)
}

// History returns the appointment's status changes, oldest first.
func (l *Ledger) History(ctx context.Context, id string) ([]Event, error) {
	if _, err := l.repo.GetAppointment(ctx, id); err != nil {
		return nil, err
	}
	events, err := l.repo.ListEvents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

func (l *Ledger) ListBySlot(ctx context.Context, slotID string) ([]Appointment, error) {
	appts, err := l.repo.ListBySlot(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by slot: %w", err)
	}
	return appts, nil
}

func (l *Ledger) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	appts, err := l.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appts, nil
}

// RestoreCounters rebuilds every slot counter from the persisted ledger.
func (l *Ledger) RestoreCounters(ctx context.Context) error {
	for _, s := range l.slots.Slots() {
		n, err := l.repo.CountLive(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("count live appointments for %s: %w", s.ID, err)
		}
		if err := l.slots.Restore(s.ID, n); err != nil {
			return err
		}
	}
	return nil
}

// syncCounter reloads the slot counter from the persisted ledger. It must run
// under the slot lock: other processes sharing the repository book into the
// same slots and never touch this process's counters.
func (l *Ledger) syncCounter(ctx context.Context, slotID string) error {
	n, err := l.repo.CountLive(ctx, slotID)
	if err != nil {
		return fmt.Errorf("count live appointments: %w", err)
	}
	slot, err := l.slots.GetSlot(slotID)
	if err != nil {
		return err
	}
	if n > slot.MaxPatients {
		l.log.Warn().
			Str("slot_id", slotID).
			Int("live", n).
			Int("max_patients", slot.MaxPatients).
			Msg("slot holds more live appointments than seats")
		n = slot.MaxPatients
	}
	return l.slots.Restore(slotID, n)
}

// VerifySlot checks that the slot counter equals its live appointment count.
func (l *Ledger) VerifySlot(ctx context.Context, slotID string) error {
	slot, err := l.slots.GetSlot(slotID)
	if err != nil {
		return err
	}
	n, err := l.repo.CountLive(ctx, slotID)
	if err != nil {
		return fmt.Errorf("count live appointments: %w", err)
	}
	if n != slot.BookedCount {
		return fmt.Errorf("slot %q booked count %d, live appointments %d", slotID, slot.BookedCount, n)
	}
	return nil
}

func (l *Ledger) assertSlot(ctx context.Context, slotID string) {
	if !l.verify {
		return
	}
	if err := l.VerifySlot(ctx, slotID); err != nil {
		panic("booking invariant violated: " + err.Error())
	}
}

func (l *Ledger) logEvent(ctx context.Context, ev Event) {
	ev.ID = uuid.NewString()
	if err := l.repo.InsertEvent(ctx, ev); err != nil {
		l.log.Error().Err(err).
			Str("event", ev.Type).
			Str("appointment_id", ev.AppointmentID).
			Msg("failed to insert event")
	}
}
