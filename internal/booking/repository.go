package booking

import (
	"context"
	"errors"
)

var ErrStatusConflict = errors.New("appointment status changed concurrently")

// Repository persists ledger records. Implementations never touch slot counters.
type Repository interface {
	InsertAppointment(ctx context.Context, a *Appointment) error
	GetAppointment(ctx context.Context, id string) (*Appointment, error)

	// UpdateAppointment writes a's status, cancellation reason and updated_at
	// if the stored status is still from. Otherwise it returns ErrStatusConflict.
	UpdateAppointment(ctx context.Context, a *Appointment, from Status) error

	// NextToken returns the next queue token for a slot: one past the highest
	// token ever issued for it, starting at 1.
	NextToken(ctx context.Context, slotID string) (int, error)
	CountLive(ctx context.Context, slotID string) (int, error)

	ListBySlot(ctx context.Context, slotID string) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev Event) error
	ListEvents(ctx context.Context, appointmentID string) ([]Event, error)
}
