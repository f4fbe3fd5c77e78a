package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, patient_id, provider_id, slot_id, status, token_number,
	consultation_fee, payment_status, notes, cancellation_reason, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var token *int32
	var notes, reason *string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProviderID,
		&a.SlotID,
		&a.Status,
		&token,
		&a.ConsultationFee,
		&a.PaymentStatus,
		&notes,
		&reason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if token != nil {
		n := int(*token)
		a.TokenNumber = &n
	}
	a.Notes = notes
	a.CancellationReason = reason
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Interface methods

func (r *PgRepository) InsertAppointment(ctx context.Context, a *Appointment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, a.ID, a.PatientID, a.ProviderID, a.SlotID, a.Status, a.TokenNumber,
		a.ConsultationFee, a.PaymentStatus, a.Notes, a.CancellationReason, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)

	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("appointment", id)
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a *Appointment, from Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
		    cancellation_reason = $3,
		    updated_at = $4
		WHERE id = $1
		  AND status = $5
	`, a.ID, a.Status, a.CancellationReason, a.UpdatedAt, from)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetAppointment(ctx, a.ID); err != nil {
			return err
		}
		return ErrStatusConflict
	}
	return nil
}

func (r *PgRepository) NextToken(ctx context.Context, slotID string) (int, error) {
	var next int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(token_number), 0) + 1
		FROM appointments
		WHERE slot_id = $1
	`, slotID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next token: %w", err)
	}
	return next, nil
}

func (r *PgRepository) CountLive(ctx context.Context, slotID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE slot_id = $1
		  AND status NOT IN ('cancelled', 'no-show')
	`, slotID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count live appointments: %w", err)
	}
	return n, nil
}

func (r *PgRepository) ListBySlot(ctx context.Context, slotID string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE slot_id = $1
		ORDER BY created_at, token_number
	`, slotID)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev Event) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_events (id, appointment_id, event_type, from_status, to_status, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
	`, ev.ID, ev.AppointmentID, ev.Type, ev.From, ev.To, ev.Reason, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func (r *PgRepository) ListEvents(ctx context.Context, appointmentID string) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, event_type, from_status, to_status, reason, created_at
		FROM appointment_events
		WHERE appointment_id = $1
		ORDER BY created_at, id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.AppointmentID, &ev.Type, &ev.From, &ev.To, &ev.Reason, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.CreatedAt = ev.CreatedAt.UTC()
		result = append(result, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
