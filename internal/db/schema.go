package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS providers (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	specialty           TEXT NOT NULL,
	qualifications      TEXT[] NOT NULL DEFAULT '{}',
	registration_number TEXT NOT NULL DEFAULT '',
	consultation_fee    INTEGER NOT NULL CHECK (consultation_fee >= 0),
	hospital_id         TEXT NOT NULL DEFAULT '',
	department_id       TEXT NOT NULL DEFAULT '',
	is_active           BOOLEAN NOT NULL DEFAULT TRUE,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS patients (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	mobile        TEXT NOT NULL,
	email         TEXT,
	date_of_birth TEXT NOT NULL DEFAULT '',
	gender        TEXT NOT NULL DEFAULT 'other',
	abha_id       TEXT,
	address       JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS slots (
	id           TEXT PRIMARY KEY,
	provider_id  TEXT NOT NULL REFERENCES providers (id),
	slot_date    DATE NOT NULL,
	start_time   TEXT NOT NULL,
	end_time     TEXT NOT NULL,
	max_patients INTEGER NOT NULL CHECK (max_patients >= 1)
);

CREATE INDEX IF NOT EXISTS slots_provider_date_idx ON slots (provider_id, slot_date, start_time);

CREATE TABLE IF NOT EXISTS appointments (
	id                  TEXT PRIMARY KEY,
	patient_id          TEXT NOT NULL REFERENCES patients (id),
	provider_id         TEXT NOT NULL REFERENCES providers (id),
	slot_id             TEXT NOT NULL REFERENCES slots (id),
	status              TEXT NOT NULL,
	token_number        INTEGER,
	consultation_fee    INTEGER NOT NULL,
	payment_status      TEXT NOT NULL DEFAULT 'pending',
	notes               TEXT,
	cancellation_reason TEXT,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL,
	UNIQUE (slot_id, token_number)
);

CREATE INDEX IF NOT EXISTS appointments_slot_status_idx ON appointments (slot_id, status);
CREATE INDEX IF NOT EXISTS appointments_patient_idx ON appointments (patient_id, created_at DESC);

CREATE TABLE IF NOT EXISTS appointment_events (
	id             TEXT PRIMARY KEY,
	appointment_id TEXT NOT NULL REFERENCES appointments (id),
	event_type     TEXT NOT NULL,
	from_status    TEXT,
	to_status      TEXT NOT NULL,
	reason         TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS appointment_events_appointment_idx ON appointment_events (appointment_id, created_at);
`

// EnsureSchema creates the booking tables if they are missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
