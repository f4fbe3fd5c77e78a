package booking

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LoadCatalog fills catalog and slots from Postgres. Slot counters start at
// zero; call Ledger.RestoreCounters afterwards.
func LoadCatalog(ctx context.Context, pool *pgxpool.Pool, catalog *Catalog, slots *SlotRegistry) error {
	if err := loadProviders(ctx, pool, catalog); err != nil {
		return fmt.Errorf("load providers: %w", err)
	}
	if err := loadPatients(ctx, pool, catalog); err != nil {
		return fmt.Errorf("load patients: %w", err)
	}
	if err := loadSlots(ctx, pool, slots); err != nil {
		return fmt.Errorf("load slots: %w", err)
	}
	return nil
}

func loadProviders(ctx context.Context, pool *pgxpool.Pool, catalog *Catalog) error {
	rows, err := pool.Query(ctx, `
		SELECT id, name, specialty, qualifications, registration_number, consultation_fee,
		       hospital_id, department_id, is_active, created_at, updated_at
		FROM providers
		ORDER BY id
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var p Provider
		err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Specialty,
			&p.Qualifications,
			&p.RegistrationNumber,
			&p.ConsultationFee,
			&p.HospitalID,
			&p.DepartmentID,
			&p.IsActive,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if err := catalog.AddProvider(p); err != nil {
			return err
		}
	}
	return rows.Err()
}

func loadPatients(ctx context.Context, pool *pgxpool.Pool, catalog *Catalog) error {
	rows, err := pool.Query(ctx, `
		SELECT id, name, mobile, email, date_of_birth, gender, abha_id, address, created_at, updated_at
		FROM patients
		ORDER BY id
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var p Patient
		var address []byte
		err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Mobile,
			&p.Email,
			&p.DateOfBirth,
			&p.Gender,
			&p.AbhaID,
			&address,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if len(address) > 0 {
			var addr Address
			if err := json.Unmarshal(address, &addr); err != nil {
				return fmt.Errorf("patient %s address: %w", p.ID, err)
			}
			p.Address = &addr
		}
		if err := catalog.AddPatient(p); err != nil {
			return err
		}
	}
	return rows.Err()
}

func loadSlots(ctx context.Context, pool *pgxpool.Pool, slots *SlotRegistry) error {
	rows, err := pool.Query(ctx, `
		SELECT id, provider_id, to_char(slot_date, 'YYYY-MM-DD'), start_time, end_time, max_patients
		FROM slots
		ORDER BY slot_date, start_time, id
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var s Slot
		if err := rows.Scan(&s.ID, &s.ProviderID, &s.Date, &s.StartTime, &s.EndTime, &s.MaxPatients); err != nil {
			return err
		}
		if err := slots.AddSlot(s); err != nil {
			return err
		}
	}
	return rows.Err()
}
