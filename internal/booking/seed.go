package booking

import (
	"context"
	"fmt"
	"time"
)

type seedSlot struct {
	id         string
	providerID string
	dayOffset  int
	start, end string
	max        int
	booked     int
}

var seedSlots = []seedSlot{
	{"slot1", "d1", 0, "09:00", "10:00", 5, 2},
	{"slot2", "d1", 0, "10:00", "11:00", 5, 0},
	{"slot3", "d1", 0, "11:00", "12:00", 5, 5},
	{"slot4", "d1", 1, "09:00", "10:00", 5, 1},
	{"slot5", "d1", 1, "14:00", "15:00", 5, 0},
	{"slot6", "d2", 0, "10:00", "11:00", 3, 0},
	{"slot7", "d2", 0, "11:00", "12:00", 3, 1},
	{"slot8", "d2", 2, "09:00", "10:00", 3, 0},
	{"slot9", "d3", 0, "09:00", "10:00", 4, 2},
	{"slot10", "d3", 3, "10:00", "11:00", 4, 0},
}

func seedProviders(now time.Time) []Provider {
	return []Provider{
		{
			ID:                 "d1",
			Name:               "Dr. Priya Sharma",
			Specialty:          SpecialtyGeneralPhysician,
			Qualifications:     []string{"MBBS", "MD"},
			RegistrationNumber: "MH-12345",
			ConsultationFee:    500,
			HospitalID:         "h1",
			DepartmentID:       "dept1",
			IsActive:           true,
			CreatedAt:          now,
			UpdatedAt:          now,
		},
		{
			ID:                 "d2",
			Name:               "Dr. Rajesh Kumar",
			Specialty:          SpecialtyCardiologist,
			Qualifications:     []string{"MBBS", "MD", "DM Cardiology"},
			RegistrationNumber: "MH-12346",
			ConsultationFee:    800,
			HospitalID:         "h1",
			DepartmentID:       "dept1",
			IsActive:           true,
			CreatedAt:          now,
			UpdatedAt:          now,
		},
		{
			ID:                 "d3",
			Name:               "Dr. Anjali Mehta",
			Specialty:          SpecialtyPediatrician,
			Qualifications:     []string{"MBBS", "MD Pediatrics"},
			RegistrationNumber: "MH-12347",
			ConsultationFee:    600,
			HospitalID:         "h1",
			DepartmentID:       "dept1",
			IsActive:           true,
			CreatedAt:          now,
			UpdatedAt:          now,
		},
	}
}

func seedPatients(now time.Time) []Patient {
	names := []struct{ name, mobile, gender string }{
		{"Aarav Patel", "9820000001", "male"},
		{"Diya Iyer", "9820000002", "female"},
		{"Kabir Singh", "9820000003", "male"},
		{"Meera Nair", "9820000004", "female"},
		{"Rohan Das", "9820000005", "male"},
	}
	out := make([]Patient, 0, len(names))
	for i, n := range names {
		out = append(out, Patient{
			ID:          fmt.Sprintf("p%d", i+1),
			Name:        n.name,
			Mobile:      n.mobile,
			DateOfBirth: "1990-01-01",
			Email:       strPtr(fmt.Sprintf("patient%d@example.com", i+1)),
			Gender:      n.gender,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return out
}

// Seed loads the demo doctors, patients and slots. Slot dates start the day
// after base; pre-booked seats are created through the ledger so counters
// match live appointments.
func Seed(ctx context.Context, catalog *Catalog, slots *SlotRegistry, ledger *Ledger, base time.Time) error {
	now := base.UTC()

	for _, p := range seedProviders(now) {
		if err := catalog.AddProvider(p); err != nil {
			return fmt.Errorf("seed provider %s: %w", p.ID, err)
		}
	}
	patients := seedPatients(now)
	for _, p := range patients {
		if err := catalog.AddPatient(p); err != nil {
			return fmt.Errorf("seed patient %s: %w", p.ID, err)
		}
	}

	day := time.Date(base.Year(), base.Month(), base.Day(), 0, 0, 0, 0, base.Location()).AddDate(0, 0, 1)
	for _, s := range seedSlots {
		slot := Slot{
			ID:          s.id,
			ProviderID:  s.providerID,
			Date:        day.AddDate(0, 0, s.dayOffset).Format(dateLayout),
			StartTime:   s.start,
			EndTime:     s.end,
			MaxPatients: s.max,
		}
		if err := slots.AddSlot(slot); err != nil {
			return fmt.Errorf("seed slot %s: %w", s.id, err)
		}
	}

	for _, s := range seedSlots {
		for i := 0; i < s.booked; i++ {
			_, err := ledger.CreateAppointment(ctx, CreateRequest{
				PatientID:  patients[i%len(patients)].ID,
				ProviderID: s.providerID,
				SlotID:     s.id,
			})
			if err != nil {
				return fmt.Errorf("seed booking for %s: %w", s.id, err)
			}
		}
	}

	return nil
}
