package booking

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestQueryService_ProviderAvailability(t *testing.T) {
	f := newFixture(t)
	f.addSlot(t, "s1", "09:00", "10:00", 1)
	f.addSlot(t, "s2", "10:00", "11:00", 2)
	f.book(t, "p1", "s1")

	q := NewQueryService(f.catalog, f.slots, f.ledger)

	slots, err := q.GetProviderAvailability("d1", "2025-01-15")
	mustNoErr(t, err)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if slots[0].IsAvailable() || !slots[1].IsAvailable() {
		t.Fatalf("unexpected availability %+v", slots)
	}

	if _, err := q.GetProviderAvailability("unknown", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := q.GetProviderAvailability("", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	empty, err := q.GetProviderAvailability("d1", "2031-01-01")
	mustNoErr(t, err)
	if len(empty) != 0 {
		t.Fatalf("expected no slots, got %d", len(empty))
	}
}

func TestQueryService_AppointmentDetailReadsCurrentCatalog(t *testing.T) {
	f := newFixture(t)
	f.addSlot(t, "s1", "09:00", "10:00", 1)
	a := f.book(t, "p1", "s1")
	q := NewQueryService(f.catalog, f.slots, f.ledger)

	detail, err := q.GetAppointmentDetail(context.Background(), a.ID)
	mustNoErr(t, err)
	if detail.Patient == nil || detail.Patient.Name != "Patient p1" {
		t.Fatalf("unexpected patient %+v", detail.Patient)
	}
	if detail.Provider == nil || detail.Provider.Specialty != SpecialtyGeneralPhysician {
		t.Fatalf("unexpected doctor %+v", detail.Provider)
	}
	if detail.Slot == nil || detail.Slot.StartTime != "09:00" {
		t.Fatalf("unexpected slot %+v", detail.Slot)
	}

	_, err = f.catalog.SetProviderActive("d1", false)
	mustNoErr(t, err)
	detail, err = q.GetAppointmentDetail(context.Background(), a.ID)
	mustNoErr(t, err)
	if detail.Status != StatusScheduled {
		t.Fatalf("deactivating doctor changed status to %s", detail.Status)
	}

	if _, err := q.GetAppointmentDetail(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSlot_MarshalIncludesAvailability(t *testing.T) {
	b, err := json.Marshal(Slot{ID: "s1", ProviderID: "d1", Date: "2025-01-15", StartTime: "09:00", EndTime: "10:00", MaxPatients: 2, BookedCount: 2})
	mustNoErr(t, err)

	var got map[string]any
	mustNoErr(t, json.Unmarshal(b, &got))
	if got["isAvailable"] != false {
		t.Fatalf("expected isAvailable false, got %v", got["isAvailable"])
	}
	if got["doctorId"] != "d1" {
		t.Fatalf("expected doctorId d1, got %v", got["doctorId"])
	}
}

func TestAppointment_JSONOptionalFields(t *testing.T) {
	a := Appointment{ID: "a1", PatientID: "p1", ProviderID: "d1", SlotID: "s1", Status: StatusScheduled}
	b, err := json.Marshal(a)
	mustNoErr(t, err)

	for _, key := range []string{"tokenNumber", "notes", "cancellationReason"} {
		if strings.Contains(string(b), `"`+key+`"`) {
			t.Fatalf("expected %s to be omitted: %s", key, b)
		}
	}

	var back Appointment
	mustNoErr(t, json.Unmarshal(b, &back))
	if back.TokenNumber != nil || back.Notes != nil || back.CancellationReason != nil {
		t.Fatalf("expected absent optionals to stay nil, got %+v", back)
	}
	if back.Status != StatusScheduled || back.ProviderID != "d1" {
		t.Fatalf("unexpected decode %+v", back)
	}
}

func TestAppointment_JSONRoundTrip(t *testing.T) {
	token := 7
	notes := "fever since monday"
	reason := "travelling"
	created := time.Date(2025, 1, 14, 9, 15, 30, 0, time.UTC)
	a := Appointment{
		ID:                 "a1",
		PatientID:          "p1",
		ProviderID:         "d1",
		SlotID:             "s1",
		Status:             StatusCancelled,
		TokenNumber:        &token,
		ConsultationFee:    800,
		PaymentStatus:      PaymentRefunded,
		Notes:              &notes,
		CancellationReason: &reason,
		CreatedAt:          created,
		UpdatedAt:          created.Add(90 * time.Minute),
	}

	b, err := json.Marshal(a)
	mustNoErr(t, err)
	var back Appointment
	mustNoErr(t, json.Unmarshal(b, &back))

	if back.ID != a.ID || back.PatientID != a.PatientID || back.ProviderID != a.ProviderID || back.SlotID != a.SlotID {
		t.Fatalf("ids changed: %+v", back)
	}
	if back.Status != a.Status || back.PaymentStatus != a.PaymentStatus || back.ConsultationFee != a.ConsultationFee {
		t.Fatalf("state changed: %+v", back)
	}
	if back.TokenNumber == nil || *back.TokenNumber != token {
		t.Fatalf("expected token %d, got %v", token, back.TokenNumber)
	}
	if back.Notes == nil || *back.Notes != notes {
		t.Fatalf("expected notes %q, got %v", notes, back.Notes)
	}
	if back.CancellationReason == nil || *back.CancellationReason != reason {
		t.Fatalf("expected reason %q, got %v", reason, back.CancellationReason)
	}
	if !back.CreatedAt.Equal(a.CreatedAt) || !back.UpdatedAt.Equal(a.UpdatedAt) {
		t.Fatalf("timestamps changed: %s %s", back.CreatedAt, back.UpdatedAt)
	}
}

func TestCatalog_Providers(t *testing.T) {
	c := NewCatalog()
	mustNoErr(t, c.AddProvider(Provider{ID: "d2", Name: "Dr. B", Specialty: SpecialtyENT, IsActive: true}))
	mustNoErr(t, c.AddProvider(Provider{ID: "d1", Name: "Dr. A", Specialty: SpecialtyENT}))
	mustNoErr(t, c.AddProvider(Provider{ID: "d3", Name: "Dr. C", Specialty: SpecialtyNeurologist, IsActive: true}))

	if err := c.AddProvider(Provider{ID: "d4", Name: "Dr. D", Specialty: "astrologer"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown specialty, got %v", err)
	}
	if err := c.AddProvider(Provider{ID: "d1", Name: "Dr. A", Specialty: SpecialtyENT}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for duplicate, got %v", err)
	}

	ent := c.ListProviders(ProviderFilter{Specialty: SpecialtyENT})
	if len(ent) != 2 || ent[0].ID != "d1" {
		t.Fatalf("unexpected ent listing %+v", ent)
	}
	active := c.ListProviders(ProviderFilter{ActiveOnly: true})
	if len(active) != 2 || active[0].ID != "d2" || active[1].ID != "d3" {
		t.Fatalf("unexpected active listing %+v", active)
	}

	if _, err := c.GetPatient("p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := c.SetProviderActive("missing", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
