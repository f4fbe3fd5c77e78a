package booking

import "context"

// QueryService joins catalog, slots and ledger records for presentation.
// It never mutates state.
type QueryService struct {
	catalog *Catalog
	slots   *SlotRegistry
	ledger  *Ledger
}

func NewQueryService(catalog *Catalog, slots *SlotRegistry, ledger *Ledger) *QueryService {
	return &QueryService{catalog: catalog, slots: slots, ledger: ledger}
}

// GetProviderAvailability lists a provider's slots, optionally for one date.
func (q *QueryService) GetProviderAvailability(providerID, date string) ([]Slot, error) {
	if providerID == "" {
		return nil, invalid("doctor id is required")
	}
	if _, err := q.catalog.GetProvider(providerID); err != nil {
		return nil, err
	}
	return q.slots.ListSlots(providerID, date), nil
}

func (q *QueryService) ListProviders(f ProviderFilter) []Provider {
	return q.catalog.ListProviders(f)
}

// GetAppointmentDetail returns the appointment with patient, doctor and slot
// display fields read now rather than stored.
func (q *QueryService) GetAppointmentDetail(ctx context.Context, id string) (*AppointmentResponse, error) {
	if id == "" {
		return nil, invalid("appointment id is required")
	}
	appt, err := q.ledger.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := &AppointmentResponse{Appointment: *appt}

	if p, err := q.catalog.GetPatient(appt.PatientID); err == nil {
		resp.Patient = &PatientSummary{Name: p.Name, Mobile: p.Mobile}
	}
	if d, err := q.catalog.GetProvider(appt.ProviderID); err == nil {
		resp.Provider = &ProviderSummary{Name: d.Name, Specialty: d.Specialty}
	}
	if s, err := q.slots.GetSlot(appt.SlotID); err == nil {
		resp.Slot = &SlotSummary{Date: s.Date, StartTime: s.StartTime, EndTime: s.EndTime}
	}

	return resp, nil
}
