package booking

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps the ledger in process memory.
type MemoryRepository struct {
	mu           sync.RWMutex
	appointments map[string]*Appointment
	order        []string
	tokens       map[string]int
	events       map[string][]Event
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		appointments: make(map[string]*Appointment),
		tokens:       make(map[string]int),
		events:       make(map[string][]Event),
	}
}

func (r *MemoryRepository) InsertAppointment(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.appointments[a.ID]; ok {
		return invalid("appointment %q already exists", a.ID)
	}
	cp := cloneAppointment(a)
	r.appointments[a.ID] = &cp
	r.order = append(r.order, a.ID)
	if a.TokenNumber != nil && *a.TokenNumber > r.tokens[a.SlotID] {
		r.tokens[a.SlotID] = *a.TokenNumber
	}
	return nil
}

func (r *MemoryRepository) GetAppointment(_ context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, notFound("appointment", id)
	}
	cp := cloneAppointment(a)
	return &cp, nil
}

func (r *MemoryRepository) UpdateAppointment(_ context.Context, a *Appointment, from Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.appointments[a.ID]
	if !ok {
		return notFound("appointment", a.ID)
	}
	if stored.Status != from {
		return ErrStatusConflict
	}
	stored.Status = a.Status
	stored.CancellationReason = cloneString(a.CancellationReason)
	stored.UpdatedAt = a.UpdatedAt
	return nil
}

func (r *MemoryRepository) NextToken(_ context.Context, slotID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tokens[slotID] + 1, nil
}

func (r *MemoryRepository) CountLive(_ context.Context, slotID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, a := range r.appointments {
		if a.SlotID == slotID && a.Status.Live() {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) ListBySlot(_ context.Context, slotID string) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, id := range r.order {
		if a := r.appointments[id]; a.SlotID == slotID {
			out = append(out, cloneAppointment(a))
		}
	}
	return out, nil
}

func (r *MemoryRepository) ListByPatient(_ context.Context, patientID string, limit, offset int) ([]Appointment, error) {
	r.mu.RLock()
	var all []Appointment
	for _, id := range r.order {
		if a := r.appointments[id]; a.PatientID == patientID {
			all = append(all, cloneAppointment(a))
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[ev.AppointmentID] = append(r.events[ev.AppointmentID], ev)
	return nil
}

func (r *MemoryRepository) ListEvents(_ context.Context, appointmentID string) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Event(nil), r.events[appointmentID]...), nil
}

func cloneAppointment(a *Appointment) Appointment {
	cp := *a
	if a.TokenNumber != nil {
		n := *a.TokenNumber
		cp.TokenNumber = &n
	}
	cp.Notes = cloneString(a.Notes)
	cp.CancellationReason = cloneString(a.CancellationReason)
	return cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
