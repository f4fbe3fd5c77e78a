package booking

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

type slotRecord struct {
	mu   sync.Mutex
	slot Slot
}

// SlotRegistry holds the canonical slot set. Records are indexed by id and each
// guards its own counter, so bookings on unrelated slots never contend.
type SlotRegistry struct {
	catalog *Catalog

	mu    sync.RWMutex
	slots map[string]*slotRecord
}

func NewSlotRegistry(catalog *Catalog) *SlotRegistry {
	return &SlotRegistry{
		catalog: catalog,
		slots:   make(map[string]*slotRecord),
	}
}

// AddSlot registers a new slot with an empty counter. Times are stored as
// zero-padded HH:mm so they compare in clock order.
func (r *SlotRegistry) AddSlot(s Slot) error {
	if s.ID == "" {
		return invalid("slot id is required")
	}
	if s.ProviderID == "" {
		return invalid("slot provider id is required")
	}
	if _, err := time.Parse(dateLayout, s.Date); err != nil {
		return invalid("slot date %q must be YYYY-MM-DD", s.Date)
	}
	start, err := time.Parse(timeLayout, s.StartTime)
	if err != nil {
		return invalid("slot start time %q must be HH:mm", s.StartTime)
	}
	end, err := time.Parse(timeLayout, s.EndTime)
	if err != nil {
		return invalid("slot end time %q must be HH:mm", s.EndTime)
	}
	if !start.Before(end) {
		return invalid("slot start time must be before end time")
	}
	s.StartTime = start.Format(timeLayout)
	s.EndTime = end.Format(timeLayout)
	if s.MaxPatients < 1 {
		return invalid("slot max patients must be at least 1")
	}
	if _, err := r.catalog.GetProvider(s.ProviderID); err != nil {
		return err
	}
	s.BookedCount = 0

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.slots[s.ID]; ok {
		return invalid("slot %q already exists", s.ID)
	}
	for _, rec := range r.slots {
		other := rec.slot
		if other.ProviderID != s.ProviderID || other.Date != s.Date {
			continue
		}
		if s.StartTime < other.EndTime && other.StartTime < s.EndTime {
			return invalid("slot %s %s-%s overlaps slot %q", s.Date, s.StartTime, s.EndTime, other.ID)
		}
	}
	r.slots[s.ID] = &slotRecord{slot: s}
	return nil
}

func (r *SlotRegistry) record(id string) (*slotRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.slots[id]
	return rec, ok
}

func (r *SlotRegistry) GetSlot(id string) (Slot, error) {
	rec, ok := r.record(id)
	if !ok {
		return Slot{}, notFound("slot", id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.slot, nil
}

// ListSlots returns the provider's slots ordered by date then start time.
// An empty date matches every date.
func (r *SlotRegistry) ListSlots(providerID, date string) []Slot {
	r.mu.RLock()
	recs := make([]*slotRecord, 0)
	for _, rec := range r.slots {
		if rec.slot.ProviderID == providerID && (date == "" || rec.slot.Date == date) {
			recs = append(recs, rec)
		}
	}
	r.mu.RUnlock()

	return snapshot(recs)
}

// Slots returns every registered slot, ordered.
func (r *SlotRegistry) Slots() []Slot {
	r.mu.RLock()
	recs := make([]*slotRecord, 0, len(r.slots))
	for _, rec := range r.slots {
		recs = append(recs, rec)
	}
	r.mu.RUnlock()

	return snapshot(recs)
}

func snapshot(recs []*slotRecord) []Slot {
	out := make([]Slot, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, rec.slot)
		rec.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ReserveCapacity takes one seat if the slot has room.
func (r *SlotRegistry) ReserveCapacity(id string) error {
	rec, ok := r.record(id)
	if !ok {
		return notFound("slot", id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.slot.BookedCount >= rec.slot.MaxPatients {
		return fmt.Errorf("%w: slot %q", ErrSlotFull, id)
	}
	rec.slot.BookedCount++
	return nil
}

// ReleaseCapacity returns one seat. The counter never goes below zero.
func (r *SlotRegistry) ReleaseCapacity(id string) error {
	rec, ok := r.record(id)
	if !ok {
		return notFound("slot", id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.slot.BookedCount > 0 {
		rec.slot.BookedCount--
	}
	return nil
}

// Restore sets a counter rebuilt from the persisted ledger.
func (r *SlotRegistry) Restore(id string, booked int) error {
	rec, ok := r.record(id)
	if !ok {
		return notFound("slot", id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if booked < 0 || booked > rec.slot.MaxPatients {
		return invalid("slot %q cannot hold %d bookings (max %d)", id, booked, rec.slot.MaxPatients)
	}
	rec.slot.BookedCount = booked
	return nil
}

// SlotEnd is the instant the slot's interval closes in loc.
func SlotEnd(s Slot, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout+" "+timeLayout, s.Date+" "+s.EndTime, loc)
}
