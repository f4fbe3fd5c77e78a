package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fixture struct {
	catalog *Catalog
	slots   *SlotRegistry
	repo    *MemoryRepository
	ledger  *Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithRepo(t, nil)
}

func newFixtureWithRepo(t *testing.T, repo Repository) *fixture {
	t.Helper()

	f := &fixture{
		catalog: NewCatalog(),
		repo:    NewMemoryRepository(),
	}
	f.slots = NewSlotRegistry(f.catalog)
	if repo == nil {
		repo = f.repo
	}

	mustNoErr(t, f.catalog.AddProvider(Provider{
		ID:              "d1",
		Name:            "Dr. Test",
		Specialty:       SpecialtyGeneralPhysician,
		ConsultationFee: 500,
		IsActive:        true,
	}))
	for _, id := range []string{"p1", "p2", "p3"} {
		mustNoErr(t, f.catalog.AddPatient(Patient{ID: id, Name: "Patient " + id, Mobile: "98200000" + id[1:]}))
	}

	f.ledger = NewLedger(LedgerConfig{
		Catalog:          f.catalog,
		Slots:            f.slots,
		Repo:             repo,
		Logger:           zerolog.Nop(),
		VerifyInvariants: true,
	})
	return f
}

func (f *fixture) addSlot(t *testing.T, id, start, end string, max int) {
	t.Helper()
	mustNoErr(t, f.slots.AddSlot(Slot{
		ID:          id,
		ProviderID:  "d1",
		Date:        "2025-01-15",
		StartTime:   start,
		EndTime:     end,
		MaxPatients: max,
	}))
}

func (f *fixture) book(t *testing.T, patientID, slotID string) *Appointment {
	t.Helper()
	appt, err := f.ledger.CreateAppointment(context.Background(), CreateRequest{
		PatientID:  patientID,
		ProviderID: "d1",
		SlotID:     slotID,
	})
	if err != nil {
		t.Fatalf("book %s into %s: %v", patientID, slotID, err)
	}
	return appt
}

func (f *fixture) booked(t *testing.T, slotID string) int {
	t.Helper()
	s, err := f.slots.GetSlot(slotID)
	mustNoErr(t, err)
	return s.BookedCount
}

func mustNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLedger_BookCancelRebook(t *testing.T) {
	f := newFixture(t)
	f.addSlot(t, "s1", "09:00", "10:00", 1)
	ctx := context.Background()

	a1 := f.book(t, "p1", "s1")
	if a1.Status != StatusScheduled {
		t.Fatalf("expected scheduled, got %s", a1.Status)
	}
	if a1.TokenNumber == nil || *a1.TokenNumber != 1 {
		t.Fatalf("expected token 1, got %v", a1.TokenNumber)
	}
	if a1.ConsultationFee != 500 {
		t.Fatalf("expected fee snapshot 500, got %d", a1.ConsultationFee)
	}
	if a1.PaymentStatus != PaymentPending {
		t.Fatalf("expected payment pending, got %s", a1.PaymentStatus)
	}

	s, _ := f.slots.GetSlot("s1")
	if s.BookedCount != 1 || s.IsAvailable() {
		t.Fatalf("expected full slot, got booked=%d available=%v", s.BookedCount, s.IsAvailable())
	}

	_, err := f.ledger.CreateAppointment(ctx, CreateRequest{PatientID: "p2", ProviderID: "d1", SlotID: "s1"})
	if !errors.Is(err, ErrSlotFull) {
		t.Fatalf("expected ErrSlotFull, got %v", err)
	}
	if got := f.booked(t, "s1"); got != 1 {
		t.Fatalf("failed booking changed counter to %d", got)
	}

	cancelled, err := f.ledger.Cancel(ctx, a1.ID, "patient request")
	mustNoErr(t, err)
	if cancelled.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if cancelled.CancellationReason == nil || *cancelled.CancellationReason != "patient request" {
		t.Fatalf("expected cancellation reason, got %v", cancelled.CancellationReason)
	}
	if got := f.booked(t, "s1"); got != 0 {
		t.Fatalf("expected counter 0 after cancel, got %d", got)
	}

	a2 := f.book(t, "p2", "s1")
	if *a2.TokenNumber != 2 {
		t.Fatalf("expected token 2 after cancel, got %d", *a2.TokenNumber)
	}
}

func TestLedger_ConcurrentBookingNeverOverbooks(t *testing.T) {
	const max, extra = 5, 15

	f := newFixture(t)
	f.addSlot(t, "s1", "09:00", "10:00", max)
	for i := 0; i < max+extra; i++ {
		id := "cp" + string(rune('a'+i))
		mustNoErr(t, f.catalog.AddPatient(Patient{ID: id, Name: id}))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		full    int
		others  []error
		tokens  = map[int]bool{}
		release = make(chan struct{})
	)
	for i := 0; i < max+extra; i++ {
		wg.Add(1)
		go func(patientID string) {
			defer wg.Done()
			<-release
			appt, err := f.ledger.CreateAppointment(context.Background(), CreateRequest{
				PatientID: patientID, ProviderID: "d1", SlotID: "s1",
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
				tokens[*appt.TokenNumber] = true
			case errors.Is(err, ErrSlotFull):
				full++
			default:
				others = append(others, err)
			}
		}("cp" + string(rune('a'+i)))
	}
	close(release)
	wg.Wait()

	if len(others) > 0 {
		t.Fatalf("unexpected errors: %v", others)
	}
	if ok != max || full != extra {
		t.Fatalf("expected %d created and %d full, got %d and %d", max, extra, ok, full)
	}
	for n := 1; n <= max; n++ {
		if !tokens[n] {
			t.Fatalf("token %d missing from %v", n, tokens)
		}
	}
	if got := f.booked(t, "s1"); got != max {
		t.Fatalf("expected counter %d, got %d", max, got)
	}
	mustNoErr(t, f.ledger.VerifySlot(context.Background(), "s1"))
}

func TestLedger_ConcurrentCancelReleasesOnce(t *testing.T) {
	f := newFixture(t)
	f.addSlot(t, "s1", "09:00", "10:00", 2)
	a := f.book(t, "p1", "s1")
	f.book(t, "p2", "s1")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Cancel(context.Background(), a.ID, "")
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("expected exactly one successful cancel, got %d", succeeded)
	}
	if got := f.booked(t, "s1"); got != 1 {
		t.Fatalf("expected counter 1, got %d", got)
	}
}

func TestLedger_TransitionFlow(t *testing.T) {
	f := newFixture(t)
	f.addSlot(t, "s1", "09:00", "10:00", 3)
	ctx := context.Background()
	a := f.book(t, "p1", "s1")

	for _, next := range []Status{StatusCheckedIn, StatusInConsultation, StatusCompleted} {
		got, err := f.ledger.Transition(ctx, a.ID, next)
		mustNoErr(t, err)
		if got.Status != next {
			t.Fatalf("expected %s, got %s", next, got.Status)
		}
	}

	// completed keeps its seat
	if got := f.booked(t, "s1"); got != 1 {
		t.Fatalf("expected completed appointment to hold its seat, counter %d", got)
	}

	events, err := f.ledger.History(ctx, a.ID)
	mustNoErr(t, err)
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if events[0].Type != EventAppointmentCreated || events[0].From != nil {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	last := events[3]
	if last.Type != EventAppointmentStatusChanged || *last.From != StatusInConsultation || last.To != StatusCompleted {
		t.Fatalf("unexpected last event %+v", last)
	}
}

func TestLedger_InvalidTransitions(t *testing.T) {
	all := []Status{StatusScheduled, StatusCheckedIn, StatusInConsultation, StatusCompleted, StatusCancelled, StatusNoShow}

	// paths that reach each status from scheduled
	reach := map[Status][]Status{
		StatusScheduled:      nil,
		StatusCheckedIn:      {StatusCheckedIn},
		StatusInConsultation: {StatusCheckedIn, StatusInConsultation},
		StatusCompleted:      {StatusCheckedIn, StatusInConsultation, StatusCompleted},
		StatusCancelled:      {StatusCancelled},
		StatusNoShow:         {StatusNoShow},
	}

	for _, from := range all {
		for _, to := range all {
			if CanTransition(from, to) {
				continue
			}
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				f := newFixture(t)
				f.addSlot(t, "s1", "09:00", "10:00", 1)
				ctx := context.Background()
				a := f.book(t, "p1", "s1")
				for _, step := range reach[from] {
					_, err := f.ledger.Transition(ctx, a.ID, step)
					mustNoErr(t, err)
				}
				before := f.booked(t, "s1")

				_, err := f.ledger.Transition(ctx, a.ID, to)
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("expected ErrInvalidTransition, got %v", err)
				}

				stored, err := f.ledger.GetAppointment(ctx, a.ID)
				mustNoErr(t, err)
				if stored.Status != from {
					t.Fatalf("status changed to %s", stored.Status)
				}
				if got := f.booked(t, "s1"); got != before {
					t.Fatalf("counter changed from %d to %d", before, got)
				}
			})
		}
	}
}

func TestLedger_DoubleCancel(t *testing.T) {
	f := newFixture(t)
	f.addSlot(t, "s1", "09:00", "10:00", 2)
	ctx := context.Background()
	a := f.book(t, "p1", "s1")

	_, err := f.ledger.Cancel(ctx, a.ID, "")
	mustNoErr(t, err)
	_, err = f.ledger.Cancel(ctx, a.ID, "again")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if got := f.booked(t, "s1"); got != 0 {
		t.Fatalf("expected counter 0, got %d", got)
	}

	stored, _ := f.ledger.GetAppointment(ctx, a.ID)
	if stored.CancellationReason != nil {
		t.Fatalf("expected no reason, got %q", *stored.CancellationReason)
	}
}

func TestLedger_NoShowReleasesSeat(t *testing.T) {
	f := newFixture(t)
	f.addSlot(t, "s1", "09:00", "10:00", 1)
	a := f.book(t, "p1", "s1")

	_, err := f.ledger.Transition(context.Background(), a.ID, StatusNoShow)
	mustNoErr(t, err)
	if got := f.booked(t, "s1"); got != 0 {
		t.Fatalf("expected counter 0, got %d", got)
	}
	f.book(t, "p2", "s1")
}

func TestLedger_CreateRejections(t *testing.T) {
	f := newFixture(t)
	f.addSlot(t, "s1", "09:00", "10:00", 1)
	mustNoErr(t, f.catalog.AddProvider(Provider{ID: "d2", Name: "Dr. Two", Specialty: SpecialtyENT, IsActive: true}))
	mustNoErr(t, f.catalog.AddProvider(Provider{ID: "d3", Name: "Dr. Off", Specialty: SpecialtyENT}))

	tests := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{"missing patient", CreateRequest{ProviderID: "d1", SlotID: "s1"}, ErrValidation},
		{"missing doctor", CreateRequest{PatientID: "p1", SlotID: "s1"}, ErrValidation},
		{"missing slot", CreateRequest{PatientID: "p1", ProviderID: "d1"}, ErrValidation},
		{"unknown patient", CreateRequest{PatientID: "nope", ProviderID: "d1", SlotID: "s1"}, ErrNotFound},
		{"unknown doctor", CreateRequest{PatientID: "p1", ProviderID: "nope", SlotID: "s1"}, ErrNotFound},
		{"unknown slot", CreateRequest{PatientID: "p1", ProviderID: "d1", SlotID: "nope"}, ErrNotFound},
		{"inactive doctor", CreateRequest{PatientID: "p1", ProviderID: "d3", SlotID: "s1"}, ErrValidation},
		{"slot of another doctor", CreateRequest{PatientID: "p1", ProviderID: "d2", SlotID: "s1"}, ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.CreateAppointment(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if got := f.booked(t, "s1"); got != 0 {
		t.Fatalf("rejected requests changed counter to %d", got)
	}
}

func TestLedger_TransitionUnknown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.ledger.Transition(ctx, "missing", StatusCheckedIn); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.ledger.Transition(ctx, "", StatusCheckedIn); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := f.ledger.Transition(ctx, "missing", Status("archived")); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown status, got %v", err)
	}
	if _, err := f.ledger.History(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for history, got %v", err)
	}
}

type failingInsertRepo struct {
	*MemoryRepository
}

func (failingInsertRepo) InsertAppointment(context.Context, *Appointment) error {
	return errors.New("disk full")
}

func TestLedger_InsertFailureReleasesSeat(t *testing.T) {
	mem := NewMemoryRepository()
	f := newFixtureWithRepo(t, failingInsertRepo{mem})
	f.addSlot(t, "s1", "09:00", "10:00", 1)

	_, err := f.ledger.CreateAppointment(context.Background(), CreateRequest{PatientID: "p1", ProviderID: "d1", SlotID: "s1"})
	if err == nil {
		t.Fatal("expected insert failure")
	}
	if errors.Is(err, ErrSlotFull) {
		t.Fatalf("unexpected slot full: %v", err)
	}
	if got := f.booked(t, "s1"); got != 0 {
		t.Fatalf("expected seat released after failed insert, counter %d", got)
	}
}

type recordingMetrics struct {
	mu          sync.Mutex
	outcomes    map[string]int
	transitions int
	released    int
}

func (m *recordingMetrics) BookingAttempt(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcome]++
}

func (m *recordingMetrics) StatusTransition(Status, Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions++
}

func (m *recordingMetrics) CapacityReleased() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released++
}

func TestLedger_ReportsMetrics(t *testing.T) {
	f := newFixture(t)
	m := &recordingMetrics{outcomes: map[string]int{}}
	f.ledger = NewLedger(LedgerConfig{
		Catalog: f.catalog,
		Slots:   f.slots,
		Repo:    f.repo,
		Logger:  zerolog.Nop(),
		Metrics: m,
	})
	f.addSlot(t, "s1", "09:00", "10:00", 1)
	ctx := context.Background()

	a := f.book(t, "p1", "s1")
	_, _ = f.ledger.CreateAppointment(ctx, CreateRequest{PatientID: "p2", ProviderID: "d1", SlotID: "s1"})
	_, _ = f.ledger.CreateAppointment(ctx, CreateRequest{PatientID: "nope", ProviderID: "d1", SlotID: "s1"})
	_, err := f.ledger.Cancel(ctx, a.ID, "")
	mustNoErr(t, err)

	if m.outcomes[OutcomeCreated] != 1 || m.outcomes[OutcomeSlotFull] != 1 || m.outcomes[OutcomeRejected] != 1 {
		t.Fatalf("unexpected outcomes %v", m.outcomes)
	}
	if m.transitions != 1 || m.released != 1 {
		t.Fatalf("expected 1 transition and 1 release, got %d and %d", m.transitions, m.released)
	}
}

// droppingInsertRepo acknowledges inserts without storing them.
type droppingInsertRepo struct {
	*MemoryRepository
}

func (droppingInsertRepo) InsertAppointment(context.Context, *Appointment) error {
	return nil
}

func TestLedger_VerifyInvariantsPanicsOnDrift(t *testing.T) {
	f := newFixtureWithRepo(t, droppingInsertRepo{NewMemoryRepository()})
	f.addSlot(t, "s1", "09:00", "10:00", 3)

	defer func() {
		if recover() == nil {
			t.Fatal("expected invariant panic")
		}
	}()
	f.book(t, "p1", "s1")
}

func TestLedger_RestoreCounters(t *testing.T) {
	f := newFixture(t)
	f.addSlot(t, "s1", "09:00", "10:00", 3)
	f.addSlot(t, "s2", "10:00", "11:00", 3)
	ctx := context.Background()

	f.book(t, "p1", "s1")
	a := f.book(t, "p2", "s1")
	_, err := f.ledger.Cancel(ctx, a.ID, "")
	mustNoErr(t, err)
	f.book(t, "p3", "s2")

	// a fresh registry over the same ledger, as after a restart
	slots := NewSlotRegistry(f.catalog)
	for _, s := range f.slots.Slots() {
		s.BookedCount = 0
		mustNoErr(t, slots.AddSlot(s))
	}
	restarted := NewLedger(LedgerConfig{Catalog: f.catalog, Slots: slots, Repo: f.repo, Logger: zerolog.Nop()})
	mustNoErr(t, restarted.RestoreCounters(ctx))

	for id, want := range map[string]int{"s1": 1, "s2": 1} {
		s, _ := slots.GetSlot(id)
		if s.BookedCount != want {
			t.Fatalf("slot %s: expected %d, got %d", id, want, s.BookedCount)
		}
	}

	// tokens continue past the highest ever issued
	appt, err := restarted.CreateAppointment(ctx, CreateRequest{PatientID: "p3", ProviderID: "d1", SlotID: "s1"})
	mustNoErr(t, err)
	if *appt.TokenNumber != 3 {
		t.Fatalf("expected token 3, got %d", *appt.TokenNumber)
	}
}

func TestLedger_ListByPatient(t *testing.T) {
	f := newFixture(t)
	f.addSlot(t, "s1", "09:00", "10:00", 5)
	f.addSlot(t, "s2", "10:00", "11:00", 5)

	clock := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	f.ledger.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	first := f.book(t, "p1", "s1")
	second := f.book(t, "p1", "s2")
	f.book(t, "p2", "s1")

	got, err := f.ledger.ListByPatient(context.Background(), "p1", 0, 0)
	mustNoErr(t, err)
	if len(got) != 2 || got[0].ID != second.ID || got[1].ID != first.ID {
		t.Fatalf("expected newest first, got %+v", got)
	}

	page, err := f.ledger.ListByPatient(context.Background(), "p1", 1, 1)
	mustNoErr(t, err)
	if len(page) != 1 || page[0].ID != first.ID {
		t.Fatalf("unexpected page %+v", page)
	}

	bySlot, err := f.ledger.ListBySlot(context.Background(), "s1")
	mustNoErr(t, err)
	if len(bySlot) != 2 || bySlot[0].ID != first.ID {
		t.Fatalf("unexpected slot listing %+v", bySlot)
	}
}

// newPeer builds a second ledger over the same repository and locker, with its
// own catalog and counters, the way another api-server process sees them.
func (f *fixture) newPeer(t *testing.T, locker Locker) *Ledger {
	t.Helper()

	catalog := NewCatalog()
	provider, err := f.catalog.GetProvider("d1")
	mustNoErr(t, err)
	mustNoErr(t, catalog.AddProvider(provider))
	for _, id := range []string{"p1", "p2", "p3"} {
		p, err := f.catalog.GetPatient(id)
		mustNoErr(t, err)
		mustNoErr(t, catalog.AddPatient(p))
	}
	slots := NewSlotRegistry(catalog)
	for _, s := range f.slots.Slots() {
		mustNoErr(t, slots.AddSlot(s))
	}

	peer := NewLedger(LedgerConfig{
		Catalog:          catalog,
		Slots:            slots,
		Repo:             f.repo,
		Locker:           locker,
		Logger:           zerolog.Nop(),
		VerifyInvariants: true,
	})
	mustNoErr(t, peer.RestoreCounters(context.Background()))
	return peer
}

func TestLedger_SharedRepositoryNeverOverbooks(t *testing.T) {
	locker := NewLocalLocker()
	f := newFixture(t)
	f.ledger = NewLedger(LedgerConfig{
		Catalog:          f.catalog,
		Slots:            f.slots,
		Repo:             f.repo,
		Locker:           locker,
		Logger:           zerolog.Nop(),
		VerifyInvariants: true,
	})
	f.addSlot(t, "s1", "09:00", "10:00", 1)
	peer := f.newPeer(t, locker)
	ctx := context.Background()

	first := f.book(t, "p1", "s1")
	_, err := peer.CreateAppointment(ctx, CreateRequest{PatientID: "p2", ProviderID: "d1", SlotID: "s1"})
	if !errors.Is(err, ErrSlotFull) {
		t.Fatalf("expected ErrSlotFull from the second ledger, got %v", err)
	}
	if n, _ := f.repo.CountLive(ctx, "s1"); n != 1 {
		t.Fatalf("expected 1 live appointment, got %d", n)
	}

	// a cancellation through the peer frees the seat for this ledger
	_, err = peer.Cancel(ctx, first.ID, "")
	mustNoErr(t, err)
	second := f.book(t, "p3", "s1")
	if *second.TokenNumber != 2 {
		t.Fatalf("expected token 2, got %d", *second.TokenNumber)
	}
	if got := f.booked(t, "s1"); got != 1 {
		t.Fatalf("expected counter 1, got %d", got)
	}
}

func TestLedger_SharedRepositoryConcurrentBooking(t *testing.T) {
	locker := NewLocalLocker()
	f := newFixture(t)
	f.ledger = NewLedger(LedgerConfig{
		Catalog:          f.catalog,
		Slots:            f.slots,
		Repo:             f.repo,
		Locker:           locker,
		Logger:           zerolog.Nop(),
		VerifyInvariants: true,
	})
	f.addSlot(t, "s1", "09:00", "10:00", 2)
	ledgers := []*Ledger{f.ledger, f.newPeer(t, locker), f.newPeer(t, locker)}
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(l *Ledger, patient string) {
			defer wg.Done()
			_, err := l.CreateAppointment(ctx, CreateRequest{PatientID: patient, ProviderID: "d1", SlotID: "s1"})
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			} else if !errors.Is(err, ErrSlotFull) {
				t.Errorf("unexpected error: %v", err)
			}
		}(ledgers[i%len(ledgers)], []string{"p1", "p2", "p3"}[i%3])
	}
	wg.Wait()

	if created != 2 {
		t.Fatalf("expected 2 bookings across ledgers, got %d", created)
	}
	if n, _ := f.repo.CountLive(ctx, "s1"); n != 2 {
		t.Fatalf("expected 2 live appointments, got %d", n)
	}
}
