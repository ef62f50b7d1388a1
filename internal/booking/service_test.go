package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careslot/careslot/internal/identity"
)

// localLocker serializes critical sections in-process, standing in for the
// Redis slot locker.
type localLocker struct {
	mu sync.Mutex
}

func (l *localLocker) WithSlotLock(ctx context.Context, slotKey string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

var testClock = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	svc := NewService(repo, &localLocker{}, zerolog.Nop())
	svc.now = func() time.Time { return testClock }
	return svc, repo
}

func patientIdent(name string) identity.Identity {
	return identity.Identity{UserID: uuid.New(), Username: name, Role: identity.RolePatient}
}

func staffIdent(name string) identity.Identity {
	return identity.Identity{UserID: uuid.New(), Username: name, Role: identity.RoleStaff}
}

func validInput(date time.Time, slotTime string) BookingInput {
	return BookingInput{
		PatientName: "Jane Doe",
		PatientAge:  34,
		Date:        date,
		SlotTime:    slotTime,
		Purpose:     "General checkup",
	}
}

func TestBook_Succeeds(t *testing.T) {
	svc, _ := newTestService(t)
	u := patientIdent("u1")

	appt, err := svc.Book(context.Background(), u, validInput(time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), "09:00"))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if appt.Status != StatusActive {
		t.Errorf("status = %s, want active", appt.Status)
	}
	if appt.OwnerID != u.UserID {
		t.Errorf("owner = %s, want %s", appt.OwnerID, u.UserID)
	}
	if appt.SlotTime != "09:00" {
		t.Errorf("slot time = %q, want 09:00", appt.SlotTime)
	}
}

func TestBook_SlotConflictLeavesStoreUnchanged(t *testing.T) {
	svc, repo := newTestService(t)
	date := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	if _, err := svc.Book(context.Background(), patientIdent("u1"), validInput(date, "09:00")); err != nil {
		t.Fatalf("first book: %v", err)
	}

	_, err := svc.Book(context.Background(), patientIdent("u2"), validInput(date, "09:00"))
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("second book error = %v, want ErrSlotConflict", err)
	}

	stats, _ := repo.CountByStatus(context.Background())
	if stats.Total != 1 {
		t.Errorf("store count = %d, want 1", stats.Total)
	}
}

func TestBook_CancelledSlotCanBeRebooked(t *testing.T) {
	svc, _ := newTestService(t)
	date := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	u1 := patientIdent("u1")

	appt, err := svc.Book(context.Background(), u1, validInput(date, "09:00"))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, _, err := svc.Cancel(context.Background(), u1, appt.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if _, err := svc.Book(context.Background(), patientIdent("u2"), validInput(date, "09:00")); err != nil {
		t.Errorf("rebooking a cancelled slot: %v, want success", err)
	}
}

func TestBook_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	u := patientIdent("u1")
	future := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		in   BookingInput
		want error
	}{
		{
			name: "past date",
			in:   validInput(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), "09:00"),
			want: ErrPastDate,
		},
		{
			name: "off-grid time",
			in:   validInput(future, "09:15"),
			want: ErrInvalidSlot,
		},
		{
			name: "before opening",
			in:   validInput(future, "08:30"),
			want: ErrInvalidSlot,
		},
		{
			name: "age zero",
			in: BookingInput{
				PatientName: "Jane Doe", PatientAge: 0,
				Date: future, SlotTime: "09:00", Purpose: "checkup",
			},
			want: ErrInvalidAge,
		},
		{
			name: "age too high",
			in: BookingInput{
				PatientName: "Jane Doe", PatientAge: 121,
				Date: future, SlotTime: "09:00", Purpose: "checkup",
			},
			want: ErrInvalidAge,
		},
		{
			name: "missing name",
			in: BookingInput{
				PatientAge: 34, Date: future, SlotTime: "09:00", Purpose: "checkup",
			},
			want: ErrInvalidName,
		},
		{
			name: "missing purpose",
			in: BookingInput{
				PatientName: "Jane Doe", PatientAge: 34,
				Date: future, SlotTime: "09:00",
			},
			want: ErrMissingPurpose,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Book(context.Background(), u, tc.in)
			if !errors.Is(err, tc.want) {
				t.Errorf("error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestBook_TodayIsAllowed(t *testing.T) {
	svc, _ := newTestService(t)

	// testClock is 2025-01-01 08:00 UTC
	if _, err := svc.Book(context.Background(), patientIdent("u1"), validInput(testClock, "09:00")); err != nil {
		t.Errorf("booking for today: %v, want success", err)
	}
}

func TestReschedule_OwnSlotIsNotAConflict(t *testing.T) {
	svc, _ := newTestService(t)
	u := patientIdent("u1")
	date := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	appt, err := svc.Book(context.Background(), u, validInput(date, "09:00"))
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	updated, err := svc.Reschedule(context.Background(), u, appt.ID, validInput(date, "09:00"))
	if err != nil {
		t.Fatalf("reschedule onto own slot: %v, want success", err)
	}
	if updated.SlotTime != "09:00" || !updated.Date.Equal(date) {
		t.Errorf("slot after reschedule = (%s, %s), want unchanged", updated.Date.Format("2006-01-02"), updated.SlotTime)
	}
}

func TestReschedule_MovesSlot(t *testing.T) {
	svc, repo := newTestService(t)
	u := patientIdent("u1")
	date := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	appt, err := svc.Book(context.Background(), u, validInput(date, "09:00"))
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	in := validInput(date, "10:30")
	in.PatientName = "Jane Q. Doe"
	updated, err := svc.Reschedule(context.Background(), u, appt.ID, in)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if updated.SlotTime != "10:30" {
		t.Errorf("slot time = %q, want 10:30", updated.SlotTime)
	}
	if updated.PatientName != "Jane Q. Doe" {
		t.Errorf("patient name not updated: %q", updated.PatientName)
	}
	if updated.Status != StatusActive {
		t.Errorf("status = %s, want active", updated.Status)
	}

	// The old slot is free again.
	taken, _ := repo.HasActiveAt(context.Background(), date, "09:00", uuid.Nil)
	if taken {
		t.Error("old slot still reads as taken after reschedule")
	}
}

func TestReschedule_ConflictWithOtherAppointment(t *testing.T) {
	svc, _ := newTestService(t)
	date := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	u1 := patientIdent("u1")

	if _, err := svc.Book(context.Background(), u1, validInput(date, "09:00")); err != nil {
		t.Fatalf("book u1: %v", err)
	}

	u2 := patientIdent("u2")
	appt2, err := svc.Book(context.Background(), u2, validInput(date, "09:30"))
	if err != nil {
		t.Fatalf("book u2: %v", err)
	}

	_, err = svc.Reschedule(context.Background(), u2, appt2.ID, validInput(date, "09:00"))
	if !errors.Is(err, ErrSlotConflict) {
		t.Errorf("reschedule onto taken slot: %v, want ErrSlotConflict", err)
	}
}

func TestReschedule_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Reschedule(context.Background(), patientIdent("u1"), uuid.New(),
		validInput(time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), "09:00"))
	if !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("error = %v, want ErrAppointmentNotFound", err)
	}
}

func TestReschedule_CancelledIsInvalidState(t *testing.T) {
	svc, _ := newTestService(t)
	u := patientIdent("u1")
	date := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	appt, err := svc.Book(context.Background(), u, validInput(date, "09:00"))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, _, err := svc.Cancel(context.Background(), u, appt.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	_, err = svc.Reschedule(context.Background(), u, appt.ID, validInput(date, "10:00"))
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("reschedule cancelled: %v, want ErrInvalidState", err)
	}
}

func TestReschedule_ForbiddenForNonOwner(t *testing.T) {
	svc, repo := newTestService(t)
	owner := patientIdent("owner")
	date := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	appt, err := svc.Book(context.Background(), owner, validInput(date, "09:00"))
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	_, err = svc.Reschedule(context.Background(), patientIdent("intruder"), appt.ID, validInput(date, "10:00"))
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("reschedule by non-owner: %v, want ErrForbidden", err)
	}

	stored, _ := repo.GetByID(context.Background(), appt.ID)
	if stored.SlotTime != "09:00" {
		t.Errorf("appointment modified despite Forbidden: slot = %q", stored.SlotTime)
	}
}

func TestReschedule_StaffMayMoveAnyAppointment(t *testing.T) {
	svc, _ := newTestService(t)
	date := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	appt, err := svc.Book(context.Background(), patientIdent("owner"), validInput(date, "09:00"))
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	if _, err := svc.Reschedule(context.Background(), staffIdent("admin"), appt.ID, validInput(date, "10:00")); err != nil {
		t.Errorf("staff reschedule: %v, want success", err)
	}
}

func TestCancel_Idempotent(t *testing.T) {
	svc, _ := newTestService(t)
	u := patientIdent("u1")
	date := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	appt, err := svc.Book(context.Background(), u, validInput(date, "09:00"))
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	first, already, err := svc.Cancel(context.Background(), u, appt.ID)
	if err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if already {
		t.Error("first cancel reported already-cancelled")
	}
	if first.Status != StatusCancelled {
		t.Errorf("status after first cancel = %s, want cancelled", first.Status)
	}

	second, already, err := svc.Cancel(context.Background(), u, appt.ID)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if !already {
		t.Error("second cancel did not report already-cancelled")
	}
	if second.Status != StatusCancelled {
		t.Errorf("status after second cancel = %s, want cancelled", second.Status)
	}
}

func TestCancel_ForbiddenForNonOwner(t *testing.T) {
	svc, repo := newTestService(t)
	owner := patientIdent("owner")
	date := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	appt, err := svc.Book(context.Background(), owner, validInput(date, "09:00"))
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	_, _, err = svc.Cancel(context.Background(), patientIdent("intruder"), appt.ID)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("cancel by non-owner: %v, want ErrForbidden", err)
	}

	stored, _ := repo.GetByID(context.Background(), appt.ID)
	if stored.Status != StatusActive {
		t.Errorf("appointment modified despite Forbidden: status = %s", stored.Status)
	}
}

func TestCancel_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.Cancel(context.Background(), patientIdent("u1"), uuid.New())
	if !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("error = %v, want ErrAppointmentNotFound", err)
	}
}

func TestListAll_ForbiddenForPatients(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.ListAll(context.Background(), patientIdent("u1")); !errors.Is(err, ErrForbidden) {
		t.Errorf("ListAll error = %v, want ErrForbidden", err)
	}
	if _, err := svc.Stats(context.Background(), patientIdent("u1")); !errors.Is(err, ErrForbidden) {
		t.Errorf("Stats error = %v, want ErrForbidden", err)
	}
}

func TestScenario_TwoUsersAndStaffListing(t *testing.T) {
	svc, _ := newTestService(t)
	date := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	u1 := patientIdent("u1")
	u2 := patientIdent("u2")

	if _, err := svc.Book(context.Background(), u1, validInput(date, "09:00")); err != nil {
		t.Fatalf("u1 book: %v", err)
	}

	if _, err := svc.Book(context.Background(), u2, validInput(date, "09:00")); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("u2 book same slot: %v, want ErrSlotConflict", err)
	}

	if _, err := svc.Book(context.Background(), u2, validInput(date, "09:30")); err != nil {
		t.Fatalf("u2 book 09:30: %v", err)
	}

	all, err := svc.ListAll(context.Background(), staffIdent("admin"))
	if err != nil {
		t.Fatalf("staff list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("staff sees %d appointments, want 2", len(all))
	}
	// Descending within the same date: 09:30 precedes 09:00.
	if all[0].SlotTime != "09:30" || all[1].SlotTime != "09:00" {
		t.Errorf("ordering = [%s, %s], want [09:30, 09:00]", all[0].SlotTime, all[1].SlotTime)
	}
}

func TestListMine_OnlyOwnAndOrdered(t *testing.T) {
	svc, _ := newTestService(t)
	u1 := patientIdent("u1")
	u2 := patientIdent("u2")

	d1 := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC)

	if _, err := svc.Book(context.Background(), u1, validInput(d1, "09:00")); err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := svc.Book(context.Background(), u1, validInput(d2, "16:30")); err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := svc.Book(context.Background(), u2, validInput(d1, "10:00")); err != nil {
		t.Fatalf("book: %v", err)
	}

	mine, err := svc.ListMine(context.Background(), u1)
	if err != nil {
		t.Fatalf("list mine: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("u1 sees %d appointments, want 2", len(mine))
	}
	// Most recent first: the later date leads.
	if !mine[0].Date.Equal(d2) || !mine[1].Date.Equal(d1) {
		t.Errorf("ordering = [%s, %s], want later date first",
			mine[0].Date.Format("2006-01-02"), mine[1].Date.Format("2006-01-02"))
	}
}

func TestBook_ConcurrentSameSlotSingleWinner(t *testing.T) {
	svc, repo := newTestService(t)
	date := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	const attempts = 16

	var (
		wg        sync.WaitGroup
		successes int64
		conflicts int64
		mu        sync.Mutex
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			u := patientIdent("concurrent")
			_, err := svc.Book(context.Background(), u, validInput(date, "14:00"))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrSlotConflict), errors.Is(err, ErrSlotBeingBooked):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
	if conflicts != attempts-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, attempts-1)
	}

	taken, _ := repo.HasActiveAt(context.Background(), date, "14:00", uuid.Nil)
	if !taken {
		t.Error("winning booking not visible in store")
	}
}

func TestCompleteElapsed(t *testing.T) {
	svc, repo := newTestService(t)

	// Inserted directly: elapsed appointments cannot be booked through the
	// service once their date is past.
	past := &Appointment{
		ID:          uuid.New(),
		OwnerID:     uuid.New(),
		PatientName: "Old Booking",
		PatientAge:  50,
		Date:        time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC),
		SlotTime:    "09:00",
		Purpose:     "checkup",
		Status:      StatusActive,
	}
	if _, err := repo.Create(context.Background(), past); err != nil {
		t.Fatalf("insert past appointment: %v", err)
	}

	upcoming, err := svc.Book(context.Background(), patientIdent("u1"),
		validInput(time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), "09:00"))
	if err != nil {
		t.Fatalf("book upcoming: %v", err)
	}

	if err := svc.CompleteElapsed(context.Background()); err != nil {
		t.Fatalf("complete elapsed: %v", err)
	}

	completed, _ := repo.GetByID(context.Background(), past.ID)
	if completed.Status != StatusCompleted {
		t.Errorf("elapsed appointment status = %s, want completed", completed.Status)
	}

	untouched, _ := repo.GetByID(context.Background(), upcoming.ID)
	if untouched.Status != StatusActive {
		t.Errorf("upcoming appointment status = %s, want active", untouched.Status)
	}
}

func TestBook_RecordsEvent(t *testing.T) {
	svc, repo := newTestService(t)
	u := patientIdent("u1")
	date := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	appt, err := svc.Book(context.Background(), u, validInput(date, "09:00"))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, _, err := svc.Cancel(context.Background(), u, appt.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	events := repo.Events()
	if len(events) != 2 {
		t.Fatalf("event count = %d, want 2", len(events))
	}
	if events[0].EventType != EventBooked || events[1].EventType != EventCancelled {
		t.Errorf("event types = [%s, %s], want [booked, cancelled]", events[0].EventType, events[1].EventType)
	}
	if events[0].AppointmentID == nil || *events[0].AppointmentID != appt.ID {
		t.Error("booked event does not reference the appointment")
	}
}

func TestStats(t *testing.T) {
	svc, _ := newTestService(t)
	u := patientIdent("u1")
	date := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	a1, err := svc.Book(context.Background(), u, validInput(date, "09:00"))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := svc.Book(context.Background(), u, validInput(date, "09:30")); err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, _, err := svc.Cancel(context.Background(), u, a1.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	stats, err := svc.Stats(context.Background(), staffIdent("admin"))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 2 || stats.Active != 1 || stats.Cancelled != 1 {
		t.Errorf("stats = %+v, want total=2 active=1 cancelled=1", stats)
	}
}
