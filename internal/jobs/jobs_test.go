package jobs

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/whatscrm/server/internal/models"
	"github.com/whatscrm/server/internal/state"
)

type fakeJobStore struct {
	businesses []models.Business
	leads      []models.Lead
	customers  map[uuid.UUID]*models.Customer
}

func (f *fakeJobStore) ListBusinesses(_ context.Context) ([]models.Business, error) {
	return f.businesses, nil
}

func (f *fakeJobStore) ListLeadsByStatus(_ context.Context, businessID uuid.UUID, status models.LeadStatus) ([]models.Lead, error) {
	var out []models.Lead
	for _, l := range f.leads {
		if l.BusinessID == businessID && l.Status == status {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeJobStore) GetCustomerByID(_ context.Context, id uuid.UUID) (*models.Customer, error) {
	return f.customers[id], nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingSender) SendMessage(_ context.Context, _ *models.Business, _ string, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	return nil
}

func TestReminderWindowDelay(t *testing.T) {
	r := NewOwnerReminder(&fakeJobStore{}, &recordingSender{}, 18, 20, nil)

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	var never time.Time
	if got := r.untilNextFire(day.Add(15*time.Hour), never); got != 3*time.Hour {
		t.Fatalf("before window: delay = %v, want 3h", got)
	}
	if got := r.untilNextFire(day.Add(19*time.Hour), never); got != 0 {
		t.Fatalf("inside window: delay = %v, want immediate", got)
	}
	if got := r.untilNextFire(day.Add(21*time.Hour), never); got != 21*time.Hour {
		t.Fatalf("after window: delay = %v, want 21h", got)
	}
	// an evening already served waits for tomorrow's window
	if got := r.untilNextFire(day.Add(19*time.Hour), day.Add(18*time.Hour)); got != 23*time.Hour {
		t.Fatalf("served window: delay = %v, want 23h", got)
	}
}

func TestReminderFiresOncePerEvening(t *testing.T) {
	r := NewOwnerReminder(&fakeJobStore{}, &recordingSender{}, 18, 20, nil)

	// replay the wake loop: each wake fires, so the wake times must land on
	// consecutive evenings rather than minute-stepping through one window
	clock := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	var lastFired time.Time
	var fires []time.Time
	for i := 0; i < 3; i++ {
		clock = clock.Add(r.untilNextFire(clock, lastFired))
		fires = append(fires, clock)
		lastFired = clock
	}

	for i, at := range fires {
		want := time.Date(2026, 3, 2+i, 18, 0, 0, 0, time.UTC)
		if !at.Equal(want) {
			t.Fatalf("fire %d at %v, want %v", i, at, want)
		}
	}
}

func TestReminderSummarizesWaitingLeads(t *testing.T) {
	businessID := uuid.New()
	customerID := uuid.New()
	waiting := models.Lead{
		ID:                 uuid.New(),
		BusinessID:         businessID,
		CustomerID:         customerID,
		DisplayNumber:      1001,
		ServiceDescription: "התריס שלי תקוע ולא נסגר",
		Status:             models.LeadStatusNew,
		Notes:              state.EncodeLead("", state.LeadState{Kind: state.WaitingForOwnerAction}),
	}
	idle := models.Lead{
		ID:            uuid.New(),
		BusinessID:    businessID,
		CustomerID:    customerID,
		DisplayNumber: 1002,
		Status:        models.LeadStatusNew,
	}
	store := &fakeJobStore{
		businesses: []models.Business{{ID: businessID, OwnerPhone: "972509999999"}},
		leads:      []models.Lead{waiting, idle},
		customers:  map[uuid.UUID]*models.Customer{customerID: {ID: customerID, Name: "דני"}},
	}
	sender := &recordingSender{}
	r := NewOwnerReminder(store, sender, 18, 20, nil)

	r.remindAll(context.Background())

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	msg := sender.sent[0]
	if !strings.Contains(msg, "#1001") || !strings.Contains(msg, "התריס שלי תקוע") || !strings.Contains(msg, "דני") {
		t.Fatalf("unexpected reminder: %q", msg)
	}
	if strings.Contains(msg, "#1002") {
		t.Fatalf("lead without an active marker should not be listed: %q", msg)
	}
}

func TestReminderSilentWhenNothingWaiting(t *testing.T) {
	businessID := uuid.New()
	store := &fakeJobStore{
		businesses: []models.Business{{ID: businessID, OwnerPhone: "972509999999"}},
	}
	sender := &recordingSender{}
	r := NewOwnerReminder(store, sender, 18, 20, nil)

	r.remindAll(context.Background())

	if len(sender.sent) != 0 {
		t.Fatalf("sent %d messages, want 0", len(sender.sent))
	}
}

type countingSweeper struct {
	mu    sync.Mutex
	calls int
}

func (c *countingSweeper) SweepExpired(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 0, nil
}

func (c *countingSweeper) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestMediaSweepRunsImmediatelyAndStops(t *testing.T) {
	sweeper := &countingSweeper{}
	job := NewMediaSweep(sweeper, nil).WithInterval(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for sweeper.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("sweep did not run at startup")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestSummarizeTruncates(t *testing.T) {
	long := strings.Repeat("א", 80)
	got := summarize(long)
	if len([]rune(got)) != 63 {
		t.Fatalf("summarize length = %d runes", len([]rune(got)))
	}
	if summarize("שורה ראשונה\nשורה שניה") != "שורה ראשונה" {
		t.Fatal("summarize should keep only the first line")
	}
}
