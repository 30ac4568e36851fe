// Package schedule enumerates bookable appointment slots and drives the
// owner's multi-lead scheduling queue.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/whatscrm/server/internal/models"
)

// Slot is one offerable appointment start time on a given date.
type Slot struct {
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
}

// AppointmentSource lists booked appointments for slot exclusion.
type AppointmentSource interface {
	ListAppointmentsOn(ctx context.Context, businessID uuid.UUID, date time.Time) ([]models.Appointment, error)
}

// Scheduler computes availability against booked appointments.
type Scheduler struct {
	appointments AppointmentSource
	slotMinutes  int
	now          func() time.Time
}

// New creates a scheduler with the configured slot size.
func New(appointments AppointmentSource, slotMinutes int) *Scheduler {
	if appointments == nil {
		panic("schedule: appointment source required")
	}
	if slotMinutes <= 0 {
		slotMinutes = 60
	}
	return &Scheduler{
		appointments: appointments,
		slotMinutes:  slotMinutes,
		now:          time.Now,
	}
}

// CalculateDaySlots enumerates fixed-size slots inside the day's window,
// skipping exact-time matches with pending or confirmed appointments and,
// when the date is today, start times already in the past.
func (s *Scheduler) CalculateDaySlots(ctx context.Context, businessID uuid.UUID, date time.Time, window models.DayWindow) ([]Slot, error) {
	start, err := parseClock(window.Start)
	if err != nil {
		return nil, fmt.Errorf("schedule: window start: %w", err)
	}
	end, err := parseClock(window.End)
	if err != nil {
		return nil, fmt.Errorf("schedule: window end: %w", err)
	}

	booked, err := s.appointments.ListAppointmentsOn(ctx, businessID, date)
	if err != nil {
		return nil, err
	}
	taken := make(map[string]bool, len(booked))
	for _, a := range booked {
		taken[a.Time] = true
	}

	now := s.now()
	today := sameDate(date, now)
	nowMinutes := now.Hour()*60 + now.Minute()

	var slots []Slot
	for m := start; m+s.slotMinutes <= end; m += s.slotMinutes {
		t := formatClock(m)
		if taken[t] {
			continue
		}
		if today && m <= nowMinutes {
			continue
		}
		slots = append(slots, Slot{Time: t, DurationMinutes: s.slotMinutes})
	}
	return slots, nil
}

// WindowFor resolves the availability window of a date's weekday. ok is false
// when the business has no hours that day.
func WindowFor(avail models.WeeklyAvailability, date time.Time) (models.DayWindow, bool) {
	w, ok := avail[strings.ToLower(date.Weekday().String())]
	if !ok || w.Start == "" || w.End == "" {
		return models.DayWindow{}, false
	}
	return w, true
}

// EnqueueLeads loads the multi-lead scheduling queue: the first lead becomes
// current, the rest wait. Lead order is the caller's (oldest created first).
func EnqueueLeads(settings *models.BusinessSettings, leadIDs []uuid.UUID) (uuid.UUID, bool) {
	if len(leadIDs) == 0 {
		return uuid.Nil, false
	}
	settings.CurrentSchedulingLead = leadIDs[0].String()
	settings.PendingSchedulingLeads = settings.PendingSchedulingLeads[:0]
	for _, id := range leadIDs[1:] {
		settings.PendingSchedulingLeads = append(settings.PendingSchedulingLeads, id.String())
	}
	return leadIDs[0], true
}

// AdvanceQueue pops the next pending lead into current. ok is false once the
// queue drains, at which point both fields are cleared.
func AdvanceQueue(settings *models.BusinessSettings) (uuid.UUID, bool) {
	if len(settings.PendingSchedulingLeads) == 0 {
		settings.CurrentSchedulingLead = ""
		settings.PendingSchedulingLeads = nil
		return uuid.Nil, false
	}
	next, err := uuid.Parse(settings.PendingSchedulingLeads[0])
	settings.PendingSchedulingLeads = settings.PendingSchedulingLeads[1:]
	if len(settings.PendingSchedulingLeads) == 0 {
		settings.PendingSchedulingLeads = nil
	}
	if err != nil {
		// skip a corrupt entry and keep draining
		return AdvanceQueue(settings)
	}
	settings.CurrentSchedulingLead = next.String()
	return next, true
}

// CurrentLead returns the lead the owner is scheduling, if any.
func CurrentLead(settings models.BusinessSettings) (uuid.UUID, bool) {
	if settings.CurrentSchedulingLead == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(settings.CurrentSchedulingLead)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("bad time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad time %q", s)
	}
	return h*60 + m, nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
