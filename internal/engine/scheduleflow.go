package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/whatscrm/server/internal/models"
	"github.com/whatscrm/server/internal/schedule"
	"github.com/whatscrm/server/internal/state"
)

const (
	dateLayout     = "2006-01-02"
	schedulingSpan = 7 // days ahead offered to the owner
	maxDaysPicked  = 3
)

// handleAppointmentChoice resolves the customer's numeric slot pick against
// the options stored on the lead.
func (e *Engine) handleAppointmentChoice(ctx context.Context, business *models.Business, customer *models.Customer, st state.CustomerState, text string) (string, error) {
	lead, err := e.store.GetLeadByID(ctx, st.LeadID)
	if err != nil {
		e.logger.Error("appointment choice: lead missing", "lead_id", st.LeadID, "error", err)
		return "OK - stale state", nil
	}

	leadState, err := state.DecodeLead(lead.Notes)
	if err != nil || leadState.Kind != state.AppointmentOptionsSet || leadState.Options == nil {
		e.logger.Error("appointment choice: options missing", "lead_id", lead.ID, "error", err)
		return "OK - stale state", nil
	}

	choice, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || choice < 1 || choice > len(leadState.Options.Options) {
		e.send(ctx, business, customer.Phone, msgBadAppointmentChoice)
		return "OK", nil
	}
	opt := leadState.Options.Options[choice-1]

	date, err := time.Parse(dateLayout, opt.Date)
	if err != nil {
		e.logger.Error("appointment choice: bad date in options", "lead_id", lead.ID, "date", opt.Date)
		return "OK - stale state", nil
	}

	appt := &models.Appointment{
		BusinessID:      business.ID,
		CustomerID:      customer.ID,
		LeadID:          lead.ID,
		Date:            date,
		Time:            opt.Time,
		DurationMinutes: opt.DurationMinutes,
		Status:          models.AppointmentStatusPending,
		Location:        customer.FullAddress,
	}
	if err := e.store.CreateAppointment(ctx, appt); err != nil {
		return "", err
	}
	if err := e.store.UpdateLeadStatus(ctx, lead.ID, models.LeadStatusScheduled); err != nil {
		return "", err
	}
	if err := e.saveLeadState(ctx, lead, state.LeadState{}); err != nil {
		return "", err
	}
	if err := e.saveCustomerState(ctx, customer, state.CustomerState{}); err != nil {
		return "", err
	}

	confirm := fmt.Sprintf("הפגישה נקבעה ל-%s בשעה %s. נתראה!", opt.Date, opt.Time)
	e.send(ctx, business, customer.Phone, confirm)
	if business.OwnerPhone != "" {
		e.send(ctx, business, business.OwnerPhone,
			fmt.Sprintf("נקבעה פגישה עם %s לפנייה #%d: %s בשעה %s", customer.Name, lead.DisplayNumber, opt.Date, opt.Time))
	}

	if err := e.advanceSchedulingQueue(ctx, business); err != nil {
		e.logger.Error("advance scheduling queue failed", "business_id", business.ID, "error", err)
	}
	return "OK", nil
}

// beginScheduling starts the day-selection sub-flow for one lead, offering
// the owner the coming week's available days.
func (e *Engine) beginScheduling(ctx context.Context, business *models.Business, lead *models.Lead) (string, error) {
	if e.slots == nil {
		return "OK - scheduling disabled", nil
	}

	var days []string
	start := e.now()
	for i := 1; i <= schedulingSpan; i++ {
		d := start.AddDate(0, 0, i)
		if _, ok := schedule.WindowFor(business.Availability, d); ok {
			days = append(days, d.Format(dateLayout))
		}
	}
	if len(days) == 0 {
		if business.OwnerPhone != "" {
			e.send(ctx, business, business.OwnerPhone, msgNoAvailableDays)
		}
		return "OK", nil
	}

	session := &state.SchedulingSession{
		LeadID:      lead.ID.String(),
		OfferedDays: days,
	}
	if err := e.saveLeadState(ctx, lead, state.LeadState{Kind: state.SelectingDays, Session: session}); err != nil {
		return "", err
	}
	if err := e.store.UpdateLeadStatus(ctx, lead.ID, models.LeadStatusAppointmentScheduling); err != nil {
		return "", err
	}
	e.send(ctx, business, business.OwnerPhone, renderDayMenu(lead, days))
	return "OK", nil
}

// handleDaySelection parses the owner's picked days and computes each day's
// open slots, moving into per-day time selection.
func (e *Engine) handleDaySelection(ctx context.Context, business *models.Business, lead *models.Lead, session *state.SchedulingSession, text string) (string, error) {
	indices, ok := parseIndexList(text, len(session.OfferedDays))
	if !ok || len(indices) == 0 || len(indices) > maxDaysPicked {
		e.send(ctx, business, business.OwnerPhone, msgBadDaySelection)
		return "OK", nil
	}

	next := &state.SchedulingSession{LeadID: session.LeadID}
	for _, idx := range indices {
		dateStr := session.OfferedDays[idx-1]
		date, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			continue
		}
		window, ok := schedule.WindowFor(business.Availability, date)
		if !ok {
			continue
		}
		slots, err := e.slots.CalculateDaySlots(ctx, business.ID, date, window)
		if err != nil {
			return "", err
		}
		day := state.SessionDay{Date: dateStr}
		for _, s := range slots {
			day.Slots = append(day.Slots, state.AppointmentOption{
				Date:            dateStr,
				Time:            s.Time,
				DurationMinutes: s.DurationMinutes,
			})
		}
		next.Days = append(next.Days, day)
	}
	if len(next.Days) == 0 {
		e.send(ctx, business, business.OwnerPhone, msgNoAvailableDays)
		return "OK", nil
	}

	if err := e.saveLeadState(ctx, lead, state.LeadState{Kind: state.SelectingTimesMulti, Session: next}); err != nil {
		return "", err
	}
	e.send(ctx, business, business.OwnerPhone, renderTimeMenu(next.Days[0]))
	return "OK", nil
}

// handleTimeSelection accumulates chosen slots day by day; "0" skips a day.
// Once every day is processed the options go out to the customer.
func (e *Engine) handleTimeSelection(ctx context.Context, business *models.Business, lead *models.Lead, session *state.SchedulingSession, text string) (string, error) {
	if session.Current >= len(session.Days) {
		e.logger.Error("time selection past last day", "lead_id", lead.ID)
		return "OK - stale state", nil
	}
	day := session.Days[session.Current]

	trimmed := strings.TrimSpace(text)
	if trimmed != "0" {
		indices, ok := parseIndexList(trimmed, len(day.Slots))
		if !ok || len(indices) == 0 {
			e.send(ctx, business, business.OwnerPhone, msgBadTimeSelection)
			return "OK", nil
		}
		for _, idx := range indices {
			session.Chosen = append(session.Chosen, day.Slots[idx-1])
		}
	}

	session.Current++
	if session.Current < len(session.Days) {
		if err := e.saveLeadState(ctx, lead, state.LeadState{Kind: state.SelectingTimesMulti, Session: session}); err != nil {
			return "", err
		}
		e.send(ctx, business, business.OwnerPhone, renderTimeMenu(session.Days[session.Current]))
		return "OK", nil
	}

	if len(session.Chosen) == 0 {
		if err := e.saveLeadState(ctx, lead, state.LeadState{Kind: state.WaitingForOwnerAction}); err != nil {
			return "", err
		}
		e.send(ctx, business, business.OwnerPhone, msgNoSlotsChosen)
		return "OK", nil
	}

	options := &state.AppointmentOptions{LeadID: session.LeadID}
	for i, slot := range session.Chosen {
		slot.Index = i + 1
		options.Options = append(options.Options, slot)
	}
	if err := e.saveLeadState(ctx, lead, state.LeadState{Kind: state.AppointmentOptionsSet, Options: options}); err != nil {
		return "", err
	}

	customer, err := e.store.GetCustomerByID(ctx, lead.CustomerID)
	if err != nil {
		return "", err
	}
	if err := e.saveCustomerState(ctx, customer, state.CustomerState{
		Kind:   state.WaitingForAppointmentChoice,
		LeadID: lead.ID,
	}); err != nil {
		return "", err
	}

	e.send(ctx, business, customer.Phone, renderAppointmentOptions(options.Options))
	e.send(ctx, business, business.OwnerPhone,
		fmt.Sprintf("אפשרויות הפגישה נשלחו ללקוח של פנייה #%d.", lead.DisplayNumber))
	return "OK", nil
}

// startSchedulingQueue loads every quote-approved lead into the multi-lead
// queue (oldest first) and begins scheduling the first one.
func (e *Engine) startSchedulingQueue(ctx context.Context, business *models.Business) (string, error) {
	leads, err := e.store.ListLeadsByStatus(ctx, business.ID, models.LeadStatusApproved)
	if err != nil {
		return "", err
	}
	if len(leads) == 0 {
		e.send(ctx, business, business.OwnerPhone, msgNoApprovedLead)
		return "OK", nil
	}

	ids := make([]uuid.UUID, len(leads))
	for i, l := range leads {
		ids[i] = l.ID
	}
	_, _ = schedule.EnqueueLeads(&business.Settings, ids)
	if err := e.store.UpdateBusinessSettings(ctx, business.ID, business.Settings); err != nil {
		return "", err
	}
	return e.beginScheduling(ctx, business, &leads[0])
}

// advanceSchedulingQueue moves to the next queued lead after an appointment
// is confirmed, clearing the queue when drained.
func (e *Engine) advanceSchedulingQueue(ctx context.Context, business *models.Business) error {
	if _, ok := schedule.CurrentLead(business.Settings); !ok {
		return nil
	}
	next, ok := schedule.AdvanceQueue(&business.Settings)
	if err := e.store.UpdateBusinessSettings(ctx, business.ID, business.Settings); err != nil {
		return err
	}
	if !ok {
		return nil
	}
	lead, err := e.store.GetLeadByID(ctx, next)
	if err != nil {
		return err
	}
	_, err = e.beginScheduling(ctx, business, lead)
	return err
}

// parseIndexList parses "1,3" style 1-based selections, rejecting anything
// out of range.
func parseIndexList(text string, max int) ([]int, bool) {
	parts := strings.Split(strings.TrimSpace(text), ",")
	var indices []int
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > max {
			return nil, false
		}
		indices = append(indices, n)
	}
	return indices, len(indices) > 0
}
