// Package jobs runs the periodic work beside the webhook server: the media
// retention sweep and the nightly owner reminder.
package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/whatscrm/server/internal/greenapi"
	"github.com/whatscrm/server/internal/models"
	"github.com/whatscrm/server/internal/state"
	"github.com/whatscrm/server/pkg/logging"
)

// Store is the persistence surface the jobs need.
type Store interface {
	ListBusinesses(ctx context.Context) ([]models.Business, error)
	ListLeadsByStatus(ctx context.Context, businessID uuid.UUID, status models.LeadStatus) ([]models.Lead, error)
	GetCustomerByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
}

// Sweeper deletes expired media; *media.Archiver implements it.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// MediaSweep drives the retention sweep on a fixed interval.
type MediaSweep struct {
	sweeper  Sweeper
	logger   *logging.Logger
	interval time.Duration
}

func NewMediaSweep(sweeper Sweeper, logger *logging.Logger) *MediaSweep {
	if logger == nil {
		logger = logging.Default()
	}
	return &MediaSweep{sweeper: sweeper, logger: logger, interval: 24 * time.Hour}
}

func (m *MediaSweep) WithInterval(d time.Duration) *MediaSweep {
	if d > 0 {
		m.interval = d
	}
	return m
}

// Run sweeps once at startup and then on every tick until ctx is cancelled.
func (m *MediaSweep) Run(ctx context.Context) {
	if m.sweeper == nil {
		return
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *MediaSweep) sweep(ctx context.Context) {
	deleted, err := m.sweeper.SweepExpired(ctx)
	if err != nil {
		m.logger.Error("media sweep failed", "deleted", deleted, "error", err)
		return
	}
	if deleted > 0 {
		m.logger.Info("media sweep completed", "deleted", deleted)
	}
}

// OwnerReminder sends each owner a nightly summary of leads still waiting
// for action, once per evening inside the configured local-hour window.
type OwnerReminder struct {
	store     Store
	sender    greenapi.Sender
	logger    *logging.Logger
	startHour int
	endHour   int
	now       func() time.Time
}

func NewOwnerReminder(store Store, sender greenapi.Sender, startHour, endHour int, logger *logging.Logger) *OwnerReminder {
	if store == nil {
		panic("jobs: store required")
	}
	if sender == nil {
		panic("jobs: sender required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if startHour < 0 || startHour > 23 {
		startHour = 18
	}
	if endHour <= startHour || endHour > 23 {
		endHour = startHour + 2
		if endHour > 23 {
			endHour = 23
		}
	}
	return &OwnerReminder{
		store:     store,
		sender:    sender,
		logger:    logger,
		startHour: startHour,
		endHour:   endHour,
		now:       time.Now,
	}
}

// Run waits for the next reminder window, fires once, then repeats daily.
func (r *OwnerReminder) Run(ctx context.Context) {
	var lastFired time.Time
	for {
		delay := r.untilNextFire(r.now(), lastFired)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
			r.remindAll(ctx)
			lastFired = r.now()
		}
	}
}

// untilNextFire returns the delay until the next reminder is due. An evening
// already served (lastFired on the same calendar day) waits for tomorrow's
// window open, so one reminder goes out per evening at most.
func (r *OwnerReminder) untilNextFire(now, lastFired time.Time) time.Duration {
	open := time.Date(now.Year(), now.Month(), now.Day(), r.startHour, 0, 0, 0, now.Location())
	closeAt := time.Date(now.Year(), now.Month(), now.Day(), r.endHour, 0, 0, 0, now.Location())
	if sameDay(lastFired, now) {
		return open.Add(24 * time.Hour).Sub(now)
	}
	switch {
	case now.Before(open):
		return open.Sub(now)
	case now.Before(closeAt):
		return 0
	default:
		return open.Add(24 * time.Hour).Sub(now)
	}
}

func sameDay(a, b time.Time) bool {
	return !a.IsZero() && a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

func (r *OwnerReminder) remindAll(ctx context.Context) {
	businesses, err := r.store.ListBusinesses(ctx)
	if err != nil {
		r.logger.Error("reminder: list businesses failed", "error", err)
		return
	}
	for i := range businesses {
		if err := r.remindOne(ctx, &businesses[i]); err != nil {
			r.logger.Error("reminder failed", "business_id", businesses[i].ID, "error", err)
		}
	}
}

func (r *OwnerReminder) remindOne(ctx context.Context, business *models.Business) error {
	if business.OwnerPhone == "" {
		return nil
	}
	leads, err := r.store.ListLeadsByStatus(ctx, business.ID, models.LeadStatusNew)
	if err != nil {
		return err
	}

	var lines []string
	for i := range leads {
		st, err := state.DecodeLead(leads[i].Notes)
		if err != nil || st.Kind != state.WaitingForOwnerAction {
			continue
		}
		line := fmt.Sprintf("#%d - %s", leads[i].DisplayNumber, summarize(leads[i].ServiceDescription))
		if customer, err := r.store.GetCustomerByID(ctx, leads[i].CustomerID); err == nil && customer.HasName() {
			line += " (" + customer.Name + ")"
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil
	}

	text := fmt.Sprintf("תזכורת: %d פניות ממתינות לטיפול:\n%s\nשלחו את מספר הפנייה לפרטים.",
		len(lines), strings.Join(lines, "\n"))
	return r.sender.SendMessage(ctx, business, business.OwnerPhone, text)
}

func summarize(description string) string {
	if i := strings.IndexByte(description, '\n'); i >= 0 {
		description = description[:i]
	}
	runes := []rune(description)
	if len(runes) > 60 {
		return string(runes[:60]) + "..."
	}
	return description
}
