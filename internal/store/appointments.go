package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/whatscrm/server/internal/models"
)

// CreateAppointment books a slot for a lead.
func (s *Store) CreateAppointment(ctx context.Context, a *models.Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = models.AppointmentStatusPending
	}
	a.CreatedAt = time.Now().UTC()

	_, err := s.db.Exec(ctx, `
		INSERT INTO appointments (id, business_id, customer_id, lead_id,
			appointment_date, appointment_time, duration_minutes, status,
			location, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.ID, a.BusinessID, a.CustomerID, a.LeadID, a.Date, a.Time,
		a.DurationMinutes, a.Status, a.Location, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: insert appointment: %w", err)
	}
	return nil
}

// ListAppointmentsOn returns the business's pending and confirmed
// appointments of one calendar day. Cancelled slots free up.
func (s *Store) ListAppointmentsOn(ctx context.Context, businessID uuid.UUID, date time.Time) ([]models.Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, business_id, customer_id, lead_id, appointment_date,
			appointment_time, duration_minutes, status, location, created_at
		FROM appointments
		WHERE business_id = $1
		  AND appointment_date = $2
		  AND status IN ($3, $4)
		ORDER BY appointment_time
	`, businessID, date, models.AppointmentStatusPending, models.AppointmentStatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("store: list appointments: %w", err)
	}
	defer rows.Close()

	var appts []models.Appointment
	for rows.Next() {
		var a models.Appointment
		if err := rows.Scan(&a.ID, &a.BusinessID, &a.CustomerID, &a.LeadID,
			&a.Date, &a.Time, &a.DurationMinutes, &a.Status, &a.Location, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan appointment: %w", err)
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

// ConfirmAppointment marks a pending appointment confirmed.
func (s *Store) ConfirmAppointment(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE appointments SET status = $1 WHERE id = $2
	`, models.AppointmentStatusConfirmed, id)
	if err != nil {
		return fmt.Errorf("store: confirm appointment: %w", err)
	}
	return nil
}

// FindAppointmentByLead returns the lead's latest appointment, if any.
func (s *Store) FindAppointmentByLead(ctx context.Context, leadID uuid.UUID) (*models.Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, business_id, customer_id, lead_id, appointment_date,
			appointment_time, duration_minutes, status, location, created_at
		FROM appointments
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("store: find appointment by lead: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("store: find appointment by lead: %w", err)
		}
		return nil, nil
	}
	var a models.Appointment
	if err := rows.Scan(&a.ID, &a.BusinessID, &a.CustomerID, &a.LeadID,
		&a.Date, &a.Time, &a.DurationMinutes, &a.Status, &a.Location, &a.CreatedAt); err != nil {
		return nil, fmt.Errorf("store: scan appointment: %w", err)
	}
	return &a, nil
}
