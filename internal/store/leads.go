package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/whatscrm/server/internal/models"
)

const leadColumns = `id, business_id, customer_id, display_number,
	service_description, status, notes, created_at, updated_at`

// FindOpenLead returns the customer's most recent non-completed lead created
// within the validity window, or ErrLeadNotFound. An older or completed lead
// means a fresh inquiry reopens.
func (s *Store) FindOpenLead(ctx context.Context, customerID uuid.UUID, within time.Duration) (*models.Lead, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE customer_id = $1 AND status <> $2 AND created_at > $3
		ORDER BY created_at DESC
		LIMIT 1
	`, customerID, models.LeadStatusCompleted, time.Now().UTC().Add(-within))
	return scanLead(row)
}

// CreateLead opens a new inquiry. Display numbers are sequential from 1001.
func (s *Store) CreateLead(ctx context.Context, businessID, customerID uuid.UUID, description string) (*models.Lead, error) {
	id := uuid.New()
	now := time.Now().UTC()
	row := s.db.QueryRow(ctx, `
		INSERT INTO leads (id, business_id, customer_id, display_number,
			service_description, status, notes, created_at, updated_at)
		SELECT $1, $2, $3,
			COALESCE(MAX(display_number), $4 - 1) + 1,
			$5, $6, '', $7, $7
		FROM leads WHERE business_id = $2
		RETURNING display_number
	`, id, businessID, customerID, models.FirstLeadNumber, description, models.LeadStatusNew, now)

	var displayNumber int
	if err := row.Scan(&displayNumber); err != nil {
		return nil, fmt.Errorf("store: insert lead: %w", err)
	}

	return &models.Lead{
		ID:                 id,
		BusinessID:         businessID,
		CustomerID:         customerID,
		DisplayNumber:      displayNumber,
		ServiceDescription: description,
		Status:             models.LeadStatusNew,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// GetLeadByID fetches a lead row.
func (s *Store) GetLeadByID(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE id = $1
	`, id)
	return scanLead(row)
}

// GetLeadByDisplayNumber resolves a 4-digit lead number the owner typed.
func (s *Store) GetLeadByDisplayNumber(ctx context.Context, businessID uuid.UUID, displayNumber int) (*models.Lead, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE business_id = $1 AND display_number = $2
	`, businessID, displayNumber)
	return scanLead(row)
}

// AppendLeadDescription adds a follow-up message to the service description.
// The description accumulates across turns, it is never replaced.
func (s *Store) AppendLeadDescription(ctx context.Context, id uuid.UUID, text string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE leads SET
			service_description = CASE
				WHEN service_description = '' THEN $1
				ELSE service_description || E'\n' || $1
			END,
			updated_at = $2
		WHERE id = $3
	`, text, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: append lead description: %w", err)
	}
	return nil
}

// UpdateLeadStatus advances the lead lifecycle.
func (s *Store) UpdateLeadStatus(ctx context.Context, id uuid.UUID, status models.LeadStatus) error {
	_, err := s.db.Exec(ctx, `
		UPDATE leads SET status = $1, updated_at = $2 WHERE id = $3
	`, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: update lead status: %w", err)
	}
	return nil
}

// UpdateLeadNotes rewrites the owner sub-flow state field.
func (s *Store) UpdateLeadNotes(ctx context.Context, id uuid.UUID, notes string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE leads SET notes = $1, updated_at = $2 WHERE id = $3
	`, notes, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: update lead notes: %w", err)
	}
	return nil
}

// FindRecentLeadWithTag returns the business's most recently created open
// lead whose notes carry the given marker within the window. Owner replies
// are routed against this "most recent active sub-flow" lookup.
func (s *Store) FindRecentLeadWithTag(ctx context.Context, businessID uuid.UUID, tag string, within time.Duration) (*models.Lead, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE business_id = $1
		  AND status <> $2
		  AND notes LIKE '%[' || $3 || ']%'
		  AND created_at > $4
		ORDER BY created_at DESC
		LIMIT 1
	`, businessID, models.LeadStatusCompleted, tag, time.Now().UTC().Add(-within))
	return scanLead(row)
}

// FindRecentLeadForCustomerWithTag is FindRecentLeadWithTag scoped to one
// customer, used to ask a returning customer whether a new message relates to
// an existing inquiry.
func (s *Store) FindRecentLeadForCustomerWithTag(ctx context.Context, customerID uuid.UUID, tag string, within time.Duration) (*models.Lead, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE customer_id = $1
		  AND status <> $2
		  AND notes LIKE '%[' || $3 || ']%'
		  AND created_at > $4
		ORDER BY created_at DESC
		LIMIT 1
	`, customerID, models.LeadStatusCompleted, tag, time.Now().UTC().Add(-within))
	return scanLead(row)
}

// ListLeadsByStatus returns the business's leads in a status, oldest first.
// The multi-lead scheduling queue is seeded from this ordering.
func (s *Store) ListLeadsByStatus(ctx context.Context, businessID uuid.UUID, status models.LeadStatus) ([]models.Lead, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE business_id = $1 AND status = $2
		ORDER BY created_at ASC
	`, businessID, status)
	if err != nil {
		return nil, fmt.Errorf("store: list leads by status: %w", err)
	}
	defer rows.Close()
	return collectLeads(rows)
}

// FindLeadForMeeting locates the most advanced lead holding an approved or
// sent quote, preferring approved.
func (s *Store) FindLeadForMeeting(ctx context.Context, businessID uuid.UUID) (*models.Lead, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+prefixedLeadColumns("l")+`
		FROM leads l
		JOIN quotes q ON q.lead_id = l.id
		WHERE l.business_id = $1 AND q.status IN ($2, $3)
		ORDER BY CASE q.status WHEN $2 THEN 0 ELSE 1 END, l.created_at DESC
		LIMIT 1
	`, businessID, models.QuoteStatusApproved, models.QuoteStatusSent)
	return scanLead(row)
}

func prefixedLeadColumns(alias string) string {
	return alias + `.id, ` + alias + `.business_id, ` + alias + `.customer_id, ` +
		alias + `.display_number, ` + alias + `.service_description, ` +
		alias + `.status, ` + alias + `.notes, ` + alias + `.created_at, ` +
		alias + `.updated_at`
}

func scanLead(row pgx.Row) (*models.Lead, error) {
	var l models.Lead
	err := row.Scan(
		&l.ID, &l.BusinessID, &l.CustomerID, &l.DisplayNumber,
		&l.ServiceDescription, &l.Status, &l.Notes, &l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan lead: %w", err)
	}
	return &l, nil
}

func collectLeads(rows pgx.Rows) ([]models.Lead, error) {
	var leads []models.Lead
	for rows.Next() {
		var l models.Lead
		if err := rows.Scan(
			&l.ID, &l.BusinessID, &l.CustomerID, &l.DisplayNumber,
			&l.ServiceDescription, &l.Status, &l.Notes, &l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan lead row: %w", err)
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}
