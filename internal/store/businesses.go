package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/whatscrm/server/internal/models"
)

const businessColumns = `id, business_name, owner_name, owner_phone,
	green_api_instance, green_api_token, service_type, service_area,
	service_description, response_template, settings, availability, created_at`

// GetBusinessByInstanceID resolves the tenant a webhook event belongs to.
func (s *Store) GetBusinessByInstanceID(ctx context.Context, instanceID string) (*models.Business, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+businessColumns+`
		FROM businesses
		WHERE green_api_instance = $1
	`, instanceID)
	return scanBusiness(row)
}

// GetBusinessByID fetches a business row.
func (s *Store) GetBusinessByID(ctx context.Context, id uuid.UUID) (*models.Business, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+businessColumns+`
		FROM businesses
		WHERE id = $1
	`, id)
	return scanBusiness(row)
}

// ListBusinesses returns every tenant; the periodic jobs iterate them.
func (s *Store) ListBusinesses(ctx context.Context) ([]models.Business, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+businessColumns+`
		FROM businesses
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list businesses: %w", err)
	}
	defer rows.Close()

	var out []models.Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// UpdateBusinessSettings writes the settings blob back. The multi-lead
// scheduling queue lives here; callers read-modify-write it.
func (s *Store) UpdateBusinessSettings(ctx context.Context, id uuid.UUID, settings models.BusinessSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("store: marshal settings: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		UPDATE businesses SET settings = $1 WHERE id = $2
	`, data, id)
	if err != nil {
		return fmt.Errorf("store: update business settings: %w", err)
	}
	return nil
}

func scanBusiness(row pgx.Row) (*models.Business, error) {
	var b models.Business
	var settings, availability []byte
	err := row.Scan(
		&b.ID, &b.Name, &b.OwnerName, &b.OwnerPhone,
		&b.GreenAPIInstance, &b.GreenAPIToken, &b.ServiceType, &b.ServiceArea,
		&b.ServiceDescription, &b.ResponseTemplate, &settings, &availability,
		&b.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBusinessNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan business: %w", err)
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &b.Settings); err != nil {
			return nil, fmt.Errorf("store: decode business settings: %w", err)
		}
	}
	if len(availability) > 0 {
		if err := json.Unmarshal(availability, &b.Availability); err != nil {
			return nil, fmt.Errorf("store: decode business availability: %w", err)
		}
	}
	return &b, nil
}
