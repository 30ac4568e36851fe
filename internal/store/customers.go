package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/whatscrm/server/internal/models"
	"github.com/whatscrm/server/internal/phone"
)

const customerColumns = `id, business_id, name, phone, address, city,
	full_address, notes, created_at, updated_at`

// GetOrCreateCustomer looks a customer up by normalized phone, creating one
// with a placeholder name on first contact. Returns whether a row was created.
func (s *Store) GetOrCreateCustomer(ctx context.Context, businessID uuid.UUID, rawPhone string) (*models.Customer, bool, error) {
	normalized := phone.Normalize(rawPhone)

	row := s.db.QueryRow(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE business_id = $1 AND phone = $2
	`, businessID, normalized)
	c, err := scanCustomer(row)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, ErrCustomerNotFound) {
		return nil, false, err
	}

	placeholder := models.PlaceholderNamePrefix + lastDigits(normalized, 4)
	id := uuid.New()
	now := time.Now().UTC()
	_, err = s.db.Exec(ctx, `
		INSERT INTO customers (id, business_id, name, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (business_id, phone) DO NOTHING
	`, id, businessID, placeholder, normalized, now)
	if err != nil {
		return nil, false, fmt.Errorf("store: insert customer: %w", err)
	}

	// Re-read: a concurrent webhook may have won the insert race.
	row = s.db.QueryRow(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE business_id = $1 AND phone = $2
	`, businessID, normalized)
	c, err = scanCustomer(row)
	if err != nil {
		return nil, false, err
	}
	return c, c.ID == id, nil
}

// GetCustomerByID fetches a customer row.
func (s *Store) GetCustomerByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE id = $1
	`, id)
	return scanCustomer(row)
}

// UpdateCustomerName sets the customer's name.
func (s *Store) UpdateCustomerName(ctx context.Context, id uuid.UUID, name string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE customers SET name = $1, updated_at = $2 WHERE id = $3
	`, name, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: update customer name: %w", err)
	}
	return nil
}

// UpdateCustomerAddress sets address, extracted city, and the full address.
func (s *Store) UpdateCustomerAddress(ctx context.Context, id uuid.UUID, address, city, fullAddress string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE customers SET address = $1, city = $2, full_address = $3, updated_at = $4
		WHERE id = $5
	`, address, city, fullAddress, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: update customer address: %w", err)
	}
	return nil
}

// UpdateCustomerNotes rewrites the notes field, which carries the encoded
// conversation state. Every dialogue transition lands here.
func (s *Store) UpdateCustomerNotes(ctx context.Context, id uuid.UUID, notes string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE customers SET notes = $1, updated_at = $2 WHERE id = $3
	`, notes, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: update customer notes: %w", err)
	}
	return nil
}

func scanCustomer(row pgx.Row) (*models.Customer, error) {
	var c models.Customer
	err := row.Scan(
		&c.ID, &c.BusinessID, &c.Name, &c.Phone, &c.Address, &c.City,
		&c.FullAddress, &c.Notes, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan customer: %w", err)
	}
	return &c, nil
}

func lastDigits(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
