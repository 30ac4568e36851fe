package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IsWhitelisted reports whether the normalized phone is opted out of
// automated handling for the business.
func (s *Store) IsWhitelisted(ctx context.Context, businessID uuid.UUID, normalizedPhone string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM whitelist WHERE business_id = $1 AND phone = $2
		)
	`, businessID, normalizedPhone).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: check whitelist: %w", err)
	}
	return exists, nil
}

// AddToWhitelist opts a phone out of automated handling. Returns false when
// the phone was already listed.
func (s *Store) AddToWhitelist(ctx context.Context, businessID uuid.UUID, normalizedPhone, name string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO whitelist (id, business_id, phone, name, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (business_id, phone) DO NOTHING
	`, uuid.New(), businessID, normalizedPhone, name, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("store: add to whitelist: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
