package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/whatscrm/server/internal/models"
)

// InsertLeadMedia records an archived attachment.
func (s *Store) InsertLeadMedia(ctx context.Context, m *models.LeadMedia) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now().UTC()
	if m.ExpiresAt.IsZero() {
		m.ExpiresAt = m.CreatedAt.Add(models.MediaRetention)
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO lead_media (id, lead_id, media_type, storage_path,
			caption, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.ID, m.LeadID, m.MediaType, m.StoragePath, m.Caption, m.ExpiresAt, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: insert lead media: %w", err)
	}
	return nil
}

// CountLeadMedia returns how many attachments the lead has archived. The
// photo intake step stops at three.
func (s *Store) CountLeadMedia(ctx context.Context, leadID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM lead_media WHERE lead_id = $1
	`, leadID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count lead media: %w", err)
	}
	return n, nil
}

// ListExpiredMedia returns attachments past their retention cutoff.
func (s *Store) ListExpiredMedia(ctx context.Context, now time.Time) ([]models.LeadMedia, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, lead_id, media_type, storage_path, caption, expires_at, created_at
		FROM lead_media
		WHERE expires_at <= $1
	`, now)
	if err != nil {
		return nil, fmt.Errorf("store: list expired media: %w", err)
	}
	defer rows.Close()

	var media []models.LeadMedia
	for rows.Next() {
		var m models.LeadMedia
		if err := rows.Scan(&m.ID, &m.LeadID, &m.MediaType, &m.StoragePath,
			&m.Caption, &m.ExpiresAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan lead media: %w", err)
		}
		media = append(media, m)
	}
	return media, rows.Err()
}

// DeleteLeadMedia removes the metadata row after the blob is gone.
func (s *Store) DeleteLeadMedia(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM lead_media WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete lead media: %w", err)
	}
	return nil
}
