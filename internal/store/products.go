package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/whatscrm/server/internal/models"
)

// ListActiveProducts returns the business's quotable catalog in name order.
func (s *Store) ListActiveProducts(ctx context.Context, businessID uuid.UUID) ([]models.Product, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, business_id, name, description, base_price, keywords,
			is_active, created_at
		FROM products
		WHERE business_id = $1 AND is_active
		ORDER BY name
	`, businessID)
	if err != nil {
		return nil, fmt.Errorf("store: list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.BusinessID, &p.Name, &p.Description,
			&p.BasePrice, &p.Keywords, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
