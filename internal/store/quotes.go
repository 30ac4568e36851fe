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

const quoteColumns = `id, lead_id, amount, quote_text, status, notes,
	created_at, updated_at`

const quoteItemColumns = `id, quote_id, product_name, description,
	unit_price, quantity, total, position`

// CreateQuote stores a quote together with its line items in one transaction.
func (s *Store) CreateQuote(ctx context.Context, q *models.Quote, items []models.QuoteItem) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin quote tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	q.CreatedAt = now
	q.UpdatedAt = now
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.Status == "" {
		q.Status = models.QuoteStatusPendingOwnerApproval
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO quotes (id, lead_id, amount, quote_text, status, notes,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, q.ID, q.LeadID, q.Amount, q.QuoteText, q.Status, q.Notes, now)
	if err != nil {
		return fmt.Errorf("store: insert quote: %w", err)
	}

	for i := range items {
		it := &items[i]
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		it.QuoteID = q.ID
		it.Position = i + 1
		_, err = tx.Exec(ctx, `
			INSERT INTO quote_items (id, quote_id, product_name, description,
				unit_price, quantity, total, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, it.ID, q.ID, it.ProductName, it.Description, it.UnitPrice, it.Quantity, it.Total, it.Position)
		if err != nil {
			return fmt.Errorf("store: insert quote item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit quote tx: %w", err)
	}
	return nil
}

// GetQuoteByID fetches a quote row.
func (s *Store) GetQuoteByID(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+quoteColumns+`
		FROM quotes
		WHERE id = $1
	`, id)
	return scanQuote(row)
}

// GetQuoteItems returns the quote's line items in position order.
func (s *Store) GetQuoteItems(ctx context.Context, quoteID uuid.UUID) ([]models.QuoteItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+quoteItemColumns+`
		FROM quote_items
		WHERE quote_id = $1
		ORDER BY position
	`, quoteID)
	if err != nil {
		return nil, fmt.Errorf("store: list quote items: %w", err)
	}
	defer rows.Close()

	var items []models.QuoteItem
	for rows.Next() {
		var it models.QuoteItem
		if err := rows.Scan(&it.ID, &it.QuoteID, &it.ProductName, &it.Description,
			&it.UnitPrice, &it.Quantity, &it.Total, &it.Position); err != nil {
			return nil, fmt.Errorf("store: scan quote item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// FindActiveQuote returns the business's newest quote still waiting on the
// owner. Bare edit commands from the owner land here.
func (s *Store) FindActiveQuote(ctx context.Context, businessID uuid.UUID) (*models.Quote, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+prefixedQuoteColumns("q")+`
		FROM quotes q
		JOIN leads l ON l.id = q.lead_id
		WHERE l.business_id = $1 AND q.status = $2
		ORDER BY q.created_at DESC
		LIMIT 1
	`, businessID, models.QuoteStatusPendingOwnerApproval)
	return scanQuote(row)
}

// FindQuoteByLead returns the lead's most recent quote.
func (s *Store) FindQuoteByLead(ctx context.Context, leadID uuid.UUID) (*models.Quote, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+quoteColumns+`
		FROM quotes
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, leadID)
	return scanQuote(row)
}

// UpdateQuoteStatus moves the quote through its approval lifecycle.
func (s *Store) UpdateQuoteStatus(ctx context.Context, id uuid.UUID, status models.QuoteStatus) error {
	_, err := s.db.Exec(ctx, `
		UPDATE quotes SET status = $1, updated_at = $2 WHERE id = $3
	`, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: update quote status: %w", err)
	}
	return nil
}

// UpdateQuoteNotes rewrites the quote's edit sub-flow state field.
func (s *Store) UpdateQuoteNotes(ctx context.Context, id uuid.UUID, notes string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE quotes SET notes = $1, updated_at = $2 WHERE id = $3
	`, notes, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: update quote notes: %w", err)
	}
	return nil
}

// UpdateQuoteAmountAndText refreshes the total and the rendered quote after a
// line edit.
func (s *Store) UpdateQuoteAmountAndText(ctx context.Context, id uuid.UUID, amount float64, text string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE quotes SET amount = $1, quote_text = $2, updated_at = $3
		WHERE id = $4
	`, amount, text, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: update quote amount: %w", err)
	}
	return nil
}

// UpdateQuoteItem rewrites one line item's price, quantity, and total.
func (s *Store) UpdateQuoteItem(ctx context.Context, id uuid.UUID, unitPrice float64, quantity int, total float64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE quote_items SET unit_price = $1, quantity = $2, total = $3
		WHERE id = $4
	`, unitPrice, quantity, total, id)
	if err != nil {
		return fmt.Errorf("store: update quote item: %w", err)
	}
	return nil
}

// DeleteQuote removes a cancelled quote and its items.
func (s *Store) DeleteQuote(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin delete quote tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM quote_items WHERE quote_id = $1`, id); err != nil {
		return fmt.Errorf("store: delete quote items: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM quotes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("store: delete quote: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit delete quote tx: %w", err)
	}
	return nil
}

func prefixedQuoteColumns(alias string) string {
	return alias + `.id, ` + alias + `.lead_id, ` + alias + `.amount, ` +
		alias + `.quote_text, ` + alias + `.status, ` + alias + `.notes, ` +
		alias + `.created_at, ` + alias + `.updated_at`
}

func scanQuote(row pgx.Row) (*models.Quote, error) {
	var q models.Quote
	err := row.Scan(
		&q.ID, &q.LeadID, &q.Amount, &q.QuoteText,
		&q.Status, &q.Notes, &q.CreatedAt, &q.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQuoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan quote: %w", err)
	}
	return &q, nil
}
