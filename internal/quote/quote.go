// Package quote builds priced proposals from the product catalog and renders
// them as the Hebrew quote text sent to customers.
package quote

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/whatscrm/server/internal/models"
)

// ErrNoSelection is returned when the selection resolves to no products.
var ErrNoSelection = errors.New("quote: no products selected")

// ErrBadIndex is returned when a selected index falls outside the catalog.
var ErrBadIndex = errors.New("quote: product index out of range")

// Build assembles quote items from 1-based catalog indices. Quantities start
// at 1 and change only through the owner's edit sub-flow.
func Build(selected []int, catalog []models.Product) ([]models.QuoteItem, float64, error) {
	if len(selected) == 0 {
		return nil, 0, ErrNoSelection
	}

	var items []models.QuoteItem
	var total float64
	for _, idx := range selected {
		if idx < 1 || idx > len(catalog) {
			return nil, 0, fmt.Errorf("%w: %d", ErrBadIndex, idx)
		}
		p := catalog[idx-1]
		items = append(items, models.QuoteItem{
			ProductName: p.Name,
			Description: p.Description,
			UnitPrice:   p.BasePrice,
			Quantity:    1,
			Total:       p.BasePrice,
		})
		total += p.BasePrice
	}
	return items, total, nil
}

// Total recomputes the grand total after line edits.
func Total(items []models.QuoteItem) float64 {
	var total float64
	for _, it := range items {
		total += it.Total
	}
	return total
}

// RenderText produces the customer-facing quote body.
func RenderText(items []models.QuoteItem) string {
	var b strings.Builder
	b.WriteString("הצעת מחיר:\n\n")
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, it.ProductName)
		fmt.Fprintf(&b, "   מחיר ליחידה: ₪%s | כמות: %d | סה\"כ: ₪%s\n",
			FormatAmount(it.UnitPrice), it.Quantity, FormatAmount(it.Total))
	}
	fmt.Fprintf(&b, "\nסה\"כ לתשלום: ₪%s\n", FormatAmount(Total(items)))
	b.WriteString("\nהמחירים כוללים מע\"מ.\n")
	b.WriteString("תוקף ההצעה: 30 יום.")
	return b.String()
}

// MatchProducts scores the catalog against a service description: 10 points
// per keyword hit, only positive scores returned, highest first. Ties keep
// catalog order.
func MatchProducts(description string, catalog []models.Product) []models.Product {
	descLower := strings.ToLower(description)

	type scored struct {
		product models.Product
		score   int
	}
	var hits []scored
	for _, p := range catalog {
		score := 0
		for _, kw := range p.Keywords {
			if kw != "" && strings.Contains(descLower, strings.ToLower(kw)) {
				score += 10
			}
		}
		if score > 0 {
			hits = append(hits, scored{product: p, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	products := make([]models.Product, len(hits))
	for i, h := range hits {
		products[i] = h.product
	}
	return products
}

// FormatAmount drops a trailing ".00" so whole-shekel prices read naturally.
func FormatAmount(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	return strings.TrimSuffix(s, ".00")
}
