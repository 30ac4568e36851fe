package quote

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whatscrm/server/internal/models"
)

func catalog() []models.Product {
	return []models.Product{
		{Name: "דוד שמש 150 ליטר", BasePrice: 2000, Keywords: []string{"דוד", "שמש"}},
		{Name: "התקנת דוד", BasePrice: 400, Keywords: []string{"התקנה", "דוד"}},
		{Name: "תיקון נזילה", BasePrice: 350, Keywords: []string{"נזילה", "דליפה"}},
	}
}

func TestBuildDefaultsQuantityToOne(t *testing.T) {
	items, total, err := Build([]int{1, 3}, catalog())
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "דוד שמש 150 ליטר", items[0].ProductName)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, 2000.0, items[0].Total)
	assert.Equal(t, 1, items[1].Quantity)
	assert.Equal(t, 2350.0, total)
}

func TestBuildRejectsBadInput(t *testing.T) {
	_, _, err := Build(nil, catalog())
	assert.ErrorIs(t, err, ErrNoSelection)

	_, _, err = Build([]int{4}, catalog())
	assert.ErrorIs(t, err, ErrBadIndex)

	_, _, err = Build([]int{0}, catalog())
	assert.True(t, errors.Is(err, ErrBadIndex))
}

func TestTotalEqualsSumOfLineTotals(t *testing.T) {
	items, total, err := Build([]int{1, 2, 3}, catalog())
	require.NoError(t, err)

	items[1].Quantity = 3
	items[1].Total = items[1].UnitPrice * float64(items[1].Quantity)
	assert.NotEqual(t, total, Total(items))
	assert.Equal(t, 2000.0+1200.0+350.0, Total(items))
}

func TestRenderText(t *testing.T) {
	items, _, err := Build([]int{1, 2}, catalog())
	require.NoError(t, err)
	items[1].Quantity = 2
	items[1].Total = 800

	text := RenderText(items)

	assert.True(t, strings.HasPrefix(text, "הצעת מחיר:"))
	assert.Contains(t, text, "1. דוד שמש 150 ליטר")
	assert.Contains(t, text, "2. התקנת דוד")
	assert.Contains(t, text, "כמות: 2")
	assert.Contains(t, text, "₪800")
	assert.Contains(t, text, "סה\"כ לתשלום: ₪2800")
	assert.Contains(t, text, "מע\"מ")
	assert.Contains(t, text, "30 יום")
}

func TestMatchProducts(t *testing.T) {
	matched := MatchProducts("צריך דוד שמש חדש", catalog())
	require.Len(t, matched, 2)

	// two keyword hits beat one
	assert.Equal(t, "דוד שמש 150 ליטר", matched[0].Name)
	assert.Equal(t, "התקנת דוד", matched[1].Name)

	assert.Empty(t, MatchProducts("שאלה כללית", catalog()))
}
