package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/whatscrm/server/internal/models"
	"github.com/whatscrm/server/internal/quote"
	"github.com/whatscrm/server/internal/state"
)

// ownerBuildQuote turns a comma-separated product selection into a persisted
// quote with quantity-1 line items and presents the edit menu.
func (e *Engine) ownerBuildQuote(ctx context.Context, oc *ownerContext) (string, error) {
	lead := oc.selectLead

	products, err := e.store.ListActiveProducts(ctx, oc.business.ID)
	if err != nil {
		return "", err
	}
	indices, ok := parseIndexList(oc.text, len(products))
	if !ok {
		e.send(ctx, oc.business, oc.business.OwnerPhone, msgBadProductSelection)
		return "OK", nil
	}

	items, total, err := quote.Build(indices, products)
	if err != nil {
		e.send(ctx, oc.business, oc.business.OwnerPhone, msgBadProductSelection)
		return "OK", nil
	}

	q := &models.Quote{
		LeadID:    lead.ID,
		Amount:    total,
		QuoteText: quote.RenderText(items),
	}
	if err := e.store.CreateQuote(ctx, q, items); err != nil {
		return "", err
	}
	if err := e.saveQuoteState(ctx, q, state.QuoteState{Kind: state.WaitingForEditChoice}); err != nil {
		return "", err
	}
	if err := e.saveLeadState(ctx, lead, state.LeadState{}); err != nil {
		return "", err
	}

	e.send(ctx, oc.business, oc.business.OwnerPhone, q.QuoteText+"\n\n"+msgQuoteEditMenu)
	return "OK", nil
}

// ownerQuoteEdit dispatches the quote edit sub-flow by its current step.
func (e *Engine) ownerQuoteEdit(ctx context.Context, oc *ownerContext) (string, error) {
	q := oc.activeQuote

	switch oc.quoteState.Kind {
	case state.WaitingForEditChoice:
		return e.quoteEditChoice(ctx, oc)

	case state.WaitingForQuantityChange:
		return e.showItemPicker(ctx, oc, state.WaitingForQuantityItem, msgPickQuantityItem)
	case state.WaitingForPriceChange:
		return e.showItemPicker(ctx, oc, state.WaitingForPriceItem, msgPickPriceItem)

	case state.WaitingForQuantityItem:
		return e.pickItem(ctx, oc, state.WaitingForNewQuantity, msgAskNewQuantity)
	case state.WaitingForPriceItem:
		return e.pickItem(ctx, oc, state.WaitingForNewPrice, msgAskNewPrice)

	case state.WaitingForNewQuantity, state.WaitingForNewPrice:
		return e.applyItemEdit(ctx, oc)
	}

	e.logger.Error("unknown quote edit state", "quote_id", q.ID, "kind", oc.quoteState.Kind)
	return "OK", nil
}

// quoteEditChoice handles the 1-7 edit menu.
func (e *Engine) quoteEditChoice(ctx context.Context, oc *ownerContext) (string, error) {
	switch oc.text {
	case "1":
		return e.showItemPicker(ctx, oc, state.WaitingForQuantityItem, msgPickQuantityItem)
	case "2":
		return e.showItemPicker(ctx, oc, state.WaitingForPriceItem, msgPickPriceItem)
	case "3", "5":
		return e.approveQuote(ctx, oc.business, oc.activeQuote)
	case "4":
		return e.cancelQuote(ctx, oc.business, oc.activeQuote)
	case "6":
		return e.showPendingLeads(ctx, oc)
	case "7":
		e.send(ctx, oc.business, oc.business.OwnerPhone, msgQuoteEditMenu)
		return "OK", nil
	}
	e.send(ctx, oc.business, oc.business.OwnerPhone, msgQuoteEditMenu)
	return "OK", nil
}

// showItemPicker renders the line items and waits for an item number.
func (e *Engine) showItemPicker(ctx context.Context, oc *ownerContext, next state.QuoteKind, prompt string) (string, error) {
	q := oc.activeQuote
	items, err := e.store.GetQuoteItems(ctx, q.ID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s (כמות: %d, מחיר: ₪%.0f)\n", i+1, it.ProductName, it.Quantity, it.UnitPrice)
	}
	b.WriteString("\n" + prompt)

	if err := e.saveQuoteState(ctx, q, state.QuoteState{Kind: next}); err != nil {
		return "", err
	}
	e.send(ctx, oc.business, oc.business.OwnerPhone, b.String())
	return "OK", nil
}

// pickItem validates the chosen line item and records its index in the state
// tag while prompting for the new value.
func (e *Engine) pickItem(ctx context.Context, oc *ownerContext, next state.QuoteKind, prompt string) (string, error) {
	q := oc.activeQuote
	items, err := e.store.GetQuoteItems(ctx, q.ID)
	if err != nil {
		return "", err
	}

	idx, err := strconv.Atoi(oc.text)
	if err != nil || idx < 1 || idx > len(items) {
		e.send(ctx, oc.business, oc.business.OwnerPhone, msgBadItemIndex)
		return "OK", nil
	}

	if err := e.saveQuoteState(ctx, q, state.QuoteState{Kind: next, ItemIndex: idx}); err != nil {
		return "", err
	}
	e.send(ctx, oc.business, oc.business.OwnerPhone, prompt)
	return "OK", nil
}

// applyItemEdit parses the new quantity or unit price, recomputes the line
// and grand totals, and re-renders the quote with the edit menu.
func (e *Engine) applyItemEdit(ctx context.Context, oc *ownerContext) (string, error) {
	q := oc.activeQuote
	items, err := e.store.GetQuoteItems(ctx, q.ID)
	if err != nil {
		return "", err
	}
	idx := oc.quoteState.ItemIndex
	if idx < 1 || idx > len(items) {
		e.logger.Error("item edit: stored index out of range", "quote_id", q.ID, "index", idx)
		if err := e.saveQuoteState(ctx, q, state.QuoteState{Kind: state.WaitingForEditChoice}); err != nil {
			return "", err
		}
		e.send(ctx, oc.business, oc.business.OwnerPhone, msgQuoteEditMenu)
		return "OK", nil
	}
	item := &items[idx-1]

	if oc.quoteState.Kind == state.WaitingForNewQuantity {
		n, err := strconv.Atoi(strings.TrimSpace(oc.text))
		if err != nil || n < 1 {
			e.send(ctx, oc.business, oc.business.OwnerPhone, msgBadPositiveNumber)
			return "OK", nil
		}
		item.Quantity = n
	} else {
		v, err := strconv.ParseFloat(strings.TrimSpace(oc.text), 64)
		if err != nil || v <= 0 {
			e.send(ctx, oc.business, oc.business.OwnerPhone, msgBadPositiveNumber)
			return "OK", nil
		}
		item.UnitPrice = v
	}
	item.Total = item.UnitPrice * float64(item.Quantity)

	if err := e.store.UpdateQuoteItem(ctx, item.ID, item.UnitPrice, item.Quantity, item.Total); err != nil {
		return "", err
	}

	text := quote.RenderText(items)
	total := quote.Total(items)
	if err := e.store.UpdateQuoteAmountAndText(ctx, q.ID, total, text); err != nil {
		return "", err
	}
	q.Amount = total
	q.QuoteText = text

	if err := e.saveQuoteState(ctx, q, state.QuoteState{Kind: state.WaitingForEditChoice}); err != nil {
		return "", err
	}
	e.send(ctx, oc.business, oc.business.OwnerPhone, text+"\n\n"+msgQuoteEditMenu)
	return "OK", nil
}

// approveQuote sends the quote to the customer with the approval link and
// advances the lead to quoted.
func (e *Engine) approveQuote(ctx context.Context, business *models.Business, q *models.Quote) (string, error) {
	items, err := e.store.GetQuoteItems(ctx, q.ID)
	if err != nil {
		return "", err
	}
	text := quote.RenderText(items)
	total := quote.Total(items)
	if err := e.store.UpdateQuoteAmountAndText(ctx, q.ID, total, text); err != nil {
		return "", err
	}
	if err := e.store.UpdateQuoteStatus(ctx, q.ID, models.QuoteStatusSent); err != nil {
		return "", err
	}
	if err := e.store.UpdateLeadStatus(ctx, q.LeadID, models.LeadStatusQuoted); err != nil {
		return "", err
	}
	if err := e.saveQuoteState(ctx, q, state.QuoteState{}); err != nil {
		return "", err
	}

	lead, err := e.store.GetLeadByID(ctx, q.LeadID)
	if err != nil {
		return "", err
	}
	customer, err := e.store.GetCustomerByID(ctx, lead.CustomerID)
	if err != nil {
		return "", err
	}

	e.send(ctx, business, customer.Phone,
		text+"\n\nלאישור ההצעה: "+e.quoteLink(q.ID))
	e.send(ctx, business, business.OwnerPhone,
		fmt.Sprintf("הצעת המחיר לפנייה #%d נשלחה ללקוח.", lead.DisplayNumber))

	return e.showRemainingPending(ctx, business)
}

// cancelQuote deletes the quote and re-opens product selection for its lead.
func (e *Engine) cancelQuote(ctx context.Context, business *models.Business, q *models.Quote) (string, error) {
	lead, err := e.store.GetLeadByID(ctx, q.LeadID)
	if err != nil {
		return "", err
	}
	if err := e.store.DeleteQuote(ctx, q.ID); err != nil {
		return "", err
	}
	e.send(ctx, business, business.OwnerPhone, msgQuoteCancelled)
	return e.ownerStartQuoteSelection(ctx, business, lead)
}

// ownerQuoteKeyword maps the quote keywords onto the edit actions.
func (e *Engine) ownerQuoteKeyword(ctx context.Context, oc *ownerContext) (string, error) {
	switch strings.ToLower(oc.text) {
	case "אישור", "approval", "5":
		return e.approveQuote(ctx, oc.business, oc.activeQuote)
	case "ביטול", "cancel":
		return e.cancelQuote(ctx, oc.business, oc.activeQuote)
	case "עריכה", "edit":
		lead, err := e.store.GetLeadByID(ctx, oc.activeQuote.LeadID)
		if err != nil {
			return "", err
		}
		if err := e.store.DeleteQuote(ctx, oc.activeQuote.ID); err != nil {
			return "", err
		}
		return e.ownerStartQuoteSelection(ctx, oc.business, lead)
	}
	return "OK", nil
}

// showPendingLeads lists leads still waiting for the owner.
func (e *Engine) showPendingLeads(ctx context.Context, oc *ownerContext) (string, error) {
	return e.showRemainingPending(ctx, oc.business)
}

func (e *Engine) showRemainingPending(ctx context.Context, business *models.Business) (string, error) {
	leads, err := e.store.ListLeadsByStatus(ctx, business.ID, models.LeadStatusNew)
	if err != nil {
		return "", err
	}

	var pending []models.Lead
	for _, l := range leads {
		st, err := state.DecodeLead(l.Notes)
		if err == nil && st.Kind == state.WaitingForOwnerAction {
			pending = append(pending, l)
		}
	}
	if len(pending) == 0 {
		return "OK", nil
	}

	var b strings.Builder
	b.WriteString("פניות ממתינות לטיפול:\n")
	for _, l := range pending {
		fmt.Fprintf(&b, "#%d - %s\n", l.DisplayNumber, firstLine(l.ServiceDescription))
	}
	b.WriteString("\nשלח מספר פנייה כדי לטפל בה.")
	e.send(ctx, business, business.OwnerPhone, b.String())
	return "OK", nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
