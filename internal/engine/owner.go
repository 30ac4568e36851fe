package engine

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/whatscrm/server/internal/greenapi"
	"github.com/whatscrm/server/internal/models"
	"github.com/whatscrm/server/internal/phone"
	"github.com/whatscrm/server/internal/state"
)

// ownerContext is the per-message view the dispatcher rules evaluate.
// Active sub-flows are re-queried from the store for every message rather
// than cached, because several can coexist across leads and quotes and the
// most recently created one must win.
type ownerContext struct {
	business *models.Business
	text     string

	daySelect   *models.Lead // SELECTING_APPOINTMENT_DAYS active
	timeSelect  *models.Lead // SELECTING_APPOINTMENT_TIMES_MULTI active
	pendingLead *models.Lead // WAITING_FOR_OWNER_ACTION active
	selectLead  *models.Lead // WAITING_FOR_QUOTE_SELECTION active
	activeQuote *models.Quote
	quoteState  state.QuoteState
}

// ownerRule is one entry in the owner command dispatcher: a named guard and
// the action it enables. Rules are evaluated top to bottom, first guard that
// matches runs; adding a command means adding a row, not re-reasoning the
// whole chain.
type ownerRule struct {
	name  string
	guard func(*ownerContext) bool
	run   func(context.Context, *ownerContext) (string, error)
}

var privatePattern = regexp.MustCompile(`(?i)^(?:private|פרטי)\s+(.+)$`)
var fourDigits = regexp.MustCompile(`^\d{4}$`)
var indexList = regexp.MustCompile(`^\d{1,2}(?:\s*,\s*\d{1,2})*$`)

func (e *Engine) ownerRules() []ownerRule {
	return []ownerRule{
		{
			name:  "whitelist",
			guard: func(oc *ownerContext) bool { return privatePattern.MatchString(oc.text) },
			run:   e.ownerWhitelist,
		},
		{
			name:  "day-selection",
			guard: func(oc *ownerContext) bool { return oc.daySelect != nil },
			run: func(ctx context.Context, oc *ownerContext) (string, error) {
				st, err := state.DecodeLead(oc.daySelect.Notes)
				if err != nil || st.Session == nil {
					e.logger.Error("day selection: bad session", "lead_id", oc.daySelect.ID, "error", err)
					return "OK - stale state", nil
				}
				return e.handleDaySelection(ctx, oc.business, oc.daySelect, st.Session, oc.text)
			},
		},
		{
			name:  "time-selection",
			guard: func(oc *ownerContext) bool { return oc.timeSelect != nil },
			run: func(ctx context.Context, oc *ownerContext) (string, error) {
				st, err := state.DecodeLead(oc.timeSelect.Notes)
				if err != nil || st.Session == nil {
					e.logger.Error("time selection: bad session", "lead_id", oc.timeSelect.ID, "error", err)
					return "OK - stale state", nil
				}
				return e.handleTimeSelection(ctx, oc.business, oc.timeSelect, st.Session, oc.text)
			},
		},
		{
			name: "lead-menu",
			guard: func(oc *ownerContext) bool {
				return oc.pendingLead != nil && isMenuDigit(oc.text)
			},
			run: e.ownerLeadMenu,
		},
		{
			name:  "lead-number",
			guard: func(oc *ownerContext) bool { return fourDigits.MatchString(oc.text) },
			run:   e.ownerLeadByNumber,
		},
		{
			name: "quote-edit",
			guard: func(oc *ownerContext) bool {
				return oc.activeQuote != nil && !oc.quoteState.None()
			},
			run: e.ownerQuoteEdit,
		},
		{
			name: "meeting",
			guard: func(oc *ownerContext) bool {
				t := strings.ToLower(oc.text)
				return t == "פגישה" || t == "meeting"
			},
			run: func(ctx context.Context, oc *ownerContext) (string, error) {
				return e.ownerMeeting(ctx, oc)
			},
		},
		{
			name: "product-selection",
			guard: func(oc *ownerContext) bool {
				return oc.selectLead != nil && oc.quoteState.None() &&
					oc.text != "99" && indexList.MatchString(oc.text)
			},
			run: e.ownerBuildQuote,
		},
		{
			name: "quote-keyword",
			guard: func(oc *ownerContext) bool {
				if oc.activeQuote == nil {
					return false
				}
				switch strings.ToLower(oc.text) {
				case "אישור", "approval", "ביטול", "cancel", "עריכה", "edit", "5":
					return true
				}
				return false
			},
			run: e.ownerQuoteKeyword,
		},
		{
			name:  "help",
			guard: func(*ownerContext) bool { return true },
			run:   e.ownerHelp,
		},
	}
}

// handleOwner resolves the owner's active sub-flows and dispatches the
// message through the rule table.
func (e *Engine) handleOwner(ctx context.Context, business *models.Business, in greenapi.Inbound) (string, error) {
	oc := &ownerContext{
		business: business,
		text:     strings.TrimSpace(in.Text),
	}

	if lead, err := e.store.FindRecentLeadWithTag(ctx, business.ID, string(state.SelectingDays), e.cfg.LeadValidity); err == nil {
		oc.daySelect = lead
	}
	if lead, err := e.store.FindRecentLeadWithTag(ctx, business.ID, string(state.SelectingTimesMulti), e.cfg.LeadValidity); err == nil {
		oc.timeSelect = lead
	}
	if lead, err := e.store.FindRecentLeadWithTag(ctx, business.ID, string(state.WaitingForOwnerAction), e.cfg.LeadValidity); err == nil {
		oc.pendingLead = lead
	}
	if lead, err := e.store.FindRecentLeadWithTag(ctx, business.ID, string(state.WaitingForQuoteSelection), e.cfg.LeadValidity); err == nil {
		oc.selectLead = lead
	}
	if q, err := e.store.FindActiveQuote(ctx, business.ID); err == nil {
		oc.activeQuote = q
		st, err := state.DecodeQuote(q.Notes)
		if err != nil {
			e.logger.Error("malformed quote state", "quote_id", q.ID, "error", err)
		}
		oc.quoteState = st
	}

	for _, rule := range e.ownerRules() {
		if rule.guard(oc) {
			e.logger.Debug("owner command", "rule", rule.name, "business_id", business.ID)
			return rule.run(ctx, oc)
		}
	}
	return "OK", nil
}

// ownerWhitelist handles "private <name>": opts the chat partner of the most
// recent lead out of automated handling.
func (e *Engine) ownerWhitelist(ctx context.Context, oc *ownerContext) (string, error) {
	name := strings.TrimSpace(privatePattern.FindStringSubmatch(oc.text)[1])

	lead := oc.pendingLead
	if lead == nil {
		lead = oc.selectLead
	}
	if lead == nil {
		e.send(ctx, oc.business, oc.business.OwnerPhone,
			"לא נמצאה שיחה אחרונה להוספה לרשימה הפרטית.")
		return "OK", nil
	}
	customer, err := e.store.GetCustomerByID(ctx, lead.CustomerID)
	if err != nil {
		return "", err
	}

	created, err := e.store.AddToWhitelist(ctx, oc.business.ID, phone.Normalize(customer.Phone), name)
	if err != nil {
		e.send(ctx, oc.business, oc.business.OwnerPhone, "הוספה לרשימה הפרטית נכשלה.")
		return "OK", nil
	}
	if created {
		e.send(ctx, oc.business, oc.business.OwnerPhone, name+" נוסף לרשימה הפרטית. לא יישלחו אליו תשובות אוטומטיות.")
	} else {
		e.send(ctx, oc.business, oc.business.OwnerPhone, name+" כבר נמצא ברשימה הפרטית.")
	}
	return "OK", nil
}

// ownerLeadMenu runs the numeric action menu against the pending lead.
func (e *Engine) ownerLeadMenu(ctx context.Context, oc *ownerContext) (string, error) {
	lead := oc.pendingLead
	switch oc.text {
	case "1":
		return e.ownerStartQuoteSelection(ctx, oc.business, lead)
	case "2":
		q, err := e.store.FindQuoteByLead(ctx, lead.ID)
		if err != nil || q.Status != models.QuoteStatusApproved {
			e.send(ctx, oc.business, oc.business.OwnerPhone, msgQuoteApprovedPrecondition)
			return "OK", nil
		}
		return e.beginScheduling(ctx, oc.business, lead)
	case "3":
		customer, err := e.store.GetCustomerByID(ctx, lead.CustomerID)
		if err != nil {
			return "", err
		}
		e.send(ctx, oc.business, oc.business.OwnerPhone,
			fmt.Sprintf("%s: %s\nלהתקשרות: tel:+%s", customer.Name, customer.Phone, phone.Normalize(customer.Phone)))
		return "OK", nil
	case "4":
		customer, err := e.store.GetCustomerByID(ctx, lead.CustomerID)
		if err != nil {
			return "", err
		}
		e.send(ctx, oc.business, oc.business.OwnerPhone,
			"https://wa.me/"+phone.Normalize(customer.Phone))
		return "OK", nil
	}
	return "OK", nil
}

// ownerStartQuoteSelection lists the catalog and flags the lead for product
// selection. The selection tag replaces the owner-action tag.
func (e *Engine) ownerStartQuoteSelection(ctx context.Context, business *models.Business, lead *models.Lead) (string, error) {
	products, err := e.store.ListActiveProducts(ctx, business.ID)
	if err != nil {
		return "", err
	}
	if len(products) == 0 {
		e.send(ctx, business, business.OwnerPhone, msgNoProducts)
		return "OK", nil
	}
	if err := e.saveLeadState(ctx, lead, state.LeadState{Kind: state.WaitingForQuoteSelection}); err != nil {
		return "", err
	}
	e.send(ctx, business, business.OwnerPhone, renderProductList(products))
	return "OK", nil
}

// ownerLeadByNumber re-presents the action menu for a lead picked by its
// 4-digit display number.
func (e *Engine) ownerLeadByNumber(ctx context.Context, oc *ownerContext) (string, error) {
	n, _ := strconv.Atoi(oc.text)
	lead, err := e.store.GetLeadByDisplayNumber(ctx, oc.business.ID, n)
	if err != nil {
		if isNotFound(err) {
			e.send(ctx, oc.business, oc.business.OwnerPhone,
				fmt.Sprintf("לא נמצאה פנייה מספר %d.", n))
			return "OK", nil
		}
		return "", err
	}

	if err := e.saveLeadState(ctx, lead, state.LeadState{Kind: state.WaitingForOwnerAction}); err != nil {
		return "", err
	}
	customer, err := e.store.GetCustomerByID(ctx, lead.CustomerID)
	if err != nil {
		return "", err
	}
	e.send(ctx, oc.business, oc.business.OwnerPhone, renderOwnerLeadMenu(lead, customer, e.suggestProducts(ctx, lead)))
	return "OK", nil
}

// ownerMeeting finds the most advanced quoted lead and starts scheduling,
// loading the multi-lead queue when several leads qualify.
func (e *Engine) ownerMeeting(ctx context.Context, oc *ownerContext) (string, error) {
	approved, err := e.store.ListLeadsByStatus(ctx, oc.business.ID, models.LeadStatusApproved)
	if err != nil {
		return "", err
	}
	if len(approved) > 1 {
		return e.startSchedulingQueue(ctx, oc.business)
	}

	lead, err := e.store.FindLeadForMeeting(ctx, oc.business.ID)
	if err != nil {
		if isNotFound(err) {
			e.send(ctx, oc.business, oc.business.OwnerPhone, msgNoApprovedLead)
			return "OK", nil
		}
		return "", err
	}
	return e.beginScheduling(ctx, oc.business, lead)
}

// ownerHelp is the fall-through rule: a contextual hint depending on what is
// currently pending.
func (e *Engine) ownerHelp(ctx context.Context, oc *ownerContext) (string, error) {
	switch {
	case oc.activeQuote != nil:
		e.send(ctx, oc.business, oc.business.OwnerPhone, msgOwnerHelpQuote)
	case oc.pendingLead != nil || oc.selectLead != nil:
		e.send(ctx, oc.business, oc.business.OwnerPhone, msgOwnerHelpLead)
	default:
		e.send(ctx, oc.business, oc.business.OwnerPhone, msgOwnerNoPendingLead)
	}
	return "OK", nil
}

func isMenuDigit(s string) bool {
	return s == "1" || s == "2" || s == "3" || s == "4"
}
