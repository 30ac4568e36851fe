package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/whatscrm/server/internal/models"
	"github.com/whatscrm/server/internal/phone"
	"github.com/whatscrm/server/internal/quote"
	"github.com/whatscrm/server/internal/state"
)

// ErrNoAppointment is returned when a lead has no appointment on record.
var ErrNoAppointment = errors.New("engine: no appointment for lead")

// ErrQuoteNotSendable is returned when a rejected quote is re-sent.
var ErrQuoteNotSendable = errors.New("engine: quote is not sendable")

// QuoteView bundles everything the quote approval page renders.
type QuoteView struct {
	Business *models.Business
	Lead     *models.Lead
	Customer *models.Customer
	Quote    *models.Quote
	Items    []models.QuoteItem
}

const (
	msgQuoteApprovedByCustomer = "תודה! אישרת את הצעת המחיר. ניצור איתך קשר בהקדם לתיאום מועד."
	msgQuoteRejectedByCustomer = "קיבלנו את תשובתך. תודה שפנית אלינו."
)

// LoadQuoteView loads a quote with its lead, customer and business for the
// web approval pages.
func (e *Engine) LoadQuoteView(ctx context.Context, quoteID uuid.UUID) (*QuoteView, error) {
	q, err := e.store.GetQuoteByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	lead, err := e.store.GetLeadByID(ctx, q.LeadID)
	if err != nil {
		return nil, err
	}
	customer, err := e.store.GetCustomerByID(ctx, lead.CustomerID)
	if err != nil {
		return nil, err
	}
	business, err := e.store.GetBusinessByID(ctx, lead.BusinessID)
	if err != nil {
		return nil, err
	}
	items, err := e.store.GetQuoteItems(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	return &QuoteView{Business: business, Lead: lead, Customer: customer, Quote: q, Items: items}, nil
}

// DecideQuote records the customer's decision from the web approval page.
// Approval marks quote and lead approved, notifies the owner and freezes
// automated replies for the correspondence window; rejection marks the quote
// rejected and notifies the owner. A quote already decided is left as is.
func (e *Engine) DecideQuote(ctx context.Context, quoteID uuid.UUID, approved bool) (*QuoteView, error) {
	ctx, span := tracer.Start(ctx, "engine.DecideQuote",
		trace.WithAttributes(attribute.Bool("approved", approved)))
	defer span.End()

	v, err := e.LoadQuoteView(ctx, quoteID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	unlock := e.locks.lock(v.Business.ID.String() + "|" + v.Customer.Phone)
	defer unlock()

	if v.Quote.Status == models.QuoteStatusApproved || v.Quote.Status == models.QuoteStatusRejected {
		return v, nil
	}

	if approved {
		if err := e.store.UpdateQuoteStatus(ctx, v.Quote.ID, models.QuoteStatusApproved); err != nil {
			span.RecordError(err)
			return nil, err
		}
		if err := e.store.UpdateLeadStatus(ctx, v.Lead.ID, models.LeadStatusApproved); err != nil {
			span.RecordError(err)
			return nil, err
		}
		v.Quote.Status = models.QuoteStatusApproved
		v.Lead.Status = models.LeadStatusApproved

		if err := e.saveCustomerState(ctx, v.Customer, state.CustomerState{
			Kind:  state.GeneralCorrespondence,
			Since: e.now(),
		}); err != nil {
			e.logger.Error("freeze customer after approval failed", "customer_id", v.Customer.ID, "error", err)
		}

		e.send(ctx, v.Business, v.Customer.Phone, msgQuoteApprovedByCustomer)
		e.send(ctx, v.Business, v.Business.OwnerPhone, fmt.Sprintf(
			"הלקוח %s אישר את הצעת המחיר לפנייה #%d (₪%s).\nכתבו \"פגישה\" לקביעת מועד.",
			v.Customer.Name, v.Lead.DisplayNumber, quote.FormatAmount(v.Quote.Amount)))
		return v, nil
	}

	if err := e.store.UpdateQuoteStatus(ctx, v.Quote.ID, models.QuoteStatusRejected); err != nil {
		span.RecordError(err)
		return nil, err
	}
	v.Quote.Status = models.QuoteStatusRejected

	e.send(ctx, v.Business, v.Customer.Phone, msgQuoteRejectedByCustomer)
	e.send(ctx, v.Business, v.Business.OwnerPhone, fmt.Sprintf(
		"הלקוח %s דחה את הצעת המחיר לפנייה #%d.",
		v.Customer.Name, v.Lead.DisplayNumber))
	return v, nil
}

// ResendQuote delivers the quote text and approval link to the customer again.
func (e *Engine) ResendQuote(ctx context.Context, quoteID uuid.UUID) error {
	v, err := e.LoadQuoteView(ctx, quoteID)
	if err != nil {
		return err
	}
	if v.Quote.Status == models.QuoteStatusRejected {
		return ErrQuoteNotSendable
	}
	e.send(ctx, v.Business, v.Customer.Phone,
		v.Quote.QuoteText+"\n\nלאישור ההצעה: "+e.quoteLink(v.Quote.ID))
	return nil
}

// LookupLeadAppointment returns the lead's appointment for the web page.
func (e *Engine) LookupLeadAppointment(ctx context.Context, leadID uuid.UUID) (*models.Appointment, error) {
	appt, err := e.store.FindAppointmentByLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if appt == nil {
		return nil, ErrNoAppointment
	}
	return appt, nil
}

// ConfirmLeadAppointment confirms the lead's pending appointment and notifies
// both parties. Confirming twice is a no-op.
func (e *Engine) ConfirmLeadAppointment(ctx context.Context, leadID uuid.UUID) (*models.Appointment, error) {
	appt, err := e.store.FindAppointmentByLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if appt == nil {
		return nil, ErrNoAppointment
	}
	if appt.Status == models.AppointmentStatusConfirmed {
		return appt, nil
	}
	if err := e.store.ConfirmAppointment(ctx, appt.ID); err != nil {
		return nil, err
	}
	appt.Status = models.AppointmentStatusConfirmed

	business, err := e.store.GetBusinessByID(ctx, appt.BusinessID)
	if err != nil {
		return appt, err
	}
	customer, err := e.store.GetCustomerByID(ctx, appt.CustomerID)
	if err != nil {
		return appt, err
	}
	text := fmt.Sprintf("הפגישה אושרה: %s בשעה %s.", appt.Date.Format(dateLayout), appt.Time)
	e.send(ctx, business, customer.Phone, text)
	e.send(ctx, business, business.OwnerPhone, text)
	return appt, nil
}

// MarkAppointmentSent records that the appointment details reached the
// customer through another channel: the lead moves to scheduled and both
// conversation markers are cleared, with no messages sent.
func (e *Engine) MarkAppointmentSent(ctx context.Context, leadID uuid.UUID) error {
	appt, err := e.store.FindAppointmentByLead(ctx, leadID)
	if err != nil {
		return err
	}
	if appt == nil {
		return ErrNoAppointment
	}
	lead, err := e.store.GetLeadByID(ctx, leadID)
	if err != nil {
		return err
	}
	if err := e.store.UpdateLeadStatus(ctx, lead.ID, models.LeadStatusScheduled); err != nil {
		return err
	}
	if err := e.saveLeadState(ctx, lead, state.LeadState{}); err != nil {
		return err
	}
	customer, err := e.store.GetCustomerByID(ctx, lead.CustomerID)
	if err != nil {
		return err
	}
	return e.saveCustomerState(ctx, customer, state.CustomerState{})
}

// SendDirect delivers an arbitrary message through a business's WhatsApp
// instance; the operator endpoints use it.
func (e *Engine) SendDirect(ctx context.Context, businessID uuid.UUID, rawPhone, text string) error {
	business, err := e.store.GetBusinessByID(ctx, businessID)
	if err != nil {
		return err
	}
	return e.sender.SendMessage(ctx, business, phone.Normalize(rawPhone), text)
}
