// Package state models conversation state as typed variants per subject
// (customer, lead, quote) and owns the codec that embeds those variants as
// bracketed tag lines inside the free-text notes column. All engine branching
// switches over the typed variant; only this package touches the encoded form.
package state

import (
	"time"

	"github.com/google/uuid"
)

// CustomerKind identifies what the conversation with a customer is waiting for.
type CustomerKind string

const (
	CustomerIdle                  CustomerKind = ""
	WaitingForName                CustomerKind = "WAITING_FOR_NAME"
	WaitingForDescription         CustomerKind = "WAITING_FOR_DESCRIPTION"
	WaitingForAddress             CustomerKind = "WAITING_FOR_ADDRESS"
	WaitingForAddressConfirmation CustomerKind = "WAITING_FOR_ADDRESS_CONFIRMATION"
	WaitingForPhotos              CustomerKind = "WAITING_FOR_PHOTOS"
	WaitingForAppointmentChoice   CustomerKind = "WAITING_FOR_APPOINTMENT_CHOICE"
	GeneralCorrespondence         CustomerKind = "WAITING_FOR_GENERAL_CORRESPONDENCE"
	WaitingForInquiryRelation     CustomerKind = "WAITING_FOR_INQUIRY_RELATION"
)

// CustomerState is the single active marker governing interpretation of the
// next inbound message from a customer.
type CustomerState struct {
	Kind       CustomerKind
	LeadID     uuid.UUID
	PhotoCount int       // WaitingForPhotos only
	Since      time.Time // GeneralCorrespondence entry time
	Message    string    // original text preserved verbatim for later relay
}

// Idle reports whether no marker is active.
func (s CustomerState) Idle() bool { return s.Kind == CustomerIdle }

// Expired reports whether a general-correspondence cool-down has lapsed.
func (s CustomerState) Expired(now time.Time, window time.Duration) bool {
	if s.Kind != GeneralCorrespondence {
		return false
	}
	return s.Since.IsZero() || now.Sub(s.Since) >= window
}

// LeadKind identifies the owner-facing sub-flow active on a lead.
type LeadKind string

const (
	LeadNone                 LeadKind = ""
	WaitingForOwnerAction    LeadKind = "WAITING_FOR_OWNER_ACTION"
	WaitingForQuoteSelection LeadKind = "WAITING_FOR_QUOTE_SELECTION"
	AppointmentOptionsSet    LeadKind = "APPOINTMENT_OPTIONS"
	SelectingDays            LeadKind = "SELECTING_APPOINTMENT_DAYS"
	SelectingTimesMulti      LeadKind = "SELECTING_APPOINTMENT_TIMES_MULTI"
)

// LeadState carries the owner sub-flow marker plus its JSON payload.
// Only one sub-flow tag may be active on a lead at a time.
type LeadState struct {
	Kind    LeadKind
	Options *AppointmentOptions // AppointmentOptionsSet
	Session *SchedulingSession  // SelectingDays / SelectingTimesMulti
}

// None reports whether no owner sub-flow is active.
func (s LeadState) None() bool { return s.Kind == LeadNone }

// QuoteKind identifies the step of the owner's quote-edit sub-flow.
type QuoteKind string

const (
	QuoteNone                QuoteKind = ""
	WaitingForEditChoice     QuoteKind = "WAITING_FOR_EDIT_CHOICE"
	WaitingForQuantityChange QuoteKind = "WAITING_FOR_QUANTITY_CHANGE"
	WaitingForPriceChange    QuoteKind = "WAITING_FOR_PRICE_CHANGE"
	WaitingForQuantityItem   QuoteKind = "WAITING_FOR_QUANTITY_ITEM_SELECTION"
	WaitingForPriceItem      QuoteKind = "WAITING_FOR_PRICE_ITEM_SELECTION"
	WaitingForNewQuantity    QuoteKind = "WAITING_FOR_NEW_QUANTITY"
	WaitingForNewPrice       QuoteKind = "WAITING_FOR_NEW_PRICE"
)

// QuoteState is the owner edit sub-flow marker. ItemIndex is the 1-based line
// item pending a new value for WaitingForNewQuantity / WaitingForNewPrice.
type QuoteState struct {
	Kind      QuoteKind
	ItemIndex int
}

// None reports whether no edit sub-flow is active.
func (s QuoteState) None() bool { return s.Kind == QuoteNone }

// AppointmentOption is one bookable slot offered to a customer.
type AppointmentOption struct {
	Index           int    `json:"index"`
	Date            string `json:"date"` // "2006-01-02"
	Time            string `json:"time"` // "15:04"
	DurationMinutes int    `json:"duration_minutes"`
}

// AppointmentOptions is the payload of an APPOINTMENT_OPTIONS tag: the slots
// forwarded to the customer, awaiting a numeric choice.
type AppointmentOptions struct {
	LeadID  string              `json:"lead_id"`
	Options []AppointmentOption `json:"options"`
}

// SessionDay is one selected day inside a scheduling session with the slots
// computed for it.
type SessionDay struct {
	Date  string              `json:"date"`
	Slots []AppointmentOption `json:"slots"`
}

// SchedulingSession is the payload of the owner's day/time selection sub-flow.
// OfferedDays is the 1-based date menu shown for day selection; Days and
// Current drive the per-day time selection; Chosen accumulates picked slots.
type SchedulingSession struct {
	LeadID      string              `json:"lead_id"`
	OfferedDays []string            `json:"offered_days,omitempty"`
	Days        []SessionDay        `json:"days,omitempty"`
	Current     int                 `json:"current"`
	Chosen      []AppointmentOption `json:"chosen,omitempty"`
}
