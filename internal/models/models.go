// Package models defines the persisted entities shared by the store,
// the dialogue engine, and the HTTP surface.
package models

import (
	"time"

	"github.com/google/uuid"
)

// FirstLeadNumber is the display number issued to the first lead of the system.
const FirstLeadNumber = 1001

// MediaRetention is how long archived lead media is kept before the sweep
// deletes it from blob storage and metadata.
const MediaRetention = 30 * 24 * time.Hour

// BusinessSettings is the JSON settings blob on a business row. It carries the
// in-progress multi-lead scheduling queue.
type BusinessSettings struct {
	CurrentSchedulingLead  string   `json:"current_scheduling_lead,omitempty"`
	PendingSchedulingLeads []string `json:"pending_scheduling_leads,omitempty"`
}

// DayWindow is the bookable window of one weekday, "HH:MM" local times.
type DayWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// WeeklyAvailability maps lowercase weekday names ("sunday".."saturday")
// to their bookable windows. A missing day has no slots.
type WeeklyAvailability map[string]DayWindow

// Business identifies a tenant: messaging credentials, owner contact,
// settings blob and response template. Created out-of-band; read-mostly here.
type Business struct {
	ID                 uuid.UUID          `json:"id"`
	Name               string             `json:"business_name"`
	OwnerName          string             `json:"owner_name"`
	OwnerPhone         string             `json:"owner_phone"`
	GreenAPIInstance   string             `json:"green_api_instance"`
	GreenAPIToken      string             `json:"green_api_token"`
	ServiceType        string             `json:"service_type"`
	ServiceArea        string             `json:"service_area"`
	ServiceDescription string             `json:"service_description"`
	ResponseTemplate   string             `json:"response_template"`
	Settings           BusinessSettings   `json:"settings"`
	Availability       WeeklyAvailability `json:"availability"`
	CreatedAt          time.Time          `json:"created_at"`
}

// Customer is one per (business, normalized phone). Notes doubles as free-text
// annotation and as the encoded conversation state (see internal/state).
type Customer struct {
	ID          uuid.UUID `json:"id"`
	BusinessID  uuid.UUID `json:"business_id"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	Address     string    `json:"address"`
	City        string    `json:"city"`
	FullAddress string    `json:"full_address"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasName reports whether the customer has a real name on file, as opposed to
// the placeholder assigned on first contact.
func (c *Customer) HasName() bool {
	return c.Name != "" && !isPlaceholderName(c.Name)
}

// LeadStatus enumerates the lifecycle of a lead.
type LeadStatus string

const (
	LeadStatusNew                   LeadStatus = "new"
	LeadStatusQuoted                LeadStatus = "quoted"
	LeadStatusApproved              LeadStatus = "approved"
	LeadStatusScheduled             LeadStatus = "scheduled"
	LeadStatusAppointmentScheduling LeadStatus = "appointment_scheduling"
	LeadStatusCompleted             LeadStatus = "completed"
)

// Lead is one open business inquiry per customer, scoped in time. Notes holds
// owner-side sub-flow state the same way Customer.Notes holds customer state.
type Lead struct {
	ID                 uuid.UUID  `json:"id"`
	BusinessID         uuid.UUID  `json:"business_id"`
	CustomerID         uuid.UUID  `json:"customer_id"`
	DisplayNumber      int        `json:"display_number"`
	ServiceDescription string     `json:"service_description"`
	Status             LeadStatus `json:"status"`
	Notes              string     `json:"notes"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Open reports whether the lead still accepts follow-up messages.
func (l *Lead) Open() bool {
	return l.Status != LeadStatusCompleted
}

// LeadMedia is an attachment bound to a lead, kept until ExpiresAt.
type LeadMedia struct {
	ID          uuid.UUID `json:"id"`
	LeadID      uuid.UUID `json:"lead_id"`
	MediaType   string    `json:"media_type"`
	StoragePath string    `json:"storage_path"`
	Caption     string    `json:"caption"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// QuoteStatus enumerates the lifecycle of a quote.
type QuoteStatus string

const (
	QuoteStatusPendingOwnerApproval QuoteStatus = "pending_owner_approval"
	QuoteStatusSent                 QuoteStatus = "sent"
	QuoteStatusApproved             QuoteStatus = "approved"
	QuoteStatusRejected             QuoteStatus = "rejected"
)

// Quote is a priced proposal tied to one lead. Notes holds the owner's
// edit sub-flow state.
type Quote struct {
	ID        uuid.UUID   `json:"id"`
	LeadID    uuid.UUID   `json:"lead_id"`
	Amount    float64     `json:"amount"`
	QuoteText string      `json:"quote_text"`
	Status    QuoteStatus `json:"status"`
	Notes     string      `json:"notes"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// QuoteItem is a denormalized snapshot of a catalog product on a quote.
// Total must equal UnitPrice * Quantity after every edit.
type QuoteItem struct {
	ID          uuid.UUID `json:"id"`
	QuoteID     uuid.UUID `json:"quote_id"`
	ProductName string    `json:"product_name"`
	Description string    `json:"description"`
	UnitPrice   float64   `json:"unit_price"`
	Quantity    int       `json:"quantity"`
	Total       float64   `json:"total"`
	Position    int       `json:"position"`
}

// AppointmentStatus enumerates appointment states.
type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
)

// Appointment is never mutated after creation; rescheduling is out of scope.
type Appointment struct {
	ID              uuid.UUID         `json:"id"`
	BusinessID      uuid.UUID         `json:"business_id"`
	CustomerID      uuid.UUID         `json:"customer_id"`
	LeadID          uuid.UUID         `json:"lead_id"`
	Date            time.Time         `json:"date"`
	Time            string            `json:"time"`
	DurationMinutes int               `json:"duration_minutes"`
	Status          AppointmentStatus `json:"status"`
	Location        string            `json:"location"`
	CreatedAt       time.Time         `json:"created_at"`
}

// WhitelistEntry opts a phone out of automated handling for one business.
type WhitelistEntry struct {
	ID         uuid.UUID `json:"id"`
	BusinessID uuid.UUID `json:"business_id"`
	Phone      string    `json:"phone"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}

// Product is a catalog entry used to assemble quotes.
type Product struct {
	ID          uuid.UUID `json:"id"`
	BusinessID  uuid.UUID `json:"business_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	BasePrice   float64   `json:"base_price"`
	Keywords    []string  `json:"keywords"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// PlaceholderNamePrefix is assigned to new customers before intake collects
// a real name ("לקוח 4567" with the last phone digits).
const PlaceholderNamePrefix = "לקוח "

func isPlaceholderName(name string) bool {
	return len(name) >= len(PlaceholderNamePrefix) && name[:len(PlaceholderNamePrefix)] == PlaceholderNamePrefix
}
