// Package engine is the dialogue state machine: it turns inbound WhatsApp
// events into state transitions and outbound messages for customers and
// business owners.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/whatscrm/server/internal/classify"
	"github.com/whatscrm/server/internal/dedup"
	"github.com/whatscrm/server/internal/greenapi"
	"github.com/whatscrm/server/internal/models"
	"github.com/whatscrm/server/internal/observability/metrics"
	"github.com/whatscrm/server/internal/phone"
	"github.com/whatscrm/server/internal/quote"
	"github.com/whatscrm/server/internal/schedule"
	"github.com/whatscrm/server/internal/state"
	"github.com/whatscrm/server/internal/store"
	"github.com/whatscrm/server/pkg/logging"
)

var tracer = otel.Tracer("whatscrm.internal.engine")

// Datastore is the persistence surface the engine drives. *store.Store
// implements it; tests use an in-memory fake.
type Datastore interface {
	GetBusinessByInstanceID(ctx context.Context, instanceID string) (*models.Business, error)
	GetBusinessByID(ctx context.Context, id uuid.UUID) (*models.Business, error)
	UpdateBusinessSettings(ctx context.Context, id uuid.UUID, settings models.BusinessSettings) error

	GetOrCreateCustomer(ctx context.Context, businessID uuid.UUID, rawPhone string) (*models.Customer, bool, error)
	GetCustomerByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	UpdateCustomerName(ctx context.Context, id uuid.UUID, name string) error
	UpdateCustomerAddress(ctx context.Context, id uuid.UUID, address, city, fullAddress string) error
	UpdateCustomerNotes(ctx context.Context, id uuid.UUID, notes string) error

	FindOpenLead(ctx context.Context, customerID uuid.UUID, within time.Duration) (*models.Lead, error)
	CreateLead(ctx context.Context, businessID, customerID uuid.UUID, description string) (*models.Lead, error)
	GetLeadByID(ctx context.Context, id uuid.UUID) (*models.Lead, error)
	GetLeadByDisplayNumber(ctx context.Context, businessID uuid.UUID, displayNumber int) (*models.Lead, error)
	AppendLeadDescription(ctx context.Context, id uuid.UUID, text string) error
	UpdateLeadStatus(ctx context.Context, id uuid.UUID, status models.LeadStatus) error
	UpdateLeadNotes(ctx context.Context, id uuid.UUID, notes string) error
	FindRecentLeadWithTag(ctx context.Context, businessID uuid.UUID, tag string, within time.Duration) (*models.Lead, error)
	FindRecentLeadForCustomerWithTag(ctx context.Context, customerID uuid.UUID, tag string, within time.Duration) (*models.Lead, error)
	ListLeadsByStatus(ctx context.Context, businessID uuid.UUID, status models.LeadStatus) ([]models.Lead, error)
	FindLeadForMeeting(ctx context.Context, businessID uuid.UUID) (*models.Lead, error)

	CreateQuote(ctx context.Context, q *models.Quote, items []models.QuoteItem) error
	GetQuoteByID(ctx context.Context, id uuid.UUID) (*models.Quote, error)
	GetQuoteItems(ctx context.Context, quoteID uuid.UUID) ([]models.QuoteItem, error)
	FindActiveQuote(ctx context.Context, businessID uuid.UUID) (*models.Quote, error)
	FindQuoteByLead(ctx context.Context, leadID uuid.UUID) (*models.Quote, error)
	UpdateQuoteStatus(ctx context.Context, id uuid.UUID, status models.QuoteStatus) error
	UpdateQuoteNotes(ctx context.Context, id uuid.UUID, notes string) error
	UpdateQuoteAmountAndText(ctx context.Context, id uuid.UUID, amount float64, text string) error
	UpdateQuoteItem(ctx context.Context, id uuid.UUID, unitPrice float64, quantity int, total float64) error
	DeleteQuote(ctx context.Context, id uuid.UUID) error

	CreateAppointment(ctx context.Context, a *models.Appointment) error
	ConfirmAppointment(ctx context.Context, id uuid.UUID) error
	FindAppointmentByLead(ctx context.Context, leadID uuid.UUID) (*models.Appointment, error)

	IsWhitelisted(ctx context.Context, businessID uuid.UUID, normalizedPhone string) (bool, error)
	AddToWhitelist(ctx context.Context, businessID uuid.UUID, normalizedPhone, name string) (bool, error)

	CountLeadMedia(ctx context.Context, leadID uuid.UUID) (int, error)
	ListActiveProducts(ctx context.Context, businessID uuid.UUID) ([]models.Product, error)
}

// MediaArchiver stores an inbound attachment for a lead.
type MediaArchiver interface {
	Archive(ctx context.Context, leadID uuid.UUID, mediaType, downloadURL, caption string) (*models.LeadMedia, error)
}

// SlotCalculator computes bookable slots; *schedule.Scheduler implements it.
type SlotCalculator interface {
	CalculateDaySlots(ctx context.Context, businessID uuid.UUID, date time.Time, window models.DayWindow) ([]schedule.Slot, error)
}

// Config carries the engine's tunables.
type Config struct {
	PublicBaseURL     string
	LeadValidity      time.Duration
	CorrespondenceTTL time.Duration
	MaxIntakePhotos   int
	Metrics           *metrics.MessagingMetrics
}

// Engine drives all conversation state transitions. Transitions for one
// conversation are serialized with a keyed mutex per (business, phone) so two
// near-simultaneous messages cannot interleave a read-modify-write.
type Engine struct {
	store      Datastore
	sender     greenapi.Sender
	classifier classify.Classifier
	guard      dedup.Guard
	archiver   MediaArchiver
	slots      SlotCalculator
	cfg        Config
	logger     *logging.Logger
	locks      *keyedMutex
	now        func() time.Time
}

// New wires an engine. All dependencies are required except archiver and
// slots, which degrade the media and scheduling features when nil.
func New(store Datastore, sender greenapi.Sender, classifier classify.Classifier, guard dedup.Guard, archiver MediaArchiver, slots SlotCalculator, cfg Config, logger *logging.Logger) *Engine {
	if store == nil {
		panic("engine: datastore required")
	}
	if sender == nil {
		panic("engine: sender required")
	}
	if classifier == nil {
		panic("engine: classifier required")
	}
	if guard == nil {
		panic("engine: dedup guard required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.LeadValidity <= 0 {
		cfg.LeadValidity = 24 * time.Hour
	}
	if cfg.CorrespondenceTTL <= 0 {
		cfg.CorrespondenceTTL = 24 * time.Hour
	}
	if cfg.MaxIntakePhotos <= 0 {
		cfg.MaxIntakePhotos = 3
	}
	return &Engine{
		store:      store,
		sender:     sender,
		classifier: classifier,
		guard:      guard,
		archiver:   archiver,
		slots:      slots,
		cfg:        cfg,
		logger:     logger,
		locks:      newKeyedMutex(),
		now:        time.Now,
	}
}

// HandleInbound processes one webhook event and returns the short status
// string the webhook handler echoes back to the provider.
func (e *Engine) HandleInbound(ctx context.Context, in greenapi.Inbound) (string, error) {
	ctx, span := tracer.Start(ctx, "engine.HandleInbound",
		trace.WithAttributes(attribute.String("event", in.Event)))
	defer span.End()

	if in.Event != greenapi.EventIncomingMessage {
		return "OK - not a message", nil
	}
	if in.Sender == "" {
		return "OK - no sender", nil
	}

	business, err := e.store.GetBusinessByInstanceID(ctx, strconv.FormatInt(in.InstanceID, 10))
	if err != nil {
		if isNotFound(err) {
			return "OK - no business", nil
		}
		span.RecordError(err)
		return "", err
	}

	if in.MessageID != "" && e.guard.Seen(ctx, in.MessageID) {
		return "OK - duplicate", nil
	}

	sender := phone.Normalize(phone.FromChatID(in.Sender))
	unlock := e.locks.lock(business.ID.String() + "|" + sender)
	defer unlock()

	role := e.resolveRole(business, sender)
	e.logger.Info("inbound message",
		"business_id", business.ID,
		"sender", sender,
		"role", role,
		"media_type", in.MediaType,
	)

	if role == roleOwner {
		return e.handleOwner(ctx, business, in)
	}
	return e.handleCustomer(ctx, business, sender, in)
}

type role string

const (
	roleOwner    role = "owner"
	roleCustomer role = "customer"
)

// resolveRole computes the sender's role once per event; the rest of the
// engine never re-derives it.
func (e *Engine) resolveRole(business *models.Business, normalizedSender string) role {
	if business.OwnerPhone != "" && phone.Equal(business.OwnerPhone, normalizedSender) {
		return roleOwner
	}
	return roleCustomer
}

// send delivers one outbound message; failures are logged and swallowed so a
// provider outage never fails the webhook.
func (e *Engine) send(ctx context.Context, business *models.Business, to, text string) {
	if err := e.sender.SendMessage(ctx, business, to, text); err != nil {
		e.logger.Error("send message failed", "to", to, "error", err)
		e.cfg.Metrics.ObserveOutbound("error", false)
		return
	}
	e.cfg.Metrics.ObserveOutbound("sent", false)
}

// suggestProducts matches the lead description against the active catalog for
// the owner menu. Failures degrade to no suggestions.
func (e *Engine) suggestProducts(ctx context.Context, lead *models.Lead) []models.Product {
	if lead.ServiceDescription == "" {
		return nil
	}
	products, err := e.store.ListActiveProducts(ctx, lead.BusinessID)
	if err != nil {
		e.logger.Error("list products for suggestions failed", "lead_id", lead.ID, "error", err)
		return nil
	}
	return quote.MatchProducts(lead.ServiceDescription, products)
}

// saveCustomerState encodes and persists a customer marker.
func (e *Engine) saveCustomerState(ctx context.Context, customer *models.Customer, st state.CustomerState) error {
	notes := state.EncodeCustomer(customer.Notes, st)
	if err := e.store.UpdateCustomerNotes(ctx, customer.ID, notes); err != nil {
		return err
	}
	customer.Notes = notes
	return nil
}

// saveLeadState encodes and persists an owner sub-flow marker.
func (e *Engine) saveLeadState(ctx context.Context, lead *models.Lead, st state.LeadState) error {
	notes := state.EncodeLead(lead.Notes, st)
	if err := e.store.UpdateLeadNotes(ctx, lead.ID, notes); err != nil {
		return err
	}
	lead.Notes = notes
	return nil
}

// saveQuoteState encodes and persists a quote edit marker.
func (e *Engine) saveQuoteState(ctx context.Context, q *models.Quote, st state.QuoteState) error {
	notes := state.EncodeQuote(q.Notes, st)
	if err := e.store.UpdateQuoteNotes(ctx, q.ID, notes); err != nil {
		return err
	}
	q.Notes = notes
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrBusinessNotFound) ||
		errors.Is(err, store.ErrCustomerNotFound) ||
		errors.Is(err, store.ErrLeadNotFound) ||
		errors.Is(err, store.ErrQuoteNotFound)
}

// quoteLink builds the customer-facing approval page URL.
func (e *Engine) quoteLink(quoteID uuid.UUID) string {
	return fmt.Sprintf("%s/quote/%s", e.cfg.PublicBaseURL, quoteID)
}
