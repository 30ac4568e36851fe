package engine

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/whatscrm/server/internal/models"
	"github.com/whatscrm/server/internal/phone"
	"github.com/whatscrm/server/internal/store"
)

// fakeStore is an in-memory Datastore for engine scenario tests.
type fakeStore struct {
	mu           sync.Mutex
	businesses   map[uuid.UUID]*models.Business
	customers    map[uuid.UUID]*models.Customer
	leads        map[uuid.UUID]*models.Lead
	quotes       map[uuid.UUID]*models.Quote
	quoteItems   map[uuid.UUID][]models.QuoteItem
	appointments []models.Appointment
	whitelist    map[string]bool
	products     []models.Product
	mediaCounts  map[uuid.UUID]int
	nextNumber   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		businesses:  make(map[uuid.UUID]*models.Business),
		customers:   make(map[uuid.UUID]*models.Customer),
		leads:       make(map[uuid.UUID]*models.Lead),
		quotes:      make(map[uuid.UUID]*models.Quote),
		quoteItems:  make(map[uuid.UUID][]models.QuoteItem),
		whitelist:   make(map[string]bool),
		mediaCounts: make(map[uuid.UUID]int),
		nextNumber:  models.FirstLeadNumber,
	}
}

func (f *fakeStore) GetBusinessByInstanceID(_ context.Context, instanceID string) (*models.Business, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.businesses {
		if b.GreenAPIInstance == instanceID {
			return b, nil
		}
	}
	return nil, store.ErrBusinessNotFound
}

func (f *fakeStore) GetBusinessByID(_ context.Context, id uuid.UUID) (*models.Business, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.businesses[id]; ok {
		return b, nil
	}
	return nil, store.ErrBusinessNotFound
}

func (f *fakeStore) UpdateBusinessSettings(_ context.Context, id uuid.UUID, settings models.BusinessSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.businesses[id]; ok {
		b.Settings = settings
	}
	return nil
}

func (f *fakeStore) GetOrCreateCustomer(_ context.Context, businessID uuid.UUID, rawPhone string) (*models.Customer, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	normalized := phone.Normalize(rawPhone)
	for _, c := range f.customers {
		if c.BusinessID == businessID && c.Phone == normalized {
			return c, false, nil
		}
	}
	c := &models.Customer{
		ID:         uuid.New(),
		BusinessID: businessID,
		Name:       models.PlaceholderNamePrefix + normalized[len(normalized)-4:],
		Phone:      normalized,
		CreatedAt:  time.Now(),
	}
	f.customers[c.ID] = c
	return c, true, nil
}

func (f *fakeStore) GetCustomerByID(_ context.Context, id uuid.UUID) (*models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.customers[id]; ok {
		return c, nil
	}
	return nil, store.ErrCustomerNotFound
}

func (f *fakeStore) UpdateCustomerName(_ context.Context, id uuid.UUID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers[id].Name = name
	return nil
}

func (f *fakeStore) UpdateCustomerAddress(_ context.Context, id uuid.UUID, address, city, fullAddress string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.customers[id]
	c.Address, c.City, c.FullAddress = address, city, fullAddress
	return nil
}

func (f *fakeStore) UpdateCustomerNotes(_ context.Context, id uuid.UUID, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers[id].Notes = notes
	return nil
}

func (f *fakeStore) FindOpenLead(_ context.Context, customerID uuid.UUID, within time.Duration) (*models.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *models.Lead
	cutoff := time.Now().Add(-within)
	for _, l := range f.leads {
		if l.CustomerID != customerID || l.Status == models.LeadStatusCompleted || l.CreatedAt.Before(cutoff) {
			continue
		}
		if best == nil || l.CreatedAt.After(best.CreatedAt) {
			best = l
		}
	}
	if best == nil {
		return nil, store.ErrLeadNotFound
	}
	return best, nil
}

func (f *fakeStore) CreateLead(_ context.Context, businessID, customerID uuid.UUID, description string) (*models.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := &models.Lead{
		ID:                 uuid.New(),
		BusinessID:         businessID,
		CustomerID:         customerID,
		DisplayNumber:      f.nextNumber,
		ServiceDescription: description,
		Status:             models.LeadStatusNew,
		CreatedAt:          time.Now(),
	}
	f.nextNumber++
	f.leads[l.ID] = l
	return l, nil
}

func (f *fakeStore) GetLeadByID(_ context.Context, id uuid.UUID) (*models.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.leads[id]; ok {
		return l, nil
	}
	return nil, store.ErrLeadNotFound
}

func (f *fakeStore) GetLeadByDisplayNumber(_ context.Context, businessID uuid.UUID, displayNumber int) (*models.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.leads {
		if l.BusinessID == businessID && l.DisplayNumber == displayNumber {
			return l, nil
		}
	}
	return nil, store.ErrLeadNotFound
}

func (f *fakeStore) AppendLeadDescription(_ context.Context, id uuid.UUID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.leads[id]
	if l.ServiceDescription == "" {
		l.ServiceDescription = text
	} else {
		l.ServiceDescription += "\n" + text
	}
	return nil
}

func (f *fakeStore) UpdateLeadStatus(_ context.Context, id uuid.UUID, status models.LeadStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leads[id].Status = status
	return nil
}

func (f *fakeStore) UpdateLeadNotes(_ context.Context, id uuid.UUID, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leads[id].Notes = notes
	return nil
}

func (f *fakeStore) findLeadWithTag(match func(*models.Lead) bool, tag string, within time.Duration) (*models.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *models.Lead
	cutoff := time.Now().Add(-within)
	for _, l := range f.leads {
		if !match(l) || l.Status == models.LeadStatusCompleted || l.CreatedAt.Before(cutoff) {
			continue
		}
		if !strings.Contains(l.Notes, "["+tag+"]") {
			continue
		}
		if best == nil || l.CreatedAt.After(best.CreatedAt) {
			best = l
		}
	}
	if best == nil {
		return nil, store.ErrLeadNotFound
	}
	return best, nil
}

func (f *fakeStore) FindRecentLeadWithTag(_ context.Context, businessID uuid.UUID, tag string, within time.Duration) (*models.Lead, error) {
	return f.findLeadWithTag(func(l *models.Lead) bool { return l.BusinessID == businessID }, tag, within)
}

func (f *fakeStore) FindRecentLeadForCustomerWithTag(_ context.Context, customerID uuid.UUID, tag string, within time.Duration) (*models.Lead, error) {
	return f.findLeadWithTag(func(l *models.Lead) bool { return l.CustomerID == customerID }, tag, within)
}

func (f *fakeStore) ListLeadsByStatus(_ context.Context, businessID uuid.UUID, status models.LeadStatus) ([]models.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Lead
	for _, l := range f.leads {
		if l.BusinessID == businessID && l.Status == status {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) FindLeadForMeeting(_ context.Context, businessID uuid.UUID) (*models.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *models.Lead
	bestRank := 2
	for _, q := range f.quotes {
		var rank int
		switch q.Status {
		case models.QuoteStatusApproved:
			rank = 0
		case models.QuoteStatusSent:
			rank = 1
		default:
			continue
		}
		l, ok := f.leads[q.LeadID]
		if !ok || l.BusinessID != businessID {
			continue
		}
		if best == nil || rank < bestRank || (rank == bestRank && l.CreatedAt.After(best.CreatedAt)) {
			best, bestRank = l, rank
		}
	}
	if best == nil {
		return nil, store.ErrLeadNotFound
	}
	return best, nil
}

func (f *fakeStore) CreateQuote(_ context.Context, q *models.Quote, items []models.QuoteItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.Status == "" {
		q.Status = models.QuoteStatusPendingOwnerApproval
	}
	q.CreatedAt = time.Now()
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
		items[i].QuoteID = q.ID
		items[i].Position = i + 1
	}
	f.quotes[q.ID] = q
	f.quoteItems[q.ID] = items
	return nil
}

func (f *fakeStore) GetQuoteByID(_ context.Context, id uuid.UUID) (*models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if q, ok := f.quotes[id]; ok {
		return q, nil
	}
	return nil, store.ErrQuoteNotFound
}

func (f *fakeStore) GetQuoteItems(_ context.Context, quoteID uuid.UUID) ([]models.QuoteItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.QuoteItem(nil), f.quoteItems[quoteID]...), nil
}

func (f *fakeStore) FindActiveQuote(_ context.Context, businessID uuid.UUID) (*models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *models.Quote
	for _, q := range f.quotes {
		if q.Status != models.QuoteStatusPendingOwnerApproval {
			continue
		}
		l, ok := f.leads[q.LeadID]
		if !ok || l.BusinessID != businessID {
			continue
		}
		if best == nil || q.CreatedAt.After(best.CreatedAt) {
			best = q
		}
	}
	if best == nil {
		return nil, store.ErrQuoteNotFound
	}
	return best, nil
}

func (f *fakeStore) FindQuoteByLead(_ context.Context, leadID uuid.UUID) (*models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *models.Quote
	for _, q := range f.quotes {
		if q.LeadID != leadID {
			continue
		}
		if best == nil || q.CreatedAt.After(best.CreatedAt) {
			best = q
		}
	}
	if best == nil {
		return nil, store.ErrQuoteNotFound
	}
	return best, nil
}

func (f *fakeStore) UpdateQuoteStatus(_ context.Context, id uuid.UUID, status models.QuoteStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[id].Status = status
	return nil
}

func (f *fakeStore) UpdateQuoteNotes(_ context.Context, id uuid.UUID, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[id].Notes = notes
	return nil
}

func (f *fakeStore) UpdateQuoteAmountAndText(_ context.Context, id uuid.UUID, amount float64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.quotes[id]
	q.Amount = amount
	q.QuoteText = text
	return nil
}

func (f *fakeStore) UpdateQuoteItem(_ context.Context, id uuid.UUID, unitPrice float64, quantity int, total float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for quoteID, items := range f.quoteItems {
		for i := range items {
			if items[i].ID == id {
				items[i].UnitPrice = unitPrice
				items[i].Quantity = quantity
				items[i].Total = total
				f.quoteItems[quoteID] = items
				return nil
			}
		}
	}
	return store.ErrQuoteNotFound
}

func (f *fakeStore) DeleteQuote(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.quotes, id)
	delete(f.quoteItems, id)
	return nil
}

func (f *fakeStore) CreateAppointment(_ context.Context, a *models.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	f.appointments = append(f.appointments, *a)
	return nil
}

func (f *fakeStore) ConfirmAppointment(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.appointments {
		if f.appointments[i].ID == id {
			f.appointments[i].Status = models.AppointmentStatusConfirmed
		}
	}
	return nil
}

func (f *fakeStore) FindAppointmentByLead(_ context.Context, leadID uuid.UUID) (*models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.appointments {
		if f.appointments[i].LeadID == leadID {
			a := f.appointments[i]
			return &a, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) IsWhitelisted(_ context.Context, businessID uuid.UUID, normalizedPhone string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.whitelist[businessID.String()+"|"+normalizedPhone], nil
}

func (f *fakeStore) AddToWhitelist(_ context.Context, businessID uuid.UUID, normalizedPhone, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := businessID.String() + "|" + normalizedPhone
	if f.whitelist[key] {
		return false, nil
	}
	f.whitelist[key] = true
	return true, nil
}

func (f *fakeStore) CountLeadMedia(_ context.Context, leadID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mediaCounts[leadID], nil
}

func (f *fakeStore) ListActiveProducts(_ context.Context, businessID uuid.UUID) ([]models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Product
	for _, p := range f.products {
		if p.BusinessID == businessID && p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}
