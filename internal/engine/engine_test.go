package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whatscrm/server/internal/classify"
	"github.com/whatscrm/server/internal/dedup"
	"github.com/whatscrm/server/internal/greenapi"
	"github.com/whatscrm/server/internal/models"
	"github.com/whatscrm/server/internal/observability/metrics"
	"github.com/whatscrm/server/internal/state"
)

type sentMessage struct {
	To   string
	Text string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeSender) SendMessage(_ context.Context, _ *models.Business, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{To: to, Text: text})
	return nil
}

func (f *fakeSender) to(phone string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.To == phone {
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// keywordOnly runs the deterministic fallback directly so scenarios do not
// depend on an LLM.
func keywordOnly() classify.Classifier {
	return classify.NewKeywordClassifier()
}

type harness struct {
	engine   *Engine
	store    *fakeStore
	sender   *fakeSender
	business *models.Business
}

const (
	testOwnerPhone    = "972509999999"
	testCustomerPhone = "972521234567"
	testInstance      = "7103111111"
)

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := newFakeStore()
	business := &models.Business{
		ID:               uuid.New(),
		Name:             "אינסטלציה אקספרס",
		OwnerName:        "משה",
		OwnerPhone:       testOwnerPhone,
		GreenAPIInstance: testInstance,
		ServiceType:      "אינסטלציה",
		ServiceArea:      "גוש דן",
		Availability: models.WeeklyAvailability{
			"sunday":    {Start: "09:00", End: "17:00"},
			"monday":    {Start: "09:00", End: "17:00"},
			"tuesday":   {Start: "09:00", End: "17:00"},
			"wednesday": {Start: "09:00", End: "17:00"},
			"thursday":  {Start: "09:00", End: "17:00"},
			"friday":    {Start: "09:00", End: "13:00"},
			"saturday":  {Start: "09:00", End: "17:00"},
		},
	}
	st.businesses[business.ID] = business
	st.products = []models.Product{
		{ID: uuid.New(), BusinessID: business.ID, Name: "תיקון תריס", BasePrice: 300, Keywords: []string{"תריס"}, IsActive: true},
		{ID: uuid.New(), BusinessID: business.ID, Name: "החלפת גלגלת", BasePrice: 150, Keywords: []string{"גלגלת"}, IsActive: true},
		{ID: uuid.New(), BusinessID: business.ID, Name: "תיקון נזילה", BasePrice: 400, Keywords: []string{"נזילה"}, IsActive: true},
	}

	sender := &fakeSender{}
	eng := New(st, sender, keywordOnly(), dedup.NewMemoryGuard(time.Minute), nil, nil,
		Config{PublicBaseURL: "https://crm.example"}, nil)
	return &harness{engine: eng, store: st, sender: sender, business: business}
}

func (h *harness) inboundText(t *testing.T, fromPhone, messageID, text string) string {
	t.Helper()
	status, err := h.engine.HandleInbound(context.Background(), greenapi.Inbound{
		Event:      greenapi.EventIncomingMessage,
		MessageID:  messageID,
		InstanceID: 7103111111,
		Sender:     fromPhone + "@c.us",
		Text:       text,
	})
	require.NoError(t, err)
	return status
}

func (h *harness) inboundImage(t *testing.T, fromPhone, messageID, caption string) string {
	t.Helper()
	status, err := h.engine.HandleInbound(context.Background(), greenapi.Inbound{
		Event:      greenapi.EventIncomingMessage,
		MessageID:  messageID,
		InstanceID: 7103111111,
		Sender:     fromPhone + "@c.us",
		Text:       caption,
		MediaURL:   "https://media.example/" + messageID,
		MediaType:  "image",
		Caption:    caption,
	})
	require.NoError(t, err)
	return status
}

func (h *harness) customer(t *testing.T, phoneNumber string) *models.Customer {
	t.Helper()
	for _, c := range h.store.customers {
		if c.Phone == phoneNumber {
			return c
		}
	}
	t.Fatalf("customer %s not found", phoneNumber)
	return nil
}

func (h *harness) singleLead(t *testing.T) *models.Lead {
	t.Helper()
	require.Len(t, h.store.leads, 1)
	for _, l := range h.store.leads {
		return l
	}
	return nil
}

func TestSilentDropOnPrivateChat(t *testing.T) {
	h := newHarness(t)

	status := h.inboundText(t, testCustomerPhone, "m1", "בוקר טוב, מה שלומך")

	assert.Equal(t, "OK - ignored", status)
	assert.Zero(t, h.sender.count())
	assert.Empty(t, h.store.leads)
}

func TestDedupSecondDeliveryIsNoop(t *testing.T) {
	h := newHarness(t)

	h.inboundText(t, testCustomerPhone, "dup-1", "התריס שלי תקוע ואני צריך תיקון דחוף")
	sentAfterFirst := h.sender.count()
	leadsAfterFirst := len(h.store.leads)

	status := h.inboundText(t, testCustomerPhone, "dup-1", "התריס שלי תקוע ואני צריך תיקון דחוף")

	assert.Equal(t, "OK - duplicate", status)
	assert.Equal(t, sentAfterFirst, h.sender.count())
	assert.Equal(t, leadsAfterFirst, len(h.store.leads))
}

func TestWhitelistedSenderGetsNoReplies(t *testing.T) {
	h := newHarness(t)
	h.store.whitelist[h.business.ID.String()+"|"+testCustomerPhone] = true

	status := h.inboundText(t, testCustomerPhone, "m1", "התריס שלי תקוע ואני צריך תיקון דחוף")

	assert.Equal(t, "OK - whitelisted", status)
	assert.Zero(t, h.sender.count())
}

func TestIntakeAsksNameFirst(t *testing.T) {
	h := newHarness(t)

	h.inboundText(t, testCustomerPhone, "m1", "אני צריך תיקון, התריס שלי תקוע לגמרי")

	msgs := h.sender.to(testCustomerPhone)
	require.Len(t, msgs, 2) // welcome, then the name question
	assert.Contains(t, msgs[0], "שלום")
	assert.Equal(t, msgAskName, msgs[1])

	c := h.customer(t, testCustomerPhone)
	st, err := state.DecodeCustomer(c.Notes)
	require.NoError(t, err)
	assert.Equal(t, state.WaitingForName, st.Kind)
}

func TestIntakeScenarioThroughPhotos(t *testing.T) {
	h := newHarness(t)

	h.inboundText(t, testCustomerPhone, "m1", "התריס שלי תקוע ולא נסגר כבר יומיים")
	h.inboundText(t, testCustomerPhone, "m2", "דני")
	h.inboundText(t, testCustomerPhone, "m3", "התריס בסלון לא זז בכלל, כנראה הגלגלת שבורה")
	h.inboundText(t, testCustomerPhone, "m4", "הרצל 12 תל אביב")

	c := h.customer(t, testCustomerPhone)
	assert.Equal(t, "דני", c.Name)
	assert.Equal(t, "תל אביב", c.City)
	assert.Equal(t, "הרצל 12 תל אביב", c.Address)

	st, err := state.DecodeCustomer(c.Notes)
	require.NoError(t, err)
	assert.Equal(t, state.WaitingForPhotos, st.Kind)
	assert.Equal(t, 0, st.PhotoCount)

	lead := h.singleLead(t)
	assert.Contains(t, lead.ServiceDescription, "התריס שלי תקוע")
	assert.Contains(t, lead.ServiceDescription, "הגלגלת שבורה")
}

func TestIntakeFinishesOnNoMorePhotos(t *testing.T) {
	h := newHarness(t)

	h.inboundText(t, testCustomerPhone, "m1", "התריס שלי תקוע ולא נסגר כבר יומיים")
	h.inboundText(t, testCustomerPhone, "m2", "דני")
	h.inboundText(t, testCustomerPhone, "m3", "תיאור הבעיה המלא של התריס")
	h.inboundText(t, testCustomerPhone, "m4", "הרצל 12 תל אביב")
	h.inboundImage(t, testCustomerPhone, "m5", "")
	h.inboundText(t, testCustomerPhone, "m6", "אין")

	c := h.customer(t, testCustomerPhone)
	st, err := state.DecodeCustomer(c.Notes)
	require.NoError(t, err)
	assert.True(t, st.Idle())

	lead := h.singleLead(t)
	leadState, err := state.DecodeLead(lead.Notes)
	require.NoError(t, err)
	assert.Equal(t, state.WaitingForOwnerAction, leadState.Kind)

	ownerMsgs := h.sender.to(testOwnerPhone)
	require.NotEmpty(t, ownerMsgs)
	assert.Contains(t, ownerMsgs[len(ownerMsgs)-1], "#1001")
	assert.Contains(t, ownerMsgs[len(ownerMsgs)-1], "1. הכן הצעת מחיר")
}

func TestSelfIntroductionOverridesName(t *testing.T) {
	h := newHarness(t)

	h.inboundText(t, testCustomerPhone, "m1", "התריס שלי תקוע ולא נסגר כבר יומיים")
	h.inboundText(t, testCustomerPhone, "m2", "קוראים לי יוסי כהן")

	c := h.customer(t, testCustomerPhone)
	assert.Equal(t, "יוסי כהן", c.Name)
}

// runIntakeToOwnerAction drives a full intake so owner scenarios start from a
// lead flagged for owner action.
func runIntakeToOwnerAction(t *testing.T, h *harness) *models.Lead {
	t.Helper()
	h.inboundText(t, testCustomerPhone, "i1", "התריס שלי תקוע ולא נסגר כבר יומיים")
	h.inboundText(t, testCustomerPhone, "i2", "דני")
	h.inboundText(t, testCustomerPhone, "i3", "הגלגלת של התריס שבורה לגמרי")
	h.inboundText(t, testCustomerPhone, "i4", "הרצל 12 תל אביב")
	h.inboundText(t, testCustomerPhone, "i5", "אין")
	lead := h.singleLead(t)
	st, err := state.DecodeLead(lead.Notes)
	require.NoError(t, err)
	require.Equal(t, state.WaitingForOwnerAction, st.Kind)
	return lead
}

func TestOwnerBuildsQuoteFromSelection(t *testing.T) {
	h := newHarness(t)
	lead := runIntakeToOwnerAction(t, h)

	h.inboundText(t, testOwnerPhone, "o1", "1")
	ownerMsgs := h.sender.to(testOwnerPhone)
	assert.Contains(t, ownerMsgs[len(ownerMsgs)-1], "בחר מוצרים")

	h.inboundText(t, testOwnerPhone, "o2", "1,3")

	require.Len(t, h.store.quotes, 1)
	var q *models.Quote
	for _, quote := range h.store.quotes {
		q = quote
	}
	assert.Equal(t, lead.ID, q.LeadID)
	assert.Equal(t, 700.0, q.Amount) // 300 + 400

	items := h.store.quoteItems[q.ID]
	require.Len(t, items, 2)
	for _, it := range items {
		assert.Equal(t, 1, it.Quantity)
		assert.Equal(t, it.UnitPrice, it.Total)
	}

	qs, err := state.DecodeQuote(q.Notes)
	require.NoError(t, err)
	assert.Equal(t, state.WaitingForEditChoice, qs.Kind)

	ownerMsgs = h.sender.to(testOwnerPhone)
	assert.Contains(t, ownerMsgs[len(ownerMsgs)-1], "1. שינוי כמות")
}

func TestOwnerApprovesQuote(t *testing.T) {
	h := newHarness(t)
	lead := runIntakeToOwnerAction(t, h)

	h.inboundText(t, testOwnerPhone, "o1", "1")
	h.inboundText(t, testOwnerPhone, "o2", "1,3")
	h.inboundText(t, testOwnerPhone, "o3", "3")

	var q *models.Quote
	for _, quote := range h.store.quotes {
		q = quote
	}
	assert.Equal(t, models.QuoteStatusSent, q.Status)
	assert.Equal(t, models.LeadStatusQuoted, h.store.leads[lead.ID].Status)

	customerMsgs := h.sender.to(testCustomerPhone)
	last := customerMsgs[len(customerMsgs)-1]
	assert.Contains(t, last, "הצעת מחיר")
	assert.Contains(t, last, "https://crm.example/quote/"+q.ID.String())
}

func TestOwnerQuantityEditRecomputesTotals(t *testing.T) {
	h := newHarness(t)
	runIntakeToOwnerAction(t, h)

	h.inboundText(t, testOwnerPhone, "o1", "1")
	h.inboundText(t, testOwnerPhone, "o2", "1,3")
	h.inboundText(t, testOwnerPhone, "o3", "1") // change quantity
	h.inboundText(t, testOwnerPhone, "o4", "2") // item 2
	h.inboundText(t, testOwnerPhone, "o5", "3") // new quantity 3

	var q *models.Quote
	for _, quote := range h.store.quotes {
		q = quote
	}
	items := h.store.quoteItems[q.ID]
	require.Len(t, items, 2)
	assert.Equal(t, 3, items[1].Quantity)
	assert.Equal(t, 1200.0, items[1].Total) // 400 * 3
	assert.Equal(t, 1500.0, q.Amount)       // 300 + 1200

	qs, err := state.DecodeQuote(q.Notes)
	require.NoError(t, err)
	assert.Equal(t, state.WaitingForEditChoice, qs.Kind)
}

func TestOwnerInvalidEditValueKeepsState(t *testing.T) {
	h := newHarness(t)
	runIntakeToOwnerAction(t, h)

	h.inboundText(t, testOwnerPhone, "o1", "1")
	h.inboundText(t, testOwnerPhone, "o2", "1,3")
	h.inboundText(t, testOwnerPhone, "o3", "2")   // change price
	h.inboundText(t, testOwnerPhone, "o4", "1")   // item 1
	h.inboundText(t, testOwnerPhone, "o5", "אפס") // not a number

	var q *models.Quote
	for _, quote := range h.store.quotes {
		q = quote
	}
	qs, err := state.DecodeQuote(q.Notes)
	require.NoError(t, err)
	assert.Equal(t, state.WaitingForNewPrice, qs.Kind)
	assert.Equal(t, 1, qs.ItemIndex)

	ownerMsgs := h.sender.to(testOwnerPhone)
	assert.Equal(t, msgBadPositiveNumber, ownerMsgs[len(ownerMsgs)-1])
}

func TestOwnerLeadByDisplayNumber(t *testing.T) {
	h := newHarness(t)
	lead := runIntakeToOwnerAction(t, h)

	// clear the pending flag, then recall the lead by number
	require.NoError(t, h.store.UpdateLeadNotes(context.Background(), lead.ID, ""))
	h.inboundText(t, testOwnerPhone, "o1", "1001")

	st, err := state.DecodeLead(h.store.leads[lead.ID].Notes)
	require.NoError(t, err)
	assert.Equal(t, state.WaitingForOwnerAction, st.Kind)

	ownerMsgs := h.sender.to(testOwnerPhone)
	assert.Contains(t, ownerMsgs[len(ownerMsgs)-1], "#1001")
}

func TestOwnerWhitelistCommand(t *testing.T) {
	h := newHarness(t)
	runIntakeToOwnerAction(t, h)

	h.inboundText(t, testOwnerPhone, "o1", "פרטי אבא")

	listed, err := h.store.IsWhitelisted(context.Background(), h.business.ID, testCustomerPhone)
	require.NoError(t, err)
	assert.True(t, listed)

	// and the customer is silent from now on
	before := h.sender.count()
	h.inboundText(t, testCustomerPhone, "c9", "התריס שוב תקוע, תעזרו לי בבקשה")
	assert.Equal(t, before, h.sender.count())
}

func TestCustomerAppointmentChoice(t *testing.T) {
	h := newHarness(t)
	lead := runIntakeToOwnerAction(t, h)

	options := &state.AppointmentOptions{
		LeadID: lead.ID.String(),
		Options: []state.AppointmentOption{
			{Index: 1, Date: "2026-09-06", Time: "10:00", DurationMinutes: 60},
			{Index: 2, Date: "2026-09-06", Time: "12:00", DurationMinutes: 60},
		},
	}
	require.NoError(t, h.store.UpdateLeadNotes(context.Background(), lead.ID,
		state.EncodeLead("", state.LeadState{Kind: state.AppointmentOptionsSet, Options: options})))
	c := h.customer(t, testCustomerPhone)
	require.NoError(t, h.store.UpdateCustomerNotes(context.Background(), c.ID,
		state.EncodeCustomer("", state.CustomerState{Kind: state.WaitingForAppointmentChoice, LeadID: lead.ID})))

	h.inboundText(t, testCustomerPhone, "c1", "9")
	customerMsgs := h.sender.to(testCustomerPhone)
	assert.Equal(t, msgBadAppointmentChoice, customerMsgs[len(customerMsgs)-1])
	assert.Empty(t, h.store.appointments)

	h.inboundText(t, testCustomerPhone, "c2", "2")
	require.Len(t, h.store.appointments, 1)
	appt := h.store.appointments[0]
	assert.Equal(t, "12:00", appt.Time)
	assert.Equal(t, lead.ID, appt.LeadID)
	assert.Equal(t, models.LeadStatusScheduled, h.store.leads[lead.ID].Status)

	st, err := state.DecodeCustomer(h.customer(t, testCustomerPhone).Notes)
	require.NoError(t, err)
	assert.True(t, st.Idle())
}

func TestOwnerHelpFallback(t *testing.T) {
	h := newHarness(t)

	h.inboundText(t, testOwnerPhone, "o1", "מה קורה")

	msgs := h.sender.to(testOwnerPhone)
	require.Len(t, msgs, 1)
	assert.Equal(t, msgOwnerNoPendingLead, msgs[0])
}

func TestConcurrentMessagesSerializePerConversation(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			h.inboundText(t, testCustomerPhone, "race-"+string(rune('a'+n)),
				"התריס שלי תקוע ולא נסגר כבר יומיים")
		}(i)
	}
	wg.Wait()

	// exactly one lead regardless of interleaving
	assert.Len(t, h.store.leads, 1)
}

func TestWelcomeTemplateRendering(t *testing.T) {
	h := newHarness(t)
	h.business.ResponseTemplate = "שלום מ-{business_name}! {owner_name} ({service_type}, {service_area}) יחזור אליך."

	h.inboundText(t, testCustomerPhone, "m1", "התריס שלי תקוע ולא נסגר כבר יומיים")

	msgs := h.sender.to(testCustomerPhone)
	require.NotEmpty(t, msgs)
	assert.Equal(t, "שלום מ-אינסטלציה אקספרס! משה (אינסטלציה, גוש דן) יחזור אליך.", msgs[0])
}

func TestCustomerApprovesQuoteFromWebPage(t *testing.T) {
	h := newHarness(t)
	lead := runIntakeToOwnerAction(t, h)

	h.inboundText(t, testOwnerPhone, "o1", "1")
	h.inboundText(t, testOwnerPhone, "o2", "1,3")
	h.inboundText(t, testOwnerPhone, "o3", "3")

	var q *models.Quote
	for _, quote := range h.store.quotes {
		q = quote
	}
	require.Equal(t, models.QuoteStatusSent, q.Status)

	_, err := h.engine.DecideQuote(context.Background(), q.ID, true)
	require.NoError(t, err)

	assert.Equal(t, models.QuoteStatusApproved, h.store.quotes[q.ID].Status)
	assert.Equal(t, models.LeadStatusApproved, h.store.leads[lead.ID].Status)

	st, err := state.DecodeCustomer(h.customer(t, testCustomerPhone).Notes)
	require.NoError(t, err)
	assert.Equal(t, state.GeneralCorrespondence, st.Kind)

	customerMsgs := h.sender.to(testCustomerPhone)
	require.NotEmpty(t, customerMsgs)
	assert.Contains(t, customerMsgs[len(customerMsgs)-1], "אישרת את הצעת המחיר")

	ownerMsgs := h.sender.to(testOwnerPhone)
	require.NotEmpty(t, ownerMsgs)
	assert.Contains(t, ownerMsgs[len(ownerMsgs)-1], "אישר את הצעת המחיר")
	assert.Contains(t, ownerMsgs[len(ownerMsgs)-1], "פגישה")

	// deciding again is a no-op
	before := h.sender.count()
	_, err = h.engine.DecideQuote(context.Background(), q.ID, true)
	require.NoError(t, err)
	assert.Equal(t, before, h.sender.count())
}

func TestOwnerMenuSuggestsMatchingProducts(t *testing.T) {
	h := newHarness(t)
	runIntakeToOwnerAction(t, h)

	ownerMsgs := h.sender.to(testOwnerPhone)
	require.NotEmpty(t, ownerMsgs)
	menu := ownerMsgs[len(ownerMsgs)-1]
	assert.Contains(t, menu, "מוצרים מתאימים")
	assert.Contains(t, menu, "תיקון תריס")
	assert.Contains(t, menu, "החלפת גלגלת")
	assert.NotContains(t, menu, "תיקון נזילה")
}

func TestOutboundSendsCounted(t *testing.T) {
	h := newHarness(t)
	reg := prometheus.NewRegistry()
	h.engine.cfg.Metrics = metrics.NewMessagingMetrics(reg)

	h.inboundText(t, testCustomerPhone, "m1", "התריס שלי תקוע ולא נסגר כבר יומיים")
	h.store.whitelist[h.business.ID.String()+"|"+testCustomerPhone] = true
	h.inboundText(t, testCustomerPhone, "m2", "עוד פרטים")

	counts := outboundCounts(t, reg)
	assert.Greater(t, counts["sent|false"], 0.0)
	assert.Equal(t, 1.0, counts["suppressed|true"])
}

// outboundCounts gathers whatscrm_messaging_outbound_total as "status|suppressed" → value.
func outboundCounts(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	counts := make(map[string]float64)
	for _, mf := range families {
		if mf.GetName() != "whatscrm_messaging_outbound_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			counts[labels["status"]+"|"+labels["suppressed"]] = m.GetCounter().GetValue()
		}
	}
	return counts
}

func TestArchivedCountFinalizesPhotoStep(t *testing.T) {
	h := newHarness(t)

	h.inboundText(t, testCustomerPhone, "m1", "התריס שלי תקוע ולא נסגר כבר יומיים")
	h.inboundText(t, testCustomerPhone, "m2", "דני")
	h.inboundText(t, testCustomerPhone, "m3", "הגלגלת של התריס שבורה לגמרי")
	h.inboundText(t, testCustomerPhone, "m4", "הרצל 12 תל אביב")

	lead := h.singleLead(t)
	// redelivered webhooks already archived up to the photo cap
	h.store.mediaCounts[lead.ID] = 3
	h.inboundImage(t, testCustomerPhone, "m5", "")

	st, err := state.DecodeLead(h.store.leads[lead.ID].Notes)
	require.NoError(t, err)
	assert.Equal(t, state.WaitingForOwnerAction, st.Kind)

	ownerMsgs := h.sender.to(testOwnerPhone)
	require.NotEmpty(t, ownerMsgs)
	assert.Contains(t, ownerMsgs[len(ownerMsgs)-1], "מה תרצה לעשות")
}
