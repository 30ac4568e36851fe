package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/whatscrm/server/internal/engine"
	"github.com/whatscrm/server/internal/models"
	"github.com/whatscrm/server/internal/quote"
	"github.com/whatscrm/server/internal/store"
	"github.com/whatscrm/server/pkg/logging"
)

// QuoteService is the engine surface the quote pages need.
type QuoteService interface {
	LoadQuoteView(ctx context.Context, quoteID uuid.UUID) (*engine.QuoteView, error)
	DecideQuote(ctx context.Context, quoteID uuid.UUID, approved bool) (*engine.QuoteView, error)
}

// QuotePageHandler serves the customer-facing quote approval pages linked
// from WhatsApp messages.
type QuotePageHandler struct {
	quotes QuoteService
	logger *logging.Logger
}

func NewQuotePageHandler(quotes QuoteService, logger *logging.Logger) *QuotePageHandler {
	if quotes == nil {
		panic("handlers: quote service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &QuotePageHandler{quotes: quotes, logger: logger}
}

var quotePageTmpl = template.Must(template.New("quote").Parse(`<!DOCTYPE html>
<html lang="he" dir="rtl">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>הצעת מחיר #{{.DisplayNumber}} - {{.BusinessName}}</title>
<style>
body{font-family:Arial,sans-serif;max-width:480px;margin:24px auto;padding:0 16px;color:#222}
h1{font-size:1.3em}
table{width:100%;border-collapse:collapse;margin:16px 0}
td,th{border-bottom:1px solid #ddd;padding:8px;text-align:right}
.total{font-weight:bold;font-size:1.1em}
.actions{display:flex;gap:12px;margin-top:24px}
a.btn{flex:1;text-align:center;padding:12px;border-radius:8px;text-decoration:none;color:#fff}
.approve{background:#25d366}
.reject{background:#d9534f}
.decided{padding:12px;border-radius:8px;background:#eef;margin-top:24px;text-align:center}
</style>
</head>
<body>
<h1>{{.BusinessName}} - הצעת מחיר לפנייה #{{.DisplayNumber}}</h1>
<p>שלום {{.CustomerName}},</p>
<table>
<tr><th>פריט</th><th>כמות</th><th>מחיר</th><th>סה"כ</th></tr>
{{range .Items}}<tr><td>{{.ProductName}}</td><td>{{.Quantity}}</td><td>₪{{.UnitPrice}}</td><td>₪{{.Total}}</td></tr>
{{end}}
<tr class="total"><td colspan="3">סה"כ לתשלום</td><td>₪{{.Amount}}</td></tr>
</table>
<p>המחירים כוללים מע"מ. תוקף ההצעה: 30 יום.</p>
{{if .Decided}}
<div class="decided">{{.DecidedText}}</div>
{{else}}
<div class="actions">
<a class="btn approve" href="/approve-quote/{{.QuoteID}}">אישור ההצעה</a>
<a class="btn reject" href="/reject-quote/{{.QuoteID}}">דחיית ההצעה</a>
</div>
{{end}}
</body>
</html>
`))

type quotePageData struct {
	QuoteID       uuid.UUID
	BusinessName  string
	CustomerName  string
	DisplayNumber int
	Items         []quotePageItem
	Amount        string
	Decided       bool
	DecidedText   string
}

type quotePageItem struct {
	ProductName string
	Quantity    int
	UnitPrice   string
	Total       string
}

// Show renders the quote with approve/reject actions, or the recorded
// decision when one was already made.
func (h *QuotePageHandler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := quoteIDParam(w, r)
	if !ok {
		return
	}
	v, err := h.quotes.LoadQuoteView(r.Context(), id)
	if err != nil {
		h.renderError(w, err)
		return
	}
	h.renderPage(w, v)
}

// Approve records approval from the direct link and re-renders the page.
func (h *QuotePageHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, true)
}

// Reject records rejection from the direct link and re-renders the page.
func (h *QuotePageHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, false)
}

func (h *QuotePageHandler) decide(w http.ResponseWriter, r *http.Request, approved bool) {
	id, ok := quoteIDParam(w, r)
	if !ok {
		return
	}
	v, err := h.quotes.DecideQuote(r.Context(), id, approved)
	if err != nil {
		h.renderError(w, err)
		return
	}
	h.renderPage(w, v)
}

// DecideAPI is the JSON variant used by embedded clients.
func (h *QuotePageHandler) DecideAPI(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuoteID  string `json:"quote_id"`
		Approved bool   `json:"approved"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	id, err := uuid.Parse(req.QuoteID)
	if err != nil {
		http.Error(w, "invalid quote_id", http.StatusBadRequest)
		return
	}
	v, err := h.quotes.DecideQuote(r.Context(), id, req.Approved)
	if err != nil {
		if errors.Is(err, store.ErrQuoteNotFound) {
			http.Error(w, "quote not found", http.StatusNotFound)
			return
		}
		h.logger.Error("quote decision failed", "quote_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"quote_id": v.Quote.ID,
		"status":   v.Quote.Status,
	})
}

func (h *QuotePageHandler) renderPage(w http.ResponseWriter, v *engine.QuoteView) {
	data := quotePageData{
		QuoteID:       v.Quote.ID,
		BusinessName:  v.Business.Name,
		CustomerName:  v.Customer.Name,
		DisplayNumber: v.Lead.DisplayNumber,
		Amount:        quote.FormatAmount(v.Quote.Amount),
	}
	for _, it := range v.Items {
		data.Items = append(data.Items, quotePageItem{
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   quote.FormatAmount(it.UnitPrice),
			Total:       quote.FormatAmount(it.Total),
		})
	}
	switch v.Quote.Status {
	case models.QuoteStatusApproved:
		data.Decided = true
		data.DecidedText = "ההצעה אושרה. ניצור איתך קשר לתיאום מועד."
	case models.QuoteStatusRejected:
		data.Decided = true
		data.DecidedText = "ההצעה נדחתה. תודה שפנית אלינו."
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := quotePageTmpl.Execute(w, data); err != nil {
		h.logger.Error("quote page render failed", "quote_id", v.Quote.ID, "error", err)
	}
}

func (h *QuotePageHandler) renderError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrQuoteNotFound) || errors.Is(err, store.ErrLeadNotFound) {
		http.Error(w, "הצעת המחיר לא נמצאה", http.StatusNotFound)
		return
	}
	h.logger.Error("quote page load failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func quoteIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "quoteID"))
	if err != nil {
		http.Error(w, "invalid quote id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}
