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
	"github.com/whatscrm/server/internal/store"
	"github.com/whatscrm/server/pkg/logging"
)

// AppointmentService is the engine surface the appointment endpoints need.
type AppointmentService interface {
	LookupLeadAppointment(ctx context.Context, leadID uuid.UUID) (*models.Appointment, error)
	ConfirmLeadAppointment(ctx context.Context, leadID uuid.UUID) (*models.Appointment, error)
	MarkAppointmentSent(ctx context.Context, leadID uuid.UUID) error
}

// AppointmentHandler serves the appointment confirmation page and the
// operator endpoints around it.
type AppointmentHandler struct {
	appointments AppointmentService
	logger       *logging.Logger
}

func NewAppointmentHandler(appointments AppointmentService, logger *logging.Logger) *AppointmentHandler {
	if appointments == nil {
		panic("handlers: appointment service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentHandler{appointments: appointments, logger: logger}
}

var appointmentPageTmpl = template.Must(template.New("appointment").Parse(`<!DOCTYPE html>
<html lang="he" dir="rtl">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>פרטי פגישה</title>
<style>
body{font-family:Arial,sans-serif;max-width:480px;margin:24px auto;padding:0 16px;color:#222}
dl{margin:16px 0}
dt{font-weight:bold;margin-top:8px}
form{margin-top:24px}
button{width:100%;padding:12px;border:0;border-radius:8px;background:#25d366;color:#fff;font-size:1em}
.confirmed{padding:12px;border-radius:8px;background:#eef;text-align:center}
</style>
</head>
<body>
<h1>פרטי פגישה</h1>
<dl>
<dt>תאריך</dt><dd>{{.Date}}</dd>
<dt>שעה</dt><dd>{{.Time}}</dd>
{{if .Location}}<dt>כתובת</dt><dd>{{.Location}}</dd>{{end}}
</dl>
{{if .Confirmed}}
<div class="confirmed">הפגישה אושרה. נתראה!</div>
{{else}}
<form method="post" action="/confirm-appointment/{{.LeadID}}">
<button type="submit">אישור הפגישה</button>
</form>
{{end}}
</body>
</html>
`))

type appointmentPageData struct {
	LeadID    uuid.UUID
	Date      string
	Time      string
	Location  string
	Confirmed bool
}

// Show renders the lead's appointment with a confirm action.
func (h *AppointmentHandler) Show(w http.ResponseWriter, r *http.Request) {
	leadID, ok := leadIDParam(w, r)
	if !ok {
		return
	}
	appt, err := h.appointments.LookupLeadAppointment(r.Context(), leadID)
	if err != nil {
		h.renderError(w, err)
		return
	}
	h.renderPage(w, leadID, appt)
}

// Confirm marks the appointment confirmed and re-renders the page.
func (h *AppointmentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	leadID, ok := leadIDParam(w, r)
	if !ok {
		return
	}
	appt, err := h.appointments.ConfirmLeadAppointment(r.Context(), leadID)
	if err != nil {
		h.renderError(w, err)
		return
	}
	h.renderPage(w, leadID, appt)
}

// MarkSent records out-of-band delivery of the appointment details.
func (h *AppointmentHandler) MarkSent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LeadID string `json:"lead_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	leadID, err := uuid.Parse(req.LeadID)
	if err != nil {
		http.Error(w, "invalid lead_id", http.StatusBadRequest)
		return
	}
	if err := h.appointments.MarkAppointmentSent(r.Context(), leadID); err != nil {
		if errors.Is(err, engine.ErrNoAppointment) || errors.Is(err, store.ErrLeadNotFound) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("mark appointment sent failed", "lead_id", leadID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lead_id": leadID, "status": "scheduled"})
}

func (h *AppointmentHandler) renderPage(w http.ResponseWriter, leadID uuid.UUID, appt *models.Appointment) {
	data := appointmentPageData{
		LeadID:    leadID,
		Date:      appt.Date.Format("02/01/2006"),
		Time:      appt.Time,
		Location:  appt.Location,
		Confirmed: appt.Status == models.AppointmentStatusConfirmed,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := appointmentPageTmpl.Execute(w, data); err != nil {
		h.logger.Error("appointment page render failed", "lead_id", leadID, "error", err)
	}
}

func (h *AppointmentHandler) renderError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrNoAppointment) || errors.Is(err, store.ErrLeadNotFound) {
		http.Error(w, "הפגישה לא נמצאה", http.StatusNotFound)
		return
	}
	h.logger.Error("appointment page load failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func leadIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "leadID"))
	if err != nil {
		http.Error(w, "invalid lead id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}
