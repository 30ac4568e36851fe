package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/whatscrm/server/internal/engine"
	"github.com/whatscrm/server/internal/models"
)

type stubAppointmentService struct {
	appt       *models.Appointment
	confirmed  bool
	markedSent bool
}

func (s *stubAppointmentService) LookupLeadAppointment(_ context.Context, _ uuid.UUID) (*models.Appointment, error) {
	if s.appt == nil {
		return nil, engine.ErrNoAppointment
	}
	return s.appt, nil
}

func (s *stubAppointmentService) ConfirmLeadAppointment(_ context.Context, _ uuid.UUID) (*models.Appointment, error) {
	if s.appt == nil {
		return nil, engine.ErrNoAppointment
	}
	s.confirmed = true
	s.appt.Status = models.AppointmentStatusConfirmed
	return s.appt, nil
}

func (s *stubAppointmentService) MarkAppointmentSent(_ context.Context, _ uuid.UUID) error {
	if s.appt == nil {
		return engine.ErrNoAppointment
	}
	s.markedSent = true
	return nil
}

func appointmentTestRouter(svc AppointmentService) http.Handler {
	h := NewAppointmentHandler(svc, nil)
	r := chi.NewRouter()
	r.Get("/appointment/{leadID}", h.Show)
	r.Post("/confirm-appointment/{leadID}", h.Confirm)
	r.Post("/api/mark-appointment-sent", h.MarkSent)
	return r
}

func TestAppointmentPageShowsDetails(t *testing.T) {
	leadID := uuid.New()
	svc := &stubAppointmentService{appt: &models.Appointment{
		ID:       uuid.New(),
		LeadID:   leadID,
		Date:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Time:     "10:00",
		Location: "הרצל 12 תל אביב",
		Status:   models.AppointmentStatusPending,
	}}
	r := appointmentTestRouter(svc)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/appointment/"+leadID.String(), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"01/03/2026", "10:00", "הרצל 12 תל אביב", "/confirm-appointment/" + leadID.String()} {
		if !strings.Contains(body, want) {
			t.Fatalf("page missing %q", want)
		}
	}
}

func TestAppointmentConfirm(t *testing.T) {
	leadID := uuid.New()
	svc := &stubAppointmentService{appt: &models.Appointment{
		ID:     uuid.New(),
		LeadID: leadID,
		Date:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Time:   "10:00",
		Status: models.AppointmentStatusPending,
	}}
	r := appointmentTestRouter(svc)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/confirm-appointment/"+leadID.String(), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !svc.confirmed {
		t.Fatal("confirmation was not recorded")
	}
	if !strings.Contains(rec.Body.String(), "הפגישה אושרה") {
		t.Fatal("page missing confirmation text")
	}
}

func TestAppointmentMarkSent(t *testing.T) {
	leadID := uuid.New()
	svc := &stubAppointmentService{appt: &models.Appointment{ID: uuid.New(), LeadID: leadID}}
	r := appointmentTestRouter(svc)

	body := `{"lead_id": "` + leadID.String() + `"}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/mark-appointment-sent", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !svc.markedSent {
		t.Fatal("mark-sent was not recorded")
	}
}

func TestAppointmentNotFound(t *testing.T) {
	r := appointmentTestRouter(&stubAppointmentService{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/appointment/"+uuid.NewString(), nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
