package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/whatscrm/server/internal/engine"
	"github.com/whatscrm/server/internal/store"
	"github.com/whatscrm/server/pkg/logging"
)

// DirectSender pushes an arbitrary message through a business instance.
type DirectSender interface {
	SendDirect(ctx context.Context, businessID uuid.UUID, rawPhone, text string) error
	ResendQuote(ctx context.Context, quoteID uuid.UUID) error
}

// MediaSweeper deletes expired media; *media.Archiver implements it.
type MediaSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// OpsHandler bundles the operator endpoints: health, manual sends and the
// manual media sweep.
type OpsHandler struct {
	sender  DirectSender
	sweeper MediaSweeper
	env     string
	started time.Time
	logger  *logging.Logger
}

func NewOpsHandler(sender DirectSender, sweeper MediaSweeper, env string, logger *logging.Logger) *OpsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &OpsHandler{sender: sender, sweeper: sweeper, env: env, started: time.Now(), logger: logger}
}

// Root answers uptime checks hitting the bare domain.
func (h *OpsHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, "WhatsApp CRM relay is running")
}

// Health reports liveness.
func (h *OpsHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"env":            h.env,
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	})
}

// SendMessage delivers a one-off message through a business instance.
func (h *OpsHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	if h.sender == nil {
		http.Error(w, "sending disabled", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		BusinessID string `json:"business_id"`
		Phone      string `json:"phone"`
		Message    string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	businessID, err := uuid.Parse(req.BusinessID)
	if err != nil {
		http.Error(w, "invalid business_id", http.StatusBadRequest)
		return
	}
	if req.Phone == "" || req.Message == "" {
		http.Error(w, "phone and message are required", http.StatusBadRequest)
		return
	}
	if err := h.sender.SendDirect(r.Context(), businessID, req.Phone, req.Message); err != nil {
		if errors.Is(err, store.ErrBusinessNotFound) {
			http.Error(w, "business not found", http.StatusNotFound)
			return
		}
		h.logger.Error("direct send failed", "business_id", businessID, "error", err)
		http.Error(w, "send failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "sent"})
}

// SendQuote re-delivers a quote and its approval link to the customer.
func (h *OpsHandler) SendQuote(w http.ResponseWriter, r *http.Request) {
	if h.sender == nil {
		http.Error(w, "sending disabled", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		QuoteID string `json:"quote_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	quoteID, err := uuid.Parse(req.QuoteID)
	if err != nil {
		http.Error(w, "invalid quote_id", http.StatusBadRequest)
		return
	}
	if err := h.sender.ResendQuote(r.Context(), quoteID); err != nil {
		switch {
		case errors.Is(err, store.ErrQuoteNotFound):
			http.Error(w, "quote not found", http.StatusNotFound)
		case errors.Is(err, engine.ErrQuoteNotSendable):
			http.Error(w, "quote was rejected", http.StatusConflict)
		default:
			h.logger.Error("quote resend failed", "quote_id", quoteID, "error", err)
			http.Error(w, "send failed", http.StatusBadGateway)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "sent"})
}

// CleanupMedia triggers the retention sweep outside its timer.
func (h *OpsHandler) CleanupMedia(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		http.Error(w, "media archiving disabled", http.StatusServiceUnavailable)
		return
	}
	deleted, err := h.sweeper.SweepExpired(r.Context())
	if err != nil {
		h.logger.Error("manual media sweep failed", "deleted", deleted, "error", err)
		http.Error(w, "sweep failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
