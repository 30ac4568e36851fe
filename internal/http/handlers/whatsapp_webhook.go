package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/whatscrm/server/internal/greenapi"
	"github.com/whatscrm/server/internal/observability/metrics"
	"github.com/whatscrm/server/pkg/logging"
)

// InboundProcessor consumes one extracted webhook event and returns the
// status string echoed to the provider.
type InboundProcessor interface {
	HandleInbound(ctx context.Context, in greenapi.Inbound) (string, error)
}

// WhatsAppWebhookHandler receives green-api webhook deliveries. The provider
// retries on non-2xx, so every handled outcome answers 200 with a short
// status string; only a panic reaches the 500 recoverer.
type WhatsAppWebhookHandler struct {
	engine  InboundProcessor
	metrics *metrics.MessagingMetrics
	logger  *logging.Logger
}

func NewWhatsAppWebhookHandler(engine InboundProcessor, m *metrics.MessagingMetrics, logger *logging.Logger) *WhatsAppWebhookHandler {
	if engine == nil {
		panic("handlers: inbound processor required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WhatsAppWebhookHandler{engine: engine, metrics: m, logger: logger}
}

func (h *WhatsAppWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var payload greenapi.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Warn("webhook payload decode failed", "error", err)
		h.observe("invalid", "OK - bad payload", start)
		writeStatus(w, "OK - bad payload")
		return
	}

	in := greenapi.Extract(payload)
	status, err := h.engine.HandleInbound(r.Context(), in)
	if err != nil {
		h.logger.Error("webhook processing failed",
			"event", in.Event,
			"message_id", in.MessageID,
			"error", err,
		)
		h.observe(in.Event, "error", start)
		writeStatus(w, "OK - error")
		return
	}

	h.observe(in.Event, status, start)
	writeStatus(w, status)
}

func (h *WhatsAppWebhookHandler) observe(eventType, status string, start time.Time) {
	if h.metrics == nil {
		return
	}
	h.metrics.ObserveInbound(eventType, status)
	h.metrics.ObserveWebhookLatency(eventType, time.Since(start).Seconds())
}

func writeStatus(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(status))
}
