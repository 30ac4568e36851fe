package greenapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/whatscrm/server/internal/models"
	"github.com/whatscrm/server/internal/phone"
	"github.com/whatscrm/server/pkg/logging"
)

var sendTracer = otel.Tracer("whatscrm.internal.greenapi")

// DefaultBaseURL is the production Green API endpoint.
const DefaultBaseURL = "https://api.green-api.com"

// Sender dispatches one outbound WhatsApp message on behalf of a business.
type Sender interface {
	SendMessage(ctx context.Context, business *models.Business, toPhone, text string) error
}

// Client posts messages through the Green API HTTP gateway and downloads
// inbound media. Credentials are per-business (instance id + token).
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient builds a client with sane defaults.
func NewClient(baseURL string, logger *logging.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

type sendMessageRequest struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
}

// SendMessage posts one text message. Failures are returned for logging but
// the webhook flow treats them as fire-and-forget.
func (c *Client) SendMessage(ctx context.Context, business *models.Business, toPhone, text string) error {
	if business.GreenAPIInstance == "" || business.GreenAPIToken == "" {
		return errors.New("greenapi: business messaging credentials missing")
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("greenapi: message body required")
	}

	ctx, span := sendTracer.Start(ctx, "greenapi.send_message")
	defer span.End()
	span.SetAttributes(
		attribute.String("whatscrm.business_id", business.ID.String()),
		attribute.String("whatscrm.to", phone.Normalize(toPhone)),
	)

	endpoint := fmt.Sprintf("%s/waInstance%s/sendMessage/%s",
		c.baseURL, business.GreenAPIInstance, business.GreenAPIToken)

	payload, err := json.Marshal(sendMessageRequest{
		ChatID:  phone.ChatID(toPhone),
		Message: text,
	})
	if err != nil {
		return fmt.Errorf("greenapi: marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("greenapi: build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("greenapi: send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("greenapi: send failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		span.RecordError(err)
		return err
	}

	c.logger.Info("whatsapp message sent",
		"business_id", business.ID,
		"to", phone.Normalize(toPhone),
	)
	return nil
}

// Download fetches an inbound media attachment from the provider's CDN.
func (c *Client) Download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("greenapi: build download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("greenapi: download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("greenapi: download failed: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, "", fmt.Errorf("greenapi: read media body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
