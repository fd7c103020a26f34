// Package delivery sends outbound replies over channel transports.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"frontdesk/internal/domain"
)

// DefaultWhatsAppBaseURL is the Graph API root used when none is configured.
const DefaultWhatsAppBaseURL = "https://graph.facebook.com/v21.0"

// Delivery statuses.
const (
	StatusSent      = "sent"
	StatusSimulated = "simulated"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

const (
	defaultTemplateLanguage = "zh_CN"
	maxTrackedMessages      = 10000
)

// WhatsAppConfig holds the Cloud API credentials. Missing credentials select simulation mode.
type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	BaseURL       string
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// WhatsApp sends messages through the WhatsApp Business Cloud API.
type WhatsApp struct {
	token         string
	phoneNumberID string
	baseURL       string
	simulated     bool
	client        *http.Client
	logger        *slog.Logger
	now           func() time.Time

	mu      sync.Mutex
	tracked map[string]string // message id -> last known status
	order   []string
}

// NewWhatsApp creates a sender. It never fails: without a token and phone
// number id it runs in simulation mode and reports status "simulated".
func NewWhatsApp(cfg WhatsAppConfig) *WhatsApp {
	w := &WhatsApp{
		token:         cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
		baseURL:       cfg.BaseURL,
		simulated:     cfg.AccessToken == "" || cfg.PhoneNumberID == "",
		client:        cfg.HTTPClient,
		logger:        cfg.Logger,
		now:           time.Now,
		tracked:       make(map[string]string),
	}
	if w.baseURL == "" {
		w.baseURL = DefaultWhatsAppBaseURL
	}
	if w.client == nil {
		w.client = &http.Client{Timeout: 30 * time.Second}
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.simulated {
		w.logger.Warn("whatsapp sender running in simulation mode (missing api credentials)")
	}
	return w
}

func (w *WhatsApp) Channel() domain.Channel { return domain.ChannelWhatsApp }

// Simulated reports whether the sender fakes deliveries.
func (w *WhatsApp) Simulated() bool { return w.simulated }

// Send delivers content to recipient. contentType is "text" (default) or
// "template", in which case content is the template name.
func (w *WhatsApp) Send(ctx context.Context, recipient, content, contentType string) domain.DeliveryResult {
	switch contentType {
	case "", domain.ContentTypeText:
		return w.send(ctx, recipient, waOutbound{
			Type: domain.ContentTypeText,
			Text: &waOutText{Body: content},
		})
	case domain.ContentTypeTemplate:
		return w.SendTemplate(ctx, recipient, content, defaultTemplateLanguage)
	}
	return w.failure(recipient, fmt.Errorf("unsupported content type %q", contentType))
}

// SendTemplate delivers a pre-approved template message.
func (w *WhatsApp) SendTemplate(ctx context.Context, recipient, template, languageCode string) domain.DeliveryResult {
	if template == "" {
		return w.failure(recipient, fmt.Errorf("template name is required"))
	}
	if languageCode == "" {
		languageCode = defaultTemplateLanguage
	}
	return w.send(ctx, recipient, waOutbound{
		Type: domain.ContentTypeTemplate,
		Template: &waOutTemplate{
			Name:     template,
			Language: waOutLanguage{Code: languageCode},
		},
	})
}

func (w *WhatsApp) send(ctx context.Context, recipient string, msg waOutbound) domain.DeliveryResult {
	if recipient == "" {
		return w.failure(recipient, fmt.Errorf("recipient is required"))
	}

	if w.simulated {
		id := "simulated_" + uuid.NewString()
		w.track(id, StatusDelivered)
		w.logger.Info("whatsapp send simulated", "to", recipient, "type", msg.Type, "message_id", id)
		return domain.DeliveryResult{
			Success:   true,
			MessageID: id,
			Status:    StatusSimulated,
			Recipient: recipient,
			Timestamp: w.now().UTC(),
		}
	}

	msg.MessagingProduct = "whatsapp"
	msg.RecipientType = "individual"
	msg.To = recipient
	id, err := w.post(ctx, msg)
	if err != nil {
		w.logger.Error("whatsapp send failed", "to", recipient, "err", err)
		return w.failure(recipient, err)
	}
	w.track(id, StatusSent)
	w.logger.Info("whatsapp message sent", "to", recipient, "message_id", id)
	return domain.DeliveryResult{
		Success:   true,
		MessageID: id,
		Status:    StatusSent,
		Recipient: recipient,
		Timestamp: w.now().UTC(),
	}
}

func (w *WhatsApp) post(ctx context.Context, msg waOutbound) (string, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", w.baseURL, w.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.token)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("whatsapp API %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(result.Messages) == 0 || result.Messages[0].ID == "" {
		return "", fmt.Errorf("whatsapp API returned no message id")
	}
	return result.Messages[0].ID, nil
}

func (w *WhatsApp) failure(recipient string, err error) domain.DeliveryResult {
	return domain.DeliveryResult{
		Success:   false,
		Status:    StatusFailed,
		Recipient: recipient,
		Timestamp: w.now().UTC(),
		Error:     err.Error(),
	}
}

func (w *WhatsApp) track(id, status string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.tracked[id]; !ok {
		if len(w.order) >= maxTrackedMessages {
			delete(w.tracked, w.order[0])
			w.order = w.order[1:]
		}
		w.order = append(w.order, id)
	}
	w.tracked[id] = status
}

// Status returns the last known status of a message this sender delivered,
// or domain.ErrNotFound.
func (w *WhatsApp) Status(_ context.Context, messageID string) (domain.DeliveryResult, error) {
	w.mu.Lock()
	status, ok := w.tracked[messageID]
	w.mu.Unlock()
	if !ok {
		return domain.DeliveryResult{}, fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
	}
	return domain.DeliveryResult{
		Success:   true,
		MessageID: messageID,
		Status:    status,
		Timestamp: w.now().UTC(),
	}, nil
}

// UpdateStatus records a status reported by a webhook status callback.
// Unknown ids are ignored.
func (w *WhatsApp) UpdateStatus(messageID, status string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.tracked[messageID]; !ok {
		return false
	}
	w.tracked[messageID] = status
	return true
}

// Health describes the sender for health endpoints.
type Health struct {
	Service        string    `json:"service"`
	Status         string    `json:"status"`
	SimulationMode bool      `json:"simulation_mode"`
	Configured     bool      `json:"configured"`
	Timestamp      time.Time `json:"timestamp"`
}

func (w *WhatsApp) Health() Health {
	status := "healthy"
	if w.simulated {
		status = "simulation"
	}
	return Health{
		Service:        "whatsapp",
		Status:         status,
		SimulationMode: w.simulated,
		Configured:     !w.simulated,
		Timestamp:      w.now().UTC(),
	}
}

// Info is the non-secret configuration summary.
type Info struct {
	SimulationMode bool   `json:"simulation_mode"`
	BaseURL        string `json:"base_url,omitempty"`
	HasToken       bool   `json:"has_token"`
	HasPhoneNumber bool   `json:"has_phone_number"`
}

func (w *WhatsApp) Info() Info {
	info := Info{
		SimulationMode: w.simulated,
		HasToken:       w.token != "",
		HasPhoneNumber: w.phoneNumberID != "",
	}
	if !w.simulated {
		info.BaseURL = w.baseURL
	}
	return info
}

// --- Cloud API request types ---

type waOutbound struct {
	MessagingProduct string         `json:"messaging_product"`
	RecipientType    string         `json:"recipient_type"`
	To               string         `json:"to"`
	Type             string         `json:"type"`
	Text             *waOutText     `json:"text,omitempty"`
	Template         *waOutTemplate `json:"template,omitempty"`
}

type waOutText struct {
	Body string `json:"body"`
}

type waOutTemplate struct {
	Name     string        `json:"name"`
	Language waOutLanguage `json:"language"`
}

type waOutLanguage struct {
	Code string `json:"code"`
}
