package domain

import (
	"context"
	"time"
)

// Outbound content types accepted by senders.
const (
	ContentTypeText     = "text"
	ContentTypeTemplate = "template"
)

// DeliveryResult is what an outbound sender reports for one send attempt.
type DeliveryResult struct {
	Success   bool      `json:"success"`
	MessageID string    `json:"message_id,omitempty"`
	Status    string    `json:"status,omitempty"` // sent | simulated | delivered
	Recipient string    `json:"recipient"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Sender delivers outbound replies over one channel's transport.
type Sender interface {
	Channel() Channel
	Send(ctx context.Context, recipient, content, contentType string) DeliveryResult
}
