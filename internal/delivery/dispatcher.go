package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"frontdesk/internal/bus"
	"frontdesk/internal/domain"
)

// OutboundRecorder counts send attempts. *metrics.Metrics implements it.
type OutboundRecorder interface {
	Outbound(ch domain.Channel, status string)
}

// Dispatcher routes outbound replies to the sender registered for a channel.
type Dispatcher struct {
	mu      sync.RWMutex
	senders map[domain.Channel]domain.Sender
	events  *bus.EventBus
	metrics OutboundRecorder
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher. events and metrics may be nil.
func NewDispatcher(events *bus.EventBus, metrics OutboundRecorder, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		senders: make(map[domain.Channel]domain.Sender),
		events:  events,
		metrics: metrics,
		logger:  logger,
	}
}

// Register installs s for its channel, replacing any previous sender.
func (d *Dispatcher) Register(s domain.Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders[s.Channel()] = s
}

// Sender returns the sender registered for ch.
func (d *Dispatcher) Sender(ch domain.Channel) (domain.Sender, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.senders[ch]
	return s, ok
}

// Send delivers through the channel's sender. A channel without a sender
// yields a failed result rather than an error.
func (d *Dispatcher) Send(ctx context.Context, ch domain.Channel, recipient, content, contentType string) domain.DeliveryResult {
	s, ok := d.Sender(ch)
	if !ok {
		d.logger.Warn("no sender registered for channel", "channel", ch)
		res := domain.DeliveryResult{
			Status:    StatusFailed,
			Recipient: recipient,
			Timestamp: time.Now().UTC(),
			Error:     fmt.Sprintf("%s: no outbound sender for %q", domain.ErrUnsupportedChannel, string(ch)),
		}
		d.Record(ch, res)
		return res
	}
	res := s.Send(ctx, recipient, content, contentType)
	d.Record(ch, res)
	return res
}

// Record counts a result and publishes it as message.sent. Send calls it; callers
// that use a sender directly call it themselves.
func (d *Dispatcher) Record(ch domain.Channel, res domain.DeliveryResult) {
	status := res.Status
	if !res.Success {
		status = StatusFailed
	}
	if d.metrics != nil {
		d.metrics.Outbound(ch, status)
	}
	if d.events != nil {
		r := res
		d.events.Emit(bus.Event{Type: bus.EventMessageSent, Channel: ch, Delivery: &r})
	}
}
