// Package publish forwards routed messages to RocketMQ for downstream consumers.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	rmq "github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"

	"frontdesk/internal/bus"
	"frontdesk/internal/domain"
)

// RocketMQConfig configures the producer.
type RocketMQConfig struct {
	NameServers []string
	Group       string
	Topic       string
	AccessKey   string
	SecretKey   string
	Retry       int           // default 2
	Timeout     time.Duration // per publish, default 3s
	Logger      *slog.Logger
}

// Validate reports the first missing setting.
func (c RocketMQConfig) Validate() error {
	switch {
	case len(c.NameServers) == 0:
		return errors.New("rocketmq: missing name server")
	case c.Group == "":
		return errors.New("rocketmq: missing producer group")
	case c.Topic == "":
		return errors.New("rocketmq: missing topic")
	}
	return nil
}

type syncProducer interface {
	SendSync(ctx context.Context, msgs ...*primitive.Message) (*primitive.SendResult, error)
	Shutdown() error
}

// RocketMQ publishes every routed message as a JSON envelope, tagged with its channel.
type RocketMQ struct {
	cfg    RocketMQConfig
	p      syncProducer
	logger *slog.Logger
}

// Envelope is the message body consumers receive.
type Envelope struct {
	Type      string               `json:"type"`
	BatchID   string               `json:"batch_id,omitempty"`
	Routed    domain.RoutedMessage `json:"routed"`
	Timestamp int64                `json:"ts"`
}

// NewRocketMQ starts a producer against the configured name servers.
func NewRocketMQ(cfg RocketMQConfig) (*RocketMQ, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Retry <= 0 {
		cfg.Retry = 2
	}
	opts := []producer.Option{
		producer.WithNameServer(cfg.NameServers),
		producer.WithGroupName(cfg.Group),
		producer.WithRetry(cfg.Retry),
	}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		opts = append(opts, producer.WithCredentials(primitive.Credentials{
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		}))
	}
	prd, err := rmq.NewProducer(opts...)
	if err != nil {
		return nil, fmt.Errorf("rocketmq producer: %w", err)
	}
	if err := prd.Start(); err != nil {
		return nil, fmt.Errorf("rocketmq start: %w", err)
	}
	return newRocketMQ(cfg, prd), nil
}

func newRocketMQ(cfg RocketMQConfig, p syncProducer) *RocketMQ {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &RocketMQ{cfg: cfg, p: p, logger: cfg.Logger}
}

// Publish sends one routed message synchronously.
func (r *RocketMQ) Publish(ctx context.Context, batchID string, m domain.RoutedMessage) error {
	msg, err := r.build(batchID, m, time.Now())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	res, err := r.p.SendSync(ctx, msg)
	if err != nil {
		return fmt.Errorf("rocketmq send: %w", err)
	}
	if res != nil && res.Status != primitive.SendOK {
		return fmt.Errorf("rocketmq send: status %d", res.Status)
	}
	return nil
}

// Handle is a bus.EventHandler; run it behind a bus.Queue.
func (r *RocketMQ) Handle(e bus.Event) {
	if e.Type != bus.EventMessageRouted || e.Routed == nil {
		return
	}
	if err := r.Publish(context.Background(), e.BatchID, *e.Routed); err != nil {
		r.logger.Error("publish routed message", "channel", e.Channel, "err", err)
	}
}

func (r *RocketMQ) build(batchID string, m domain.RoutedMessage, now time.Time) (*primitive.Message, error) {
	if batchID == "" {
		batchID = m.BatchID
	}
	body, err := json.Marshal(Envelope{
		Type:      bus.EventMessageRouted,
		BatchID:   batchID,
		Routed:    m,
		Timestamp: now.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	msg := primitive.NewMessage(r.cfg.Topic, body)
	msg.WithTag(string(m.Message.Channel))
	if m.Message.ExternalID != "" {
		msg.WithKeys([]string{m.Message.ExternalID})
	}
	msg.WithProperty("priority", string(m.Priority))
	msg.WithProperty("intent", string(m.Classification.Intent))
	return msg, nil
}

// Close shuts the producer down.
func (r *RocketMQ) Close() error {
	if r.p != nil {
		return r.p.Shutdown()
	}
	return nil
}
