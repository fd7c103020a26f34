package publish

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/apache/rocketmq-client-go/v2/primitive"

	"frontdesk/internal/bus"
	"frontdesk/internal/domain"
)

type stubProducer struct {
	sent   []*primitive.Message
	err    error
	status primitive.SendStatus
	closed bool
}

func (s *stubProducer) SendSync(_ context.Context, msgs ...*primitive.Message) (*primitive.SendResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.sent = append(s.sent, msgs...)
	return &primitive.SendResult{Status: s.status}, nil
}

func (s *stubProducer) Shutdown() error {
	s.closed = true
	return nil
}

func testConfig() RocketMQConfig {
	return RocketMQConfig{
		NameServers: []string{"127.0.0.1:9876"},
		Group:       "frontdesk",
		Topic:       "frontdesk-routed",
		Logger:      slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	}
}

func routed() domain.RoutedMessage {
	return domain.RoutedMessage{
		Message: domain.InboundMessage{
			Channel:    domain.ChannelInstagram,
			Sender:     "1789",
			ExternalID: "mid.1",
			Content:    domain.TextContent("what time do you open"),
		},
		Classification: domain.ClassificationResult{Intent: domain.IntentBusinessHours, Confidence: 0.5, Language: domain.LanguageEnglish},
		Priority:       domain.PriorityNormal,
		BatchID:        "b-1",
	}
}

func TestValidate(t *testing.T) {
	cfg := testConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	for name, mutate := range map[string]func(*RocketMQConfig){
		"name server": func(c *RocketMQConfig) { c.NameServers = nil },
		"group":       func(c *RocketMQConfig) { c.Group = "" },
		"topic":       func(c *RocketMQConfig) { c.Topic = "" },
	} {
		c := testConfig()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("missing %s: expected error", name)
		}
	}
}

func TestBuild(t *testing.T) {
	r := newRocketMQ(testConfig(), &stubProducer{})
	now := time.Unix(1700000000, 0)

	msg, err := r.build("", routed(), now)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Topic != "frontdesk-routed" {
		t.Errorf("topic = %q", msg.Topic)
	}
	if msg.GetTags() != "instagram" {
		t.Errorf("tag = %q", msg.GetTags())
	}
	if msg.GetKeys() != "mid.1" {
		t.Errorf("keys = %q", msg.GetKeys())
	}
	if msg.GetProperty("priority") != "normal" || msg.GetProperty("intent") != "business_hours" {
		t.Errorf("unexpected properties: priority=%q intent=%q", msg.GetProperty("priority"), msg.GetProperty("intent"))
	}

	var env Envelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		t.Fatal(err)
	}
	if env.BatchID != "b-1" {
		t.Errorf("batch id should fall back to the routed message, got %q", env.BatchID)
	}
	if env.Type != bus.EventMessageRouted || env.Timestamp != now.Unix() {
		t.Errorf("unexpected envelope: %+v", env)
	}
}

func TestHandle_PublishesRoutedOnly(t *testing.T) {
	p := &stubProducer{status: primitive.SendOK}
	r := newRocketMQ(testConfig(), p)

	m := routed()
	r.Handle(bus.Event{Type: bus.EventMessageMalformed})
	r.Handle(bus.Event{Type: bus.EventMessageRouted, BatchID: "b-2", Routed: &m})

	if len(p.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(p.sent))
	}
}

func TestPublish_Errors(t *testing.T) {
	p := &stubProducer{err: errors.New("broker down")}
	r := newRocketMQ(testConfig(), p)
	if err := r.Publish(context.Background(), "b", routed()); err == nil {
		t.Error("expected send error")
	}

	p = &stubProducer{status: primitive.SendFlushDiskTimeout}
	r = newRocketMQ(testConfig(), p)
	if err := r.Publish(context.Background(), "b", routed()); err == nil {
		t.Error("expected non-OK status error")
	}

	if err := r.Close(); err != nil || !p.closed {
		t.Errorf("close: err=%v closed=%v", err, p.closed)
	}
}
