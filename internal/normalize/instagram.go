package normalize

import (
	"encoding/json"
	"time"

	"frontdesk/internal/domain"
)

// Instagram normalizes Instagram messaging webhooks (Messenger platform shape).
type Instagram struct{}

func (Instagram) Channel() domain.Channel { return domain.ChannelInstagram }

func (Instagram) Units(raw []byte) ([]Unit, error) {
	var p struct {
		Object string `json:"object"`
		Entry  []struct {
			ID        string            `json:"id"`
			Messaging []json.RawMessage `json:"messaging"`
		} `json:"entry"`
	}
	if err := decodeObject(domain.ChannelInstagram, raw, &p); err != nil {
		return nil, err
	}
	if p.Entry == nil {
		return nil, domain.Malformed(domain.ChannelInstagram, -1, "missing entry")
	}
	var units []Unit
	for _, e := range p.Entry {
		units = append(units, splitArray(domain.ChannelInstagram, len(units), e.Messaging, nil)...)
	}
	return units, nil
}

func (Instagram) Normalize(u Unit, receivedAt time.Time) (domain.InboundMessage, error) {
	var m igMessaging
	if err := decodeUnit(u, &m); err != nil {
		return domain.InboundMessage{}, err
	}
	if m.Sender.ID == "" {
		return domain.InboundMessage{}, domain.Malformed(u.Channel, u.Index, "missing sender")
	}
	if m.Message == nil {
		return domain.InboundMessage{}, domain.Malformed(u.Channel, u.Index, "event carries no message")
	}
	if m.Message.IsEcho {
		return domain.InboundMessage{}, domain.Malformed(u.Channel, u.Index, "echo of an outbound message")
	}

	msg := domain.InboundMessage{
		Channel:      domain.ChannelInstagram,
		Sender:       m.Sender.ID,
		ExternalID:   m.Message.Mid,
		ReceivedAt:   receivedAt,
		RawTimestamp: scalarString(m.Timestamp),
	}

	switch {
	case m.Message.Text != "":
		msg.Kind = domain.KindText
		msg.Content = domain.TextContent(m.Message.Text)
	case len(m.Message.Attachments) > 0:
		att := m.Message.Attachments[0]
		msg.Kind = igKind(att.Type)
		switch msg.Kind {
		case domain.KindImage, domain.KindAudio, domain.KindDocument:
			msg.Content = domain.AttachmentContent(domain.Attachment{
				Kind: msg.Kind,
				URL:  att.Payload.URL,
			})
		}
	default:
		return domain.InboundMessage{}, domain.Malformed(u.Channel, u.Index, "message has neither text nor attachments")
	}
	return msg, nil
}

// igKind maps Instagram attachment types onto canonical kinds.
func igKind(t string) string {
	if t == "file" {
		return domain.KindDocument
	}
	return t
}

type igMessaging struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Timestamp json.RawMessage `json:"timestamp"`
	Message   *struct {
		Mid         string `json:"mid"`
		Text        string `json:"text"`
		IsEcho      bool   `json:"is_echo"`
		Attachments []struct {
			Type    string `json:"type"`
			Payload struct {
				URL string `json:"url"`
			} `json:"payload"`
		} `json:"attachments"`
	} `json:"message"`
}
