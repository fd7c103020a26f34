package normalize

import (
	"encoding/json"
	"time"

	"frontdesk/internal/domain"
)

// WhatsApp normalizes Meta WhatsApp Business Cloud API webhooks.
type WhatsApp struct{}

func (WhatsApp) Channel() domain.Channel { return domain.ChannelWhatsApp }

// Units walks entry[].changes[].value.messages[]. Status-only deliveries yield no units.
func (WhatsApp) Units(raw []byte) ([]Unit, error) {
	var p waPayload
	if err := decodeObject(domain.ChannelWhatsApp, raw, &p); err != nil {
		return nil, err
	}
	if p.Entry == nil {
		return nil, domain.Malformed(domain.ChannelWhatsApp, -1, "missing entry")
	}

	var units []Unit
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			hint := func(item json.RawMessage) map[string]string {
				var peek struct {
					From string `json:"from"`
				}
				_ = json.Unmarshal(item, &peek)
				if name := names[peek.From]; name != "" {
					return map[string]string{"sender_name": name}
				}
				return nil
			}
			units = append(units, splitArray(domain.ChannelWhatsApp, len(units), change.Value.Messages, hint)...)
		}
	}
	return units, nil
}

func (WhatsApp) Normalize(u Unit, receivedAt time.Time) (domain.InboundMessage, error) {
	var m waMessage
	if err := decodeUnit(u, &m); err != nil {
		return domain.InboundMessage{}, err
	}
	if m.From == "" {
		return domain.InboundMessage{}, domain.Malformed(u.Channel, u.Index, "missing sender")
	}
	if m.Type == "" {
		return domain.InboundMessage{}, domain.Malformed(u.Channel, u.Index, "missing message type")
	}

	msg := domain.InboundMessage{
		Channel:      domain.ChannelWhatsApp,
		Sender:       m.From,
		SenderName:   u.Hints["sender_name"],
		ExternalID:   m.ID,
		Kind:         m.Type,
		ReceivedAt:   receivedAt,
		RawTimestamp: m.Timestamp,
	}

	switch m.Type {
	case domain.KindText:
		if m.Text == nil {
			return domain.InboundMessage{}, domain.Malformed(u.Channel, u.Index, "text message without body")
		}
		msg.Content = domain.TextContent(m.Text.Body)
	case domain.KindImage, domain.KindAudio, domain.KindDocument:
		media := m.media()
		if media == nil {
			return domain.InboundMessage{}, domain.Malformed(u.Channel, u.Index, "%s message without %s object", m.Type, m.Type)
		}
		msg.Content = domain.AttachmentContent(domain.Attachment{
			Kind:         m.Type,
			MIMEType:     media.MimeType,
			AttachmentID: media.ID,
			Caption:      media.Caption,
			Filename:     media.Filename,
		})
	}
	// Any other type (sticker, video, location, contacts, ...) keeps Kind with nil Content.
	return msg, nil
}

// StatusUpdate is a delivery receipt for an outbound message.
type StatusUpdate struct {
	MessageID string `json:"id"`
	Status    string `json:"status"` // sent | delivered | read | failed
	Recipient string `json:"recipient_id"`
}

// WhatsAppStatuses extracts entry[].changes[].value.statuses[] from a
// WhatsApp delivery. Unparseable payloads yield nil; an unparseable status
// entry is skipped on its own.
func WhatsAppStatuses(raw []byte) []StatusUpdate {
	var p waPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil
	}
	var out []StatusUpdate
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			for _, item := range change.Value.Statuses {
				var st StatusUpdate
				if err := json.Unmarshal(item, &st); err != nil {
					continue
				}
				if st.MessageID != "" && st.Status != "" {
					out = append(out, st)
				}
			}
		}
	}
	return out
}

func (m waMessage) media() *waMedia {
	switch m.Type {
	case domain.KindImage:
		return m.Image
	case domain.KindAudio:
		return m.Audio
	case domain.KindDocument:
		return m.Document
	}
	return nil
}

// --- WhatsApp webhook payload types ---

type waPayload struct {
	Object string    `json:"object"`
	Entry  []waEntry `json:"entry"`
}

type waEntry struct {
	ID      string     `json:"id"`
	Changes []waChange `json:"changes"`
}

type waChange struct {
	Value waValue `json:"value"`
	Field string  `json:"field"`
}

type waValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Contacts         []waContact       `json:"contacts"`
	Messages         []json.RawMessage `json:"messages"`
	Statuses         []json.RawMessage `json:"statuses"`
}

type waContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type waMessage struct {
	From      string   `json:"from"`
	ID        string   `json:"id"`
	Timestamp string   `json:"timestamp"`
	Type      string   `json:"type"`
	Text      *waText  `json:"text,omitempty"`
	Image     *waMedia `json:"image,omitempty"`
	Audio     *waMedia `json:"audio,omitempty"`
	Document  *waMedia `json:"document,omitempty"`
}

type waText struct {
	Body string `json:"body"`
}

type waMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}
