package normalize

import (
	"encoding/json"
	"net/mail"
	"strings"
	"time"

	"frontdesk/internal/domain"
)

// Email normalizes inbound-parse JSON: {"emails":[...]} or a single email object.
type Email struct{}

func (Email) Channel() domain.Channel { return domain.ChannelEmail }

func (Email) Units(raw []byte) ([]Unit, error) {
	var p struct {
		Emails []json.RawMessage `json:"emails"`
	}
	if err := decodeObject(domain.ChannelEmail, raw, &p); err != nil {
		return nil, err
	}
	if p.Emails != nil {
		return splitArray(domain.ChannelEmail, 0, p.Emails, nil), nil
	}
	if hasKey(raw, "from", "message_id") {
		return []Unit{{Channel: domain.ChannelEmail, Index: 0, Raw: raw}}, nil
	}
	return nil, domain.Malformed(domain.ChannelEmail, -1, "neither an emails list nor an email object")
}

func (Email) Normalize(u Unit, receivedAt time.Time) (domain.InboundMessage, error) {
	var m emailMessage
	if err := decodeUnit(u, &m); err != nil {
		return domain.InboundMessage{}, err
	}
	sender, name := parseAddress(m.From)
	if sender == "" {
		return domain.InboundMessage{}, domain.Malformed(u.Channel, u.Index, "missing or invalid from address %q", m.From)
	}

	msg := domain.InboundMessage{
		Channel:      domain.ChannelEmail,
		Sender:       sender,
		SenderName:   name,
		ExternalID:   strings.Trim(m.MessageID, "<> "),
		ReceivedAt:   receivedAt,
		RawTimestamp: m.Date,
	}
	if m.Subject != "" {
		msg.Metadata = map[string]string{"subject": m.Subject}
	}

	if text := joinNonEmpty("\n\n", m.Subject, m.Text); text != "" {
		msg.Kind = domain.KindText
		msg.Content = domain.TextContent(text)
		return msg, nil
	}
	if len(m.Attachments) == 0 {
		return domain.InboundMessage{}, domain.Malformed(u.Channel, u.Index, "email has no subject, body or attachments")
	}
	att := m.Attachments[0]
	msg.Kind = mimeKind(att.ContentType)
	msg.Content = domain.AttachmentContent(domain.Attachment{
		Kind:         msg.Kind,
		MIMEType:     att.ContentType,
		AttachmentID: att.ID,
		Filename:     att.Filename,
	})
	return msg, nil
}

// parseAddress returns the lower-cased address and display name of an RFC 5322 address.
func parseAddress(from string) (addr, name string) {
	from = strings.TrimSpace(from)
	if from == "" {
		return "", ""
	}
	a, err := mail.ParseAddress(from)
	if err != nil {
		return "", ""
	}
	return strings.ToLower(a.Address), a.Name
}

func mimeKind(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return domain.KindImage
	case strings.HasPrefix(contentType, "audio/"):
		return domain.KindAudio
	}
	return domain.KindDocument
}

type emailMessage struct {
	MessageID   string `json:"message_id"`
	From        string `json:"from"`
	To          string `json:"to"`
	Subject     string `json:"subject"`
	Text        string `json:"text"`
	Date        string `json:"date"`
	Attachments []struct {
		ID          string `json:"id"`
		Filename    string `json:"filename"`
		ContentType string `json:"content_type"`
	} `json:"attachments"`
}
