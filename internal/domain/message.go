package domain

import "time"

// Content kinds produced by the normalizers. Unsupported channel-native kinds
// (sticker, video, location, ...) are carried through as-is in InboundMessage.Kind.
const (
	KindText     = "text"
	KindImage    = "image"
	KindAudio    = "audio"
	KindDocument = "document"
)

// InboundMessage is the canonical, channel-agnostic form of one inbound customer message.
// It is built once by a normalizer and passed by value afterwards.
type InboundMessage struct {
	Channel      Channel           `json:"channel"`
	Sender       string            `json:"sender"`
	SenderName   string            `json:"sender_name,omitempty"`
	ExternalID   string            `json:"external_id,omitempty"`
	Kind         string            `json:"kind"`
	Content      *Content          `json:"content"` // nil when Kind is unsupported
	ReceivedAt   time.Time         `json:"received_at"`
	RawTimestamp string            `json:"raw_timestamp,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Content holds either plain text or a single attachment descriptor.
type Content struct {
	Text       string      `json:"text,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// Attachment describes non-text content (image, audio, document).
type Attachment struct {
	Kind         string `json:"kind"`
	MIMEType     string `json:"mime_type,omitempty"`
	AttachmentID string `json:"attachment_id,omitempty"`
	Caption      string `json:"caption,omitempty"`
	Filename     string `json:"filename,omitempty"`
	URL          string `json:"url,omitempty"`
}

// TextContent returns a Content carrying plain text.
func TextContent(text string) *Content {
	return &Content{Text: text}
}

// AttachmentContent returns a Content carrying an attachment.
func AttachmentContent(a Attachment) *Content {
	return &Content{Attachment: &a}
}

// ClassifiableText returns the text the classifier should see: the message text,
// else the attachment caption, else the attachment filename, else "".
func (m InboundMessage) ClassifiableText() string {
	if m.Content == nil {
		return ""
	}
	if m.Content.Attachment == nil {
		return m.Content.Text
	}
	if m.Content.Attachment.Caption != "" {
		return m.Content.Attachment.Caption
	}
	return m.Content.Attachment.Filename
}

// Supported reports whether the message carries content the system understands.
func (m InboundMessage) Supported() bool {
	return m.Content != nil
}

// CustomerKey is the lookup key the persistence layer uses to find or create a customer.
func (m InboundMessage) CustomerKey() CustomerKey {
	return CustomerKey{Channel: m.Channel, Sender: m.Sender}
}
