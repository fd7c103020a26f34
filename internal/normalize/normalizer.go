// Package normalize converts channel-specific webhook payloads into canonical
// domain.InboundMessage values.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"frontdesk/internal/domain"
)

// Unit is one message inside a delivery, not yet normalized.
type Unit struct {
	Channel domain.Channel
	Index   int
	Raw     json.RawMessage
	Hints   map[string]string // envelope data the unit itself lacks (e.g. contact names)
}

// Adapter understands one channel's payload shape.
type Adapter interface {
	Channel() domain.Channel
	// Units splits a delivery into message units. It fails only when the
	// delivery as a whole cannot be understood.
	Units(raw []byte) ([]Unit, error)
	// Normalize converts one unit. It fails with a *domain.MalformedPayloadError.
	Normalize(u Unit, receivedAt time.Time) (domain.InboundMessage, error)
}

// Normalizer dispatches to the adapter registered for each channel.
type Normalizer struct {
	adapters map[domain.Channel]Adapter
	now      func() time.Time
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the clock used for ReceivedAt.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithAdapter registers or replaces the adapter for its channel.
func WithAdapter(a Adapter) Option {
	return func(n *Normalizer) { n.adapters[a.Channel()] = a }
}

// New returns a Normalizer with adapters for every supported channel.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		adapters: map[domain.Channel]Adapter{
			domain.ChannelWhatsApp:  WhatsApp{},
			domain.ChannelInstagram: Instagram{},
			domain.ChannelEmail:     Email{},
			domain.ChannelReview:    Review{},
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Normalizer) adapter(ch domain.Channel) (Adapter, error) {
	a, ok := n.adapters[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedChannel, string(ch))
	}
	return a, nil
}

// Units splits raw into message units for ch.
func (n *Normalizer) Units(ch domain.Channel, raw []byte) ([]Unit, error) {
	a, err := n.adapter(ch)
	if err != nil {
		return nil, err
	}
	return a.Units(raw)
}

// Normalize converts one unit into an InboundMessage stamped with the current time.
func (n *Normalizer) Normalize(u Unit) (domain.InboundMessage, error) {
	a, err := n.adapter(u.Channel)
	if err != nil {
		return domain.InboundMessage{}, err
	}
	return a.Normalize(u, n.now().UTC())
}

// VerificationChallenge reports whether raw is a platform verification
// handshake and returns the challenge to echo back.
func VerificationChallenge(raw []byte) (string, bool) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", false
	}
	v, ok := m["hub.challenge"]
	if !ok {
		return "", false
	}
	s := scalarString(v)
	return s, s != ""
}

// --- helpers shared by adapters ---

// decodeObject unmarshals raw into v and reports a whole-payload failure on error.
func decodeObject(ch domain.Channel, raw []byte, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return domain.Malformed(ch, -1, "expected a JSON object")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return domain.Malformed(ch, -1, "decode: %v", err)
	}
	return nil
}

// decodeUnit unmarshals one unit and reports a unit-level failure on error.
func decodeUnit(u Unit, v any) error {
	if err := json.Unmarshal(u.Raw, v); err != nil {
		return domain.Malformed(u.Channel, u.Index, "decode: %v", err)
	}
	return nil
}

// splitArray turns raw JSON array elements into numbered units, continuing
// numbering from start.
func splitArray(ch domain.Channel, start int, items []json.RawMessage, hints func(json.RawMessage) map[string]string) []Unit {
	units := make([]Unit, 0, len(items))
	for i, item := range items {
		u := Unit{Channel: ch, Index: start + i, Raw: item}
		if hints != nil {
			u.Hints = hints(item)
		}
		units = append(units, u)
	}
	return units
}

// hasKey reports whether the JSON object raw has a top-level key.
func hasKey(raw []byte, keys ...string) bool {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return false
	}
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

// scalarString renders a JSON string or number as a Go string; other values yield "".
func scalarString(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	return ""
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
