package normalize

import (
	"errors"
	"testing"
	"time"

	"frontdesk/internal/domain"
)

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestNormalizer() *Normalizer {
	return New(WithClock(func() time.Time { return fixedNow }))
}

func normalizeAll(t *testing.T, n *Normalizer, ch domain.Channel, raw string) ([]domain.InboundMessage, []error) {
	t.Helper()
	units, err := n.Units(ch, []byte(raw))
	if err != nil {
		t.Fatalf("Units: %v", err)
	}
	var msgs []domain.InboundMessage
	var errs []error
	for _, u := range units {
		m, err := n.Normalize(u)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, errs
}

func TestUnits_UnsupportedChannel(t *testing.T) {
	_, err := newTestNormalizer().Units(domain.Channel("fax"), []byte(`{}`))
	if !errors.Is(err, domain.ErrUnsupportedChannel) {
		t.Fatalf("expected ErrUnsupportedChannel, got %v", err)
	}
}

func TestUnits_NotJSON(t *testing.T) {
	for _, ch := range domain.Channels() {
		_, err := newTestNormalizer().Units(ch, []byte("not json"))
		if !errors.Is(err, domain.ErrMalformedPayload) {
			t.Errorf("%s: expected ErrMalformedPayload, got %v", ch, err)
		}
		var mpe *domain.MalformedPayloadError
		if !errors.As(err, &mpe) || mpe.Index != -1 {
			t.Errorf("%s: expected whole-payload error, got %v", ch, err)
		}
	}
}

func TestUnits_MissingContainer(t *testing.T) {
	for _, ch := range domain.Channels() {
		_, err := newTestNormalizer().Units(ch, []byte(`{"foo":"bar"}`))
		if !errors.Is(err, domain.ErrMalformedPayload) {
			t.Errorf("%s: expected ErrMalformedPayload, got %v", ch, err)
		}
	}
}

func TestVerificationChallenge(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{`{"hub.challenge":"abc123"}`, "abc123", true},
		{`{"hub.challenge":1158201444,"hub.mode":"subscribe"}`, "1158201444", true},
		{`{"hub.challenge":""}`, "", false},
		{`{"entry":[]}`, "", false},
		{`not json`, "", false},
		{`["hub.challenge"]`, "", false},
	}
	for _, tt := range tests {
		got, ok := VerificationChallenge([]byte(tt.raw))
		if got != tt.want || ok != tt.ok {
			t.Errorf("VerificationChallenge(%s) = %q, %v; want %q, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNormalize_ReceivedAtUsesClock(t *testing.T) {
	msgs, _ := normalizeAll(t, newTestNormalizer(), domain.ChannelReview,
		`{"review_id":"r1","reviewer":{"profile_id":"p1"},"comment":"ok"}`)
	if len(msgs) != 1 || !msgs[0].ReceivedAt.Equal(fixedNow) {
		t.Fatalf("expected ReceivedAt %v, got %+v", fixedNow, msgs)
	}
}
