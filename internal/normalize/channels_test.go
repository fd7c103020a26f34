package normalize

import (
	"testing"

	"frontdesk/internal/domain"
)

func TestInstagram_Messaging(t *testing.T) {
	raw := `{"object":"instagram","entry":[{"id":"ig1","messaging":[
	  {"sender":{"id":"1789"},"recipient":{"id":"page"},"timestamp":1700000000123,"message":{"mid":"m1","text":"Do you deliver?"}},
	  {"sender":{"id":"1789"},"timestamp":1700000000200,"message":{"mid":"m2","attachments":[{"type":"file","payload":{"url":"https://cdn.example/f.pdf"}}]}},
	  {"sender":{"id":"1789"},"timestamp":1700000000300,"message":{"mid":"m3","attachments":[{"type":"video","payload":{"url":"https://cdn.example/v.mp4"}}]}},
	  {"sender":{"id":"page"},"timestamp":1700000000400,"message":{"mid":"m4","text":"echo","is_echo":true}},
	  {"sender":{"id":"1789"},"timestamp":1700000000500,"read":{"mid":"m1"}}
	]}]}`
	msgs, errs := normalizeAll(t, newTestNormalizer(), domain.ChannelInstagram, raw)
	if len(msgs) != 3 || len(errs) != 2 {
		t.Fatalf("expected 3 messages and 2 failures, got %d and %d", len(msgs), len(errs))
	}
	if msgs[0].Sender != "1789" || msgs[0].ExternalID != "m1" || msgs[0].RawTimestamp != "1700000000123" {
		t.Errorf("unexpected text message: %+v", msgs[0])
	}
	if msgs[1].Kind != domain.KindDocument || msgs[1].Content.Attachment.URL != "https://cdn.example/f.pdf" {
		t.Errorf("unexpected file message: %+v", msgs[1])
	}
	if msgs[2].Kind != "video" || msgs[2].Content != nil {
		t.Errorf("expected unsupported video, got %+v", msgs[2])
	}
}

func TestEmail_List(t *testing.T) {
	raw := `{"emails":[
	  {"message_id":"<abc@mail.example>","from":"Bob Chan <Bob@Example.com>","subject":"Booking","text":"Table for 4 tonight?","date":"Mon, 02 Mar 2026 10:00:00 +0800"},
	  {"message_id":"x2","from":"","subject":"no sender"},
	  {"message_id":"x3","from":"carol@example.com","attachments":[{"id":"att1","filename":"photo.jpg","content_type":"image/jpeg"}]}
	]}`
	msgs, errs := normalizeAll(t, newTestNormalizer(), domain.ChannelEmail, raw)
	if len(msgs) != 2 || len(errs) != 1 {
		t.Fatalf("expected 2 messages and 1 failure, got %d and %d", len(msgs), len(errs))
	}
	m := msgs[0]
	if m.Sender != "bob@example.com" || m.SenderName != "Bob Chan" {
		t.Errorf("unexpected sender: %q %q", m.Sender, m.SenderName)
	}
	if m.ExternalID != "abc@mail.example" {
		t.Errorf("expected trimmed message id, got %q", m.ExternalID)
	}
	if m.Content.Text != "Booking\n\nTable for 4 tonight?" {
		t.Errorf("unexpected text: %q", m.Content.Text)
	}
	if m.Metadata["subject"] != "Booking" {
		t.Errorf("expected subject metadata, got %v", m.Metadata)
	}
	if msgs[1].Kind != domain.KindImage || msgs[1].ClassifiableText() != "photo.jpg" {
		t.Errorf("unexpected attachment email: %+v", msgs[1])
	}
}

func TestEmail_SingleObject(t *testing.T) {
	units, err := Email{}.Units([]byte(`{"from":"a@b.c","text":"hello"}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 1 || units[0].Index != 0 {
		t.Fatalf("expected a single unit, got %+v", units)
	}
}

func TestEmail_Empty(t *testing.T) {
	_, errs := normalizeAll(t, newTestNormalizer(), domain.ChannelEmail, `{"from":"a@b.c"}`)
	if len(errs) != 1 {
		t.Fatalf("expected empty email to fail, got %v", errs)
	}
}

func TestReview_StarRatings(t *testing.T) {
	raw := `{"reviews":[
	  {"review_id":"r1","reviewer":{"profile_id":"p1","display_name":"Dan"},"star_rating":"FIVE","comment":"Great food, thanks!","create_time":"2026-03-01T08:00:00Z"},
	  {"review_id":"r2","reviewer":{"display_name":"Eve"},"star_rating":2},
	  {"review_id":"r3","reviewer":{},"comment":"anonymous"}
	]}`
	msgs, errs := normalizeAll(t, newTestNormalizer(), domain.ChannelReview, raw)
	if len(msgs) != 2 || len(errs) != 1 {
		t.Fatalf("expected 2 messages and 1 failure, got %d and %d", len(msgs), len(errs))
	}
	if msgs[0].Sender != "p1" || msgs[0].SenderName != "Dan" || msgs[0].Metadata["star_rating"] != "5" {
		t.Errorf("unexpected review: %+v", msgs[0])
	}
	if msgs[1].Sender != "Eve" || msgs[1].Metadata["star_rating"] != "2" {
		t.Errorf("unexpected review: %+v", msgs[1])
	}
	if msgs[1].Content == nil || msgs[1].Content.Text != "" {
		t.Errorf("star-only review should carry empty text, got %+v", msgs[1].Content)
	}
}

func TestStarRating(t *testing.T) {
	tests := map[string]string{`"FOUR"`: "4", `"three"`: "3", `1`: "1", `"5"`: "5", `9`: "", `null`: "", ``: ""}
	for in, want := range tests {
		if got := starRating([]byte(in)); got != want {
			t.Errorf("starRating(%s) = %q, want %q", in, got, want)
		}
	}
}
