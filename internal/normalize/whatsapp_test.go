package normalize

import (
	"errors"
	"testing"

	"frontdesk/internal/domain"
)

const waBatch = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "WABA1",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "contacts": [{"wa_id": "85291234567", "profile": {"name": "Alice"}}],
        "messages": [
          {"from": "85291234567", "id": "wamid.1", "timestamp": "1700000000", "type": "text", "text": {"body": "What time do you open?"}},
          {"id": "wamid.2", "timestamp": "1700000001", "type": "text", "text": {"body": "no sender"}},
          {"from": "85291234567", "id": "wamid.3", "timestamp": "1700000002", "type": "image", "image": {"id": "media-9", "mime_type": "image/jpeg", "caption": "menu photo"}}
        ]
      }
    }]
  }]
}`

func TestWhatsApp_BatchWithMalformedUnit(t *testing.T) {
	msgs, errs := normalizeAll(t, newTestNormalizer(), domain.ChannelWhatsApp, waBatch)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(errs))
	}
	var mpe *domain.MalformedPayloadError
	if !errors.As(errs[0], &mpe) || mpe.Index != 1 {
		t.Errorf("expected failure at unit 1, got %v", errs[0])
	}

	text := msgs[0]
	if text.Sender != "85291234567" || text.SenderName != "Alice" {
		t.Errorf("unexpected sender: %q %q", text.Sender, text.SenderName)
	}
	if text.ExternalID != "wamid.1" || text.RawTimestamp != "1700000000" {
		t.Errorf("unexpected ids: %q %q", text.ExternalID, text.RawTimestamp)
	}
	if text.Kind != domain.KindText || text.Content.Text != "What time do you open?" {
		t.Errorf("unexpected content: %+v", text.Content)
	}

	img := msgs[1]
	if img.Kind != domain.KindImage || img.Content.Attachment == nil {
		t.Fatalf("expected image attachment, got %+v", img.Content)
	}
	att := img.Content.Attachment
	if att.AttachmentID != "media-9" || att.MIMEType != "image/jpeg" || att.Caption != "menu photo" {
		t.Errorf("unexpected attachment: %+v", att)
	}
	if img.ClassifiableText() != "menu photo" {
		t.Errorf("expected caption as classifiable text, got %q", img.ClassifiableText())
	}
}

func TestWhatsApp_StatusOnlyDelivery(t *testing.T) {
	raw := `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{"statuses":[{"id":"wamid.x","status":"delivered"}]}}]}]}`
	units, err := WhatsApp{}.Units([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 0 {
		t.Errorf("expected no units, got %d", len(units))
	}
}

func TestWhatsApp_UnsupportedKind(t *testing.T) {
	raw := `{"entry":[{"changes":[{"value":{"messages":[{"from":"1","id":"w","type":"sticker","sticker":{"id":"s"}}]}}]}]}`
	msgs, errs := normalizeAll(t, newTestNormalizer(), domain.ChannelWhatsApp, raw)
	if len(errs) != 0 || len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d (errs %v)", len(msgs), errs)
	}
	if msgs[0].Kind != "sticker" || msgs[0].Content != nil || msgs[0].Supported() {
		t.Errorf("expected unsupported sticker with nil content, got %+v", msgs[0])
	}
}

func TestWhatsApp_DocumentAndAudio(t *testing.T) {
	raw := `{"entry":[{"changes":[{"value":{"messages":[
	  {"from":"1","id":"a","type":"document","document":{"id":"d1","mime_type":"application/pdf","filename":"invoice.pdf"}},
	  {"from":"1","id":"b","type":"audio","audio":{"id":"a1","mime_type":"audio/ogg"}},
	  {"from":"1","id":"c","type":"audio"}
	]}}]}]}`
	msgs, errs := normalizeAll(t, newTestNormalizer(), domain.ChannelWhatsApp, raw)
	if len(msgs) != 2 || len(errs) != 1 {
		t.Fatalf("expected 2 messages and 1 failure, got %d and %d", len(msgs), len(errs))
	}
	if msgs[0].ClassifiableText() != "invoice.pdf" {
		t.Errorf("expected filename as classifiable text, got %q", msgs[0].ClassifiableText())
	}
	if msgs[1].Kind != domain.KindAudio || msgs[1].ClassifiableText() != "" {
		t.Errorf("unexpected audio message: %+v", msgs[1])
	}
}

func TestWhatsApp_WrongFieldType(t *testing.T) {
	raw := `{"entry":[{"changes":[{"value":{"messages":[{"from":12,"type":"text"},{"from":"2","id":"ok","type":"text","text":{"body":"hi"}}]}}]}]}`
	msgs, errs := normalizeAll(t, newTestNormalizer(), domain.ChannelWhatsApp, raw)
	if len(msgs) != 1 || len(errs) != 1 {
		t.Fatalf("expected 1 message and 1 failure, got %d and %d", len(msgs), len(errs))
	}
}

func TestWhatsAppStatuses(t *testing.T) {
	raw := `{"entry":[{"changes":[{"value":{"statuses":[
		{"id":"wamid.out1","status":"delivered","recipient_id":"85291234567"},
		{"id":"","status":"read"}
	]}}]}]}`
	got := WhatsAppStatuses([]byte(raw))
	if len(got) != 1 {
		t.Fatalf("expected 1 status, got %d", len(got))
	}
	if got[0].MessageID != "wamid.out1" || got[0].Status != "delivered" || got[0].Recipient != "85291234567" {
		t.Errorf("unexpected status %+v", got[0])
	}
	if WhatsAppStatuses([]byte("not json")) != nil {
		t.Error("expected nil for garbage")
	}
}

func TestWhatsApp_OddStatusDoesNotSinkBatch(t *testing.T) {
	raw := `{"entry":[{"changes":[{"value":{
		"messages":[{"from":"2","id":"wamid.in","type":"text","text":{"body":"hi"}}],
		"statuses":[
			{"id":"wamid.out1","status":"read","recipient_id":85291234567},
			{"id":"wamid.out2","status":"delivered","recipient_id":"85291234567"}
		]}}]}]}`
	msgs, errs := normalizeAll(t, newTestNormalizer(), domain.ChannelWhatsApp, raw)
	if len(msgs) != 1 || len(errs) != 0 {
		t.Fatalf("expected the message to survive an odd status, got %d messages and %d failures", len(msgs), len(errs))
	}
	got := WhatsAppStatuses([]byte(raw))
	if len(got) != 1 || got[0].MessageID != "wamid.out2" {
		t.Errorf("expected only the well-formed status, got %+v", got)
	}
}
