package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"frontdesk/internal/domain"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(false)

	m.Ingested(domain.ChannelWhatsApp, domain.IntentComplaint, domain.PriorityCritical)
	m.Ingested(domain.ChannelWhatsApp, domain.IntentComplaint, domain.PriorityCritical)
	m.Malformed(domain.ChannelEmail)
	m.Duplicate(domain.ChannelInstagram)
	m.PersistFailed(domain.ChannelReview)
	m.Handshake(domain.ChannelWhatsApp)
	m.Outbound(domain.ChannelWhatsApp, "simulated")

	if v := testutil.ToFloat64(m.ingested.WithLabelValues("whatsapp", "complaint", "critical")); v != 2 {
		t.Errorf("expected 2 ingested, got %v", v)
	}
	if v := testutil.ToFloat64(m.malformed.WithLabelValues("email")); v != 1 {
		t.Errorf("expected 1 malformed, got %v", v)
	}
	if v := testutil.ToFloat64(m.duplicates.WithLabelValues("instagram")); v != 1 {
		t.Errorf("expected 1 duplicate, got %v", v)
	}
	if v := testutil.ToFloat64(m.persistFailures.WithLabelValues("review")); v != 1 {
		t.Errorf("expected 1 persist failure, got %v", v)
	}
	if v := testutil.ToFloat64(m.outbound.WithLabelValues("whatsapp", "simulated")); v != 1 {
		t.Errorf("expected 1 outbound, got %v", v)
	}
}

func TestMetrics_FeedGaugeAndHistogram(t *testing.T) {
	m := New(false)
	m.FeedClients(3)
	m.IngestDuration(domain.ChannelWhatsApp, 2*time.Millisecond)

	if v := testutil.ToFloat64(m.feedClients); v != 3 {
		t.Errorf("expected 3 feed clients, got %v", v)
	}
	if n := testutil.CollectAndCount(m.ingestDuration); n != 1 {
		t.Errorf("expected 1 histogram series, got %d", n)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New(false)
	m.Handshake(domain.ChannelWhatsApp)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rr.Body)

	if !strings.Contains(string(body), `frontdesk_handshakes_total{channel="whatsapp"} 1`) {
		t.Errorf("expected handshake counter in output:\n%s", body)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.Ingested(domain.ChannelEmail, domain.IntentThanks, domain.PriorityNormal)
	m.FeedClients(1)
	if m.Uptime() != 0 {
		t.Error("nil metrics should report zero uptime")
	}
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code != 404 {
		t.Errorf("expected 404 from nil handler, got %d", rr.Code)
	}
}
