package store

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"frontdesk/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{
		Path:      filepath.Join(t.TempDir(), "frontdesk.db"),
		MachineID: 7,
		Logger:    testLogger(),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func routed(ch domain.Channel, sender, ext, text string, in domain.Intent, p domain.Priority) domain.RoutedMessage {
	matched := []domain.Intent{}
	if in != domain.IntentGeneralInquiry {
		matched = []domain.Intent{in}
	}
	return domain.RoutedMessage{
		Message: domain.InboundMessage{
			Channel:      ch,
			Sender:       sender,
			SenderName:   "Alice",
			ExternalID:   ext,
			Kind:         domain.KindText,
			Content:      domain.TextContent(text),
			ReceivedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			RawTimestamp: "1700000000",
		},
		Classification: domain.ClassificationResult{Intent: in, Confidence: 0.4, Language: domain.LanguageEnglish, MatchedIntents: matched},
		Priority:       p,
		BatchID:        "batch-1",
	}
}

func TestOpen_MigratesFreshDB(t *testing.T) {
	s := testStore(t)
	v, err := SchemaVersion(context.Background(), s.DB())
	if err != nil {
		t.Fatal(err)
	}
	if v != schemaVersion {
		t.Errorf("expected schema version %d, got %d", schemaVersion, v)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	if err := RunMigrations(ctx, s.DB(), s.dialect, testLogger()); err != nil {
		t.Fatalf("second migration run failed: %v", err)
	}
	var n int
	if err := s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != len(migrations) {
		t.Errorf("expected %d recorded migrations, got %d", len(migrations), n)
	}
}

func TestRunMigrations_CreatesExpectedTables(t *testing.T) {
	s := testStore(t)
	for _, table := range []string{"customers", "messages", "schema_version"} {
		var name string
		err := s.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestSchemaVersion_EmptyDB(t *testing.T) {
	s := testStore(t)
	if _, err := s.DB().Exec("DROP TABLE schema_version"); err != nil {
		t.Fatal(err)
	}
	v, err := SchemaVersion(context.Background(), s.DB())
	if err != nil || v != 0 {
		t.Errorf("expected version 0 without table, got %d (%v)", v, err)
	}
}

func TestPersist_CreatesCustomerOnce(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	key := domain.CustomerKey{Channel: domain.ChannelWhatsApp, Sender: "85291234567"}

	r1, err := s.Persist(ctx, routed(domain.ChannelWhatsApp, key.Sender, "wamid.1", "menu?", domain.IntentMenuInquiry, domain.PriorityNormal), key)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := s.Persist(ctx, routed(domain.ChannelWhatsApp, key.Sender, "wamid.2", "book", domain.IntentReservation, domain.PriorityUrgent), key)
	if err != nil {
		t.Fatal(err)
	}
	if !r1.NewCustomer || r2.NewCustomer {
		t.Errorf("expected only first receipt to create a customer: %+v %+v", r1, r2)
	}
	if r1.CustomerID != r2.CustomerID || r1.MessageID == r2.MessageID {
		t.Errorf("unexpected ids: %+v %+v", r1, r2)
	}

	c, err := s.FindCustomer(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if c.Phone != key.Sender || c.Name != "Alice" || c.MessageCount != 2 || c.LastMessageAt == nil {
		t.Errorf("unexpected customer: %+v", c)
	}
}

func TestPersist_HandleColumnPerChannel(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	cases := []struct {
		ch   domain.Channel
		get  func(domain.Customer) string
		send string
	}{
		{domain.ChannelEmail, func(c domain.Customer) string { return c.Email }, "bob@example.com"},
		{domain.ChannelInstagram, func(c domain.Customer) string { return c.InstagramHandle }, "1789"},
		{domain.ChannelReview, func(c domain.Customer) string { return c.ReviewHandle }, "p1"},
	}
	for _, tc := range cases {
		key := domain.CustomerKey{Channel: tc.ch, Sender: tc.send}
		r, err := s.Persist(ctx, routed(tc.ch, tc.send, "", "hi", domain.IntentGeneralInquiry, domain.PriorityNormal), key)
		if err != nil {
			t.Fatalf("%s: %v", tc.ch, err)
		}
		c, err := s.GetCustomer(ctx, r.CustomerID)
		if err != nil {
			t.Fatal(err)
		}
		if tc.get(c) != tc.send || c.Phone != "" {
			t.Errorf("%s: handle stored in wrong column: %+v", tc.ch, c)
		}
	}
}

func TestPersist_DuplicateExternalID(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	key := domain.CustomerKey{Channel: domain.ChannelWhatsApp, Sender: "1"}
	msg := routed(domain.ChannelWhatsApp, "1", "wamid.dup", "hi", domain.IntentGeneralInquiry, domain.PriorityNormal)

	if _, err := s.Persist(ctx, msg, key); err != nil {
		t.Fatal(err)
	}
	_, err := s.Persist(ctx, msg, key)
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	c, _ := s.FindCustomer(ctx, key)
	if c.MessageCount != 1 {
		t.Errorf("duplicate should not bump the counter, got %d", c.MessageCount)
	}
}

func TestPersist_SameExternalIDOnOtherChannel(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	review := routed(domain.ChannelReview, "p1", "42", "great food", domain.IntentGeneralInquiry, domain.PriorityNormal)
	if _, err := s.Persist(ctx, review, domain.CustomerKey{Channel: domain.ChannelReview, Sender: "p1"}); err != nil {
		t.Fatal(err)
	}
	email := routed(domain.ChannelEmail, "bob@example.com", "42", "refund please", domain.IntentComplaint, domain.PriorityCritical)
	if _, err := s.Persist(ctx, email, domain.CustomerKey{Channel: domain.ChannelEmail, Sender: "bob@example.com"}); err != nil {
		t.Fatalf("external id 42 on email should not collide with review 42: %v", err)
	}
	_, err := s.Persist(ctx, email, domain.CustomerKey{Channel: domain.ChannelEmail, Sender: "bob@example.com"})
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate on the same channel, got %v", err)
	}
}

func TestPersist_EmptyExternalIDsAllowed(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	key := domain.CustomerKey{Channel: domain.ChannelReview, Sender: "p"}
	for i := 0; i < 2; i++ {
		if _, err := s.Persist(ctx, routed(domain.ChannelReview, "p", "", "ok", domain.IntentGeneralInquiry, domain.PriorityNormal), key); err != nil {
			t.Fatalf("persist %d: %v", i, err)
		}
	}
}

func TestPersist_UnsupportedChannel(t *testing.T) {
	s := testStore(t)
	_, err := s.Persist(context.Background(), domain.RoutedMessage{}, domain.CustomerKey{Channel: "fax", Sender: "1"})
	if !errors.Is(err, domain.ErrUnsupportedChannel) {
		t.Errorf("expected ErrUnsupportedChannel, got %v", err)
	}
}

func TestMessages_RoundTripAndFilter(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	wa := domain.CustomerKey{Channel: domain.ChannelWhatsApp, Sender: "1"}
	em := domain.CustomerKey{Channel: domain.ChannelEmail, Sender: "a@b.c"}

	img := routed(domain.ChannelWhatsApp, "1", "wamid.img", "", domain.IntentLocation, domain.PriorityNormal)
	img.Message.Kind = domain.KindImage
	img.Message.Content = domain.AttachmentContent(domain.Attachment{Kind: domain.KindImage, AttachmentID: "m1", Caption: "where"})
	img.Message.Metadata = map[string]string{"k": "v"}

	rImg, err := s.Persist(ctx, img, wa)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Persist(ctx, routed(domain.ChannelEmail, "a@b.c", "e1", "bad food", domain.IntentComplaint, domain.PriorityCritical), em); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetMessage(ctx, rImg.MessageID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Message.Content == nil || got.Message.Content.Attachment == nil || got.Message.Content.Attachment.Caption != "where" {
		t.Errorf("attachment not restored: %+v", got.Message.Content)
	}
	if got.Message.Metadata["k"] != "v" || got.BatchID != "batch-1" || got.Status != domain.StatusUnread {
		t.Errorf("unexpected stored message: %+v", got)
	}
	if len(got.Classification.MatchedIntents) != 1 || got.Classification.MatchedIntents[0] != domain.IntentLocation {
		t.Errorf("matched intents not restored: %+v", got.Classification)
	}
	if !got.Message.ReceivedAt.Equal(img.Message.ReceivedAt) {
		t.Errorf("received_at mismatch: %v vs %v", got.Message.ReceivedAt, img.Message.ReceivedAt)
	}

	critical, err := s.ListMessages(ctx, MessageFilter{Priority: domain.PriorityCritical})
	if err != nil {
		t.Fatal(err)
	}
	if len(critical) != 1 || critical[0].Message.Content.Text != "bad food" {
		t.Errorf("unexpected critical list: %+v", critical)
	}
	all, _ := s.ListMessages(ctx, MessageFilter{})
	if len(all) != 2 {
		t.Errorf("expected 2 messages, got %d", len(all))
	}
	byChannel, _ := s.ListMessages(ctx, MessageFilter{Channel: domain.ChannelWhatsApp, CustomerID: rImg.CustomerID})
	if len(byChannel) != 1 {
		t.Errorf("expected 1 whatsapp message, got %d", len(byChannel))
	}

	counts, err := s.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[domain.PriorityCritical] != 1 || counts[domain.PriorityNormal] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestUpdateMessageStatus(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	key := domain.CustomerKey{Channel: domain.ChannelWhatsApp, Sender: "1"}
	r, err := s.Persist(ctx, routed(domain.ChannelWhatsApp, "1", "w", "hi", domain.IntentGeneralInquiry, domain.PriorityNormal), key)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateMessageStatus(ctx, r.MessageID, domain.StatusReplied); err != nil {
		t.Fatal(err)
	}
	m, _ := s.GetMessage(ctx, r.MessageID)
	if m.Status != domain.StatusReplied {
		t.Errorf("expected replied, got %s", m.Status)
	}
	replied, _ := s.ListMessages(ctx, MessageFilter{Status: domain.StatusReplied})
	if len(replied) != 1 {
		t.Errorf("expected 1 replied message, got %d", len(replied))
	}

	if err := s.UpdateMessageStatus(ctx, 12345, domain.StatusRead); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.UpdateMessageStatus(ctx, r.MessageID, "lost"); err == nil {
		t.Error("expected error for invalid status")
	}
}

func TestLookups_NotFound(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	if _, err := s.GetMessage(ctx, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetMessage: expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetCustomer(ctx, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetCustomer: expected ErrNotFound, got %v", err)
	}
	if _, err := s.FindCustomer(ctx, domain.CustomerKey{Channel: domain.ChannelEmail, Sender: "x@y.z"}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("FindCustomer: expected ErrNotFound, got %v", err)
	}
	customers, err := s.ListCustomers(ctx, 0)
	if err != nil || customers == nil || len(customers) != 0 {
		t.Errorf("expected empty non-nil customer list, got %v %v", customers, err)
	}
}

func TestOpen_Validation(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, Config{Driver: "postgres"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
	if _, err := Open(ctx, Config{}); err == nil {
		t.Error("expected error for missing sqlite path")
	}
	if _, err := Open(ctx, Config{Driver: DriverMySQL}); err == nil {
		t.Error("expected error for missing mysql dsn")
	}
}

func TestMySQLDSN_ForcesOptions(t *testing.T) {
	dsn, err := mysqlDSN("frontdesk:secret@tcp(db:3306)/frontdesk")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"parseTime=true", "clientFoundRows=true", "charset=utf8mb4"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %s", dsn, want)
		}
	}
	if _, err := mysqlDSN("::not a dsn"); err == nil {
		t.Error("expected parse error")
	}
}

func TestSplitSQL(t *testing.T) {
	stmts := splitSQL("CREATE TABLE a (x INT);\n\n  CREATE INDEX i ON a(x);  \n")
	if len(stmts) != 2 || stmts[1] != "CREATE INDEX i ON a(x)" {
		t.Errorf("unexpected statements: %q", stmts)
	}
}
