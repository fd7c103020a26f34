// Package routing turns webhook deliveries into routed, prioritized messages.
package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"frontdesk/internal/bus"
	"frontdesk/internal/dedupe"
	"frontdesk/internal/domain"
	"frontdesk/internal/intent"
	"frontdesk/internal/normalize"
)

// Persister stores a routed message against the customer identified by key.
type Persister interface {
	Persist(ctx context.Context, msg domain.RoutedMessage, key domain.CustomerKey) (domain.Receipt, error)
}

// Recorder receives pipeline measurements. *metrics.Metrics implements it.
type Recorder interface {
	Ingested(ch domain.Channel, in domain.Intent, p domain.Priority)
	Malformed(ch domain.Channel)
	Duplicate(ch domain.Channel)
	PersistFailed(ch domain.Channel)
	Handshake(ch domain.Channel)
	IngestDuration(ch domain.Channel, d time.Duration)
}

// ClassifyFunc classifies text with a language hint.
type ClassifyFunc func(text, hint string) domain.ClassificationResult

// Config wires a Pipeline. Only Logger is required; nil collaborators are skipped.
type Config struct {
	Normalizer   *normalize.Normalizer
	Classify     ClassifyFunc
	LanguageHint string
	Dedupe       dedupe.Store
	Persister    Persister
	Events       *bus.EventBus
	Metrics      Recorder
	Tracer       trace.Tracer
	NewBatchID   func() string
	Logger       *slog.Logger
}

// UnitFailure describes one skipped unit.
type UnitFailure struct {
	Index      int    `json:"index"`
	ExternalID string `json:"external_id,omitempty"`
	Reason     string `json:"reason"`
	Err        error  `json:"-"`
}

// IngestResult summarizes one delivery. Processed always equals len(Messages).
type IngestResult struct {
	BatchID    string                 `json:"batch_id"`
	Channel    domain.Channel         `json:"channel"`
	Challenge  string                 `json:"challenge,omitempty"` // set when the delivery was a handshake
	Processed  int                    `json:"processed"`
	Duplicates int                    `json:"duplicates"`
	Failed     int                    `json:"failed"`
	Messages   []domain.RoutedMessage `json:"messages"`
	Failures   []UnitFailure          `json:"failures,omitempty"`
}

// Pipeline runs normalize, dedupe, classify, prioritize, persist and emit for
// each unit of a delivery. It holds no mutable state of its own and is safe
// for concurrent use.
type Pipeline struct {
	normalizer *normalize.Normalizer
	classify   ClassifyFunc
	hint       string
	dedupe     dedupe.Store
	persister  Persister
	events     *bus.EventBus
	metrics    Recorder
	tracer     trace.Tracer
	newBatchID func() string
	logger     *slog.Logger
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		normalizer: cfg.Normalizer,
		classify:   cfg.Classify,
		hint:       cfg.LanguageHint,
		dedupe:     cfg.Dedupe,
		persister:  cfg.Persister,
		events:     cfg.Events,
		metrics:    cfg.Metrics,
		tracer:     cfg.Tracer,
		newBatchID: cfg.NewBatchID,
		logger:     cfg.Logger,
	}
	if p.normalizer == nil {
		p.normalizer = normalize.New()
	}
	if p.classify == nil {
		p.classify = intent.Classify
	}
	if p.hint == "" {
		p.hint = intent.HintAuto
	}
	if p.metrics == nil {
		p.metrics = nopRecorder{}
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer("frontdesk/routing")
	}
	if p.newBatchID == nil {
		p.newBatchID = uuid.NewString
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// VerificationChallenge reports whether raw is a verification handshake for
// ch, counting it when it is. Transports call it before Ingest.
func (p *Pipeline) VerificationChallenge(ch domain.Channel, raw []byte) (string, bool) {
	challenge, ok := normalize.VerificationChallenge(raw)
	if ok {
		p.metrics.Handshake(ch)
	}
	return challenge, ok
}

// Ingest processes one delivery. Per-unit failures are recorded in the result.
// An error is returned for an unsupported channel or an unintelligible payload,
// and when ctx ends mid-batch; in that case the partial result is returned too.
func (p *Pipeline) Ingest(ctx context.Context, ch domain.Channel, raw []byte) (*IngestResult, error) {
	start := time.Now()
	defer func() { p.metrics.IngestDuration(ch, time.Since(start)) }()
	batchID := p.newBatchID()
	ctx, span := p.tracer.Start(ctx, "routing.Ingest", trace.WithAttributes(
		attribute.String("frontdesk.channel", string(ch)),
		attribute.String("frontdesk.batch_id", batchID),
	))
	defer span.End()

	res := &IngestResult{BatchID: batchID, Channel: ch, Messages: []domain.RoutedMessage{}}

	if challenge, ok := p.VerificationChallenge(ch, raw); ok {
		res.Challenge = challenge
		span.SetAttributes(attribute.Bool("frontdesk.handshake", true))
		return res, nil
	}

	units, err := p.normalizer.Units(ch, raw)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedPayload) {
			p.metrics.Malformed(ch)
			p.emit(bus.Event{Type: bus.EventMessageMalformed, BatchID: batchID, Channel: ch, Err: err})
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "unintelligible payload")
		p.logger.Warn("delivery rejected", "channel", ch, "batch", batchID, "err", err)
		return nil, fmt.Errorf("ingest %s: %w", ch, err)
	}

	for _, u := range units {
		if err := ctx.Err(); err != nil {
			res.Processed = len(res.Messages)
			span.RecordError(err)
			span.SetStatus(codes.Error, "cancelled")
			p.logger.Warn("delivery interrupted",
				"channel", ch,
				"batch", batchID,
				"units", len(units),
				"processed", res.Processed,
				"err", err,
			)
			return res, fmt.Errorf("ingest %s: %w", ch, err)
		}
		p.ingestUnit(ctx, res, u)
	}
	res.Processed = len(res.Messages)

	span.SetAttributes(
		attribute.Int("frontdesk.units", len(units)),
		attribute.Int("frontdesk.processed", res.Processed),
		attribute.Int("frontdesk.duplicates", res.Duplicates),
		attribute.Int("frontdesk.failed", res.Failed),
	)
	p.logger.Info("delivery ingested",
		"channel", ch,
		"batch", batchID,
		"units", len(units),
		"processed", res.Processed,
		"duplicates", res.Duplicates,
		"failed", res.Failed,
	)
	return res, nil
}

func (p *Pipeline) ingestUnit(ctx context.Context, res *IngestResult, u normalize.Unit) {
	ctx, span := p.tracer.Start(ctx, "routing.unit", trace.WithAttributes(attribute.Int("frontdesk.unit", u.Index)))
	defer span.End()

	msg, err := p.normalizer.Normalize(u)
	if err != nil {
		p.metrics.Malformed(res.Channel)
		p.fail(res, UnitFailure{Index: u.Index, Err: err})
		span.RecordError(err)
		return
	}
	span.SetAttributes(attribute.String("frontdesk.kind", msg.Kind))

	key := dedupeKey(msg)
	claimed := false
	if p.dedupe != nil && msg.ExternalID != "" {
		first, err := p.dedupe.Claim(ctx, key)
		switch {
		case err != nil:
			p.logger.Warn("dedupe unavailable, processing anyway", "channel", res.Channel, "external_id", msg.ExternalID, "err", err)
		case !first:
			p.duplicate(res, msg)
			return
		default:
			claimed = true
		}
	}

	routed := p.Route(msg)
	routed.BatchID = res.BatchID
	if err := checkClassification(routed.Classification); err != nil {
		p.logger.Error("classifier contract violated", "channel", res.Channel, "err", err)
		if claimed {
			p.release(ctx, key)
		}
		p.fail(res, UnitFailure{Index: u.Index, ExternalID: msg.ExternalID, Err: err})
		return
	}

	if p.persister != nil {
		receipt, err := p.persister.Persist(ctx, routed, msg.CustomerKey())
		if errors.Is(err, domain.ErrDuplicate) {
			p.duplicate(res, msg)
			return
		}
		if err != nil {
			if claimed {
				p.release(ctx, key)
			}
			p.metrics.PersistFailed(res.Channel)
			p.emit(bus.Event{Type: bus.EventPersistFailed, BatchID: res.BatchID, Channel: res.Channel, Err: err})
			p.fail(res, UnitFailure{Index: u.Index, ExternalID: msg.ExternalID, Err: fmt.Errorf("persist: %w", err)})
			span.RecordError(err)
			return
		}
		routed.CustomerID = receipt.CustomerID
		routed.MessageID = receipt.MessageID
	}

	res.Messages = append(res.Messages, routed)
	p.metrics.Ingested(res.Channel, routed.Classification.Intent, routed.Priority)
	p.emit(bus.Event{Type: bus.EventMessageRouted, BatchID: res.BatchID, Channel: res.Channel, Routed: &routed})
	span.SetAttributes(
		attribute.String("frontdesk.intent", string(routed.Classification.Intent)),
		attribute.String("frontdesk.priority", string(routed.Priority)),
	)
}

// Route classifies a normalized message and resolves its priority. It performs no I/O.
func (p *Pipeline) Route(msg domain.InboundMessage) domain.RoutedMessage {
	cls := p.classify(msg.ClassifiableText(), p.hint)
	return domain.RoutedMessage{
		Message:        msg,
		Classification: cls,
		Priority:       ResolvePriority(cls.Intent),
	}
}

// dedupeKey scopes an external id to its channel: ids are only unique per platform.
func dedupeKey(msg domain.InboundMessage) string {
	return string(msg.Channel) + ":" + msg.ExternalID
}

// release gives a claim back so a redelivery of the unit is processed again.
func (p *Pipeline) release(ctx context.Context, key string) {
	if err := p.dedupe.Release(ctx, key); err != nil {
		p.logger.Warn("dedupe release failed", "key", key, "err", err)
	}
}

func (p *Pipeline) fail(res *IngestResult, f UnitFailure) {
	f.Reason = f.Err.Error()
	res.Failures = append(res.Failures, f)
	res.Failed++
	if errors.Is(f.Err, domain.ErrMalformedPayload) {
		p.emit(bus.Event{Type: bus.EventMessageMalformed, BatchID: res.BatchID, Channel: res.Channel, Err: f.Err})
	}
	p.logger.Warn("unit skipped", "channel", res.Channel, "batch", res.BatchID, "unit", f.Index, "err", f.Err)
}

func (p *Pipeline) duplicate(res *IngestResult, msg domain.InboundMessage) {
	res.Duplicates++
	p.metrics.Duplicate(res.Channel)
	p.logger.Debug("duplicate unit skipped", "channel", res.Channel, "external_id", msg.ExternalID)
}

func (p *Pipeline) emit(e bus.Event) {
	if p.events != nil {
		p.events.Emit(e)
	}
}

// checkClassification enforces the classifier's output contract.
func checkClassification(c domain.ClassificationResult) error {
	switch {
	case c.Confidence < domain.MinConfidence || c.Confidence > domain.MaxConfidence:
		return fmt.Errorf("%w: confidence %.2f out of range", domain.ErrClassification, c.Confidence)
	case (len(c.MatchedIntents) == 0) != (c.Intent == domain.IntentGeneralInquiry):
		return fmt.Errorf("%w: intent %s with %d matches", domain.ErrClassification, c.Intent, len(c.MatchedIntents))
	case len(c.MatchedIntents) > 0 && !slices.Contains(c.MatchedIntents, c.Intent):
		return fmt.Errorf("%w: intent %s not among matches", domain.ErrClassification, c.Intent)
	}
	return nil
}

type nopRecorder struct{}

func (nopRecorder) Ingested(domain.Channel, domain.Intent, domain.Priority) {}
func (nopRecorder) Malformed(domain.Channel)                                {}
func (nopRecorder) Duplicate(domain.Channel)                                {}
func (nopRecorder) PersistFailed(domain.Channel)                            {}
func (nopRecorder) Handshake(domain.Channel)                                {}
func (nopRecorder) IngestDuration(domain.Channel, time.Duration)            {}
