package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"quickestimate/internal"
	"quickestimate/internal/blob"
	"quickestimate/internal/catalog"
	"quickestimate/internal/config"
	"quickestimate/internal/estimate"
	"quickestimate/internal/extract"
	"quickestimate/internal/metrics"
	"quickestimate/internal/storage"
)

// ErrNoImageExtractor is recorded when a message carries a sheet photo but
// no photo extractor is configured.
var ErrNoImageExtractor = errors.New("no image extractor configured (GEMINI_API_KEY)")

// ErrUnsupportedDocument is recorded for a part no extractor can read.
var ErrUnsupportedDocument = errors.New("unsupported document type")

type ProcessingService struct {
	db      *storage.DB
	blobs   blob.Store
	cfg     config.Config
	images  extract.Extractor
	catalog *catalog.Catalog
	policy  estimate.UnmatchedPolicy
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*ProcessingService)

func WithLogger(l *slog.Logger) Option {
	return func(s *ProcessingService) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ProcessingService) { s.metrics = m }
}

func WithCatalog(c *catalog.Catalog) Option {
	return func(s *ProcessingService) { s.catalog = c }
}

// NewProcessingService wires the pipeline. images reads sheet photos and
// may be nil when no model is configured; messages with photos then fail.
func NewProcessingService(db *storage.DB, blobs blob.Store, cfg config.Config, images extract.Extractor, opts ...Option) *ProcessingService {
	policy, err := estimate.ParseUnmatchedPolicy(cfg.UnmatchedPolicy)
	if err != nil {
		policy = estimate.UnmatchedDrop
	}
	s := &ProcessingService{
		db:      db,
		blobs:   blobs,
		cfg:     cfg,
		images:  images,
		catalog: catalog.Default(),
		policy:  policy,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type ProcessResult struct {
	EmailID    int
	Status     internal.EmailStatus
	EstimateID string
	Sources    int
	Patched    int
	Dropped    int
	// Failure is the extraction error behind a failed status.
	Failure error
}

func (s *ProcessingService) ProcessByProviderMessageID(ctx context.Context, provider, messageID string) (ProcessResult, error) {
	email, err := s.db.MustEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return ProcessResult{}, err
	}
	return s.ProcessEmail(ctx, email)
}

// ProcessPending handles up to limit fetched emails. An extraction failure
// marks that email failed and moves on; storage errors stop the batch.
func (s *ProcessingService) ProcessPending(ctx context.Context, limit int, provider string) ([]ProcessResult, error) {
	pending, err := s.db.ListEmailsByStatus(internal.EmailFetched, limit)
	if err != nil {
		return nil, err
	}
	var out []ProcessResult
	for _, email := range pending {
		if provider != "" && email.Provider != provider {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := s.ProcessEmail(ctx, email)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// ProcessEmail reads the archived message, extracts rows from every sheet
// it carries onto a fresh fixed-layout estimate and saves it. If any
// extraction fails the email is marked failed and no estimate is stored.
func (s *ProcessingService) ProcessEmail(ctx context.Context, email internal.EmailRow) (ProcessResult, error) {
	start := time.Now()
	trace := traceID()
	log := s.logger.With("trace", trace, "email", email.ID, "provider", email.Provider)

	_, raw, err := s.blobs.Get(ctx, email.RawRef)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("load raw email %s: %w", email.RawRef, err)
	}
	msg, err := readMessage(raw)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("parse email %d: %w", email.ID, err)
	}

	subject := firstNonEmpty(msg.subject, email.Subject)
	detect := DetectEstimateSheet(subject, msg.text, msg.html, msg.attachmentNames)
	if !detect.IsEstimate {
		log.Info("email skipped", "score", detect.Score, "reason", detect.Reason)
		return s.finish(email, trace, start, ProcessResult{EmailID: email.ID, Status: internal.EmailSkipped})
	}

	store := estimate.NewStore(estimate.ModeFixed, s.catalog)
	res := ProcessResult{EmailID: email.ID}
	for _, src := range msg.sources() {
		ex, err := s.extractorFor(src)
		if err != nil {
			res.Failure = &extract.ExtractionError{Kind: extract.KindInput, Op: src.name, Err: err}
			break
		}
		session := estimate.NewSession(store, ex,
			estimate.WithTimeout(s.cfg.ExtractTimeout()),
			estimate.WithUnmatchedPolicy(s.policy))

		began := time.Now()
		applied, err := session.Extract(ctx, src.content)
		s.metrics.ObserveExtraction(string(src.kind), time.Since(began), err)
		if err != nil {
			res.Failure = fmt.Errorf("%s: %w", src.name, err)
			break
		}
		res.Sources++
		res.Patched += len(applied.Patched) + len(applied.Appended)
		res.Dropped += len(applied.Dropped)
		log.Info("sheet read", "source", src.name, "kind", src.kind,
			"patched", len(applied.Patched), "dropped", len(applied.Dropped))
	}
	if res.Failure == nil && res.Sources == 0 {
		res.Failure = &extract.ExtractionError{Kind: extract.KindInput, Op: "detect", Err: errors.New("no sheet found in message")}
	}

	if res.Failure != nil {
		log.Warn("extraction failed", "err", res.Failure, "kind", extract.KindOf(res.Failure))
		res.Status = internal.EmailFailed
		return s.finish(email, trace, start, res)
	}

	name := subject
	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("email %d", email.ID)
	}
	emailID := email.ID
	saved, err := s.db.CreateEstimate(name, store.Mode(), &emailID, store.List())
	if err != nil {
		return ProcessResult{}, err
	}
	if err := s.db.LinkEmailEstimate(email.ID, saved.ID); err != nil {
		return ProcessResult{}, err
	}
	res.EstimateID = saved.ID
	res.Status = internal.EmailProcessed
	log.Info("estimate saved", "estimate", saved.ID, "rows", len(saved.Rows),
		"grandTotal", estimate.GrandTotal(saved.Rows).StringFixed(2))
	return s.finish(email, trace, start, res)
}

func (s *ProcessingService) finish(email internal.EmailRow, trace string, start time.Time, res ProcessResult) (ProcessResult, error) {
	if err := s.db.UpdateEmailStatus(email.ID, res.Status); err != nil {
		return ProcessResult{}, err
	}
	counts := map[string]int{"sources": res.Sources, "patched": res.Patched, "dropped": res.Dropped}
	if res.Failure != nil {
		counts["failed"] = 1
	}
	if err := s.db.InsertRun(trace, email.ID, res.EstimateID, map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())}, counts); err != nil {
		s.logger.Warn("run not recorded", "trace", trace, "err", err)
	}
	s.metrics.EmailHandled(string(res.Status))
	return res, nil
}

func (s *ProcessingService) extractorFor(src source) (extract.Extractor, error) {
	if src.image {
		if s.images == nil {
			return nil, ErrNoImageExtractor
		}
		return s.images, nil
	}
	ex, ok := extract.ForContentType(src.contentType, src.name)
	if !ok {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedDocument, src.name, src.contentType)
	}
	return ex, nil
}

func traceID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
