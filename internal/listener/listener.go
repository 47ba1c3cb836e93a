package listener

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"quickestimate/internal"
	"quickestimate/internal/blob"
	"quickestimate/internal/config"
	"quickestimate/internal/connectors"
	"quickestimate/internal/metrics"
	"quickestimate/internal/pipeline"
	"quickestimate/internal/storage"
)

type Service struct {
	db        *storage.DB
	blobs     blob.Store
	cfg       config.Config
	processor *pipeline.ProcessingService
	logger    *slog.Logger
	metrics   *metrics.Metrics
	connect   func(ctx context.Context, provider string) (connectors.MailConnector, error)
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithConnector replaces the provider lookup with a fixed connector.
func WithConnector(c connectors.MailConnector) Option {
	return func(s *Service) {
		s.connect = func(context.Context, string) (connectors.MailConnector, error) { return c, nil }
	}
}

func NewService(db *storage.DB, blobs blob.Store, cfg config.Config, processor *pipeline.ProcessingService, opts ...Option) *Service {
	s := &Service{
		db:        db,
		blobs:     blobs,
		cfg:       cfg,
		processor: processor,
		logger:    slog.Default(),
	}
	s.connect = func(ctx context.Context, provider string) (connectors.MailConnector, error) {
		return connectors.Open(ctx, s.cfg, provider)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run polls until ctx is cancelled. A failed cycle is logged and retried on
// the next tick.
func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.MailListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		err := s.RunCycle(ctx)
		s.metrics.Poll(err)
		if err != nil && ctx.Err() == nil {
			s.logger.Error("listener cycle failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

type CycleResult struct {
	Fetched   int
	Stored    int
	Processed int
	Failed    int
	Exported  int
}

// RunCycle fetches new mail, processes pending emails and, when enabled,
// exports every processed estimate.
func (s *Service) RunCycle(ctx context.Context) error {
	_, err := s.runCycle(ctx)
	return err
}

func (s *Service) runCycle(ctx context.Context) (CycleResult, error) {
	var out CycleResult
	provider := strings.ToLower(strings.TrimSpace(s.cfg.MailListenerProvider))
	conn, err := s.connect(ctx, provider)
	if err != nil {
		return out, err
	}

	fetched, err := connectors.NewFetchService(s.db, s.blobs, conn).FetchAndStore(ctx, s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return out, fmt.Errorf("fetch: %w", err)
	}
	out.Fetched, out.Stored = fetched.Fetched, fetched.Stored

	results, err := s.processor.ProcessPending(ctx, s.cfg.MailListenerProcessBatch, provider)
	if err != nil {
		return out, fmt.Errorf("process: %w", err)
	}
	for _, r := range results {
		switch r.Status {
		case internal.EmailProcessed:
			out.Processed++
		case internal.EmailFailed:
			out.Failed++
		}
	}

	if s.cfg.MailListenerAutoExport {
		n, err := s.exportProcessed(ctx, provider)
		if err != nil {
			return out, fmt.Errorf("export: %w", err)
		}
		out.Exported = n
	}

	s.logger.Info("listener cycle done", "provider", provider,
		"fetched", out.Fetched, "stored", out.Stored,
		"processed", out.Processed, "failed", out.Failed, "exported", out.Exported)
	return out, nil
}

func (s *Service) exportProcessed(ctx context.Context, provider string) (int, error) {
	emails, err := s.db.ListEmailsByStatus(internal.EmailProcessed, 200)
	if err != nil {
		return 0, err
	}

	exported := 0
	for _, email := range emails {
		if email.Provider != provider || email.EstimateID == nil {
			continue
		}
		est, err := s.db.LoadEstimate(*email.EstimateID)
		if err != nil {
			return exported, err
		}
		book, err := pipeline.RenderEstimateXLSX(est, s.cfg.FilterMeters())
		if err != nil {
			return exported, err
		}
		if _, err := s.blobs.Put(ctx, pipeline.ExportKey(est.ID), book, pipeline.XLSXContentType); err != nil {
			return exported, err
		}
		if s.cfg.OutputDir != "" {
			name := fmt.Sprintf("%d_%s.xlsx", email.ID, sanitizeMessageID(email.MessageID))
			path := filepath.Join(s.cfg.OutputDir, "listener", name)
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return exported, err
			}
			if err := os.WriteFile(path, book, 0o644); err != nil {
				return exported, err
			}
		}
		if err := s.db.UpdateEmailStatus(email.ID, internal.EmailExported); err != nil {
			return exported, err
		}
		s.metrics.EmailHandled(string(internal.EmailExported))
		exported++
	}
	return exported, nil
}

func sanitizeMessageID(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_", "@", "_")
	out := repl.Replace(input)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
