package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"quickestimate/internal/blob"
	"quickestimate/internal/config"
	"quickestimate/internal/extract"
	"quickestimate/internal/listener"
	"quickestimate/internal/metrics"
	"quickestimate/internal/pipeline"
	"quickestimate/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	blobs, err := blob.Open(ctx, cfg)
	must(err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg, logger); err != nil {
				logger.Error("metrics server stopped", "err", err)
			}
		}()
	}

	var images extract.Extractor
	if cfg.GeminiAPIKey != "" {
		images = extract.NewGeminiExtractor(cfg)
	} else {
		logger.Warn("GEMINI_API_KEY not set; emails with sheet photos will fail")
	}

	processor := pipeline.NewProcessingService(db, blobs, cfg, images,
		pipeline.WithLogger(logger), pipeline.WithMetrics(m))
	svc := listener.NewService(db, blobs, cfg, processor,
		listener.WithLogger(logger), listener.WithMetrics(m))

	logger.Info("sheet listener started", "provider", cfg.MailListenerProvider,
		"interval", cfg.MailListenerIntervalSec, "blobs", blobs.Driver())
	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
