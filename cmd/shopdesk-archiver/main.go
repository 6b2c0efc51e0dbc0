package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopdesk/shopdesk/internal/audit"
	auditpostgres "github.com/shopdesk/shopdesk/internal/audit/postgres"
	"github.com/shopdesk/shopdesk/internal/config"
	"github.com/shopdesk/shopdesk/internal/observability"
	querypostgres "github.com/shopdesk/shopdesk/internal/query/postgres"
	s3store "github.com/shopdesk/shopdesk/internal/storage/s3"
)

func main() {
	once := flag.Bool("once", false, "run a single archive cycle and exit")
	flag.Parse()

	cfg, err := config.LoadFromEnv("shopdesk-archiver")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	auditDB, err := querypostgres.Open(ctx, querypostgres.DBConfig{
		DSN:             cfg.Audit.DSN,
		ApplicationName: cfg.Service.Name,
		MaxOpenConns:    cfg.Audit.MaxOpenConns,
	})
	if err != nil {
		logger.Error("failed to open audit db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = auditDB.Close() }()

	objectStore, err := s3store.New(ctx, s3store.ConfigFrom(cfg.ObjectStore))
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	archiver := &audit.Archiver{
		Store:       auditpostgres.NewRepository(auditDB),
		ObjectStore: objectStore,
		Config: audit.ArchiverConfig{
			Interval:      cfg.Audit.ArchiveInterval,
			RetentionAge:  cfg.Audit.RetentionAge,
			BatchSize:     cfg.Audit.BatchSize,
			MaxBatchesRun: cfg.Audit.MaxBatchesPerRun,
		},
		Logger: logger,
	}

	if *once {
		summary, err := archiver.RunOnce(ctx)
		if err != nil {
			logger.Error("audit archive failed", slog.Any("error", err), slog.Any("summary", summary))
			os.Exit(1)
		}
		logger.Info("audit archive completed", slog.Any("summary", summary))
		return
	}

	logger.Info("starting audit archiver",
		slog.Duration("interval", cfg.Audit.ArchiveInterval),
		slog.Duration("retention_age", cfg.Audit.RetentionAge),
	)
	if err := archiver.Run(ctx); err != nil {
		logger.Error("audit archiver stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("audit archiver stopped")
}
