package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopdesk/shopdesk/internal/api"
	"github.com/shopdesk/shopdesk/internal/audit"
	auditpostgres "github.com/shopdesk/shopdesk/internal/audit/postgres"
	"github.com/shopdesk/shopdesk/internal/auth"
	"github.com/shopdesk/shopdesk/internal/command"
	"github.com/shopdesk/shopdesk/internal/config"
	"github.com/shopdesk/shopdesk/internal/gateway"
	"github.com/shopdesk/shopdesk/internal/observability"
	querypostgres "github.com/shopdesk/shopdesk/internal/query/postgres"
	"github.com/shopdesk/shopdesk/internal/safety"
)

func main() {
	cfg, err := config.LoadFromEnv("shopdesk-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), time.Minute)
	defer cancelStartup()

	policy, err := safety.LoadPolicy(cfg.Safety.PolicyPath)
	if err != nil {
		logger.Error("failed to load safety policy", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.Safety.MaxLimit > 0 {
		policy.MaxLimit = cfg.Safety.MaxLimit
	}

	executor, err := openExecutor(startupCtx, cfg, policy, logger)
	if err != nil {
		logger.Error("failed to open search executor", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = executor.Close() }()

	synthesizer, err := newSynthesizer(startupCtx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize query synthesis", slog.Any("error", err))
		os.Exit(1)
	}

	readiness := []api.ReadinessCheck{executor.Ping}
	var recorder audit.Recorder = audit.NopRecorder{}
	if cfg.Audit.Enabled {
		auditDB, err := querypostgres.Open(startupCtx, querypostgres.DBConfig{
			DSN:             cfg.Audit.DSN,
			ApplicationName: cfg.Service.Name,
			MaxOpenConns:    cfg.Audit.MaxOpenConns,
		})
		if err != nil {
			logger.Error("failed to open audit db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = auditDB.Close() }()
		repo := auditpostgres.NewRepository(auditDB)
		recorder = repo
		readiness = append(readiness, repo.HealthCheck)
	}

	service := &gateway.Service{
		Classifier:  command.NewClassifier(),
		Synthesizer: synthesizer,
		Validator:   safety.NewValidator(policy),
		Executor:    executor,
		Recorder:    recorder,
		Tables:      gateway.TableHints(policy),
		Logger:      logger,
	}

	deps := api.Dependencies{
		Logger:            logger,
		Gateway:           service,
		Readiness:         api.CombineReadinessChecks(readiness...),
		DependencyTimeout: 2 * time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		authenticate := auth.Middleware(logger, validator)
		authorize := auth.RequireRole(logger, auth.RoleGatewayUser)
		deps.AuthMiddleware = func(next http.Handler) http.Handler {
			return authenticate(authorize(next))
		}
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting gateway server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("driver", cfg.Database.Driver),
			slog.String("synthesis_provider", cfg.Synthesis.Provider),
			slog.Any("tables", policy.TableNames()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("gateway server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down gateway server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
