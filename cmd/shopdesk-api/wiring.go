package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/shopdesk/shopdesk/internal/config"
	"github.com/shopdesk/shopdesk/internal/query"
	"github.com/shopdesk/shopdesk/internal/query/duckdb"
	querypostgres "github.com/shopdesk/shopdesk/internal/query/postgres"
	"github.com/shopdesk/shopdesk/internal/safety"
	"github.com/shopdesk/shopdesk/internal/storage"
	s3store "github.com/shopdesk/shopdesk/internal/storage/s3"
	"github.com/shopdesk/shopdesk/internal/synthesis"
)

type searchExecutor interface {
	query.Executor
	Ping(ctx context.Context) error
	Close() error
}

type postgresExecutor struct {
	*querypostgres.Executor
	db *sql.DB
}

func (p postgresExecutor) Close() error {
	return p.db.Close()
}

func openExecutor(ctx context.Context, cfg config.Config, policy safety.Policy, logger *slog.Logger) (searchExecutor, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := querypostgres.Open(ctx, querypostgres.DBConfig{
			DSN:             cfg.Database.DSN,
			ApplicationName: cfg.Service.Name,
			ReadOnly:        true,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		executor := querypostgres.NewExecutor(db, querypostgres.Config{
			StatementTimeout: cfg.Database.StatementTimeout,
			RowCap:           cfg.Database.RowCap,
		})
		return postgresExecutor{Executor: executor, db: db}, nil
	case config.DriverDuckDB:
		store, err := s3store.New(ctx, s3store.ConfigFrom(cfg.ObjectStore))
		if err != nil {
			return nil, fmt.Errorf("initialize object store: %w", err)
		}
		snapshots := make([]duckdb.Snapshot, 0, len(policy.Tables))
		for _, table := range policy.TableNames() {
			objectPath, err := storage.BuildSnapshotPath(cfg.Database.SnapshotPrefix, table)
			if err != nil {
				return nil, err
			}
			snapshots = append(snapshots, duckdb.Snapshot{Table: table, ObjectPath: objectPath})
		}
		executor, err := duckdb.Load(ctx, store, snapshots, duckdb.Config{
			StatementTimeout: cfg.Database.StatementTimeout,
			RowCap:           cfg.Database.RowCap,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("loaded table snapshots",
			slog.Any("tables", executor.Tables()),
			slog.Int64("bytes", executor.LoadedBytes()),
		)
		return executor, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

func newSynthesizer(ctx context.Context, cfg config.Config, logger *slog.Logger) (*synthesis.Client, error) {
	var capability synthesis.Capability
	switch cfg.Synthesis.Provider {
	case config.ProviderOpenAI:
		openai, err := synthesis.NewOpenAICapability(synthesis.OpenAIConfig{
			BaseURL:     cfg.Synthesis.BaseURL,
			APIKey:      cfg.Synthesis.APIKey,
			Model:       cfg.Synthesis.Model,
			Temperature: cfg.Synthesis.Temperature,
			Timeout:     cfg.Synthesis.Timeout,
		})
		if err != nil {
			return nil, err
		}
		capability = openai
	case config.ProviderGemini:
		gemini, err := synthesis.NewGeminiCapability(ctx, synthesis.GeminiConfig{
			APIKey:      cfg.Synthesis.APIKey,
			Model:       cfg.Synthesis.Model,
			Temperature: cfg.Synthesis.Temperature,
		})
		if err != nil {
			return nil, err
		}
		capability = gemini
	default:
		return nil, fmt.Errorf("unsupported synthesis provider %q", cfg.Synthesis.Provider)
	}
	return synthesis.NewClient(capability, synthesis.Config{
		Timeout:       cfg.Synthesis.Timeout,
		MaxConcurrent: cfg.Synthesis.MaxConcurrent,
		Retries:       cfg.Synthesis.Retries,
		RetryBackoff:  cfg.Synthesis.RetryBackoff,
	}, logger)
}
