package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/shopdesk/shopdesk/internal/config"
	"github.com/shopdesk/shopdesk/internal/migrations"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var timeout time.Duration
	root := &cobra.Command{
		Use:           "shopdesk-migrate",
		Short:         "Manage the gateway audit schema (SHOPDESK_AUDIT_DSN)",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline")

	withDB := func(run func(ctx context.Context, db *sql.DB, runner *migrations.Runner) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			db, err := openAuditDB(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			return run(ctx, db, migrations.NewRunner())
		}
	}

	var upSteps int
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: withDB(func(ctx context.Context, db *sql.DB, runner *migrations.Runner) error {
			applied, err := runner.Up(ctx, db, upSteps)
			if err != nil {
				return fmt.Errorf("migration up failed: %w", err)
			}
			fmt.Printf("applied %d migration(s)\n", applied)
			return nil
		}),
	}
	up.Flags().IntVar(&upSteps, "steps", 0, "number of migrations to apply; 0 applies all")

	var downSteps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		Args:  cobra.NoArgs,
		RunE: withDB(func(ctx context.Context, db *sql.DB, runner *migrations.Runner) error {
			rolledBack, err := runner.Down(ctx, db, downSteps)
			if err != nil {
				return fmt.Errorf("migration down failed: %w", err)
			}
			fmt.Printf("rolled back %d migration(s)\n", rolledBack)
			return nil
		}),
	}
	down.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to roll back")

	status := &cobra.Command{
		Use:   "status",
		Short: "Print applied and pending migrations as JSON",
		Args:  cobra.NoArgs,
		RunE: withDB(func(ctx context.Context, db *sql.DB, runner *migrations.Runner) error {
			statuses, err := runner.Status(ctx, db)
			if err != nil {
				return fmt.Errorf("migration status failed: %w", err)
			}
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(statuses)
		}),
	}

	root.AddCommand(up, down, status)
	return root
}

func openAuditDB(ctx context.Context) (*sql.DB, error) {
	cfg, err := config.LoadFromEnv("shopdesk-migrate")
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if cfg.Audit.DSN == "" {
		return nil, fmt.Errorf("SHOPDESK_AUDIT_DSN is required")
	}
	db, err := sql.Open("pgx", cfg.Audit.DSN)
	if err != nil {
		return nil, fmt.Errorf("database open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database ping error: %w", err)
	}
	return db, nil
}
