package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopdesk/shopdesk/internal/audit"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping audit db: %w", err)
	}
	return nil
}

func (r *Repository) Record(ctx context.Context, record audit.Record) error {
	violations := record.Violations
	if violations == nil {
		violations = []string{}
	}
	violationsJSON, err := json.Marshal(violations)
	if err != nil {
		return fmt.Errorf("marshal audit violations: %w", err)
	}

	query := `
INSERT INTO gateway_audit (request_id, trace_id, command, sql_text, safe, violations, stage, outcome, row_count, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10)
RETURNING id`
	var id int64
	if err := r.db.QueryRowContext(ctx, query,
		record.RequestID,
		record.TraceID,
		record.Command,
		record.SQL,
		record.Safe,
		string(violationsJSON),
		record.Stage,
		record.Outcome,
		record.RowCount,
		record.DurationMS,
	).Scan(&id); err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (r *Repository) ListArchivable(ctx context.Context, before time.Time, limit int) ([]audit.Record, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, request_id, trace_id, command, sql_text, safe, violations, stage, outcome, row_count, duration_ms, created_at
FROM gateway_audit
WHERE created_at < $1
ORDER BY id
LIMIT $2`, before.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list archivable audit records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]audit.Record, 0, limit)
	for rows.Next() {
		var record audit.Record
		var violationsJSON []byte
		if err := rows.Scan(
			&record.ID,
			&record.RequestID,
			&record.TraceID,
			&record.Command,
			&record.SQL,
			&record.Safe,
			&violationsJSON,
			&record.Stage,
			&record.Outcome,
			&record.RowCount,
			&record.DurationMS,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		if len(violationsJSON) > 0 {
			if err := json.Unmarshal(violationsJSON, &record.Violations); err != nil {
				return nil, fmt.Errorf("decode violations for audit record %d: %w", record.ID, err)
			}
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return out, nil
}

func (r *Repository) DeleteArchived(ctx context.Context, firstID, lastID int64, before time.Time) (int64, error) {
	if firstID > lastID {
		return 0, fmt.Errorf("invalid id range %d-%d", firstID, lastID)
	}
	result, err := r.db.ExecContext(ctx, `
DELETE FROM gateway_audit
WHERE id BETWEEN $1 AND $2
  AND created_at < $3`, firstID, lastID, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete archived audit records: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete archived audit records rows affected: %w", err)
	}
	return affected, nil
}
