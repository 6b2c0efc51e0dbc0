package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"

	"github.com/shopdesk/shopdesk/internal/audit"
)

func TestRecordInsertsViolationsAsJSON(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO gateway_audit (request_id, trace_id, command, sql_text, safe, violations, stage, outcome, row_count, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10)
RETURNING id`)).
		WithArgs("req-1", "trace-1", "find everything", "DELETE FROM customers", false, `["forbidden_keyword: DELETE"]`, "safety", audit.OutcomeRejected, 0, int64(12)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(41)))

	err := repo.Record(context.Background(), audit.Record{
		RequestID:  "req-1",
		TraceID:    "trace-1",
		Command:    "find everything",
		SQL:        "DELETE FROM customers",
		Violations: []string{"forbidden_keyword: DELETE"},
		Stage:      "safety",
		Outcome:    audit.OutcomeRejected,
		DurationMS: 12,
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestRecordWritesEmptyViolationList(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(`INSERT INTO gateway_audit`).
		WithArgs("req-2", "", "show customers", "SELECT id FROM customers LIMIT 5", true, `[]`, "", audit.OutcomeOK, 3, int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	err := repo.Record(context.Background(), audit.Record{
		RequestID:  "req-2",
		Command:    "show customers",
		SQL:        "SELECT id FROM customers LIMIT 5",
		Safe:       true,
		Outcome:    audit.OutcomeOK,
		RowCount:   3,
		DurationMS: 4,
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestRecordWrapsDriverError(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	driverErr := errors.New("connection reset")
	mock.ExpectQuery(`INSERT INTO gateway_audit`).WillReturnError(driverErr)

	err := repo.Record(context.Background(), audit.Record{RequestID: "req-3"})
	if !errors.Is(err, driverErr) {
		t.Fatalf("Record() error = %v, want wrapped %v", err, driverErr)
	}
	assertSQLMock(t, mock)
}

func TestListArchivable(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	before := time.Date(2026, time.September, 19, 0, 0, 0, 0, time.UTC)
	created := before.Add(-48 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT id, request_id, trace_id, command, sql_text, safe, violations, stage, outcome, row_count, duration_ms, created_at
FROM gateway_audit
WHERE created_at < $1
ORDER BY id
LIMIT $2`)).
		WithArgs(before, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "request_id", "trace_id", "command", "sql_text", "safe", "violations", "stage", "outcome", "row_count", "duration_ms", "created_at"}).
			AddRow(int64(1), "req-1", "", "show customers", "SELECT id FROM customers LIMIT 5", true, []byte(`[]`), "", audit.OutcomeOK, 5, int64(9), created).
			AddRow(int64(2), "req-2", "trace-2", "find everything", "DELETE FROM customers", false, []byte(`["statement_shape: DELETE"]`), "safety", audit.OutcomeRejected, 0, int64(3), created))

	records, err := repo.ListArchivable(context.Background(), before, 2)
	if err != nil {
		t.Fatalf("ListArchivable() error = %v", err)
	}
	want := []audit.Record{
		{ID: 1, RequestID: "req-1", Command: "show customers", SQL: "SELECT id FROM customers LIMIT 5", Safe: true, Violations: []string{}, Outcome: audit.OutcomeOK, RowCount: 5, DurationMS: 9, CreatedAt: created},
		{ID: 2, RequestID: "req-2", TraceID: "trace-2", Command: "find everything", SQL: "DELETE FROM customers", Violations: []string{"statement_shape: DELETE"}, Stage: "safety", Outcome: audit.OutcomeRejected, DurationMS: 3, CreatedAt: created},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
	assertSQLMock(t, mock)
}

func TestListArchivableRejectsNonPositiveLimit(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	if _, err := repo.ListArchivable(context.Background(), time.Now(), 0); err == nil {
		t.Fatal("expected error for zero limit")
	}
	assertSQLMock(t, mock)
}

func TestDeleteArchived(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	before := time.Date(2026, time.September, 19, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`
DELETE FROM gateway_audit
WHERE id BETWEEN $1 AND $2
  AND created_at < $3`)).
		WithArgs(int64(10), int64(20), before).
		WillReturnResult(sqlmock.NewResult(0, 11))

	deleted, err := repo.DeleteArchived(context.Background(), 10, 20, before)
	if err != nil {
		t.Fatalf("DeleteArchived() error = %v", err)
	}
	if deleted != 11 {
		t.Fatalf("deleted = %d, want 11", deleted)
	}
	assertSQLMock(t, mock)
}

func TestDeleteArchivedRejectsInvertedRange(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	if _, err := repo.DeleteArchived(context.Background(), 5, 4, time.Now()); err == nil {
		t.Fatal("expected error for inverted range")
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
