package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopdesk/shopdesk/internal/safety"
)

// ErrNotApproved is returned when an executor is handed a verdict that is not safe.
var ErrNotApproved = errors.New("query was not approved by the safety validator")

type Result struct {
	Columns   []string
	Rows      []map[string]any
	RowCount  int
	Duration  time.Duration
	Truncated bool
}

// Executor runs approved queries. The verdict is the only input: executors run
// verdict.SQL() with verdict.Params() and nothing else.
type Executor interface {
	Execute(ctx context.Context, verdict safety.Verdict) (Result, error)
}

// ExecutionError wraps driver failures. Its message is for logs only.
type ExecutionError struct {
	Op  string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query %s: %v", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Approve is the first call of every Execute implementation.
func Approve(verdict safety.Verdict) error {
	if !verdict.Safe() {
		return ErrNotApproved
	}
	return nil
}

// Collect reads at most rowCap rows. When more rows are available the result
// is marked truncated and the rest are left unread.
func Collect(rows *sql.Rows, rowCap int) (Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return Result{}, &ExecutionError{Op: "columns", Err: err}
	}

	out := Result{Columns: columns, Rows: make([]map[string]any, 0)}
	for rows.Next() {
		if rowCap > 0 && len(out.Rows) >= rowCap {
			out.Truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, &ExecutionError{Op: "scan", Err: err}
		}
		row := make(map[string]any, len(columns))
		for i, column := range columns {
			row[column] = normalizeValue(values[i])
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, &ExecutionError{Op: "iterate", Err: err}
	}
	out.RowCount = len(out.Rows)
	return out, nil
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	default:
		return typed
	}
}
