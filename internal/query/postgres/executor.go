package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopdesk/shopdesk/internal/query"
	"github.com/shopdesk/shopdesk/internal/safety"
)

const executorName = "postgres"

type Config struct {
	StatementTimeout time.Duration
	RowCap           int
}

// Executor runs approved queries in read-only transactions with a
// per-transaction statement timeout.
type Executor struct {
	db               *sql.DB
	statementTimeout time.Duration
	rowCap           int
}

func NewExecutor(db *sql.DB, cfg Config) *Executor {
	if cfg.StatementTimeout <= 0 {
		cfg.StatementTimeout = 5 * time.Second
	}
	if cfg.RowCap <= 0 {
		cfg.RowCap = 1000
	}
	return &Executor{db: db, statementTimeout: cfg.StatementTimeout, rowCap: cfg.RowCap}
}

func (e *Executor) Execute(ctx context.Context, verdict safety.Verdict) (result query.Result, err error) {
	if err := query.Approve(verdict); err != nil {
		return query.Result{}, err
	}
	started := time.Now()
	defer func() { query.Observe(executorName, result, err, time.Since(started)) }()

	// The server-side timeout cancels the statement; the context deadline
	// covers a server that never answers.
	ctx, cancel := context.WithTimeout(ctx, e.statementTimeout+time.Second)
	defer cancel()

	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return query.Result{}, &query.ExecutionError{Op: "begin", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", e.statementTimeout.Milliseconds())); err != nil {
		return query.Result{}, &query.ExecutionError{Op: "set statement timeout", Err: err}
	}

	rows, err := tx.QueryContext(ctx, verdict.SQL(), verdict.Params()...)
	if err != nil {
		return query.Result{}, &query.ExecutionError{Op: "execute", Err: err}
	}
	defer func() { _ = rows.Close() }()

	result, err = query.Collect(rows, e.rowCap)
	if err != nil {
		return query.Result{}, err
	}
	if err := rows.Close(); err != nil {
		return query.Result{}, &query.ExecutionError{Op: "close rows", Err: err}
	}
	result.Duration = time.Since(started)
	return result, nil
}

func (e *Executor) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}
