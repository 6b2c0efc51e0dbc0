package audit

import (
	"context"
	"time"
)

const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Record is one run of the search pipeline. Violations and SQL are kept here
// and never returned to the caller that issued the search.
type Record struct {
	ID         int64     `json:"id"`
	RequestID  string    `json:"request_id"`
	TraceID    string    `json:"trace_id"`
	Command    string    `json:"command"`
	SQL        string    `json:"sql"`
	Safe       bool      `json:"safe"`
	Violations []string  `json:"violations"`
	Stage      string    `json:"stage"`
	Outcome    string    `json:"outcome"`
	RowCount   int       `json:"row_count"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

type Recorder interface {
	Record(ctx context.Context, record Record) error
}

// NopRecorder drops records; it is used when auditing is disabled.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Record) error { return nil }
