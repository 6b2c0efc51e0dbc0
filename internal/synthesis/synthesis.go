package synthesis

import (
	"context"
	"errors"
	"fmt"
)

type TableHint struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Columns     []string `json:"columns"`
}

// Request carries the full original command text plus whatever the caller
// knows about its context.
type Request struct {
	Command     string            `json:"command"`
	CurrentPage string            `json:"current_page,omitempty"`
	EntityIDs   map[string]string `json:"entity_ids,omitempty"`
	Tables      []TableHint       `json:"tables"`
	MaxLimit    int               `json:"max_limit"`
}

// GeneratedQuery is a candidate query. It is untrusted until validated.
type GeneratedQuery struct {
	SQL            string `json:"sql"`
	Parameters     []any  `json:"parameters"`
	Interpretation string `json:"interpretation"`
	Entity         string `json:"entity"`
	EstimatedCount *int   `json:"estimated_count,omitempty"`
	Provider       string `json:"provider"`
	Model          string `json:"model"`
}

type Prompt struct {
	System string
	User   string
}

type Completion struct {
	Text     string
	Provider string
	Model    string
}

// Capability is one external text-generation backend.
type Capability interface {
	Complete(ctx context.Context, prompt Prompt) (Completion, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (GeneratedQuery, error)
}

type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindTransport ErrorKind = "transport"
	KindMalformed ErrorKind = "malformed"
	KindBusy      ErrorKind = "busy"
	KindCanceled  ErrorKind = "canceled"
)

type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("synthesis %s", e.Kind)
	}
	return fmt.Sprintf("synthesis %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindTransport
}

// KindOf returns the kind of a synthesis error, or "" when err is not one.
func KindOf(err error) ErrorKind {
	var synthErr *Error
	if errors.As(err, &synthErr) {
		return synthErr.Kind
	}
	return ""
}
