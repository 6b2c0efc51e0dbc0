package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shopdesk/shopdesk/internal/audit"
	"github.com/shopdesk/shopdesk/internal/auth"
	"github.com/shopdesk/shopdesk/internal/command"
	"github.com/shopdesk/shopdesk/internal/observability"
	"github.com/shopdesk/shopdesk/internal/query"
	"github.com/shopdesk/shopdesk/internal/safety"
	"github.com/shopdesk/shopdesk/internal/synthesis"
)

// SearchOutcome is what a search run produced. Interpretation is set as soon
// as synthesis succeeds, so failed searches can still report it.
type SearchOutcome struct {
	RequestID      string           `json:"request_id"`
	Interpretation string           `json:"interpretation"`
	Entity         string           `json:"entity"`
	Results        []map[string]any `json:"results"`
	SQL            string           `json:"sql"`
	Count          int              `json:"count"`
	Truncated      bool             `json:"truncated"`
}

type Service struct {
	Classifier  *command.Classifier
	Synthesizer synthesis.Synthesizer
	Validator   *safety.Validator
	Executor    query.Executor
	Recorder    audit.Recorder
	Tables      []synthesis.TableHint
	Logger      *slog.Logger
	Clock       func() time.Time
}

func (s *Service) validate() error {
	switch {
	case s.Synthesizer == nil:
		return fmt.Errorf("synthesizer is required")
	case s.Validator == nil:
		return fmt.Errorf("validator is required")
	case s.Executor == nil:
		return fmt.Errorf("executor is required")
	}
	return nil
}

func (s *Service) ensureDefaults() {
	if s.Classifier == nil {
		s.Classifier = command.NewClassifier()
	}
	if s.Recorder == nil {
		s.Recorder = audit.NopRecorder{}
	}
	if s.Logger == nil {
		s.Logger = slog.New(slog.DiscardHandler)
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
}

// Handle classifies cmd and, for search intents, runs the search pipeline.
// The Response is always usable; a non-nil error is a *StageError describing
// why a search failed.
func (s *Service) Handle(ctx context.Context, cmd command.Command) (Response, error) {
	s.ensureDefaults()

	intent := s.Classifier.Classify(cmd)
	observability.ObserveCommand(intent.Kind())
	s.Logger.InfoContext(ctx, "command classified",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("subject", auth.SubjectFromContext(ctx)),
		slog.String("intent", intent.Kind()),
	)

	search, ok := intent.(command.Search)
	if !ok {
		return Compose(intent, nil), nil
	}
	outcome, err := s.Search(ctx, cmd)
	if err != nil {
		return Compose(command.Error{Stage: string(StageOf(err))}, nil), err
	}
	return Compose(search, &outcome), nil
}

// Search runs synthesis, validation and execution for cmd. The full raw
// command text is sent to synthesis. The executor is reached only with a safe
// verdict for the exact generated text.
func (s *Service) Search(ctx context.Context, cmd command.Command) (SearchOutcome, error) {
	s.ensureDefaults()
	if err := s.validate(); err != nil {
		return SearchOutcome{}, &StageError{Stage: StageInternal, Err: err}
	}

	start := s.Clock()
	requestID := uuid.NewString()
	traceID := observability.TraceIDFromContext(ctx)
	logger := s.Logger.With(slog.String("request_id", requestID), slog.String("trace_id", traceID))
	record := audit.Record{RequestID: requestID, TraceID: traceID, Command: cmd.Raw()}
	outcome := SearchOutcome{RequestID: requestID}

	outcome, err := s.search(ctx, logger, cmd, outcome, &record)

	elapsed := s.Clock().Sub(start)
	stage := StageOf(err)
	record.Stage = string(stage)
	record.DurationMS = elapsed.Milliseconds()
	switch stage {
	case "":
		record.Outcome = audit.OutcomeOK
	case StageSafety:
		record.Outcome = audit.OutcomeRejected
	default:
		record.Outcome = audit.OutcomeFailed
	}
	observability.ObserveSearch(string(stage), elapsed)
	s.recordAudit(ctx, logger, record)
	return outcome, err
}

func (s *Service) search(ctx context.Context, logger *slog.Logger, cmd command.Command, outcome SearchOutcome, record *audit.Record) (SearchOutcome, error) {
	cmdCtx := cmd.Context()
	generated, err := s.Synthesizer.Synthesize(ctx, synthesis.Request{
		Command:     cmd.Raw(),
		CurrentPage: cmdCtx.CurrentPage,
		EntityIDs:   cmdCtx.EntityIDs,
		Tables:      s.Tables,
		MaxLimit:    s.Validator.MaxLimit(),
	})
	if err != nil {
		logger.WarnContext(ctx, "query synthesis failed",
			slog.String("kind", string(synthesis.KindOf(err))),
			slog.Any("error", err),
		)
		return outcome, &StageError{Stage: StageSynthesis, Err: err}
	}
	outcome.Interpretation = generated.Interpretation
	outcome.Entity = generated.Entity
	record.SQL = generated.SQL

	verdict := s.Validator.Validate(generated.SQL, generated.Parameters)
	record.Safe = verdict.Safe()
	if !verdict.Safe() {
		violations := verdict.Violations()
		record.Violations = make([]string, 0, len(violations))
		for _, violation := range violations {
			record.Violations = append(record.Violations, string(violation.Rule)+": "+violation.Detail)
		}
		observability.ObserveSafetyRejection(verdict.Rules())
		logger.WarnContext(ctx, "generated query rejected",
			slog.String("sql", generated.SQL),
			slog.String("provider", generated.Provider),
			slog.Any("verdict", verdict),
		)
		return outcome, &StageError{Stage: StageSafety, Err: ErrUnsafeQuery}
	}

	result, err := s.Executor.Execute(ctx, verdict)
	if err != nil {
		logger.ErrorContext(ctx, "query execution failed",
			slog.String("sql", verdict.SQL()),
			slog.Any("error", err),
		)
		if errors.Is(err, query.ErrNotApproved) {
			return outcome, &StageError{Stage: StageInternal, Err: err}
		}
		return outcome, &StageError{Stage: StageExecution, Err: err}
	}

	outcome.SQL = verdict.SQL()
	outcome.Results = result.Rows
	outcome.Count = result.RowCount
	outcome.Truncated = result.Truncated
	record.RowCount = result.RowCount
	if result.Truncated {
		logger.WarnContext(ctx, "query result truncated at row cap", slog.Int("rows", result.RowCount))
	}
	return outcome, nil
}

func (s *Service) recordAudit(ctx context.Context, logger *slog.Logger, record audit.Record) {
	// The caller may already be gone; the audit row is still wanted.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.Recorder.Record(auditCtx, record); err != nil {
		observability.IncrementAuditFailure()
		logger.ErrorContext(ctx, "audit record failed", slog.Any("error", err))
	}
}

// TableHints describes the policy's allowed tables to the synthesizer, so the
// prompt and the allow-list cannot disagree.
func TableHints(policy safety.Policy) []synthesis.TableHint {
	hints := make([]synthesis.TableHint, 0, len(policy.Tables))
	for _, table := range policy.Tables {
		hints = append(hints, synthesis.TableHint{
			Name:        table.Name,
			Description: table.Description,
			Columns:     append([]string(nil), table.Columns...),
		})
	}
	return hints
}
