package gateway

import (
	"errors"
	"fmt"
)

type Stage string

const (
	StageSynthesis Stage = "synthesis"
	StageSafety    Stage = "safety"
	StageExecution Stage = "execution"
	StageInternal  Stage = "internal"
)

// ErrUnsafeQuery is the cause of every safety-stage failure. The violated
// rules are logged and audited, never attached to the error.
var ErrUnsafeQuery = errors.New("generated query failed safety validation")

// StageError is the only error type the pipeline returns. Callers translate
// it by Stage; Err is for logs.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf reports the failed stage of err, StageInternal when err did not
// come from the pipeline, and "" for a nil error.
func StageOf(err error) Stage {
	if err == nil {
		return ""
	}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return StageInternal
}
