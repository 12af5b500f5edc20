package pipeline

import "fmt"

// Kind classifies a failed request. Classification ambiguity is not a
// failure: unknown intent is handled as conversation.
type Kind string

const (
	GenerationFailure   Kind = "generation_failure"
	ValidationRejection Kind = "validation_rejection"
	ExecutionFailure    Kind = "execution_failure"
	SynthesisFailure    Kind = "synthesis_failure"
	InternalFailure     Kind = "internal_failure"
)

type StageError struct {
	Kind    Kind
	Stage   string
	Message string
	Cause   error
}

func (e *StageError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s at %s: %s", e.Kind, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s at %s: %s: %v", e.Kind, e.Stage, e.Message, e.Cause)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

func stageError(kind Kind, stage, message string, cause error) *StageError {
	return &StageError{Kind: kind, Stage: stage, Message: message, Cause: cause}
}
