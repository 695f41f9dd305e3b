package types

import "fmt"

// PipelineError is the user-visible failure shape. Consumers render the
// message instead of crashing on an opaque fault.
type PipelineError struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

func Errf(stage string, format string, args ...any) *PipelineError {
	return &PipelineError{
		Stage:   stage,
		Message: fmt.Sprintf(format, args...),
	}
}
