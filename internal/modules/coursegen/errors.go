package coursegen

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/yungbote/examcourse-backend/internal/inference/gateway"
	"github.com/yungbote/examcourse-backend/internal/modules/coursegen/llmjson"
)

// RunError is a failed run. Phase is one of the exam.Phase* constants.
type RunError struct {
	RunID string
	Phase string
	Err   error
}

func (e *RunError) Error() string {
	if e == nil {
		return "course generation failed"
	}
	return fmt.Sprintf("course generation failed in %s: %v", e.Phase, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Status maps the underlying cause to an HTTP status and error code.
func (e *RunError) Status() (int, string) {
	var (
		genErr   *gateway.GenerationError
		parseErr *llmjson.ParseError
		valErr   *llmjson.ValidationError
	)
	switch {
	case errors.As(e.Err, &genErr):
		return http.StatusBadGateway, "generation_failed"
	case errors.As(e.Err, &parseErr), errors.As(e.Err, &valErr):
		return http.StatusBadGateway, "invalid_generation"
	default:
		return http.StatusInternalServerError, "course_generation_failed"
	}
}
