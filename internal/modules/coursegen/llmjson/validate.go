package llmjson

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationError reports a well-formed reply that breaks a shape or content rule.
type ValidationError struct {
	Stage    string
	Problems []string
}

func (e *ValidationError) Error() string {
	stage := e.Stage
	if stage == "" {
		stage = "reply"
	}
	if len(e.Problems) == 0 {
		return fmt.Sprintf("%s failed validation", stage)
	}
	return fmt.Sprintf("%s failed validation: %s", stage, strings.Join(e.Problems, "; "))
}

// Invalid builds a ValidationError, or returns nil when there are no problems.
func Invalid(stage string, problems ...string) error {
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Stage: stage, Problems: problems}
}

// ValidateSchema checks body (already fence-stripped JSON) against a JSON schema document.
func ValidateSchema(stage string, schema map[string]any, body []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewBytesLoader(body),
	)
	if err != nil {
		return &ParseError{Excerpt: excerpt(string(body)), Err: err}
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return &ValidationError{Stage: stage, Problems: problems}
}

// DecodeValidated strips the fence, validates against schema, then decodes into T.
func DecodeValidated[T any](stage string, schema map[string]any, raw string) (T, error) {
	var zero T
	body := StripFence(raw)
	if body == "" {
		return zero, &ParseError{Err: fmt.Errorf("empty reply")}
	}
	if err := ValidateSchema(stage, schema, []byte(body)); err != nil {
		return zero, err
	}
	return Decode[T](body)
}
