package engine

import "context"

type ResponseFormat string

const (
	FormatText ResponseFormat = "text"
	FormatJSON ResponseFormat = "json"
)

type ChatRequest struct {
	Model          string
	SystemPrompt   string
	Prompt         string
	MaxTokens      int
	ResponseFormat ResponseFormat
	Temperature    float64
}

// Engine is the capability every provider binding implements. Implementations shape the
// request for their provider and must return non-empty text or an error.
type Engine interface {
	SendChat(ctx context.Context, req ChatRequest) (string, error)
}
