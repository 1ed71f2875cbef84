package anthropic

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/yungbote/examcourse-backend/internal/inference/config"
	"github.com/yungbote/examcourse-backend/internal/inference/engine"
)

const defaultMaxTokens = 4096

const jsonInstruction = "Respond with a single JSON value only. Do not wrap it in markdown or add commentary."

// Engine binds the Anthropic Messages API. max_tokens is mandatory there, so a zero limit
// falls back to defaultMaxTokens.
type Engine struct {
	client sdk.Client
}

func New(cfg config.EngineConfig, extra ...option.RequestOption) (*Engine, error) {
	opts := make([]option.RequestOption, 0, 2+len(extra))
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	// Retries belong to the gateway.
	opts = append(opts, option.WithMaxRetries(0))
	opts = append(opts, extra...)
	return &Engine{client: sdk.NewClient(opts...)}, nil
}

func (e *Engine) SendChat(ctx context.Context, req engine.ChatRequest) (string, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", errors.New("anthropic: empty prompt")
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	system := strings.TrimSpace(req.SystemPrompt)
	if req.ResponseFormat == engine.FormatJSON {
		system = strings.TrimSpace(system + "\n\n" + jsonInstruction)
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}

	msg, err := e.client.Messages.New(ctx, params)
	if err != nil {
		return "", wrapError(err)
	}
	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(out.String()) == "" {
		return "", errors.New("anthropic: no text content in response")
	}
	return out.String(), nil
}
