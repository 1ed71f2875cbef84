package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/examcourse-backend/internal/inference/engine"
	"github.com/yungbote/examcourse-backend/internal/inference/router"
	"github.com/yungbote/examcourse-backend/internal/platform/httpx"
	"github.com/yungbote/examcourse-backend/internal/platform/logger"
)

type CallOptions struct {
	// Label names the call site in logs and spans, e.g. "topic_detection.batch_2".
	Label          string
	Prompt         string
	SystemPrompt   string
	MaxTokens      int
	Temperature    float64
	Timeout        time.Duration
	Retries        int
	ResponseFormat engine.ResponseFormat
}

// GenerationError means a provider call failed for good: retries were exhausted or the
// failure was not retryable. Err is the last underlying cause.
type GenerationError struct {
	Provider string
	Label    string
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	if e == nil {
		return "generation failed"
	}
	return fmt.Sprintf("generation failed (provider=%s call=%s attempts=%d): %v", e.Provider, e.Label, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

var errEmptyCompletion = errors.New("empty completion")

// Caller is what orchestrators depend on.
type Caller interface {
	Call(ctx context.Context, provider string, opts CallOptions) (string, error)
}

type Gateway struct {
	router      *router.Router
	log         *logger.Logger
	tracer      trace.Tracer
	backoffUnit time.Duration
}

type Option func(*Gateway)

// WithBackoffUnit scales the 2^attempt backoff; the default unit is one second.
func WithBackoffUnit(d time.Duration) Option {
	return func(g *Gateway) {
		if d >= 0 {
			g.backoffUnit = d
		}
	}
}

func New(r *router.Router, log *logger.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		router:      r,
		log:         log.With("component", "GenerationGateway"),
		tracer:      otel.Tracer("examcourse/inference/gateway"),
		backoffUnit: time.Second,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Call sends one chat request to the named provider. Each attempt races the provider
// against opts.Timeout; timeouts and transport failures are retried up to opts.Retries
// extra times with a 2^attempt backoff.
func (g *Gateway) Call(ctx context.Context, provider string, opts CallOptions) (string, error) {
	route, ok := g.router.Route(provider)
	if !ok {
		return "", &GenerationError{Provider: provider, Label: opts.Label, Err: fmt.Errorf("unknown provider %q", provider)}
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.ResponseFormat == "" {
		opts.ResponseFormat = engine.FormatText
	}

	ctx, span := g.tracer.Start(ctx, "gateway.call", trace.WithAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", route.Model),
		attribute.String("llm.call", opts.Label),
		attribute.Int("llm.prompt_bytes", len(opts.Prompt)),
	))
	defer span.End()

	req := engine.ChatRequest{
		Model:          route.Model,
		SystemPrompt:   opts.SystemPrompt,
		Prompt:         opts.Prompt,
		MaxTokens:      opts.MaxTokens,
		Temperature:    opts.Temperature,
		ResponseFormat: opts.ResponseFormat,
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		attempts++
		start := time.Now()
		text, err := g.attempt(ctx, route.Engine, req, opts.Timeout)
		if err == nil {
			span.SetAttributes(attribute.Int("llm.attempts", attempts), attribute.Int("llm.reply_bytes", len(text)))
			g.log.Debug("generation call succeeded",
				"provider", provider,
				"call", opts.Label,
				"attempt", attempts,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return text, nil
		}
		lastErr = err
		if !errors.Is(err, errEmptyCompletion) && !httpx.IsRetryableError(err) {
			g.log.Warn("generation call failed (not retryable)", "provider", provider, "call", opts.Label, "error", err.Error())
			break
		}
		if attempt == opts.Retries {
			break
		}
		sleepFor := g.backoff(attempt)
		g.log.Warn("generation call retrying",
			"provider", provider,
			"call", opts.Label,
			"attempt", attempts,
			"max_retries", opts.Retries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := sleepCtx(ctx, sleepFor); err != nil {
			lastErr = err
			break
		}
	}

	genErr := &GenerationError{Provider: provider, Label: opts.Label, Attempts: attempts, Err: lastErr}
	span.RecordError(genErr)
	span.SetStatus(codes.Error, "generation failed")
	return "", genErr
}

func (g *Gateway) attempt(ctx context.Context, eng engine.Engine, req engine.ChatRequest, timeout time.Duration) (string, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	text, err := eng.SendChat(callCtx, req)
	if err != nil {
		// A provider that ignores ctx may report its own error after our deadline fired.
		if callCtx.Err() != nil && ctx.Err() == nil {
			return "", fmt.Errorf("call timed out after %s: %w", timeout, context.DeadlineExceeded)
		}
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errEmptyCompletion
	}
	return text, nil
}

func (g *Gateway) backoff(attempt int) time.Duration {
	return g.backoffUnit * time.Duration(1<<uint(attempt))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
