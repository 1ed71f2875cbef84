package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/examcourse-backend/internal/inference/engine"
)

// Reply is one scripted outcome. A non-nil Err is returned instead of Text.
type Reply struct {
	Text  string
	Err   error
	Delay time.Duration
}

// Engine replays scripted replies in order, then falls back to Respond (or an echo).
// It is safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	script   []Reply
	requests []engine.ChatRequest

	// Respond, when set, answers every request after the script is exhausted.
	Respond func(req engine.ChatRequest) (string, error)
}

func New(script ...Reply) *Engine {
	return &Engine{script: script}
}

func (e *Engine) Push(replies ...Reply) {
	e.mu.Lock()
	e.script = append(e.script, replies...)
	e.mu.Unlock()
}

func (e *Engine) Requests() []engine.ChatRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]engine.ChatRequest, len(e.requests))
	copy(out, e.requests)
	return out
}

func (e *Engine) SendChat(ctx context.Context, req engine.ChatRequest) (string, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	var next *Reply
	if len(e.script) > 0 {
		r := e.script[0]
		e.script = e.script[1:]
		next = &r
	}
	respond := e.Respond
	e.mu.Unlock()

	if next == nil {
		if respond != nil {
			return respond(req)
		}
		return fmt.Sprintf("mock: %s", strings.TrimSpace(req.Prompt)), nil
	}
	if next.Delay > 0 {
		t := time.NewTimer(next.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}
	if next.Err != nil {
		return "", next.Err
	}
	if strings.TrimSpace(next.Text) == "" {
		return "", fmt.Errorf("mock: empty completion")
	}
	return next.Text, nil
}
