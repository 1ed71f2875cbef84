package lessons

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/yungbote/examcourse-backend/internal/domain/exam"
	"github.com/yungbote/examcourse-backend/internal/inference/engine"
	"github.com/yungbote/examcourse-backend/internal/inference/gateway"
	"github.com/yungbote/examcourse-backend/internal/modules/coursegen/leakage"
	"github.com/yungbote/examcourse-backend/internal/modules/coursegen/llmjson"
	"github.com/yungbote/examcourse-backend/internal/platform/logger"
)

type Config struct {
	Provider    string
	Timeout     time.Duration
	Retries     int
	MaxTokens   int
	Temperature float64

	// Window lessons are requested concurrently; WindowDelay separates windows.
	Window      int
	WindowDelay time.Duration

	MinWords int
	MaxWords int
}

// Metadata is stored as JSON alongside each section.
type Metadata struct {
	Leakage       leakage.Report `json:"leakage"`
	QuestionCount int            `json:"question_count"`
	Concepts      []string       `json:"concepts,omitempty"`
	Recovery      bool           `json:"recovery,omitempty"`
}

type Generator struct {
	gw     gateway.Caller
	cfg    Config
	leak   leakage.Detector
	log    *logger.Logger
	tracer trace.Tracer
	sleep  func(context.Context, time.Duration) error
}

func NewGenerator(gw gateway.Caller, cfg Config, leak leakage.Detector, log *logger.Logger) *Generator {
	if cfg.Window <= 0 {
		cfg.Window = 3
	}
	return &Generator{
		gw:     gw,
		cfg:    cfg,
		leak:   leak,
		log:    log.With("component", "LessonGenerator"),
		tracer: otel.Tracer("examcourse/coursegen/lessons"),
		sleep:  sleepCtx,
	}
}

// Generate writes one lesson per topic, in windows of cfg.Window concurrent calls. The
// first failure cancels the rest of its window and fails the whole batch; no sections
// are returned unless every topic succeeded. OrderIndex is the topic's position.
func (g *Generator) Generate(ctx context.Context, topics []exam.DetectedTopic, questionsByID map[string]exam.Question) ([]exam.LessonSection, error) {
	ctx, span := g.tracer.Start(ctx, "lessons.generate", trace.WithAttributes(
		attribute.Int("lessons.topics", len(topics)),
		attribute.Int("lessons.window", g.cfg.Window),
	))
	defer span.End()

	out := make([]exam.LessonSection, len(topics))
	for start := 0; start < len(topics); start += g.cfg.Window {
		if start > 0 && g.cfg.WindowDelay > 0 {
			if err := g.sleep(ctx, g.cfg.WindowDelay); err != nil {
				return nil, err
			}
		}
		end := start + g.cfg.Window
		if end > len(topics) {
			end = len(topics)
		}

		eg, egctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			eg.Go(func() error {
				sec, err := g.one(egctx, i, topics[i], questionsByID)
				if err != nil {
					return err
				}
				out[i] = sec
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "lesson generation failed")
			return nil, err
		}
		g.log.Debug("lesson window done", "from", start, "to", end, "total", len(topics))
	}
	return out, nil
}

func (g *Generator) one(ctx context.Context, idx int, topic exam.DetectedTopic, questionsByID map[string]exam.Question) (exam.LessonSection, error) {
	qs := make([]exam.Question, 0, len(topic.QuestionIDs))
	for _, id := range topic.QuestionIDs {
		if q, ok := questionsByID[id]; ok {
			qs = append(qs, q)
		}
	}

	label := fmt.Sprintf("lesson.%d", idx+1)
	raw, err := g.gw.Call(ctx, g.cfg.Provider, gateway.CallOptions{
		Label:          label,
		Prompt:         lessonPrompt(topic, qs, g.cfg.MinWords, g.cfg.MaxWords),
		SystemPrompt:   systemPrompt,
		MaxTokens:      g.cfg.MaxTokens,
		Temperature:    g.cfg.Temperature,
		Timeout:        g.cfg.Timeout,
		Retries:        g.cfg.Retries,
		ResponseFormat: engine.FormatText,
	})
	if err != nil {
		return exam.LessonSection{}, err
	}

	md := llmjson.StripFence(raw)
	if err := ValidateLesson(md, topic.Name, g.cfg.MinWords, g.cfg.MaxWords); err != nil {
		return exam.LessonSection{}, err
	}

	rep := g.leak.Detect(md, leakage.SourcesFor(qs))
	if rep.HasLeakage {
		g.log.Warn("lesson may leak question text",
			"topic", topic.Name,
			"similarity", rep.Similarity,
			"details", rep.Details,
		)
	}

	meta, err := json.Marshal(Metadata{
		Leakage:       rep,
		QuestionCount: len(qs),
		Concepts:      topic.Concepts,
		Recovery:      topic.Recovery,
	})
	if err != nil {
		return exam.LessonSection{}, err
	}
	return exam.LessonSection{
		TopicName:       topic.Name,
		ContentMarkdown: md,
		OrderIndex:      idx,
		WordCount:       WordCount(md),
		Metadata:        datatypes.JSON(meta),
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
