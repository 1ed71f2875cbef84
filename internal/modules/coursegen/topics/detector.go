package topics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/examcourse-backend/internal/domain/exam"
	"github.com/yungbote/examcourse-backend/internal/inference/engine"
	"github.com/yungbote/examcourse-backend/internal/inference/gateway"
	"github.com/yungbote/examcourse-backend/internal/modules/coursegen/assign"
	"github.com/yungbote/examcourse-backend/internal/modules/coursegen/llmjson"
	"github.com/yungbote/examcourse-backend/internal/platform/logger"
)

const (
	ModeSingle  = "single"
	ModeBatched = "batched"
)

type Config struct {
	Provider    string
	Timeout     time.Duration
	Retries     int
	MaxTokens   int
	Temperature float64

	// Question sets larger than BatchThreshold are split into BatchSize batches.
	BatchThreshold int
	BatchSize      int
	BatchDelay     time.Duration

	MinTopics   int
	MaxTopics   int
	MaxConcepts int

	RecoveryTopicName string
}

type Result struct {
	Topics   []exam.DetectedTopic       `json:"topics"`
	Stats    assign.Stats               `json:"stats"`
	Warnings []assign.AssignmentWarning `json:"warnings,omitempty"`
	Mode     string                     `json:"mode"`
	Batches  int                        `json:"batches"`
	// Dropped lists detected topics that lost every question to earlier claims.
	Dropped []string `json:"dropped,omitempty"`
}

type Detector struct {
	gw     gateway.Caller
	cfg    Config
	log    *logger.Logger
	tracer trace.Tracer
	sleep  func(context.Context, time.Duration) error
}

func NewDetector(gw gateway.Caller, cfg Config, log *logger.Logger) *Detector {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 40
	}
	if cfg.BatchThreshold <= 0 {
		cfg.BatchThreshold = 100
	}
	if cfg.RecoveryTopicName == "" {
		cfg.RecoveryTopicName = "Additional Practice"
	}
	return &Detector{
		gw:     gw,
		cfg:    cfg,
		log:    log.With("component", "TopicDetector"),
		tracer: otel.Tracer("examcourse/coursegen/topics"),
		sleep:  sleepCtx,
	}
}

// Detect partitions questions into named topics. Any gateway, parse or validation failure
// aborts detection; unclaimed questions are gathered into a recovery topic instead.
// The returned topics contain every input question exactly once.
func (d *Detector) Detect(ctx context.Context, questions []exam.Question) (*Result, error) {
	if len(questions) == 0 {
		return nil, llmjson.Invalid("topic_detection", "no questions to group")
	}

	mode := ModeSingle
	batches := [][]exam.Question{questions}
	if len(questions) > d.cfg.BatchThreshold {
		mode = ModeBatched
		batches = chunk(questions, d.cfg.BatchSize)
	}

	ctx, span := d.tracer.Start(ctx, "topics.detect", trace.WithAttributes(
		attribute.String("detect.mode", mode),
		attribute.Int("detect.questions", len(questions)),
		attribute.Int("detect.batches", len(batches)),
	))
	defer span.End()

	res, err := d.run(ctx, mode, questions, batches)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "topic detection failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("detect.topics", len(res.Topics)))
	return res, nil
}

func (d *Detector) run(ctx context.Context, mode string, questions []exam.Question, batches [][]exam.Question) (*Result, error) {
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.ID)
	}
	tracker := assign.New(ids)
	acc := NewAccumulator(d.cfg.MaxConcepts)

	for i, batch := range batches {
		if i > 0 && d.cfg.BatchDelay > 0 {
			if err := d.sleep(ctx, d.cfg.BatchDelay); err != nil {
				return nil, err
			}
		}

		label := "topic_detection"
		var prompt string
		switch {
		case mode == ModeSingle:
			prompt = singlePrompt(batch, d.cfg.MinTopics, d.cfg.MaxTopics, d.cfg.MaxConcepts)
		case i == 0:
			label = fmt.Sprintf("topic_detection.batch_%d", i+1)
			prompt = seedPrompt(batch, i+1, len(batches), d.cfg.MaxConcepts)
		default:
			label = fmt.Sprintf("topic_detection.batch_%d", i+1)
			prompt = continuePrompt(batch, i+1, len(batches), d.cfg.MaxConcepts, acc.Names())
		}

		raw, err := d.gw.Call(ctx, d.cfg.Provider, gateway.CallOptions{
			Label:          label,
			Prompt:         prompt,
			SystemPrompt:   systemPrompt,
			MaxTokens:      d.cfg.MaxTokens,
			Temperature:    d.cfg.Temperature,
			Timeout:        d.cfg.Timeout,
			Retries:        d.cfg.Retries,
			ResponseFormat: engine.FormatJSON,
		})
		if err != nil {
			return nil, err
		}
		reply, err := llmjson.DecodeValidated[detectionReply](label, detectionSchema(), raw)
		if err != nil {
			return nil, err
		}
		detected := reply.detected()
		if err := d.checkBatch(label, mode, i, detected); err != nil {
			return nil, err
		}

		acc = Fold(acc, detected)
		for _, t := range detected {
			name := acc.Canonical(t.Name)
			r := tracker.Assign(name, t.QuestionIDs)
			if r.Duplicates > 0 || r.Invalid > 0 {
				d.log.Warn("discarded question claims",
					"call", label,
					"topic", name,
					"duplicates", r.DuplicateIDs,
					"invalid", r.InvalidIDs,
				)
			}
		}
		d.log.Debug("detection batch folded",
			"call", label,
			"batch_topics", len(detected),
			"topics", acc.Len(),
			"unassigned", tracker.Stats().Unassigned,
		)
	}

	recoveryName := acc.Canonical(d.cfg.RecoveryTopicName)
	recovered := tracker.CreateRecoveryTopic(recoveryName)
	if recovered != nil {
		d.log.Info("recovered unassigned questions", "topic", recoveryName, "count", len(recovered.QuestionIDs))
	}

	v := tracker.Validate()
	if !v.IsValid {
		return nil, &llmjson.ValidationError{Stage: "topic_detection", Problems: v.Errors}
	}
	if len(v.Errors) > 0 {
		d.log.Warn("question claim conflicts resolved first-wins", "conflicts", len(tracker.Conflicts()), "errors", v.Errors)
	}

	topics, dropped := finalize(acc, tracker, questions, recovered)
	for _, name := range dropped {
		d.log.Warn("dropping topic with no owned questions", "topic", name)
	}

	return &Result{
		Topics:   topics,
		Stats:    tracker.Stats(),
		Warnings: tracker.Warnings(),
		Mode:     mode,
		Batches:  len(batches),
		Dropped:  dropped,
	}, nil
}

func (d *Detector) checkBatch(label, mode string, idx int, detected []exam.DetectedTopic) error {
	var problems []string
	distinct := map[string]bool{}
	for i, t := range detected {
		key := NormalizeName(t.Name)
		if key == "" {
			problems = append(problems, fmt.Sprintf("topic %d has a blank name", i+1))
			continue
		}
		distinct[key] = true
	}
	switch {
	case mode == ModeSingle:
		// Entries that differ only in case or spacing fold into one topic.
		if n := len(distinct); n < d.cfg.MinTopics || (d.cfg.MaxTopics > 0 && n > d.cfg.MaxTopics) {
			problems = append(problems, fmt.Sprintf("got %d distinct topics, want %d-%d", n, d.cfg.MinTopics, d.cfg.MaxTopics))
		}
	case idx == 0:
		if len(detected) == 0 {
			problems = append(problems, "first batch returned no topics")
		}
	}
	return llmjson.Invalid(label, problems...)
}

// finalize rebuilds each topic's question list from the tracker so that every question
// appears once, under the topic that claimed it first, in input order.
func finalize(acc Accumulator, tracker *assign.Tracker, questions []exam.Question, recovered *exam.DetectedTopic) ([]exam.DetectedTopic, []string) {
	owned := map[string][]string{}
	for _, q := range questions {
		if owner, ok := tracker.Owner(q.ID); ok {
			owned[owner] = append(owned[owner], q.ID)
		}
	}

	var out []exam.DetectedTopic
	var dropped []string
	seen := map[string]bool{}
	for _, t := range acc.Topics() {
		seen[t.Name] = true
		qs := owned[t.Name]
		if len(qs) == 0 {
			dropped = append(dropped, t.Name)
			continue
		}
		t.QuestionIDs = qs
		if recovered != nil && t.Name == recovered.Name {
			t.Recovery = true
		}
		out = append(out, t)
	}
	if recovered != nil && !seen[recovered.Name] {
		rec := recovered.Clone()
		rec.QuestionIDs = owned[rec.Name]
		out = append(out, rec)
	}
	return out, dropped
}

func chunk(qs []exam.Question, size int) [][]exam.Question {
	var out [][]exam.Question
	for start := 0; start < len(qs); start += size {
		end := start + size
		if end > len(qs) {
			end = len(qs)
		}
		out = append(out, qs[start:end])
	}
	return out
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
