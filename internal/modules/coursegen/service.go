package coursegen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"

	redisclient "github.com/yungbote/examcourse-backend/internal/clients/redis"
	"github.com/yungbote/examcourse-backend/internal/data/db"
	examrepo "github.com/yungbote/examcourse-backend/internal/data/repos/exam"
	"github.com/yungbote/examcourse-backend/internal/domain/exam"
	"github.com/yungbote/examcourse-backend/internal/modules/coursegen/assign"
	"github.com/yungbote/examcourse-backend/internal/modules/coursegen/topics"
	"github.com/yungbote/examcourse-backend/internal/platform/apierr"
	"github.com/yungbote/examcourse-backend/internal/platform/dbctx"
	"github.com/yungbote/examcourse-backend/internal/platform/logger"
)

const (
	TopicStatusReady         = "ready"
	TopicStatusPendingLesson = "pending_lesson"
)

type TopicDetector interface {
	Detect(ctx context.Context, questions []exam.Question) (*topics.Result, error)
}

type LessonWriter interface {
	Generate(ctx context.Context, topics []exam.DetectedTopic, questionsByID map[string]exam.Question) ([]exam.LessonSection, error)
}

// Locker guards a run across service instances.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type EventPublisher interface {
	PublishRunEvent(ctx context.Context, ev redisclient.RunEvent) error
}

type Deps struct {
	Log      *logger.Logger
	Tx       db.TxRunner
	Repos    examrepo.Repos
	Detector TopicDetector
	Lessons  LessonWriter

	// Optional.
	Locker Locker
	Events EventPublisher

	RegenerationWindow time.Duration
	LockTTL            time.Duration
	Now                func() time.Time
}

type Request struct {
	ExamID uuid.UUID
	UserID uuid.UUID
	Force  bool
}

type TopicSummary struct {
	Name          string `json:"name"`
	Status        string `json:"status"`
	QuestionCount int    `json:"question_count"`
}

type Summary struct {
	RunID                 uuid.UUID      `json:"run_id"`
	ExamID                uuid.UUID      `json:"exam_id"`
	Topics                []TopicSummary `json:"topics"`
	TotalSections         int            `json:"total_sections"`
	GenerationTimeSeconds float64        `json:"generation_time_seconds"`
	Mode                  string         `json:"mode"`
	Stats                 assign.Stats   `json:"stats"`
}

type runStats struct {
	Mode     string       `json:"mode"`
	Batches  int          `json:"batches"`
	Stats    assign.Stats `json:"assignment"`
	Warnings int          `json:"warnings"`
	Dropped  []string     `json:"dropped_topics,omitempty"`
}

type Service struct {
	deps   Deps
	log    *logger.Logger
	tracer trace.Tracer
	flight singleflight.Group
}

func NewService(deps Deps) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.LockTTL <= 0 {
		deps.LockTTL = 30 * time.Minute
	}
	return &Service{
		deps:   deps,
		log:    deps.Log.With("component", "CourseGeneration"),
		tracer: otel.Tracer("examcourse/coursegen"),
	}
}

// Generate builds and persists a course for one exam. Concurrent requests for the same
// exam in this process share a single run. A run that fails surfaces a *RunError;
// precondition failures surface an *apierr.Error.
func (s *Service) Generate(ctx context.Context, req Request) (*Summary, error) {
	if req.UserID == uuid.Nil {
		return nil, apierr.New(http.StatusUnauthorized, "unauthorized", nil)
	}
	if req.ExamID == uuid.Nil {
		return nil, apierr.New(http.StatusBadRequest, "invalid_exam_id", fmt.Errorf("missing exam id"))
	}
	if _, err := s.ownedExam(ctx, req.ExamID, req.UserID); err != nil {
		return nil, err
	}

	v, err, shared := s.flight.Do(req.ExamID.String(), func() (interface{}, error) {
		// The run outlives the request that started it; there is no mid-run cancellation.
		return s.generate(context.WithoutCancel(ctx), req)
	})
	if shared {
		s.log.Info("joined in-flight course generation", "exam_id", req.ExamID.String())
	}
	if err != nil {
		return nil, err
	}
	return v.(*Summary), nil
}

func (s *Service) ownedExam(ctx context.Context, examID, userID uuid.UUID) (*exam.Exam, error) {
	e, err := s.deps.Repos.Exams.GetByID(dbctx.New(ctx), examID)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "load_exam_failed", err)
	}
	if e == nil {
		return nil, apierr.New(http.StatusNotFound, "exam_not_found", fmt.Errorf("exam %s not found", examID))
	}
	if e.OwnerUserID != userID {
		return nil, apierr.New(http.StatusForbidden, "forbidden", fmt.Errorf("exam %s not owned by caller", examID))
	}
	return e, nil
}

func (s *Service) generate(ctx context.Context, req Request) (*Summary, error) {
	started := s.deps.Now()
	log := s.log.With("exam_id", req.ExamID.String(), "user_id", req.UserID.String(), "force", req.Force)

	if s.deps.Locker != nil {
		release, ok, err := s.deps.Locker.Acquire(ctx, "exam:"+req.ExamID.String(), s.deps.LockTTL)
		if err != nil {
			return nil, apierr.New(http.StatusServiceUnavailable, "lock_unavailable", err)
		}
		if !ok {
			return nil, apierr.New(http.StatusConflict, "generation_in_progress", fmt.Errorf("a course is already being generated for exam %s", req.ExamID))
		}
		defer release()
	}

	dbc := dbctx.New(ctx)
	questions, err := s.deps.Repos.Questions.ListByExamID(dbc, req.ExamID)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "load_questions_failed", err)
	}
	if len(questions) == 0 {
		return nil, apierr.New(http.StatusUnprocessableEntity, "exam_has_no_questions", fmt.Errorf("exam %s has no questions", req.ExamID))
	}
	if !req.Force && s.deps.RegenerationWindow > 0 {
		last, err := s.deps.Repos.Runs.LatestSucceededByExam(dbc, req.ExamID)
		if err != nil {
			return nil, apierr.New(http.StatusInternalServerError, "load_runs_failed", err)
		}
		if last != nil && last.FinishedAt != nil && started.Sub(*last.FinishedAt) < s.deps.RegenerationWindow {
			return nil, apierr.New(http.StatusConflict, "recently_generated",
				fmt.Errorf("a course was generated %s ago; pass force to regenerate", started.Sub(*last.FinishedAt).Round(time.Second)))
		}
	}

	ctx, span := s.tracer.Start(ctx, "coursegen.generate", trace.WithAttributes(
		attribute.String("exam.id", req.ExamID.String()),
		attribute.Int("exam.questions", len(questions)),
		attribute.Bool("run.force", req.Force),
	))
	defer span.End()

	run := &exam.GenerationRun{
		ExamID:    req.ExamID,
		UserID:    req.UserID,
		Status:    exam.RunStatusRunning,
		Forced:    req.Force,
		StartedAt: started.UTC(),
	}
	if err := s.deps.Repos.Runs.Create(dbctx.New(ctx), run); err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "create_run_failed", err)
	}
	log = log.With("run_id", run.ID.String())
	s.publish(ctx, run.ID, req.ExamID, exam.RunStatusRunning, "")
	log.Info("course generation started", "questions", len(questions))

	fail := func(phase string, err error) error {
		runErr := &RunError{RunID: run.ID.String(), Phase: phase, Err: err}
		span.RecordError(runErr)
		span.SetStatus(codes.Error, phase)
		finished := s.deps.Now().UTC()
		if uerr := s.deps.Repos.Runs.UpdateFields(dbctx.New(ctx), run.ID, map[string]interface{}{
			"status":      exam.RunStatusFailed,
			"phase":       phase,
			"error":       err.Error(),
			"finished_at": finished,
		}); uerr != nil {
			log.Error("failed to record run failure", "error", uerr)
		}
		s.publish(ctx, run.ID, req.ExamID, exam.RunStatusFailed, phase)
		log.Error("course generation failed", "phase", phase, "error", err.Error())
		return runErr
	}

	detected, err := s.deps.Detector.Detect(ctx, questions)
	if err != nil {
		return nil, fail(exam.PhaseTopicDetection, err)
	}
	stats, _ := json.Marshal(runStats{
		Mode:     detected.Mode,
		Batches:  detected.Batches,
		Stats:    detected.Stats,
		Warnings: len(detected.Warnings),
		Dropped:  detected.Dropped,
	})

	topicRows := make([]*exam.Topic, 0, len(detected.Topics))
	for i, t := range detected.Topics {
		topicRows = append(topicRows, &exam.Topic{
			RunID:       run.ID,
			Name:        t.Name,
			OrderIndex:  i,
			Concepts:    datatypes.NewJSONType(t.Concepts),
			QuestionIDs: datatypes.NewJSONType(t.QuestionIDs),
			Recovery:    t.Recovery,
		})
	}
	if err := s.deps.Tx.InTx(ctx, func(tx dbctx.Context) error {
		if err := s.deps.Repos.Topics.ReplaceForExam(tx, req.ExamID, topicRows); err != nil {
			return err
		}
		return s.deps.Repos.Runs.UpdateFields(tx, run.ID, map[string]interface{}{
			"status":      exam.RunStatusTopicsReady,
			"topic_count": len(topicRows),
			"stats":       datatypes.JSON(stats),
		})
	}); err != nil {
		return nil, fail(exam.PhasePersistence, err)
	}
	s.publish(ctx, run.ID, req.ExamID, exam.RunStatusTopicsReady, "")
	log.Info("topics persisted", "topics", len(topicRows), "mode", detected.Mode, "batches", detected.Batches)

	byID := make(map[string]exam.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	sections, err := s.deps.Lessons.Generate(ctx, detected.Topics, byID)
	if err != nil {
		return nil, fail(exam.PhaseLessonGeneration, err)
	}

	sectionRows := make([]*exam.LessonSection, 0, len(sections))
	for i := range sections {
		sec := sections[i]
		sec.RunID = run.ID
		sectionRows = append(sectionRows, &sec)
	}
	finished := s.deps.Now().UTC()
	if err := s.deps.Tx.InTx(ctx, func(tx dbctx.Context) error {
		if err := s.deps.Repos.Sections.ReplaceForExam(tx, req.ExamID, sectionRows); err != nil {
			return err
		}
		return s.deps.Repos.Runs.UpdateFields(tx, run.ID, map[string]interface{}{
			"status":        exam.RunStatusSucceeded,
			"section_count": len(sectionRows),
			"finished_at":   finished,
		})
	}); err != nil {
		return nil, fail(exam.PhasePersistence, err)
	}
	s.publish(ctx, run.ID, req.ExamID, exam.RunStatusSucceeded, "")

	summary := &Summary{
		RunID:                 run.ID,
		ExamID:                req.ExamID,
		TotalSections:         len(sectionRows),
		GenerationTimeSeconds: finished.Sub(started).Seconds(),
		Mode:                  detected.Mode,
		Stats:                 detected.Stats,
	}
	for _, t := range detected.Topics {
		summary.Topics = append(summary.Topics, TopicSummary{
			Name:          t.Name,
			Status:        TopicStatusReady,
			QuestionCount: len(t.QuestionIDs),
		})
	}
	log.Info("course generation finished",
		"topics", len(summary.Topics),
		"sections", summary.TotalSections,
		"seconds", summary.GenerationTimeSeconds,
	)
	return summary, nil
}

func (s *Service) publish(ctx context.Context, runID, examID uuid.UUID, status, phase string) {
	if s.deps.Events == nil {
		return
	}
	err := s.deps.Events.PublishRunEvent(ctx, redisclient.RunEvent{
		RunID:  runID.String(),
		ExamID: examID.String(),
		Status: status,
		Phase:  phase,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("publish run event failed", "run_id", runID.String(), "status", status, "error", err)
	}
}
