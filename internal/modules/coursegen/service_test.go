package coursegen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	redisclient "github.com/yungbote/examcourse-backend/internal/clients/redis"
	"github.com/yungbote/examcourse-backend/internal/data/db"
	examrepo "github.com/yungbote/examcourse-backend/internal/data/repos/exam"
	"github.com/yungbote/examcourse-backend/internal/data/repos/testutil"
	"github.com/yungbote/examcourse-backend/internal/domain/exam"
	"github.com/yungbote/examcourse-backend/internal/inference/engine"
	"github.com/yungbote/examcourse-backend/internal/inference/engine/mock"
	"github.com/yungbote/examcourse-backend/internal/inference/gateway"
	"github.com/yungbote/examcourse-backend/internal/inference/router"
	"github.com/yungbote/examcourse-backend/internal/modules/coursegen/leakage"
	"github.com/yungbote/examcourse-backend/internal/modules/coursegen/lessons"
	"github.com/yungbote/examcourse-backend/internal/modules/coursegen/topics"
	"github.com/yungbote/examcourse-backend/internal/platform/apierr"
	"github.com/yungbote/examcourse-backend/internal/platform/dbctx"
	"github.com/yungbote/examcourse-backend/internal/platform/logger"
)

var (
	idLine    = regexp.MustCompile(`(?m)^\[([^\]]+)\]`)
	topicLine = regexp.MustCompile(`Write a lesson for the topic "([^"]+)"`)
)

// splitTopics answers a detection prompt with two topics covering every listed id.
func splitTopics(req engine.ChatRequest) (string, error) {
	var ids []string
	for _, m := range idLine.FindAllStringSubmatch(req.Prompt, -1) {
		ids = append(ids, m[1])
	}
	half := (len(ids) + 1) / 2
	b, _ := json.Marshal(map[string]any{"topics": []map[string]any{
		{"name": "Cell Structure", "questionIds": ids[:half], "concepts": []string{"organelles"}},
		{"name": "Cell Energy", "questionIds": ids[half:], "concepts": []string{"atp"}},
	}})
	return string(b), nil
}

func goodLesson(req engine.ChatRequest) (string, error) {
	m := topicLine.FindStringSubmatch(req.Prompt)
	if m == nil {
		return "", errors.New("no topic in prompt")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", m[1])
	for _, s := range lessons.RequiredSections {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", s, strings.Repeat("learning ", 30))
	}
	return b.String(), nil
}

type recordingEvents struct {
	mu       sync.Mutex
	statuses []string
}

func (r *recordingEvents) PublishRunEvent(_ context.Context, ev redisclient.RunEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, ev.Status)
	return nil
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return nil, false, nil
}

type fixture struct {
	svc    *Service
	db     *gorm.DB
	repos  examrepo.Repos
	detect *mock.Engine
	lesson *mock.Engine
	events *recordingEvents
	now    time.Time
	owner  uuid.UUID
	exam   *exam.Exam
}

func newFixture(t *testing.T, questions int, tweak func(*Deps)) *fixture {
	t.Helper()
	gdb := testutil.DB(t)
	log := logger.NewNop()
	f := &fixture{
		db:     gdb,
		repos:  examrepo.NewRepos(gdb, log),
		detect: mock.New(),
		lesson: mock.New(),
		events: &recordingEvents{},
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		owner:  uuid.New(),
	}
	f.detect.Respond = splitTopics
	f.lesson.Respond = goodLesson

	f.exam = testutil.SeedExam(t, gdb, f.owner, "Biology")
	testutil.SeedQuestions(t, gdb, f.exam.ID, uuid.NewString()[:8], questions)

	r := router.NewStatic(
		router.Route{Provider: "detect", Model: "m1", Engine: f.detect},
		router.Route{Provider: "lesson", Model: "m2", Engine: f.lesson},
	)
	gw := gateway.New(r, log, gateway.WithBackoffUnit(time.Millisecond))
	deps := Deps{
		Log:   log,
		Tx:    db.NewTxRunner(gdb),
		Repos: f.repos,
		Detector: topics.NewDetector(gw, topics.Config{
			Provider: "detect", Timeout: time.Second, MinTopics: 1, MaxTopics: 12, MaxConcepts: 5,
		}, log),
		Lessons: lessons.NewGenerator(gw, lessons.Config{
			Provider: "lesson", Timeout: time.Second, Window: 3, MinWords: 100, MaxWords: 600,
		}, leakage.New(0.3, 5), log),
		Events:             f.events,
		RegenerationWindow: 5 * time.Minute,
		Now:                func() time.Time { return f.now },
	}
	if tweak != nil {
		tweak(&deps)
	}
	f.svc = NewService(deps)
	return f
}

func apiStatus(err error) int {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

func TestGenerateHappyPath(t *testing.T) {
	f := newFixture(t, 6, nil)
	ctx := context.Background()

	sum, err := f.svc.Generate(ctx, Request{ExamID: f.exam.ID, UserID: f.owner})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(sum.Topics) != 2 || sum.TotalSections != 2 || sum.Stats.Assigned != 6 {
		t.Fatalf("summary=%+v", sum)
	}
	for _, tp := range sum.Topics {
		if tp.Status != TopicStatusReady || tp.QuestionCount != 3 {
			t.Fatalf("topic=%+v", tp)
		}
	}

	run, err := f.repos.Runs.GetByID(dbctx.New(ctx), sum.RunID)
	if err != nil || run == nil || run.Status != exam.RunStatusSucceeded || run.SectionCount != 2 || run.FinishedAt == nil {
		t.Fatalf("run=%+v err=%v", run, err)
	}
	if got := strings.Join(f.events.statuses, ","); got != "running,topics_ready,succeeded" {
		t.Fatalf("events=%s", got)
	}

	st, err := f.svc.Status(ctx, f.exam.ID, f.owner)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(st.Topics) != 2 || st.TotalSections != 2 || st.Topics[0].Status != TopicStatusReady {
		t.Fatalf("status=%+v", st)
	}
	if !strings.HasPrefix(st.Sections[0].ContentMarkdown, "# Cell Structure") {
		t.Fatalf("section=%+v", st.Sections[0])
	}
}

func TestGeneratePreconditions(t *testing.T) {
	f := newFixture(t, 3, nil)
	ctx := context.Background()

	if _, err := f.svc.Generate(ctx, Request{ExamID: uuid.New(), UserID: f.owner}); apiStatus(err) != http.StatusNotFound {
		t.Fatalf("missing exam: %v", err)
	}
	if _, err := f.svc.Generate(ctx, Request{ExamID: f.exam.ID, UserID: uuid.New()}); apiStatus(err) != http.StatusForbidden {
		t.Fatalf("foreign exam: %v", err)
	}
	if _, err := f.svc.Generate(ctx, Request{ExamID: f.exam.ID}); apiStatus(err) != http.StatusUnauthorized {
		t.Fatalf("anonymous: %v", err)
	}

	empty := testutil.SeedExam(t, f.db, f.owner, "Empty")
	if _, err := f.svc.Generate(ctx, Request{ExamID: empty.ID, UserID: f.owner}); apiStatus(err) != http.StatusUnprocessableEntity {
		t.Fatalf("empty exam: %v", err)
	}
	if n := len(f.detect.Requests()); n != 0 {
		t.Fatalf("no generation should happen on precondition failure, got %d calls", n)
	}
}

func TestRegenerationWindow(t *testing.T) {
	f := newFixture(t, 3, nil)
	ctx := context.Background()
	req := Request{ExamID: f.exam.ID, UserID: f.owner}

	if _, err := f.svc.Generate(ctx, req); err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	f.now = f.now.Add(time.Minute)
	if _, err := f.svc.Generate(ctx, req); apiStatus(err) != http.StatusConflict {
		t.Fatalf("expected 409 inside window, got %v", err)
	}

	req.Force = true
	if _, err := f.svc.Generate(ctx, req); err != nil {
		t.Fatalf("forced Generate: %v", err)
	}

	req.Force = false
	f.now = f.now.Add(10 * time.Minute)
	if _, err := f.svc.Generate(ctx, req); err != nil {
		t.Fatalf("Generate after window: %v", err)
	}
	if n := len(f.detect.Requests()); n != 3 {
		t.Fatalf("detection calls=%d", n)
	}
}

func TestLessonFailureLeavesTopicsPending(t *testing.T) {
	f := newFixture(t, 4, nil)
	f.lesson.Respond = func(req engine.ChatRequest) (string, error) {
		return "# Too short", nil
	}
	ctx := context.Background()

	_, err := f.svc.Generate(ctx, Request{ExamID: f.exam.ID, UserID: f.owner})
	var runErr *RunError
	if !errors.As(err, &runErr) || runErr.Phase != exam.PhaseLessonGeneration {
		t.Fatalf("expected lesson_generation RunError, got %v", err)
	}
	if status, code := runErr.Status(); status != http.StatusBadGateway || code != "invalid_generation" {
		t.Fatalf("status=%d code=%s", status, code)
	}

	run, _ := f.repos.Runs.LatestByExam(dbctx.New(ctx), f.exam.ID)
	if run == nil || run.Status != exam.RunStatusFailed || run.Phase != exam.PhaseLessonGeneration || run.TopicCount != 2 {
		t.Fatalf("run=%+v", run)
	}

	st, err := f.svc.Status(ctx, f.exam.ID, f.owner)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(st.Topics) != 2 || st.TotalSections != 0 {
		t.Fatalf("status=%+v", st)
	}
	for _, tp := range st.Topics {
		if tp.Status != TopicStatusPendingLesson {
			t.Fatalf("topic=%+v", tp)
		}
	}
	if last := f.events.statuses[len(f.events.statuses)-1]; last != exam.RunStatusFailed {
		t.Fatalf("events=%v", f.events.statuses)
	}
}

func TestDetectionFailurePersistsNothing(t *testing.T) {
	f := newFixture(t, 3, nil)
	f.detect.Respond = func(engine.ChatRequest) (string, error) { return "I cannot help with that.", nil }
	ctx := context.Background()

	_, err := f.svc.Generate(ctx, Request{ExamID: f.exam.ID, UserID: f.owner})
	var runErr *RunError
	if !errors.As(err, &runErr) || runErr.Phase != exam.PhaseTopicDetection {
		t.Fatalf("expected topic_detection RunError, got %v", err)
	}
	rows, err := f.repos.Topics.ListByExamID(dbctx.New(ctx), f.exam.ID)
	if err != nil || len(rows) != 0 {
		t.Fatalf("topics=%d err=%v", len(rows), err)
	}
	if n := len(f.lesson.Requests()); n != 0 {
		t.Fatalf("lesson calls=%d", n)
	}
}

func TestGenerateRespectsRunLock(t *testing.T) {
	f := newFixture(t, 3, func(d *Deps) { d.Locker = busyLocker{} })
	_, err := f.svc.Generate(context.Background(), Request{ExamID: f.exam.ID, UserID: f.owner})
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Status != http.StatusConflict || ae.Code != "generation_in_progress" {
		t.Fatalf("expected generation_in_progress, got %v", err)
	}
}

func TestConcurrentRequestsShareOneRun(t *testing.T) {
	f := newFixture(t, 4, nil)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.detect.Respond = func(req engine.ChatRequest) (string, error) {
		once.Do(func() { close(entered) })
		<-release
		return splitTopics(req)
	}

	req := Request{ExamID: f.exam.ID, UserID: f.owner}
	var wg sync.WaitGroup
	results := make([]*Summary, 2)
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = f.svc.Generate(context.Background(), req)
	}()
	<-entered
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = f.svc.Generate(context.Background(), req)
	}()
	time.Sleep(200 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if results[0].RunID != results[1].RunID {
		t.Fatalf("expected one shared run, got %s and %s", results[0].RunID, results[1].RunID)
	}
	if n := len(f.detect.Requests()); n != 1 {
		t.Fatalf("detection calls=%d", n)
	}
}
