package exam

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/examcourse-backend/internal/data/repos/testutil"
	types "github.com/yungbote/examcourse-backend/internal/domain/exam"
	"github.com/yungbote/examcourse-backend/internal/platform/dbctx"
)

func TestExamAndQuestionRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repos := NewRepos(db, testutil.Logger(t))

	owner := uuid.New()
	e := &types.Exam{OwnerUserID: owner, Title: "Biology midterm"}
	if err := repos.Exams.Create(dbc, e); err != nil || e.ID == uuid.Nil {
		t.Fatalf("Create: id=%s err=%v", e.ID, err)
	}
	got, err := repos.Exams.GetByID(dbc, e.ID)
	if err != nil || got == nil || got.OwnerUserID != owner {
		t.Fatalf("GetByID: got=%v err=%v", got, err)
	}
	if missing, err := repos.Exams.GetByID(dbc, uuid.New()); err != nil || missing != nil {
		t.Fatalf("GetByID missing: got=%v err=%v", missing, err)
	}

	prefix := uuid.NewString()[:8]
	qs := []*types.Question{
		{ID: prefix + "-b", ExamID: e.ID, Position: 2, Text: "second", Options: datatypes.NewJSONType(map[string]string{"A": "x", "B": "y"})},
		{ID: prefix + "-a", ExamID: e.ID, Position: 1, Text: "first", Options: datatypes.NewJSONType(map[string]string{"A": "x", "B": "y"})},
	}
	if err := repos.Questions.Create(dbc, qs); err != nil {
		t.Fatalf("Create questions: %v", err)
	}
	rows, err := repos.Questions.ListByExamID(dbc, e.ID)
	if err != nil || len(rows) != 2 {
		t.Fatalf("ListByExamID: err=%v len=%d", err, len(rows))
	}
	if rows[0].Text != "first" || rows[0].Options.Data()["B"] != "y" {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if n, err := repos.Questions.CountByExamID(dbc, e.ID); err != nil || n != 2 {
		t.Fatalf("CountByExamID: n=%d err=%v", n, err)
	}
}

func TestQuestionIDsAreScopedToExam(t *testing.T) {
	db := testutil.DB(t)
	repos := NewRepos(db, testutil.Logger(t))
	dbc := dbctx.New(context.Background())

	owner := uuid.New()
	a := testutil.SeedExam(t, db, owner, "Form A")
	b := testutil.SeedExam(t, db, owner, "Form B")
	testutil.SeedQuestions(t, db, a.ID, "q", 3)
	testutil.SeedQuestions(t, db, b.ID, "q", 3)

	for _, e := range []*types.Exam{a, b} {
		rows, err := repos.Questions.ListByExamID(dbc, e.ID)
		if err != nil || len(rows) != 3 {
			t.Fatalf("exam %s: err=%v len=%d", e.Title, err, len(rows))
		}
		for _, q := range rows {
			if q.ExamID != e.ID {
				t.Fatalf("exam %s listed question from %s", e.Title, q.ExamID)
			}
		}
		if rows[0].ID != "q-1" {
			t.Fatalf("exam %s: first id %q", e.Title, rows[0].ID)
		}
	}

	dup := []*types.Question{{ID: "q-1", ExamID: a.ID, Position: 9, Text: "again"}}
	if err := repos.Questions.Create(dbc, dup); err == nil {
		t.Fatal("expected duplicate id within one exam to be rejected")
	}
}

func TestTopicAndSectionReplaceForExam(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repos := NewRepos(db, testutil.Logger(t))

	examID := uuid.New()
	otherExam := uuid.New()
	runID := uuid.New()

	first := []*types.Topic{
		{RunID: runID, Name: "Cells", OrderIndex: 0, QuestionIDs: datatypes.NewJSONType([]string{"q1"})},
		{RunID: runID, Name: "Genetics", OrderIndex: 1, QuestionIDs: datatypes.NewJSONType([]string{"q2"})},
	}
	if err := repos.Topics.ReplaceForExam(dbc, examID, first); err != nil {
		t.Fatalf("ReplaceForExam: %v", err)
	}
	if err := repos.Topics.ReplaceForExam(dbc, otherExam, []*types.Topic{{RunID: runID, Name: "Other"}}); err != nil {
		t.Fatalf("ReplaceForExam other: %v", err)
	}

	second := []*types.Topic{
		{RunID: runID, Name: "Evolution", OrderIndex: 0, Concepts: datatypes.NewJSONType([]string{"selection"}), QuestionIDs: datatypes.NewJSONType([]string{"q1", "q2"})},
	}
	if err := repos.Topics.ReplaceForExam(dbc, examID, second); err != nil {
		t.Fatalf("ReplaceForExam again: %v", err)
	}
	rows, err := repos.Topics.ListByExamID(dbc, examID)
	if err != nil || len(rows) != 1 || rows[0].Name != "Evolution" {
		t.Fatalf("topics after replace: err=%v rows=%+v", err, rows)
	}
	if ids := rows[0].QuestionIDs.Data(); len(ids) != 2 {
		t.Fatalf("question ids=%v", ids)
	}
	if rows, _ := repos.Topics.ListByExamID(dbc, otherExam); len(rows) != 1 {
		t.Fatal("replace must not touch other exams")
	}

	secs := []*types.LessonSection{
		{RunID: runID, TopicName: "Evolution", ContentMarkdown: "# Evolution", OrderIndex: 0, WordCount: 2},
	}
	if err := repos.Sections.ReplaceForExam(dbc, examID, secs); err != nil {
		t.Fatalf("sections ReplaceForExam: %v", err)
	}
	if err := repos.Sections.ReplaceForExam(dbc, examID, nil); err != nil {
		t.Fatalf("sections clear: %v", err)
	}
	if rows, err := repos.Sections.ListByExamID(dbc, examID); err != nil || len(rows) != 0 {
		t.Fatalf("sections after clear: err=%v len=%d", err, len(rows))
	}
}

func TestReplaceForExamWithoutCallerTx(t *testing.T) {
	db := testutil.DB(t)
	repos := NewRepos(db, testutil.Logger(t))
	dbc := dbctx.New(context.Background())
	examID := uuid.New()

	rows := []*types.LessonSection{{RunID: uuid.New(), TopicName: "A", ContentMarkdown: "# A"}, {RunID: uuid.New(), TopicName: "B", ContentMarkdown: "# B", OrderIndex: 1}}
	if err := repos.Sections.ReplaceForExam(dbc, examID, rows); err != nil {
		t.Fatalf("ReplaceForExam: %v", err)
	}
	got, err := repos.Sections.ListByExamID(dbc, examID)
	if err != nil || len(got) != 2 || got[1].TopicName != "B" {
		t.Fatalf("ListByExamID: err=%v rows=%+v", err, got)
	}
	t.Cleanup(func() { _ = repos.Sections.ReplaceForExam(dbc, examID, nil) })
}

func TestRunRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repos := NewRepos(db, testutil.Logger(t))

	examID := uuid.New()
	if r, err := repos.Runs.LatestByExam(dbc, examID); err != nil || r != nil {
		t.Fatalf("LatestByExam empty: r=%v err=%v", r, err)
	}

	old := &types.GenerationRun{ExamID: examID, UserID: uuid.New(), Status: types.RunStatusSucceeded, StartedAt: time.Now().UTC().Add(-time.Hour)}
	if err := repos.Runs.Create(dbc, old); err != nil {
		t.Fatalf("Create: %v", err)
	}
	latest := &types.GenerationRun{ExamID: examID, UserID: uuid.New(), Status: types.RunStatusRunning}
	if err := repos.Runs.Create(dbc, latest); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if r, err := repos.Runs.LatestByExam(dbc, examID); err != nil || r == nil || r.ID != latest.ID {
		t.Fatalf("LatestByExam: r=%v err=%v", r, err)
	}
	if r, err := repos.Runs.LatestSucceededByExam(dbc, examID); err != nil || r == nil || r.ID != old.ID {
		t.Fatalf("LatestSucceededByExam: r=%v err=%v", r, err)
	}

	now := time.Now().UTC()
	if err := repos.Runs.UpdateFields(dbc, latest.ID, map[string]interface{}{
		"status":      types.RunStatusFailed,
		"phase":       types.PhaseLessonGeneration,
		"finished_at": now,
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	r, err := repos.Runs.GetByID(dbc, latest.ID)
	if err != nil || r == nil || r.Status != types.RunStatusFailed || r.Phase != types.PhaseLessonGeneration || r.FinishedAt == nil {
		t.Fatalf("GetByID after update: r=%+v err=%v", r, err)
	}
}
