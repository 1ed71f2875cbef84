package seed

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"

	examrepo "github.com/yungbote/examcourse-backend/internal/data/repos/exam"
	types "github.com/yungbote/examcourse-backend/internal/domain/exam"
	"github.com/yungbote/examcourse-backend/internal/platform/dbctx"
)

// File is an exam fixture. YAML and JSON are both accepted.
type File struct {
	ExamID      string     `yaml:"exam_id"`
	OwnerUserID string     `yaml:"owner_user_id"`
	Title       string     `yaml:"title"`
	Questions   []Question `yaml:"questions"`
}

type Question struct {
	ID            string            `yaml:"id"`
	Text          string            `yaml:"text"`
	Options       map[string]string `yaml:"options"`
	CorrectAnswer string            `yaml:"correct_answer"`
}

func ReadFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func Parse(b []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	var problems []string
	if strings.TrimSpace(f.Title) == "" {
		problems = append(problems, "title is required")
	}
	if len(f.Questions) == 0 {
		problems = append(problems, "at least one question is required")
	}
	seen := map[string]bool{}
	for i, q := range f.Questions {
		id := strings.TrimSpace(q.ID)
		switch {
		case id == "":
			problems = append(problems, fmt.Sprintf("questions[%d]: id is required", i))
		case seen[id]:
			problems = append(problems, fmt.Sprintf("questions[%d]: duplicate id %q", i, id))
		}
		seen[id] = true
		if strings.TrimSpace(q.Text) == "" {
			problems = append(problems, fmt.Sprintf("questions[%d]: text is required", i))
		}
	}
	if len(problems) > 0 {
		return errors.New("invalid seed: " + strings.Join(problems, "; "))
	}
	return nil
}

// Apply writes the exam and its questions. ownerOverride, when set,
// replaces the file's owner. Run it inside a transaction to keep the write atomic.
func Apply(dbc dbctx.Context, repos examrepo.Repos, f *File, ownerOverride uuid.UUID) (*types.Exam, error) {
	examID := uuid.New()
	if f.ExamID != "" {
		id, err := uuid.Parse(f.ExamID)
		if err != nil {
			return nil, fmt.Errorf("invalid exam_id: %w", err)
		}
		examID = id
	}
	owner := ownerOverride
	if owner == uuid.Nil {
		id, err := uuid.Parse(f.OwnerUserID)
		if err != nil || id == uuid.Nil {
			return nil, fmt.Errorf("seed needs owner_user_id or an explicit owner")
		}
		owner = id
	}

	e := &types.Exam{ID: examID, OwnerUserID: owner, Title: strings.TrimSpace(f.Title)}
	if err := repos.Exams.Create(dbc, e); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}
	rows := make([]*types.Question, 0, len(f.Questions))
	for i, q := range f.Questions {
		opts := q.Options
		if opts == nil {
			opts = map[string]string{}
		}
		rows = append(rows, &types.Question{
			ID:            strings.TrimSpace(q.ID),
			ExamID:        examID,
			Position:      i,
			Text:          q.Text,
			Options:       datatypes.NewJSONType(opts),
			CorrectAnswer: q.CorrectAnswer,
		})
	}
	if err := repos.Questions.Create(dbc, rows); err != nil {
		return nil, fmt.Errorf("create questions: %w", err)
	}
	return e, nil
}
