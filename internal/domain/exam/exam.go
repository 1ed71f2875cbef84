package exam

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Exam struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;column:owner_user_id;not null;index" json:"owner_user_id"`
	Title       string    `gorm:"column:title;not null" json:"title"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Exam) TableName() string { return "exam" }

// Question is immutable input to a generation run. ID is an opaque identifier that is
// stable across runs and unique within its exam.
type Question struct {
	ExamID   uuid.UUID `gorm:"type:uuid;column:exam_id;primaryKey" json:"exam_id"`
	ID       string    `gorm:"column:id;primaryKey" json:"id"`
	Position int       `gorm:"column:position;not null" json:"position"`
	Text     string    `gorm:"column:text;type:text;not null" json:"text"`

	// Options maps a choice label ("A", "B", ...) to its text.
	Options       datatypes.JSONType[map[string]string] `gorm:"column:options" json:"options"`
	CorrectAnswer string                                `gorm:"column:correct_answer" json:"correct_answer,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Question) TableName() string { return "exam_question" }

// OptionTexts returns option texts ordered by label.
func (q Question) OptionTexts() []string {
	opts := q.Options.Data()
	labels := SortedLabels(opts)
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		out = append(out, opts[l])
	}
	return out
}
