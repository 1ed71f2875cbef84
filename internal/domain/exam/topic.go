package exam

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DetectedTopic is the in-flight result of topic detection. Name doubles as the merge key
// across batches (compared after normalization).
type DetectedTopic struct {
	Name        string   `json:"name"`
	QuestionIDs []string `json:"questionIds"`
	Concepts    []string `json:"concepts"`
	Recovery    bool     `json:"recovery,omitempty"`
}

func (t DetectedTopic) Clone() DetectedTopic {
	out := DetectedTopic{Name: t.Name, Recovery: t.Recovery}
	out.QuestionIDs = append([]string(nil), t.QuestionIDs...)
	out.Concepts = append([]string(nil), t.Concepts...)
	return out
}

// Topic is a persisted detected topic. Rows for an exam are always replaced as a set.
type Topic struct {
	ID          uuid.UUID                    `gorm:"type:uuid;primaryKey" json:"id"`
	ExamID      uuid.UUID                    `gorm:"type:uuid;column:exam_id;not null;index" json:"exam_id"`
	RunID       uuid.UUID                    `gorm:"type:uuid;column:run_id;not null;index" json:"run_id"`
	Name        string                       `gorm:"column:name;not null" json:"name"`
	OrderIndex  int                          `gorm:"column:order_index;not null" json:"order_index"`
	Concepts    datatypes.JSONType[[]string] `gorm:"column:concepts" json:"concepts"`
	QuestionIDs datatypes.JSONType[[]string] `gorm:"column:question_ids" json:"question_ids"`
	Recovery    bool                         `gorm:"column:recovery;not null" json:"recovery"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Topic) TableName() string { return "exam_topic" }

// LessonSection is one generated markdown lesson. OrderIndex matches the topic position.
type LessonSection struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ExamID          uuid.UUID      `gorm:"type:uuid;column:exam_id;not null;index" json:"exam_id"`
	RunID           uuid.UUID      `gorm:"type:uuid;column:run_id;not null;index" json:"run_id"`
	TopicName       string         `gorm:"column:topic_name;not null" json:"topic_name"`
	ContentMarkdown string         `gorm:"column:content_markdown;type:text;not null" json:"content_markdown"`
	OrderIndex      int            `gorm:"column:order_index;not null" json:"order_index"`
	WordCount       int            `gorm:"column:word_count;not null" json:"word_count"`
	Metadata        datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (LessonSection) TableName() string { return "exam_lesson_section" }
