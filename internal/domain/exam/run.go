package exam

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RunStatusRunning     = "running"
	RunStatusTopicsReady = "topics_ready"
	RunStatusSucceeded   = "succeeded"
	RunStatusFailed      = "failed"
)

const (
	PhaseTopicDetection   = "topic_detection"
	PhaseLessonGeneration = "lesson_generation"
	PhasePersistence      = "persistence"
)

// GenerationRun records one attempt at building a course for an exam. A run that stops
// at topics_ready has persisted topics but no matching sections.
type GenerationRun struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ExamID       uuid.UUID      `gorm:"type:uuid;column:exam_id;not null;index" json:"exam_id"`
	UserID       uuid.UUID      `gorm:"type:uuid;column:user_id;not null" json:"user_id"`
	Status       string         `gorm:"column:status;not null;index" json:"status"`
	Phase        string         `gorm:"column:phase" json:"phase,omitempty"`
	Error        string         `gorm:"column:error;type:text" json:"error,omitempty"`
	Forced       bool           `gorm:"column:forced;not null" json:"forced"`
	TopicCount   int            `gorm:"column:topic_count;not null" json:"topic_count"`
	SectionCount int            `gorm:"column:section_count;not null" json:"section_count"`
	Stats        datatypes.JSON `gorm:"column:stats" json:"stats,omitempty"`
	StartedAt    time.Time      `gorm:"column:started_at;not null;index" json:"started_at"`
	FinishedAt   *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (GenerationRun) TableName() string { return "exam_generation_run" }
