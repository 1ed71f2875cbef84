package db

import (
	"gorm.io/gorm"

	types "github.com/yungbote/examcourse-backend/internal/domain/exam"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Input
		&types.Exam{},
		&types.Question{},

		// Generated course
		&types.GenerationRun{},
		&types.Topic{},
		&types.LessonSection{},
	)
}

func (s *Service) AutoMigrateAll() error {
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("auto migration failed", "error", err)
		return err
	}
	return nil
}
