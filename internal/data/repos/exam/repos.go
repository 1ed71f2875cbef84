package exam

import (
	"gorm.io/gorm"

	"github.com/yungbote/examcourse-backend/internal/platform/logger"
)

// Repos is the persistence surface of course generation.
type Repos struct {
	Exams     ExamRepo
	Questions QuestionRepo
	Topics    TopicRepo
	Sections  SectionRepo
	Runs      RunRepo
}

func NewRepos(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Exams:     NewExamRepo(db, log),
		Questions: NewQuestionRepo(db, log),
		Topics:    NewTopicRepo(db, log),
		Sections:  NewSectionRepo(db, log),
		Runs:      NewRunRepo(db, log),
	}
}
