package exam

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/examcourse-backend/internal/domain/exam"
	"github.com/yungbote/examcourse-backend/internal/platform/dbctx"
	"github.com/yungbote/examcourse-backend/internal/platform/logger"
)

type ExamRepo interface {
	Create(dbc dbctx.Context, row *types.Exam) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Exam, error)
}

type examRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExamRepo(db *gorm.DB, baseLog *logger.Logger) ExamRepo {
	return &examRepo{db: db, log: baseLog.With("repo", "ExamRepo")}
}

func (r *examRepo) Create(dbc dbctx.Context, row *types.Exam) error {
	if row == nil {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return dbc.DB(r.db).Create(row).Error
}

// GetByID returns nil, nil when the exam does not exist.
func (r *examRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Exam, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.Exam
	if err := dbc.DB(r.db).First(&out, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}
