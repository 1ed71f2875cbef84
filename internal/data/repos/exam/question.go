package exam

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/examcourse-backend/internal/domain/exam"
	"github.com/yungbote/examcourse-backend/internal/platform/dbctx"
	"github.com/yungbote/examcourse-backend/internal/platform/logger"
)

type QuestionRepo interface {
	Create(dbc dbctx.Context, rows []*types.Question) error
	ListByExamID(dbc dbctx.Context, examID uuid.UUID) ([]types.Question, error)
	CountByExamID(dbc dbctx.Context, examID uuid.UUID) (int64, error)
}

type questionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuestionRepo(db *gorm.DB, baseLog *logger.Logger) QuestionRepo {
	return &questionRepo{db: db, log: baseLog.With("repo", "QuestionRepo")}
}

func (r *questionRepo) Create(dbc dbctx.Context, rows []*types.Question) error {
	if len(rows) == 0 {
		return nil
	}
	return dbc.DB(r.db).Create(&rows).Error
}

// ListByExamID returns questions in exam order.
func (r *questionRepo) ListByExamID(dbc dbctx.Context, examID uuid.UUID) ([]types.Question, error) {
	var out []types.Question
	if examID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("exam_id = ?", examID).
		Order("position ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *questionRepo) CountByExamID(dbc dbctx.Context, examID uuid.UUID) (int64, error) {
	var n int64
	if examID == uuid.Nil {
		return 0, nil
	}
	err := dbc.DB(r.db).Model(&types.Question{}).Where("exam_id = ?", examID).Count(&n).Error
	return n, err
}
