package exam

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/examcourse-backend/internal/domain/exam"
	"github.com/yungbote/examcourse-backend/internal/platform/dbctx"
	"github.com/yungbote/examcourse-backend/internal/platform/logger"
)

type RunRepo interface {
	Create(dbc dbctx.Context, row *types.GenerationRun) error
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.GenerationRun, error)
	LatestByExam(dbc dbctx.Context, examID uuid.UUID) (*types.GenerationRun, error)
	LatestSucceededByExam(dbc dbctx.Context, examID uuid.UUID) (*types.GenerationRun, error)
}

type runRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRunRepo(db *gorm.DB, baseLog *logger.Logger) RunRepo {
	return &runRepo{db: db, log: baseLog.With("repo", "RunRepo")}
}

func (r *runRepo) Create(dbc dbctx.Context, row *types.GenerationRun) error {
	if row == nil {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.StartedAt.IsZero() {
		row.StartedAt = time.Now().UTC()
	}
	return dbc.DB(r.db).Create(row).Error
}

func (r *runRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.DB(r.db).Model(&types.GenerationRun{}).Where("id = ?", id).Updates(updates).Error
}

func (r *runRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.GenerationRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return r.first(dbc.DB(r.db).Where("id = ?", id))
}

func (r *runRepo) LatestByExam(dbc dbctx.Context, examID uuid.UUID) (*types.GenerationRun, error) {
	if examID == uuid.Nil {
		return nil, nil
	}
	return r.first(dbc.DB(r.db).
		Where("exam_id = ?", examID).
		Order("started_at DESC"))
}

func (r *runRepo) LatestSucceededByExam(dbc dbctx.Context, examID uuid.UUID) (*types.GenerationRun, error) {
	if examID == uuid.Nil {
		return nil, nil
	}
	return r.first(dbc.DB(r.db).
		Where("exam_id = ? AND status = ?", examID, types.RunStatusSucceeded).
		Order("started_at DESC"))
}

func (r *runRepo) first(q *gorm.DB) (*types.GenerationRun, error) {
	var out types.GenerationRun
	if err := q.Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}
