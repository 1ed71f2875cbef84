package exam

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/examcourse-backend/internal/domain/exam"
	"github.com/yungbote/examcourse-backend/internal/platform/dbctx"
	"github.com/yungbote/examcourse-backend/internal/platform/logger"
)

// TopicRepo and SectionRepo never merge into prior state: every write replaces the
// exam's full set.
type TopicRepo interface {
	ReplaceForExam(dbc dbctx.Context, examID uuid.UUID, rows []*types.Topic) error
	ListByExamID(dbc dbctx.Context, examID uuid.UUID) ([]types.Topic, error)
}

type SectionRepo interface {
	ReplaceForExam(dbc dbctx.Context, examID uuid.UUID, rows []*types.LessonSection) error
	ListByExamID(dbc dbctx.Context, examID uuid.UUID) ([]types.LessonSection, error)
}

type topicRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTopicRepo(db *gorm.DB, baseLog *logger.Logger) TopicRepo {
	return &topicRepo{db: db, log: baseLog.With("repo", "TopicRepo")}
}

func (r *topicRepo) ReplaceForExam(dbc dbctx.Context, examID uuid.UUID, rows []*types.Topic) error {
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		row.ExamID = examID
	}
	return replaceAll(dbc, r.db, &types.Topic{}, examID, rows)
}

func (r *topicRepo) ListByExamID(dbc dbctx.Context, examID uuid.UUID) ([]types.Topic, error) {
	var out []types.Topic
	if examID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("exam_id = ?", examID).
		Order("order_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type sectionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSectionRepo(db *gorm.DB, baseLog *logger.Logger) SectionRepo {
	return &sectionRepo{db: db, log: baseLog.With("repo", "SectionRepo")}
}

func (r *sectionRepo) ReplaceForExam(dbc dbctx.Context, examID uuid.UUID, rows []*types.LessonSection) error {
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		row.ExamID = examID
	}
	return replaceAll(dbc, r.db, &types.LessonSection{}, examID, rows)
}

func (r *sectionRepo) ListByExamID(dbc dbctx.Context, examID uuid.UUID) ([]types.LessonSection, error) {
	var out []types.LessonSection
	if examID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("exam_id = ?", examID).
		Order("order_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// replaceAll deletes every row of model for examID and inserts rows, inside dbc.Tx when
// the caller supplied one and inside a fresh transaction otherwise.
func replaceAll[T any](dbc dbctx.Context, db *gorm.DB, model *T, examID uuid.UUID, rows []*T) error {
	if examID == uuid.Nil {
		return gorm.ErrMissingWhereClause
	}
	write := func(tx *gorm.DB) error {
		if err := tx.Where("exam_id = ?", examID).Delete(model).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	}
	if dbc.Tx != nil {
		return write(dbc.DB(db))
	}
	return dbc.DB(db).Transaction(write)
}
