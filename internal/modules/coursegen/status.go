package coursegen

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/yungbote/examcourse-backend/internal/domain/exam"
	"github.com/yungbote/examcourse-backend/internal/platform/apierr"
	"github.com/yungbote/examcourse-backend/internal/platform/dbctx"
)

type SectionView struct {
	TopicName       string `json:"topic_name"`
	OrderIndex      int    `json:"order_index"`
	WordCount       int    `json:"word_count"`
	ContentMarkdown string `json:"content_markdown"`
}

type CourseStatus struct {
	ExamID        uuid.UUID           `json:"exam_id"`
	Run           *exam.GenerationRun `json:"run,omitempty"`
	Topics        []TopicSummary      `json:"topics"`
	Sections      []SectionView       `json:"sections"`
	TotalSections int                 `json:"total_sections"`
}

// Status reports the persisted course for an exam. Topics and sections are written in
// separate steps, so a topic whose run has no matching section is reported as
// pending_lesson rather than treated as an error.
func (s *Service) Status(ctx context.Context, examID, userID uuid.UUID) (*CourseStatus, error) {
	if userID == uuid.Nil {
		return nil, apierr.New(http.StatusUnauthorized, "unauthorized", nil)
	}
	if _, err := s.ownedExam(ctx, examID, userID); err != nil {
		return nil, err
	}
	dbc := dbctx.New(ctx)

	run, err := s.deps.Repos.Runs.LatestByExam(dbc, examID)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "load_runs_failed", err)
	}
	topicRows, err := s.deps.Repos.Topics.ListByExamID(dbc, examID)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "load_topics_failed", err)
	}
	sectionRows, err := s.deps.Repos.Sections.ListByExamID(dbc, examID)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "load_sections_failed", err)
	}

	type key struct {
		run  uuid.UUID
		name string
	}
	have := make(map[key]bool, len(sectionRows))
	out := &CourseStatus{ExamID: examID, Run: run, Topics: []TopicSummary{}, Sections: []SectionView{}}
	for _, sec := range sectionRows {
		have[key{sec.RunID, sec.TopicName}] = true
	}
	current := map[uuid.UUID]bool{}
	for _, t := range topicRows {
		current[t.RunID] = true
		status := TopicStatusPendingLesson
		if have[key{t.RunID, t.Name}] {
			status = TopicStatusReady
		}
		out.Topics = append(out.Topics, TopicSummary{
			Name:          t.Name,
			Status:        status,
			QuestionCount: len(t.QuestionIDs.Data()),
		})
	}
	// Sections left over from an earlier run belong to topics that were since replaced.
	for _, sec := range sectionRows {
		if !current[sec.RunID] {
			continue
		}
		out.Sections = append(out.Sections, SectionView{
			TopicName:       sec.TopicName,
			OrderIndex:      sec.OrderIndex,
			WordCount:       sec.WordCount,
			ContentMarkdown: sec.ContentMarkdown,
		})
	}
	out.TotalSections = len(out.Sections)
	return out, nil
}
