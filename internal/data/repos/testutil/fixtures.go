package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/examcourse-backend/internal/domain/exam"
)

func SeedExam(tb testing.TB, db *gorm.DB, ownerID uuid.UUID, title string) *types.Exam {
	tb.Helper()
	e := &types.Exam{ID: uuid.New(), OwnerUserID: ownerID, Title: title}
	if err := db.Create(e).Error; err != nil {
		tb.Fatalf("seed exam: %v", err)
	}
	return e
}

// SeedQuestions inserts n questions with ids "<prefix>-1".."<prefix>-n".
func SeedQuestions(tb testing.TB, db *gorm.DB, examID uuid.UUID, prefix string, n int) []types.Question {
	tb.Helper()
	rows := make([]*types.Question, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, &types.Question{
			ID:       fmt.Sprintf("%s-%d", prefix, i),
			ExamID:   examID,
			Position: i,
			Text:     fmt.Sprintf("Sample question %d", i),
			Options: datatypes.NewJSONType(map[string]string{
				"A": fmt.Sprintf("option a%d", i),
				"B": fmt.Sprintf("option b%d", i),
			}),
			CorrectAnswer: "A",
		})
	}
	if len(rows) > 0 {
		if err := db.Create(&rows).Error; err != nil {
			tb.Fatalf("seed questions: %v", err)
		}
	}
	out := make([]types.Question, 0, n)
	for _, r := range rows {
		out = append(out, *r)
	}
	return out
}
