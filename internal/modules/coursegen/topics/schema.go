package topics

import (
	"github.com/yungbote/examcourse-backend/internal/domain/exam"
)

type detectionReply struct {
	Topics []replyTopic `json:"topics"`
}

type replyTopic struct {
	Name        string   `json:"name"`
	QuestionIDs []string `json:"questionIds"`
	Concepts    []string `json:"concepts"`
}

func (r detectionReply) detected() []exam.DetectedTopic {
	out := make([]exam.DetectedTopic, 0, len(r.Topics))
	for _, t := range r.Topics {
		out = append(out, exam.DetectedTopic{Name: t.Name, QuestionIDs: t.QuestionIDs, Concepts: t.Concepts})
	}
	return out
}

func stringArraySchema() map[string]any {
	return map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}
}

func detectionSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"topics": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":        map[string]any{"type": "string", "minLength": 1},
						"questionIds": stringArraySchema(),
						"concepts": map[string]any{
							"type":  []string{"array", "null"},
							"items": map[string]any{"type": "string"},
						},
					},
					"required": []string{"name", "questionIds"},
				},
			},
		},
		"required": []string{"topics"},
	}
}
