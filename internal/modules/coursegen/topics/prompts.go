package topics

import (
	"fmt"
	"strings"

	"github.com/yungbote/examcourse-backend/internal/domain/exam"
)

const systemPrompt = `You are an expert curriculum designer. You group exam questions into study topics.
Return only JSON matching: {"topics":[{"name":string,"questionIds":[string],"concepts":[string]}]}.
Use question ids exactly as given. Every question belongs to exactly one topic.`

func renderQuestions(b *strings.Builder, qs []exam.Question) {
	for _, q := range qs {
		fmt.Fprintf(b, "[%s] %s\n", q.ID, strings.TrimSpace(q.Text))
		opts := q.Options.Data()
		for _, label := range exam.SortedLabels(opts) {
			fmt.Fprintf(b, "    %s) %s\n", label, strings.TrimSpace(opts[label]))
		}
	}
}

func singlePrompt(qs []exam.Question, minTopics, maxTopics, maxConcepts int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Group the following %d exam questions into between %d and %d topics.\n", len(qs), minTopics, maxTopics)
	fmt.Fprintf(&b, "For each topic give a short descriptive name, the ids of its questions, and up to %d key concepts.\n\n", maxConcepts)
	b.WriteString("Questions:\n")
	renderQuestions(&b, qs)
	return b.String()
}

func seedPrompt(qs []exam.Question, batch, total, maxConcepts int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "This is batch %d of %d from a larger exam. Establish the topic vocabulary for the whole exam.\n", batch, total)
	b.WriteString("Choose broad, reusable topic names that later batches can also fit into.\n")
	fmt.Fprintf(&b, "For each topic give the name, the ids of its questions from this batch, and up to %d key concepts.\n\n", maxConcepts)
	b.WriteString("Questions:\n")
	renderQuestions(&b, qs)
	return b.String()
}

func continuePrompt(qs []exam.Question, batch, total, maxConcepts int, existing []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "This is batch %d of %d from a larger exam.\n", batch, total)
	b.WriteString("Existing topics (reuse these exact names whenever a question fits):\n")
	for _, name := range existing {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	b.WriteString("Only introduce a new topic when no existing topic fits.\n")
	fmt.Fprintf(&b, "For each topic used give the name, the ids of its questions from this batch, and up to %d key concepts.\n\n", maxConcepts)
	b.WriteString("Questions:\n")
	renderQuestions(&b, qs)
	return b.String()
}
