package lessons

import (
	"fmt"
	"strings"

	"github.com/yungbote/examcourse-backend/internal/domain/exam"
)

const systemPrompt = `You are an experienced tutor writing concise study lessons in markdown.
Teach the underlying ideas. Never quote, paraphrase or answer the exam questions you are shown;
they are context only. Use fresh examples of your own.`

func lessonPrompt(topic exam.DetectedTopic, qs []exam.Question, minWords, maxWords int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a lesson for the topic %q.\n", topic.Name)
	if len(topic.Concepts) > 0 {
		fmt.Fprintf(&b, "Key concepts to cover: %s.\n", strings.Join(topic.Concepts, ", "))
	}
	fmt.Fprintf(&b, "\nFormat (markdown, %d-%d words):\n", minWords, maxWords)
	fmt.Fprintf(&b, "# %s\n", topic.Name)
	for _, s := range RequiredSections {
		fmt.Fprintf(&b, "## %s\n", s)
	}

	b.WriteString("\nContext only. Do NOT quote these questions or their options:\n")
	for _, q := range qs {
		fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(q.Text))
		for _, opt := range q.OptionTexts() {
			fmt.Fprintf(&b, "    * %s\n", strings.TrimSpace(opt))
		}
	}
	return b.String()
}
