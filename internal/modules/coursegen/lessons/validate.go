package lessons

import (
	"fmt"
	"strings"

	"github.com/yungbote/examcourse-backend/internal/modules/coursegen/llmjson"
	"github.com/yungbote/examcourse-backend/internal/modules/coursegen/topics"
)

// RequiredSections are the level-two headings every lesson must carry, in any order.
var RequiredSections = []string{"Overview", "Key Concepts", "Worked Example", "Common Pitfalls", "Summary"}

func WordCount(md string) int {
	return len(strings.Fields(md))
}

// ValidateLesson checks that md opens with "# <topic>", has every required "##" section,
// and has between minWords and maxWords words (inclusive).
func ValidateLesson(md, topic string, minWords, maxWords int) error {
	var problems []string

	var firstHeading string
	sections := map[string]bool{}
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "#") {
			continue
		}
		if firstHeading == "" {
			firstHeading = line
		}
		if rest, ok := strings.CutPrefix(line, "## "); ok {
			sections[topics.NormalizeName(strings.TrimRight(rest, " :#"))] = true
		}
	}

	title, isH1 := strings.CutPrefix(firstHeading, "# ")
	if !isH1 || topics.NormalizeName(title) != topics.NormalizeName(topic) {
		problems = append(problems, fmt.Sprintf("top heading must be %q", "# "+topic))
	}
	for _, s := range RequiredSections {
		if !sections[topics.NormalizeName(s)] {
			problems = append(problems, fmt.Sprintf("missing section %q", "## "+s))
		}
	}
	n := WordCount(md)
	if n < minWords || (maxWords > 0 && n > maxWords) {
		problems = append(problems, fmt.Sprintf("word count %d outside %d-%d", n, minWords, maxWords))
	}
	return llmjson.Invalid("lesson "+topic, problems...)
}
