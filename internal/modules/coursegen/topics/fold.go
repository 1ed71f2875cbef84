package topics

import (
	"strings"

	"github.com/yungbote/examcourse-backend/internal/domain/exam"
)

// NormalizeName is the merge key for topic names: case-folded, trimmed, inner whitespace
// collapsed. There is deliberately no fuzzy matching.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Accumulator is the topic list built up across detection batches. Fold never mutates
// its input accumulator.
type Accumulator struct {
	maxConcepts int
	topics      []exam.DetectedTopic
	index       map[string]int
}

func NewAccumulator(maxConcepts int) Accumulator {
	return Accumulator{maxConcepts: maxConcepts, index: map[string]int{}}
}

// Topics returns a copy of the accumulated topics in first-seen order.
func (a Accumulator) Topics() []exam.DetectedTopic {
	out := make([]exam.DetectedTopic, 0, len(a.topics))
	for _, t := range a.topics {
		out = append(out, t.Clone())
	}
	return out
}

func (a Accumulator) Names() []string {
	out := make([]string, 0, len(a.topics))
	for _, t := range a.topics {
		out = append(out, t.Name)
	}
	return out
}

func (a Accumulator) Len() int { return len(a.topics) }

// Canonical returns the display name already stored for name's merge key, or name itself
// (whitespace-trimmed) when the key is new.
func (a Accumulator) Canonical(name string) string {
	if i, ok := a.index[NormalizeName(name)]; ok {
		return a.topics[i].Name
	}
	return strings.Join(strings.Fields(name), " ")
}

// Fold merges one batch into acc and returns the new accumulator. A batch topic whose
// normalized name matches an existing topic extends it: question ids are appended and
// concepts unioned up to the cap. Anything else is appended as a new topic. The first
// display name seen for a key is kept. Topics with blank names are ignored.
func Fold(acc Accumulator, batch []exam.DetectedTopic) Accumulator {
	next := Accumulator{
		maxConcepts: acc.maxConcepts,
		topics:      acc.Topics(),
		index:       make(map[string]int, len(acc.index)+len(batch)),
	}
	for k, v := range acc.index {
		next.index[k] = v
	}

	for _, bt := range batch {
		key := NormalizeName(bt.Name)
		if key == "" {
			continue
		}
		i, ok := next.index[key]
		if !ok {
			next.topics = append(next.topics, exam.DetectedTopic{Name: next.Canonical(bt.Name), Recovery: bt.Recovery})
			i = len(next.topics) - 1
			next.index[key] = i
		}
		t := &next.topics[i]
		t.QuestionIDs = appendUnique(t.QuestionIDs, bt.QuestionIDs, false)
		t.Concepts = capConcepts(appendUnique(t.Concepts, bt.Concepts, true), next.maxConcepts)
	}
	return next
}

func appendUnique(dst, src []string, foldCase bool) []string {
	seen := make(map[string]struct{}, len(dst)+len(src))
	key := func(s string) string {
		if foldCase {
			return NormalizeName(s)
		}
		return s
	}
	for _, s := range dst {
		seen[key(s)] = struct{}{}
	}
	for _, s := range src {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		k := key(s)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		dst = append(dst, s)
	}
	return dst
}

func capConcepts(in []string, max int) []string {
	if max > 0 && len(in) > max {
		return in[:max]
	}
	return in
}
