package leakage

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/yungbote/examcourse-backend/internal/domain/exam"
)

const (
	DefaultThreshold   = 0.30
	DefaultShingleSize = 5
	minWordLen         = 4
	maxReportedOverlap = 5
)

// Report is advisory; callers decide what to do with it.
type Report struct {
	HasLeakage   bool     `json:"has_leakage"`
	Similarity   float64  `json:"similarity"`
	ExactOverlap []string `json:"exact_overlap,omitempty"`
	Details      string   `json:"details,omitempty"`
}

type Detector struct {
	// Threshold is the word-set Jaccard similarity at or above which leakage is flagged.
	Threshold float64
	// ShingleSize is the length of the exact word sequences compared.
	ShingleSize int
}

func New(threshold float64, shingleSize int) Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if shingleSize <= 0 {
		shingleSize = DefaultShingleSize
	}
	return Detector{Threshold: threshold, ShingleSize: shingleSize}
}

// Detect compares candidate against the concatenation of sources.
func (d Detector) Detect(candidate string, sources []string) Report {
	if d.Threshold <= 0 || d.ShingleSize <= 0 {
		d = New(d.Threshold, d.ShingleSize)
	}
	candWords := tokenize(candidate)
	srcWords := tokenize(strings.Join(sources, " "))

	rep := Report{Similarity: jaccard(significant(candWords), significant(srcWords))}
	rep.ExactOverlap = overlaps(candWords, srcWords, d.ShingleSize)

	var details []string
	if rep.Similarity >= d.Threshold {
		rep.HasLeakage = true
		details = append(details, fmt.Sprintf("word similarity %.2f >= %.2f", rep.Similarity, d.Threshold))
	}
	if len(rep.ExactOverlap) > 0 {
		rep.HasLeakage = true
		details = append(details, fmt.Sprintf("%d-word sequence copied: %q", d.ShingleSize, rep.ExactOverlap[0]))
	}
	rep.Details = strings.Join(details, "; ")
	return rep
}

// SourcesFor flattens question and option text into the source list for Detect.
func SourcesFor(questions []exam.Question) []string {
	var out []string
	for _, q := range questions {
		if s := strings.TrimSpace(q.Text); s != "" {
			out = append(out, s)
		}
		for _, opt := range q.OptionTexts() {
			if s := strings.TrimSpace(opt); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func significant(words []string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len([]rune(w)) >= minWordLen {
			out[w] = struct{}{}
		}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func overlaps(cand, src []string, n int) []string {
	if len(cand) < n || len(src) < n {
		return nil
	}
	grams := make(map[string]struct{}, len(src)-n+1)
	for i := 0; i+n <= len(src); i++ {
		grams[strings.Join(src[i:i+n], " ")] = struct{}{}
	}
	var out []string
	seen := map[string]bool{}
	for i := 0; i+n <= len(cand); i++ {
		g := strings.Join(cand[i:i+n], " ")
		if _, ok := grams[g]; ok && !seen[g] {
			seen[g] = true
			out = append(out, g)
			if len(out) == maxReportedOverlap {
				break
			}
		}
	}
	return out
}
