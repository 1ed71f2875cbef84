package topics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/examcourse-backend/internal/domain/exam"
	"github.com/yungbote/examcourse-backend/internal/inference/engine"
	"github.com/yungbote/examcourse-backend/internal/inference/engine/mock"
	"github.com/yungbote/examcourse-backend/internal/inference/gateway"
	"github.com/yungbote/examcourse-backend/internal/inference/router"
	"github.com/yungbote/examcourse-backend/internal/modules/coursegen/llmjson"
	"github.com/yungbote/examcourse-backend/internal/platform/logger"
)

func makeQuestions(n int) []exam.Question {
	out := make([]exam.Question, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, exam.Question{
			ID:       fmt.Sprintf("q%d", i),
			Position: i,
			Text:     fmt.Sprintf("Question number %d about something", i),
			Options:  datatypes.NewJSONType(map[string]string{"A": "first", "B": "second"}),
		})
	}
	return out
}

func testConfig() Config {
	return Config{
		Provider:          "p",
		Timeout:           time.Second,
		Retries:           0,
		BatchThreshold:    100,
		BatchSize:         40,
		MinTopics:         5,
		MaxTopics:         12,
		MaxConcepts:       5,
		RecoveryTopicName: "Additional Practice",
	}
}

func newDetector(t *testing.T, eng engine.Engine, cfg Config) *Detector {
	t.Helper()
	r := router.NewStatic(router.Route{Provider: "p", Model: "m", Engine: eng})
	gw := gateway.New(r, logger.NewNop(), gateway.WithBackoffUnit(time.Millisecond))
	return NewDetector(gw, cfg, logger.NewNop())
}

func topicsJSON(t *testing.T, topics ...replyTopic) string {
	t.Helper()
	b, err := json.Marshal(detectionReply{Topics: topics})
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func assertPartition(t *testing.T, topics []exam.DetectedTopic, questions []exam.Question) {
	t.Helper()
	seen := map[string]string{}
	for _, tp := range topics {
		for _, id := range tp.QuestionIDs {
			if prev, dup := seen[id]; dup {
				t.Fatalf("%s in both %q and %q", id, prev, tp.Name)
			}
			seen[id] = tp.Name
		}
	}
	if len(seen) != len(questions) {
		t.Fatalf("covered %d of %d questions", len(seen), len(questions))
	}
	for _, q := range questions {
		if _, ok := seen[q.ID]; !ok {
			t.Fatalf("%s missing from final topics", q.ID)
		}
	}
}

func TestDetectSingleModeRecoversAndDiscards(t *testing.T) {
	qs := makeQuestions(12)
	reply := "```json\n" + topicsJSON(t,
		replyTopic{Name: "A", QuestionIDs: []string{"q1", "q2"}, Concepts: []string{"c1", "c2", "c3", "c4", "c5", "c6"}},
		replyTopic{Name: "B", QuestionIDs: []string{"q3", "q4", "q1"}},
		replyTopic{Name: "C", QuestionIDs: []string{"q5", "q6", "nope"}},
		replyTopic{Name: "D", QuestionIDs: []string{"q7", "q8"}},
		replyTopic{Name: "E", QuestionIDs: []string{"q9", "q10"}},
	) + "\n```"
	eng := mock.New(mock.Reply{Text: reply})
	cfg := testConfig()
	cfg.Temperature = 0.3
	res, err := newDetector(t, eng, cfg).Detect(context.Background(), qs)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if res.Mode != ModeSingle || res.Batches != 1 {
		t.Fatalf("mode=%s batches=%d", res.Mode, res.Batches)
	}
	if got := eng.Requests()[0].Temperature; got != 0.3 {
		t.Fatalf("temperature=%v", got)
	}
	if len(res.Topics) != 6 {
		t.Fatalf("topics=%+v", res.Topics)
	}
	last := res.Topics[5]
	if last.Name != "Additional Practice" || !last.Recovery || strings.Join(last.QuestionIDs, ",") != "q11,q12" {
		t.Fatalf("recovery topic=%+v", last)
	}
	if got := res.Topics[1].QuestionIDs; strings.Join(got, ",") != "q3,q4" {
		t.Fatalf("duplicate claim should be discarded, B=%v", got)
	}
	if len(res.Topics[0].Concepts) != 5 {
		t.Fatalf("concepts should be capped, got %v", res.Topics[0].Concepts)
	}
	if res.Stats.Assigned != 12 || res.Stats.Duplicates != 1 || res.Stats.Invalid != 1 || res.Stats.Unassigned != 0 {
		t.Fatalf("stats=%+v", res.Stats)
	}
	assertPartition(t, res.Topics, qs)

	req := eng.Requests()[0]
	if req.ResponseFormat != engine.FormatJSON || !strings.Contains(req.Prompt, "[q12]") {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestDetectSingleModeTopicCountBounds(t *testing.T) {
	qs := makeQuestions(6)
	few := topicsJSON(t,
		replyTopic{Name: "A", QuestionIDs: []string{"q1", "q2", "q3"}},
		replyTopic{Name: "B", QuestionIDs: []string{"q4", "q5", "q6"}},
	)
	var many []replyTopic
	for i := 0; i < 13; i++ {
		many = append(many, replyTopic{Name: fmt.Sprintf("T%d", i), QuestionIDs: []string{"q1"}})
	}
	for name, reply := range map[string]string{"too few": few, "too many": topicsJSON(t, many...)} {
		_, err := newDetector(t, mock.New(mock.Reply{Text: reply}), testConfig()).Detect(context.Background(), qs)
		var ve *llmjson.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("%s: expected ValidationError, got %v", name, err)
		}
	}
}

func TestDetectSingleModeCountsDistinctNames(t *testing.T) {
	qs := makeQuestions(10)
	reply := topicsJSON(t,
		replyTopic{Name: "Algebra", QuestionIDs: []string{"q1", "q2"}},
		replyTopic{Name: "algebra", QuestionIDs: []string{"q3", "q4"}},
		replyTopic{Name: "ALGEBRA ", QuestionIDs: []string{"q5", "q6"}},
		replyTopic{Name: "Geometry", QuestionIDs: []string{"q7", "q8"}},
		replyTopic{Name: "Empty", QuestionIDs: []string{}},
	)
	_, err := newDetector(t, mock.New(mock.Reply{Text: reply}), testConfig()).Detect(context.Background(), qs)
	var ve *llmjson.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for 3 distinct names, got %v", err)
	}
	if !strings.Contains(ve.Error(), "got 3 distinct topics") {
		t.Fatalf("unexpected problems: %v", ve.Problems)
	}
}

func TestDetectAcceptsNullConcepts(t *testing.T) {
	qs := makeQuestions(5)
	reply := `{"topics":[
		{"name":"A","questionIds":["q1"],"concepts":null},
		{"name":"B","questionIds":["q2"]},
		{"name":"C","questionIds":["q3"],"concepts":["cells"]},
		{"name":"D","questionIds":["q4"],"concepts":null},
		{"name":"E","questionIds":["q5"],"concepts":[]}
	]}`
	res, err := newDetector(t, mock.New(mock.Reply{Text: reply}), testConfig()).Detect(context.Background(), qs)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(res.Topics) != 5 || len(res.Topics[0].Concepts) != 0 || res.Topics[2].Concepts[0] != "cells" {
		t.Fatalf("topics=%+v", res.Topics)
	}
	assertPartition(t, res.Topics, qs)
}

func TestDetectFailuresAreFatal(t *testing.T) {
	qs := makeQuestions(3)

	_, err := newDetector(t, mock.New(mock.Reply{Text: "sure! here are your topics"}), testConfig()).Detect(context.Background(), qs)
	var pe *llmjson.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}

	_, err = newDetector(t, mock.New(mock.Reply{Text: `{"topics":[{"name":"x","questionIds":"q1"}]}`}), testConfig()).Detect(context.Background(), qs)
	var ve *llmjson.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for schema violation, got %v", err)
	}

	_, err = newDetector(t, mock.New(mock.Reply{Err: errors.New("boom")}), testConfig()).Detect(context.Background(), qs)
	var ge *gateway.GenerationError
	if !errors.As(err, &ge) {
		t.Fatalf("expected GenerationError, got %v", err)
	}

	if _, err := newDetector(t, mock.New(), testConfig()).Detect(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty question set")
	}
}

var idLine = regexp.MustCompile(`(?m)^\[(q\d+)\]`)

func promptIDs(prompt string) []string {
	var out []string
	for _, m := range idLine.FindAllStringSubmatch(prompt, -1) {
		out = append(out, m[1])
	}
	return out
}

func TestDetectBatchedModeMergesAcrossBatches(t *testing.T) {
	qs := makeQuestions(90)
	cfg := testConfig()
	cfg.BatchThreshold = 50
	cfg.BatchSize = 30

	call := 0
	eng := mock.New()
	eng.Respond = func(req engine.ChatRequest) (string, error) {
		call++
		ids := promptIDs(req.Prompt)
		half := len(ids) / 2
		switch call {
		case 1:
			return topicsJSON(t,
				replyTopic{Name: "Algebra", QuestionIDs: ids[:half], Concepts: []string{"equations"}},
				replyTopic{Name: "Geometry", QuestionIDs: ids[half:], Concepts: []string{"angles"}},
			), nil
		case 2:
			return topicsJSON(t,
				replyTopic{Name: " algebra", QuestionIDs: ids[:half], Concepts: []string{"Equations", "inequalities"}},
				replyTopic{Name: "Probability", QuestionIDs: ids[half:]},
			), nil
		default:
			// omits the last five ids and re-claims one from batch 1
			return topicsJSON(t,
				replyTopic{Name: "GEOMETRY", QuestionIDs: append([]string{"q1"}, ids[:len(ids)-5]...)},
			), nil
		}
	}

	res, err := newDetector(t, eng, cfg).Detect(context.Background(), qs)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if res.Mode != ModeBatched || res.Batches != 3 {
		t.Fatalf("mode=%s batches=%d", res.Mode, res.Batches)
	}
	var names []string
	for _, tp := range res.Topics {
		names = append(names, tp.Name)
	}
	if strings.Join(names, "|") != "Algebra|Geometry|Probability|Additional Practice" {
		t.Fatalf("names=%v", names)
	}
	if c := res.Topics[0].Concepts; len(c) != 2 || c[1] != "inequalities" {
		t.Fatalf("algebra concepts=%v", c)
	}
	if n := len(res.Topics[3].QuestionIDs); n != 5 {
		t.Fatalf("recovery size=%d", n)
	}
	if res.Stats.Duplicates != 1 {
		t.Fatalf("stats=%+v", res.Stats)
	}
	assertPartition(t, res.Topics, qs)

	reqs := eng.Requests()
	if len(reqs) != 3 {
		t.Fatalf("requests=%d", len(reqs))
	}
	if strings.Contains(reqs[0].Prompt, "Existing topics") {
		t.Fatal("seed batch should not list existing topics")
	}
	if !strings.Contains(reqs[2].Prompt, "- Probability") || !strings.Contains(reqs[2].Prompt, "- Algebra") {
		t.Fatalf("later batch should carry accumulated names:\n%s", reqs[2].Prompt)
	}
	if ids := promptIDs(reqs[1].Prompt); len(ids) != 30 || ids[0] != "q31" {
		t.Fatalf("second batch ids=%v", ids)
	}
}

func TestDetectBatchedFirstBatchMustYieldTopics(t *testing.T) {
	cfg := testConfig()
	cfg.BatchThreshold = 2
	cfg.BatchSize = 2
	eng := mock.New(mock.Reply{Text: `{"topics":[]}`})
	_, err := newDetector(t, eng, cfg).Detect(context.Background(), makeQuestions(4))
	var ve *llmjson.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestDetectDropsTopicsThatOwnNothing(t *testing.T) {
	qs := makeQuestions(5)
	reply := topicsJSON(t,
		replyTopic{Name: "A", QuestionIDs: []string{"q1", "q2"}},
		replyTopic{Name: "B", QuestionIDs: []string{"q1"}},
		replyTopic{Name: "C", QuestionIDs: []string{"q3"}},
		replyTopic{Name: "D", QuestionIDs: []string{"q4"}},
		replyTopic{Name: "E", QuestionIDs: []string{"q5"}},
	)
	res, err := newDetector(t, mock.New(mock.Reply{Text: reply}), testConfig()).Detect(context.Background(), qs)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(res.Topics) != 4 || len(res.Dropped) != 1 || res.Dropped[0] != "B" {
		t.Fatalf("topics=%+v dropped=%v", res.Topics, res.Dropped)
	}
	assertPartition(t, res.Topics, qs)
}

func TestDetectRecoveryNameCollision(t *testing.T) {
	qs := makeQuestions(6)
	reply := topicsJSON(t,
		replyTopic{Name: "additional practice", QuestionIDs: []string{"q1"}},
		replyTopic{Name: "B", QuestionIDs: []string{"q2"}},
		replyTopic{Name: "C", QuestionIDs: []string{"q3"}},
		replyTopic{Name: "D", QuestionIDs: []string{"q4"}},
		replyTopic{Name: "E", QuestionIDs: []string{"q5"}},
	)
	res, err := newDetector(t, mock.New(mock.Reply{Text: reply}), testConfig()).Detect(context.Background(), qs)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(res.Topics) != 5 {
		t.Fatalf("recovery should merge into the existing topic: %+v", res.Topics)
	}
	got := append([]string(nil), res.Topics[0].QuestionIDs...)
	sort.Strings(got)
	if strings.Join(got, ",") != "q1,q6" || !res.Topics[0].Recovery {
		t.Fatalf("topic=%+v", res.Topics[0])
	}
}

func TestDetectBatchDelayHonorsContext(t *testing.T) {
	cfg := testConfig()
	cfg.BatchThreshold = 1
	cfg.BatchSize = 1
	cfg.BatchDelay = time.Hour
	eng := mock.New(mock.Reply{Text: topicsJSON(t, replyTopic{Name: "A", QuestionIDs: []string{"q1"}})})
	d := newDetector(t, eng, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	d.sleep = func(context.Context, time.Duration) error {
		cancel()
		return ctx.Err()
	}
	if _, err := d.Detect(ctx, makeQuestions(2)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
