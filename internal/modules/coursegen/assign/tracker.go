package assign

import (
	"fmt"

	"github.com/yungbote/examcourse-backend/internal/domain/exam"
)

// RecoveryConcepts is attached to every recovery topic.
var RecoveryConcepts = []string{"Mixed review", "Core definitions", "Problem solving practice"}

const (
	WarningDuplicate = "duplicate"
	WarningInvalid   = "invalid"
)

// AssignmentWarning describes a claim that was discarded. Owner is set for duplicates.
type AssignmentWarning struct {
	Kind       string `json:"kind"`
	QuestionID string `json:"question_id"`
	Topic      string `json:"topic"`
	Owner      string `json:"owner,omitempty"`
}

func (w AssignmentWarning) String() string {
	if w.Kind == WarningDuplicate {
		return fmt.Sprintf("question %s claimed by %q already owned by %q", w.QuestionID, w.Topic, w.Owner)
	}
	return fmt.Sprintf("unknown question id %q returned for %q", w.QuestionID, w.Topic)
}

type Result struct {
	Assigned     int      `json:"assigned"`
	Duplicates   int      `json:"duplicates"`
	Invalid      int      `json:"invalid"`
	DuplicateIDs []string `json:"duplicate_ids,omitempty"`
	InvalidIDs   []string `json:"invalid_ids,omitempty"`
}

type Stats struct {
	Total      int `json:"total"`
	Assigned   int `json:"assigned"`
	Duplicates int `json:"duplicates"`
	Invalid    int `json:"invalid"`
	Unassigned int `json:"unassigned"`
}

type Validation struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors,omitempty"`
}

// Tracker records which topic owns each question of one run. It is not safe for
// concurrent use; a run's detection batches are folded sequentially.
type Tracker struct {
	order  []string
	valid  map[string]struct{}
	owner  map[string]string
	claims map[string][]string

	duplicates int
	invalid    int
	warnings   []AssignmentWarning
}

func New(validIDs []string) *Tracker {
	t := &Tracker{
		valid:  make(map[string]struct{}, len(validIDs)),
		owner:  make(map[string]string, len(validIDs)),
		claims: map[string][]string{},
	}
	for _, id := range validIDs {
		if _, seen := t.valid[id]; seen {
			continue
		}
		t.valid[id] = struct{}{}
		t.order = append(t.order, id)
	}
	return t
}

// Assign records topic's claim on ids. The first topic to claim a question keeps it;
// later claims by other topics count as duplicates and unknown ids count as invalid.
// Repeating a claim for the owning topic is a no-op.
func (t *Tracker) Assign(topic string, ids []string) Result {
	var res Result
	for _, id := range ids {
		if _, ok := t.valid[id]; !ok {
			res.Invalid++
			res.InvalidIDs = append(res.InvalidIDs, id)
			t.invalid++
			t.warnings = append(t.warnings, AssignmentWarning{Kind: WarningInvalid, QuestionID: id, Topic: topic})
			continue
		}
		owner, taken := t.owner[id]
		if taken {
			if owner == topic {
				continue
			}
			res.Duplicates++
			res.DuplicateIDs = append(res.DuplicateIDs, id)
			t.duplicates++
			t.claims[id] = append(t.claims[id], topic)
			t.warnings = append(t.warnings, AssignmentWarning{Kind: WarningDuplicate, QuestionID: id, Topic: topic, Owner: owner})
			continue
		}
		t.owner[id] = topic
		t.claims[id] = []string{topic}
		res.Assigned++
	}
	return res
}

// Unassigned returns unclaimed ids in input order.
func (t *Tracker) Unassigned() []string {
	var out []string
	for _, id := range t.order {
		if _, ok := t.owner[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// CreateRecoveryTopic assigns every unclaimed question to a new topic called name.
// It returns nil when nothing is left to recover.
func (t *Tracker) CreateRecoveryTopic(name string) *exam.DetectedTopic {
	ids := t.Unassigned()
	if len(ids) == 0 {
		return nil
	}
	t.Assign(name, ids)
	return &exam.DetectedTopic{
		Name:        name,
		QuestionIDs: ids,
		Concepts:    append([]string(nil), RecoveryConcepts...),
		Recovery:    true,
	}
}

// Owner reports the topic that owns id.
func (t *Tracker) Owner(id string) (string, bool) {
	o, ok := t.owner[id]
	return o, ok
}

// Conflicts maps each contested question to every topic that claimed it, owner first.
func (t *Tracker) Conflicts() map[string][]string {
	out := map[string][]string{}
	for id, topics := range t.claims {
		if len(topics) > 1 {
			out[id] = append([]string(nil), topics...)
		}
	}
	return out
}

func (t *Tracker) Warnings() []AssignmentWarning {
	return append([]AssignmentWarning(nil), t.warnings...)
}

func (t *Tracker) Stats() Stats {
	return Stats{
		Total:      len(t.order),
		Assigned:   len(t.owner),
		Duplicates: t.duplicates,
		Invalid:    t.invalid,
		Unassigned: len(t.order) - len(t.owner),
	}
}

// Validate fails only on unassigned questions. Conflicts are listed as errors but were
// already resolved first-wins, so they do not make the result invalid.
func (t *Tracker) Validate() Validation {
	v := Validation{IsValid: true}
	if missing := t.Unassigned(); len(missing) > 0 {
		v.IsValid = false
		v.Errors = append(v.Errors, fmt.Sprintf("%d question(s) unassigned: %v", len(missing), missing))
	}
	for _, id := range t.order {
		if topics, ok := t.claims[id]; ok && len(topics) > 1 {
			v.Errors = append(v.Errors, fmt.Sprintf("question %s claimed by %d topics %v, kept %q", id, len(topics), topics, topics[0]))
		}
	}
	return v
}
