package ir

import (
	"strconv"
	"strings"
)

// Group is a block of questions the user can repeat, such as one block per
// child. Instance n of group question "ad" is answered as "ad_n", counting
// from 1. A session starts every group at MinInstances.
type Group struct {
	ID             string     `json:"id"`
	Title          string     `json:"title,omitempty"`
	Description    string     `json:"description,omitempty"`
	MinInstances   int        `json:"min_instances"`
	MaxInstances   int        `json:"max_instances"`
	DefaultVisible bool       `json:"default_visible"`
	Rules          []Rule     `json:"rules,omitempty"`
	Questions      []Question `json:"questions"`
}

// InstancePlaceholder in a group question's label is replaced by the
// instance number.
const InstancePlaceholder = "{{instance}}"

// InstanceID returns the id of instance n of a group question.
func InstanceID(questionID string, n int) string {
	return questionID + "_" + strconv.Itoa(n)
}

// Instance returns the n-th copy of one of the group's questions. The id and
// label are numbered, and rule triggers naming a question of the same group
// are pointed at the same instance.
func (g *Group) Instance(q Question, n int) Question {
	out := q
	out.ID = InstanceID(q.ID, n)
	out.Label = strings.ReplaceAll(q.Label, InstancePlaceholder, strconv.Itoa(n))
	if len(q.Rules) > 0 {
		out.Rules = make([]Rule, len(q.Rules))
		for i, r := range q.Rules {
			if g.HasQuestion(r.Trigger) {
				r.Trigger = InstanceID(r.Trigger, n)
			}
			out.Rules[i] = r
		}
	}
	return out
}

// HasQuestion reports whether the group declares a question with the id.
func (g *Group) HasQuestion(id string) bool {
	for _, q := range g.Questions {
		if q.ID == id {
			return true
		}
	}
	return false
}

// InstanceQuestionIDs returns the question ids of instance n.
func (g *Group) InstanceQuestionIDs(n int) []string {
	ids := make([]string, len(g.Questions))
	for i, q := range g.Questions {
		ids[i] = InstanceID(q.ID, n)
	}
	return ids
}

// Count returns counts[g.ID], or MinInstances when counts has no entry.
func (g *Group) Count(counts map[string]int) int {
	if n, ok := counts[g.ID]; ok {
		return n
	}
	return g.MinInstances
}

// Group returns the group with the given id and the index of its step.
func (t *Template) Group(id string) (*Group, int, bool) {
	for si := range t.Steps {
		for gi := range t.Steps[si].Groups {
			if t.Steps[si].Groups[gi].ID == id {
				return &t.Steps[si].Groups[gi], si, true
			}
		}
	}
	return nil, -1, false
}

// MinInstances returns the starting instance count of every group.
func (t *Template) MinInstances() map[string]int {
	counts := make(map[string]int)
	for _, step := range t.Steps {
		for _, g := range step.Groups {
			counts[g.ID] = g.MinInstances
		}
	}
	return counts
}

// ParseInstanceID splits a group instance question id such as
// "cocuk_ad_soyad_2" into the group id and the instance number.
func (t *Template) ParseInstanceID(id string) (groupID string, n int, ok bool) {
	i := strings.LastIndexByte(id, '_')
	if i <= 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil || n < 1 || id[i+1] == '0' || id[i+1] == '+' {
		return "", 0, false
	}
	base := id[:i]
	for _, step := range t.Steps {
		for gi := range step.Groups {
			if step.Groups[gi].HasQuestion(base) {
				return step.Groups[gi].ID, n, true
			}
		}
	}
	return "", 0, false
}
