package ir

import (
	"fmt"
	"strings"
)

// Template is a compiled questionnaire definition.
type Template struct {
	ID          string   `json:"id"`
	Category    string   `json:"category"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Version     string   `json:"version,omitempty"`
	Steps       []Step   `json:"steps"`
	Metadata    Metadata `json:"metadata"`
}

// Metadata carries descriptive data that never affects evaluation.
type Metadata struct {
	EstimatedMinutes int      `json:"estimated_minutes,omitempty"`
	Difficulty       string   `json:"difficulty,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	LegalReferences  []string `json:"legal_references,omitempty"`
}

// Step is an ordered group of questions, followed by its repeatable groups.
// If the step's rules hide it, none of its questions are visible.
type Step struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	DefaultVisible bool       `json:"default_visible"`
	Rules          []Rule     `json:"rules,omitempty"`
	Questions      []Question `json:"questions"`
	Groups         []Group    `json:"groups,omitempty"`
}

// Question is a single field within a step.
type Question struct {
	ID              string      `json:"id"`
	Label           string      `json:"label"`
	Type            InputType   `json:"type"`
	DefaultVisible  bool        `json:"default_visible"`
	DefaultRequired bool        `json:"default_required"`
	Rules           []Rule      `json:"rules,omitempty"`
	Options         []Option    `json:"options,omitempty"`
	Validation      *Validation `json:"validation,omitempty"`
	HelpText        string      `json:"help_text,omitempty"`
	Placeholder     string      `json:"placeholder,omitempty"`
}

// Option is a selectable choice for select, radio and multi-select questions.
type Option struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// Validation holds per-question answer constraints.
// Nil pointers mean "no constraint".
type Validation struct {
	MinLength *int     `json:"min_length,omitempty" yaml:"min_length,omitempty"`
	MaxLength *int     `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	Min       *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max       *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Pattern   string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Message   string   `json:"message,omitempty" yaml:"message,omitempty"` // Overrides the pattern failure message
}

// Rule is a conditional rule attached to a question or step.
// When the trigger question's answer satisfies Operator/Value, Effect is
// applied to the owning question or step.
type Rule struct {
	ID          string   `json:"id,omitempty"`
	Trigger     string   `json:"trigger"`
	Operator    Operator `json:"operator"`
	Value       Value    `json:"value,omitempty"`
	Effect      Effect   `json:"effect"`
	Negate      bool     `json:"negate,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Operator is the closed set of rule comparison operators.
type Operator string

const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "not_equals"
	OpContains       Operator = "contains"
	OpNotContains    Operator = "not_contains"
	OpGreaterThan    Operator = "greater_than"
	OpLessThan       Operator = "less_than"
	OpIsSet          Operator = "is_set"
	OpIsEmpty        Operator = "is_empty"
	OpOlderThanYears Operator = "older_than_years"
	OpWithinLastDays Operator = "within_last_days"
)

// operatorAliases maps accepted spellings to canonical operators.
// Keys are already normalised by normalizeToken.
var operatorAliases = map[string]Operator{
	"equals":                   OpEquals,
	"eq":                       OpEquals,
	"not_equals":               OpNotEquals,
	"neq":                      OpNotEquals,
	"contains":                 OpContains,
	"not_contains":             OpNotContains,
	"greater_than":             OpGreaterThan,
	"gt":                       OpGreaterThan,
	"date_is_after":            OpGreaterThan,
	"less_than":                OpLessThan,
	"lt":                       OpLessThan,
	"date_is_before":           OpLessThan,
	"is_set":                   OpIsSet,
	"is_not_empty":             OpIsSet,
	"is_empty":                 OpIsEmpty,
	"older_than_years":         OpOlderThanYears,
	"date_is_older_than_years": OpOlderThanYears,
	"within_last_days":         OpWithinLastDays,
	"date_is_within_last_days": OpWithinLastDays,
}

// ParseOperator resolves an operator spelling ("equals", "not-equals",
// "IS_NOT_EMPTY", ...) to its canonical form.
func ParseOperator(s string) (Operator, error) {
	if op, ok := operatorAliases[normalizeToken(s)]; ok {
		return op, nil
	}
	return "", fmt.Errorf("unknown operator %q", s)
}

// Valid reports whether op is one of the canonical operators.
func (op Operator) Valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpNotContains, OpGreaterThan,
		OpLessThan, OpIsSet, OpIsEmpty, OpOlderThanYears, OpWithinLastDays:
		return true
	}
	return false
}

// NeedsValue reports whether the operator compares against Rule.Value.
func (op Operator) NeedsValue() bool {
	return op != OpIsSet && op != OpIsEmpty
}

// Effect is what a matching rule does to its owner.
type Effect string

const (
	EffectShow     Effect = "show"
	EffectHide     Effect = "hide"
	EffectRequire  Effect = "require"
	EffectOptional Effect = "optional"
)

var effectAliases = map[string]Effect{
	"show":              EffectShow,
	"show_question":     EffectShow,
	"hide":              EffectHide,
	"hide_question":     EffectHide,
	"require":           EffectRequire,
	"required":          EffectRequire,
	"require_question":  EffectRequire,
	"optional":          EffectOptional,
	"optional_question": EffectOptional,
}

// ParseEffect resolves an effect spelling to its canonical form.
func ParseEffect(s string) (Effect, error) {
	if e, ok := effectAliases[normalizeToken(s)]; ok {
		return e, nil
	}
	return "", fmt.Errorf("unknown effect %q", s)
}

// Valid reports whether e is one of the canonical effects.
func (e Effect) Valid() bool {
	switch e {
	case EffectShow, EffectHide, EffectRequire, EffectOptional:
		return true
	}
	return false
}

// Visibility reports whether the effect acts on the visibility dimension.
func (e Effect) Visibility() bool {
	return e == EffectShow || e == EffectHide
}

// InputType is the closed set of question input types.
type InputType string

const (
	InputText         InputType = "text"
	InputParagraph    InputType = "paragraph"
	InputEmail        InputType = "email"
	InputPhone        InputType = "phone"
	InputSingleSelect InputType = "single_select"
	InputMultiSelect  InputType = "multi_select"
	InputRadio        InputType = "radio"
	InputCheckbox     InputType = "checkbox"
	InputDate         InputType = "date"
	InputNumber       InputType = "number"
)

var inputTypeAliases = map[string]InputType{
	"text":            InputText,
	"paragraph":       InputParagraph,
	"textarea":        InputParagraph,
	"email":           InputEmail,
	"phone":           InputPhone,
	"tel":             InputPhone,
	"single_select":   InputSingleSelect,
	"select":          InputSingleSelect,
	"multiple_choice": InputSingleSelect,
	"multi_select":    InputMultiSelect,
	"radio":           InputRadio,
	"checkbox":        InputCheckbox,
	"boolean":         InputCheckbox,
	"date":            InputDate,
	"number":          InputNumber,
	"currency":        InputNumber,
	"percentage":      InputNumber,
}

// ParseInputType resolves an input type spelling to its canonical form.
func ParseInputType(s string) (InputType, error) {
	if t, ok := inputTypeAliases[normalizeToken(s)]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown input type %q", s)
}

// Valid reports whether t is one of the canonical input types.
func (t InputType) Valid() bool {
	switch t {
	case InputText, InputParagraph, InputEmail, InputPhone, InputSingleSelect,
		InputMultiSelect, InputRadio, InputCheckbox, InputDate, InputNumber:
		return true
	}
	return false
}

// HasOptions reports whether answers must come from Question.Options.
func (t InputType) HasOptions() bool {
	return t == InputSingleSelect || t == InputMultiSelect || t == InputRadio
}

// normalizeToken lowercases and maps '-' and ' ' to '_'.
func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "_", " ", "_").Replace(s)
}

// QuestionRef locates a question inside a template. For a group instance
// question, QuestionIndex indexes the group's questions and Instance counts
// from 1; Instance is 0 for every other question.
type QuestionRef struct {
	StepIndex     int
	QuestionIndex int
	StepID        string
	GroupIndex    int
	Instance      int
}

// InGroup reports whether the ref points into a group instance.
func (r QuestionRef) InGroup() bool { return r.Instance > 0 }

// Index maps question id to its location, with every group at its minimum
// instance count. For duplicated ids (an invalid template) the first
// declaration wins.
func (t *Template) Index() map[string]QuestionRef {
	return t.IndexInstances(nil)
}

// IndexInstances is Index with counts[groupID] instances of each group.
// Groups missing from counts have their minimum.
func (t *Template) IndexInstances(counts map[string]int) map[string]QuestionRef {
	idx := make(map[string]QuestionRef)
	add := func(id string, ref QuestionRef) {
		if _, dup := idx[id]; !dup {
			idx[id] = ref
		}
	}
	for si, step := range t.Steps {
		for qi, q := range step.Questions {
			add(q.ID, QuestionRef{StepIndex: si, QuestionIndex: qi, StepID: step.ID})
		}
		for gi := range step.Groups {
			g := &step.Groups[gi]
			for n := 1; n <= g.Count(counts); n++ {
				for qi, q := range g.Questions {
					add(InstanceID(q.ID, n), QuestionRef{
						StepIndex: si, QuestionIndex: qi, StepID: step.ID,
						GroupIndex: gi, Instance: n,
					})
				}
			}
		}
	}
	return idx
}

// QuestionAt returns the question a ref points to. Group instance questions
// come back numbered; see Group.Instance.
func (t *Template) QuestionAt(ref QuestionRef) Question {
	step := &t.Steps[ref.StepIndex]
	if !ref.InGroup() {
		return step.Questions[ref.QuestionIndex]
	}
	g := &step.Groups[ref.GroupIndex]
	return g.Instance(g.Questions[ref.QuestionIndex], ref.Instance)
}

// Question returns the step-level question with the given id.
func (t *Template) Question(id string) (*Question, bool) {
	for si := range t.Steps {
		for qi := range t.Steps[si].Questions {
			if t.Steps[si].Questions[qi].ID == id {
				return &t.Steps[si].Questions[qi], true
			}
		}
	}
	return nil, false
}

// QuestionCount returns the number of declared questions. A group's
// questions count once, whatever its instance count.
func (t *Template) QuestionCount() int {
	n := 0
	for _, step := range t.Steps {
		n += len(step.Questions)
		for _, g := range step.Groups {
			n += len(g.Questions)
		}
	}
	return n
}
