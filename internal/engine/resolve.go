package engine

import (
	"fmt"

	"github.com/roach88/qflow/internal/ir"
)

// DiagnosticKind classifies a rule that failed closed.
type DiagnosticKind string

const (
	DiagDanglingTrigger DiagnosticKind = "dangling_trigger"
	DiagTypeMismatch    DiagnosticKind = "type_mismatch"
)

// RuleDiagnostic describes a rule that could not be evaluated meaningfully.
// Diagnostics never abort resolution; the rule simply does not match.
type RuleDiagnostic struct {
	Kind      DiagnosticKind `json:"kind"`
	Owner     string         `json:"owner"`      // question, group or step id
	OwnerKind string         `json:"owner_kind"` // "question", "group" or "step"
	RuleIndex int            `json:"rule_index"`
	RuleID    string         `json:"rule_id,omitempty"`
	Trigger   string         `json:"trigger"`
	Message   string         `json:"message"`
}

// Resolution is the outcome of resolving a template against an answer set.
// All slices follow template declaration order.
type Resolution struct {
	Visible       []string         `json:"visible"`
	Required      []string         `json:"required"`
	VisibleSteps  []string         `json:"visible_steps"`
	VisibleGroups []string         `json:"visible_groups,omitempty"`
	Diagnostics   []RuleDiagnostic `json:"diagnostics,omitempty"`

	visible  map[string]bool
	required map[string]bool
	steps    map[string][]string // step id → visible question ids
}

// IsVisible reports whether the question is in the visible set.
func (r Resolution) IsVisible(questionID string) bool {
	return r.visible[questionID]
}

// IsRequired reports whether the question is in the required set.
func (r Resolution) IsRequired(questionID string) bool {
	return r.required[questionID]
}

// StepQuestions returns the visible questions of a step, group instances
// included, in declaration order.
func (r Resolution) StepQuestions(stepID string) []string {
	return r.steps[stepID]
}

func (r *Resolution) add(stepID, questionID string, visible, required bool) {
	if !visible || r.visible[questionID] {
		return
	}
	r.Visible = append(r.Visible, questionID)
	r.visible[questionID] = true
	r.steps[stepID] = append(r.steps[stepID], questionID)
	if required {
		r.Required = append(r.Required, questionID)
		r.required[questionID] = true
	}
}

// Resolve computes the visible and required questions using wall-clock time
// for date-relative operators.
func Resolve(tpl *ir.Template, answers ir.AnswerSet) Resolution {
	return defaultEvaluator.Resolve(tpl, answers)
}

// Resolve computes the visible and required questions from scratch, with
// every group at its minimum instance count.
func (e *Evaluator) Resolve(tpl *ir.Template, answers ir.AnswerSet) Resolution {
	return e.ResolveInstances(tpl, answers, nil)
}

// ResolveInstances computes the visible and required questions with
// counts[groupID] instances of each group.
//
// Steps are walked in declaration order. A hidden step contributes nothing
// and its question rules are not evaluated. Every other question starts from
// its defaults and then every rule is applied in declaration order. A step's
// groups follow its questions; a visible group contributes each instance's
// questions, resolved like any other question.
func (e *Evaluator) ResolveInstances(tpl *ir.Template, answers ir.AnswerSet, counts map[string]int) Resolution {
	index := tpl.IndexInstances(counts)
	res := Resolution{
		Visible:      []string{},
		Required:     []string{},
		VisibleSteps: []string{},
		visible:      make(map[string]bool),
		required:     make(map[string]bool),
		steps:        make(map[string][]string),
	}

	for _, step := range tpl.Steps {
		stepVisible, _ := e.applyRules(step.Rules, step.DefaultVisible, false,
			ownerRef{id: step.ID, kind: "step"}, index, answers, &res.Diagnostics)
		if !stepVisible {
			continue
		}
		res.VisibleSteps = append(res.VisibleSteps, step.ID)

		for _, q := range step.Questions {
			visible, required := e.applyRules(q.Rules, q.DefaultVisible, q.DefaultRequired,
				ownerRef{id: q.ID, kind: "question"}, index, answers, &res.Diagnostics)
			res.add(step.ID, q.ID, visible, required)
		}

		for gi := range step.Groups {
			g := &step.Groups[gi]
			groupVisible, _ := e.applyRules(g.Rules, g.DefaultVisible, false,
				ownerRef{id: g.ID, kind: "group"}, index, answers, &res.Diagnostics)
			if !groupVisible {
				continue
			}
			res.VisibleGroups = append(res.VisibleGroups, g.ID)

			for n := 1; n <= g.Count(counts); n++ {
				for _, q := range g.Questions {
					iq := g.Instance(q, n)
					visible, required := e.applyRules(iq.Rules, iq.DefaultVisible, iq.DefaultRequired,
						ownerRef{id: iq.ID, kind: "question"}, index, answers, &res.Diagnostics)
					res.add(step.ID, iq.ID, visible, required)
				}
			}
		}
	}

	return res
}

type ownerRef struct {
	id   string
	kind string
}

// applyRules folds an owner's rules into its visibility and required flags.
// Any matching hide beats any matching show; any matching require beats any
// matching optional. Without a matching rule the defaults stand. The result
// is never required unless visible.
func (e *Evaluator) applyRules(
	rules []ir.Rule,
	defaultVisible, defaultRequired bool,
	owner ownerRef,
	index map[string]ir.QuestionRef,
	answers ir.AnswerSet,
	diags *[]RuleDiagnostic,
) (visible, required bool) {
	var show, hide, require, optional bool

	for i, rule := range rules {
		if _, declared := index[rule.Trigger]; !declared {
			*diags = append(*diags, RuleDiagnostic{
				Kind:      DiagDanglingTrigger,
				Owner:     owner.id,
				OwnerKind: owner.kind,
				RuleIndex: i,
				RuleID:    rule.ID,
				Trigger:   rule.Trigger,
				Message:   fmt.Sprintf("trigger %q is not declared in the template", rule.Trigger),
			})
			continue
		}

		out := e.Evaluate(rule, answers)
		if out.Mismatch != "" {
			*diags = append(*diags, RuleDiagnostic{
				Kind:      DiagTypeMismatch,
				Owner:     owner.id,
				OwnerKind: owner.kind,
				RuleIndex: i,
				RuleID:    rule.ID,
				Trigger:   rule.Trigger,
				Message:   out.Mismatch,
			})
		}
		if !out.Matched {
			continue
		}

		switch rule.Effect {
		case ir.EffectShow:
			show = true
		case ir.EffectHide:
			hide = true
		case ir.EffectRequire:
			require = true
		case ir.EffectOptional:
			optional = true
		}
	}

	visible = defaultVisible
	switch {
	case hide:
		visible = false
	case show:
		visible = true
	}

	required = defaultRequired
	switch {
	case require:
		required = true
	case optional:
		required = false
	}

	return visible, required && visible
}
