package compiler

import (
	"fmt"

	"github.com/roach88/qflow/internal/ir"
)

// Lint warning codes (W200-W299)
const (
	WarnDanglingTrigger = "W201" // trigger id not declared in the template
	WarnSelfReference   = "W202" // question rule reads its own answer
	WarnCycle           = "W203" // questions depend on each other
	WarnForwardRef      = "W204" // trigger declared after its dependent
	WarnStepRequire     = "W205" // require/optional effect on a step or group rule
)

// Warning is a non-fatal authoring problem. Templates with warnings still
// load; the engine degrades gracefully (dangling rules never match).
type Warning struct {
	Code    string   `json:"code"`
	Field   string   `json:"field"`
	Message string   `json:"message"`
	Path    []string `json:"path,omitempty"` // Cycle path for W203
}

func (w Warning) String() string {
	return fmt.Sprintf("[%s] %s: %s", w.Code, w.Field, w.Message)
}

// Lint reports authoring smells that Validate deliberately tolerates.
// Warnings are returned in declaration order, cycles last.
//
// Inside a group, a rule may name a sibling question by its declared id; it
// reads the same instance. Anywhere else, group questions are named by
// instance id ("cocuk_ad_soyad_1").
func Lint(tpl *ir.Template) []Warning {
	var warnings []Warning

	position := make(map[string]int) // question id → flat declaration position
	groupStart := make(map[string]int)
	pos := 0
	for _, step := range tpl.Steps {
		for _, q := range step.Questions {
			if _, ok := position[q.ID]; !ok {
				position[q.ID] = pos
			}
			pos++
		}
		for _, g := range step.Groups {
			groupStart[g.ID] = pos
			pos += len(g.Questions)
		}
	}
	declared := func(trigger string) (int, bool) {
		if p, ok := position[trigger]; ok {
			return p, true
		}
		if groupID, _, ok := tpl.ParseInstanceID(trigger); ok {
			return groupStart[groupID], true
		}
		return 0, false
	}

	pos = 0
	for si, step := range tpl.Steps {
		stepStart := pos
		for ri, rule := range step.Rules {
			field := fmt.Sprintf("steps[%d].rules[%d]", si, ri)
			trigger, ok := declared(rule.Trigger)
			if !ok {
				warnings = append(warnings, danglingWarning(field, "step "+step.ID, rule.Trigger))
				continue
			}
			if trigger >= stepStart {
				warnings = append(warnings, Warning{
					Code:    WarnForwardRef,
					Field:   field,
					Message: fmt.Sprintf("step %q depends on %q, which is not asked before the step", step.ID, rule.Trigger),
				})
			}
			if !rule.Effect.Visibility() {
				warnings = append(warnings, Warning{
					Code:    WarnStepRequire,
					Field:   field,
					Message: fmt.Sprintf("effect %q has no meaning on a step", rule.Effect),
				})
			}
		}

		for qi, q := range step.Questions {
			for ri, rule := range q.Rules {
				field := fmt.Sprintf("steps[%d].questions[%d].rules[%d]", si, qi, ri)
				switch trigger, ok := declared(rule.Trigger); {
				case !ok:
					warnings = append(warnings, danglingWarning(field, "question "+q.ID, rule.Trigger))
				case rule.Trigger == q.ID:
					warnings = append(warnings, selfReference(field, q.ID))
				case trigger > pos:
					warnings = append(warnings, forwardReference(field, q.ID, rule.Trigger))
				}
			}
			pos++
		}

		for gi, g := range step.Groups {
			gField := fmt.Sprintf("steps[%d].groups[%d]", si, gi)
			start := pos
			for ri, rule := range g.Rules {
				field := fmt.Sprintf("%s.rules[%d]", gField, ri)
				trigger, ok := declared(rule.Trigger)
				switch {
				case !ok:
					warnings = append(warnings, danglingWarning(field, "group "+g.ID, rule.Trigger))
				case trigger >= start:
					warnings = append(warnings, Warning{
						Code:    WarnForwardRef,
						Field:   field,
						Message: fmt.Sprintf("group %q depends on %q, which is not asked before the group", g.ID, rule.Trigger),
					})
				}
				if !rule.Effect.Visibility() {
					warnings = append(warnings, Warning{
						Code:    WarnStepRequire,
						Field:   field,
						Message: fmt.Sprintf("effect %q has no meaning on a group", rule.Effect),
					})
				}
			}

			for qi, q := range g.Questions {
				for ri, rule := range q.Rules {
					field := fmt.Sprintf("%s.questions[%d].rules[%d]", gField, qi, ri)
					if g.HasQuestion(rule.Trigger) {
						switch {
						case rule.Trigger == q.ID:
							warnings = append(warnings, selfReference(field, q.ID))
						case siblingIndex(g, rule.Trigger) > qi:
							warnings = append(warnings, forwardReference(field, q.ID, rule.Trigger))
						}
						continue
					}
					switch trigger, ok := declared(rule.Trigger); {
					case !ok:
						warnings = append(warnings, danglingWarning(field, "question "+q.ID, rule.Trigger))
					case trigger > pos:
						warnings = append(warnings, forwardReference(field, q.ID, rule.Trigger))
					}
				}
				pos++
			}
		}
	}

	warnings = append(warnings, findCycles(buildDependencyGraph(tpl))...)
	return warnings
}

func siblingIndex(g ir.Group, id string) int {
	for i, q := range g.Questions {
		if q.ID == id {
			return i
		}
	}
	return -1
}

func selfReference(field, questionID string) Warning {
	return Warning{
		Code:    WarnSelfReference,
		Field:   field,
		Message: fmt.Sprintf("question %q has a rule triggered by its own answer", questionID),
	}
}

func forwardReference(field, questionID, trigger string) Warning {
	return Warning{
		Code:    WarnForwardRef,
		Field:   field,
		Message: fmt.Sprintf("question %q depends on %q, which is declared later", questionID, trigger),
	}
}

func danglingWarning(field, owner, trigger string) Warning {
	return Warning{
		Code:    WarnDanglingTrigger,
		Field:   field,
		Message: fmt.Sprintf("%s has a rule triggered by undeclared question %q; the rule will never match", owner, trigger),
	}
}
