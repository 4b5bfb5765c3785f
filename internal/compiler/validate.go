package compiler

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/qflow/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrNoSteps           = "E101" // template has no steps
	ErrEmptyStep         = "E102" // step has no questions and no groups
	ErrDuplicateQuestion = "E103" // question id used twice
	ErrUnknownOperator   = "E104" // rule operator not recognised
	ErrUnknownEffect     = "E105" // rule effect not recognised
	ErrUnknownInputType  = "E106" // question type not recognised
	ErrEmptyID           = "E107" // template, step, question or trigger id is blank
	ErrDuplicateStep     = "E108" // step id used twice
	ErrMissingOptions    = "E109" // choice question without options
	ErrInvalidPattern    = "E110" // validation pattern does not compile
	ErrMissingRuleValue  = "E111" // operator needs a comparison value
	ErrDuplicateGroup    = "E112" // group id used twice, or a question id names a group instance
	ErrGroupBounds       = "E113" // group instance bounds are not 0 <= min <= max, max >= 1
	ErrEmptyGroup        = "E114" // group has no questions
)

// ValidationError represents a single structural problem in a template.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// InvalidTemplateError is returned when a template fails structural
// validation. It carries every problem found, not just the first.
type InvalidTemplateError struct {
	TemplateID string
	Errors     []ValidationError
}

func (e *InvalidTemplateError) Error() string {
	var b strings.Builder
	if e.TemplateID != "" {
		fmt.Fprintf(&b, "invalid template %q", e.TemplateID)
	} else {
		b.WriteString("invalid template")
	}
	fmt.Fprintf(&b, ": %d error(s)", len(e.Errors))
	for _, ve := range e.Errors {
		b.WriteString("\n  ")
		b.WriteString(ve.Error())
	}
	return b.String()
}

// IsInvalidTemplate reports whether err is an InvalidTemplateError.
func IsInvalidTemplate(err error) bool {
	var ite *InvalidTemplateError
	return errors.As(err, &ite)
}

// Validate checks a template's structure.
// Returns all errors found (does not fail-fast). Dangling rule triggers are
// not errors; see Lint.
func Validate(tpl *ir.Template) error {
	errs := Check(tpl)
	if len(errs) == 0 {
		return nil
	}
	return &InvalidTemplateError{TemplateID: tpl.ID, Errors: errs}
}

// Check returns the structural problems of a template without wrapping them.
func Check(tpl *ir.Template) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(tpl.ID) == "" {
		errs = append(errs, ValidationError{
			Field:   "id",
			Message: "template id is required",
			Code:    ErrEmptyID,
		})
	}

	// E101: at least one step
	if len(tpl.Steps) == 0 {
		errs = append(errs, ValidationError{
			Field:   "steps",
			Message: "at least one step is required",
			Code:    ErrNoSteps,
		})
	}

	stepIDs := make(map[string]bool)
	groupIDs := make(map[string]bool)
	questionIDs := make(map[string]string) // question id → field path of first declaration

	for si, step := range tpl.Steps {
		stepField := fmt.Sprintf("steps[%d]", si)

		if strings.TrimSpace(step.ID) == "" {
			errs = append(errs, ValidationError{
				Field:   stepField + ".id",
				Message: "step id is required",
				Code:    ErrEmptyID,
			})
		} else if stepIDs[step.ID] {
			errs = append(errs, ValidationError{
				Field:   stepField + ".id",
				Message: fmt.Sprintf("duplicate step id %q", step.ID),
				Code:    ErrDuplicateStep,
			})
		}
		stepIDs[step.ID] = true

		// E102: every step needs a question
		if len(step.Questions) == 0 && len(step.Groups) == 0 {
			errs = append(errs, ValidationError{
				Field:   stepField + ".questions",
				Message: fmt.Sprintf("step %q has no questions", step.ID),
				Code:    ErrEmptyStep,
			})
		}

		errs = append(errs, validateRules(step.Rules, stepField)...)

		for qi, q := range step.Questions {
			qField := fmt.Sprintf("%s.questions[%d]", stepField, qi)
			errs = append(errs, validateQuestion(q, qField, questionIDs)...)
		}

		for gi, g := range step.Groups {
			gField := fmt.Sprintf("%s.groups[%d]", stepField, gi)
			errs = append(errs, validateGroup(g, gField, groupIDs, questionIDs)...)
		}
	}

	// A step question named like a group instance would shadow it.
	for si, step := range tpl.Steps {
		for qi, q := range step.Questions {
			if groupID, n, ok := tpl.ParseInstanceID(q.ID); ok {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("steps[%d].questions[%d].id", si, qi),
					Message: fmt.Sprintf("question id %q collides with instance %d of group %q", q.ID, n, groupID),
					Code:    ErrDuplicateGroup,
				})
			}
		}
	}

	return errs
}

func validateGroup(g ir.Group, field string, groupIDs map[string]bool, questionIDs map[string]string) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(g.ID) == "" {
		errs = append(errs, ValidationError{
			Field:   field + ".id",
			Message: "group id is required",
			Code:    ErrEmptyID,
		})
	} else if groupIDs[g.ID] {
		errs = append(errs, ValidationError{
			Field:   field + ".id",
			Message: fmt.Sprintf("duplicate group id %q", g.ID),
			Code:    ErrDuplicateGroup,
		})
	}
	groupIDs[g.ID] = true

	if g.MinInstances < 0 || g.MaxInstances < 1 || g.MinInstances > g.MaxInstances {
		errs = append(errs, ValidationError{
			Field:   field + ".max_instances",
			Message: fmt.Sprintf("group %q allows %d to %d instances", g.ID, g.MinInstances, g.MaxInstances),
			Code:    ErrGroupBounds,
		})
	}

	if len(g.Questions) == 0 {
		errs = append(errs, ValidationError{
			Field:   field + ".questions",
			Message: fmt.Sprintf("group %q has no questions", g.ID),
			Code:    ErrEmptyGroup,
		})
	}

	errs = append(errs, validateRules(g.Rules, field)...)

	for qi, q := range g.Questions {
		errs = append(errs, validateQuestion(q, fmt.Sprintf("%s.questions[%d]", field, qi), questionIDs)...)
	}
	return errs
}

func validateQuestion(q ir.Question, field string, seen map[string]string) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(q.ID) == "" {
		errs = append(errs, ValidationError{
			Field:   field + ".id",
			Message: "question id is required",
			Code:    ErrEmptyID,
		})
	} else if first, dup := seen[q.ID]; dup {
		errs = append(errs, ValidationError{
			Field:   field + ".id",
			Message: fmt.Sprintf("duplicate question id %q (first declared at %s)", q.ID, first),
			Code:    ErrDuplicateQuestion,
		})
	} else {
		seen[q.ID] = field
	}

	if !q.Type.Valid() {
		errs = append(errs, ValidationError{
			Field:   field + ".type",
			Message: fmt.Sprintf("unknown input type %q", q.Type),
			Code:    ErrUnknownInputType,
		})
	} else if q.Type.HasOptions() && len(q.Options) == 0 {
		errs = append(errs, ValidationError{
			Field:   field + ".options",
			Message: fmt.Sprintf("%s question %q needs at least one option", q.Type, q.ID),
			Code:    ErrMissingOptions,
		})
	}

	if q.Validation != nil && q.Validation.Pattern != "" {
		if _, err := regexp.Compile(q.Validation.Pattern); err != nil {
			errs = append(errs, ValidationError{
				Field:   field + ".validation.pattern",
				Message: err.Error(),
				Code:    ErrInvalidPattern,
			})
		}
	}

	errs = append(errs, validateRules(q.Rules, field)...)
	return errs
}

func validateRules(rules []ir.Rule, owner string) []ValidationError {
	var errs []ValidationError

	for i, rule := range rules {
		field := fmt.Sprintf("%s.rules[%d]", owner, i)

		if strings.TrimSpace(rule.Trigger) == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".trigger",
				Message: "rule trigger is required",
				Code:    ErrEmptyID,
			})
		}

		if !rule.Operator.Valid() {
			errs = append(errs, ValidationError{
				Field:   field + ".operator",
				Message: fmt.Sprintf("unknown operator %q", rule.Operator),
				Code:    ErrUnknownOperator,
			})
		} else if rule.Operator.NeedsValue() && rule.Value == nil {
			errs = append(errs, ValidationError{
				Field:   field + ".value",
				Message: fmt.Sprintf("operator %q needs a comparison value; a null value counts as missing, test for an unanswered trigger with %q", rule.Operator, ir.OpIsEmpty),
				Code:    ErrMissingRuleValue,
			})
		}

		if !rule.Effect.Valid() {
			errs = append(errs, ValidationError{
				Field:   field + ".effect",
				Message: fmt.Sprintf("unknown effect %q", rule.Effect),
				Code:    ErrUnknownEffect,
			})
		}
	}

	return errs
}
