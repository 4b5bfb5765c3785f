package harness

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/qflow/internal/engine"
	"github.com/roach88/qflow/internal/ir"
)

// Assertion type constants.
const (
	AssertVisibleContains  = "visible_contains"
	AssertVisibleExcludes  = "visible_excludes"
	AssertVisibleExact     = "visible_exact"
	AssertRequiredContains = "required_contains"
	AssertRequiredExcludes = "required_excludes"
	AssertCompletion       = "completion"
	AssertComplete         = "complete"
	AssertAnswerEquals     = "answer_equals"
	AssertAnswerAbsent     = "answer_absent"
	AssertValidationError  = "validation_error"
	AssertCurrentStep      = "current_step"
	AssertGroupInstances   = "group_instances"
	AssertError            = "error" // only valid in a flow step's expect list
)

// Assertion checks one property of a snapshot.
//
// Field use by type:
//   - visible_*, required_*: Questions
//   - completion: Value (integer percentage)
//   - complete: Value (boolean)
//   - answer_equals: Question, Value
//   - answer_absent, validation_error: Question
//   - current_step: Step
//   - group_instances: Group, Value (integer instance count)
//   - error: Code (engine error code, e.g. UNKNOWN_QUESTION)
type Assertion struct {
	Type      string   `yaml:"type"`
	Questions []string `yaml:"questions,omitempty"`
	Question  string   `yaml:"question,omitempty"`
	Value     any      `yaml:"value,omitempty"`
	Step      string   `yaml:"step,omitempty"`
	Group     string   `yaml:"group,omitempty"`
	Code      string   `yaml:"code,omitempty"`
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion %s failed: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

func validateAssertion(a Assertion, inFlow bool) error {
	switch a.Type {
	case AssertVisibleContains, AssertVisibleExcludes, AssertRequiredContains, AssertRequiredExcludes:
		if len(a.Questions) == 0 {
			return fmt.Errorf("%s: questions is required", a.Type)
		}
	case AssertVisibleExact:
		// An empty list asserts that nothing is visible.
	case AssertCompletion:
		if _, err := expectedInt(a.Value); err != nil {
			return fmt.Errorf("%s: %w", a.Type, err)
		}
	case AssertComplete:
		if _, err := expectedBool(a.Value); err != nil {
			return fmt.Errorf("%s: %w", a.Type, err)
		}
	case AssertAnswerEquals:
		if a.Question == "" {
			return fmt.Errorf("%s: question is required", a.Type)
		}
		if _, err := ir.FromAny(a.Value); err != nil {
			return fmt.Errorf("%s: %w", a.Type, err)
		}
	case AssertAnswerAbsent, AssertValidationError:
		if a.Question == "" {
			return fmt.Errorf("%s: question is required", a.Type)
		}
	case AssertCurrentStep:
		if a.Step == "" {
			return fmt.Errorf("%s: step is required", a.Type)
		}
	case AssertGroupInstances:
		if a.Group == "" {
			return fmt.Errorf("%s: group is required", a.Type)
		}
		if _, err := expectedInt(a.Value); err != nil {
			return fmt.Errorf("%s: %w", a.Type, err)
		}
	case AssertError:
		if !inFlow {
			return errors.New("error assertions belong in a flow step's expect list")
		}
		if a.Code == "" {
			return fmt.Errorf("%s: code is required", a.Type)
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// checkAssertion evaluates one assertion. errCode is the engine error code
// of the submission being checked, or "" when it succeeded.
func checkAssertion(snap engine.Snapshot, errCode string, a Assertion) error {
	switch a.Type {
	case AssertVisibleContains:
		return containsAll(a.Type, snap.VisibleQuestions, a.Questions)
	case AssertVisibleExcludes:
		return excludesAll(a.Type, snap.VisibleQuestions, a.Questions)
	case AssertVisibleExact:
		want := a.Questions
		if want == nil {
			want = []string{}
		}
		if !slices.Equal(snap.VisibleQuestions, want) {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprint(want), Actual: fmt.Sprint(snap.VisibleQuestions)}
		}
	case AssertRequiredContains:
		return containsAll(a.Type, snap.RequiredQuestions, a.Questions)
	case AssertRequiredExcludes:
		return excludesAll(a.Type, snap.RequiredQuestions, a.Questions)
	case AssertCompletion:
		want, _ := expectedInt(a.Value)
		if snap.CompletionPercentage != want {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%d%%", want), Actual: fmt.Sprintf("%d%%", snap.CompletionPercentage)}
		}
	case AssertComplete:
		want, _ := expectedBool(a.Value)
		if snap.IsComplete != want {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprint(want), Actual: fmt.Sprint(snap.IsComplete)}
		}
	case AssertAnswerEquals:
		want, _ := ir.FromAny(a.Value)
		got, ok := findAnswer(snap.Answers, a.Question)
		if !ok {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s = %v", a.Question, ir.ToAny(want)), Actual: "no answer"}
		}
		if !answerMatches(got, want) {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s = %v", a.Question, ir.ToAny(want)), Actual: fmt.Sprintf("%v", ir.ToAny(got))}
		}
	case AssertAnswerAbsent:
		if got, ok := findAnswer(snap.Answers, a.Question); ok {
			return &AssertionError{Type: a.Type, Expected: "no answer for " + a.Question, Actual: fmt.Sprintf("%v", ir.ToAny(got))}
		}
	case AssertValidationError:
		if len(snap.ValidationErrors[a.Question]) == 0 {
			return &AssertionError{Type: a.Type, Expected: "validation errors on " + a.Question, Actual: "none"}
		}
	case AssertCurrentStep:
		if snap.CurrentStepID != a.Step {
			return &AssertionError{Type: a.Type, Expected: a.Step, Actual: snap.CurrentStepID}
		}
	case AssertGroupInstances:
		want, _ := expectedInt(a.Value)
		if got := snap.GroupInstances[a.Group]; got != want {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s × %d", a.Group, want), Actual: fmt.Sprint(got)}
		}
	case AssertError:
		if errCode != a.Code {
			actual := errCode
			if actual == "" {
				actual = "no error"
			}
			return &AssertionError{Type: a.Type, Expected: a.Code, Actual: actual}
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// EvaluateAssertions checks every assertion and returns the failure
// messages. An empty slice means all passed.
func EvaluateAssertions(snap engine.Snapshot, errCode string, assertions []Assertion) []string {
	var failures []string
	for _, a := range assertions {
		if err := checkAssertion(snap, errCode, a); err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func containsAll(typ string, have, want []string) error {
	var missing []string
	for _, id := range want {
		if !slices.Contains(have, id) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &AssertionError{Type: typ, Expected: fmt.Sprintf("%v present", missing), Actual: fmt.Sprint(have)}
	}
	return nil
}

func excludesAll(typ string, have, unwanted []string) error {
	var present []string
	for _, id := range unwanted {
		if slices.Contains(have, id) {
			present = append(present, id)
		}
	}
	if len(present) > 0 {
		return &AssertionError{Type: typ, Expected: fmt.Sprintf("%v absent", present), Actual: fmt.Sprint(have)}
	}
	return nil
}

func findAnswer(answers ir.AnswerSet, questionID string) (ir.Value, bool) {
	for _, fields := range answers {
		if v, ok := fields[questionID]; ok {
			return v, true
		}
	}
	return nil, false
}

// answerMatches compares structurally, letting a "YYYY-MM-DD" expectation
// match a date answer.
func answerMatches(got, want ir.Value) bool {
	if d, ok := got.(ir.Date); ok {
		if s, ok := want.(ir.String); ok {
			return d.String() == string(s)
		}
	}
	return ir.Equal(got, want)
}

func expectedInt(v any) (int, error) {
	val, err := ir.FromAny(v)
	if err != nil {
		return 0, err
	}
	n, ok := val.(ir.Number)
	if !ok || float64(n) != float64(int(n)) {
		return 0, fmt.Errorf("value must be an integer, got %v", v)
	}
	return int(n), nil
}

func expectedBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("value must be true or false, got %v", v)
	}
	return b, nil
}
