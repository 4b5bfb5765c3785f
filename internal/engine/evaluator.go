package engine

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/roach88/qflow/internal/ir"
)

// Outcome is the result of evaluating one rule.
//
// Mismatch is non-empty when the rule failed closed because the answer and
// the rule value cannot be compared (e.g. greater_than on free text). It is
// diagnostic only; Matched is already false.
type Outcome struct {
	Matched  bool
	Missing  bool // trigger has no answer
	Mismatch string
}

// Evaluator evaluates conditional rules against an answer set.
// The zero value uses wall-clock time for date-relative operators.
type Evaluator struct {
	now func() time.Time
}

// NewEvaluator returns an evaluator that reads "today" from now.
// A nil now falls back to time.Now.
func NewEvaluator(now func() time.Time) *Evaluator {
	return &Evaluator{now: now}
}

var defaultEvaluator = &Evaluator{}

// Matches reports whether rule matches answers, using wall-clock time for
// date-relative operators.
func Matches(rule ir.Rule, answers ir.AnswerSet) bool {
	return defaultEvaluator.Evaluate(rule, answers).Matched
}

// Evaluate evaluates a single rule.
//
// Contract:
//   - is_set / is_empty resolve normally when the trigger has no answer.
//   - Every other operator is false when the trigger has no answer.
//   - Incomparable types fail closed with a Mismatch description.
//   - Negate inverts a comparable result; missing answers and mismatches
//     stay false.
func (e *Evaluator) Evaluate(rule ir.Rule, answers ir.AnswerSet) Outcome {
	answer, ok := lookup(answers, rule.Trigger)

	switch rule.Operator {
	case ir.OpIsSet:
		return Outcome{Matched: rule.Negate != !ir.IsEmpty(answer), Missing: !ok}
	case ir.OpIsEmpty:
		return Outcome{Matched: rule.Negate != ir.IsEmpty(answer), Missing: !ok}
	}

	if !ok {
		return Outcome{Missing: true}
	}
	if _, isNull := answer.(ir.Null); isNull {
		return Outcome{Missing: true}
	}

	matched, mismatch := e.compare(rule.Operator, answer, rule.Value)
	if mismatch != "" {
		return Outcome{Mismatch: mismatch}
	}
	return Outcome{Matched: rule.Negate != matched}
}

// lookup finds a question's answer. Question ids are unique across a
// template, so the owning step does not need to be known.
func lookup(answers ir.AnswerSet, questionID string) (ir.Value, bool) {
	for _, fields := range answers {
		if v, ok := fields[questionID]; ok {
			return v, true
		}
	}
	return nil, false
}

func (e *Evaluator) compare(op ir.Operator, answer, want ir.Value) (bool, string) {
	switch op {
	case ir.OpEquals:
		return valuesEqual(answer, want), ""
	case ir.OpNotEquals:
		return !valuesEqual(answer, want), ""
	case ir.OpContains:
		return contains(answer, want)
	case ir.OpNotContains:
		found, mismatch := contains(answer, want)
		return !found, mismatch
	case ir.OpGreaterThan:
		c, mismatch := order(answer, want)
		return c > 0, mismatch
	case ir.OpLessThan:
		c, mismatch := order(answer, want)
		return c < 0, mismatch
	case ir.OpOlderThanYears:
		d, n, mismatch := dateAndCount(answer, want)
		if mismatch != "" {
			return false, mismatch
		}
		cutoff := e.today().AddDate(-n, 0, 0)
		return d.Time().Before(cutoff), ""
	case ir.OpWithinLastDays:
		d, n, mismatch := dateAndCount(answer, want)
		if mismatch != "" {
			return false, mismatch
		}
		cutoff := e.today().AddDate(0, 0, -n)
		return !d.Time().Before(cutoff), ""
	default:
		return false, fmt.Sprintf("unsupported operator %q", op)
	}
}

func (e *Evaluator) today() time.Time {
	now := time.Now
	if e != nil && e.now != nil {
		now = e.now
	}
	return ir.DateOf(now()).Time()
}

// valuesEqual is structural equality, except that a date answer also equals
// a rule value spelling the same day.
func valuesEqual(answer, want ir.Value) bool {
	if d, ok := answer.(ir.Date); ok {
		if s, ok := want.(ir.String); ok {
			parsed, err := ir.ParseDate(string(s))
			return err == nil && d.Time().Equal(parsed.Time())
		}
	}
	return ir.Equal(answer, want)
}

// contains is substring search on strings and membership on lists. A list
// rule value requires every element to be present.
func contains(answer, want ir.Value) (bool, string) {
	switch a := answer.(type) {
	case ir.String:
		if w, ok := want.(ir.String); ok {
			return strings.Contains(string(a), string(w)), ""
		}
	case ir.StringList:
		switch w := want.(type) {
		case ir.String:
			return slices.Contains(a, string(w)), ""
		case ir.StringList:
			for _, item := range w {
				if !slices.Contains(a, item) {
					return false, ""
				}
			}
			return true, ""
		}
	}
	return false, fmt.Sprintf("contains needs a string or list answer and a string rule value, got %s and %s",
		ir.Kind(answer), ir.Kind(want))
}

// order compares numbers with numbers and dates with dates. A string rule
// value is accepted as a date literal when the answer is a date; a string
// answer is never coerced.
func order(answer, want ir.Value) (int, string) {
	switch a := answer.(type) {
	case ir.Number:
		if w, ok := want.(ir.Number); ok {
			return cmpFloat(float64(a), float64(w)), ""
		}
	case ir.Date:
		switch w := want.(type) {
		case ir.Date:
			return a.Time().Compare(w.Time()), ""
		case ir.String:
			parsed, err := ir.ParseDate(string(w))
			if err != nil {
				return 0, fmt.Sprintf("rule value %q is not a date", string(w))
			}
			return a.Time().Compare(parsed.Time()), ""
		}
	}
	return 0, fmt.Sprintf("cannot order %s answer against %s rule value", ir.Kind(answer), ir.Kind(want))
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// dateAndCount unpacks the operands of the date-relative operators.
func dateAndCount(answer, want ir.Value) (ir.Date, int, string) {
	d, ok := answer.(ir.Date)
	if !ok {
		return ir.Date{}, 0, fmt.Sprintf("date operator needs a date answer, got %s", ir.Kind(answer))
	}
	n, ok := want.(ir.Number)
	if !ok || n < 0 || float64(n) != math.Trunc(float64(n)) {
		return ir.Date{}, 0, fmt.Sprintf("date operator needs a non-negative whole number, got %s", ir.Kind(want))
	}
	return d, int(n), ""
}
