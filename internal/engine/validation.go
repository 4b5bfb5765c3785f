package engine

import (
	"fmt"
	"net/mail"
	"regexp"
	"regexp/syntax"
	"slices"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/roach88/qflow/internal/ir"
)

// coerce converts a submitted value to the representation the question's
// input type expects. Values that cannot be converted are kept as given and
// reported, so the submission is still recorded.
func coerce(q *ir.Question, v ir.Value) (ir.Value, []string) {
	s, isString := v.(ir.String)

	switch q.Type {
	case ir.InputDate:
		switch val := v.(type) {
		case ir.Date, ir.Null:
			return v, nil
		case ir.String:
			if strings.TrimSpace(string(val)) == "" {
				return v, nil
			}
			d, err := ir.ParseDate(string(val))
			if err != nil {
				return v, []string{fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", string(val))}
			}
			return d, nil
		}
		return v, []string{fmt.Sprintf("expected a date, got %s", ir.Kind(v))}

	case ir.InputNumber:
		switch v.(type) {
		case ir.Number, ir.Null:
			return v, nil
		}
		if isString {
			trimmed := strings.TrimSpace(string(s))
			if trimmed == "" {
				return v, nil
			}
			f, err := strconv.ParseFloat(trimmed, 64)
			if err != nil {
				return v, []string{fmt.Sprintf("%q is not a number", string(s))}
			}
			return ir.Number(f), nil
		}
		return v, []string{fmt.Sprintf("expected a number, got %s", ir.Kind(v))}

	case ir.InputCheckbox:
		switch v.(type) {
		case ir.Bool, ir.Null:
			return v, nil
		}
		if isString {
			if b, err := strconv.ParseBool(strings.TrimSpace(string(s))); err == nil {
				return ir.Bool(b), nil
			}
		}
		return v, []string{fmt.Sprintf("expected true or false, got %s", ir.Kind(v))}

	case ir.InputMultiSelect:
		switch v.(type) {
		case ir.StringList, ir.Null:
			return v, nil
		}
		if isString {
			return ir.StringList{string(s)}, nil
		}
		return v, []string{fmt.Sprintf("expected a list of options, got %s", ir.Kind(v))}

	default:
		switch v.(type) {
		case ir.String, ir.Null:
			return v, nil
		}
		return v, []string{fmt.Sprintf("expected text, got %s", ir.Kind(v))}
	}
}

// validateAnswer checks a coerced value against the question's constraints.
//
// Live (non-final) submissions only get checks that cannot fire while the
// user is still typing: maximum length, numeric bounds, option membership,
// and for all-digit patterns a non-digit or too many digits. Final
// submissions add required, minimum length, pattern and email format.
func validateAnswer(q *ir.Question, v ir.Value, required, final bool) []string {
	var errs []string

	if ir.IsEmpty(v) {
		if final && required {
			errs = append(errs, "this field is required")
		}
		return errs
	}

	rules := q.Validation
	if rules == nil {
		rules = &ir.Validation{}
	}

	switch val := v.(type) {
	case ir.String:
		n := utf8.RuneCountInString(string(val))
		if rules.MaxLength != nil && n > *rules.MaxLength {
			errs = append(errs, fmt.Sprintf("must be at most %d characters", *rules.MaxLength))
		}
		if final && rules.MinLength != nil && n < *rules.MinLength {
			errs = append(errs, fmt.Sprintf("must be at least %d characters", *rules.MinLength))
		}
		if !final && rules.Pattern != "" {
			errs = append(errs, liveDigitErrors(rules.Pattern, string(val))...)
		}
		if final && rules.Pattern != "" {
			if re, err := compilePattern(rules.Pattern); err == nil && !re.MatchString(string(val)) {
				errs = append(errs, patternMessage(rules))
			}
		}
		if final && q.Type == ir.InputEmail {
			if _, err := mail.ParseAddress(string(val)); err != nil {
				errs = append(errs, "invalid email address")
			}
		}
		if q.Type.HasOptions() && !hasOption(q, string(val)) {
			errs = append(errs, fmt.Sprintf("%q is not one of the options", string(val)))
		}

	case ir.StringList:
		for _, item := range val {
			if !hasOption(q, item) {
				errs = append(errs, fmt.Sprintf("%q is not one of the options", item))
			}
		}

	case ir.Number:
		if rules.Min != nil && float64(val) < *rules.Min {
			errs = append(errs, fmt.Sprintf("must be at least %s", formatBound(*rules.Min)))
		}
		if rules.Max != nil && float64(val) > *rules.Max {
			errs = append(errs, fmt.Sprintf("must be at most %s", formatBound(*rules.Max)))
		}
	}

	return errs
}

func hasOption(q *ir.Question, value string) bool {
	return slices.ContainsFunc(q.Options, func(o ir.Option) bool { return o.Value == value })
}

func patternMessage(v *ir.Validation) string {
	if v.Message != "" {
		return v.Message
	}
	return "invalid format"
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Patterns are validated at load time; the cache only avoids recompiling
// them on every keystroke.
var patternCache sync.Map // string → *regexp.Regexp

func compilePattern(p string) (*regexp.Regexp, error) {
	if re, ok := patternCache.Load(p); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, err
	}
	patternCache.Store(p, re)
	return re, nil
}

// liveDigitErrors checks a partial answer against an all-digit pattern such
// as ^[0-9]{11}$. Any other pattern waits for the final submission.
func liveDigitErrors(pattern, s string) []string {
	limit, ok := digitPattern(pattern)
	if !ok {
		return nil
	}
	var errs []string
	if strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		errs = append(errs, "only digits are allowed")
	}
	if limit >= 0 && len(s) > limit && len(errs) == 0 {
		errs = append(errs, fmt.Sprintf("must be at most %d digits", limit))
	}
	return errs
}

type digitLimit struct {
	max int
	ok  bool
}

var digitPatternCache sync.Map // string → digitLimit

// digitPattern reports whether p accepts nothing but ASCII digits, and the
// most digits it accepts (-1 when unbounded).
func digitPattern(p string) (int, bool) {
	if v, ok := digitPatternCache.Load(p); ok {
		d := v.(digitLimit)
		return d.max, d.ok
	}
	d := parseDigitPattern(p)
	digitPatternCache.Store(p, d)
	return d.max, d.ok
}

func parseDigitPattern(p string) digitLimit {
	re, err := syntax.Parse(p, syntax.Perl)
	if err != nil || re.Op != syntax.OpConcat || len(re.Sub) != 3 {
		return digitLimit{}
	}
	if re.Sub[0].Op != syntax.OpBeginText || re.Sub[2].Op != syntax.OpEndText {
		return digitLimit{}
	}
	body := re.Sub[1]
	switch body.Op {
	case syntax.OpCharClass:
		if isDigitClass(body) {
			return digitLimit{max: 1, ok: true}
		}
	case syntax.OpPlus, syntax.OpStar:
		if isDigitClass(body.Sub[0]) {
			return digitLimit{max: -1, ok: true}
		}
	case syntax.OpRepeat:
		if isDigitClass(body.Sub[0]) {
			return digitLimit{max: body.Max, ok: true}
		}
	}
	return digitLimit{}
}

func isDigitClass(re *syntax.Regexp) bool {
	return re.Op == syntax.OpCharClass && len(re.Rune) == 2 && re.Rune[0] == '0' && re.Rune[1] == '9'
}
