package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// DateLayout is the wire format for Date values.
const DateLayout = "2006-01-02"

// Value is a sealed interface representing an answer value.
// Only Null, String, Number, Bool, StringList, and Date implement this.
type Value interface {
	irValue() // Sealed - only these types implement it
}

// Null represents an explicit null answer.
// Unanswered fields are absent from an AnswerSet; Null is only stored when
// a caller submits null on purpose (e.g. clearing a date picker).
type Null struct{}

func (Null) irValue() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String is a free-text or single-choice answer.
type String string

func (String) irValue() {}

// Number is a numeric answer.
type Number float64

func (Number) irValue() {}

// Bool is a checkbox answer.
type Bool bool

func (Bool) irValue() {}

// StringList is a multi-select answer. Order is significant for equality.
type StringList []string

func (StringList) irValue() {}

// Date is a calendar date answer, normalised to UTC midnight.
type Date time.Time

func (Date) irValue() {}

// NewDate creates a Date for the given calendar day.
func NewDate(year int, month time.Month, day int) Date {
	return Date(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses "YYYY-MM-DD" (or an RFC 3339 timestamp) into a Date.
// Impossible days such as 2023-02-30 are rejected.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return DateOf(t), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOf(t), nil
	}
	return Date{}, fmt.Errorf("invalid date %q: expected %s", s, DateLayout)
}

// Time returns the underlying time.Time.
func (d Date) Time() time.Time {
	return time.Time(d)
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return time.Time(d).Format(DateLayout)
}

// MarshalJSON implements json.Marshaler for Date.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Kind names the value's type for diagnostics and the tagged wire format.
func Kind(v Value) string {
	switch v.(type) {
	case nil, Null:
		return "null"
	case String:
		return "string"
	case Number:
		return "number"
	case Bool:
		return "bool"
	case StringList:
		return "string_list"
	case Date:
		return "date"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// IsEmpty reports whether v counts as "not set": nil, Null, a blank
// string, or an empty list. Bool(false) and Number(0) are set.
func IsEmpty(v Value) bool {
	switch val := v.(type) {
	case nil, Null:
		return true
	case String:
		return strings.TrimSpace(string(val)) == ""
	case StringList:
		return len(val) == 0
	default:
		return false
	}
}

// Equal reports structural equality. Lists compare element-wise and
// order-sensitively. Values of different kinds are never equal.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil, Null:
		switch b.(type) {
		case nil, Null:
			return true
		}
		return false
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case StringList:
		bv, ok := b.(StringList)
		return ok && slices.Equal(av, bv)
	case Date:
		bv, ok := b.(Date)
		return ok && av.Time().Equal(bv.Time())
	default:
		return false
	}
}

// FromAny converts decoded JSON/YAML/CUE data into a Value.
//
// Accepted inputs: nil, string, bool, any Go integer or float, json.Number,
// []string, []any of strings, time.Time, and Value itself. Objects and
// mixed lists are rejected.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Number(val), nil
	case int32:
		return Number(val), nil
	case int64:
		return Number(val), nil
	case uint64:
		return Number(val), nil
	case float32:
		return numberFrom(float64(val))
	case float64:
		return numberFrom(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val, err)
		}
		return numberFrom(f)
	case time.Time:
		return DateOf(val), nil
	case []string:
		return StringList(slices.Clone(val)), nil
	case []any:
		list := make(StringList, len(val))
		for i, elem := range val {
			s, ok := elem.(string)
			if !ok {
				return nil, fmt.Errorf("list[%d]: only string elements are allowed, got %T", i, elem)
			}
			list[i] = s
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unsupported answer type: %T", v)
	}
}

func numberFrom(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number %v is not a valid answer", f)
	}
	return Number(f), nil
}

// ToAny converts a Value back to plain Go data suitable for JSON or YAML
// encoding. Dates become "YYYY-MM-DD" strings.
func ToAny(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Number:
		return float64(val)
	case Bool:
		return bool(val)
	case StringList:
		return []string(slices.Clone(val))
	case Date:
		return val.String()
	default:
		return nil
	}
}

// taggedValue is the persisted form of a Value. The explicit type tag lets
// dates survive a round trip through JSON.
type taggedValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalValue encodes v in the tagged wire format, e.g.
// {"type":"date","value":"2020-05-15"}.
func MarshalValue(v Value) ([]byte, error) {
	raw, err := json.Marshal(ToAny(v))
	if err != nil {
		return nil, fmt.Errorf("marshal %s value: %w", Kind(v), err)
	}
	return json.Marshal(taggedValue{Type: Kind(v), Value: raw})
}

// UnmarshalValue decodes the tagged wire format written by MarshalValue.
func UnmarshalValue(data []byte) (Value, error) {
	var tv taggedValue
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&tv); err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}

	switch tv.Type {
	case "null":
		return Null{}, nil
	case "string":
		var s string
		if err := json.Unmarshal(tv.Value, &s); err != nil {
			return nil, fmt.Errorf("unmarshal string value: %w", err)
		}
		return String(s), nil
	case "number":
		var f float64
		if err := json.Unmarshal(tv.Value, &f); err != nil {
			return nil, fmt.Errorf("unmarshal number value: %w", err)
		}
		return Number(f), nil
	case "bool":
		var b bool
		if err := json.Unmarshal(tv.Value, &b); err != nil {
			return nil, fmt.Errorf("unmarshal bool value: %w", err)
		}
		return Bool(b), nil
	case "string_list":
		var list []string
		if err := json.Unmarshal(tv.Value, &list); err != nil {
			return nil, fmt.Errorf("unmarshal string_list value: %w", err)
		}
		if list == nil {
			list = []string{}
		}
		return StringList(list), nil
	case "date":
		var s string
		if err := json.Unmarshal(tv.Value, &s); err != nil {
			return nil, fmt.Errorf("unmarshal date value: %w", err)
		}
		return ParseDate(s)
	default:
		return nil, fmt.Errorf("unknown value type tag %q", tv.Type)
	}
}

// AnswerSet maps step id to field id to value.
// Unanswered fields are absent, so presence tests are correct by construction.
type AnswerSet map[string]map[string]Value

// Get returns the answer for a field within a step.
func (a AnswerSet) Get(stepID, fieldID string) (Value, bool) {
	fields, ok := a[stepID]
	if !ok {
		return nil, false
	}
	v, ok := fields[fieldID]
	return v, ok
}

// Set records an answer, creating the step map if needed.
func (a AnswerSet) Set(stepID, fieldID string, v Value) {
	fields, ok := a[stepID]
	if !ok {
		fields = make(map[string]Value)
		a[stepID] = fields
	}
	fields[fieldID] = v
}

// Delete removes an answer. Empty step maps are removed too.
func (a AnswerSet) Delete(stepID, fieldID string) {
	fields, ok := a[stepID]
	if !ok {
		return
	}
	delete(fields, fieldID)
	if len(fields) == 0 {
		delete(a, stepID)
	}
}

// Len returns the number of recorded answers across all steps.
func (a AnswerSet) Len() int {
	n := 0
	for _, fields := range a {
		n += len(fields)
	}
	return n
}

// Clone returns a deep copy. Lists are copied so callers cannot reach
// the original's backing arrays.
func (a AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(a))
	for stepID, fields := range a {
		cp := make(map[string]Value, len(fields))
		for fieldID, v := range fields {
			if list, ok := v.(StringList); ok {
				v = StringList(slices.Clone(list))
			}
			cp[fieldID] = v
		}
		out[stepID] = cp
	}
	return out
}

// MarshalJSON encodes the answer set with plain values
// (dates as "YYYY-MM-DD"). Keys are sorted by encoding/json.
func (a AnswerSet) MarshalJSON() ([]byte, error) {
	plain := make(map[string]map[string]any, len(a))
	for stepID, fields := range a {
		m := make(map[string]any, len(fields))
		for fieldID, v := range fields {
			m[fieldID] = ToAny(v)
		}
		plain[stepID] = m
	}
	return json.Marshal(plain)
}

// UnmarshalJSON decodes plain values. Date strings stay strings here;
// the engine coerces them by question type when the set is seeded.
func (a *AnswerSet) UnmarshalJSON(data []byte) error {
	var raw map[string]map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	out := make(AnswerSet, len(raw))
	for stepID, fields := range raw {
		for fieldID, rv := range fields {
			v, err := FromAny(rv)
			if err != nil {
				return fmt.Errorf("answers[%q][%q]: %w", stepID, fieldID, err)
			}
			out.Set(stepID, fieldID, v)
		}
	}
	*a = out
	return nil
}
