package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/qflow/internal/ir"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name    string
		typ     ir.InputType
		in      ir.Value
		want    ir.Value
		wantErr bool
	}{
		{"date from literal", ir.InputDate, ir.String("2015-06-20"), ir.NewDate(2015, 6, 20), false},
		{"date kept", ir.InputDate, ir.NewDate(2015, 6, 20), ir.NewDate(2015, 6, 20), false},
		{"date blank", ir.InputDate, ir.String(""), ir.String(""), false},
		{"date impossible day", ir.InputDate, ir.String("2023-02-30"), ir.String("2023-02-30"), true},
		{"date from number", ir.InputDate, ir.Number(3), ir.Number(3), true},
		{"number from string", ir.InputNumber, ir.String(" 2.5 "), ir.Number(2.5), false},
		{"number not numeric", ir.InputNumber, ir.String("iki"), ir.String("iki"), true},
		{"number kept", ir.InputNumber, ir.Number(2), ir.Number(2), false},
		{"checkbox from string", ir.InputCheckbox, ir.String("true"), ir.Bool(true), false},
		{"checkbox from garbage", ir.InputCheckbox, ir.String("maybe"), ir.String("maybe"), true},
		{"multi_select from string", ir.InputMultiSelect, ir.String("ev"), ir.StringList{"ev"}, false},
		{"multi_select from number", ir.InputMultiSelect, ir.Number(1), ir.Number(1), true},
		{"text kept", ir.InputText, ir.String("x"), ir.String("x"), false},
		{"text from number", ir.InputText, ir.Number(1), ir.Number(1), true},
		{"null passes", ir.InputNumber, ir.Null{}, ir.Null{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, errs := coerce(&ir.Question{ID: "q", Type: tt.typ}, tt.in)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				assert.NotEmpty(t, errs)
			} else {
				assert.Empty(t, errs)
			}
		})
	}
}

func TestValidateAnswer(t *testing.T) {
	text := &ir.Question{ID: "ad", Type: ir.InputText, Validation: &ir.Validation{MinLength: intp(2), MaxLength: intp(5)}}
	tckn := &ir.Question{ID: "tckn", Type: ir.InputText, Validation: &ir.Validation{Pattern: `^[0-9]{11}$`, Message: "11 haneli olmalıdır"}}
	plain := &ir.Question{ID: "kod", Type: ir.InputText, Validation: &ir.Validation{Pattern: `^[A-Z]+$`}}
	email := &ir.Question{ID: "email", Type: ir.InputEmail}
	number := &ir.Question{ID: "n", Type: ir.InputNumber, Validation: &ir.Validation{Min: floatp(1), Max: floatp(10)}}
	radio := &ir.Question{ID: "r", Type: ir.InputRadio, Options: []ir.Option{{Value: "evet"}, {Value: "hayir"}}}
	multi := &ir.Question{ID: "m", Type: ir.InputMultiSelect, Options: []ir.Option{{Value: "ev"}, {Value: "araba"}}}

	tests := []struct {
		name     string
		q        *ir.Question
		v        ir.Value
		required bool
		final    bool
		want     []string
	}{
		{"required empty final", text, ir.String(" "), true, true, []string{"this field is required"}},
		{"required empty live", text, ir.String(""), true, false, nil},
		{"optional empty final", text, ir.Null{}, false, true, nil},
		{"max length live", text, ir.String("abcdef"), false, false, []string{"must be at most 5 characters"}},
		{"min length live is deferred", text, ir.String("a"), false, false, nil},
		{"min length final", text, ir.String("a"), false, true, []string{"must be at least 2 characters"}},
		{"length counts runes", text, ir.String("ışıkçğ"), false, true, []string{"must be at most 5 characters"}},
		{"pattern custom message", tckn, ir.String("123"), false, true, []string{"11 haneli olmalıdır"}},
		{"pattern default message", plain, ir.String("abc"), false, true, []string{"invalid format"}},
		{"pattern live is deferred", plain, ir.String("abc"), false, false, nil},
		{"digits live partial", tckn, ir.String("123"), false, false, nil},
		{"digits live letter", tckn, ir.String("12a"), false, false, []string{"only digits are allowed"}},
		{"digits live too long", tckn, ir.String("123456789012"), false, false, []string{"must be at most 11 digits"}},
		{"digits final uses pattern message", tckn, ir.String("12a"), false, true, []string{"11 haneli olmalıdır"}},
		{"pattern ok", tckn, ir.String("12345678901"), false, true, nil},
		{"email bad final", email, ir.String("ayse@"), false, true, []string{"invalid email address"}},
		{"email ok", email, ir.String("ayse@example.com"), false, true, nil},
		{"number below min", number, ir.Number(0), false, false, []string{"must be at least 1"}},
		{"number above max", number, ir.Number(10.5), false, false, []string{"must be at most 10"}},
		{"number in range", number, ir.Number(3), false, true, nil},
		{"radio unknown option", radio, ir.String("belki"), false, false, []string{`"belki" is not one of the options`}},
		{"radio option", radio, ir.String("evet"), false, true, nil},
		{"multi unknown option", multi, ir.StringList{"ev", "tekne"}, false, false, []string{`"tekne" is not one of the options`}},
		{"no validation block", &ir.Question{ID: "x", Type: ir.InputText}, ir.String("x"), true, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validateAnswer(tt.q, tt.v, tt.required, tt.final))
		})
	}
}

func TestDigitPattern(t *testing.T) {
	tests := []struct {
		pattern string
		limit   int
		ok      bool
	}{
		{`^[0-9]{11}$`, 11, true},
		{`^\d{11}$`, 11, true},
		{`^[0-9]{2,5}$`, 5, true},
		{`^[0-9]{3,}$`, -1, true},
		{`^[0-9]+$`, -1, true},
		{`^\d*$`, -1, true},
		{`^[0-9]$`, 1, true},
		{`[0-9]{11}`, 0, false},
		{`^[0-9a-f]{8}$`, 0, false},
		{`^TR[0-9]{24}$`, 0, false},
		{`^[A-Z]+$`, 0, false},
		{`(`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			limit, ok := digitPattern(tt.pattern)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.limit, limit)
		})
	}
}

func TestCompilePatternCaches(t *testing.T) {
	first, err := compilePattern(`^a+$`)
	assert.NoError(t, err)
	second, err := compilePattern(`^a+$`)
	assert.NoError(t, err)
	assert.Same(t, first, second)

	_, err = compilePattern(`(`)
	assert.Error(t, err)
}
