package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qflow/internal/ir"
)

const childrenYAML = `
id: cocuklu
steps:
  - id: evlilik
    questions:
      - {id: cocuk_var_mi, type: radio, options: [{value: evet}, {value: hayir}]}
  - id: cocuklar
    groups:
      - id: cocuk
        max_instances: 4
        rules:
          - {trigger: cocuk_var_mi, operator: equals, value: evet, effect: show}
        questions:
          - id: cocuk_ad
            label: "{{instance}}. çocuğun adı"
            type: text
            default_required: true
          - id: cocuk_engel
            type: radio
            options: [{value: evet}, {value: hayir}]
          - id: cocuk_engel_aciklama
            type: paragraph
            default_visible: false
            rules:
              - {trigger: cocuk_engel, operator: equals, value: evet, effect: show}
`

// groupedTemplate extends validTemplate with a children step that holds only
// a group.
func groupedTemplate() *ir.Template {
	tpl := validTemplate()
	tpl.Steps = append(tpl.Steps, ir.Step{
		ID:             "cocuklar",
		DefaultVisible: true,
		Groups: []ir.Group{{
			ID:           "cocuk",
			MinInstances: 1,
			MaxInstances: 3,
			Rules:        []ir.Rule{{Trigger: "cocuk_var_mi", Operator: ir.OpEquals, Value: ir.String("evet"), Effect: ir.EffectShow}},
			Questions: []ir.Question{
				{ID: "cocuk_ad", Type: ir.InputText, DefaultVisible: true},
				{ID: "cocuk_engel", Type: ir.InputRadio, Options: []ir.Option{{Value: "evet"}, {Value: "hayir"}}},
				{ID: "cocuk_engel_aciklama", Type: ir.InputParagraph, Rules: []ir.Rule{showIf("cocuk_engel")}},
			},
		}},
	})
	return tpl
}

func TestFromYAMLGroups(t *testing.T) {
	tpl, err := FromYAML([]byte(childrenYAML))
	require.NoError(t, err)

	require.Len(t, tpl.Steps[1].Groups, 1)
	g := tpl.Steps[1].Groups[0]
	assert.Equal(t, 1, g.MinInstances, "min_instances defaults to 1")
	assert.Equal(t, 4, g.MaxInstances)
	assert.True(t, g.DefaultVisible)
	assert.Empty(t, tpl.Steps[1].Questions)
	require.Len(t, g.Questions, 3)
	assert.True(t, g.Questions[0].DefaultRequired)
	assert.False(t, g.Questions[2].DefaultVisible)
	assert.Empty(t, Lint(tpl))
}

func TestFromYAMLGroupZeroMinimum(t *testing.T) {
	doc := `
id: t
steps:
  - id: s
    groups:
      - id: g
        min_instances: 0
        max_instances: 2
        questions:
          - {id: a, type: text}
`
	tpl, err := FromYAML([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 0, tpl.Steps[0].Groups[0].MinInstances)
}

func TestValidateGroups(t *testing.T) {
	assert.NoError(t, Validate(groupedTemplate()))

	tests := []struct {
		name   string
		mutate func(*ir.Template)
		want   []string
		field  string
	}{
		{
			name: "duplicate group",
			mutate: func(tpl *ir.Template) {
				g := tpl.Steps[1].Groups[0]
				g.Questions = []ir.Question{{ID: "kardes_ad", Type: ir.InputText}}
				tpl.Steps[1].Groups = append(tpl.Steps[1].Groups, g)
			},
			want:  []string{ErrDuplicateGroup},
			field: "steps[1].groups[1].id",
		},
		{
			name:   "max below min",
			mutate: func(tpl *ir.Template) { tpl.Steps[1].Groups[0].MinInstances = 4 },
			want:   []string{ErrGroupBounds},
			field:  "steps[1].groups[0].max_instances",
		},
		{
			name:   "no maximum",
			mutate: func(tpl *ir.Template) { tpl.Steps[1].Groups[0].MaxInstances = 0 },
			want:   []string{ErrGroupBounds},
			field:  "steps[1].groups[0].max_instances",
		},
		{
			name:   "no questions",
			mutate: func(tpl *ir.Template) { tpl.Steps[1].Groups[0].Questions = nil },
			want:   []string{ErrEmptyGroup},
			field:  "steps[1].groups[0].questions",
		},
		{
			name: "question shared with a step",
			mutate: func(tpl *ir.Template) {
				tpl.Steps[1].Groups[0].Questions[0].ID = "evlilik_tarihi"
			},
			want:  []string{ErrDuplicateQuestion},
			field: "steps[1].groups[0].questions[0].id",
		},
		{
			name: "step question shadows an instance",
			mutate: func(tpl *ir.Template) {
				tpl.Steps[1].Questions = []ir.Question{{ID: "cocuk_ad_2", Type: ir.InputText}}
			},
			want:  []string{ErrDuplicateGroup},
			field: "steps[1].questions[0].id",
		},
		{
			name: "group rule without value",
			mutate: func(tpl *ir.Template) {
				tpl.Steps[1].Groups[0].Rules[0].Value = nil
			},
			want:  []string{ErrMissingRuleValue},
			field: "steps[1].groups[0].rules[0].value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := groupedTemplate()
			tt.mutate(tpl)

			err := Validate(tpl)
			require.Error(t, err)
			assert.Equal(t, tt.want, codes(t, err))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidateStepWithOnlyGroups(t *testing.T) {
	tpl := groupedTemplate()
	require.Empty(t, tpl.Steps[1].Questions)
	assert.NoError(t, Validate(tpl))

	tpl.Steps[1].Groups = nil
	assert.Equal(t, []string{ErrEmptyStep}, codes(t, Validate(tpl)))
}

func TestLintGroups(t *testing.T) {
	assert.Empty(t, Lint(groupedTemplate()), "sibling and outside triggers are declared")

	tests := []struct {
		name   string
		mutate func(*ir.Template)
		want   []string
	}{
		{
			name: "instance trigger from a later step",
			mutate: func(tpl *ir.Template) {
				tpl.Steps = append(tpl.Steps, ir.Step{
					ID:        "ek",
					Questions: []ir.Question{{ID: "ek_not", Type: ir.InputText, Rules: []ir.Rule{showIf("cocuk_ad_2")}}},
				})
			},
		},
		{
			name: "sibling declared later",
			mutate: func(tpl *ir.Template) {
				qs := tpl.Steps[1].Groups[0].Questions
				qs[0].Rules = []ir.Rule{showIf("cocuk_engel")}
			},
			want: []string{WarnForwardRef},
		},
		{
			name: "sibling self reference",
			mutate: func(tpl *ir.Template) {
				qs := tpl.Steps[1].Groups[0].Questions
				qs[2].Rules = []ir.Rule{showIf("cocuk_engel_aciklama")}
			},
			want: []string{WarnSelfReference},
		},
		{
			name: "undeclared trigger",
			mutate: func(tpl *ir.Template) {
				tpl.Steps[1].Groups[0].Rules[0].Trigger = "hayalet"
			},
			want: []string{WarnDanglingTrigger},
		},
		{
			name: "group rule reads its own instance",
			mutate: func(tpl *ir.Template) {
				tpl.Steps[1].Groups[0].Rules[0].Trigger = "cocuk_ad_1"
			},
			want: []string{WarnForwardRef},
		},
		{
			name: "require on a group",
			mutate: func(tpl *ir.Template) {
				tpl.Steps[1].Groups[0].Rules[0].Effect = ir.EffectRequire
			},
			want: []string{WarnStepRequire},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := groupedTemplate()
			tt.mutate(tpl)

			ws := Lint(tpl)
			if tt.want == nil {
				assert.Empty(t, ws)
				return
			}
			assert.Equal(t, tt.want, warningCodes(ws))
		})
	}
}

func TestLintGroupWarningMentionsGroup(t *testing.T) {
	tpl := groupedTemplate()
	tpl.Steps[1].Groups[0].Rules[0].Effect = ir.EffectOptional

	ws := Lint(tpl)
	require.Len(t, ws, 1)
	assert.Equal(t, "steps[1].groups[0].rules[0]", ws[0].Field)
	assert.Contains(t, ws[0].Message, "on a group")
}

func TestAnalyzeGroups(t *testing.T) {
	c := Analyze(groupedTemplate())

	assert.Equal(t, 2, c.Steps)
	assert.Equal(t, 1, c.Groups)
	assert.Equal(t, 5, c.Questions, "group questions count once")
	assert.Equal(t, 2, c.Rules)
	assert.Equal(t, 1, c.StepRules, "group rules count with step rules")
	assert.Equal(t, 1, c.MaxDepth, "group rules are not graph edges")
}
