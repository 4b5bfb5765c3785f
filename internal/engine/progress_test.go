package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qflow/internal/ir"
)

func TestProgressZeroVisibleQuestions(t *testing.T) {
	tpl := &ir.Template{ID: "t", Steps: []ir.Step{
		{ID: "s", DefaultVisible: true, Questions: []ir.Question{{ID: "a", Type: ir.InputText}}},
	}}

	report := Progress(tpl, ir.AnswerSet{}, Resolve(tpl, ir.AnswerSet{}))

	assert.Equal(t, 0, report.Percentage)
	assert.Equal(t, 0, report.Visible)
	require.Len(t, report.Steps, 1)
	assert.True(t, report.Steps[0].Complete)
}

func TestProgressRoundsToNearest(t *testing.T) {
	tpl := marriageTemplate()
	answers := ir.AnswerSet{}
	answers.Set("kisisel", "ad", ir.String("Ayşe"))
	answers.Set("kisisel", "email", ir.String("ayse@example.com"))

	report := Progress(tpl, answers, Resolve(tpl, answers))

	assert.Equal(t, 3, report.Visible)
	assert.Equal(t, 2, report.Answered)
	assert.Equal(t, 67, report.Percentage)
}

func TestProgressIgnoresBlankAndHiddenAnswers(t *testing.T) {
	tpl := marriageTemplate()
	answers := ir.AnswerSet{}
	answers.Set("kisisel", "ad", ir.String("  "))
	answers.Set("evlilik", "cocuk_sayisi", ir.Number(2)) // hidden

	report := Progress(tpl, answers, Resolve(tpl, answers))

	assert.Equal(t, 0, report.Answered)
	assert.Equal(t, 0, report.Percentage)
}

func TestProgressStepCompletion(t *testing.T) {
	tpl := marriageTemplate()
	answers := ir.AnswerSet{}
	answers.Set("kisisel", "ad", ir.String("Ayşe"))

	report := Progress(tpl, answers, Resolve(tpl, answers))

	require.Len(t, report.Steps, 2)
	assert.Equal(t, StepProgress{StepID: "kisisel", Visible: 2, Answered: 1, Required: 1, RequiredAnswered: 1, Complete: true}, report.Steps[0])
	assert.Equal(t, StepProgress{StepID: "evlilik", Visible: 1, Answered: 0, Required: 1, RequiredAnswered: 0, Complete: false}, report.Steps[1])
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0, percentage(0, 0))
	assert.Equal(t, 0, percentage(0, 7))
	assert.Equal(t, 33, percentage(1, 3))
	assert.Equal(t, 50, percentage(1, 2))
	assert.Equal(t, 100, percentage(4, 4))
}
