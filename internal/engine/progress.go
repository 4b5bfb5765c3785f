package engine

import (
	"math"

	"github.com/roach88/qflow/internal/ir"
)

// StepProgress is the completion state of one visible step.
type StepProgress struct {
	StepID           string `json:"step_id"`
	Visible          int    `json:"visible"`
	Answered         int    `json:"answered"`
	Required         int    `json:"required"`
	RequiredAnswered int    `json:"required_answered"`
	Complete         bool   `json:"complete"`
}

// Report summarises progress through a questionnaire.
type Report struct {
	Percentage int            `json:"percentage"`
	Answered   int            `json:"answered"`
	Visible    int            `json:"visible"`
	Steps      []StepProgress `json:"steps"`
}

// Progress derives completion figures from a resolution. It is stateless.
//
// Percentage is the share of visible questions holding a non-empty answer,
// rounded to the nearest integer. Zero visible questions is 0%, not an
// error. A step is complete when every visible required question in it is
// answered. Group instance questions count like any other question.
func Progress(tpl *ir.Template, answers ir.AnswerSet, res Resolution) Report {
	report := Report{Steps: make([]StepProgress, 0, len(res.VisibleSteps))}

	visibleStep := make(map[string]bool, len(res.VisibleSteps))
	for _, id := range res.VisibleSteps {
		visibleStep[id] = true
	}

	for _, step := range tpl.Steps {
		if !visibleStep[step.ID] {
			continue
		}
		sp := StepProgress{StepID: step.ID}
		for _, id := range res.StepQuestions(step.ID) {
			v, ok := answers.Get(step.ID, id)
			answered := ok && !ir.IsEmpty(v)

			sp.Visible++
			if answered {
				sp.Answered++
			}
			if res.IsRequired(id) {
				sp.Required++
				if answered {
					sp.RequiredAnswered++
				}
			}
		}
		sp.Complete = sp.RequiredAnswered == sp.Required

		report.Visible += sp.Visible
		report.Answered += sp.Answered
		report.Steps = append(report.Steps, sp)
	}

	report.Percentage = percentage(report.Answered, report.Visible)
	return report
}

func percentage(part, whole int) int {
	if whole == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(whole) * 100))
}
