package compiler

import "github.com/roach88/qflow/internal/ir"

// Complexity summarises the size and rule density of a template.
type Complexity struct {
	Steps                   int     `json:"steps"`
	Groups                  int     `json:"groups"`
	Questions               int     `json:"questions"`
	Rules                   int     `json:"rules"`
	StepRules               int     `json:"step_rules"` // step and group rules
	MaxDepth                int     `json:"max_depth"`
	AverageRulesPerQuestion float64 `json:"average_rules_per_question"`
}

// Analyze computes complexity metrics. MaxDepth is the length of the longest
// chain of questions whose visibility hinges on another question's answer.
func Analyze(tpl *ir.Template) Complexity {
	c := Complexity{Steps: len(tpl.Steps)}
	for _, step := range tpl.Steps {
		c.StepRules += len(step.Rules)
		for _, q := range step.Questions {
			c.Questions++
			c.Rules += len(q.Rules)
		}
		for _, g := range step.Groups {
			c.Groups++
			c.StepRules += len(g.Rules)
			for _, q := range g.Questions {
				c.Questions++
				c.Rules += len(q.Rules)
			}
		}
	}

	if c.Questions > 0 {
		c.AverageRulesPerQuestion = float64(c.Rules) / float64(c.Questions)
	}

	g := buildDependencyGraph(tpl)
	memo := make(map[string]int)
	for _, id := range g.order {
		c.MaxDepth = max(c.MaxDepth, g.longestChain(id, memo, make(map[string]bool)))
	}

	return c
}
