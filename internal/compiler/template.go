package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/qflow/internal/ir"
)

// templateDoc is the authoring shape of a template, shared by the JSON, YAML
// and CUE loaders. Visibility flags are pointers so an omitted flag can
// default to true.
type templateDoc struct {
	ID          string      `json:"id" yaml:"id"`
	Category    string      `json:"category" yaml:"category"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string      `json:"version,omitempty" yaml:"version,omitempty"`
	Metadata    metadataDoc `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Steps       []stepDoc   `json:"steps" yaml:"steps"`
}

type metadataDoc struct {
	EstimatedMinutes int      `json:"estimated_minutes,omitempty" yaml:"estimated_minutes,omitempty"`
	Difficulty       string   `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	Tags             []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	LegalReferences  []string `json:"legal_references,omitempty" yaml:"legal_references,omitempty"`
}

type stepDoc struct {
	ID             string        `json:"id" yaml:"id"`
	Title          string        `json:"title" yaml:"title"`
	Description    string        `json:"description,omitempty" yaml:"description,omitempty"`
	DefaultVisible *bool         `json:"default_visible,omitempty" yaml:"default_visible,omitempty"`
	Rules          []ruleDoc     `json:"rules,omitempty" yaml:"rules,omitempty"`
	Questions      []questionDoc `json:"questions" yaml:"questions"`
	Groups         []groupDoc    `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// groupDoc is a repeatable block of questions. min_instances defaults to 1.
type groupDoc struct {
	ID             string        `json:"id" yaml:"id"`
	Title          string        `json:"title,omitempty" yaml:"title,omitempty"`
	Description    string        `json:"description,omitempty" yaml:"description,omitempty"`
	MinInstances   *int          `json:"min_instances,omitempty" yaml:"min_instances,omitempty"`
	MaxInstances   int           `json:"max_instances" yaml:"max_instances"`
	DefaultVisible *bool         `json:"default_visible,omitempty" yaml:"default_visible,omitempty"`
	Rules          []ruleDoc     `json:"rules,omitempty" yaml:"rules,omitempty"`
	Questions      []questionDoc `json:"questions" yaml:"questions"`
}

type questionDoc struct {
	ID              string         `json:"id" yaml:"id"`
	Label           string         `json:"label" yaml:"label"`
	Type            string         `json:"type" yaml:"type"`
	DefaultVisible  *bool          `json:"default_visible,omitempty" yaml:"default_visible,omitempty"`
	DefaultRequired bool           `json:"default_required,omitempty" yaml:"default_required,omitempty"`
	Rules           []ruleDoc      `json:"rules,omitempty" yaml:"rules,omitempty"`
	Options         []ir.Option    `json:"options,omitempty" yaml:"options,omitempty"`
	Validation      *ir.Validation `json:"validation,omitempty" yaml:"validation,omitempty"`
	HelpText        string         `json:"help_text,omitempty" yaml:"help_text,omitempty"`
	Placeholder     string         `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
}

type ruleDoc struct {
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Trigger     string `json:"trigger" yaml:"trigger"`
	Operator    string `json:"operator" yaml:"operator"`
	Value       any    `json:"value,omitempty" yaml:"value,omitempty"`
	Effect      string `json:"effect" yaml:"effect"`
	Negate      bool   `json:"negate,omitempty" yaml:"negate,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// CompileTemplate parses a CUE value into a Template and validates it.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the template struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`template: { id: "x", steps: [...] }`)
//	tpl, err := CompileTemplate(v.LookupPath(cue.ParsePath("template")))
func CompileTemplate(v cue.Value) (*ir.Template, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	// Fail early with a positioned error when the skeleton is missing;
	// Validate reports everything else.
	for _, field := range []string{"id", "steps"} {
		if !v.LookupPath(cue.ParsePath(field)).Exists() {
			return nil, &CompileError{
				Field:   field,
				Message: field + " is required",
				Pos:     v.Pos(),
			}
		}
	}

	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var doc templateDoc
	if err := v.Decode(&doc); err != nil {
		return nil, formatCUEError(err)
	}

	tpl, err := doc.toTemplate()
	if err != nil {
		return nil, err
	}
	if err := Validate(tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

// toTemplate converts the authoring shape into the IR. Operator, effect and
// input type spellings are normalised here; unrecognised spellings are kept
// verbatim so Validate can report every one of them.
func (d *templateDoc) toTemplate() (*ir.Template, error) {
	tpl := &ir.Template{
		ID:          d.ID,
		Category:    d.Category,
		Name:        d.Name,
		Description: d.Description,
		Version:     d.Version,
		Metadata: ir.Metadata{
			EstimatedMinutes: d.Metadata.EstimatedMinutes,
			Difficulty:       d.Metadata.Difficulty,
			Tags:             d.Metadata.Tags,
			LegalReferences:  d.Metadata.LegalReferences,
		},
		Steps: make([]ir.Step, 0, len(d.Steps)),
	}

	for si, sd := range d.Steps {
		step := ir.Step{
			ID:             sd.ID,
			Title:          sd.Title,
			Description:    sd.Description,
			DefaultVisible: boolOr(sd.DefaultVisible, true),
			Questions:      make([]ir.Question, 0, len(sd.Questions)),
		}

		rules, err := convertRules(sd.Rules, fmt.Sprintf("steps[%d]", si))
		if err != nil {
			return nil, err
		}
		step.Rules = rules

		for qi, qd := range sd.Questions {
			q, err := convertQuestion(qd, fmt.Sprintf("steps[%d].questions[%d]", si, qi))
			if err != nil {
				return nil, err
			}
			step.Questions = append(step.Questions, q)
		}

		for gi, gd := range sd.Groups {
			g, err := convertGroup(gd, fmt.Sprintf("steps[%d].groups[%d]", si, gi))
			if err != nil {
				return nil, err
			}
			step.Groups = append(step.Groups, g)
		}

		tpl.Steps = append(tpl.Steps, step)
	}

	return tpl, nil
}

func convertQuestion(qd questionDoc, field string) (ir.Question, error) {
	inputType, err := ir.ParseInputType(qd.Type)
	if err != nil {
		inputType = ir.InputType(qd.Type)
	}

	rules, err := convertRules(qd.Rules, field)
	if err != nil {
		return ir.Question{}, err
	}

	return ir.Question{
		ID:              qd.ID,
		Label:           qd.Label,
		Type:            inputType,
		DefaultVisible:  boolOr(qd.DefaultVisible, true),
		DefaultRequired: qd.DefaultRequired,
		Rules:           rules,
		Options:         qd.Options,
		Validation:      qd.Validation,
		HelpText:        qd.HelpText,
		Placeholder:     qd.Placeholder,
	}, nil
}

func convertGroup(gd groupDoc, field string) (ir.Group, error) {
	rules, err := convertRules(gd.Rules, field)
	if err != nil {
		return ir.Group{}, err
	}

	g := ir.Group{
		ID:             gd.ID,
		Title:          gd.Title,
		Description:    gd.Description,
		MinInstances:   1,
		MaxInstances:   gd.MaxInstances,
		DefaultVisible: boolOr(gd.DefaultVisible, true),
		Rules:          rules,
		Questions:      make([]ir.Question, 0, len(gd.Questions)),
	}
	if gd.MinInstances != nil {
		g.MinInstances = *gd.MinInstances
	}

	for qi, qd := range gd.Questions {
		q, err := convertQuestion(qd, fmt.Sprintf("%s.questions[%d]", field, qi))
		if err != nil {
			return ir.Group{}, err
		}
		g.Questions = append(g.Questions, q)
	}
	return g, nil
}

func convertRules(docs []ruleDoc, owner string) ([]ir.Rule, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	rules := make([]ir.Rule, 0, len(docs))
	for i, rd := range docs {
		op, err := ir.ParseOperator(rd.Operator)
		if err != nil {
			op = ir.Operator(rd.Operator)
		}
		effect, err := ir.ParseEffect(rd.Effect)
		if err != nil {
			effect = ir.Effect(rd.Effect)
		}

		var value ir.Value
		if rd.Value != nil {
			value, err = ir.FromAny(rd.Value)
			if err != nil {
				return nil, &CompileError{
					Field:   fmt.Sprintf("%s.rules[%d].value", owner, i),
					Message: err.Error(),
				}
			}
		}

		rules = append(rules, ir.Rule{
			ID:          rd.ID,
			Trigger:     rd.Trigger,
			Operator:    op,
			Value:       value,
			Effect:      effect,
			Negate:      rd.Negate,
			Description: rd.Description,
		})
	}
	return rules, nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
