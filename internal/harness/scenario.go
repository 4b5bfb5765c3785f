package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/qflow/internal/engine"
	"github.com/roach88/qflow/internal/ir"
)

// Scenario drives one session through a sequence of submissions and checks
// the resulting state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Template is a template file path, relative to the scenario file.
	// Exactly one of Template and TemplateID must be set.
	Template string `yaml:"template,omitempty"`

	// TemplateID names a template from the embedded catalog.
	TemplateID string `yaml:"template_id,omitempty"`

	// Today fixes the date used by date-relative rules (YYYY-MM-DD).
	// Defaults to the date of testutil.DefaultEpoch.
	Today string `yaml:"today,omitempty"`

	// Policy is the hidden answer policy: "retain" (default) or "clear".
	Policy string `yaml:"policy,omitempty"`

	// SessionID is a fixed session id for golden comparison.
	// Defaults to "test-session".
	SessionID string `yaml:"session_id,omitempty"`

	// Flow lists the submissions in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions are checked against the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// FlowStep is one submission, or one group instance change when AddInstance
// or RemoveInstance names a group. Exactly one of Question, AddInstance and
// RemoveInstance is set.
type FlowStep struct {
	Question string `yaml:"question,omitempty"`

	AddInstance    string `yaml:"add_instance,omitempty"`
	RemoveInstance string `yaml:"remove_instance,omitempty"`

	// Value is converted with ir.FromAny; an absent value submits Null.
	Value any `yaml:"value"`

	// Final marks a committing submission (blur/next) rather than a
	// keystroke.
	Final bool `yaml:"final,omitempty"`

	// Expect is checked against the state right after this step.
	Expect []Assertion `yaml:"expect,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. A relative template
// path is resolved against the scenario's directory.
//
// Unknown fields are rejected so typos like "assertion:" surface at once.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Template != "" && !filepath.IsAbs(scenario.Template) {
		scenario.Template = filepath.Join(filepath.Dir(path), scenario.Template)
	}
	return scenario, nil
}

// ParseScenario parses and validates scenario YAML. Template paths are
// left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}

	switch {
	case s.Template == "" && s.TemplateID == "":
		return errors.New("one of template or template_id is required")
	case s.Template != "" && s.TemplateID != "":
		return errors.New("template and template_id are mutually exclusive")
	}

	if s.Today != "" {
		if _, err := ir.ParseDate(s.Today); err != nil {
			return fmt.Errorf("today: %w", err)
		}
	}
	if _, err := engine.ParseHiddenAnswerPolicy(s.Policy); err != nil {
		return err
	}

	if len(s.Flow) == 0 && len(s.Assertions) == 0 {
		return errors.New("a scenario needs a flow or assertions")
	}

	for i, step := range s.Flow {
		set := 0
		for _, f := range []string{step.Question, step.AddInstance, step.RemoveInstance} {
			if f != "" {
				set++
			}
		}
		if set != 1 {
			return fmt.Errorf("flow[%d]: exactly one of question, add_instance and remove_instance is required", i)
		}
		if _, err := ir.FromAny(step.Value); err != nil {
			return fmt.Errorf("flow[%d]: value: %w", i, err)
		}
		for j, a := range step.Expect {
			if err := validateAssertion(a, true); err != nil {
				return fmt.Errorf("flow[%d].expect[%d]: %w", i, j, err)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a, false); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}

	return nil
}
