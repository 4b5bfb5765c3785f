package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "evlilik-akisi.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "evlilik-akisi", scenario.Name)
	assert.Equal(t, filepath.Join("testdata", "templates", "evlilik.yaml"), scenario.Template)
	require.Len(t, scenario.Flow, 3)
	assert.Equal(t, "evlilik_tarihi", scenario.Flow[0].Question)
	assert.Equal(t, "2020-05-10", scenario.Flow[0].Value)
	assert.True(t, scenario.Flow[0].Final)
	assert.Len(t, scenario.Flow[0].Expect, 2)
	assert.Len(t, scenario.Assertions, 3)
}

func TestLoadScenario_AbsoluteTemplateKept(t *testing.T) {
	abs, err := filepath.Abs(filepath.Join("testdata", "templates", "evlilik.yaml"))
	require.NoError(t, err)

	path := writeScenario(t, `
name: abs
template: `+abs+`
assertions:
  - type: completion
    value: 0
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, abs, scenario.Template)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
template_id: x
assertions: [{type: complete, value: true}]`,
			wantErr: "name is required",
		},
		{
			name: "no template",
			content: `
name: t
assertions: [{type: complete, value: true}]`,
			wantErr: "one of template or template_id is required",
		},
		{
			name: "both templates",
			content: `
name: t
template: a.yaml
template_id: a
assertions: [{type: complete, value: true}]`,
			wantErr: "mutually exclusive",
		},
		{
			name: "bad today",
			content: `
name: t
template_id: a
today: 01.03.2024
assertions: [{type: complete, value: true}]`,
			wantErr: "today",
		},
		{
			name: "bad policy",
			content: `
name: t
template_id: a
policy: forget
assertions: [{type: complete, value: true}]`,
			wantErr: "unknown hidden answer policy",
		},
		{
			name: "nothing to do",
			content: `
name: t
template_id: a`,
			wantErr: "needs a flow or assertions",
		},
		{
			name: "step without question",
			content: `
name: t
template_id: a
flow:
  - value: x`,
			wantErr: "flow[0]: exactly one of question, add_instance and remove_instance is required",
		},
		{
			name: "question and group change",
			content: `
name: t
template_id: a
flow:
  - question: q
    add_instance: g`,
			wantErr: "flow[0]: exactly one of",
		},
		{
			name: "group assertion without group",
			content: `
name: t
template_id: a
assertions: [{type: group_instances, value: 2}]`,
			wantErr: "group_instances: group is required",
		},
		{
			name: "object value",
			content: `
name: t
template_id: a
flow:
  - question: q
    value: {a: 1}`,
			wantErr: "flow[0]: value",
		},
		{
			name: "unknown field",
			content: `
name: t
template_id: a
assertion: []`,
			wantErr: "failed to parse YAML",
		},
		{
			name: "unknown assertion type",
			content: `
name: t
template_id: a
assertions: [{type: trace_contains}]`,
			wantErr: `unknown assertion type "trace_contains"`,
		},
		{
			name: "error outside flow",
			content: `
name: t
template_id: a
assertions: [{type: error, code: UNKNOWN_QUESTION}]`,
			wantErr: "belong in a flow step",
		},
		{
			name: "expect validated",
			content: `
name: t
template_id: a
flow:
  - question: q
    value: x
    expect: [{type: completion, value: half}]`,
			wantErr: "flow[0].expect[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseScenario_NullValueAllowed(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: t
template_id: a
flow:
  - question: q
`))
	require.NoError(t, err)
	assert.Nil(t, scenario.Flow[0].Value)
}
