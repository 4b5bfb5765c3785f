package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qflow/internal/compiler"
	"github.com/roach88/qflow/internal/ir"
)

func TestCompileTemplate(t *testing.T) {
	out, err := execute(NewCompileCommand(&RootOptions{Format: "text"}), writeMarriageTemplate(t))
	require.NoError(t, err)

	assert.Contains(t, out, "✓ Compiled evlilik 1.0.0")
	assert.Contains(t, out, "questions:  3")
	assert.Contains(t, out, "rules:      1 on questions, 1 on steps")
	assert.Contains(t, out, "hash:       ")
}

func TestCompileTemplateJSON(t *testing.T) {
	path := writeMarriageTemplate(t)
	out, err := execute(NewCompileCommand(&RootOptions{Format: "json"}), path)
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "evlilik", resp.Data.TemplateID)
	assert.Equal(t, 3, resp.Data.Complexity.Questions)
	assert.Equal(t, 1, resp.Data.Complexity.MaxDepth)

	tpl, err := compiler.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ir.MustTemplateHash(tpl), resp.Data.Hash)
}

func TestCompileOutputToFileIsCanonical(t *testing.T) {
	path := writeMarriageTemplate(t)
	outputFile := filepath.Join(t.TempDir(), "evlilik.json")

	out, err := execute(NewCompileCommand(&RootOptions{Format: "text"}), path, "--output", outputFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote canonical template to "+outputFile)

	data, err := os.ReadFile(outputFile)
	require.NoError(t, err)

	// The compiled file loads back to the same template.
	original, err := compiler.LoadFile(path)
	require.NoError(t, err)
	reloaded, err := compiler.FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, ir.MustTemplateHash(original), ir.MustTemplateHash(reloaded))

	canonical, err := ir.MarshalCanonical(original)
	require.NoError(t, err)
	assert.Equal(t, string(canonical), string(data))
}

func TestCompileFormatsAgree(t *testing.T) {
	dir := t.TempDir()
	yamlPath := writeFile(t, dir, "evlilik.yaml", marriageYAML)

	yamlTpl, err := compiler.LoadFile(yamlPath)
	require.NoError(t, err)
	canonical, err := ir.MarshalCanonical(yamlTpl)
	require.NoError(t, err)
	jsonPath := writeFile(t, dir, "evlilik.json", string(canonical))

	var hashes []string
	for _, p := range []string{yamlPath, jsonPath} {
		out, err := execute(NewCompileCommand(&RootOptions{Format: "json"}), p)
		require.NoError(t, err)

		var resp struct {
			Data CompilationResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		hashes = append(hashes, resp.Data.Hash)
	}
	assert.Equal(t, hashes[0], hashes[1])
}

func TestCompileCatalogCUETemplate(t *testing.T) {
	out, err := execute(NewCompileCommand(&RootOptions{Format: "text"}), "cekismeli-bosanma")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Compiled cekismeli-bosanma")
}

func TestCompileNonExistentFile(t *testing.T) {
	out, err := execute(NewCompileCommand(&RootOptions{Format: "text"}), "/nonexistent/evlilik.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "E005")
	assert.Contains(t, out, "not found")
}

func TestCompileInvalidTemplate(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bozuk.yaml", brokenYAML)

	out, err := execute(NewCompileCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeInvalid)
	assert.Contains(t, out, "✗ Compilation failed")
	assert.Contains(t, out, "E103")
}

func TestCompileInvalidTemplateJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bozuk.yaml", brokenYAML)

	out, err := execute(NewCompileCommand(&RootOptions{Format: "json"}), path)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalid, resp.Error.Code)
	assert.Len(t, resp.Error.Details, 3)
}

func TestCompileUnwritableOutput(t *testing.T) {
	out, err := execute(NewCompileCommand(&RootOptions{Format: "text"}),
		writeMarriageTemplate(t), "-o", filepath.Join(t.TempDir(), "missing", "dir", "out.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeWriteFailed)
	assert.Contains(t, out, "writing output file")
}
