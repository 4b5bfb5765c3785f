package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/qflow/internal/compiler"
	"github.com/roach88/qflow/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult is the compiled template with its content hash and
// complexity metrics.
type CompilationResult struct {
	TemplateID string              `json:"template_id"`
	Version    string              `json:"version,omitempty"`
	Hash       string              `json:"hash"`
	Complexity compiler.Complexity `json:"complexity"`
	Template   json.RawMessage     `json:"template"` // canonical JSON
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <template>",
		Short: "Compile a template to canonical JSON",
		Long: `Compile a YAML, JSON or CUE template to canonical JSON.

The canonical form has sorted keys and no insignificant whitespace, so two
templates with the same content always compile to the same bytes and hash.
The hash is what stored sessions are pinned to.

Examples:
  qflow compile ./templates/evlilik.yaml
  qflow compile ./templates/dava.cue -o dava.json
  qflow compile anlasmali-bosanma --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, ref string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	tpl, loadErr := LoadTemplate(ref)
	if loadErr != nil {
		return outputCompileError(formatter, loadErr)
	}

	result, err := compileTemplate(tpl)
	if err != nil {
		return formatter.fail(ErrCodeGeneric, err.Error(), nil)
	}
	formatter.VerboseLog("Compiled %s: %d byte(s), hash %s", tpl.ID, len(result.Template), result.Hash)

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, result.Template, 0644); err != nil {
			return formatter.fail(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	if formatter.isJSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	c := result.Complexity
	fmt.Fprintf(w, "✓ Compiled %s %s\n\n", result.TemplateID, result.Version)
	fmt.Fprintf(w, "  steps:      %d\n", c.Steps)
	fmt.Fprintf(w, "  questions:  %d\n", c.Questions)
	fmt.Fprintf(w, "  rules:      %d on questions, %d on steps and groups\n", c.Rules, c.StepRules)
	fmt.Fprintf(w, "  max depth:  %d\n", c.MaxDepth)
	fmt.Fprintf(w, "  hash:       %s\n", result.Hash)
	if opts.Output != "" {
		fmt.Fprintf(w, "\nWrote canonical template to %s\n", opts.Output)
	}
	return nil
}

func compileTemplate(tpl *ir.Template) (CompilationResult, error) {
	data, err := ir.MarshalCanonical(tpl)
	if err != nil {
		return CompilationResult{}, fmt.Errorf("marshaling template: %w", err)
	}
	hash, err := ir.TemplateHash(tpl)
	if err != nil {
		return CompilationResult{}, err
	}
	return CompilationResult{
		TemplateID: tpl.ID,
		Version:    tpl.Version,
		Hash:       hash,
		Complexity: compiler.Analyze(tpl),
		Template:   data,
	}, nil
}

// outputCompileError reports a template that could not be compiled.
// Compilation errors are command-level errors (exit code 2).
func outputCompileError(formatter *OutputFormatter, loadErr *LoadError) error {
	if formatter.isJSON() {
		var details any
		if len(loadErr.Errors) > 0 {
			details = loadErr.Errors
		}
		return formatter.fail(loadErr.Code, loadErr.Message, details)
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)
	if loadErr.Pos.IsValid() {
		fmt.Fprintf(formatter.Writer, "%s:%d:%d\n", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
	}
	fmt.Fprintf(formatter.Writer, "  %s: %s\n", loadErr.Code, loadErr.Message)
	for _, e := range loadErr.Errors {
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n", e.Code, e.Field, e.Message)
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", loadErr.Code, loadErr.Message))
}
