package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/qflow/internal/compiler"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Strict bool // lint warnings fail validation
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool                       `json:"valid"`
	TemplateID string                     `json:"template_id,omitempty"`
	Errors     []compiler.ValidationError `json:"errors,omitempty"`
	Warnings   []compiler.Warning         `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <template>",
		Short: "Validate a template and report authoring warnings",
		Long: `Validate a questionnaire template without running it.

Reports every structural error (duplicate ids, unknown operators, missing
options, ...) and lint warnings such as rules that reference undeclared
questions or visibility cycles. <template> is a .json, .yaml, .yml or .cue
file, or the id of a built-in catalog template.

Exit codes:
  0 - Template valid
  1 - Validation errors (or warnings with --strict)
  2 - Command error (file not found, parse error)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "treat lint warnings as errors")

	return cmd
}

func runValidate(opts *ValidateOptions, ref string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	tpl, loadErr := LoadTemplate(ref)
	if loadErr != nil {
		if loadErr.Code == ErrCodeInvalid {
			return outputValidationErrors(formatter, ValidationResult{Errors: loadErr.Errors})
		}
		return formatter.fail(loadErr.Code, loadErr.Message, nil)
	}
	formatter.VerboseLog("Loaded template %s (%d step(s), %d question(s))", tpl.ID, len(tpl.Steps), tpl.QuestionCount())

	result := ValidationResult{
		Valid:      true,
		TemplateID: tpl.ID,
		Warnings:   compiler.Lint(tpl),
	}

	if opts.Strict && len(result.Warnings) > 0 {
		result.Valid = false
		if formatter.isJSON() {
			_ = formatter.Failure(result.Warnings[0].Code, result.Warnings[0].Message, result)
		} else {
			fmt.Fprintf(formatter.Writer, "✗ Template %s has warnings (--strict)\n\n", tpl.ID)
			printWarnings(formatter, result.Warnings)
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d warning(s)", len(result.Warnings)))
	}

	if formatter.isJSON() {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Template %s valid (%d step(s), %d question(s))\n",
		tpl.ID, len(tpl.Steps), tpl.QuestionCount())
	if len(result.Warnings) > 0 {
		fmt.Fprintln(formatter.Writer)
		printWarnings(formatter, result.Warnings)
	}
	return nil
}

func printWarnings(formatter *OutputFormatter, warnings []compiler.Warning) {
	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "  ! %s\n", w)
	}
}

// outputValidationErrors reports a template that failed validation.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.isJSON() {
		code, msg := ErrCodeInvalid, exitErr.Message
		if len(errs) > 0 {
			code, msg = errs[0].Code, errs[0].Message
		}
		if err := formatter.Failure(code, msg, result); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range errs {
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n", e.Code, e.Field, e.Message)
	}
	return exitErr
}
