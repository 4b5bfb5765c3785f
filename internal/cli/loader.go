package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/qflow/internal/catalog"
	"github.com/roach88/qflow/internal/compiler"
	"github.com/roach88/qflow/internal/ir"
)

// Error code constants, unified across all CLI commands.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeDecodeFailed = "E002" // Template could not be parsed
	ErrCodeInvalid      = "E003" // Template failed validation
	ErrCodeScenario     = "E004" // Scenario or answers file could not be loaded
	ErrCodeNotFound     = "E005" // Path, template or session not found
	ErrCodeStore        = "E006" // Database error
	ErrCodeWriteFailed  = "E007" // File write error
	ErrCodeBadInput     = "E008" // Invalid flag or argument value
)

var templateExts = []string{".json", ".yaml", ".yml", ".cue"}

// LoadError describes why a template reference could not be resolved.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos                  // CUE position if available
	Errors  []compiler.ValidationError // set for ErrCodeInvalid
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// isTemplatePath reports whether ref names a template file rather than a
// catalog id.
func isTemplatePath(ref string) bool {
	ext := strings.ToLower(filepath.Ext(ref))
	for _, e := range templateExts {
		if ext == e {
			return true
		}
	}
	return false
}

// LoadTemplate resolves ref as a template file (by extension) or, failing
// that, as the id of a built-in catalog template.
func LoadTemplate(ref string) (*ir.Template, *LoadError) {
	if !isTemplatePath(ref) {
		tpl, err := catalog.Get(ref)
		if errors.Is(err, catalog.ErrNotFound) {
			ids, _ := catalog.IDs()
			return nil, &LoadError{
				Code:    ErrCodeNotFound,
				Message: fmt.Sprintf("no template file or catalog template %q (catalog: %s)", ref, strings.Join(ids, ", ")),
			}
		}
		if err != nil {
			return nil, &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
		}
		return tpl, nil
	}

	data, err := os.ReadFile(ref)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("template file not found: %s", ref)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("reading template: %v", err)}
	}

	tpl, err := compiler.Load(data, ref)
	if err != nil {
		return nil, convertLoadError(err)
	}
	return tpl, nil
}

// convertLoadError classifies a compiler error.
func convertLoadError(err error) *LoadError {
	var invalid *compiler.InvalidTemplateError
	if errors.As(err, &invalid) {
		return &LoadError{
			Code:    ErrCodeInvalid,
			Message: fmt.Sprintf("template has %d validation error(s)", len(invalid.Errors)),
			Errors:  invalid.Errors,
		}
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeDecodeFailed,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeDecodeFailed, Message: err.Error()}
}
