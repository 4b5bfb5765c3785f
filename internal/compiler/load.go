package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/qflow/internal/ir"
)

// FromJSON decodes and validates a JSON template document.
// Unknown fields are rejected so typos surface at authoring time.
func FromJSON(data []byte) (*ir.Template, error) {
	var doc templateDoc
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode template JSON: %w", err)
	}
	return finish(&doc)
}

// FromYAML decodes and validates a YAML template document.
func FromYAML(data []byte) (*ir.Template, error) {
	var doc templateDoc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode template YAML: %w", err)
	}
	return finish(&doc)
}

// FromCUE compiles CUE source and validates the template it defines.
// The template may sit at the root of the file or under a top-level
// "template" field.
func FromCUE(data []byte, filename string) (*ir.Template, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	if nested := v.LookupPath(cue.ParsePath("template")); nested.Exists() {
		v = nested
	}
	return CompileTemplate(v)
}

// LoadFile reads a template from disk, dispatching on the file extension
// (.json, .yaml, .yml or .cue).
func LoadFile(path string) (*ir.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return Load(data, path)
}

// Load decodes template data, using name's extension to pick the format.
func Load(data []byte, name string) (*ir.Template, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".json":
		return FromJSON(data)
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".cue":
		return FromCUE(data, name)
	default:
		return nil, fmt.Errorf("unsupported template format %q (want .json, .yaml, .yml or .cue)", ext)
	}
}

func finish(doc *templateDoc) (*ir.Template, error) {
	tpl, err := doc.toTemplate()
	if err != nil {
		return nil, err
	}
	if err := Validate(tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}
