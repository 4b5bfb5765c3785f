// Package catalog holds the questionnaire templates shipped with qflow.
//
// Templates are embedded at build time, compiled and validated once on first
// use. A template that fails to load is a build defect, so every accessor
// reports it rather than skipping the file.
package catalog

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/qflow/internal/compiler"
	"github.com/roach88/qflow/internal/ir"
)

//go:embed templates
var files embed.FS

// ErrNotFound is returned by Get for an unknown template id.
var ErrNotFound = errors.New("template not found")

var (
	loadOnce  sync.Once
	templates map[string]*ir.Template
	ids       []string
	loadErr   error
)

// Get returns the template with the given id.
// The returned template is shared and must not be modified.
func Get(id string) (*ir.Template, error) {
	if err := ensureLoaded(); err != nil {
		return nil, err
	}
	tpl, ok := templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return tpl, nil
}

// All returns every template ordered by id.
func All() ([]*ir.Template, error) {
	if err := ensureLoaded(); err != nil {
		return nil, err
	}
	out := make([]*ir.Template, len(ids))
	for i, id := range ids {
		out[i] = templates[id]
	}
	return out, nil
}

// IDs returns the template ids in order.
func IDs() ([]string, error) {
	if err := ensureLoaded(); err != nil {
		return nil, err
	}
	return slices.Clone(ids), nil
}

func ensureLoaded() error {
	loadOnce.Do(func() {
		templates, ids, loadErr = loadFS(files, "templates")
	})
	return loadErr
}

// loadFS compiles every template file under dir. Files are read in name
// order; a duplicate template id is an error.
func loadFS(fsys fs.FS, dir string) (map[string]*ir.Template, []string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read catalog: %w", err)
	}

	byID := make(map[string]*ir.Template)
	source := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isTemplateFile(name) {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", name, err)
		}
		tpl, err := compiler.Load(data, name)
		if err != nil {
			return nil, nil, fmt.Errorf("load %s: %w", name, err)
		}
		if prev, dup := source[tpl.ID]; dup {
			return nil, nil, fmt.Errorf("template id %q declared in both %s and %s", tpl.ID, prev, name)
		}
		byID[tpl.ID] = tpl
		source[tpl.ID] = name
	}

	order := make([]string, 0, len(byID))
	for id := range byID {
		order = append(order, id)
	}
	slices.Sort(order)
	return byID, order, nil
}

func isTemplateFile(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml", ".json", ".cue":
		return true
	}
	return false
}
