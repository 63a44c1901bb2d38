// Package catalog embeds the default rule catalog.
package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/roach88/dpmcheck/internal/compiler"
	"github.com/roach88/dpmcheck/internal/ir"
)

//go:embed rules/*.cue
var files embed.FS

// Files returns the embedded catalog files in load order.
func Files() []string {
	names, err := fs.Glob(files, "rules/*.cue")
	if err != nil {
		// the pattern is constant
		panic(err)
	}
	sort.Strings(names)
	return names
}

// Source returns the contents of an embedded catalog file.
func Source(name string) ([]byte, error) {
	data, err := files.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("reading embedded catalog %s: %w", name, err)
	}
	return data, nil
}

// Load compiles the embedded catalog. Rules keep file order, then entry
// order within a file. Rejected entries are returned in errs and skipped.
func Load() (rules []*ir.Rule, errs []error) {
	for _, name := range Files() {
		data, err := Source(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r, e := compiler.CompileCatalogBytes(path.Base(name), data)
		rules = append(rules, r...)
		errs = append(errs, e...)
	}
	return rules, errs
}
