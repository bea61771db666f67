package lua

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dshills/buildlink/internal/task/initscript"
)

// ScriptExt is the extension of contributor scripts.
const ScriptExt = ".lua"

// LoadDir loads every contributor script directly inside dir, in lexical
// file name order. A missing directory yields no contributors. Scripts that
// fail to load are skipped and their errors joined into the returned error;
// the contributors that did load are still returned.
func LoadDir(dir string, opts ...ContributorOption) ([]*Contributor, error) {
	paths, err := scriptPaths(dir)
	if err != nil {
		return nil, err
	}

	var (
		loaded []*Contributor
		errs   []error
	)
	for _, p := range paths {
		c, err := NewContributor(p, opts...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		loaded = append(loaded, c)
	}
	return loaded, errors.Join(errs...)
}

// scriptPaths lists the contributor scripts in dir, sorted by name.
func scriptPaths(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read plugin dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !isScript(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// isScript reports whether name looks like a contributor script. Hidden
// files are skipped so editor swap files never load.
func isScript(name string) bool {
	return !strings.HasPrefix(name, ".") && filepath.Ext(name) == ScriptExt
}

// Set is a fixed list of loaded contributors.
type Set []*Contributor

// Chain returns the contributors as an init script chain.
func (s Set) Chain() []initscript.Contributor {
	chain := make([]initscript.Contributor, len(s))
	for i, c := range s {
		chain[i] = c
	}
	return chain
}

// Close closes every contributor in the set.
func (s Set) Close() error {
	closeAll(s)
	return nil
}

// closeAll closes every contributor in cs.
func closeAll(cs []*Contributor) {
	for _, c := range cs {
		_ = c.Close()
	}
}
