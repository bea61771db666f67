// Package initscript collects build initialization scripts from an ordered
// chain of contributors and writes them to a single init script file.
//
// Contributors run in the order given. Each may emit any number of script
// bodies; every non-empty body becomes a Fragment tagged with the
// contributor's name. Fragments are rendered with provenance markers:
//
//	//-- Generated by <contributor>
//	<body>
//	//
//
// When no contributor emits anything, Build returns a nil artifact and no
// file is written.
package initscript

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/buildlink/internal/logging"
)

// InitScriptOption is the command-line option that applies an init script.
const InitScriptOption = "--init-script"

// LineSeparator joins rendered lines.
const LineSeparator = "\n"

// File name pattern for materialized scripts, as accepted by os.CreateTemp.
const filePattern = "init*.gradle"

// Contributor adds build initialization logic before a task set launches.
type Contributor interface {
	// Name identifies the contributor in generated scripts.
	Name() string

	// Enhance is called with the task names and debugger setup of the
	// launch. It calls emit once per script body it wants to contribute.
	Enhance(taskNames []string, debuggerSetup string, emit func(script string))
}

// Fragment is one contributed script body.
type Fragment struct {
	Provenance string
	Body       string
}

// ErrMaterialize wraps failures writing the init script file.
var ErrMaterialize = errors.New("materialize init script")

// Collect runs every contributor in chain order and returns the fragments
// they emitted, in order. A contributor that panics is skipped; fragments
// it emitted before panicking are dropped, fragments of other contributors
// are kept.
func Collect(taskNames []string, debuggerSetup string, chain []Contributor, logger *logging.Logger) []Fragment {
	if logger == nil {
		logger = logging.Nop()
	}

	var fragments []Fragment
	for _, c := range chain {
		if c == nil {
			continue
		}
		fragments = append(fragments, collectOne(c, taskNames, debuggerSetup, logger)...)
	}
	return fragments
}

func collectOne(c Contributor, taskNames []string, debuggerSetup string, logger *logging.Logger) (out []Fragment) {
	name := c.Name()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("init script contributor panicked", "contributor", name, "panic", fmt.Sprint(r))
			out = nil
		}
	}()

	// Contributors get their own copy so one cannot reorder another's input.
	names := append([]string(nil), taskNames...)
	c.Enhance(names, debuggerSetup, func(script string) {
		if strings.TrimSpace(script) == "" {
			return
		}
		out = append(out, Fragment{Provenance: name, Body: script})
	})
	return out
}

// Render concatenates fragments with provenance markers.
func Render(fragments []Fragment) string {
	lines := make([]string, 0, len(fragments)*3)
	for _, f := range fragments {
		lines = append(lines, "//-- Generated by "+f.Provenance, f.Body, "//")
	}
	return strings.Join(lines, LineSeparator)
}

// Artifact is a materialized init script.
type Artifact struct {
	// Path is the absolute path of the script file.
	Path string
}

// Remove deletes the script file. Removing an already deleted file is not
// an error.
func (a *Artifact) Remove() error {
	if a == nil {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Materialize writes content to a new temporary file in dir. An empty dir
// means the system temporary directory.
func Materialize(dir, content string) (*Artifact, error) {
	f, err := os.CreateTemp(dir, filePattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMaterialize, err)
	}
	path := f.Name()

	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: write %s: %w", ErrMaterialize, path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: close %s: %w", ErrMaterialize, path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &Artifact{Path: abs}, nil
}

// Build collects fragments from chain and materializes them in dir.
// It returns a nil artifact when nothing was contributed.
func Build(taskNames []string, debuggerSetup string, chain []Contributor, dir string, logger *logging.Logger) (*Artifact, error) {
	fragments := Collect(taskNames, debuggerSetup, chain, logger)
	if len(fragments) == 0 {
		return nil, nil
	}
	return Materialize(dir, Render(fragments))
}

// AppendInitScript appends the init script option for a to params.
// A nil artifact leaves params unchanged.
func AppendInitScript(params []string, a *Artifact) []string {
	if a == nil {
		return params
	}
	return append(params, InitScriptOption, a.Path)
}
