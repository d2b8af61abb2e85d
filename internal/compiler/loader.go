package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/enginesim/internal/ir"
)

// DefaultFilename labels positions in scripts loaded from memory.
const DefaultFilename = "engine.cue"

// CUELoader compiles in-memory CUE scripts. It is safe for concurrent use:
// every Load builds its own CUE context.
type CUELoader struct {
	filename string
}

// LoaderOption configures a CUELoader.
type LoaderOption func(*CUELoader)

// WithFilename sets the filename reported in error positions.
func WithFilename(name string) LoaderOption {
	return func(l *CUELoader) {
		if name != "" {
			l.filename = name
		}
	}
}

// NewCUELoader creates a loader for CUE engine scripts.
func NewCUELoader(opts ...LoaderOption) *CUELoader {
	l := &CUELoader{filename: DefaultFilename}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load compiles and validates a script. Syntax and shape errors are
// *CompileError; semantic errors are ValidationErrors.
func (l *CUELoader) Load(source string) (*ir.Topology, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(norm.NFC.String(source), cue.Filename(l.filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compileValue(v)
}

// LoadFile reads and compiles one script file.
func LoadFile(path string) (*ir.Topology, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	return NewCUELoader(WithFilename(path)).Load(string(src))
}

// LoadDir builds the CUE package in dir and compiles its engine. Scripts
// may be split across files of one package.
func LoadDir(dir string) (*ir.Topology, error) {
	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances in %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compileValue(v)
}

func compileValue(v cue.Value) (*ir.Topology, error) {
	topo, err := CompileTopology(v.LookupPath(cue.ParsePath("engine")))
	if err != nil {
		return nil, err
	}
	if errs := Validate(topo); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return topo, nil
}
