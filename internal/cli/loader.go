package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/enginesim/internal/compiler"
	"github.com/roach88/enginesim/internal/config"
	"github.com/roach88/enginesim/internal/ir"
)

// loadScript compiles a script file, or the CUE package in a directory.
func loadScript(path string) (*ir.Topology, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "script not found", err)
	}
	if info.IsDir() {
		return compiler.LoadDir(path)
	}
	return compiler.LoadFile(path)
}

// loadConfig reads a YAML config file, or returns the defaults when path
// is empty.
func loadConfig(path string) (config.EngineConfig, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.EngineConfig{}, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return cfg, nil
}

// ScriptError is one reportable problem with a topology script.
type ScriptError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

func (e ScriptError) String() string {
	loc := ""
	switch {
	case e.File != "" && e.Line > 0:
		loc = fmt.Sprintf("%s:%d:%d: ", e.File, e.Line, e.Column)
	case e.Line > 0:
		loc = fmt.Sprintf("line %d: ", e.Line)
	}
	return fmt.Sprintf("%s[%s] %s: %s", loc, e.Code, e.Field, e.Message)
}

// scriptErrors flattens a compile failure into one entry per problem.
func scriptErrors(err error) []ScriptError {
	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]ScriptError, len(verrs))
		for i, v := range verrs {
			out[i] = ScriptError{Code: v.Code, Field: v.Field, Message: v.Message, Line: v.Line}
		}
		return out
	}

	var cerr *compiler.CompileError
	if errors.As(err, &cerr) {
		se := ScriptError{Code: "SYNTAX", Field: cerr.Field, Message: cerr.Message}
		if cerr.Pos.IsValid() {
			se.File = cerr.Pos.Filename()
			se.Line = cerr.Pos.Line()
			se.Column = cerr.Pos.Column()
		}
		return []ScriptError{se}
	}

	return []ScriptError{{Code: "SCRIPT", Field: "script", Message: err.Error()}}
}
