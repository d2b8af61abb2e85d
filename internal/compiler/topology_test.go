package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/enginesim/internal/ir"
	"github.com/roach88/enginesim/internal/testutil"
)

func compileString(t *testing.T, src string) (*ir.Topology, error) {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename("test.cue"))
	require.NoError(t, v.Err())
	return CompileTopology(v.LookupPath(cue.ParsePath("engine")))
}

func TestCompileTopologyInline4(t *testing.T) {
	topo, err := compileString(t, testutil.Inline4Script)
	require.NoError(t, err)

	assert.Equal(t, testutil.Inline4Topology(), topo)
}

func TestCompileTopologyDefaults(t *testing.T) {
	topo, err := compileString(t, `
		engine: {
			name: "single"
			cylinders: [{bore: 100, stroke: 80}]
		}
	`)
	require.NoError(t, err)

	require.Len(t, topo.Cylinders, 1)
	c := topo.Cylinders[0]
	assert.Equal(t, DefaultConRodRatio*80, c.ConRod)
	assert.Equal(t, DefaultCompressionRatio, c.CompressionRatio)
	assert.Zero(t, c.FiringOffset)

	assert.Equal(t, DefaultInertia, topo.Crankshaft.Inertia)
	assert.Equal(t, DefaultStarterTorque, topo.Starter.Torque)
	assert.True(t, topo.Starter.Auto)
	assert.Equal(t, DefaultThrottleDiameter, topo.Intake.ThrottleDiameter)
	assert.Equal(t, DefaultRevLimit, topo.Ignition.RevLimit)
	assert.Equal(t, DefaultLoadQuadratic, topo.Load.Quadratic)

	require.Len(t, topo.Exhaust, 1)
	assert.Equal(t, "main", topo.Exhaust[0].Name)
	assert.Equal(t, []int{0}, topo.Exhaust[0].Cylinders)
}

func TestCompileTopologyEvenSpacingWithoutFiringOrder(t *testing.T) {
	topo, err := compileString(t, `
		engine: {
			name: "triple"
			_c: {bore: 80, stroke: 80}
			cylinders: [_c, _c, _c]
		}
	`)
	require.NoError(t, err)

	assert.Equal(t, 0.0, topo.Cylinders[0].FiringOffset)
	assert.Equal(t, 240.0, topo.Cylinders[1].FiringOffset)
	assert.Equal(t, 480.0, topo.Cylinders[2].FiringOffset)
}

func TestCompileTopologyExplicitOffset(t *testing.T) {
	topo, err := compileString(t, `
		engine: {
			name: "big-bang"
			cylinders: [
				{bore: 80, stroke: 80, firing_offset: 0},
				{bore: 80, stroke: 80, firing_offset: 90},
			]
		}
	`)
	require.NoError(t, err)

	assert.Equal(t, 90.0, topo.Cylinders[1].FiringOffset)
}

func TestCompileTopologySplitExhaust(t *testing.T) {
	topo, err := compileString(t, testutil.TwinScript)
	require.NoError(t, err)

	require.Len(t, topo.Exhaust, 2)
	assert.Equal(t, []int{0}, topo.Exhaust[0].Cylinders)
	assert.Equal(t, -1.0, topo.Exhaust[0].Pan)
	assert.Equal(t, []int{1}, topo.Exhaust[1].Cylinders)
	assert.Equal(t, 360.0, topo.Cylinders[1].FiringOffset)
}

func TestCompileTopologyStarterDisabled(t *testing.T) {
	topo, err := compileString(t, `
		engine: {
			name: "push-start"
			cylinders: [{bore: 80, stroke: 80}]
			starter: auto: false
		}
	`)
	require.NoError(t, err)
	assert.False(t, topo.Starter.Auto)
}

func TestCompileTopologyErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{"missing engine", `other: 1`, "engine"},
		{"missing name", `engine: cylinders: [{bore: 1, stroke: 1}]`, "name"},
		{"missing cylinders", `engine: name: "x"`, "cylinders"},
		{"missing bore", `engine: {name: "x", cylinders: [{stroke: 80}]}`, "cylinders[0].bore"},
		{"bore is a string", `engine: {name: "x", cylinders: [{bore: "wide", stroke: 80}]}`, "cylinders[0].bore"},
		{"bore not concrete", `engine: {name: "x", cylinders: [{bore: number, stroke: 80}]}`, "cylinders[0].bore"},
		{"firing order unknown cylinder", `engine: {name: "x", cylinders: [{bore: 80, stroke: 80}], firing_order: [2]}`, "firing_order"},
		{"firing order repeats", `engine: {name: "x", _c: {bore: 80, stroke: 80}, cylinders: [_c, _c], firing_order: [1, 1]}`, "firing_order"},
		{"firing order short", `engine: {name: "x", _c: {bore: 80, stroke: 80}, cylinders: [_c, _c], firing_order: [1]}`, "firing_order"},
		{"exhaust unknown cylinder", `engine: {name: "x", cylinders: [{bore: 80, stroke: 80}], exhaust: [{cylinders: [3]}]}`, "exhaust[0].cylinders"},
		{"exhaust without cylinders", `engine: {name: "x", cylinders: [{bore: 80, stroke: 80}], exhaust: [{name: "a"}]}`, "exhaust[0].cylinders"},
		{"starter auto not bool", `engine: {name: "x", cylinders: [{bore: 80, stroke: 80}], starter: auto: 1}`, "starter.auto"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileString(t, tt.src)
			require.Error(t, err)

			var ce *CompileError
			require.True(t, errors.As(err, &ce), "want *CompileError, got %T: %v", err, err)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "name", Message: "name is required"}
	assert.Equal(t, "name: name is required", err.Error())
}

func TestCUELoaderLoad(t *testing.T) {
	topo, err := NewCUELoader().Load(testutil.Inline4Script)
	require.NoError(t, err)
	assert.Equal(t, "inline-4", topo.Name)
	assert.Len(t, topo.Cylinders, 4)
}

func TestCUELoaderSyntaxErrorHasPosition(t *testing.T) {
	_, err := NewCUELoader(WithFilename("broken.cue")).Load("engine: {\n\tname: \"x\"\n\tthis is not valid CUE\n}\n")
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce), "want *CompileError, got %T: %v", err, err)
	assert.True(t, ce.Pos.IsValid())
	assert.Equal(t, "broken.cue", ce.Pos.Filename())
}

func TestCUELoaderConflictIsReported(t *testing.T) {
	_, err := NewCUELoader().Load(`
		engine: {
			name: "x"
			name: "y"
			cylinders: [{bore: 80, stroke: 80}]
		}
	`)
	require.Error(t, err)
}

func TestCUELoaderSemanticErrors(t *testing.T) {
	_, err := NewCUELoader().Load(`
		engine: {
			name: "bad"
			cylinders: [{bore: 80, stroke: 80, compression_ratio: 0.5}]
			intake: idle_bypass: 2
		}
	`)
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs), "want ValidationErrors, got %T", err)
	codes := make([]string, len(verrs))
	for i, v := range verrs {
		codes[i] = v.Code
	}
	assert.Contains(t, codes, ErrCompressionRatio)
	assert.Contains(t, codes, ErrIdleBypass)
	assert.Contains(t, err.Error(), "compression_ratio")
}

func TestCUELoaderNormalizesNames(t *testing.T) {
	// e followed by a combining acute accent composes to U+00E9.
	topo, err := NewCUELoader().Load("engine: {name: \"cafe\u0301\", cylinders: [{bore: 80, stroke: 80}]}")
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", topo.Name)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twin.cue")
	require.NoError(t, os.WriteFile(path, []byte(testutil.TwinScript), 0o644))

	topo, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "twin", topo.Name)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.cue"))
	require.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "engine.cue"), []byte(`
package v8

engine: {
	name: "split"
	cylinders: [_cyl, _cyl]
}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "parts.cue"), []byte(`
package v8

_cyl: {bore: 90, stroke: 80}
`), 0o644))

	topo, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "split", topo.Name)
	assert.Equal(t, 90.0, topo.Cylinders[1].Bore)
}
