package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/regionmg/config"
	"github.com/notargets/regionmg/gallery"
)

func smallSolve() *ModelSolve {
	return &ModelSolve{
		Spec: gallery.Spec{
			Dim:         2,
			Nodes:       [3]int{9, 9, 1},
			Regions:     [3]int{2, 1, 1},
			DofsPerNode: 1,
			Dirichlet:   true,
		},
		Solver:    "richardson",
		Tolerance: 1e-6,
		MaxIter:   200,
	}
}

func TestRunSolve(t *testing.T) {
	for _, solver := range []string{"richardson", "pcg"} {
		t.Run(solver, func(t *testing.T) {
			var (
				ms  = smallSolve()
				out bytes.Buffer
			)
			ms.Solver = solver
			ms.Metrics = true
			require.NoError(t, RunSolve(ms, &out))
			assert.Contains(t, out.String(), "converged: true")
			assert.Contains(t, out.String(), "createRegionHierarchy")
			assert.Contains(t, out.String(), "vCycle: 1 - pre-smoother")
		})
	}
}

func TestRunSolveWithParams(t *testing.T) {
	var (
		dir = t.TempDir()
		fn  = filepath.Join(dir, "params.yaml")
		ms  = smallSolve()
		out bytes.Buffer
	)
	ex := strings.Replace(config.Example, "coarse solver type: smoother", "coarse solver type: direct", 1)
	require.NotEqual(t, config.Example, ex)
	require.NoError(t, os.WriteFile(fn, []byte(ex), 0o644))
	ms.ParamsFile = fn
	require.NoError(t, RunSolve(ms, &out))
	assert.Contains(t, out.String(), "direct coarse solver")
	assert.Contains(t, out.String(), "converged: true")

	ms.ParamsFile = filepath.Join(dir, "missing.yaml")
	assert.ErrorIs(t, RunSolve(ms, &out), os.ErrNotExist)
}

func TestRunSolveRejectsBadInput(t *testing.T) {
	for name, mod := range map[string]func(ms *ModelSolve){
		"dimension": func(ms *ModelSolve) { ms.Spec.Dim = 4 },
		"regions":   func(ms *ModelSolve) { ms.Spec.Regions[0] = 9 },
		"dofs":      func(ms *ModelSolve) { ms.Spec.DofsPerNode = 0 },
		"solver":    func(ms *ModelSolve) { ms.Solver = "gmres" },
		"profile":   func(ms *ModelSolve) { ms.Profile = "trace" },
	} {
		t.Run(name, func(t *testing.T) {
			ms := smallSolve()
			mod(ms)
			var out bytes.Buffer
			assert.Error(t, RunSolve(ms, &out))
			assert.Empty(t, out.String())
		})
	}
}

func TestParamsCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"params"})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, config.Example, out.String())

	fn := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(fn, []byte(config.Example), 0o644))
	out.Reset()
	rootCmd.SetArgs([]string{"params", "--check", fn})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "coarse solver type")
}
