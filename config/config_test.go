package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/regionmg/coarse"
	"github.com/notargets/regionmg/smoother"
)

func TestExampleMatchesDefaults(t *testing.T) {
	p := Default()
	require.NoError(t, p.Parse([]byte(Example)))
	assert.Equal(t, Default(), p)
	assert.NoError(t, p.Validate())
}

func TestParse(t *testing.T) {
	p := Default()
	require.NoError(t, p.Parse([]byte(`
coarse solver type: amg
coarse solver rebalance: true
coarse rebalance num partitions: 4
cycle type: W
keep coarse coordinates: true
smoother:
  "smoother: type": Chebyshev
  "smoother: sweeps": 3
`)))
	assert.Equal(t, "amg", p.CoarseSolverType)
	assert.True(t, p.CoarseSolverRebalance)
	assert.Equal(t, 4, p.CoarseRebalanceNumPartitions)
	assert.Equal(t, WCycle, p.CycleType)
	assert.Equal(t, smoother.Chebyshev, p.Smoother.Type)
	assert.Equal(t, 3, p.Smoother.Sweeps)
	// Unset keys keep their defaults
	assert.Equal(t, 3, p.CoarseningRate)
	assert.Equal(t, 0.67, p.Smoother.Damping)

	opts, err := p.CoarseOptions()
	require.NoError(t, err)
	assert.Equal(t, coarse.AMG, opts.Kind)
	assert.Equal(t, 4, opts.RebalanceNumPartitions)
	assert.True(t, opts.KeepCoarseCoords)

	assert.Error(t, p.Parse([]byte("max region levels: [1, 2")))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		fn := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(fn, []byte(content), 0o644))
		return fn
	}
	write("coarse_smoother.yaml", `
"smoother: type": Chebyshev
"smoother: sweeps": 4
`)
	write("amg.yaml", `
"coarse: max size": 50
"smoother: sweeps": 3
`)
	fn := write("params.yaml", `
coarse solver type: direct
smoother xml file: coarse_smoother.yaml
amg xml file: amg.yaml
`)
	p, err := Load(fn)
	require.NoError(t, err)
	assert.Equal(t, smoother.Jacobi, p.Smoother.Type)
	assert.Equal(t, smoother.Chebyshev, p.CoarseSmoother.Type)
	assert.Equal(t, 4, p.CoarseSmoother.Sweeps)
	assert.Equal(t, 50, p.AMG.CoarseMaxSize)
	assert.Equal(t, 3, p.AMG.Sweeps)
	assert.Equal(t, 10, p.AMG.MaxLevels)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	bad := write("bad.yaml", "smoother xml file: nowhere.yaml\n")
	_, err = Load(bad)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestValidate(t *testing.T) {
	p := Default()
	p.CoarseSolverType = "ILU"
	p.CycleType = "F"
	p.CoarseningRate = 1
	p.Smoother.Type = "Gauss-Seidel"
	err := p.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.True(t, errors.Is(err, coarse.ErrUnsupported))
	for _, s := range []string{"ILU", "cycle type", "coarsening rate", "Gauss-Seidel"} {
		assert.Contains(t, err.Error(), s)
	}
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	Default().Print(&buf)
	assert.Contains(t, buf.String(), "= coarse solver type")
	assert.Contains(t, buf.String(), "[rcb]")
}
