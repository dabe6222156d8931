package regionmg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/regionmg/coarse"
	"github.com/notargets/regionmg/config"
	"github.com/notargets/regionmg/dist"
	"github.com/notargets/regionmg/gallery"
	"github.com/notargets/regionmg/smoother"
	"github.com/notargets/regionmg/timers"
)

func newProblem(np int, spec gallery.Spec) *gallery.Problem {
	return gallery.NewPoisson(dist.NewComm(np), spec)
}

// smallProblem is a 4x4 cell grid split into two regions.
func smallProblem() *gallery.Problem {
	return newProblem(2, gallery.Spec{Dim: 2, Nodes: [3]int{5, 5}, Regions: [3]int{2, 1}, Dirichlet: true})
}

func withCoarse(kind coarse.Kind) *config.Parameters {
	p := config.Default()
	p.CoarseSolverType = kind.String()
	p.KeepCoarseCoordinates = true
	p.Smoother.Sweeps = 2
	p.CoarseSmoother.Sweeps = 4
	return p
}

// exactSolution solves the composite system densely.
func exactSolution(t *testing.T, p *gallery.Problem) (x *dist.Vector) {
	t.Helper()
	var (
		idx = dist.DenseIndex(p.CompRowMap)
		b   = mat.NewVecDense(idx.NumGlobal(), p.B.ToDense(idx))
		sol mat.VecDense
	)
	require.NoError(t, sol.SolveVec(p.A.ToDense(idx), b))
	x = dist.NewVector(p.CompRowMap)
	x.FromDense(idx, sol.RawVector().Data)
	return
}

func TestCreateRegionHierarchy(t *testing.T) {
	var (
		p  = smallProblem()
		tm = timers.New()
		h  = CreateRegionHierarchy(NewSetupInput(p), withCoarse(coarse.Direct), tm)
	)
	require.Equal(t, 3, h.NumLevels())
	assert.Nil(t, h.Levels[0].Prolongator)
	for l, lvl := range h.Levels {
		assert.Equal(t, l, lvl.Index)
		assert.True(t, lvl.A.RowMap().IsSameAs(lvl.RegRowMap), "level %d", l)
		assert.True(t, lvl.CompRowMap.IsOneToOne(), "level %d", l)
		assert.True(t, lvl.Scaling.Map().HasSameLayout(lvl.RegRowMap))
		if l < h.NumLevels()-1 {
			assert.NotNil(t, lvl.Smoother)
		} else {
			assert.Nil(t, lvl.Smoother)
		}
	}
	// Region boxes of 3x5 nodes coarsen to 2x3, then 2x2
	assert.Equal(t, 12, h.Levels[1].RegRowMap.NumGlobal())
	assert.Equal(t, 8, h.Levels[2].RegRowMap.NumGlobal())
	assert.Equal(t, 6, h.Levels[2].CompRowMap.NumGlobal())
	assert.Equal(t, coarse.Direct, h.Coarse.Kind())

	entries, err := tm.Summary()
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	for _, name := range []string{
		"createRegionHierarchy: MakeCoarseLevel",
		"createRegionHierarchy: MakeInterfaceScaling",
		"createRegionHierarchy: SmootherSetup",
		"createRegionHierarchy: CreateCoarseSolver",
	} {
		assert.Contains(t, names, name)
	}

	bad := config.Default()
	bad.CoarseSolverType = "ILU"
	assert.Panics(t, func() { CreateRegionHierarchy(NewSetupInput(p), bad, nil) })
}

func TestVCycleKeepsExactSolution(t *testing.T) {
	p := smallProblem()
	for _, kind := range []coarse.Kind{coarse.Smoother, coarse.Direct, coarse.AMG} {
		var (
			h        = CreateRegionHierarchy(NewSetupInput(p), withCoarse(kind), nil)
			x        = h.toRegional(exactSolution(t, p))
			b        = h.toRegional(p.B)
			before   = x.Copy()
			zeroInit = false
		)
		require.True(t, h.VCycle(0, x, b, &zeroInit))
		assert.False(t, zeroInit)
		for rank := 0; rank < 2; rank++ {
			assert.InDeltaSlice(t, before.Local(rank), x.Local(rank), 1e-10, "%v coarse solver", kind)
		}
	}
}

func TestVCycleReducesResidual(t *testing.T) {
	p := smallProblem()
	for _, kind := range []coarse.Kind{coarse.Smoother, coarse.Direct, coarse.AMG} {
		var (
			tm   = timers.New()
			h    = CreateRegionHierarchy(NewSetupInput(p), withCoarse(kind), tm)
			x    = dist.NewVector(p.RegRowMap)
			b    = h.toRegional(p.B)
			r0   = h.compositeResidual(x, b)
			zero = true
		)
		require.Greater(t, r0, 0.)
		for cycle := 0; cycle < 5; cycle++ {
			require.True(t, h.VCycle(0, x, b, &zero))
		}
		assert.Less(t, h.compositeResidual(x, b), 0.1*r0, "%v coarse solver", kind)

		entries, err := tm.Summary()
		require.NoError(t, err)
		calls := make(map[string]int)
		for _, e := range entries {
			calls[e.Name] = e.Calls
		}
		assert.Equal(t, 5, calls["vCycle: * - coarsest grid solve"])
		assert.Equal(t, 10, calls["vCycle: 1 - pre-smoother"])
	}
}

func TestCoarseSolversAgree(t *testing.T) {
	var (
		p       = newProblem(4, gallery.Spec{Dim: 2, Nodes: [3]int{13, 13}, Regions: [3]int{2, 2}, Dirichlet: true})
		direct  = CreateRegionHierarchy(NewSetupInput(p), withCoarse(coarse.Direct), nil)
		amgParm = withCoarse(coarse.AMG)
	)
	amgParm.CoarseSolverRebalance = true
	amgParm.CoarseRebalanceNumPartitions = 2
	viaAMG := CreateRegionHierarchy(NewSetupInput(p), amgParm, nil)

	var (
		b        = direct.toRegional(p.B)
		xd       = dist.NewVector(p.RegRowMap)
		xa       = dist.NewVector(p.RegRowMap)
		zd, za   = true, true
		smoothed = CreateRegionHierarchy(NewSetupInput(p), withCoarse(coarse.Smoother), nil)
		xs       = dist.NewVector(p.RegRowMap)
		zs       = true
	)
	for cycle := 0; cycle < 3; cycle++ {
		require.True(t, direct.VCycle(0, xd, b, &zd))
		require.True(t, viaAMG.VCycle(0, xa, b, &za))
		require.True(t, smoothed.VCycle(0, xs, b, &zs))
	}
	// The coarse composite operator is small enough for AMG to factor it directly
	for rank := 0; rank < 4; rank++ {
		assert.InDeltaSlice(t, xd.Local(rank), xa.Local(rank), 1e-9)
	}
	r0 := direct.compositeResidual(dist.NewVector(p.RegRowMap), b)
	assert.Less(t, direct.compositeResidual(xs, b), 0.5*r0)
}

func TestWCycle(t *testing.T) {
	var (
		p      = newProblem(4, gallery.Spec{Dim: 2, Nodes: [3]int{13, 13}, Regions: [3]int{2, 2}, Dirichlet: true})
		params = withCoarse(coarse.Direct)
		tm     = timers.New()
	)
	params.CycleType = config.WCycle
	h := CreateRegionHierarchy(NewSetupInput(p), params, tm)
	require.Equal(t, 3, h.NumLevels())
	var (
		x    = dist.NewVector(p.RegRowMap)
		b    = h.toRegional(p.B)
		r0   = h.compositeResidual(x, b)
		zero = true
	)
	require.True(t, h.VCycle(0, x, b, &zero))
	assert.Less(t, h.compositeResidual(x, b), 0.5*r0)

	entries, err := tm.Summary()
	require.NoError(t, err)
	calls := make(map[string]int)
	for _, e := range entries {
		calls[e.Name] = e.Calls
	}
	// One pass on level 0, two on level 1
	assert.Equal(t, 3, calls["vCycle: 1 - pre-smoother"])
	assert.Equal(t, 2, calls["vCycle: * - coarsest grid solve"])
}

func TestRichardsonAndPCG(t *testing.T) {
	for _, dofs := range []int{1, 2} {
		var (
			p = newProblem(4, gallery.Spec{Dim: 2, Nodes: [3]int{13, 13}, Regions: [3]int{2, 2},
				DofsPerNode: dofs, Dirichlet: true})
			params = withCoarse(coarse.Direct)
		)
		if dofs > 1 {
			// Point Jacobi barely damps the strongly coupled block modes
			params.Smoother.Type = smoother.Chebyshev
		}
		var (
			h     = CreateRegionHierarchy(NewSetupInput(p), params, nil)
			exact = exactSolution(t, p)
		)
		x := dist.NewVector(p.CompRowMap)
		rich, err := h.Richardson(p.B, x, 1e-10, 300)
		require.NoError(t, err)
		assert.True(t, rich.Converged, "dofs %d", dofs)
		assert.Len(t, rich.ResidualHistory, rich.Iterations+1)
		assert.Less(t, rich.Reduction(), 1e-10)
		diff := x.Copy()
		diff.Update(-1, exact, 1)
		assert.Less(t, diff.NormInf(), 1e-6*exact.NormInf())

		y := dist.NewVector(p.CompRowMap)
		pcg, err := h.PCG(p.A, p.B, y, 1e-10, 300)
		require.NoError(t, err)
		assert.True(t, pcg.Converged, "dofs %d", dofs)
		assert.LessOrEqual(t, pcg.Iterations, rich.Iterations)
		diff = y.Copy()
		diff.Update(-1, exact, 1)
		assert.Less(t, diff.NormInf(), 1e-6*exact.NormInf())
	}
}
