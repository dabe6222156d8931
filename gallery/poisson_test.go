package gallery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/regionmg/dist"
)

// assembledFromRegions sums the regional entries after relabeling them with
// composite GIDs.
func assembledFromRegions(p *Problem) *mat.Dense {
	n := p.CompRowMap.NumGlobal()
	D := mat.NewDense(n, n, nil)
	for rank := 0; rank < p.Comm.Size(); rank++ {
		for _, e := range p.RegA.GlobalEntries(rank) {
			var (
				i = p.QuasiRegRowMap.GID(rank, p.RegRowMap.LID(rank, e.Row))
				j = p.QuasiRegRowMap.GID(rank, p.RegRowMap.LID(rank, e.Col))
			)
			D.Set(i, j, D.At(i, j)+e.Val)
		}
	}
	return D
}

func compositeDense(p *Problem) *mat.Dense {
	n := p.CompRowMap.NumGlobal()
	D := mat.NewDense(n, n, nil)
	for rank := 0; rank < p.Comm.Size(); rank++ {
		for _, e := range p.A.GlobalEntries(rank) {
			D.Set(e.Row, e.Col, e.Val)
		}
	}
	return D
}

func TestPoisson2DTwoRegions(t *testing.T) {
	p := NewPoisson(dist.NewComm(2), Spec{
		Dim:       2,
		Nodes:     [3]int{5, 5},
		Regions:   [3]int{2, 1},
		Dirichlet: true,
	})
	assert.Equal(t, []int{15, 10}, p.CompRowMap.LocalCounts())
	assert.Equal(t, []int{15, 15}, p.RegRowMap.LocalCounts())
	assert.True(t, p.CompRowMap.IsOneToOne())
	assert.True(t, p.RegRowMap.IsOneToOne())
	assert.False(t, p.QuasiRegRowMap.IsOneToOne())
	assert.Equal(t, [3]int{3, 5, 1}, p.LNodesPerDim[1])
	// Interface nodes of region 1 are the first column of its box
	assert.Equal(t, []int{0, 1}, p.RegionsPerLID[1][0])
	assert.Equal(t, []int{1}, p.RegionsPerLID[1][1])
	assert.Equal(t, 25, p.RegRowMap.GID(1, 0))
	assert.Equal(t, 2, p.QuasiRegRowMap.GID(1, 0))
	assert.Equal(t, []int{1, 2, 4, 5, 7, 8, 10, 11, 13, 14}, p.CompositeToRegionLIDs[1])
	assert.Len(t, p.CompositeToRegionLIDs[0], 15)

	A := compositeDense(p)
	assert.True(t, mat.EqualApprox(A, assembledFromRegions(p), 1e-14))
	assert.True(t, mat.Equal(A, A.T()))
	assert.Equal(t, 1., A.At(0, 0))   // Dirichlet corner
	assert.Equal(t, 4., A.At(12, 12)) // Center
	assert.Equal(t, 0., A.At(6, 1))   // Eliminated boundary column
	assert.Equal(t, -1., A.At(6, 7))

	b := p.B.Gather()
	assert.Equal(t, 0., b[0])
	assert.Equal(t, 1., b[12])
	x := p.RegCoords.Col(0).Local(1)
	assert.Equal(t, []float64{0.5, 0.75, 1}, x[:3])
}

func TestPoissonBlockedFourRegions(t *testing.T) {
	p := NewPoisson(dist.NewComm(4), Spec{
		Dim:         2,
		Nodes:       [3]int{7, 7},
		Regions:     [3]int{2, 2},
		DofsPerNode: 2,
	})
	require.Equal(t, 2, p.A.BlockSize())
	assert.Equal(t, 2*49, p.CompRowMap.NumGlobal())
	for rank := 0; rank < 4; rank++ {
		assert.Equal(t, 2*16, p.RegRowMap.NumLocal(rank))
		for lid := 0; lid < p.RegRowMap.NumLocal(rank); lid += 2 {
			// Both unknowns of a node are consecutive GIDs
			assert.Equal(t, p.RegRowMap.GID(rank, lid)+1, p.RegRowMap.GID(rank, lid+1))
			assert.Equal(t, 0, p.RegRowMap.GID(rank, lid)%2)
		}
	}
	// The center node is shared by all four regions
	center := 3*7 + 3
	for rank := 0; rank < 4; rank++ {
		lid := p.QuasiRegRowMap.LID(rank, 2*center)
		require.GreaterOrEqual(t, lid, 0)
		assert.Equal(t, []int{0, 1, 2, 3}, p.RegionsPerLID[rank][lid])
	}
	A := compositeDense(p)
	assert.True(t, mat.EqualApprox(A, assembledFromRegions(p), 1e-13))
	assert.Equal(t, 8., A.At(2*center, 2*center))
	assert.Equal(t, 4., A.At(2*center, 2*center+1))
	assert.Equal(t, 49, p.CompNodeMap.NumGlobal())
}

func TestPoissonRegionRanks(t *testing.T) {
	spec := Spec{Dim: 2, Nodes: [3]int{5, 5}, Regions: [3]int{2, 1}, Dirichlet: true}
	ref := NewPoisson(dist.NewComm(2), spec)
	spec.RegionRanks = []int{1, 0}
	p := NewPoisson(dist.NewComm(2), spec)
	assert.Equal(t, []int{10, 15}, p.CompRowMap.LocalCounts())
	assert.Equal(t, ref.CompRowMap.ElementList(1), p.CompRowMap.ElementList(0))
	assert.Equal(t, ref.QuasiRegRowMap.ElementList(0), p.QuasiRegRowMap.ElementList(1))
	assert.Equal(t, [3]int{3, 5, 1}, p.LNodesPerDim[0])
	assert.True(t, mat.Equal(compositeDense(ref), compositeDense(p)))
	assert.True(t, mat.EqualApprox(compositeDense(p), assembledFromRegions(p), 1e-12))

	for _, ranks := range [][]int{{0, 0}, {0}, {0, 2}} {
		spec.RegionRanks = ranks
		assert.Panics(t, func() { NewPoisson(dist.NewComm(2), spec) }, "region ranks %v", ranks)
	}
}

func TestPoissonInvalid(t *testing.T) {
	assert.Panics(t, func() {
		NewPoisson(dist.NewComm(3), Spec{Dim: 1, Nodes: [3]int{9}, Regions: [3]int{2}})
	})
	assert.Panics(t, func() {
		NewPoisson(dist.NewComm(4), Spec{Dim: 1, Nodes: [3]int{4}, Regions: [3]int{4}})
	})
}
