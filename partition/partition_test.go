package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/regionmg/dist"
	"github.com/notargets/regionmg/gallery"
)

func TestNumPartitionsHeuristic(t *testing.T) {
	assert.Equal(t, 2, NumPartitionsHeuristic(1000, 800, 4))
	assert.Equal(t, 1, NumPartitionsHeuristic(10, 800, 4))
	assert.Equal(t, 4, NumPartitionsHeuristic(1000000, 800, 4))
	assert.Equal(t, 1, NumPartitionsHeuristic(0, 800, 4))
	assert.Equal(t, 2, NumPartitionsHeuristic(801, 0, 4))
}

func TestRegistry(t *testing.T) {
	p, err := Lookup("rcb")
	require.NoError(t, err)
	assert.Equal(t, "rcb", p.Name())
	assert.Contains(t, Available(), "rcb")

	_, err = Lookup("zoltan")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestBuildGraph(t *testing.T) {
	p := gallery.NewPoisson(dist.NewComm(2), gallery.Spec{Dim: 1, Nodes: [3]int{4}, Regions: [3]int{2}})
	g := BuildGraph(p.A)
	assert.Equal(t, []int32{0, 1, 3, 5, 6}, g.Xadj)
	assert.Equal(t, []int32{1, 0, 2, 1, 3, 2}, g.Adjncy)

	blocked := gallery.NewPoisson(dist.NewComm(2), gallery.Spec{Dim: 1, Nodes: [3]int{4}, Regions: [3]int{2}, DofsPerNode: 2})
	assert.Equal(t, g.Xadj, BuildGraph(blocked.A).Xadj)
}

func TestRCB(t *testing.T) {
	var (
		coords [][]float64
		g      = &Graph{Xadj: make([]int32, 17)}
	)
	for j := 0; j < 4; j++ {
		for i := 0; i < 4; i++ {
			coords = append(coords, []float64{float64(i), float64(j)})
		}
	}
	part, err := RCB{}.Partition(g, coords, 4)
	require.NoError(t, err)
	counts := make([]int, 4)
	for node, pt := range part {
		counts[pt]++
		// Quadrants
		quadrant := coords[node][0] >= 2
		for other, po := range part {
			if po == pt {
				assert.Equal(t, quadrant, coords[other][0] >= 2)
				assert.Equal(t, coords[node][1] >= 2, coords[other][1] >= 2)
			}
		}
	}
	assert.Equal(t, []int{4, 4, 4, 4}, counts)

	part, err = RCB{}.Partition(&Graph{Xadj: make([]int32, 6)}, nil, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1, 1, 1}, part)

	_, err = RCB{}.Partition(g, coords[:3], 2)
	assert.Error(t, err)
	_, err = RCB{}.Partition(g, coords, 0)
	assert.Error(t, err)
}

func TestRebalanceRoundTrip(t *testing.T) {
	for _, dofs := range []int{1, 2} {
		comm := dist.NewComm(4)
		p := gallery.NewPoisson(comm, gallery.Spec{Dim: 2, Nodes: [3]int{9, 9}, Regions: [3]int{2, 2},
			DofsPerNode: dofs, Dirichlet: true})
		Ab, coordsB, imp, err := RebalanceCoarseCompositeOperator(2, p.A, p.CompCoords, RCB{})
		require.NoError(t, err)

		counts := Ab.RowMap().LocalCounts()
		assert.Zero(t, counts[2]+counts[3])
		assert.Equal(t, p.A.NumGlobalRows(), counts[0]+counts[1])
		assert.Equal(t, dofs, Ab.BlockSize())
		assert.Equal(t, p.A.NumGlobalEntries(), Ab.NumGlobalEntries())

		// Reverse transfer restores the original distribution
		var (
			x    = dist.NewVectorFromGlobal(p.CompRowMap, func(gid int) float64 { return float64(3*gid + 1) })
			xb   = dist.NewVector(imp.Target())
			back = dist.NewVector(p.CompRowMap)
		)
		xb.DoImport(x, imp, dist.Insert)
		back.DoExport(xb, imp, dist.Insert)
		for rank := 0; rank < comm.Size(); rank++ {
			assert.Equal(t, x.Local(rank), back.Local(rank))
		}

		// Same operator, new layout
		var (
			y  = dist.NewVector(p.CompRowMap)
			yb = dist.NewVector(imp.Target())
			yi = dist.NewVector(imp.Target())
		)
		p.A.Apply(x, y, false, 1, 0)
		Ab.Apply(xb, yb, false, 1, 0)
		yi.DoImport(y, imp, dist.Insert)
		for rank := 0; rank < comm.Size(); rank++ {
			assert.InDeltaSlice(t, yi.Local(rank), yb.Local(rank), 1e-12)
		}

		// Coordinates follow their nodes
		require.NotNil(t, coordsB)
		want := p.CompCoords.Col(0).Gather()
		for rank := 0; rank < comm.Size(); rank++ {
			for lid, node := range coordsB.Map().ElementList(rank) {
				assert.Equal(t, want[node], coordsB.Col(0).Local(rank)[lid])
			}
		}
		assert.Equal(t, p.CompCoords.Map().NumGlobal(), coordsB.Map().NumGlobal())
	}
}

func TestRebalanceHeuristic(t *testing.T) {
	p := gallery.NewPoisson(dist.NewComm(2), gallery.Spec{Dim: 2, Nodes: [3]int{5, 5}, Regions: [3]int{2, 1}})
	Ab, coordsB, _, err := RebalanceCoarseCompositeOperator(0, p.A, nil, RCB{})
	require.NoError(t, err)
	assert.Nil(t, coordsB)
	assert.Equal(t, []int{25, 0}, Ab.RowMap().LocalCounts())
}
