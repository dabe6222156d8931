package amg

import (
	"fmt"

	"github.com/notargets/regionmg/dist"
)

// BuildNullspace returns the near nullspace of a composite operator: the
// constant vector for scalar problems or when no coordinates are known, the
// three rigid body modes for two unknowns per node and the six modes for
// three. The norms of all vectors are equalized to the norm of the first.
func BuildNullspace(A *dist.CrsMatrix, coords *dist.MultiVector) (ns *dist.MultiVector) {
	var (
		bs     = A.BlockSize()
		rowMap = A.RowMap()
		comm   = rowMap.Comm()
	)
	if bs == 1 || coords == nil {
		ns = dist.NewMultiVector(rowMap, 1)
		ns.PutScalar(1)
		return
	}
	if coords.NumVectors() < bs || bs > 3 {
		panic(fmt.Sprintf("rigid body modes for block size %d need %d coordinate vectors, got %d",
			bs, bs, coords.NumVectors()))
	}
	if coords.Map().NumGlobal()*bs != rowMap.NumGlobal() {
		panic(fmt.Sprintf("%d coordinates do not match %d rows of block size %d",
			coords.Map().NumGlobal(), rowMap.NumGlobal(), bs))
	}
	var center [3]float64
	for d := 0; d < bs; d++ {
		center[d] = coords.Col(d).Sum() / float64(coords.Map().NumGlobal())
	}
	numModes := 3
	if bs == 3 {
		numModes = 6
	}
	ns = dist.NewMultiVector(rowMap, numModes)
	for rank := 0; rank < comm.Size(); rank++ {
		var (
			data = make([][]float64, numModes)
			xyz  = make([][]float64, bs)
		)
		for j := range data {
			data[j] = ns.Col(j).Local(rank)
		}
		for d := range xyz {
			xyz[d] = coords.Col(d).Local(rank)
		}
		for node := range xyz[0] {
			x := xyz[0][node] - center[0]
			y := xyz[1][node] - center[1]
			// Translations
			for d := 0; d < bs; d++ {
				data[d][bs*node+d] = 1
			}
			if bs == 2 {
				data[2][2*node+0] = -y
				data[2][2*node+1] = x
				continue
			}
			z := xyz[2][node] - center[2]
			data[3][3*node+0] = -y
			data[3][3*node+1] = x
			data[4][3*node+1] = -z
			data[4][3*node+2] = y
			data[5][3*node+0] = z
			data[5][3*node+2] = -x
		}
	}
	norm0 := ns.Col(0).Norm2()
	for j := 1; j < numModes; j++ {
		if nj := ns.Col(j).Norm2(); nj > 0 {
			ns.Col(j).Scale(norm0 / nj)
		}
	}
	return
}
