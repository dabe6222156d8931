// Package amg holds the two multigrid setups the region solver relies on: a
// structured coarsening of every region box that yields region local
// prolongators, and a smoothed-aggregation style hierarchy for composite
// operators used as a coarse grid solver.
package amg

import (
	"fmt"
	"log/slog"

	"github.com/notargets/regionmg/dist"
	"github.com/notargets/regionmg/utils"
)

type RegionParams struct {
	MaxLevels      int // Including the finest level
	CoarseningRate int // Fine nodes per coarse interval
	CoarseMaxSize  int // Stop once a level has at most this many global rows
}

func (p *RegionParams) setDefaults() {
	if p.MaxLevels < 1 {
		p.MaxLevels = 10
	}
	if p.CoarseningRate < 2 {
		p.CoarseningRate = 3
	}
	if p.CoarseMaxSize < 1 {
		p.CoarseMaxSize = 1
	}
}

type RegionSetupInput struct {
	Dim          int
	LNodesPerDim [][3]int // Box size of every region
	DofsPerNode  int
	Coordinates  *dist.MultiVector // Regional node coordinates, optional
	Nullspace    *dist.MultiVector // Regional nullspace, optional
}

type regionLevel struct {
	A, P        *dist.CrsMatrix
	coords      *dist.MultiVector
	nullspace   *dist.MultiVector
	nodesPerDim [][3]int
}

// RegionHierarchy is the leveled output of RegionSetup. Level 0 holds the
// input operator, level l > 0 the Galerkin operator and the prolongator from
// level l into level l-1.
type RegionHierarchy struct {
	levels []*regionLevel
}

func (h *RegionHierarchy) NumLevels() int                      { return len(h.levels) }
func (h *RegionHierarchy) A(l int) *dist.CrsMatrix             { return h.levels[l].A }
func (h *RegionHierarchy) P(l int) *dist.CrsMatrix             { return h.levels[l].P }
func (h *RegionHierarchy) Coordinates(l int) *dist.MultiVector { return h.levels[l].coords }
func (h *RegionHierarchy) Nullspace(l int) *dist.MultiVector   { return h.levels[l].nullspace }
func (h *RegionHierarchy) NodesPerDim(l int) [][3]int          { return h.levels[l].nodesPerDim }

// coarsen1D places coarse points every rate fine points, always keeping both
// end points, which sit on region interfaces.
func coarsen1D(n, rate int) (pos []int) {
	if n <= 1 {
		return []int{0}
	}
	nc := utils.CeilDiv(n-1, rate) + 1
	pos = make([]int, nc)
	for k := range pos {
		pos[k] = min(k*rate, n-1)
	}
	return
}

type weight struct {
	k int
	w float64
}

// interp1D gives the linear interpolation weights of fine point i.
func interp1D(pos []int, rate, i int) []weight {
	k := min(i/rate, len(pos)-1)
	if pos[k] == i {
		return []weight{{k, 1}}
	}
	if pos[k+1] == i {
		return []weight{{k + 1, 1}}
	}
	t := float64(i-pos[k]) / float64(pos[k+1]-pos[k])
	return []weight{{k, 1 - t}, {k + 1, t}}
}

// RegionSetup coarsens every region box with linear interpolation and forms
// the region local Galerkin operators.
func RegionSetup(A *dist.CrsMatrix, in RegionSetupInput, params RegionParams) (h *RegionHierarchy) {
	params.setDefaults()
	var (
		comm = A.RowMap().Comm()
		dofs = max(in.DofsPerNode, 1)
	)
	if len(in.LNodesPerDim) != comm.Size() {
		panic(fmt.Sprintf("need region sizes for %d ranks, got %d", comm.Size(), len(in.LNodesPerDim)))
	}
	for rank, n := range in.LNodesPerDim {
		if n[0]*n[1]*n[2]*dofs != A.RowMap().NumLocal(rank) {
			panic(fmt.Sprintf("rank %d: region box %v with %d dofs per node does not match %d rows",
				rank, n, dofs, A.RowMap().NumLocal(rank)))
		}
	}
	h = &RegionHierarchy{levels: []*regionLevel{{
		A:           A,
		coords:      in.Coordinates,
		nullspace:   in.Nullspace,
		nodesPerDim: in.LNodesPerDim,
	}}}
	for len(h.levels) < params.MaxLevels {
		fine := h.levels[len(h.levels)-1]
		if fine.A.NumGlobalRows() <= params.CoarseMaxSize {
			break
		}
		coarse := coarsenLevel(fine, dofs, params.CoarseningRate)
		if coarse == nil {
			break
		}
		coarse.A.SetLabel(fmt.Sprintf("regional operator level %d", len(h.levels)))
		h.levels = append(h.levels, coarse)
	}
	slog.Debug("region hierarchy", "levels", len(h.levels), "coarse rows", h.levels[len(h.levels)-1].A.NumGlobalRows())
	return
}

func coarsenLevel(fine *regionLevel, dofs, rate int) (coarse *regionLevel) {
	var (
		comm      = fine.A.RowMap().Comm()
		np        = comm.Size()
		positions = make([][3][]int, np)
		coarseDim = make([][3]int, np)
		counts    = make([]int, np)
		reduced   bool
	)
	for rank := 0; rank < np; rank++ {
		counts[rank] = dofs
		for d := 0; d < 3; d++ {
			positions[rank][d] = coarsen1D(fine.nodesPerDim[rank][d], rate)
			coarseDim[rank][d] = len(positions[rank][d])
			counts[rank] *= coarseDim[rank][d]
			if coarseDim[rank][d] < fine.nodesPerDim[rank][d] {
				reduced = true
			}
		}
	}
	if !reduced {
		return nil
	}
	var (
		fineMap   = fine.A.RowMap()
		coarseMap = dist.NewContiguousMap(comm, counts)
		entries   = make([][]dist.Entry, np)
	)
	comm.ForEach(func(rank int) {
		var (
			nf = fine.nodesPerDim[rank]
			nc = coarseDim[rank]
		)
		for iz := 0; iz < nf[2]; iz++ {
			for iy := 0; iy < nf[1]; iy++ {
				for ix := 0; ix < nf[0]; ix++ {
					fineNode := (iz*nf[1]+iy)*nf[0] + ix
					wx := interp1D(positions[rank][0], rate, ix)
					wy := interp1D(positions[rank][1], rate, iy)
					wz := interp1D(positions[rank][2], rate, iz)
					for _, z := range wz {
						for _, y := range wy {
							for _, x := range wx {
								coarseNode := (z.k*nc[1]+y.k)*nc[0] + x.k
								for d := 0; d < dofs; d++ {
									entries[rank] = append(entries[rank], dist.Entry{
										Row: fineMap.GID(rank, fineNode*dofs+d),
										Col: coarseMap.GID(rank, coarseNode*dofs+d),
										Val: x.w * y.w * z.w,
									})
								}
							}
						}
					}
				}
			}
		}
	})
	P := dist.AssembleCrsMatrix(fineMap, coarseMap, coarseMap, fineMap, entries)
	P.SetBlockSize(dofs)
	P.SetLabel("regional prolongator")
	Ac := dist.TripleProduct(P.Transpose(), fine.A, P)
	// Keep the column map equal to the row map so that region products stay local
	Ac = dist.AssembleCrsMatrix(coarseMap, coarseMap, coarseMap, coarseMap, allEntries(Ac))
	Ac.SetBlockSize(dofs)
	coarse = &regionLevel{
		A:           Ac,
		P:           P,
		nodesPerDim: coarseDim,
	}
	if fine.coords != nil {
		coarse.coords = injectNodes(fine.coords, positions, fine.nodesPerDim, coarseDim, 1)
	}
	if fine.nullspace != nil {
		coarse.nullspace = injectNodes(fine.nullspace, positions, fine.nodesPerDim, coarseDim, dofs)
	}
	return
}

func allEntries(A *dist.CrsMatrix) (entries [][]dist.Entry) {
	comm := A.RowMap().Comm()
	entries = make([][]dist.Entry, comm.Size())
	comm.ForEach(func(rank int) { entries[rank] = A.GlobalEntries(rank) })
	return
}

// injectNodes copies fine values at the coarse points into a new contiguous
// layout of the coarse boxes. stride is the number of entries per node.
func injectNodes(fine *dist.MultiVector, positions [][3][]int, fineDim, coarseDim [][3]int,
	stride int) (coarse *dist.MultiVector) {
	var (
		comm   = fine.Map().Comm()
		counts = make([]int, comm.Size())
	)
	for rank := range counts {
		counts[rank] = coarseDim[rank][0] * coarseDim[rank][1] * coarseDim[rank][2] * stride
	}
	coarse = dist.NewMultiVector(dist.NewContiguousMap(comm, counts), fine.NumVectors())
	for rank := range counts {
		var (
			nf, nc = fineDim[rank], coarseDim[rank]
			pos    = positions[rank]
		)
		for kz := 0; kz < nc[2]; kz++ {
			for ky := 0; ky < nc[1]; ky++ {
				for kx := 0; kx < nc[0]; kx++ {
					var (
						c = (kz*nc[1]+ky)*nc[0] + kx
						f = (pos[2][kz]*nf[1]+pos[1][ky])*nf[0] + pos[0][kx]
					)
					for j := 0; j < fine.NumVectors(); j++ {
						for d := 0; d < stride; d++ {
							coarse.Col(j).Local(rank)[c*stride+d] = fine.Col(j).Local(rank)[f*stride+d]
						}
					}
				}
			}
		}
	}
	return
}
