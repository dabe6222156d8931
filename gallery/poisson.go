// Package gallery generates structured model problems already split into
// regions, one region per rank.
package gallery

import (
	"fmt"
	"slices"

	"github.com/notargets/regionmg/dist"
)

type Spec struct {
	Dim         int    // 1, 2 or 3
	Nodes       [3]int // Composite nodes per dimension
	Regions     [3]int // Regions per dimension, the product is the rank count
	DofsPerNode int    // Unknowns per node, coupled through a 2x2 or 3x3 block
	Dirichlet   bool   // Homogeneous Dirichlet rows on the boundary
	RegionRanks []int  // Rank holding each region, nil keeps region r on rank r
}

// Problem is a composite operator together with its region layout: each rank
// holds one box of nodes, and nodes on a box face are duplicated in every
// region touching them.
type Problem struct {
	Spec         Spec
	Comm         *dist.Comm
	NumCompNodes int

	CompRowMap *dist.Map // Composite dofs, a shared node belongs to its lowest region
	A          *dist.CrsMatrix
	B          *dist.Vector

	RegRowMap      *dist.Map // Regional dofs, duplicates of remote nodes get fresh GIDs
	QuasiRegRowMap *dist.Map // Regional layout labeled with composite GIDs
	RowImporter    *dist.Import
	RegA           *dist.CrsMatrix // Regional split of A

	CompositeToRegionLIDs [][]int   // Regional LIDs whose GID is composite, ascending
	RegionsPerLID         [][][]int // Regions sharing each regional dof
	LNodesPerDim          [][3]int  // Region box size

	CompNodeMap, RegNodeMap *dist.Map
	CompCoords, RegCoords   *dist.MultiVector
}

type box struct {
	lo, hi [3]int
}

func (b box) size() (n [3]int) {
	for d := range n {
		n[d] = b.hi[d] - b.lo[d] + 1
	}
	return
}

type layout struct {
	spec   Spec
	bounds [3][]int
	region []int // Region held by each rank
}

func newLayout(s Spec) (l *layout) {
	l = &layout{spec: s}
	for d := 0; d < 3; d++ {
		n, p := s.Nodes[d], s.Regions[d]
		if d >= s.Dim {
			n, p = 1, 1
			l.spec.Nodes[d], l.spec.Regions[d] = 1, 1
		}
		if p < 1 || n < 1 {
			panic(fmt.Sprintf("invalid grid in dimension %d: %d nodes, %d regions", d, n, p))
		}
		if d < s.Dim && n-1 < p {
			panic(fmt.Sprintf("dimension %d: %d nodes cannot hold %d regions", d, n, p))
		}
		l.bounds[d] = make([]int, p+1)
		for k := 0; k <= p; k++ {
			if p == 1 {
				l.bounds[d][k] = k * (n - 1)
			} else {
				l.bounds[d][k] = k * (n - 1) / p
			}
		}
	}
	nr := l.numRegions()
	l.region = make([]int, nr)
	if s.RegionRanks == nil {
		for r := range l.region {
			l.region[r] = r
		}
		return
	}
	if len(s.RegionRanks) != nr {
		panic(fmt.Sprintf("%d region ranks for %d regions", len(s.RegionRanks), nr))
	}
	for r := range l.region {
		l.region[r] = -1
	}
	for reg, rank := range s.RegionRanks {
		if rank < 0 || rank >= nr || l.region[rank] != -1 {
			panic(fmt.Sprintf("region ranks %v are not a permutation", s.RegionRanks))
		}
		l.region[rank] = reg
	}
	return
}

func (l *layout) numRegions() int {
	return l.spec.Regions[0] * l.spec.Regions[1] * l.spec.Regions[2]
}

func (l *layout) regionBox(r int) (b box) {
	idx := [3]int{
		r % l.spec.Regions[0],
		(r / l.spec.Regions[0]) % l.spec.Regions[1],
		r / (l.spec.Regions[0] * l.spec.Regions[1]),
	}
	for d := 0; d < 3; d++ {
		b.lo[d], b.hi[d] = l.bounds[d][idx[d]], l.bounds[d][idx[d]+1]
	}
	return
}

func (l *layout) nodeGID(ijk [3]int) int {
	return (ijk[2]*l.spec.Nodes[1]+ijk[1])*l.spec.Nodes[0] + ijk[0]
}

// regionsOf lists the regions containing a node in ascending order.
func (l *layout) regionsOf(ijk [3]int) (regions []int) {
	var per [3][]int
	for d := 0; d < 3; d++ {
		for q := 0; q < l.spec.Regions[d]; q++ {
			if l.bounds[d][q] <= ijk[d] && ijk[d] <= l.bounds[d][q+1] {
				per[d] = append(per[d], q)
			}
		}
	}
	for _, qz := range per[2] {
		for _, qy := range per[1] {
			for _, qx := range per[0] {
				regions = append(regions, (qz*l.spec.Regions[1]+qy)*l.spec.Regions[0]+qx)
			}
		}
	}
	slices.Sort(regions)
	return
}

func (l *layout) onBoundary(ijk [3]int) bool {
	for d := 0; d < l.spec.Dim; d++ {
		if ijk[d] == 0 || ijk[d] == l.spec.Nodes[d]-1 {
			return true
		}
	}
	return false
}

// forBox visits the nodes of a box in lexicographic order, x fastest.
func forBox(b box, f func(ijk [3]int)) {
	for k := b.lo[2]; k <= b.hi[2]; k++ {
		for j := b.lo[1]; j <= b.hi[1]; j++ {
			for i := b.lo[0]; i <= b.hi[0]; i++ {
				f([3]int{i, j, k})
			}
		}
	}
}

// blockCoupling is the SPD matrix coupling the unknowns of one node.
func blockCoupling(dofs int) (M [][]float64) {
	M = make([][]float64, dofs)
	for a := range M {
		M[a] = make([]float64, dofs)
		for b := range M[a] {
			if a == b {
				M[a][b] = 2
			} else {
				M[a][b] = 1
			}
		}
	}
	if dofs == 1 {
		M[0][0] = 1
	}
	return
}

type stencilEntry struct {
	col [3]int
	val float64
}

// stencil returns the scalar Laplacian row of a node, with Dirichlet
// elimination when requested.
func (l *layout) stencil(ijk [3]int) (row []stencilEntry) {
	if l.spec.Dirichlet && l.onBoundary(ijk) {
		return []stencilEntry{{ijk, 1}}
	}
	row = append(row, stencilEntry{ijk, float64(2 * l.spec.Dim)})
	for d := 0; d < l.spec.Dim; d++ {
		for _, off := range []int{-1, 1} {
			nb := ijk
			nb[d] += off
			if nb[d] < 0 || nb[d] >= l.spec.Nodes[d] {
				continue
			}
			if l.spec.Dirichlet && l.onBoundary(nb) {
				continue
			}
			row = append(row, stencilEntry{nb, -1})
		}
	}
	return
}

func intersectCount(a, b []int) (n int) {
	for _, x := range a {
		if slices.Contains(b, x) {
			n++
		}
	}
	return
}

// NewPoisson builds the Laplacian (Kronecker product with a node coupling
// block when DofsPerNode > 1) on a box of nodes split into regions.
func NewPoisson(comm *dist.Comm, s Spec) (p *Problem) {
	if s.DofsPerNode < 1 {
		s.DofsPerNode = 1
	}
	if s.Dim < 1 || s.Dim > 3 {
		panic(fmt.Sprintf("dimension must be 1, 2 or 3, got %d", s.Dim))
	}
	l := newLayout(s)
	if l.numRegions() != comm.Size() {
		panic(fmt.Sprintf("%d regions need %d ranks, communicator has %d",
			l.numRegions(), l.numRegions(), comm.Size()))
	}
	var (
		np   = comm.Size()
		dofs = s.DofsPerNode
		M    = blockCoupling(dofs)
	)
	p = &Problem{
		Spec:                  l.spec,
		Comm:                  comm,
		NumCompNodes:          l.spec.Nodes[0] * l.spec.Nodes[1] * l.spec.Nodes[2],
		CompositeToRegionLIDs: make([][]int, np),
		RegionsPerLID:         make([][][]int, np),
		LNodesPerDim:          make([][3]int, np),
	}
	p.Spec.DofsPerNode = dofs
	var (
		compNodes, regNodes, quasiNodes = make([][]int, np), make([][]int, np), make([][]int, np)
		nextDuplicate                   = p.NumCompNodes
		regNodeOf                       = make([]map[int]int, np) // composite node -> regional node id
	)
	for r := 0; r < np; r++ {
		b := l.regionBox(l.region[r])
		p.LNodesPerDim[r] = b.size()
		regNodeOf[r] = make(map[int]int)
		forBox(b, func(ijk [3]int) {
			var (
				gid     = l.nodeGID(ijk)
				regions = l.regionsOf(ijk)
				regID   = gid
			)
			if regions[0] == l.region[r] {
				compNodes[r] = append(compNodes[r], gid)
			} else {
				regID = nextDuplicate
				nextDuplicate++
			}
			regNodeOf[r][gid] = regID
			for d := 0; d < dofs; d++ {
				if regions[0] == l.region[r] {
					p.CompositeToRegionLIDs[r] = append(p.CompositeToRegionLIDs[r], len(regNodes[r])*dofs+d)
				}
				p.RegionsPerLID[r] = append(p.RegionsPerLID[r], regions)
			}
			regNodes[r] = append(regNodes[r], regID)
			quasiNodes[r] = append(quasiNodes[r], gid)
		})
	}
	expand := func(nodes [][]int) (out [][]int) {
		out = make([][]int, len(nodes))
		for r, list := range nodes {
			for _, n := range list {
				for d := 0; d < dofs; d++ {
					out[r] = append(out[r], n*dofs+d)
				}
			}
		}
		return
	}
	p.CompNodeMap = dist.NewMap(comm, compNodes)
	p.RegNodeMap = dist.NewMap(comm, regNodes)
	p.CompRowMap = dist.NewMap(comm, expand(compNodes))
	p.RegRowMap = dist.NewMap(comm, expand(regNodes))
	p.QuasiRegRowMap = dist.NewMap(comm, expand(quasiNodes))
	p.RowImporter = dist.NewImport(p.CompRowMap, p.QuasiRegRowMap)

	compEntries, regEntries := make([][]dist.Entry, np), make([][]dist.Entry, np)
	comm.ForEach(func(r int) {
		forBox(l.regionBox(l.region[r]), func(ijk [3]int) {
			var (
				gid     = l.nodeGID(ijk)
				regions = l.regionsOf(ijk)
			)
			for _, se := range l.stencil(ijk) {
				var (
					cgid        = l.nodeGID(se.col)
					share       = float64(intersectCount(regions, l.regionsOf(se.col)))
					rcol, inBox = regNodeOf[r][cgid]
				)
				for a := 0; a < dofs; a++ {
					for c := 0; c < dofs; c++ {
						val := se.val * M[a][c]
						if val == 0 {
							continue
						}
						if regions[0] == l.region[r] {
							compEntries[r] = append(compEntries[r],
								dist.Entry{Row: gid*dofs + a, Col: cgid*dofs + c, Val: val})
						}
						if inBox {
							regEntries[r] = append(regEntries[r], dist.Entry{
								Row: regNodeOf[r][gid]*dofs + a,
								Col: rcol*dofs + c,
								Val: val / share,
							})
						}
					}
				}
			}
		})
	})
	p.A = dist.AssembleCrsMatrix(p.CompRowMap, nil, p.CompRowMap, p.CompRowMap, compEntries)
	p.A.SetBlockSize(dofs)
	p.A.SetLabel("composite operator")
	p.RegA = dist.AssembleCrsMatrix(p.RegRowMap, p.RegRowMap, p.RegRowMap, p.RegRowMap, regEntries)
	p.RegA.SetBlockSize(dofs)
	p.RegA.SetLabel("regional operator")

	p.B = dist.NewVectorFromGlobal(p.CompRowMap, func(gid int) float64 {
		ijk := l.nodeIJK(gid / dofs)
		if s.Dirichlet && l.onBoundary(ijk) {
			return 0
		}
		return 1
	})
	p.CompCoords = l.coordinates(p.CompNodeMap, func(rank, lid int) int { return compNodes[rank][lid] })
	p.RegCoords = l.coordinates(p.RegNodeMap, func(rank, lid int) int { return quasiNodes[rank][lid] })
	return
}

func (l *layout) nodeIJK(gid int) (ijk [3]int) {
	ijk[0] = gid % l.spec.Nodes[0]
	ijk[1] = (gid / l.spec.Nodes[0]) % l.spec.Nodes[1]
	ijk[2] = gid / (l.spec.Nodes[0] * l.spec.Nodes[1])
	return
}

// coordinates places the nodes on the unit box. node maps a local node to its
// composite node id.
func (l *layout) coordinates(m *dist.Map, node func(rank, lid int) int) (xyz *dist.MultiVector) {
	xyz = dist.NewMultiVector(m, l.spec.Dim)
	for rank := 0; rank < m.Comm().Size(); rank++ {
		for lid := 0; lid < m.NumLocal(rank); lid++ {
			ijk := l.nodeIJK(node(rank, lid))
			for d := 0; d < l.spec.Dim; d++ {
				xyz.Col(d).Local(rank)[lid] = float64(ijk[d]) / float64(l.spec.Nodes[d]-1)
			}
		}
	}
	return
}
