// Package partition redistributes a composite operator over a possibly
// smaller set of ranks before a coarse grid solver runs on it.
package partition

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/notargets/regionmg/dist"
	"github.com/notargets/regionmg/utils"
)

var ErrUnavailable = errors.New("partitioner not available in this build")

// DefaultMinRowsPerProc is the row count below which adding another
// partition is not worth it.
const DefaultMinRowsPerProc = 800

// DefaultPartitioner is always registered.
const DefaultPartitioner = "rcb"

// Graph is a symmetric node adjacency in the compressed layout METIS takes.
type Graph struct {
	Xadj, Adjncy []int32
	VWgt, AdjWgt []int32 // Optional weights
}

func (g *Graph) NumVertices() int { return len(g.Xadj) - 1 }

// Partitioner assigns every graph vertex to one of nparts parts. coords holds
// one point per vertex and may be nil.
type Partitioner interface {
	Name() string
	Partition(g *Graph, coords [][]float64, nparts int) (part []int, err error)
}

var (
	mu       sync.RWMutex
	backends = map[string]func() Partitioner{
		DefaultPartitioner: func() Partitioner { return RCB{} },
	}
)

func Register(name string, f func() Partitioner) {
	mu.Lock()
	defer mu.Unlock()
	backends[name] = f
}

func Lookup(name string) (p Partitioner, err error) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnavailable, name, available())
	}
	return f(), nil
}

func Available() []string {
	mu.RLock()
	defer mu.RUnlock()
	return available()
}

func available() (names []string) {
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

// NumPartitionsHeuristic asks for one partition per minRowsPerProc rows, at
// least one and at most one per rank.
func NumPartitionsHeuristic(globalRows, minRowsPerProc, commSize int) (nparts int) {
	if minRowsPerProc < 1 {
		minRowsPerProc = DefaultMinRowsPerProc
	}
	nparts = max(1, utils.CeilDiv(globalRows, minRowsPerProc))
	return min(nparts, commSize)
}

// BuildGraph amalgamates the rows of A into nodes of the block size and
// returns their adjacency. Nodes are numbered by dist.DenseIndex of the row
// map divided by the block size.
func BuildGraph(A *dist.CrsMatrix) (g *Graph) {
	var (
		bs       = A.BlockSize()
		rowMap   = A.RowMap()
		idx      = dist.DenseIndex(rowMap)
		numNodes = rowMap.NumGlobal() / bs
		adj      = make([][]int32, numNodes)
	)
	if rowMap.NumGlobal()%bs != 0 {
		panic(fmt.Sprintf("%d rows are not a multiple of block size %d", rowMap.NumGlobal(), bs))
	}
	for rank := 0; rank < rowMap.Comm().Size(); rank++ {
		for lid := 0; lid < rowMap.NumLocal(rank); lid++ {
			node := idx.GID(rank, lid) / bs
			cols, _ := A.LocalRowView(rank, lid)
			for _, lc := range cols {
				o, ok := A.DomainMap().Owner(A.ColMap().GID(rank, lc))
				if !ok {
					continue
				}
				nb := idx.GID(o.Rank, o.LID) / bs
				if nb == node {
					continue
				}
				adj[node] = append(adj[node], int32(nb))
				adj[nb] = append(adj[nb], int32(node))
			}
		}
	}
	g = &Graph{Xadj: make([]int32, numNodes+1)}
	for node, list := range adj {
		slices.Sort(list)
		list = slices.Compact(list)
		g.Adjncy = append(g.Adjncy, list...)
		g.Xadj[node+1] = int32(len(g.Adjncy))
	}
	return
}

// nodeCoordinates lists the coordinates in node order, or nil.
func nodeCoordinates(coords *dist.MultiVector) (xyz [][]float64) {
	if coords == nil {
		return nil
	}
	idx := dist.DenseIndex(coords.Map())
	xyz = make([][]float64, idx.NumGlobal())
	for j := 0; j < coords.NumVectors(); j++ {
		d := coords.Col(j).ToDense(idx)
		for node := range xyz {
			xyz[node] = append(xyz[node], d[node])
		}
	}
	return
}

// RebalanceCoarseCompositeOperator moves the rows of A onto nparts ranks as
// chosen by p. A non-positive nparts uses NumPartitionsHeuristic. The
// importer goes from the current row map to the rebalanced one; coordinates
// follow their nodes.
func RebalanceCoarseCompositeOperator(nparts int, A *dist.CrsMatrix, coords *dist.MultiVector,
	p Partitioner) (Ab *dist.CrsMatrix, coordsB *dist.MultiVector, imp *dist.Import, err error) {
	var (
		rowMap = A.RowMap()
		comm   = rowMap.Comm()
		bs     = A.BlockSize()
	)
	if nparts <= 0 {
		nparts = NumPartitionsHeuristic(A.NumGlobalRows(), DefaultMinRowsPerProc, comm.Size())
	}
	if nparts > comm.Size() {
		slog.Warn("more partitions requested than ranks", "requested", nparts, "ranks", comm.Size())
		nparts = comm.Size()
	}
	if coords != nil && coords.Map().NumGlobal()*bs != rowMap.NumGlobal() {
		panic(fmt.Sprintf("%d coordinates do not match %d rows of block size %d",
			coords.Map().NumGlobal(), rowMap.NumGlobal(), bs))
	}
	part, err := p.Partition(BuildGraph(A), nodeCoordinates(coords), nparts)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("partitioning %d nodes into %d parts with %s: %w",
			A.NumGlobalRows()/bs, nparts, p.Name(), err)
	}
	var (
		idx    = dist.DenseIndex(rowMap)
		target = make([][]int, comm.Size())
	)
	for rank := 0; rank < comm.Size(); rank++ {
		for lid, gid := range rowMap.ElementList(rank) {
			to := part[idx.GID(rank, lid)/bs]
			if to < 0 || to >= nparts {
				return nil, nil, nil, fmt.Errorf("%s returned part %d outside [0, %d)", p.Name(), to, nparts)
			}
			target[to] = append(target[to], gid)
		}
	}
	targetMap := dist.NewMap(comm, target)
	imp = dist.NewImport(rowMap, targetMap)
	Ab = A.ImportRows(imp, targetMap)
	slog.Debug("rebalanced coarse composite operator", "partitioner", p.Name(), "parts", nparts,
		"rows per rank", targetMap.LocalCounts())
	if coords == nil {
		return
	}
	coordImporter := imp
	if bs > 1 {
		nodes := make([][]int, comm.Size())
		for rank, list := range target {
			for i := 0; i < len(list); i += bs {
				nodes[rank] = append(nodes[rank], list[i]/bs)
			}
		}
		coordImporter = dist.NewImport(coords.Map(), dist.NewMap(comm, nodes))
	}
	coordsB = dist.NewMultiVector(coordImporter.Target(), coords.NumVectors())
	coordsB.DoImport(coords, coordImporter, dist.Insert)
	return
}
