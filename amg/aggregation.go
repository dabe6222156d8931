package amg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/regionmg/dist"
)

// aggregates holds the node to aggregate assignment of every rank.
type aggregates struct {
	aggOf [][]int
	count []int
}

// strongGraph amalgamates the rows of A into nodes of bs rows and keeps the
// edges between local nodes whose coupling passes the drop tolerance.
func strongGraph(A *dist.CrsMatrix, rank, bs int, diag []float64, dropTol float64) (adj [][]int) {
	var (
		rowMap   = A.RowMap()
		numNodes = rowMap.NumLocal(rank) / bs
	)
	adj = make([][]int, numNodes)
	seen := make([]int, numNodes)
	for i := range seen {
		seen[i] = -1
	}
	for node := 0; node < numNodes; node++ {
		for d := 0; d < bs; d++ {
			row := node*bs + d
			cols, vals := A.LocalRowView(rank, row)
			for k, lc := range cols {
				o, ok := A.DomainMap().Owner(A.ColMap().GID(rank, lc))
				if !ok || o.Rank != rank {
					continue
				}
				nb := o.LID / bs
				if nb == node || seen[nb] == node {
					continue
				}
				if dropTol > 0 && math.Abs(vals[k]) < dropTol*math.Sqrt(math.Abs(diag[row]*diag[o.LID])) {
					continue
				}
				seen[nb] = node
				adj[node] = append(adj[node], nb)
			}
		}
	}
	return
}

// aggregate groups the nodes of every rank without crossing rank boundaries:
// roots whose neighborhood is free take all neighbors, left over nodes join
// an adjacent aggregate, isolated nodes become singletons.
func aggregate(A *dist.CrsMatrix, bs int, dropTol float64) (agg *aggregates) {
	var (
		comm = A.RowMap().Comm()
		diag = A.Diagonal()
	)
	agg = &aggregates{aggOf: make([][]int, comm.Size()), count: make([]int, comm.Size())}
	comm.ForEach(func(rank int) {
		if A.RowMap().NumLocal(rank)%bs != 0 {
			panic(fmt.Sprintf("rank %d holds %d rows, not a multiple of block size %d",
				rank, A.RowMap().NumLocal(rank), bs))
		}
		var (
			adj   = strongGraph(A, rank, bs, diag.Local(rank), dropTol)
			aggOf = make([]int, len(adj))
			n     int
		)
		for i := range aggOf {
			aggOf[i] = -1
		}
		for node, nbs := range adj {
			if aggOf[node] >= 0 {
				continue
			}
			free := true
			for _, nb := range nbs {
				if aggOf[nb] >= 0 {
					free = false
					break
				}
			}
			if !free {
				continue
			}
			aggOf[node] = n
			for _, nb := range nbs {
				aggOf[nb] = n
			}
			n++
		}
		for node, nbs := range adj {
			if aggOf[node] >= 0 {
				continue
			}
			for _, nb := range nbs {
				if aggOf[nb] >= 0 {
					aggOf[node] = aggOf[nb]
					break
				}
			}
		}
		for node := range aggOf {
			if aggOf[node] < 0 {
				aggOf[node] = n
				n++
			}
		}
		agg.aggOf[rank], agg.count[rank] = aggOf, n
	})
	return
}

// tentativeProlongator orthonormalizes the nullspace restricted to every
// aggregate. The coefficients become the coarse nullspace, so each aggregate
// carries one coarse unknown per nullspace vector.
func tentativeProlongator(rowMap *dist.Map, bs int, ns *dist.MultiVector,
	agg *aggregates) (P *dist.CrsMatrix, coarseNS *dist.MultiVector) {
	var (
		comm   = rowMap.Comm()
		k      = ns.NumVectors()
		counts = make([]int, comm.Size())
	)
	for rank, n := range agg.count {
		counts[rank] = n * k
	}
	var (
		coarseMap = dist.NewContiguousMap(comm, counts)
		entries   = make([][]dist.Entry, comm.Size())
	)
	coarseNS = dist.NewMultiVector(coarseMap, k)
	comm.ForEach(func(rank int) {
		members := make([][]int, agg.count[rank])
		for node, a := range agg.aggOf[rank] {
			members[a] = append(members[a], node)
		}
		for a, nodes := range members {
			var (
				rows = make([]int, 0, len(nodes)*bs)
				q    = make([][]float64, k)
			)
			for _, node := range nodes {
				for d := 0; d < bs; d++ {
					rows = append(rows, node*bs+d)
				}
			}
			for j := range q {
				q[j] = make([]float64, len(rows))
				src := ns.Col(j).Local(rank)
				for i, row := range rows {
					q[j][i] = src[row]
				}
			}
			R := modifiedGramSchmidt(q)
			for i := 0; i < k; i++ {
				for j := 0; j < k; j++ {
					coarseNS.Col(j).Local(rank)[a*k+i] = R[i][j]
				}
			}
			for j := range q {
				col := coarseMap.GID(rank, a*k+j)
				for i, row := range rows {
					if q[j][i] != 0 {
						entries[rank] = append(entries[rank], dist.Entry{Row: rowMap.GID(rank, row), Col: col, Val: q[j][i]})
					}
				}
			}
		}
	})
	P = dist.AssembleCrsMatrix(rowMap, nil, coarseMap, rowMap, entries)
	P.SetBlockSize(k)
	P.SetLabel("tentative prolongator")
	return
}

// modifiedGramSchmidt orthonormalizes the columns q in place and returns the
// upper triangular factor. Dependent columns are zeroed.
func modifiedGramSchmidt(q [][]float64) (R [][]float64) {
	k := len(q)
	R = make([][]float64, k)
	for i := range R {
		R[i] = make([]float64, k)
	}
	var scale float64
	for j := range q {
		scale = math.Max(scale, floats.Norm(q[j], 2))
	}
	for j := 0; j < k; j++ {
		for i := 0; i < j; i++ {
			R[i][j] = floats.Dot(q[i], q[j])
			floats.AddScaled(q[j], -R[i][j], q[i])
		}
		nrm := floats.Norm(q[j], 2)
		if nrm <= 1e-12*scale || nrm == 0 {
			for i := range q[j] {
				q[j][i] = 0
			}
			continue
		}
		R[j][j] = nrm
		floats.Scale(1/nrm, q[j])
	}
	return
}
