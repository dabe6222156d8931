package region

import (
	"github.com/notargets/regionmg/dist"
)

// InterfaceExchange sums the partial values that each region holds for the
// unknowns it shares with other regions. Only interface entries travel.
type InterfaceExchange struct {
	LIDs     [][]int // Regional LIDs of interface entries per rank
	owned    *dist.Map
	shared   *dist.Map
	importer *dist.Import
}

// SetupMatVec precomputes the interface entries of a level and the importer
// between their composite owners and all their regional copies.
func SetupMatVec(dofs [][]DOF, compRowMap *dist.Map) (ex *InterfaceExchange) {
	var (
		comm        = compRowMap.Comm()
		sharedGIDs  = make([][]int, comm.Size())
		ownedGIDs   = make([][]int, comm.Size())
		isInterface = make(map[int]bool)
	)
	ex = &InterfaceExchange{LIDs: make([][]int, comm.Size())}
	for rank, list := range dofs {
		for lid, d := range list {
			if d.IsInterface() {
				ex.LIDs[rank] = append(ex.LIDs[rank], lid)
				sharedGIDs[rank] = append(sharedGIDs[rank], d.QuasiGID)
				isInterface[d.QuasiGID] = true
			}
		}
	}
	for rank := range ownedGIDs {
		for _, gid := range compRowMap.ElementList(rank) {
			if isInterface[gid] {
				ownedGIDs[rank] = append(ownedGIDs[rank], gid)
			}
		}
	}
	ex.owned = dist.NewMap(comm, ownedGIDs)
	ex.shared = dist.NewMap(comm, sharedGIDs)
	ex.importer = dist.NewImport(ex.owned, ex.shared)
	return
}

// NumInterface is the number of regional interface entries on all ranks.
func (ex *InterfaceExchange) NumInterface() int { return ex.shared.NumGlobal() }

// SumInterfaceValues replaces every interface entry of y by the sum over all
// regions holding it.
func (ex *InterfaceExchange) SumInterfaceValues(y *dist.Vector) {
	var (
		shared = dist.NewVector(ex.shared)
		owned  = dist.NewVector(ex.owned)
	)
	for rank, lids := range ex.LIDs {
		yy, ss := y.Local(rank), shared.Local(rank)
		for k, lid := range lids {
			ss[k] = yy[lid]
		}
	}
	owned.DoExport(shared, ex.importer, dist.Add)
	shared.DoImport(owned, ex.importer, dist.Insert)
	for rank, lids := range ex.LIDs {
		yy, ss := y.Local(rank), shared.Local(rank)
		for k, lid := range lids {
			yy[lid] = ss[k]
		}
	}
}

// ApplyMatVec computes y = alpha*op(A)*x + beta*y for a regional operator.
// With sumInterfaceValues the product is made consistent across regions
// before it is combined with y; ex must then belong to the level of y.
func ApplyMatVec(alpha float64, A *dist.CrsMatrix, x *dist.Vector, beta float64,
	ex *InterfaceExchange, y *dist.Vector, trans, sumInterfaceValues bool) {
	if !sumInterfaceValues {
		A.Apply(x, y, trans, alpha, beta)
		return
	}
	tmp := dist.NewVector(y.Map())
	A.Apply(x, tmp, trans, 1, 0)
	ex.SumInterfaceValues(tmp)
	y.Update(alpha, tmp, beta)
}
