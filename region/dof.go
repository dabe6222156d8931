// Package region translates between the composite layout of a distributed
// operator and its region layout, where every rank holds a full box of the
// grid and nodes on region interfaces are duplicated.
package region

import (
	"fmt"
	"slices"

	"github.com/notargets/regionmg/dist"
)

// DOF classifies one regional degree of freedom.
type DOF struct {
	RegionGID int   // GID in the regional map
	QuasiGID  int   // Composite GID of the same unknown
	Duplicate bool  // The composite copy lives on another rank
	Regions   []int // Regions sharing the unknown, ascending
}

func (d DOF) IsInterface() bool { return len(d.Regions) > 1 }

// ClassifyDOFs builds the records of the finest level. Region lists longer
// than maxRegPerGID are truncated.
func ClassifyDOFs(maxRegPerGID int, regRowMap, quasiRegRowMap *dist.Map,
	compositeToRegionLIDs [][]int, regionsPerLID [][][]int) (dofs [][]DOF) {
	var (
		comm = regRowMap.Comm()
	)
	if len(compositeToRegionLIDs) != comm.Size() || len(regionsPerLID) != comm.Size() {
		panic(fmt.Sprintf("need per rank composite LIDs and region lists for %d ranks", comm.Size()))
	}
	if !regRowMap.HasSameLayout(quasiRegRowMap) {
		panic("incompatible maps: regional and quasi-regional row maps differ in layout")
	}
	dofs = make([][]DOF, comm.Size())
	for rank := range dofs {
		n := regRowMap.NumLocal(rank)
		if len(regionsPerLID[rank]) != n {
			panic(fmt.Sprintf("rank %d: %d region lists for %d regional rows", rank, len(regionsPerLID[rank]), n))
		}
		isComposite := markComposite(n, compositeToRegionLIDs[rank])
		dofs[rank] = make([]DOF, n)
		for lid := range dofs[rank] {
			dofs[rank][lid] = DOF{
				RegionGID: regRowMap.GID(rank, lid),
				QuasiGID:  quasiRegRowMap.GID(rank, lid),
				Duplicate: !isComposite[lid],
				Regions:   truncate(regionsPerLID[rank][lid], maxRegPerGID),
			}
		}
	}
	return
}

// markComposite flags the regional LIDs found in the ascending list of
// composite LIDs.
func markComposite(numRegion int, compositeLIDs []int) (isComposite []bool) {
	isComposite = make([]bool, numRegion)
	var count int
	for lid := 0; lid < numRegion; lid++ {
		if count < len(compositeLIDs) && compositeLIDs[count] == lid {
			isComposite[lid] = true
			count++
		}
	}
	if count != len(compositeLIDs) {
		panic(fmt.Sprintf("composite LIDs must be ascending and below %d, matched %d of %d",
			numRegion, count, len(compositeLIDs)))
	}
	return
}

func truncate(regions []int, maxRegPerGID int) []int {
	if maxRegPerGID > 0 && len(regions) > maxRegPerGID {
		regions = regions[:maxRegPerGID]
	}
	return slices.Clone(regions)
}
