package region

import (
	"fmt"
	"slices"

	"github.com/notargets/regionmg/dist"
)

// LevelMaps are the maps, importer and interface data of one level.
// Prolongator maps the coarse regional layout of this level into the
// regional layout of the level above and is nil on the finest level.
type LevelMaps struct {
	RegRowMap, RegColMap           *dist.Map
	QuasiRegRowMap, QuasiRegColMap *dist.Map
	CompRowMap                     *dist.Map
	RowImporter                    *dist.Import
	Prolongator                    *dist.CrsMatrix
	DOFs                           [][]DOF
	Exchange                       *InterfaceExchange
}

// MakeCoarseLevelMaps reconstructs the quasi-regional and composite maps of
// levels 1..len(levels)-1 from the regional prolongators, assuming fully
// structured regions with one region per rank. levels[0] must be complete.
// A coarse node shared by several regions takes the coarse GID of the copy
// sitting on the fine composite owner, which then owns the node in the coarse
// composite map. Ownership thus follows the finest tie-break on every level
// and does not depend on which rank holds which region.
func MakeCoarseLevelMaps(maxRegPerGID int, compositeToRegionLIDsFinest [][]int, levels []*LevelMaps) {
	numLevels := len(levels)
	if numLevels <= 0 {
		panic("cannot build coarse level maps without levels")
	}
	if numLevels == 1 {
		return
	}
	fine0 := levels[0]
	if fine0.RegRowMap == nil || fine0.RowImporter == nil || fine0.DOFs == nil {
		panic("finest level maps are incomplete")
	}
	comm := fine0.RegRowMap.Comm()
	if len(compositeToRegionLIDsFinest) != comm.Size() {
		panic(fmt.Sprintf("need composite LIDs for %d ranks, got %d", comm.Size(), len(compositeToRegionLIDsFinest)))
	}
	compositeToRegionLIDs := compositeToRegionLIDsFinest
	for cur := 1; cur < numLevels; cur++ {
		var (
			fine, coarse = levels[cur-1], levels[cur]
			P            = coarse.Prolongator
			np           = comm.Size()
		)
		if P == nil {
			panic(fmt.Sprintf("level %d has no prolongator", cur))
		}
		if !P.RowMap().HasSameLayout(fine.RegRowMap) {
			panic(fmt.Sprintf("prolongator of level %d does not match the regional rows of level %d", cur, cur-1))
		}
		var (
			colMap              = P.ColMap()
			isComposite         = make([][]bool, np)
			coarseCompositeGIDs = dist.NewVector(fine.RowImporter.Source())
		)
		comm.ForEach(func(rank int) {
			isComposite[rank] = markComposite(P.RowMap().NumLocal(rank), compositeToRegionLIDs[rank])
			ccg := coarseCompositeGIDs.Local(rank)
			if len(ccg) != len(compositeToRegionLIDs[rank]) {
				panic(fmt.Sprintf("rank %d: %d composite LIDs for %d composite rows",
					rank, len(compositeToRegionLIDs[rank]), len(ccg)))
			}
			for idx, lid := range compositeToRegionLIDs[rank] {
				cols, _ := P.LocalRowView(rank, lid)
				if len(cols) == 1 {
					ccg[idx] = float64(colMap.GID(rank, cols[0]))
				} else {
					ccg[idx] = -1
				}
			}
		})
		// Duplicates learn the coarse GID chosen by their composite copy
		coarseQuasiGIDs, _ := CompositeToRegional(coarseCompositeGIDs, fine.RegRowMap, fine.RowImporter)

		var (
			quasiGIDs = make([][]int, np)
			compGIDs  = make([][]int, np)
			nextC2R   = make([][]int, np)
			dofs      = make([][]DOF, np)
		)
		comm.ForEach(func(rank int) {
			var (
				numCoarse = colMap.NumLocal(rank)
				regions   = make([][]int, numCoarse)
			)
			quasi := slices.Clone(colMap.ElementList(rank))
			for fineIdx := 0; fineIdx < P.RowMap().NumLocal(rank); fineIdx++ {
				cols, _ := P.LocalRowView(rank, fineIdx)
				if len(cols) == 0 {
					continue
				}
				coarseIdx := cols[0]
				fineRegions := fine.DOFs[rank][fineIdx].Regions
				if len(regions[coarseIdx]) < len(fineRegions) {
					regions[coarseIdx] = truncate(fineRegions, maxRegPerGID)
				}
				if isComposite[rank][fineIdx] {
					continue
				}
				if candidate := int(coarseQuasiGIDs.Local(rank)[fineIdx]); candidate > -1 {
					quasi[coarseIdx] = candidate
				}
			}
			dofs[rank] = make([]DOF, numCoarse)
			for coarseIdx, gid := range colMap.ElementList(rank) {
				own := quasi[coarseIdx] == gid
				if own {
					compGIDs[rank] = append(compGIDs[rank], gid)
					nextC2R[rank] = append(nextC2R[rank], coarseIdx)
				}
				if regions[coarseIdx] == nil {
					regions[coarseIdx] = []int{rank}
				}
				dofs[rank][coarseIdx] = DOF{
					RegionGID: gid,
					QuasiGID:  quasi[coarseIdx],
					Duplicate: !own,
					Regions:   regions[coarseIdx],
				}
			}
			quasiGIDs[rank] = quasi
		})

		coarse.RegRowMap = colMap
		coarse.RegColMap = colMap
		coarse.QuasiRegRowMap = dist.NewMap(comm, quasiGIDs)
		coarse.QuasiRegColMap = coarse.QuasiRegRowMap
		coarse.CompRowMap = dist.NewMap(comm, compGIDs)
		coarse.RowImporter = dist.NewImport(coarse.CompRowMap, coarse.QuasiRegRowMap)
		coarse.DOFs = dofs
		coarse.Exchange = SetupMatVec(dofs, coarse.CompRowMap)
		compositeToRegionLIDs = nextC2R
	}
}
