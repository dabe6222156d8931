package region

import (
	"fmt"

	"github.com/notargets/regionmg/dist"
)

// CreateContinuousCoarseLevelMaps returns a map with the layout of rowMap and
// GIDs numbered contiguously from zero.
func CreateContinuousCoarseLevelMaps(rowMap *dist.Map) *dist.Map {
	return dist.NewContiguousMap(rowMap.Comm(), rowMap.LocalCounts())
}

// MakeCoarseCompositeOperator sums the regional operator of a level into its
// composite operator. With makeCompCoords the regional node coordinates are
// moved to the composite node layout as well, one copy of each node wins.
func MakeCoarseCompositeOperator(compRowMap, quasiRegRowMap, quasiRegColMap *dist.Map,
	rowImporter *dist.Import, regA *dist.CrsMatrix, regCoarseCoords *dist.MultiVector,
	makeCompCoords bool) (compA *dist.CrsMatrix, compCoords *dist.MultiVector) {
	if !rowImporter.Source().IsSameAs(compRowMap) {
		panic("incompatible maps: row importer does not start from the composite map")
	}
	compA = RegionalToCompositeMatrix(regA, quasiRegRowMap, quasiRegColMap, rowImporter)
	compA.SetLabel("coarse composite operator")
	if !makeCompCoords {
		return
	}
	if regCoarseCoords == nil {
		panic("composite coordinates requested without regional coordinates")
	}
	var (
		comm      = compRowMap.Comm()
		numRows   = quasiRegRowMap.NumGlobal()
		numCoords = regCoarseCoords.Map().NumGlobal()
	)
	if numCoords == 0 || numRows%numCoords != 0 {
		panic(fmt.Sprintf("%d regional rows are not a multiple of %d coordinates", numRows, numCoords))
	}
	blockSize := numRows / numCoords
	var (
		quasiNodes = make([][]int, comm.Size())
		compNodes  = make([][]int, comm.Size())
	)
	nodesOf := func(m *dist.Map, rank int) (nodes []int) {
		list := m.ElementList(rank)
		if len(list)%blockSize != 0 {
			panic(fmt.Sprintf("rank %d holds %d rows, not a multiple of block size %d", rank, len(list), blockSize))
		}
		for lid := 0; lid < len(list); lid += blockSize {
			if list[lid]%blockSize != 0 {
				panic(fmt.Sprintf("GID %d does not start a block of size %d", list[lid], blockSize))
			}
			nodes = append(nodes, list[lid]/blockSize)
		}
		return
	}
	for rank := range quasiNodes {
		quasiNodes[rank] = nodesOf(quasiRegRowMap, rank)
		compNodes[rank] = nodesOf(compRowMap, rank)
	}
	var (
		quasiNodeMap = dist.NewMap(comm, quasiNodes)
		compNodeMap  = dist.NewMap(comm, compNodes)
		nodeImporter = dist.NewImport(compNodeMap, quasiNodeMap)
		quasiCoords  = regCoarseCoords.Copy()
	)
	quasiCoords.ReplaceMap(quasiNodeMap)
	compCoords = dist.NewMultiVector(compNodeMap, regCoarseCoords.NumVectors())
	compCoords.DoExport(quasiCoords, nodeImporter, dist.Insert)
	return
}
