package region

import (
	"fmt"

	"github.com/notargets/regionmg/dist"
)

// MakeInterfaceScalingFactors counts, for every regional entry of every
// level, how many regions share it.
func MakeInterfaceScalingFactors(numLevels int, compRowMaps, regRowMaps []*dist.Map,
	rowImporters []*dist.Import) (scalings []*dist.Vector) {
	if numLevels <= 0 {
		panic(fmt.Sprintf("number of levels must be positive, got %d", numLevels))
	}
	if len(compRowMaps) < numLevels || len(regRowMaps) < numLevels || len(rowImporters) < numLevels {
		panic("need composite maps, regional maps and row importers for every level")
	}
	scalings = make([]*dist.Vector, numLevels)
	for l := 0; l < numLevels; l++ {
		var (
			ones = dist.NewVector(regRowMaps[l])
			comp = dist.NewVector(compRowMaps[l])
		)
		ones.PutScalar(1)
		RegionalToComposite(ones, comp, rowImporters[l], dist.Add)
		_, scalings[l] = CompositeToRegional(comp, regRowMaps[l], rowImporters[l])
	}
	return
}
