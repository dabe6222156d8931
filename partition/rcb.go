package partition

import (
	"fmt"
	"slices"

	"github.com/notargets/regionmg/utils"
)

// RCB is recursive coordinate bisection: the point set is cut across its
// widest extent with part sizes proportional to the number of parts on each
// side. Without coordinates the vertex numbering serves as a 1D coordinate.
type RCB struct{}

func (RCB) Name() string { return "rcb" }

func (RCB) Partition(g *Graph, coords [][]float64, nparts int) (part []int, err error) {
	n := g.NumVertices()
	if nparts < 1 {
		return nil, fmt.Errorf("need at least one part, got %d", nparts)
	}
	if coords != nil && len(coords) != n {
		return nil, fmt.Errorf("%d coordinates for %d vertices", len(coords), n)
	}
	part = make([]int, n)
	bisect(utils.IntRange(n), coords, 0, nparts, part)
	return
}

func bisect(idx []int, coords [][]float64, first, nparts int, part []int) {
	if nparts == 1 {
		for _, i := range idx {
			part[i] = first
		}
		return
	}
	var (
		left = nparts / 2
		cut  = len(idx) * left / nparts
		dim  = widestDimension(idx, coords)
	)
	coord := func(i int) float64 {
		if coords == nil {
			return float64(i)
		}
		return coords[i][dim]
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		switch ca, cb := coord(a), coord(b); {
		case ca < cb:
			return -1
		case ca > cb:
			return 1
		}
		return a - b
	})
	bisect(idx[:cut], coords, first, left, part)
	bisect(idx[cut:], coords, first+left, nparts-left, part)
}

func widestDimension(idx []int, coords [][]float64) (dim int) {
	if coords == nil || len(idx) == 0 {
		return 0
	}
	var widest float64
	for d := range coords[idx[0]] {
		lo, hi := coords[idx[0]][d], coords[idx[0]][d]
		for _, i := range idx {
			lo, hi = min(lo, coords[i][d]), max(hi, coords[i][d])
		}
		if hi-lo > widest {
			widest, dim = hi-lo, d
		}
	}
	return
}
