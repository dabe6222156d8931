package dist

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// DenseIndex numbers the elements of m contiguously in rank order. It is the
// row and column numbering used when a distributed operator is gathered into
// one dense matrix.
func DenseIndex(m *Map) *Map {
	return NewContiguousMap(m.Comm(), m.LocalCounts())
}

// ToDense gathers a square operator into a dense matrix numbered by idx,
// which must share the layout of the row map.
func (A *CrsMatrix) ToDense(idx *Map) (D *mat.Dense) {
	if !idx.HasSameLayout(A.rowMap) || !A.domainMap.HasSameLayout(A.rowMap) {
		panic(fmt.Sprintf("dense gather needs a square operator laid out like %v", idx))
	}
	n := idx.NumGlobal()
	D = mat.NewDense(n, n, nil)
	for rank, lm := range A.local {
		for i := 0; i < lm.NumRows(); i++ {
			row := idx.GID(rank, i)
			cols, vals := lm.Row(i)
			for k, lc := range cols {
				o, ok := A.domainMap.Owner(A.colMap.GID(rank, lc))
				if !ok {
					panic(fmt.Sprintf("column GID %d is not in the domain map", A.colMap.GID(rank, lc)))
				}
				col := idx.GID(o.Rank, o.LID)
				D.Set(row, col, D.At(row, col)+vals[k])
			}
		}
	}
	return
}

// ToDense gathers v into one slice numbered by idx.
func (v *Vector) ToDense(idx *Map) (d []float64) {
	if !idx.HasSameLayout(v.m) {
		panic("incompatible maps: dense index does not match the vector layout")
	}
	d = make([]float64, idx.NumGlobal())
	for rank, loc := range v.vals {
		for lid, val := range loc {
			d[idx.GID(rank, lid)] = val
		}
	}
	return
}

// FromDense scatters a slice numbered by idx into v.
func (v *Vector) FromDense(idx *Map, d []float64) {
	if !idx.HasSameLayout(v.m) || len(d) != idx.NumGlobal() {
		panic("incompatible maps: dense index does not match the vector layout")
	}
	for rank, loc := range v.vals {
		for lid := range loc {
			loc[lid] = d[idx.GID(rank, lid)]
		}
	}
}
