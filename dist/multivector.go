package dist

import "fmt"

// MultiVector is a set of vectors sharing a map, used for coordinates and
// nullspace bases.
type MultiVector struct {
	m    *Map
	cols []*Vector
}

func NewMultiVector(m *Map, numVectors int) (mv *MultiVector) {
	mv = &MultiVector{m: m, cols: make([]*Vector, numVectors)}
	for j := range mv.cols {
		mv.cols[j] = NewVector(m)
	}
	return
}

// NewMultiVectorFromColumns wraps existing vectors, which must share a layout.
func NewMultiVectorFromColumns(cols ...*Vector) *MultiVector {
	if len(cols) == 0 {
		panic("multivector needs at least one column")
	}
	for _, c := range cols[1:] {
		cols[0].checkLayout(c, "NewMultiVectorFromColumns")
	}
	return &MultiVector{m: cols[0].m, cols: cols}
}

func (mv *MultiVector) Map() *Map { return mv.m }

func (mv *MultiVector) NumVectors() int { return len(mv.cols) }

func (mv *MultiVector) Col(j int) *Vector { return mv.cols[j] }

func (mv *MultiVector) Copy() (c *MultiVector) {
	c = &MultiVector{m: mv.m, cols: make([]*Vector, len(mv.cols))}
	for j, col := range mv.cols {
		c.cols[j] = col.Copy()
	}
	return
}

func (mv *MultiVector) ReplaceMap(m *Map) {
	for _, col := range mv.cols {
		col.ReplaceMap(m)
	}
	mv.m = m
}

func (mv *MultiVector) PutScalar(a float64) {
	for _, col := range mv.cols {
		col.PutScalar(a)
	}
}

func (mv *MultiVector) checkCols(o *MultiVector) {
	if len(mv.cols) != len(o.cols) {
		panic(fmt.Sprintf("multivector column count mismatch: %d and %d", len(mv.cols), len(o.cols)))
	}
}

func (mv *MultiVector) DoImport(src *MultiVector, imp *Import, mode CombineMode) {
	mv.checkCols(src)
	for j, col := range mv.cols {
		col.DoImport(src.cols[j], imp, mode)
	}
}

func (mv *MultiVector) DoExport(src *MultiVector, imp *Import, mode CombineMode) {
	mv.checkCols(src)
	for j, col := range mv.cols {
		col.DoExport(src.cols[j], imp, mode)
	}
}
