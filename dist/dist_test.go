package dist

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func laplace1D(comm *Comm, n int) *CrsMatrix {
	rowMap := NewUniformMap(comm, n)
	entries := make([][]Entry, comm.Size())
	for rank := range entries {
		for _, gid := range rowMap.ElementList(rank) {
			entries[rank] = append(entries[rank], Entry{gid, gid, 2})
			if gid > 0 {
				entries[rank] = append(entries[rank], Entry{gid, gid - 1, -1})
			}
			if gid < n-1 {
				entries[rank] = append(entries[rank], Entry{gid, gid + 1, -1})
			}
		}
	}
	return AssembleCrsMatrix(rowMap, nil, rowMap, rowMap, entries)
}

func toDense(A *CrsMatrix) *mat.Dense {
	var (
		nr = A.RowMap().MaxGID() + 1
		nc = A.DomainMap().MaxGID() + 1
		D  = mat.NewDense(nr, nc, nil)
	)
	for rank := 0; rank < A.RowMap().Comm().Size(); rank++ {
		for _, e := range A.GlobalEntries(rank) {
			D.Set(e.Row, e.Col, D.At(e.Row, e.Col)+e.Val)
		}
	}
	return D
}

func TestMapBasics(t *testing.T) {
	comm := NewComm(3)
	{ // Uniform map
		m := NewUniformMap(comm, 10)
		assert.Equal(t, []int{4, 3, 3}, m.LocalCounts())
		assert.Equal(t, 10, m.NumGlobal())
		assert.True(t, m.IsOneToOne())
		assert.Equal(t, 1, m.LID(1, 5))
		o, ok := m.Owner(7)
		assert.True(t, ok)
		assert.Equal(t, Owner{Rank: 2, LID: 0}, o)
		assert.Equal(t, -1, m.LID(0, 7))
	}
	{ // Contiguous map with an empty rank
		m := NewContiguousMap(comm, []int{2, 0, 3})
		assert.Equal(t, []int{0, 1}, m.ElementList(0))
		assert.Empty(t, m.ElementList(1))
		assert.Equal(t, []int{2, 3, 4}, m.ElementList(2))
	}
	{ // Overlapping map
		m := NewMap(comm, [][]int{{0, 1}, {1, 2}, {2, 0}})
		assert.False(t, m.IsOneToOne())
		assert.Equal(t, 6, m.NumGlobal())
		assert.True(t, m.HasSameLayout(NewUniformMap(comm, 6)))
		assert.False(t, m.IsSameAs(NewUniformMap(comm, 6)))
	}
	assert.Panics(t, func() { NewMap(comm, [][]int{{0, 0}, {}, {}}) })
	assert.Panics(t, func() { NewMap(comm, [][]int{{0}}) })
	assert.Panics(t, func() { NewComm(0) })
}

func TestImportExport(t *testing.T) {
	var (
		comm   = NewComm(3)
		source = NewUniformMap(comm, 6) // {0,1} {2,3} {4,5}
		target = NewMap(comm, [][]int{{0, 1, 2}, {2, 3, 4}, {4, 5, 0}})
		imp    = NewImport(source, target)
	)
	assert.Equal(t, 3, imp.NumRemote())
	src := NewVectorFromGlobal(source, func(gid int) float64 { return float64(10 * gid) })
	{ // Forward INSERT replicates owned values
		tgt := NewVector(target)
		tgt.DoImport(src, imp, Insert)
		assert.Equal(t, []float64{0, 10, 20}, tgt.Local(0))
		assert.Equal(t, []float64{20, 30, 40}, tgt.Local(1))
		assert.Equal(t, []float64{40, 50, 0}, tgt.Local(2))
	}
	{ // Reverse ADD sums every copy
		tgt := NewVector(target)
		tgt.PutScalar(1)
		back := NewVector(source)
		back.DoExport(tgt, imp, Add)
		assert.Equal(t, []float64{2, 1}, back.Local(0))
		assert.Equal(t, []float64{2, 1}, back.Local(1))
		assert.Equal(t, []float64{2, 1}, back.Local(2))
	}
	{ // Reverse INSERT keeps the value of the highest sender
		tgt := NewVectorFromGlobal(target, func(gid int) float64 { return float64(gid) })
		tgt.Local(2)[2] = -7
		back := NewVector(source)
		back.DoExport(tgt, imp, Insert)
		assert.Equal(t, -7., back.Local(0)[0])
		assert.Equal(t, 1., back.Local(0)[1])
	}
	{ // ABSMAX
		tgt := NewVectorFromGlobal(target, func(gid int) float64 { return -float64(gid) })
		back := NewVector(source)
		back.DoExport(tgt, imp, AbsMax)
		assert.Equal(t, []float64{4, 5}, back.Local(2))
	}
	assert.Panics(t, func() { NewImport(target, source) })
	assert.Panics(t, func() { NewImport(NewUniformMap(comm, 3), target) })
	assert.Panics(t, func() { NewVector(source).DoImport(src, imp, Insert) })
}

func TestVectorOps(t *testing.T) {
	var (
		comm = NewComm(2)
		m    = NewUniformMap(comm, 5)
		x    = NewVectorFromGlobal(m, func(gid int) float64 { return float64(gid) })
		y    = NewVector(m)
	)
	y.PutScalar(2)
	assert.InDelta(t, 20., x.Dot(y), 1e-14)
	assert.InDelta(t, math.Sqrt(30), x.Norm2(), 1e-14)
	assert.Equal(t, 4., x.NormInf())
	y.Update(1, x, -1) // y = x - 2
	assert.Equal(t, []float64{-2, -1, 0}, y.Local(0))
	z := x.Copy()
	z.Update2(1, x, 2, y, 0) // z = x + 2y = 3x - 4
	assert.Equal(t, []float64{5, 8}, z.Local(1))
	w := NewVector(m)
	w.ElementWiseMultiply(1, x, x, 0)
	assert.Equal(t, []float64{9, 16}, w.Local(1))
	w.Reciprocal(y)
	assert.Equal(t, -0.5, w.Local(0)[0])
	assert.True(t, w.HasNonFinite())
	assert.Equal(t, 10., x.Sum())
	other := NewMap(comm, [][]int{{7, 8, 9}, {1, 2}})
	x.ReplaceMap(other)
	assert.Equal(t, 3., x.Gather()[1])
	assert.Panics(t, func() { x.ReplaceMap(NewUniformMap(comm, 4)) })
}

func TestMatrixApply(t *testing.T) {
	var (
		comm = NewComm(3)
		n    = 8
		A    = laplace1D(comm, n)
		D    = toDense(A)
		x    = NewVectorFromGlobal(A.DomainMap(), func(gid int) float64 { return math.Sin(float64(gid)) })
		xd   = mat.NewVecDense(n, nil)
	)
	for gid, v := range x.Gather() {
		xd.SetVec(gid, v)
	}
	assert.Equal(t, 3, A.MaxNumRowEntries())
	assert.Equal(t, 3*n-2, A.NumGlobalEntries())
	{ // y = A x
		y := NewVector(A.RangeMap())
		y.PutScalar(1)
		A.Apply(x, y, false, 2, 0.5)
		var yd mat.VecDense
		yd.MulVec(D, xd)
		for gid, v := range y.Gather() {
			assert.InDelta(t, 2*yd.AtVec(gid)+0.5, v, 1e-13)
		}
	}
	{ // y = A^T x on a non-symmetric matrix
		B := A.Copy()
		B.Local(0).Data[1] = 5
		Bd := toDense(B)
		y := NewVector(B.DomainMap())
		B.Apply(x, y, true, 1, 0)
		var yd mat.VecDense
		yd.MulVec(Bd.T(), xd)
		for gid, v := range y.Gather() {
			assert.InDelta(t, yd.AtVec(gid), v, 1e-13)
		}
	}
	{ // Diagonal
		d := A.Diagonal()
		for _, v := range d.Gather() {
			assert.Equal(t, 2., v)
		}
	}
}

func TestMatrixTransposeMultiply(t *testing.T) {
	var (
		comm   = NewComm(3)
		n      = 7
		A      = laplace1D(comm, n)
		coarse = NewUniformMap(comm, 3)
	)
	// Piecewise constant prolongator on aggregates {0,1,2} {3,4} {5,6}
	agg := []int{0, 0, 0, 1, 1, 2, 2}
	pEntries := make([][]Entry, comm.Size())
	for rank := range pEntries {
		for _, gid := range A.RowMap().ElementList(rank) {
			pEntries[rank] = append(pEntries[rank], Entry{gid, agg[gid], 1})
		}
	}
	P := AssembleCrsMatrix(A.RowMap(), nil, coarse, A.RowMap(), pEntries)
	R := P.Transpose()
	require.True(t, R.RowMap().IsSameAs(coarse))
	assert.True(t, mat.Equal(toDense(R), toDense(P).T()))
	Ac := TripleProduct(R, A, P)
	var expect mat.Dense
	expect.Product(toDense(P).T(), toDense(A), toDense(P))
	assert.True(t, mat.EqualApprox(&expect, toDense(Ac), 1e-14))
	{ // Rows moved to a single rank keep their values
		target := NewMap(comm, [][]int{{}, {}, {0, 1, 2, 3, 4, 5, 6}})
		imp := NewImport(A.RowMap(), target)
		B := A.ImportRows(imp, target)
		assert.Equal(t, 0, B.Local(0).NumRows())
		assert.True(t, mat.Equal(toDense(A), toDense(B)))
		assert.True(t, mat.Equal(toDense(A), B.Local(2).Dense()))
	}
}

func TestLocalBlockSharesCSR(t *testing.T) {
	var (
		comm = NewComm(2)
		A    = laplace1D(comm, 6)
		lm   = A.Local(1)
	)
	rows, cols := lm.CSR().Dims()
	assert.Equal(t, []int{3, lm.NumCols()}, []int{rows, cols})
	assert.Equal(t, lm.NNZ(), lm.CSR().NNZ())
	A.Scale(-0.5)
	lc := A.ColMap().LID(1, 4)
	assert.Equal(t, -1., lm.CSR().At(1, lc))

	// A zero beta overwrites whatever y held
	x := NewVector(A.DomainMap())
	x.PutScalar(1)
	y := NewVector(A.RangeMap())
	y.PutScalar(math.NaN())
	A.Apply(x, y, false, 1, 0)
	assert.False(t, y.HasNonFinite())
	assert.InDelta(t, 0, y.Local(0)[1], 1e-15)
	y.PutScalar(math.NaN())
	A.Apply(x, y, true, 1, 0)
	assert.False(t, y.HasNonFinite())
}
