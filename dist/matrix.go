package dist

import (
	"fmt"
	"slices"
	"sort"

	"github.com/james-bowman/sparse"
	"github.com/james-bowman/sparse/blas"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Entry is one matrix coefficient addressed by global row and column ids.
type Entry struct {
	Row, Col int
	Val      float64
}

// LocalMatrix is the CSR block of one rank. Column indices are local ids of
// the column map. The index arrays back the sparse.CSR used by the kernels.
type LocalMatrix struct {
	Indptr, Ind []int
	Data        []float64
	nCols       int
	csr         *sparse.CSR
}

func NewLocalMatrix(nRows, nCols int, indptr, ind []int, data []float64) (lm *LocalMatrix) {
	if len(indptr) != nRows+1 {
		panic(fmt.Sprintf("row pointer length %d does not match %d rows", len(indptr), nRows))
	}
	if len(ind) != len(data) || indptr[nRows] != len(ind) {
		panic("inconsistent CSR arrays")
	}
	lm = &LocalMatrix{Indptr: indptr, Ind: ind, Data: data, nCols: nCols}
	lm.csr = sparse.NewCSR(nRows, nCols, indptr, ind, data)
	return
}

func (lm *LocalMatrix) NumRows() int { return len(lm.Indptr) - 1 }

func (lm *LocalMatrix) NumCols() int { return lm.nCols }

func (lm *LocalMatrix) NNZ() int { return len(lm.Data) }

// Row returns views of the column indices and values of row i.
func (lm *LocalMatrix) Row(i int) (cols []int, vals []float64) {
	return lm.Ind[lm.Indptr[i]:lm.Indptr[i+1]], lm.Data[lm.Indptr[i]:lm.Indptr[i+1]]
}

func (lm *LocalMatrix) CSR() *sparse.CSR { return lm.csr }

// Dense returns the block as a gonum dense matrix, nil for an empty block.
func (lm *LocalMatrix) Dense() *mat.Dense {
	if lm.NumRows() == 0 || lm.nCols == 0 {
		return nil
	}
	return lm.csr.ToDense()
}

// CrsMatrix is a row distributed sparse matrix. Rows follow the row map,
// local column indices refer to the column map, x lives on the domain map and
// y = A*x on the range map.
type CrsMatrix struct {
	rowMap, colMap, domainMap, rangeMap *Map
	local                               []*LocalMatrix
	blockSize                           int
	label                               string
	colImporter                         *Import // nil when the column map is the domain map
}

func NewCrsMatrix(rowMap, colMap, domainMap, rangeMap *Map, local []*LocalMatrix) (A *CrsMatrix) {
	np := rowMap.Comm().Size()
	if len(local) != np {
		panic(fmt.Sprintf("need one local matrix per rank, got %d for %d ranks", len(local), np))
	}
	for rank, lm := range local {
		if lm.NumRows() != rowMap.NumLocal(rank) || lm.NumCols() != colMap.NumLocal(rank) {
			panic(fmt.Sprintf("local matrix on rank %d is %dx%d, maps need %dx%d", rank,
				lm.NumRows(), lm.NumCols(), rowMap.NumLocal(rank), colMap.NumLocal(rank)))
		}
	}
	if !rowMap.IsSameAs(rangeMap) {
		panic("row map and range map must coincide")
	}
	A = &CrsMatrix{
		rowMap:    rowMap,
		colMap:    colMap,
		domainMap: domainMap,
		rangeMap:  rangeMap,
		local:     local,
		blockSize: 1,
	}
	if !colMap.IsSameAs(domainMap) {
		A.colImporter = NewImport(domainMap, colMap)
	}
	return
}

// buildLocal assembles the CSR block of one rank from entries whose rows are
// local. Duplicate entries are summed, columns are sorted by local id. When
// colGIDs is nil the column list is the sorted set of referenced GIDs.
func buildLocal(rowMap *Map, rank int, colGIDs []int, entries []Entry) (lm *LocalMatrix, cols []int) {
	if colGIDs == nil {
		seen := make(map[int]struct{}, len(entries))
		for _, e := range entries {
			if _, ok := seen[e.Col]; !ok {
				seen[e.Col] = struct{}{}
				colGIDs = append(colGIDs, e.Col)
			}
		}
		sort.Ints(colGIDs)
	}
	colLID := make(map[int]int, len(colGIDs))
	for lid, gid := range colGIDs {
		colLID[gid] = lid
	}
	var (
		nRows  = rowMap.NumLocal(rank)
		rows   = make([]map[int]float64, nRows)
		indptr = make([]int, nRows+1)
		ind    []int
		data   []float64
	)
	for _, e := range entries {
		lr := rowMap.LID(rank, e.Row)
		if lr < 0 {
			panic(fmt.Sprintf("row GID %d is not on rank %d", e.Row, rank))
		}
		lc, ok := colLID[e.Col]
		if !ok {
			panic(fmt.Sprintf("column GID %d is not in the column map of rank %d", e.Col, rank))
		}
		if rows[lr] == nil {
			rows[lr] = make(map[int]float64)
		}
		rows[lr][lc] += e.Val
	}
	for i, row := range rows {
		keys := make([]int, 0, len(row))
		for lc := range row {
			keys = append(keys, lc)
		}
		sort.Ints(keys)
		for _, lc := range keys {
			ind = append(ind, lc)
			data = append(data, row[lc])
		}
		indptr[i+1] = len(ind)
	}
	return NewLocalMatrix(nRows, len(colGIDs), indptr, ind, data), colGIDs
}

// AssembleCrsMatrix routes every entry to the rank owning its row and builds
// the matrix. Entries for the same position are summed. A nil colMap is
// replaced by the sorted set of referenced column GIDs on each rank.
func AssembleCrsMatrix(rowMap, colMap, domainMap, rangeMap *Map, entries [][]Entry) *CrsMatrix {
	comm := rowMap.Comm()
	if !rowMap.IsOneToOne() {
		panic("cannot route entries to a row map that is not one-to-one")
	}
	routed := make([][]Entry, comm.Size())
	Exchange(comm,
		func(rank int, send func(int, Entry)) {
			for _, e := range entries[rank] {
				o, ok := rowMap.Owner(e.Row)
				if !ok {
					panic(fmt.Sprintf("row GID %d is not in the row map", e.Row))
				}
				send(o.Rank, e)
			}
		},
		func(rank int, msgs []Entry) {
			routed[rank] = slices.Clone(msgs)
		})
	return assembleRouted(rowMap, colMap, domainMap, rangeMap, routed)
}

func assembleRouted(rowMap, colMap, domainMap, rangeMap *Map, routed [][]Entry) *CrsMatrix {
	var (
		comm  = rowMap.Comm()
		local = make([]*LocalMatrix, comm.Size())
		cols  = make([][]int, comm.Size())
	)
	comm.ForEach(func(rank int) {
		var colGIDs []int
		if colMap != nil {
			colGIDs = colMap.ElementList(rank)
		}
		local[rank], cols[rank] = buildLocal(rowMap, rank, colGIDs, routed[rank])
	})
	if colMap == nil {
		colMap = NewMap(comm, cols)
	}
	return NewCrsMatrix(rowMap, colMap, domainMap, rangeMap, local)
}

func (A *CrsMatrix) RowMap() *Map    { return A.rowMap }
func (A *CrsMatrix) ColMap() *Map    { return A.colMap }
func (A *CrsMatrix) DomainMap() *Map { return A.domainMap }
func (A *CrsMatrix) RangeMap() *Map  { return A.rangeMap }

func (A *CrsMatrix) Local(rank int) *LocalMatrix { return A.local[rank] }

func (A *CrsMatrix) BlockSize() int { return A.blockSize }

func (A *CrsMatrix) SetBlockSize(bs int) {
	if bs < 1 {
		panic(fmt.Sprintf("invalid block size %d", bs))
	}
	A.blockSize = bs
}

func (A *CrsMatrix) Label() string { return A.label }

func (A *CrsMatrix) SetLabel(label string) { A.label = label }

func (A *CrsMatrix) NumGlobalRows() int { return A.rowMap.NumGlobal() }

func (A *CrsMatrix) NumGlobalEntries() int {
	return A.rowMap.Comm().SumAllInt(func(rank int) int { return A.local[rank].NNZ() })
}

func (A *CrsMatrix) MaxNumRowEntries() (max int) {
	for _, lm := range A.local {
		for i := 0; i < lm.NumRows(); i++ {
			if n := lm.csr.RowNNZ(i); n > max {
				max = n
			}
		}
	}
	return
}

// LocalRowView returns the local column ids and values of a local row.
func (A *CrsMatrix) LocalRowView(rank, lid int) (cols []int, vals []float64) {
	return A.local[rank].Row(lid)
}

// GlobalEntries lists the entries of rank with global row and column ids.
func (A *CrsMatrix) GlobalEntries(rank int) (entries []Entry) {
	lm := A.local[rank]
	entries = make([]Entry, 0, lm.NNZ())
	lm.csr.DoNonZero(func(i, j int, v float64) {
		entries = append(entries, Entry{A.rowMap.GID(rank, i), A.colMap.GID(rank, j), v})
	})
	return
}

// Diagonal extracts the diagonal onto the row map.
func (A *CrsMatrix) Diagonal() (d *Vector) {
	d = NewVector(A.rowMap)
	A.rowMap.Comm().ForEach(func(rank int) {
		lm, dd := A.local[rank], d.vals[rank]
		for i := range dd {
			lc := A.colMap.LID(rank, A.rowMap.GID(rank, i))
			if lc < 0 {
				continue
			}
			cols, vals := lm.Row(i)
			for k, c := range cols {
				if c == lc {
					dd[i] += vals[k]
				}
			}
		}
	})
	return
}

// Apply computes y = alpha*op(A)*x + beta*y with op(A) = A or A^T.
func (A *CrsMatrix) Apply(x, y *Vector, trans bool, alpha, beta float64) {
	comm := A.rowMap.Comm()
	if !trans {
		if !x.m.HasSameLayout(A.domainMap) || !y.m.HasSameLayout(A.rangeMap) {
			panic(fmt.Sprintf("incompatible maps in Apply: x %v, y %v for domain %v, range %v",
				x.m, y.m, A.domainMap, A.rangeMap))
		}
		xcol := x.vals
		if A.colImporter != nil {
			xc := NewVector(A.colMap)
			xc.DoImport(x, A.colImporter, Insert)
			xcol = xc.vals
		}
		comm.ForEach(func(rank int) {
			yy := y.vals[rank]
			scaleInto(yy, beta)
			blas.Dusmv(false, alpha, A.local[rank].csr.RawMatrix(), xcol[rank], 1, yy, 1)
		})
		return
	}
	if !x.m.HasSameLayout(A.rangeMap) || !y.m.HasSameLayout(A.domainMap) {
		panic(fmt.Sprintf("incompatible maps in transposed Apply: x %v, y %v for domain %v, range %v",
			x.m, y.m, A.domainMap, A.rangeMap))
	}
	ycol := NewVector(A.colMap)
	comm.ForEach(func(rank int) {
		A.local[rank].csr.MulVecTo(ycol.vals[rank], true, x.vals[rank])
	})
	if A.colImporter != nil {
		yd := NewVector(A.domainMap)
		yd.DoExport(ycol, A.colImporter, Add)
		ycol = yd
	}
	for rank := range y.vals {
		yy := y.vals[rank]
		scaleInto(yy, beta)
		floats.AddScaled(yy, alpha, ycol.vals[rank])
	}
}

// scaleInto sets y = beta*y, clearing y when beta is zero so that stale NaNs
// do not survive.
func scaleInto(y []float64, beta float64) {
	switch beta {
	case 0:
		for i := range y {
			y[i] = 0
		}
	case 1:
	default:
		floats.Scale(beta, y)
	}
}

func (A *CrsMatrix) String() string {
	return fmt.Sprintf("CrsMatrix{%q, rows: %v, nnz: %d, block size: %d}",
		A.label, A.rowMap, A.NumGlobalEntries(), A.blockSize)
}

// Copy duplicates the values, maps and importers are shared.
func (A *CrsMatrix) Copy() (B *CrsMatrix) {
	c := *A
	B = &c
	B.local = make([]*LocalMatrix, len(A.local))
	for rank, lm := range A.local {
		B.local[rank] = NewLocalMatrix(lm.NumRows(), lm.NumCols(),
			slices.Clone(lm.Indptr), slices.Clone(lm.Ind), slices.Clone(lm.Data))
	}
	return
}
