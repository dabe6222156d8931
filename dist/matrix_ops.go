package dist

import (
	"fmt"
	"slices"

	"github.com/james-bowman/sparse"
)

// gatherRows sends the rows of A named by the importer source positions to
// the ranks holding them in the target map.
func (A *CrsMatrix) gatherRows(imp *Import) (rows [][]Entry) {
	if !imp.source.IsSameAs(A.rowMap) {
		panic("incompatible maps: importer source must be the row map")
	}
	comm := A.rowMap.Comm()
	rows = make([][]Entry, comm.Size())
	Exchange(comm,
		func(rank int, send func(int, Entry)) {
			lm := A.local[rank]
			for _, l := range imp.sendTo[rank] {
				row := A.rowMap.GID(rank, l.SrcLID)
				cols, vals := lm.Row(l.SrcLID)
				for k, lc := range cols {
					send(l.Rank, Entry{row, A.colMap.GID(rank, lc), vals[k]})
				}
			}
		},
		func(rank int, msgs []Entry) {
			rows[rank] = slices.Clone(msgs)
		})
	return
}

// ImportRows redistributes the rows of A onto the importer target map, which
// becomes the row and range map of the result.
func (A *CrsMatrix) ImportRows(imp *Import, domainMap *Map) (B *CrsMatrix) {
	B = assembleRouted(imp.target, nil, domainMap, imp.target, A.gatherRows(imp))
	B.blockSize = A.blockSize
	B.label = A.label
	return
}

// Transpose returns A^T with rows distributed like the domain map of A.
func (A *CrsMatrix) Transpose() (At *CrsMatrix) {
	comm := A.rowMap.Comm()
	entries := make([][]Entry, comm.Size())
	comm.ForEach(func(rank int) {
		A.local[rank].csr.DoNonZero(func(i, j int, v float64) {
			entries[rank] = append(entries[rank], Entry{A.colMap.GID(rank, j), A.rowMap.GID(rank, i), v})
		})
	})
	At = AssembleCrsMatrix(A.domainMap, nil, A.rangeMap, A.domainMap, entries)
	At.blockSize = A.blockSize
	return
}

// Multiply returns the product A*B. The domain map of A must be the row map
// of B.
func Multiply(A, B *CrsMatrix) (C *CrsMatrix) {
	if !A.domainMap.IsSameAs(B.rowMap) {
		panic(fmt.Sprintf("incompatible maps in Multiply: domain %v, rows %v", A.domainMap, B.rowMap))
	}
	var (
		comm    = A.rowMap.Comm()
		imp     = NewImport(B.rowMap, A.colMap)
		gath    = B.gatherRows(imp)
		entries = make([][]Entry, comm.Size())
	)
	comm.ForEach(func(rank int) {
		// Rows of B matching the local columns of A, in column map order
		bLoc, bCols := buildLocal(A.colMap, rank, nil, gath[rank])
		var c sparse.CSR
		c.Mul(A.local[rank].csr, bLoc.csr)
		c.DoNonZero(func(i, j int, v float64) {
			entries[rank] = append(entries[rank], Entry{A.rowMap.GID(rank, i), bCols[j], v})
		})
	})
	C = assembleRouted(A.rowMap, nil, B.domainMap, A.rangeMap, entries)
	C.blockSize = A.blockSize
	return
}

// TripleProduct computes R*A*P, the Galerkin coarse operator when R = P^T.
func TripleProduct(R, A, P *CrsMatrix) *CrsMatrix {
	return Multiply(R, Multiply(A, P))
}

// Scale multiplies every stored entry by a.
func (A *CrsMatrix) Scale(a float64) {
	for _, lm := range A.local {
		for k := range lm.Data {
			lm.Data[k] *= a
		}
	}
}
