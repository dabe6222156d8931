package region

import (
	"fmt"

	"github.com/notargets/regionmg/dist"
)

// CompositeToRegional replicates a composite vector into every region holding
// each entry. quasiReg carries composite GIDs, reg carries the same values
// labeled with the regional map.
func CompositeToRegional(comp *dist.Vector, regRowMap *dist.Map,
	rowImporter *dist.Import) (quasiReg, reg *dist.Vector) {
	quasiReg = dist.NewVector(rowImporter.Target())
	quasiReg.DoImport(comp, rowImporter, dist.Insert)
	reg = quasiReg.Copy()
	reg.ReplaceMap(regRowMap)
	return
}

// CompositeToRegionalMulti is CompositeToRegional applied column by column.
func CompositeToRegionalMulti(comp *dist.MultiVector, regRowMap *dist.Map,
	rowImporter *dist.Import) (quasiReg, reg *dist.MultiVector) {
	quasiReg = dist.NewMultiVector(rowImporter.Target(), comp.NumVectors())
	quasiReg.DoImport(comp, rowImporter, dist.Insert)
	reg = quasiReg.Copy()
	reg.ReplaceMap(regRowMap)
	return
}

// RegionalToComposite merges a regional vector into comp. With Add the copies
// of an interface entry are summed into a zeroed composite vector, with
// Insert one copy wins.
func RegionalToComposite(reg, comp *dist.Vector, rowImporter *dist.Import, mode dist.CombineMode) {
	quasiReg := reg.Copy()
	quasiReg.ReplaceMap(rowImporter.Target())
	if mode == dist.Add {
		comp.PutScalar(0)
	}
	comp.DoExport(quasiReg, rowImporter, mode)
}

func RegionalToCompositeMulti(reg, comp *dist.MultiVector, rowImporter *dist.Import, mode dist.CombineMode) {
	if reg.NumVectors() != comp.NumVectors() {
		panic(fmt.Sprintf("column count mismatch: %d regional, %d composite", reg.NumVectors(), comp.NumVectors()))
	}
	for j := 0; j < reg.NumVectors(); j++ {
		RegionalToComposite(reg.Col(j), comp.Col(j), rowImporter, mode)
	}
}

// RegionalToCompositeMatrix sums the regional operators into the composite
// operator on the source map of rowImporter.
func RegionalToCompositeMatrix(regA *dist.CrsMatrix, quasiRegRowMap, quasiRegColMap *dist.Map,
	rowImporter *dist.Import) (compA *dist.CrsMatrix) {
	var (
		comm       = regA.RowMap().Comm()
		compRowMap = rowImporter.Source()
		entries    = make([][]dist.Entry, comm.Size())
	)
	if !regA.RowMap().HasSameLayout(quasiRegRowMap) || !regA.ColMap().HasSameLayout(quasiRegColMap) {
		panic("incompatible maps: regional operator and quasi-regional maps differ in layout")
	}
	comm.ForEach(func(rank int) {
		lm := regA.Local(rank)
		for i := 0; i < lm.NumRows(); i++ {
			row := quasiRegRowMap.GID(rank, i)
			cols, vals := lm.Row(i)
			for k, lc := range cols {
				entries[rank] = append(entries[rank], dist.Entry{Row: row, Col: quasiRegColMap.GID(rank, lc), Val: vals[k]})
			}
		}
	})
	compA = dist.AssembleCrsMatrix(compRowMap, nil, compRowMap, compRowMap, entries)
	compA.SetBlockSize(regA.BlockSize())
	return
}

// ScaleInterfaceDOFs multiplies v by the interface scaling, or divides by it
// when inverse is set.
func ScaleInterfaceDOFs(v, scaling *dist.Vector, inverse bool) {
	if !inverse {
		v.ElementWiseMultiply(1, v, scaling, 0)
		return
	}
	for rank := 0; rank < v.Comm().Size(); rank++ {
		vv, s := v.Local(rank), scaling.Local(rank)
		if len(vv) != len(s) {
			panic("incompatible maps: scaling vector layout differs")
		}
		for i := range vv {
			vv[i] /= s[i]
		}
	}
}
