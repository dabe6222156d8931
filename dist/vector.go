package dist

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/regionmg/utils"
)

// Vector holds one float64 per map element, stored rank by rank.
type Vector struct {
	m    *Map
	vals [][]float64
}

func NewVector(m *Map) (v *Vector) {
	v = &Vector{m: m, vals: make([][]float64, m.Comm().Size())}
	for rank := range v.vals {
		v.vals[rank] = make([]float64, m.NumLocal(rank))
	}
	return
}

// NewVectorFromGlobal fills a vector by looking up each element's GID in f.
func NewVectorFromGlobal(m *Map, f func(gid int) float64) (v *Vector) {
	v = NewVector(m)
	for rank := range v.vals {
		for lid, gid := range m.ElementList(rank) {
			v.vals[rank][lid] = f(gid)
		}
	}
	return
}

func (v *Vector) Map() *Map { return v.m }

// Local is the storage of rank, modifications are visible in the vector.
func (v *Vector) Local(rank int) []float64 { return v.vals[rank] }

func (v *Vector) Comm() *Comm { return v.m.Comm() }

func (v *Vector) Copy() (c *Vector) {
	c = &Vector{m: v.m, vals: make([][]float64, len(v.vals))}
	for rank := range v.vals {
		c.vals[rank] = slices.Clone(v.vals[rank])
	}
	return
}

// Assign copies the values of o into v.
func (v *Vector) Assign(o *Vector) {
	v.checkLayout(o, "Assign")
	for rank := range v.vals {
		copy(v.vals[rank], o.vals[rank])
	}
}

// ReplaceMap relabels the elements of v with the GIDs of m without moving data.
func (v *Vector) ReplaceMap(m *Map) {
	if !v.m.HasSameLayout(m) {
		panic(fmt.Sprintf("incompatible maps: cannot replace %v by %v", v.m, m))
	}
	v.m = m
}

func (v *Vector) checkLayout(o *Vector, op string) {
	if !v.m.HasSameLayout(o.m) {
		panic(fmt.Sprintf("incompatible maps in %s: %v and %v", op, v.m, o.m))
	}
}

func (v *Vector) PutScalar(a float64) {
	for rank := range v.vals {
		for i := range v.vals[rank] {
			v.vals[rank][i] = a
		}
	}
}

func (v *Vector) Scale(a float64) {
	for rank := range v.vals {
		floats.Scale(a, v.vals[rank])
	}
}

// Update computes v = alpha*x + beta*v.
func (v *Vector) Update(alpha float64, x *Vector, beta float64) {
	v.checkLayout(x, "Update")
	v.Comm().ForEach(func(rank int) {
		y, xx := v.vals[rank], x.vals[rank]
		if beta != 1 {
			floats.Scale(beta, y)
		}
		floats.AddScaled(y, alpha, xx)
	})
}

// Update2 computes v = alpha*x + beta*y + gamma*v.
func (v *Vector) Update2(alpha float64, x *Vector, beta float64, y *Vector, gamma float64) {
	v.checkLayout(x, "Update2")
	v.checkLayout(y, "Update2")
	v.Comm().ForEach(func(rank int) {
		z := v.vals[rank]
		if gamma != 1 {
			floats.Scale(gamma, z)
		}
		floats.AddScaled(z, alpha, x.vals[rank])
		floats.AddScaled(z, beta, y.vals[rank])
	})
}

// ElementWiseMultiply computes v = alpha*a.*b + beta*v.
func (v *Vector) ElementWiseMultiply(alpha float64, a, b *Vector, beta float64) {
	v.checkLayout(a, "ElementWiseMultiply")
	v.checkLayout(b, "ElementWiseMultiply")
	for rank := range v.vals {
		z, aa, bb := v.vals[rank], a.vals[rank], b.vals[rank]
		for i := range z {
			if beta == 0 {
				z[i] = alpha * aa[i] * bb[i]
			} else {
				z[i] = alpha*aa[i]*bb[i] + beta*z[i]
			}
		}
	}
}

// Reciprocal sets v = 1 ./ x.
func (v *Vector) Reciprocal(x *Vector) {
	v.checkLayout(x, "Reciprocal")
	for rank := range v.vals {
		for i, xi := range x.vals[rank] {
			v.vals[rank][i] = 1 / xi
		}
	}
}

func (v *Vector) Dot(o *Vector) float64 {
	v.checkLayout(o, "Dot")
	return v.Comm().SumAll(func(rank int) float64 {
		return floats.Dot(v.vals[rank], o.vals[rank])
	})
}

func (v *Vector) Norm2() float64 {
	return math.Sqrt(v.Dot(v))
}

func (v *Vector) NormInf() float64 {
	return v.Comm().MaxAll(func(rank int) float64 {
		if len(v.vals[rank]) == 0 {
			return 0
		}
		return floats.Norm(v.vals[rank], math.Inf(1))
	})
}

func (v *Vector) Sum() float64 {
	return v.Comm().SumAll(func(rank int) float64 { return floats.Sum(v.vals[rank]) })
}

// HasNonFinite reports whether any entry is NaN or infinite.
func (v *Vector) HasNonFinite() bool { return utils.IsNan(v.vals) }

// DoImport fills v, laid out on the importer target map, from src laid out
// on the importer source map.
func (v *Vector) DoImport(src *Vector, imp *Import, mode CombineMode) {
	if !src.m.HasSameLayout(imp.source) || !v.m.HasSameLayout(imp.target) {
		panic(fmt.Sprintf("incompatible maps: import %v -> %v with source %v and target %v",
			src.m, v.m, imp.source, imp.target))
	}
	imp.forward(src.vals, v.vals, mode)
}

// DoExport fills v, laid out on the importer source map, from src laid out on
// the importer target map. This is the reverse of DoImport.
func (v *Vector) DoExport(src *Vector, imp *Import, mode CombineMode) {
	if !src.m.HasSameLayout(imp.target) || !v.m.HasSameLayout(imp.source) {
		panic(fmt.Sprintf("incompatible maps: export %v -> %v with source %v and target %v",
			src.m, v.m, imp.source, imp.target))
	}
	imp.reverse(src.vals, v.vals, mode)
}

// Gather collects the values keyed by GID. Duplicated GIDs keep the value of
// the lowest rank.
func (v *Vector) Gather() (g map[int]float64) {
	g = make(map[int]float64, v.m.NumGlobal())
	for rank := range v.vals {
		for lid, gid := range v.m.ElementList(rank) {
			if _, present := g[gid]; !present {
				g[gid] = v.vals[rank][lid]
			}
		}
	}
	return
}
