package regionmg

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/notargets/regionmg/dist"
	"github.com/notargets/regionmg/region"
	"github.com/notargets/regionmg/smoother"
)

var ErrNonFinite = errors.New("non-finite values in multigrid cycle")

type SolveResult struct {
	Iterations      int
	ResidualHistory []float64 // Composite residual norms, starting with the initial one
	Converged       bool
}

func (r SolveResult) Reduction() float64 {
	if len(r.ResidualHistory) == 0 || r.ResidualHistory[0] == 0 {
		return 0
	}
	return r.ResidualHistory[len(r.ResidualHistory)-1] / r.ResidualHistory[0]
}

// toRegional replicates a composite vector of the finest level.
func (h *Hierarchy) toRegional(comp *dist.Vector) (reg *dist.Vector) {
	lvl := h.Levels[0]
	_, reg = region.CompositeToRegional(comp, lvl.RegRowMap, lvl.RowImporter)
	return
}

// compositeResidual returns |b - A x| with every composite unknown counted
// once.
func (h *Hierarchy) compositeResidual(x, b *dist.Vector) float64 {
	var (
		lvl  = h.Levels[0]
		res  = dist.NewVector(lvl.RegRowMap)
		comp = dist.NewVector(lvl.CompRowMap)
	)
	smoother.ComputeResidual(res, x, b, lvl.A, lvl.Exchange)
	region.ScaleInterfaceDOFs(res, lvl.Scaling, true)
	region.RegionalToComposite(res, comp, lvl.RowImporter, dist.Add)
	return comp.Norm2()
}

// Richardson repeats V-cycles on the regional form of A x = b until the
// residual drops below tol times the initial residual. compX holds the
// initial guess and receives the solution.
func (h *Hierarchy) Richardson(compB, compX *dist.Vector, tol float64, maxIter int) (res SolveResult, err error) {
	var (
		lvl       = h.Levels[0]
		b         = h.toRegional(compB)
		x         = h.toRegional(compX)
		r         = h.compositeResidual(x, b)
		zeroGuess = compX.NormInf() == 0
	)
	res.ResidualHistory = append(res.ResidualHistory, r)
	r0 := r
	for res.Iterations < maxIter && !(r <= tol*r0) {
		ok := h.VCycle(0, x, b, &zeroGuess)
		res.Iterations++
		r = h.compositeResidual(x, b)
		res.ResidualHistory = append(res.ResidualHistory, r)
		slog.Debug("Richardson", "iteration", res.Iterations, "residual", r, "reduction", r/r0)
		if !ok || math.IsNaN(r) {
			err = fmt.Errorf("V-cycle in Richardson iteration %d: %w", res.Iterations, ErrNonFinite)
			break
		}
	}
	res.Converged = err == nil && r <= tol*r0
	region.RegionalToComposite(x, compX, lvl.RowImporter, dist.Insert)
	return
}

// precondition sets z to one V-cycle from a zero guess applied to r.
func (h *Hierarchy) precondition(r, z *dist.Vector) (ok bool) {
	var (
		lvl  = h.Levels[0]
		rr   = h.toRegional(r)
		zz   = dist.NewVector(lvl.RegRowMap)
		zero = true
	)
	ok = h.VCycle(0, zz, rr, &zero)
	region.RegionalToComposite(zz, z, lvl.RowImporter, dist.Insert)
	return
}

// PCG runs conjugate gradients on the composite system preconditioned with
// one V-cycle per iteration. x holds the initial guess and receives the
// solution.
func (h *Hierarchy) PCG(A *dist.CrsMatrix, b, x *dist.Vector, tol float64, maxIter int) (res SolveResult, err error) {
	var (
		r  = b.Copy()
		z  = dist.NewVector(b.Map())
		p  = dist.NewVector(b.Map())
		q  = dist.NewVector(b.Map())
		rz float64
	)
	A.Apply(x, r, false, -1, 1)
	rn := r.Norm2()
	r0 := rn
	res.ResidualHistory = append(res.ResidualHistory, rn)
	for res.Iterations < maxIter && !(rn <= tol*r0) {
		if !h.precondition(r, z) {
			err = fmt.Errorf("preconditioner in PCG iteration %d: %w", res.Iterations+1, ErrNonFinite)
			break
		}
		rzNew := r.Dot(z)
		if res.Iterations == 0 {
			p.Assign(z)
		} else {
			p.Update(1, z, rzNew/rz)
		}
		rz = rzNew
		A.Apply(p, q, false, 1, 0)
		alpha := rz / p.Dot(q)
		x.Update(alpha, p, 1)
		r.Update(-alpha, q, 1)
		res.Iterations++
		rn = r.Norm2()
		res.ResidualHistory = append(res.ResidualHistory, rn)
		slog.Debug("PCG", "iteration", res.Iterations, "residual", rn, "reduction", rn/r0)
		if math.IsNaN(rn) {
			err = fmt.Errorf("PCG iteration %d: %w", res.Iterations, ErrNonFinite)
			break
		}
	}
	res.Converged = err == nil && rn <= tol*r0
	return
}
