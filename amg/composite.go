package amg

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/regionmg/dist"
)

var ErrSingular = errors.New("coarsest operator is singular")

type CompositeParams struct {
	MaxLevels     int     `json:"max levels"`
	CoarseMaxSize int     `json:"coarse: max size"`
	DropTolerance float64 `json:"aggregation: drop tol"`
	Sweeps        int     `json:"smoother: sweeps"`
	Damping       float64 `json:"smoother: damping factor"`
}

func DefaultCompositeParams() CompositeParams {
	return CompositeParams{
		MaxLevels:     10,
		CoarseMaxSize: 100,
		Sweeps:        2,
		Damping:       2. / 3.,
	}
}

func (p *CompositeParams) setDefaults() {
	def := DefaultCompositeParams()
	if p.MaxLevels < 1 {
		p.MaxLevels = def.MaxLevels
	}
	if p.CoarseMaxSize < 1 {
		p.CoarseMaxSize = def.CoarseMaxSize
	}
	if p.Sweeps < 1 {
		p.Sweeps = def.Sweeps
	}
	if p.Damping <= 0 {
		p.Damping = def.Damping
	}
}

type compositeLevel struct {
	A, P    *dist.CrsMatrix // P maps this level into the level above, nil on level 0
	invDiag *dist.Vector
}

// CompositeHierarchy is an aggregation multigrid hierarchy for a composite
// operator with damped Jacobi smoothing and a dense LU solve on the coarsest
// level.
type CompositeHierarchy struct {
	params   CompositeParams
	levels   []*compositeLevel
	denseIdx *dist.Map
	lu       mat.LU
}

// NewCompositeHierarchy coarsens A until the coarse size limit, the level
// limit, or until aggregation stops reducing the problem.
func NewCompositeHierarchy(A *dist.CrsMatrix, params CompositeParams,
	nullspace *dist.MultiVector) (h *CompositeHierarchy, err error) {
	params.setDefaults()
	if nullspace == nil {
		nullspace = BuildNullspace(A, nil)
	}
	h = &CompositeHierarchy{params: params}
	var (
		cur = A
		ns  = nullspace
		bs  = A.BlockSize()
	)
	h.levels = append(h.levels, &compositeLevel{A: A, invDiag: inverseDiagonal(A)})
	for len(h.levels) < params.MaxLevels && cur.NumGlobalRows() > params.CoarseMaxSize {
		agg := aggregate(cur, bs, params.DropTolerance)
		P, coarseNS := tentativeProlongator(cur.RowMap(), bs, ns, agg)
		if P.DomainMap().NumGlobal() >= cur.NumGlobalRows() {
			break
		}
		Ac := dist.TripleProduct(P.Transpose(), cur, P)
		Ac = fixZeroDiagonal(Ac)
		Ac.SetBlockSize(ns.NumVectors())
		Ac.SetLabel(fmt.Sprintf("composite AMG level %d", len(h.levels)))
		h.levels = append(h.levels, &compositeLevel{A: Ac, P: P, invDiag: inverseDiagonal(Ac)})
		cur, ns, bs = Ac, coarseNS, ns.NumVectors()
	}
	coarsest := h.levels[len(h.levels)-1].A
	h.denseIdx = dist.DenseIndex(coarsest.RowMap())
	h.lu.Factorize(coarsest.ToDense(h.denseIdx))
	if c := h.lu.Cond(); math.IsInf(c, 0) || math.IsNaN(c) || c > 1e15 {
		return nil, fmt.Errorf("%w: condition estimate %g", ErrSingular, c)
	}
	slog.Debug("composite AMG hierarchy", "levels", len(h.levels), "coarse rows", coarsest.NumGlobalRows())
	return
}

func (h *CompositeHierarchy) NumLevels() int { return len(h.levels) }

func (h *CompositeHierarchy) A(l int) *dist.CrsMatrix { return h.levels[l].A }

// Iterate runs numCycles V-cycles on A x = b. With zeroGuess the incoming x
// is ignored on the first cycle.
func (h *CompositeHierarchy) Iterate(b, x *dist.Vector, numCycles int, zeroGuess bool) {
	for c := 0; c < numCycles; c++ {
		h.cycle(0, b, x, zeroGuess && c == 0)
	}
}

func (h *CompositeHierarchy) cycle(l int, b, x *dist.Vector, zeroGuess bool) {
	lvl := h.levels[l]
	if l == len(h.levels)-1 {
		h.coarseSolve(b, x)
		return
	}
	h.jacobi(lvl, b, x, zeroGuess)
	var (
		next = h.levels[l+1]
		res  = dist.NewVector(lvl.A.RangeMap())
		bc   = dist.NewVector(next.A.RangeMap())
		xc   = dist.NewVector(next.A.DomainMap())
	)
	residual(lvl.A, x, b, res)
	next.P.Apply(res, bc, true, 1, 0)
	h.cycle(l+1, bc, xc, true)
	next.P.Apply(xc, x, false, 1, 1)
	h.jacobi(lvl, b, x, false)
}

func (h *CompositeHierarchy) coarseSolve(b, x *dist.Vector) {
	var (
		rhs = mat.NewVecDense(h.denseIdx.NumGlobal(), b.ToDense(h.denseIdx))
		sol mat.VecDense
	)
	if err := h.lu.SolveVecTo(&sol, false, rhs); err != nil {
		slog.Warn("composite AMG coarse solve", "error", err)
	}
	x.FromDense(h.denseIdx, sol.RawVector().Data)
}

func (h *CompositeHierarchy) jacobi(lvl *compositeLevel, b, x *dist.Vector, zeroGuess bool) {
	omega := h.params.Damping
	res := dist.NewVector(lvl.A.RangeMap())
	for sweep := 0; sweep < h.params.Sweeps; sweep++ {
		if zeroGuess && sweep == 0 {
			x.ElementWiseMultiply(omega, lvl.invDiag, b, 0)
			continue
		}
		residual(lvl.A, x, b, res)
		x.ElementWiseMultiply(omega, lvl.invDiag, res, 1)
	}
}

func residual(A *dist.CrsMatrix, x, b, res *dist.Vector) {
	res.Assign(b)
	A.Apply(x, res, false, -1, 1)
}

func inverseDiagonal(A *dist.CrsMatrix) (inv *dist.Vector) {
	d := A.Diagonal()
	inv = dist.NewVector(d.Map())
	inv.Reciprocal(d)
	return
}

// fixZeroDiagonal puts a unit diagonal on rows that lost every entry during
// the Galerkin product, which happens for dependent nullspace columns.
func fixZeroDiagonal(A *dist.CrsMatrix) *dist.CrsMatrix {
	var (
		comm    = A.RowMap().Comm()
		diag    = A.Diagonal()
		entries = make([][]dist.Entry, comm.Size())
		fixed   int
	)
	for rank := 0; rank < comm.Size(); rank++ {
		entries[rank] = A.GlobalEntries(rank)
		for lid, d := range diag.Local(rank) {
			if d == 0 {
				gid := A.RowMap().GID(rank, lid)
				entries[rank] = append(entries[rank], dist.Entry{Row: gid, Col: gid, Val: 1})
				fixed++
			}
		}
	}
	if fixed == 0 {
		return A
	}
	slog.Debug("fixed zero diagonal entries", "count", fixed)
	return dist.AssembleCrsMatrix(A.RowMap(), nil, A.DomainMap(), A.RangeMap(), entries)
}
