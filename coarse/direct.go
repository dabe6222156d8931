package coarse

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/regionmg/dist"
	"github.com/notargets/regionmg/region"
	"github.com/notargets/regionmg/timers"
)

// DefaultDirectSolver is always registered.
const DefaultDirectSolver = "lu"

// DirectBackend factors a composite operator whose row map is numbered
// contiguously from zero.
type DirectBackend interface {
	SymbolicFactorization(A *dist.CrsMatrix) error
	NumericFactorization() error
	SymbolicFactorizationDone() bool
	NumericFactorizationDone() bool
	Solve(x, b *dist.Vector) error
}

var (
	backendMu sync.RWMutex
	backends  = map[string]func() DirectBackend{
		DefaultDirectSolver: func() DirectBackend { return &denseLU{} },
	}
)

func RegisterDirectBackend(name string, f func() DirectBackend) {
	backendMu.Lock()
	defer backendMu.Unlock()
	backends[name] = f
}

func LookupDirectBackend(name string) (DirectBackend, error) {
	backendMu.RLock()
	defer backendMu.RUnlock()
	f, ok := backends[name]
	if !ok {
		names := make([]string, 0, len(backends))
		for n := range backends {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("%w: direct solver %q, available: %v", ErrUnsupported, name, names)
	}
	return f(), nil
}

// denseLU gathers the operator into one dense matrix and factors it with
// partial pivoting.
type denseLU struct {
	A        *dist.CrsMatrix
	idx      *dist.Map
	lu       mat.LU
	symbolic bool
	numeric  bool
}

func (d *denseLU) SymbolicFactorization(A *dist.CrsMatrix) error {
	if !A.RowMap().IsOneToOne() || !slices.Equal(A.RowMap().LocalCounts(), A.DomainMap().LocalCounts()) {
		return fmt.Errorf("dense LU needs a square operator with a one-to-one row map, got %v", A)
	}
	d.A = A
	d.idx = dist.DenseIndex(A.RowMap())
	d.symbolic, d.numeric = true, false
	return nil
}

func (d *denseLU) NumericFactorization() error {
	if !d.symbolic {
		return fmt.Errorf("numeric factorization before symbolic factorization")
	}
	d.lu.Factorize(d.A.ToDense(d.idx))
	if c := d.lu.Cond(); math.IsInf(c, 0) || math.IsNaN(c) || c > 1e15 {
		d.numeric = false
		return fmt.Errorf("coarse composite operator is singular, condition estimate %g", c)
	}
	d.numeric = true
	return nil
}

func (d *denseLU) SymbolicFactorizationDone() bool { return d.symbolic }
func (d *denseLU) NumericFactorizationDone() bool  { return d.numeric }

func (d *denseLU) Solve(x, b *dist.Vector) (err error) {
	if !d.numeric {
		return fmt.Errorf("solve before numeric factorization")
	}
	var (
		rhs = mat.NewVecDense(d.idx.NumGlobal(), b.ToDense(d.idx))
		sol mat.VecDense
	)
	if err = d.lu.SolveVecTo(&sol, false, rhs); err != nil {
		return
	}
	x.FromDense(d.idx, sol.RawVector().Data)
	return
}

// directSolver owns the composite operator of the coarsest level relabeled
// with contiguous GIDs.
type directSolver struct {
	lvl     *Level
	name    string
	contMap *dist.Map
	backend DirectBackend // nil when the requested backend is unavailable
}

func newDirectSolver(lvl *Level, opts Options, tm *timers.Monitor) (d *directSolver) {
	stop := tm.Start("MakeCompositeDirectSolver: 1 - Setup")
	name := opts.DirectSolver
	if name == "" {
		name = DefaultDirectSolver
	}
	d = &directSolver{lvl: lvl, name: name}
	backend, err := LookupDirectBackend(name)
	if err != nil {
		slog.Warn("direct coarse solver unavailable, the coarse solve will be skipped", "error", err)
		stop()
		return
	}
	compA, _ := region.MakeCoarseCompositeOperator(lvl.CompRowMap, lvl.QuasiRegRowMap, lvl.QuasiRegColMap,
		lvl.RowImporter, lvl.A, nil, false)
	d.contMap = region.CreateContinuousCoarseLevelMaps(compA.RowMap())
	contA := relabel(compA, d.contMap)
	if err = backend.SymbolicFactorization(contA); err != nil {
		panic(fmt.Sprintf("direct solver %s: symbolic factorization: %v", name, err))
	}
	stop()

	stop = tm.Start("MakeCompositeDirectSolver: 2 - Factorization")
	defer stop()
	if err = backend.NumericFactorization(); err != nil {
		panic(fmt.Sprintf("direct solver %s: numeric factorization: %v", name, err))
	}
	d.backend = backend
	return
}

// relabel moves the entries of the square composite operator A onto the
// contiguous map with the same layout.
func relabel(A *dist.CrsMatrix, contMap *dist.Map) (B *dist.CrsMatrix) {
	var (
		rowMap  = A.RowMap()
		comm    = rowMap.Comm()
		entries = make([][]dist.Entry, comm.Size())
		newGID  = func(gid int) int {
			o, ok := rowMap.Owner(gid)
			if !ok {
				panic(fmt.Sprintf("column GID %d is not a row of the composite operator", gid))
			}
			return contMap.GID(o.Rank, o.LID)
		}
	)
	comm.ForEach(func(rank int) {
		for _, e := range A.GlobalEntries(rank) {
			entries[rank] = append(entries[rank], dist.Entry{Row: newGID(e.Row), Col: newGID(e.Col), Val: e.Val})
		}
	})
	B = dist.AssembleCrsMatrix(contMap, nil, contMap, contMap, entries)
	B.SetBlockSize(A.BlockSize())
	B.SetLabel(A.Label())
	return
}

func (d *directSolver) Kind() Kind { return Direct }

func (d *directSolver) Solve(x, b *dist.Vector, zeroInitGuess *bool) bool {
	*zeroInitGuess = false
	if d.backend == nil {
		slog.Warn("skipping coarse solve, direct solver unavailable", "solver", d.name, "level", d.lvl.Index)
		x.PutScalar(0)
		return true
	}
	if !d.backend.NumericFactorizationDone() {
		slog.Warn("coarse direct solver has no factorization, factoring now", "solver", d.name)
		if !d.backend.SymbolicFactorizationDone() {
			panic(fmt.Sprintf("direct solver %s lost its symbolic factorization", d.name))
		}
		if err := d.backend.NumericFactorization(); err != nil {
			panic(fmt.Sprintf("direct solver %s: numeric factorization: %v", d.name, err))
		}
	}
	var (
		compB = toComposite(d.lvl, b)
		compX = dist.NewVector(d.lvl.CompRowMap)
	)
	compB.ReplaceMap(d.contMap)
	compX.ReplaceMap(d.contMap)
	if err := d.backend.Solve(compX, compB); err != nil {
		slog.Warn("coarse direct solve failed", "solver", d.name, "error", err)
	}
	compX.ReplaceMap(d.lvl.CompRowMap)
	return toRegional(d.lvl, compX, x)
}
