// Package smoother relaxes regional systems. Solutions and right hand sides
// are kept consistent across regions: every copy of an interface unknown holds
// the full composite value.
package smoother

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/regionmg/dist"
	"github.com/notargets/regionmg/region"
)

type Type string

const (
	Jacobi    Type = "Jacobi"
	Chebyshev Type = "Chebyshev"
)

func ParseType(s string) (t Type, err error) {
	switch Type(s) {
	case Jacobi, Chebyshev:
		t = Type(s)
	default:
		err = fmt.Errorf("unknown smoother type %q", s)
	}
	return
}

type Params struct {
	Type            Type    `json:"smoother: type"`
	Sweeps          int     `json:"smoother: sweeps"`
	Damping         float64 `json:"smoother: damping"`
	ChebyshevDegree int     `json:"smoother: Chebyshev degree"`
	ChebyshevRatio  float64 `json:"smoother: Chebyshev eigRatio"`
	PowerIterations int     `json:"smoother: power iterations"`
	Level           int     `json:"-"`
}

func DefaultParams() Params {
	return Params{
		Type:            Jacobi,
		Sweeps:          1,
		Damping:         0.67,
		ChebyshevDegree: 2,
		ChebyshevRatio:  20,
		PowerIterations: 10,
	}
}

// WithDefaults fills unset fields from DefaultParams.
func (p Params) WithDefaults() Params {
	def := DefaultParams()
	if p.Type == "" {
		p.Type = def.Type
	}
	if p.Sweeps < 1 {
		p.Sweeps = def.Sweeps
	}
	if p.Damping <= 0 {
		p.Damping = def.Damping
	}
	if p.ChebyshevDegree < 1 {
		p.ChebyshevDegree = def.ChebyshevDegree
	}
	if p.ChebyshevRatio <= 1 {
		p.ChebyshevRatio = def.ChebyshevRatio
	}
	if p.PowerIterations < 1 {
		p.PowerIterations = def.PowerIterations
	}
	return p
}

// State is a smoother ready to be applied on one level.
type State struct {
	params    Params
	A         *dist.CrsMatrix
	ex        *region.InterfaceExchange
	scaling   *dist.Vector
	diag      *dist.Vector // Composite diagonal in regional layout
	invDiag   *dist.Vector
	lambdaMax float64
	res, dir  *dist.Vector
}

// Setup prepares the smoother of a regional operator. The composite diagonal
// is recovered by summing the regional diagonals across interfaces. The row
// importer supplies the composite GIDs the eigenvalue estimate starts from.
func Setup(params Params, regRowMap *dist.Map, A *dist.CrsMatrix, scaling *dist.Vector,
	rowImporter *dist.Import, ex *region.InterfaceExchange) (s *State) {
	params = params.WithDefaults()
	if !A.RowMap().IsSameAs(regRowMap) {
		panic(fmt.Sprintf("incompatible maps: smoother on level %d got an operator on %v for rows %v",
			params.Level, A.RowMap(), regRowMap))
	}
	if !scaling.Map().HasSameLayout(regRowMap) || !rowImporter.Target().HasSameLayout(regRowMap) {
		panic(fmt.Sprintf("incompatible maps: scaling or row importer of level %d", params.Level))
	}
	s = &State{
		params:  params,
		A:       A,
		ex:      ex,
		scaling: scaling,
		res:     dist.NewVector(regRowMap),
		dir:     dist.NewVector(regRowMap),
	}
	s.diag = A.Diagonal()
	ex.SumInterfaceValues(s.diag)
	s.invDiag = dist.NewVector(regRowMap)
	s.invDiag.Reciprocal(s.diag)
	switch params.Type {
	case Jacobi:
	case Chebyshev:
		s.lambdaMax = s.estimateLambdaMax(rowImporter.Target())
		slog.Debug("Chebyshev smoother", "level", params.Level, "lambda max", s.lambdaMax)
	default:
		panic(fmt.Sprintf("unknown smoother type %q", params.Type))
	}
	return
}

func (s *State) Params() Params { return s.params }

// LambdaMax bounds the largest eigenvalue of D^-1 A from above, zero for
// Jacobi.
func (s *State) LambdaMax() float64 { return s.lambdaMax }

// Apply relaxes x in place. A true zeroInitGuess lets the first sweep skip the
// residual computation; it is false on return. The result reports whether x
// is still finite.
func (s *State) Apply(x, b *dist.Vector, zeroInitGuess *bool) (ok bool) {
	switch s.params.Type {
	case Jacobi:
		s.jacobi(x, b, *zeroInitGuess)
	case Chebyshev:
		s.chebyshev(x, b, *zeroInitGuess)
	}
	*zeroInitGuess = false
	if ok = !x.HasNonFinite(); !ok {
		slog.Warn("smoother produced non-finite values", "level", s.params.Level, "type", s.params.Type)
	}
	return
}

func (s *State) jacobi(x, b *dist.Vector, zeroGuess bool) {
	omega := s.params.Damping
	for sweep := 0; sweep < s.params.Sweeps; sweep++ {
		if zeroGuess && sweep == 0 {
			x.ElementWiseMultiply(omega, s.invDiag, b, 0)
			continue
		}
		ComputeResidual(s.res, x, b, s.A, s.ex)
		x.ElementWiseMultiply(omega, s.invDiag, s.res, 1)
	}
}

func (s *State) chebyshev(x, b *dist.Vector, zeroGuess bool) {
	var (
		lmax  = s.lambdaMax
		lmin  = lmax / s.params.ChebyshevRatio
		theta = (lmax + lmin) / 2
		delta = (lmax - lmin) / 2
		sigma = theta / delta
	)
	for sweep := 0; sweep < s.params.Sweeps; sweep++ {
		if zeroGuess && sweep == 0 {
			s.res.Assign(b)
		} else {
			ComputeResidual(s.res, x, b, s.A, s.ex)
		}
		s.dir.ElementWiseMultiply(1/theta, s.invDiag, s.res, 0)
		x.Update(1, s.dir, 1)
		rho := 1 / sigma
		for k := 1; k < s.params.ChebyshevDegree; k++ {
			rhoNew := 1 / (2*sigma - rho)
			ComputeResidual(s.res, x, b, s.A, s.ex)
			s.dir.Scale(rhoNew * rho)
			s.dir.ElementWiseMultiply(2*rhoNew/delta, s.invDiag, s.res, 1)
			x.Update(1, s.dir, 1)
			rho = rhoNew
		}
	}
}

// estimateLambdaMax runs power iterations on D^-1 A in the D inner product,
// counting each interface unknown once. D^-1 A is self-adjoint there, so the
// Rayleigh quotients approach the largest eigenvalue from below. The boosted
// estimate is raised to the Gershgorin bound when it falls short of it.
func (s *State) estimateLambdaMax(quasiRegRowMap *dist.Map) float64 {
	var (
		v = dist.NewVectorFromGlobal(quasiRegRowMap, func(gid int) float64 {
			// Oscillating start so the dominant modes are present from the first step
			return float64(1-2*(gid%2)) * (1 + 0.1*float64(gid%3))
		})
		w = dist.NewVector(quasiRegRowMap)
	)
	var lambda float64
	v.ReplaceMap(s.A.RowMap())
	w.ReplaceMap(s.A.RowMap())
	v.Scale(1 / math.Sqrt(s.dotD(v, v)))
	for it := 0; it < s.params.PowerIterations; it++ {
		region.ApplyMatVec(1, s.A, v, 0, s.ex, w, false, true)
		w.ElementWiseMultiply(1, s.invDiag, w, 0)
		lambda = s.dotD(v, w)
		nrm := math.Sqrt(s.dotD(w, w))
		if nrm == 0 {
			break
		}
		v.Assign(w)
		v.Scale(1 / nrm)
	}
	bound := s.gershgorinBound()
	slog.Debug("Chebyshev eigenvalue estimate", "level", s.params.Level,
		"rayleigh", lambda, "gershgorin", bound)
	return math.Max(1.1*lambda, bound)
}

// dotD is the D weighted inner product of consistent regional vectors.
func (s *State) dotD(x, y *dist.Vector) float64 {
	return x.Comm().SumAll(func(rank int) (sum float64) {
		xx, yy, d, m := x.Local(rank), y.Local(rank), s.diag.Local(rank), s.scaling.Local(rank)
		for i := range xx {
			sum += xx[i] * yy[i] * d[i] / m[i]
		}
		return
	})
}

// gershgorinBound is max_i sum_j |a_ij| / a_ii with the regional row sums
// added across interfaces, which can only overestimate the composite sums.
func (s *State) gershgorinBound() float64 {
	sums := dist.NewVector(s.A.RowMap())
	s.A.RowMap().Comm().ForEach(func(rank int) {
		lm, ss := s.A.Local(rank), sums.Local(rank)
		for i := range ss {
			_, vals := lm.Row(i)
			ss[i] = floats.Norm(vals, 1)
		}
	})
	s.ex.SumInterfaceValues(sums)
	sums.ElementWiseMultiply(1, s.invDiag, sums, 0)
	return sums.NormInf()
}

// ComputeResidual sets res = b - A x, consistent across regions.
func ComputeResidual(res, x, b *dist.Vector, A *dist.CrsMatrix, ex *region.InterfaceExchange) {
	res.Assign(b)
	region.ApplyMatVec(-1, A, x, 1, ex, res, false, true)
}
