// Package coarse solves the coarsest level of a region hierarchy. The
// solution and right hand side stay in the consistent regional layout, the
// direct and AMG variants work on the composite operator of the level.
package coarse

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/notargets/regionmg/amg"
	"github.com/notargets/regionmg/dist"
	"github.com/notargets/regionmg/region"
	"github.com/notargets/regionmg/smoother"
	"github.com/notargets/regionmg/timers"
)

var ErrUnsupported = errors.New("unsupported coarse solver")

type Kind uint8

const (
	Smoother Kind = iota
	Direct
	AMG
)

func (k Kind) String() string {
	switch k {
	case Smoother:
		return "smoother"
	case Direct:
		return "direct"
	case AMG:
		return "amg"
	}
	return fmt.Sprintf("Kind(%d)", k)
}

func ParseKind(s string) (k Kind, err error) {
	switch s {
	case "smoother":
		k = Smoother
	case "direct":
		k = Direct
	case "amg":
		k = AMG
	default:
		err = fmt.Errorf("%w: coarse solver type %q, want smoother, direct or amg", ErrUnsupported, s)
	}
	return
}

// Solver replaces x by an approximate solution of the coarsest regional
// system. It reports false when x is no longer finite.
type Solver interface {
	Kind() Kind
	Solve(x, b *dist.Vector, zeroInitGuess *bool) (ok bool)
}

// Level is what the coarse solvers need from the coarsest level.
type Level struct {
	Index                          int
	RegRowMap                      *dist.Map
	QuasiRegRowMap, QuasiRegColMap *dist.Map
	CompRowMap                     *dist.Map
	RowImporter                    *dist.Import
	A                              *dist.CrsMatrix
	Scaling                        *dist.Vector
	Exchange                       *region.InterfaceExchange
	Coordinates                    *dist.MultiVector // Regional node coordinates, nil unless kept
}

type Options struct {
	Kind                   Kind
	Smoother               smoother.Params
	AMG                    amg.CompositeParams
	DirectSolver           string
	Rebalance              bool
	RebalanceNumPartitions int
	Partitioner            string
	KeepCoarseCoords       bool
}

// Make sets up the coarse solver of lvl. Setup failures of the direct and
// AMG variants are fatal.
func Make(lvl *Level, opts Options, tm *timers.Monitor) Solver {
	switch opts.Kind {
	case Smoother:
		params := opts.Smoother
		params.Level = lvl.Index
		return &smootherSolver{
			state: smoother.Setup(params, lvl.RegRowMap, lvl.A, lvl.Scaling, lvl.RowImporter, lvl.Exchange),
		}
	case Direct:
		return newDirectSolver(lvl, opts, tm)
	case AMG:
		return newAMGSolver(lvl, opts, tm)
	}
	panic(fmt.Sprintf("unknown coarse solver kind %v", opts.Kind))
}

type smootherSolver struct {
	state *smoother.State
}

func (s *smootherSolver) Kind() Kind { return Smoother }

func (s *smootherSolver) Solve(x, b *dist.Vector, zeroInitGuess *bool) bool {
	return s.state.Apply(x, b, zeroInitGuess)
}

// toComposite sums the consistent regional vector b into a composite vector
// after dividing by the interface multiplicity, b itself is left untouched.
func toComposite(lvl *Level, b *dist.Vector) (comp *dist.Vector) {
	scaled := b.Copy()
	region.ScaleInterfaceDOFs(scaled, lvl.Scaling, true)
	comp = dist.NewVector(lvl.CompRowMap)
	region.RegionalToComposite(scaled, comp, lvl.RowImporter, dist.Add)
	return
}

func toRegional(lvl *Level, comp, x *dist.Vector) (ok bool) {
	_, reg := region.CompositeToRegional(comp, lvl.RegRowMap, lvl.RowImporter)
	x.Assign(reg)
	if ok = !x.HasNonFinite(); !ok {
		slog.Warn("coarse solve produced non-finite values", "level", lvl.Index)
	}
	return
}
