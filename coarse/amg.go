package coarse

import (
	"fmt"
	"log/slog"

	"github.com/notargets/regionmg/amg"
	"github.com/notargets/regionmg/dist"
	"github.com/notargets/regionmg/partition"
	"github.com/notargets/regionmg/region"
	"github.com/notargets/regionmg/timers"
)

// amgSolver runs one composite AMG cycle per coarse solve. With rebalancing
// the hierarchy lives on the rebalanced rows and importer moves vectors there
// and back.
type amgSolver struct {
	lvl      *Level
	h        *amg.CompositeHierarchy
	importer *dist.Import
}

func newAMGSolver(lvl *Level, opts Options, tm *timers.Monitor) (s *amgSolver) {
	s = &amgSolver{lvl: lvl}
	keepCoords := opts.KeepCoarseCoords && lvl.Coordinates != nil
	if !keepCoords {
		slog.Warn("you requested a coarse AMG solver but you did not request coarse coordinates to be kept, " +
			"repartitioning is not possible!")
	}
	compA, compCoords := region.MakeCoarseCompositeOperator(lvl.CompRowMap, lvl.QuasiRegRowMap,
		lvl.QuasiRegColMap, lvl.RowImporter, lvl.A, lvl.Coordinates, keepCoords)

	if keepCoords && opts.Rebalance {
		stop := tm.Start("RebalanceCoarseCompositeOperator: ")
		name := opts.Partitioner
		if name == "" {
			name = partition.DefaultPartitioner
		}
		p, err := partition.Lookup(name)
		if err != nil {
			slog.Warn("falling back to the default partitioner", "error", err)
			p, _ = partition.Lookup(partition.DefaultPartitioner)
		}
		compA, compCoords, s.importer, err = partition.RebalanceCoarseCompositeOperator(
			opts.RebalanceNumPartitions, compA, compCoords, p)
		if err != nil {
			panic(fmt.Sprintf("rebalancing the coarse composite operator: %v", err))
		}
		stop()
	}

	var nullspace *dist.MultiVector
	if keepCoords {
		nullspace = amg.BuildNullspace(compA, compCoords)
	}
	h, err := amg.NewCompositeHierarchy(compA, opts.AMG, nullspace)
	if err != nil {
		panic(fmt.Sprintf("coarse AMG setup: %v", err))
	}
	s.h = h
	slog.Debug("coarse AMG solver", "levels", h.NumLevels(), "rows", compA.NumGlobalRows(),
		"rebalanced", s.importer != nil)
	return
}

func (s *amgSolver) Kind() Kind { return AMG }

func (s *amgSolver) Solve(x, b *dist.Vector, zeroInitGuess *bool) bool {
	*zeroInitGuess = false
	var (
		compB = toComposite(s.lvl, b)
		compX = dist.NewVector(s.lvl.CompRowMap)
	)
	if s.importer == nil {
		s.h.Iterate(compB, compX, 1, true)
		return toRegional(s.lvl, compX, x)
	}
	var (
		rebB = dist.NewVector(s.importer.Target())
		rebX = dist.NewVector(s.importer.Target())
	)
	rebB.DoImport(compB, s.importer, dist.Insert)
	s.h.Iterate(rebB, rebX, 1, true)
	compX.DoExport(rebX, s.importer, dist.Insert)
	return toRegional(s.lvl, compX, x)
}
