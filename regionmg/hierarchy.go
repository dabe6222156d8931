// Package regionmg builds and applies region multigrid hierarchies. Every
// level keeps its operator split into regions; only the coarsest level may
// fall back to a composite solve.
package regionmg

import (
	"fmt"
	"log/slog"

	"github.com/notargets/regionmg/amg"
	"github.com/notargets/regionmg/coarse"
	"github.com/notargets/regionmg/config"
	"github.com/notargets/regionmg/dist"
	"github.com/notargets/regionmg/gallery"
	"github.com/notargets/regionmg/region"
	"github.com/notargets/regionmg/smoother"
	"github.com/notargets/regionmg/timers"
)

// SetupInput is the finest level in region layout.
type SetupInput struct {
	Dim          int
	LNodesPerDim [][3]int // Region box size per rank
	DofsPerNode  int

	CompRowMap                     *dist.Map
	RegRowMap, RegColMap           *dist.Map
	QuasiRegRowMap, QuasiRegColMap *dist.Map
	RowImporter                    *dist.Import
	RegA                           *dist.CrsMatrix

	CompositeToRegionLIDs [][]int
	RegionsPerLID         [][][]int

	Coordinates *dist.MultiVector // Regional node coordinates, optional
	Nullspace   *dist.MultiVector // Regional nullspace, optional
}

func NewSetupInput(p *gallery.Problem) *SetupInput {
	return &SetupInput{
		Dim:                   p.Spec.Dim,
		LNodesPerDim:          p.LNodesPerDim,
		DofsPerNode:           max(p.Spec.DofsPerNode, 1),
		CompRowMap:            p.CompRowMap,
		RegRowMap:             p.RegRowMap,
		RegColMap:             p.RegA.ColMap(),
		QuasiRegRowMap:        p.QuasiRegRowMap,
		QuasiRegColMap:        p.QuasiRegRowMap,
		RowImporter:           p.RowImporter,
		RegA:                  p.RegA,
		CompositeToRegionLIDs: p.CompositeToRegionLIDs,
		RegionsPerLID:         p.RegionsPerLID,
		Coordinates:           p.RegCoords,
	}
}

// Level holds everything the V-cycle touches on one level.
type Level struct {
	*region.LevelMaps
	Index    int
	A        *dist.CrsMatrix
	Scaling  *dist.Vector
	Smoother *smoother.State // nil on the coarsest level

	x, b     *dist.Vector // Coarse correction problem solved on this level
	res, cor *dist.Vector
}

type Hierarchy struct {
	Levels    []*Level
	CycleType config.CycleType
	Coarse    coarse.Solver

	tm *timers.Monitor
}

func (h *Hierarchy) NumLevels() int { return len(h.Levels) }

// CreateRegionHierarchy coarsens the regional operator, reconstructs the maps
// of every coarse level, and sets up the smoothers and the coarse solver.
// A nil params uses config.Default. Invalid parameters are fatal.
func CreateRegionHierarchy(in *SetupInput, params *config.Parameters, tm *timers.Monitor) (h *Hierarchy) {
	defer tm.Start("createRegionHierarchy")()
	if params == nil {
		params = config.Default()
	}
	if err := params.Validate(); err != nil {
		panic(err.Error())
	}
	coarseOpts, err := params.CoarseOptions()
	if err != nil {
		panic(err.Error())
	}
	checkInput(in)

	stop := tm.Start("createRegionHierarchy: Hierarchy")
	rh := amg.RegionSetup(in.RegA, amg.RegionSetupInput{
		Dim:          in.Dim,
		LNodesPerDim: in.LNodesPerDim,
		DofsPerNode:  in.DofsPerNode,
		Coordinates:  in.Coordinates,
		Nullspace:    in.Nullspace,
	}, amg.RegionParams{
		MaxLevels:      params.MaxRegionLevels,
		CoarseningRate: params.CoarseningRate,
		CoarseMaxSize:  params.CoarseMaxSize,
	})
	stop()

	stop = tm.Start("createRegionHierarchy: ExtractData")
	var (
		numLevels = rh.NumLevels()
		maps      = make([]*region.LevelMaps, numLevels)
	)
	h = &Hierarchy{
		Levels:    make([]*Level, numLevels),
		CycleType: params.CycleType,
		tm:        tm,
	}
	dofs := region.ClassifyDOFs(params.MaxRegionsPerGID, in.RegRowMap, in.QuasiRegRowMap,
		in.CompositeToRegionLIDs, in.RegionsPerLID)
	maps[0] = &region.LevelMaps{
		RegRowMap:      in.RegRowMap,
		RegColMap:      in.RegColMap,
		QuasiRegRowMap: in.QuasiRegRowMap,
		QuasiRegColMap: in.QuasiRegColMap,
		CompRowMap:     in.CompRowMap,
		RowImporter:    in.RowImporter,
		DOFs:           dofs,
		Exchange:       region.SetupMatVec(dofs, in.CompRowMap),
	}
	for l := 1; l < numLevels; l++ {
		maps[l] = &region.LevelMaps{Prolongator: rh.P(l)}
	}
	var coarseCoords *dist.MultiVector
	if params.KeepCoarseCoordinates {
		coarseCoords = rh.Coordinates(numLevels - 1)
	}
	for l := range h.Levels {
		h.Levels[l] = &Level{LevelMaps: maps[l], Index: l, A: rh.A(l)}
	}
	stop()

	stop = tm.Start("createRegionHierarchy: MakeCoarseLevel")
	region.MakeCoarseLevelMaps(params.MaxRegionsPerGID, in.CompositeToRegionLIDs, maps)
	stop()

	stop = tm.Start("createRegionHierarchy: MakeInterfaceScaling")
	var (
		compRowMaps  = make([]*dist.Map, numLevels)
		regRowMaps   = make([]*dist.Map, numLevels)
		rowImporters = make([]*dist.Import, numLevels)
	)
	for l, m := range maps {
		compRowMaps[l], regRowMaps[l], rowImporters[l] = m.CompRowMap, m.RegRowMap, m.RowImporter
	}
	scalings := region.MakeInterfaceScalingFactors(numLevels, compRowMaps, regRowMaps, rowImporters)
	for l, lvl := range h.Levels {
		lvl.Scaling = scalings[l]
		lvl.x = dist.NewVector(lvl.RegRowMap)
		lvl.b = dist.NewVector(lvl.RegRowMap)
		lvl.res = dist.NewVector(lvl.RegRowMap)
		lvl.cor = dist.NewVector(lvl.RegRowMap)
	}
	stop()

	stop = tm.Start("createRegionHierarchy: SmootherSetup")
	for l := 0; l < numLevels-1; l++ {
		lvl := h.Levels[l]
		sp := params.Smoother
		sp.Level = l
		lvl.Smoother = smoother.Setup(sp, lvl.RegRowMap, lvl.A, lvl.Scaling, lvl.RowImporter, lvl.Exchange)
	}
	stop()

	stop = tm.Start("createRegionHierarchy: CreateCoarseSolver")
	last := h.Levels[numLevels-1]
	h.Coarse = coarse.Make(&coarse.Level{
		Index:          last.Index,
		RegRowMap:      last.RegRowMap,
		QuasiRegRowMap: last.QuasiRegRowMap,
		QuasiRegColMap: last.QuasiRegColMap,
		CompRowMap:     last.CompRowMap,
		RowImporter:    last.RowImporter,
		A:              last.A,
		Scaling:        last.Scaling,
		Exchange:       last.Exchange,
		Coordinates:    coarseCoords,
	}, coarseOpts, tm)
	stop()

	slog.Info("region hierarchy", "levels", numLevels, "cycle", h.CycleType,
		"coarse solver", h.Coarse.Kind(), "coarse composite rows", last.CompRowMap.NumGlobal())
	return
}

func checkInput(in *SetupInput) {
	switch {
	case in == nil || in.RegA == nil:
		panic("region hierarchy needs a regional operator")
	case in.RegRowMap == nil || in.QuasiRegRowMap == nil || in.CompRowMap == nil || in.RowImporter == nil:
		panic("region hierarchy needs the regional, quasi-regional and composite row maps and the row importer")
	case !in.RegA.RowMap().IsSameAs(in.RegRowMap):
		panic(fmt.Sprintf("incompatible maps: regional operator rows %v, regional row map %v",
			in.RegA.RowMap(), in.RegRowMap))
	}
	if in.RegColMap == nil {
		in.RegColMap = in.RegA.ColMap()
	}
	if in.QuasiRegColMap == nil {
		in.QuasiRegColMap = in.QuasiRegRowMap
	}
}
