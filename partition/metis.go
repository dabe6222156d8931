//go:build cgo && metis

package partition

import (
	"fmt"
	"log/slog"

	metis "github.com/notargets/go-metis"
)

func init() {
	Register("metis", func() Partitioner { return &Metis{Imbalance: 1.05, Objective: "vol"} })
}

// Metis partitions the node graph with multilevel k-way METIS. Coordinates
// are not used.
type Metis struct {
	Imbalance float32 // e.g. 1.05 for 5% imbalance
	Objective string  // "cut" or "vol"
}

func (m *Metis) Name() string { return "metis" }

func (m *Metis) Partition(g *Graph, _ [][]float64, nparts int) (part []int, err error) {
	if nparts < 1 {
		return nil, fmt.Errorf("need at least one part, got %d", nparts)
	}
	part = make([]int, g.NumVertices())
	if nparts == 1 || g.NumVertices() == 0 {
		return
	}
	opts := make([]int32, metis.NoOptions)
	if err = metis.SetDefaultOptions(opts); err != nil {
		return nil, fmt.Errorf("failed to set METIS options: %w", err)
	}
	if m.Objective == "vol" {
		opts[metis.OptionObjType] = metis.ObjTypeVol
	} else {
		opts[metis.OptionObjType] = metis.ObjTypeCut
	}
	ubvec := []float32{m.Imbalance}
	p32, objval, err := metis.PartGraphKwayWeighted(
		g.Xadj, g.Adjncy, g.VWgt, g.AdjWgt,
		int32(nparts), nil, ubvec, opts,
	)
	if err != nil {
		return nil, fmt.Errorf("METIS partitioning failed: %w", err)
	}
	for i, p := range p32 {
		part[i] = int(p)
	}
	slog.Debug("METIS partition", "parts", nparts, "objective", m.Objective, "value", objval)
	return
}
