package regionmg

import (
	"github.com/notargets/regionmg/config"
	"github.com/notargets/regionmg/dist"
	"github.com/notargets/regionmg/region"
	"github.com/notargets/regionmg/smoother"
)

// VCycle applies one multigrid cycle starting at level l to the regional
// system A x = b, where x and b are consistent across regions. A true
// zeroInitGuess lets the first smoothing sweep ignore x. The result is false
// when a smoother or the coarse solver produced non-finite values; the cycle
// is completed regardless.
func (h *Hierarchy) VCycle(l int, x, b *dist.Vector, zeroInitGuess *bool) (ok bool) {
	if l == len(h.Levels)-1 {
		defer h.tm.Start("vCycle: * - coarsest grid solve")()
		return h.Coarse.Solve(x, b, zeroInitGuess)
	}
	var (
		lvl        = h.Levels[l]
		next       = h.Levels[l+1]
		cycleCount = 1
	)
	if h.CycleType == config.WCycle && l > 0 {
		cycleCount = 2
	}
	ok = true
	for cycle := 0; cycle < cycleCount; cycle++ {
		stop := h.tm.Start("vCycle: 1 - pre-smoother")
		ok = lvl.Smoother.Apply(x, b, zeroInitGuess) && ok
		stop()

		stop = h.tm.Start("vCycle: 2 - compute residual")
		smoother.ComputeResidual(lvl.res, x, b, lvl.A, lvl.Exchange)
		stop()

		stop = h.tm.Start("vCycle: 3 - scale interface")
		region.ScaleInterfaceDOFs(lvl.res, lvl.Scaling, true)
		stop()

		stop = h.tm.Start("vCycle: 4 - create coarse vectors")
		next.x.PutScalar(0)
		region.ApplyMatVec(1, next.Prolongator, lvl.res, 0, next.Exchange, next.b, true, true)
		stop()

		coarseZeroInitGuess := true
		ok = h.VCycle(l+1, next.x, next.b, &coarseZeroInitGuess) && ok

		stop = h.tm.Start("vCycle: 6 - transfer coarse to fine")
		region.ApplyMatVec(1, next.Prolongator, next.x, 0, lvl.Exchange, lvl.cor, false, false)
		stop()

		stop = h.tm.Start("vCycle: 7 - add coarse grid correction")
		x.Update(1, lvl.cor, 1)
		*zeroInitGuess = *zeroInitGuess && coarseZeroInitGuess
		stop()

		stop = h.tm.Start("vCycle: 8 - post-smoother")
		ok = lvl.Smoother.Apply(x, b, zeroInitGuess) && ok
		stop()
	}
	return
}
