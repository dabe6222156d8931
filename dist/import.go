package dist

import (
	"fmt"
	"math"
)

// CombineMode selects how transferred values merge with the values already
// present at the destination.
type CombineMode uint8

const (
	Add CombineMode = iota
	Insert
	Replace
	AbsMax
)

func (cm CombineMode) String() string {
	switch cm {
	case Add:
		return "ADD"
	case Insert:
		return "INSERT"
	case Replace:
		return "REPLACE"
	case AbsMax:
		return "ABSMAX"
	}
	return fmt.Sprintf("CombineMode(%d)", uint8(cm))
}

func (cm CombineMode) combine(dst []float64, lid int, val float64) {
	switch cm {
	case Add:
		dst[lid] += val
	case Insert, Replace:
		dst[lid] = val
	case AbsMax:
		dst[lid] = math.Max(math.Abs(dst[lid]), math.Abs(val))
	default:
		panic(fmt.Sprintf("unknown combine mode %v", cm))
	}
}

type link struct {
	Rank, SrcLID, TgtLID int
}

// Import is the communication plan that moves data from a one-to-one source
// map onto a target map whose GIDs all exist in the source. The forward
// direction is DoImport, the reverse direction is DoExport.
type Import struct {
	source, target *Map
	recvFrom       [][]link // per target rank, Rank is the source rank
	sendTo         [][]link // per source rank, Rank is the target rank
}

func NewImport(source, target *Map) *Import {
	if source.Comm() != target.Comm() {
		panic("incompatible maps: import source and target live on different communicators")
	}
	if !source.IsOneToOne() {
		panic("incompatible maps: import source map is not one-to-one")
	}
	np := source.Comm().Size()
	imp := &Import{
		source:   source,
		target:   target,
		recvFrom: make([][]link, np),
		sendTo:   make([][]link, np),
	}
	for rank := 0; rank < np; rank++ {
		for lid, gid := range target.ElementList(rank) {
			o, ok := source.Owner(gid)
			if !ok {
				panic(fmt.Sprintf("incompatible maps: GID %d of the target map on rank %d is not in the source map",
					gid, rank))
			}
			imp.recvFrom[rank] = append(imp.recvFrom[rank], link{o.Rank, o.LID, lid})
			imp.sendTo[o.Rank] = append(imp.sendTo[o.Rank], link{rank, o.LID, lid})
		}
	}
	return imp
}

func (imp *Import) Source() *Map { return imp.source }

func (imp *Import) Target() *Map { return imp.target }

// NumRemote counts the target entries that are not supplied by their own rank.
func (imp *Import) NumRemote() (n int) {
	for rank, links := range imp.recvFrom {
		for _, l := range links {
			if l.Rank != rank {
				n++
			}
		}
	}
	return
}

type valueMsg struct {
	LID int
	Val float64
}

// forward moves src values laid out on the source map into dst laid out on
// the target map.
func (imp *Import) forward(src, dst [][]float64, mode CombineMode) {
	Exchange(imp.source.Comm(),
		func(rank int, send func(int, valueMsg)) {
			for _, l := range imp.sendTo[rank] {
				send(l.Rank, valueMsg{l.TgtLID, src[rank][l.SrcLID]})
			}
		},
		func(rank int, msgs []valueMsg) {
			for _, m := range msgs {
				mode.combine(dst[rank], m.LID, m.Val)
			}
		})
}

// reverse moves src values laid out on the target map back into dst laid out
// on the source map.
func (imp *Import) reverse(src, dst [][]float64, mode CombineMode) {
	Exchange(imp.source.Comm(),
		func(rank int, send func(int, valueMsg)) {
			for _, l := range imp.recvFrom[rank] {
				send(l.Rank, valueMsg{l.SrcLID, src[rank][l.TgtLID]})
			}
		},
		func(rank int, msgs []valueMsg) {
			for _, m := range msgs {
				mode.combine(dst[rank], m.LID, m.Val)
			}
		})
}
