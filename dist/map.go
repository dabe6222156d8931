package dist

import (
	"fmt"
	"slices"
	"sync"

	"github.com/notargets/regionmg/utils"
)

// Map distributes global ids (GIDs) over the ranks of a communicator. The
// position of a GID in its rank's list is its local id (LID). A Map is
// immutable once built.
type Map struct {
	comm      *Comm
	gids      [][]int
	lids      []map[int]int
	numGlobal int

	dirOnce  sync.Once
	dir      map[int]Owner
	oneToOne bool
}

// Owner locates a GID on a rank.
type Owner struct {
	Rank, LID int
}

// NewMap builds a map from explicit per rank GID lists. The lists are copied.
func NewMap(comm *Comm, gids [][]int) *Map {
	if len(gids) != comm.Size() {
		panic(fmt.Sprintf("map needs one GID list per rank: got %d lists for %d ranks",
			len(gids), comm.Size()))
	}
	m := &Map{
		comm: comm,
		gids: make([][]int, len(gids)),
		lids: make([]map[int]int, len(gids)),
	}
	for rank, list := range gids {
		m.gids[rank] = slices.Clone(list)
		m.lids[rank] = make(map[int]int, len(list))
		for lid, gid := range list {
			if gid < 0 {
				panic(fmt.Sprintf("negative GID %d on rank %d", gid, rank))
			}
			if _, dup := m.lids[rank][gid]; dup {
				panic(fmt.Sprintf("GID %d appears twice on rank %d", gid, rank))
			}
			m.lids[rank][gid] = lid
		}
		m.numGlobal += len(list)
	}
	return m
}

// NewUniformMap splits GIDs [0, numGlobal) into contiguous blocks with a
// maximum imbalance of one.
func NewUniformMap(comm *Comm, numGlobal int) *Map {
	var (
		pm   = utils.NewPartitionMap(comm.Size(), numGlobal)
		gids = make([][]int, comm.Size())
	)
	for rank := range gids {
		kMin, kMax := pm.GetBucketRange(rank)
		for k := kMin; k < kMax; k++ {
			gids[rank] = append(gids[rank], k)
		}
	}
	return NewMap(comm, gids)
}

// NewContiguousMap numbers counts[rank] consecutive GIDs on each rank,
// starting at zero on rank 0.
func NewContiguousMap(comm *Comm, counts []int) *Map {
	if len(counts) != comm.Size() {
		panic(fmt.Sprintf("need one count per rank: got %d counts for %d ranks",
			len(counts), comm.Size()))
	}
	var (
		pm   = utils.NewPartitionMapFromCounts(counts)
		gids = make([][]int, comm.Size())
	)
	for rank := range gids {
		for k := 0; k < pm.GetBucketDimension(rank); k++ {
			gids[rank] = append(gids[rank], pm.GetGlobalK(k, rank))
		}
	}
	return NewMap(comm, gids)
}

func (m *Map) Comm() *Comm { return m.comm }

// NumGlobal is the sum of the local counts; duplicated GIDs count once per copy.
func (m *Map) NumGlobal() int { return m.numGlobal }

func (m *Map) NumLocal(rank int) int { return len(m.gids[rank]) }

func (m *Map) LocalCounts() (counts []int) {
	counts = make([]int, len(m.gids))
	for rank := range m.gids {
		counts[rank] = len(m.gids[rank])
	}
	return
}

func (m *Map) GID(rank, lid int) int { return m.gids[rank][lid] }

// LID returns the local id of gid on rank, or -1.
func (m *Map) LID(rank, gid int) int {
	if lid, ok := m.lids[rank][gid]; ok {
		return lid
	}
	return -1
}

// ElementList returns the GIDs owned by rank. The slice must not be modified.
func (m *Map) ElementList(rank int) []int { return m.gids[rank] }

func (m *Map) MaxGID() (max int) {
	max = -1
	for _, list := range m.gids {
		for _, gid := range list {
			if gid > max {
				max = gid
			}
		}
	}
	return
}

func (m *Map) buildDirectory() {
	m.dirOnce.Do(func() {
		m.dir = make(map[int]Owner, m.numGlobal)
		m.oneToOne = true
		for rank, list := range m.gids {
			for lid, gid := range list {
				if _, present := m.dir[gid]; present {
					m.oneToOne = false
					continue
				}
				m.dir[gid] = Owner{Rank: rank, LID: lid}
			}
		}
	})
}

// IsOneToOne reports whether every GID lives on exactly one rank.
func (m *Map) IsOneToOne() bool {
	m.buildDirectory()
	return m.oneToOne
}

// Owner returns the lowest rank holding gid.
func (m *Map) Owner(gid int) (o Owner, ok bool) {
	m.buildDirectory()
	o, ok = m.dir[gid]
	return
}

// IsSameAs compares the per rank GID lists.
func (m *Map) IsSameAs(o *Map) bool {
	if m == o {
		return true
	}
	if o == nil || len(m.gids) != len(o.gids) || m.numGlobal != o.numGlobal {
		return false
	}
	for rank := range m.gids {
		if !slices.Equal(m.gids[rank], o.gids[rank]) {
			return false
		}
	}
	return true
}

// HasSameLayout reports whether both maps hold the same number of elements on
// every rank, which is what replacing the map of a vector requires.
func (m *Map) HasSameLayout(o *Map) bool {
	if len(m.gids) != len(o.gids) {
		return false
	}
	for rank := range m.gids {
		if len(m.gids[rank]) != len(o.gids[rank]) {
			return false
		}
	}
	return true
}

func (m *Map) String() string {
	return fmt.Sprintf("Map{global: %d, local: %v}", m.numGlobal, m.LocalCounts())
}
