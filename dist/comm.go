package dist

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/notargets/regionmg/utils"
)

// Comm is a communicator of NP ranks. Every rank runs as a goroutine inside
// Run, ranks exchange data only through Exchange rounds.
type Comm struct {
	np int
}

func NewComm(NP int) *Comm {
	if NP < 1 {
		panic(fmt.Sprintf("communicator needs at least one rank, got %d", NP))
	}
	return &Comm{np: NP}
}

func (c *Comm) Size() int { return c.np }

// Run executes f once per rank and waits for all ranks. A panic raised inside
// a rank is recovered and returned as an error.
func (c *Comm) Run(f func(rank int) error) error {
	var g errgroup.Group
	for r := 0; r < c.np; r++ {
		rank := r
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("rank %d: %v", rank, p)
				}
			}()
			return f(rank)
		})
	}
	return g.Wait()
}

// ForEach is Run for rank bodies that cannot fail. A panic on any rank is
// raised again on the calling goroutine.
func (c *Comm) ForEach(f func(rank int)) {
	if err := c.Run(func(rank int) error {
		f(rank)
		return nil
	}); err != nil {
		panic(err)
	}
}

// SumAll reduces one partial value per rank, summed in rank order.
func (c *Comm) SumAll(partial func(rank int) float64) (sum float64) {
	parts := make([]float64, c.np)
	c.ForEach(func(rank int) { parts[rank] = partial(rank) })
	for _, p := range parts {
		sum += p
	}
	return
}

func (c *Comm) MaxAll(partial func(rank int) float64) (max float64) {
	parts := make([]float64, c.np)
	c.ForEach(func(rank int) { parts[rank] = partial(rank) })
	max = parts[0]
	for _, p := range parts[1:] {
		if p > max {
			max = p
		}
	}
	return
}

func (c *Comm) SumAllInt(partial func(rank int) int) (sum int) {
	parts := make([]int, c.np)
	c.ForEach(func(rank int) { parts[rank] = partial(rank) })
	for _, p := range parts {
		sum += p
	}
	return
}

// Exchange runs one communication round: every rank posts its messages,
// then every rank receives what was addressed to it. Received messages are
// ordered by sender rank.
func Exchange[T any](c *Comm, post func(rank int, send func(to int, msg T)),
	recv func(rank int, msgs []T)) {
	mb := utils.NewMailBox[T](c.np)
	c.ForEach(func(rank int) {
		post(rank, func(to int, msg T) { mb.PostMessage(rank, to, msg) })
		mb.DeliverMyMessages(rank)
	})
	c.ForEach(func(rank int) {
		mb.ReceiveMyMessages(rank)
		recv(rank, mb.ReceiveMsgQs[rank].Cells())
		mb.ClearMyMessages(rank)
	})
}
