package utils

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionMap(t *testing.T) {
	{ // Balance of the uniform split
		getHisto := func(K, Np int) (histo map[int]int) {
			pm := NewPartitionMap(Np, K)
			histo = make(map[int]int)
			for np := 0; np < pm.ParallelDegree; np++ {
				maxK := pm.GetBucketDimension(np)
				histo[maxK]++
			}
			return
		}
		getTotal := func(histo map[int]int) (total int) {
			for key, count := range histo {
				total += key * count
			}
			return
		}
		assert.Equal(t, map[int]int{0: 30, 1: 2}, getHisto(2, 32))
		assert.Equal(t, map[int]int{1: 32}, getHisto(32, 32))
		assert.Equal(t, map[int]int{8: 32}, getHisto(256, 32))
		assert.Equal(t, map[int]int{8: 1, 9: 31}, getHisto(287, 32))
		assert.Equal(t, 287, getTotal(getHisto(287, 32)))
		for n := 64; n < 2000; n++ {
			var (
				keys   [2]float64
				keyNum int
			)
			histo := getHisto(n, 32)
			for key := range histo {
				keys[keyNum] = float64(key)
				keyNum++
			}
			if keyNum == 2 {
				assert.Equal(t, 1., math.Abs(keys[0]-keys[1])) // Maximum imbalance of 1
			}
			assert.Equal(t, n, getTotal(histo))
		}
	}
	{ // Inverted bucket lookup
		for maxIndex := 10; maxIndex < 500; maxIndex++ {
			pm := NewPartitionMap(5, maxIndex)
			for k := 0; k < maxIndex; k++ {
				tryCount, bn, min, max := pm.getBucketWithTryCount(k)
				mmin, mmax := pm.GetBucketRange(bn)
				assert.True(t, k >= min && k < max && min == mmin && max == mmax && tryCount <= 1)
			}
			bn, _, _ := pm.GetBucket(maxIndex)
			assert.Equal(t, -1, bn)
		}
	}
	{ // Partition from explicit counts, including empty buckets
		pm := NewPartitionMapFromCounts([]int{3, 0, 4, 1})
		assert.Equal(t, 8, pm.MaxIndex)
		for k, want := range []int{0, 0, 0, 2, 2, 2, 2, 3} {
			bn, _, _ := pm.GetBucket(k)
			assert.Equal(t, want, bn)
		}
		assert.Equal(t, 5, pm.GetGlobalK(2, 2))
		bn, min, max := pm.GetBucket(6)
		assert.Equal(t, []int{2, 3, 7}, []int{bn, min, max})
	}
}

func TestMailBoxOrdering(t *testing.T) {
	type msg struct{ from, seq int }
	var (
		NP = 4
		mb = NewMailBox[msg](NP)
	)
	for round := 0; round < 3; round++ {
		var wg sync.WaitGroup
		for r := NP - 1; r >= 0; r-- {
			wg.Add(1)
			go func(r int) {
				defer wg.Done()
				for tgt := 0; tgt < NP; tgt++ {
					for s := 0; s < 2; s++ {
						mb.PostMessage(r, tgt, msg{r, s})
					}
				}
				mb.DeliverMyMessages(r)
			}(r)
		}
		wg.Wait()
		for r := 0; r < NP; r++ {
			wg.Add(1)
			go func(r int) {
				defer wg.Done()
				mb.ReceiveMyMessages(r)
			}(r)
		}
		wg.Wait()
		for r := 0; r < NP; r++ {
			var expect []msg
			for from := 0; from < NP; from++ {
				expect = append(expect, msg{from, 0}, msg{from, 1})
			}
			assert.Equal(t, expect, mb.ReceiveMsgQs[r].Cells())
			mb.ClearMyMessages(r)
		}
	}
	assert.Panics(t, func() { mb.PostMessage(0, NP, msg{}) })
}

func TestIsNan(t *testing.T) {
	assert.False(t, IsNan([]float64{1, 2}))
	assert.True(t, IsNan([]float64{1, math.NaN()}))
	assert.True(t, IsNan(math.Inf(-1)))
	assert.True(t, IsNan([][]float64{{0}, {math.Inf(1)}}))
	assert.Equal(t, []int{0, 1, 2}, IntRange(3))
	assert.Equal(t, 4, CeilDiv(10, 3))
}
