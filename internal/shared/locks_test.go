package shared

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestItemLockSetSerialisesPerItem(t *testing.T) {
	locks := NewItemLockSet()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.Acquire(7)
			defer release()
			counter++
		}()
	}
	wg.Wait()
	require.Equal(t, 50, counter)
}

func TestItemLockSetCollapsesDuplicates(t *testing.T) {
	locks := NewItemLockSet()

	release := locks.Acquire(3, 3, 3)
	release()

	// A second acquisition must not block on mutexes left locked by the
	// duplicate ids above.
	done := make(chan struct{})
	go func() {
		release := locks.Acquire(3)
		release()
		close(done)
	}()
	<-done
}

func TestItemLockSetOverlappingSets(t *testing.T) {
	locks := NewItemLockSet()

	var wg sync.WaitGroup
	shared := map[int64]float64{1: 0, 2: 0, 3: 0}
	var order []int64
	var mu sync.Mutex

	for i := 0; i < 20; i++ {
		ids := []int64{1, 2}
		if i%2 == 0 {
			ids = []int64{2, 3, 1}
		}
		wg.Add(1)
		go func(ids []int64) {
			defer wg.Done()
			release := locks.Acquire(ids...)
			defer release()
			for _, id := range ids {
				shared[id]++
			}
			mu.Lock()
			order = append(order, ids[0])
			mu.Unlock()
		}(ids)
	}
	wg.Wait()
	require.Len(t, order, 20)
	require.InDelta(t, 20.0, shared[1], 0.0001)
	require.InDelta(t, 20.0, shared[2], 0.0001)
	require.InDelta(t, 10.0, shared[3], 0.0001)
}
