package shared

import (
	"sort"
	"sync"
)

// ItemLockSet serialises validate-then-commit sequences per stock item.
// A multi-item request must acquire every lock it touches through a single
// Acquire call; ids are locked in ascending order so two overlapping
// requests can never deadlock.
type ItemLockSet struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewItemLockSet constructs an empty lock set.
func NewItemLockSet() *ItemLockSet {
	return &ItemLockSet{locks: make(map[int64]*sync.Mutex)}
}

func (s *ItemLockSet) lockFor(id int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[id] = l
	return l
}

// Acquire locks every id and returns the release function. Duplicate ids are
// collapsed; release unlocks in reverse acquisition order.
func (s *ItemLockSet) Acquire(ids ...int64) func() {
	unique := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	ordered := make([]int64, 0, len(unique))
	for id := range unique {
		ordered = append(ordered, id)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	acquired := make([]*sync.Mutex, 0, len(ordered))
	for _, id := range ordered {
		l := s.lockFor(id)
		l.Lock()
		acquired = append(acquired, l)
	}
	return func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].Unlock()
		}
	}
}
