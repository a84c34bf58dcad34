package detector

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultSeenCapacity     = 1000
	DefaultOriginCapacity   = 500
	DefaultRejectedCapacity = 100
)

// TxSet is a bounded set of transaction hashes. When an insert finds the set
// at capacity, the set is cleared wholesale first: a hash seen just before the
// clear may be processed a second time.
type TxSet struct {
	mu       sync.Mutex
	capacity int
	items    map[common.Hash]struct{}
}

func NewTxSet(capacity int) *TxSet {
	if capacity <= 0 {
		capacity = DefaultSeenCapacity
	}
	return &TxSet{
		capacity: capacity,
		items:    make(map[common.Hash]struct{}, capacity),
	}
}

// Add inserts h and reports whether it was absent.
func (s *TxSet) Add(h common.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[h]; ok {
		return false
	}
	if len(s.items) >= s.capacity {
		clear(s.items)
	}
	s.items[h] = struct{}{}
	return true
}

func (s *TxSet) Contains(h common.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[h]
	return ok
}

func (s *TxSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// OriginCache memoizes transaction origin lookups with the same wholesale
// eviction as TxSet.
type OriginCache struct {
	mu       sync.Mutex
	capacity int
	items    map[common.Hash]common.Address
}

func NewOriginCache(capacity int) *OriginCache {
	if capacity <= 0 {
		capacity = DefaultOriginCapacity
	}
	return &OriginCache{
		capacity: capacity,
		items:    make(map[common.Hash]common.Address, capacity),
	}
}

func (c *OriginCache) Get(h common.Hash) (common.Address, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.items[h]
	return a, ok
}

// PutIfAbsent stores origin unless h is already cached, and returns the value
// held for h afterwards.
func (c *OriginCache) PutIfAbsent(h common.Hash, origin common.Address) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.items[h]; ok {
		return existing
	}
	if len(c.items) >= c.capacity {
		clear(c.items)
	}
	c.items[h] = origin
	return origin
}

func (c *OriginCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
