package kafka

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// seqDedupe remembers the highest sequence applied per key.
type seqDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, uint64]
}

func newSeqDedupe(size int) *seqDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, uint64](size)
	return &seqDedupe{lru: c}
}

// returns true if seq is greater than last seen
func (d *seqDedupe) shouldApply(key string, seq uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && seq <= last {
		return false
	}
	d.lru.Add(key, seq)
	return true
}
