// Package testutil holds deterministic helpers shared by package tests.
package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates UUID-shaped IDs from a counter:
// 00000000-0000-4000-8000-000000000001, ...-000000000002, and so on.
//
// Stores built with the same SequentialIDs assign identical UUIDs to the
// same sequence of nodes, which makes archives byte-identical across runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu  sync.Mutex
	seq int64
}

// NewSequentialIDs creates a generator whose first ID ends in 1.
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{}
}

// NewSequentialIDsAt creates a generator whose first ID ends in start+1.
// Two stores that exchange archives need disjoint ranges.
func NewSequentialIDsAt(start int64) *SequentialIDs {
	return &SequentialIDs{seq: start}
}

// Generate returns the next ID. Implements graph.IDGenerator.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", g.seq)
}

// Reset restarts the sequence. After Reset the next ID ends in 1 again.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
