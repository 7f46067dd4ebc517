package testutil

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/udisondev/skygrid/internal/world"
)

type chunkKey struct {
	world  string
	cx, cz int
}

// FakeOracle is an in-memory world oracle for level scan tests.
// Chunks without explicit contents report no blocks.
type FakeOracle struct {
	mu     sync.RWMutex
	chunks map[chunkKey]map[string]int
	loaded map[chunkKey]bool
	errs   map[chunkKey]error

	// gate, если задан, блокирует каждое чтение чанка до получения значения.
	gate chan struct{}

	reads atomic.Int64
}

// NewFakeOracle creates an empty oracle.
func NewFakeOracle() *FakeOracle {
	return &FakeOracle{
		chunks: make(map[chunkKey]map[string]int),
		loaded: make(map[chunkKey]bool),
		errs:   make(map[chunkKey]error),
	}
}

// SetChunk sets the block counts reported for a chunk and marks it loaded.
func (o *FakeOracle) SetChunk(worldName string, cx, cz int, counts map[string]int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := chunkKey{worldName, cx, cz}
	o.chunks[k] = maps.Clone(counts)
	o.loaded[k] = true
}

// FailChunk makes reads of a chunk return err.
func (o *FakeOracle) FailChunk(worldName string, cx, cz int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs[chunkKey{worldName, cx, cz}] = err
}

// Gate makes every BlockCounts call wait for a Step (or ctx cancellation).
// Returns the step function.
func (o *FakeOracle) Gate() (step func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gate = make(chan struct{})
	gate := o.gate
	return func() { gate <- struct{}{} }
}

// Release removes the gate; blocked reads stay blocked until stepped.
func (o *FakeOracle) Release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gate = nil
}

// Reads returns number of BlockCounts calls.
func (o *FakeOracle) Reads() int {
	return int(o.reads.Load())
}

// ChunkLoaded implements level.Oracle.
func (o *FakeOracle) ChunkLoaded(ctx context.Context, worldName string, cx, cz int) bool {
	if ctx.Err() != nil {
		return false
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.loaded[chunkKey{worldName, cx, cz}]
}

// BlockCounts implements level.Oracle. The clip area is ignored: the
// configured counts describe the part of the chunk being scanned.
func (o *FakeOracle) BlockCounts(ctx context.Context, chunk world.ChunkArea) (map[string]int, error) {
	o.reads.Add(1)

	o.mu.RLock()
	gate := o.gate
	k := chunkKey{chunk.World, chunk.CX, chunk.CZ}
	counts, err := o.chunks[k], o.errs[k]
	o.mu.RUnlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, fmt.Errorf("chunk %s(%d,%d): %w", chunk.World, chunk.CX, chunk.CZ, err)
	}
	return maps.Clone(counts), nil
}
