// Package top maintains the island leaderboard.
package top

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// DefaultSize is the number of entries shown by the classic top ten.
const DefaultSize = 10

// Entry is one leaderboard row.
type Entry struct {
	Owner uuid.UUID
	Level int64
}

// Source provides authoritative levels for Refresh.
type Source interface {
	Levels(ctx context.Context) (map[uuid.UUID]int64, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (map[uuid.UUID]int64, error)

// Levels calls f(ctx).
func (f SourceFunc) Levels(ctx context.Context) (map[uuid.UUID]int64, error) { return f(ctx) }

// slot is the latest write for an owner. Removed slots are tombstones that
// keep a concurrent Refresh from resurrecting the owner.
type slot struct {
	level   int64
	seq     uint64
	removed bool
}

// Board is a leaderboard ranked by level (descending), ties broken by owner id.
// Safe for concurrent use: Record and Remove from any goroutine, last writer
// wins per owner. The sorted view is rebuilt lazily after writes.
type Board struct {
	source Source

	mu      sync.RWMutex
	entries map[uuid.UUID]slot
	seq     uint64
	sorted  []Entry // кэш, валиден пока !dirty
	dirty   bool

	refresh singleflight.Group
}

// NewBoard creates an empty leaderboard. source may be nil if Refresh is unused.
func NewBoard(source Source) *Board {
	return &Board{
		source:  source,
		entries: make(map[uuid.UUID]slot, 128),
	}
}

// Record inserts or replaces owner's level.
func (b *Board) Record(owner uuid.UUID, level int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.entries[owner] = slot{level: level, seq: b.seq}
	b.dirty = true
}

// Remove drops owner from the leaderboard.
func (b *Board) Remove(owner uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.entries[owner] = slot{seq: b.seq, removed: true}
	b.dirty = true
}

// Top returns up to n entries, best first. The slice is a copy.
func (b *Board) Top(n int) []Entry {
	if n <= 0 {
		return []Entry{}
	}
	ranked := b.ranked()
	n = min(n, len(ranked))
	return slices.Clone(ranked[:n])
}

// Rank returns owner's 1-based position.
func (b *Board) Rank(owner uuid.UUID) (int, bool) {
	for i, e := range b.ranked() {
		if e.Owner == owner {
			return i + 1, true
		}
	}
	return 0, false
}

// Level returns owner's recorded level.
func (b *Board) Level(owner uuid.UUID) (int64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.entries[owner]
	if !ok || s.removed {
		return 0, false
	}
	return s.level, true
}

// Len returns number of ranked owners.
func (b *Board) Len() int {
	return len(b.ranked())
}

// ranked returns the sorted cache, rebuilding it if stale.
// The returned slice must not be modified.
func (b *Board) ranked() []Entry {
	b.mu.RLock()
	if !b.dirty {
		sorted := b.sorted
		b.mu.RUnlock()
		return sorted
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dirty {
		b.rebuildLocked()
	}
	return b.sorted
}

func (b *Board) rebuildLocked() {
	sorted := make([]Entry, 0, len(b.entries))
	for owner, s := range b.entries {
		if s.removed {
			continue
		}
		sorted = append(sorted, Entry{Owner: owner, Level: s.level})
	}
	slices.SortFunc(sorted, compareEntries)
	b.sorted = sorted
	b.dirty = false
}

func compareEntries(a, c Entry) int {
	switch {
	case a.Level > c.Level:
		return -1
	case a.Level < c.Level:
		return 1
	default:
		return bytes.Compare(a.Owner[:], c.Owner[:])
	}
}

// Refresh rebuilds the board from the source. Concurrent calls share one
// load. Records and removals made while the load is in flight are kept.
func (b *Board) Refresh(ctx context.Context) error {
	if b.source == nil {
		return nil
	}

	_, err, shared := b.refresh.Do("refresh", func() (any, error) {
		return nil, b.reload(ctx)
	})
	if shared {
		slog.Debug("leaderboard refresh shared with concurrent caller")
	}
	return err
}

func (b *Board) reload(ctx context.Context) error {
	b.mu.RLock()
	startSeq := b.seq
	b.mu.RUnlock()

	levels, err := b.source.Levels(ctx)
	if err != nil {
		return fmt.Errorf("loading leaderboard levels: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	next := make(map[uuid.UUID]slot, len(levels))
	for owner, level := range levels {
		next[owner] = slot{level: level, seq: startSeq}
	}
	kept := 0
	for owner, s := range b.entries {
		if s.seq > startSeq {
			next[owner] = s
			kept++
		}
	}
	b.entries = next
	b.dirty = true

	slog.Info("leaderboard refreshed", "entries", len(levels), "concurrent_writes", kept)
	return nil
}
