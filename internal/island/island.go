// Package island holds the island records, the spatial grid that owns them
// and the team/coop service layered on top of the grid.
package island

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/udisondev/skygrid/internal/event"
	"github.com/udisondev/skygrid/internal/world"
)

// ScanState is the level scan state of an island.
type ScanState uint8

const (
	ScanIdle ScanState = iota
	ScanScanning
	ScanCancelled
)

// String implements fmt.Stringer.
func (s ScanState) String() string {
	switch s {
	case ScanIdle:
		return "idle"
	case ScanScanning:
		return "scanning"
	case ScanCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// scan word layout: generation << 2 | state.
const (
	scanStateBits = 2
	scanStateMask = 1<<scanStateBits - 1
)

// CoopGrant is a coop access right on an island. It never implies membership.
type CoopGrant struct {
	Inviter   uuid.UUID
	GrantedAt time.Time
}

// Island is a live island record owned by the Grid.
// Geometry is fixed at creation; team, coop and level state change over time.
// All accessors are safe for concurrent use. Mutation happens only through
// Grid and Teams.
type Island struct {
	seq       uint64 // grid insertion order
	center    world.Location
	radius    int
	area      world.Area
	createdAt time.Time

	mu      sync.RWMutex
	owner   uuid.UUID
	members []uuid.UUID // leader first, then join order
	coops   map[uuid.UUID]CoopGrant

	level atomic.Int64
	scan  atomic.Uint64
}

func newIsland(owner uuid.UUID, center world.Location, radius int, createdAt time.Time) *Island {
	isl := &Island{
		center:    center,
		radius:    radius,
		area:      world.AreaAround(center, radius),
		createdAt: createdAt,
		owner:     owner,
		coops:     make(map[uuid.UUID]CoopGrant),
	}
	if owner != uuid.Nil {
		isl.members = []uuid.UUID{owner}
	}
	return isl
}

// Owner returns the leader identity, or uuid.Nil for spawn.
func (i *Island) Owner() uuid.UUID {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.owner
}

// Claimed reports whether the island has an owner.
func (i *Island) Claimed() bool {
	return i.Owner() != uuid.Nil
}

// Center returns the island anchor.
func (i *Island) Center() world.Location { return i.center }

// Radius returns the protection half-width.
func (i *Island) Radius() int { return i.radius }

// Area returns the protected X/Z area.
func (i *Island) Area() world.Area { return i.area }

// CreatedAt returns the claim time.
func (i *Island) CreatedAt() time.Time { return i.createdAt }

// Contains is the O(1) axis-aligned containment test on X/Z.
// It ignores the world name; see Grid.IsWithin.
func (i *Island) Contains(x, z int) bool {
	return i.area.Contains(x, z)
}

// Members returns a copy of the member list, leader first.
func (i *Island) Members() []uuid.UUID {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return slices.Clone(i.members)
}

// MemberCount returns the team size including the leader.
func (i *Island) MemberCount() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.members)
}

// IsMember reports whether id belongs to the team (leader included).
func (i *Island) IsMember(id uuid.UUID) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return slices.Contains(i.members, id)
}

// Coops returns a copy of the coop grants.
func (i *Island) Coops() map[uuid.UUID]CoopGrant {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make(map[uuid.UUID]CoopGrant, len(i.coops))
	for id, g := range i.coops {
		out[id] = g
	}
	return out
}

// HasCoop reports whether guest holds a coop grant here.
func (i *Island) HasCoop(guest uuid.UUID) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.coops[guest]
	return ok
}

// Level returns the last computed level (0 until the first scan completes).
func (i *Island) Level() int64 {
	return i.level.Load()
}

// ScanState returns the current scan state.
func (i *Island) ScanState() ScanState {
	return ScanState(i.scan.Load() & scanStateMask)
}

// ScanGeneration returns the number of scans started on this island.
func (i *Island) ScanGeneration() uint64 {
	return i.scan.Load() >> scanStateBits
}

// BeginScan moves Idle → Scanning and returns the new scan generation.
// Returns false if a scan is already outstanding (Scanning or Cancelled).
func (i *Island) BeginScan() (uint64, bool) {
	for {
		cur := i.scan.Load()
		if ScanState(cur&scanStateMask) != ScanIdle {
			return 0, false
		}
		gen := cur>>scanStateBits + 1
		if i.scan.CompareAndSwap(cur, gen<<scanStateBits|uint64(ScanScanning)) {
			return gen, true
		}
	}
}

// CancelScan moves Scanning → Cancelled. Returns true if a scan was cancelled.
func (i *Island) CancelScan() bool {
	for {
		cur := i.scan.Load()
		if ScanState(cur&scanStateMask) != ScanScanning {
			return false
		}
		next := cur&^scanStateMask | uint64(ScanCancelled)
		if i.scan.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// ScanValid reports whether scan gen is still the live, uncancelled scan.
// Checked by the scan task at every chunk boundary.
func (i *Island) ScanValid(gen uint64) bool {
	cur := i.scan.Load()
	return cur>>scanStateBits == gen && ScanState(cur&scanStateMask) == ScanScanning
}

// settleScan returns scan gen to Idle. It reports the state the scan was in
// when settled: ScanScanning means the result may be applied.
func (i *Island) settleScan(gen uint64) (ScanState, bool) {
	for {
		cur := i.scan.Load()
		if cur>>scanStateBits != gen {
			return ScanIdle, false
		}
		state := ScanState(cur & scanStateMask)
		if state == ScanIdle {
			return ScanIdle, false
		}
		if i.scan.CompareAndSwap(cur, gen<<scanStateBits|uint64(ScanIdle)) {
			return state, true
		}
	}
}

// Ref returns the identifying payload used in notifications.
func (i *Island) Ref() event.Island {
	return event.Island{Owner: i.Owner(), Center: i.center, Radius: i.radius}
}

// Snapshot is an independent value copy of an island.
type Snapshot struct {
	Owner     uuid.UUID
	Center    world.Location
	Radius    int
	Members   []uuid.UUID
	Coops     map[uuid.UUID]CoopGrant
	Level     int64
	Scan      ScanState
	CreatedAt time.Time
}

// Snapshot returns a deep copy of the island state.
func (i *Island) Snapshot() Snapshot {
	i.mu.RLock()
	coops := make(map[uuid.UUID]CoopGrant, len(i.coops))
	for id, g := range i.coops {
		coops[id] = g
	}
	s := Snapshot{
		Owner:     i.owner,
		Center:    i.center,
		Radius:    i.radius,
		Members:   slices.Clone(i.members),
		Coops:     coops,
		CreatedAt: i.createdAt,
	}
	i.mu.RUnlock()

	s.Level = i.Level()
	s.Scan = i.ScanState()
	return s
}

// Area returns the protected area of the snapshot.
func (s Snapshot) Area() world.Area {
	return world.AreaAround(s.Center, s.Radius)
}
