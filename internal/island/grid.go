package island

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/udisondev/skygrid/internal/world"
)

// DefaultCellSize is used when the grid is created with a non-positive cell size.
const DefaultCellSize = 400

type cellKey struct {
	cx, cz int
}

// Grid is the authoritative collection of islands.
//
// Islands are indexed by owner, by member and by coarse X/Z cells. An island
// is registered in every cell its protection area overlaps, so a point lookup
// inspects one cell. Cell lists keep grid insertion order.
//
// Grid is the single writer for island creation and removal. Its write lock
// also sequences scan result application (CommitScan) with removal and
// leadership changes.
type Grid struct {
	worlds   world.Names
	cellSize int
	now      func() time.Time

	mu         sync.RWMutex
	owned      map[uuid.UUID]*Island
	membership map[uuid.UUID]*Island // every member (leader included) → island
	guests     map[uuid.UUID]map[*Island]struct{}
	cells      map[cellKey][]*Island
	spawn      *Island
	nextSeq    uint64
}

// NewGrid creates an empty grid for the given island worlds.
// cellSize should be at least the full width (2 × radius) of the largest island;
// radii above cellSize are rejected with ErrInvalidRadius.
func NewGrid(worlds world.Names, cellSize int) *Grid {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	return &Grid{
		worlds:     worlds,
		cellSize:   cellSize,
		now:        time.Now,
		owned:      make(map[uuid.UUID]*Island, 256),
		membership: make(map[uuid.UUID]*Island, 256),
		guests:     make(map[uuid.UUID]map[*Island]struct{}),
		cells:      make(map[cellKey][]*Island, 256),
	}
}

// Worlds returns the island world names.
func (g *Grid) Worlds() world.Names { return g.worlds }

// CellSize returns the bucketing cell size.
func (g *Grid) CellSize() int { return g.cellSize }

// SetSpawn installs the spawn region as a synthetic unowned island.
// Fails with ErrOverlap if the region covers any player island.
func (g *Grid) SetSpawn(center world.Location, radius int) error {
	if err := g.checkRadius(radius); err != nil {
		return err
	}
	if !g.worlds.IsIslandWorld(center.World) {
		return fmt.Errorf("spawn at %s: %w", center, ErrNotIslandWorld)
	}

	spawn := newIsland(uuid.Nil, center, radius, g.now())

	g.mu.Lock()
	defer g.mu.Unlock()

	if other := g.overlappingLocked(spawn.area); other != nil {
		return fmt.Errorf("spawn at %s overlaps island of %s: %w", center, other.Owner(), ErrOverlap)
	}
	g.spawn = spawn

	slog.Info("spawn set", "center", center, "radius", radius)
	return nil
}

// Spawn returns the spawn island if one is set.
func (g *Grid) Spawn() (*Island, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.spawn, g.spawn != nil
}

// IsAtSpawn reports whether loc is inside the spawn region.
func (g *Grid) IsAtSpawn(loc world.Location) bool {
	g.mu.RLock()
	spawn := g.spawn
	g.mu.RUnlock()

	return spawn != nil && g.IsWithin(spawn, loc)
}

// IsWithin reports whether loc is inside the protection region of isl.
// Locations outside the island worlds are never inside.
func (g *Grid) IsWithin(isl *Island, loc world.Location) bool {
	if isl == nil || !g.worlds.IsIslandWorld(loc.World) {
		return false
	}
	return isl.Contains(loc.X, loc.Z)
}

// IslandAt returns the island whose protection region contains loc.
// Spawn takes precedence. Returns false if no island claims the point.
func (g *Grid) IslandAt(loc world.Location) (*Island, bool) {
	if !g.worlds.IsIslandWorld(loc.World) {
		return nil, false
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.spawn != nil && g.spawn.Contains(loc.X, loc.Z) {
		return g.spawn, true
	}

	key := cellKey{world.CellOf(loc.X, g.cellSize), world.CellOf(loc.Z, g.cellSize)}
	for _, isl := range g.cells[key] {
		if isl.Contains(loc.X, loc.Z) {
			return isl, true
		}
	}
	return nil, false
}

// Create claims a new island for owner.
// The request is rejected atomically: on error the grid is unchanged.
func (g *Grid) Create(owner uuid.UUID, center world.Location, radius int) (*Island, error) {
	if owner == uuid.Nil {
		return nil, ErrInvalidOwner
	}
	if err := g.checkRadius(radius); err != nil {
		return nil, err
	}
	if !g.worlds.IsIslandWorld(center.World) {
		return nil, fmt.Errorf("create island at %s: %w", center, ErrNotIslandWorld)
	}

	isl := newIsland(owner, center, radius, g.now())

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.insertLocked(isl); err != nil {
		return nil, err
	}

	slog.Info("island created",
		"owner", owner,
		"center", center,
		"radius", radius,
		"islands", len(g.owned))
	return isl, nil
}

// Record is a persisted island used to rebuild the grid on startup.
type Record struct {
	Owner     uuid.UUID
	Center    world.Location
	Radius    int
	Members   []uuid.UUID
	Level     int64
	CreatedAt time.Time
}

// Restore registers a persisted island. Validation matches Create; members
// already belonging to another island are skipped with a warning.
func (g *Grid) Restore(rec Record) (*Island, error) {
	if rec.Owner == uuid.Nil {
		return nil, ErrInvalidOwner
	}
	if err := g.checkRadius(rec.Radius); err != nil {
		return nil, fmt.Errorf("restore island of %s: %w", rec.Owner, err)
	}
	if !g.worlds.IsIslandWorld(rec.Center.World) {
		return nil, fmt.Errorf("restore island of %s: %w", rec.Owner, ErrNotIslandWorld)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = g.now()
	}
	isl := newIsland(rec.Owner, rec.Center, rec.Radius, createdAt)
	isl.level.Store(rec.Level)

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.insertLocked(isl); err != nil {
		return nil, fmt.Errorf("restore island of %s: %w", rec.Owner, err)
	}

	for _, m := range rec.Members {
		if m == rec.Owner || m == uuid.Nil {
			continue
		}
		if other, ok := g.membership[m]; ok {
			slog.Warn("restore: member already in another team, skipped",
				"member", m,
				"island", rec.Owner,
				"other", other.Owner())
			continue
		}
		isl.members = append(isl.members, m)
		g.membership[m] = isl
	}
	return isl, nil
}

// checkRadius bounds a protection radius by the cell size so an island
// never spans more than 3×3 cells.
func (g *Grid) checkRadius(radius int) error {
	if radius <= 0 {
		return ErrInvalidRadius
	}
	if radius > g.cellSize {
		return fmt.Errorf("radius %d exceeds cell size %d: %w", radius, g.cellSize, ErrInvalidRadius)
	}
	return nil
}

// insertLocked validates and registers isl. Caller must hold g.mu.
func (g *Grid) insertLocked(isl *Island) error {
	owner := isl.owner
	if _, ok := g.owned[owner]; ok {
		return ErrDuplicateOwner
	}
	if other, ok := g.membership[owner]; ok {
		return fmt.Errorf("owner is a member of %s's island: %w", other.Owner(), ErrAlreadyMember)
	}
	if g.spawn != nil && g.spawn.area.Intersects(isl.area) {
		return fmt.Errorf("region overlaps spawn: %w", ErrOverlap)
	}
	if other := g.overlappingLocked(isl.area); other != nil {
		return fmt.Errorf("region overlaps island of %s: %w", other.Owner(), ErrOverlap)
	}

	g.nextSeq++
	isl.seq = g.nextSeq

	g.owned[owner] = isl
	g.membership[owner] = isl
	g.forEachCellLocked(isl.area, func(k cellKey) {
		g.cells[k] = append(g.cells[k], isl)
	})
	return nil
}

// overlappingLocked returns the first player island intersecting area.
func (g *Grid) overlappingLocked(area world.Area) *Island {
	var found *Island
	g.forEachCellLocked(area, func(k cellKey) {
		if found != nil {
			return
		}
		for _, other := range g.cells[k] {
			if other.area.Intersects(area) {
				found = other
				return
			}
		}
	})
	return found
}

func (g *Grid) forEachCellLocked(area world.Area, fn func(cellKey)) {
	minCX, minCZ, maxCX, maxCZ := area.Cells(g.cellSize)
	for cx := minCX; cx <= maxCX; cx++ {
		for cz := minCZ; cz <= maxCZ; cz++ {
			fn(cellKey{cx, cz})
		}
	}
}

// Remove deletes the island owned by owner. Any in-flight scan is cancelled
// first so its late result is discarded. Returns the removed island.
func (g *Grid) Remove(owner uuid.UUID) (*Island, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	isl, ok := g.owned[owner]
	if !ok {
		return nil, false
	}

	// Сначала отменяем скан: результат придёт уже для удалённого острова.
	cancelled := isl.CancelScan()

	delete(g.owned, owner)
	for _, m := range isl.Members() {
		if g.membership[m] == isl {
			delete(g.membership, m)
		}
	}
	for guest := range isl.Coops() {
		g.dropGuestLocked(guest, isl)
	}
	// Остров зарегистрирован во всех ячейках, которые перекрывает.
	g.forEachCellLocked(isl.area, func(k cellKey) {
		list := slices.DeleteFunc(g.cells[k], func(other *Island) bool { return other == isl })
		if len(list) == 0 {
			delete(g.cells, k)
			return
		}
		g.cells[k] = list
	})

	slog.Info("island removed",
		"owner", owner,
		"center", isl.center,
		"scan_cancelled", cancelled,
		"islands", len(g.owned))
	return isl, true
}

func (g *Grid) dropGuestLocked(guest uuid.UUID, isl *Island) {
	hosts := g.guests[guest]
	delete(hosts, isl)
	if len(hosts) == 0 {
		delete(g.guests, guest)
	}
}

// IslandOwnedBy returns the island led by owner.
func (g *Grid) IslandOwnedBy(owner uuid.UUID) (*Island, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	isl, ok := g.owned[owner]
	return isl, ok
}

// TeamIslandOf returns the island id leads or belongs to.
func (g *Grid) TeamIslandOf(id uuid.UUID) (*Island, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	isl, ok := g.membership[id]
	return isl, ok
}

// Registered reports whether isl is still the live island of its owner.
func (g *Grid) Registered(isl *Island) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return isl != nil && g.owned[isl.Owner()] == isl
}

// OwnedCount returns number of player islands.
func (g *Grid) OwnedCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.owned)
}

// AllOwned returns a copy of the ownership map.
func (g *Grid) AllOwned() map[uuid.UUID]*Island {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[uuid.UUID]*Island, len(g.owned))
	for owner, isl := range g.owned {
		out[owner] = isl
	}
	return out
}

// ForEach iterates over player islands in insertion order.
// Return false from fn to stop iteration. fn must not call back into the grid
// with write operations.
func (g *Grid) ForEach(fn func(*Island) bool) {
	g.mu.RLock()
	list := make([]*Island, 0, len(g.owned))
	for _, isl := range g.owned {
		list = append(list, isl)
	}
	g.mu.RUnlock()

	slices.SortFunc(list, func(a, b *Island) int { return cmp.Compare(a.seq, b.seq) })
	for _, isl := range list {
		if !fn(isl) {
			return
		}
	}
}

// Levels returns owner → last level for every player island.
// Serves as a leaderboard refresh source.
func (g *Grid) Levels(_ context.Context) (map[uuid.UUID]int64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[uuid.UUID]int64, len(g.owned))
	for owner, isl := range g.owned {
		out[owner] = isl.Level()
	}
	return out, nil
}

// CommitScan applies a finished scan result. Under the grid write lock it
// checks that isl is still registered and that scan gen was not cancelled or
// superseded, stores the level and runs onCommit (still under the lock, so a
// concurrent Remove cannot interleave). Returns false for a stale result, in
// which case the scan state is settled back to Idle and nothing else changes.
func (g *Grid) CommitScan(isl *Island, gen uint64, level int64, onCommit func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, settled := isl.settleScan(gen)
	if !settled || state != ScanScanning {
		return false
	}
	if g.owned[isl.owner] != isl {
		return false
	}

	isl.level.Store(level)
	if onCommit != nil {
		onCommit()
	}
	return true
}

// AbortScan settles a scan that ended without a result.
func (g *Grid) AbortScan(isl *Island, gen uint64) {
	isl.settleScan(gen)
}
