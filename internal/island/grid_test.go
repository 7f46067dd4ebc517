package island

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/skygrid/internal/world"
)

const testWorld = "skyworld"

var testWorlds = world.Names{Base: testWorld}

func loc(x, z int) world.Location {
	return world.NewLocation(testWorld, x, 64, z)
}

func newTestGrid(t *testing.T) *Grid {
	t.Helper()
	g := NewGrid(testWorlds, 400)
	require.NoError(t, g.SetSpawn(loc(0, 0), 100))
	return g
}

func TestGrid_CreateOverlappingSpawn(t *testing.T) {
	g := newTestGrid(t)

	_, err := g.Create(uuid.New(), loc(50, 50), 60)

	require.ErrorIs(t, err, ErrOverlap)
	assert.Equal(t, 0, g.OwnedCount())
}

func TestGrid_CreateOverlappingIsland(t *testing.T) {
	g := newTestGrid(t)
	_, err := g.Create(uuid.New(), loc(1000, 1000), 50)
	require.NoError(t, err)

	_, err = g.Create(uuid.New(), loc(1090, 1000), 50)
	assert.ErrorIs(t, err, ErrOverlap)

	// Adjacent region [1050, 1150) touches but does not overlap [950, 1050).
	_, err = g.Create(uuid.New(), loc(1100, 1000), 50)
	assert.NoError(t, err)
	assert.Equal(t, 2, g.OwnedCount())
}

func TestGrid_CreateOverlapAcrossCells(t *testing.T) {
	g := NewGrid(testWorlds, 100)
	// Radius equal to the cell size: the island spans four cells.
	_, err := g.Create(uuid.New(), loc(0, 0), 100)
	require.NoError(t, err)

	_, err = g.Create(uuid.New(), loc(90, 90), 20)
	assert.ErrorIs(t, err, ErrOverlap)

	isl, ok := g.IslandAt(loc(-99, 99))
	require.True(t, ok)
	assert.Equal(t, 100, isl.Radius())
}

func TestGrid_CreateDuplicateOwner(t *testing.T) {
	g := newTestGrid(t)
	owner := uuid.New()
	_, err := g.Create(owner, loc(1000, 1000), 50)
	require.NoError(t, err)

	_, err = g.Create(owner, loc(5000, 5000), 50)

	require.ErrorIs(t, err, ErrDuplicateOwner)
	_, ok := g.IslandAt(loc(5000, 5000))
	assert.False(t, ok, "rejected request must not write partial state")
}

func TestGrid_CreateValidation(t *testing.T) {
	g := newTestGrid(t)

	_, err := g.Create(uuid.Nil, loc(1000, 1000), 50)
	assert.ErrorIs(t, err, ErrInvalidOwner)

	_, err = g.Create(uuid.New(), loc(1000, 1000), 0)
	assert.ErrorIs(t, err, ErrInvalidRadius)

	_, err = g.Create(uuid.New(), loc(1000, 1000), g.CellSize()+1)
	assert.ErrorIs(t, err, ErrInvalidRadius, "radius above the cell size")
	assert.Zero(t, g.OwnedCount())

	_, err = g.Restore(Record{Owner: uuid.New(), Center: loc(1000, 1000), Radius: 1 << 20})
	assert.ErrorIs(t, err, ErrInvalidRadius)

	assert.ErrorIs(t, NewGrid(testWorlds, 50).SetSpawn(loc(0, 0), 51), ErrInvalidRadius)

	_, err = g.Create(uuid.New(), world.NewLocation("world", 1000, 64, 1000), 50)
	assert.ErrorIs(t, err, ErrNotIslandWorld)
}

func TestGrid_IslandAt(t *testing.T) {
	g := newTestGrid(t)
	owner := uuid.New()
	isl, err := g.Create(owner, loc(1000, 1000), 50)
	require.NoError(t, err)

	got, ok := g.IslandAt(loc(1000, 1000))
	require.True(t, ok)
	assert.Same(t, isl, got)

	got, ok = g.IslandAt(world.NewLocation(testWorlds.Nether(), 960, 10, 1040))
	require.True(t, ok, "nether shares the island grid")
	assert.Same(t, isl, got)

	_, ok = g.IslandAt(loc(1050, 1000))
	assert.False(t, ok, "max edge is exclusive")

	_, ok = g.IslandAt(world.NewLocation("world", 1000, 64, 1000))
	assert.False(t, ok, "foreign worlds are never island territory")

	spawn, ok := g.IslandAt(loc(0, 0))
	require.True(t, ok)
	assert.False(t, spawn.Claimed())
	assert.True(t, g.IsAtSpawn(loc(-100, 99)))
	assert.False(t, g.IsAtSpawn(loc(100, 0)))
}

func TestGrid_IslandAtReturnsAtMostOne(t *testing.T) {
	g := NewGrid(testWorlds, 200)
	a, err := g.Create(uuid.New(), loc(0, 0), 100)
	require.NoError(t, err)
	b, err := g.Create(uuid.New(), loc(200, 0), 100)
	require.NoError(t, err)

	for x := -150; x <= 350; x += 7 {
		for z := -150; z <= 150; z += 7 {
			p := loc(x, z)
			inA, inB := g.IsWithin(a, p), g.IsWithin(b, p)
			require.False(t, inA && inB, "point %v inside both islands", p)

			got, ok := g.IslandAt(p)
			switch {
			case inA:
				require.True(t, ok)
				require.Same(t, a, got)
			case inB:
				require.True(t, ok)
				require.Same(t, b, got)
			default:
				require.False(t, ok, "point %v", p)
			}
		}
	}
}

func TestGrid_CreateThenRemoveRestoresState(t *testing.T) {
	g := newTestGrid(t)
	neighbour, err := g.Create(uuid.New(), loc(2000, 2000), 50)
	require.NoError(t, err)
	before := g.OwnedCount()

	owner := uuid.New()
	_, err = g.Create(owner, loc(1000, 1000), 50)
	require.NoError(t, err)

	removed, ok := g.Remove(owner)
	require.True(t, ok)
	assert.Equal(t, owner, removed.Owner())

	assert.Equal(t, before, g.OwnedCount())
	_, ok = g.IslandAt(loc(1000, 1000))
	assert.False(t, ok)
	got, ok := g.IslandAt(loc(2000, 2000))
	require.True(t, ok)
	assert.Same(t, neighbour, got)
	_, ok = g.TeamIslandOf(owner)
	assert.False(t, ok)

	// The freed space can be claimed again.
	_, err = g.Create(uuid.New(), loc(1000, 1000), 50)
	assert.NoError(t, err)
}

func TestGrid_RemoveUnknown(t *testing.T) {
	g := newTestGrid(t)
	_, ok := g.Remove(uuid.New())
	assert.False(t, ok)
}

func TestGrid_RemoveCancelsScan(t *testing.T) {
	g := newTestGrid(t)
	owner := uuid.New()
	isl, err := g.Create(owner, loc(1000, 1000), 50)
	require.NoError(t, err)

	gen, ok := isl.BeginScan()
	require.True(t, ok)

	g.Remove(owner)

	assert.Equal(t, ScanCancelled, isl.ScanState())
	assert.False(t, isl.ScanValid(gen))

	committed := g.CommitScan(isl, gen, 500, func() { t.Fatal("commit callback on removed island") })
	assert.False(t, committed)
	assert.Equal(t, int64(0), isl.Level())
	assert.Equal(t, ScanIdle, isl.ScanState(), "stale result settles the scan")
}

func TestGrid_CommitScan(t *testing.T) {
	g := newTestGrid(t)
	isl, err := g.Create(uuid.New(), loc(1000, 1000), 50)
	require.NoError(t, err)

	gen, ok := isl.BeginScan()
	require.True(t, ok)
	_, again := isl.BeginScan()
	assert.False(t, again, "second scan rejected while scanning")

	calls := 0
	assert.True(t, g.CommitScan(isl, gen, 1000, func() { calls++ }))
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(1000), isl.Level())
	assert.Equal(t, ScanIdle, isl.ScanState())

	assert.False(t, g.CommitScan(isl, gen, 7, nil), "result applied once")
	assert.Equal(t, int64(1000), isl.Level())

	next, ok := isl.BeginScan()
	require.True(t, ok)
	assert.Equal(t, gen+1, next)
}

func TestGrid_SetSpawnOverlap(t *testing.T) {
	g := NewGrid(testWorlds, 400)
	_, err := g.Create(uuid.New(), loc(50, 50), 60)
	require.NoError(t, err)

	err = g.SetSpawn(loc(0, 0), 100)
	assert.ErrorIs(t, err, ErrOverlap)
	_, ok := g.Spawn()
	assert.False(t, ok)
}

func TestGrid_AllOwnedIsCopy(t *testing.T) {
	g := newTestGrid(t)
	owner := uuid.New()
	_, err := g.Create(owner, loc(1000, 1000), 50)
	require.NoError(t, err)

	owned := g.AllOwned()
	delete(owned, owner)
	owned[uuid.New()] = nil

	assert.Equal(t, 1, g.OwnedCount())
	_, ok := g.IslandOwnedBy(owner)
	assert.True(t, ok)
}

func TestGrid_Restore(t *testing.T) {
	g := newTestGrid(t)
	owner, member := uuid.New(), uuid.New()

	isl, err := g.Restore(Record{
		Owner:   owner,
		Center:  loc(3000, 3000),
		Radius:  50,
		Members: []uuid.UUID{owner, member},
		Level:   321,
	})
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{owner, member}, isl.Members())
	assert.Equal(t, int64(321), isl.Level())
	got, ok := g.TeamIslandOf(member)
	require.True(t, ok)
	assert.Same(t, isl, got)

	_, err = g.Restore(Record{Owner: uuid.New(), Center: loc(3010, 3010), Radius: 50})
	assert.ErrorIs(t, err, ErrOverlap)

	levels, err := g.Levels(t.Context())
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int64{owner: 321}, levels)
}

func TestGrid_ForEachInsertionOrder(t *testing.T) {
	g := NewGrid(testWorlds, 400)
	var want []uuid.UUID
	for i := range 5 {
		owner := uuid.New()
		_, err := g.Create(owner, loc(i*1000, 0), 50)
		require.NoError(t, err, fmt.Sprintf("island %d", i))
		want = append(want, owner)
	}

	var got []uuid.UUID
	g.ForEach(func(isl *Island) bool {
		got = append(got, isl.Owner())
		return true
	})
	assert.Equal(t, want, got)
}

func TestIsland_SnapshotIsIndependent(t *testing.T) {
	g := newTestGrid(t)
	owner := uuid.New()
	isl, err := g.Create(owner, loc(1000, 1000), 50)
	require.NoError(t, err)

	snap := isl.Snapshot()
	snap.Members[0] = uuid.New()
	snap.Coops[uuid.New()] = CoopGrant{}

	assert.Equal(t, []uuid.UUID{owner}, isl.Members())
	assert.Empty(t, isl.Coops())
	assert.Equal(t, world.Area{MinX: 950, MinZ: 950, MaxX: 1050, MaxZ: 1050}, snap.Area())
}
