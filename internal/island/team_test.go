package island

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/skygrid/internal/event"
	"github.com/udisondev/skygrid/internal/world"
)

type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *recordingSink) Publish(ev event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) all() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Event(nil), s.events...)
}

type staticPositions map[uuid.UUID]world.Location

func (p staticPositions) Position(id uuid.UUID) (world.Location, bool) {
	l, ok := p[id]
	return l, ok
}

type teamFixture struct {
	grid   *Grid
	teams  *Teams
	sink   *recordingSink
	pos    staticPositions
	leader uuid.UUID
	isl    *Island
}

func newTeamFixture(t *testing.T) *teamFixture {
	t.Helper()
	g := newTestGrid(t)
	sink := &recordingSink{}
	pos := staticPositions{}
	leader := uuid.New()
	isl, err := g.Create(leader, loc(1000, 1000), 50)
	require.NoError(t, err)
	return &teamFixture{
		grid:   g,
		teams:  NewTeams(g, sink, pos),
		sink:   sink,
		pos:    pos,
		leader: leader,
		isl:    isl,
	}
}

func TestTeams_Join(t *testing.T) {
	f := newTeamFixture(t)
	member := uuid.New()

	require.NoError(t, f.teams.Join(f.leader, member))

	assert.Equal(t, []uuid.UUID{f.leader, member}, f.teams.TeamMembers(member))
	leader, ok := f.teams.TeamLeader(member)
	require.True(t, ok)
	assert.Equal(t, f.leader, leader)
	assert.True(t, f.teams.InTeam(member))
	assert.True(t, f.teams.InTeam(f.leader))
	assert.False(t, f.teams.HasIsland(member))

	events := f.sink.all()
	require.Len(t, events, 1)
	joined, ok := events[0].(event.TeamJoined)
	require.True(t, ok)
	assert.Equal(t, member, joined.Subject())
	assert.Equal(t, f.leader, joined.Leader)
}

func TestTeams_JoinWhileOwningIsland(t *testing.T) {
	f := newTeamFixture(t)
	player := uuid.New()
	own, err := f.grid.Create(player, loc(3000, 3000), 50)
	require.NoError(t, err)

	err = f.teams.Join(f.leader, player)

	require.ErrorIs(t, err, ErrHasIsland)
	got, ok := f.grid.IslandOwnedBy(player)
	require.True(t, ok)
	assert.Same(t, own, got)
	assert.Equal(t, []uuid.UUID{f.leader}, f.isl.Members())
	assert.Empty(t, f.sink.all())
}

func TestTeams_JoinMemberElsewhere(t *testing.T) {
	f := newTeamFixture(t)
	other := uuid.New()
	_, err := f.grid.Create(other, loc(3000, 3000), 50)
	require.NoError(t, err)
	player := uuid.New()
	require.NoError(t, f.teams.Join(other, player))

	err = f.teams.Join(f.leader, player)

	assert.ErrorIs(t, err, ErrAlreadyMember)
	assert.Equal(t, 1, f.isl.MemberCount())
}

func TestTeams_JoinUnknownLeader(t *testing.T) {
	f := newTeamFixture(t)
	assert.ErrorIs(t, f.teams.Join(uuid.New(), uuid.New()), ErrNotFound)
}

func TestTeams_LeaveAndKick(t *testing.T) {
	f := newTeamFixture(t)
	a, b := uuid.New(), uuid.New()
	require.NoError(t, f.teams.Join(f.leader, a))
	require.NoError(t, f.teams.Join(f.leader, b))

	assert.ErrorIs(t, f.teams.Leave(f.leader), ErrIsLeader)
	require.NoError(t, f.teams.Leave(a))
	assert.ErrorIs(t, f.teams.Leave(a), ErrNotMember)

	assert.ErrorIs(t, f.teams.Kick(uuid.New(), b), ErrNotMember)
	require.NoError(t, f.teams.Kick(f.leader, b))

	assert.Equal(t, []uuid.UUID{f.leader}, f.teams.TeamMembers(f.leader))
	assert.Empty(t, f.teams.TeamMembers(a))
	assert.False(t, f.teams.InTeam(f.leader))

	// Former members can found their own island.
	_, err := f.grid.Create(a, loc(3000, 3000), 50)
	assert.NoError(t, err)
}

func TestTeams_MakeLeader(t *testing.T) {
	f := newTeamFixture(t)
	member := uuid.New()
	require.NoError(t, f.teams.Join(f.leader, member))
	gen, ok := f.isl.BeginScan()
	require.True(t, ok)

	previous, err := f.teams.MakeLeader(member)
	require.NoError(t, err)

	assert.Equal(t, f.leader, previous)
	assert.Equal(t, member, f.isl.Owner())
	assert.Equal(t, []uuid.UUID{member, f.leader}, f.isl.Members())
	_, ok = f.grid.IslandOwnedBy(f.leader)
	assert.False(t, ok)
	got, ok := f.grid.IslandOwnedBy(member)
	require.True(t, ok)
	assert.Same(t, f.isl, got)

	assert.False(t, f.isl.ScanValid(gen), "ownership change cancels the scan")
	assert.False(t, f.grid.CommitScan(f.isl, gen, 99, nil))

	_, err = f.teams.MakeLeader(member)
	assert.ErrorIs(t, err, ErrIsLeader)
	_, err = f.teams.MakeLeader(uuid.New())
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestTeams_GrantCoopIsIdempotent(t *testing.T) {
	f := newTeamFixture(t)
	guest, inviter := uuid.New(), f.leader

	require.NoError(t, f.teams.GrantCoop(f.leader, guest, inviter))
	first := f.isl.Coops()[guest].GrantedAt

	now := first.Add(time.Minute)
	f.teams.now = func() time.Time { return now }
	require.NoError(t, f.teams.GrantCoop(f.leader, guest, inviter))

	coops := f.isl.Coops()
	assert.Len(t, coops, 1)
	assert.Equal(t, now, coops[guest].GrantedAt, "re-grant refreshes the timestamp")
	assert.Len(t, f.teams.CoopIslandsFor(guest), 1)
	assert.False(t, f.isl.IsMember(guest), "coop never confers membership")

	events := f.sink.all()
	require.Len(t, events, 1)
	joined, ok := events[0].(event.CoopJoined)
	require.True(t, ok)
	assert.Equal(t, guest, joined.Subject())
	assert.Equal(t, inviter, joined.Inviter)
	assert.Equal(t, f.leader, joined.Island().Owner)
}

func TestTeams_CoopRules(t *testing.T) {
	f := newTeamFixture(t)
	member := uuid.New()
	require.NoError(t, f.teams.Join(f.leader, member))

	assert.ErrorIs(t, f.teams.GrantCoop(f.leader, member, f.leader), ErrSelfCoop)
	assert.ErrorIs(t, f.teams.GrantCoop(uuid.New(), uuid.New(), f.leader), ErrNotFound)

	guest := uuid.New()
	assert.False(t, f.teams.IsCoop(guest))
	assert.Empty(t, f.teams.CoopIslandsFor(guest))

	// Any team member may host.
	require.NoError(t, f.teams.GrantCoop(member, guest, member))
	assert.True(t, f.teams.IsCoop(guest))
	assert.Equal(t, []uuid.UUID{guest}, f.teams.CoopGuests(f.leader))

	assert.True(t, f.teams.RevokeCoop(f.leader, guest))
	assert.False(t, f.teams.RevokeCoop(f.leader, guest))
	assert.False(t, f.teams.IsCoop(guest))
}

func TestTeams_ClearCoopsAndRemoval(t *testing.T) {
	f := newTeamFixture(t)
	other := uuid.New()
	otherIsl, err := f.grid.Create(other, loc(3000, 3000), 50)
	require.NoError(t, err)
	guest := uuid.New()
	require.NoError(t, f.teams.GrantCoop(f.leader, guest, f.leader))
	require.NoError(t, f.teams.GrantCoop(other, guest, other))

	islands := f.teams.CoopIslandsFor(guest)
	require.Len(t, islands, 2)
	assert.Same(t, f.isl, islands[0])
	assert.Same(t, otherIsl, islands[1])

	f.grid.Remove(other)
	assert.Len(t, f.teams.CoopIslandsFor(guest), 1, "removed island drops its grants")

	assert.Equal(t, 1, f.teams.ClearCoops(guest))
	assert.False(t, f.teams.IsCoop(guest))
	assert.Empty(t, f.isl.Coops())
}

func TestTeams_JoinDropsOwnCoopGrant(t *testing.T) {
	f := newTeamFixture(t)
	player := uuid.New()
	require.NoError(t, f.teams.GrantCoop(f.leader, player, f.leader))

	require.NoError(t, f.teams.Join(f.leader, player))

	assert.False(t, f.isl.HasCoop(player))
	assert.False(t, f.teams.IsCoop(player))
}

func TestTeams_IsTrespassing(t *testing.T) {
	f := newTeamFixture(t)
	visitor := uuid.New()

	assert.False(t, f.teams.IsTrespassing(f.leader, visitor), "both offline")

	f.pos[f.leader] = loc(0, 0)
	f.pos[visitor] = loc(1010, 990)
	assert.True(t, f.teams.IsTrespassing(f.leader, visitor))

	f.pos[visitor] = loc(2000, 2000)
	assert.False(t, f.teams.IsTrespassing(f.leader, visitor))

	f.pos[visitor] = world.NewLocation("world", 1010, 64, 990)
	assert.False(t, f.teams.IsTrespassing(f.leader, visitor), "other worlds never count")

	f.pos[visitor] = loc(1010, 990)
	delete(f.pos, f.leader)
	assert.False(t, f.teams.IsTrespassing(f.leader, visitor), "owner must be reachable")
}

func TestTeams_ConcurrentJoinSingleWinner(t *testing.T) {
	g := NewGrid(testWorlds, 400)
	teams := NewTeams(g, nil, nil)
	leaders := make([]uuid.UUID, 8)
	for i := range leaders {
		leaders[i] = uuid.New()
		_, err := g.Create(leaders[i], loc(i*1000, 0), 50)
		require.NoError(t, err)
	}
	player := uuid.New()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for _, leader := range leaders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if teams.Join(leader, player) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "a player belongs to at most one team")
}
