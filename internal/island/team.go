package island

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/udisondev/skygrid/internal/event"
	"github.com/udisondev/skygrid/internal/world"
)

// Positions is the external liveness check: it reports where an online
// player currently is. ok is false for offline or unreachable players.
type Positions interface {
	Position(id uuid.UUID) (loc world.Location, ok bool)
}

// Teams manages team membership and coop grants on top of the Grid.
// Mutations go through the grid write lock; notifications are published after
// the lock is released.
type Teams struct {
	grid      *Grid
	sink      event.Sink
	positions Positions
	now       func() time.Time
}

// NewTeams creates the team/coop service.
func NewTeams(grid *Grid, sink event.Sink, positions Positions) *Teams {
	if sink == nil {
		sink = event.Discard
	}
	return &Teams{
		grid:      grid,
		sink:      sink,
		positions: positions,
		now:       time.Now,
	}
}

// TeamLeader returns the leader of the island id belongs to.
func (t *Teams) TeamLeader(id uuid.UUID) (uuid.UUID, bool) {
	isl, ok := t.grid.TeamIslandOf(id)
	if !ok {
		return uuid.Nil, false
	}
	return isl.Owner(), true
}

// TeamMembers returns a copy of id's team, leader first. Empty if id has no team.
func (t *Teams) TeamMembers(id uuid.UUID) []uuid.UUID {
	isl, ok := t.grid.TeamIslandOf(id)
	if !ok {
		return []uuid.UUID{}
	}
	return isl.Members()
}

// HasIsland reports whether id leads an island.
func (t *Teams) HasIsland(id uuid.UUID) bool {
	_, ok := t.grid.IslandOwnedBy(id)
	return ok
}

// InTeam reports whether id belongs to an island shared with at least one other player.
func (t *Teams) InTeam(id uuid.UUID) bool {
	isl, ok := t.grid.TeamIslandOf(id)
	return ok && isl.MemberCount() > 1
}

// Join adds newMember to leader's island.
// Fails if newMember owns an island or already belongs to a team.
func (t *Teams) Join(leader, newMember uuid.UUID) error {
	g := t.grid
	g.mu.Lock()

	isl, ok := g.owned[leader]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("join island of %s: %w", leader, ErrNotFound)
	}
	if _, owns := g.owned[newMember]; owns {
		g.mu.Unlock()
		return fmt.Errorf("join island of %s: %w", leader, ErrHasIsland)
	}
	if other, member := g.membership[newMember]; member {
		g.mu.Unlock()
		return fmt.Errorf("join island of %s (member of %s): %w", leader, other.Owner(), ErrAlreadyMember)
	}

	isl.mu.Lock()
	isl.members = append(isl.members, newMember)
	size := len(isl.members)
	// Members never hold coop grants on their own island.
	_, wasGuest := isl.coops[newMember]
	delete(isl.coops, newMember)
	isl.mu.Unlock()

	g.membership[newMember] = isl
	if wasGuest {
		g.dropGuestLocked(newMember, isl)
	}
	ref := isl.Ref()
	g.mu.Unlock()

	slog.Info("team joined", "leader", leader, "member", newMember, "size", size)
	t.sink.Publish(event.TeamJoined{
		Header: event.Header{Player: newMember, Target: ref, At: t.now()},
		Leader: leader,
	})
	return nil
}

// Leave removes member from its team. The leader cannot leave.
func (t *Teams) Leave(member uuid.UUID) error {
	return t.removeMember(uuid.Nil, member)
}

// Kick removes member from leader's team.
func (t *Teams) Kick(leader, member uuid.UUID) error {
	if leader == uuid.Nil {
		return ErrInvalidOwner
	}
	return t.removeMember(leader, member)
}

func (t *Teams) removeMember(leader, member uuid.UUID) error {
	g := t.grid
	g.mu.Lock()

	isl, ok := g.membership[member]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("remove %s from team: %w", member, ErrNotMember)
	}
	owner := isl.owner
	if leader != uuid.Nil && owner != leader {
		g.mu.Unlock()
		return fmt.Errorf("remove %s from team of %s: %w", member, leader, ErrNotMember)
	}
	if owner == member {
		g.mu.Unlock()
		return fmt.Errorf("remove %s from team: %w", member, ErrIsLeader)
	}

	isl.mu.Lock()
	isl.members = slices.DeleteFunc(isl.members, func(id uuid.UUID) bool { return id == member })
	isl.mu.Unlock()
	delete(g.membership, member)
	ref := isl.Ref()
	g.mu.Unlock()

	kicked := leader != uuid.Nil
	slog.Info("team left", "leader", owner, "member", member, "kicked", kicked)
	t.sink.Publish(event.TeamLeft{
		Header: event.Header{Player: member, Target: ref, At: t.now()},
		Kicked: kicked,
	})
	return nil
}

// MakeLeader transfers island ownership to newLeader, who must already be a
// member. Any in-flight level scan is cancelled. Returns the previous leader.
func (t *Teams) MakeLeader(newLeader uuid.UUID) (uuid.UUID, error) {
	g := t.grid
	g.mu.Lock()

	isl, ok := g.membership[newLeader]
	if !ok {
		g.mu.Unlock()
		return uuid.Nil, fmt.Errorf("make leader %s: %w", newLeader, ErrNotMember)
	}
	previous := isl.owner
	if previous == newLeader {
		g.mu.Unlock()
		return uuid.Nil, fmt.Errorf("make leader %s: %w", newLeader, ErrIsLeader)
	}

	cancelled := isl.CancelScan()

	isl.mu.Lock()
	isl.owner = newLeader
	rest := slices.DeleteFunc(isl.members, func(id uuid.UUID) bool { return id == newLeader })
	isl.members = append([]uuid.UUID{newLeader}, rest...)
	isl.mu.Unlock()

	delete(g.owned, previous)
	g.owned[newLeader] = isl
	ref := isl.Ref()
	g.mu.Unlock()

	slog.Info("team leader changed",
		"previous", previous,
		"leader", newLeader,
		"scan_cancelled", cancelled)
	t.sink.Publish(event.LeaderChanged{
		Header:   event.Header{Player: newLeader, Target: ref, At: t.now()},
		Previous: previous,
	})
	return previous, nil
}

// IsTrespassing reports whether target currently stands on owner's island.
// Both players must be reachable through the position provider.
func (t *Teams) IsTrespassing(owner, target uuid.UUID) bool {
	if t.positions == nil {
		return false
	}
	if _, ok := t.positions.Position(owner); !ok {
		return false
	}
	loc, ok := t.positions.Position(target)
	if !ok {
		return false
	}
	isl, ok := t.grid.TeamIslandOf(owner)
	if !ok {
		return false
	}
	return t.grid.IsWithin(isl, loc)
}
