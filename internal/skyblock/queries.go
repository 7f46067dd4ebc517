package skyblock

import (
	"github.com/google/uuid"

	"github.com/udisondev/skygrid/internal/island"
	"github.com/udisondev/skygrid/internal/top"
	"github.com/udisondev/skygrid/internal/world"
)

// Query methods never expose live records: islands come back as Snapshot
// values and every collection is a fresh copy.

// IslandLevel returns the last computed level of player's team island, or 0.
func (s *Service) IslandLevel(player uuid.UUID) int64 {
	isl, ok := s.grid.TeamIslandOf(player)
	if !ok {
		return 0
	}
	return isl.Level()
}

// IslandLocation returns the center of player's team island.
func (s *Service) IslandLocation(player uuid.UUID) (world.Location, bool) {
	isl, ok := s.grid.TeamIslandOf(player)
	if !ok {
		return world.Location{}, false
	}
	return isl.Center(), true
}

// Owner returns the leader of the island at loc.
func (s *Service) Owner(loc world.Location) (uuid.UUID, bool) {
	isl, ok := s.grid.IslandAt(loc)
	if !ok || !isl.Claimed() {
		return uuid.Nil, false
	}
	return isl.Owner(), true
}

// TeamLeader returns the leader of player's team.
func (s *Service) TeamLeader(player uuid.UUID) (uuid.UUID, bool) {
	return s.teams.TeamLeader(player)
}

// TeamMembers returns player's team, leader first. Empty if none.
func (s *Service) TeamMembers(player uuid.UUID) []uuid.UUID {
	return s.teams.TeamMembers(player)
}

// HasIsland reports whether player leads an island.
func (s *Service) HasIsland(player uuid.UUID) bool {
	return s.teams.HasIsland(player)
}

// InTeam reports whether player is in a team of two or more.
func (s *Service) InTeam(player uuid.UUID) bool {
	return s.teams.InTeam(player)
}

// IslandAtLocation reports whether loc is inside a claimed island.
func (s *Service) IslandAtLocation(loc world.Location) bool {
	_, ok := s.Owner(loc)
	return ok
}

// IsOnIsland reports whether target stands on owner's island. Both players
// must be online.
func (s *Service) IsOnIsland(owner, target uuid.UUID) bool {
	return s.teams.IsTrespassing(owner, target)
}

// LocationIsOnIsland reports whether loc is on an island player belongs to,
// either as a team member or through a coop grant.
func (s *Service) LocationIsOnIsland(player uuid.UUID, loc world.Location) bool {
	isl, ok := s.grid.IslandAt(loc)
	if !ok || !isl.Claimed() {
		return false
	}
	return isl.IsMember(player) || isl.HasCoop(player)
}

// LocationInIslands returns the center among centers whose island contains
// loc.
func (s *Service) LocationInIslands(centers []world.Location, loc world.Location) (world.Location, bool) {
	for _, c := range centers {
		isl, ok := s.grid.IslandAt(c)
		if !ok || !isl.Claimed() {
			continue
		}
		if s.grid.IsWithin(isl, loc) {
			return c, true
		}
	}
	return world.Location{}, false
}

// PlayerIsOnIsland reports whether an online player stands on their own,
// team or coop island.
func (s *Service) PlayerIsOnIsland(player uuid.UUID) bool {
	if s.positions == nil {
		return false
	}
	loc, ok := s.positions.Position(player)
	if !ok {
		return false
	}
	return s.LocationIsOnIsland(player, loc)
}

// IsCoop reports whether player holds any coop grant.
func (s *Service) IsCoop(player uuid.UUID) bool {
	return s.teams.IsCoop(player)
}

// CoopIslands returns the centers of the islands player has coop access to.
func (s *Service) CoopIslands(player uuid.UUID) []world.Location {
	islands := s.teams.CoopIslandsFor(player)
	out := make([]world.Location, 0, len(islands))
	for _, isl := range islands {
		out = append(out, isl.Center())
	}
	return out
}

// SpawnLocation returns the center of spawn.
func (s *Service) SpawnLocation() (world.Location, bool) {
	sp, ok := s.grid.Spawn()
	if !ok {
		return world.Location{}, false
	}
	return sp.Center(), true
}

// SpawnRange returns the spawn protection radius, 0 without spawn.
func (s *Service) SpawnRange() int {
	sp, ok := s.grid.Spawn()
	if !ok {
		return 0
	}
	return sp.Radius()
}

// IsAtSpawn reports whether loc is inside spawn.
func (s *Service) IsAtSpawn(loc world.Location) bool {
	return s.grid.IsAtSpawn(loc)
}

// IslandWorld returns the overworld name.
func (s *Service) IslandWorld() string { return s.worlds.Overworld() }

// NetherWorld returns the nether world name.
func (s *Service) NetherWorld() string { return s.worlds.Nether() }

// TopTen returns the leaderboard head, best first.
func (s *Service) TopTen() []top.Entry {
	return s.board.Top(s.topSize)
}

// Rank returns owner's 1-based leaderboard position.
func (s *Service) Rank(owner uuid.UUID) (int, bool) {
	return s.board.Rank(owner)
}

// IslandOwnedBy returns a copy of the island owner leads.
func (s *Service) IslandOwnedBy(owner uuid.UUID) (island.Snapshot, bool) {
	isl, ok := s.grid.IslandOwnedBy(owner)
	if !ok {
		return island.Snapshot{}, false
	}
	return isl.Snapshot(), true
}

// IslandAt returns a copy of the island at loc. Spawn is returned with a
// zero owner.
func (s *Service) IslandAt(loc world.Location) (island.Snapshot, bool) {
	isl, ok := s.grid.IslandAt(loc)
	if !ok {
		return island.Snapshot{}, false
	}
	return isl.Snapshot(), true
}

// IslandCount returns number of claimed islands.
func (s *Service) IslandCount() int {
	return s.grid.OwnedCount()
}

// OwnedIslands returns a copy of the ownership map.
func (s *Service) OwnedIslands() map[uuid.UUID]island.Snapshot {
	owned := s.grid.AllOwned()
	out := make(map[uuid.UUID]island.Snapshot, len(owned))
	for owner, isl := range owned {
		out[owner] = isl.Snapshot()
	}
	return out
}
