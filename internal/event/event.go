// Package event defines the notifications published by the island subsystem.
//
// Every notification is a concrete value type implementing Event; consumers
// switch on the dynamic type:
//
//	switch e := ev.(type) {
//	case event.LevelComputed:
//	    ...
//	case event.CoopJoined:
//	    ...
//	}
package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/udisondev/skygrid/internal/world"
)

// Island identifies the island a notification is about.
type Island struct {
	Owner  uuid.UUID
	Center world.Location
	Radius int
}

// Event is a notification. The set of implementations is closed.
type Event interface {
	// Subject is the player the notification is about.
	Subject() uuid.UUID
	// Island is the affected island.
	Island() Island
	// Kind is a short stable name used in logs.
	Kind() string

	sealed()
}

// Header is embedded by every notification.
type Header struct {
	Player uuid.UUID
	Target Island
	At     time.Time
}

func (h Header) Subject() uuid.UUID { return h.Player }
func (h Header) Island() Island      { return h.Target }
func (Header) sealed()               {}

// LevelComputed is published when a level scan completes and its result is applied.
type LevelComputed struct {
	Header
	Level int64
}

func (LevelComputed) Kind() string { return "level_computed" }

// CoopJoined is published when a guest is granted coop access to an island.
type CoopJoined struct {
	Header
	Inviter uuid.UUID
}

func (CoopJoined) Kind() string { return "coop_joined" }

// CoopRevoked is published when a coop grant is removed.
type CoopRevoked struct {
	Header
}

func (CoopRevoked) Kind() string { return "coop_revoked" }

// IslandCreated is published when a player claims a new island.
type IslandCreated struct {
	Header
}

func (IslandCreated) Kind() string { return "island_created" }

// IslandRemoved is published after an island has been deleted from the grid.
type IslandRemoved struct {
	Header
}

func (IslandRemoved) Kind() string { return "island_removed" }

// TeamJoined is published when a player joins a team island.
type TeamJoined struct {
	Header
	Leader uuid.UUID
}

func (TeamJoined) Kind() string { return "team_joined" }

// TeamLeft is published when a member leaves or is kicked from a team.
type TeamLeft struct {
	Header
	Kicked bool
}

func (TeamLeft) Kind() string { return "team_left" }

// LeaderChanged is published when island ownership moves to another member.
type LeaderChanged struct {
	Header
	Previous uuid.UUID
}

func (LeaderChanged) Kind() string { return "leader_changed" }

// Sink receives notifications. Publish must not block the caller for long
// and has no result: delivery is fire-and-forget.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Publish calls f(ev).
func (f SinkFunc) Publish(ev Event) { f(ev) }

// Discard is a Sink that drops every notification.
var Discard Sink = SinkFunc(func(Event) {})
