package world

import "fmt"

// NetherSuffix is appended to the base world name to get the secondary dimension.
const NetherSuffix = "_nether"

// Location is a block position in a named world.
type Location struct {
	World   string
	X, Y, Z int
}

// NewLocation creates a location.
func NewLocation(worldName string, x, y, z int) Location {
	return Location{World: worldName, X: x, Y: y, Z: z}
}

// String implements fmt.Stringer.
func (l Location) String() string {
	return fmt.Sprintf("%s(%d,%d,%d)", l.World, l.X, l.Y, l.Z)
}

// Names describes the island worlds: the overworld and its nether.
type Names struct {
	Base string
}

// Overworld returns the island overworld name.
func (n Names) Overworld() string { return n.Base }

// Nether returns the nether world name (base + "_nether").
func (n Names) Nether() string { return n.Base + NetherSuffix }

// IsIslandWorld reports whether worldName is one of the island worlds.
// Any other world is never island territory.
func (n Names) IsIslandWorld(worldName string) bool {
	if n.Base == "" {
		return false
	}
	return worldName == n.Overworld() || worldName == n.Nether()
}
