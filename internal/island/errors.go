package island

import "errors"

// Grid and team errors.
var (
	ErrOverlap        = errors.New("protection region overlaps another island")
	ErrDuplicateOwner = errors.New("owner already has an island")
	ErrNotFound       = errors.New("island not found")
	ErrInvalidRadius  = errors.New("protection radius must be positive and at most the cell size")
	ErrInvalidOwner   = errors.New("island owner must be set")
	ErrNotIslandWorld = errors.New("location is not in an island world")

	ErrHasIsland     = errors.New("player already owns an island")
	ErrAlreadyMember = errors.New("player is already a team member")
	ErrNotMember     = errors.New("player is not a team member")
	ErrIsLeader      = errors.New("player is the team leader")
	ErrSelfCoop      = errors.New("team members cannot be coop guests of their own island")
)
