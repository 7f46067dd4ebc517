package level

import (
	"context"

	"github.com/udisondev/skygrid/internal/world"
)

// Oracle is the read-only view of world contents used by scans.
type Oracle interface {
	// ChunkLoaded reports whether the chunk is resident without loading it.
	// A check that cannot complete before ctx is done reports false.
	ChunkLoaded(ctx context.Context, worldName string, cx, cz int) bool

	// BlockCounts returns block type → count for the blocks of chunk.Clip.
	// It may block while the chunk is fetched or loaded and must honour ctx.
	BlockCounts(ctx context.Context, chunk world.ChunkArea) (map[string]int, error)
}
