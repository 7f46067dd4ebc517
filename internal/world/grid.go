package world

// Chunk constants. A chunk is a 16×16 block column.
const (
	// ChunkShift - shift by N bits for 2^N blocks per chunk side (2^4 = 16)
	ChunkShift = 4

	// ChunkSize in blocks
	ChunkSize = 1 << ChunkShift
)

// ChunkOf converts a block coordinate to a chunk index.
// Arithmetic shift floors negative coordinates: -1 >> 4 = -1.
func ChunkOf(coord int) int {
	return coord >> ChunkShift
}

// CellOf converts a block coordinate to a grid cell index for the given cell size.
// Rounds towards negative infinity so cells never straddle zero.
func CellOf(coord, cellSize int) int {
	return floorDiv(coord, cellSize)
}

// Area is a half-open X/Z rectangle [MinX, MaxX) × [MinZ, MaxZ) in block coordinates.
type Area struct {
	MinX, MinZ int
	MaxX, MaxZ int
}

// AreaAround returns the square area center ± radius (max edge exclusive).
func AreaAround(center Location, radius int) Area {
	return Area{
		MinX: center.X - radius,
		MinZ: center.Z - radius,
		MaxX: center.X + radius,
		MaxZ: center.Z + radius,
	}
}

// Contains reports whether block (x, z) lies inside the area.
func (a Area) Contains(x, z int) bool {
	return x >= a.MinX && x < a.MaxX && z >= a.MinZ && z < a.MaxZ
}

// Intersects reports whether two areas share at least one block.
func (a Area) Intersects(b Area) bool {
	return a.MinX < b.MaxX && b.MinX < a.MaxX && a.MinZ < b.MaxZ && b.MinZ < a.MaxZ
}

// Empty reports whether the area covers no blocks.
func (a Area) Empty() bool {
	return a.MaxX <= a.MinX || a.MaxZ <= a.MinZ
}

// Cells returns the inclusive cell index range covered by the area.
func (a Area) Cells(cellSize int) (minCX, minCZ, maxCX, maxCZ int) {
	return CellOf(a.MinX, cellSize), CellOf(a.MinZ, cellSize),
		CellOf(a.MaxX-1, cellSize), CellOf(a.MaxZ-1, cellSize)
}

// ChunkArea is one chunk of a scan, clipped to the area being scanned.
type ChunkArea struct {
	World  string
	CX, CZ int
	Clip   Area // blocks of the chunk that belong to the scanned area
}

// ChunksIn enumerates the chunks covering area in row-major order (X fastest).
// Every chunk is clipped to area, so edge chunks report only their covered blocks.
func ChunksIn(worldName string, a Area) []ChunkArea {
	if a.Empty() {
		return nil
	}

	minCX, minCZ := ChunkOf(a.MinX), ChunkOf(a.MinZ)
	maxCX, maxCZ := ChunkOf(a.MaxX-1), ChunkOf(a.MaxZ-1)

	chunks := make([]ChunkArea, 0, (maxCX-minCX+1)*(maxCZ-minCZ+1))
	for cz := minCZ; cz <= maxCZ; cz++ {
		for cx := minCX; cx <= maxCX; cx++ {
			base := Area{
				MinX: cx << ChunkShift,
				MinZ: cz << ChunkShift,
				MaxX: (cx + 1) << ChunkShift,
				MaxZ: (cz + 1) << ChunkShift,
			}
			chunks = append(chunks, ChunkArea{
				World: worldName,
				CX:    cx,
				CZ:    cz,
				Clip:  intersect(base, a),
			})
		}
	}
	return chunks
}

func intersect(a, b Area) Area {
	return Area{
		MinX: max(a.MinX, b.MinX),
		MinZ: max(a.MinZ, b.MinZ),
		MaxX: min(a.MaxX, b.MaxX),
		MaxZ: min(a.MaxZ, b.MaxZ),
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
