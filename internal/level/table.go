package level

import "maps"

// Table is the block → points weight table with optional per-chunk caps.
//
// For every chunk and block type: points = count × weight, capped at the
// block's limit when one is configured. The island score is the sum over all
// chunks divided by the divisor (integer division).
type Table struct {
	weights map[string]int
	limits  map[string]int
	divisor int64
}

// NewTable copies the given weights and limits. A divisor below 1 means 1.
func NewTable(weights, limits map[string]int, divisor int) Table {
	if divisor < 1 {
		divisor = 1
	}
	return Table{
		weights: maps.Clone(weights),
		limits:  maps.Clone(limits),
		divisor: int64(divisor),
	}
}

// Weight returns the points per block for the given type (0 if unknown).
func (t Table) Weight(block string) int {
	return t.weights[block]
}

// ChunkPoints returns the capped weighted sum of one chunk's block counts.
func (t Table) ChunkPoints(counts map[string]int) int64 {
	var total int64
	for block, n := range counts {
		w := t.weights[block]
		if w <= 0 || n <= 0 {
			continue
		}
		pts := int64(n) * int64(w)
		if limit, ok := t.limits[block]; ok && limit >= 0 && pts > int64(limit) {
			pts = int64(limit)
		}
		total += pts
	}
	return total
}

// Score converts the accumulated points into the island level.
func (t Table) Score(points int64) int64 {
	if points <= 0 {
		return 0
	}
	return points / t.divisor
}
