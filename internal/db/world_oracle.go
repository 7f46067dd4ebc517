package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/skygrid/internal/world"
)

const defaultLoadCheckTimeout = 2 * time.Second

// WorldOracle reads block counts from the block_columns table kept up to date
// by the world host. Implements level.Oracle.
type WorldOracle struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewWorldOracle создаёт новый WorldOracle.
func NewWorldOracle(pool *pgxpool.Pool) *WorldOracle {
	return &WorldOracle{pool: pool, timeout: defaultLoadCheckTimeout}
}

// ChunkLoaded reports whether the host has written any column of the chunk.
// The check gives up after the oracle timeout or when ctx is done.
func (o *WorldOracle) ChunkLoaded(ctx context.Context, worldName string, cx, cz int) bool {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	x0, z0 := cx<<world.ChunkShift, cz<<world.ChunkShift
	var loaded bool
	err := o.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM block_columns
		   WHERE world = $1 AND x >= $2 AND x < $3 AND z >= $4 AND z < $5)`,
		worldName, x0, x0+world.ChunkSize, z0, z0+world.ChunkSize,
	).Scan(&loaded)
	if err != nil {
		slog.Debug("chunk load check failed", "world", worldName, "cx", cx, "cz", cz, "err", err)
		return false
	}
	return loaded
}

// BlockCounts sums block counts over the clipped part of the chunk.
func (o *WorldOracle) BlockCounts(ctx context.Context, chunk world.ChunkArea) (map[string]int, error) {
	rows, err := o.pool.Query(ctx,
		`SELECT block, SUM(count)::BIGINT FROM block_columns
		 WHERE world = $1 AND x >= $2 AND x < $3 AND z >= $4 AND z < $5
		 GROUP BY block`,
		chunk.World, chunk.Clip.MinX, chunk.Clip.MaxX, chunk.Clip.MinZ, chunk.Clip.MaxZ,
	)
	if err != nil {
		return nil, fmt.Errorf("query block counts %s(%d,%d): %w", chunk.World, chunk.CX, chunk.CZ, err)
	}
	defer rows.Close()

	counts := make(map[string]int, 16)
	for rows.Next() {
		var (
			block string
			n     int64
		)
		if err := rows.Scan(&block, &n); err != nil {
			return nil, fmt.Errorf("scan block counts: %w", err)
		}
		counts[block] = int(n)
	}
	return counts, rows.Err()
}

// PutColumn заменяет счётчики блоков одной колонки.
func (o *WorldOracle) PutColumn(ctx context.Context, worldName string, x, z int, counts map[string]int) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM block_columns WHERE world = $1 AND x = $2 AND z = $3`, worldName, x, z)
	for block, n := range counts {
		if n <= 0 {
			continue
		}
		batch.Queue(`INSERT INTO block_columns (world, x, z, block, count) VALUES ($1, $2, $3, $4, $5)`,
			worldName, x, z, block, n)
	}

	tx, err := o.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin column %s(%d,%d): %w", worldName, x, z, err)
	}
	defer rollback(ctx, tx, "world", worldName, "x", x, "z", z)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("writing column %s(%d,%d): %w", worldName, x, z, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit column %s(%d,%d): %w", worldName, x, z, err)
	}
	return nil
}
