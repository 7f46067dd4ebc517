package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/skygrid/internal/island"
	"github.com/udisondev/skygrid/internal/top"
	"github.com/udisondev/skygrid/internal/world"
)

// IslandRepository управляет островами и составом команд в БД.
type IslandRepository struct {
	pool *pgxpool.Pool
}

// NewIslandRepository создаёт новый IslandRepository.
func NewIslandRepository(pool *pgxpool.Pool) *IslandRepository {
	return &IslandRepository{pool: pool}
}

// LoadAll загружает все острова вместе с участниками (лидер первым).
func (r *IslandRepository) LoadAll(ctx context.Context) ([]island.Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT owner, world, center_x, center_y, center_z, radius, level, created_at
		 FROM islands ORDER BY created_at, owner`)
	if err != nil {
		return nil, fmt.Errorf("query islands: %w", err)
	}
	defer rows.Close()

	var (
		records []island.Record
		index   = make(map[uuid.UUID]int)
	)
	for rows.Next() {
		var (
			rec     island.Record
			w       string
			x, y, z int32
			radius  int32
		)
		if err := rows.Scan(&rec.Owner, &w, &x, &y, &z, &radius, &rec.Level, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan islands: %w", err)
		}
		rec.Center = world.NewLocation(w, int(x), int(y), int(z))
		rec.Radius = int(radius)
		index[rec.Owner] = len(records)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating island rows: %w", err)
	}

	mrows, err := r.pool.Query(ctx,
		`SELECT island_owner, member FROM island_members ORDER BY island_owner, position`)
	if err != nil {
		return nil, fmt.Errorf("query island_members: %w", err)
	}
	defer mrows.Close()

	for mrows.Next() {
		var owner, member uuid.UUID
		if err := mrows.Scan(&owner, &member); err != nil {
			return nil, fmt.Errorf("scan island_members: %w", err)
		}
		i, ok := index[owner]
		if !ok {
			continue
		}
		records[i].Members = append(records[i].Members, member)
	}
	if err := mrows.Err(); err != nil {
		return nil, fmt.Errorf("iterating member rows: %w", err)
	}

	slog.Debug("islands loaded", "count", len(records))
	return records, nil
}

// SaveIsland сохраняет остров и заменяет список участников в одной транзакции.
func (r *IslandRepository) SaveIsland(ctx context.Context, snap island.Snapshot) error {
	return r.inTx(ctx, snap.Owner, func(tx pgx.Tx) error {
		return saveIslandTx(ctx, tx, snap)
	})
}

// RenameIsland переносит остров prev на нового лидера snap.Owner
// и сохраняет snap.
func (r *IslandRepository) RenameIsland(ctx context.Context, prev uuid.UUID, snap island.Snapshot) error {
	return r.inTx(ctx, snap.Owner, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM island_members WHERE island_owner = $1`, prev); err != nil {
			return fmt.Errorf("deleting members of island %s: %w", prev, err)
		}
		if _, err := tx.Exec(ctx, `UPDATE islands SET owner = $2 WHERE owner = $1`, prev, snap.Owner); err != nil {
			return fmt.Errorf("renaming island %s to %s: %w", prev, snap.Owner, err)
		}
		return saveIslandTx(ctx, tx, snap)
	})
}

func saveIslandTx(ctx context.Context, tx pgx.Tx, snap island.Snapshot) error {
	createdAt := snap.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO islands (owner, world, center_x, center_y, center_z, radius, level, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (owner) DO UPDATE SET
		   world = EXCLUDED.world,
		   center_x = EXCLUDED.center_x,
		   center_y = EXCLUDED.center_y,
		   center_z = EXCLUDED.center_z,
		   radius = EXCLUDED.radius,
		   level = EXCLUDED.level`,
		snap.Owner, snap.Center.World,
		int32(snap.Center.X), int32(snap.Center.Y), int32(snap.Center.Z),
		int32(snap.Radius), snap.Level, createdAt,
	)
	if err != nil {
		return fmt.Errorf("upserting island %s: %w", snap.Owner, err)
	}

	// Участник состоит только в одной команде: удаляем строки прежнего острова.
	if _, err := tx.Exec(ctx,
		`DELETE FROM island_members WHERE island_owner = $1 OR member = ANY($2)`,
		snap.Owner, snap.Members,
	); err != nil {
		return fmt.Errorf("deleting old members of island %s: %w", snap.Owner, err)
	}

	if len(snap.Members) == 0 {
		return nil
	}

	// Вставляем участников через COPY
	rows := make([][]any, 0, len(snap.Members))
	for pos, m := range snap.Members {
		rows = append(rows, []any{snap.Owner, m, int32(pos)})
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"island_members"},
		[]string{"island_owner", "member", "position"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("inserting members of island %s: %w", snap.Owner, err)
	}
	return nil
}

func (r *IslandRepository) inTx(ctx context.Context, owner uuid.UUID, fn func(pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction for island %s: %w", owner, err)
	}
	defer rollback(ctx, tx, "island", owner)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit island %s: %w", owner, err)
	}
	return nil
}

// rollback откатывает tx, если она ещё не закоммичена.
// attrs попадают в лог вместе с ошибкой.
func rollback(ctx context.Context, tx pgx.Tx, attrs ...any) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		slog.Error("rollback failed", append(attrs, "error", err)...)
	}
}

// DeleteIsland удаляет остров (участники удаляются каскадом).
func (r *IslandRepository) DeleteIsland(ctx context.Context, owner uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM islands WHERE owner = $1`, owner); err != nil {
		return fmt.Errorf("deleting island %s: %w", owner, err)
	}
	return nil
}

// SaveLevel сохраняет последний посчитанный уровень острова.
// Отсутствие острова не ошибка: его могли удалить, пока событие было в очереди.
func (r *IslandRepository) SaveLevel(ctx context.Context, owner uuid.UUID, level int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE islands SET level = $2 WHERE owner = $1`, owner, level)
	if err != nil {
		return fmt.Errorf("saving level of island %s: %w", owner, err)
	}
	if tag.RowsAffected() == 0 {
		slog.Debug("level for unknown island ignored", "owner", owner)
	}
	return nil
}

// Levels returns owner → level for every island. Implements top.Source.
func (r *IslandRepository) Levels(ctx context.Context) (map[uuid.UUID]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT owner, level FROM islands`)
	if err != nil {
		return nil, fmt.Errorf("query island levels: %w", err)
	}
	defer rows.Close()

	levels := make(map[uuid.UUID]int64, 128)
	for rows.Next() {
		var (
			owner uuid.UUID
			level int64
		)
		if err := rows.Scan(&owner, &level); err != nil {
			return nil, fmt.Errorf("scan island levels: %w", err)
		}
		levels[owner] = level
	}
	return levels, rows.Err()
}

// TopLevels returns the limit best islands, ranked like top.Board.
func (r *IslandRepository) TopLevels(ctx context.Context, limit int) ([]top.Entry, error) {
	if limit <= 0 {
		return []top.Entry{}, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT owner, level FROM islands ORDER BY level DESC, owner LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top levels: %w", err)
	}
	defer rows.Close()

	entries := make([]top.Entry, 0, limit)
	for rows.Next() {
		var e top.Entry
		if err := rows.Scan(&e.Owner, &e.Level); err != nil {
			return nil, fmt.Errorf("scan top levels: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
