// Package skyblock is the public surface of the island subsystem: one Service
// built at startup and handed to every consumer.
package skyblock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/udisondev/skygrid/internal/config"
	"github.com/udisondev/skygrid/internal/event"
	"github.com/udisondev/skygrid/internal/island"
	"github.com/udisondev/skygrid/internal/level"
	"github.com/udisondev/skygrid/internal/top"
	"github.com/udisondev/skygrid/internal/world"
)

// Store persists islands. Implemented by db.IslandRepository.
type Store interface {
	LoadAll(ctx context.Context) ([]island.Record, error)
	SaveIsland(ctx context.Context, snap island.Snapshot) error
	RenameIsland(ctx context.Context, prev uuid.UUID, snap island.Snapshot) error
	DeleteIsland(ctx context.Context, owner uuid.UUID) error
	SaveLevel(ctx context.Context, owner uuid.UUID, level int64) error
}

// Deps are the external collaborators of a Service. Oracle is required; the
// rest may be nil.
type Deps struct {
	Oracle    level.Oracle
	Positions island.Positions
	Sink      event.Sink
	Store     Store
}

// Service composes the grid, teams, level calculator and leaderboard.
type Service struct {
	worlds    world.Names
	radius    int
	topSize   int
	refresh   time.Duration
	grid      *island.Grid
	teams     *island.Teams
	calc      *level.Calculator
	board     *top.Board
	sink      event.Sink
	store     Store
	positions island.Positions
	now       func() time.Time
}

// New builds a Service from cfg. cfg must be valid.
func New(cfg config.Server, deps Deps) (*Service, error) {
	if deps.Oracle == nil {
		return nil, errors.New("skyblock: world oracle is required")
	}
	sink := deps.Sink
	if sink == nil {
		sink = event.Discard
	}

	worlds := world.Names{Base: cfg.Grid.WorldName}
	grid := island.NewGrid(worlds, cfg.Grid.CellSize)
	if sp := cfg.Grid.Spawn; sp.Radius > 0 {
		center := world.NewLocation(worlds.Overworld(), sp.X, sp.Y, sp.Z)
		if err := grid.SetSpawn(center, sp.Radius); err != nil {
			return nil, fmt.Errorf("placing spawn: %w", err)
		}
	}

	board := top.NewBoard(grid)
	calc, err := level.NewCalculator(grid, deps.Oracle, board, sink, level.Settings{
		Fast:               cfg.Level.FastCalc,
		Weights:            cfg.Level.Weights,
		Limits:             cfg.Level.Limits,
		Divisor:            cfg.Level.Divisor,
		IncludeNether:      cfg.Level.IncludeNether,
		MaxConcurrentScans: cfg.Level.MaxConcurrentScans,
		ChunkDelay:         cfg.Level.ChunkDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("creating level calculator: %w", err)
	}

	topSize := cfg.Top.Size
	if topSize <= 0 {
		topSize = top.DefaultSize
	}

	return &Service{
		worlds:    worlds,
		radius:    cfg.Grid.IslandRadius,
		topSize:   topSize,
		refresh:   cfg.Top.RefreshInterval,
		grid:      grid,
		teams:     island.NewTeams(grid, sink, deps.Positions),
		calc:      calc,
		board:     board,
		sink:      sink,
		store:     deps.Store,
		positions: deps.Positions,
		now:       time.Now,
	}, nil
}

// Restore loads persisted islands into the grid and rebuilds the leaderboard.
// Islands that conflict with already restored ones are skipped.
func (s *Service) Restore(ctx context.Context) error {
	if s.store != nil {
		records, err := s.store.LoadAll(ctx)
		if err != nil {
			return fmt.Errorf("loading islands: %w", err)
		}
		restored := 0
		for _, rec := range records {
			if _, err := s.grid.Restore(rec); err != nil {
				slog.Warn("island skipped on restore", "owner", rec.Owner, "err", err)
				continue
			}
			restored++
		}
		slog.Info("islands restored", "restored", restored, "stored", len(records))
	}
	return s.board.Refresh(ctx)
}

// Start runs the level calculator and the periodic leaderboard refresh until
// ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.calc.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("level calculator: %w", err)
		}
		return nil
	})

	if s.refresh > 0 {
		g.Go(func() error {
			slog.Info("starting leaderboard refresher", "interval", s.refresh)
			ticker := time.NewTicker(s.refresh)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if err := s.board.Refresh(gctx); err != nil {
						slog.Warn("leaderboard refresh failed", "err", err)
					}
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// PersistLevel is an event.Handler that stores computed levels.
func (s *Service) PersistLevel(ctx context.Context, ev event.Event) {
	lc, ok := ev.(event.LevelComputed)
	if !ok || s.store == nil {
		return
	}
	owner := lc.Island().Owner
	isl, ok := s.grid.IslandOwnedBy(owner)
	if !ok {
		return
	}
	// The island may have been rescanned since the event was queued.
	if err := s.store.SaveLevel(ctx, owner, isl.Level()); err != nil {
		slog.Error("saving island level", "owner", owner, "err", err)
	}
}

// CreateIsland claims a new island of the configured radius for owner.
func (s *Service) CreateIsland(ctx context.Context, owner uuid.UUID, center world.Location) (island.Snapshot, error) {
	isl, err := s.grid.Create(owner, center, s.radius)
	if err != nil {
		return island.Snapshot{}, err
	}
	snap := isl.Snapshot()
	s.persist(ctx, isl)
	s.sink.Publish(event.IslandCreated{
		Header: event.Header{Player: owner, Target: isl.Ref(), At: s.now()},
	})
	return snap, nil
}

// RemoveIsland deletes owner's island, cancelling any scan in flight and
// dropping it from the leaderboard.
func (s *Service) RemoveIsland(ctx context.Context, owner uuid.UUID) bool {
	isl, ok := s.grid.Remove(owner)
	if !ok {
		return false
	}
	s.board.Remove(owner)
	if s.store != nil {
		if err := s.store.DeleteIsland(ctx, owner); err != nil {
			slog.Error("deleting island", "owner", owner, "err", err)
		}
	}
	s.sink.Publish(event.IslandRemoved{
		Header: event.Header{Player: owner, Target: isl.Ref(), At: s.now()},
	})
	return true
}

// Join adds member to leader's team.
func (s *Service) Join(ctx context.Context, leader, member uuid.UUID) error {
	if err := s.teams.Join(leader, member); err != nil {
		return err
	}
	if isl, ok := s.grid.IslandOwnedBy(leader); ok {
		s.persist(ctx, isl)
	}
	return nil
}

// Leave removes member from its team.
func (s *Service) Leave(ctx context.Context, member uuid.UUID) error {
	isl, _ := s.grid.TeamIslandOf(member)
	if err := s.teams.Leave(member); err != nil {
		return err
	}
	s.persist(ctx, isl)
	return nil
}

// Kick removes member from leader's team.
func (s *Service) Kick(ctx context.Context, leader, member uuid.UUID) error {
	if err := s.teams.Kick(leader, member); err != nil {
		return err
	}
	if isl, ok := s.grid.IslandOwnedBy(leader); ok {
		s.persist(ctx, isl)
	}
	return nil
}

// MakeLeader hands newLeader's island to newLeader. The leaderboard entry
// follows the island.
func (s *Service) MakeLeader(ctx context.Context, newLeader uuid.UUID) error {
	prev, err := s.teams.MakeLeader(newLeader)
	if err != nil {
		return err
	}
	if lvl, ok := s.board.Level(prev); ok {
		s.board.Remove(prev)
		s.board.Record(newLeader, lvl)
	}

	isl, ok := s.grid.IslandOwnedBy(newLeader)
	if !ok || s.store == nil {
		return nil
	}
	if err := s.store.RenameIsland(ctx, prev, isl.Snapshot()); err != nil {
		slog.Error("renaming island", "previous", prev, "leader", newLeader, "err", err)
	}
	return nil
}

// GrantCoop gives guest coop access to host's island.
func (s *Service) GrantCoop(host, guest, inviter uuid.UUID) error {
	return s.teams.GrantCoop(host, guest, inviter)
}

// RevokeCoop removes guest's coop access to host's island.
func (s *Service) RevokeCoop(host, guest uuid.UUID) bool {
	return s.teams.RevokeCoop(host, guest)
}

// ClearCoops drops every coop grant guest holds, e.g. on logout.
func (s *Service) ClearCoops(guest uuid.UUID) int {
	return s.teams.ClearCoops(guest)
}

// CalculateIslandLevel schedules a level scan of player's team island.
// Returns false if the player has no team island or a scan is running.
func (s *Service) CalculateIslandLevel(player uuid.UUID) bool {
	return s.calc.RequestScanFor(player)
}

// ScanStats returns the level calculator counters.
func (s *Service) ScanStats() level.Stats {
	return s.calc.Stats()
}

// RefreshTop rebuilds the leaderboard from the grid.
func (s *Service) RefreshTop(ctx context.Context) error {
	return s.board.Refresh(ctx)
}

func (s *Service) persist(ctx context.Context, isl *island.Island) {
	if s.store == nil || isl == nil || !s.grid.Registered(isl) {
		return
	}
	snap := isl.Snapshot()
	if err := s.store.SaveIsland(ctx, snap); err != nil {
		slog.Error("saving island", "owner", snap.Owner, "err", err)
	}
}
