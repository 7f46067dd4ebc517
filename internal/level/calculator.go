// Package level computes island levels by scanning island chunks in the
// background and publishing the result to the island, the leaderboard and
// the notification sink.
package level

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/udisondev/skygrid/internal/event"
	"github.com/udisondev/skygrid/internal/island"
	"github.com/udisondev/skygrid/internal/world"
)

// minTeamSize is the leader plus one member, the same rule as Teams.InTeam.
const minTeamSize = 2

// Calculator errors.
var (
	ErrPreconditionFailed = errors.New("island is not claimed by a team")
	ErrScanAlreadyRunning = errors.New("level scan already running")
	ErrUnsupportedMode    = errors.New("only the fast (incremental) level calculation is supported")
	ErrStopped            = errors.New("level calculator stopped")

	errScanCancelled = errors.New("scan cancelled")
)

const resultQueueSize = 64

// Board receives published levels.
type Board interface {
	Record(owner uuid.UUID, level int64)
}

// Settings configures a Calculator.
type Settings struct {
	Fast               bool
	Weights            map[string]int
	Limits             map[string]int
	Divisor            int
	IncludeNether      bool
	MaxConcurrentScans int
	ChunkDelay         time.Duration
}

// Stats are cumulative scan counters.
type Stats struct {
	Started   uint64
	Completed uint64
	Cancelled uint64
	Stale     uint64
	Failed    uint64
}

// Calculator runs level scans.
//
// Each accepted request starts one background scan task. A scan reads chunks
// of the island area captured at request time and checks the island scan
// state before adding each chunk's points, aborting as soon as the scan was
// cancelled. Results are applied by a single applier loop (Start) through
// Grid.CommitScan, so application is serialized with grid mutations.
type Calculator struct {
	grid   *island.Grid
	oracle Oracle
	board  Board
	sink   event.Sink
	table  Table
	worlds []string
	delay  time.Duration
	slots  *semaphore.Weighted
	now    func() time.Time

	results chan outcome

	ctx    context.Context // базовый контекст всех задач скана
	cancel context.CancelFunc
	wg     sync.WaitGroup

	active    atomic.Int64
	started   atomic.Uint64
	completed atomic.Uint64
	cancelled atomic.Uint64
	stale     atomic.Uint64
	failed    atomic.Uint64
}

type job struct {
	isl    *island.Island
	gen    uint64
	owner  uuid.UUID
	center world.Location
	radius int
	chunks []world.ChunkArea
}

type outcome struct {
	job
	level    int64
	scanned  int
	cold     int
	err      error
	duration time.Duration
}

// NewCalculator creates a calculator. Scans may be requested before Start,
// but their results are applied only while Start is running.
func NewCalculator(grid *island.Grid, oracle Oracle, board Board, sink event.Sink, s Settings) (*Calculator, error) {
	if !s.Fast {
		return nil, ErrUnsupportedMode
	}
	if sink == nil {
		sink = event.Discard
	}

	names := grid.Worlds()
	worlds := []string{names.Overworld()}
	if s.IncludeNether {
		worlds = append(worlds, names.Nether())
	}

	maxScans := s.MaxConcurrentScans
	if maxScans <= 0 {
		maxScans = 4
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Calculator{
		grid:    grid,
		oracle:  oracle,
		board:   board,
		sink:    sink,
		table:   NewTable(s.Weights, s.Limits, s.Divisor),
		worlds:  worlds,
		delay:   s.ChunkDelay,
		slots:   semaphore.NewWeighted(int64(maxScans)),
		now:     time.Now,
		results: make(chan outcome, resultQueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Table returns the weight table in use.
func (c *Calculator) Table() Table { return c.table }

// RequestScan schedules a level scan of isl. Returns false without scheduling
// if the island is not claimed by a team of at least two or already has a
// scan outstanding.
func (c *Calculator) RequestScan(isl *island.Island) bool {
	return c.Request(isl) == nil
}

// RequestScanFor schedules a scan of the island player belongs to.
func (c *Calculator) RequestScanFor(player uuid.UUID) bool {
	isl, ok := c.grid.TeamIslandOf(player)
	if !ok {
		slog.Debug("level scan rejected: no team island", "player", player)
		return false
	}
	return c.RequestScan(isl)
}

// Request is RequestScan with the rejection reason.
func (c *Calculator) Request(isl *island.Island) error {
	if c.ctx.Err() != nil {
		return ErrStopped
	}
	if isl == nil || !isl.Claimed() || !c.grid.Registered(isl) {
		return ErrPreconditionFailed
	}
	if isl.MemberCount() < minTeamSize {
		slog.Debug("level scan rejected: island has no team", "owner", isl.Owner())
		return ErrPreconditionFailed
	}

	gen, ok := isl.BeginScan()
	if !ok {
		slog.Debug("level scan rejected: already running", "owner", isl.Owner(), "state", isl.ScanState())
		return ErrScanAlreadyRunning
	}

	j := job{
		isl:    isl,
		gen:    gen,
		owner:  isl.Owner(),
		center: isl.Center(),
		radius: isl.Radius(),
	}
	area := world.AreaAround(j.center, j.radius)
	for _, w := range c.worlds {
		j.chunks = append(j.chunks, world.ChunksIn(w, area)...)
	}

	c.started.Add(1)
	c.active.Add(1)
	c.wg.Add(1)
	go c.scan(j)

	slog.Debug("level scan scheduled",
		"owner", j.owner,
		"generation", gen,
		"chunks", len(j.chunks))
	return nil
}

// scan runs one scan task to completion or cancellation.
func (c *Calculator) scan(j job) {
	defer c.wg.Done()
	defer c.active.Add(-1)

	ctx := c.ctx
	start := c.now()
	out := outcome{job: j}

	if err := c.slots.Acquire(ctx, 1); err != nil {
		out.err = fmt.Errorf("waiting for scan slot: %w", err)
		c.deliver(out)
		return
	}
	defer c.slots.Release(1)

	var points int64
	for _, chunk := range j.chunks {
		if !j.isl.ScanValid(j.gen) {
			out.err = errScanCancelled
			break
		}
		if err := ctx.Err(); err != nil {
			out.err = err
			break
		}

		if !c.oracle.ChunkLoaded(ctx, chunk.World, chunk.CX, chunk.CZ) {
			out.cold++
		}
		counts, err := c.oracle.BlockCounts(ctx, chunk)
		if err != nil {
			out.err = fmt.Errorf("reading chunk %s(%d,%d): %w", chunk.World, chunk.CX, chunk.CZ, err)
			break
		}
		pts := c.table.ChunkPoints(counts)

		// Chunk boundary: never commit a chunk for a cancelled scan.
		if !j.isl.ScanValid(j.gen) {
			out.err = errScanCancelled
			break
		}
		points += pts
		out.scanned++

		if c.delay > 0 {
			if err := sleep(ctx, c.delay); err != nil {
				out.err = err
				break
			}
		}
	}

	if out.err == nil {
		out.level = c.table.Score(points)
	}
	out.duration = c.now().Sub(start)
	c.deliver(out)
}

func (c *Calculator) deliver(out outcome) {
	if c.ctx.Err() != nil {
		c.grid.AbortScan(out.isl, out.gen)
		return
	}
	select {
	case c.results <- out:
	case <-c.ctx.Done():
		// Applier уже остановлен: освобождаем скан, чтобы остров можно было пересчитать.
		c.grid.AbortScan(out.isl, out.gen)
	}
}

// Start runs the result applier until ctx is cancelled. On return all scan
// tasks have been cancelled and settled.
func (c *Calculator) Start(ctx context.Context) error {
	slog.Info("level calculator started", "worlds", c.worlds)

	for {
		select {
		case <-ctx.Done():
			slog.Info("level calculator stopping", "active_scans", c.active.Load())
			c.shutdown()
			return ctx.Err()

		case out := <-c.results:
			c.apply(out)
		}
	}
}

func (c *Calculator) shutdown() {
	c.cancel()
	c.wg.Wait()
	for {
		select {
		case out := <-c.results:
			c.grid.AbortScan(out.isl, out.gen)
		default:
			return
		}
	}
}

// apply publishes one outcome. Runs on the applier goroutine only.
func (c *Calculator) apply(out outcome) {
	if out.err != nil {
		c.grid.AbortScan(out.isl, out.gen)
		if errors.Is(out.err, errScanCancelled) || errors.Is(out.err, context.Canceled) {
			c.cancelled.Add(1)
			slog.Info("level scan cancelled",
				"owner", out.owner,
				"generation", out.gen,
				"chunks_scanned", out.scanned)
			return
		}
		c.failed.Add(1)
		slog.Warn("level scan failed", "owner", out.owner, "generation", out.gen, "err", out.err)
		return
	}

	committed := c.grid.CommitScan(out.isl, out.gen, out.level, func() {
		if c.board != nil {
			c.board.Record(out.owner, out.level)
		}
	})
	if !committed {
		c.stale.Add(1)
		slog.Debug("stale level result discarded",
			"owner", out.owner,
			"generation", out.gen,
			"level", out.level)
		return
	}

	c.completed.Add(1)
	slog.Info("island level computed",
		"owner", out.owner,
		"level", out.level,
		"chunks", out.scanned,
		"cold_chunks", out.cold,
		"duration", out.duration)

	c.sink.Publish(event.LevelComputed{
		Header: event.Header{
			Player: out.owner,
			Target: event.Island{Owner: out.owner, Center: out.center, Radius: out.radius},
			At:     c.now(),
		},
		Level: out.level,
	})
}

// Active returns number of scan tasks not yet finished.
func (c *Calculator) Active() int {
	return int(c.active.Load())
}

// Stats returns cumulative counters.
func (c *Calculator) Stats() Stats {
	return Stats{
		Started:   c.started.Load(),
		Completed: c.completed.Load(),
		Cancelled: c.cancelled.Load(),
		Stale:     c.stale.Load(),
		Failed:    c.failed.Load(),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
