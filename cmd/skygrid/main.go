package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/skygrid/internal/config"
	"github.com/udisondev/skygrid/internal/db"
	"github.com/udisondev/skygrid/internal/event"
	"github.com/udisondev/skygrid/internal/skyblock"
)

func main() {
	topN := flag.Int("top", 0, "print the N best islands from the database and exit")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, *topN); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, topN int) error {
	// Load config FIRST to determine log level
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	slog.Info("skygrid starting",
		"log_level", cfg.LogLevel,
		"world", cfg.Grid.WorldName,
		"island_radius", cfg.Grid.IslandRadius)

	// Подключаемся к БД
	database, err := db.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	slog.Info("database connected")

	// Run migrations
	if err := db.Migrate(ctx, database.Pool()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	repo := db.NewIslandRepository(database.Pool())
	if topN > 0 {
		return printTop(ctx, repo, topN)
	}

	bus := event.NewBus(event.DefaultQueueSize)
	svc, err := skyblock.New(cfg, skyblock.Deps{
		Oracle: db.NewWorldOracle(database.Pool()),
		Sink:   bus,
		Store:  repo,
	})
	if err != nil {
		return fmt.Errorf("creating island service: %w", err)
	}

	if err := svc.Restore(ctx); err != nil {
		return fmt.Errorf("restoring islands: %w", err)
	}
	slog.Info("island grid ready", "islands", svc.IslandCount(), "top", len(svc.TopTen()))

	bus.Subscribe(svc.PersistLevel)
	bus.Subscribe(logEvent)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting event bus")
		if err := bus.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("event bus: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("starting island service",
			"max_concurrent_scans", cfg.Level.MaxConcurrentScans,
			"top_refresh", cfg.Top.RefreshInterval)
		if err := svc.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("island service: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	stats := svc.ScanStats()
	slog.Info("skygrid stopped",
		"scans_completed", stats.Completed,
		"scans_cancelled", stats.Cancelled,
		"events_dropped", bus.Dropped())
	return nil
}

func printTop(ctx context.Context, repo *db.IslandRepository, n int) error {
	entries, err := repo.TopLevels(ctx, n)
	if err != nil {
		return fmt.Errorf("loading top islands: %w", err)
	}
	for i, e := range entries {
		fmt.Printf("%2d. %s %d\n", i+1, e.Owner, e.Level)
	}
	return nil
}

func logEvent(_ context.Context, ev event.Event) {
	slog.Debug("notification",
		"kind", ev.Kind(),
		"player", ev.Subject(),
		"island", ev.Island().Owner)
}
