package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SpawnConfig places the spawn island. Radius 0 disables it.
type SpawnConfig struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Z      int `yaml:"z"`
	Radius int `yaml:"radius"`
}

// GridConfig describes the island world layout.
type GridConfig struct {
	WorldName    string      `yaml:"world_name"`
	IslandRadius int         `yaml:"island_radius"`
	CellSize     int         `yaml:"cell_size"`
	Spawn        SpawnConfig `yaml:"spawn"`
}

// LevelConfig configures island level calculation.
type LevelConfig struct {
	FastCalc           bool           `yaml:"fast_calc"`
	Weights            map[string]int `yaml:"weights"`
	Limits             map[string]int `yaml:"limits"`
	Divisor            int            `yaml:"divisor"`
	IncludeNether      bool           `yaml:"include_nether"`
	MaxConcurrentScans int            `yaml:"max_concurrent_scans"`
	ChunkDelay         time.Duration  `yaml:"chunk_delay"` // pause between chunks, 0 = none
}

// TopConfig configures the leaderboard.
type TopConfig struct {
	Size            int           `yaml:"size"`
	RefreshInterval time.Duration `yaml:"refresh_interval"` // 0 disables periodic refresh
}

// Server holds all configuration for the skygrid daemon.
type Server struct {
	LogLevel string `yaml:"log_level"`

	// Database
	Database DatabaseConfig `yaml:"database"`

	Grid  GridConfig  `yaml:"grid"`
	Level LevelConfig `yaml:"level"`
	Top   TopConfig   `yaml:"top"`
}

// DefaultLevel returns the stock block weight table. Weights and limits from
// a config file are merged over it; a weight of 0 disables a block.
func DefaultLevel() LevelConfig {
	return LevelConfig{
		FastCalc: true,
		Weights: map[string]int{
			"diamond_block":    300,
			"emerald_block":    150,
			"gold_block":       150,
			"iron_block":       10,
			"beacon":           500,
			"enchanting_table": 150,
			"obsidian":         10,
			"hopper":           50,
			"cobblestone":      1,
			"stone":            1,
		},
		Limits: map[string]int{
			"cobblestone": 10000,
			"hopper":      5000,
		},
		Divisor:            100,
		MaxConcurrentScans: 4,
	}
}

// DefaultServer returns Server config with sensible defaults.
func DefaultServer() Server {
	return Server{
		LogLevel: "info",
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "skygrid",
			Password: "skygrid",
			DBName:   "skygrid",
			SSLMode:  "disable",
			MaxConns: 8,
		},
		Grid: GridConfig{
			WorldName:    "skyworld",
			IslandRadius: 100,
			CellSize:     400,
			Spawn:        SpawnConfig{X: 0, Y: 120, Z: 0, Radius: 100},
		},
		Level: DefaultLevel(),
		Top: TopConfig{
			Size:            10,
			RefreshInterval: 5 * time.Minute,
		},
	}
}

// LoadServer loads server config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// Load reads the config file named by the environment, applies environment
// overrides and validates the result.
func Load() (Server, error) {
	e, err := ParseEnv()
	if err != nil {
		return Server{}, err
	}
	cfg, err := LoadServer(e.ConfigPath)
	if err != nil {
		return cfg, err
	}
	e.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", e.ConfigPath, err)
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Server) Validate() error {
	var errs []error

	if c.Grid.WorldName == "" {
		errs = append(errs, errors.New("grid.world_name is empty"))
	}
	if c.Grid.IslandRadius <= 0 {
		errs = append(errs, fmt.Errorf("grid.island_radius must be positive, got %d", c.Grid.IslandRadius))
	}
	if c.Grid.CellSize < 2*c.Grid.IslandRadius {
		errs = append(errs, fmt.Errorf("grid.cell_size %d is smaller than an island (%d)", c.Grid.CellSize, 2*c.Grid.IslandRadius))
	}
	if c.Grid.Spawn.Radius < 0 {
		errs = append(errs, fmt.Errorf("grid.spawn.radius must not be negative, got %d", c.Grid.Spawn.Radius))
	}
	if c.Grid.Spawn.Radius > c.Grid.CellSize {
		errs = append(errs, fmt.Errorf("grid.spawn.radius %d exceeds grid.cell_size %d", c.Grid.Spawn.Radius, c.Grid.CellSize))
	}

	if !c.Level.FastCalc {
		errs = append(errs, errors.New("level.fast_calc: only the fast calculation is supported"))
	}
	if c.Level.Divisor < 1 {
		errs = append(errs, fmt.Errorf("level.divisor must be at least 1, got %d", c.Level.Divisor))
	}
	for block, w := range c.Level.Weights {
		if w < 0 {
			errs = append(errs, fmt.Errorf("level.weights.%s is negative", block))
		}
	}
	for block, l := range c.Level.Limits {
		if l < 0 {
			errs = append(errs, fmt.Errorf("level.limits.%s is negative", block))
		}
	}
	if c.Level.MaxConcurrentScans < 1 {
		errs = append(errs, fmt.Errorf("level.max_concurrent_scans must be at least 1, got %d", c.Level.MaxConcurrentScans))
	}
	if c.Level.ChunkDelay < 0 {
		errs = append(errs, errors.New("level.chunk_delay is negative"))
	}

	if c.Database.MaxConns < 0 {
		errs = append(errs, fmt.Errorf("database.max_conns must not be negative, got %d", c.Database.MaxConns))
	}
	if c.Top.Size < 1 {
		errs = append(errs, fmt.Errorf("top.size must be at least 1, got %d", c.Top.Size))
	}
	if c.Top.RefreshInterval < 0 {
		errs = append(errs, errors.New("top.refresh_interval is negative"))
	}

	return errors.Join(errs...)
}
