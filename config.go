// Package main - config.go
//
// Configuration and live status persistence. Two JSON files:
// - bot.json: configuration (read once at startup, validated)
// - status.json: current status (written every cycle for external dashboards)
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Rank bounds for the merge game. Rank 7 units are final and never merged.
const (
	MinRank = 1
	MaxRank = 7
)

// Grid reference resolution. Segmentation geometry is fixed against this;
// a device reporting anything else is a configuration error.
const (
	RefScreenW = 900
	RefScreenH = 1600
)

// Config holds the startup configuration loaded from bot.json. It is
// immutable after Load; the mutable counterpart is Status.
type Config struct {
	PackageName string `json:"packageName"` // Game package, e.g. com.my.defense
	ADBPath     string `json:"adbPath"`     // adb binary ("adb" if on PATH)
	Device      string `json:"device"`      // Device serial, empty = only device
	OnDevice    bool   `json:"onDevice"`    // Running on the device itself

	Floor    int   `json:"floor"`    // Dungeon floor to farm, 1..50
	PVE      bool  `json:"pve"`      // Dungeon (true) or coop ladder (false)
	ManaCard []int `json:"manaCard"` // Card slots to level each cycle, values 1..5
	HeroPower bool `json:"heroPower"` // Also tap the hero power upgrade

	Units         []string       `json:"units"`         // Deck roster, declaration order breaks ties
	DPSUnit       string         `json:"dpsUnit"`       // Main damage unit, protected from merges
	PriorityUnits []string       `json:"priorityUnits"` // Merge these before anything else
	PreserveRules map[string]int `json:"preserveRules"` // Unit -> copies to keep unmerged
	PairEven      []string       `json:"pairEven"`      // Units kept at an even count (aura pairs)
	RequireShaman bool           `json:"requireShaman"` // Re-queue coop until a shaman opponent appears

	AutoAds   bool `json:"autoAds"`   // Collect ad rewards and quests between battles
	AutoStore bool `json:"autoStore"` // Refresh the store between battles

	MaxCombatLoops  int     `json:"maxCombatLoops"`  // Battle cycles before forced rotation
	StagnationLimit int     `json:"stagnationLimit"` // Identical-board cycles before recovery
	SpawnCost       int     `json:"spawnCost"`       // Mana cost of a spawn, gates placement
	MSEThreshold    float64 `json:"mseThreshold"`    // Identity match cutoff
	IconThreshold   float32 `json:"iconThreshold"`   // Template match score cutoff
	Margins         map[string]float64 `json:"margins"` // Per-unit extra MSE separation

	CycleInterval  int `json:"cycleInterval"`  // ms between decision cycles
	CaptureRetries int `json:"captureRetries"` // Capture attempts per cycle
	NavRetries     int `json:"navRetries"`     // Polls while waiting on a screen
	NavDelay       int `json:"navDelay"`       // ms between navigation polls
	MenuWaitLimit  int `json:"menuWaitLimit"`  // Unknown-screen cycles before app restart

	AssetsPath string `json:"assets"` // Directory of unit/icon PNGs + rank model
	StatusPath string `json:"status"` // status.json path
	LogPath    string `json:"log"`    // Log file path, empty = console only
	Debug      bool   `json:"debug"`  // Save annotated frame dumps
	DebugPath  string `json:"debugPath"` // Directory for frame dumps
}

// DefaultConfig is what gets written when no config file exists yet.
func DefaultConfig() Config {
	return Config{
		PackageName: "com.my.defense",
		ADBPath:     "adb",
		Floor:       5,
		PVE:         true,
		ManaCard:    []int{1, 2},
		HeroPower:   true,
		Units: []string{
			"demon_hunter", "chemist", "bombardier", "summoner", "knight_statue",
		},
		DPSUnit:       "demon_hunter",
		PriorityUnits: []string{"chemist", "bombardier", "summoner", "knight_statue"},
		PreserveRules: map[string]int{"chemist": 1},
		PairEven:      []string{"knight_statue"},

		AutoAds:   true,
		AutoStore: true,

		MaxCombatLoops:  800,
		StagnationLimit: 8,
		SpawnCost:       10,
		MSEThreshold:    2000,
		IconThreshold:   0.8,

		CycleInterval:  800,
		CaptureRetries: 5,
		NavRetries:     10,
		NavDelay:       2000,
		MenuWaitLimit:  40,

		AssetsPath: "assets",
		StatusPath: "status.json",
		LogPath:    "bot.log",
		DebugPath:  "debug",
	}
}

// LoadConfig reads the config file, writing a default one first when it does
// not exist, and validates the result.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = "bot.json"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		def := DefaultConfig()
		data, err := json.MarshalIndent(def, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal default config: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate rejects configurations the loop cannot run with.
func (c *Config) Validate() error {
	if c.PackageName == "" {
		return fmt.Errorf("packageName is required")
	}
	if c.Floor < 1 || c.Floor > 50 {
		return fmt.Errorf("floor %d out of range 1..50", c.Floor)
	}
	if len(c.Units) < 4 {
		return fmt.Errorf("roster needs at least 4 units, got %d", len(c.Units))
	}
	known := make(map[string]bool, len(c.Units))
	for _, u := range c.Units {
		if u == "" {
			return fmt.Errorf("roster contains an empty unit name")
		}
		if known[u] {
			return fmt.Errorf("roster lists %q twice", u)
		}
		known[u] = true
	}
	if c.DPSUnit != "" && !known[c.DPSUnit] {
		return fmt.Errorf("dpsUnit %q is not in the roster", c.DPSUnit)
	}
	for _, u := range c.PriorityUnits {
		if !known[u] {
			return fmt.Errorf("priority unit %q is not in the roster", u)
		}
	}
	for _, lvl := range c.ManaCard {
		if lvl < 1 || lvl > 5 {
			return fmt.Errorf("manaCard slot %d out of range 1..5", lvl)
		}
	}
	if c.MSEThreshold <= 0 {
		return fmt.Errorf("mseThreshold must be positive")
	}
	if c.IconThreshold <= 0 || c.IconThreshold > 1 {
		return fmt.Errorf("iconThreshold %v out of range (0,1]", c.IconThreshold)
	}
	if c.CaptureRetries < 1 {
		return fmt.Errorf("captureRetries must be at least 1")
	}
	if c.NavRetries < 1 {
		return fmt.Errorf("navRetries must be at least 1")
	}
	return nil
}

// Preserve reports whether a unit at the given rank must never be merged
// away: the final rank, and the configured DPS unit at any rank unless
// forced merges are allowed this cycle.
func (c *Config) Preserve(unit string, rank int) bool {
	if rank >= MaxRank {
		return true
	}
	return unit == c.DPSUnit
}

// Status is the mutable per-cycle state written to status.json. All access
// goes through the methods; the loop and the tray read it concurrently.
type Status struct {
	mu sync.RWMutex

	path string

	StartTime    time.Time `json:"-"`
	UptimeMS     int64     `json:"uptime"`
	Stage        string    `json:"stage"`
	Cycle        int       `json:"cycle"`
	Battles      int       `json:"battles"`
	Merges       int       `json:"merges"`
	Spawns       int       `json:"spawns"`
	Restarts     int       `json:"restarts"`
	Mana         int       `json:"mana"`
	EmptyCells   int       `json:"emptyCells"`
	LastAction   string    `json:"lastAction"`
	LastError    string    `json:"lastError"`
	Paused       bool      `json:"paused"`
	Board        []string  `json:"board"` // 15 entries "unit:rank" or "-"
}

func NewStatus(path string) *Status {
	return &Status{
		path:      path,
		StartTime: time.Now(),
		Stage:     "initializing",
		Board:     make([]string, 0, GridCells),
	}
}

func (s *Status) SetStage(stage string) {
	s.mu.Lock()
	s.Stage = stage
	s.mu.Unlock()
}

func (s *Status) GetStage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Stage
}

func (s *Status) SetPaused(paused bool) {
	s.mu.Lock()
	s.Paused = paused
	s.mu.Unlock()
}

func (s *Status) SetError(err error) {
	s.mu.Lock()
	if err != nil {
		s.LastError = err.Error()
	} else {
		s.LastError = ""
	}
	s.mu.Unlock()
}

func (s *Status) RecordAction(desc string) {
	s.mu.Lock()
	s.LastAction = desc
	s.mu.Unlock()
}

func (s *Status) AddBattle()  { s.mu.Lock(); s.Battles++; s.mu.Unlock() }
func (s *Status) AddMerge()   { s.mu.Lock(); s.Merges++; s.mu.Unlock() }
func (s *Status) AddSpawn()   { s.mu.Lock(); s.Spawns++; s.mu.Unlock() }
func (s *Status) AddRestart() { s.mu.Lock(); s.Restarts++; s.mu.Unlock() }

// UpdateBoard records the classified board and mana for the dashboard.
func (s *Status) UpdateBoard(board *BoardState, mana int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Mana = mana
	s.Board = s.Board[:0]
	if board == nil {
		s.EmptyCells = 0
		return
	}
	s.EmptyCells = board.EmptyCount()
	for _, cell := range board.Cells {
		if cell.Empty {
			s.Board = append(s.Board, "-")
		} else {
			s.Board = append(s.Board, fmt.Sprintf("%s:%d", cell.Unit, cell.Rank))
		}
	}
}

// Save writes the status snapshot to its JSON file.
func (s *Status) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Cycle++
	s.UptimeMS = time.Since(s.StartTime).Milliseconds()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write status file: %w", err)
	}
	return nil
}
