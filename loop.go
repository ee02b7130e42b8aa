// Package main - loop.go
//
// The bot loop controller. Each cycle captures a frame, classifies the
// screen, and dispatches: in battle it runs the perception/decision/execute
// pipeline, on the home screen it collects rewards and starts the next
// battle, anywhere else it walks the menus home. Stop and pause are
// cooperative flags checked at cycle boundaries.
package main

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Controller owns the bot loop.
type Controller struct {
	cfg      *Config
	status   *Status
	screen   *Screen
	nav      *Navigator
	classify *Classifier
	exec     *Executor
	mana     ManaReader
	grid     GridLayout
	dump     *FrameDumper
	log      zerolog.Logger

	sleep func(time.Duration)

	stop   atomic.Bool
	paused atomic.Bool

	// Per-run state.
	combatLoops   int
	menuWait      int
	lastPrint     string
	stagnantSince int
	shamanChecked bool
}

func NewController(cfg *Config, status *Status, screen *Screen, nav *Navigator,
	classify *Classifier, exec *Executor, mana ManaReader, grid GridLayout,
	dump *FrameDumper, log zerolog.Logger) *Controller {
	return &Controller{
		cfg:      cfg,
		status:   status,
		screen:   screen,
		nav:      nav,
		classify: classify,
		exec:     exec,
		mana:     mana,
		grid:     grid,
		dump:     dump,
		log:      log,
		sleep:    time.Sleep,
	}
}

// Stop requests loop termination at the next cycle boundary.
func (c *Controller) Stop() {
	c.stop.Store(true)
}

// SetPaused toggles the pause flag. A paused loop keeps running cycles but
// only writes status, touching nothing on the device.
func (c *Controller) SetPaused(paused bool) {
	c.paused.Store(paused)
	c.status.SetPaused(paused)
	c.log.Info().Bool("paused", paused).Msg("pause toggled")
}

// Paused reports the current pause flag.
func (c *Controller) Paused() bool {
	return c.paused.Load()
}

// Run executes cycles until Stop is called. Cycle errors are logged and
// recorded in status; only a capture budget exhaustion triggers recovery,
// everything else just moves on to the next cycle.
func (c *Controller) Run() {
	c.log.Info().Msg("bot loop started")
	interval := time.Duration(c.cfg.CycleInterval) * time.Millisecond

	for !c.stop.Load() {
		if c.paused.Load() {
			c.status.SetStage("paused")
			c.saveStatus()
			c.sleep(interval)
			continue
		}

		err := c.RunCycle()
		c.status.SetError(err)
		if err != nil {
			c.log.Error().Err(err).Msg("cycle failed")
			if errors.Is(err, ErrRetryExhausted) {
				c.recover()
			}
		}
		c.saveStatus()
		c.sleep(interval)
	}
	c.status.SetStage("stopped")
	c.saveStatus()
	c.log.Info().Msg("bot loop stopped")
}

// RunCycle performs exactly one capture/classify/dispatch pass.
func (c *Controller) RunCycle() error {
	if c.combatLoops > c.cfg.MaxCombatLoops {
		c.log.Warn().Int("loops", c.combatLoops).Msg("combat loop budget spent, rotating")
		c.combatLoops = 0
		c.status.AddRestart()
		return c.nav.RestartGame()
	}

	state, matches, err := c.nav.CurrentState()
	if err != nil {
		return err
	}
	c.status.SetStage(state.String())

	switch state {
	case NavInBattle:
		c.menuWait = 0
		return c.battleCycle()

	case NavHome:
		c.menuWait = 0
		c.shamanChecked = false
		return c.homeCycle()

	case NavBattleEnd, NavMenu, NavStore, NavDungeonSelect, NavAd:
		c.menuWait = 0
		return c.nav.StepToHome(state, matches)

	default:
		c.menuWait++
		if c.menuWait > c.cfg.MenuWaitLimit {
			c.log.Warn().Int("cycles", c.menuWait).Msg("stuck on unknown screen, restarting game")
			c.menuWait = 0
			c.status.AddRestart()
			return c.nav.RestartGame()
		}
		return c.nav.StepToHome(state, matches)
	}
}

// battleCycle runs one in-battle round: shaman gate, mana upgrades, a
// spawn tap, then perception and one merge/place decision.
func (c *Controller) battleCycle() error {
	c.combatLoops++

	if c.cfg.RequireShaman && !c.shamanChecked {
		ok, err := c.nav.HasShamanOpponent()
		if err != nil {
			return err
		}
		if !ok {
			c.log.Info().Msg("no shaman opponent, leaving match")
			c.shamanChecked = false
			return c.nav.QuickDisconnect()
		}
		c.shamanChecked = true
	}

	c.exec.UpgradeMana(c.cfg.ManaCard, c.cfg.HeroPower)

	frame, err := c.screen.Refresh()
	if err != nil {
		return err
	}

	mana := -1
	if c.mana != nil {
		mana = c.mana.ReadMana(frame)
	}

	crops, err := c.grid.Segment(frame)
	if err != nil {
		return err
	}
	classes := make([]CellClass, len(crops))
	for i, crop := range crops {
		classes[i] = c.classify.Classify(crop)
	}
	board, err := BuildBoard(classes)
	if err != nil {
		return err
	}
	c.status.UpdateBoard(board, mana)
	c.dump.Dump(frame, board)

	if c.watchStagnation(board) {
		c.log.Warn().Int("cycles", c.stagnantSince).Msg("board stagnant, restarting game")
		c.stagnantSince = 0
		c.status.AddRestart()
		return c.nav.RestartGame()
	}

	action := Decide(board, mana, c.cfg)
	c.status.RecordAction(action.String())
	c.log.Debug().Stringer("action", action).Int("mana", mana).
		Int("empty", board.EmptyCount()).Msg("decided")

	if action.Kind == ActionWait {
		return nil
	}

	result, err := c.exec.Execute(action)
	if err != nil {
		return err
	}
	if result.Executed {
		c.screen.Invalidate()
		switch action.Kind {
		case ActionMerge:
			c.status.AddMerge()
		case ActionPlace:
			c.status.AddSpawn()
		}
	}
	return nil
}

// homeCycle collects pending rewards, refreshes the store, and starts the
// next battle.
func (c *Controller) homeCycle() error {
	if c.cfg.AutoAds {
		collected, err := c.nav.CollectRewards()
		if err != nil {
			return err
		}
		if collected {
			return nil
		}
	}
	if c.cfg.AutoStore {
		if err := c.nav.RefreshStore(); err != nil {
			c.log.Warn().Err(err).Msg("store refresh failed")
		}
	}

	c.status.AddBattle()
	c.stagnantSince = 0
	return c.nav.StartBattle()
}

// watchStagnation tracks the board fingerprint across battle cycles and
// reports true once it has been identical for the configured limit. A limit
// of zero disables the watchdog.
func (c *Controller) watchStagnation(board *BoardState) bool {
	if c.cfg.StagnationLimit <= 0 {
		return false
	}
	print := board.Fingerprint()
	if print == c.lastPrint {
		c.stagnantSince++
	} else {
		c.stagnantSince = 0
		c.lastPrint = print
	}
	return c.stagnantSince >= c.cfg.StagnationLimit
}

// recover handles capture budget exhaustion: give the device a moment,
// then restart the game so the next cycle starts from a known screen.
func (c *Controller) recover() {
	c.status.SetStage("recovering")
	c.sleep(2 * time.Second)
	c.status.AddRestart()
	if err := c.nav.RestartGame(); err != nil {
		c.log.Error().Err(err).Msg("recovery restart failed")
	}
}

func (c *Controller) saveStatus() {
	if err := c.status.Save(); err != nil {
		c.log.Warn().Err(err).Msg("status write failed")
	}
}
