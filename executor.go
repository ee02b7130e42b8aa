// Package main - executor.go
//
// Turns decided actions into device input. Merges are a drag between two
// cell centers, placements a tap on the spawn button; grid coordinates come
// from the same GridLayout the segmenter uses, so perception and execution
// cannot disagree about where a cell is.
package main

import (
	"fmt"
	"image"

	"github.com/rs/zerolog"
)

// Fixed control coordinates at the reference resolution.
var (
	spawnButton = image.Pt(450, 1360)
	heroPower   = image.Pt(800, 1500)

	// Card upgrade buttons along the bottom bar, by slot 1..5.
	manaCardPos = map[int]image.Point{
		1: image.Pt(100, 1500),
		2: image.Pt(200, 1500),
		3: image.Pt(350, 1500),
		4: image.Pt(500, 1500),
		5: image.Pt(650, 1500),
	}
)

// mergeSwipeMs is the drag duration for a merge. Faster drags get dropped
// by the game's gesture recognizer.
const mergeSwipeMs = 300

// ExecutionResult reports what actually went out to the device.
type ExecutionResult struct {
	Executed bool
	Action   ActionCandidate
}

// Executor dispatches ActionCandidates to the transport.
type Executor struct {
	transport Transport
	grid      GridLayout
	log       zerolog.Logger
}

func NewExecutor(transport Transport, grid GridLayout, log zerolog.Logger) *Executor {
	return &Executor{transport: transport, grid: grid, log: log}
}

// Execute performs one action. Skip and wait actions touch nothing and
// report Executed false.
func (e *Executor) Execute(a ActionCandidate) (ExecutionResult, error) {
	switch a.Kind {
	case ActionMerge:
		if err := e.merge(a.From, a.To); err != nil {
			return ExecutionResult{Action: a}, err
		}
		e.log.Info().Str("unit", a.Unit).Int("rank", a.Rank).
			Int("from", a.From).Int("to", a.To).Msg("merged")
		return ExecutionResult{Executed: true, Action: a}, nil

	case ActionPlace:
		if err := e.transport.Tap(spawnButton.X, spawnButton.Y); err != nil {
			return ExecutionResult{Action: a}, fmt.Errorf("spawn tap: %w", err)
		}
		e.log.Info().Int("cell", a.To).Msg("spawned")
		return ExecutionResult{Executed: true, Action: a}, nil

	case ActionSkip, ActionWait:
		return ExecutionResult{Action: a}, nil

	default:
		return ExecutionResult{Action: a}, fmt.Errorf("unknown action kind %d", a.Kind)
	}
}

func (e *Executor) merge(from, to int) error {
	if from < 0 || from >= GridCells || to < 0 || to >= GridCells {
		return fmt.Errorf("merge cells %d->%d out of range", from, to)
	}
	if from == to {
		return fmt.Errorf("merge cell %d onto itself", from)
	}
	p0 := e.grid.CellCenter(from)
	p1 := e.grid.CellCenter(to)
	if err := e.transport.Swipe(p0.X, p0.Y, p1.X, p1.Y, mergeSwipeMs); err != nil {
		return fmt.Errorf("merge swipe %d->%d: %w", from, to, err)
	}
	return nil
}

// UpgradeMana taps the configured card upgrade slots and optionally the
// hero power button. Failed taps are logged and skipped; upgrades are
// opportunistic.
func (e *Executor) UpgradeMana(slots []int, hero bool) {
	for _, slot := range slots {
		p, ok := manaCardPos[slot]
		if !ok {
			continue
		}
		if err := e.transport.Tap(p.X, p.Y); err != nil {
			e.log.Warn().Err(err).Int("slot", slot).Msg("mana upgrade tap failed")
		}
	}
	if hero {
		if err := e.transport.Tap(heroPower.X, heroPower.Y); err != nil {
			e.log.Warn().Err(err).Msg("hero power tap failed")
		}
	}
}
