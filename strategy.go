// Package main - strategy.go
//
// Per-cycle decision engine. Decide is a pure function of (board, mana,
// config): same inputs, same action. Candidate ordering follows the roster
// declaration order and then position index, so repeated cycles over an
// unchanged board pick the same action instead of flapping.
package main

import "fmt"

// ActionKind enumerates what the executor can do with a decision.
type ActionKind int

const (
	ActionSkip ActionKind = iota
	ActionMerge
	ActionPlace
	ActionWait
)

func (k ActionKind) String() string {
	switch k {
	case ActionSkip:
		return "skip"
	case ActionMerge:
		return "merge"
	case ActionPlace:
		return "place"
	case ActionWait:
		return "wait"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// ActionCandidate is one decided action. For merges From and To are the two
// cell indices being combined; for places To is the target cell.
type ActionCandidate struct {
	Kind   ActionKind
	From   int
	To     int
	Unit   string
	Rank   int
	Reason string
}

func (a ActionCandidate) String() string {
	switch a.Kind {
	case ActionMerge:
		return fmt.Sprintf("merge %s r%d %d->%d (%s)", a.Unit, a.Rank, a.From, a.To, a.Reason)
	case ActionPlace:
		return fmt.Sprintf("place at %d (%s)", a.To, a.Reason)
	default:
		return fmt.Sprintf("%s (%s)", a.Kind, a.Reason)
	}
}

// dpsSaturation is the DPS-unit count at which the board is considered
// saturated and merging would only lose damage.
const dpsSaturation = 11

// generalMergeEmptyMax gates non-priority merges: only worth the tempo when
// the board is this full or fuller.
const generalMergeEmptyMax = 2

// Decide picks at most one action for the cycle. mana < 0 means the readout
// failed and affordability is assumed.
//
// Order of consideration:
//  1. DPS saturation: board flooded with the damage unit, wait it out.
//  2. Priority-unit merges, in the configured priority order.
//  3. General merges for the rest of the roster, but only on a crowded
//     board and never touching preserved units.
//  4. A spawn when there is room and mana allows.
func Decide(board *BoardState, mana int, cfg *Config) ActionCandidate {
	if board == nil {
		return ActionCandidate{Kind: ActionSkip, Reason: "no board"}
	}

	if cfg.DPSUnit != "" && board.UnitCount(cfg.DPSUnit) >= dpsSaturation {
		return ActionCandidate{Kind: ActionWait, Reason: "dps saturated"}
	}

	groups := board.Groups()
	empty := board.EmptyCount()

	for _, unit := range cfg.PriorityUnits {
		if a, ok := pickMerge(board, groups, unit, cfg); ok {
			a.Reason = "priority merge"
			return a
		}
	}

	if empty <= generalMergeEmptyMax {
		for _, unit := range cfg.Units {
			if isPriority(unit, cfg) {
				continue
			}
			if unit == cfg.DPSUnit {
				continue
			}
			if a, ok := pickMerge(board, groups, unit, cfg); ok {
				a.Reason = "board full"
				return a
			}
		}
		// Last resort on a full board with nothing else to merge: combine
		// the DPS unit rather than stall.
		if empty == 0 && cfg.DPSUnit != "" {
			if a, ok := pickDPSMerge(groups, cfg); ok {
				a.Reason = "forced dps merge"
				return a
			}
		}
	}

	if empty > 0 && (mana < 0 || mana >= cfg.SpawnCost) {
		target := placementTarget(board)
		return ActionCandidate{Kind: ActionPlace, To: target, Reason: "spawn"}
	}

	return ActionCandidate{Kind: ActionSkip, Reason: "nothing to do"}
}

func isPriority(unit string, cfg *Config) bool {
	for _, p := range cfg.PriorityUnits {
		if p == unit {
			return true
		}
	}
	return false
}

// pickMerge selects one merge for the named unit, highest rank first. The
// preserve rules run against the post-merge count: a merge that would drop
// the unit below its keep count, or leave a pair-even unit at an odd count,
// is rejected.
func pickMerge(board *BoardState, groups map[GroupKey][]int, unit string, cfg *Config) (ActionCandidate, bool) {
	total := board.UnitCount(unit)
	keep := cfg.PreserveRules[unit]
	pairEven := false
	for _, u := range cfg.PairEven {
		if u == unit {
			pairEven = true
		}
	}

	for rank := MaxRank - 1; rank >= MinRank; rank-- {
		if cfg.Preserve(unit, rank) {
			continue
		}
		positions := groups[GroupKey{Unit: unit, Rank: rank}]
		if len(positions) < 2 {
			continue
		}
		after := total - 1
		if after < keep {
			continue
		}
		if pairEven && after%2 != 0 {
			// Keep aura pairs intact unless a second copy of the pair
			// exists at this rank to restore evenness later.
			if len(positions) < 3 {
				continue
			}
		}
		return ActionCandidate{
			Kind: ActionMerge,
			From: positions[1],
			To:   positions[0],
			Unit: unit,
			Rank: rank,
		}, true
	}
	return ActionCandidate{}, false
}

// pickDPSMerge merges the lowest-rank DPS pair available, ignoring the
// preserve predicate. Only called on a completely full board.
func pickDPSMerge(groups map[GroupKey][]int, cfg *Config) (ActionCandidate, bool) {
	for rank := MinRank; rank < MaxRank; rank++ {
		positions := groups[GroupKey{Unit: cfg.DPSUnit, Rank: rank}]
		if len(positions) >= 2 {
			return ActionCandidate{
				Kind: ActionMerge,
				From: positions[1],
				To:   positions[0],
				Unit: cfg.DPSUnit,
				Rank: rank,
			}, true
		}
	}
	return ActionCandidate{}, false
}

// placementTarget picks the empty cell closest to the occupied cluster,
// lowest index on ties.
func placementTarget(board *BoardState) int {
	empties := board.EmptyCells()
	if len(empties) == 0 {
		return 0
	}

	best := empties[0]
	bestScore := -1
	for _, e := range empties {
		er, ec := e/GridCols, e%GridCols
		score := 0
		for _, c := range board.Cells {
			if c.Empty {
				continue
			}
			dr, dc := c.Row-er, c.Col-ec
			if dr >= -1 && dr <= 1 && dc >= -1 && dc <= 1 {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = e
		}
	}
	return best
}
