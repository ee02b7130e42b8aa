// Package main - board.go
//
// Board state assembled from the 15 per-cell classifications. The builder
// normalizes cells so downstream code can rely on simple invariants: an
// empty cell carries no unit or rank, an occupied one always carries both.
package main

import (
	"fmt"
	"sort"
	"strings"
)

// CellState is one grid cell after classification.
type CellState struct {
	Pos        int // row-major index 0..14
	Row        int
	Col        int
	Empty      bool
	Unit       string
	Rank       int
	Confidence float64
}

// BoardState is the full 3x5 grid for one cycle.
type BoardState struct {
	Cells [GridCells]CellState
}

// GroupKey identifies a merge group: same unit at the same rank.
type GroupKey struct {
	Unit string
	Rank int
}

// BuildBoard assembles a BoardState from per-cell classifications,
// normalizing inconsistent cells. A cell claiming a unit with a rank outside
// the valid range is clamped; a cell with no unit name is forced empty.
func BuildBoard(classes []CellClass) (*BoardState, error) {
	if len(classes) != GridCells {
		return nil, fmt.Errorf("board needs %d cells, got %d", GridCells, len(classes))
	}

	board := &BoardState{}
	for pos, cl := range classes {
		cell := CellState{
			Pos:        pos,
			Row:        pos / GridCols,
			Col:        pos % GridCols,
			Confidence: cl.Confidence,
		}
		switch {
		case cl.Empty || cl.Unit == "":
			cell.Empty = true
		default:
			cell.Unit = cl.Unit
			cell.Rank = cl.Rank
			if cell.Rank < MinRank {
				cell.Rank = MinRank
			}
			if cell.Rank > MaxRank {
				cell.Rank = MaxRank
			}
		}
		board.Cells[pos] = cell
	}
	return board, nil
}

// EmptyCount returns the number of unoccupied cells.
func (b *BoardState) EmptyCount() int {
	n := 0
	for _, c := range b.Cells {
		if c.Empty {
			n++
		}
	}
	return n
}

// UnitCount returns how many cells hold the named unit at any rank.
func (b *BoardState) UnitCount(unit string) int {
	n := 0
	for _, c := range b.Cells {
		if !c.Empty && c.Unit == unit {
			n++
		}
	}
	return n
}

// Groups buckets occupied cells by (unit, rank), positions ascending within
// each group.
func (b *BoardState) Groups() map[GroupKey][]int {
	groups := make(map[GroupKey][]int)
	for _, c := range b.Cells {
		if c.Empty {
			continue
		}
		key := GroupKey{Unit: c.Unit, Rank: c.Rank}
		groups[key] = append(groups[key], c.Pos)
	}
	return groups
}

// EmptyCells returns the indices of unoccupied cells, ascending.
func (b *BoardState) EmptyCells() []int {
	var cells []int
	for _, c := range b.Cells {
		if c.Empty {
			cells = append(cells, c.Pos)
		}
	}
	return cells
}

// Fingerprint is a canonical string of the board contents, used by the
// stagnation watchdog. Confidence is excluded so jitter does not defeat the
// comparison.
func (b *BoardState) Fingerprint() string {
	var sb strings.Builder
	for _, c := range b.Cells {
		if c.Empty {
			sb.WriteString("-|")
			continue
		}
		fmt.Fprintf(&sb, "%s:%d|", c.Unit, c.Rank)
	}
	return sb.String()
}

// SortedGroupKeys returns the group keys in a deterministic order: unit
// name, then rank descending (higher ranks merge first).
func SortedGroupKeys(groups map[GroupKey][]int) []GroupKey {
	keys := make([]GroupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Unit != keys[j].Unit {
			return keys[i].Unit < keys[j].Unit
		}
		return keys[i].Rank > keys[j].Rank
	})
	return keys
}
