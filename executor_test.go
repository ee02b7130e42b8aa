package main

import (
	"image"
	"testing"
)

func TestExecuteMergeDragsBetweenCellCenters(t *testing.T) {
	transport := &fakeTransport{}
	exec := NewExecutor(transport, DefaultGrid(), testLogger())

	result, err := exec.Execute(ActionCandidate{Kind: ActionMerge, From: 0, To: 6, Unit: "hunter", Rank: 1})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Executed {
		t.Fatal("merge not marked executed")
	}

	from := DefaultGrid().CellCenter(0)
	to := DefaultGrid().CellCenter(6)
	if len(transport.swipes) != 1 || transport.swipes[0] != [4]int{from.X, from.Y, to.X, to.Y} {
		t.Errorf("swipes = %v, want %v -> %v", transport.swipes, from, to)
	}
}

func TestExecuteMergeRejectsBadCells(t *testing.T) {
	exec := NewExecutor(&fakeTransport{}, DefaultGrid(), testLogger())

	if _, err := exec.Execute(ActionCandidate{Kind: ActionMerge, From: 3, To: 3}); err == nil {
		t.Error("self-merge accepted")
	}
	if _, err := exec.Execute(ActionCandidate{Kind: ActionMerge, From: -1, To: 3}); err == nil {
		t.Error("negative cell accepted")
	}
	if _, err := exec.Execute(ActionCandidate{Kind: ActionMerge, From: 0, To: GridCells}); err == nil {
		t.Error("out-of-range cell accepted")
	}
}

func TestExecutePlaceTapsSpawnButton(t *testing.T) {
	transport := &fakeTransport{}
	exec := NewExecutor(transport, DefaultGrid(), testLogger())

	result, err := exec.Execute(ActionCandidate{Kind: ActionPlace, To: 7})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Executed {
		t.Fatal("place not marked executed")
	}
	if len(transport.taps) != 1 || transport.taps[0] != spawnButton {
		t.Errorf("taps = %v, want the spawn button", transport.taps)
	}
}

func TestExecuteSkipTouchesNothing(t *testing.T) {
	transport := &fakeTransport{}
	exec := NewExecutor(transport, DefaultGrid(), testLogger())

	for _, kind := range []ActionKind{ActionSkip, ActionWait} {
		result, err := exec.Execute(ActionCandidate{Kind: kind})
		if err != nil {
			t.Fatalf("Execute(%v): %v", kind, err)
		}
		if result.Executed {
			t.Errorf("%v marked executed", kind)
		}
	}
	if len(transport.taps) != 0 || len(transport.swipes) != 0 {
		t.Errorf("device touched: taps=%v swipes=%v", transport.taps, transport.swipes)
	}
}

func TestUpgradeManaTapsConfiguredSlots(t *testing.T) {
	transport := &fakeTransport{}
	exec := NewExecutor(transport, DefaultGrid(), testLogger())

	exec.UpgradeMana([]int{1, 3}, true)

	want := []image.Point{manaCardPos[1], manaCardPos[3], heroPower}
	if len(transport.taps) != len(want) {
		t.Fatalf("taps = %v, want %v", transport.taps, want)
	}
	for i := range want {
		if transport.taps[i] != want[i] {
			t.Errorf("tap %d = %v, want %v", i, transport.taps[i], want[i])
		}
	}
}
