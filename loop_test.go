package main

import (
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"
)

func TestScreenRetriesTransientCaptureFailures(t *testing.T) {
	transport := &fakeTransport{
		frames:   []*image.RGBA{testFrame(nil)},
		failures: 3,
	}
	retry := NewRetryPolicy(5, 0)
	retry.sleep = noSleep
	screen := NewScreen(transport, retry, testLogger())

	frame, err := screen.Refresh()
	if err != nil {
		t.Fatalf("Refresh: %v, want success within budget", err)
	}
	if frame == nil {
		t.Fatal("nil frame after successful refresh")
	}
	if transport.captures != 4 {
		t.Errorf("captures = %d, want 4 (three failures then success)", transport.captures)
	}
}

func TestScreenExhaustsCaptureBudget(t *testing.T) {
	transport := &fakeTransport{failures: 100}
	retry := NewRetryPolicy(5, 0)
	retry.sleep = noSleep
	screen := NewScreen(transport, retry, testLogger())

	_, err := screen.Refresh()
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("err = %v, want ErrRetryExhausted", err)
	}
	if !errors.Is(err, ErrCaptureFailed) {
		t.Fatalf("err = %v, want wrapped ErrCaptureFailed", err)
	}
	if transport.captures != 5 {
		t.Errorf("captures = %d, want exactly the budget of 5", transport.captures)
	}
}

func TestScreenFrameCaches(t *testing.T) {
	transport := &fakeTransport{frames: []*image.RGBA{testFrame(nil)}}
	screen := NewScreen(transport, NewRetryPolicy(1, 0), testLogger())

	if _, err := screen.Frame(); err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if _, err := screen.Frame(); err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if transport.captures != 1 {
		t.Errorf("captures = %d, want 1 (second Frame served from cache)", transport.captures)
	}

	screen.Invalidate()
	if _, err := screen.Frame(); err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if transport.captures != 2 {
		t.Errorf("captures = %d after Invalidate, want 2", transport.captures)
	}
}

func newTestController(t *testing.T, transport *fakeTransport, matcher *fakeMatcher) *Controller {
	t.Helper()
	cfg := testConfig()
	cfg.Units = []string{"hunter", "chemist", "statue"}
	cfg.ManaCard = nil
	cfg.HeroPower = false
	cfg.AutoAds = false
	cfg.AutoStore = false
	cfg.StatusPath = filepath.Join(t.TempDir(), "status.json")

	classifier, err := NewClassifier(testRoster(), nil, cfg.MSEThreshold)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}

	captureRetry := NewRetryPolicy(cfg.CaptureRetries, 0)
	captureRetry.sleep = noSleep
	navRetry := NewRetryPolicy(3, 0)
	navRetry.sleep = noSleep

	status := NewStatus(cfg.StatusPath)
	screen := NewScreen(transport, captureRetry, testLogger())
	nav := NewNavigator(screen, matcher, transport, cfg, navRetry, testLogger())
	exec := NewExecutor(transport, DefaultGrid(), testLogger())

	ctl := NewController(cfg, status, screen, nav, classifier, exec, nil,
		DefaultGrid(), nil, testLogger())
	ctl.sleep = noSleep
	return ctl
}

func TestRunCycleBattleMergesPair(t *testing.T) {
	// Two blue (chemist) cells on an otherwise dark board: the cycle should
	// classify them and issue one merge swipe between their centers.
	frame := testFrame(map[int]color.RGBA{2: colBlue, 8: colBlue})
	transport := &fakeTransport{frames: []*image.RGBA{frame}}
	matcher := &fakeMatcher{script: [][]IconMatch{icons(iconFighting)}}

	ctl := newTestController(t, transport, matcher)
	ctl.cfg.PriorityUnits = []string{"chemist"}
	ctl.cfg.PreserveRules = nil

	if err := ctl.RunCycle(); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if len(transport.swipes) != 1 {
		t.Fatalf("swipes = %v, want one merge drag", transport.swipes)
	}
	grid := DefaultGrid()
	from, to := grid.CellCenter(8), grid.CellCenter(2)
	got := transport.swipes[0]
	if got != [4]int{from.X, from.Y, to.X, to.Y} {
		t.Errorf("merge swipe = %v, want %v -> %v", got, from, to)
	}
}

func TestRunCycleUnknownScreenRestartsAfterLimit(t *testing.T) {
	transport := &fakeTransport{frames: []*image.RGBA{testFrame(nil)}}
	matcher := &fakeMatcher{} // never recognizes anything

	ctl := newTestController(t, transport, matcher)
	ctl.cfg.MenuWaitLimit = 3

	for i := 0; i < 3; i++ {
		if err := ctl.RunCycle(); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}
	if len(transport.kills) != 0 {
		t.Fatalf("restarted before the wait limit: %v", transport.kills)
	}
	if transport.backs != 3 {
		t.Errorf("backs = %d, want one per unknown cycle", transport.backs)
	}

	if err := ctl.RunCycle(); err != nil {
		t.Fatalf("limit cycle: %v", err)
	}
	if len(transport.kills) != 1 || len(transport.starts) != 1 {
		t.Errorf("kills=%v starts=%v, want a restart past the limit", transport.kills, transport.starts)
	}
}

func TestWatchStagnation(t *testing.T) {
	ctl := newTestController(t, &fakeTransport{}, &fakeMatcher{})
	ctl.cfg.StagnationLimit = 3

	same := boardFromSpecs(t, map[int]CellClass{0: {Unit: "hunter", Rank: 2}})
	other := boardFromSpecs(t, map[int]CellClass{0: {Unit: "hunter", Rank: 3}})

	if ctl.watchStagnation(same) {
		t.Fatal("stagnant on first sight")
	}
	if ctl.watchStagnation(same) || ctl.watchStagnation(same) {
		t.Fatal("stagnant before the limit")
	}
	if !ctl.watchStagnation(same) {
		t.Fatal("not stagnant at the limit")
	}

	ctl.stagnantSince = 0
	ctl.lastPrint = ""
	ctl.watchStagnation(same)
	ctl.watchStagnation(same)
	if ctl.watchStagnation(other) {
		t.Fatal("board change did not reset the watchdog")
	}
}

func TestRunCycleCombatBudgetRotation(t *testing.T) {
	transport := &fakeTransport{frames: []*image.RGBA{testFrame(nil)}}
	matcher := &fakeMatcher{script: [][]IconMatch{icons(iconFighting)}}

	ctl := newTestController(t, transport, matcher)
	ctl.cfg.MaxCombatLoops = 5
	ctl.combatLoops = 6

	if err := ctl.RunCycle(); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(transport.kills) != 1 {
		t.Errorf("kills = %v, want rotation restart", transport.kills)
	}
	if ctl.combatLoops != 0 {
		t.Errorf("combatLoops = %d, want reset", ctl.combatLoops)
	}
}

func TestControllerPauseFlag(t *testing.T) {
	ctl := newTestController(t, &fakeTransport{}, &fakeMatcher{})
	if ctl.Paused() {
		t.Fatal("paused at start")
	}
	ctl.SetPaused(true)
	if !ctl.Paused() {
		t.Fatal("pause flag not set")
	}
	ctl.SetPaused(false)
	if ctl.Paused() {
		t.Fatal("pause flag not cleared")
	}
}
