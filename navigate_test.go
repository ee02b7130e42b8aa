package main

import (
	"errors"
	"image"
	"testing"
)

func icons(names ...string) []IconMatch {
	var matches []IconMatch
	for i, n := range names {
		matches = append(matches, IconMatch{
			Name:   n,
			Pos:    image.Pt(100*i, 100),
			Center: image.Pt(100*i+25, 125),
			Score:  0.9,
		})
	}
	return matches
}

func TestClassifyScreen(t *testing.T) {
	cases := []struct {
		name  string
		seen  []IconMatch
		want  NavState
	}{
		{"no icons", nil, NavUnknown},
		{"fighting", icons(iconFighting), NavInBattle},
		{"fighting with continue is battle end", icons(iconFighting, iconContinue), NavBattleEnd},
		{"quit prompt", icons(iconQuit), NavBattleEnd},
		{"home", icons(iconHomeScreen, iconBattleIcon), NavHome},
		{"home screen alone is not home", icons(iconHomeScreen), NavUnknown},
		{"dungeon", icons(iconDungeonPage), NavDungeonSelect},
		{"store", icons(iconRefresh), NavStore},
		{"ad", icons(iconAdSeason), NavAd},
		{"menu via back", icons(iconBackButton), NavMenu},
		{"fighting beats menu icons", icons(iconBackButton, iconFighting), NavInBattle},
	}
	for _, tc := range cases {
		if got := ClassifyScreen(tc.seen); got != tc.want {
			t.Errorf("%s: ClassifyScreen = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func newTestNavigator(transport *fakeTransport, matcher *fakeMatcher, attempts int) *Navigator {
	cfg := testConfig()
	retry := NewRetryPolicy(attempts, 0)
	retry.sleep = noSleep
	screen := NewScreen(transport, NewRetryPolicy(1, 0), testLogger())
	return NewNavigator(screen, matcher, transport, cfg, retry, testLogger())
}

func TestWaitForExactBudget(t *testing.T) {
	transport := &fakeTransport{frames: []*image.RGBA{testFrame(nil)}}
	matcher := &fakeMatcher{} // never shows the wanted screen

	nav := newTestNavigator(transport, matcher, 6)
	err := nav.WaitFor(NavHome)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("err = %v, want ErrRetryExhausted", err)
	}
	if matcher.calls != 6 {
		t.Errorf("polled %d times, want exactly the budget of 6", matcher.calls)
	}
}

func TestWaitForStopsOnMatch(t *testing.T) {
	transport := &fakeTransport{frames: []*image.RGBA{testFrame(nil)}}
	matcher := &fakeMatcher{script: [][]IconMatch{
		nil,
		nil,
		icons(iconHomeScreen, iconBattleIcon),
	}}

	nav := newTestNavigator(transport, matcher, 10)
	if err := nav.WaitFor(NavHome); err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
	if matcher.calls != 3 {
		t.Errorf("polled %d times, want 3", matcher.calls)
	}
}

func TestStepToHomeTapsKnownEscape(t *testing.T) {
	transport := &fakeTransport{}
	matcher := &fakeMatcher{}
	nav := newTestNavigator(transport, matcher, 3)

	matches := icons(iconBackButton)
	if err := nav.StepToHome(NavMenu, matches); err != nil {
		t.Fatalf("StepToHome: %v", err)
	}
	if len(transport.taps) != 1 || transport.taps[0] != matches[0].Center {
		t.Errorf("taps = %v, want the back button center", transport.taps)
	}
	if transport.backs != 0 {
		t.Errorf("back key pressed %d times, want 0", transport.backs)
	}
}

func TestStepToHomeFallsBackToBackKey(t *testing.T) {
	transport := &fakeTransport{}
	matcher := &fakeMatcher{}
	nav := newTestNavigator(transport, matcher, 3)

	if err := nav.StepToHome(NavUnknown, nil); err != nil {
		t.Fatalf("StepToHome: %v", err)
	}
	if transport.backs != 1 {
		t.Errorf("back key pressed %d times, want 1", transport.backs)
	}
}

func TestChapterForFloor(t *testing.T) {
	cases := map[int]int{1: 1, 3: 1, 4: 2, 6: 2, 7: 3, 9: 3, 10: 4, 12: 4, 13: 5, 14: 6}
	for floor, want := range cases {
		if got := chapterForFloor(floor); got != want {
			t.Errorf("chapterForFloor(%d) = %d, want %d", floor, got, want)
		}
	}
}

func TestStartDungeonHappyPath(t *testing.T) {
	transport := &fakeTransport{frames: []*image.RGBA{testFrame(nil)}}
	header := IconMatch{Name: "chapter_2", Pos: image.Pt(400, 380), Center: image.Pt(450, 400), Score: 0.9}
	matcher := &fakeMatcher{script: [][]IconMatch{
		icons(iconDungeonPage),        // WaitFor dungeon page
		{header},                      // chapter scan
		icons(iconFighting),           // WaitFor battle
	}}

	nav := newTestNavigator(transport, matcher, 5)
	if err := nav.StartDungeon(5); err != nil {
		t.Fatalf("StartDungeon: %v", err)
	}

	// Floor 5 is slot 5%3=2 under its chapter header.
	off := floorSlotOffsets[2]
	wantSlot := image.Pt(header.Center.X+off.X, header.Center.Y+off.Y)
	var sawSlot, sawPlay, sawPartner bool
	for _, tap := range transport.taps {
		switch tap {
		case wantSlot:
			sawSlot = true
		case playButton:
			sawPlay = true
		case randomPartner:
			sawPartner = true
		}
	}
	if !sawSlot || !sawPlay || !sawPartner {
		t.Errorf("taps %v missing slot/play/partner (%v/%v/%v)",
			transport.taps, sawSlot, sawPlay, sawPartner)
	}
}

func TestRestartGameKillsThenStarts(t *testing.T) {
	transport := &fakeTransport{}
	nav := newTestNavigator(transport, &fakeMatcher{}, 3)

	if err := nav.RestartGame(); err != nil {
		t.Fatalf("RestartGame: %v", err)
	}
	if len(transport.kills) != 1 || len(transport.starts) != 1 {
		t.Fatalf("kills=%v starts=%v, want one each", transport.kills, transport.starts)
	}
	if transport.kills[0] != nav.cfg.PackageName {
		t.Errorf("killed %q, want configured package", transport.kills[0])
	}
}
