// Package main - navigate.go
//
// Navigation state machine. The current screen is inferred from which UI
// icons the matcher sees; transitions are taps, swipes and the back key,
// each verified against the next frame. Unrecoverable states end in an app
// restart.
package main

import (
	"fmt"
	"image"

	"github.com/rs/zerolog"
)

// NavState is the inferred game screen.
type NavState int

const (
	NavUnknown NavState = iota
	NavHome
	NavDungeonSelect
	NavInBattle
	NavBattleEnd
	NavStore
	NavAd
	NavMenu
)

func (s NavState) String() string {
	switch s {
	case NavHome:
		return "home"
	case NavDungeonSelect:
		return "dungeon_select"
	case NavInBattle:
		return "in_battle"
	case NavBattleEnd:
		return "battle_end"
	case NavStore:
		return "store"
	case NavAd:
		return "ad"
	case NavMenu:
		return "menu"
	default:
		return "unknown"
	}
}

// Icon names the state machine keys on. Each corresponds to a PNG in the
// assets directory.
const (
	iconFighting     = "fighting"
	iconContinue     = "0cont_button"
	iconQuit         = "1quit"
	iconHomeScreen   = "home_screen"
	iconBattleIcon   = "battle_icon"
	iconDungeonPage  = "dungeon_page"
	iconBackButton   = "back_button"
	iconFriendMenu   = "friend_menu"
	iconRefresh      = "refresh_button"
	iconQuestDone    = "quest_done"
	iconAdSeason     = "ad_season"
	iconAdPVE        = "ad_pve"
	iconShaman       = "shaman_opponent"
)

// Fixed navigation coordinates at the reference resolution.
var (
	pveButton     = image.Pt(640, 1259)
	pvpButton     = image.Pt(140, 1259)
	playButton    = image.Pt(500, 600)
	randomPartner = image.Pt(500, 800)
	storeButton   = image.Pt(100, 1500)
	storeTab      = image.Pt(475, 1300)
	storeBuy      = image.Pt(400, 1165)
	popupDismiss  = image.Pt(30, 150)
	scrollStop    = image.Pt(30, 600)
	adSkip        = image.Pt(870, 30)
	adPopupClose  = image.Pt(870, 100)
	friendDismiss = image.Pt(100, 600)
)

// Floor slot offsets relative to the located chapter header, keyed by
// floor % 3. Each chapter lists three floors vertically.
var floorSlotOffsets = map[int]image.Point{
	0: image.Pt(30, -460),
	1: image.Pt(30, 485),
	2: image.Pt(30, 885),
}

// chapterForFloor maps a dungeon floor to the chapter list entry holding it.
func chapterForFloor(floor int) int {
	switch {
	case floor <= 3:
		return 1
	case floor <= 6:
		return 2
	case floor <= 9:
		return 3
	case floor <= 12:
		return 4
	case floor == 13:
		return 5
	default:
		return 6
	}
}

// ClassifyScreen infers the navigation state from a set of icon matches.
// Priority matters: a fighting indicator without the post-battle continue
// button means an active battle regardless of what else is visible.
func ClassifyScreen(matches []IconMatch) NavState {
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		seen[m.Name] = true
	}

	switch {
	case seen[iconFighting] && !seen[iconContinue]:
		return NavInBattle
	case seen[iconContinue] || seen[iconQuit]:
		return NavBattleEnd
	case seen[iconHomeScreen] && seen[iconBattleIcon]:
		return NavHome
	case seen[iconDungeonPage]:
		return NavDungeonSelect
	case seen[iconRefresh]:
		return NavStore
	case seen[iconAdSeason] || seen[iconAdPVE]:
		return NavAd
	case seen[iconBackButton] || seen[iconBattleIcon] || seen[iconFriendMenu]:
		return NavMenu
	default:
		return NavUnknown
	}
}

// Navigator drives screen transitions.
type Navigator struct {
	screen    *Screen
	matcher   Matcher
	transport Transport
	cfg       *Config
	retry     RetryPolicy
	log       zerolog.Logger
}

func NewNavigator(screen *Screen, matcher Matcher, transport Transport, cfg *Config, retry RetryPolicy, log zerolog.Logger) *Navigator {
	return &Navigator{
		screen:    screen,
		matcher:   matcher,
		transport: transport,
		cfg:       cfg,
		retry:     retry,
		log:       log,
	}
}

// CurrentState captures a fresh frame and classifies it.
func (n *Navigator) CurrentState() (NavState, []IconMatch, error) {
	frame, err := n.screen.Refresh()
	if err != nil {
		return NavUnknown, nil, err
	}
	matches, err := n.matcher.Match(frame)
	if err != nil {
		return NavUnknown, nil, err
	}
	state := ClassifyScreen(matches)
	n.log.Debug().Stringer("state", state).Int("icons", len(matches)).Msg("screen classified")
	return state, matches, nil
}

// WaitFor polls until the wanted state appears, within the retry budget.
func (n *Navigator) WaitFor(want NavState) error {
	err := n.retry.Do(func(attempt int) (bool, error) {
		state, _, err := n.CurrentState()
		if err != nil {
			return false, err
		}
		if state == want {
			return true, nil
		}
		n.log.Debug().Stringer("want", want).Stringer("got", state).
			Int("attempt", attempt).Msg("waiting for screen")
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("waiting for %s: %w", want, err)
	}
	return nil
}

// StepToHome performs one corrective action towards the home screen based
// on the current state, the menu-traversal move of the original flow: tap
// whatever known escape button is visible, or force back.
func (n *Navigator) StepToHome(state NavState, matches []IconMatch) error {
	for _, name := range []string{iconBackButton, iconContinue, iconQuit, iconBattleIcon} {
		for _, m := range matches {
			if m.Name == name {
				return n.transport.Tap(m.Center.X, m.Center.Y)
			}
		}
	}
	for _, m := range matches {
		if m.Name == iconFriendMenu {
			return n.transport.Tap(friendDismiss.X, friendDismiss.Y)
		}
	}
	return n.transport.KeyBack()
}

// StartDungeon opens the PvE page and starts the configured floor: swipe
// the chapter list to the top, scroll until the chapter header is visible,
// expand it if collapsed, tap the floor slot, then play with a random
// partner and wait for the battle to begin.
func (n *Navigator) StartDungeon(floor int) error {
	if err := n.transport.Tap(pveButton.X, pveButton.Y); err != nil {
		return err
	}
	if err := n.WaitFor(NavDungeonSelect); err != nil {
		return err
	}

	for i := 0; i < 14; i++ {
		if err := n.transport.Swipe(30, 400, 30, 1200, 100); err != nil {
			return err
		}
	}
	if err := n.transport.Tap(scrollStop.X, scrollStop.Y); err != nil {
		return err
	}

	chapter := chapterForFloor(floor)
	chapterIcon := fmt.Sprintf("chapter_%d", chapter)

	var header IconMatch
	found := false
	scanErr := n.retry.Do(func(attempt int) (bool, error) {
		frame, err := n.screen.Refresh()
		if err != nil {
			return false, err
		}
		m, ok, err := n.matcher.Find(frame, chapterIcon)
		if err != nil {
			return false, err
		}
		if ok {
			header = m
			found = true
			return true, nil
		}
		// Scroll down two steps and settle before the next scan.
		for i := 0; i < 2; i++ {
			if err := n.transport.Swipe(30, 1200, 30, 400, 100); err != nil {
				return false, err
			}
		}
		return false, n.transport.Tap(scrollStop.X, scrollStop.Y)
	})
	if !found {
		return fmt.Errorf("chapter %d not found for floor %d: %w", chapter, floor, scanErr)
	}

	// A visible chapter icon means the chapter is collapsed; expand it.
	if err := n.transport.Tap(header.Center.X, header.Center.Y); err != nil {
		return err
	}

	off := floorSlotOffsets[floor%3]
	if err := n.transport.Tap(header.Center.X+off.X, header.Center.Y+off.Y); err != nil {
		return err
	}
	if err := n.transport.Tap(playButton.X, playButton.Y); err != nil {
		return err
	}
	if err := n.transport.Tap(randomPartner.X, randomPartner.Y); err != nil {
		return err
	}
	return n.WaitFor(NavInBattle)
}

// StartBattle launches either the dungeon floor or the coop ladder queue
// from the home screen.
func (n *Navigator) StartBattle() error {
	if n.cfg.PVE {
		return n.StartDungeon(n.cfg.Floor)
	}
	if err := n.transport.Tap(pvpButton.X, pvpButton.Y); err != nil {
		return err
	}
	return n.WaitFor(NavInBattle)
}

// HasShamanOpponent reports whether the shaman opponent indicator is on the
// current frame.
func (n *Navigator) HasShamanOpponent() (bool, error) {
	frame, err := n.screen.Frame()
	if err != nil {
		return false, err
	}
	_, ok, err := n.matcher.Find(frame, iconShaman)
	return ok, err
}

// RefreshStore opens the store, buys the free and legendary slots relative
// to the refresh button, then taps refresh for the ad reroll.
func (n *Navigator) RefreshStore() error {
	if err := n.transport.Tap(storeButton.X, storeButton.Y); err != nil {
		return err
	}
	if err := n.transport.Tap(storeTab.X, storeTab.Y); err != nil {
		return err
	}
	for i := 0; i < 5; i++ {
		if err := n.transport.Swipe(30, 400, 30, 1200, 100); err != nil {
			return err
		}
	}
	if err := n.transport.Tap(popupDismiss.X, popupDismiss.Y); err != nil {
		return err
	}

	frame, err := n.screen.Refresh()
	if err != nil {
		return err
	}
	refresh, ok, err := n.matcher.Find(frame, iconRefresh)
	if err != nil {
		return err
	}
	if !ok {
		n.log.Debug().Msg("store refresh button not visible")
		return nil
	}

	// Free item sits up-left of the refresh button, the legendary slot to
	// its right.
	taps := []image.Point{
		{X: refresh.Center.X - 300, Y: refresh.Center.Y - 820},
		storeBuy,
		popupDismiss,
		{X: refresh.Center.X + 400, Y: refresh.Center.Y - 400},
		storeBuy,
		popupDismiss,
		refresh.Center,
	}
	for _, p := range taps {
		if err := n.transport.Tap(p.X, p.Y); err != nil {
			return err
		}
	}
	n.log.Info().Msg("store refreshed")
	return nil
}

// CollectRewards handles completed quests and pending ad rewards from the
// home screen. It returns true when something was collected or an ad flow
// was entered.
func (n *Navigator) CollectRewards() (bool, error) {
	frame, err := n.screen.Refresh()
	if err != nil {
		return false, err
	}
	matches, err := n.matcher.Match(frame)
	if err != nil {
		return false, err
	}

	for _, m := range matches {
		switch m.Name {
		case iconQuestDone:
			if err := n.collectQuests(m.Center); err != nil {
				return false, err
			}
			return true, nil
		case iconAdSeason, iconAdPVE:
			if err := n.transport.Tap(m.Center.X, m.Center.Y); err != nil {
				return false, err
			}
			return true, n.escapeAd()
		}
	}
	return false, nil
}

func (n *Navigator) collectQuests(at image.Point) error {
	taps := []image.Point{
		at,
		{X: 700, Y: 600},
		{X: 700, Y: 400},
		{X: 150, Y: 250},
		{X: 150, Y: 250},
		{X: 420, Y: 420},
	}
	for _, p := range taps {
		if err := n.transport.Tap(p.X, p.Y); err != nil {
			return err
		}
	}
	n.log.Info().Msg("quests collected")
	return nil
}

// escapeAd pounds the skip and close regions until a known screen comes
// back, escalating to the back key and finally an app restart.
func (n *Navigator) escapeAd() error {
	err := n.retry.Do(func(attempt int) (bool, error) {
		state, _, err := n.CurrentState()
		if err != nil {
			return false, err
		}
		if state == NavHome || state == NavMenu {
			n.log.Info().Msg("ad finished")
			return true, nil
		}
		if err := n.transport.Tap(adSkip.X, adSkip.Y); err != nil {
			return false, err
		}
		if err := n.transport.Tap(adPopupClose.X, adPopupClose.Y); err != nil {
			return false, err
		}
		if attempt > n.retry.Attempts/2 {
			if err := n.transport.KeyBack(); err != nil {
				return false, err
			}
		}
		return false, nil
	})
	if err != nil {
		n.log.Warn().Msg("stuck in ad, restarting game")
		return n.RestartGame()
	}
	return nil
}

// RestartGame force-stops and relaunches the game package.
func (n *Navigator) RestartGame() error {
	n.log.Warn().Str("pkg", n.cfg.PackageName).Msg("restarting game")
	if err := n.transport.KillApp(n.cfg.PackageName); err != nil {
		return err
	}
	return n.transport.StartApp(n.cfg.PackageName)
}

// QuickDisconnect abandons the current match by spamming app relaunches,
// which drops the connection without the full restart cost. Used to
// re-queue when the shaman gate rejects the lobby.
func (n *Navigator) QuickDisconnect() error {
	n.log.Info().Msg("quick disconnect")
	for i := 0; i < 15; i++ {
		if err := n.transport.StartApp(n.cfg.PackageName); err != nil {
			return err
		}
	}
	return nil
}
