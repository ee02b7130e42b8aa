// Package main - tray.go
//
// System tray control surface. Uses getlantern/systray for a cross-platform
// tray menu with a read-only status line, pause/resume toggles and quit.
// The tray only flips the controller's cooperative flags; the loop itself
// never blocks on UI.
package main

import (
	"fmt"
	"time"

	"github.com/getlantern/systray"
)

// TrayApp manages the system tray menu.
type TrayApp struct {
	ctl    *Controller
	status *Status
	onExit func()

	statusItem *systray.MenuItem
	pauseItem  *systray.MenuItem
	resumeItem *systray.MenuItem
	quitItem   *systray.MenuItem
}

func NewTrayApp(ctl *Controller, status *Status, onExit func()) *TrayApp {
	return &TrayApp{ctl: ctl, status: status, onExit: onExit}
}

// Run starts the tray event loop. Blocks until Quit is selected or
// systray.Quit is called from elsewhere.
func (t *TrayApp) Run() {
	systray.Run(t.onReady, t.onExitHandler)
}

func (t *TrayApp) onReady() {
	systray.SetTitle("Rush Bot")
	systray.SetTooltip("Rush Royale farming bot")

	t.statusItem = systray.AddMenuItem("Status: starting", "Current bot stage")
	t.statusItem.Disable()
	systray.AddSeparator()
	t.pauseItem = systray.AddMenuItem("Pause", "Stop issuing input, keep watching")
	t.resumeItem = systray.AddMenuItem("Resume", "Resume the loop")
	t.resumeItem.Disable()
	systray.AddSeparator()
	t.quitItem = systray.AddMenuItem("Quit", "Stop the bot and exit")

	go t.handleEvents()
	go t.updateStatus()
}

func (t *TrayApp) handleEvents() {
	for {
		select {
		case <-t.pauseItem.ClickedCh:
			t.ctl.SetPaused(true)
			t.pauseItem.Disable()
			t.resumeItem.Enable()
		case <-t.resumeItem.ClickedCh:
			t.ctl.SetPaused(false)
			t.resumeItem.Disable()
			t.pauseItem.Enable()
		case <-t.quitItem.ClickedCh:
			systray.Quit()
			return
		}
	}
}

// updateStatus refreshes the read-only status line once a second.
func (t *TrayApp) updateStatus() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		t.statusItem.SetTitle(fmt.Sprintf("Status: %s", t.status.GetStage()))
	}
}

func (t *TrayApp) onExitHandler() {
	t.ctl.Stop()
	if t.onExit != nil {
		t.onExit()
	}
}
