// Package main - device.go
//
// Device transport and screen capture. The emulator is driven over ADB
// through go-adbbot; everything above this file only sees the Transport
// interface (capture, tap, swipe, key and app control) so the loop can be
// tested against a fake device.
package main

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"time"

	"github.com/cs8425/go-adbbot/adbbot"
	"github.com/rs/zerolog"
)

// Transport failure sentinels, matched with errors.Is by the loop controller.
var (
	ErrCaptureFailed = errors.New("screen capture failed")
	ErrExecuteFailed = errors.New("input injection failed")
)

// Transport is the narrow device-control surface the bot consumes. Setup,
// reconnection and binary provisioning belong to the implementation.
type Transport interface {
	// Capture returns the current device frame. The frame is a fresh RGBA
	// image owned by the caller.
	Capture() (*image.RGBA, error)
	// Tap issues a single touch at screen coordinates.
	Tap(x, y int) error
	// Swipe issues a touch drag between two points over durMs milliseconds.
	Swipe(x1, y1, x2, y2, durMs int) error
	// KeyBack sends the hardware back key.
	KeyBack() error
	// StartApp launches the game package, KillApp force-stops it.
	StartApp(pkg string) error
	KillApp(pkg string) error
}

// AdbTransport drives a local ADB device via go-adbbot.
type AdbTransport struct {
	bot *adbbot.LocalBot
	log zerolog.Logger
}

// NewAdbTransport connects to the given device serial (empty selects the
// only attached device) using the adb binary at adbPath.
func NewAdbTransport(device, adbPath string, onDevice bool, log zerolog.Logger) (*AdbTransport, error) {
	bot := adbbot.NewLocalBot(device, adbPath)
	bot.IsOnDevice = onDevice

	if _, err := bot.Adb("wait-for-device"); err != nil {
		return nil, fmt.Errorf("adb wait-for-device: %w", err)
	}
	return &AdbTransport{bot: bot, log: log}, nil
}

func (t *AdbTransport) Capture() (*image.RGBA, error) {
	img, err := t.bot.Screencap()
	if err != nil {
		return nil, errors.Join(ErrCaptureFailed, err)
	}
	if img == nil {
		return nil, fmt.Errorf("%w: nil image from screencap", ErrCaptureFailed)
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("%w: zero-size frame %v", ErrCaptureFailed, bounds)
	}

	rgba, ok := img.(*image.RGBA)
	if !ok || !bounds.Min.Eq(image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}
	return rgba, nil
}

func (t *AdbTransport) Tap(x, y int) error {
	if err := t.bot.Click(image.Pt(x, y)); err != nil {
		return errors.Join(ErrExecuteFailed, err)
	}
	return nil
}

func (t *AdbTransport) Swipe(x1, y1, x2, y2, durMs int) error {
	if err := t.bot.SwipeT(image.Pt(x1, y1), image.Pt(x2, y2), durMs); err != nil {
		return errors.Join(ErrExecuteFailed, err)
	}
	return nil
}

func (t *AdbTransport) KeyBack() error {
	if err := t.bot.KeyBack(); err != nil {
		return errors.Join(ErrExecuteFailed, err)
	}
	return nil
}

func (t *AdbTransport) StartApp(pkg string) error {
	if err := t.bot.StartApp(pkg); err != nil {
		return errors.Join(ErrExecuteFailed, err)
	}
	return nil
}

func (t *AdbTransport) KillApp(pkg string) error {
	if err := t.bot.KillApp(pkg); err != nil {
		return errors.Join(ErrExecuteFailed, err)
	}
	return nil
}

// Screen caches at most one frame per decision cycle on top of a Transport.
// There is no automatic invalidation: callers that just issued input and
// need to see its effect call Refresh explicitly.
type Screen struct {
	transport Transport
	retry     RetryPolicy
	log       zerolog.Logger

	frame *image.RGBA
}

func NewScreen(transport Transport, retry RetryPolicy, log zerolog.Logger) *Screen {
	return &Screen{transport: transport, retry: retry, log: log}
}

// Frame returns the cached frame, capturing one if the cache is empty.
func (s *Screen) Frame() (*image.RGBA, error) {
	if s.frame != nil {
		return s.frame, nil
	}
	return s.Refresh()
}

// Refresh discards the cache and captures a new frame, retrying transient
// capture failures within the policy budget. Each failed attempt is logged
// as a warning; only budget exhaustion surfaces as an error.
func (s *Screen) Refresh() (*image.RGBA, error) {
	s.frame = nil
	err := s.retry.Do(func(attempt int) (bool, error) {
		frame, err := s.transport.Capture()
		if err != nil {
			s.log.Warn().Err(err).Int("attempt", attempt).Msg("capture failed")
			return false, err
		}
		s.frame = frame
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return s.frame, nil
}

// Invalidate drops the cached frame so the next Frame call captures anew.
func (s *Screen) Invalidate() {
	s.frame = nil
}

// SettleDelay is the pause between an input event and the next capture that
// is expected to reflect it. UI transition animations make anything shorter
// unreliable.
const SettleDelay = 100 * time.Millisecond
