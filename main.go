// Package main - main.go
//
// Entry point: config, logging, device transport, recognition assets, the
// bot loop and the tray UI. The loop runs in a goroutine; the tray owns the
// main thread.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/getlantern/systray"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Lock to main thread for tray UI (macOS requirement)
	runtime.LockOSThread()

	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog, err := setupLogging(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	log.Logger = logger

	logger.Info().Str("pkg", cfg.PackageName).Int("floor", cfg.Floor).
		Bool("pve", cfg.PVE).Msg("rush bot starting")

	transport, err := NewAdbTransport(cfg.Device, cfg.ADBPath, cfg.OnDevice, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("device connection failed")
	}

	grid := DefaultGrid()
	if err := checkResolution(transport, logger); err != nil {
		logger.Fatal().Err(err).Msg("resolution check failed")
	}

	roster, err := LoadRoster(cfg.AssetsPath, cfg.Units, cfg.Margins, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("roster load failed")
	}
	rankModel, err := LoadRankModel(cfg.AssetsPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("rank model load failed")
	}
	classifier, err := NewClassifier(roster, rankModel, cfg.MSEThreshold)
	if err != nil {
		logger.Fatal().Err(err).Msg("classifier init failed")
	}

	icons, err := LoadIcons(cfg.AssetsPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("icon load failed")
	}
	matcher, err := NewTemplateMatcher(icons, cfg.IconThreshold)
	if err != nil {
		logger.Fatal().Err(err).Msg("matcher init failed")
	}
	defer matcher.Close()

	manaReader, err := NewTesseractReader(logger)
	if err != nil {
		logger.Warn().Err(err).Msg("tesseract unavailable, mana readout disabled")
		manaReader = nil
	} else {
		defer manaReader.Close()
	}

	captureRetry := NewRetryPolicy(cfg.CaptureRetries, SettleDelay)
	navRetry := NewRetryPolicy(cfg.NavRetries, time.Duration(cfg.NavDelay)*time.Millisecond)

	status := NewStatus(cfg.StatusPath)
	screen := NewScreen(transport, captureRetry, logger)
	nav := NewNavigator(screen, matcher, transport, cfg, navRetry, logger)
	exec := NewExecutor(transport, grid, logger)
	dump := NewFrameDumper(cfg.Debug, cfg.DebugPath, grid, logger)

	var mana ManaReader
	if manaReader != nil {
		mana = manaReader
	}
	ctl := NewController(cfg, status, screen, nav, classifier, exec, mana, grid, dump, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("shutdown signal received")
		ctl.Stop()
		systray.Quit()
	}()

	go ctl.Run()

	tray := NewTrayApp(ctl, status, func() {
		logger.Info().Msg("rush bot stopped")
	})
	tray.Run()
}

// setupLogging builds the console writer plus an optional file sink.
func setupLogging(cfg *Config) (zerolog.Logger, func(), error) {
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}

	if cfg.LogPath == "" {
		logger := zerolog.New(console).Level(level).With().Timestamp().Logger()
		return logger, func() {}, nil
	}

	file, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return zerolog.Logger{}, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := zerolog.New(io.MultiWriter(console, file)).Level(level).With().Timestamp().Logger()
	return logger, func() { file.Close() }, nil
}

// checkResolution captures one frame and compares it to the reference
// geometry. A mismatched emulator would make every fixed coordinate wrong,
// so this fails loudly at startup.
func checkResolution(transport Transport, logger zerolog.Logger) error {
	frame, err := transport.Capture()
	if err != nil {
		return err
	}
	w, h := frame.Bounds().Dx(), frame.Bounds().Dy()
	if w != RefScreenW || h != RefScreenH {
		return fmt.Errorf("device resolution %dx%d, need %dx%d", w, h, RefScreenW, RefScreenH)
	}
	logger.Debug().Int("w", w).Int("h", h).Msg("resolution ok")
	return nil
}
