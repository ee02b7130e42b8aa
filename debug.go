// Package main - debug.go
//
// Annotated frame dumps for diagnosing misclassifications. When enabled,
// each battle cycle writes the captured frame with the grid and per-cell
// labels drawn on it.
package main

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// FrameDumper writes annotated frames to the debug directory. A nil or
// disabled dumper is a no-op, so call sites never check the flag.
type FrameDumper struct {
	enabled bool
	dir     string
	grid    GridLayout
	log     zerolog.Logger
}

func NewFrameDumper(enabled bool, dir string, grid GridLayout, log zerolog.Logger) *FrameDumper {
	if enabled {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("debug dir creation failed, dumps disabled")
			enabled = false
		}
	}
	return &FrameDumper{enabled: enabled, dir: dir, grid: grid, log: log}
}

// Dump draws the grid and classifications onto a copy of the frame and
// saves it. Failures are logged, never propagated.
func (d *FrameDumper) Dump(frame *image.RGBA, board *BoardState) {
	if d == nil || !d.enabled || frame == nil || board == nil {
		return
	}

	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		d.log.Warn().Err(err).Msg("debug frame convert failed")
		return
	}
	defer mat.Close()

	gridColor := color.RGBA{0, 255, 0, 255}
	textColor := color.RGBA{255, 255, 0, 255}
	for _, cell := range board.Cells {
		rect := d.grid.CellRect(cell.Pos)
		gocv.Rectangle(&mat, rect, gridColor, 1)

		label := "-"
		if !cell.Empty {
			label = fmt.Sprintf("%s:%d", cell.Unit, cell.Rank)
		}
		gocv.PutText(&mat, label,
			image.Pt(rect.Min.X+2, rect.Max.Y-6),
			gocv.FontHersheyPlain, 0.8, textColor, 1)
	}

	path := filepath.Join(d.dir, fmt.Sprintf("frame_%s.png", time.Now().Format("150405.000")))
	if ok := gocv.IMWrite(path, mat); !ok {
		d.log.Warn().Str("path", path).Msg("debug frame write failed")
	}
}
