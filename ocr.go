// Package main - ocr.go
//
// Numeric readout of the in-battle mana counter via tesseract. OCR is best
// effort: a failed read returns -1 and the decision engine treats
// affordability as unknown rather than blocking.
package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract"
	"github.com/rs/zerolog"
)

// manaRegion is where the mana counter renders at the reference resolution.
var manaRegion = image.Rect(400, 1272, 500, 1322)

// ManaReader reads the current mana from a frame. Implementations return
// -1 when the value cannot be read.
type ManaReader interface {
	ReadMana(frame *image.RGBA) int
}

// TesseractReader OCRs the mana counter with a digit whitelist.
type TesseractReader struct {
	client *gosseract.Client
	log    zerolog.Logger
}

func NewTesseractReader(log zerolog.Logger) (*TesseractReader, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage("eng"); err != nil {
		client.Close()
		return nil, fmt.Errorf("tesseract language: %w", err)
	}
	if err := client.SetWhitelist("0123456789"); err != nil {
		client.Close()
		return nil, fmt.Errorf("tesseract whitelist: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		client.Close()
		return nil, fmt.Errorf("tesseract psm: %w", err)
	}
	return &TesseractReader{client: client, log: log}, nil
}

// Close releases the tesseract client.
func (r *TesseractReader) Close() error {
	return r.client.Close()
}

// ReadMana crops the counter region, binarizes it, and OCRs the digits.
func (r *TesseractReader) ReadMana(frame *image.RGBA) int {
	if frame == nil || !manaRegion.In(frame.Bounds()) {
		return -1
	}

	prepared := binarizeForOCR(frame, manaRegion)

	var buf bytes.Buffer
	if err := png.Encode(&buf, prepared); err != nil {
		r.log.Debug().Err(err).Msg("mana crop encode failed")
		return -1
	}
	if err := r.client.SetImageFromBytes(buf.Bytes()); err != nil {
		r.log.Debug().Err(err).Msg("tesseract set image failed")
		return -1
	}
	text, err := r.client.Text()
	if err != nil {
		r.log.Debug().Err(err).Msg("mana ocr failed")
		return -1
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return -1
	}
	value, err := strconv.Atoi(text)
	if err != nil || value < 0 {
		r.log.Debug().Str("text", text).Msg("mana ocr produced non-numeric text")
		return -1
	}
	return value
}

// binarizeForOCR converts the region to high-contrast black-on-white with a
// white border, which is what tesseract reads digits best from.
func binarizeForOCR(frame *image.RGBA, region image.Rectangle) *image.RGBA {
	const pad = 8
	const threshold = 140

	w, h := region.Dx(), region.Dy()
	out := image.NewRGBA(image.Rect(0, 0, w+2*pad, h+2*pad))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := frame.RGBAAt(region.Min.X+x, region.Min.Y+y)
			gray := 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
			// Bright glyphs on a dark backdrop, so invert.
			if gray > threshold {
				out.SetRGBA(pad+x, pad+y, color.RGBA{A: 255})
			}
		}
	}
	return out
}
