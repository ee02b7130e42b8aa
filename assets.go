// Package main - assets.go
//
// Loads the recognition assets: unit reference crops, UI icon templates and
// the rank model artifact. Layout under the assets directory:
//
//	assets/units/<name>.png   reference crops, empty.png required
//	assets/icons/<name>.png   UI icon templates
//	assets/rank_model.json    nearest-centroid rank artifact
package main

import (
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// LoadRoster builds the classifier roster from the configured deck. The
// empty-cell reference is mandatory; a missing unit image is a warning and
// the unit is skipped, but an entirely unreadable roster is fatal.
func LoadRoster(dir string, units []string, margins map[string]float64, log zerolog.Logger) (Roster, error) {
	var roster Roster

	emptyImg, err := loadPNG(filepath.Join(dir, "units", "empty.png"))
	if err != nil {
		return roster, fmt.Errorf("empty-cell reference: %w", err)
	}
	roster.EmptySig = ExtractSig(emptyImg)

	for _, unit := range units {
		img, err := loadPNG(filepath.Join(dir, "units", unit+".png"))
		if err != nil {
			log.Warn().Err(err).Str("unit", unit).Msg("unit reference missing, skipping")
			continue
		}
		roster.Units = append(roster.Units, UnitRef{
			Name:   unit,
			Sig:    ExtractSig(img),
			Margin: margins[unit],
		})
	}
	if len(roster.Units) == 0 {
		return roster, fmt.Errorf("no unit references loaded from %s", dir)
	}
	return roster, nil
}

// LoadIcons reads every PNG in the icons directory, keyed by file name
// without extension.
func LoadIcons(dir string) (map[string]image.Image, error) {
	iconDir := filepath.Join(dir, "icons")
	entries, err := os.ReadDir(iconDir)
	if err != nil {
		return nil, fmt.Errorf("icon directory: %w", err)
	}

	icons := make(map[string]image.Image)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".png") {
			continue
		}
		img, err := loadPNG(filepath.Join(iconDir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("icon %s: %w", e.Name(), err)
		}
		icons[strings.TrimSuffix(e.Name(), ".png")] = img
	}
	if len(icons) == 0 {
		return nil, fmt.Errorf("no icon templates in %s", iconDir)
	}
	return icons, nil
}

// LoadRankModel reads and validates the rank artifact. Rank classification
// cannot run without it, so a missing or malformed file is a startup error.
func LoadRankModel(dir string) (*RankModel, error) {
	path := filepath.Join(dir, "rank_model.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rank model: %w", err)
	}

	var model RankModel
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("rank model parse: %w", err)
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	return &model, nil
}

func loadPNG(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba, nil
}
