// Package main - vision.go
//
// Screen perception: icon template matching over the full frame and fixed
// grid geometry for cutting the unit board into per-cell crops. Geometry is
// pure Go so it tests without OpenCV; template matching goes through gocv.
package main

import (
	"fmt"
	"image"
	"image/draw"
	"sort"

	"gocv.io/x/gocv"
)

// Board geometry at the reference resolution. The grid is 3 rows by 5
// columns, addressed row-major 0..14.
const (
	GridRows  = 3
	GridCols  = 5
	GridCells = GridRows * GridCols
)

// GridLayout fixes the pixel geometry of the unit board.
type GridLayout struct {
	OriginX int
	OriginY int
	CellW   int
	CellH   int
}

// DefaultGrid is the board geometry at the 900x1600 reference resolution.
func DefaultGrid() GridLayout {
	return GridLayout{OriginX: 153, OriginY: 945, CellW: 120, CellH: 120}
}

// CellOrigin returns the top-left pixel of cell pos (row-major 0..14).
func (g GridLayout) CellOrigin(pos int) image.Point {
	row := pos / GridCols
	col := pos % GridCols
	return image.Pt(g.OriginX+col*g.CellW, g.OriginY+row*g.CellH)
}

// CellCenter returns the pixel the executor taps or drags for cell pos.
func (g GridLayout) CellCenter(pos int) image.Point {
	o := g.CellOrigin(pos)
	return image.Pt(o.X+g.CellW/2, o.Y+g.CellH/2)
}

// CellRect returns the crop rectangle of cell pos.
func (g GridLayout) CellRect(pos int) image.Rectangle {
	o := g.CellOrigin(pos)
	return image.Rect(o.X, o.Y, o.X+g.CellW, o.Y+g.CellH)
}

// Bounds returns the rectangle covering the whole grid.
func (g GridLayout) Bounds() image.Rectangle {
	return image.Rect(g.OriginX, g.OriginY,
		g.OriginX+GridCols*g.CellW, g.OriginY+GridRows*g.CellH)
}

// Segment cuts the frame into 15 per-cell crops in row-major order. The
// frame must cover the full grid rectangle.
func (g GridLayout) Segment(frame *image.RGBA) ([]*image.RGBA, error) {
	if frame == nil {
		return nil, fmt.Errorf("segment: nil frame")
	}
	if !g.Bounds().In(frame.Bounds()) {
		return nil, fmt.Errorf("segment: frame %v does not cover grid %v",
			frame.Bounds(), g.Bounds())
	}

	crops := make([]*image.RGBA, GridCells)
	for pos := 0; pos < GridCells; pos++ {
		rect := g.CellRect(pos)
		crop := image.NewRGBA(image.Rect(0, 0, g.CellW, g.CellH))
		draw.Draw(crop, crop.Bounds(), frame, rect.Min, draw.Src)
		crops[pos] = crop
	}
	return crops, nil
}

// IconMatch is one located template on the frame. Pos is the match
// top-left; Center is what gets tapped.
type IconMatch struct {
	Name   string
	Pos    image.Point
	Center image.Point
	Score  float32
}

// Matcher finds known UI icons on a frame.
type Matcher interface {
	// Match returns every icon scoring at or above the threshold, best
	// score first, with overlapping duplicates suppressed.
	Match(frame *image.RGBA) ([]IconMatch, error)
	// Find returns the best match for a single named icon and whether it
	// cleared the threshold.
	Find(frame *image.RGBA, name string) (IconMatch, bool, error)
}

// overlapRadius collapses repeated detections of the same template within
// this many pixels into the single best-scoring one.
const overlapRadius = 50

// TemplateMatcher runs normalized cross-correlation template matching for a
// fixed icon set.
type TemplateMatcher struct {
	threshold float32
	names     []string
	templates map[string]gocv.Mat
	sizes     map[string]image.Point
}

// NewTemplateMatcher takes ownership of the icon images. Icon names are
// iterated in sorted order so results are stable across runs.
func NewTemplateMatcher(icons map[string]image.Image, threshold float32) (*TemplateMatcher, error) {
	if len(icons) == 0 {
		return nil, fmt.Errorf("no icon templates provided")
	}
	m := &TemplateMatcher{
		threshold: threshold,
		templates: make(map[string]gocv.Mat, len(icons)),
		sizes:     make(map[string]image.Point, len(icons)),
	}
	for name, img := range icons {
		mat, err := gocv.ImageToMatRGB(img)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("icon %s: %w", name, err)
		}
		m.templates[name] = mat
		b := img.Bounds()
		m.sizes[name] = image.Pt(b.Dx(), b.Dy())
		m.names = append(m.names, name)
	}
	sort.Strings(m.names)
	return m, nil
}

// Close releases the template mats.
func (m *TemplateMatcher) Close() {
	for _, mat := range m.templates {
		mat.Close()
	}
	m.templates = nil
}

// Match runs every template over the frame.
func (m *TemplateMatcher) Match(frame *image.RGBA) ([]IconMatch, error) {
	frameMat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return nil, fmt.Errorf("frame to mat: %w", err)
	}
	defer frameMat.Close()

	var matches []IconMatch
	for _, name := range m.names {
		found, err := m.matchOne(frameMat, name)
		if err != nil {
			return nil, err
		}
		matches = append(matches, found...)
	}
	matches = suppressOverlaps(matches, overlapRadius)
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches, nil
}

// Find locates a single named icon.
func (m *TemplateMatcher) Find(frame *image.RGBA, name string) (IconMatch, bool, error) {
	tmpl, ok := m.templates[name]
	if !ok {
		return IconMatch{}, false, fmt.Errorf("unknown icon %q", name)
	}
	frameMat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return IconMatch{}, false, fmt.Errorf("frame to mat: %w", err)
	}
	defer frameMat.Close()

	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.MatchTemplate(frameMat, tmpl, &result, gocv.TmCcoeffNormed, mask)

	_, maxVal, _, maxLoc := gocv.MinMaxLoc(result)
	if maxVal < m.threshold {
		return IconMatch{}, false, nil
	}
	size := m.sizes[name]
	return IconMatch{
		Name:   name,
		Pos:    maxLoc,
		Center: image.Pt(maxLoc.X+size.X/2, maxLoc.Y+size.Y/2),
		Score:  maxVal,
	}, true, nil
}

// matchOne collects every above-threshold location of one template by
// repeatedly taking the global maximum and masking it out.
func (m *TemplateMatcher) matchOne(frameMat gocv.Mat, name string) ([]IconMatch, error) {
	tmpl := m.templates[name]
	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.MatchTemplate(frameMat, tmpl, &result, gocv.TmCcoeffNormed, mask)

	size := m.sizes[name]
	var matches []IconMatch
	for {
		_, maxVal, _, maxLoc := gocv.MinMaxLoc(result)
		if maxVal < m.threshold {
			break
		}
		matches = append(matches, IconMatch{
			Name:   name,
			Pos:    maxLoc,
			Center: image.Pt(maxLoc.X+size.X/2, maxLoc.Y+size.Y/2),
			Score:  maxVal,
		})

		// Zero a window around the maximum so the next iteration finds the
		// next peak instead of the same one.
		x0 := maxLoc.X - overlapRadius
		y0 := maxLoc.Y - overlapRadius
		for y := y0; y < y0+2*overlapRadius; y++ {
			if y < 0 || y >= result.Rows() {
				continue
			}
			for x := x0; x < x0+2*overlapRadius; x++ {
				if x < 0 || x >= result.Cols() {
					continue
				}
				result.SetFloatAt(y, x, 0)
			}
		}
	}
	return matches, nil
}

// suppressOverlaps drops matches of the same icon whose positions fall
// within radius of an already accepted higher-scoring match. Pure so the
// de-duplication rule tests without OpenCV.
func suppressOverlaps(matches []IconMatch, radius int) []IconMatch {
	ordered := make([]IconMatch, len(matches))
	copy(ordered, matches)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})

	kept := ordered[:0]
	for _, m := range ordered {
		dup := false
		for _, k := range kept {
			if k.Name != m.Name {
				continue
			}
			dx := k.Pos.X - m.Pos.X
			dy := k.Pos.Y - m.Pos.Y
			if dx*dx+dy*dy <= radius*radius {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, m)
		}
	}
	return kept
}
