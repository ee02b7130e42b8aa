package main

import (
	"image"
	"image/color"
	"image/draw"
	"time"

	"github.com/rs/zerolog"
)

// fakeTransport records inputs and serves frames from a script. A nil
// frames slice makes every capture fail.
type fakeTransport struct {
	frames   []*image.RGBA
	captures int
	failures int // captures to fail before serving frames

	taps   []image.Point
	swipes [][4]int
	backs  int
	starts []string
	kills  []string
}

func (f *fakeTransport) Capture() (*image.RGBA, error) {
	f.captures++
	if f.captures <= f.failures {
		return nil, ErrCaptureFailed
	}
	if len(f.frames) == 0 {
		return nil, ErrCaptureFailed
	}
	frame := f.frames[0]
	if len(f.frames) > 1 {
		f.frames = f.frames[1:]
	}
	return frame, nil
}

func (f *fakeTransport) Tap(x, y int) error {
	f.taps = append(f.taps, image.Pt(x, y))
	return nil
}

func (f *fakeTransport) Swipe(x1, y1, x2, y2, durMs int) error {
	f.swipes = append(f.swipes, [4]int{x1, y1, x2, y2})
	return nil
}

func (f *fakeTransport) KeyBack() error {
	f.backs++
	return nil
}

func (f *fakeTransport) StartApp(pkg string) error {
	f.starts = append(f.starts, pkg)
	return nil
}

func (f *fakeTransport) KillApp(pkg string) error {
	f.kills = append(f.kills, pkg)
	return nil
}

// fakeMatcher returns scripted matches, one entry per call, repeating the
// last entry once the script runs out.
type fakeMatcher struct {
	script [][]IconMatch
	calls  int
}

func (f *fakeMatcher) current() []IconMatch {
	if len(f.script) == 0 {
		return nil
	}
	i := f.calls
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	return f.script[i]
}

func (f *fakeMatcher) Match(frame *image.RGBA) ([]IconMatch, error) {
	matches := f.current()
	f.calls++
	return matches, nil
}

func (f *fakeMatcher) Find(frame *image.RGBA, name string) (IconMatch, bool, error) {
	matches := f.current()
	f.calls++
	for _, m := range matches {
		if m.Name == name {
			return m, true, nil
		}
	}
	return IconMatch{}, false, nil
}

// solidImage returns a w by h image filled with one color.
func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

// testFrame returns a full reference-resolution frame with every grid cell
// painted per the cells map (position -> color); unpainted cells are black,
// which classifies as empty.
func testFrame(cells map[int]color.RGBA) *image.RGBA {
	frame := image.NewRGBA(image.Rect(0, 0, RefScreenW, RefScreenH))
	grid := DefaultGrid()
	for pos, c := range cells {
		draw.Draw(frame, grid.CellRect(pos), image.NewUniform(c), image.Point{}, draw.Src)
	}
	return frame
}

// Unit reference colors shared by the classifier tests.
var (
	colRed   = color.RGBA{R: 220, G: 40, B: 40, A: 255}
	colBlue  = color.RGBA{R: 40, G: 60, B: 220, A: 255}
	colGreen = color.RGBA{R: 40, G: 200, B: 80, A: 255}
)

// testRoster builds a roster from solid-color references: hunter is red,
// chemist blue, statue green, empty is black.
func testRoster() Roster {
	return Roster{
		EmptySig: ExtractSig(solidImage(120, 120, color.RGBA{R: 24, G: 24, B: 24, A: 255})),
		Units: []UnitRef{
			{Name: "hunter", Sig: ExtractSig(solidImage(120, 120, colRed))},
			{Name: "chemist", Sig: ExtractSig(solidImage(120, 120, colBlue))},
			{Name: "statue", Sig: ExtractSig(solidImage(120, 120, colGreen))},
		},
	}
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Units = []string{"hunter", "chemist", "statue", "bombardier"}
	cfg.DPSUnit = "hunter"
	cfg.PriorityUnits = []string{"chemist"}
	cfg.PreserveRules = map[string]int{"chemist": 1}
	cfg.PairEven = nil
	cfg.StatusPath = ""
	return &cfg
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func noSleep(time.Duration) {}

// boardFromSpecs builds classifications for a full board; unlisted cells
// are empty.
func boardFromSpecs(t interface{ Fatalf(string, ...interface{}) }, specs map[int]CellClass) *BoardState {
	classes := make([]CellClass, GridCells)
	for i := range classes {
		classes[i] = CellClass{Empty: true}
	}
	for pos, cl := range specs {
		classes[pos] = cl
	}
	board, err := BuildBoard(classes)
	if err != nil {
		t.Fatalf("BuildBoard: %v", err)
	}
	return board
}
