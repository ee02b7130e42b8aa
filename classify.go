// Package main - classify.go
//
// Per-cell unit classification. Identity comes from a dominant-color
// signature compared against the roster references; rank comes from a
// nearest-centroid model over cheap image features. Everything here works on
// plain *image.RGBA so the classifier tests run without OpenCV.
package main

import (
	"fmt"
	"image"
	"math"
	"sort"
)

// Signature parameters. Colors are quantized into buckets of 20 per channel
// and near-black pixels (background) are skipped.
const (
	sigColors     = 3
	sigQuantize   = 20
	sigDarkCutoff = 30
)

// ColorSig is the top dominant colors of a crop, most frequent first. Fewer
// than sigColors entries means the crop was mostly dark.
type ColorSig [][3]float64

// ExtractSig computes the dominant-color signature of a cell crop.
func ExtractSig(img *image.RGBA) ColorSig {
	counts := make(map[[3]uint8]int)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			r := row[x*4]
			g := row[x*4+1]
			bl := row[x*4+2]
			if int(r)+int(g)+int(bl) < sigDarkCutoff {
				continue
			}
			key := [3]uint8{r / sigQuantize, g / sigQuantize, bl / sigQuantize}
			counts[key]++
		}
	}

	type bucket struct {
		key [3]uint8
		n   int
	}
	buckets := make([]bucket, 0, len(counts))
	for k, n := range counts {
		buckets = append(buckets, bucket{k, n})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].n != buckets[j].n {
			return buckets[i].n > buckets[j].n
		}
		// Lexicographic order among equally frequent buckets keeps the
		// signature stable across runs.
		a, b := buckets[i].key, buckets[j].key
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		return a[2] < b[2]
	})

	sig := make(ColorSig, 0, sigColors)
	for i := 0; i < len(buckets) && i < sigColors; i++ {
		k := buckets[i].key
		sig = append(sig, [3]float64{
			float64(k[0])*sigQuantize + sigQuantize/2,
			float64(k[1])*sigQuantize + sigQuantize/2,
			float64(k[2])*sigQuantize + sigQuantize/2,
		})
	}
	return sig
}

// SigDistance is the minimum mean squared error between any pairing of the
// two signatures' colors. Lower is more similar. Empty signatures are
// infinitely far from non-empty ones.
func SigDistance(a, b ColorSig) float64 {
	if len(a) == 0 || len(b) == 0 {
		if len(a) == len(b) {
			return 0
		}
		return math.Inf(1)
	}
	best := math.Inf(1)
	for _, ca := range a {
		for _, cb := range b {
			var mse float64
			for ch := 0; ch < 3; ch++ {
				d := ca[ch] - cb[ch]
				mse += d * d
			}
			mse /= 3
			if mse < best {
				best = mse
			}
		}
	}
	return best
}

// UnitRef is one roster entry: the reference signature plus an optional
// extra separation margin for units that look alike.
type UnitRef struct {
	Name   string
	Sig    ColorSig
	Margin float64
}

// Roster holds the deck references in declaration order. Order matters:
// ties in match distance resolve to the earlier unit, keeping repeated
// classifications of the same crop stable.
type Roster struct {
	Units    []UnitRef
	EmptySig ColorSig
}

// CellClass is the classification of one grid cell.
type CellClass struct {
	Empty      bool
	Unit       string
	Rank       int
	Confidence float64
}

// Classifier turns cell crops into CellClass values.
type Classifier struct {
	roster    Roster
	ranks     *RankModel
	threshold float64
}

func NewClassifier(roster Roster, ranks *RankModel, mseThreshold float64) (*Classifier, error) {
	if len(roster.Units) == 0 {
		return nil, fmt.Errorf("empty roster")
	}
	return &Classifier{roster: roster, ranks: ranks, threshold: mseThreshold}, nil
}

// Classify identifies one cell crop. The empty-cell check runs first as a
// fast path; only occupied cells pay for rank inference.
func (c *Classifier) Classify(crop *image.RGBA) CellClass {
	sig := ExtractSig(crop)

	// An all-dark crop has no signature at all; that is an empty cell.
	if len(sig) == 0 {
		return CellClass{Empty: true, Confidence: 1}
	}
	if len(c.roster.EmptySig) > 0 {
		if d := SigDistance(sig, c.roster.EmptySig); d <= c.threshold {
			return CellClass{Empty: true, Confidence: confFromDistance(d, c.threshold)}
		}
	}

	bestIdx := -1
	bestDist := math.Inf(1)
	for i, ref := range c.roster.Units {
		d := SigDistance(sig, ref.Sig)
		// Strict less-than: on an exact tie the earlier roster entry wins.
		if d < bestDist {
			bestDist = d
			bestIdx = i
		}
	}

	if bestIdx < 0 {
		return CellClass{Empty: true}
	}
	ref := c.roster.Units[bestIdx]
	limit := c.threshold - ref.Margin
	if bestDist > limit {
		// Nothing in the roster is close enough. Treat as empty rather than
		// guess; the next frame usually resolves it.
		return CellClass{Empty: true}
	}

	rank := 1
	conf := confFromDistance(bestDist, limit)
	if c.ranks != nil {
		r, rconf := c.ranks.Predict(RankFeatures(crop))
		rank = r
		if rconf < conf {
			conf = rconf
		}
	}
	return CellClass{Unit: ref.Name, Rank: rank, Confidence: conf}
}

func confFromDistance(d, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	conf := 1 - d/limit
	if conf < 0 {
		return 0
	}
	return conf
}

// RankFeatures extracts the feature vector the rank model was fitted on:
// grayscale mean/stddev/min/max, edge density, and per-channel mean/stddev.
func RankFeatures(img *image.RGBA) []float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	n := float64(w * h)
	if n == 0 {
		return make([]float64, 11)
	}

	gray := make([]float64, w*h)
	var sum, sqSum float64
	minV, maxV := math.Inf(1), math.Inf(-1)
	chSum := [3]float64{}
	chSqSum := [3]float64{}

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			r := float64(row[x*4])
			g := float64(row[x*4+1])
			bl := float64(row[x*4+2])
			v := 0.299*r + 0.587*g + 0.114*bl
			gray[y*w+x] = v
			sum += v
			sqSum += v * v
			if v < minV {
				minV = v
			}
			if v > maxV {
				maxV = v
			}
			chSum[0] += r
			chSqSum[0] += r * r
			chSum[1] += g
			chSqSum[1] += g * g
			chSum[2] += bl
			chSqSum[2] += bl * bl
		}
	}

	mean := sum / n
	variance := sqSum/n - mean*mean
	if variance < 0 {
		variance = 0
	}

	// Edge density: share of pixels whose horizontal or vertical gradient
	// exceeds a fixed step.
	const edgeStep = 32
	edges := 0
	for y := 0; y < h-1; y++ {
		for x := 0; x < w-1; x++ {
			dx := math.Abs(gray[y*w+x+1] - gray[y*w+x])
			dy := math.Abs(gray[(y+1)*w+x] - gray[y*w+x])
			if dx > edgeStep || dy > edgeStep {
				edges++
			}
		}
	}
	edgeDensity := float64(edges) / n

	feats := []float64{mean, math.Sqrt(variance), minV, maxV, edgeDensity}
	for ch := 0; ch < 3; ch++ {
		m := chSum[ch] / n
		v := chSqSum[ch]/n - m*m
		if v < 0 {
			v = 0
		}
		feats = append(feats, m, math.Sqrt(v))
	}
	return feats
}

// RankModel is a nearest-centroid classifier over standardized features,
// fitted offline and shipped as a JSON artifact next to the unit assets.
type RankModel struct {
	Classes   []int       `json:"classes"`
	Centroids [][]float64 `json:"centroids"`
	Mean      []float64   `json:"mean"`
	Scale     []float64   `json:"scale"`
}

// Validate checks the artifact's internal consistency.
func (m *RankModel) Validate() error {
	if len(m.Classes) == 0 || len(m.Classes) != len(m.Centroids) {
		return fmt.Errorf("rank model: %d classes, %d centroids", len(m.Classes), len(m.Centroids))
	}
	dim := len(m.Mean)
	if dim == 0 || len(m.Scale) != dim {
		return fmt.Errorf("rank model: mean/scale dims %d/%d", dim, len(m.Scale))
	}
	for i, c := range m.Centroids {
		if len(c) != dim {
			return fmt.Errorf("rank model: centroid %d has dim %d, want %d", i, len(c), dim)
		}
	}
	for _, cls := range m.Classes {
		if cls < MinRank || cls > MaxRank {
			return fmt.Errorf("rank model: class %d out of range", cls)
		}
	}
	return nil
}

// Predict returns the nearest class and a confidence derived from the ratio
// between the best and second-best centroid distances.
func (m *RankModel) Predict(feats []float64) (int, float64) {
	dim := len(m.Mean)
	std := make([]float64, dim)
	for i := 0; i < dim && i < len(feats); i++ {
		s := m.Scale[i]
		if s == 0 {
			s = 1
		}
		std[i] = (feats[i] - m.Mean[i]) / s
	}

	best, second := math.Inf(1), math.Inf(1)
	bestCls := MinRank
	for i, c := range m.Centroids {
		var d float64
		for j := 0; j < dim; j++ {
			diff := std[j] - c[j]
			d += diff * diff
		}
		if d < best {
			second = best
			best = d
			bestCls = m.Classes[i]
		} else if d < second {
			second = d
		}
	}

	conf := 1.0
	if !math.IsInf(second, 1) && second > 0 {
		conf = 1 - best/second
		if conf < 0 {
			conf = 0
		}
	}
	return bestCls, conf
}
