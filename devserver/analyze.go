package devserver

import (
	"image"
	"math"
)

const (
	gridW = 32
	gridH = 24

	// Luminance spread below which a frame is treated as blank.
	minSpread = 6.0
	// Mean change in the lower third above which the mouth is assumed to move.
	speakingDelta = 4.0
)

// thumb is a coarse luminance grid of a frame.
type thumb [gridH][gridW]float64

func thumbnail(img image.Image) *thumb {
	b := img.Bounds()
	var t thumb
	var n [gridH][gridW]int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		gy := (y - b.Min.Y) * gridH / b.Dy()
		for x := b.Min.X; x < b.Max.X; x++ {
			gx := (x - b.Min.X) * gridW / b.Dx()
			r, g, bl, _ := img.At(x, y).RGBA()
			t[gy][gx] += (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 257
			n[gy][gx]++
		}
	}
	for y := range t {
		for x := range t[y] {
			if n[y][x] > 0 {
				t[y][x] /= float64(n[y][x])
			}
		}
	}
	return &t
}

// spread is the standard deviation of the grid's luminance.
func (t *thumb) spread() float64 {
	var sum, sq float64
	for y := range t {
		for x := range t[y] {
			sum += t[y][x]
			sq += t[y][x] * t[y][x]
		}
	}
	n := float64(gridW * gridH)
	mean := sum / n
	return math.Sqrt(math.Max(0, sq/n-mean*mean))
}

// lowerDelta is the mean absolute luminance change over the bottom third.
func (t *thumb) lowerDelta(prev *thumb) float64 {
	if prev == nil {
		return 0
	}
	var d float64
	var n int
	for y := gridH * 2 / 3; y < gridH; y++ {
		for x := 0; x < gridW; x++ {
			d += math.Abs(t[y][x] - prev[y][x])
			n++
		}
	}
	return d / float64(n)
}
