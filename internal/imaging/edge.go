package imaging

import (
	"image"
	"math"
)

// EdgeOptions controls how gradient magnitudes become edge pixels.
type EdgeOptions struct {
	// Relative keeps pixels whose magnitude is at least this fraction of the
	// strongest gradient in the image (0-1).
	Relative float64 `mapstructure:"relative"`

	// Floor is the absolute minimum magnitude for an edge pixel, on the
	// Sobel scale of a 0-1 grayscale image (a hard black/white step is 4).
	Floor float64 `mapstructure:"floor"`
}

// EdgeMap holds Sobel gradient magnitudes and the thresholded edge pixels of
// an image. Both slices are row-major with Width*Height entries.
type EdgeMap struct {
	Width     int
	Height    int
	Magnitude []float64
	Edge      []bool

	// Max is the strongest gradient magnitude found.
	Max float64

	// Count is the number of edge pixels.
	Count int
}

// IsEdge reports whether (x, y) is an edge pixel. Out-of-range points are
// never edges.
func (m *EdgeMap) IsEdge(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Edge[y*m.Width+x]
}

// Strength returns the gradient magnitude at (x, y) normalized by Max, or 0
// outside the map.
func (m *EdgeMap) Strength(x, y int) float64 {
	if m.Max == 0 || x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return 0
	}
	return m.Magnitude[y*m.Width+x] / m.Max
}

// Gradient computes Sobel gradient magnitudes over the luminance of img and
// marks edge pixels.
//
// # Algorithm
//
//  1. Grayscale conversion: RGB -> luminance using ITU-R BT.601 weights
//     (0.299*R + 0.587*G + 0.114*B)
//
//  2. Gradient computation: Sobel operators for X and Y gradients,
//     magnitude = sqrt(Gx² + Gy²). Borders use clamped (replicated) pixels.
//
//  3. Thresholding: a pixel is an edge when its magnitude is positive, at
//     least opts.Floor, and at least opts.Relative times the image maximum.
//
// Denoising is expected to have happened already (see Preprocess). A uniform
// image produces no edge pixels.
func Gradient(img image.Image, opts EdgeOptions) *EdgeMap {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p := RGBFromColor(img.At(x+bounds.Min.X, y+bounds.Min.Y))
			gray[y*width+x] = (0.299*float64(p.R) + 0.587*float64(p.G) + 0.114*float64(p.B)) / 255.0
		}
	}

	sobelX := [3][3]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}
	sobelY := [3][3]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}

	m := &EdgeMap{
		Width:     width,
		Height:    height,
		Magnitude: make([]float64, width*height),
		Edge:      make([]bool, width*height),
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var gx, gy float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					py := clamp(y+ky, 0, height-1)
					px := clamp(x+kx, 0, width-1)
					v := gray[py*width+px]
					gx += v * sobelX[ky+1][kx+1]
					gy += v * sobelY[ky+1][kx+1]
				}
			}
			mag := math.Sqrt(gx*gx + gy*gy)
			m.Magnitude[y*width+x] = mag
			if mag > m.Max {
				m.Max = mag
			}
		}
	}

	threshold := math.Max(opts.Floor, opts.Relative*m.Max)
	for i, mag := range m.Magnitude {
		if mag > 0 && mag >= threshold {
			m.Edge[i] = true
			m.Count++
		}
	}

	return m
}

// clamp constrains an integer value to the range [min, max].
// Used for boundary handling in convolution operations.
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
