package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// RGBColor represents an RGB color with 8-bit components.
//
// Each component ranges from 0 to 255, where:
//   - 0 represents no intensity (black for all components)
//   - 255 represents full intensity (white for all components)
type RGBColor struct {
	R uint8 `json:"r"` // Red component (0-255)
	G uint8 `json:"g"` // Green component (0-255)
	B uint8 `json:"b"` // Blue component (0-255)
}

// HSVColor represents a color in HSV (Hue, Saturation, Value) color space.
//
// Roll colors are bucketed in HSV because hue stays stable under the uneven
// lighting of rack photos while value absorbs most of the shading:
//   - H is the hue angle in degrees, 0-360 (0=red, 120=green, 240=blue)
//   - S is saturation, 0-1 (0=gray, 1=vivid)
//   - V is value, 0-1 (0=black, 1=full brightness)
type HSVColor struct {
	H float64 `json:"h"`
	S float64 `json:"s"`
	V float64 `json:"v"`
}

// ColorResult contains a color value in the representations used by the
// classifier and the MCP tools.
type ColorResult struct {
	Hex string   `json:"hex"` // Hex format "#RRGGBB"
	RGB RGBColor `json:"rgb"` // RGB components
	HSV HSVColor `json:"hsv"` // HSV representation
}

// RGBFromColor converts any color.Color to 8-bit RGB, dropping alpha.
func RGBFromColor(c color.Color) RGBColor {
	r, g, b, _ := c.RGBA()
	return RGBColor{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}
}

// Hex returns the color as "#RRGGBB".
func (c RGBColor) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// Colorful returns the color as a go-colorful value (components 0-1).
func (c RGBColor) Colorful() colorful.Color {
	return colorful.Color{R: float64(c.R) / 255.0, G: float64(c.G) / 255.0, B: float64(c.B) / 255.0}
}

// HSV converts the color to HSV space.
func (c RGBColor) HSV() HSVColor {
	h, s, v := c.Colorful().Hsv()
	return HSVColor{H: h, S: s, V: v}
}

// Result returns the color in every representation.
func (c RGBColor) Result() ColorResult {
	return ColorResult{Hex: c.Hex(), RGB: c, HSV: c.HSV()}
}

// SampleColor extracts the color value at a specific pixel coordinate.
//
// Coordinates are 0-based with origin at top-left. Returns an error if the
// point lies outside the image bounds.
func SampleColor(img image.Image, x, y int) (*ColorResult, error) {
	bounds := img.Bounds()
	if x < bounds.Min.X || x >= bounds.Max.X || y < bounds.Min.Y || y >= bounds.Max.Y {
		return nil, errors.Errorf("coordinates (%d,%d) outside image bounds", x, y)
	}

	result := RGBFromColor(img.At(x, y)).Result()
	return &result, nil
}

// Region represents a rectangular region within an image.
//
// Coordinates follow the standard image convention:
//   - (X1, Y1) is the top-left corner (inclusive)
//   - (X2, Y2) is the bottom-right corner (exclusive)
type Region struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Rect converts the region to an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

// PatchPixels collects the colors of the pixels inside r.
//
// The rectangle is clipped to the image bounds. When maxSamples is positive
// and the patch holds more pixels than that, the patch is sampled on a regular
// stride so at most roughly maxSamples colors are returned. An empty or fully
// clipped rectangle yields nil.
func PatchPixels(img image.Image, r image.Rectangle, maxSamples int) []RGBColor {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return nil
	}

	step := 1
	if total := r.Dx() * r.Dy(); maxSamples > 0 && total > maxSamples {
		step = int(math.Ceil(math.Sqrt(float64(total) / float64(maxSamples))))
	}

	pixels := make([]RGBColor, 0, (r.Dx()/step+1)*(r.Dy()/step+1))
	for y := r.Min.Y; y < r.Max.Y; y += step {
		for x := r.Min.X; x < r.Max.X; x += step {
			pixels = append(pixels, RGBFromColor(img.At(x, y)))
		}
	}
	return pixels
}

// MeanColor returns the arithmetic mean of the given colors, rounded to the
// nearest 8-bit value. An empty slice yields black.
func MeanColor(pixels []RGBColor) RGBColor {
	if len(pixels) == 0 {
		return RGBColor{}
	}
	var sr, sg, sb float64
	for _, p := range pixels {
		sr += float64(p.R)
		sg += float64(p.G)
		sb += float64(p.B)
	}
	n := float64(len(pixels))
	return RGBColor{
		R: uint8(math.Round(sr / n)),
		G: uint8(math.Round(sg / n)),
		B: uint8(math.Round(sb / n)),
	}
}

// ColorVariance returns the summed per-channel variance of the colors, with
// channels scaled to 0-1. A uniform patch has variance 0; fewer than two
// samples also yield 0.
func ColorVariance(pixels []RGBColor) float64 {
	if len(pixels) < 2 {
		return 0
	}
	rs := make([]float64, len(pixels))
	gs := make([]float64, len(pixels))
	bs := make([]float64, len(pixels))
	for i, p := range pixels {
		rs[i] = float64(p.R) / 255.0
		gs[i] = float64(p.G) / 255.0
		bs[i] = float64(p.B) / 255.0
	}
	return stat.Variance(rs, nil) + stat.Variance(gs, nil) + stat.Variance(bs, nil)
}
