package detection

import (
	"image"
	"math"

	"github.com/google/uuid"

	"github.com/ironsheep/rollcount/internal/palette"
)

// Method tags the strategy that produced a detection or a set.
type Method string

const (
	// MethodLearned marks output of the pretrained object-detection model.
	MethodLearned Method = "learned"

	// MethodCircular marks output of the circular-shape detector.
	MethodCircular Method = "circular"

	// MethodGrid marks output of the grid-sampling detector.
	MethodGrid Method = "grid"

	// MethodManual marks boxes drawn by an operator.
	MethodManual Method = "manual"
)

// Valid reports whether m is one of the known methods.
func (m Method) Valid() bool {
	switch m {
	case MethodLearned, MethodCircular, MethodGrid, MethodManual:
		return true
	}
	return false
}

const (
	// containEpsilon absorbs float rounding when checking box containment.
	containEpsilon = 1e-9

	// pixelSlack keeps percent round trips from growing a rectangle by a
	// pixel.
	pixelSlack = 1e-6
)

// Box is an axis-aligned bounding box in percent of the image dimensions:
// X and Width are percentages of the image width, Y and Height of the image
// height. A box covering the whole image is {0, 0, 100, 100}.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the center point of the box.
func (b Box) Center() (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Diagonal returns the length of the box diagonal.
func (b Box) Diagonal() float64 {
	return math.Hypot(b.Width, b.Height)
}

// Area returns Width*Height.
func (b Box) Area() float64 {
	return b.Width * b.Height
}

// Valid reports whether every coordinate is finite and the extents are not
// negative.
func (b Box) Valid() bool {
	for _, v := range []float64{b.X, b.Y, b.Width, b.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.Width >= 0 && b.Height >= 0
}

// Contained reports whether the box lies inside the image.
func (b Box) Contained() bool {
	return b.X >= -containEpsilon && b.Y >= -containEpsilon &&
		b.X+b.Width <= 100+containEpsilon && b.Y+b.Height <= 100+containEpsilon
}

// Pixels converts the box to a pixel rectangle on a width x height image.
// The rectangle is rounded outward so it never loses a covered pixel.
func (b Box) Pixels(width, height int) image.Rectangle {
	x0 := int(math.Floor(b.X*float64(width)/100 + pixelSlack))
	y0 := int(math.Floor(b.Y*float64(height)/100 + pixelSlack))
	x1 := int(math.Ceil((b.X+b.Width)*float64(width)/100 - pixelSlack))
	y1 := int(math.Ceil((b.Y+b.Height)*float64(height)/100 - pixelSlack))
	return image.Rect(x0, y0, x1, y1).Intersect(image.Rect(0, 0, width, height))
}

// BoxFromPixels converts pixel coordinates (x0,y0 inclusive, x1,y1
// exclusive) on a width x height image to a percent box. Coordinates are
// clamped to the image first, so the result is always contained.
func BoxFromPixels(x0, y0, x1, y1 float64, width, height int) Box {
	if width <= 0 || height <= 0 {
		return Box{}
	}
	w, h := float64(width), float64(height)
	x0 = math.Max(0, math.Min(w, x0))
	x1 = math.Max(0, math.Min(w, x1))
	y0 = math.Max(0, math.Min(h, y0))
	y1 = math.Max(0, math.Min(h, y1))
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	return Box{
		X:      x0 / w * 100,
		Y:      y0 / h * 100,
		Width:  (x1 - x0) / w * 100,
		Height: (y1 - y0) / h * 100,
	}
}

// Limits holds the size floor shared by every detector.
type Limits struct {
	// MinSizePercent is the smallest width and height, in percent of the
	// image dimension, a box may have. Smaller boxes are noise.
	MinSizePercent float64 `mapstructure:"min_size_percent"`
}

// DefaultLimits discards boxes not wider and taller than half a percent of
// the image.
func DefaultLimits() Limits {
	return Limits{MinSizePercent: 0.5}
}

// Accept reports whether b is valid, contained in the image and larger than
// the size floor.
func (l Limits) Accept(b Box) bool {
	return b.Valid() && b.Contained() && b.Width > l.MinSizePercent && b.Height > l.MinSizePercent
}

// Detection is one located roll. Detections are values: helpers that change
// a field return a copy.
type Detection struct {
	ID         string        `json:"id"`
	Box        Box           `json:"box"`
	Confidence float64       `json:"confidence"`
	Color      palette.Label `json:"color"`
	Method     Method        `json:"method"`
}

// New returns a detection with a fresh ID and an Unknown color. The
// confidence is clamped to [0, 1]; NaN becomes 0.
func New(box Box, confidence float64, method Method) Detection {
	return Detection{
		ID:         uuid.NewString(),
		Box:        box,
		Confidence: clampUnit(confidence),
		Color:      palette.Unknown,
		Method:     method,
	}
}

// WithColor returns a copy of d with the given color label.
func (d Detection) WithColor(label palette.Label) Detection {
	d.Color = label
	return d
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
