package imaging

import (
	"image"
	"math"

	"github.com/montanaflynn/stats"
)

// EstimateBackground returns the per-channel median color of a frame of
// border pixels. thickness is the frame width in pixels and is raised to 1
// when smaller.
//
// Rack photos are usually framed with wall or shelf around the rack, so the
// border median is a robust estimate of "not a roll".
func EstimateBackground(img image.Image, thickness int) RGBColor {
	b := img.Bounds()
	if b.Empty() {
		return RGBColor{}
	}
	if thickness < 1 {
		thickness = 1
	}

	var rs, gs, bs stats.Float64Data
	add := func(x, y int) {
		p := RGBFromColor(img.At(x, y))
		rs = append(rs, float64(p.R))
		gs = append(gs, float64(p.G))
		bs = append(bs, float64(p.B))
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if x-b.Min.X < thickness || b.Max.X-1-x < thickness ||
				y-b.Min.Y < thickness || b.Max.Y-1-y < thickness {
				add(x, y)
			}
		}
	}

	return RGBColor{R: medianChannel(rs), G: medianChannel(gs), B: medianChannel(bs)}
}

func medianChannel(data stats.Float64Data) uint8 {
	m, err := stats.Median(data)
	if err != nil {
		return 0
	}
	return uint8(math.Round(m))
}

// Mask is a binary per-pixel classification of an image, row-major.
type Mask struct {
	Width  int
	Height int
	Bits   []bool
	Count  int
}

// At reports whether (x, y) is set. Out-of-range points are unset.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Bits[y*m.Width+x]
}

// Fraction is the share of set pixels, 0-1.
func (m *Mask) Fraction() float64 {
	if m.Width == 0 || m.Height == 0 {
		return 0
	}
	return float64(m.Count) / float64(m.Width*m.Height)
}

// Bounds returns the bounding rectangle of the set pixels, or an empty
// rectangle when nothing is set.
func (m *Mask) Bounds() image.Rectangle {
	if m.Count == 0 {
		return image.Rectangle{}
	}
	minX, minY := m.Width, m.Height
	maxX, maxY := -1, -1
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if !m.Bits[y*m.Width+x] {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// CountIn returns the number of set pixels inside r.
func (m *Mask) CountIn(r image.Rectangle) int {
	r = r.Intersect(image.Rect(0, 0, m.Width, m.Height))
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if m.Bits[y*m.Width+x] {
				n++
			}
		}
	}
	return n
}

// ForegroundMask marks every pixel whose CIE Lab distance from bg exceeds
// threshold. go-colorful's DistanceLab scale puts black and white about 1.0
// apart; 0.12 separates saturated rolls from a neutral background.
//
// Mask coordinates are relative to img.Bounds().Min.
func ForegroundMask(img image.Image, bg RGBColor, threshold float64) *Mask {
	b := img.Bounds()
	m := &Mask{Width: b.Dx(), Height: b.Dy(), Bits: make([]bool, b.Dx()*b.Dy())}
	ref := bg.Colorful()

	seen := make(map[RGBColor]bool)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			p := RGBFromColor(img.At(x+b.Min.X, y+b.Min.Y))
			fg, ok := seen[p]
			if !ok {
				fg = p.Colorful().DistanceLab(ref) > threshold
				seen[p] = fg
			}
			if fg {
				m.Bits[y*m.Width+x] = true
				m.Count++
			}
		}
	}
	return m
}
