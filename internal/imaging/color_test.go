package imaging

import (
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createInMemoryImage creates an in-memory test image
func createInMemoryImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// createPatternImage creates an image with different colors in each quadrant
func createPatternImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var c color.Color
			if x < width/2 && y < height/2 {
				c = color.RGBA{255, 0, 0, 255} // Red top-left
			} else if x >= width/2 && y < height/2 {
				c = color.RGBA{0, 255, 0, 255} // Green top-right
			} else if x < width/2 && y >= height/2 {
				c = color.RGBA{0, 0, 255, 255} // Blue bottom-left
			} else {
				c = color.RGBA{255, 255, 255, 255} // White bottom-right
			}
			img.Set(x, y, c)
		}
	}
	return img
}

// drawDisk fills a disk of radius r centered at (cx, cy).
func drawDisk(img *image.RGBA, cx, cy, r int, c color.Color) {
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				img.Set(x, y, c)
			}
		}
	}
}

func TestSampleColor(t *testing.T) {
	img := createInMemoryImage(100, 100, color.RGBA{255, 128, 64, 255})

	result, err := SampleColor(img, 50, 50)
	require.NoError(t, err)
	assert.Equal(t, "#FF8040", result.Hex)
	assert.Equal(t, RGBColor{R: 255, G: 128, B: 64}, result.RGB)
}

func TestSampleColor_OutOfBounds(t *testing.T) {
	img := createInMemoryImage(10, 10, color.White)

	for _, p := range []image.Point{{-1, 0}, {0, -1}, {10, 0}, {0, 10}} {
		_, err := SampleColor(img, p.X, p.Y)
		require.Error(t, err, "point %v", p)
		assert.Contains(t, err.Error(), "outside image bounds")
		assert.Contains(t, fmt.Sprintf("%+v", err), "SampleColor")
	}
}

func TestRGBColor_HSV(t *testing.T) {
	tests := []struct {
		name  string
		color RGBColor
		wantH float64
		wantS float64
		wantV float64
	}{
		{"pure red", RGBColor{255, 0, 0}, 0, 1, 1},
		{"pure green", RGBColor{0, 255, 0}, 120, 1, 1},
		{"pure blue", RGBColor{0, 0, 255}, 240, 1, 1},
		{"white", RGBColor{255, 255, 255}, 0, 0, 1},
		{"black", RGBColor{0, 0, 0}, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hsv := tt.color.HSV()
			assert.InDelta(t, tt.wantH, hsv.H, 0.5)
			assert.InDelta(t, tt.wantS, hsv.S, 0.01)
			assert.InDelta(t, tt.wantV, hsv.V, 0.01)
		})
	}
}

func TestPatchPixels(t *testing.T) {
	img := createPatternImage(100, 100)

	t.Run("full patch", func(t *testing.T) {
		px := PatchPixels(img, image.Rect(0, 0, 10, 10), 0)
		assert.Len(t, px, 100)
		for _, p := range px {
			assert.Equal(t, RGBColor{255, 0, 0}, p)
		}
	})

	t.Run("strided", func(t *testing.T) {
		px := PatchPixels(img, image.Rect(0, 0, 100, 100), 100)
		assert.LessOrEqual(t, len(px), 121)
		assert.GreaterOrEqual(t, len(px), 25)
	})

	t.Run("clipped", func(t *testing.T) {
		px := PatchPixels(img, image.Rect(90, 90, 200, 200), 0)
		assert.Len(t, px, 100)
	})

	t.Run("outside", func(t *testing.T) {
		assert.Nil(t, PatchPixels(img, image.Rect(200, 200, 300, 300), 0))
	})
}

func TestMeanColor(t *testing.T) {
	px := []RGBColor{{255, 0, 0}, {255, 0, 0}, {255, 255, 255}, {255, 255, 255}}
	assert.Equal(t, RGBColor{255, 128, 128}, MeanColor(px))
	assert.Equal(t, RGBColor{}, MeanColor(nil))
}

func TestColorVariance(t *testing.T) {
	uniform := []RGBColor{{10, 20, 30}, {10, 20, 30}, {10, 20, 30}}
	assert.InDelta(t, 0, ColorVariance(uniform), 1e-12)

	mixed := []RGBColor{{0, 0, 0}, {255, 255, 255}}
	assert.Greater(t, ColorVariance(mixed), 1.0)

	assert.Zero(t, ColorVariance([]RGBColor{{1, 2, 3}}))
}

func TestRegion_Rect(t *testing.T) {
	r := Region{X1: 1, Y1: 2, X2: 5, Y2: 9}
	assert.Equal(t, image.Rect(1, 2, 5, 9), r.Rect())
}
