package detection

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/rollcount/internal/imaging"
	"github.com/ironsheep/rollcount/internal/palette"
)

// packedRackImage draws a 4x4 grid of touching-distance rolls, skipping the
// cells listed in missing (row*4+col).
func packedRackImage(missing ...int) *image.RGBA {
	img := solidImage(200, 200, rackGray)
	skip := make(map[int]bool)
	for _, m := range missing {
		skip[m] = true
	}
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			if skip[r*4+c] {
				continue
			}
			roll := rollRed
			if c >= 2 {
				roll = rollBlue
			}
			fillDisk(img, 25+50*c, 25+50*r, 20, roll)
		}
	}
	return img
}

func newGridDetector(t *testing.T, rows, cols int) *GridDetector {
	t.Helper()
	classifier, err := palette.New(palette.DefaultConfig())
	require.NoError(t, err)
	cfg := DefaultGridConfig()
	cfg.Rows, cfg.Cols = rows, cols
	d, err := NewGridDetector(cfg, classifier, nil)
	require.NoError(t, err)
	return d
}

func TestGridDetector_PackedRack(t *testing.T) {
	d := newGridDetector(t, 4, 4)

	set, err := d.Detect(t.Context(), packedRackImage())
	require.NoError(t, err)

	require.Equal(t, 16, set.Count)
	assert.Equal(t, MethodGrid, set.Method)
	assertContained(t, set)
	require.NoError(t, set.Validate())
	assert.Equal(t, map[palette.Label]int{palette.Red: 8, palette.Blue: 8}, set.Breakdown)

	for _, det := range set.Detections {
		assert.Equal(t, 0.3, det.Confidence)
		assert.Equal(t, MethodGrid, det.Method)
		assert.InDelta(t, 21.0, det.Box.Width, 0.5)
	}

	first := set.Detections[0]
	cx, cy := first.Box.Center()
	assert.InDelta(t, 12.5, cx, 0.5)
	assert.InDelta(t, 12.5, cy, 0.5)
}

func TestGridDetector_EmptyCell(t *testing.T) {
	d := newGridDetector(t, 4, 4)

	set, err := d.Detect(t.Context(), packedRackImage(5))
	require.NoError(t, err)

	assert.Equal(t, 15, set.Count)
	assert.NoError(t, set.Validate())
}

func TestGridDetector_BlankImage(t *testing.T) {
	d := newGridDetector(t, 0, 0)

	set, err := d.Detect(t.Context(), solidImage(200, 200, rackGray))
	require.NoError(t, err)

	assert.True(t, set.Empty())
	assert.Equal(t, MethodGrid, set.Method)
}

func TestGridDetector_AutoLayout(t *testing.T) {
	d := newGridDetector(t, 0, 0)

	rows, cols := d.layout(image.Rect(0, 0, 400, 200))
	assert.Equal(t, 10, rows)
	assert.Equal(t, 20, cols)

	// Degenerate regions still get one cell.
	rows, cols = d.layout(image.Rect(0, 0, 3, 3))
	assert.GreaterOrEqual(t, rows, 1)
	assert.GreaterOrEqual(t, cols, 1)

	set, err := d.Detect(t.Context(), packedRackImage())
	require.NoError(t, err)
	assert.NotZero(t, set.Count)
	assertContained(t, set)
	assert.NoError(t, set.Validate())
}

func TestGridDetector_NoClassifier(t *testing.T) {
	cfg := DefaultGridConfig()
	cfg.Rows, cfg.Cols = 4, 4
	d, err := NewGridDetector(cfg, nil, nil)
	require.NoError(t, err)

	set, err := d.Detect(t.Context(), packedRackImage())
	require.NoError(t, err)
	assert.Equal(t, map[palette.Label]int{palette.Unknown: 16}, set.Breakdown)
}

func TestGridConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultGridConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*GridConfig)
	}{
		{"negative rows", func(c *GridConfig) { c.Rows = -1 }},
		{"zero cell size", func(c *GridConfig) { c.CellSizeFraction = 0 }},
		{"no ring points", func(c *GridConfig) { c.RingPoints = 0 }},
		{"zero hit fraction", func(c *GridConfig) { c.RingHitFraction = 0 }},
		{"box wider than cell", func(c *GridConfig) { c.BoxScale = 0.7 }},
		{"confidence above one", func(c *GridConfig) { c.Confidence = 1.2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultGridConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestFindRack(t *testing.T) {
	maskWith := func(w, h int, r image.Rectangle) *imaging.Mask {
		m := &imaging.Mask{Width: w, Height: h, Bits: make([]bool, w*h)}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				m.Bits[y*w+x] = true
				m.Count++
			}
		}
		return m
	}

	t.Run("cropped with margin", func(t *testing.T) {
		rack, ok := FindRack(maskWith(100, 100, image.Rect(20, 30, 80, 70)), 0.1, 0.03)
		require.True(t, ok)
		assert.True(t, rack.Cropped)
		assert.Equal(t, image.Rect(17, 27, 83, 73), rack.Rect)
		assert.InDelta(t, 0.24, rack.Coverage, 1e-9)
	})

	t.Run("small foreground uses whole image", func(t *testing.T) {
		rack, ok := FindRack(maskWith(100, 100, image.Rect(10, 10, 20, 20)), 0.1, 0.03)
		require.True(t, ok)
		assert.False(t, rack.Cropped)
		assert.Equal(t, image.Rect(0, 0, 100, 100), rack.Rect)
	})

	t.Run("margin clipped to image", func(t *testing.T) {
		rack, ok := FindRack(maskWith(100, 100, image.Rect(0, 0, 100, 50)), 0.1, 0.03)
		require.True(t, ok)
		assert.Equal(t, image.Rect(0, 0, 100, 53), rack.Rect)
	})

	t.Run("no foreground", func(t *testing.T) {
		_, ok := FindRack(maskWith(100, 100, image.Rectangle{}), 0.1, 0.03)
		assert.False(t, ok)
	})
}
