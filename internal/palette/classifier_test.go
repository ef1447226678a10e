package palette

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/rollcount/internal/imaging"
)

func newClassifier(t *testing.T, method Method) *Classifier {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Method = method
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func solidImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func diskImage(size, r int, fg, bg color.Color) *image.RGBA {
	img := solidImage(size, size, bg)
	c := size / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := x-c, y-c
			if dx*dx+dy*dy <= r*r {
				img.Set(x, y, fg)
			}
		}
	}
	return img
}

func TestClassifyColor(t *testing.T) {
	c := newClassifier(t, MethodMean)

	tests := []struct {
		name string
		rgb  imaging.RGBColor
		want Label
	}{
		{"red", imaging.RGBColor{R: 230, G: 20, B: 20}, Red},
		{"orange", imaging.RGBColor{R: 255, G: 140, B: 0}, Orange},
		{"yellow", imaging.RGBColor{R: 255, G: 220, B: 0}, Yellow},
		{"green", imaging.RGBColor{R: 0, G: 200, B: 0}, Green},
		{"cyan", imaging.RGBColor{R: 0, G: 200, B: 200}, Cyan},
		{"blue", imaging.RGBColor{R: 20, G: 40, B: 230}, Blue},
		{"purple", imaging.RGBColor{R: 128, G: 0, B: 200}, Purple},
		{"pink", imaging.RGBColor{R: 255, G: 105, B: 180}, Pink},
		{"white", imaging.RGBColor{R: 250, G: 250, B: 250}, White},
		{"gray", imaging.RGBColor{R: 128, G: 128, B: 128}, Gray},
		{"black", imaging.RGBColor{R: 10, G: 10, B: 10}, Black},
		{"brown", imaging.RGBColor{R: 120, G: 60, B: 20}, Brown},
		{"wrapped red", imaging.RGBColor{R: 250, G: 0, B: 30}, Red},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.ClassifyColor(tt.rgb))
		})
	}
}

func TestClassifyHSV_BoundaryTiesGoToLowerRank(t *testing.T) {
	c := newClassifier(t, MethodMean)

	tests := []struct {
		hue  float64
		want Label
	}{
		{15, Red},
		{45, Orange},
		{70, Yellow},
		{165, Green},
		{195, Cyan},
		{255, Blue},
		{290, Purple},
		{335, Red}, // pink and the wrapped red band meet here; red ranks first
		{360, Red},
	}

	for _, tt := range tests {
		got := c.ClassifyHSV(imaging.HSVColor{H: tt.hue, S: 1, V: 1})
		assert.Equal(t, tt.want, got, "hue %.0f", tt.hue)
	}
}

func TestClassifyHSV_UncoveredHueIsUnknown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bands = []HueBand{{Label: Blue, Min: 200, Max: 250}}
	c, err := New(cfg)
	require.NoError(t, err)

	assert.Equal(t, Unknown, c.ClassifyHSV(imaging.HSVColor{H: 100, S: 1, V: 1}))
}

func TestClassify_Patches(t *testing.T) {
	red := color.RGBA{255, 0, 0, 255}
	blue := color.RGBA{0, 0, 255, 255}
	white := color.RGBA{255, 255, 255, 255}

	for _, method := range []Method{MethodMean, MethodDominant} {
		t.Run(string(method), func(t *testing.T) {
			c := newClassifier(t, method)

			redDisk := diskImage(41, 20, red, white)
			assert.Equal(t, Red, c.Classify(redDisk, redDisk.Bounds()))

			blueDisk := diskImage(41, 20, blue, white)
			assert.Equal(t, Blue, c.Classify(blueDisk, blueDisk.Bounds()))
		})
	}
}

func TestClassify_DominantIgnoresBackground(t *testing.T) {
	// Green roll with a black shadow band down one side.
	img := solidImage(40, 40, color.RGBA{0, 180, 0, 255})
	for y := 0; y < 40; y++ {
		for x := 0; x < 12; x++ {
			img.Set(x, y, color.RGBA{5, 5, 5, 255})
		}
	}

	c := newClassifier(t, MethodDominant)
	assert.Equal(t, Green, c.Classify(img, img.Bounds()))
}

func TestClassify_DominantTieIsStable(t *testing.T) {
	// Half red, half blue: both clusters hold 200 pixels.
	img := solidImage(20, 20, color.RGBA{220, 30, 30, 255})
	for y := 0; y < 20; y++ {
		for x := 10; x < 20; x++ {
			img.Set(x, y, color.RGBA{30, 60, 220, 255})
		}
	}

	c := newClassifier(t, MethodDominant)
	got := map[Label]int{}
	for i := 0; i < 100; i++ {
		got[c.Classify(img, img.Bounds())]++
	}
	assert.Equal(t, map[Label]int{Red: 100}, got)
}

func TestDominantColor_TieOrder(t *testing.T) {
	a := imaging.RGBColor{R: 10, G: 200, B: 10}
	b := imaging.RGBColor{R: 200, G: 10, B: 10}
	pixels := []imaging.RGBColor{a, a, a, b, b, b}

	byRank := func(rgb imaging.RGBColor) int {
		if rgb == a {
			return 0
		}
		return 1
	}
	sameRank := func(imaging.RGBColor) int { return 0 }

	for i := 0; i < 50; i++ {
		got, err := dominantColor(pixels, 2, byRank)
		require.NoError(t, err)
		require.Equal(t, a, got)

		got, err = dominantColor(pixels, 2, sameRank)
		require.NoError(t, err)
		require.Equal(t, a, got, "equal rank falls back to the smaller centroid")
	}
}

func TestClassify_UniformPatchIsUnknown(t *testing.T) {
	c := newClassifier(t, MethodDominant)
	img := solidImage(30, 30, color.RGBA{255, 0, 0, 255})

	res := c.Describe(img, img.Bounds())
	assert.Equal(t, Unknown, res.Label)
	assert.Equal(t, 900, res.Pixels)
}

func TestClassify_TinyPatchIsUnknown(t *testing.T) {
	c := newClassifier(t, MethodMean)
	img := diskImage(41, 20, color.RGBA{255, 0, 0, 255}, color.White)

	assert.Equal(t, Unknown, c.Classify(img, image.Rect(0, 0, 3, 3)))
	assert.Equal(t, Unknown, c.Classify(img, image.Rect(100, 100, 120, 120)))
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Method = "median"
	cfg.Bands = append(cfg.Bands, HueBand{Label: "teal", Min: 170, Max: 180}, HueBand{Label: Red, Min: 20, Max: 10})

	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown method")
	assert.Contains(t, err.Error(), "teal")
	assert.Contains(t, err.Error(), "invalid range")
}

func TestLabel(t *testing.T) {
	assert.Equal(t, 0, Red.Index())
	assert.Equal(t, 11, Brown.Index())
	assert.Equal(t, 12, Unknown.Index())
	assert.True(t, Unknown.Valid())
	assert.False(t, Label("teal").Valid())
	assert.Len(t, Labels(), 12)
	assert.Equal(t, color.RGBA{0xE0, 0x20, 0x20, 0xFF}, Red.Display())
	assert.Equal(t, Unknown.Display(), Label("teal").Display())
}
