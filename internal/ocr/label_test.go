package ocr

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSlot(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"B-07", "B-07"},
		{"rack a12", "A-12"},
		{"SLOT  C 3\n", "C-3"},
		{"RACK AB_104 left", "AB-104"},
		{"no label here", ""},
		{"", ""},
		{"12345", ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSlot(tt.text))
		})
	}
}

func TestNewSlotParser(t *testing.T) {
	p, err := NewSlotParser(`(\d+)/(\d+)`)
	require.NoError(t, err)
	assert.Equal(t, "3-14", p.Parse("shelf 3/14"))

	_, err = NewSlotParser(`[`)
	assert.Error(t, err)

	_, err = NewSlotParser(`slot(\d+)`)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := Config{StripTop: 0.8, StripHeight: 0.5, Upscale: 0.5, MinConfidence: 2, SlotPattern: "("}
	err := bad.Validate()
	require.Error(t, err)
	for _, want := range []string{"language", "strip", "upscale", "min_confidence", "slot_pattern"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestConfig_Strip(t *testing.T) {
	b := image.Rect(0, 0, 200, 100)
	assert.Equal(t, b, DefaultConfig().Strip(b))

	cfg := DefaultConfig()
	cfg.StripTop, cfg.StripHeight = 0.8, 0.2
	assert.Equal(t, image.Rect(0, 80, 200, 100), cfg.Strip(b))
}

func TestPrepare(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 60))
	for y := 0; y < 60; y++ {
		for x := 0; x < 100; x++ {
			img.Set(x, y, color.RGBA{200, 40, 40, 255})
		}
	}

	out, err := Prepare(img, image.Rect(10, 40, 60, 60), DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 100, out.Bounds().Dx())
	assert.Equal(t, 40, out.Bounds().Dy())

	r, g, b, _ := out.At(50, 20).RGBA()
	assert.Equal(t, r, g)
	assert.Equal(t, g, b)

	_, err = Prepare(img, image.Rect(200, 200, 300, 300), DefaultConfig())
	assert.Error(t, err)
}

func TestScaleBack(t *testing.T) {
	region := image.Rect(10, 40, 60, 60)
	got := scaleBack(image.Rect(20, 10, 40, 30), region, 2)
	assert.Equal(t, image.Rect(20, 45, 30, 55), got)

	// Clipped to the region.
	got = scaleBack(image.Rect(0, 0, 400, 400), region, 2)
	assert.Equal(t, region, got)
}
