package imaging

import (
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrop(t *testing.T) {
	img := createPatternImage(100, 100)

	result, err := Crop(img, 10, 10, 50, 40, 1.0)
	require.NoError(t, err)
	assert.Equal(t, 40, result.Width)
	assert.Equal(t, 30, result.Height)
	assert.Equal(t, "image/png", result.MimeType)

	_, err = base64.StdEncoding.DecodeString(result.ImageBase64)
	assert.NoError(t, err)
}

func TestCrop_WithScale(t *testing.T) {
	img := createPatternImage(100, 100)

	result, err := Crop(img, 0, 0, 50, 50, 2.0)
	require.NoError(t, err)
	assert.Equal(t, 100, result.Width)
	assert.Equal(t, 100, result.Height)
}

func TestCrop_InvalidRegions(t *testing.T) {
	img := createPatternImage(100, 100)

	tests := []struct {
		name           string
		x1, y1, x2, y2 int
		wantMsg        string
	}{
		{"negative", -1, 0, 10, 10, "outside image bounds"},
		{"past right", 0, 0, 101, 10, "outside image bounds"},
		{"inverted", 50, 50, 10, 10, "invalid crop region"},
		{"empty", 10, 10, 10, 20, "invalid crop region"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Crop(img, tt.x1, tt.y1, tt.x2, tt.y2, 1.0)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Contains(t, fmt.Sprintf("%+v", err), "Crop", "error should carry a stack trace")
		})
	}
}

func TestCropPatch(t *testing.T) {
	img := createPatternImage(100, 100)

	patch := CropPatch(img, image.Rect(60, 0, 80, 20))
	require.NotNil(t, patch)
	assert.Equal(t, image.Rect(0, 0, 20, 20), patch.Bounds())
	assert.Equal(t, RGBColor{0, 255, 0}, RGBFromColor(patch.At(5, 5)))

	assert.Nil(t, CropPatch(img, image.Rect(120, 120, 140, 140)))
}

func TestToNRGBA(t *testing.T) {
	nrgba := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	assert.Same(t, nrgba, ToNRGBA(nrgba))

	rgba := createInMemoryImage(4, 4, color.RGBA{1, 2, 3, 255})
	converted := ToNRGBA(rgba)
	assert.Equal(t, image.Rect(0, 0, 4, 4), converted.Bounds())
	assert.Equal(t, RGBColor{1, 2, 3}, RGBFromColor(converted.At(1, 1)))
}

func TestSave(t *testing.T) {
	img := createPatternImage(20, 10)
	path := filepath.Join(t.TempDir(), "out.png")
	require.NoError(t, Save(img, path))

	c := NewImageCache(0)
	loaded, err := c.Load(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 10), loaded.Bounds())

	assert.Error(t, Save(img, filepath.Join(t.TempDir(), "out.xyz")))
}
