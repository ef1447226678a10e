package imaging

import (
	"image"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
)

// PreprocessOptions controls the cleanup applied before shape detection.
type PreprocessOptions struct {
	// WorkingSize caps the longest side of the working image in pixels.
	// Zero disables resizing.
	WorkingSize int `mapstructure:"working_size"`

	// BlurRadius is the Gaussian blur radius used for denoising. Zero
	// disables the blur.
	BlurRadius float64 `mapstructure:"blur_radius"`

	// Contrast is the contrast change in the range -1 to 1. Zero leaves
	// contrast unchanged.
	Contrast float64 `mapstructure:"contrast"`
}

// Preprocessed is a working copy of an image ready for shape detection.
type Preprocessed struct {
	// Image is the resized, denoised, contrast-enhanced copy.
	Image *image.NRGBA

	// Scale is working size / original size (1 when not resized).
	Scale float64
}

// Preprocess resizes, denoises and contrast-enhances img.
//
// Resizing happens first so the filters run on the smaller working image.
// The aspect ratio is preserved; images already within WorkingSize are not
// upscaled.
func Preprocess(img image.Image, opts PreprocessOptions) Preprocessed {
	bounds := img.Bounds()
	var work image.Image = img
	scale := 1.0

	longest := bounds.Dx()
	if bounds.Dy() > longest {
		longest = bounds.Dy()
	}
	if opts.WorkingSize > 0 && longest > opts.WorkingSize {
		work = imaging.Fit(img, opts.WorkingSize, opts.WorkingSize, imaging.Lanczos)
		scale = float64(work.Bounds().Dx()) / float64(bounds.Dx())
	}

	if opts.BlurRadius > 0 {
		work = blur.Gaussian(work, opts.BlurRadius)
	}
	if opts.Contrast != 0 {
		work = adjust.Contrast(work, opts.Contrast)
	}

	return Preprocessed{Image: ToNRGBA(work), Scale: scale}
}
