package detection

import (
	"image"
	"math"

	"github.com/ironsheep/rollcount/internal/imaging"
)

// RackRegion is the part of the photo the grid detector samples.
type RackRegion struct {
	// Rect is the region in working-image pixels.
	Rect image.Rectangle `json:"rect"`

	// Coverage is the share of the image covered by the foreground bounding
	// box, 0-1.
	Coverage float64 `json:"coverage"`

	// Cropped is true when Rect was derived from the foreground instead of
	// being the whole image.
	Cropped bool `json:"cropped"`
}

// FindRack locates the rack in a foreground mask: the bounding box of the
// foreground, grown by margin (a fraction of each image dimension), when it
// covers more than minCoverage of the image. Smaller boxes are treated as
// stray foreground and the whole image is used. ok is false when the mask
// has no foreground at all.
func FindRack(mask *imaging.Mask, minCoverage, margin float64) (RackRegion, bool) {
	full := image.Rect(0, 0, mask.Width, mask.Height)
	if mask.Count == 0 || full.Empty() {
		return RackRegion{}, false
	}

	fb := mask.Bounds()
	coverage := float64(fb.Dx()*fb.Dy()) / float64(full.Dx()*full.Dy())
	if coverage <= minCoverage {
		return RackRegion{Rect: full, Coverage: coverage}, true
	}

	mx := int(math.Round(margin * float64(mask.Width)))
	my := int(math.Round(margin * float64(mask.Height)))
	r := image.Rect(fb.Min.X-mx, fb.Min.Y-my, fb.Max.X+mx, fb.Max.Y+my).Intersect(full)
	return RackRegion{Rect: r, Coverage: coverage, Cropped: true}, true
}
