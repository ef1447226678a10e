package learned

import (
	"image"
	"math"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"

	"github.com/ironsheep/rollcount/internal/detection"
	"github.com/ironsheep/rollcount/internal/imaging"
)

// prepareInput resizes img to size x size and lays it out as an NHWC
// float32 tensor of RGB values scaled to 0-1. The image is stretched, not
// letterboxed, so model coordinates map straight back to image fractions.
func prepareInput(img image.Image, size int) []float32 {
	resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)
	b := resized.Bounds()

	tensor := make([]float32, 0, size*size*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			p := imaging.RGBFromColor(resized.At(x, y))
			tensor = append(tensor, float32(p.R)/255, float32(p.G)/255, float32(p.B)/255)
		}
	}
	return tensor
}

// normalizedLimit is the largest coordinate still read as a fraction of the
// input size. Exported models emit either fractions or input pixels.
const normalizedLimit = 1.5

// decodeYOLO turns a YOLO detection head into detections.
//
// The output is [1, 4+C, N] (channel-major, the default export) or
// [1, N, 4+C]; the smaller of the last two dimensions is taken as the
// attribute axis. Each anchor holds center x, center y, width, height and C
// class scores; its confidence is the best class score. Anchors under the
// confidence floor are dropped, the rest go through non-maximum suppression.
func decodeYOLO(out Output, cfg Config) ([]detection.Detection, error) {
	dims := out.Shape
	if len(dims) == 3 && dims[0] == 1 {
		dims = dims[1:]
	}
	if len(dims) != 2 {
		return nil, errors.Errorf("unexpected output shape %v", out.Shape)
	}
	if dims[0]*dims[1] != len(out.Data) {
		return nil, errors.Errorf("output shape %v does not match %d values", out.Shape, len(out.Data))
	}

	attrs, anchors := dims[0], dims[1]
	channelMajor := true
	if dims[1] < dims[0] {
		attrs, anchors = dims[1], dims[0]
		channelMajor = false
	}
	if attrs < 5 {
		return nil, errors.Errorf("output shape %v has no class scores", out.Shape)
	}

	at := func(anchor, attr int) float64 {
		if channelMajor {
			return float64(out.Data[attr*anchors+anchor])
		}
		return float64(out.Data[anchor*attrs+attr])
	}

	size := float64(cfg.InputSize)
	var dets []detection.Detection
	for i := 0; i < anchors; i++ {
		score := 0.0
		for c := 4; c < attrs; c++ {
			score = math.Max(score, at(i, c))
		}
		if score < cfg.ConfidenceFloor {
			continue
		}

		cx, cy, w, h := at(i, 0), at(i, 1), at(i, 2), at(i, 3)
		if math.Max(math.Max(cx, cy), math.Max(w, h)) > normalizedLimit {
			cx, cy, w, h = cx/size, cy/size, w/size, h/size
		}

		// Fractions of the input become percent of the original image.
		box := detection.BoxFromPixels(
			(cx-w/2)*size, (cy-h/2)*size, (cx+w/2)*size, (cy+h/2)*size,
			cfg.InputSize, cfg.InputSize)
		if !cfg.Limits.Accept(box) {
			continue
		}
		dets = append(dets, detection.New(box, score, detection.MethodLearned))
	}

	return detection.Dedupe(dets, cfg.IoUThreshold), nil
}
