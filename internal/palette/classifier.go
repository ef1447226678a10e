package palette

import (
	"image"
	"math"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
	"github.com/pkg/errors"

	"github.com/ironsheep/rollcount/internal/imaging"
)

// Result explains one classification.
type Result struct {
	Label Label `json:"label"`

	// Color is the representative color the label was derived from.
	Color imaging.ColorResult `json:"color"`

	// Pixels is the number of sampled pixels.
	Pixels int `json:"pixels"`

	// Variance is the summed per-channel variance of the samples (0-1 scale).
	Variance float64 `json:"variance"`
}

// Classifier maps image patches to palette labels. It holds no mutable state
// and is safe for concurrent use.
type Classifier struct {
	cfg Config
}

// New validates cfg and returns a classifier.
func New(cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid palette config")
	}
	return &Classifier{cfg: cfg}, nil
}

// Config returns the classifier's configuration.
func (c *Classifier) Config() Config {
	return c.cfg
}

// Classify returns the label of the patch r of img. Patches that are too
// small or uniform yield Unknown. It never fails.
func (c *Classifier) Classify(img image.Image, r image.Rectangle) Label {
	return c.Describe(img, r).Label
}

// Describe classifies the patch r of img and reports how.
func (c *Classifier) Describe(img image.Image, r image.Rectangle) Result {
	pixels := imaging.PatchPixels(img, r, c.cfg.MaxSamples)
	res := Result{Label: Unknown, Pixels: len(pixels)}
	if len(pixels) < c.cfg.MinPixels {
		return res
	}

	res.Variance = imaging.ColorVariance(pixels)
	if res.Variance <= c.cfg.MinVariance {
		return res
	}

	rep := c.Representative(pixels)
	res.Color = rep.Result()
	res.Label = c.ClassifyColor(rep)
	return res
}

// Representative returns the color that stands for the whole sample, per the
// configured method. Clustering failures fall back to the mean.
func (c *Classifier) Representative(pixels []imaging.RGBColor) imaging.RGBColor {
	if c.cfg.Method == MethodDominant {
		rank := func(rgb imaging.RGBColor) int { return c.ClassifyColor(rgb).Index() }
		if dom, err := dominantColor(pixels, c.cfg.Clusters, rank); err == nil {
			return dom
		}
	}
	return imaging.MeanColor(pixels)
}

// ClassifyColor buckets a single color.
func (c *Classifier) ClassifyColor(rgb imaging.RGBColor) Label {
	return c.ClassifyHSV(rgb.HSV())
}

// ClassifyHSV buckets an HSV color: dark colors are black, unsaturated ones
// white or gray by value, dark red/orange ones brown, and the rest by hue
// band. A hue inside several bands takes the lowest-ranked label.
func (c *Classifier) ClassifyHSV(hsv imaging.HSVColor) Label {
	if hsv.V < c.cfg.BlackValue {
		return Black
	}
	if hsv.S < c.cfg.SaturationFloor {
		if hsv.V >= c.cfg.WhiteValue {
			return White
		}
		return Gray
	}
	if hsv.V < c.cfg.BrownValue && (hsv.H <= c.cfg.BrownMaxHue || hsv.H >= c.cfg.BrownWrapHue) {
		return Brown
	}

	best := Unknown
	for _, b := range c.cfg.Bands {
		if hsv.H < b.Min || hsv.H > b.Max {
			continue
		}
		if best == Unknown || b.Label.Index() < best.Index() {
			best = b.Label
		}
	}
	return best
}

// dominantColor returns the centroid of the largest k-means cluster of the
// pixels in RGB space. k-means seeds randomly and returns clusters in no
// fixed order, so equal-sized clusters are ordered by rank of their centroid
// and then by the centroid itself.
func dominantColor(pixels []imaging.RGBColor, k int, rank func(imaging.RGBColor) int) (imaging.RGBColor, error) {
	if len(pixels) < k {
		return imaging.RGBColor{}, errors.Errorf("need at least %d pixels, have %d", k, len(pixels))
	}

	obs := make(clusters.Observations, 0, len(pixels))
	for _, p := range pixels {
		obs = append(obs, clusters.Coordinates{float64(p.R), float64(p.G), float64(p.B)})
	}

	km := kmeans.New()
	cc, err := km.Partition(obs, k)
	if err != nil {
		return imaging.RGBColor{}, errors.Wrap(err, "kmeans partition")
	}

	var (
		best     imaging.RGBColor
		bestSize = 0
	)
	for _, cl := range cc {
		n := len(cl.Observations)
		if n == 0 {
			continue
		}
		if len(cl.Center) < 3 {
			return imaging.RGBColor{}, errors.New("kmeans centroid has wrong dimension")
		}
		col := imaging.RGBColor{R: channel(cl.Center[0]), G: channel(cl.Center[1]), B: channel(cl.Center[2])}
		if n > bestSize || (n == bestSize && ranksBefore(col, best, rank)) {
			best, bestSize = col, n
		}
	}
	if bestSize == 0 {
		return imaging.RGBColor{}, errors.New("kmeans produced no clusters")
	}
	return best, nil
}

func ranksBefore(a, b imaging.RGBColor, rank func(imaging.RGBColor) int) bool {
	if ra, rb := rank(a), rank(b); ra != rb {
		return ra < rb
	}
	if a.R != b.R {
		return a.R < b.R
	}
	if a.G != b.G {
		return a.G < b.G
	}
	return a.B < b.B
}

func channel(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}
