package detection

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ironsheep/rollcount/internal/imaging"
	"github.com/ironsheep/rollcount/internal/logging"
)

// RadiusRange bounds the circle radii searched by one parameter-grid entry,
// as fractions of the shorter side of the working image.
type RadiusRange struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

// CircleConfig tunes the circular-shape detector.
type CircleConfig struct {
	Preprocess imaging.PreprocessOptions `mapstructure:"preprocess"`
	Edges      imaging.EdgeOptions       `mapstructure:"edges"`

	// AngleSteps is the number of directions each edge pixel votes along.
	AngleSteps int `mapstructure:"angle_steps"`

	// VoteFraction is the share of AngleSteps an accumulator cell needs to
	// become a candidate center.
	VoteFraction float64 `mapstructure:"vote_fraction"`

	// MaxCandidatesPerRadius caps the candidates kept per radius, strongest
	// first.
	MaxCandidatesPerRadius int `mapstructure:"max_candidates_per_radius"`

	// MinRoundness is the share of perimeter samples that must lie on an
	// edge for a candidate to count as a circle.
	MinRoundness float64 `mapstructure:"min_roundness"`

	// RadiusRanges and MinDistFactors span the parameter grid. The center
	// distance threshold of an entry is factor * minimum radius.
	RadiusRanges   []RadiusRange `mapstructure:"radius_ranges"`
	MinDistFactors []float64     `mapstructure:"min_dist_factors"`

	// IoUThreshold drops the weaker of two circles whose boxes overlap more.
	IoUThreshold float64 `mapstructure:"iou_threshold"`

	// ForegroundDistance is the Lab distance from the background above which
	// a pixel counts as roll.
	ForegroundDistance float64 `mapstructure:"foreground_distance"`

	// BorderFraction is the width of the border frame sampled for the
	// background color, as a fraction of the shorter side.
	BorderFraction float64 `mapstructure:"border_fraction"`

	Limits Limits `mapstructure:"limits"`
}

// DefaultCircleConfig returns the tuning used for rack photos.
func DefaultCircleConfig() CircleConfig {
	return CircleConfig{
		Preprocess: imaging.PreprocessOptions{
			WorkingSize: 640,
			BlurRadius:  1.0,
			Contrast:    0.2,
		},
		Edges: imaging.EdgeOptions{
			Relative: 0.3,
			Floor:    0.1,
		},
		AngleSteps:             36,
		VoteFraction:           0.35,
		MaxCandidatesPerRadius: 400,
		MinRoundness:           0.6,
		RadiusRanges: []RadiusRange{
			{Min: 0.03, Max: 0.08},
			{Min: 0.06, Max: 0.16},
			{Min: 0.12, Max: 0.3},
		},
		MinDistFactors:     []float64{1.0, 1.6},
		IoUThreshold:       0.3,
		ForegroundDistance: 0.12,
		BorderFraction:     0.02,
		Limits:             DefaultLimits(),
	}
}

// Validate reports every out-of-range setting.
func (c CircleConfig) Validate() error {
	var err error
	if c.AngleSteps < 8 {
		err = multierr.Append(err, errors.Errorf("angle_steps must be at least 8, got %d", c.AngleSteps))
	}
	if c.VoteFraction <= 0 || c.VoteFraction > 1 {
		err = multierr.Append(err, errors.Errorf("vote_fraction must be in (0,1], got %v", c.VoteFraction))
	}
	if c.MinRoundness <= 0 || c.MinRoundness > 1 {
		err = multierr.Append(err, errors.Errorf("min_roundness must be in (0,1], got %v", c.MinRoundness))
	}
	if len(c.RadiusRanges) == 0 {
		err = multierr.Append(err, errors.New("radius_ranges must not be empty"))
	}
	for i, r := range c.RadiusRanges {
		if r.Min <= 0 || r.Max < r.Min || r.Max > 1 {
			err = multierr.Append(err, errors.Errorf("radius_ranges[%d] %v..%v is not an increasing range in (0,1]", i, r.Min, r.Max))
		}
	}
	if len(c.MinDistFactors) == 0 {
		err = multierr.Append(err, errors.New("min_dist_factors must not be empty"))
	}
	for i, f := range c.MinDistFactors {
		if f <= 0 {
			err = multierr.Append(err, errors.Errorf("min_dist_factors[%d] must be positive, got %v", i, f))
		}
	}
	if c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		err = multierr.Append(err, errors.Errorf("iou_threshold must be in [0,1], got %v", c.IoUThreshold))
	}
	if c.ForegroundDistance <= 0 {
		err = multierr.Append(err, errors.Errorf("foreground_distance must be positive, got %v", c.ForegroundDistance))
	}
	if c.Limits.MinSizePercent < 0 {
		err = multierr.Append(err, errors.Errorf("limits.min_size_percent must not be negative, got %v", c.Limits.MinSizePercent))
	}
	return err
}

// circle is a scored circle on the working image.
type circle struct {
	X, Y, R    float64
	Roundness  float64
	Confidence float64
}

// CircleDetector finds round rolls with a circular Hough transform over a
// small grid of radius ranges and center-distance thresholds, keeping the
// grid entry whose count best matches the foreground area.
//
// The detector holds no per-call state and is safe for concurrent use.
type CircleDetector struct {
	cfg       CircleConfig
	transform circleTransform
	log       *zap.Logger
}

// NewCircleDetector validates cfg and returns a detector. A nil logger
// disables logging.
func NewCircleDetector(cfg CircleConfig, logger *zap.Logger) (*CircleDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid circle detector config")
	}
	return &CircleDetector{
		cfg:       cfg,
		transform: newCircleTransform(),
		log:       logging.OrNop(logger).Named("circles"),
	}, nil
}

// Method returns MethodCircular.
func (d *CircleDetector) Method() Method {
	return MethodCircular
}

// Detect returns the circles found in img as a set in reading order. Finding
// nothing is not an error: the set is simply empty. Errors are reserved for
// invalid input and cancellation.
//
// # Algorithm
//
//  1. Preprocess: resize to the working size, Gaussian blur, contrast boost
//  2. Sobel gradients thresholded into an edge map
//  3. For each radius range, circular transform candidates scored by
//     roundness (perimeter samples on edges) and edge strength
//  4. For each grid entry, center-distance suppression then IoU dedupe
//  5. The entry whose count is closest to foreground area / mean circle area
//     wins; ties go to the earlier entry
func (d *CircleDetector) Detect(ctx context.Context, img image.Image) (Set, error) {
	if err := imaging.Validate(img); err != nil {
		return Set{}, err
	}
	bounds := img.Bounds()
	empty := EmptySet(MethodCircular, bounds.Dx(), bounds.Dy())

	pre := imaging.Preprocess(img, d.cfg.Preprocess)
	work := pre.Image
	w, h := work.Bounds().Dx(), work.Bounds().Dy()
	shorter := min(w, h)

	edges := imaging.Gradient(work, d.cfg.Edges)
	if edges.Count == 0 {
		d.log.Debug("no edges", zap.Int("width", w), zap.Int("height", h))
		return empty, nil
	}

	bg := imaging.EstimateBackground(work, int(math.Round(d.cfg.BorderFraction*float64(shorter))))
	fg := imaging.ForegroundMask(work, bg, d.cfg.ForegroundDistance)

	scored := make([][]circle, len(d.cfg.RadiusRanges))
	for i, rr := range d.cfg.RadiusRanges {
		if err := ctx.Err(); err != nil {
			return Set{}, errors.WithStack(err)
		}
		minR, maxR := radiusBounds(rr, shorter)
		cands := d.transform.candidates(work, edges, minR, maxR, d.cfg)
		scored[i] = scoreCandidates(edges, cands, d.cfg)
		d.log.Debug("radius range scored",
			zap.Int("min_radius", minR),
			zap.Int("max_radius", maxR),
			zap.Int("candidates", len(cands)),
			zap.Int("round", len(scored[i])))
	}

	var (
		best     []Detection
		bestDiff = math.Inf(1)
	)
	for i, rr := range d.cfg.RadiusRanges {
		minR, _ := radiusBounds(rr, shorter)
		for _, factor := range d.cfg.MinDistFactors {
			dets := d.selectCircles(scored[i], factor*float64(minR), w, h)
			if len(dets) == 0 {
				continue
			}
			expected := expectedCount(fg, dets, w, h)
			diff := math.Abs(float64(len(dets)) - expected)
			d.log.Debug("grid entry",
				zap.Int("range", i),
				zap.Float64("min_dist_factor", factor),
				zap.Int("count", len(dets)),
				zap.Float64("expected", expected))
			if diff < bestDiff {
				best, bestDiff = dets, diff
			}
		}
	}

	if len(best) == 0 {
		return empty, nil
	}

	// Boxes are percentages, so they carry over from the working image to
	// the original unchanged.
	SortReadingOrder(best)
	return NewSet(MethodCircular, bounds.Dx(), bounds.Dy(), best), nil
}

// selectCircles applies center-distance suppression and IoU dedupe to the
// scored circles of one radius range and converts the survivors to
// detections on a w x h working image.
func (d *CircleDetector) selectCircles(scored []circle, minDist float64, w, h int) []Detection {
	kept := make([]circle, 0, len(scored))
	for _, c := range scored {
		near := false
		for _, k := range kept {
			if math.Hypot(c.X-k.X, c.Y-k.Y) < minDist {
				near = true
				break
			}
		}
		if !near {
			kept = append(kept, c)
		}
	}

	dets := make([]Detection, 0, len(kept))
	for _, c := range kept {
		box := BoxFromPixels(c.X-c.R, c.Y-c.R, c.X+c.R+1, c.Y+c.R+1, w, h)
		if !d.cfg.Limits.Accept(box) {
			continue
		}
		dets = append(dets, New(box, c.Confidence, MethodCircular))
	}
	return Dedupe(dets, d.cfg.IoUThreshold)
}

// radiusBounds converts a fractional radius range to pixels on an image
// whose shorter side is shorter.
func radiusBounds(rr RadiusRange, shorter int) (int, int) {
	minR := max(3, int(math.Round(rr.Min*float64(shorter))))
	maxR := max(minR, int(math.Round(rr.Max*float64(shorter))))
	return minR, maxR
}

// expectedCount estimates how many circles of the detected mean size the
// foreground can hold.
func expectedCount(fg *imaging.Mask, dets []Detection, w, h int) float64 {
	var area float64
	for _, d := range dets {
		// Boxes are 2r+1 pixels across; the circle inside has radius r.
		rx := (d.Box.Width*float64(w)/100 - 1) / 2
		ry := (d.Box.Height*float64(h)/100 - 1) / 2
		area += math.Pi * math.Max(rx, 0.5) * math.Max(ry, 0.5)
	}
	mean := area / float64(len(dets))
	if mean <= 0 {
		return 0
	}
	return float64(fg.Count) / mean
}

// scoreCandidates measures every candidate against the edge map, drops the
// ones that are not round enough, and returns the rest strongest first.
// Equal confidences are ordered by position then radius so the result does
// not depend on candidate order.
func scoreCandidates(edges *imaging.EdgeMap, cands []circleCandidate, cfg CircleConfig) []circle {
	out := make([]circle, 0, len(cands))
	for _, c := range cands {
		roundness, strength := perimeterScore(edges, c.X, c.Y, c.R, cfg.AngleSteps)
		if roundness < cfg.MinRoundness {
			continue
		}
		out = append(out, circle{
			X:          c.X,
			Y:          c.Y,
			R:          c.R,
			Roundness:  roundness,
			Confidence: math.Min(1, 0.8*roundness+0.2*strength),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.R < b.R
	})
	return out
}

// perimeterScore samples steps points around the circle (cx, cy, r). A
// sample hits when the edge map is set at radius r-1, r or r+1 along its
// direction. It returns the hit fraction and the mean normalized gradient
// strength of the hits.
func perimeterScore(edges *imaging.EdgeMap, cx, cy, r float64, steps int) (float64, float64) {
	hits := 0
	var strength float64
	for i := 0; i < steps; i++ {
		angle := 2 * math.Pi * float64(i) / float64(steps)
		cos, sin := math.Cos(angle), math.Sin(angle)
		best := -1.0
		for dr := -1.0; dr <= 1; dr++ {
			x := int(math.Round(cx + (r+dr)*cos))
			y := int(math.Round(cy + (r+dr)*sin))
			if edges.IsEdge(x, y) {
				best = math.Max(best, edges.Strength(x, y))
			}
		}
		if best >= 0 {
			hits++
			strength += best
		}
	}
	if hits == 0 {
		return 0, 0
	}
	return float64(hits) / float64(steps), strength / float64(hits)
}
