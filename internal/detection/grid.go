package detection

import (
	"context"
	"image"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ironsheep/rollcount/internal/imaging"
	"github.com/ironsheep/rollcount/internal/logging"
	"github.com/ironsheep/rollcount/internal/palette"
)

// GridConfig tunes the grid-sampling detector.
type GridConfig struct {
	// Rows and Cols fix the grid when both are positive. Otherwise cells
	// are squares of CellSizeFraction of the rack region's shorter side.
	Rows             int     `mapstructure:"rows"`
	Cols             int     `mapstructure:"cols"`
	CellSizeFraction float64 `mapstructure:"cell_size_fraction"`

	// RingPoints samples are taken on a ring of RingRadius times the cell's
	// inner radius; a cell is populated when at least RingHitFraction of
	// them are foreground.
	RingPoints      int     `mapstructure:"ring_points"`
	RingRadius      float64 `mapstructure:"ring_radius"`
	RingHitFraction float64 `mapstructure:"ring_hit_fraction"`

	// BoxScale is the half-size of a detection box as a fraction of the
	// cell's shorter side.
	BoxScale float64 `mapstructure:"box_scale"`

	// Confidence is assigned to every grid detection.
	Confidence float64 `mapstructure:"confidence"`

	// WorkingSize caps the longest side of the image the mask is built on.
	WorkingSize int `mapstructure:"working_size"`

	ForegroundDistance float64 `mapstructure:"foreground_distance"`
	BorderFraction     float64 `mapstructure:"border_fraction"`

	// MinRackCoverage and RackMargin control the rack crop, see FindRack.
	MinRackCoverage float64 `mapstructure:"min_rack_coverage"`
	RackMargin      float64 `mapstructure:"rack_margin"`

	Limits Limits `mapstructure:"limits"`
}

// DefaultGridConfig returns the last-resort grid tuning.
func DefaultGridConfig() GridConfig {
	return GridConfig{
		CellSizeFraction:   0.1,
		RingPoints:         12,
		RingRadius:         0.6,
		RingHitFraction:    0.4,
		BoxScale:           0.42,
		Confidence:         0.3,
		WorkingSize:        640,
		ForegroundDistance: 0.12,
		BorderFraction:     0.02,
		MinRackCoverage:    0.1,
		RackMargin:         0.03,
		Limits:             DefaultLimits(),
	}
}

// Validate reports every out-of-range setting.
func (c GridConfig) Validate() error {
	var err error
	if c.Rows < 0 || c.Cols < 0 {
		err = multierr.Append(err, errors.Errorf("rows and cols must not be negative, got %dx%d", c.Rows, c.Cols))
	}
	if (c.Rows == 0 || c.Cols == 0) && (c.CellSizeFraction <= 0 || c.CellSizeFraction > 1) {
		err = multierr.Append(err, errors.Errorf("cell_size_fraction must be in (0,1], got %v", c.CellSizeFraction))
	}
	if c.RingPoints < 1 {
		err = multierr.Append(err, errors.Errorf("ring_points must be positive, got %d", c.RingPoints))
	}
	if c.RingRadius < 0 || c.RingRadius > 1 {
		err = multierr.Append(err, errors.Errorf("ring_radius must be in [0,1], got %v", c.RingRadius))
	}
	if c.RingHitFraction <= 0 || c.RingHitFraction > 1 {
		err = multierr.Append(err, errors.Errorf("ring_hit_fraction must be in (0,1], got %v", c.RingHitFraction))
	}
	if c.BoxScale <= 0 || c.BoxScale > 0.5 {
		err = multierr.Append(err, errors.Errorf("box_scale must be in (0,0.5], got %v", c.BoxScale))
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		err = multierr.Append(err, errors.Errorf("confidence must be in [0,1], got %v", c.Confidence))
	}
	if c.ForegroundDistance <= 0 {
		err = multierr.Append(err, errors.Errorf("foreground_distance must be positive, got %v", c.ForegroundDistance))
	}
	return err
}

// GridDetector is the last-resort strategy: it lays a grid over the rack and
// reports one roll per cell whose center ring is mostly foreground. It makes
// no shape assumption, so it still works on tightly packed or square rolls.
type GridDetector struct {
	cfg        GridConfig
	classifier *palette.Classifier
	log        *zap.Logger
}

// NewGridDetector validates cfg and returns a detector. The classifier
// colors each populated cell; nil leaves colors Unknown.
func NewGridDetector(cfg GridConfig, classifier *palette.Classifier, logger *zap.Logger) (*GridDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid grid detector config")
	}
	return &GridDetector{
		cfg:        cfg,
		classifier: classifier,
		log:        logging.OrNop(logger).Named("grid"),
	}, nil
}

// Method returns MethodGrid.
func (d *GridDetector) Method() Method {
	return MethodGrid
}

// Detect samples the grid over img. An image without foreground yields an
// empty set; errors are reserved for invalid input and cancellation.
func (d *GridDetector) Detect(ctx context.Context, img image.Image) (Set, error) {
	if err := imaging.Validate(img); err != nil {
		return Set{}, err
	}
	bounds := img.Bounds()
	empty := EmptySet(MethodGrid, bounds.Dx(), bounds.Dy())

	work := imaging.Preprocess(img, imaging.PreprocessOptions{WorkingSize: d.cfg.WorkingSize}).Image
	w, h := work.Bounds().Dx(), work.Bounds().Dy()

	bg := imaging.EstimateBackground(work, int(math.Round(d.cfg.BorderFraction*float64(min(w, h)))))
	fg := imaging.ForegroundMask(work, bg, d.cfg.ForegroundDistance)

	rack, ok := FindRack(fg, d.cfg.MinRackCoverage, d.cfg.RackMargin)
	if !ok {
		d.log.Debug("no foreground")
		return empty, nil
	}
	if err := ctx.Err(); err != nil {
		return Set{}, errors.WithStack(err)
	}

	rows, cols := d.layout(rack.Rect)
	cellW := float64(rack.Rect.Dx()) / float64(cols)
	cellH := float64(rack.Rect.Dy()) / float64(rows)
	side := math.Min(cellW, cellH)
	ring := d.cfg.RingRadius * side / 2
	half := d.cfg.BoxScale * side
	need := int(math.Ceil(d.cfg.RingHitFraction * float64(d.cfg.RingPoints)))

	d.log.Debug("grid layout",
		zap.Stringer("rack", rack.Rect),
		zap.Bool("cropped", rack.Cropped),
		zap.Int("rows", rows),
		zap.Int("cols", cols))

	var dets []Detection
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			cx := float64(rack.Rect.Min.X) + (float64(c)+0.5)*cellW
			cy := float64(rack.Rect.Min.Y) + (float64(r)+0.5)*cellH
			if ringHits(fg, cx, cy, ring, d.cfg.RingPoints) < need {
				continue
			}
			box := BoxFromPixels(cx-half, cy-half, cx+half, cy+half, w, h)
			if !d.cfg.Limits.Accept(box) {
				continue
			}
			det := New(box, d.cfg.Confidence, MethodGrid)
			if d.classifier != nil {
				det = det.WithColor(d.classifier.Classify(img, boxRect(box, bounds)))
			}
			dets = append(dets, det)
		}
	}

	return NewSet(MethodGrid, bounds.Dx(), bounds.Dy(), dets), nil
}

// layout returns the grid dimensions for the rack rectangle.
func (d *GridDetector) layout(rack image.Rectangle) (int, int) {
	if d.cfg.Rows > 0 && d.cfg.Cols > 0 {
		return d.cfg.Rows, d.cfg.Cols
	}
	cell := d.cfg.CellSizeFraction * float64(min(rack.Dx(), rack.Dy()))
	rows := max(1, int(float64(rack.Dy())/cell))
	cols := max(1, int(float64(rack.Dx())/cell))
	return rows, cols
}

// ringHits counts the foreground samples among n points on a ring of the
// given radius around (cx, cy).
func ringHits(fg *imaging.Mask, cx, cy, radius float64, n int) int {
	hits := 0
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		x := int(math.Floor(cx + radius*math.Cos(angle)))
		y := int(math.Floor(cy + radius*math.Sin(angle)))
		if fg.At(x, y) {
			hits++
		}
	}
	return hits
}

// boxRect maps a percent box onto an image with the given bounds.
func boxRect(b Box, bounds image.Rectangle) image.Rectangle {
	return b.Pixels(bounds.Dx(), bounds.Dy()).Add(bounds.Min)
}
