package palette

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Method selects how a patch's representative color is computed.
type Method string

const (
	// MethodMean averages every sampled pixel.
	MethodMean Method = "mean"

	// MethodDominant clusters the sampled pixels with k-means and takes the
	// centroid of the largest cluster, which separates the roll from the
	// background and shadow around it.
	MethodDominant Method = "dominant"
)

// HueBand maps a closed hue interval in degrees to a label.
type HueBand struct {
	Label Label   `mapstructure:"label" json:"label"`
	Min   float64 `mapstructure:"min" json:"min"`
	Max   float64 `mapstructure:"max" json:"max"`
}

// Config holds every tunable of the classifier.
type Config struct {
	Method Method `mapstructure:"method"`

	// Clusters is k for MethodDominant (2 or 3).
	Clusters int `mapstructure:"clusters"`

	// MaxSamples bounds the pixels read from one patch.
	MaxSamples int `mapstructure:"max_samples"`

	// MinPixels is the smallest patch that can be classified.
	MinPixels int `mapstructure:"min_pixels"`

	// MinVariance is the color variance at or below which a patch counts as
	// uniform (blank) and is reported as Unknown.
	MinVariance float64 `mapstructure:"min_variance"`

	// BlackValue: value below this is black regardless of hue.
	BlackValue float64 `mapstructure:"black_value"`

	// SaturationFloor: saturation below this is achromatic (white or gray).
	SaturationFloor float64 `mapstructure:"saturation_floor"`

	// WhiteValue: achromatic colors at or above this value are white.
	WhiteValue float64 `mapstructure:"white_value"`

	// BrownValue: red/orange hues darker than this are brown.
	BrownValue float64 `mapstructure:"brown_value"`

	// BrownMaxHue and BrownWrapHue delimit the red/orange hues that can turn
	// brown: hue <= BrownMaxHue or hue >= BrownWrapHue.
	BrownMaxHue  float64 `mapstructure:"brown_max_hue"`
	BrownWrapHue float64 `mapstructure:"brown_wrap_hue"`

	// Bands are the chromatic hue intervals.
	Bands []HueBand `mapstructure:"bands"`
}

// DefaultBands returns the empirically tuned hue intervals.
func DefaultBands() []HueBand {
	return []HueBand{
		{Label: Red, Min: 0, Max: 15},
		{Label: Orange, Min: 15, Max: 45},
		{Label: Yellow, Min: 45, Max: 70},
		{Label: Green, Min: 70, Max: 165},
		{Label: Cyan, Min: 165, Max: 195},
		{Label: Blue, Min: 195, Max: 255},
		{Label: Purple, Min: 255, Max: 290},
		{Label: Pink, Min: 290, Max: 335},
		{Label: Red, Min: 335, Max: 360},
	}
}

// DefaultConfig returns the classifier defaults.
func DefaultConfig() Config {
	return Config{
		Method:          MethodDominant,
		Clusters:        2,
		MaxSamples:      1024,
		MinPixels:       16,
		MinVariance:     1e-9,
		BlackValue:      0.2,
		SaturationFloor: 0.15,
		WhiteValue:      0.8,
		BrownValue:      0.55,
		BrownMaxHue:     45,
		BrownWrapHue:    335,
		Bands:           DefaultBands(),
	}
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var err error
	if c.Method != MethodMean && c.Method != MethodDominant {
		err = multierr.Append(err, errors.Errorf("unknown method %q", c.Method))
	}
	if c.Method == MethodDominant && (c.Clusters < 2 || c.Clusters > 8) {
		err = multierr.Append(err, errors.Errorf("clusters must be 2-8, got %d", c.Clusters))
	}
	if c.MinPixels < 1 {
		err = multierr.Append(err, errors.New("min_pixels must be positive"))
	}
	if len(c.Bands) == 0 {
		err = multierr.Append(err, errors.New("no hue bands"))
	}
	for i, b := range c.Bands {
		if b.Min > b.Max || b.Min < 0 || b.Max > 360 {
			err = multierr.Append(err, errors.Errorf("band %d (%s) has invalid range %.1f-%.1f", i, b.Label, b.Min, b.Max))
		}
		if b.Label == Unknown || b.Label.Index() >= len(order) {
			err = multierr.Append(err, errors.Errorf("band %d has unknown label %q", i, b.Label))
		}
	}
	return err
}
