package cascade

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Config holds the plausibility bounds applied to every accepted set.
type Config struct {
	// MinDetections is the smallest plausible roll count.
	MinDetections int `mapstructure:"min_detections"`

	// MinObjectFraction is the smallest plausible roll side as a fraction of
	// the image's shorter side. It bounds the count from above: no more
	// rolls than squares of that side fit in the image.
	MinObjectFraction float64 `mapstructure:"min_object_fraction"`
}

// DefaultConfig returns the default plausibility bounds.
func DefaultConfig() Config {
	return Config{
		MinDetections:     1,
		MinObjectFraction: 0.02,
	}
}

// Validate reports every out-of-range setting.
func (c Config) Validate() error {
	var err error
	if c.MinDetections < 0 {
		err = multierr.Append(err, errors.Errorf("min_detections must not be negative, got %d", c.MinDetections))
	}
	if c.MinObjectFraction <= 0 || c.MinObjectFraction > 1 {
		err = multierr.Append(err, errors.Errorf("min_object_fraction must be in (0,1], got %v", c.MinObjectFraction))
	}
	return err
}

// MaxDetections returns the largest plausible count for a width x height
// image.
func (c Config) MaxDetections(width, height int) int {
	side := c.MinObjectFraction * float64(min(width, height))
	if side <= 0 {
		return 0
	}
	return int(float64(width) * float64(height) / (side * side))
}
