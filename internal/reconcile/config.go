package reconcile

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// TieBreak decides the type of a matched pair whose position and size both
// changed beyond tolerance.
type TieBreak string

const (
	// TieBreakMagnitude compares the position delta with the size delta
	// (each as the length of its x/y vector) and picks the larger; equal
	// deltas count as moved.
	TieBreakMagnitude TieBreak = "magnitude"

	// TieBreakMoved always picks moved.
	TieBreakMoved TieBreak = "moved"

	// TieBreakResized always picks resized.
	TieBreakResized TieBreak = "resized"
)

// Valid reports whether t is a known policy.
func (t TieBreak) Valid() bool {
	switch t {
	case TieBreakMagnitude, TieBreakMoved, TieBreakResized:
		return true
	}
	return false
}

// Config tunes matching and change detection. Distances are in percent of
// the image dimensions, like the boxes themselves.
type Config struct {
	// MatchToleranceFactor scales the average diagonal of two boxes into
	// the largest center distance at which they still match.
	MatchToleranceFactor float64 `mapstructure:"match_tolerance_factor"`

	// ChangeTolerance is the largest position or size delta that still
	// counts as unchanged.
	ChangeTolerance float64 `mapstructure:"change_tolerance"`

	TieBreak TieBreak `mapstructure:"tie_break"`
}

// DefaultConfig returns half-diagonal matching, a 2% change tolerance and
// the magnitude tie-break.
func DefaultConfig() Config {
	return Config{
		MatchToleranceFactor: 0.5,
		ChangeTolerance:      2.0,
		TieBreak:             TieBreakMagnitude,
	}
}

// Validate reports every out-of-range setting.
func (c Config) Validate() error {
	var err error
	if c.MatchToleranceFactor <= 0 {
		err = multierr.Append(err, errors.Errorf("match_tolerance_factor must be positive, got %v", c.MatchToleranceFactor))
	}
	if c.ChangeTolerance < 0 {
		err = multierr.Append(err, errors.Errorf("change_tolerance must not be negative, got %v", c.ChangeTolerance))
	}
	if !c.TieBreak.Valid() {
		err = multierr.Append(err, errors.Errorf("unknown tie_break %q", c.TieBreak))
	}
	return err
}
