package detection

import (
	"image"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/ironsheep/rollcount/internal/imaging"
	"github.com/ironsheep/rollcount/internal/palette"
)

// Set is the complete result of one detection pass over one image, or the
// operator-corrected version of it.
//
// Count always equals len(Detections) and the Breakdown values sum to Count.
// Sets are snapshots: build them with NewSet and derive changed copies with
// the With* methods; never edit the slice or map of a set you did not just
// create.
type Set struct {
	Detections  []Detection           `json:"detections"`
	Method      Method                `json:"method"`
	Count       int                   `json:"count"`
	Breakdown   map[palette.Label]int `json:"breakdown"`
	Duration    time.Duration         `json:"duration_ns"`
	ImageWidth  int                   `json:"image_width"`
	ImageHeight int                   `json:"image_height"`
}

// NewSet copies dets into a new set for a width x height image and computes
// its count and color breakdown.
func NewSet(method Method, width, height int, dets []Detection) Set {
	s := Set{
		Detections:  make([]Detection, len(dets)),
		Method:      method,
		ImageWidth:  width,
		ImageHeight: height,
	}
	copy(s.Detections, dets)
	return s.rebuild()
}

// EmptySet returns a set with no detections.
func EmptySet(method Method, width, height int) Set {
	return NewSet(method, width, height, nil)
}

func (s Set) rebuild() Set {
	s.Count = len(s.Detections)
	s.Breakdown = lo.CountValuesBy(s.Detections, func(d Detection) palette.Label {
		return d.Color
	})
	return s
}

// Empty reports whether the set holds no detections.
func (s Set) Empty() bool {
	return len(s.Detections) == 0
}

// Clone returns a deep copy of s.
func (s Set) Clone() Set {
	c := s
	c.Detections = make([]Detection, len(s.Detections))
	copy(c.Detections, s.Detections)
	c.Breakdown = make(map[palette.Label]int, len(s.Breakdown))
	for k, v := range s.Breakdown {
		c.Breakdown[k] = v
	}
	return c
}

// WithDuration returns a copy of s with the processing duration set.
func (s Set) WithDuration(d time.Duration) Set {
	c := s.Clone()
	c.Duration = d
	return c
}

// WithMethod returns a copy of s tagged with m. Detection method tags are
// left alone.
func (s Set) WithMethod(m Method) Set {
	c := s.Clone()
	c.Method = m
	return c
}

// WithColors returns a copy of s where every detection's color is replaced
// by label(d), with the breakdown recomputed.
func (s Set) WithColors(label func(Detection) palette.Label) Set {
	c := s.Clone()
	for i, d := range c.Detections {
		c.Detections[i] = d.WithColor(label(d))
	}
	return c.rebuild()
}

// Boxes returns the boxes of the detections in order.
func (s Set) Boxes() []Box {
	return lo.Map(s.Detections, func(d Detection, _ int) Box { return d.Box })
}

// Overlays returns one outline per detection for an image with the given
// bounds, numbered from 1 in set order and drawn in the detection's color.
func (s Set) Overlays(bounds image.Rectangle) []imaging.Overlay {
	return lo.Map(s.Detections, func(d Detection, i int) imaging.Overlay {
		return imaging.Overlay{
			Rect:   d.Box.Pixels(bounds.Dx(), bounds.Dy()).Add(bounds.Min),
			Color:  d.Color.Display(),
			Number: i + 1,
		}
	})
}

// Validate checks the set invariants: count and breakdown agree with the
// detections, and every box is valid and contained in the image.
func (s Set) Validate() error {
	var err error
	if s.Count != len(s.Detections) {
		err = multierr.Append(err, errors.Errorf("count %d != %d detections", s.Count, len(s.Detections)))
	}
	sum := lo.Sum(lo.Values(s.Breakdown))
	if sum != s.Count {
		err = multierr.Append(err, errors.Errorf("breakdown sums to %d, count is %d", sum, s.Count))
	}
	for i, d := range s.Detections {
		if !d.Box.Valid() {
			err = multierr.Append(err, errors.Errorf("detection %d (%s): malformed box %+v", i, d.ID, d.Box))
			continue
		}
		if !d.Box.Contained() {
			err = multierr.Append(err, errors.Errorf("detection %d (%s): box %+v outside image", i, d.ID, d.Box))
		}
	}
	return err
}
