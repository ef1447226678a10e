package cascade

import (
	"context"
	"image"

	"github.com/ironsheep/rollcount/internal/detection"
)

// Strategy is one way of finding rolls in an image.
type Strategy interface {
	Method() detection.Method
	Attempt(ctx context.Context, img image.Image) Outcome
}

// Detector is anything that turns an image into a detection set:
// learned.Detector, detection.CircleDetector and detection.GridDetector.
type Detector interface {
	Method() detection.Method
	Detect(ctx context.Context, img image.Image) (detection.Set, error)
}

// Learned adapts the learned model. Any error means the model is
// unavailable.
func Learned(d Detector) Strategy {
	return learnedStrategy{d}
}

type learnedStrategy struct{ d Detector }

func (s learnedStrategy) Method() detection.Method { return s.d.Method() }

func (s learnedStrategy) Attempt(ctx context.Context, img image.Image) Outcome {
	set, err := s.d.Detect(ctx, img)
	if err != nil {
		return Unavailable(err.Error())
	}
	return Accepted(set)
}

// Geometric adapts a classical detector. Geometric detectors are always
// available; an error only makes their result implausible.
func Geometric(d Detector) Strategy {
	return geometricStrategy{d}
}

type geometricStrategy struct{ d Detector }

func (s geometricStrategy) Method() detection.Method { return s.d.Method() }

func (s geometricStrategy) Attempt(ctx context.Context, img image.Image) Outcome {
	set, err := s.d.Detect(ctx, img)
	if err != nil {
		return Failed(err.Error())
	}
	return Accepted(set)
}

// Standard returns the default order: the learned model, then the circular
// detector, then the grid detector. Nil detectors are left out.
func Standard(learned, circular, grid Detector) []Strategy {
	var out []Strategy
	if learned != nil {
		out = append(out, Learned(learned))
	}
	if circular != nil {
		out = append(out, Geometric(circular))
	}
	if grid != nil {
		out = append(out, Geometric(grid))
	}
	return out
}
