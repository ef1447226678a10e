package cascade

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/ironsheep/rollcount/internal/detection"
	"github.com/ironsheep/rollcount/internal/imaging"
	"github.com/ironsheep/rollcount/internal/logging"
	"github.com/ironsheep/rollcount/internal/metrics"
	"github.com/ironsheep/rollcount/internal/palette"
)

// ErrInvalidInput is returned for a nil or zero-sized image.
var ErrInvalidInput = imaging.ErrInvalidInput

// Result is a finished run: the final set and the trace of attempts that led
// to it.
type Result struct {
	Set      detection.Set `json:"set"`
	Attempts []Attempt     `json:"attempts"`
}

// Methods returns the methods attempted, in order.
func (r Result) Methods() []detection.Method {
	return lo.Map(r.Attempts, func(a Attempt, _ int) detection.Method { return a.Method })
}

// Option customizes a Cascade.
type Option func(*Cascade)

// WithMetrics records runs and attempts on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cascade) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cascade) { c.log = logging.OrNop(l).Named("cascade") }
}

// Cascade runs its strategies in order. It holds no per-run state and is
// safe for concurrent use as long as its strategies are.
type Cascade struct {
	cfg        Config
	strategies []Strategy
	classifier *palette.Classifier
	metrics    *metrics.Metrics
	log        *zap.Logger
}

// New returns a cascade over strategies, tried in the given order. The
// classifier colors the final set; nil leaves colors as the strategy set
// them.
func New(cfg Config, classifier *palette.Classifier, strategies []Strategy, opts ...Option) (*Cascade, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid cascade config")
	}
	if len(strategies) == 0 {
		return nil, errors.New("cascade needs at least one strategy")
	}
	c := &Cascade{
		cfg:        cfg,
		strategies: strategies,
		classifier: classifier,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run detects rolls in img. The only errors are ErrInvalidInput and the
// context's own error when ctx ends between attempts; strategy failures
// are part of the returned trace.
func (c *Cascade) Run(ctx context.Context, img image.Image) (Result, error) {
	if err := imaging.Validate(img); err != nil {
		return Result{}, err
	}
	start := time.Now()
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	maxCount := c.cfg.MaxDetections(w, h)

	var (
		res     Result
		final   *detection.Set
		last    *detection.Set
		lastRun detection.Method
	)
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return Result{}, errors.WithStack(err)
		}
		lastRun = s.Method()

		began := time.Now()
		out := s.Attempt(ctx, img)
		if out.Kind == KindAccepted {
			out = c.judge(out, maxCount)
		}
		attempt := Attempt{
			Method:  s.Method(),
			Kind:    out.Kind,
			Reason:  out.Reason,
			Count:   out.Set.Count,
			Elapsed: time.Since(began),
		}
		res.Attempts = append(res.Attempts, attempt)
		c.metrics.RecordAttempt(string(attempt.Method), attempt.Kind.String())
		c.log.Debug("attempt",
			zap.String("method", string(attempt.Method)),
			zap.Stringer("outcome", attempt.Kind),
			zap.Int("count", attempt.Count),
			zap.String("reason", attempt.Reason),
			zap.Duration("elapsed", attempt.Elapsed))

		if out.Produced() {
			set := out.Set
			last = &set
		}
		if out.Kind == KindAccepted {
			final = last
			break
		}
	}

	var set detection.Set
	switch {
	case final != nil:
		set = *final
	case last != nil:
		set = last.WithMethod(lastRun)
	default:
		set = detection.EmptySet(lastRun, w, h)
	}

	if c.classifier != nil {
		set = set.WithColors(func(d detection.Detection) palette.Label {
			return c.classifier.Classify(img, d.Box.Pixels(w, h))
		})
	}
	elapsed := time.Since(start)
	res.Set = set.WithDuration(elapsed)

	c.metrics.RecordRun(string(res.Set.Method), elapsed, lo.MapKeys(res.Set.Breakdown, func(_ int, l palette.Label) string {
		return string(l)
	}))
	c.log.Debug("run done",
		zap.String("method", string(res.Set.Method)),
		zap.Int("count", res.Set.Count),
		zap.Int("attempts", len(res.Attempts)),
		zap.Duration("elapsed", elapsed))
	return res, nil
}

// judge demotes an accepted set whose count is outside the plausible range.
func (c *Cascade) judge(out Outcome, maxCount int) Outcome {
	n := out.Set.Count
	switch {
	case n < c.cfg.MinDetections:
		return Implausible(out.Set, fmt.Sprintf("%d detections, want at least %d", n, c.cfg.MinDetections))
	case n > maxCount:
		return Implausible(out.Set, fmt.Sprintf("%d detections, want at most %d", n, maxCount))
	}
	return out
}
