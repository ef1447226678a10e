package reconcile

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ironsheep/rollcount/internal/detection"
	"github.com/ironsheep/rollcount/internal/logging"
	"github.com/ironsheep/rollcount/internal/metrics"
)

// Result is the outcome of one reconciliation.
type Result struct {
	Records []Record `json:"records"`
	Summary Summary  `json:"summary"`
	Issues  []Issue  `json:"issues,omitempty"`
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithMetrics records every reconciliation on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// Reconciler diffs original and corrected sets. It keeps no state between
// calls.
type Reconciler struct {
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics
}

// New validates cfg and returns a reconciler.
func New(cfg Config, logger *zap.Logger, opts ...Option) (*Reconciler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid reconcile config")
	}
	r := &Reconciler{cfg: cfg, log: logging.OrNop(logger).Named("reconcile")}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Reconcile compares the detector's original set with the operator's
// corrected set. Records come in corrected order (matched and added boxes)
// followed by deleted boxes in original order. Malformed boxes on either
// side are reported as issues and left out.
func (r *Reconciler) Reconcile(original, corrected detection.Set, editor string, at time.Time) Result {
	var res Result
	origs := r.wellFormed(original, SideOriginal, &res.Issues)
	corrs := r.wellFormed(corrected, SideCorrected, &res.Issues)
	res.Summary.OriginalCount = len(origs)
	res.Summary.CorrectedCount = len(corrs)

	used := make([]bool, len(origs))
	for _, c := range corrs {
		best := -1
		bestDist := math.Inf(1)
		for j, o := range origs {
			if used[j] {
				continue
			}
			tolerance := r.cfg.MatchToleranceFactor * (o.Box.Diagonal() + c.Box.Diagonal()) / 2
			dist := detection.CenterDistance(o.Box, c.Box)
			if dist <= tolerance && dist < bestDist {
				best, bestDist = j, dist
			}
		}

		corr := c
		if best < 0 {
			res.Records = append(res.Records, Record{Type: TypeAdded, Corrected: &corr, Editor: editor, At: at})
			continue
		}
		used[best] = true
		orig := origs[best]
		rec := r.compare(orig, corr)
		rec.Editor, rec.At = editor, at
		res.Records = append(res.Records, rec)
	}

	for j, o := range origs {
		if used[j] {
			continue
		}
		orig := o
		res.Records = append(res.Records, Record{Type: TypeDeleted, Original: &orig, Editor: editor, At: at})
	}

	for _, rec := range res.Records {
		res.Summary.add(rec.Type)
	}
	s := &res.Summary
	s.Accuracy = Accuracy(s.Unchanged, s.Moved, s.Resized, s.Deleted)

	counts := make(map[string]int, len(Types()))
	for t, n := range s.Counts() {
		counts[string(t)] = n
	}
	r.metrics.RecordReconcile(counts, s.Accuracy)
	r.log.Debug("reconciled",
		zap.String("editor", editor),
		zap.Int("unchanged", s.Unchanged),
		zap.Int("moved", s.Moved),
		zap.Int("resized", s.Resized),
		zap.Int("added", s.Added),
		zap.Int("deleted", s.Deleted),
		zap.Int("issues", len(res.Issues)),
		zap.Float64("accuracy", s.Accuracy))
	return res
}

// compare classifies a matched pair.
func (r *Reconciler) compare(orig, corr detection.Detection) Record {
	ocx, ocy := orig.Box.Center()
	ccx, ccy := corr.Box.Center()
	dx, dy := math.Abs(ccx-ocx), math.Abs(ccy-ocy)
	dw, dh := math.Abs(corr.Box.Width-orig.Box.Width), math.Abs(corr.Box.Height-orig.Box.Height)

	rec := Record{
		Original:      &orig,
		Corrected:     &corr,
		PositionDelta: math.Max(dx, dy),
		SizeDelta:     math.Max(dw, dh),
	}
	moved := rec.PositionDelta > r.cfg.ChangeTolerance
	resized := rec.SizeDelta > r.cfg.ChangeTolerance

	switch {
	case !moved && !resized:
		rec.Type = TypeUnchanged
	case moved && !resized:
		rec.Type = TypeMoved
	case resized && !moved:
		rec.Type = TypeResized
	default:
		rec.Type = r.breakTie(math.Hypot(dx, dy), math.Hypot(dw, dh))
	}
	return rec
}

func (r *Reconciler) breakTie(position, size float64) Type {
	switch r.cfg.TieBreak {
	case TieBreakMoved:
		return TypeMoved
	case TieBreakResized:
		return TypeResized
	}
	if size > position {
		return TypeResized
	}
	return TypeMoved
}

// wellFormed returns the valid detections of s and appends an issue for
// every malformed one.
func (r *Reconciler) wellFormed(s detection.Set, side Side, issues *[]Issue) []detection.Detection {
	out := make([]detection.Detection, 0, len(s.Detections))
	for i, d := range s.Detections {
		if p := boxProblem(d.Box); p != "" {
			*issues = append(*issues, Issue{Side: side, Index: i, ID: d.ID, Box: d.Box, Problem: p})
			r.log.Warn("malformed box skipped",
				zap.String("side", string(side)),
				zap.Int("index", i),
				zap.String("problem", p))
			continue
		}
		out = append(out, d)
	}
	return out
}

func boxProblem(b detection.Box) string {
	for _, v := range []float64{b.X, b.Y, b.Width, b.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "non-finite coordinate"
		}
	}
	if b.Width < 0 || b.Height < 0 {
		return "negative extent"
	}
	return ""
}
