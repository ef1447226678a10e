package export

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/ironsheep/rollcount/internal/detection"
	"github.com/ironsheep/rollcount/internal/palette"
	"github.com/ironsheep/rollcount/internal/reconcile"
)

// TrainingBox is one box of a training entry, in percent.
type TrainingBox struct {
	X          float64          `json:"x"`
	Y          float64          `json:"y"`
	Width      float64          `json:"width"`
	Height     float64          `json:"height"`
	Color      palette.Label    `json:"color"`
	Confidence float64          `json:"confidence"`
	Method     detection.Method `json:"method"`

	CorrectionType reconcile.Type `json:"correction_type,omitempty"`
	FalsePositive  bool           `json:"false_positive,omitempty"`
	MissedByAI     bool           `json:"missed_by_ai,omitempty"`
}

// CorrectionStats compares the detector's count with the reviewed count.
type CorrectionStats struct {
	AICount    int `json:"ai_count"`
	FinalCount int `json:"final_count"`
	Difference int `json:"difference"`

	Summary reconcile.Summary `json:"summary"`
}

// TrainingEntry pairs the detector output of one image with the operator's
// corrections.
type TrainingEntry struct {
	EntryID             string          `json:"entry_id"`
	Filename            string          `json:"filename"`
	ImagePath           string          `json:"image_path,omitempty"`
	AIDetections        []TrainingBox   `json:"ai_detections"`
	CorrectedDetections []TrainingBox   `json:"corrected_detections"`
	CorrectionStats     CorrectionStats `json:"correction_stats"`
}

func trainingBox(d detection.Detection) TrainingBox {
	return TrainingBox{
		X:          d.Box.X,
		Y:          d.Box.Y,
		Width:      d.Box.Width,
		Height:     d.Box.Height,
		Color:      d.Color,
		Confidence: d.Confidence,
		Method:     d.Method,
	}
}

// NewTrainingEntry builds an entry from a reconciliation. AI boxes are the
// originals the operator changed or deleted; corrected boxes are every box
// the operator kept or drew, tagged with its correction type.
func NewTrainingEntry(entryID, filename, imagePath string, res reconcile.Result) TrainingEntry {
	e := TrainingEntry{
		EntryID:             entryID,
		Filename:            filename,
		ImagePath:           imagePath,
		AIDetections:        []TrainingBox{},
		CorrectedDetections: []TrainingBox{},
	}
	for _, rec := range res.Records {
		switch rec.Type {
		case reconcile.TypeDeleted:
			b := trainingBox(*rec.Original)
			b.FalsePositive = true
			e.AIDetections = append(e.AIDetections, b)
			continue
		case reconcile.TypeMoved, reconcile.TypeResized:
			e.AIDetections = append(e.AIDetections, trainingBox(*rec.Original))
		}
		b := trainingBox(*rec.Corrected)
		b.CorrectionType = rec.Type
		b.MissedByAI = rec.Type == reconcile.TypeAdded
		e.CorrectedDetections = append(e.CorrectedDetections, b)
	}

	s := res.Summary
	e.CorrectionStats = CorrectionStats{
		AICount:    s.OriginalCount,
		FinalCount: s.CorrectedCount,
		Difference: s.CorrectedCount - s.OriginalCount,
		Summary:    s,
	}
	return e
}

// WriteTraining writes entries as an indented JSON array.
func WriteTraining(w io.Writer, entries []TrainingEntry) error {
	if entries == nil {
		entries = []TrainingEntry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(entries), "encode training data")
}
