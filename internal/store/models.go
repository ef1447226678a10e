package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ironsheep/rollcount/internal/detection"
	"github.com/ironsheep/rollcount/internal/palette"
)

// Entry is one processed image.
type Entry struct {
	ID            string           `json:"id" gorm:"primaryKey;size:36"`
	Filename      string           `json:"filename" gorm:"not null"`
	ImagePath     string           `json:"image_path"`
	ImageWidth    int              `json:"image_width"`
	ImageHeight   int              `json:"image_height"`
	Method        detection.Method `json:"method" gorm:"index"`
	DetectedCount int              `json:"detected_count"`
	FinalCount    int              `json:"final_count"`
	Edited        bool             `json:"edited" gorm:"index"`
	Reviews       int              `json:"reviews"`
	DurationNS    int64            `json:"duration_ns"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// BeforeCreate assigns a UUID to new entries.
func (e *Entry) BeforeCreate(*gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// Set kinds of a DetectionRow.
const (
	KindOriginal  = "original"
	KindCorrected = "corrected"
)

// DetectionRow is one detection of an entry's original or corrected set.
// Review is 0 for the original set and counts reviews from 1. A review
// marks the corrected rows of earlier reviews superseded instead of
// deleting them, so correction records keep pointing at stored boxes.
type DetectionRow struct {
	ID          uint   `gorm:"primaryKey"`
	EntryID     string `gorm:"size:36;not null;index:idx_detection_entry_kind"`
	Kind        string `gorm:"size:16;not null;index:idx_detection_entry_kind"`
	Review      int    `gorm:"not null"`
	Superseded  bool   `gorm:"not null;index"`
	Position    int    `gorm:"not null"`
	DetectionID string `gorm:"size:36;not null;index"`
	X           float64
	Y           float64
	Width       float64
	Height      float64
	Confidence  float64
	Color       palette.Label    `gorm:"size:16"`
	Method      detection.Method `gorm:"size:16"`
}

func newDetectionRow(entryID, kind string, review, pos int, d detection.Detection) DetectionRow {
	return DetectionRow{
		EntryID:     entryID,
		Kind:        kind,
		Review:      review,
		Position:    pos,
		DetectionID: d.ID,
		X:           d.Box.X,
		Y:           d.Box.Y,
		Width:       d.Box.Width,
		Height:      d.Box.Height,
		Confidence:  d.Confidence,
		Color:       d.Color,
		Method:      d.Method,
	}
}

func (r DetectionRow) detection() detection.Detection {
	return detection.Detection{
		ID:         r.DetectionID,
		Box:        detection.Box{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height},
		Confidence: r.Confidence,
		Color:      r.Color,
		Method:     r.Method,
	}
}

// CorrectionRow is one reconciled box of one review.
type CorrectionRow struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	EntryID       string    `json:"entry_id" gorm:"size:36;not null;index"`
	Review        int       `json:"review" gorm:"not null"`
	Type          string    `json:"type" gorm:"size:16;not null;index"`
	OriginalID    *string   `json:"original_id,omitempty" gorm:"size:36"`
	CorrectedID   *string   `json:"corrected_id,omitempty" gorm:"size:36"`
	PositionDelta float64   `json:"position_delta"`
	SizeDelta     float64   `json:"size_delta"`
	Editor        string    `json:"editor" gorm:"index"`
	At            time.Time `json:"at" gorm:"index"`
}
