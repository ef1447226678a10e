package reconcile

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/ironsheep/rollcount/internal/detection"
)

// Type classifies one reconciled box.
type Type string

const (
	TypeUnchanged Type = "unchanged"
	TypeMoved     Type = "moved"
	TypeResized   Type = "resized"
	TypeAdded     Type = "added"
	TypeDeleted   Type = "deleted"
)

// Types returns every correction type in reporting order.
func Types() []Type {
	return []Type{TypeUnchanged, TypeMoved, TypeResized, TypeAdded, TypeDeleted}
}

// ParseType parses a correction type name.
func ParseType(s string) (Type, error) {
	for _, t := range Types() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", errors.Errorf("unknown correction type %q", s)
}

// Record is one reconciled box. Added records have no Original, deleted
// records no Corrected; the other types have both.
type Record struct {
	Type      Type                 `json:"type"`
	Original  *detection.Detection `json:"original,omitempty"`
	Corrected *detection.Detection `json:"corrected,omitempty"`

	// PositionDelta is max(|dx|, |dy|) of the box centers and SizeDelta is
	// max(|dw|, |dh|), both in percent. Zero for added and deleted records.
	PositionDelta float64 `json:"position_delta"`
	SizeDelta     float64 `json:"size_delta"`

	Editor string    `json:"editor"`
	At     time.Time `json:"at"`
}

// Side names the set a data-quality issue was found in.
type Side string

const (
	SideOriginal  Side = "original"
	SideCorrected Side = "corrected"
)

// Issue is a box left out of reconciliation because it is malformed.
type Issue struct {
	Side    Side          `json:"side"`
	Index   int           `json:"index"`
	ID      string        `json:"id,omitempty"`
	Box     detection.Box `json:"box"`
	Problem string        `json:"problem"`
}

// Summary aggregates the records of one reconciliation.
type Summary struct {
	Unchanged int `json:"unchanged"`
	Moved     int `json:"moved"`
	Resized   int `json:"resized"`
	Added     int `json:"added"`
	Deleted   int `json:"deleted"`

	OriginalCount  int `json:"original_count"`
	CorrectedCount int `json:"corrected_count"`

	// Accuracy is the share of the detector's claims the operator left
	// unchanged, in percent with one decimal. Added boxes were never
	// claimed and do not count. Zero when there were no claims.
	Accuracy float64 `json:"accuracy"`
}

// Counts returns the per-type counts keyed by type.
func (s Summary) Counts() map[Type]int {
	return map[Type]int{
		TypeUnchanged: s.Unchanged,
		TypeMoved:     s.Moved,
		TypeResized:   s.Resized,
		TypeAdded:     s.Added,
		TypeDeleted:   s.Deleted,
	}
}

// Total returns the number of records.
func (s Summary) Total() int {
	return s.Unchanged + s.Moved + s.Resized + s.Added + s.Deleted
}

func (s *Summary) add(t Type) {
	switch t {
	case TypeUnchanged:
		s.Unchanged++
	case TypeMoved:
		s.Moved++
	case TypeResized:
		s.Resized++
	case TypeAdded:
		s.Added++
	case TypeDeleted:
		s.Deleted++
	}
}

// Accuracy returns unchanged / (unchanged + moved + resized + deleted) as a
// percentage rounded to one decimal, or 0 with no claims.
func Accuracy(unchanged, moved, resized, deleted int) float64 {
	claims := unchanged + moved + resized + deleted
	if claims == 0 {
		return 0
	}
	return math.Round(float64(unchanged)/float64(claims)*1000) / 10
}
