package store

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/ironsheep/rollcount/internal/detection"
	"github.com/ironsheep/rollcount/internal/reconcile"
)

// EditorCount is the number of correction records one editor produced.
type EditorCount struct {
	Editor      string `json:"editor"`
	Corrections int    `json:"corrections"`
}

// DayCount is the number of correction records on one UTC day.
type DayCount struct {
	Day         string `json:"day"`
	Corrections int    `json:"corrections"`
}

// Statistics summarizes the database.
type Statistics struct {
	TotalEntries    int64                    `json:"total_entries"`
	EditedEntries   int64                    `json:"edited_entries"`
	AIDetections    int                      `json:"ai_detections"`
	FinalDetections int                      `json:"final_detections"`
	ByMethod        map[detection.Method]int `json:"by_method"`
	Corrections     map[reconcile.Type]int   `json:"corrections"`

	// Accuracy is the accuracy over the whole correction history.
	Accuracy float64 `json:"accuracy"`

	TopEditors []EditorCount `json:"top_editors"`
	Daily      []DayCount    `json:"daily"`
}

type groupCount struct {
	Label string
	N     int
}

// Statistics aggregates entries and corrections. Daily activity covers
// records at or after since; TopEditors holds at most topN editors.
func (s *Store) Statistics(ctx context.Context, since time.Time, topN int) (Statistics, error) {
	db := s.db.WithContext(ctx)
	st := Statistics{
		ByMethod:    map[detection.Method]int{},
		Corrections: map[reconcile.Type]int{},
		TopEditors:  []EditorCount{},
		Daily:       []DayCount{},
	}

	if err := db.Model(&Entry{}).Count(&st.TotalEntries).Error; err != nil {
		return Statistics{}, errors.Wrap(err, "count entries")
	}
	if err := db.Model(&Entry{}).Where("edited = ?", true).Count(&st.EditedEntries).Error; err != nil {
		return Statistics{}, errors.Wrap(err, "count edited entries")
	}

	// The default naming strategy maps AIDetections to a_idetections.
	var sums struct {
		AIDetections    int `gorm:"column:ai_detections"`
		FinalDetections int `gorm:"column:final_detections"`
	}
	err := db.Model(&Entry{}).
		Select("COALESCE(SUM(detected_count), 0) AS ai_detections, COALESCE(SUM(final_count), 0) AS final_detections").
		Scan(&sums).Error
	if err != nil {
		return Statistics{}, errors.Wrap(err, "sum detections")
	}
	st.AIDetections, st.FinalDetections = sums.AIDetections, sums.FinalDetections

	var methods []groupCount
	err = db.Model(&Entry{}).Select("method AS label, COUNT(*) AS n").Group("method").Scan(&methods).Error
	if err != nil {
		return Statistics{}, errors.Wrap(err, "group by method")
	}
	for _, g := range methods {
		st.ByMethod[detection.Method(g.Label)] = g.N
	}

	var types []groupCount
	err = db.Model(&CorrectionRow{}).Select("type AS label, COUNT(*) AS n").Group("type").Scan(&types).Error
	if err != nil {
		return Statistics{}, errors.Wrap(err, "group by correction type")
	}
	for _, g := range types {
		st.Corrections[reconcile.Type(g.Label)] = g.N
	}
	c := st.Corrections
	st.Accuracy = reconcile.Accuracy(c[reconcile.TypeUnchanged], c[reconcile.TypeMoved], c[reconcile.TypeResized], c[reconcile.TypeDeleted])

	if topN > 0 {
		var editors []groupCount
		err = db.Model(&CorrectionRow{}).
			Select("editor AS label, COUNT(*) AS n").
			Group("editor").
			Order("n DESC, label ASC").
			Limit(topN).
			Scan(&editors).Error
		if err != nil {
			return Statistics{}, errors.Wrap(err, "top editors")
		}
		st.TopEditors = lo.Map(editors, func(g groupCount, _ int) EditorCount {
			return EditorCount{Editor: g.Label, Corrections: g.N}
		})
	}

	var times []time.Time
	if err := db.Model(&CorrectionRow{}).Where("at >= ?", since).Pluck("at", &times).Error; err != nil {
		return Statistics{}, errors.Wrap(err, "load correction times")
	}
	perDay := lo.CountValuesBy(times, func(t time.Time) string { return t.UTC().Format(time.DateOnly) })
	for day, n := range perDay {
		st.Daily = append(st.Daily, DayCount{Day: day, Corrections: n})
	}
	sort.Slice(st.Daily, func(i, j int) bool { return st.Daily[i].Day < st.Daily[j].Day })

	return st, nil
}
