package detection

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

// IoU returns the intersection-over-union of two boxes, 0 when they do not
// overlap or both are degenerate.
func IoU(a, b Box) float64 {
	ix := math.Max(0, math.Min(a.X+a.Width, b.X+b.Width)-math.Max(a.X, b.X))
	iy := math.Max(0, math.Min(a.Y+a.Height, b.Y+b.Height)-math.Max(a.Y, b.Y))
	inter := ix * iy
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// CenterDistance returns the distance between the centers of two boxes.
func CenterDistance(a, b Box) float64 {
	ax, ay := a.Center()
	bx, by := b.Center()
	return math.Hypot(ax-bx, ay-by)
}

// Dedupe drops detections overlapping a higher-confidence detection by more
// than threshold IoU. The survivors are returned in descending confidence;
// equal confidences keep their input order.
func Dedupe(dets []Detection, threshold float64) []Detection {
	sorted := make([]Detection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	kept := make([]Detection, 0, len(sorted))
	for _, d := range sorted {
		overlaps := false
		for _, k := range kept {
			if IoU(d.Box, k.Box) > threshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, d)
		}
	}
	return kept
}

// SortReadingOrder sorts detections top-to-bottom, left-to-right, the way an
// operator counts a rack: centers within half the median box height of the
// first box of a row belong to that row.
func SortReadingOrder(dets []Detection) {
	if len(dets) < 2 {
		return
	}

	heights := make(stats.Float64Data, len(dets))
	for i, d := range dets {
		heights[i] = d.Box.Height
	}
	median, err := stats.Median(heights)
	if err != nil {
		median = 0
	}
	band := median / 2

	sort.SliceStable(dets, func(i, j int) bool {
		_, yi := dets[i].Box.Center()
		_, yj := dets[j].Box.Center()
		return yi < yj
	})

	type ranked struct {
		d   Detection
		row int
	}
	items := make([]ranked, len(dets))
	_, rowTop := dets[0].Box.Center()
	for i, d := range dets {
		items[i].d = d
		if i == 0 {
			continue
		}
		_, y := d.Box.Center()
		items[i].row = items[i-1].row
		if y-rowTop > band {
			items[i].row++
			rowTop = y
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].row != items[j].row {
			return items[i].row < items[j].row
		}
		xi, _ := items[i].d.Box.Center()
		xj, _ := items[j].d.Box.Center()
		return xi < xj
	})
	for i := range items {
		dets[i] = items[i].d
	}
}
