package detection

import (
	"image"
	"math"
	"sort"

	"github.com/ironsheep/rollcount/internal/imaging"
)

// circleCandidate is a possible circle center and radius on the working
// image, before scoring.
type circleCandidate struct {
	X, Y, R float64
	Votes   int
}

// circleTransform generates candidate circles with radii in [minR, maxR].
// Scoring and selection happen afterwards and are shared by every backend.
type circleTransform interface {
	candidates(work *image.NRGBA, edges *imaging.EdgeMap, minR, maxR int, cfg CircleConfig) []circleCandidate
}

// houghTransform is the pure Go circular Hough transform.
type houghTransform struct{}

// candidates runs the transform one radius at a time.
//
// Every edge pixel votes for the cfg.AngleSteps centers lying at distance r
// from it, so an accumulator cell's votes count how many of its perimeter
// sample points are edge pixels. Cells that are local maxima over a 5x5
// window and reach cfg.VoteFraction of the steps become candidates.
func (houghTransform) candidates(_ *image.NRGBA, edges *imaging.EdgeMap, minR, maxR int, cfg CircleConfig) []circleCandidate {
	width, height := edges.Width, edges.Height

	points := make([]image.Point, 0, edges.Count)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if edges.Edge[y*width+x] {
				points = append(points, image.Point{X: x, Y: y})
			}
		}
	}

	threshold := int(math.Ceil(cfg.VoteFraction * float64(cfg.AngleSteps)))
	accumulator := make([]int32, width*height)
	offsets := make([]image.Point, cfg.AngleSteps)
	var out []circleCandidate

	for radius := minR; radius <= maxR; radius++ {
		for i := range accumulator {
			accumulator[i] = 0
		}
		for i := range offsets {
			rad := 2 * math.Pi * float64(i) / float64(cfg.AngleSteps)
			offsets[i] = image.Point{
				X: int(math.Round(float64(radius) * math.Cos(rad))),
				Y: int(math.Round(float64(radius) * math.Sin(rad))),
			}
		}

		// Vote for circle centers
		for _, p := range points {
			for _, o := range offsets {
				cx, cy := p.X-o.X, p.Y-o.Y
				if cx >= 0 && cx < width && cy >= 0 && cy < height {
					accumulator[cy*width+cx]++
				}
			}
		}

		found := localMaxima(accumulator, width, height, threshold)
		sort.SliceStable(found, func(i, j int) bool {
			return accumulator[found[i].Y*width+found[i].X] > accumulator[found[j].Y*width+found[j].X]
		})
		if cfg.MaxCandidatesPerRadius > 0 && len(found) > cfg.MaxCandidatesPerRadius {
			found = found[:cfg.MaxCandidatesPerRadius]
		}
		for _, c := range found {
			out = append(out, circleCandidate{
				X:     float64(c.X),
				Y:     float64(c.Y),
				R:     float64(radius),
				Votes: int(accumulator[c.Y*width+c.X]),
			})
		}
	}
	return out
}

// localMaxima returns the cells with at least threshold votes that no cell
// in their 5x5 neighborhood beats. On a plateau only the first cell in scan
// order is kept.
func localMaxima(acc []int32, width, height, threshold int) []image.Point {
	var out []image.Point
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := acc[y*width+x]
			if int(v) < threshold {
				continue
			}
			isMax := true
			for dy := -2; dy <= 2 && isMax; dy++ {
				for dx := -2; dx <= 2 && isMax; dx++ {
					if dy == 0 && dx == 0 {
						continue
					}
					ny, nx := y+dy, x+dx
					if ny < 0 || ny >= height || nx < 0 || nx >= width {
						continue
					}
					n := acc[ny*width+nx]
					earlier := dy < 0 || (dy == 0 && dx < 0)
					if n > v || (earlier && n == v) {
						isMax = false
					}
				}
			}
			if isMax {
				out = append(out, image.Point{X: x, Y: y})
			}
		}
	}
	return out
}
