//go:build gocv

package detection

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/ironsheep/rollcount/internal/imaging"
)

func newCircleTransform() circleTransform {
	return opencvTransform{}
}

// opencvTransform generates candidates with OpenCV's gradient Hough
// transform. Candidates are scored against the native edge map like any
// other, so both backends accept the same circles.
type opencvTransform struct{}

func (opencvTransform) candidates(work *image.NRGBA, edges *imaging.EdgeMap, minR, maxR int, cfg CircleConfig) []circleCandidate {
	b := work.Bounds()
	mat, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, work.Pix)
	if err != nil {
		return houghTransform{}.candidates(work, edges, minR, maxR, cfg)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorRGBAToGray)

	circles := gocv.NewMat()
	defer circles.Close()

	// param2 is the accumulator threshold; scale it like the native vote
	// threshold so both backends are equally permissive.
	gocv.HoughCirclesWithParams(gray, &circles, gocv.HoughGradient, 1, float64(minR),
		100, cfg.VoteFraction*100, minR, maxR)

	if circles.Empty() || circles.Cols() == 0 {
		return nil
	}

	out := make([]circleCandidate, 0, circles.Cols())
	for i := 0; i < circles.Cols(); i++ {
		out = append(out, circleCandidate{
			X: float64(circles.GetFloatAt(0, i*3)),
			Y: float64(circles.GetFloatAt(0, i*3+1)),
			R: float64(circles.GetFloatAt(0, i*3+2)),
		})
	}
	return out
}
