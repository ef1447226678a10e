//go:build !gocv

package detection

func newCircleTransform() circleTransform {
	return houghTransform{}
}
