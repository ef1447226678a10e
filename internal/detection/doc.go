// Package detection holds the roll detection data model and the two
// geometric detectors.
//
// # Data Model
//
// A Box is expressed in percent of the image dimensions so detections stay
// valid when the same photo is processed at another resolution. A Detection
// is an immutable value carrying a box, a confidence, a palette color and the
// Method that produced it. A Set is a snapshot of every detection for one
// image; NewSet computes its count and color breakdown, and the breakdown
// always sums to the count.
//
// # Detectors
//
//   - CircleDetector: circular Hough transform over a small parameter grid,
//     keeping the grid entry whose count best matches the foreground area.
//     Build with the gocv tag to generate candidates with OpenCV instead of
//     the pure Go transform; scoring is shared.
//   - GridDetector: lays a grid over the rack region and reports cells whose
//     center ring is foreground. It is the last resort when shapes are not
//     usable.
//
// Neither detector fails when it finds nothing: it returns an empty Set and
// leaves the judgement to the caller.
//
// # Coordinate System
//
// Pixel coordinates follow the image convention: origin at the top-left, X
// rightward, Y downward, rectangles inclusive at the top-left and exclusive
// at the bottom-right.
package detection
