// Package imaging provides the image plumbing under the roll detectors.
//
// It covers decoding and caching rack photos, input validation, color
// conversion and patch statistics, preprocessing (resize, denoise, contrast),
// Sobel gradients, background estimation and foreground masks, and drawing
// annotated result images. All operations work with standard Go image.Image
// types and use a coordinate system where (0,0) is at the top-left corner, X
// increases rightward, and Y increases downward.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - For regions, (x1,y1) is inclusive (top-left), (x2,y2) is exclusive (bottom-right)
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. Every other function is stateless
// and never mutates its input image, so calls on shared images need no
// locking.
//
// # Error Handling
//
// ErrInvalidInput marks images that cannot be processed at all (undecodable or
// zero-sized). Functions that only read pixels clip rectangles to the image
// instead of failing.
package imaging
