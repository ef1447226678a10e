// Package palette classifies image patches into a fixed set of named roll
// colors.
//
// A patch is reduced to one representative color, either the mean of its
// pixels or the centroid of the largest k-means cluster, converted to HSV,
// and bucketed:
//
//   - value below BlackValue is black
//   - saturation below SaturationFloor is white or gray, chosen by value
//   - dark red and orange hues are brown
//   - everything else is bucketed by hue band
//
// Patches that are too small or perfectly uniform are reported as Unknown.
// Classification never fails.
package palette
