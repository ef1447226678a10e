// Package export turns corrected detection sets into training data: YOLO
// label files, a zipped dataset with its dataset.yaml, and a JSON dump that
// pairs detector output with the operator's corrections.
package export
