// Package reconcile diffs detector output against an operator's corrected
// boxes for the same image.
//
// Every corrected box is matched greedily, in order, to the nearest unused
// original box whose center lies within a tolerance proportional to the
// boxes' size. Matched pairs are unchanged, moved or resized; leftover
// originals were deleted and leftover corrected boxes were added. The
// summary's accuracy counts how many of the detector's claims survived the
// review untouched.
//
// Reconcile is a pure function of its inputs.
package reconcile
