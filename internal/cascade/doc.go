// Package cascade runs detection strategies in order of preference until one
// produces a plausible result.
//
// The default order is the learned model, then the circular detector, then
// the grid detector. A strategy either accepts (its set is then judged for
// plausibility), reports itself unavailable, or reports an implausible
// result; the last two advance to the next strategy. When no strategy
// produces a plausible set, the last set produced is returned, tagged with
// the method of the last strategy run. Every returned detection is colored
// by the palette classifier.
package cascade
