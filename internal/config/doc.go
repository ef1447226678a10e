// Package config loads rollcount's settings.
//
// Every component owns a Config struct with its defaults; this package
// aggregates them under one key each, reads an optional rollcount.yaml and
// lets ROLLCOUNT_* environment variables override any leaf key
// (ROLLCOUNT_CASCADE_MIN_DETECTIONS sets cascade.min_detections).
package config
