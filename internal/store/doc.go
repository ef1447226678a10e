// Package store persists detection runs and operator corrections in SQLite
// through gorm.
//
// An entry is one photographed rack. It owns exactly one original set (the
// cascade's output) and at most one corrected set, which is replaced on
// every review. Correction records are append-only: each review adds its
// records and never touches earlier ones, so the full history stays
// available for training and accuracy statistics.
package store
