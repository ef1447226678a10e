package store

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ironsheep/rollcount/internal/detection"
	"github.com/ironsheep/rollcount/internal/logging"
	"github.com/ironsheep/rollcount/internal/reconcile"
)

// ErrNotFound is returned for an unknown entry ID.
var ErrNotFound = errors.New("entry not found")

// Config locates the database.
type Config struct {
	// Path is the SQLite file; ":memory:" keeps everything in memory.
	Path string `mapstructure:"path"`

	// SlowQuery is the threshold above which queries are logged.
	SlowQuery time.Duration `mapstructure:"slow_query"`
}

// DefaultConfig stores rollcount.db in the user's config directory.
func DefaultConfig() Config {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return Config{
		Path:      filepath.Join(dir, "rollcount", "rollcount.db"),
		SlowQuery: 200 * time.Millisecond,
	}
}

// Store is the SQLite-backed repository.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open opens (creating if needed) the database and migrates the schema.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	log := logging.OrNop(logger).Named("store")
	if cfg.Path == "" {
		return nil, errors.New("store path is empty")
	}
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, errors.Wrap(err, "create database directory")
		}
	}

	gl := gormlogger.New(zap.NewStdLog(log), gormlogger.Config{
		SlowThreshold:             cfg.SlowQuery,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{Logger: gl})
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite database")
	}

	// SQLite allows one writer; a single connection also keeps an in-memory
	// database from splitting across connections.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql handle")
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Entry{}, &DetectionRow{}, &CorrectionRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "migrate schema")
	}
	log.Debug("database ready", zap.String("path", cfg.Path))
	return &Store{db: db, log: log}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "get sql handle")
	}
	return errors.Wrap(sqlDB.Close(), "close database")
}

// SaveDetection records a new entry with set as its original detections.
func (s *Store) SaveDetection(ctx context.Context, filename, imagePath string, set detection.Set) (Entry, error) {
	entry := Entry{
		Filename:      filename,
		ImagePath:     imagePath,
		ImageWidth:    set.ImageWidth,
		ImageHeight:   set.ImageHeight,
		Method:        set.Method,
		DetectedCount: set.Count,
		FinalCount:    set.Count,
		DurationNS:    int64(set.Duration),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entry).Error; err != nil {
			return errors.Wrap(err, "create entry")
		}
		return insertSet(tx, entry.ID, KindOriginal, 0, set)
	})
	if err != nil {
		return Entry{}, err
	}
	s.log.Debug("entry saved", zap.String("id", entry.ID), zap.Int("count", set.Count))
	return entry, nil
}

func insertSet(tx *gorm.DB, entryID, kind string, review int, set detection.Set) error {
	if set.Empty() {
		return nil
	}
	rows := lo.Map(set.Detections, func(d detection.Detection, i int) DetectionRow {
		return newDetectionRow(entryID, kind, review, i, d)
	})
	return errors.Wrapf(tx.Create(&rows).Error, "insert %s detections", kind)
}

// Entry returns the entry with the given ID.
func (s *Store) Entry(ctx context.Context, id string) (Entry, error) {
	var e Entry
	err := s.db.WithContext(ctx).First(&e, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, errors.Wrapf(ErrNotFound, "id %s", id)
	}
	return e, errors.Wrap(err, "load entry")
}

// Entries lists entries, newest first. With editedOnly only reviewed
// entries are returned.
func (s *Store) Entries(ctx context.Context, editedOnly bool) ([]Entry, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if editedOnly {
		q = q.Where("edited = ?", true)
	}
	var out []Entry
	if err := q.Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, "list entries")
	}
	return out, nil
}

// OriginalSet returns the detector output stored for an entry.
func (s *Store) OriginalSet(ctx context.Context, id string) (detection.Set, error) {
	e, err := s.Entry(ctx, id)
	if err != nil {
		return detection.Set{}, err
	}
	set, err := s.loadSet(ctx, e, KindOriginal, 0, e.Method)
	if err != nil {
		return detection.Set{}, err
	}
	return set.WithDuration(time.Duration(e.DurationNS)), nil
}

// CorrectedSet returns the reviewed set of an entry; ok is false when the
// entry was never reviewed.
func (s *Store) CorrectedSet(ctx context.Context, id string) (set detection.Set, ok bool, err error) {
	e, err := s.Entry(ctx, id)
	if err != nil {
		return detection.Set{}, false, err
	}
	if !e.Edited {
		return detection.Set{}, false, nil
	}
	set, err = s.loadSet(ctx, e, KindCorrected, e.Reviews, detection.MethodManual)
	return set, err == nil, err
}

// ReviewedSet returns the corrected set saved by review n of an entry,
// counting from 1, whether or not a later review superseded it.
func (s *Store) ReviewedSet(ctx context.Context, id string, n int) (detection.Set, error) {
	e, err := s.Entry(ctx, id)
	if err != nil {
		return detection.Set{}, err
	}
	if n < 1 || n > e.Reviews {
		return detection.Set{}, errors.Wrapf(ErrNotFound, "review %d of %s", n, id)
	}
	return s.loadSet(ctx, e, KindCorrected, n, detection.MethodManual)
}

func (s *Store) loadSet(ctx context.Context, e Entry, kind string, review int, method detection.Method) (detection.Set, error) {
	var rows []DetectionRow
	err := s.db.WithContext(ctx).
		Where("entry_id = ? AND kind = ? AND review = ?", e.ID, kind, review).
		Order("position ASC").
		Find(&rows).Error
	if err != nil {
		return detection.Set{}, errors.Wrapf(err, "load %s detections", kind)
	}
	dets := lo.Map(rows, func(r DetectionRow, _ int) detection.Detection { return r.detection() })
	return detection.NewSet(method, e.ImageWidth, e.ImageHeight, dets), nil
}

// SaveCorrection stores a review of an entry: corrected becomes the current
// corrected set, earlier corrected sets are kept but marked superseded, and
// the records of res are appended to the correction history.
func (s *Store) SaveCorrection(ctx context.Context, id string, corrected detection.Set, res reconcile.Result) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var e Entry
		if err := tx.First(&e, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(ErrNotFound, "id %s", id)
			}
			return errors.Wrap(err, "load entry")
		}
		err := tx.Model(&DetectionRow{}).
			Where("entry_id = ? AND kind = ? AND superseded = ?", id, KindCorrected, false).
			Update("superseded", true).Error
		if err != nil {
			return errors.Wrap(err, "supersede previous corrections")
		}
		n := e.Reviews + 1
		if err := insertSet(tx, id, KindCorrected, n, corrected); err != nil {
			return err
		}
		if rows := correctionRows(id, n, res); len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return errors.Wrap(err, "append correction records")
			}
		}
		return errors.Wrap(tx.Model(&e).Updates(map[string]any{
			"final_count": corrected.Count,
			"edited":      true,
			"reviews":     n,
		}).Error, "update entry")
	})
	if err != nil {
		return err
	}
	s.log.Debug("correction saved",
		zap.String("id", id),
		zap.Int("records", len(res.Records)),
		zap.Float64("accuracy", res.Summary.Accuracy))
	return nil
}

func correctionRows(entryID string, review int, res reconcile.Result) []CorrectionRow {
	return lo.Map(res.Records, func(r reconcile.Record, _ int) CorrectionRow {
		row := CorrectionRow{
			EntryID:       entryID,
			Review:        review,
			Type:          string(r.Type),
			PositionDelta: r.PositionDelta,
			SizeDelta:     r.SizeDelta,
			Editor:        r.Editor,
			At:            r.At,
		}
		if r.Original != nil {
			row.OriginalID = lo.ToPtr(r.Original.ID)
		}
		if r.Corrected != nil {
			row.CorrectedID = lo.ToPtr(r.Corrected.ID)
		}
		return row
	})
}

// Corrections returns the correction history of an entry, oldest first.
func (s *Store) Corrections(ctx context.Context, id string) ([]CorrectionRow, error) {
	var rows []CorrectionRow
	err := s.db.WithContext(ctx).Where("entry_id = ?", id).Order("review ASC, id ASC").Find(&rows).Error
	return rows, errors.Wrap(err, "load corrections")
}
