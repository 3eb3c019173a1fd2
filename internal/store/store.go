// Package store is the relational alternative to the JSON artifact in
// internal/index: tables tracks(id, name UNIQUE) and fp(h, id, t)
// over GORM, with a driver choice between SQLite (the default,
// appropriate for a local CLI tool) and Postgres (for a shared
// deployment).
package store

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Track is one row of the tracks table.
type Track struct {
	ID   int    `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"uniqueIndex;not null"`
}

// Posting is one row of the fp table: a landmark key h observed for
// track TrackID at frame time T.
type Posting struct {
	ID      uint   `gorm:"primaryKey;autoIncrement"`
	H       uint64 `gorm:"index:idx_fp_h;not null"`
	TrackID int    `gorm:"index:idx_fp_track;not null"`
	T       int    `gorm:"not null"`
}

// TableName pins the fp table name; GORM would otherwise pluralize to
// "postings".
func (Posting) TableName() string { return "fp" }

// Store wraps a GORM connection to either backend.
type Store struct {
	db *gorm.DB
}

// Open connects to a SQLite file (backend="sqlite", dsn is the file
// path) or a Postgres database (backend="postgres", dsn is a libpq
// connection string), and migrates the tracks/fp schema.
func Open(backend, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch backend {
	case "", "sqlite":
		if dsn == "" {
			dsn = "index.db"
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", backend)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	if err := db.AutoMigrate(&Track{}, &Posting{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// BeginTrack inserts a new track row, rejecting duplicate names via
// the unique index.
func (s *Store) BeginTrack(name string) (int, error) {
	t := Track{Name: name}
	if err := s.db.Create(&t).Error; err != nil {
		return 0, fmt.Errorf("store: begin track %q: %w", name, err)
	}
	return t.ID, nil
}

// AppendBatch inserts postings in multi-row statements of up to 500
// rows each; callers batch landmarks per track to keep this off the
// per-landmark hot path.
func (s *Store) AppendBatch(trackID int, keys []uint64, times []int) error {
	rows := make([]Posting, len(keys))
	for i := range keys {
		rows[i] = Posting{H: keys[i], TrackID: trackID, T: times[i]}
	}
	if len(rows) == 0 {
		return nil
	}
	if err := s.db.CreateInBatches(rows, 500).Error; err != nil {
		return fmt.Errorf("store: append batch: %w", err)
	}
	return nil
}

// Bucket returns every (track_id, t) posting for landmark key h,
// ascending by track then time: the relational equivalent of one
// inverted-index bucket.
func (s *Store) Bucket(h uint64) ([]Posting, error) {
	var rows []Posting
	if err := s.db.Where("h = ?", h).Order("track_id, t").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: bucket %d: %w", h, err)
	}
	return rows, nil
}

// Meta returns the track id -> name table.
func (s *Store) Meta() ([]string, error) {
	var tracks []Track
	if err := s.db.Order("id").Find(&tracks).Error; err != nil {
		return nil, fmt.Errorf("store: meta: %w", err)
	}
	names := make([]string, 0, len(tracks))
	for _, t := range tracks {
		for len(names) < t.ID {
			names = append(names, "")
		}
		names = append(names, t.Name)
	}
	return names, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
