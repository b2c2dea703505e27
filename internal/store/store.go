package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"fluxcheck/internal/config"
	"fluxcheck/internal/track"
)

// Fixed-width so created_at sorts chronologically as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// ErrLocked indicates another process holds the history writer lock.
var ErrLocked = errors.New("verification history is locked by another process")

// Record is one stored verification outcome.
type Record struct {
	ID          string       `json:"id"`
	Image       string       `json:"image"`
	ImageDigest string       `json:"image_digest,omitempty"`
	Cylinder    int          `json:"cylinder"`
	Head        int          `json:"head"`
	Capture     string       `json:"capture"`
	Matched     bool         `json:"matched"`
	Ranges      int          `json:"ranges"`
	Checked     int          `json:"checked"`
	Failed      *track.Range `json:"failed,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Option configures Open.
type Option func(*openConfig)

type openConfig struct {
	readOnly bool
	now      func() time.Time
}

// ReadOnly opens the database without taking the writer lock. Add fails on a
// read-only store.
func ReadOnly() Option {
	return func(c *openConfig) { c.readOnly = true }
}

// WithClock overrides the timestamp source for new records.
func WithClock(now func() time.Time) Option {
	return func(c *openConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// Store persists verification history in SQLite.
type Store struct {
	db       *sql.DB
	path     string
	lock     *flock.Flock
	readOnly bool
	now      func() time.Time
}

// Open initializes or connects to the history database and applies
// migrations. Unless ReadOnly is given, the writer lock is held until Close.
func Open(cfg *config.Config, opts ...Option) (*Store, error) {
	oc := openConfig{now: time.Now}
	for _, opt := range opts {
		opt(&oc)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	s := &Store{path: cfg.DatabasePath(), readOnly: oc.readOnly, now: oc.now}
	if !oc.readOnly {
		s.lock = flock.New(cfg.LockPath())
		ok, err := s.lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return nil, ErrLocked
		}
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		s.unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	s.db = db

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = s.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if err := s.applyMigrations(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the database and releases the writer lock.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var err error
	if s.db != nil {
		err = s.db.Close()
		s.db = nil
	}
	s.unlock()
	return err
}

func (s *Store) unlock() {
	if s.lock != nil {
		_ = s.lock.Unlock()
		s.lock = nil
	}
}

// Add stores rec, assigning an ID and timestamp when they are unset.
func (s *Store) Add(ctx context.Context, rec *Record) error {
	if s.readOnly {
		return errors.New("add verification: store opened read-only")
	}
	if rec == nil {
		return errors.New("add verification: nil record")
	}
	if strings.TrimSpace(rec.Image) == "" {
		return errors.New("add verification: image path required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}

	var failedStart, failedLength sql.NullInt64
	if rec.Failed != nil {
		failedStart = sql.NullInt64{Int64: int64(rec.Failed.Start), Valid: true}
		failedLength = sql.NullInt64{Int64: int64(rec.Failed.Length), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verifications (
            id, image_path, image_digest, cylinder, head, capture_path,
            matched, ranges, checked, failed_start, failed_length, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Image,
		nullableString(rec.ImageDigest),
		rec.Cylinder,
		rec.Head,
		rec.Capture,
		boolToInt(rec.Matched),
		rec.Ranges,
		rec.Checked,
		failedStart,
		failedLength,
		rec.CreatedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("insert verification: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, image_path, image_digest, cylinder, head, capture_path,
    matched, ranges, checked, failed_start, failed_length, created_at FROM verifications`

// List returns the most recent records, newest first. A limit of zero or less
// returns every record.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	query := selectColumns + " ORDER BY created_at DESC, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.query(ctx, query, args...)
}

// ByImage returns the records for one image path, newest first.
func (s *Store) ByImage(ctx context.Context, image string, limit int) ([]Record, error) {
	query := selectColumns + " WHERE image_path = ? ORDER BY created_at DESC, id"
	args := []any{image}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.query(ctx, query, args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query verifications: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verifications: %w", err)
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		rec          Record
		digest       sql.NullString
		matched      int
		failedStart  sql.NullInt64
		failedLength sql.NullInt64
		created      string
	)
	if err := rows.Scan(&rec.ID, &rec.Image, &digest, &rec.Cylinder, &rec.Head, &rec.Capture,
		&matched, &rec.Ranges, &rec.Checked, &failedStart, &failedLength, &created); err != nil {
		return Record{}, fmt.Errorf("scan verification: %w", err)
	}
	rec.ImageDigest = digest.String
	rec.Matched = matched != 0
	if failedStart.Valid {
		rec.Failed = &track.Range{Start: int(failedStart.Int64), Length: int(failedLength.Int64)}
	}
	ts, err := time.Parse(timestampLayout, created)
	if err != nil {
		return Record{}, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	rec.CreatedAt = ts
	return rec, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
