package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"photomap/internal/photo"
)

// Store wraps SQLite-backed persistence for import batches and manual
// locations.
type Store struct {
	DB *sql.DB
}

// New opens (or creates) the database at path and ensures schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS import_batches (
            id TEXT PRIMARY KEY,
            source TEXT,
            status TEXT NOT NULL,
            file_count INTEGER,
            imported INTEGER,
            located INTEGER,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            started_at TIMESTAMP,
            completed_at TIMESTAMP,
            error_message TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS photo_metadata (
            batch_id TEXT NOT NULL,
            photo_id TEXT NOT NULL,
            rel_path TEXT,
            name TEXT,
            media_type TEXT,
            taken_at TEXT,
            gps_lat REAL,
            gps_lon REAL,
            PRIMARY KEY (batch_id, photo_id)
        );`,
		`DROP TABLE IF EXISTS manual_locations;`,
		`CREATE TABLE IF NOT EXISTS manual_assignments (
            source_path TEXT PRIMARY KEY,
            rel_path TEXT,
            batch_id TEXT,
            lat REAL NOT NULL,
            lng REAL NOT NULL,
            assigned_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_photo_metadata_batch ON photo_metadata(batch_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// BatchRecord captures persisted batch info.
type BatchRecord struct {
	ID          string
	Source      string
	Status      string
	FileCount   int
	Imported    int
	Located     int
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// RecordBatchQueued inserts a pending batch.
func (s *Store) RecordBatchQueued(rec BatchRecord) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`INSERT OR REPLACE INTO import_batches (id, source, status, file_count) VALUES (?, ?, ?, ?);`,
		rec.ID, rec.Source, rec.Status, rec.FileCount)
	return err
}

// RecordBatchStart marks a batch as running.
func (s *Store) RecordBatchStart(id string) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`UPDATE import_batches SET status='running', started_at=CURRENT_TIMESTAMP WHERE id=?;`, id)
	return err
}

// RecordBatchResult finalizes a batch.
func (s *Store) RecordBatchResult(id, status string, imported, located int, errMsg string) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`UPDATE import_batches SET status=?, imported=?, located=?, completed_at=CURRENT_TIMESTAMP, error_message=? WHERE id=?;`,
		status, imported, located, errMsg, id)
	return err
}

// RecentBatches returns the latest batches up to limit.
func (s *Store) RecentBatches(limit int) ([]BatchRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT id, source, status, file_count, imported, located, created_at, started_at, completed_at, error_message FROM import_batches ORDER BY created_at DESC, rowid DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []BatchRecord
	for rows.Next() {
		var rec BatchRecord
		var source, errorMsg sql.NullString
		var files, imported, located sql.NullInt64
		var created time.Time
		var started, completed sql.NullTime
		if err := rows.Scan(&rec.ID, &source, &rec.Status, &files, &imported, &located, &created, &started, &completed, &errorMsg); err != nil {
			return nil, err
		}
		rec.Source = source.String
		rec.FileCount = int(files.Int64)
		rec.Imported = int(imported.Int64)
		rec.Located = int(located.Int64)
		rec.CreatedAt = created
		if started.Valid {
			rec.StartedAt = &started.Time
		}
		if completed.Valid {
			rec.CompletedAt = &completed.Time
		}
		rec.Error = errorMsg.String
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// RecordPhotoMetadata stores what extraction found for one photo.
func (s *Store) RecordPhotoMetadata(batchID string, rec photo.Record) error {
	if s == nil {
		return nil
	}
	var lat, lng sql.NullFloat64
	if rec.Location != nil {
		lat = sql.NullFloat64{Float64: rec.Location.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: rec.Location.Lng, Valid: true}
	}
	_, err := s.DB.Exec(`INSERT OR REPLACE INTO photo_metadata (batch_id, photo_id, rel_path, name, media_type, taken_at, gps_lat, gps_lon)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?);`,
		batchID, string(rec.ID), rec.Source.RelPath, rec.Source.Name, rec.Source.MediaType, rec.Timestamp.Format(time.RFC3339), lat, lng)
	return err
}

// BatchPhotoCount returns how many photos were recorded for a batch.
func (s *Store) BatchPhotoCount(batchID string) (int, error) {
	if s == nil {
		return 0, errors.New("store not initialized")
	}
	var n int
	err := s.DB.QueryRow(`SELECT COUNT(*) FROM photo_metadata WHERE batch_id=?;`, batchID).Scan(&n)
	return n, err
}

// SaveManualLocation remembers a hand-assigned coordinate for the file the
// record was read from.
func (s *Store) SaveManualLocation(ctx context.Context, batchID string, rec photo.Record) error {
	if s == nil {
		return nil
	}
	if rec.Location == nil {
		return fmt.Errorf("photo %s has no location", rec.ID)
	}
	key := rec.SourceKey()
	if key == "" {
		return fmt.Errorf("photo %s has no source path", rec.ID)
	}
	_, err := s.DB.ExecContext(ctx, `INSERT OR REPLACE INTO manual_assignments (source_path, rel_path, batch_id, lat, lng) VALUES (?, ?, ?, ?, ?);`,
		key, rec.ExportPath(), batchID, rec.Location.Lat, rec.Location.Lng)
	return err
}

// ManualLocations returns every stored assignment keyed by source path.
func (s *Store) ManualLocations(ctx context.Context) (map[string]photo.LatLng, error) {
	if s == nil {
		return nil, nil
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT source_path, lat, lng FROM manual_assignments;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]photo.LatLng)
	for rows.Next() {
		var path string
		var ll photo.LatLng
		if err := rows.Scan(&path, &ll.Lat, &ll.Lng); err != nil {
			return nil, err
		}
		out[path] = ll
	}
	return out, rows.Err()
}

// ForgetManualLocations deletes every stored assignment.
func (s *Store) ForgetManualLocations(ctx context.Context) (int64, error) {
	if s == nil {
		return 0, nil
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM manual_assignments;`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
