// Package history persists each successful diagnosis so recent results can
// be listed without the original upload.
package history

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one recorded diagnosis.
type Entry struct {
	ID          int64     `json:"id"`
	FileName    string    `json:"file_name"`
	CropDisease string    `json:"crop_disease"`
	Confidence  float64   `json:"confidence"`
	Suggestion  string    `json:"suggestion"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is a SQLite-backed prediction log.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS predictions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  file_name TEXT NOT NULL DEFAULT '',
  crop_disease TEXT NOT NULL,
  confidence REAL NOT NULL,
  suggestion TEXT NOT NULL,
  created_at DATETIME NOT NULL
);
`)
	return err
}

// Record inserts one diagnosis.
func (s *Store) Record(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO predictions (file_name, crop_disease, confidence, suggestion, created_at) VALUES (?, ?, ?, ?, ?);",
		e.FileName, e.CropDisease, e.Confidence, e.Suggestion, time.Now().UTC())
	return err
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, file_name, crop_disease, confidence, suggestion, created_at FROM predictions ORDER BY id DESC LIMIT ?;",
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.FileName, &e.CropDisease, &e.Confidence, &e.Suggestion, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
