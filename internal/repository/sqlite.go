package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mr1hm/go-perimeter-risk/internal/models"
)

type SQLiteStore struct {
	db  *sql.DB
	key string
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// A second connection to ":memory:" would see an empty database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteStore{
		db:  db,
		key: CollectionKey,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context) ([]models.Office, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, s.key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []models.Office{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", s.key, err)
	}

	var offices []models.Office
	if err := json.Unmarshal(raw, &offices); err != nil {
		return nil, fmt.Errorf("error decoding %s: %w", s.key, err)
	}
	if offices == nil {
		offices = []models.Office{}
	}
	return offices, nil
}

func (s *SQLiteStore) Save(ctx context.Context, offices []models.Office) error {
	if offices == nil {
		offices = []models.Office{}
	}
	raw, err := json.Marshal(offices)
	if err != nil {
		return fmt.Errorf("error encoding %s: %w", s.key, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, s.key, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("error writing %s: %w", s.key, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
