// Package datasetstore persists dataset descriptors using SQLite so that
// loaded datasets can be replayed after a restart. Only descriptors are
// stored; marker state is always recomputed.
package datasetstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/anatomap/server/internal/clusters"
)

// Record is a stored dataset descriptor.
type Record struct {
	MapID   string           `json:"map_id"`
	Dataset clusters.Dataset `json:"dataset"`
	AddedAt time.Time        `json:"added_at"`
}

// Store provides persistent storage for dataset descriptors.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore creates a new SQLite-based descriptor store.
func NewStore(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS datasets (
		map_id TEXT NOT NULL,
		dataset_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		terms_json TEXT NOT NULL,
		added_at TEXT NOT NULL,
		seq INTEGER NOT NULL,
		PRIMARY KEY (map_id, dataset_id)
	);

	CREATE INDEX IF NOT EXISTS idx_datasets_map_seq ON datasets(map_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save inserts or replaces the descriptors of a map.
func (s *Store) Save(mapID string, datasets []clusters.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM datasets WHERE map_id = ?`, mapID).Scan(&seq); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO datasets (map_id, dataset_id, kind, terms_json, added_at, seq)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, ds := range datasets {
		termsJSON, err := json.Marshal(ds.Terms)
		if err != nil {
			return fmt.Errorf("failed to marshal terms: %w", err)
		}
		seq++
		if _, err := stmt.Exec(mapID, ds.ID, string(ds.EffectiveKind()), string(termsJSON), now, seq); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Delete removes one descriptor.
func (s *Store) Delete(mapID, datasetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM datasets WHERE map_id = ? AND dataset_id = ?`, mapID, datasetID)
	return err
}

// Clear removes every descriptor of a map.
func (s *Store) Clear(mapID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM datasets WHERE map_id = ?`, mapID)
	return err
}

// List returns the descriptors of a map in the order they were saved.
func (s *Store) List(mapID string) ([]Record, error) {
	rows, err := s.db.Query(`
		SELECT dataset_id, kind, terms_json, added_at
		FROM datasets WHERE map_id = ? ORDER BY seq
	`, mapID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec       Record
			kind      string
			termsJSON string
			addedAt   string
		)
		if err := rows.Scan(&rec.Dataset.ID, &kind, &termsJSON, &addedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(termsJSON), &rec.Dataset.Terms); err != nil {
			return nil, fmt.Errorf("failed to unmarshal terms: %w", err)
		}
		rec.MapID = mapID
		rec.Dataset.Kind = clusters.Kind(kind)
		rec.AddedAt, _ = time.Parse(time.RFC3339, addedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}
