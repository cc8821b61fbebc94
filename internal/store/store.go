// Package store persists the URL index in a local sqlite database and
// reconciles it against the on-disk documents, which are the source of
// truth.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"

	"github.com/metisreader/metis/internal/reader"
	"github.com/metisreader/metis/internal/workflow"
)

// ErrNotFound is returned when no record exists for a canonical URL.
var ErrNotFound = errors.New("record not found")

// Store is the index database. Writes are serialized behind mu; reads run
// concurrently. The sqlite file survives restarts and can be rebuilt from
// the vault via Reconcile.
type Store struct {
	db     *sql.DB
	path   string
	clock  reader.Clock
	logger *zap.Logger
	mu     sync.RWMutex
}

// Open creates or opens the index at path.
func Open(path string, clock reader.Clock, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	// modernc sqlite is single-writer; keep one connection to avoid
	// SQLITE_BUSY churn under concurrent syncs.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, clock: clock, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		url TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		platform TEXT NOT NULL DEFAULT 'web',
		state TEXT NOT NULL,
		fingerprint TEXT NOT NULL DEFAULT '',
		document_path TEXT NOT NULL DEFAULT '',
		tags_json TEXT NOT NULL DEFAULT '[]',
		failure_text TEXT NOT NULL DEFAULT '',
		access_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_state ON records(state);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Get returns the record for a canonical URL.
func (s *Store) Get(url string) (*workflow.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(url)
}

func (s *Store) get(url string) (*workflow.Record, error) {
	row := s.db.QueryRow(`SELECT url, title, platform, state, fingerprint, document_path,
		tags_json, failure_text, access_count, created_at, updated_at
		FROM records WHERE url = ?`, url)
	return scanRecord(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*workflow.Record, error) {
	var (
		rec      workflow.Record
		state    string
		tagsJSON string
	)
	err := row.Scan(&rec.URL, &rec.Title, &rec.Platform, &state, &rec.Fingerprint,
		&rec.DocumentPath, &tagsJSON, &rec.FailureText, &rec.AccessCount,
		&rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}
	rec.State = workflow.State(state)
	if err := json.Unmarshal([]byte(tagsJSON), &rec.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return &rec, nil
}

// List returns records, optionally filtered by state, newest first.
func (s *Store) List(state workflow.State) ([]*workflow.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT url, title, platform, state, fingerprint, document_path,
		tags_json, failure_text, access_count, created_at, updated_at
		FROM records`
	args := []any{}
	if state != "" {
		query += ` WHERE state = ?`
		args = append(args, string(state))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []*workflow.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Submit registers a URL if it is not tracked yet, leaving existing
// records untouched. New records start pending.
func (s *Store) Submit(url, platform string) (*workflow.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, err := s.get(url); err == nil {
		return rec, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := s.clock.Now().UTC().Truncate(time.Second)
	rec := &workflow.Record{
		URL:       url,
		Platform:  platform,
		State:     workflow.StatePending,
		Tags:      []string{platform, "metis"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.put(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Upsert writes the record. It is idempotent: when the stored fingerprint,
// state, and path already match, only the stored access counter moves. The
// caller's record is never mutated; the database counters are
// authoritative and visible through Get.
func (s *Store) Upsert(rec *workflow.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.get(rec.URL)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if existing != nil && existing.Fingerprint == rec.Fingerprint &&
		existing.State == rec.State && existing.DocumentPath == rec.DocumentPath {
		_, err := s.db.Exec(`UPDATE records SET access_count = access_count + 1 WHERE url = ?`, rec.URL)
		if err != nil {
			return fmt.Errorf("bump access count: %w", err)
		}
		return nil
	}
	return s.put(rec)
}

// RecordFailure stores the failure reason without touching workflow state,
// so the URL is retried on the next sync pass.
func (s *Store) RecordFailure(url, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UTC().Truncate(time.Second)
	res, err := s.db.Exec(`UPDATE records SET failure_text = ?, updated_at = ? WHERE url = ?`,
		reason, now, url)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) put(rec *workflow.Record) error {
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO records
		(url, title, platform, state, fingerprint, document_path, tags_json, failure_text, access_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			title = excluded.title,
			platform = excluded.platform,
			state = excluded.state,
			fingerprint = excluded.fingerprint,
			document_path = excluded.document_path,
			tags_json = excluded.tags_json,
			failure_text = excluded.failure_text,
			updated_at = excluded.updated_at`,
		rec.URL, rec.Title, rec.Platform, string(rec.State), rec.Fingerprint,
		rec.DocumentPath, string(tagsJSON), rec.FailureText, rec.AccessCount,
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}
