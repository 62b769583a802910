package ecoguardian

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var _ Storage = &SQLiteStorage{}

// SQLiteStorage implements the Storage interface using SQLite. Runs,
// message logs and snapshots are stored as JSON documents.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLiteStorage instance with the provided
// database file path. It initializes the database schema if it doesn't exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storage := &SQLiteStorage{db: db}
	if err := storage.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return storage, nil
}

// initDB creates the necessary tables if they don't exist.
func (s *SQLiteStorage) initDB() error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS workflow_runs (
		run_id TEXT PRIMARY KEY,
		pattern TEXT NOT NULL,
		status TEXT NOT NULL,
		document TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS run_messages (
		run_id TEXT PRIMARY KEY,
		document TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS bank_snapshots (
		name TEXT PRIMARY KEY,
		document TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	_, err := s.db.Exec(createTableSQL)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// SaveRun inserts or replaces the archived run document.
func (s *SQLiteStorage) SaveRun(run *WorkflowRun) error {
	doc, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}

	query := `
	INSERT INTO workflow_runs (run_id, pattern, status, document, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET status = excluded.status, document = excluded.document
	`
	_, err = s.db.Exec(query, run.ID, string(run.Pattern), string(run.Status), string(doc), time.Now())
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun retrieves one archived run by id.
func (s *SQLiteStorage) GetRun(runID string) (*WorkflowRun, error) {
	var doc string
	err := s.db.QueryRow("SELECT document FROM workflow_runs WHERE run_id = ?", runID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	var run WorkflowRun
	if err := json.Unmarshal([]byte(doc), &run); err != nil {
		return nil, fmt.Errorf("failed to decode run: %w", err)
	}
	return &run, nil
}

// ListRuns returns the most recently archived runs, newest first.
func (s *SQLiteStorage) ListRuns(limit int) ([]*WorkflowRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		"SELECT document FROM workflow_runs ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*WorkflowRun
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var run WorkflowRun
		if err := json.Unmarshal([]byte(doc), &run); err != nil {
			return nil, fmt.Errorf("failed to decode run: %w", err)
		}
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return runs, nil
}

// SaveMessages archives a run's full message log as one document.
func (s *SQLiteStorage) SaveMessages(runID string, msgs []*AgentMessage) error {
	doc, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("failed to encode messages: %w", err)
	}

	query := `
	INSERT INTO run_messages (run_id, document, created_at)
	VALUES (?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET document = excluded.document
	`
	_, err = s.db.Exec(query, runID, string(doc), time.Now())
	if err != nil {
		return fmt.Errorf("failed to save messages: %w", err)
	}
	return nil
}

// LoadMessages retrieves a run's archived message log.
func (s *SQLiteStorage) LoadMessages(runID string) ([]*AgentMessage, error) {
	var doc string
	err := s.db.QueryRow("SELECT document FROM run_messages WHERE run_id = ?", runID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("messages for run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	var msgs []*AgentMessage
	if err := json.Unmarshal([]byte(doc), &msgs); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return msgs, nil
}

// SaveBankSnapshot stores a named memory bank export.
func (s *SQLiteStorage) SaveBankSnapshot(name string, snap *BankSnapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	query := `
	INSERT INTO bank_snapshots (name, document, created_at)
	VALUES (?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET document = excluded.document
	`
	_, err = s.db.Exec(query, name, string(doc), time.Now())
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// LoadBankSnapshot retrieves a named memory bank export.
func (s *SQLiteStorage) LoadBankSnapshot(name string) (*BankSnapshot, error) {
	var doc string
	err := s.db.QueryRow("SELECT document FROM bank_snapshots WHERE name = ?", name).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	var snap BankSnapshot
	if err := json.Unmarshal([]byte(doc), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}
