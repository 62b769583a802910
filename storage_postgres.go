package ecoguardian

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var _ Storage = &PostgresStorage{}

type runRecord struct {
	RunID     string `gorm:"primaryKey"`
	Pattern   string
	Status    string
	Document  []byte `gorm:"type:jsonb"`
	CreatedAt time.Time
}

type messageRecord struct {
	RunID     string `gorm:"primaryKey"`
	Document  []byte `gorm:"type:jsonb"`
	CreatedAt time.Time
}

type snapshotRecord struct {
	Name      string `gorm:"primaryKey"`
	Document  []byte `gorm:"type:jsonb"`
	CreatedAt time.Time
}

// PostgresStorage implements the Storage interface on Postgres via GORM,
// with the same JSON-document row shape as the SQLite backend.
type PostgresStorage struct {
	db *gorm.DB
}

// NewPostgresStorage opens a connection with the given DSN and migrates the
// archive tables.
func NewPostgresStorage(dsn string) (*PostgresStorage, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&runRecord{}, &messageRecord{}, &snapshotRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &PostgresStorage{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PostgresStorage) SaveRun(run *WorkflowRun) error {
	doc, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	record := runRecord{
		RunID:     run.ID,
		Pattern:   string(run.Pattern),
		Status:    string(run.Status),
		Document:  doc,
		CreatedAt: time.Now(),
	}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "document"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetRun(runID string) (*WorkflowRun, error) {
	var record runRecord
	err := s.db.First(&record, "run_id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	var run WorkflowRun
	if err := json.Unmarshal(record.Document, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run: %w", err)
	}
	return &run, nil
}

func (s *PostgresStorage) ListRuns(limit int) ([]*WorkflowRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []runRecord
	err := s.db.Order("created_at DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	runs := make([]*WorkflowRun, 0, len(records))
	for _, record := range records {
		var run WorkflowRun
		if err := json.Unmarshal(record.Document, &run); err != nil {
			return nil, fmt.Errorf("failed to decode run: %w", err)
		}
		runs = append(runs, &run)
	}
	return runs, nil
}

func (s *PostgresStorage) SaveMessages(runID string, msgs []*AgentMessage) error {
	doc, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("failed to encode messages: %w", err)
	}
	record := messageRecord{RunID: runID, Document: doc, CreatedAt: time.Now()}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"document"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to save messages: %w", err)
	}
	return nil
}

func (s *PostgresStorage) LoadMessages(runID string) ([]*AgentMessage, error) {
	var record messageRecord
	err := s.db.First(&record, "run_id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("messages for run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	var msgs []*AgentMessage
	if err := json.Unmarshal(record.Document, &msgs); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return msgs, nil
}

func (s *PostgresStorage) SaveBankSnapshot(name string, snap *BankSnapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	record := snapshotRecord{Name: name, Document: doc, CreatedAt: time.Now()}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"document"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStorage) LoadBankSnapshot(name string) (*BankSnapshot, error) {
	var record snapshotRecord
	err := s.db.First(&record, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("snapshot %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	var snap BankSnapshot
	if err := json.Unmarshal(record.Document, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}
