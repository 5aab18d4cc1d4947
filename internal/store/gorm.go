// Package store provides MatchStore implementations: a PostgreSQL store built
// on gorm and an in-memory store for dry runs and tests.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/pkg/logger"
)

// defaultBatchSize is the number of rows per INSERT statement
const defaultBatchSize = 500

// MatchRecord is the persisted row of one match. Statement and book fields
// are snapshots taken when the match was made. The amount scale matches
// matcher.MaxAmountPrecision.
type MatchRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	SessionID string    `gorm:"type:varchar(64);index;not null"`

	StatementID          string          `gorm:"index;not null"`
	StatementAmount      decimal.Decimal `gorm:"type:numeric(20,4)"`
	StatementDate        time.Time       `gorm:"type:date"`
	StatementDescription string
	StatementReference   string

	BookID          string          `gorm:"index;not null"`
	BookSourceID    string          `gorm:"index"`
	BookAmount      decimal.Decimal `gorm:"type:numeric(20,4)"`
	BookDate        time.Time       `gorm:"type:date"`
	BookDescription string
	BookReference   string

	Status          string `gorm:"index"`
	Confidence      string
	ConfidenceScore int
	MatchCriteria   datatypes.JSON
	MatchReason     string
	CreatedAt       time.Time
}

// TableName sets the table used for match rows
func (MatchRecord) TableName() string {
	return "reconciliation_matches"
}

// GormStore stores matches in PostgreSQL
type GormStore struct {
	db        *gorm.DB
	batchSize int
	logger    logger.Logger
}

// Open connects to PostgreSQL using dsn
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// NewGormStore wraps an open gorm connection
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:        db,
		batchSize: defaultBatchSize,
		logger:    logger.GetGlobalLogger().WithComponent("store"),
	}
}

// Migrate creates or updates the match table
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&MatchRecord{})
}

// SaveMatches inserts all matches of a session in one transaction
func (s *GormStore) SaveMatches(ctx context.Context, sessionID string, matches []*models.Match) error {
	if len(matches) == 0 {
		return nil
	}

	records := make([]*MatchRecord, 0, len(matches))
	for _, m := range matches {
		record, err := toRecord(sessionID, m)
		if err != nil {
			return err
		}
		records = append(records, record)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(records); start += s.batchSize {
			end := start + s.batchSize
			if end > len(records) {
				end = len(records)
			}
			if err := tx.Create(records[start:end]).Error; err != nil {
				return fmt.Errorf("failed to insert matches %d-%d: %w", start, end-1, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.WithFields(logger.Fields{
		"session_id": sessionID,
		"rows":       len(records),
	}).Debug("Inserted match rows")
	return nil
}

// ListMatches returns the matches of a session ordered by statement id
func (s *GormStore) ListMatches(ctx context.Context, sessionID string) ([]*models.Match, error) {
	var records []MatchRecord
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("statement_id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}

	matches := make([]*models.Match, 0, len(records))
	for i := range records {
		m, err := fromRecord(&records[i])
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func toRecord(sessionID string, m *models.Match) (*MatchRecord, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("match id %q is not a uuid: %w", m.ID, err)
	}
	criteria, err := json.Marshal(m.MatchCriteria)
	if err != nil {
		return nil, fmt.Errorf("failed to encode criteria of match %s: %w", m.ID, err)
	}

	return &MatchRecord{
		ID:                   id,
		SessionID:            sessionID,
		StatementID:          m.Statement.ID,
		StatementAmount:      m.Statement.Amount,
		StatementDate:        m.Statement.Date,
		StatementDescription: m.Statement.Description,
		StatementReference:   m.Statement.Reference,
		BookID:               m.Book.ID,
		BookSourceID:         m.Book.SourceID,
		BookAmount:           m.Book.Amount,
		BookDate:             m.Book.Date,
		BookDescription:      m.Book.Description,
		BookReference:        m.Book.Reference,
		Status:               string(m.Status),
		Confidence:           m.Confidence.String(),
		ConfidenceScore:      m.ConfidenceScore,
		MatchCriteria:        datatypes.JSON(criteria),
		MatchReason:          m.MatchReason,
		CreatedAt:            m.CreatedAt,
	}, nil
}

func fromRecord(r *MatchRecord) (*models.Match, error) {
	tier, err := models.ParseConfidenceTier(r.Confidence)
	if err != nil {
		return nil, err
	}

	var criteria []models.Dimension
	if len(r.MatchCriteria) > 0 {
		if err := json.Unmarshal(r.MatchCriteria, &criteria); err != nil {
			return nil, fmt.Errorf("failed to decode criteria of match %s: %w", r.ID, err)
		}
	}

	return &models.Match{
		ID:        r.ID.String(),
		SessionID: r.SessionID,
		Statement: models.TransactionSnapshot{
			ID:          r.StatementID,
			Amount:      r.StatementAmount,
			Date:        r.StatementDate,
			Description: r.StatementDescription,
			Reference:   r.StatementReference,
		},
		Book: models.TransactionSnapshot{
			ID:          r.BookID,
			SourceID:    r.BookSourceID,
			Amount:      r.BookAmount,
			Date:        r.BookDate,
			Description: r.BookDescription,
			Reference:   r.BookReference,
		},
		Status:          models.MatchStatus(r.Status),
		Confidence:      tier,
		ConfidenceScore: r.ConfidenceScore,
		MatchCriteria:   criteria,
		MatchReason:     r.MatchReason,
		CreatedAt:       r.CreatedAt,
	}, nil
}
