// Package store persists conversion results in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SanteonNL/ekaemr/cmd/ekaemr/converter"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned by Get for unknown record ids
var ErrNotFound = errors.New("conversion not found")

const schema = `CREATE TABLE IF NOT EXISTS eka_conversions (
	record_id   TEXT PRIMARY KEY,
	bundle_id   TEXT NOT NULL DEFAULT '',
	lenient     BOOLEAN NOT NULL,
	issue_count INTEGER NOT NULL,
	record      JSONB NOT NULL,
	diagnostics JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertConversion = `INSERT INTO eka_conversions (record_id, bundle_id, lenient, issue_count, record, diagnostics)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (record_id) DO UPDATE SET record = EXCLUDED.record, diagnostics = EXCLUDED.diagnostics, issue_count = EXCLUDED.issue_count`

const selectConversion = `SELECT record_id, bundle_id, lenient, issue_count, record, diagnostics, created_at
FROM eka_conversions WHERE record_id = $1`

// StoredConversion is one row of eka_conversions
type StoredConversion struct {
	RecordID    string          `db:"record_id" json:"recordId"`
	BundleID    string          `db:"bundle_id" json:"bundleId,omitempty"`
	Lenient     bool            `db:"lenient" json:"lenient"`
	IssueCount  int             `db:"issue_count" json:"issueCount"`
	Record      json.RawMessage `db:"record" json:"record"`
	Diagnostics json.RawMessage `db:"diagnostics" json:"diagnostics"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
}

type ConversionStore struct {
	db  *sqlx.DB
	log zerolog.Logger
}

func NewConversionStore(db *sqlx.DB, log zerolog.Logger) *ConversionStore {
	return &ConversionStore{
		db:  db,
		log: log.With().Str("component", "store").Logger(),
	}
}

// Open connects to PostgreSQL
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func (s *ConversionStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create eka_conversions table: %w", err)
	}
	return nil
}

// Save upserts a conversion. Records are content addressed, so saving the same conversion twice is a no-op in effect.
func (s *ConversionStore) Save(ctx context.Context, result *converter.Result, lenient bool) error {
	record, err := json.Marshal(result.Record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	diagnostics, err := json.Marshal(result.Diagnostics)
	if err != nil {
		return fmt.Errorf("failed to marshal diagnostics: %w", err)
	}

	_, err = s.db.ExecContext(ctx, upsertConversion,
		result.Record.RecordID,
		result.Record.Bundle.ID,
		lenient,
		len(result.Diagnostics),
		record,
		diagnostics,
	)
	if err != nil {
		return fmt.Errorf("failed to save conversion %s: %w", result.Record.RecordID, err)
	}

	s.log.Debug().Str("recordId", result.Record.RecordID).Msg("Saved conversion")
	return nil
}

func (s *ConversionStore) Get(ctx context.Context, recordID string) (*StoredConversion, error) {
	var row StoredConversion
	if err := s.db.GetContext(ctx, &row, selectConversion, recordID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load conversion %s: %w", recordID, err)
	}
	return &row, nil
}
