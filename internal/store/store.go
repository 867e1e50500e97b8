package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sqlc-dev/pqtype"
)

// Store is the optional Postgres-backed artifact index. The filesystem
// remains the source of truth for report content; the index only records
// which artifacts exist, which job produced them, and listing metadata.
type Store struct {
	DB *sql.DB
}

// New creates a new Store over a shared *sql.DB with pooling.
func New(database *sql.DB) *Store {
	return &Store{DB: database}
}

// Open opens a pooled connection for the index using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// Artifact is one indexed report row.
type Artifact struct {
	ID        uuid.UUID
	JobID     string
	Label     string
	Path      string
	Metadata  pqtype.NullRawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ArtifactParams carries the fields for an upsert. Metadata may be nil.
type ArtifactParams struct {
	JobID    string
	Label    string
	Path     string
	Metadata map[string]any
}

// UpsertArtifact inserts the artifact row, or refreshes it when the label
// was already indexed (an overwritten report keeps one row per label).
func (s *Store) UpsertArtifact(ctx context.Context, p ArtifactParams) error {
	var meta pqtype.NullRawMessage
	if p.Metadata != nil {
		raw, err := json.Marshal(p.Metadata)
		if err != nil {
			return fmt.Errorf("marshal artifact metadata: %w", err)
		}
		meta = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO artifacts (id, job_id, label, path, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (label) DO UPDATE
		SET job_id = EXCLUDED.job_id,
		    path = EXCLUDED.path,
		    metadata = EXCLUDED.metadata,
		    updated_at = now()`,
		uuid.New(), p.JobID, p.Label, p.Path, meta)
	if err != nil {
		return fmt.Errorf("upsert artifact: %w", err)
	}
	return nil
}

// GetArtifactByLabel returns the indexed row for a label.
func (s *Store) GetArtifactByLabel(ctx context.Context, label string) (Artifact, error) {
	var a Artifact
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, job_id, label, path, metadata, created_at, updated_at
		FROM artifacts WHERE label = $1`, label).
		Scan(&a.ID, &a.JobID, &a.Label, &a.Path, &a.Metadata, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Artifact{}, err
	}
	return a, nil
}

// ListArtifacts returns up to limit rows ordered by label.
func (s *Store) ListArtifacts(ctx context.Context, limit int32) ([]Artifact, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, job_id, label, path, metadata, created_at, updated_at
		FROM artifacts ORDER BY label LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.ID, &a.JobID, &a.Label, &a.Path, &a.Metadata, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteArtifactsOlderThan removes index rows last updated before the
// cutoff and returns how many were deleted.
func (s *Store) DeleteArtifactsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM artifacts WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
