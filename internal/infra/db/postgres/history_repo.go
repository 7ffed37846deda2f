package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/bryanwahyu/cowhealth/internal/domain/analysis"
	"github.com/bryanwahyu/cowhealth/internal/domain/history"
)

const schema = `
CREATE TABLE IF NOT EXISTS cow_analyses (
  id          UUID        PRIMARY KEY,
  prompt      TEXT        NOT NULL,
  image_url   TEXT        NOT NULL DEFAULT '',
  result_json JSONB       NOT NULL,
  created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cow_analyses_created ON cow_analyses (created_at DESC);
`

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Migrate creates the analyses table if missing
func (r *HistoryRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Save inserts or updates an analysis record
func (r *HistoryRepository) Save(ctx context.Context, rec *history.Record) error {
	const q = `
INSERT INTO cow_analyses
  (id, prompt, image_url, result_json, created_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET
  prompt=EXCLUDED.prompt,
  image_url=EXCLUDED.image_url,
  result_json=EXCLUDED.result_json;
`
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return err
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = r.db.ExecContext(ctx, q, string(rec.ID), rec.Prompt, rec.ImageURL, string(result), createdAt)
	return err
}

func (r *HistoryRepository) Get(ctx context.Context, id history.RecordID) (*history.Record, error) {
	const q = `
SELECT id, prompt, image_url, result_json, created_at
FROM cow_analyses
WHERE id=$1;
`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, history.ErrNotFound
	}
	return rec, err
}

// Latest returns the newest records ordered by created_at desc
func (r *HistoryRepository) Latest(ctx context.Context, limit int) ([]*history.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, prompt, image_url, result_json, created_at
FROM cow_analyses
ORDER BY created_at DESC, id DESC
LIMIT $1;
`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*history.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(s interface{ Scan(dest ...any) error }) (*history.Record, error) {
	var (
		rec    history.Record
		result []byte
	)
	if err := s.Scan(&rec.ID, &rec.Prompt, &rec.ImageURL, &result, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(result, &rec.Result); err != nil {
		return nil, err
	}
	if rec.Result.DiseaseDetails == nil {
		rec.Result.DiseaseDetails = []analysis.ConditionTreatment{}
	}
	return &rec, nil
}
