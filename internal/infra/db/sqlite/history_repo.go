// Package sqlite keeps analysis history in a local SQLite file, for
// single-node deployments and the CLI.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bryanwahyu/cowhealth/internal/domain/analysis"
	"github.com/bryanwahyu/cowhealth/internal/domain/history"
)

const schema = `
CREATE TABLE IF NOT EXISTS cow_analyses (
  id          TEXT    PRIMARY KEY,
  prompt      TEXT    NOT NULL,
  image_url   TEXT    NOT NULL DEFAULT '',
  result_json TEXT    NOT NULL,
  created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cow_analyses_created ON cow_analyses (created_at DESC);
`

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer at a time
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Save(ctx context.Context, rec *history.Record) error {
	const q = `
INSERT INTO cow_analyses (id, prompt, image_url, result_json, created_at)
VALUES (?,?,?,?,?)
ON CONFLICT (id) DO UPDATE SET
  prompt=excluded.prompt,
  image_url=excluded.image_url,
  result_json=excluded.result_json;
`
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return err
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = r.db.ExecContext(ctx, q, string(rec.ID), rec.Prompt, rec.ImageURL, string(result), createdAt.UnixNano())
	return err
}

func (r *HistoryRepository) Get(ctx context.Context, id history.RecordID) (*history.Record, error) {
	const q = `SELECT id, prompt, image_url, result_json, created_at FROM cow_analyses WHERE id=?;`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, history.ErrNotFound
	}
	return rec, err
}

func (r *HistoryRepository) Latest(ctx context.Context, limit int) ([]*history.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, prompt, image_url, result_json, created_at
FROM cow_analyses
ORDER BY created_at DESC, id DESC
LIMIT ?;
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
		rec     history.Record
		result  string
		created int64
	)
	if err := s.Scan(&rec.ID, &rec.Prompt, &rec.ImageURL, &result, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(result), &rec.Result); err != nil {
		return nil, err
	}
	if rec.Result.DiseaseDetails == nil {
		rec.Result.DiseaseDetails = []analysis.ConditionTreatment{}
	}
	rec.CreatedAt = time.Unix(0, created).UTC()
	return &rec, nil
}
