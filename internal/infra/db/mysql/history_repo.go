package mysql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bryanwahyu/cowhealth/internal/domain/history"
)

const schema = `
CREATE TABLE IF NOT EXISTS cow_analyses (
  id          CHAR(36)     NOT NULL PRIMARY KEY,
  prompt      TEXT         NOT NULL,
  image_url   VARCHAR(1024) NOT NULL,
  result_json JSON         NOT NULL,
  created_at  DATETIME(6)  NOT NULL,
  KEY idx_cow_analyses_created (created_at)
);
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

// Save inserts an analysis record
func (r *HistoryRepository) Save(ctx context.Context, rec *history.Record) error {
	const q = `
INSERT INTO cow_analyses
  (id, prompt, image_url, result_json, created_at)
VALUES (?,?,?,?,?)
ON DUPLICATE KEY UPDATE
  prompt=VALUES(prompt), image_url=VALUES(image_url), result_json=VALUES(result_json);
`
	id, prompt, imageURL, result, createdAt, err := recordArgs(rec)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q, id, prompt, imageURL, result, createdAt)
	return err
}

func (r *HistoryRepository) Get(ctx context.Context, id history.RecordID) (*history.Record, error) {
	const q = `
SELECT id, prompt, image_url, result_json, created_at
FROM cow_analyses
WHERE id=?;
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
