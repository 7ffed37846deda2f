package history

import (
	"context"
	"errors"
)

// Repository port for persisting and querying analysis records
type Repository interface {
	Save(ctx context.Context, r *Record) error
	Get(ctx context.Context, id RecordID) (*Record, error)
	Latest(ctx context.Context, limit int) ([]*Record, error)
}

// ImageStore port for archiving analysed images
type ImageStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// ErrNotFound is returned by Get when no record has the id
var ErrNotFound = errors.New("analysis record not found")
