package inmemory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/bryanwahyu/cowhealth/internal/domain/history"
)

// HistoryRepository is used when no database driver is configured.
type HistoryRepository struct {
	mutex   sync.Mutex
	records map[history.RecordID]history.Record
}

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{
		records: make(map[history.RecordID]history.Record),
	}
}

func (r *HistoryRepository) Save(_ context.Context, rec *history.Record) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.records[rec.ID] = *rec
	return nil
}

func (r *HistoryRepository) Get(_ context.Context, id history.RecordID) (*history.Record, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, history.ErrNotFound
	}
	return &rec, nil
}

func (r *HistoryRepository) Latest(_ context.Context, limit int) ([]*history.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	r.mutex.Lock()
	all := make([]*history.Record, 0, len(r.records))
	for _, rec := range r.records {
		all = append(all, &rec)
	}
	r.mutex.Unlock()

	slices.SortFunc(all, func(a, b *history.Record) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(string(b.ID), string(a.ID))
	})
	return all[:min(limit, len(all))], nil
}
