package memory

import (
	"context"
	"sync"
	"time"

	"github.com/riskibarqy/rank-tracker/internal/domain/ingestion"
	"github.com/riskibarqy/rank-tracker/internal/domain/player"
)

const defaultAuditCapacity = 4096

// IngestionRepository keeps the most recent results in a bounded ring plus
// the latest result per player.
type IngestionRepository struct {
	mu       sync.RWMutex
	capacity int
	ring     []ingestion.Result
	next     int
	full     bool
	latest   map[player.Key]ingestion.Result
}

func NewIngestionRepository(capacity int) *IngestionRepository {
	if capacity <= 0 {
		capacity = defaultAuditCapacity
	}
	return &IngestionRepository{
		capacity: capacity,
		ring:     make([]ingestion.Result, capacity),
		latest:   make(map[player.Key]ingestion.Result),
	}
}

func (r *IngestionRepository) Record(_ context.Context, results []ingestion.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, item := range results {
		r.ring[r.next] = item
		r.next = (r.next + 1) % r.capacity
		if r.next == 0 {
			r.full = true
		}
		key := item.Player.Key()
		if prev, ok := r.latest[key]; !ok || !item.AttemptedAt.Before(prev.AttemptedAt) {
			r.latest[key] = item
		}
	}
	return nil
}

func (r *IngestionRepository) LatestByPlayer(_ context.Context, key player.Key) (ingestion.Result, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.latest[key]
	return item, ok, nil
}

// Recent returns up to limit results, newest first.
func (r *IngestionRepository) Recent(limit int) []ingestion.Result {
	r.mu.RLock()
	defer r.mu.RUnlock()

	size := r.next
	if r.full {
		size = r.capacity
	}
	if limit <= 0 || limit > size {
		limit = size
	}
	out := make([]ingestion.Result, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.next - i + r.capacity) % r.capacity
		out = append(out, r.ring[idx])
	}
	return out
}

func (r *IngestionRepository) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pruned int64
	for key, item := range r.latest {
		if item.AttemptedAt.Before(olderThan) {
			delete(r.latest, key)
			pruned++
		}
	}
	return pruned, nil
}
