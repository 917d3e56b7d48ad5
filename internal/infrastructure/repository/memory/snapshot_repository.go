package memory

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/riskibarqy/rank-tracker/internal/domain/player"
	"github.com/riskibarqy/rank-tracker/internal/domain/snapshot"
	"github.com/riskibarqy/rank-tracker/internal/platform/id"
)

// playerSeries is the ordered history of one player. Its mutex serializes
// appends for that player only.
type playerSeries struct {
	mu    sync.RWMutex
	items []snapshot.Snapshot
}

type SnapshotRepository struct {
	mu     sync.RWMutex
	series map[player.Key]*playerSeries
	ids    id.Generator
}

func NewSnapshotRepository(ids id.Generator) *SnapshotRepository {
	if ids == nil {
		ids = id.NewTimeOrderedGenerator()
	}
	return &SnapshotRepository{
		series: make(map[player.Key]*playerSeries),
		ids:    ids,
	}
}

func (r *SnapshotRepository) seriesFor(key player.Key, create bool) *playerSeries {
	r.mu.RLock()
	s, ok := r.series[key]
	r.mu.RUnlock()
	if ok || !create {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok = r.series[key]; ok {
		return s
	}
	s = &playerSeries{}
	r.series[key] = s
	return s
}

func (r *SnapshotRepository) Append(ctx context.Context, item snapshot.Snapshot) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := item.Player.Validate(); err != nil {
		return "", fmt.Errorf("append snapshot: %w", err)
	}
	item.CapturedAt = snapshot.NormalizeTime(item.CapturedAt)

	s := r.seriesFor(item.Player.Key(), true)
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.items); n > 0 && !item.CapturedAt.After(s.items[n-1].CapturedAt) {
		return "", fmt.Errorf("%w: player=%s captured_at=%s latest=%s",
			snapshot.ErrOutOfOrder, item.Player.Key(), item.CapturedAt.Format(time.RFC3339Nano),
			s.items[n-1].CapturedAt.Format(time.RFC3339Nano))
	}

	if item.ID == "" {
		item.ID = id.MustNewID(r.ids)
	}
	s.items = append(s.items, cloneSnapshot(item))
	return item.ID, nil
}

func (r *SnapshotRepository) Latest(ctx context.Context, key player.Key) (snapshot.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return snapshot.Snapshot{}, false, err
	}
	s := r.seriesFor(key, false)
	if s == nil {
		return snapshot.Snapshot{}, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.items) == 0 {
		return snapshot.Snapshot{}, false, nil
	}
	return cloneSnapshot(s.items[len(s.items)-1]), true, nil
}

func (r *SnapshotRepository) LatestBefore(ctx context.Context, key player.Key, before time.Time) (snapshot.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return snapshot.Snapshot{}, false, err
	}
	s := r.seriesFor(key, false)
	if s == nil {
		return snapshot.Snapshot{}, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, _ := slices.BinarySearchFunc(s.items, before, func(item snapshot.Snapshot, t time.Time) int {
		return item.CapturedAt.Compare(t)
	})
	if idx == 0 {
		return snapshot.Snapshot{}, false, nil
	}
	return cloneSnapshot(s.items[idx-1]), true, nil
}

func (r *SnapshotRepository) Range(ctx context.Context, key player.Key, from, to time.Time) iter.Seq2[snapshot.Snapshot, error] {
	return func(yield func(snapshot.Snapshot, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(snapshot.Snapshot{}, err)
			return
		}
		s := r.seriesFor(key, false)
		if s == nil {
			return
		}

		s.mu.RLock()
		window := make([]snapshot.Snapshot, 0)
		for _, item := range s.items {
			if item.CapturedAt.Before(from) || item.CapturedAt.After(to) {
				continue
			}
			window = append(window, item)
		}
		s.mu.RUnlock()

		for _, item := range window {
			if !yield(cloneSnapshot(item), nil) {
				return
			}
		}
	}
}

func (r *SnapshotRepository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	r.mu.RLock()
	all := make([]*playerSeries, 0, len(r.series))
	for _, s := range r.series {
		all = append(all, s)
	}
	r.mu.RUnlock()

	var pruned int64
	for _, s := range all {
		if err := ctx.Err(); err != nil {
			return pruned, err
		}
		s.mu.Lock()
		keepFrom := 0
		for keepFrom < len(s.items)-1 && s.items[keepFrom].CapturedAt.Before(olderThan) {
			keepFrom++
		}
		if keepFrom > 0 {
			pruned += int64(keepFrom)
			s.items = append([]snapshot.Snapshot(nil), s.items[keepFrom:]...)
		}
		s.mu.Unlock()
	}
	return pruned, nil
}

func cloneSnapshot(in snapshot.Snapshot) snapshot.Snapshot {
	out := in
	out.Metrics = maps.Clone(in.Metrics)
	if in.RawSource != nil {
		out.RawSource = append([]byte(nil), in.RawSource...)
	}
	return out
}
