package memory

import (
	"context"
	"sync"

	"github.com/riskibarqy/rank-tracker/internal/domain/player"
)

type PlayerRepository struct {
	mu      sync.RWMutex
	players []player.Identity
	index   map[player.Key]int
}

func NewPlayerRepository(players []player.Identity) *PlayerRepository {
	r := &PlayerRepository{index: make(map[player.Key]int, len(players))}
	for _, p := range players {
		r.upsertLocked(p)
	}
	return r
}

func (r *PlayerRepository) ListTrackedPairs(_ context.Context) ([]player.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]player.Identity, 0, len(r.players))
	out = append(out, r.players...)
	return out, nil
}

// Upsert registers an identity or refreshes its display name and region.
func (r *PlayerRepository) Upsert(identity player.Identity) error {
	if err := identity.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertLocked(identity)
	return nil
}

func (r *PlayerRepository) upsertLocked(identity player.Identity) {
	key := identity.Key()
	if idx, ok := r.index[key]; ok {
		r.players[idx] = identity
		return
	}
	r.index[key] = len(r.players)
	r.players = append(r.players, identity)
}
