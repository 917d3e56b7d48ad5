package usecase

import (
	"fmt"
	"slices"

	"github.com/riskibarqy/rank-tracker/internal/domain/game"
)

// AdapterRegistry maps games to adapters. It is built once at startup.
type AdapterRegistry struct {
	adapters map[game.ID]GameAdapter
}

func NewAdapterRegistry(adapters ...GameAdapter) (*AdapterRegistry, error) {
	out := &AdapterRegistry{adapters: make(map[game.ID]GameAdapter, len(adapters))}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		id := adapter.Game()
		if _, exists := out.adapters[id]; exists {
			return nil, fmt.Errorf("%w: duplicate adapter for game=%s", ErrInvalidInput, id)
		}
		out.adapters[id] = adapter
	}
	return out, nil
}

func (r *AdapterRegistry) Get(id game.ID) (GameAdapter, error) {
	adapter, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: game=%s", ErrUnknownGame, id)
	}
	return adapter, nil
}

// Require fails when any of the given games has no adapter.
func (r *AdapterRegistry) Require(ids ...game.ID) error {
	for _, id := range ids {
		if _, err := r.Get(id); err != nil {
			return err
		}
	}
	return nil
}

func (r *AdapterRegistry) Games() []game.ID {
	out := make([]game.ID, 0, len(r.adapters))
	for id := range r.adapters {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
