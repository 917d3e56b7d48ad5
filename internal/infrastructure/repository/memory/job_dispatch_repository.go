package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/riskibarqy/rank-tracker/internal/domain/jobscheduler"
)

type JobDispatchRepository struct {
	mu     sync.RWMutex
	events map[string]jobscheduler.DispatchEvent
	order  []string
}

func NewJobDispatchRepository() *JobDispatchRepository {
	return &JobDispatchRepository{events: make(map[string]jobscheduler.DispatchEvent)}
}

func (r *JobDispatchRepository) UpsertEvent(_ context.Context, event jobscheduler.DispatchEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.events[event.DispatchID]; !ok {
		r.order = append(r.order, event.DispatchID)
	}
	event.Payload = maps.Clone(event.Payload)
	r.events[event.DispatchID] = event
	return nil
}

// List returns events in first-seen order.
func (r *JobDispatchRepository) List() []jobscheduler.DispatchEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]jobscheduler.DispatchEvent, 0, len(r.order))
	for _, dispatchID := range r.order {
		out = append(out, r.events[dispatchID])
	}
	return out
}
