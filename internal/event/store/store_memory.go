package store

import (
	"context"
	"sync"

	"memberships/internal/event/models"
	id "memberships/pkg/domain"
	"memberships/pkg/platform/sentinel"
)

// InMemoryRepository keeps events in process memory. Used when no database is
// configured and in tests.
type InMemoryRepository struct {
	mu     sync.RWMutex
	events map[id.EventID]models.Event
	active id.EventID
}

func NewInMemory() *InMemoryRepository {
	return &InMemoryRepository{events: make(map[id.EventID]models.Event)}
}

// Current returns the active event.
func (r *InMemoryRepository) Current(_ context.Context) (*models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[r.active]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &e, nil
}

func (r *InMemoryRepository) FindByID(_ context.Context, eventID id.EventID) (*models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[eventID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &e, nil
}

// Upsert stores the event by name, keeping an existing ID, and marks it active
// when requested.
func (r *InMemoryRepository) Upsert(_ context.Context, event models.Event, active bool) (*models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for existingID, existing := range r.events {
		if existing.Name == event.Name {
			event.ID = existingID
			break
		}
	}
	if event.ID.IsNil() {
		event.ID = id.NewEventID()
	}
	event.QuestionSetIDs = append([]int64(nil), event.QuestionSetIDs...)
	r.events[event.ID] = event
	if active {
		r.active = event.ID
	}
	return &event, nil
}
