package outbox

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"memberships/internal/notify"
)

// InMemoryStore is an outbox for single-process deployments and tests.
type InMemoryStore struct {
	mu        sync.Mutex
	entries   []Entry
	published map[uuid.UUID]time.Time
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{published: make(map[uuid.UUID]time.Time)}
}

func (s *InMemoryStore) Enqueue(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, Entry{ID: uuid.New(), Message: msg})
	return nil
}

// Pending returns up to limit unpublished entries in enqueue order.
func (s *InMemoryStore) Pending(_ context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, e := range s.entries {
		if _, done := s.published[e.ID]; done {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) MarkPublished(_ context.Context, ids []uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entryID := range ids {
		s.published[entryID] = at
	}
	return nil
}

func (s *InMemoryStore) MarkFailed(_ context.Context, entryID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == entryID {
			s.entries[i].Attempts++
		}
	}
	return nil
}

// Messages returns every message ever enqueued, published or not.
func (s *InMemoryStore) Messages() []notify.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notify.Message, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Message)
	}
	return out
}

// MessagesOfKind filters Messages by kind.
func (s *InMemoryStore) MessagesOfKind(kind notify.Kind) []notify.Message {
	return slices.DeleteFunc(s.Messages(), func(m notify.Message) bool { return m.Kind != kind })
}
