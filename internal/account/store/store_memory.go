package store

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"memberships/internal/account/models"
	id "memberships/pkg/domain"
	"memberships/pkg/platform/sentinel"
)

// VoucherIndex answers whether an account holds any voucher. The in-memory
// store consults it for draw candidate selection; Postgres joins instead.
type VoucherIndex interface {
	HasVouchers(ctx context.Context, accountID id.AccountID) (bool, error)
}

// InMemoryStore keeps accounts in process memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	byID     map[id.AccountID]*models.Account
	byEmail  map[string]id.AccountID
	vouchers VoucherIndex
}

func NewInMemory(vouchers VoucherIndex) *InMemoryStore {
	return &InMemoryStore{
		byID:     make(map[id.AccountID]*models.Account),
		byEmail:  make(map[string]id.AccountID),
		vouchers: vouchers,
	}
}

// Upsert returns the account for email, creating it if absent. created is
// false when the row already existed.
func (s *InMemoryStore) Upsert(_ context.Context, email string, now time.Time) (*models.Account, bool, error) {
	email = models.NormalizeEmail(email)
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byEmail[email]; ok {
		acc := *s.byID[existing]
		return &acc, false, nil
	}
	acc := &models.Account{ID: id.NewAccountID(), Email: email, CreatedAt: now}
	s.byID[acc.ID] = acc
	s.byEmail[email] = acc.ID
	out := *acc
	return &out, true, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, accountID id.AccountID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.byID[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *acc
	return &out, nil
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	accountID, ok := s.byEmail[models.NormalizeEmail(email)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *s.byID[accountID]
	return &out, nil
}

// Register links the account to eventID if it is not registered yet.
func (s *InMemoryStore) Register(_ context.Context, accountID id.AccountID, eventID id.EventID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.byID[accountID]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if !acc.EventID.IsNil() {
		return false, nil
	}
	acc.EventID = eventID
	return true, nil
}

// RandomUndrawn picks uniformly among accounts registered to eventID that
// hold no voucher and are not excluded. The candidate set is rebuilt on every
// call.
func (s *InMemoryStore) RandomUndrawn(ctx context.Context, eventID id.EventID, exclude []id.AccountID) (*models.Account, error) {
	skip := make(map[id.AccountID]struct{}, len(exclude))
	for _, accountID := range exclude {
		skip[accountID] = struct{}{}
	}

	s.mu.RLock()
	var pool []models.Account
	for _, acc := range s.byID {
		if !acc.IsRegistered(eventID) {
			continue
		}
		if _, excluded := skip[acc.ID]; excluded {
			continue
		}
		pool = append(pool, *acc)
	}
	s.mu.RUnlock()

	var candidates []models.Account
	for _, acc := range pool {
		if s.vouchers != nil {
			has, err := s.vouchers.HasVouchers(ctx, acc.ID)
			if err != nil {
				return nil, err
			}
			if has {
				continue
			}
		}
		candidates = append(candidates, acc)
	}
	if len(candidates) == 0 {
		return nil, sentinel.ErrNotFound
	}
	picked := candidates[rand.IntN(len(candidates))]
	return &picked, nil
}
