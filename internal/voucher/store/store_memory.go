package store

import (
	"context"
	"slices"
	"sync"

	"memberships/internal/voucher/models"
	id "memberships/pkg/domain"
	"memberships/pkg/platform/sentinel"
)

// InMemoryStore keeps vouchers in process memory. Row locks are no-ops;
// InMemoryTx serializes ledger transactions instead.
type InMemoryStore struct {
	mu     sync.RWMutex
	byID   map[id.VoucherID]models.Voucher
	byCode map[string]id.VoucherID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		byID:   make(map[id.VoucherID]models.Voucher),
		byCode: make(map[string]id.VoucherID),
	}
}

func (s *InMemoryStore) FindByCode(_ context.Context, code string) (*models.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	voucherID, ok := s.byCode[code]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	v := s.byID[voucherID]
	return &v, nil
}

func (s *InMemoryStore) LockByCode(ctx context.Context, code string) (*models.Voucher, error) {
	return s.FindByCode(ctx, code)
}

func (s *InMemoryStore) LockAccount(context.Context, id.AccountID) error {
	return nil
}

// ListByAccount returns the account's vouchers, oldest first.
func (s *InMemoryStore) ListByAccount(_ context.Context, accountID id.AccountID) ([]models.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Voucher
	for _, v := range s.byID {
		if v.OwnerID == accountID {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b models.Voucher) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.Primary != b.Primary {
			if a.Primary {
				return -1
			}
			return 1
		}
		return 0
	})
	return out, nil
}

func (s *InMemoryStore) HasVouchers(_ context.Context, accountID id.AccountID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.byID {
		if v.OwnerID == accountID {
			return true, nil
		}
	}
	return false, nil
}

// Create inserts all vouchers or none.
func (s *InMemoryStore) Create(_ context.Context, vouchers []models.Voucher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vouchers {
		if _, exists := s.byCode[v.Code]; exists {
			return sentinel.ErrConflict
		}
		if v.Primary {
			for _, held := range s.byID {
				if held.OwnerID == v.OwnerID && held.Primary {
					return sentinel.ErrConflict
				}
			}
		}
	}
	for _, v := range vouchers {
		s.byID[v.ID] = v
		s.byCode[v.Code] = v.ID
	}
	return nil
}

// Update rejects a change that would give the owner a second primary voucher.
func (s *InMemoryStore) Update(_ context.Context, v models.Voucher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[v.ID]; !ok {
		return sentinel.ErrNotFound
	}
	if v.Primary {
		for otherID, held := range s.byID {
			if otherID != v.ID && held.OwnerID == v.OwnerID && held.Primary {
				return sentinel.ErrConflict
			}
		}
	}
	s.byID[v.ID] = v
	return nil
}
