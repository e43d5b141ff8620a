package store

import (
	"context"
	"sync"

	"github.com/cilistia/engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	stakes    map[string]*model.StakeAccount
	positions map[string]*model.Position
	offers    map[string]*model.Offer
	escrows   map[string]*model.EscrowTransaction
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stakes:    make(map[string]*model.StakeAccount),
		positions: make(map[string]*model.Position),
		offers:    make(map[string]*model.Offer),
		escrows:   make(map[string]*model.EscrowTransaction),
	}
}

func (s *MemoryStore) PutStakeAccount(_ context.Context, acc *model.StakeAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	copy := *acc
	s.stakes[acc.Account] = &copy
	return nil
}

func (s *MemoryStore) GetStakeAccount(_ context.Context, account string) (*model.StakeAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.stakes[account]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *acc
	return &copy, nil
}

func (s *MemoryStore) ListStakeAccounts(_ context.Context) ([]model.StakeAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]model.StakeAccount, 0, len(s.stakes))
	for _, acc := range s.stakes {
		accounts = append(accounts, *acc)
	}
	return accounts, nil
}

func (s *MemoryStore) PutPosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *p
	s.positions[p.Key] = &copy
	return nil
}

func (s *MemoryStore) GetPosition(_ context.Context, key string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[key]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *p
	return &copy, nil
}

func (s *MemoryStore) ListPositions(_ context.Context) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := make([]model.Position, 0, len(s.positions))
	for _, p := range s.positions {
		positions = append(positions, *p)
	}
	return positions, nil
}

func (s *MemoryStore) PutOffer(_ context.Context, o *model.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *o
	s.offers[o.Key] = &copy
	return nil
}

func (s *MemoryStore) GetOffer(_ context.Context, key string) (*model.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.offers[key]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *o
	return &copy, nil
}

func (s *MemoryStore) ListOffersByPosition(_ context.Context, positionKey string) ([]model.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var offers []model.Offer
	for _, o := range s.offers {
		if o.PositionKey == positionKey {
			offers = append(offers, *o)
		}
	}
	return offers, nil
}

func (s *MemoryStore) PutEscrowTransaction(_ context.Context, t *model.EscrowTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *t
	s.escrows[t.Key] = &copy
	return nil
}

func (s *MemoryStore) GetEscrowTransaction(_ context.Context, key string) (*model.EscrowTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.escrows[key]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *t
	return &copy, nil
}
