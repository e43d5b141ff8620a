package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cilistia/engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for single-record lookups. Writes go to the primary store and
// refresh the cache; list queries pass through.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, refresh cache) ---

func (s *CachedStore) PutStakeAccount(ctx context.Context, acc *model.StakeAccount) error {
	if err := s.primary.PutStakeAccount(ctx, acc); err != nil {
		return err
	}
	s.cache(ctx, stakeKey(acc.Account), acc)
	return nil
}

func (s *CachedStore) PutPosition(ctx context.Context, p *model.Position) error {
	if err := s.primary.PutPosition(ctx, p); err != nil {
		return err
	}
	s.cache(ctx, positionKey(p.Key), p)
	return nil
}

func (s *CachedStore) PutOffer(ctx context.Context, o *model.Offer) error {
	if err := s.primary.PutOffer(ctx, o); err != nil {
		return err
	}
	s.cache(ctx, offerKey(o.Key), o)
	return nil
}

func (s *CachedStore) PutEscrowTransaction(ctx context.Context, t *model.EscrowTransaction) error {
	if err := s.primary.PutEscrowTransaction(ctx, t); err != nil {
		return err
	}
	s.cache(ctx, escrowKey(t.Key), t)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetStakeAccount(ctx context.Context, account string) (*model.StakeAccount, error) {
	var acc model.StakeAccount
	if s.lookup(ctx, stakeKey(account), &acc) {
		return &acc, nil
	}

	fresh, err := s.primary.GetStakeAccount(ctx, account)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, stakeKey(account), fresh)
	return fresh, nil
}

func (s *CachedStore) GetPosition(ctx context.Context, key string) (*model.Position, error) {
	var p model.Position
	if s.lookup(ctx, positionKey(key), &p) {
		return &p, nil
	}

	fresh, err := s.primary.GetPosition(ctx, key)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, positionKey(key), fresh)
	return fresh, nil
}

func (s *CachedStore) GetOffer(ctx context.Context, key string) (*model.Offer, error) {
	var o model.Offer
	if s.lookup(ctx, offerKey(key), &o) {
		return &o, nil
	}

	fresh, err := s.primary.GetOffer(ctx, key)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, offerKey(key), fresh)
	return fresh, nil
}

func (s *CachedStore) GetEscrowTransaction(ctx context.Context, key string) (*model.EscrowTransaction, error) {
	var t model.EscrowTransaction
	if s.lookup(ctx, escrowKey(key), &t) {
		return &t, nil
	}

	fresh, err := s.primary.GetEscrowTransaction(ctx, key)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, escrowKey(key), fresh)
	return fresh, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListStakeAccounts(ctx context.Context) ([]model.StakeAccount, error) {
	return s.primary.ListStakeAccounts(ctx)
}

func (s *CachedStore) ListPositions(ctx context.Context) ([]model.Position, error) {
	return s.primary.ListPositions(ctx)
}

func (s *CachedStore) ListOffersByPosition(ctx context.Context, positionKey string) ([]model.Offer, error) {
	return s.primary.ListOffersByPosition(ctx, positionKey)
}

// --- Cache helpers ---

func (s *CachedStore) lookup(ctx context.Context, key string, dest interface{}) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

func (s *CachedStore) cache(ctx context.Context, key string, v interface{}) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func stakeKey(account string) string { return fmt.Sprintf("stake:%s", account) }
func positionKey(key string) string  { return fmt.Sprintf("position:%s", key) }
func offerKey(key string) string     { return fmt.Sprintf("offer:%s", key) }
func escrowKey(key string) string    { return fmt.Sprintf("escrow:%s", key) }
