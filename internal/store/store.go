// Package store defines persistence for the engine's four keyed tables:
// stake accounts, positions, offers, and escrow transactions.
// Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/cilistia/engine/internal/model"
)

// ErrNotFound is returned when no record exists for a key.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. Put operations upsert: services
// mutate copies and write the full record back.
type Store interface {
	// --- Stake accounts, keyed by account ---

	PutStakeAccount(ctx context.Context, acc *model.StakeAccount) error
	GetStakeAccount(ctx context.Context, account string) (*model.StakeAccount, error)
	ListStakeAccounts(ctx context.Context) ([]model.StakeAccount, error)

	// --- Positions, keyed by content-derived key ---

	PutPosition(ctx context.Context, p *model.Position) error
	GetPosition(ctx context.Context, key string) (*model.Position, error)
	ListPositions(ctx context.Context) ([]model.Position, error)

	// --- Offers, keyed by content-derived key ---

	PutOffer(ctx context.Context, o *model.Offer) error
	GetOffer(ctx context.Context, key string) (*model.Offer, error)
	ListOffersByPosition(ctx context.Context, positionKey string) ([]model.Offer, error)

	// --- Escrow transactions, keyed by content-derived key ---

	PutEscrowTransaction(ctx context.Context, t *model.EscrowTransaction) error
	GetEscrowTransaction(ctx context.Context, key string) (*model.EscrowTransaction, error)
}
