package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/cilistia/engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// --- Stake accounts ---

func (s *PostgresStore) PutStakeAccount(ctx context.Context, acc *model.StakeAccount) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO stake_accounts (account, principal, weight, reward, last_update, last_stake)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4::NUMERIC, $5, $6)
		 ON CONFLICT (account) DO UPDATE SET
		   principal = EXCLUDED.principal, weight = EXCLUDED.weight,
		   reward = EXCLUDED.reward, last_update = EXCLUDED.last_update,
		   last_stake = EXCLUDED.last_stake`,
		acc.Account, acc.Principal.String(), acc.Weight.String(), acc.Reward.String(),
		acc.LastUpdate, acc.LastStake,
	)
	return err
}

func (s *PostgresStore) GetStakeAccount(ctx context.Context, account string) (*model.StakeAccount, error) {
	var acc model.StakeAccount
	var principal, weight, reward string

	err := s.pool.QueryRow(ctx,
		`SELECT account, principal::TEXT, weight::TEXT, reward::TEXT, last_update, last_stake
		 FROM stake_accounts WHERE account = $1`, account).
		Scan(&acc.Account, &principal, &weight, &reward, &acc.LastUpdate, &acc.LastStake)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get stake account %s: %w", account, err)
	}

	acc.Principal, _ = decimal.NewFromString(principal)
	acc.Weight, _ = decimal.NewFromString(weight)
	acc.Reward, _ = decimal.NewFromString(reward)

	return &acc, nil
}

func (s *PostgresStore) ListStakeAccounts(ctx context.Context) ([]model.StakeAccount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT account, principal::TEXT, weight::TEXT, reward::TEXT, last_update, last_stake
		 FROM stake_accounts ORDER BY account`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.StakeAccount
	for rows.Next() {
		var acc model.StakeAccount
		var principal, weight, reward string
		if err := rows.Scan(&acc.Account, &principal, &weight, &reward,
			&acc.LastUpdate, &acc.LastStake); err != nil {
			return nil, err
		}
		acc.Principal, _ = decimal.NewFromString(principal)
		acc.Weight, _ = decimal.NewFromString(weight)
		acc.Reward, _ = decimal.NewFromString(reward)
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// --- Positions ---

func (s *PostgresStore) PutPosition(ctx context.Context, p *model.Position) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO positions (key, price, price_type, total_amount, min_amount, max_amount,
		                        locked_amount, payment_method, asset, owner, instructions, created_at)
		 VALUES ($1, $2::NUMERIC, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC,
		         $7::NUMERIC, $8, $9, $10, $11, $12)
		 ON CONFLICT (key) DO UPDATE SET
		   total_amount = EXCLUDED.total_amount, locked_amount = EXCLUDED.locked_amount,
		   instructions = EXCLUDED.instructions`,
		p.Key, p.Price.String(), int16(p.PriceType),
		p.TotalAmount.String(), p.MinAmount.String(), p.MaxAmount.String(),
		p.LockedAmount.String(), int16(p.PaymentMethod),
		p.Asset, p.Owner, p.Instructions, p.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetPosition(ctx context.Context, key string) (*model.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT key, price::TEXT, price_type, total_amount::TEXT, min_amount::TEXT,
		        max_amount::TEXT, locked_amount::TEXT, payment_method, asset, owner,
		        instructions, created_at
		 FROM positions WHERE key = $1`, key)

	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get position %s: %w", key, err)
	}
	return p, nil
}

func (s *PostgresStore) ListPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, price::TEXT, price_type, total_amount::TEXT, min_amount::TEXT,
		        max_amount::TEXT, locked_amount::TEXT, payment_method, asset, owner,
		        instructions, created_at
		 FROM positions ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

// --- Offers ---

func (s *PostgresStore) PutOffer(ctx context.Context, o *model.Offer) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO offers (key, position_key, amount, asset_amount, buyer,
		                     payment_reference, released, canceled, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5, $6, $7, $8, $9)
		 ON CONFLICT (key) DO UPDATE SET
		   released = EXCLUDED.released, canceled = EXCLUDED.canceled`,
		o.Key, o.PositionKey, o.Amount.String(), o.AssetAmount.String(),
		o.Buyer, o.PaymentReference, o.Released, o.Canceled, o.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetOffer(ctx context.Context, key string) (*model.Offer, error) {
	var o model.Offer
	var amount, assetAmount string

	err := s.pool.QueryRow(ctx,
		`SELECT key, position_key, amount::TEXT, asset_amount::TEXT, buyer,
		        payment_reference, released, canceled, created_at
		 FROM offers WHERE key = $1`, key).
		Scan(&o.Key, &o.PositionKey, &amount, &assetAmount, &o.Buyer,
			&o.PaymentReference, &o.Released, &o.Canceled, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get offer %s: %w", key, err)
	}

	o.Amount, _ = decimal.NewFromString(amount)
	o.AssetAmount, _ = decimal.NewFromString(assetAmount)
	return &o, nil
}

func (s *PostgresStore) ListOffersByPosition(ctx context.Context, positionKey string) ([]model.Offer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, position_key, amount::TEXT, asset_amount::TEXT, buyer,
		        payment_reference, released, canceled, created_at
		 FROM offers WHERE position_key = $1 ORDER BY created_at`, positionKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []model.Offer
	for rows.Next() {
		var o model.Offer
		var amount, assetAmount string
		if err := rows.Scan(&o.Key, &o.PositionKey, &amount, &assetAmount, &o.Buyer,
			&o.PaymentReference, &o.Released, &o.Canceled, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Amount, _ = decimal.NewFromString(amount)
		o.AssetAmount, _ = decimal.NewFromString(assetAmount)
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

// --- Escrow transactions ---

func (s *PostgresStore) PutEscrowTransaction(ctx context.Context, t *model.EscrowTransaction) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO escrow_transactions (key, asset, from_account, to_account, amount,
		                                  state, signed_from, signed_to, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7, $8, $9, $10)
		 ON CONFLICT (key) DO UPDATE SET
		   state = EXCLUDED.state, signed_from = EXCLUDED.signed_from,
		   signed_to = EXCLUDED.signed_to, updated_at = EXCLUDED.updated_at`,
		t.Key, t.Asset, t.From, t.To, t.Amount.String(),
		string(t.State), t.SignedFrom, t.SignedTo, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) GetEscrowTransaction(ctx context.Context, key string) (*model.EscrowTransaction, error) {
	var t model.EscrowTransaction
	var amount, state string

	err := s.pool.QueryRow(ctx,
		`SELECT key, asset, from_account, to_account, amount::TEXT, state,
		        signed_from, signed_to, created_at, updated_at
		 FROM escrow_transactions WHERE key = $1`, key).
		Scan(&t.Key, &t.Asset, &t.From, &t.To, &amount, &state,
			&t.SignedFrom, &t.SignedTo, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get escrow transaction %s: %w", key, err)
	}

	t.Amount, _ = decimal.NewFromString(amount)
	t.State = model.EscrowState(state)
	return &t, nil
}

// --- Scan helpers ---

type pgxRow interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row pgxRow) (*model.Position, error) {
	var p model.Position
	var price, total, min, max, locked string
	var priceType, paymentMethod int16

	if err := row.Scan(&p.Key, &price, &priceType, &total, &min, &max, &locked,
		&paymentMethod, &p.Asset, &p.Owner, &p.Instructions, &p.CreatedAt); err != nil {
		return nil, err
	}

	p.Price, _ = decimal.NewFromString(price)
	p.TotalAmount, _ = decimal.NewFromString(total)
	p.MinAmount, _ = decimal.NewFromString(min)
	p.MaxAmount, _ = decimal.NewFromString(max)
	p.LockedAmount, _ = decimal.NewFromString(locked)
	p.PriceType = model.PriceType(priceType)
	p.PaymentMethod = model.PaymentMethod(paymentMethod)

	return &p, nil
}
