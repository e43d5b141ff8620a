// Package staking implements the staking ledger: time-weighted stake
// accrual and proportional distribution of incoming reward deposits.
// The marketplace reads the derived collateral capacity as its
// offer-sizing gate.
//
// All monetary values use shopspring/decimal — never float64 for money.
package staking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cilistia/engine/internal/clock"
	"github.com/cilistia/engine/internal/ledger"
	"github.com/cilistia/engine/internal/metrics"
	"github.com/cilistia/engine/internal/model"
	"github.com/cilistia/engine/internal/store"
)

var (
	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("staking: amount must be positive")

	// ErrLockPeriodActive is returned when unstaking before the minimum
	// holding duration has elapsed since the most recent stake.
	ErrLockPeriodActive = errors.New("staking: lock period active")

	// ErrNoStake is returned when an account has nothing staked.
	ErrNoStake = errors.New("staking: no stake for account")

	// ErrNoActiveStakers is returned when a reward deposit arrives while
	// no account holds any weight to distribute against.
	ErrNoActiveStakers = errors.New("staking: no active stakers")
)

// Config holds the staking ledger parameters.
type Config struct {
	// Asset is the protocol asset being staked.
	Asset string

	// Custody is the ledger account holding all staked balances and
	// undistributed rewards.
	Custody string

	// FeeSink receives slashed balances.
	FeeSink string

	// LockPeriod is the minimum holding duration after the most recent
	// stake before withdrawal is allowed.
	LockPeriod time.Duration

	// WeightExponent tunes the reward-weight curve: weight accrues as
	// principal × (staked days)^WeightExponent. 1 is linear; higher
	// values favor long-tenured stakers more aggressively.
	WeightExponent int
}

// Service is the staking ledger. Mutating operations serialize on the
// engine-wide mutex shared with the marketplace and the escrow.
type Service struct {
	store store.Store
	led   ledger.Ledger
	clk   clock.Clock
	cfg   Config
	mu    *sync.Mutex
}

// NewService creates the staking ledger service.
func NewService(st store.Store, led ledger.Ledger, clk clock.Clock, cfg Config, mu *sync.Mutex) *Service {
	if cfg.WeightExponent < 1 {
		cfg.WeightExponent = 1
	}
	return &Service{store: st, led: led, clk: clk, cfg: cfg, mu: mu}
}

// Stake moves amount from the account into staking custody. Any claimable
// reward is folded into the principal, the time-weight accrued so far is
// preserved, and the lock period restarts.
func (s *Service) Stake(ctx context.Context, account string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()

	acc, err := s.store.GetStakeAccount(ctx, account)
	if errors.Is(err, store.ErrNotFound) {
		acc = &model.StakeAccount{Account: account}
	} else if err != nil {
		return fmt.Errorf("staking: load account: %w", err)
	}

	if err := s.led.Transfer(ctx, s.cfg.Asset, account, s.cfg.Custody, amount); err != nil {
		return err
	}

	s.accrue(acc, now)
	acc.Principal = acc.Principal.Add(acc.Reward).Add(amount)
	acc.Reward = decimal.Zero
	acc.LastStake = now

	if err := s.store.PutStakeAccount(ctx, acc); err != nil {
		return fmt.Errorf("staking: save account: %w", err)
	}

	metrics.StakeOps.WithLabelValues("stake").Inc()
	slog.Info("stake updated",
		"account", account,
		"amount", amount.String(),
		"principal", acc.Principal.String(),
	)
	return nil
}

// UnStake releases the account's principal plus claimable reward back to
// the account and zeroes the record. Fails while the lock period is
// active. Returns the released amount.
func (s *Service) UnStake(ctx context.Context, account string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()

	acc, err := s.store.GetStakeAccount(ctx, account)
	if errors.Is(err, store.ErrNotFound) {
		return decimal.Zero, ErrNoStake
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("staking: load account: %w", err)
	}

	total := acc.Principal.Add(acc.Reward)
	if !total.IsPositive() {
		return decimal.Zero, ErrNoStake
	}

	if now.Before(acc.LastStake.Add(s.cfg.LockPeriod)) {
		return decimal.Zero, ErrLockPeriodActive
	}

	if err := s.led.Transfer(ctx, s.cfg.Asset, s.cfg.Custody, account, total); err != nil {
		return decimal.Zero, err
	}

	// Zero in place; stake accounts are never deleted.
	acc.Principal = decimal.Zero
	acc.Weight = decimal.Zero
	acc.Reward = decimal.Zero
	acc.LastUpdate = now

	if err := s.store.PutStakeAccount(ctx, acc); err != nil {
		return decimal.Zero, fmt.Errorf("staking: save account: %w", err)
	}

	metrics.StakeOps.WithLabelValues("unstake").Inc()
	slog.Info("unstaked", "account", account, "released", total.String())
	return total, nil
}

// DepositReward pulls protocol fee revenue from source into custody and
// distributes it across all active stakers in proportion to their weight
// at this instant. The distribution is exact: the sum of credited shares
// equals amount, with any integer-division remainder credited to the
// largest-weight holder.
func (s *Service) DepositReward(ctx context.Context, source string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()

	accounts, err := s.store.ListStakeAccounts(ctx)
	if err != nil {
		return fmt.Errorf("staking: list accounts: %w", err)
	}

	totalWeight := decimal.Zero
	largest := -1
	for i := range accounts {
		s.accrue(&accounts[i], now)
		if !accounts[i].Weight.IsPositive() {
			continue
		}
		totalWeight = totalWeight.Add(accounts[i].Weight)
		if largest < 0 || accounts[i].Weight.GreaterThan(accounts[largest].Weight) {
			largest = i
		}
	}
	if !totalWeight.IsPositive() {
		return ErrNoActiveStakers
	}

	if err := s.led.Transfer(ctx, s.cfg.Asset, source, s.cfg.Custody, amount); err != nil {
		return err
	}

	distributed := decimal.Zero
	for i := range accounts {
		if !accounts[i].Weight.IsPositive() {
			continue
		}
		share := amount.Mul(accounts[i].Weight).Div(totalWeight).Truncate(model.AmountScale)
		accounts[i].Reward = accounts[i].Reward.Add(share)
		distributed = distributed.Add(share)
	}

	// Truncation dust goes to the largest-weight holder so the credited
	// total equals the deposit exactly.
	if remainder := amount.Sub(distributed); remainder.IsPositive() {
		accounts[largest].Reward = accounts[largest].Reward.Add(remainder)
	}

	for i := range accounts {
		if err := s.store.PutStakeAccount(ctx, &accounts[i]); err != nil {
			return fmt.Errorf("staking: save account %s: %w", accounts[i].Account, err)
		}
	}

	metrics.RewardsDistributed.Add(amount.InexactFloat64())
	slog.Info("reward distributed",
		"amount", amount.String(),
		"stakers", len(accounts),
		"total_weight", totalWeight.String(),
	)
	return nil
}

// CollateralCapacity returns the value the marketplace uses to gate offer
// sizing: the account's principal plus claimable reward. It exposes no
// weight internals. Read-only; safe to call from inside another
// component's serialized operation.
func (s *Service) CollateralCapacity(ctx context.Context, account string) (decimal.Decimal, error) {
	acc, err := s.store.GetStakeAccount(ctx, account)
	if errors.Is(err, store.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("staking: load account: %w", err)
	}
	return acc.Principal.Add(acc.Reward), nil
}

// Slash confiscates an account's entire stake and claimable reward,
// routing it to the fee sink. Invoked by the marketplace inside its own
// serialized force actions; it does not take the engine lock itself.
// Returns the confiscated amount.
func (s *Service) Slash(ctx context.Context, account string) (decimal.Decimal, error) {
	acc, err := s.store.GetStakeAccount(ctx, account)
	if errors.Is(err, store.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("staking: load account: %w", err)
	}

	total := acc.Principal.Add(acc.Reward)
	if !total.IsPositive() {
		return decimal.Zero, nil
	}

	if err := s.led.Transfer(ctx, s.cfg.Asset, s.cfg.Custody, s.cfg.FeeSink, total); err != nil {
		return decimal.Zero, err
	}

	acc.Principal = decimal.Zero
	acc.Weight = decimal.Zero
	acc.Reward = decimal.Zero
	acc.LastUpdate = s.clk.Now()

	if err := s.store.PutStakeAccount(ctx, acc); err != nil {
		return decimal.Zero, fmt.Errorf("staking: save account: %w", err)
	}

	metrics.StakeOps.WithLabelValues("slash").Inc()
	slog.Warn("stake slashed", "account", account, "amount", total.String())
	return total, nil
}

// Account returns a copy of the stake account record.
func (s *Service) Account(ctx context.Context, account string) (*model.StakeAccount, error) {
	acc, err := s.store.GetStakeAccount(ctx, account)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoStake
	}
	return acc, err
}

// accrue folds elapsed time since the last update into the account's
// weight: principal × (elapsed days)^exponent. Monotonically increasing
// in staked duration; the exponent is the tunable curve parameter.
func (s *Service) accrue(acc *model.StakeAccount, now time.Time) {
	if !acc.LastUpdate.IsZero() && now.After(acc.LastUpdate) && acc.Principal.IsPositive() {
		days := decimal.NewFromFloat(now.Sub(acc.LastUpdate).Hours() / 24)
		acc.Weight = acc.Weight.Add(acc.Principal.Mul(powInt(days, s.cfg.WeightExponent)))
	}
	acc.LastUpdate = now
}

// powInt raises d to a small positive integer power.
func powInt(d decimal.Decimal, n int) decimal.Decimal {
	out := d
	for i := 1; i < n; i++ {
		out = out.Mul(d)
	}
	return out
}
