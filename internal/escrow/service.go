// Package escrow implements two-party conditional transfers. The sender
// funds escrow custody at creation; the payout to the recipient happens
// only after both parties sign and a cooling-off period elapses since
// the last state change.
//
// All monetary values use shopspring/decimal — never float64 for money.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cilistia/engine/internal/assets"
	"github.com/cilistia/engine/internal/auth"
	"github.com/cilistia/engine/internal/clock"
	"github.com/cilistia/engine/internal/ledger"
	"github.com/cilistia/engine/internal/metrics"
	"github.com/cilistia/engine/internal/model"
	"github.com/cilistia/engine/internal/store"
)

var (
	ErrAssetNotWhitelisted = errors.New("escrow: asset not whitelisted")
	ErrAmountMismatch      = errors.New("escrow: attached value does not match amount")
	ErrInvalidAmount       = errors.New("escrow: invalid amount")
	ErrInvalidParties      = errors.New("escrow: sender and recipient must differ")
	ErrTransactionNotFound = errors.New("escrow: no such transaction")
	ErrNotParty            = errors.New("escrow: account is not a party to this transaction")
	ErrNotSender           = errors.New("escrow: only the sender may do this")
	ErrAlreadySigned       = errors.New("escrow: already signed")
	ErrNotPending          = errors.New("escrow: transaction is not pending")
	ErrNotRejected         = errors.New("escrow: transaction is not rejected")
	ErrNotFullySigned      = errors.New("escrow: both parties must sign first")
	ErrLockPeriodActive    = errors.New("escrow: lock period has not elapsed")
	ErrNotAuthorized       = errors.New("escrow: not authorized")
)

// Config holds the escrow parameters.
type Config struct {
	// NativeAsset is the chain-native asset; transactions in it must
	// attach the full amount with the call.
	NativeAsset string

	// Custody holds funds while a transaction is open.
	Custody string

	// FeeSink receives the release fee.
	FeeSink string

	// FeeRate is the fraction withheld on release (0.01 = 1%).
	FeeRate decimal.Decimal

	// LockPeriod must elapse since the last state change before a
	// fully-signed transaction can be finished.
	LockPeriod time.Duration
}

// Service is the conditional escrow engine. Mutating operations
// serialize on the engine-wide mutex shared with staking and market.
type Service struct {
	store     store.Store
	led       ledger.Ledger
	policy    auth.Policy
	whitelist *assets.Whitelist
	clk       clock.Clock
	cfg       Config
	mu        *sync.Mutex
	seq       uint64
}

func NewService(st store.Store, led ledger.Ledger, policy auth.Policy,
	wl *assets.Whitelist, clk clock.Clock, cfg Config, mu *sync.Mutex) *Service {
	return &Service{
		store:     st,
		led:       led,
		policy:    policy,
		whitelist: wl,
		clk:       clk,
		cfg:       cfg,
		mu:        mu,
	}
}

// CreateTransactionParams carries the inputs for CreateTransaction.
type CreateTransactionParams struct {
	Asset  string
	From   string
	To     string
	Amount decimal.Decimal
	Value  decimal.Decimal // attached native value
}

// CreateTransaction opens a pending escrow, pulling the amount from the
// sender into custody. Returns the transaction's content-derived key.
func (s *Service) CreateTransaction(ctx context.Context, p CreateTransactionParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.whitelist.Allowed(p.Asset) {
		return "", ErrAssetNotWhitelisted
	}
	if !p.Amount.IsPositive() {
		return "", ErrInvalidAmount
	}
	if p.From == p.To || p.From == "" || p.To == "" {
		return "", ErrInvalidParties
	}
	if p.Asset == s.cfg.NativeAsset && !p.Value.Equal(p.Amount) {
		return "", ErrAmountMismatch
	}

	if err := s.led.Transfer(ctx, p.Asset, p.From, s.cfg.Custody, p.Amount); err != nil {
		return "", err
	}

	now := s.clk.Now()
	s.seq++
	tx := &model.EscrowTransaction{
		Key:       model.EscrowKey(p.Asset, p.From, p.To, now, s.seq),
		Asset:     p.Asset,
		From:      p.From,
		To:        p.To,
		Amount:    p.Amount,
		State:     model.EscrowPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.PutEscrowTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("escrow: save transaction: %w", err)
	}

	metrics.EscrowEvents.WithLabelValues("created").Inc()
	slog.Info("escrow created",
		"key", tx.Key,
		"asset", p.Asset,
		"from", p.From,
		"to", p.To,
		"amount", p.Amount.String(),
	)
	return tx.Key, nil
}

// SignTransaction records the caller's signature on a pending
// transaction. Each party signs at most once.
func (s *Service) SignTransaction(ctx context.Context, key, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.get(ctx, key)
	if err != nil {
		return err
	}
	if tx.State != model.EscrowPending {
		return ErrNotPending
	}

	switch account {
	case tx.From:
		if tx.SignedFrom {
			return ErrAlreadySigned
		}
		tx.SignedFrom = true
	case tx.To:
		if tx.SignedTo {
			return ErrAlreadySigned
		}
		tx.SignedTo = true
	default:
		return ErrNotParty
	}

	// Signing does not touch UpdatedAt: the cooling-off window runs
	// from creation (or the last reject/resume), not the last signature.
	if err := s.store.PutEscrowTransaction(ctx, tx); err != nil {
		return fmt.Errorf("escrow: save transaction: %w", err)
	}

	metrics.EscrowEvents.WithLabelValues("signed").Inc()
	slog.Info("escrow signed", "key", key, "account", account, "fully_signed", tx.FullySigned())
	return nil
}

// RejectTransaction moves a pending transaction to rejected, dropping
// all signatures. Sender only; funds stay in custody.
func (s *Service) RejectTransaction(ctx context.Context, key, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.get(ctx, key)
	if err != nil {
		return err
	}
	if tx.From != account {
		return ErrNotSender
	}
	if tx.State != model.EscrowPending {
		return ErrNotPending
	}

	tx.State = model.EscrowRejected
	tx.ClearSignatures()
	tx.UpdatedAt = s.clk.Now()
	if err := s.store.PutEscrowTransaction(ctx, tx); err != nil {
		return fmt.Errorf("escrow: save transaction: %w", err)
	}

	metrics.EscrowEvents.WithLabelValues("rejected").Inc()
	slog.Info("escrow rejected", "key", key)
	return nil
}

// ResumeTransaction moves a rejected transaction back to pending.
// Signatures are dropped again so both parties re-confirm the current
// terms. Sender only.
func (s *Service) ResumeTransaction(ctx context.Context, key, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.get(ctx, key)
	if err != nil {
		return err
	}
	if tx.From != account {
		return ErrNotSender
	}
	if tx.State != model.EscrowRejected {
		return ErrNotRejected
	}

	tx.State = model.EscrowPending
	tx.ClearSignatures()
	tx.UpdatedAt = s.clk.Now()
	if err := s.store.PutEscrowTransaction(ctx, tx); err != nil {
		return fmt.Errorf("escrow: save transaction: %w", err)
	}

	metrics.EscrowEvents.WithLabelValues("resumed").Inc()
	slog.Info("escrow resumed", "key", key)
	return nil
}

// FinishTransaction releases a fully-signed pending transaction to the
// recipient, minus the fee, once the lock period has elapsed since
// creation (or the last reject/resume). Sender only.
func (s *Service) FinishTransaction(ctx context.Context, key, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.get(ctx, key)
	if err != nil {
		return err
	}
	if tx.From != account {
		return ErrNotSender
	}
	if tx.State != model.EscrowPending {
		return ErrNotPending
	}

	now := s.clk.Now()
	if now.Before(tx.UpdatedAt.Add(s.cfg.LockPeriod)) {
		return ErrLockPeriodActive
	}
	if !tx.FullySigned() {
		return ErrNotFullySigned
	}

	fee := tx.Amount.Mul(s.cfg.FeeRate).Truncate(model.AmountScale)
	payout := tx.Amount.Sub(fee)

	if err := s.led.Transfer(ctx, tx.Asset, s.cfg.Custody, tx.To, payout); err != nil {
		return err
	}
	if fee.IsPositive() {
		if err := s.led.Transfer(ctx, tx.Asset, s.cfg.Custody, s.cfg.FeeSink, fee); err != nil {
			return err
		}
	}

	tx.State = model.EscrowFulfilled
	tx.UpdatedAt = now
	if err := s.store.PutEscrowTransaction(ctx, tx); err != nil {
		return fmt.Errorf("escrow: save transaction: %w", err)
	}

	metrics.EscrowEvents.WithLabelValues("fulfilled").Inc()
	metrics.SettlementFees.Add(fee.InexactFloat64())
	slog.Info("escrow fulfilled",
		"key", key,
		"to", tx.To,
		"payout", payout.String(),
		"fee", fee.String(),
	)
	return nil
}

// SetWhitelist toggles an asset's escrow eligibility. Administrator
// only; always-allowed assets cannot be disabled.
func (s *Service) SetWhitelist(caller, asset string, allowed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.policy.IsAdmin(caller) {
		return ErrNotAuthorized
	}
	s.whitelist.Set(asset, allowed)
	slog.Info("whitelist updated", "asset", asset, "allowed", allowed)
	return nil
}

// Transaction returns a copy of the transaction record.
func (s *Service) Transaction(ctx context.Context, key string) (*model.EscrowTransaction, error) {
	return s.get(ctx, key)
}

func (s *Service) get(ctx context.Context, key string) (*model.EscrowTransaction, error) {
	tx, err := s.store.GetEscrowTransaction(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("escrow: load transaction: %w", err)
	}
	return tx, nil
}
