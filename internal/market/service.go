// Package market implements the marketplace matching engine: sellers
// publish collateral-gated sale positions, buyers lock offers against
// them, and the seller triggers on-ledger release after confirming the
// off-ledger payment leg.
//
// The off-ledger leg has no on-ledger verification; trust is entirely
// collateral-backed through the staking ledger. That trust boundary is
// deliberate.
//
// All monetary values use shopspring/decimal — never float64 for money.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/cilistia/engine/internal/assets"
	"github.com/cilistia/engine/internal/auth"
	"github.com/cilistia/engine/internal/clock"
	"github.com/cilistia/engine/internal/ledger"
	"github.com/cilistia/engine/internal/metrics"
	"github.com/cilistia/engine/internal/model"
	"github.com/cilistia/engine/internal/oracle"
	"github.com/cilistia/engine/internal/store"
)

var (
	ErrAssetNotWhitelisted    = errors.New("market: asset not whitelisted")
	ErrAmountMismatch         = errors.New("market: attached value does not match amount")
	ErrInvalidAmount          = errors.New("market: invalid amount")
	ErrPositionNotFound       = errors.New("market: no such position")
	ErrOfferNotFound          = errors.New("market: no such offer")
	ErrNotOwner               = errors.New("market: not owner of this position")
	ErrNotCreator             = errors.New("market: not creator of this offer")
	ErrNotPositionOwner       = errors.New("market: not owner of the offer's position")
	ErrAlreadyResolved        = errors.New("market: offer already resolved")
	ErrAmountBelowMin         = errors.New("market: amount less than position minimum")
	ErrAmountAboveMax         = errors.New("market: amount exceeds position maximum")
	ErrInsufficientUnlocked   = errors.New("market: insufficient unlocked amount")
	ErrInsufficientCollateral = errors.New("market: insufficient collateral for offer")
	ErrAccountBlocked         = errors.New("market: account is blocked")
	ErrNotAuthorized          = errors.New("market: not authorized")
)

// percentBase is the divisor for percentage price specs:
// 10500 → 105.00% of the oracle price.
var percentBase = decimal.NewFromInt(10000)

// CollateralSource is the narrow view of the staking ledger the
// marketplace reads. It never touches staking internals.
type CollateralSource interface {
	CollateralCapacity(ctx context.Context, account string) (decimal.Decimal, error)
	Slash(ctx context.Context, account string) (decimal.Decimal, error)
}

// Config holds the marketplace parameters.
type Config struct {
	// NativeAsset is the chain-native asset; postings in it must attach
	// the full amount with the call.
	NativeAsset string

	// Custody holds all position balances.
	Custody string

	// FeeSink receives settlement fees and confiscated balances.
	FeeSink string

	// FeeRate is the fraction withheld on release (0.01 = 1%).
	FeeRate decimal.Decimal

	// CollateralRatio is the multiple of the offer's asset amount the
	// buyer's collateral capacity must cover. This gate is the system's
	// sybil/fraud resistance, substituting for identity verification.
	CollateralRatio decimal.Decimal
}

// Service is the marketplace matching engine. Mutating operations
// serialize on the engine-wide mutex shared with staking and escrow.
type Service struct {
	store      store.Store
	led        ledger.Ledger
	orc        oracle.Oracle
	collateral CollateralSource
	policy     auth.Policy
	whitelist  *assets.Whitelist
	clk        clock.Clock
	cfg        Config
	mu         *sync.Mutex
	hub        *Hub // optional, nil disables broadcasts

	blocked map[string]bool
	seq     uint64
}

// NewService creates the marketplace service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, led ledger.Ledger, orc oracle.Oracle,
	collateral CollateralSource, policy auth.Policy, wl *assets.Whitelist,
	clk clock.Clock, cfg Config, mu *sync.Mutex, hub *Hub) *Service {
	return &Service{
		store:      st,
		led:        led,
		orc:        orc,
		collateral: collateral,
		policy:     policy,
		whitelist:  wl,
		clk:        clk,
		cfg:        cfg,
		mu:         mu,
		hub:        hub,
		blocked:    make(map[string]bool),
	}
}

// CreatePositionParams carries the inputs for CreatePosition.
type CreatePositionParams struct {
	Owner         string
	Price         decimal.Decimal
	PriceType     model.PriceType
	TotalAmount   decimal.Decimal // asset units, moved into custody
	MinAmount     decimal.Decimal // price units
	MaxAmount     decimal.Decimal // price units
	PaymentMethod model.PaymentMethod
	Asset         string
	Instructions  string
	Value         decimal.Decimal // attached native value
}

// CreatePosition publishes a new sale position, pulling TotalAmount into
// marketplace custody. Returns the position's content-derived key.
func (s *Service) CreatePosition(ctx context.Context, p CreatePositionParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blocked[p.Owner] {
		return "", ErrAccountBlocked
	}
	if !s.whitelist.Allowed(p.Asset) {
		return "", ErrAssetNotWhitelisted
	}
	if !p.TotalAmount.IsPositive() || p.MinAmount.GreaterThan(p.MaxAmount) {
		return "", ErrInvalidAmount
	}
	if p.Asset == s.cfg.NativeAsset && !p.Value.Equal(p.TotalAmount) {
		return "", ErrAmountMismatch
	}

	if err := s.led.Transfer(ctx, p.Asset, p.Owner, s.cfg.Custody, p.TotalAmount); err != nil {
		return "", err
	}

	now := s.clk.Now()
	s.seq++
	pos := &model.Position{
		Key: model.PositionKey(p.PaymentMethod, p.Price, p.Asset, p.Owner,
			p.TotalAmount, p.MinAmount, p.MaxAmount, now, s.seq),
		Price:         p.Price,
		PriceType:     p.PriceType,
		TotalAmount:   p.TotalAmount,
		MinAmount:     p.MinAmount,
		MaxAmount:     p.MaxAmount,
		LockedAmount:  decimal.Zero,
		PaymentMethod: p.PaymentMethod,
		Asset:         p.Asset,
		Owner:         p.Owner,
		Instructions:  p.Instructions,
		CreatedAt:     now,
	}

	if err := s.store.PutPosition(ctx, pos); err != nil {
		return "", fmt.Errorf("market: save position: %w", err)
	}

	metrics.PositionEvents.WithLabelValues("created").Inc()
	s.broadcastPosition(pos)
	slog.Info("position created",
		"key", pos.Key,
		"owner", p.Owner,
		"asset", p.Asset,
		"total", p.TotalAmount.String(),
	)
	return pos.Key, nil
}

// IncreasePosition adds delta to a position's total, pulling the asset
// from the owner. Only the owner may call it.
func (s *Service) IncreasePosition(ctx context.Context, key, account string, delta, value decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.getPosition(ctx, key)
	if err != nil {
		return err
	}
	if pos.Owner != account {
		return ErrNotOwner
	}
	if !delta.IsPositive() {
		return ErrInvalidAmount
	}
	if pos.Asset == s.cfg.NativeAsset && !value.Equal(delta) {
		return ErrAmountMismatch
	}

	if err := s.led.Transfer(ctx, pos.Asset, account, s.cfg.Custody, delta); err != nil {
		return err
	}

	pos.TotalAmount = pos.TotalAmount.Add(delta)
	if err := s.store.PutPosition(ctx, pos); err != nil {
		return fmt.Errorf("market: save position: %w", err)
	}

	metrics.PositionEvents.WithLabelValues("increased").Inc()
	s.broadcastPosition(pos)
	slog.Info("position increased", "key", key, "delta", delta.String())
	return nil
}

// DecreasePosition returns delta of the position's unlocked custody to
// the owner. Only the owner may call it.
func (s *Service) DecreasePosition(ctx context.Context, key, account string, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.getPosition(ctx, key)
	if err != nil {
		return err
	}
	if pos.Owner != account {
		return ErrNotOwner
	}
	if !delta.IsPositive() {
		return ErrInvalidAmount
	}
	if delta.GreaterThan(pos.Unlocked()) {
		return ErrInsufficientUnlocked
	}

	if err := s.led.Transfer(ctx, pos.Asset, s.cfg.Custody, account, delta); err != nil {
		return err
	}

	pos.TotalAmount = pos.TotalAmount.Sub(delta)
	if err := s.store.PutPosition(ctx, pos); err != nil {
		return fmt.Errorf("market: save position: %w", err)
	}

	metrics.PositionEvents.WithLabelValues("decreased").Inc()
	s.broadcastPosition(pos)
	slog.Info("position decreased", "key", key, "delta", delta.String())
	return nil
}

// CreateOfferParams carries the inputs for CreateOffer.
type CreateOfferParams struct {
	PositionKey      string
	Buyer            string
	Amount           decimal.Decimal // price units
	PaymentReference string
}

// CreateOffer locks a slice of the position's custody for the buyer,
// sized by converting the price-unit amount through the position's
// effective price. The buyer's collateral capacity must cover the
// converted amount by the configured ratio.
func (s *Service) CreateOffer(ctx context.Context, p CreateOfferParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blocked[p.Buyer] {
		return "", ErrAccountBlocked
	}

	pos, err := s.getPosition(ctx, p.PositionKey)
	if err != nil {
		return "", err
	}
	if p.Amount.LessThan(pos.MinAmount) {
		return "", ErrAmountBelowMin
	}
	if p.Amount.GreaterThan(pos.MaxAmount) {
		return "", ErrAmountAboveMax
	}

	price, err := s.effectivePrice(ctx, pos)
	if err != nil {
		return "", err
	}
	assetAmount := p.Amount.Div(price).Truncate(model.AmountScale)
	if !assetAmount.IsPositive() {
		return "", ErrInvalidAmount
	}
	if assetAmount.GreaterThan(pos.Unlocked()) {
		return "", ErrInsufficientUnlocked
	}

	capacity, err := s.collateral.CollateralCapacity(ctx, p.Buyer)
	if err != nil {
		return "", err
	}
	if capacity.LessThan(assetAmount.Mul(s.cfg.CollateralRatio)) {
		return "", ErrInsufficientCollateral
	}

	now := s.clk.Now()
	s.seq++
	offer := &model.Offer{
		Key:              model.OfferKey(pos.Key, p.Amount, p.Buyer, now, s.seq),
		PositionKey:      pos.Key,
		Amount:           p.Amount,
		AssetAmount:      assetAmount,
		Buyer:            p.Buyer,
		PaymentReference: p.PaymentReference,
		CreatedAt:        now,
	}

	pos.LockedAmount = pos.LockedAmount.Add(assetAmount)
	if err := s.store.PutOffer(ctx, offer); err != nil {
		return "", fmt.Errorf("market: save offer: %w", err)
	}
	if err := s.store.PutPosition(ctx, pos); err != nil {
		return "", fmt.Errorf("market: save position: %w", err)
	}

	metrics.OfferEvents.WithLabelValues("created").Inc()
	if s.hub != nil {
		s.hub.Broadcast(Event{
			Type:        EventOfferCreated,
			Key:         offer.Key,
			PositionKey: pos.Key,
			Amount:      assetAmount.String(),
			Account:     p.Buyer,
		})
	}
	slog.Info("offer created",
		"key", offer.Key,
		"position", pos.Key,
		"buyer", p.Buyer,
		"amount", p.Amount.String(),
		"asset_amount", assetAmount.String(),
	)
	return offer.Key, nil
}

// CancelOffer unlocks the offer's slice of the position. Only the
// offer's creator may call it; the administrator uses ForceCancelOffer.
func (s *Service) CancelOffer(ctx context.Context, key, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	offer, err := s.getOffer(ctx, key)
	if err != nil {
		return err
	}
	if offer.Resolved() {
		return ErrAlreadyResolved
	}
	if offer.Buyer != account {
		return ErrNotCreator
	}
	return s.cancelOffer(ctx, offer)
}

// ReleaseOffer settles the offer: the seller confirms receipt of the
// off-ledger payment and the locked asset moves to the buyer minus the
// settlement fee. Only the parent position's owner may call it.
func (s *Service) ReleaseOffer(ctx context.Context, key, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	offer, err := s.getOffer(ctx, key)
	if err != nil {
		return err
	}
	if offer.Resolved() {
		return ErrAlreadyResolved
	}

	pos, err := s.getPosition(ctx, offer.PositionKey)
	if err != nil {
		return err
	}
	if pos.Owner != account {
		return ErrNotPositionOwner
	}

	fee := offer.AssetAmount.Mul(s.cfg.FeeRate).Truncate(model.AmountScale)
	payout := offer.AssetAmount.Sub(fee)

	if err := s.led.Transfer(ctx, pos.Asset, s.cfg.Custody, offer.Buyer, payout); err != nil {
		return err
	}
	if fee.IsPositive() {
		if err := s.led.Transfer(ctx, pos.Asset, s.cfg.Custody, s.cfg.FeeSink, fee); err != nil {
			return err
		}
	}

	offer.Released = true
	pos.TotalAmount = pos.TotalAmount.Sub(offer.AssetAmount)
	pos.LockedAmount = pos.LockedAmount.Sub(offer.AssetAmount)

	if err := s.store.PutOffer(ctx, offer); err != nil {
		return fmt.Errorf("market: save offer: %w", err)
	}
	if err := s.store.PutPosition(ctx, pos); err != nil {
		return fmt.Errorf("market: save position: %w", err)
	}

	metrics.OfferEvents.WithLabelValues("released").Inc()
	metrics.SettlementFees.Add(fee.InexactFloat64())
	if s.hub != nil {
		s.hub.Broadcast(Event{
			Type:        EventOfferReleased,
			Key:         offer.Key,
			PositionKey: pos.Key,
			Amount:      payout.String(),
			Account:     offer.Buyer,
		})
	}
	s.broadcastPosition(pos)
	slog.Info("offer released",
		"key", key,
		"buyer", offer.Buyer,
		"payout", payout.String(),
		"fee", fee.String(),
	)
	return nil
}

// ForceCancelOffer cancels any open offer, confiscates the buyer's
// staking collateral, and blocks the buyer from future participation.
// Administrator only.
func (s *Service) ForceCancelOffer(ctx context.Context, key, caller string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.policy.IsAdmin(caller) {
		return ErrNotAuthorized
	}

	offer, err := s.getOffer(ctx, key)
	if err != nil {
		return err
	}
	if offer.Resolved() {
		return ErrAlreadyResolved
	}

	if err := s.cancelOffer(ctx, offer); err != nil {
		return err
	}

	slashed, err := s.collateral.Slash(ctx, offer.Buyer)
	if err != nil {
		return err
	}
	s.blocked[offer.Buyer] = true

	if s.hub != nil {
		s.hub.Broadcast(Event{Type: EventAccountBlocked, Account: offer.Buyer})
	}
	slog.Warn("offer force-canceled",
		"key", key,
		"buyer", offer.Buyer,
		"slashed", slashed.String(),
	)
	return nil
}

// ForceRemovePosition zeroes a position, confiscates its custody and the
// owner's staking collateral, and blocks the owner. Administrator only.
func (s *Service) ForceRemovePosition(ctx context.Context, key, caller string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.policy.IsAdmin(caller) {
		return ErrNotAuthorized
	}

	pos, err := s.getPosition(ctx, key)
	if err != nil {
		return err
	}

	// Open offers must die with the position: a surviving offer could
	// later release custody the position no longer holds.
	offers, err := s.store.ListOffersByPosition(ctx, key)
	if err != nil {
		return fmt.Errorf("market: list offers: %w", err)
	}
	for i := range offers {
		if offers[i].Resolved() {
			continue
		}
		if err := s.cancelOffer(ctx, &offers[i]); err != nil {
			return err
		}
	}
	pos, err = s.getPosition(ctx, key)
	if err != nil {
		return err
	}

	if pos.TotalAmount.IsPositive() {
		if err := s.led.Transfer(ctx, pos.Asset, s.cfg.Custody, s.cfg.FeeSink, pos.TotalAmount); err != nil {
			return err
		}
	}

	pos.TotalAmount = decimal.Zero
	pos.LockedAmount = decimal.Zero
	if err := s.store.PutPosition(ctx, pos); err != nil {
		return fmt.Errorf("market: save position: %w", err)
	}

	slashed, err := s.collateral.Slash(ctx, pos.Owner)
	if err != nil {
		return err
	}
	s.blocked[pos.Owner] = true

	metrics.PositionEvents.WithLabelValues("removed").Inc()
	s.broadcastPosition(pos)
	if s.hub != nil {
		s.hub.Broadcast(Event{Type: EventAccountBlocked, Account: pos.Owner})
	}
	slog.Warn("position force-removed",
		"key", key,
		"owner", pos.Owner,
		"slashed", slashed.String(),
	)
	return nil
}

// TokenPrice resolves the oracle unit price for an asset. Percentage
// price specs are applied against this value at offer-creation time.
func (s *Service) TokenPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	return s.orc.PriceOf(ctx, asset)
}

// Position returns a copy of the position record.
func (s *Service) Position(ctx context.Context, key string) (*model.Position, error) {
	return s.getPosition(ctx, key)
}

// Positions lists all positions.
func (s *Service) Positions(ctx context.Context) ([]model.Position, error) {
	return s.store.ListPositions(ctx)
}

// Offer returns a copy of the offer record.
func (s *Service) Offer(ctx context.Context, key string) (*model.Offer, error) {
	return s.getOffer(ctx, key)
}

// Blocked reports whether an account has been blocked by a force action.
func (s *Service) Blocked(account string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked[account]
}

// --- internals (caller holds s.mu) ---

func (s *Service) cancelOffer(ctx context.Context, offer *model.Offer) error {
	pos, err := s.getPosition(ctx, offer.PositionKey)
	if err != nil {
		return err
	}

	offer.Canceled = true
	pos.LockedAmount = pos.LockedAmount.Sub(offer.AssetAmount)

	if err := s.store.PutOffer(ctx, offer); err != nil {
		return fmt.Errorf("market: save offer: %w", err)
	}
	if err := s.store.PutPosition(ctx, pos); err != nil {
		return fmt.Errorf("market: save position: %w", err)
	}

	metrics.OfferEvents.WithLabelValues("canceled").Inc()
	if s.hub != nil {
		s.hub.Broadcast(Event{
			Type:        EventOfferCanceled,
			Key:         offer.Key,
			PositionKey: pos.Key,
			Account:     offer.Buyer,
		})
	}
	slog.Info("offer canceled", "key", offer.Key, "buyer", offer.Buyer)
	return nil
}

// effectivePrice resolves the position's unit price: fixed specs carry
// it directly; percentage specs multiply the oracle price with
// truncating division at the oracle scale.
func (s *Service) effectivePrice(ctx context.Context, pos *model.Position) (decimal.Decimal, error) {
	if pos.PriceType == model.FixedPrice {
		return pos.Price, nil
	}

	base, err := s.orc.PriceOf(ctx, pos.Asset)
	if err != nil {
		return decimal.Zero, err
	}
	return base.Mul(pos.Price).Div(percentBase).Truncate(oracle.PriceScale), nil
}

func (s *Service) getPosition(ctx context.Context, key string) (*model.Position, error) {
	pos, err := s.store.GetPosition(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPositionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("market: load position: %w", err)
	}
	return pos, nil
}

func (s *Service) getOffer(ctx context.Context, key string) (*model.Offer, error) {
	offer, err := s.store.GetOffer(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOfferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("market: load offer: %w", err)
	}
	return offer, nil
}

func (s *Service) broadcastPosition(pos *model.Position) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(Event{
		Type:         EventPositionUpdated,
		Key:          pos.Key,
		TotalAmount:  pos.TotalAmount.String(),
		LockedAmount: pos.LockedAmount.String(),
	})
}
