// Package model defines the core domain types shared across the engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places carried by asset amounts
// and price-unit amounts throughout the engine. Matches the oracle's
// 8-decimal price scale.
const AmountScale int32 = 8

// PriceType selects how a position's price field is interpreted.
type PriceType int8

const (
	// FixedPrice means the price field is an absolute unit price
	// (e.g. 150 = $150 per asset unit).
	FixedPrice PriceType = iota

	// PercentPrice means the price field is a basis-point-like integer
	// applied to the oracle price (e.g. 10500 = 105.00%).
	PercentPrice
)

// PaymentMethod identifies the off-ledger settlement rail for a position.
type PaymentMethod int8

const (
	BankTransfer PaymentMethod = iota
	OtherPayment
)

// StakeAccount holds one account's staking state. Records are never
// deleted; a full withdrawal zeroes the balances in place.
type StakeAccount struct {
	Account    string          `json:"account" db:"account"`
	Principal  decimal.Decimal `json:"principal" db:"principal"`
	Weight     decimal.Decimal `json:"weight" db:"weight"` // accrued time-weight
	Reward     decimal.Decimal `json:"reward" db:"reward"` // claimable, undistributed
	LastUpdate time.Time       `json:"last_update" db:"last_update"`
	LastStake  time.Time       `json:"last_stake" db:"last_stake"` // lock period anchor
}

// Position is a seller's standing sale listing. Custody of TotalAmount
// (in asset units) is held by the marketplace; LockedAmount is the sum
// of all open offers against it, also in asset units.
type Position struct {
	Key           string          `json:"key" db:"key"`
	Price         decimal.Decimal `json:"price" db:"price"` // fixed price or percent, per PriceType
	PriceType     PriceType       `json:"price_type" db:"price_type"`
	TotalAmount   decimal.Decimal `json:"total_amount" db:"total_amount"`
	MinAmount     decimal.Decimal `json:"min_amount" db:"min_amount"` // price units
	MaxAmount     decimal.Decimal `json:"max_amount" db:"max_amount"` // price units
	LockedAmount  decimal.Decimal `json:"locked_amount" db:"locked_amount"`
	PaymentMethod PaymentMethod   `json:"payment_method" db:"payment_method"`
	Asset         string          `json:"asset" db:"asset"`
	Owner         string          `json:"owner" db:"owner"`
	Instructions  string          `json:"instructions" db:"instructions"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// Unlocked returns the custody not claimed by open offers.
func (p *Position) Unlocked() decimal.Decimal {
	return p.TotalAmount.Sub(p.LockedAmount)
}

// Offer is a buyer's claim against an open position. Amount is quoted in
// 8-decimal price units; AssetAmount is the converted slice of the
// position's custody locked for this offer.
type Offer struct {
	Key              string          `json:"key" db:"key"`
	PositionKey      string          `json:"position_key" db:"position_key"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`             // price units
	AssetAmount      decimal.Decimal `json:"asset_amount" db:"asset_amount"` // asset units
	Buyer            string          `json:"buyer" db:"buyer"`
	PaymentReference string          `json:"payment_reference" db:"payment_reference"`
	Released         bool            `json:"released" db:"released"`
	Canceled         bool            `json:"canceled" db:"canceled"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// Resolved reports whether the offer reached a terminal state.
// At most one of Released/Canceled is ever true.
func (o *Offer) Resolved() bool {
	return o.Released || o.Canceled
}

// EscrowState is the lifecycle state of an escrow transaction.
type EscrowState string

const (
	EscrowPending   EscrowState = "pending"
	EscrowRejected  EscrowState = "rejected"
	EscrowFulfilled EscrowState = "fulfilled" // terminal
	EscrowCanceled  EscrowState = "canceled"  // reserved, no transition reaches it
)

// EscrowTransaction is a two-party conditional transfer. Funds move to
// escrow custody at creation and release to To only after both parties
// sign and the lock period elapses since UpdatedAt.
type EscrowTransaction struct {
	Key        string          `json:"key" db:"key"`
	Asset      string          `json:"asset" db:"asset"`
	From       string          `json:"from" db:"from_account"`
	To         string          `json:"to" db:"to_account"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	State      EscrowState     `json:"state" db:"state"`
	SignedFrom bool            `json:"signed_from" db:"signed_from"`
	SignedTo   bool            `json:"signed_to" db:"signed_to"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"` // lock period anchor
}

// FullySigned reports whether both parties have signed.
func (t *EscrowTransaction) FullySigned() bool {
	return t.SignedFrom && t.SignedTo
}

// ClearSignatures drops both signatures. Called whenever the transaction
// leaves Pending via rejection and again when resumed.
func (t *EscrowTransaction) ClearSignatures() {
	t.SignedFrom = false
	t.SignedTo = false
}
