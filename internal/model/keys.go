package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Entity keys are content-derived: a hash over the identifying fields
// plus the ledger time of creation. A per-engine sequence number is
// folded in so that two entities with identical fields created within
// the same logical time unit still get distinct keys.

// PositionKey derives the identity of a position.
func PositionKey(method PaymentMethod, price decimal.Decimal, asset, owner string,
	total, min, max decimal.Decimal, at time.Time, seq uint64) string {
	return hashKey(fmt.Sprintf("position|%d|%s|%s|%s|%s|%s|%s|%d|%d",
		method, price.String(), asset, owner,
		total.String(), min.String(), max.String(), at.UnixNano(), seq))
}

// OfferKey derives the identity of an offer against a position.
func OfferKey(positionKey string, amount decimal.Decimal, buyer string, at time.Time, seq uint64) string {
	return hashKey(fmt.Sprintf("offer|%s|%s|%s|%d|%d",
		positionKey, amount.String(), buyer, at.UnixNano(), seq))
}

// EscrowKey derives the identity of an escrow transaction.
func EscrowKey(asset, from, to string, at time.Time, seq uint64) string {
	return hashKey(fmt.Sprintf("escrow|%s|%s|%s|%d|%d",
		asset, from, to, at.UnixNano(), seq))
}

func hashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
