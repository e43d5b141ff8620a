package market_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/cilistia/engine/internal/assets"
	"github.com/cilistia/engine/internal/auth"
	"github.com/cilistia/engine/internal/clock"
	"github.com/cilistia/engine/internal/ledger"
	"github.com/cilistia/engine/internal/market"
	"github.com/cilistia/engine/internal/model"
	"github.com/cilistia/engine/internal/oracle"
	"github.com/cilistia/engine/internal/staking"
	"github.com/cilistia/engine/internal/store"
)

const (
	stakeAsset  = "CIL"
	tradeAsset  = "TOK"
	nativeAsset = "NATIVE"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

type testEnv struct {
	market *market.Service
	stake  *staking.Service
	led    *ledger.Memory
	orc    *oracle.Static
	clk    *clock.Manual
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clk := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	led := ledger.NewMemory(clk)
	st := store.NewMemoryStore()
	orc := oracle.NewStatic()
	orc.SetPrice(tradeAsset, d(1))

	wl := assets.NewWhitelist(nativeAsset, stakeAsset)
	wl.Set(tradeAsset, true)

	var mu sync.Mutex
	stake := staking.NewService(st, led, clk, staking.Config{
		Asset:          stakeAsset,
		Custody:        "stake-vault",
		FeeSink:        "fee-sink",
		LockPeriod:     7 * 24 * time.Hour,
		WeightExponent: 1,
	}, &mu)

	mkt := market.NewService(st, led, orc, stake, auth.NewStatic("admin"), wl,
		clk, market.Config{
			NativeAsset:     nativeAsset,
			Custody:         "market-vault",
			FeeSink:         "fee-sink",
			FeeRate:         d(0.01),
			CollateralRatio: d(3),
		}, &mu, nil)

	for _, acct := range []string{"seller", "buyer"} {
		led.Mint(tradeAsset, acct, d(1_000_000))
		led.Mint(stakeAsset, acct, d(1_000_000))
		led.Mint(nativeAsset, acct, d(1_000_000))
	}

	return &testEnv{market: mkt, stake: stake, led: led, orc: orc, clk: clk}
}

// newPosition publishes the standard test position: 2000 TOK at a fixed
// unit price of 1.0, fills between 10 and 1000 price units.
func newPosition(t *testing.T, env *testEnv) string {
	t.Helper()

	key, err := env.market.CreatePosition(context.Background(), market.CreatePositionParams{
		Owner:         "seller",
		Price:         d(1),
		PriceType:     model.FixedPrice,
		TotalAmount:   d(2000),
		MinAmount:     d(10),
		MaxAmount:     d(1000),
		PaymentMethod: model.BankTransfer,
		Asset:         tradeAsset,
		Instructions:  "IBAN DE00 0000 0000",
	})
	if err != nil {
		t.Fatalf("create position: %v", err)
	}
	return key
}

// giveCollateral stakes enough that the account's capacity covers
// amount at the configured ratio.
func giveCollateral(t *testing.T, env *testEnv, account string, amount decimal.Decimal) {
	t.Helper()
	if err := env.stake.Stake(context.Background(), account, amount.Mul(d(3))); err != nil {
		t.Fatalf("stake collateral: %v", err)
	}
}

func TestCreatePosition_MovesAssetToCustody(t *testing.T) {
	env := newTestEnv(t)
	key := newPosition(t, env)

	bal, _ := env.led.BalanceOf(context.Background(), tradeAsset, "market-vault")
	if !bal.Equal(d(2000)) {
		t.Fatalf("custody balance = %s, want 2000", bal)
	}

	pos, err := env.market.Position(context.Background(), key)
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if !pos.LockedAmount.IsZero() || !pos.TotalAmount.Equal(d(2000)) {
		t.Fatalf("position = total %s locked %s", pos.TotalAmount, pos.LockedAmount)
	}
}

func TestCreatePosition_RejectsUnlistedAsset(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.market.CreatePosition(context.Background(), market.CreatePositionParams{
		Owner:       "seller",
		Price:       d(1),
		TotalAmount: d(100),
		MinAmount:   d(1),
		MaxAmount:   d(10),
		Asset:       "UNLISTED",
	})
	if !errors.Is(err, market.ErrAssetNotWhitelisted) {
		t.Fatalf("err = %v, want ErrAssetNotWhitelisted", err)
	}
}

func TestCreatePosition_NativeValueMismatch(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.market.CreatePosition(context.Background(), market.CreatePositionParams{
		Owner:       "seller",
		Price:       d(1),
		TotalAmount: d(100),
		MinAmount:   d(1),
		MaxAmount:   d(10),
		Asset:       nativeAsset,
		Value:       d(99),
	})
	if !errors.Is(err, market.ErrAmountMismatch) {
		t.Fatalf("err = %v, want ErrAmountMismatch", err)
	}
}

func TestIncreaseDecreasePosition(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key := newPosition(t, env)

	if err := env.market.IncreasePosition(ctx, key, "seller", d(500), decimal.Zero); err != nil {
		t.Fatalf("increase: %v", err)
	}
	pos, _ := env.market.Position(ctx, key)
	if !pos.TotalAmount.Equal(d(2500)) {
		t.Fatalf("total after increase = %s, want 2500", pos.TotalAmount)
	}

	if err := env.market.DecreasePosition(ctx, key, "seller", d(2500)); err != nil {
		t.Fatalf("decrease: %v", err)
	}
	pos, _ = env.market.Position(ctx, key)
	if !pos.TotalAmount.IsZero() {
		t.Fatalf("total after decrease = %s, want 0", pos.TotalAmount)
	}

	bal, _ := env.led.BalanceOf(ctx, tradeAsset, "seller")
	if !bal.Equal(d(1_000_000)) {
		t.Fatalf("seller balance = %s, want 1000000", bal)
	}
}

func TestAdjustPosition_OwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key := newPosition(t, env)

	if err := env.market.IncreasePosition(ctx, key, "buyer", d(1), decimal.Zero); !errors.Is(err, market.ErrNotOwner) {
		t.Fatalf("increase err = %v, want ErrNotOwner", err)
	}
	if err := env.market.DecreasePosition(ctx, key, "buyer", d(1)); !errors.Is(err, market.ErrNotOwner) {
		t.Fatalf("decrease err = %v, want ErrNotOwner", err)
	}
}

func TestDecreasePosition_LockedSliceUnavailable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key := newPosition(t, env)

	giveCollateral(t, env, "buyer", d(1500))
	if _, err := env.market.CreateOffer(ctx, market.CreateOfferParams{
		PositionKey: key, Buyer: "buyer", Amount: d(1000),
	}); err != nil {
		t.Fatalf("create offer: %v", err)
	}

	// 2000 total, 1000 locked: only 1000 withdrawable.
	if err := env.market.DecreasePosition(ctx, key, "seller", d(1001)); !errors.Is(err, market.ErrInsufficientUnlocked) {
		t.Fatalf("err = %v, want ErrInsufficientUnlocked", err)
	}
	if err := env.market.DecreasePosition(ctx, key, "seller", d(1000)); err != nil {
		t.Fatalf("decrease unlocked remainder: %v", err)
	}
}

func TestCreateOffer_FillBounds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key := newPosition(t, env)
	giveCollateral(t, env, "buyer", d(2000))

	if _, err := env.market.CreateOffer(ctx, market.CreateOfferParams{
		PositionKey: key, Buyer: "buyer", Amount: d(9),
	}); !errors.Is(err, market.ErrAmountBelowMin) {
		t.Fatalf("below-min err = %v, want ErrAmountBelowMin", err)
	}

	if _, err := env.market.CreateOffer(ctx, market.CreateOfferParams{
		PositionKey: key, Buyer: "buyer", Amount: d(1001),
	}); !errors.Is(err, market.ErrAmountAboveMax) {
		t.Fatalf("above-max err = %v, want ErrAmountAboveMax", err)
	}

	if _, err := env.market.CreateOffer(ctx, market.CreateOfferParams{
		PositionKey: key, Buyer: "buyer", Amount: d(10),
	}); err != nil {
		t.Fatalf("min boundary offer: %v", err)
	}
	if _, err := env.market.CreateOffer(ctx, market.CreateOfferParams{
		PositionKey: key, Buyer: "buyer", Amount: d(1000),
	}); err != nil {
		t.Fatalf("max boundary offer: %v", err)
	}
}

func TestCreateOffer_CollateralGate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key := newPosition(t, env)

	// No stake at all: capacity 0 < 500*3.
	_, err := env.market.CreateOffer(ctx, market.CreateOfferParams{
		PositionKey: key, Buyer: "buyer", Amount: d(500),
	})
	if !errors.Is(err, market.ErrInsufficientCollateral) {
		t.Fatalf("err = %v, want ErrInsufficientCollateral", err)
	}

	// One below the required capacity still fails.
	if err := env.stake.Stake(ctx, "buyer", d(1499)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	_, err = env.market.CreateOffer(ctx, market.CreateOfferParams{
		PositionKey: key, Buyer: "buyer", Amount: d(500),
	})
	if !errors.Is(err, market.ErrInsufficientCollateral) {
		t.Fatalf("err = %v, want ErrInsufficientCollateral at capacity 1499", err)
	}

	// Topping up to exactly 1500 clears the gate.
	if err := env.stake.Stake(ctx, "buyer", d(1)); err != nil {
		t.Fatalf("stake top-up: %v", err)
	}
	if _, err := env.market.CreateOffer(ctx, market.CreateOfferParams{
		PositionKey: key, Buyer: "buyer", Amount: d(500),
	}); err != nil {
		t.Fatalf("offer at exact capacity: %v", err)
	}

	pos, _ := env.market.Position(ctx, key)
	if !pos.LockedAmount.Equal(d(500)) {
		t.Fatalf("locked = %s, want 500", pos.LockedAmount)
	}
}

func TestCreateOffer_PercentPriceUsesOracle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.orc.SetPrice(tradeAsset, d(2))

	key, err := env.market.CreatePosition(ctx, market.CreatePositionParams{
		Owner:       "seller",
		Price:       decimal.NewFromInt(10500), // 105% of oracle
		PriceType:   model.PercentPrice,
		TotalAmount: d(2000),
		MinAmount:   d(10),
		MaxAmount:   d(1000),
		Asset:       tradeAsset,
	})
	if err != nil {
		t.Fatalf("create position: %v", err)
	}

	giveCollateral(t, env, "buyer", d(1000))
	offerKey, err := env.market.CreateOffer(ctx, market.CreateOfferParams{
		PositionKey: key, Buyer: "buyer", Amount: d(210),
	})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}

	// Effective price 2 * 1.05 = 2.1, so 210 price units lock 100 TOK.
	offer, _ := env.market.Offer(ctx, offerKey)
	if !offer.AssetAmount.Equal(d(100)) {
		t.Fatalf("asset amount = %s, want 100", offer.AssetAmount)
	}
}

func TestReleaseOffer_SettlesMinusFee(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key := newPosition(t, env)
	giveCollateral(t, env, "buyer", d(500))

	offerKey, err := env.market.CreateOffer(ctx, market.CreateOfferParams{
		PositionKey: key, Buyer: "buyer", Amount: d(500),
	})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}

	if err := env.market.ReleaseOffer(ctx, offerKey, "buyer"); !errors.Is(err, market.ErrNotPositionOwner) {
		t.Fatalf("buyer release err = %v, want ErrNotPositionOwner", err)
	}
	if err := env.market.ReleaseOffer(ctx, offerKey, "seller"); err != nil {
		t.Fatalf("release: %v", err)
	}

	buyerBal, _ := env.led.BalanceOf(ctx, tradeAsset, "buyer")
	if !buyerBal.Equal(d(1_000_000).Add(d(495))) {
		t.Fatalf("buyer received %s, want +495 (500 minus 1%% fee)", buyerBal.Sub(d(1_000_000)))
	}
	feeBal, _ := env.led.BalanceOf(ctx, tradeAsset, "fee-sink")
	if !feeBal.Equal(d(5)) {
		t.Fatalf("fee sink = %s, want 5", feeBal)
	}

	pos, _ := env.market.Position(ctx, key)
	if !pos.TotalAmount.Equal(d(1500)) || !pos.LockedAmount.IsZero() {
		t.Fatalf("position after release: total %s locked %s", pos.TotalAmount, pos.LockedAmount)
	}

	if err := env.market.ReleaseOffer(ctx, offerKey, "seller"); !errors.Is(err, market.ErrAlreadyResolved) {
		t.Fatalf("double release err = %v, want ErrAlreadyResolved", err)
	}
}

func TestCancelOffer_UnlocksWithoutTransfer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key := newPosition(t, env)
	giveCollateral(t, env, "buyer", d(500))

	offerKey, err := env.market.CreateOffer(ctx, market.CreateOfferParams{
		PositionKey: key, Buyer: "buyer", Amount: d(500),
	})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}

	if err := env.market.CancelOffer(ctx, offerKey, "seller"); !errors.Is(err, market.ErrNotCreator) {
		t.Fatalf("seller cancel err = %v, want ErrNotCreator", err)
	}
	if err := env.market.CancelOffer(ctx, offerKey, "buyer"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	pos, _ := env.market.Position(ctx, key)
	if !pos.TotalAmount.Equal(d(2000)) || !pos.LockedAmount.IsZero() {
		t.Fatalf("position after cancel: total %s locked %s", pos.TotalAmount, pos.LockedAmount)
	}

	if err := env.market.CancelOffer(ctx, offerKey, "buyer"); !errors.Is(err, market.ErrAlreadyResolved) {
		t.Fatalf("double cancel err = %v, want ErrAlreadyResolved", err)
	}
	if err := env.market.ReleaseOffer(ctx, offerKey, "seller"); !errors.Is(err, market.ErrAlreadyResolved) {
		t.Fatalf("release after cancel err = %v, want ErrAlreadyResolved", err)
	}
}

func TestForceCancelOffer_SlashesAndBlocksBuyer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key := newPosition(t, env)
	giveCollateral(t, env, "buyer", d(500))

	offerKey, err := env.market.CreateOffer(ctx, market.CreateOfferParams{
		PositionKey: key, Buyer: "buyer", Amount: d(500),
	})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}

	if err := env.market.ForceCancelOffer(ctx, offerKey, "seller"); !errors.Is(err, market.ErrNotAuthorized) {
		t.Fatalf("non-admin err = %v, want ErrNotAuthorized", err)
	}
	if err := env.market.ForceCancelOffer(ctx, offerKey, "admin"); err != nil {
		t.Fatalf("force cancel: %v", err)
	}

	// Buyer's 1500 staked collateral goes to the fee sink.
	feeBal, _ := env.led.BalanceOf(ctx, stakeAsset, "fee-sink")
	if !feeBal.Equal(d(1500)) {
		t.Fatalf("confiscated stake = %s, want 1500", feeBal)
	}
	cap, _ := env.stake.CollateralCapacity(ctx, "buyer")
	if !cap.IsZero() {
		t.Fatalf("capacity after slash = %s, want 0", cap)
	}

	if !env.market.Blocked("buyer") {
		t.Fatal("buyer not blocked after force cancel")
	}
	if _, err := env.market.CreateOffer(ctx, market.CreateOfferParams{
		PositionKey: key, Buyer: "buyer", Amount: d(10),
	}); !errors.Is(err, market.ErrAccountBlocked) {
		t.Fatalf("blocked buyer offer err = %v, want ErrAccountBlocked", err)
	}

	pos, _ := env.market.Position(ctx, key)
	if !pos.LockedAmount.IsZero() {
		t.Fatalf("locked after force cancel = %s, want 0", pos.LockedAmount)
	}
}

func TestForceRemovePosition_ConfiscatesAndBlocksOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key := newPosition(t, env)

	if err := env.stake.Stake(ctx, "seller", d(100)); err != nil {
		t.Fatalf("seller stake: %v", err)
	}

	if err := env.market.ForceRemovePosition(ctx, key, "buyer"); !errors.Is(err, market.ErrNotAuthorized) {
		t.Fatalf("non-admin err = %v, want ErrNotAuthorized", err)
	}
	if err := env.market.ForceRemovePosition(ctx, key, "admin"); err != nil {
		t.Fatalf("force remove: %v", err)
	}

	// Position custody and the owner's stake both land in the fee sink.
	tokBal, _ := env.led.BalanceOf(ctx, tradeAsset, "fee-sink")
	if !tokBal.Equal(d(2000)) {
		t.Fatalf("confiscated custody = %s, want 2000", tokBal)
	}
	stakeBal, _ := env.led.BalanceOf(ctx, stakeAsset, "fee-sink")
	if !stakeBal.Equal(d(100)) {
		t.Fatalf("confiscated stake = %s, want 100", stakeBal)
	}

	pos, _ := env.market.Position(ctx, key)
	if !pos.TotalAmount.IsZero() || !pos.LockedAmount.IsZero() {
		t.Fatalf("position after removal: total %s locked %s", pos.TotalAmount, pos.LockedAmount)
	}

	if !env.market.Blocked("seller") {
		t.Fatal("seller not blocked after force removal")
	}
	if _, err := env.market.CreatePosition(ctx, market.CreatePositionParams{
		Owner: "seller", Price: d(1), TotalAmount: d(1),
		MinAmount: d(1), MaxAmount: d(1), Asset: tradeAsset,
	}); !errors.Is(err, market.ErrAccountBlocked) {
		t.Fatalf("blocked seller err = %v, want ErrAccountBlocked", err)
	}
}

func TestForceRemovePosition_CancelsOpenOffers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	posA := newPosition(t, env)
	posB, err := env.market.CreatePosition(ctx, market.CreatePositionParams{
		Owner: "seller", Price: d(1), TotalAmount: d(100),
		MinAmount: d(10), MaxAmount: d(100), Asset: tradeAsset,
	})
	if err != nil {
		t.Fatalf("create second position: %v", err)
	}

	giveCollateral(t, env, "buyer", d(500))
	offerKey, err := env.market.CreateOffer(ctx, market.CreateOfferParams{
		PositionKey: posA, Buyer: "buyer", Amount: d(500),
	})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}

	if err := env.market.ForceRemovePosition(ctx, posA, "admin"); err != nil {
		t.Fatalf("force remove: %v", err)
	}

	// The open offer died with the position; neither party can act on it.
	offer, _ := env.market.Offer(ctx, offerKey)
	if !offer.Canceled {
		t.Fatal("open offer not canceled by force removal")
	}
	if err := env.market.ReleaseOffer(ctx, offerKey, "seller"); !errors.Is(err, market.ErrAlreadyResolved) {
		t.Fatalf("release after removal err = %v, want ErrAlreadyResolved", err)
	}
	if err := env.market.CancelOffer(ctx, offerKey, "buyer"); !errors.Is(err, market.ErrAlreadyResolved) {
		t.Fatalf("cancel after removal err = %v, want ErrAlreadyResolved", err)
	}

	pos, _ := env.market.Position(ctx, posA)
	if !pos.TotalAmount.IsZero() || !pos.LockedAmount.IsZero() {
		t.Fatalf("removed position: total %s locked %s, want 0/0", pos.TotalAmount, pos.LockedAmount)
	}

	// The full 2000 was confiscated; custody still backs the other
	// position exactly.
	feeBal, _ := env.led.BalanceOf(ctx, tradeAsset, "fee-sink")
	if !feeBal.Equal(d(2000)) {
		t.Fatalf("confiscated custody = %s, want 2000", feeBal)
	}
	custody, _ := env.led.BalanceOf(ctx, tradeAsset, "market-vault")
	other, _ := env.market.Position(ctx, posB)
	if !custody.Equal(other.TotalAmount) {
		t.Fatalf("custody = %s, surviving position needs %s", custody, other.TotalAmount)
	}
}

func TestTokenPrice(t *testing.T) {
	env := newTestEnv(t)
	env.orc.SetPrice(tradeAsset, d(3.5))

	price, err := env.market.TokenPrice(context.Background(), tradeAsset)
	if err != nil {
		t.Fatalf("token price: %v", err)
	}
	if !price.Equal(d(3.5)) {
		t.Fatalf("price = %s, want 3.5", price)
	}

	if _, err := env.market.TokenPrice(context.Background(), "UNKNOWN"); !errors.Is(err, oracle.ErrUnavailable) {
		t.Fatalf("unknown asset err = %v, want ErrUnavailable", err)
	}
}

func newTestRouter(env *testEnv) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/positions", env.market.HandleCreatePosition)
	r.Get("/positions", env.market.HandleListPositions)
	r.Get("/positions/{key}", env.market.HandleGetPosition)
	r.Post("/positions/{key}/increase", env.market.HandleIncreasePosition)
	r.Post("/positions/{key}/decrease", env.market.HandleDecreasePosition)
	r.Post("/offers", env.market.HandleCreateOffer)
	r.Post("/offers/{key}/release", env.market.HandleReleaseOffer)
	return r
}

func TestHandleCreatePosition(t *testing.T) {
	env := newTestEnv(t)
	r := newTestRouter(env)

	body, _ := json.Marshal(market.CreatePositionRequest{
		Owner:       "seller",
		Price:       d(1),
		TotalAmount: d(100),
		MinAmount:   d(1),
		MaxAmount:   d(50),
		Asset:       tradeAsset,
	})
	req := httptest.NewRequest(http.MethodPost, "/positions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["key"] == "" {
		t.Fatal("response missing position key")
	}

	getReq := httptest.NewRequest(http.MethodGet, "/positions/"+resp["key"], nil)
	getRec := httptest.NewRecorder()
	r.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", getRec.Code)
	}
}

func TestHandleCreateOffer_StatusMapping(t *testing.T) {
	env := newTestEnv(t)
	r := newTestRouter(env)
	key := newPosition(t, env)

	// Below min fill maps to 400.
	body, _ := json.Marshal(market.CreateOfferRequest{
		PositionKey: key, Buyer: "buyer", Amount: d(9),
	})
	req := httptest.NewRequest(http.MethodPost, "/offers", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("below-min status = %d, want 400", rec.Code)
	}

	// Missing collateral maps to 409.
	body, _ = json.Marshal(market.CreateOfferRequest{
		PositionKey: key, Buyer: "buyer", Amount: d(500),
	})
	req = httptest.NewRequest(http.MethodPost, "/offers", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("no-collateral status = %d, want 409", rec.Code)
	}

	// Unknown position maps to 404.
	body, _ = json.Marshal(market.CreateOfferRequest{
		PositionKey: "missing", Buyer: "buyer", Amount: d(10),
	})
	req = httptest.NewRequest(http.MethodPost, "/offers", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing-position status = %d, want 404", rec.Code)
	}
}
