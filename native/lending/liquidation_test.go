package lending

import (
	"errors"
	"testing"

	"lendledger/core/events"
)

var (
	assetDOT  = testAsset{asset: "DOT", rate: "0.3", safe: "0.5", discount: "0.95", eligible: true}
	assetUSDT = testAsset{asset: "USDT", rate: "1", safe: "0.5", discount: "0.95", eligible: false}
	assetKSM  = testAsset{asset: "KSM", rate: "1", safe: "0.5", discount: "0.95", eligible: true}
)

// setupUnderwater leaves alice at health exactly 1 (collateral 150, debt 150)
// and carol comfortably collateralised.
func setupUnderwater(t *testing.T, usdt testAsset) (*Engine, *mockEngineState, *events.Recorder) {
	t.Helper()
	engine, state, rec := newTestEngine(t, assetDOT, usdt, assetKSM)
	mustSupply(t, engine, "bob", "USDT", units(1000), false)
	mustSupply(t, engine, "alice", "DOT", units(1000), true)
	mustSupply(t, engine, "carol", "DOT", units(1000), true)
	mustBorrow(t, engine, "alice", "USDT", units(150))
	mustBorrow(t, engine, "carol", "USDT", units(50))
	rec.Reset()
	return engine, state, rec
}

func dropDOT(t *testing.T, engine *Engine) {
	t.Helper()
	if err := engine.SetExchangeRate("DOT", val("0.25")); err != nil {
		t.Fatalf("set rate: %v", err)
	}
}

func TestScenarioPriceDropMakesAccountEligible(t *testing.T) {
	engine, _, _ := setupUnderwater(t, assetUSDT)

	risk, err := engine.UserInfo("alice")
	if err != nil {
		t.Fatalf("risk: %v", err)
	}
	if !risk.CollateralValue.Eq(units(150)) || !risk.BorrowedValue.Eq(units(150)) {
		t.Fatalf("unexpected valuation %+v", risk)
	}
	if risk.Eligible(engine.Params()) {
		t.Fatalf("health exactly at threshold must not be eligible")
	}
	result, err := engine.Liquidate("dan", "alice", "USDT", "DOT", units(10))
	if !errors.Is(err, ErrNotEligible) || KindOf(err) != KindLiquidation {
		t.Fatalf("expected ErrNotEligible, got %v", err)
	}
	if result == nil || result.State != LiquidationRejected {
		t.Fatalf("expected rejected attempt, got %+v", result)
	}

	dropDOT(t, engine)
	risk, err = engine.UserInfo("alice")
	if err != nil {
		t.Fatalf("risk: %v", err)
	}
	if !risk.Eligible(engine.Params()) {
		t.Fatalf("expected eligibility after price drop, health %s", risk.Health)
	}

	ranking, err := engine.HealthRankings()
	if err != nil {
		t.Fatalf("rankings: %v", err)
	}
	entries := ranking.Take(0)
	if len(entries) != 2 {
		t.Fatalf("expected two indebted accounts, got %+v", entries)
	}
	if entries[0].Account != "alice" || entries[1].Account != "carol" {
		t.Fatalf("unexpected order %s, %s", entries[0].Account, entries[1].Account)
	}
	if !entries[0].Health.Less(entries[1].Health) {
		t.Fatalf("expected ascending health, got %s then %s", entries[0].Health, entries[1].Health)
	}
	if len(entries[0].BorrowedAssets) != 1 || entries[0].BorrowedAssets[0] != "USDT" {
		t.Fatalf("unexpected borrowed assets %v", entries[0].BorrowedAssets)
	}
}

func TestScenarioLiquidationSettlesAtDiscount(t *testing.T) {
	engine, state, rec := setupUnderwater(t, assetUSDT)
	dropDOT(t, engine)
	rec.Reset()

	result, err := engine.Liquidate("dan", "alice", "USDT", "DOT", units(100))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if result.State != LiquidationSettled {
		t.Fatalf("expected settled, got %s", result.State)
	}
	// 100 * 1 * 0.95 / 0.25
	if !result.Seized.Eq(units(380)) {
		t.Fatalf("expected 380 DOT seized, got %s", result.Seized)
	}
	if !result.MaxRepay.Eq(units(150)) {
		t.Fatalf("close factor 1 must allow the whole debt, got %s", result.MaxRepay)
	}

	if got := position(t, engine, "alice", "USDT").Borrowed; !got.Eq(units(50)) {
		t.Fatalf("expected remaining debt 50, got %s", got)
	}
	if got := position(t, engine, "alice", "DOT").Supplied; !got.Eq(units(620)) {
		t.Fatalf("expected remaining collateral 620, got %s", got)
	}
	dan := position(t, engine, "dan", "DOT")
	if !dan.Supplied.Eq(units(380)) || dan.IsCollateral {
		t.Fatalf("unexpected arbitrageur position %+v", dan)
	}

	dot := storedPool(t, state, "DOT")
	if !dot.TotalSupply.Eq(units(2000)) {
		t.Fatalf("collateral pool liquidity must not move, got %s", dot.TotalSupply)
	}
	usdt := storedPool(t, state, "USDT")
	if !usdt.TotalSupply.Eq(units(900)) || !usdt.TotalBorrow.Eq(units(100)) {
		t.Fatalf("unexpected borrowed pool %+v", usdt)
	}

	var liquidated *events.LendingLiquidation
	for _, evt := range rec.Events() {
		if l, ok := evt.(events.LendingLiquidation); ok {
			liquidated = &l
		}
	}
	if liquidated == nil || liquidated.Target != "alice" || liquidated.Seized.Cmp(units(380).Big()) != 0 {
		t.Fatalf("expected liquidation event, got %+v", rec.Events())
	}
}

func TestLiquidationCloseFactorCap(t *testing.T) {
	capped := assetUSDT
	capped.closeFactor = "0.5"
	engine, _, _ := setupUnderwater(t, capped)
	dropDOT(t, engine)

	result, err := engine.Liquidate("dan", "alice", "USDT", "DOT", units(100))
	if !errors.Is(err, ErrRepayExceedsDebt) {
		t.Fatalf("expected ErrRepayExceedsDebt above the cap, got %v", err)
	}
	if result.State != LiquidationRejected || !result.MaxRepay.Eq(units(75)) {
		t.Fatalf("unexpected rejected attempt %+v", result)
	}
	if got := position(t, engine, "alice", "USDT").Borrowed; !got.Eq(units(150)) {
		t.Fatalf("rejected liquidation changed debt to %s", got)
	}

	result, err = engine.Liquidate("dan", "alice", "USDT", "DOT", units(75))
	if err != nil {
		t.Fatalf("liquidate at cap: %v", err)
	}
	if !result.Seized.Eq(units(285)) {
		t.Fatalf("expected 285 DOT seized, got %s", result.Seized)
	}
}

func TestLiquidationSmallAccountMayRepayInFull(t *testing.T) {
	capped := assetUSDT
	capped.closeFactor = "0.5"
	engine, _, _ := newTestEngine(t, assetDOT, capped)
	mustSupply(t, engine, "bob", "USDT", units(1000), false)
	mustSupply(t, engine, "alice", "DOT", units(600), true)
	mustBorrow(t, engine, "alice", "USDT", units(90))
	dropDOT(t, engine)

	result, err := engine.Liquidate("dan", "alice", "USDT", "DOT", units(90))
	if err != nil {
		t.Fatalf("full repay of a small account: %v", err)
	}
	if !result.MaxRepay.Eq(units(90)) || !result.Seized.Eq(units(342)) {
		t.Fatalf("unexpected result %+v", result)
	}
	if got := position(t, engine, "alice", "USDT").Borrowed; !got.IsZero() {
		t.Fatalf("expected debt cleared, got %s", got)
	}
}

func TestLiquidationInsufficientTargetCollateralIsAtomic(t *testing.T) {
	engine, state, rec := setupUnderwater(t, assetUSDT)
	dropDOT(t, engine)
	mustSupply(t, engine, "alice", "KSM", units(10), true)
	rec.Reset()

	writes := state.writes
	usdtBefore := storedPool(t, state, "USDT")
	result, err := engine.Liquidate("dan", "alice", "USDT", "KSM", units(100))
	if !errors.Is(err, ErrInsufficientTargetCollateral) {
		t.Fatalf("expected ErrInsufficientTargetCollateral, got %v", err)
	}
	if result.State != LiquidationRejected || !errors.Is(result.Reason, ErrInsufficientTargetCollateral) {
		t.Fatalf("unexpected attempt %+v", result)
	}
	if state.writes != writes {
		t.Fatalf("rejected liquidation wrote to state")
	}
	if usdtAfter := storedPool(t, state, "USDT"); *usdtAfter != *usdtBefore {
		t.Fatalf("rejected liquidation changed pool")
	}
	if got := position(t, engine, "alice", "USDT").Borrowed; !got.Eq(units(150)) {
		t.Fatalf("rejected liquidation changed debt to %s", got)
	}
	if len(rec.Events()) != 0 {
		t.Fatalf("rejected liquidation emitted events")
	}
}

func TestLiquidationRequestValidation(t *testing.T) {
	engine, _, _ := setupUnderwater(t, assetUSDT)
	dropDOT(t, engine)

	if _, err := engine.Liquidate("alice", "alice", "USDT", "DOT", units(1)); !errors.Is(err, ErrSelfLiquidation) {
		t.Fatalf("expected ErrSelfLiquidation, got %v", err)
	}
	if _, err := engine.Liquidate("dan", "alice", "USDT", "USDT", units(1)); !errors.Is(err, ErrAssetNotCollateral) {
		t.Fatalf("expected ErrAssetNotCollateral, got %v", err)
	}
	if _, err := engine.Liquidate("dan", "alice", "DOT", "DOT", units(1)); !errors.Is(err, ErrNoDebt) {
		t.Fatalf("expected ErrNoDebt, got %v", err)
	}
	if _, err := engine.Liquidate("dan", "alice", "USDT", "DOT", units(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := engine.Liquidate("dan", "alice", "NOPE", "DOT", units(1)); !errors.Is(err, ErrPoolNotExist) {
		t.Fatalf("expected ErrPoolNotExist, got %v", err)
	}
	if _, err := engine.Liquidate("dan", "carol", "USDT", "DOT", units(1)); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible for healthy account, got %v", err)
	}
}
