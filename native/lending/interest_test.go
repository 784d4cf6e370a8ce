package lending

import (
	"errors"
	"testing"

	"lendledger/native/lending/fixedpoint"
)

var (
	assetX = testAsset{asset: "X", rate: "1", safe: "0.5", initialRate: "0.025", utilFactor: "0.2", eligible: true}
	assetY = testAsset{asset: "Y", rate: "1", safe: "0.5", eligible: true}
)

func TestUtilizationAndRates(t *testing.T) {
	cfg := assetX.config()
	pool := NewPoolState("X", 0)

	u, err := Utilization(pool)
	if err != nil || !u.IsZero() {
		t.Fatalf("expected zero utilization for empty pool, got %s (%v)", u, err)
	}
	rate, err := BorrowRate(&cfg, pool)
	if err != nil || !rate.Eq(val("0.025")) {
		t.Fatalf("expected initial rate at zero utilization, got %s (%v)", rate, err)
	}
	supply, err := SupplyRate(&cfg, pool)
	if err != nil || !supply.IsZero() {
		t.Fatalf("expected zero supply rate, got %s (%v)", supply, err)
	}

	pool.TotalSupply = units(800)
	pool.TotalBorrow = units(200)
	if u, _ = Utilization(pool); !u.Eq(val("0.2")) {
		t.Fatalf("expected utilization 0.2, got %s", u)
	}
	if rate, _ = BorrowRate(&cfg, pool); !rate.Eq(val("0.065")) {
		t.Fatalf("expected borrow rate 0.065, got %s", rate)
	}
	if supply, _ = SupplyRate(&cfg, pool); !supply.Eq(val("0.013")) {
		t.Fatalf("expected supply rate 0.013, got %s", supply)
	}
}

func TestAccrueIsIdempotentWithinDay(t *testing.T) {
	cfg := assetX.config()
	pool := NewPoolState("X", 0)
	pool.TotalSupply = units(800)
	pool.TotalBorrow = units(200)
	params := DefaultParams()

	first, err := Accrue(pool, &cfg, 30, params)
	if err != nil || first == nil {
		t.Fatalf("expected accrual, got %v (%v)", first, err)
	}
	snapshot := *pool
	second, err := Accrue(pool, &cfg, 30, params)
	if err != nil || second != nil {
		t.Fatalf("expected no-op on same day, got %v (%v)", second, err)
	}
	if *pool != snapshot {
		t.Fatalf("pool changed on repeated accrual: %+v vs %+v", *pool, snapshot)
	}
	if back, err := Accrue(pool, &cfg, 10, params); err != nil || back != nil {
		t.Fatalf("expected earlier day to be ignored, got %v (%v)", back, err)
	}
	if *pool != snapshot {
		t.Fatalf("pool changed on earlier day")
	}
}

func TestAccrueRejectsZeroYearLength(t *testing.T) {
	cfg := assetX.config()
	pool := NewPoolState("X", 0)
	before := *pool
	_, err := Accrue(pool, &cfg, 1, Params{LiquidationThreshold: fixedpoint.One()})
	if !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
	if *pool != before {
		t.Fatalf("failed accrual mutated pool")
	}
}

func TestScenarioFirstSupplyAccruesNothingWithoutBorrows(t *testing.T) {
	engine, _, _ := newTestEngine(t, assetX)
	mustSupply(t, engine, "alice", "X", units(1000), false)

	if got := position(t, engine, "alice", "X").Supplied; !got.Eq(units(1000)) {
		t.Fatalf("expected 1000 on supply day, got %s", got)
	}
	engine.SetDay(1)
	if got := position(t, engine, "alice", "X").Supplied; !got.Eq(units(1000)) {
		t.Fatalf("expected 1000 after one idle day, got %s", got)
	}
}

func TestScenarioBorrowAccruesAtUtilizationRate(t *testing.T) {
	engine, state, _ := newTestEngine(t, assetX, assetY)
	mustSupply(t, engine, "bob", "X", units(1000), false)
	mustSupply(t, engine, "alice", "Y", units(1000), true)
	mustBorrow(t, engine, "alice", "X", units(200))

	rate, err := engine.BorrowRate("X")
	if err != nil || !rate.Eq(val("0.065")) {
		t.Fatalf("expected borrow rate 0.065, got %s (%v)", rate, err)
	}

	engine.SetDay(360)
	if err := engine.Accrue("X"); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if got := position(t, engine, "alice", "X").Borrowed; !got.Eq(units(213)) {
		t.Fatalf("expected debt 213 after a year, got %s", got)
	}
	pool := storedPool(t, state, "X")
	if !pool.TotalBorrow.Eq(units(213)) || !pool.BorrowIndex.Eq(val("1.065")) || !pool.SupplyIndex.Eq(val("1.013")) {
		t.Fatalf("unexpected pool after a year: %+v", pool)
	}

	// bob's supply was added on day 0 and only earns from day 1.
	boundary, ok, _ := state.GetSupplyBoundary("X", 0)
	if !ok {
		t.Fatalf("no supply boundary recorded for day 0")
	}
	want, err := fixedpoint.MulDiv(units(1000), pool.SupplyIndex, boundary)
	if err != nil {
		t.Fatalf("expected value: %v", err)
	}
	got := position(t, engine, "bob", "X").Supplied
	if !got.Eq(want) || !got.Lt(units(1013)) || !got.Gt(val("1012.9")) {
		t.Fatalf("expected supply %s after a year, got %s", want, got)
	}
}

func TestNewSupplyEarnsFromNextBoundary(t *testing.T) {
	engine, _, _ := newTestEngine(t, assetX, assetY)
	mustSupply(t, engine, "bob", "X", units(1000), false)
	mustSupply(t, engine, "alice", "Y", units(1000), true)
	mustBorrow(t, engine, "alice", "X", units(200))

	engine.SetDay(5)
	mustSupply(t, engine, "carol", "X", units(100), false)
	mustSupply(t, engine, "dave", "Y", units(1000), true)
	mustBorrow(t, engine, "dave", "X", units(10))
	if got := position(t, engine, "carol", "X").Supplied; !got.Eq(units(100)) {
		t.Fatalf("expected face value on supply day, got %s", got)
	}
	if got := position(t, engine, "bob", "X").Supplied; !got.Gt(units(1000)) {
		t.Fatalf("expected existing supply to have accrued, got %s", got)
	}

	engine.SetDay(6)
	if got := position(t, engine, "carol", "X").Supplied; !got.Eq(units(100)) {
		t.Fatalf("supply earned interest for the day it was added: %s", got)
	}
	if got := position(t, engine, "dave", "X").Borrowed; !got.Gt(units(10)) {
		t.Fatalf("borrow must accrue from the day it was taken, got %s", got)
	}

	engine.SetDay(7)
	if got := position(t, engine, "carol", "X").Supplied; !got.Gt(units(100)) {
		t.Fatalf("expected interest after the next boundary, got %s", got)
	}
}

func TestPendingSupplyMaturesAtRecordedBoundary(t *testing.T) {
	engine, state, _ := newTestEngine(t, assetX, assetY)
	mustSupply(t, engine, "bob", "X", units(1000), false)
	mustSupply(t, engine, "alice", "Y", units(1000), true)
	mustBorrow(t, engine, "alice", "X", units(200))

	engine.SetDay(5)
	mustSupply(t, engine, "carol", "X", units(100), false)
	if stored := state.positions["carol/X"]; !stored.Supply.Pending.Eq(units(100)) || !stored.Supply.Principal.IsZero() {
		t.Fatalf("expected the new supply to be pending, got %+v", stored.Supply)
	}

	engine.SetDay(6)
	if err := engine.Accrue("X"); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	boundary := storedPool(t, state, "X").SupplyIndex
	if recorded, ok, _ := state.GetSupplyBoundary("X", 5); !ok || !recorded.Eq(boundary) {
		t.Fatalf("expected boundary %s for day 5, got %s (%v)", boundary, recorded, ok)
	}

	engine.SetDay(9)
	if err := engine.Accrue("X"); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	index := storedPool(t, state, "X").SupplyIndex
	want, err := fixedpoint.MulDiv(units(100), index, boundary)
	if err != nil {
		t.Fatalf("expected value: %v", err)
	}
	if got := position(t, engine, "carol", "X").Supplied; !got.Eq(want) {
		t.Fatalf("expected %s after maturing at the day 6 index, got %s", want, got)
	}

	if err := engine.Withdraw("carol", "X", units(1)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	stored := state.positions["carol/X"]
	if !stored.Supply.Pending.IsZero() || !stored.Supply.Snapshot.Eq(index) {
		t.Fatalf("expected matured balance to persist, got %+v", stored.Supply)
	}
}

func TestIndicesNeverDecrease(t *testing.T) {
	engine, state, _ := newTestEngine(t, assetX, assetY)
	mustSupply(t, engine, "bob", "X", units(1000), false)
	mustSupply(t, engine, "alice", "Y", units(1000), true)

	prev := storedPool(t, state, "X")
	for day := uint64(1); day <= 20; day++ {
		engine.SetDay(day)
		switch day % 4 {
		case 0:
			mustBorrow(t, engine, "alice", "X", units(10))
		case 1:
			mustSupply(t, engine, "bob", "X", units(5), false)
		case 2:
			debt := position(t, engine, "alice", "X").Borrowed
			if !debt.IsZero() {
				if err := engine.Repay("alice", "X", debt); err != nil {
					t.Fatalf("repay: %v", err)
				}
			}
		default:
			if err := engine.Accrue("X"); err != nil {
				t.Fatalf("accrue: %v", err)
			}
		}
		cur := storedPool(t, state, "X")
		if cur.SupplyIndex.Lt(prev.SupplyIndex) || cur.BorrowIndex.Lt(prev.BorrowIndex) {
			t.Fatalf("index decreased on day %d: %+v -> %+v", day, prev, cur)
		}
		prev = cur
	}
}

func TestEngineAccrueTwiceSameDay(t *testing.T) {
	engine, state, rec := newTestEngine(t, assetX, assetY)
	mustSupply(t, engine, "bob", "X", units(1000), false)
	mustSupply(t, engine, "alice", "Y", units(1000), true)
	mustBorrow(t, engine, "alice", "X", units(100))

	engine.SetDay(3)
	rec.Reset()
	if err := engine.Accrue("X"); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	after := storedPool(t, state, "X")
	if after.LastAccrualDay != 3 || len(rec.Events()) != 1 {
		t.Fatalf("expected one accrual to day 3, got %+v events=%d", after, len(rec.Events()))
	}
	if err := engine.Accrue("X"); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if again := storedPool(t, state, "X"); *again != *after {
		t.Fatalf("second accrual changed pool: %+v vs %+v", again, after)
	}
	if len(rec.Events()) != 1 {
		t.Fatalf("expected no event for a no-op accrual")
	}
}
